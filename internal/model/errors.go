package model

import "fmt"

// ValidationError reports a malformed request or configuration. It is
// the only error kind surfaced to callers verbatim.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation: " + e.Reason
	}
	return fmt.Sprintf("validation: %s: %s", e.Field, e.Reason)
}

// BackendError reports a non-retriable backend failure. Within a
// deliberation it is contained: the participant's slot becomes a
// synthetic [ERROR: ...] response and the round proceeds.
type BackendError struct {
	Backend string
	Msg     string
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("backend %s: %s", e.Backend, e.Msg)
}

// TimeoutError reports an activity or hard timeout on a backend or
// tool invocation. Containment matches BackendError.
type TimeoutError struct {
	Backend string
	// Activity distinguishes "no output for T seconds" from a total
	// wall-clock overrun.
	Activity bool
	Elapsed  string
}

func (e *TimeoutError) Error() string {
	kind := "hard timeout"
	if e.Activity {
		kind = "activity timeout"
	}
	return fmt.Sprintf("backend %s: %s after %s", e.Backend, kind, e.Elapsed)
}

// TransientError marks a failure whose remedy is to wait and retry
// (429, 503, connection reset). The adapter retry loop consumes these;
// after exhaustion they convert to BackendError.
type TransientError struct {
	Backend string
	Msg     string
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("backend %s: transient: %s", e.Backend, e.Msg)
}

// StorageError reports a decision-graph write failure. A node-insert
// failure surfaces to the caller; stance and edge failures are logged
// and do not roll back the node.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }
