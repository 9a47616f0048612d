// Package tools implements the evidence-gathering subprotocol:
// participants may embed TOOL_REQUEST markers in their responses, and
// the executor runs the named read-only tool inside the deliberation's
// working directory.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
)

// Marker introduces an embedded tool request, one per line.
const Marker = "TOOL_REQUEST:"

// Request is one parsed tool invocation.
type Request struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// Result is the outcome of one tool execution.
type Result struct {
	ToolName string `json:"tool_name"`
	Success  bool   `json:"success"`
	Output   string `json:"output,omitempty"`
	Error    string `json:"error,omitempty"`
}

func failure(name, format string, args ...any) Result {
	return Result{ToolName: name, Success: false, Error: fmt.Sprintf(format, args...)}
}

func success(name, output string) Result {
	return Result{ToolName: name, Success: true, Output: output}
}

// Tool is one registered capability. Implementations must be read-only
// and bounded in CPU, IO, and output size.
type Tool interface {
	Name() string
	Execute(ctx context.Context, args map[string]any) Result
}

// Executor parses tool requests out of response text and routes them to
// registered tools. Execution is serialized: tools may rely on the
// process working directory, which the executor switches around each
// call.
type Executor struct {
	mu     sync.Mutex
	tools  map[string]Tool
	logger *slog.Logger
}

// NewExecutor returns an executor with no tools registered.
func NewExecutor(logger *slog.Logger) *Executor {
	return &Executor{tools: make(map[string]Tool), logger: logger}
}

// NewDefaultExecutor returns an executor with the standard read-only
// tool set registered.
func NewDefaultExecutor(logger *slog.Logger) *Executor {
	e := NewExecutor(logger)
	e.Register(&ReadFileTool{})
	e.Register(&SearchCodeTool{})
	e.Register(&ListFilesTool{})
	e.Register(&RunCommandTool{})
	return e
}

// Register adds a tool, replacing any previous tool of the same name.
func (e *Executor) Register(t Tool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.tools[t.Name()] = t
	e.logger.Debug("registered tool", "tool", t.Name())
}

// Tools returns the registered tool names.
func (e *Executor) Tools() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	names := make([]string, 0, len(e.tools))
	for name := range e.tools {
		names = append(names, name)
	}
	return names
}

// ParseRequests extracts tool requests from response text. Each marker
// line is decoded from its first '{' with a streaming JSON decoder, so
// braces inside string values parse correctly and trailing prose after
// the object is ignored. Invalid JSON is silently skipped.
func (e *Executor) ParseRequests(text string) []Request {
	var requests []Request
	for _, line := range strings.Split(text, "\n") {
		if !strings.Contains(line, Marker) {
			continue
		}
		start := strings.IndexByte(line, '{')
		if start == -1 {
			continue
		}

		dec := json.NewDecoder(strings.NewReader(line[start:]))
		var req Request
		if err := dec.Decode(&req); err != nil {
			e.logger.Debug("skipping malformed tool request", "error", err)
			continue
		}
		if req.Name == "" {
			continue
		}
		requests = append(requests, req)
	}
	return requests
}

// Execute runs one request. When workingDir is non-empty the process
// working directory is switched for the duration of the call and
// restored on every exit path. A panicking tool is converted into a
// failed result.
func (e *Executor) Execute(ctx context.Context, req Request, workingDir string) (result Result) {
	e.mu.Lock()
	defer e.mu.Unlock()

	tool, ok := e.tools[req.Name]
	if !ok {
		return failure(req.Name, "tool %q is not registered", req.Name)
	}

	if workingDir != "" {
		original, err := os.Getwd()
		if err != nil {
			return failure(req.Name, "resolve current directory: %v", err)
		}
		if err := os.Chdir(workingDir); err != nil {
			return failure(req.Name, "change to working directory %q: %v", workingDir, err)
		}
		defer func() {
			if err := os.Chdir(original); err != nil {
				e.logger.Error("failed to restore working directory", "dir", original, "error", err)
			}
		}()
	}

	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("tool panicked", "tool", req.Name, "panic", r)
			result = failure(req.Name, "tool panicked: %v", r)
		}
	}()

	return tool.Execute(ctx, req.Arguments)
}

// stringArg extracts a required string argument.
func stringArg(args map[string]any, key string) (string, bool) {
	v, ok := args[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	if !ok || s == "" {
		return "", false
	}
	return s, true
}

// optionalStringArg extracts a string argument with a default.
func optionalStringArg(args map[string]any, key, fallback string) string {
	if s, ok := stringArg(args, key); ok {
		return s
	}
	return fallback
}
