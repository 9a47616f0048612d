package tools

import (
	"bytes"
	"context"
	"os/exec"
	"sort"
	"strings"
	"time"
)

// CommandTimeout is the hard cap on one run_command execution.
const CommandTimeout = 10 * time.Second

// allowedCommands is the fixed allow-list of read-only utilities.
var allowedCommands = map[string]struct{}{
	"ls": {}, "pwd": {}, "cat": {}, "head": {}, "tail": {}, "wc": {}, "find": {},
	"git": {}, "grep": {}, "awk": {}, "sed": {}, "sort": {}, "uniq": {},
	"tree": {}, "file": {}, "stat": {}, "diff": {},
}

// RunCommandTool executes an allow-listed shell utility with a hard
// timeout. A non-zero exit is reported as an error.
type RunCommandTool struct{}

func (t *RunCommandTool) Name() string { return "run_command" }

func (t *RunCommandTool) Execute(ctx context.Context, args map[string]any) Result {
	command, ok := stringArg(args, "command")
	if !ok {
		return failure(t.Name(), "missing required argument: 'command'")
	}
	if _, ok := allowedCommands[command]; !ok {
		return failure(t.Name(), "command %q is not allowed. Allowed: %s", command, allowedList())
	}

	var cmdArgs []string
	if raw, ok := args["args"]; ok {
		list, ok := raw.([]any)
		if !ok {
			return failure(t.Name(), "'args' must be a list of strings")
		}
		for _, item := range list {
			s, ok := item.(string)
			if !ok {
				return failure(t.Name(), "'args' must be a list of strings")
			}
			cmdArgs = append(cmdArgs, s)
		}
	}

	ctx, cancel := context.WithTimeout(ctx, CommandTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, command, cmdArgs...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if ctx.Err() == context.DeadlineExceeded {
		return failure(t.Name(), "command timed out after %s", CommandTimeout)
	}
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			return failure(t.Name(), "command failed (exit %d): %s", exitErr.ExitCode(), strings.TrimSpace(stderr.String()))
		}
		return failure(t.Name(), "command failed: %v", err)
	}
	return success(t.Name(), strings.TrimSpace(stdout.String()))
}

func allowedList() string {
	names := make([]string, 0, len(allowedCommands))
	for name := range allowedCommands {
		names = append(names, name)
	}
	sort.Strings(names)
	return strings.Join(names, ", ")
}
