package tools

import (
	"context"
	"os"
	"unicode/utf8"
)

// MaxFileSize bounds what read_file will return.
const MaxFileSize = 1 << 20 // 1 MiB

// ReadFileTool returns a text file's contents.
type ReadFileTool struct{}

func (t *ReadFileTool) Name() string { return "read_file" }

func (t *ReadFileTool) Execute(_ context.Context, args map[string]any) Result {
	path, ok := stringArg(args, "path")
	if !ok {
		return failure(t.Name(), "missing required argument: 'path'")
	}

	info, err := os.Stat(path)
	if err != nil {
		return failure(t.Name(), "file not found: %s", path)
	}
	if info.Size() > MaxFileSize {
		return failure(t.Name(), "file too large: %d bytes (max: %d)", info.Size(), MaxFileSize)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return failure(t.Name(), "read %s: %v", path, err)
	}
	if !utf8.Valid(data) {
		return failure(t.Name(), "cannot read binary file: %s", path)
	}
	return success(t.Name(), string(data))
}
