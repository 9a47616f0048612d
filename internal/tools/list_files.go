package tools

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// MaxListedFiles caps file-list output.
const MaxListedFiles = 200

// ListFilesTool lists files under a directory matching a glob pattern.
// The walk is always recursive; a leading "**/" in the pattern is
// accepted and means the same thing.
type ListFilesTool struct{}

func (t *ListFilesTool) Name() string { return "list_files" }

func (t *ListFilesTool) Execute(_ context.Context, args map[string]any) Result {
	pattern := optionalStringArg(args, "pattern", "*")
	searchPath := optionalStringArg(args, "path", ".")

	root, err := filepath.Abs(searchPath)
	if err != nil {
		return failure(t.Name(), "resolve path %q: %v", searchPath, err)
	}
	if _, err := os.Stat(root); err != nil {
		return failure(t.Name(), "path not found: %s", root)
	}

	// Match the basename against the pattern's last segment; any
	// leading directory part of the pattern only matters for "**".
	base := pattern
	if i := strings.LastIndexByte(pattern, '/'); i != -1 {
		base = pattern[i+1:]
	}
	if _, err := filepath.Match(base, ""); err != nil {
		return failure(t.Name(), "invalid glob pattern: %v", err)
	}

	var matches []string
	_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if len(matches) >= MaxListedFiles {
			return filepath.SkipAll
		}
		if d.IsDir() {
			if d.Name() == ".git" {
				return filepath.SkipDir
			}
			return nil
		}
		if ok, _ := filepath.Match(base, d.Name()); ok {
			matches = append(matches, path)
		}
		return nil
	})

	if len(matches) == 0 {
		return success(t.Name(), "No files found")
	}
	output := strings.Join(matches, "\n")
	if len(matches) >= MaxListedFiles {
		output += fmt.Sprintf("\n\n(Showing first %d files)", MaxListedFiles)
	}
	return success(t.Name(), output)
}
