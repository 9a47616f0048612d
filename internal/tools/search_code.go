package tools

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"
)

// MaxSearchResults caps code-search output.
const MaxSearchResults = 100

const searchTimeout = 10 * time.Second

// SearchCodeTool greps the working tree for a regex. Ripgrep is used
// when present; otherwise an internal walk over UTF-8 files.
type SearchCodeTool struct{}

func (t *SearchCodeTool) Name() string { return "search_code" }

func (t *SearchCodeTool) Execute(ctx context.Context, args map[string]any) Result {
	pattern, ok := stringArg(args, "pattern")
	if !ok {
		return failure(t.Name(), "missing required argument: 'pattern'")
	}
	searchPath := optionalStringArg(args, "path", ".")

	if _, err := exec.LookPath("rg"); err == nil {
		return t.searchWithRipgrep(ctx, pattern, searchPath)
	}
	return t.searchInternal(pattern, searchPath)
}

func (t *SearchCodeTool) searchWithRipgrep(ctx context.Context, pattern, searchPath string) Result {
	ctx, cancel := context.WithTimeout(ctx, searchTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "rg", "--line-number", "--max-count", fmt.Sprint(MaxSearchResults), pattern, searchPath)
	out, err := cmd.Output()
	if ctx.Err() == context.DeadlineExceeded {
		return failure(t.Name(), "search timed out after %s", searchTimeout)
	}
	if err != nil {
		// Exit 1 means no matches; anything else is a real error.
		if exitErr, ok := err.(*exec.ExitError); ok && exitErr.ExitCode() == 1 {
			return success(t.Name(), "No matches found")
		}
		stderr := ""
		if exitErr, ok := err.(*exec.ExitError); ok {
			stderr = strings.TrimSpace(string(exitErr.Stderr))
		}
		return failure(t.Name(), "search error: %s", stderr)
	}
	return success(t.Name(), strings.TrimSpace(string(out)))
}

func (t *SearchCodeTool) searchInternal(pattern, searchPath string) Result {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return failure(t.Name(), "invalid regex pattern: %v", err)
	}
	if _, err := os.Stat(searchPath); err != nil {
		return failure(t.Name(), "path not found: %s", searchPath)
	}

	var matches []string
	_ = filepath.WalkDir(searchPath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil // skip unreadable entries
		}
		if len(matches) >= MaxSearchResults {
			return filepath.SkipAll
		}
		if d.IsDir() {
			if d.Name() == ".git" {
				return filepath.SkipDir
			}
			return nil
		}
		info, err := d.Info()
		if err != nil || info.Size() > MaxFileSize {
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil || !utf8.Valid(data) {
			return nil
		}
		for i, line := range strings.Split(string(data), "\n") {
			if re.MatchString(line) {
				matches = append(matches, fmt.Sprintf("%s:%d:%s", path, i+1, strings.TrimSpace(line)))
				if len(matches) >= MaxSearchResults {
					break
				}
			}
		}
		return nil
	})

	if len(matches) == 0 {
		return success(t.Name(), "No matches found")
	}
	output := strings.Join(matches, "\n")
	if len(matches) >= MaxSearchResults {
		output += fmt.Sprintf("\n\n(Showing first %d results)", MaxSearchResults)
	}
	return success(t.Name(), output)
}
