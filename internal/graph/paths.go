package graph

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

var envRefPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// ResolvePath canonicalizes a configured filesystem path. ${VAR}
// references are expanded (unset variables are an error), a leading ~
// becomes the user's home directory, and relative paths are anchored at
// root rather than the process working directory. The working directory
// is unreliable here: MCP hosts launch the server from arbitrary
// locations, and the engine itself chdirs during tool execution.
func ResolvePath(raw, root string) (string, error) {
	if raw == "" {
		return "", fmt.Errorf("graph: empty path")
	}

	var missing string
	expanded := envRefPattern.ReplaceAllStringFunc(raw, func(ref string) string {
		name := envRefPattern.FindStringSubmatch(ref)[1]
		v, ok := os.LookupEnv(name)
		if !ok {
			missing = name
			return ref
		}
		return v
	})
	if missing != "" {
		return "", fmt.Errorf("graph: path references unset variable %q", missing)
	}

	if expanded == "~" || strings.HasPrefix(expanded, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("graph: resolve home directory: %w", err)
		}
		expanded = filepath.Join(home, strings.TrimPrefix(expanded, "~"))
	}

	if !filepath.IsAbs(expanded) {
		expanded = filepath.Join(root, expanded)
	}
	return filepath.Clean(expanded), nil
}

// ProjectRoot picks the anchor for relative configured paths: the
// directory of the config file when one was given, otherwise the
// executable's directory.
func ProjectRoot(configPath string) string {
	if configPath != "" {
		if abs, err := filepath.Abs(filepath.Dir(configPath)); err == nil {
			return abs
		}
	}
	if exe, err := os.Executable(); err == nil {
		return filepath.Dir(exe)
	}
	wd, _ := os.Getwd()
	return wd
}
