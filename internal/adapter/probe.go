package adapter

import (
	"os/exec"
	"sync"
)

// probeCache memoizes PATH lookups so repeated factory calls and the
// MCP surface's availability listing stay cheap.
var probeCache = struct {
	mu      sync.Mutex
	results map[string]bool
}{results: make(map[string]bool)}

// commandAvailable reports whether cmd resolves on PATH. Results are
// cached for the process lifetime; installing a CLI mid-run requires a
// restart, which matches how the factory builds adapters once at
// startup.
func commandAvailable(cmd string) bool {
	probeCache.mu.Lock()
	defer probeCache.mu.Unlock()

	if ok, seen := probeCache.results[cmd]; seen {
		return ok
	}
	_, err := exec.LookPath(cmd)
	probeCache.results[cmd] = err == nil
	return err == nil
}
