package graph

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolvePathAnchorsRelative(t *testing.T) {
	got, err := ResolvePath("decision_graph.db", "/srv/hyogi")
	require.NoError(t, err)
	assert.Equal(t, "/srv/hyogi/decision_graph.db", got)
}

func TestResolvePathKeepsAbsolute(t *testing.T) {
	got, err := ResolvePath("/var/lib/hyogi/graph.db", "/srv/hyogi")
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/hyogi/graph.db", got)
}

func TestResolvePathExpandsEnv(t *testing.T) {
	t.Setenv("HYOGI_DATA", "/data/hyogi")

	got, err := ResolvePath("${HYOGI_DATA}/graph.db", "/srv")
	require.NoError(t, err)
	assert.Equal(t, "/data/hyogi/graph.db", got)
}

func TestResolvePathFailsOnUnsetEnv(t *testing.T) {
	_, err := ResolvePath("${HYOGI_DOES_NOT_EXIST}/graph.db", "/srv")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "HYOGI_DOES_NOT_EXIST")
}

func TestResolvePathExpandsHome(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	got, err := ResolvePath("~/hyogi/graph.db", "/srv")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "hyogi", "graph.db"), got)
}

func TestResolvePathRejectsEmpty(t *testing.T) {
	_, err := ResolvePath("", "/srv")
	assert.Error(t, err)
}
