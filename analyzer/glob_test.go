package analyzer

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFiles(t *testing.T, root string, names ...string) {
	t.Helper()
	for _, n := range names {
		p := filepath.Join(root, filepath.FromSlash(n))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, nil, 0o644))
	}
}

func TestGlobRecursive_MatchesBaseNameAtAnyDepthSorted(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, "b/User_2.log", "a/deep/User_1.log", "User_0.log", "a/MCC_1.log")

	got, err := globRecursive(filepath.Join(dir, "**", "User_*.log"))
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(dir, "User_0.log"),
		filepath.Join(dir, "a", "deep", "User_1.log"),
		filepath.Join(dir, "b", "User_2.log"),
	}, got)
}

func TestGlobRecursive_SlashSuffixMatchesRelativePath(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, "day1/User_1.log", "day2/User_2.log", "day1/x/User_3.log")

	got, err := globRecursive(filepath.Join(dir, "**") + "/day1/*.log")
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "day1", "User_1.log")}, got)
}

func TestGlobRecursive_NoDoubleStarUsesPlainGlob(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, "a.log", "sub/b.log")

	got, err := globRecursive(filepath.Join(dir, "*.log"))
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "a.log")}, got)
}

func TestGlobRecursive_BadPattern(t *testing.T) {
	_, err := globRecursive(filepath.Join(t.TempDir(), "**", "[.log"))
	require.Error(t, err)
}

func TestExpandInputs_DropsDuplicatesAndBlanks(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, "User_1.log")
	plain := filepath.Join(dir, "User_1.log")

	got, err := expandInputs([]string{plain, " ", filepath.Join(dir, "**", "*.log"), "missing.log"})
	require.NoError(t, err)
	assert.Equal(t, []string{plain, "missing.log"}, got)
}
