package archive

import (
	"archive/tar"
	"compress/gzip"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func readArchive(t *testing.T, path string) map[string]string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	gz, err := gzip.NewReader(f)
	require.NoError(t, err)
	defer gz.Close()

	entries := map[string]string{}
	tr := tar.NewReader(gz)
	for {
		header, err := tr.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		data, err := io.ReadAll(tr)
		require.NoError(t, err)
		entries[header.Name] = string(data)
	}
	return entries
}

func TestFilename(t *testing.T) {
	at := time.Date(2025, 3, 14, 9, 26, 53, 0, time.UTC)
	require.Equal(t, "backup_2025-03-14_09-26-53.tar.gz", Filename("", at))
	require.Equal(t, "update_backup_2025-03-14_09-26-53.tar.gz", Filename("update_", at))
}

func TestBuildConfigsOnly(t *testing.T) {
	serverDir := t.TempDir()
	writeFile(t, filepath.Join(serverDir, "server.properties"), "motd=hello")
	writeFile(t, filepath.Join(serverDir, "bukkit.yml"), "settings: {}")
	writeFile(t, filepath.Join(serverDir, "config", "nested.yml"), "a: 1")
	// Must not end up in a configs-only archive
	writeFile(t, filepath.Join(serverDir, "world", "level.dat"), "worlddata")
	writeFile(t, filepath.Join(serverDir, "plugins", "plugin.jar"), "jar")

	builder := NewBuilder(serverDir)
	path, size, err := builder.Build(Selectors{Configs: true}, t.TempDir(), "backup_test.tar.gz")
	require.NoError(t, err)
	require.Greater(t, size, int64(0))

	entries := readArchive(t, path)
	require.Equal(t, "motd=hello", entries["server.properties"])
	require.Equal(t, "settings: {}", entries["bukkit.yml"])
	require.Equal(t, "a: 1", entries["config/nested.yml"])
	require.NotContains(t, entries, "world/level.dat")
	require.NotContains(t, entries, "plugins/plugin.jar")
}

func TestBuildWorldsAndPlugins(t *testing.T) {
	serverDir := t.TempDir()
	writeFile(t, filepath.Join(serverDir, "world", "level.dat"), "overworld")
	writeFile(t, filepath.Join(serverDir, "world_nether", "level.dat"), "nether")
	writeFile(t, filepath.Join(serverDir, "plugins", "Essentials", "config.yml"), "essentials")

	builder := NewBuilder(serverDir)
	path, _, err := builder.Build(Selectors{Worlds: true, PluginData: true}, t.TempDir(), "backup_test.tar.gz")
	require.NoError(t, err)

	entries := readArchive(t, path)
	require.Equal(t, "overworld", entries["world/level.dat"])
	require.Equal(t, "nether", entries["world_nether/level.dat"])
	require.Equal(t, "essentials", entries["plugins/Essentials/config.yml"])
}

func TestBuildSkipsMissingSources(t *testing.T) {
	// Empty server dir: every selected source is absent
	builder := NewBuilder(t.TempDir())
	path, size, err := builder.Build(Selectors{Worlds: true, PluginData: true, Configs: true}, t.TempDir(), "backup_empty.tar.gz")
	require.NoError(t, err)
	require.Greater(t, size, int64(0)) // gzip header alone is non-empty
	require.Empty(t, readArchive(t, path))
}

func TestBuildFailsOnUnwritableDestination(t *testing.T) {
	serverDir := t.TempDir()
	writeFile(t, filepath.Join(serverDir, "server.properties"), "x")

	destDir := t.TempDir()
	blocked := filepath.Join(destDir, "sub")
	writeFile(t, blocked, "a file where a directory should go")

	builder := NewBuilder(serverDir)
	_, _, err := builder.Build(Selectors{Configs: true}, blocked, "backup_test.tar.gz")
	require.Error(t, err)
}

func TestSelectorsAny(t *testing.T) {
	require.False(t, Selectors{}.Any())
	require.True(t, Selectors{Worlds: true}.Any())
	require.True(t, Selectors{PluginData: true}.Any())
	require.True(t, Selectors{Configs: true}.Any())
}
