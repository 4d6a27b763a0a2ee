package lfs

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"repo-migrator/internal/model"
)

func TestLoadConfigTable_missingFileIsEmpty(t *testing.T) {
	table, err := LoadConfigTable(filepath.Join(t.TempDir(), "lfs-config.json"))
	require.NoError(t, err)
	require.Empty(t, table)

	table, err = LoadConfigTable("")
	require.NoError(t, err)
	require.Empty(t, table)

	_, ok := table.Lookup("anything")
	require.False(t, ok)
}

func TestLoadConfigTable_json(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lfs-config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
  "game-assets": {"files": ["a.bin"], "patterns": ["*.psd"], "autoDetect": true},
  "docs": {"patterns": ["*.pdf"]},
  "empty": {}
}`), 0o644))

	table, err := LoadConfigTable(path)
	require.NoError(t, err)
	require.Len(t, table, 3)

	entry, ok := table.Lookup("game-assets")
	require.True(t, ok)
	require.Equal(t, []model.LFSRule{
		model.ExplicitFiles{Paths: []string{"a.bin"}},
		model.PatternBased{Patterns: []string{"*.psd"}},
		model.AutoDetectOptIn{},
	}, entry.Rules)

	entry, ok = table.Lookup("docs")
	require.True(t, ok)
	require.Equal(t, []model.LFSRule{model.PatternBased{Patterns: []string{"*.pdf"}}}, entry.Rules)

	entry, ok = table.Lookup("empty")
	require.True(t, ok)
	require.Empty(t, entry.Rules)
}

func TestLoadConfigTable_malformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lfs-config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"repo": {"files": "not-a-list"`), 0o644))

	_, err := LoadConfigTable(path)
	require.Error(t, err)
}
