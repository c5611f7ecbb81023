package gameini

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loykin/asamgr/internal/config"
)

func TestBuild_CreatesAndIsIdempotent(t *testing.T) {
	root := t.TempDir()
	sections := map[string]map[string]any{
		"ServerSettings": {"RCONPort": int64(27020), "RCONEnabled": true, "DifficultyOffset": 1.5},
	}
	require.NoError(t, Build(root, "GameUserSettings", sections))
	first, err := os.ReadFile(Path(root, "GameUserSettings"))
	require.NoError(t, err)
	s := string(first)
	assert.Contains(t, s, "[ServerSettings]")
	assert.Contains(t, s, "RCONPort=27020")
	assert.Contains(t, s, "RCONEnabled=True")
	assert.Contains(t, s, "DifficultyOffset=1.5")

	require.NoError(t, Build(root, "GameUserSettings", sections))
	second, err := os.ReadFile(Path(root, "GameUserSettings"))
	require.NoError(t, err)
	assert.Equal(t, string(first), string(second))
}

func TestBuild_PreservesUnmanagedKeys(t *testing.T) {
	root := t.TempDir()
	p := Path(root, "Game")
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	existing := "[/Script/ShooterGame.ShooterGameMode]\nbDisableStructurePlacementCollision=True\nMaxTamedDinos=4000\n"
	require.NoError(t, os.WriteFile(p, []byte(existing), 0o644))

	require.NoError(t, Build(root, "Game", map[string]map[string]any{
		"/Script/ShooterGame.ShooterGameMode": {"MaxTamedDinos": int64(5000)},
	}))
	b, err := os.ReadFile(p)
	require.NoError(t, err)
	out := string(b)
	assert.Contains(t, out, "bDisableStructurePlacementCollision=True")
	assert.Contains(t, out, "MaxTamedDinos=5000")
	assert.Equal(t, 1, strings.Count(out, "MaxTamedDinos"))
}

func TestBuildAll_EmptyConfig(t *testing.T) {
	root := t.TempDir()
	cfg := &config.Config{Ark: config.ArkConfig{InstallFolder: root}}
	require.NoError(t, BuildAll(cfg))
	for _, name := range config.IniFiles {
		_, err := os.Stat(Path(root, name))
		assert.NoError(t, err, name)
	}
}
