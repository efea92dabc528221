package config

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/chazu/csgtree/pkg/csg"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "csgtree.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, Default(), cfg)

	op, err := cfg.Op()
	require.NoError(t, err)
	require.Equal(t, csg.Union, op)

	plan, err := cfg.LoopPlan()
	require.NoError(t, err)
	require.Nil(t, plan)
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
operator = "difference"
log_level = "debug"
verify = false
mesh_cells = 64

[[loop]]
index = 2
side = "left"

[[loop]]
index = 3
side = "Right"
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "difference", cfg.Operator)
	require.False(t, cfg.Verify)
	require.Equal(t, 64, cfg.MeshCells)

	level, err := cfg.Level()
	require.NoError(t, err)
	require.Equal(t, slog.LevelDebug, level)

	plan, err := cfg.LoopPlan()
	require.NoError(t, err)
	require.Equal(t, csg.LoopPlan{2: csg.LoopLeft, 3: csg.LoopRight}, plan)
}

func TestAbsentKeysKeepDefaults(t *testing.T) {
	cfg, err := Parse(strings.NewReader(`mesh_cells = 10`))
	require.NoError(t, err)
	require.Equal(t, "union", cfg.Operator)
	require.Equal(t, "info", cfg.LogLevel)
	require.True(t, cfg.Verify)
	require.Equal(t, 10, cfg.MeshCells)
}

func TestEnvOverrides(t *testing.T) {
	path := writeConfig(t, `operator = "difference"`)
	t.Setenv(EnvOperator, "intersection")
	t.Setenv(EnvLogLevel, "warn")
	t.Setenv(EnvVerify, "false")
	t.Setenv(EnvMeshCells, "32")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "intersection", cfg.Operator)
	require.Equal(t, "warn", cfg.LogLevel)
	require.False(t, cfg.Verify)
	require.Equal(t, 32, cfg.MeshCells)
}

func TestBadEnv(t *testing.T) {
	t.Setenv(EnvVerify, "maybe")
	_, err := Load("")
	require.ErrorContains(t, err, EnvVerify)
}

func TestInvalidConfig(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		contain string
	}{
		{"unknown operator", `operator = "xor"`, "invalid operator"},
		{"unknown level", `log_level = "loud"`, "log_level"},
		{"negative cells", `mesh_cells = -1`, "mesh_cells"},
		{"bad loop side", "[[loop]]\nindex = 2\nside = \"up\"", "invalid loop side"},
		{"bad loop index", "[[loop]]\nindex = 0\nside = \"left\"", "index must be at least 1"},
		{"duplicate loop", "[[loop]]\nindex = 2\nside = \"left\"\n[[loop]]\nindex = 2\nside = \"right\"", "marked twice"},
		{"unknown key", `colour = "red"`, "colour"},
		{"syntax", `operator = `, "config"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(strings.NewReader(tt.body))
			require.ErrorContains(t, err, tt.contain)
		})
	}
}

func TestMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestLogger(t *testing.T) {
	cfg := Default()
	cfg.LogLevel = "warn"

	var buf bytes.Buffer
	logger, err := cfg.Logger(&buf)
	require.NoError(t, err)

	logger.Info("hidden")
	logger.Warn("shown", "tree", "six")
	require.NotContains(t, buf.String(), "hidden")
	require.Contains(t, buf.String(), "msg=shown")
	require.Contains(t, buf.String(), "tree=six")
}
