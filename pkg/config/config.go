// Package config loads csgtree settings from a TOML file and the
// environment.
//
// Precedence, lowest first: built-in defaults, the TOML file, then
// CSGTREE_* environment variables.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/chazu/csgtree/pkg/csg"
	"github.com/pelletier/go-toml/v2"
)

// Environment variables consulted by Load.
const (
	EnvOperator  = "CSGTREE_OPERATOR"
	EnvLogLevel  = "CSGTREE_LOG_LEVEL"
	EnvVerify    = "CSGTREE_VERIFY"
	EnvMeshCells = "CSGTREE_MESH_CELLS"
)

// Loop marks one operator node for a second walk of one of its subtrees.
type Loop struct {
	Index int    `toml:"index"`
	Side  string `toml:"side"`
}

// Config holds the tunable settings.
type Config struct {
	// Operator combines primitives when a tree does not name one.
	Operator string `toml:"operator"`
	// LogLevel is one of debug, info, warn or error.
	LogLevel string `toml:"log_level"`
	// Verify cross-checks every iterative evaluation against the
	// recursive one.
	Verify bool `toml:"verify"`
	// MeshCells is the marching cubes resolution; 0 selects the kernel
	// default.
	MeshCells int    `toml:"mesh_cells"`
	Loops     []Loop `toml:"loop"`
}

// Default returns the settings used when nothing is configured.
func Default() Config {
	return Config{
		Operator:  "union",
		LogLevel:  "info",
		Verify:    true,
		MeshCells: 0,
	}
}

// Load reads path, if non-empty, over the defaults and then applies
// environment overrides. The result is validated.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("config: %w", err)
		}
		if err := decode(bytes.NewReader(b), &cfg); err != nil {
			return Config{}, fmt.Errorf("config: %s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

// Parse decodes TOML from r over the defaults, without consulting the
// environment.
func Parse(r io.Reader) (Config, error) {
	cfg := Default()
	if err := decode(r, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

func decode(r io.Reader, cfg *Config) error {
	err := toml.NewDecoder(r).DisallowUnknownFields().Decode(cfg)
	var strict *toml.StrictMissingError
	if errors.As(err, &strict) {
		return fmt.Errorf("%s", strings.TrimSpace(strict.String()))
	}
	return err
}

func (c *Config) applyEnv() error {
	if v, ok := os.LookupEnv(EnvOperator); ok {
		c.Operator = v
	}
	if v, ok := os.LookupEnv(EnvLogLevel); ok {
		c.LogLevel = v
	}
	if v, ok := os.LookupEnv(EnvVerify); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvVerify, err)
		}
		c.Verify = b
	}
	if v, ok := os.LookupEnv(EnvMeshCells); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvMeshCells, err)
		}
		c.MeshCells = n
	}
	return nil
}

// Validate checks every field.
func (c Config) Validate() error {
	if _, err := c.Op(); err != nil {
		return err
	}
	if _, err := c.Level(); err != nil {
		return err
	}
	if c.MeshCells < 0 {
		return fmt.Errorf("mesh_cells must not be negative, got %d", c.MeshCells)
	}
	_, err := c.LoopPlan()
	return err
}

// Op parses Operator.
func (c Config) Op() (csg.Operator, error) {
	return csg.ParseOperator(c.Operator)
}

// Level parses LogLevel.
func (c Config) Level() (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("log_level: %w", err)
	}
	return l, nil
}

// LoopPlan converts the [[loop]] tables to a csg.LoopPlan.
func (c Config) LoopPlan() (csg.LoopPlan, error) {
	if len(c.Loops) == 0 {
		return nil, nil
	}
	plan := make(csg.LoopPlan, len(c.Loops))
	for i, l := range c.Loops {
		if l.Index < 1 {
			return nil, fmt.Errorf("loop %d: index must be at least 1, got %d", i, l.Index)
		}
		side, err := csg.ParseSide(strings.ToLower(strings.TrimSpace(l.Side)))
		if err != nil {
			return nil, fmt.Errorf("loop %d: %w", i, err)
		}
		if _, dup := plan[l.Index]; dup {
			return nil, fmt.Errorf("loop %d: index %d marked twice", i, l.Index)
		}
		plan[l.Index] = side
	}
	return plan, nil
}

// Logger returns a text logger writing to w at the configured level.
func (c Config) Logger(w io.Writer) (*slog.Logger, error) {
	level, err := c.Level()
	if err != nil {
		return nil, err
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})), nil
}
