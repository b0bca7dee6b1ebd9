// Package config loads the engine's tuning knobs from a TOML file, the
// way chazu-maggie's manifest.go loads its manifest — struct tags plus
// BurntSushi/toml.Decode, no schema layer on top. The engine core has no
// mandatory configuration of its own (spec's Non-goals exclude a
// configuration subsystem from the interpreter proper), but a host
// embedding it still wants a place to tune resource limits and logging,
// which is the ambient concern this package carries.
package config

import (
	"github.com/BurntSushi/toml"
)

// Config holds the knobs a host process sets when embedding the engine.
type Config struct {
	Engine EngineConfig `toml:"engine"`
	Log    LogConfig    `toml:"log"`
}

// EngineConfig bounds resource usage of a single execution stack.
type EngineConfig struct {
	// MaxCallDepth caps CurrentLevel; exceeding it raises a LuaError
	// instead of growing Frames without limit.
	MaxCallDepth int `toml:"max_call_depth"`
	// MaxRegisters caps how large a single Frame's register file may grow
	// via VARARG/CALL multret splicing.
	MaxRegisters int `toml:"max_registers"`
}

// LogConfig controls the structured logger cmd/luavm uses; the engine
// itself does not log.
type LogConfig struct {
	Level  string `toml:"level"`  // debug, info, warn, error
	Format string `toml:"format"` // text or json
}

// Default returns the configuration used when no file is supplied.
func Default() Config {
	return Config{
		Engine: EngineConfig{MaxCallDepth: 200, MaxRegisters: 4096},
		Log:    LogConfig{Level: "info", Format: "text"},
	}
}

// Load decodes a TOML file at path, filling in defaults for any table or
// field the file omits.
func Load(path string) (Config, error) {
	cfg := Default()
	_, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return Config{}, err
	}
	return cfg, nil
}
