package config

import (
	"fmt"
	"strings"

	"github.com/knadh/koanf/parsers/toml/v2"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

// DefaultFile is the optional config file read from the working directory.
const DefaultFile = "framegraph.toml"

// EnvPrefix prefixes environment overrides, e.g. FRAMEGRAPH_PORT=9090.
const EnvPrefix = "FRAMEGRAPH_"

// Config holds all configuration for the application
type Config struct {
	Frame      string     `koanf:"frame"`
	DOT        string     `koanf:"dot"`
	JSON       string     `koanf:"json"`
	WebMode    bool       `koanf:"web"`
	Port       int        `koanf:"port"`
	Watch      bool       `koanf:"watch"`
	Verbosity  string     `koanf:"verbosity"`
	VerboseCnt int        `koanf:"verbose"`
	Pool       PoolConfig `koanf:"pool"`
	Log        LogConfig  `koanf:"log"`
}

// PoolConfig configures the backing resource pool.
type PoolConfig struct {
	Capacity int `koanf:"capacity"`
}

// LogConfig selects the log format.
type LogConfig struct {
	JSON bool `koanf:"json"`
}

// Load loads configuration from defaults, config file, environment variables, and flags.
// Priority: Flags > Env > Config File > Defaults
func Load(f *pflag.FlagSet) (*Config, error) {
	return LoadFrom(DefaultFile, f)
}

// LoadFrom is Load with an explicit config file path.
func LoadFrom(path string, f *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	// 1. Defaults
	defaults := map[string]interface{}{
		"frame":     "frame.toml",
		"dot":       "",
		"json":      "",
		"web":       false,
		"port":      8080,
		"watch":     false,
		"verbosity": "",
		"verbose":   0,
		"pool": map[string]interface{}{
			"capacity": 64,
		},
		"log": map[string]interface{}{
			"json": false,
		},
	}
	if err := k.Load(makeMapProvider(defaults), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	// 2. Config File (optional)
	// We ignore errors here as the file might not exist
	if path != "" {
		_ = k.Load(file.Provider(path), toml.Parser())
	}

	// 3. Environment Variables
	// FRAMEGRAPH_POOL_CAPACITY=32 sets pool.capacity
	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.ReplaceAll(strings.ToLower(
			strings.TrimPrefix(s, EnvPrefix)), "_", ".")
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	// 4. Flags
	if f != nil {
		if err := k.Load(posflag.Provider(f, ".", k), nil); err != nil {
			return nil, fmt.Errorf("failed to load flags: %w", err)
		}
	}

	// Unmarshal into struct
	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// RegisterFlags declares the command-line flags Load understands.
func RegisterFlags(f *pflag.FlagSet) {
	f.String("frame", "frame.toml", "frame description to compile")
	f.String("dot", "", "write the compiled graph as Graphviz DOT to this file (- for stdout)")
	f.String("json", "", "write the graph snapshot and plan as JSON to this file (- for stdout)")
	f.Bool("web", false, "serve the graph over HTTP")
	f.Int("port", 8080, "HTTP port for --web")
	f.Bool("watch", false, "recompile when the frame description changes")
	f.String("verbosity", "", "log level: trace, debug, info, warn, error")
	f.CountP("verbose", "v", "increase log verbosity")
	f.Int("pool.capacity", 64, "idle backings kept between frames")
	f.Bool("log.json", false, "log as JSON")
}

// Helper to use map as a provider
type mapProvider struct {
	m map[string]interface{}
}

func makeMapProvider(m map[string]interface{}) *mapProvider {
	return &mapProvider{m: m}
}

func (p *mapProvider) Read() (map[string]interface{}, error) {
	return p.m, nil
}

func (p *mapProvider) ReadBytes() ([]byte, error) {
	return nil, fmt.Errorf("not implemented")
}
