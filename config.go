package rhi

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
)

// Default transient pool limits.
const (
	// DefaultMinBufferSize is the smallest buffer the transient pool allocates.
	DefaultMinBufferSize = 4096

	// DefaultMaxBufferCount is the number of available buffers the transient
	// pool retains after Release.
	DefaultMaxBufferCount = 100
)

// Config is the file-backed part of context configuration.
//
// Example file:
//
//	[device]
//	backend = "vulkan"
//	debug = true
//	ray_tracing = false
//	adapter = 0
//
//	[pool]
//	min_buffer_size = 4096
//	max_buffer_count = 100
type Config struct {
	Device DeviceConfig `toml:"device"`
	Pool   PoolConfig   `toml:"pool"`
}

// DeviceConfig selects the backend and adapter.
type DeviceConfig struct {
	// Backend is a backend name understood by backend.Get.
	// Empty selects the best available backend.
	Backend string `toml:"backend"`

	// Debug enables HAL debug and validation layers.
	Debug bool `toml:"debug"`

	// RayTracing makes context creation fail when the device cannot build
	// acceleration structures.
	RayTracing bool `toml:"ray_tracing"`

	// Adapter is the index into the enumerated adapters.
	Adapter int `toml:"adapter"`
}

// PoolConfig sizes transient buffer pools.
type PoolConfig struct {
	MinBufferSize  uint64 `toml:"min_buffer_size"`
	MaxBufferCount int    `toml:"max_buffer_count"`
}

// DefaultConfig returns the configuration used when none is supplied.
func DefaultConfig() Config {
	return Config{
		Pool: PoolConfig{
			MinBufferSize:  DefaultMinBufferSize,
			MaxBufferCount: DefaultMaxBufferCount,
		},
	}
}

// ParseConfig decodes TOML configuration. Zero pool fields take defaults.
func ParseConfig(data []byte) (Config, error) {
	cfg := DefaultConfig()
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("%w: config: %w", ErrValidation, err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadConfig reads and decodes a TOML configuration file.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("load config: %w", err)
	}
	cfg, err := ParseConfig(data)
	if err != nil {
		return Config{}, fmt.Errorf("load config %s: %w", path, err)
	}
	return cfg, nil
}

// Marshal encodes the configuration as TOML.
func (c Config) Marshal() ([]byte, error) {
	return toml.Marshal(c)
}

// Validate checks value ranges.
func (c Config) Validate() error {
	if c.Device.Adapter < 0 {
		return fmt.Errorf("%w: config: adapter index %d", ErrValidation, c.Device.Adapter)
	}
	if c.Pool.MaxBufferCount < 0 {
		return fmt.Errorf("%w: config: max_buffer_count %d", ErrValidation, c.Pool.MaxBufferCount)
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.Pool.MinBufferSize == 0 {
		c.Pool.MinBufferSize = DefaultMinBufferSize
	}
	if c.Pool.MaxBufferCount == 0 {
		c.Pool.MaxBufferCount = DefaultMaxBufferCount
	}
}
