package instbuffer

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/sarchlab/instbuf/timing/cache"
	"github.com/sarchlab/instbuf/timing/msg"
)

var (
	// ErrNoEntries is returned when the buffer is configured without lines.
	ErrNoEntries = errors.New("num_entries must be > 0")

	// ErrLineSize is returned when the line size is not a positive multiple
	// of the word size.
	ErrLineSize = errors.New("line_nbytes must be a positive multiple of 4")

	// ErrAssociativity is returned when the entries cannot be split evenly
	// into sets.
	ErrAssociativity = errors.New(
		"associativity must be > 0 and divide num_entries")
)

// Config holds the construction-time parameters of the instruction buffer.
// They cannot change once the Unit is built.
type Config struct {
	// NumEntries is the number of cached lines. Default: 4.
	NumEntries int `json:"num_entries"`

	// LineBytes is the number of bytes per line and per refill. It must be a
	// multiple of the 4-byte word size. Default: 16.
	LineBytes int `json:"line_nbytes"`

	// Associativity is the number of entries an address may occupy.
	// 1 selects direct-mapped indexing. Default: 1.
	Associativity int `json:"associativity"`
}

// DefaultConfig returns a direct-mapped buffer of four 16-byte lines.
func DefaultConfig() *Config {
	return &Config{
		NumEntries:    4,
		LineBytes:     16,
		Associativity: 1,
	}
}

// LoadConfig loads a Config from a JSON file. Fields missing from the file
// keep their default values.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read instruction buffer config file: %w", err)
	}

	config := DefaultConfig()
	if err := json.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse instruction buffer config: %w", err)
	}

	return config, nil
}

// SaveConfig writes a Config to a JSON file.
func (c *Config) SaveConfig(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize instruction buffer config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write instruction buffer config file: %w", err)
	}

	return nil
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.NumEntries <= 0 {
		return ErrNoEntries
	}
	if c.LineBytes <= 0 || c.LineBytes%msg.WordBytes != 0 {
		return ErrLineSize
	}
	if c.Associativity <= 0 || c.NumEntries%c.Associativity != 0 {
		return ErrAssociativity
	}
	return nil
}

// Clone returns a copy of the Config.
func (c *Config) Clone() *Config {
	return &Config{
		NumEntries:    c.NumEntries,
		LineBytes:     c.LineBytes,
		Associativity: c.Associativity,
	}
}

func (c *Config) cacheConfig() cache.Config {
	return cache.Config{
		NumEntries:    c.NumEntries,
		LineBytes:     c.LineBytes,
		Associativity: c.Associativity,
	}
}
