package commands

import (
	"fmt"
	"os"
	"time"

	"github.com/goccy/go-yaml"
)

// Scenario describes one bench run: how many pipe pairs to wire, the
// buffer geometry, and how much data to stream through each pair.
type Scenario struct {
	// Pipes is the number of concurrent pipe pairs.
	Pipes int `yaml:"pipes"`

	// Capacity is the buffer capacity per direction, in bytes.
	Capacity int `yaml:"capacity"`

	// Chunk is the write size per operation, in bytes.
	Chunk int `yaml:"chunk"`

	// Bytes is the total payload streamed through each pipe.
	Bytes int64 `yaml:"bytes"`

	// ReadTimeout and WriteTimeout bound how long a single read or
	// write may stall. Zero or negative waits forever.
	ReadTimeout  Duration `yaml:"read_timeout"`
	WriteTimeout Duration `yaml:"write_timeout"`

	// Seed is the base seed for the per-pipe data streams. Each pipe
	// derives its own stream from the base seed and its index, so runs
	// are reproducible.
	Seed uint64 `yaml:"seed"`
}

// DefaultScenario returns the scenario used when no file is given.
func DefaultScenario() Scenario {
	return Scenario{
		Pipes:        4,
		Capacity:     64 << 10,
		Chunk:        4 << 10,
		Bytes:        32 << 20,
		ReadTimeout:  Duration(5 * time.Second),
		WriteTimeout: Duration(5 * time.Second),
		Seed:         1,
	}
}

// loadScenario overlays a YAML scenario file onto sc.
func loadScenario(path string, sc *Scenario) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read scenario %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, sc); err != nil {
		return fmt.Errorf("failed to parse YAML: %w", err)
	}
	return nil
}

func (s Scenario) validate() error {
	if s.Pipes <= 0 {
		return fmt.Errorf("pipes must be positive, got %d", s.Pipes)
	}
	if s.Capacity <= 0 {
		return fmt.Errorf("capacity must be positive, got %d", s.Capacity)
	}
	if s.Chunk <= 0 {
		return fmt.Errorf("chunk must be positive, got %d", s.Chunk)
	}
	if s.Bytes <= 0 {
		return fmt.Errorf("bytes must be positive, got %d", s.Bytes)
	}
	return nil
}

// Duration is a time.Duration that travels through YAML as a duration
// string ("500ms", "5s").
type Duration time.Duration

// MarshalYAML implements yaml.Marshaler for Duration.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// UnmarshalYAML implements yaml.Unmarshaler for Duration.
// Supports:
//   - bare integer: nanoseconds
//   - duration string: "500ms", "5s"
func (d *Duration) UnmarshalYAML(b []byte) error {
	var n int64
	if err := yaml.Unmarshal(b, &n); err == nil {
		*d = Duration(n)
		return nil
	}

	var s string
	if err := yaml.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("duration must be a string or integer")
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(v)
	return nil
}
