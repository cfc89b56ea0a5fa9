package harness

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Dimension names double as result column names.
const (
	ColumnAddress      = "ip"
	ColumnPort         = "port"
	ColumnTotalPackets = "total_packets"
	ColumnWindowSize   = "window_size"
	ColumnPerror       = "perror"
	ColumnPayloadSize  = "payload_size"
)

// RunConfig describes one trial. It is passed by value and never
// mutated; use With to derive a new point.
type RunConfig struct {
	Address          string  `yaml:"ip" toml:"ip" json:"ip"`
	Port             int     `yaml:"port" toml:"port" json:"port"`
	TotalPackets     int     `yaml:"total_packets" toml:"total_packets" json:"total_packets"`
	WindowSize       int     `yaml:"window_size" toml:"window_size" json:"window_size"`
	ErrorProbability float64 `yaml:"perror" toml:"perror" json:"perror"`
}

// CompileConfig holds parameters baked into the protocol binaries.
// They are recorded next to each result but never varied.
type CompileConfig struct {
	PayloadSize int `yaml:"payload_size" toml:"payload_size" json:"payload_size"`
}

// DefaultRunConfig mirrors the receiver benchmark defaults.
func DefaultRunConfig() RunConfig {
	return RunConfig{
		Address:      "127.0.0.1",
		Port:         12345,
		TotalPackets: 400000,
		WindowSize:   1000,
	}
}

// DefaultCompileConfig returns the payload size the binaries ship with.
func DefaultCompileConfig() CompileConfig {
	return CompileConfig{PayloadSize: 2500}
}

// Columns returns the RunConfig column names in declaration order.
func (c RunConfig) Columns() []string {
	return []string{
		ColumnAddress,
		ColumnPort,
		ColumnTotalPackets,
		ColumnWindowSize,
		ColumnPerror,
	}
}

// Values returns the textual form of each field, aligned with Columns.
func (c RunConfig) Values() []string {
	return []string{
		c.Address,
		strconv.Itoa(c.Port),
		strconv.Itoa(c.TotalPackets),
		strconv.Itoa(c.WindowSize),
		FormatFloat(c.ErrorProbability),
	}
}

// Columns returns the CompileConfig column names in declaration order.
func (c CompileConfig) Columns() []string {
	return []string{ColumnPayloadSize}
}

// Values returns the textual form of each field, aligned with Columns.
func (c CompileConfig) Values() []string {
	return []string{strconv.Itoa(c.PayloadSize)}
}

// Validate reports whether every field can be handed to the binaries
// and written to a result file as-is.
func (c RunConfig) Validate() error {
	addr := strings.TrimSpace(c.Address)
	if addr == "" {
		return fmt.Errorf("%s is required", ColumnAddress)
	}
	if addr != c.Address || strings.ContainsAny(c.Address, ", \t\n") {
		return fmt.Errorf("%s %q contains a separator", ColumnAddress, c.Address)
	}
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("%s %d out of range 1-65535", ColumnPort, c.Port)
	}
	if c.TotalPackets <= 0 {
		return fmt.Errorf("%s must be positive, got %d", ColumnTotalPackets, c.TotalPackets)
	}
	if c.WindowSize <= 0 {
		return fmt.Errorf("%s must be positive, got %d", ColumnWindowSize, c.WindowSize)
	}
	p := c.ErrorProbability
	if math.IsNaN(p) || p < 0 || p > 1 {
		return fmt.Errorf("%s must be within [0, 1], got %v", ColumnPerror, p)
	}

	return nil
}

// Validate checks the fixed compile-time parameters.
func (c CompileConfig) Validate() error {
	if c.PayloadSize <= 0 {
		return fmt.Errorf("%s must be positive, got %d", ColumnPayloadSize, c.PayloadSize)
	}

	return nil
}

// With returns a copy of c with the named numeric dimension set to v.
// Integer dimensions reject fractional values.
func (c RunConfig) With(dimension string, v float64) (RunConfig, error) {
	switch dimension {
	case ColumnPerror:
		c.ErrorProbability = v
		return c, nil
	case ColumnWindowSize:
		n, err := toInt(dimension, v)
		c.WindowSize = n
		return c, err
	case ColumnTotalPackets:
		n, err := toInt(dimension, v)
		c.TotalPackets = n
		return c, err
	case ColumnPort:
		n, err := toInt(dimension, v)
		c.Port = n
		return c, err
	default:
		return c, fmt.Errorf("unknown sweep dimension %q", dimension)
	}
}

// SweepableDimensions lists the names accepted by With.
func SweepableDimensions() []string {
	return []string{ColumnPerror, ColumnWindowSize, ColumnTotalPackets, ColumnPort}
}

// String renders the config as space separated key=value pairs.
func (c RunConfig) String() string {
	cols, vals := c.Columns(), c.Values()
	parts := make([]string, len(cols))
	for i := range cols {
		parts[i] = cols[i] + "=" + vals[i]
	}

	return strings.Join(parts, " ")
}

// FormatFloat renders v in its shortest round-trip form, independent
// of locale.
func FormatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func toInt(dimension string, v float64) (int, error) {
	if v != math.Trunc(v) || math.IsInf(v, 0) || math.IsNaN(v) {
		return 0, fmt.Errorf("%s must be an integer, got %v", dimension, v)
	}

	return int(v), nil
}
