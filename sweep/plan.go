// Package sweep enumerates run configurations and drives one trial per
// configuration, persisting each result as soon as it is known.
package sweep

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/weiihann/streambench/harness"
)

// Dimension is one varied parameter and the values it takes, in order.
type Dimension struct {
	Name   string    `yaml:"name" toml:"name"`
	Values []float64 `yaml:"values" toml:"values"`
}

// Plan is a base configuration plus the dimensions swept over it. With
// no dimensions the plan is a single trial. With several, the first
// dimension is the outermost loop.
type Plan struct {
	Base       harness.RunConfig     `yaml:"base" toml:"base"`
	Compile    harness.CompileConfig `yaml:"compile" toml:"compile"`
	Dimensions []Dimension           `yaml:"dimensions" toml:"dimensions"`
}

// Single returns a plan of exactly one trial.
func Single(base harness.RunConfig, compile harness.CompileConfig) Plan {
	return Plan{Base: base, Compile: compile}
}

// Over returns a plan varying one dimension across values.
func Over(
	base harness.RunConfig,
	compile harness.CompileConfig,
	name string,
	values ...float64,
) Plan {
	return Plan{
		Base:       base,
		Compile:    compile,
		Dimensions: []Dimension{{Name: name, Values: values}},
	}
}

// Points expands the plan into the ordered list of configurations to
// run. Values keep the order they were listed in.
func (p Plan) Points() ([]harness.RunConfig, error) {
	points := []harness.RunConfig{p.Base}

	for _, d := range p.Dimensions {
		next := make([]harness.RunConfig, 0, len(points)*len(d.Values))

		for _, pt := range points {
			for _, v := range d.Values {
				cfg, err := pt.With(d.Name, v)
				if err != nil {
					return nil, err
				}

				next = append(next, cfg)
			}
		}

		points = next
	}

	return points, nil
}

// Validate checks the dimensions and every point of the grid.
func (p Plan) Validate() error {
	if err := p.Compile.Validate(); err != nil {
		return fmt.Errorf("compile: %w", err)
	}

	seen := make(map[string]bool, len(p.Dimensions))
	for i, d := range p.Dimensions {
		if !slices.Contains(harness.SweepableDimensions(), d.Name) {
			return fmt.Errorf("dimension[%d]: unknown name %q (want one of %s)",
				i, d.Name, strings.Join(harness.SweepableDimensions(), ", "))
		}
		if seen[d.Name] {
			return fmt.Errorf("dimension[%d]: %s listed twice", i, d.Name)
		}
		if len(d.Values) == 0 {
			return fmt.Errorf("dimension[%d]: %s has no values", i, d.Name)
		}

		seen[d.Name] = true
	}

	points, err := p.Points()
	if err != nil {
		return err
	}

	for i, pt := range points {
		if err := pt.Validate(); err != nil {
			return fmt.Errorf("point %d (%s): %w", i+1, pt, err)
		}
	}

	return nil
}

// LoadPlan reads a plan from a .yaml/.yml or .toml file, fills unset
// fields with defaults and validates it.
func LoadPlan(path string) (*Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading plan file: %w", err)
	}

	var plan Plan

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &plan)
	case ".toml":
		err = toml.Unmarshal(data, &plan)
	default:
		return nil, fmt.Errorf("unsupported plan format %q", ext)
	}

	if err != nil {
		return nil, fmt.Errorf("parsing plan file: %w", err)
	}

	plan.applyDefaults()

	if err := plan.Validate(); err != nil {
		return nil, fmt.Errorf("invalid plan %s: %w", path, err)
	}

	return &plan, nil
}

func (p *Plan) applyDefaults() {
	def := harness.DefaultRunConfig()

	if p.Base.Address == "" {
		p.Base.Address = def.Address
	}
	if p.Base.Port == 0 {
		p.Base.Port = def.Port
	}
	if p.Base.TotalPackets == 0 {
		p.Base.TotalPackets = def.TotalPackets
	}
	if p.Base.WindowSize == 0 {
		p.Base.WindowSize = def.WindowSize
	}
	if p.Compile.PayloadSize == 0 {
		p.Compile.PayloadSize = harness.DefaultCompileConfig().PayloadSize
	}
}
