package overlay

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/KI7MT/ki7mt-swx-lab/internal/cme"
	"github.com/KI7MT/ki7mt-swx-lab/internal/donki"
)

// Config controls one overlay run. It can be loaded from a YAML run file;
// zero fields keep their defaults.
type Config struct {
	// CMETolerance bounds the SWIS to CME arrival match.
	CMETolerance time.Duration `yaml:"cme_tolerance"`
	// EventTolerance bounds the SWIS to DONKI eventTime match.
	EventTolerance time.Duration `yaml:"event_tolerance"`

	InteractionHours float64 `yaml:"interaction_hours"`
	// DragGammaPerHour is the drag coefficient; 0.1 means 0.1 per hour.
	DragGammaPerHour float64 `yaml:"drag_gamma_per_hour"`
	DistanceKm       float64 `yaml:"distance_km"`

	// ExtraDir holds the DONKI exports named in ExtraFiles.
	ExtraDir   string   `yaml:"extra_dir"`
	ExtraFiles []string `yaml:"extra_files"`

	DPI int `yaml:"dpi"`
}

// DefaultConfig returns the standard tolerances and the DONKI exports of the
// start..end window.
func DefaultConfig(start, end time.Time) Config {
	p := cme.DefaultParams()
	return Config{
		CMETolerance:     2 * time.Hour,
		EventTolerance:   3 * time.Hour,
		InteractionHours: p.InteractionHours,
		DragGammaPerHour: p.Gamma * 3600,
		DistanceKm:       p.DistanceKm,
		ExtraFiles:       DefaultExtraFiles(start, end),
		DPI:              100,
	}
}

// DefaultExtraFiles lists the DONKI exports overlaid by default. MPC appears
// twice and is processed twice.
func DefaultExtraFiles(start, end time.Time) []string {
	name := func(event string) string { return donki.Filename(event, start, end) }
	return []string{
		name("MPC"),
		name("RBE"),
		name("SEP"),
		"Flattened_DONKI_CME_Data.csv",
		name("CME"),
		name("FLR"),
		name("HSS"),
		name("IPS"),
		name("MPC"),
	}
}

// LoadRunFile overlays the YAML file at path onto base.
func LoadRunFile(path string, base Config) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return base, err
	}

	var file Config
	if err := yaml.Unmarshal(data, &file); err != nil {
		return base, fmt.Errorf("parse %s: %w", path, err)
	}
	return merge(base, file), nil
}

func merge(base, over Config) Config {
	if over.CMETolerance > 0 {
		base.CMETolerance = over.CMETolerance
	}
	if over.EventTolerance > 0 {
		base.EventTolerance = over.EventTolerance
	}
	if over.InteractionHours > 0 {
		base.InteractionHours = over.InteractionHours
	}
	if over.DragGammaPerHour > 0 {
		base.DragGammaPerHour = over.DragGammaPerHour
	}
	if over.DistanceKm > 0 {
		base.DistanceKm = over.DistanceKm
	}
	if over.ExtraDir != "" {
		base.ExtraDir = over.ExtraDir
	}
	if over.ExtraFiles != nil {
		base.ExtraFiles = over.ExtraFiles
	}
	if over.DPI > 0 {
		base.DPI = over.DPI
	}
	return base
}

// Validate rejects settings the overlay cannot use.
func (c Config) Validate() error {
	if c.CMETolerance <= 0 || c.EventTolerance <= 0 {
		return fmt.Errorf("tolerances must be positive (cme %v, event %v)", c.CMETolerance, c.EventTolerance)
	}
	if c.DragGammaPerHour <= 0 || c.DistanceKm <= 0 {
		return fmt.Errorf("drag parameters must be positive (gamma %g/h, distance %g km)", c.DragGammaPerHour, c.DistanceKm)
	}
	return nil
}

// Params converts the drag settings for the cme package.
func (c Config) Params() cme.Params {
	return cme.Params{
		Gamma:            c.DragGammaPerHour / 3600,
		DistanceKm:       c.DistanceKm,
		InteractionHours: c.InteractionHours,
	}
}
