package tuning

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"sceneviz.dev/internal/protocol"
	"sceneviz.dev/internal/sim/geometry"
)

type Tuning struct {
	ProtocolVersion string `yaml:"protocol_version" toml:"protocol_version"`

	TickRateHz      int      `yaml:"tick_rate_hz" toml:"tick_rate_hz"`
	PublishPeriodMs int      `yaml:"publish_period_ms" toml:"publish_period_ms"`
	PublishTriggers []string `yaml:"publish_triggers" toml:"publish_triggers"`
	PublishTF       bool     `yaml:"publish_tf" toml:"publish_tf"`
	RootFrame       string   `yaml:"root_frame" toml:"root_frame"`

	IllustrationColor geometry.RGBA `yaml:"illustration_color" toml:"illustration_color"`
	ProximityColor    geometry.RGBA `yaml:"proximity_color" toml:"proximity_color"`

	ObserverQueue int `yaml:"observer_queue" toml:"observer_queue"`
}

func Defaults() Tuning {
	return Tuning{
		ProtocolVersion:   protocol.Version,
		TickRateHz:        30,
		PublishPeriodMs:   100,
		PublishTriggers:   []string{"periodic", "forced"},
		PublishTF:         true,
		RootFrame:         geometry.WorldFrameName,
		IllustrationColor: geometry.RGBA{R: 0.9, G: 0.9, B: 0.9, A: 1.0},
		ProximityColor:    geometry.RGBA{R: 0.5, G: 0.5, B: 0.5, A: 1.0},
		ObserverQueue:     64,
	}
}

// Load reads a YAML or TOML file (chosen by extension) over Defaults.
func Load(path string) (Tuning, error) {
	t := Defaults()
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if _, err := toml.Decode(string(raw), &t); err != nil {
			return t, fmt.Errorf("%s: %w", filepath.Base(path), err)
		}
	default:
		if err := yaml.Unmarshal(raw, &t); err != nil {
			return t, fmt.Errorf("%s: %w", filepath.Base(path), err)
		}
	}
	if err := t.Validate(); err != nil {
		return t, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	return t, nil
}

func (t Tuning) Validate() error {
	if t.ProtocolVersion != protocol.Version {
		return fmt.Errorf("protocol_version %q not supported (want %q)", t.ProtocolVersion, protocol.Version)
	}
	if t.TickRateHz <= 0 {
		return fmt.Errorf("tick_rate_hz must be > 0 (got %d)", t.TickRateHz)
	}
	if t.PublishPeriodMs < 0 {
		return fmt.Errorf("publish_period_ms must be >= 0 (got %d)", t.PublishPeriodMs)
	}
	if len(t.PublishTriggers) == 0 {
		return fmt.Errorf("publish_triggers must not be empty")
	}
	for _, tr := range t.PublishTriggers {
		switch tr {
		case "periodic":
			if t.PublishPeriodMs == 0 {
				return fmt.Errorf("publish_period_ms must be > 0 with the periodic trigger")
			}
		case "forced", "per_step":
		default:
			return fmt.Errorf("unknown publish trigger %q", tr)
		}
	}
	if strings.TrimSpace(t.RootFrame) == "" {
		return fmt.Errorf("root_frame must not be empty")
	}
	if !t.IllustrationColor.Valid() {
		return fmt.Errorf("illustration_color out of range: %+v", t.IllustrationColor)
	}
	if !t.ProximityColor.Valid() {
		return fmt.Errorf("proximity_color out of range: %+v", t.ProximityColor)
	}
	if t.ObserverQueue <= 0 {
		return fmt.Errorf("observer_queue must be > 0 (got %d)", t.ObserverQueue)
	}
	return nil
}
