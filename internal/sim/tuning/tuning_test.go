package tuning

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestDefaultsAreValid(t *testing.T) {
	if err := Defaults().Validate(); err != nil {
		t.Fatalf("Defaults().Validate: %v", err)
	}
}

func TestLoadYAMLOverridesDefaults(t *testing.T) {
	path := writeFile(t, "tuning.yaml", `
tick_rate_hz: 60
publish_period_ms: 250
publish_triggers: [per_step]
publish_tf: false
proximity_color: {r: 1, g: 0, b: 0, a: 0.5}
`)
	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.TickRateHz != 60 || got.PublishPeriodMs != 250 || got.PublishTF {
		t.Fatalf("unexpected tuning: %+v", got)
	}
	if len(got.PublishTriggers) != 1 || got.PublishTriggers[0] != "per_step" {
		t.Fatalf("triggers: %v", got.PublishTriggers)
	}
	if got.ProximityColor.R != 1 || got.ProximityColor.A != 0.5 {
		t.Fatalf("proximity color: %+v", got.ProximityColor)
	}
	// Untouched keys keep their defaults.
	if got.RootFrame != "world" || got.IllustrationColor.R != 0.9 || got.ObserverQueue != 64 {
		t.Fatalf("defaults lost: %+v", got)
	}
}

func TestLoadTOML(t *testing.T) {
	path := writeFile(t, "tuning.toml", `
tick_rate_hz = 20
publish_triggers = ["periodic"]
root_frame = "map"

[illustration_color]
r = 0.1
g = 0.2
b = 0.3
a = 1.0
`)
	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.TickRateHz != 20 || got.RootFrame != "map" {
		t.Fatalf("unexpected tuning: %+v", got)
	}
	if got.IllustrationColor.G != 0.2 {
		t.Fatalf("illustration color: %+v", got.IllustrationColor)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"rate.yaml":    "tick_rate_hz: 0\n",
		"trigger.yaml": "publish_triggers: [sometimes]\n",
		"color.yaml":   "proximity_color: {r: 2, g: 0, b: 0, a: 1}\n",
		"queue.yaml":   "observer_queue: -1\n",
		"period.yaml":  "publish_triggers: [periodic]\npublish_period_ms: 0\n",
		"version.yaml": "protocol_version: \"2.0\"\n",
		"syntax.toml":  "tick_rate_hz = \n",
	}
	for name, body := range cases {
		path := writeFile(t, name, body)
		_, err := Load(path)
		if err == nil {
			t.Fatalf("%s: expected error", name)
		}
		if !strings.Contains(err.Error(), name) {
			t.Fatalf("%s: error should name the file: %v", name, err)
		}
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}
