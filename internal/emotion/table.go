package emotion

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"os"
)

// Profile holds the three synthesis parameters that shape a voice model's
// emotional delivery. Values are fixed after table construction.
type Profile struct {
	LengthScale float64 `json:"length_scale"`
	NoiseScale  float64 `json:"noise_scale"`
	NoiseW      float64 `json:"noise_w"`
}

// Neutral is the fallback profile for unrecognized emotion names.
const Neutral = "neutral"

func builtins() map[string]Profile {
	return map[string]Profile{
		Neutral:    {LengthScale: 1.0, NoiseScale: 0.5, NoiseW: 0.6},
		"suspense": {LengthScale: 1.2, NoiseScale: 0.667, NoiseW: 0.8},
		"action":   {LengthScale: 0.8, NoiseScale: 0.3, NoiseW: 0.4},
		"anger":    {LengthScale: 0.9, NoiseScale: 0.4, NoiseW: 0.5},
		"fearful":  {LengthScale: 1.1, NoiseScale: 0.7, NoiseW: 0.75},
	}
}

// Table maps emotion names to synthesis profiles. It is built once at
// startup and read-only afterward; construct one per process and inject it
// rather than reaching for a global.
type Table struct {
	profiles map[string]Profile
}

// rawProfile keeps fields as pointers so a partial config entry can be
// told apart from one carrying explicit zeros.
type rawProfile struct {
	LengthScale *float64 `json:"length_scale"`
	NoiseScale  *float64 `json:"noise_scale"`
	NoiseW      *float64 `json:"noise_w"`
}

type configFile struct {
	Emotions map[string]rawProfile `json:"emotions"`
}

// NewTable returns a table containing only the built-in profiles.
func NewTable() *Table {
	return &Table{profiles: builtins()}
}

// LoadTable builds a table from the built-ins overlaid with entries from a
// JSON config file. An empty path yields the built-ins alone. Names the file
// does not mention keep their built-in profiles. A partial or out-of-range
// entry never aborts the load: each absent or invalid field falls back to the
// name's built-in profile (or neutral for new names), with a warning per
// invalid value.
func LoadTable(path string, log *slog.Logger) (*Table, error) {
	t := NewTable()
	if path == "" {
		return t, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read emotion config: %w", err)
	}
	var cfg configFile
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse emotion config: %w", err)
	}
	for name, raw := range cfg.Emotions {
		base, ok := t.profiles[name]
		if !ok {
			base = t.profiles[Neutral]
		}
		t.profiles[name] = Profile{
			LengthScale: pickParam(name, "length_scale", raw.LengthScale, base.LengthScale, log),
			NoiseScale:  pickParam(name, "noise_scale", raw.NoiseScale, base.NoiseScale, log),
			NoiseW:      pickParam(name, "noise_w", raw.NoiseW, base.NoiseW, log),
		}
	}
	return t, nil
}

// pickParam returns the configured value when present and positive finite,
// the fallback otherwise. Only invalid values warn; absent fields default
// silently.
func pickParam(emotion, param string, value *float64, fallback float64, log *slog.Logger) float64 {
	if value == nil {
		return fallback
	}
	if *value <= 0 || math.IsInf(*value, 0) || math.IsNaN(*value) {
		log.Warn("invalid emotion parameter, using default",
			slog.String("emotion", emotion),
			slog.String("param", param),
			slog.Float64("value", *value))
		return fallback
	}
	return *value
}

// Resolve returns the profile for name. Lookup is case-sensitive. An
// unrecognized name (including the empty string) returns the neutral profile
// and ok=false; callers are expected to report the degradation, never to
// treat it as an error.
func (t *Table) Resolve(name string) (Profile, bool) {
	if p, ok := t.profiles[name]; ok {
		return p, true
	}
	return t.profiles[Neutral], false
}

// Names returns the recognized emotion names, for diagnostics.
func (t *Table) Names() []string {
	names := make([]string, 0, len(t.profiles))
	for name := range t.profiles {
		names = append(names, name)
	}
	return names
}
