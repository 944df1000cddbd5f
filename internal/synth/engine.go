package synth

import (
	"fmt"

	"github.com/intonelabs/intone/internal/config"
)

// NewEngine builds the configured synthesis backend.
func NewEngine(cfg config.EngineConfig) (Engine, error) {
	switch cfg.Mode {
	case "mock":
		return NewMockEngine(cfg.SampleRate, cfg.Channels), nil
	case "exec":
		return NewExecEngine(cfg)
	case "wyoming":
		return NewWyomingEngine(cfg)
	default:
		return nil, fmt.Errorf("unknown engine mode %q", cfg.Mode)
	}
}
