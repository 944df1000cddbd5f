package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Bus.Servers[0] != "nats://localhost:4222" {
		t.Fatalf("expected default server, got %v", cfg.Bus.Servers)
	}
	if cfg.Engine.SampleRate != 22050 {
		t.Fatalf("expected default sample rate 22050, got %d", cfg.Engine.SampleRate)
	}
	if cfg.Output.TargetLUFS != -16.0 {
		t.Fatalf("expected default target -16 LUFS, got %v", cfg.Output.TargetLUFS)
	}
	if cfg.Output.Format != "mp3" {
		t.Fatalf("expected default format mp3, got %s", cfg.Output.Format)
	}
}

func TestLoadFile(t *testing.T) {
	const doc = `
engine:
  mode: exec
  command: "piper-json --quiet"
  sample_rate: 16000
  workers: 4
output:
  format: ogg
  target_lufs: -18.0
`
	path := filepath.Join(t.TempDir(), "intone.yaml")
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Engine.Mode != "exec" || cfg.Engine.Command != "piper-json --quiet" {
		t.Fatalf("expected engine overrides, got %+v", cfg.Engine)
	}
	if cfg.Engine.SampleRate != 16000 || cfg.Engine.Workers != 4 {
		t.Fatalf("expected engine rate/workers overrides, got %+v", cfg.Engine)
	}
	if cfg.Output.Format != "ogg" || cfg.Output.TargetLUFS != -18.0 {
		t.Fatalf("expected output overrides, got %+v", cfg.Output)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("INTONE_BUS_SERVERS", "nats://one:4222, nats://two:4222")
	t.Setenv("INTONE_BUS_USERNAME", "alice")
	t.Setenv("INTONE_BUS_PASSWORD", "secret")
	t.Setenv("INTONE_ENGINE_MODE", "wyoming")
	t.Setenv("INTONE_ENGINE_ENDPOINT", "tcp://piper:10200")
	t.Setenv("INTONE_ENGINE_WORKERS", "3")
	t.Setenv("INTONE_OUTPUT_FORMAT", "wav")
	t.Setenv("INTONE_OUTPUT_NORMALIZE", "false")
	t.Setenv("INTONE_OUTPUT_TARGET_LUFS", "-20")
	t.Setenv("INTONE_HISTORY_PATH", "./tmp.db")
	t.Setenv("INTONE_HISTORY_RETENTION_MODE", "ephemeral")
	t.Setenv("INTONE_HISTORY_MAX_RUNS", "123")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(cfg.Bus.Servers) != 2 {
		t.Fatalf("expected 2 servers, got %v", cfg.Bus.Servers)
	}
	if cfg.Bus.Username != "alice" || cfg.Bus.Password != "secret" {
		t.Fatalf("expected credentials override")
	}
	if cfg.Engine.Mode != "wyoming" || cfg.Engine.Endpoint != "tcp://piper:10200" {
		t.Fatalf("expected engine override, got %+v", cfg.Engine)
	}
	if cfg.Engine.Workers != 3 {
		t.Fatalf("expected workers 3, got %d", cfg.Engine.Workers)
	}
	if cfg.Output.Format != "wav" {
		t.Fatalf("expected format override")
	}
	if cfg.Output.Normalize {
		t.Fatal("expected normalize override false")
	}
	if cfg.Output.TargetLUFS != -20 {
		t.Fatalf("expected target lufs -20, got %v", cfg.Output.TargetLUFS)
	}
	if cfg.History.Path != "./tmp.db" {
		t.Fatalf("expected history path override")
	}
	if cfg.History.RetentionMode != "ephemeral" {
		t.Fatalf("expected retention mode override")
	}
	if cfg.History.MaxRuns != 123 {
		t.Fatalf("expected max runs override")
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	t.Setenv("INTONE_ENGINE_MODE", "exec")
	if _, err := Load(""); err == nil {
		t.Fatal("expected error for mode=exec without command")
	}

	t.Setenv("INTONE_ENGINE_MODE", "mock")
	t.Setenv("INTONE_OUTPUT_FORMAT", "flac")
	if _, err := Load(""); err == nil {
		t.Fatal("expected error for unsupported output format")
	}
}
