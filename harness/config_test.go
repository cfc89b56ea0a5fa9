package harness

import (
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestRunConfigValidate(t *testing.T) {
	valid := DefaultRunConfig()

	tests := []struct {
		name    string
		mutate  func(*RunConfig)
		wantErr string
	}{
		{"default", func(*RunConfig) {}, ""},
		{"perror one", func(c *RunConfig) { c.ErrorProbability = 1 }, ""},
		{"empty address", func(c *RunConfig) { c.Address = "" }, "ip is required"},
		{"comma in address", func(c *RunConfig) { c.Address = "a,b" }, "separator"},
		{"padded address", func(c *RunConfig) { c.Address = " 10.0.0.1" }, "separator"},
		{"port zero", func(c *RunConfig) { c.Port = 0 }, "port"},
		{"port too big", func(c *RunConfig) { c.Port = 70000 }, "port"},
		{"no packets", func(c *RunConfig) { c.TotalPackets = 0 }, "total_packets"},
		{"negative window", func(c *RunConfig) { c.WindowSize = -1 }, "window_size"},
		{"negative perror", func(c *RunConfig) { c.ErrorProbability = -0.1 }, "perror"},
		{"nan perror", func(c *RunConfig) { c.ErrorProbability = math.NaN() }, "perror"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			tt.mutate(&cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %v, want substring %q", err, tt.wantErr)
			}
		})
	}
}

func TestRunConfigWith(t *testing.T) {
	base := DefaultRunConfig()

	got, err := base.With(ColumnWindowSize, 256)
	if err != nil {
		t.Fatalf("With: %v", err)
	}
	if got.WindowSize != 256 {
		t.Errorf("window = %d, want 256", got.WindowSize)
	}
	if base.WindowSize != DefaultRunConfig().WindowSize {
		t.Error("With mutated the receiver")
	}

	if got, _ := base.With(ColumnPerror, 0.25); got.ErrorProbability != 0.25 {
		t.Errorf("perror = %v, want 0.25", got.ErrorProbability)
	}
	if got, _ := base.With(ColumnTotalPackets, 10); got.TotalPackets != 10 {
		t.Errorf("total = %d, want 10", got.TotalPackets)
	}
	if got, _ := base.With(ColumnPort, 4000); got.Port != 4000 {
		t.Errorf("port = %d, want 4000", got.Port)
	}

	if _, err := base.With(ColumnWindowSize, 1.5); err == nil {
		t.Error("expected error for fractional window")
	}
	if _, err := base.With("ip", 1); err == nil {
		t.Error("expected error for non-numeric dimension")
	}
}

func TestColumnsAlignWithValues(t *testing.T) {
	cfg := DefaultRunConfig()
	if len(cfg.Columns()) != len(cfg.Values()) {
		t.Errorf("run config: %d columns, %d values", len(cfg.Columns()), len(cfg.Values()))
	}

	cc := DefaultCompileConfig()
	if len(cc.Columns()) != len(cc.Values()) {
		t.Errorf("compile config: %d columns, %d values", len(cc.Columns()), len(cc.Values()))
	}
}

func TestFormatFloat(t *testing.T) {
	tests := []struct {
		input float64
		want  string
	}{
		{0, "0"},
		{0.0001, "0.0001"},
		{0.1, "0.1"},
		{1, "1"},
		{1e-05, "1e-05"},
		{941.5, "941.5"},
	}

	for _, tt := range tests {
		if got := FormatFloat(tt.input); got != tt.want {
			t.Errorf("FormatFloat(%v) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestRunConfigString(t *testing.T) {
	want := "ip=127.0.0.1 port=12345 total_packets=400000 window_size=1000 perror=0"
	if got := DefaultRunConfig().String(); got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}

func TestBinariesLocate(t *testing.T) {
	dir := t.TempDir()
	bins := ResolveBinaries(dir)

	if bins.Receiver != filepath.Join(dir, "Receiver") || bins.Sender != filepath.Join(dir, "Streamer") {
		t.Fatalf("unexpected paths: %+v", bins)
	}

	err := bins.Locate(ModeBoth)
	if !IsSpawnFailure(err) {
		t.Fatalf("Locate with no binaries = %v, want spawn failure", err)
	}

	if err := os.WriteFile(bins.Receiver, []byte("#!/bin/sh\n"), 0o755); err != nil {
		t.Fatalf("write receiver: %v", err)
	}

	if err := bins.Locate(ModeReceiver); err != nil {
		t.Errorf("Locate(receiver) = %v, want nil", err)
	}
	if err := bins.Locate(ModeSender); !IsSpawnFailure(err) {
		t.Errorf("Locate(sender) = %v, want spawn failure", err)
	}
}

func TestWrapCommand(t *testing.T) {
	plain := WrapCommand("/opt/bin/Receiver")
	if plain.Binary != "/opt/bin/Receiver" || len(plain.ExtraArgs) != 0 {
		t.Errorf("plain = %+v", plain)
	}

	wrapped := WrapCommand("/opt/bin/Receiver", "taskset", "-c", "2")
	if wrapped.Binary != "taskset" {
		t.Errorf("binary = %q, want taskset", wrapped.Binary)
	}
	if got := strings.Join(wrapped.ExtraArgs, " "); got != "-c 2 /opt/bin/Receiver" {
		t.Errorf("extra args = %q", got)
	}
}
