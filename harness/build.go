package harness

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
)

// Binary names produced by the protocol build.
const (
	ReceiverBinary = "Receiver"
	SenderBinary   = "Streamer"
)

// Binaries holds the resolved paths of the two protocol executables.
type Binaries struct {
	Receiver string
	Sender   string
}

// ResolveBinaries returns the expected binary paths inside binDir.
func ResolveBinaries(binDir string) Binaries {
	return Binaries{
		Receiver: filepath.Join(binDir, ReceiverBinary),
		Sender:   filepath.Join(binDir, SenderBinary),
	}
}

// Locate verifies that the binaries needed by mode exist and are
// executable. A missing binary is reported as a SpawnError so callers
// can fail before the first trial.
func (b Binaries) Locate(mode Mode) error {
	check := func(role Role, path string) error {
		if _, err := exec.LookPath(path); err != nil {
			return &SpawnError{Role: role, Path: path, Err: err}
		}

		return nil
	}

	if mode != ModeSender {
		if err := check(RoleReceiver, b.Receiver); err != nil {
			return err
		}
	}

	if mode != ModeReceiver {
		if err := check(RoleSender, b.Sender); err != nil {
			return err
		}
	}

	return nil
}

// Build compiles the protocol binaries with make in srcDir and returns
// their locations.
func Build(
	ctx context.Context,
	logger *slog.Logger,
	srcDir string,
	mode Mode,
) (Binaries, error) {
	targets := make([]string, 0, 2)
	if mode != ModeSender {
		targets = append(targets, ReceiverBinary)
	}
	if mode != ModeReceiver {
		targets = append(targets, SenderBinary)
	}

	logger.InfoContext(ctx, "building protocol binaries",
		slog.String("source_dir", srcDir),
		slog.Any("targets", targets),
	)

	cmd := exec.CommandContext(ctx, "make", targets...)
	cmd.Dir = srcDir
	cmd.Stdout = os.Stderr
	cmd.Stderr = os.Stderr

	if err := cmd.Run(); err != nil {
		return Binaries{}, fmt.Errorf("build in %s: %w", srcDir, err)
	}

	bins := ResolveBinaries(srcDir)
	if err := bins.Locate(mode); err != nil {
		return Binaries{}, fmt.Errorf("build in %s: %w", srcDir, err)
	}

	logger.InfoContext(ctx, "protocol binaries built",
		slog.String("receiver", bins.Receiver),
		slog.String("sender", bins.Sender),
	)

	return bins, nil
}

// CommandConfig holds the resolved command, extra arguments, and
// environment variables needed to run a protocol binary. ExtraArgs are
// placed before the trial arguments.
type CommandConfig struct {
	Binary    string
	ExtraArgs []string
	Env       []string
}

// WrapCommand returns the exec configuration for a binary path. A
// wrapper such as taskset or numactl can be given as prefix; its first
// element becomes the executable and binPath is appended to its args.
func WrapCommand(binPath string, prefix ...string) CommandConfig {
	if len(prefix) == 0 {
		return CommandConfig{Binary: binPath}
	}

	extra := make([]string, 0, len(prefix))
	extra = append(extra, prefix[1:]...)
	extra = append(extra, binPath)

	return CommandConfig{Binary: prefix[0], ExtraArgs: extra}
}
