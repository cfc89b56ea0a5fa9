// Package harness launches the Receiver and Streamer protocol binaries
// for a single trial and captures what they report.
package harness

import (
	"errors"
	"fmt"
	"time"
)

// Role identifies one of the two collaborating processes.
type Role string

const (
	RoleReceiver Role = "receiver"
	RoleSender   Role = "sender"
)

// Mode selects which processes a trial launches on this host.
type Mode string

const (
	// ModeBoth runs receiver and sender locally and measures the receiver.
	ModeBoth Mode = "both"
	// ModeReceiver runs only the receiver; the sender lives elsewhere.
	ModeReceiver Mode = "receiver"
	// ModeSender runs only the sender and measures its output.
	ModeSender Mode = "sender"
)

// ParseMode validates a mode name.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(s); m {
	case ModeBoth, ModeReceiver, ModeSender:
		return m, nil
	case "":
		return ModeBoth, nil
	default:
		return "", fmt.Errorf("unknown mode %q (want both, receiver or sender)", s)
	}
}

// Measured returns the role whose output carries the throughput samples.
func (m Mode) Measured() Role {
	if m == ModeSender {
		return RoleSender
	}

	return RoleReceiver
}

// TrialOutput is the raw capture of one trial.
type TrialOutput struct {
	Config         RunConfig
	ReceiverStdout []byte
	SenderStdout   []byte
	TimedOut       bool
	Elapsed        time.Duration
}

// Stdout returns the captured standard output for role.
func (o *TrialOutput) Stdout(role Role) []byte {
	if role == RoleSender {
		return o.SenderStdout
	}

	return o.ReceiverStdout
}

// TrialResult is the summarized outcome of one trial.
type TrialResult struct {
	Config   RunConfig     `json:"config"`
	Mbps     float64       `json:"mbps"`
	Samples  int           `json:"samples"`
	TimedOut bool          `json:"timed_out"`
	Elapsed  time.Duration `json:"elapsed"`
}

// SpawnError reports that a protocol binary could not be started.
type SpawnError struct {
	Role Role
	Path string
	Err  error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("spawn %s %s: %v", e.Role, e.Path, e.Err)
}

func (e *SpawnError) Unwrap() error { return e.Err }

// IsSpawnFailure reports whether err wraps a SpawnError.
func IsSpawnFailure(err error) bool {
	var se *SpawnError
	return errors.As(err, &se)
}
