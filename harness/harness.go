package harness

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"syscall"
	"time"
)

// DefaultKillGrace is how long a terminated process may take to exit
// before it is killed outright.
const DefaultKillGrace = 2 * time.Second

// Runner launches one receiver/sender pair per trial.
type Runner struct {
	Receiver  CommandConfig
	Sender    CommandConfig
	Mode      Mode
	KillGrace time.Duration
	Logger    *slog.Logger
}

// NewRunner creates a Runner. The CommandConfigs come from WrapCommand
// or are built by hand when the binaries need a wrapper.
func NewRunner(
	receiver, sender CommandConfig,
	mode Mode,
	logger *slog.Logger,
) *Runner {
	return &Runner{
		Receiver:  receiver,
		Sender:    sender,
		Mode:      mode,
		KillGrace: DefaultKillGrace,
		Logger:    logger.With(slog.String("mode", string(mode))),
	}
}

// ReceiverArgs builds the receiver argument vector for cfg.
func ReceiverArgs(cfg RunConfig) []string {
	return []string{
		strconv.Itoa(cfg.Port),
		"-perror", FormatFloat(cfg.ErrorProbability),
		"-window", strconv.Itoa(cfg.WindowSize),
		"--csv",
	}
}

// SenderArgs builds the sender argument vector for cfg.
func SenderArgs(cfg RunConfig) []string {
	return []string{
		cfg.Address,
		strconv.Itoa(cfg.Port),
		"-num", strconv.Itoa(cfg.TotalPackets),
		"-window", strconv.Itoa(cfg.WindowSize),
		"--csv",
	}
}

// RunTrial runs a single trial for cfg. It waits up to timeout for the
// measured process (the receiver unless Mode is ModeSender) and then
// terminates whatever is still running. A timeout is reported through
// TrialOutput.TimedOut, not as an error. Every launched process has
// exited and been reaped by the time RunTrial returns, at most timeout
// plus KillGrace after the start. A non-positive timeout waits without
// bound.
func (r *Runner) RunTrial(
	ctx context.Context,
	cfg RunConfig,
	timeout time.Duration,
) (*TrialOutput, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid run config: %w", err)
	}

	g := newGroup(ctx, r.KillGrace)
	defer g.release()

	logger := r.Logger.With(slog.String("config", cfg.String()))
	start := time.Now()

	// Receiver first so it is listening before the sender emits.
	if r.Mode != ModeSender {
		if err := g.start(RoleReceiver, r.Receiver, ReceiverArgs(cfg), logger); err != nil {
			return nil, err
		}
	}

	if r.Mode != ModeReceiver {
		if err := g.start(RoleSender, r.Sender, SenderArgs(cfg), logger); err != nil {
			return nil, err
		}
	}

	measured := g.get(r.Mode.Measured())

	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}

	out := &TrialOutput{Config: cfg}

	select {
	case <-measured.done:
	case <-expired:
		out.TimedOut = true
		logger.Warn("trial timed out, terminating processes",
			slog.Duration("timeout", timeout),
		)
	case <-ctx.Done():
	}

	g.release()
	out.Elapsed = time.Since(start)

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("trial interrupted: %w", err)
	}

	if p := g.get(RoleReceiver); p != nil {
		out.ReceiverStdout = p.stdout.Bytes()
	}
	if p := g.get(RoleSender); p != nil {
		out.SenderStdout = p.stdout.Bytes()
	}

	if !out.TimedOut && measured.err != nil {
		logger.Warn("measured process exited abnormally",
			slog.String("role", string(measured.role)),
			slog.String("error", measured.err.Error()),
			slog.String("stderr", tail(measured.stderr.Bytes(), 512)),
		)
	}

	logger.Debug("trial finished",
		slog.Duration("elapsed", out.Elapsed),
		slog.Bool("timed_out", out.TimedOut),
	)

	return out, nil
}

// process is one spawned binary and its captured output. Its buffers
// may only be read after done is closed.
type process struct {
	role   Role
	cmd    *exec.Cmd
	stdout bytes.Buffer
	stderr bytes.Buffer
	done   chan struct{}
	err    error
}

// group owns the processes of one trial. Cancelling its context sends
// SIGTERM to every live member; WaitDelay escalates to SIGKILL.
type group struct {
	ctx   context.Context
	stop  context.CancelFunc
	grace time.Duration
	procs []*process
}

func newGroup(parent context.Context, grace time.Duration) *group {
	ctx, stop := context.WithCancel(parent)
	if grace <= 0 {
		grace = DefaultKillGrace
	}

	return &group{ctx: ctx, stop: stop, grace: grace}
}

func (g *group) start(
	role Role,
	cc CommandConfig,
	args []string,
	logger *slog.Logger,
) error {
	argv := make([]string, 0, len(cc.ExtraArgs)+len(args))
	argv = append(argv, cc.ExtraArgs...)
	argv = append(argv, args...)

	p := &process{role: role, done: make(chan struct{})}

	cmd := exec.CommandContext(g.ctx, cc.Binary, argv...)
	if len(cc.Env) > 0 {
		cmd.Env = append(os.Environ(), cc.Env...)
	}
	cmd.Stdout = &p.stdout
	cmd.Stderr = &p.stderr
	cmd.Cancel = func() error {
		return cmd.Process.Signal(syscall.SIGTERM)
	}
	cmd.WaitDelay = g.grace

	if err := cmd.Start(); err != nil {
		return &SpawnError{Role: role, Path: cc.Binary, Err: err}
	}

	logger.Info("spawned process",
		slog.String("role", string(role)),
		slog.String("binary", cc.Binary),
		slog.Any("args", args),
		slog.Int("pid", cmd.Process.Pid),
	)

	p.cmd = cmd
	go func() {
		p.err = cmd.Wait()
		close(p.done)
	}()

	g.procs = append(g.procs, p)

	return nil
}

func (g *group) get(role Role) *process {
	for _, p := range g.procs {
		if p.role == role {
			return p
		}
	}

	return nil
}

// release terminates and reaps every process. Safe to call repeatedly.
func (g *group) release() {
	g.stop()
	for _, p := range g.procs {
		<-p.done
	}
}

func tail(b []byte, n int) string {
	b = bytes.TrimSpace(b)
	if len(b) > n {
		b = b[len(b)-n:]
	}

	return string(b)
}
