package sweep

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/weiihann/streambench/harness"
	"github.com/weiihann/streambench/metrics"
	"github.com/weiihann/streambench/results"
	"github.com/weiihann/streambench/stats"
)

// TrialRunner runs one trial. *harness.Runner implements it.
type TrialRunner interface {
	RunTrial(
		ctx context.Context,
		cfg harness.RunConfig,
		timeout time.Duration,
	) (*harness.TrialOutput, error)
}

// Progress is handed to Controller.OnTrial after each trial is persisted.
type Progress struct {
	Index   int
	Total   int
	Result  harness.TrialResult
	Summary stats.Summary
}

// Summary describes a finished or aborted sweep.
type Summary struct {
	ID       string
	Started  time.Time
	Trials   []harness.TrialResult
	TimedOut int
}

// Controller runs the trials of a plan one at a time.
type Controller struct {
	Runner  TrialRunner
	Output  string
	Timeout time.Duration
	// Measure selects whose stdout carries the samples.
	Measure harness.Role
	// Cooldown is the minimum spacing between trial starts.
	Cooldown time.Duration
	// KeepPartial keeps samples captured before a timeout instead of
	// recording the trial as zero throughput.
	KeepPartial bool
	Metrics     *metrics.Recorder
	Logger      *slog.Logger
	OnTrial     func(Progress)
}

// Run executes every point of plan in order. Each result is appended to
// Output before the next trial starts, so an error or interruption
// leaves a valid prefix on disk. The returned Summary covers the trials
// completed so far, also when an error is returned.
func (c *Controller) Run(ctx context.Context, plan Plan) (*Summary, error) {
	sum := &Summary{ID: uuid.NewString(), Started: time.Now()}

	if err := plan.Validate(); err != nil {
		return sum, fmt.Errorf("invalid plan: %w", err)
	}

	points, err := plan.Points()
	if err != nil {
		return sum, err
	}

	logger := c.Logger.With(slog.String("sweep_id", sum.ID))
	logger.InfoContext(ctx, "starting sweep",
		slog.Int("trials", len(points)),
		slog.String("output", c.Output),
		slog.Duration("timeout", c.Timeout),
	)

	limit := rate.Inf
	if c.Cooldown > 0 {
		limit = rate.Every(c.Cooldown)
	}
	pacer := rate.NewLimiter(limit, 1)

	for i, cfg := range points {
		if err := pacer.Wait(ctx); err != nil {
			return sum, fmt.Errorf("sweep stopped before trial %d/%d: %w",
				i+1, len(points), err)
		}

		res, desc, err := c.runOne(ctx, logger, plan.Compile, cfg)
		if err != nil {
			return sum, fmt.Errorf("trial %d/%d (%s): %w",
				i+1, len(points), cfg, err)
		}

		sum.Trials = append(sum.Trials, res)
		if res.TimedOut {
			sum.TimedOut++
		}

		logger.InfoContext(ctx, "trial complete",
			slog.Int("trial", i+1),
			slog.Int("of", len(points)),
			slog.String("config", cfg.String()),
			slog.Float64("mbps", res.Mbps),
			slog.Int("samples", res.Samples),
			slog.Float64("p50", desc.P50),
			slog.Bool("timed_out", res.TimedOut),
			slog.Duration("elapsed", res.Elapsed),
		)

		if c.OnTrial != nil {
			c.OnTrial(Progress{
				Index:   i,
				Total:   len(points),
				Result:  res,
				Summary: desc,
			})
		}
	}

	logger.InfoContext(ctx, "sweep complete",
		slog.Int("trials", len(sum.Trials)),
		slog.Int("timed_out", sum.TimedOut),
		slog.Duration("elapsed", time.Since(sum.Started)),
	)

	return sum, nil
}

func (c *Controller) runOne(
	ctx context.Context,
	logger *slog.Logger,
	compile harness.CompileConfig,
	cfg harness.RunConfig,
) (harness.TrialResult, stats.Summary, error) {
	out, err := c.Runner.RunTrial(ctx, cfg, c.Timeout)
	if err != nil {
		return harness.TrialResult{}, stats.Summary{}, err
	}

	ex := stats.Extract(out.Stdout(c.Measure))
	if ex.Malformed > 0 {
		logger.DebugContext(ctx, "skipped malformed STATS lines",
			slog.String("config", cfg.String()),
			slog.Int("count", ex.Malformed),
		)
	}

	samples := ex.Samples
	if out.TimedOut && !c.KeepPartial {
		samples = nil
	}

	desc := stats.Describe(samples)
	res := harness.TrialResult{
		Config:   cfg,
		Mbps:     desc.Mean,
		Samples:  desc.Count,
		TimedOut: out.TimedOut,
		Elapsed:  out.Elapsed,
	}

	if err := results.Append(c.Output, results.NewRow(cfg, compile, res.Mbps)); err != nil {
		return res, desc, err
	}

	if c.Metrics != nil {
		c.Metrics.ObserveTrial(res, ex.Malformed)
	}

	return res, desc, nil
}
