// Package main provides the CLI entry point for streambench, a throughput
// benchmarking harness for the sliding-window streaming protocol.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/weiihann/streambench/harness"
	"github.com/weiihann/streambench/metrics"
	"github.com/weiihann/streambench/report"
	"github.com/weiihann/streambench/results"
	"github.com/weiihann/streambench/sweep"
)

func main() {
	level := new(slog.LevelVar)
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))

	ctx, stop := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGTERM)

	root := newRootCmd(logger, level)
	err := root.ExecuteContext(ctx)
	stop()

	if err != nil {
		logger.Error("streambench failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func newRootCmd(logger *slog.Logger, level *slog.LevelVar) *cobra.Command {
	var verbose bool

	root := &cobra.Command{
		Use:   "streambench",
		Short: "Throughput benchmarking harness for the streaming protocol",
		Long: `Streambench launches Receiver/Streamer pairs over a grid of window sizes,
error probabilities and packet counts, averages the throughput they report
on their STATS lines, and appends one CSV row per trial.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(*cobra.Command, []string) {
			if verbose {
				level.Set(slog.LevelDebug)
			}
		},
	}

	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false,
		"Enable debug logging")

	root.AddCommand(newRunCmd(logger))
	root.AddCommand(newReportCmd())

	return root
}

func newRunCmd(logger *slog.Logger) *cobra.Command {
	var cfg runConfig

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a sweep of throughput trials",
		Long: `Run one trial per configuration point and append each result to the
output CSV as soon as it is known. Values given to --perror, --window-size
and --total-packets are swept in the order listed; with several lists the
trials nest in that order, --perror outermost.`,
		Example: `  streambench run --window-size 1000 --perror 0.0001,0.001,0.01,0.1 --output error.csv
  streambench run --plan full_test.yaml --bin-dir ../x86-64/src`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg.ipSet = cmd.Flags().Changed("ip")
			cfg.portSet = cmd.Flags().Changed("port")
			cfg.payloadSet = cmd.Flags().Changed("payload-size")

			return runSweep(cmd.Context(), logger, cfg)
		},
	}

	def := harness.DefaultRunConfig()

	flags := cmd.Flags()
	flags.Float64SliceVar(&cfg.perrors, "perror", nil,
		"Injected error probabilities to sweep (0.0-1.0)")
	flags.IntSliceVar(&cfg.windowSizes, "window-size", nil,
		"Window sizes to sweep")
	flags.IntSliceVar(&cfg.totalPackets, "total-packets", nil,
		fmt.Sprintf("Packet counts to sweep (default %d)", def.TotalPackets))
	flags.StringVar(&cfg.ip, "ip", def.Address,
		"Receiver address the sender targets")
	flags.IntVar(&cfg.port, "port", def.Port,
		"Receiver port")
	flags.IntVar(&cfg.payloadSize, "payload-size", harness.DefaultCompileConfig().PayloadSize,
		"Payload size the binaries were compiled with (recorded only)")
	flags.StringVar(&cfg.planPath, "plan", "",
		"Sweep plan file (.yaml or .toml) instead of --perror/--window-size")
	flags.StringVarP(&cfg.output, "output", "o", "result.csv",
		"Result CSV to append to")
	flags.StringVar(&cfg.binDir, "bin-dir", ".",
		"Directory containing the Receiver and Streamer binaries")
	flags.BoolVar(&cfg.build, "build", false,
		"Build the binaries with make in --src-dir first")
	flags.StringVar(&cfg.srcDir, "src-dir", "",
		"Protocol source directory for --build (default: --bin-dir)")
	flags.StringSliceVar(&cfg.wrap, "wrap", nil,
		"Wrapper command for both binaries, e.g. taskset,-c,2")
	flags.StringVar(&cfg.mode, "mode", string(harness.ModeBoth),
		"Processes to launch here: both, receiver or sender")
	flags.DurationVar(&cfg.timeout, "timeout", 30*time.Second,
		"Per-trial wait for the measured process; a trial ends within timeout plus kill-grace")
	flags.DurationVar(&cfg.killGrace, "kill-grace", harness.DefaultKillGrace,
		"Time between SIGTERM and SIGKILL when terminating a process")
	flags.DurationVar(&cfg.cooldown, "cooldown", 0,
		"Minimum time between trial starts")
	flags.BoolVar(&cfg.keepPartial, "keep-partial", false,
		"Average samples seen before a timeout instead of recording 0")
	flags.StringVar(&cfg.metricsFile, "metrics-file", "",
		"Write Prometheus metrics to this textfile when the sweep ends")

	return cmd
}

type runConfig struct {
	perrors      []float64
	windowSizes  []int
	totalPackets []int
	ip           string
	ipSet        bool
	port         int
	portSet      bool
	payloadSize  int
	payloadSet   bool
	planPath     string
	output       string
	binDir       string
	build        bool
	srcDir       string
	wrap         []string
	mode         string
	timeout      time.Duration
	killGrace    time.Duration
	cooldown     time.Duration
	keepPartial  bool
	metricsFile  string
}

func runSweep(
	ctx context.Context,
	logger *slog.Logger,
	cfg runConfig,
) error {
	mode, err := harness.ParseMode(cfg.mode)
	if err != nil {
		return err
	}

	if cfg.timeout <= 0 {
		return fmt.Errorf("--timeout must be positive, got %s", cfg.timeout)
	}

	plan, err := buildPlan(cfg, mode)
	if err != nil {
		return err
	}

	if err := plan.Validate(); err != nil {
		return fmt.Errorf("invalid sweep: %w", err)
	}

	// Step 1: Locate (or build) the protocol binaries.
	var bins harness.Binaries

	if cfg.build {
		srcDir := cfg.srcDir
		if srcDir == "" {
			srcDir = cfg.binDir
		}

		bins, err = harness.Build(ctx, logger, srcDir, mode)
		if err != nil {
			return err
		}
	} else {
		bins = harness.ResolveBinaries(cfg.binDir)
		if err := bins.Locate(mode); err != nil {
			return err
		}
	}

	// Step 2: Wire the runner, metrics and controller.
	runner := harness.NewRunner(
		harness.WrapCommand(bins.Receiver, cfg.wrap...),
		harness.WrapCommand(bins.Sender, cfg.wrap...),
		mode, logger,
	)
	runner.KillGrace = cfg.killGrace

	var recorder *metrics.Recorder
	if cfg.metricsFile != "" {
		recorder = metrics.NewRecorder()
	}

	ctrl := &sweep.Controller{
		Runner:      runner,
		Output:      cfg.output,
		Timeout:     cfg.timeout,
		Measure:     mode.Measured(),
		Cooldown:    cfg.cooldown,
		KeepPartial: cfg.keepPartial,
		Metrics:     recorder,
		Logger:      logger,
		OnTrial:     printProgress,
	}

	// Step 3: Run the sweep; rows are already on disk if it fails.
	summary, runErr := ctrl.Run(ctx, *plan)

	if recorder != nil {
		if err := recorder.WriteTextfile(cfg.metricsFile); err != nil {
			logger.Warn("failed to write metrics",
				slog.String("error", err.Error()),
			)
		}
	}

	if runErr != nil {
		return fmt.Errorf("sweep %s stopped after %d trials: %w",
			summary.ID, len(summary.Trials), runErr)
	}

	return nil
}

// buildPlan turns the plan file or the sweep flags into a Plan. Single
// values become part of the base config; lists become dimensions.
func buildPlan(cfg runConfig, mode harness.Mode) (*sweep.Plan, error) {
	var plan sweep.Plan

	if cfg.planPath != "" {
		p, err := sweep.LoadPlan(cfg.planPath)
		if err != nil {
			return nil, err
		}

		plan = *p
	} else {
		if len(cfg.windowSizes) == 0 {
			return nil, fmt.Errorf("--window-size is required without --plan")
		}
		if len(cfg.perrors) == 0 && mode != harness.ModeSender {
			return nil, fmt.Errorf("--perror is required without --plan")
		}

		plan = sweep.Single(harness.DefaultRunConfig(), harness.CompileConfig{
			PayloadSize: cfg.payloadSize,
		})

		for _, d := range []sweep.Dimension{
			{Name: harness.ColumnPerror, Values: cfg.perrors},
			{Name: harness.ColumnWindowSize, Values: toFloats(cfg.windowSizes)},
			{Name: harness.ColumnTotalPackets, Values: toFloats(cfg.totalPackets)},
		} {
			switch len(d.Values) {
			case 0:
			case 1:
				base, err := plan.Base.With(d.Name, d.Values[0])
				if err != nil {
					return nil, err
				}
				plan.Base = base
			default:
				plan.Dimensions = append(plan.Dimensions, d)
			}
		}
	}

	if cfg.planPath == "" || cfg.ipSet {
		plan.Base.Address = cfg.ip
	}
	if cfg.planPath == "" || cfg.portSet {
		plan.Base.Port = cfg.port
	}
	if cfg.planPath != "" && cfg.payloadSet {
		plan.Compile.PayloadSize = cfg.payloadSize
	}

	return &plan, nil
}

func toFloats(in []int) []float64 {
	out := make([]float64, len(in))
	for i, v := range in {
		out[i] = float64(v)
	}

	return out
}

func printProgress(p sweep.Progress) {
	status := ""
	if p.Result.TimedOut {
		status = " (timed out)"
	}

	fmt.Fprintf(os.Stdout, "[%d/%d] %s -> %.3f Mbps from %d samples%s\n",
		p.Index+1, p.Total, p.Result.Config, p.Result.Mbps, p.Result.Samples, status)
}

func newReportCmd() *cobra.Command {
	var (
		groupBy    string
		outputJSON bool
	)

	cmd := &cobra.Command{
		Use:   "report <results.csv>",
		Short: "Summarize a result file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			table, err := results.Load(args[0])
			if err != nil {
				return err
			}

			if outputJSON {
				if err := report.GenerateJSON(cmd.OutOrStdout(), table); err != nil {
					return fmt.Errorf("generate JSON report: %w", err)
				}

				return nil
			}

			if err := report.Generate(cmd.OutOrStdout(), table, groupBy); err != nil {
				return fmt.Errorf("generate report: %w", err)
			}

			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&groupBy, "group-by", "",
		"Column to report the best throughput for, e.g. perror")
	flags.BoolVar(&outputJSON, "json", false,
		"Output rows as JSON instead of a table")

	return cmd
}
