package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"envload/internal/actor"
	"envload/internal/catalog"
	"envload/internal/config"
	"envload/internal/events"
	httpclient "envload/internal/http"
	"envload/internal/logging"
	"envload/internal/observe"
	"envload/internal/progress"
	"envload/internal/scheduler"
	"envload/internal/stats"
)

// runOptions are the flags of the run command. Flags that were set on the
// command line override the config file.
type runOptions struct {
	configPath    string
	host          string
	users         int
	duration      time.Duration
	rps           int
	maxIterations int
	warmup        int
	seed          int64
	output        string
	quiet         bool
	verbose       bool
	metricsAddr   string
	logLevel      string
	logFormat     string
}

func newRunCmd(stdout, stderr io.Writer) *cobra.Command {
	opts := &runOptions{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a load test",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.config(cmd)
			if err != nil {
				return &exitError{code: ExitError, err: err}
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			code, err := runLoad(ctx, cfg, opts, stdout, stderr)
			if code != ExitSuccess || err != nil {
				return &exitError{code: code, err: err}
			}
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVarP(&opts.configPath, "config", "c", "", "path to YAML config file (default: built-in scenario)")
	f.StringVar(&opts.host, "host", "", "base URL of the gateway")
	f.IntVarP(&opts.users, "users", "u", 0, "total users to split across classes")
	f.DurationVarP(&opts.duration, "duration", "d", 0, "test duration (0 = until interrupted)")
	f.IntVar(&opts.rps, "rps", 0, "global request rate cap (0 = unlimited)")
	f.IntVar(&opts.maxIterations, "max-iterations", 0, "max iterations per user (0 = unlimited)")
	f.IntVar(&opts.warmup, "warmup", 0, "warmup iterations before recording (per user)")
	f.Int64Var(&opts.seed, "seed", 0, "random seed for reproducible runs (0 = time based)")
	f.StringVarP(&opts.output, "output", "o", "text", "output format: text, json")
	f.BoolVarP(&opts.quiet, "quiet", "q", false, "suppress progress output during test")
	f.BoolVarP(&opts.verbose, "verbose", "v", false, "enable debug output (request/response logging)")
	f.StringVar(&opts.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address, e.g. :9090")
	f.StringVar(&opts.logLevel, "log-level", "info", "log level: debug, info, warn, error")
	f.StringVar(&opts.logFormat, "log-format", logging.FormatConsole, "log format: console, json")
	return cmd
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.Default(), nil
	}
	return config.LoadConfig(path)
}

// config loads the file and applies the flags that were set.
func (o *runOptions) config(cmd *cobra.Command) (*config.Config, error) {
	if o.output != "text" && o.output != "json" {
		return nil, fmt.Errorf("--output must be 'text' or 'json', got %q", o.output)
	}
	cfg, err := loadConfig(o.configPath)
	if err != nil {
		return nil, err
	}

	changed := cmd.Flags().Changed
	if changed("host") {
		cfg.Target.BaseURL = o.host
	}
	if changed("users") {
		cfg.Run.Users = o.users
	}
	if changed("duration") {
		cfg.Run.Duration = o.duration
	}
	if changed("rps") {
		cfg.Run.RPS = o.rps
	}
	if changed("max-iterations") {
		cfg.Run.MaxIterations = o.maxIterations
	}
	if changed("warmup") {
		cfg.Run.WarmupIterations = o.warmup
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// runLoad executes one run and prints its summary. It returns the exit code.
func runLoad(ctx context.Context, cfg *config.Config, opts *runOptions, stdout, stderr io.Writer) (int, error) {
	level := opts.logLevel
	if opts.verbose {
		level = "debug"
	}
	logger, err := logging.NewWithWriter(level, opts.logFormat, stderr)
	if err != nil {
		return ExitError, err
	}
	defer logger.Sync()

	clientOpts := httpclient.Options{Timeout: cfg.Target.Timeout, Headers: cfg.Target.Headers}
	if opts.verbose {
		clientOpts.Debug = httpclient.NewDebugLogger(logger)
	}
	client, err := httpclient.NewClient(cfg.Target.BaseURL, clientOpts)
	if err != nil {
		return ExitError, err
	}

	mix, err := catalog.Build(cfg)
	if err != nil {
		return ExitError, err
	}

	agg := stats.NewAggregator()
	bus := events.NewBus(logger)
	observe.NewRunLogger(logger, cfg.Target.BaseURL, agg).Attach(bus)
	metrics := observe.NewMetrics(bus)
	metrics.Attach(bus)

	runCfg := scheduler.RunConfig{
		Duration:         cfg.Run.Duration,
		Mix:              mix,
		SpawnJitter:      cfg.Run.SpawnJitter,
		ActionTimeout:    cfg.Run.ActionTimeout,
		StopTimeout:      cfg.Run.StopTimeout,
		MaxIterations:    cfg.Run.MaxIterations,
		WarmupIterations: cfg.Run.WarmupIterations,
		RPS:              cfg.Run.RPS,
		Seed:             opts.seed,
	}
	profile := cfg.LoadProfile
	hasProfile := profile != nil && len(profile.Phases) > 0
	if hasProfile {
		if runCfg.Duration == 0 {
			runCfg.Duration = profile.TotalDuration()
		}
		// the profile sets the population from its first tick
		for i := range runCfg.Mix {
			runCfg.Mix[i].Count = 0
		}
	}

	if opts.metricsAddr != "" {
		metricsCtx, cancelMetrics := context.WithCancel(context.Background())
		defer cancelMetrics()
		go func() {
			if err := metrics.Serve(metricsCtx, opts.metricsAddr, logger); err != nil {
				logger.Error("metrics server failed", zap.Error(err))
			}
		}()
	}

	prog := progress.NewProgress(agg, opts.quiet)
	prog.SetOutput(stderr)
	prog.Printf("envload starting: %d users, duration %s, target %s",
		totalUsers(cfg, mix), durationLabel(runCfg.Duration), cfg.Target.BaseURL)

	sched := scheduler.New(client, actor.NewRecorder(agg, bus), bus, logger)
	// cancellation is handled below so that in-flight actions can finish
	handle, err := sched.Run(context.WithoutCancel(ctx), runCfg)
	if err != nil {
		bus.Close()
		return ExitError, err
	}
	metrics.TrackActive(handle.ActiveByClass)
	prog.SetUsers(handle.Active)
	prog.Start()

	if hasProfile {
		go func() {
			err := handle.FollowProfile(handle.Context(), profile.Phases, func(p config.Phase, target int) {
				prog.Printf("Phase: %s (duration: %v, users: %d)", p.Name, p.Duration, target)
			})
			if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
				logger.Error("load profile failed", zap.Error(err))
			}
		}()
	}

	interrupted := false
	select {
	case <-handle.Done():
	case <-ctx.Done():
		interrupted = true
		prog.Print("Received interrupt signal, shutting down...")
	}
	if err := handle.Stop(context.Background()); err != nil {
		logger.Warn("stopping users", zap.Error(err))
	}

	prog.Stop()
	agg.Stop()
	bus.Close()

	snap := agg.Snapshot()
	var results *stats.ThresholdResults
	if cfg.Thresholds != nil {
		results = cfg.Thresholds.Check(snap)
	}
	if opts.output == "json" {
		stats.FormatJSON(stdout, snap, results)
	} else {
		stats.FormatText(stdout, snap, results)
	}

	if interrupted {
		return ExitSuccess, nil
	}
	if results != nil && !results.Passed {
		if opts.output == "text" {
			fmt.Fprintln(stderr, "\nThreshold check failed!")
		}
		return ExitThresholdFailed, nil
	}
	return ExitSuccess, nil
}

func totalUsers(cfg *config.Config, mix []scheduler.Allocation) int {
	if cfg.LoadProfile != nil && len(cfg.LoadProfile.Phases) > 0 {
		max := 0
		for _, p := range cfg.LoadProfile.Phases {
			for _, n := range []int{p.Users, p.StartUsers, p.EndUsers} {
				if n > max {
					max = n
				}
			}
		}
		return max
	}
	n := 0
	for _, a := range mix {
		n += a.Count
	}
	return n
}

func durationLabel(d time.Duration) string {
	if d == 0 {
		return "until interrupted"
	}
	return d.String()
}
