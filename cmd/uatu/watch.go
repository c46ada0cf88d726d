package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fractalops/uatu/internal/anomaly"
	"github.com/fractalops/uatu/internal/baseline"
	"github.com/fractalops/uatu/internal/cache"
	"github.com/fractalops/uatu/internal/config"
	"github.com/fractalops/uatu/internal/eventbus"
	"github.com/fractalops/uatu/internal/handler"
	"github.com/fractalops/uatu/internal/investigate"
	"github.com/fractalops/uatu/internal/model"
	"github.com/fractalops/uatu/internal/output"
	"github.com/fractalops/uatu/internal/probe"
	"github.com/fractalops/uatu/internal/provider"
	"github.com/fractalops/uatu/internal/telemetry"
	"github.com/fractalops/uatu/internal/watcher"
)

// detectorInterval is the cadence of the periodic full rule-table pass
// (anomaly.Detector), distinct from the four fast per-signal Watchers
// which each run their own simpler threshold check on their own
// cadence.
const detectorInterval = 10 * time.Second

// detectorTopics names every topic the detector's own Detect() call can
// publish to; watch subscribes every standing handler to these in
// addition to the four Watchers' own topics, since eventbus.Bus has no
// wildcard subscription.
var detectorTopics = []string{
	"anomaly.cpu_spike",
	"anomaly.memory_spike",
	"anomaly.memory_leak",
	"anomaly.new_process",
	"anomaly.zombie_process",
}

// watcherTopics names every topic a Watcher publishes to directly.
var watcherTopics = []string{
	"anomaly.cpu",
	"anomaly.memory",
	"anomaly.load",
	"anomaly.process_crash",
	"anomaly.process_restart",
	"anomaly.process_crash_loop",
}

func newWatchCmd() *cobra.Command {
	var (
		configPath         string
		baselineMinutes    int
		investigateEnabled bool
		investigateLevel   string
	)

	watchCmd := &cobra.Command{
		Use:   "watch",
		Short: "Start the detection pipeline: sample, detect anomalies, optionally investigate",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			log, err := newLogger(cfg.Logging)
			if err != nil {
				return err
			}
			defer log.Sync() //nolint:errcheck

			dir, err := dataDir()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			var metrics *telemetry.Metrics
			if cfg.Telemetry.Enabled {
				metrics = telemetry.New()
				go func() {
					if err := metrics.Serve(ctx, cfg.Telemetry.Addr); err != nil {
						log.Warnw("telemetry server stopped", "error", err)
					}
				}()
			}

			p := probe.NewLinuxProbe("/proc", "/sys")

			progress := output.NewProgress(true)
			progress.Log("learning baseline over %d minute(s)...", baselineMinutes)
			learner := baseline.NewLearner(p)
			baselineSnap, err := learner.Learn(ctx, time.Duration(baselineMinutes)*time.Minute, 5*time.Second)
			if err != nil {
				return fmt.Errorf("baseline: %w", err)
			}
			progress.Log("baseline learned: cpu=%.1f%% mem=%.1f%% load=%.2f",
				baselineSnap.CPUPercent, baselineSnap.MemoryPercent, baselineSnap.Load1Min)

			bus := eventbus.New(log, metrics)

			cpuWatcher := watcher.NewCPUWatcher(log, p, bus)
			memWatcher := watcher.NewMemoryWatcher(log, p, bus)
			loadWatcher := watcher.NewLoadWatcher(log, p, bus)
			procWatcher := watcher.NewProcessWatcher(log, p, bus)
			for _, w := range []watcher.SetBaseline{cpuWatcher, memWatcher, loadWatcher} {
				w.SetBaseline(baselineSnap)
			}

			state := model.NewWatcherState()
			state.Baseline = &baselineSnap
			detector := anomaly.NewDetector(anomaly.Thresholds{
				CPUSpikeRatio:    cfg.Thresholds.CPUSpikeRatio,
				CPUCriticalAbs:   cfg.Thresholds.CPUCriticalAbs,
				MemSpikeRatio:    cfg.Thresholds.MemSpikeRatio,
				MemCriticalAbs:   cfg.Thresholds.MemCriticalAbs,
				LeakWindow:       cfg.Thresholds.LeakWindow,
				LeakMonotonicPct: cfg.Thresholds.LeakMonotonicPct,
				NewProcCPUPct:    cfg.Thresholds.NewProcCPUPct,
				NewProcMemMB:     cfg.Thresholds.NewProcMemMB,
			})

			eventLogger, err := handler.NewEventLogger(dir + "/events.jsonl")
			if err != nil {
				return fmt.Errorf("event logger: %w", err)
			}
			defer eventLogger.Close()

			console := handler.NewConsoleHandler(os.Stderr)
			rateLimiter := handler.NewRateLimiter(60, nil)

			allTopics := append(append([]string{}, watcherTopics...), detectorTopics...)
			for _, topic := range allTopics {
				bus.Subscribe(topic, eventLogger.OnEvent)
				bus.Subscribe(topic, console.OnEvent)
				bus.Subscribe(topic, rateLimiter.OnEvent)
			}

			var orchestrator *investigate.Orchestrator
			if investigateEnabled {
				minSeverity, err := model.ParseSeverity(investigateLevel)
				if err != nil {
					return fmt.Errorf("--investigate-level: %w", err)
				}
				orchestrator, err = buildOrchestrator(log, p, dir, metrics, cfg, minSeverity)
				if err != nil {
					return err
				}
				dispatcher := handler.NewInvestigationDispatcher(orchestrator)
				for _, topic := range allTopics {
					bus.Subscribe(topic, dispatcher.OnEvent)
				}
				go orchestrator.Run(ctx)
			}

			go cpuWatcher.Start(ctx)
			go memWatcher.Start(ctx)
			go loadWatcher.Start(ctx)
			go procWatcher.Start(ctx)
			go runDetectorLoop(ctx, p, detector, state, bus)

			progress.Log("watching (ctrl-c to stop)...")
			<-ctx.Done()
			if orchestrator != nil {
				orchestrator.Stop()
			}
			cpuWatcher.Stop()
			memWatcher.Stop()
			loadWatcher.Stop()
			procWatcher.Stop()

			return errInterrupted
		},
	}

	watchCmd.Flags().StringVar(&configPath, "config", "", "config file path (default: ~/.config/uatu/config.yaml)")
	watchCmd.Flags().IntVar(&baselineMinutes, "baseline", 2, "minutes to spend learning the baseline before watching")
	watchCmd.Flags().BoolVar(&investigateEnabled, "investigate", false, "investigate anomalies with the configured LLM provider")
	watchCmd.Flags().StringVar(&investigateLevel, "investigate-level", "warning", "minimum severity to investigate: info, warning, error, critical")

	return watchCmd
}

// runDetectorLoop samples the host on detectorInterval, runs the full
// rule table against each sample, then pushes the sample into state's
// history, and publishes whatever anomaly.Detector.Detect returned — the slower, exhaustive
// companion to the four fast per-signal Watchers.
func runDetectorLoop(ctx context.Context, p probe.Probe, detector *anomaly.Detector, state *model.WatcherState, bus *eventbus.Bus) {
	ticker := time.NewTicker(detectorInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			snap, err := p.Sample(ctx)
			if err != nil {
				continue
			}
			// Detect must run before PushHistory: newProcessRule diffs
			// snap against state.Current (the prior sample), and
			// PushHistory overwrites Current with snap.
			events := detector.Detect(state, snap)
			state.PushHistory(snap)
			for _, event := range events {
				bus.Publish("anomaly."+event.Type.String(), event)
			}
		}
	}
}

// buildOrchestrator wires an investigate.Orchestrator over the
// Anthropic provider, the investigation cache, and the audit log.
// ANTHROPIC_API_KEY must be set in the environment for investigate to
// do anything useful; an empty key is passed through and surfaces as a
// provider error on the first investigation rather than at startup,
// matching spec.md §7's "degrade, don't crash" error taxonomy.
func buildOrchestrator(log *zap.SugaredLogger, p probe.Probe, dir string, metrics *telemetry.Metrics, cfg *config.Config, minSeverity model.Severity) (*investigate.Orchestrator, error) {
	investigationCache := cache.New(log, dir+"/investigation_cache.json")

	llm := provider.New(os.Getenv("ANTHROPIC_API_KEY"), cfg.Investigation.Model, cfg.Investigation.MaxTokens, cfg.Investigation.Temperature)

	audit, err := investigate.NewAuditLog(dir + "/investigations.jsonl")
	if err != nil {
		return nil, fmt.Errorf("investigation audit log: %w", err)
	}

	reporter := investigate.NewConsoleReporter(os.Stdout)

	return investigate.New(log, p, investigationCache, llm, reporter, audit, metrics, investigate.Options{
		MinSeverity:     minSeverity,
		Concurrency:     cfg.Investigation.Concurrency,
		ProviderTimeout: cfg.Investigation.ProviderTimeout,
	}), nil
}
