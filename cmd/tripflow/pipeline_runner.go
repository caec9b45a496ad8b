package main

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/tripflow/tripflow/internal/clock"
	"github.com/tripflow/tripflow/internal/model"
	"github.com/tripflow/tripflow/pkg/adapters"
	"github.com/tripflow/tripflow/pkg/baseline"
	"github.com/tripflow/tripflow/pkg/cep"
	"github.com/tripflow/tripflow/pkg/config"
	"github.com/tripflow/tripflow/pkg/errors"
	"github.com/tripflow/tripflow/pkg/logging"
	"github.com/tripflow/tripflow/pkg/metrics"
	"github.com/tripflow/tripflow/pkg/recall"
	"github.com/tripflow/tripflow/pkg/shed"
	"github.com/tripflow/tripflow/pkg/state"
	"github.com/tripflow/tripflow/pkg/stream"
	"github.com/tripflow/tripflow/pkg/telemetry"
	"github.com/tripflow/tripflow/pkg/tui"
)

// loadConfig merges the config file, env, and command-line flags, then
// validates. Flag values override only when the user set them.
func loadConfig(flagsChanged func(string) bool) (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	if flagsChanged("stations") && targetStations != "" {
		locs, err := parseStations(targetStations)
		if err != nil {
			return nil, err
		}
		cfg.Pattern.TargetEndLocs = locs
	}
	if flagsChanged("window") {
		cfg.Pattern.WindowSeconds = windowSeconds
	}
	if flagsChanged("kleene-max") {
		cfg.Pattern.MaxKleene = kleeneMax
	}
	if flagsChanged("shed-mode") {
		cfg.Shedding.Mode = shedMode
	}
	if flagsChanged("target-latency-ms") {
		cfg.Shedding.TargetLatencyMs = targetLatencyMs
	}
	if flagsChanged("drop-prob") {
		cfg.Shedding.BaseDropProb = baseDropProb
	}
	if flagsChanged("seed") {
		cfg.Shedding.Seed = shedSeed
	}
	if flagsChanged("burst-every") {
		cfg.Burst.BurstEvery = burstEvery
	}
	if flagsChanged("burst-sleep-ms") {
		cfg.Burst.BurstSleepMs = burstSleepMs
	}
	if flagsChanged("sleep-ms") {
		cfg.Burst.PerEventMs = perEventMs
	}
	if flagsChanged("artifacts-dir") {
		cfg.Artifacts.Dir = artifactsDir
	}
	if flagsChanged("store") {
		cfg.Baseline.Backend = baselineBackend
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func parseStations(csv string) ([]int64, error) {
	var locs []int64
	for _, part := range strings.Split(csv, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		v, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, errors.InvalidConfig("stations", "station IDs must be integers").
				WithContext("value", part)
		}
		locs = append(locs, v)
	}
	return locs, nil
}

// runOutcome bundles what a pipeline execution produced.
type runOutcome struct {
	Result    *stream.Result
	Summary   metrics.Summary
	Recall    float64
	HasRecall bool
}

// executePipeline wires source -> shedder -> matcher -> sinks and runs
// to completion. The source feeds a bounded channel from its own
// goroutine; the event-processing path is a single logical worker.
func executePipeline(ctx context.Context, cfg *config.Config, source stream.Source, input io.Reader, inputPath string) (*runOutcome, error) {
	log := logging.NewLogger()
	defer log.Sync()

	runID := uuid.NewString()

	var shutdownTelemetry func(context.Context) error
	exporter := telemetry.NewOTLPExporter(telemetry.OTLPConfig{})
	if cfg.Telemetry.Enabled {
		otlpCfg := telemetry.DefaultOTLPConfig("tripflow")
		if cfg.Telemetry.Endpoint != "" {
			otlpCfg.Endpoint = cfg.Telemetry.Endpoint
		}
		exporter = telemetry.NewOTLPExporter(otlpCfg)
		shutdown, err := exporter.Init(ctx)
		if err != nil {
			log.Warnw("telemetry disabled", "error", err)
		} else {
			shutdownTelemetry = shutdown
		}
	}
	ctx, runSpan := exporter.StartRunSpan(ctx, runID, inputPath, cfg.Shedding.Mode)

	preds := cep.NewPredicates(cfg.Pattern.Targets(), cfg.Pattern.WindowSeconds)
	matcher := cep.NewMatcher(preds, clock.System{})
	controller := shed.NewController(shed.Config{
		Mode:            shed.Mode(cfg.Shedding.Mode),
		TargetLatencyMs: cfg.Shedding.TargetLatencyMs,
		BaseDropProb:    cfg.Shedding.BaseDropProb,
		MaxKleene:       cfg.Pattern.MaxKleene,
		Seed:            cfg.Shedding.Seed,
	}, log)

	sink := adapters.NewProjectionSink(artifactPath(cfg, projectionsCSV, "projections"))
	burst := stream.BurstOptions{
		Every:    cfg.Burst.BurstEvery,
		Sleep:    time.Duration(cfg.Burst.BurstSleepMs * float64(time.Millisecond)),
		PerEvent: time.Duration(cfg.Burst.PerEventMs * float64(time.Millisecond)),
	}
	driver := stream.NewDriver(runID, matcher, controller, clock.System{}, log, burst, sink)

	events := make(chan *model.Event, 4096)
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer close(events)
		return source.Read(gctx, input, events)
	})

	var result *stream.Result
	g.Go(func() error {
		var err error
		result, err = driver.Run(gctx, events)
		return err
	})

	runErr := g.Wait()
	runSpan.End()
	if shutdownTelemetry != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(shutdownCtx); err != nil {
			log.Warnw("telemetry shutdown failed", "error", err)
		}
	}
	if runErr != nil {
		// An interrupt still yields partial artifacts; anything else
		// (fatal invariant, sink failure) aborts the run.
		if result == nil || !isCancellation(runErr) {
			return nil, runErr
		}
		log.Infow("run interrupted, writing partial artifacts", "run_id", runID)
	}

	result.Counters.Malformed += source.Skipped()

	if err := sink.Close(); err != nil {
		return nil, err
	}
	if err := writeArtifacts(cfg, result); err != nil {
		return nil, err
	}
	if err := metrics.WriteLatencyCSV(artifactPath(cfg, "", "detection_latency"), sink.DetectionLatencies()); err != nil {
		return nil, err
	}

	outcome := &runOutcome{
		Result:  result,
		Summary: metrics.Summarize(result.Latencies),
	}
	return outcome, nil
}

// isCancellation reports whether err stems from context cancellation,
// wrapped or raw.
func isCancellation(err error) bool {
	return errors.IsCode(err, errors.CodeContextCanceled) ||
		err == context.Canceled || err == context.DeadlineExceeded
}

// artifactPath resolves an artifact path: explicit flag wins, otherwise
// a mode-tagged default under the artifacts directory.
func artifactPath(cfg *config.Config, explicit, kind string) string {
	if explicit != "" {
		return explicit
	}
	tag := cfg.Shedding.Mode
	return filepath.Join(cfg.Artifacts.Dir, fmt.Sprintf("%s_%s.csv", kind, tag))
}

func writeArtifacts(cfg *config.Config, result *stream.Result) error {
	if err := metrics.WriteLatencyCSV(artifactPath(cfg, latencyCSV, "latency_samples"), result.Latencies); err != nil {
		return err
	}
	if err := metrics.WriteCountersCSV(artifactPath(cfg, countersCSV, "counters"), result.Counters); err != nil {
		return err
	}
	if latencyArrow != "" {
		if err := adapters.WriteLatencyArrow(latencyArrow, result.Latencies); err != nil {
			return err
		}
	}
	return nil
}

// openBaselineStore builds the configured baseline backend.
func openBaselineStore(ctx context.Context, cfg *config.Config) (baseline.Store, error) {
	switch cfg.Baseline.Backend {
	case "local", "":
		return baseline.NewLocalStore(cfg.Baseline.Dir)
	case "redis":
		rcfg := baseline.DefaultRedisConfig(cfg.Baseline.RedisAddress)
		rcfg.Password = cfg.Baseline.RedisPassword
		rcfg.Database = cfg.Baseline.RedisDB
		if cfg.Baseline.RedisTTL > 0 {
			rcfg.TTL = cfg.Baseline.RedisTTL
		}
		return baseline.NewRedisStore(rcfg)
	case "s3":
		scfg := baseline.DefaultS3Config(cfg.Baseline.S3Bucket)
		scfg.Region = cfg.Baseline.S3Region
		scfg.Endpoint = cfg.Baseline.S3Endpoint
		if cfg.Baseline.S3Prefix != "" {
			scfg.Prefix = cfg.Baseline.S3Prefix
		}
		return baseline.NewS3Store(ctx, scfg)
	default:
		return nil, errors.InvalidConfig("baseline.backend", "must be local, redis, or s3").
			WithContext("backend", cfg.Baseline.Backend)
	}
}

// recordRun persists the run to the history store; failures are logged,
// not fatal, so artifacts survive a missing database.
func recordRun(cfg *config.Config, inputPath string, outcome *runOutcome) {
	if !cfg.History.Enabled {
		return
	}
	store, err := state.NewStore(cfg.History.Database)
	if err != nil {
		tui.Info("history store unavailable: " + err.Error())
		return
	}
	defer store.Close()

	c := outcome.Result.Counters
	rec := &state.RunRecord{
		ID:              outcome.Result.RunID,
		InputPath:       inputPath,
		Mode:            cfg.Shedding.Mode,
		TargetLatencyMs: cfg.Shedding.TargetLatencyMs,
		BaseDropProb:    cfg.Shedding.BaseDropProb,
		Seed:            cfg.Shedding.Seed,
		WindowSeconds:   cfg.Pattern.WindowSeconds,
		MaxKleene:       cfg.Pattern.MaxKleene,
		FinalCap:        outcome.Result.FinalCap,
		Ingested:        c.Ingested,
		Forwarded:       c.Forwarded,
		Dropped:         c.Dropped,
		Malformed:       c.Malformed,
		Matches:         c.Matches,
		Evicted:         c.Evicted,
		Pruned:          c.Pruned,
		Recall:          outcome.Recall,
		P50Ms:           outcome.Summary.P50,
		P95Ms:           outcome.Summary.P95,
		DurationMs:      outcome.Result.Duration.Milliseconds(),
		CreatedAt:       time.Now(),
	}
	if err := store.RecordRun(rec); err != nil {
		tui.Info("failed to record run: " + err.Error())
	}
}

// scoreRecall loads the baseline (by key from the store, or a CSV path)
// and computes recall for the run's projections.
func scoreRecall(ctx context.Context, cfg *config.Config, outcome *runOutcome) error {
	runSet := recall.NewSet(outcome.Result.Projections)

	var baseSet recall.Set
	switch {
	case baselineCSV != "":
		var err error
		baseSet, err = recall.ReadCSV(baselineCSV)
		if err != nil {
			return err
		}
	case baselineKey != "":
		store, err := openBaselineStore(ctx, cfg)
		if err != nil {
			return err
		}
		b, err := store.Load(ctx, baselineKey)
		if err != nil {
			return err
		}
		baseSet = recall.NewSet(b.Projections)
	default:
		return nil
	}

	outcome.Recall = recall.Recall(baseSet, runSet)
	outcome.HasRecall = true
	return nil
}
