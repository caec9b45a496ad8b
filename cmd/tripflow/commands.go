package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/tripflow/tripflow/pkg/adapters"
	"github.com/tripflow/tripflow/pkg/baseline"
	"github.com/tripflow/tripflow/pkg/config"
	"github.com/tripflow/tripflow/pkg/errors"
	"github.com/tripflow/tripflow/pkg/export"
	"github.com/tripflow/tripflow/pkg/generators"
	"github.com/tripflow/tripflow/pkg/recall"
	"github.com/tripflow/tripflow/pkg/state"
	"github.com/tripflow/tripflow/pkg/tui"
	"github.com/tripflow/tripflow/pkg/watch"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the engine over a trips CSV",
	Long: `Run the hot-path engine over a trips CSV file.

Shedding is controlled by --shed-mode:
  off     admit everything (baseline behavior)
  event   drop ingress events probabilistically under overload
  hybrid  additionally tighten the Kleene cap under sustained overload

Examples:
  tripflow run -i trips.csv
  tripflow run -i trips.csv --shed-mode event --target-latency-ms 20
  tripflow run -i trips.csv --shed-mode hybrid --seed 7 --baseline-key 1a2b3c4d5e6f7a8b`,
	RunE: runRun,
}

var baselineCmd = &cobra.Command{
	Use:   "baseline",
	Short: "Run unshed and store the baseline projection set",
	Long: `Run the engine with shedding off and persist the resulting
projection set to the configured baseline store (local, redis, or s3).
The baseline key is derived from the input path and pattern
configuration, so repeating the command refreshes the same baseline.

Examples:
  tripflow baseline -i trips.csv
  tripflow baseline -i trips.csv --store redis`,
	RunE: runBaseline,
}

var recallCmd = &cobra.Command{
	Use:   "recall",
	Short: "Score a projection CSV against a stored baseline",
	Long: `Compute recall of a run's projection artifact against a baseline:
|run ∩ baseline| / |baseline|.

The baseline comes from --baseline-key (stored baseline) or
--baseline-csv (projection CSV from an unshed run).

Examples:
  tripflow recall --projections tripflow_output/projections_event.csv --baseline-key 1a2b3c4d5e6f7a8b
  tripflow recall --projections run.csv --baseline-csv baseline.csv`,
	RunE: runRecall,
}

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate a synthetic trips CSV",
	Long: `Generate a seeded synthetic trip stream: chained hot paths toward
the target stations mixed with noise trips, broken chains, and window
violators. The same seed always yields the same stream.

Examples:
  tripflow generate -o trips.csv --events 10000 --gen-seed 42`,
	RunE: runGenerate,
}

var benchCmd = &cobra.Command{
	Use:   "bench",
	Short: "Run a load-injection benchmark over synthetic trips",
	Long: `Run the engine over generated trips with optional burst sleeps to
induce overload, then print the latency summary. Useful for exercising
the shedding controller without a large input file.

Examples:
  tripflow bench --events 20000 --shed-mode hybrid --burst-every 100 --burst-sleep-ms 50`,
	RunE: runBench,
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Follow a growing trips CSV and process appended rows",
	Long: `Watch a trips CSV being written by another process and stream each
appended row through the engine. Matches are collected as they are
detected; artifacts and the run summary are written on interrupt.

Examples:
  tripflow watch -i live_trips.csv --shed-mode event`,
	RunE: runWatch,
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recorded runs",
	RunE:  runHistory,
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export recorded runs to an XLSX report",
	Long: `Export the run history to an XLSX workbook for analysis.

Examples:
  tripflow export -o runs.xlsx --limit 100`,
	RunE: runExport,
}

func init() {
	for _, cmd := range []*cobra.Command{runCmd, baselineCmd, benchCmd, watchCmd} {
		cmd.Flags().StringVar(&targetStations, "stations", "", "comma-separated target station IDs (default 426,3002,462)")
		cmd.Flags().Int64Var(&windowSeconds, "window", 3600, "pattern window in seconds")
		cmd.Flags().IntVar(&kleeneMax, "kleene-max", 3, "maximum Kleene chain length")
		cmd.Flags().Float64Var(&targetLatencyMs, "target-latency-ms", 25, "shedding EWMA latency target")
		cmd.Flags().Float64Var(&baseDropProb, "drop-prob", 0.1, "base drop probability when overloaded")
		cmd.Flags().Int64Var(&shedSeed, "seed", 1, "PRNG seed for drop decisions")
		cmd.Flags().IntVar(&burstEvery, "burst-every", 0, "sleep every N events (load injection)")
		cmd.Flags().Float64Var(&burstSleepMs, "burst-sleep-ms", 0, "burst sleep in milliseconds")
		cmd.Flags().Float64Var(&perEventMs, "sleep-ms", 0, "per-event sleep in milliseconds")
		cmd.Flags().StringVar(&artifactsDir, "artifacts-dir", "tripflow_output", "artifact output directory")
		cmd.Flags().StringVar(&projectionsCSV, "projections-csv", "", "projection artifact path override")
		cmd.Flags().StringVar(&latencyCSV, "latency-csv", "", "latency artifact path override")
		cmd.Flags().StringVar(&countersCSV, "counters-csv", "", "counters artifact path override")
		cmd.Flags().StringVar(&latencyArrow, "latency-arrow", "", "also export latency samples as Arrow IPC")
	}

	runCmd.Flags().StringVarP(&inputFile, "input", "i", "", "trips CSV path (required)")
	runCmd.Flags().Int64Var(&maxEvents, "max-events", 0, "stop after N events (0 = all)")
	runCmd.Flags().StringVar(&shedMode, "shed-mode", "off", "off | event | hybrid")
	runCmd.Flags().StringVar(&baselineKey, "baseline-key", "", "stored baseline key for recall scoring")
	runCmd.Flags().StringVar(&baselineCSV, "baseline-csv", "", "baseline projection CSV for recall scoring")
	runCmd.Flags().StringVar(&baselineBackend, "store", "local", "baseline store backend: local | redis | s3")
	runCmd.MarkFlagRequired("input")

	baselineCmd.Flags().StringVarP(&inputFile, "input", "i", "", "trips CSV path (required)")
	baselineCmd.Flags().Int64Var(&maxEvents, "max-events", 0, "stop after N events (0 = all)")
	baselineCmd.Flags().StringVar(&baselineBackend, "store", "local", "baseline store backend: local | redis | s3")
	baselineCmd.MarkFlagRequired("input")

	recallCmd.Flags().StringVar(&projectionsCSV, "projections", "", "run projection CSV (required)")
	recallCmd.Flags().StringVar(&baselineKey, "baseline-key", "", "stored baseline key")
	recallCmd.Flags().StringVar(&baselineCSV, "baseline-csv", "", "baseline projection CSV")
	recallCmd.Flags().StringVar(&baselineBackend, "store", "local", "baseline store backend: local | redis | s3")
	recallCmd.MarkFlagRequired("projections")

	generateCmd.Flags().StringVarP(&genOutput, "output", "o", "trips.csv", "output CSV path")
	generateCmd.Flags().IntVar(&genEvents, "events", 10000, "number of trips to generate")
	generateCmd.Flags().Int64Var(&genSeed, "gen-seed", 42, "generator seed")
	generateCmd.Flags().StringVar(&targetStations, "stations", "", "comma-separated target station IDs")

	benchCmd.Flags().IntVar(&genEvents, "events", 20000, "number of trips to generate")
	benchCmd.Flags().Int64Var(&genSeed, "gen-seed", 42, "generator seed")
	benchCmd.Flags().StringVar(&shedMode, "shed-mode", "event", "off | event | hybrid")

	watchCmd.Flags().StringVarP(&inputFile, "input", "i", "", "trips CSV path (required)")
	watchCmd.Flags().StringVar(&shedMode, "shed-mode", "off", "off | event | hybrid")
	watchCmd.MarkFlagRequired("input")

	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "number of runs to list")

	exportCmd.Flags().StringVarP(&reportOutput, "output", "o", "tripflow_runs.xlsx", "report path")
	exportCmd.Flags().IntVar(&historyLimit, "limit", 100, "number of runs to export")
}

func runRun(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	cfg, err := loadConfig(cmd.Flags().Changed)
	if err != nil {
		return err
	}

	f, err := os.Open(inputFile)
	if err != nil {
		return errors.FileNotFound(inputFile)
	}
	defer f.Close()

	tui.PrintHeader(version)
	tui.Section("RUN " + inputFile)
	tui.Info(fmt.Sprintf("mode=%s window=%ds kleene-max=%d target=%.1fms",
		cfg.Shedding.Mode, cfg.Pattern.WindowSeconds, cfg.Pattern.MaxKleene, cfg.Shedding.TargetLatencyMs))

	source := adapters.NewCSVSource(maxEvents)
	bar := tui.NewIngestBar(-1, "ingesting")
	source.OnProgress = func(rows int64) { bar.Set64(rows) }
	defer bar.Clear()

	outcome, err := executePipeline(ctx, cfg, source, f, inputFile)
	if err != nil {
		return err
	}

	if err := scoreRecall(ctx, cfg, outcome); err != nil {
		return err
	}
	reportOutcome(outcome)
	recordRun(cfg, inputFile, outcome)
	return nil
}

func runBaseline(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	cfg, err := loadConfig(cmd.Flags().Changed)
	if err != nil {
		return err
	}
	cfg.Shedding.Mode = config.ModeOff

	f, err := os.Open(inputFile)
	if err != nil {
		return errors.FileNotFound(inputFile)
	}
	defer f.Close()

	tui.PrintHeader(version)
	tui.Section("BASELINE " + inputFile)

	source := adapters.NewCSVSource(maxEvents)
	outcome, err := executePipeline(ctx, cfg, source, f, inputFile)
	if err != nil {
		return err
	}

	store, err := openBaselineStore(ctx, cfg)
	if err != nil {
		return err
	}

	key := baseline.KeyFor(inputFile, cfg.Pattern.TargetEndLocs, cfg.Pattern.WindowSeconds, cfg.Pattern.MaxKleene)
	b := &baseline.Baseline{
		Key:           key,
		InputPath:     inputFile,
		TargetEndLocs: cfg.Pattern.TargetEndLocs,
		WindowSeconds: cfg.Pattern.WindowSeconds,
		MaxKleene:     cfg.Pattern.MaxKleene,
		CreatedAt:     time.Now(),
		Projections:   recall.NewSet(outcome.Result.Projections).Sorted(),
	}
	if err := store.Save(ctx, b); err != nil {
		return err
	}

	reportOutcome(outcome)
	tui.Success(fmt.Sprintf("baseline stored: key=%s backend=%s projections=%d",
		key, store.Name(), len(b.Projections)))
	recordRun(cfg, inputFile, outcome)
	return nil
}

func runRecall(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	cfg, err := loadConfig(cmd.Flags().Changed)
	if err != nil {
		return err
	}

	runSet, err := recall.ReadCSV(projectionsCSV)
	if err != nil {
		return err
	}

	var baseSet recall.Set
	switch {
	case baselineCSV != "":
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
		return errors.InvalidConfig("baseline", "one of --baseline-key or --baseline-csv is required")
	}

	score := recall.Recall(baseSet, runSet)
	fmt.Printf("recall: %.4f (%d baseline, %d run)\n", score, len(baseSet), len(runSet))
	return nil
}

func runGenerate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd.Flags().Changed)
	if err != nil {
		return err
	}

	gen := generators.New(genSeed, cfg.Pattern.TargetEndLocs)
	events := gen.Generate(genEvents)

	f, err := os.Create(genOutput)
	if err != nil {
		return errors.Wrap(err, errors.CodeWriteFailed, "failed to create output file").
			WithContext("path", genOutput)
	}
	defer f.Close()

	if err := generators.WriteCSV(f, events); err != nil {
		return errors.Wrap(err, errors.CodeWriteFailed, "failed to write trips").
			WithContext("path", genOutput)
	}

	tui.Success(fmt.Sprintf("wrote %d trips to %s (seed %d)", len(events), genOutput, genSeed))
	return nil
}

func runBench(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	cfg, err := loadConfig(cmd.Flags().Changed)
	if err != nil {
		return err
	}

	tui.PrintHeader(version)
	tui.Section(fmt.Sprintf("BENCH %d synthetic trips", genEvents))

	gen := generators.New(genSeed, cfg.Pattern.TargetEndLocs)
	source := adapters.NewMemorySource(gen.Generate(genEvents))

	started := time.Now()
	outcome, err := executePipeline(ctx, cfg, source, nil, "synthetic")
	if err != nil {
		return err
	}

	reportOutcome(outcome)
	throughput := float64(outcome.Result.Counters.Ingested) / time.Since(started).Seconds()
	tui.Info(fmt.Sprintf("throughput %.0f events/s", throughput))
	recordRun(cfg, "synthetic", outcome)
	return nil
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	cfg, err := loadConfig(cmd.Flags().Changed)
	if err != nil {
		return err
	}

	tui.PrintHeader(version)
	tui.Section("WATCH " + inputFile)
	tui.Info("streaming appended rows; interrupt to finish")

	source := watch.NewTailSource(inputFile)
	outcome, err := executePipeline(ctx, cfg, source, nil, inputFile)
	if err != nil && !errors.IsCode(err, errors.CodeContextCanceled) {
		return err
	}
	if outcome != nil {
		reportOutcome(outcome)
		recordRun(cfg, inputFile, outcome)
	}
	return nil
}

func runHistory(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	store, err := state.NewStore(cfg.History.Database)
	if err != nil {
		return err
	}
	defer store.Close()

	runs, err := store.ListRuns(historyLimit)
	if err != nil {
		return err
	}

	if len(runs) == 0 {
		tui.Info("no recorded runs")
		return nil
	}
	for _, r := range runs {
		fmt.Printf("%s  %-19s %-7s matches=%-6d recall=%.3f p95=%.2fms  %s\n",
			r.ID[:8], r.CreatedAt.Format("2006-01-02 15:04:05"), r.Mode,
			r.Matches, r.Recall, r.P95Ms, r.InputPath)
	}
	return nil
}

func runExport(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	store, err := state.NewStore(cfg.History.Database)
	if err != nil {
		return err
	}
	defer store.Close()

	runs, err := store.ListRuns(historyLimit)
	if err != nil {
		return err
	}

	if err := export.WriteXLSX(reportOutput, runs); err != nil {
		return err
	}
	tui.Success(fmt.Sprintf("exported %d runs to %s", len(runs), reportOutput))
	return nil
}

// reportOutcome prints counters, latency, and recall for a finished run.
func reportOutcome(outcome *runOutcome) {
	tui.PrintCounters(outcome.Result.Counters)
	tui.PrintLatency(outcome.Summary)
	if outcome.HasRecall {
		tui.Success(fmt.Sprintf("recall %.4f", outcome.Recall))
	}
	if outcome.Result.FinalCap > 0 {
		tui.Info(fmt.Sprintf("final kleene cap %d", outcome.Result.FinalCap))
	}
	tui.Info(fmt.Sprintf("run %s finished in %s", outcome.Result.RunID[:8], outcome.Result.Duration))
}
