// TripFlow - Streaming hot-path detection over bike trip data
// Detects Kleene-plus trip chains ending at target stations, with
// latency-driven load shedding.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

// CLI flags
var (
	configPath string
	inputFile  string
	maxEvents  int64

	// Pattern flags
	targetStations string
	windowSeconds  int64
	kleeneMax      int

	// Shedding flags
	shedMode        string
	targetLatencyMs float64
	baseDropProb    float64
	shedSeed        int64

	// Load-injection flags
	burstEvery   int
	burstSleepMs float64
	perEventMs   float64

	// Artifact flags
	artifactsDir   string
	projectionsCSV string
	latencyCSV     string
	countersCSV    string
	latencyArrow   string

	// Baseline/recall flags
	baselineBackend string
	baselineKey     string
	baselineCSV     string

	// Generate flags
	genEvents int
	genSeed   int64
	genOutput string

	// History/export flags
	historyLimit int
	reportOutput string
	verbose      bool
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "tripflow",
	Short: "TripFlow - Streaming hot-path detection with load shedding",
	Long: `TripFlow is a streaming CEP engine that detects chained bike trip
sequences ending at target stations (SEQ(Trip+ a[], Trip b) within a
time window), with a latency-driven load-shedding controller.

Runs produce projection, latency, and counter artifacts; unshed runs
can be stored as baselines and later shedding runs scored for recall.`,
	Version:       fmt.Sprintf("%s (%s)", version, commit),
	SilenceUsage:  true,
	SilenceErrors: true,
}

// signalContext returns a context cancelled on SIGINT/SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "YAML config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(baselineCmd)
	rootCmd.AddCommand(recallCmd)
	rootCmd.AddCommand(generateCmd)
	rootCmd.AddCommand(benchCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(exportCmd)
}
