package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"syscall"
	"time"

	"github.com/tomslee/ridehail-sub001/internal/persistence/indexdb"
	persistlog "github.com/tomslee/ridehail-sub001/internal/persistence/log"
	"github.com/tomslee/ridehail-sub001/internal/sim/engine"
	"github.com/tomslee/ridehail-sub001/internal/sim/scenario"
	"github.com/tomslee/ridehail-sub001/internal/sim/sequence"
)

func main() {
	var (
		configPath = flag.String("config", "", "scenario yaml (empty for built-in defaults)")
		blocks     = flag.Int("blocks", 0, "override time_blocks (0 keeps the scenario value)")
		seed       = flag.Int64("seed", 0, "override seed (0 keeps the scenario value)")
		dataDir    = flag.String("data", "./data", "runtime data directory")
		disableDB  = flag.Bool("disable_db", false, "disable the sqlite run index")
		parallel   = flag.Int("parallel", 4, "max concurrent sweep runs")
		record     = flag.Bool("record", true, "record per-block history for replay")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[ridehail] ", log.LstdFlags|log.Lmicroseconds)

	sc, err := scenario.Load(*configPath)
	if err != nil {
		logger.Fatalf("load scenario: %v", err)
	}
	if *blocks > 0 {
		sc.TimeBlocks = *blocks
	}
	if *seed != 0 {
		sc.Seed = *seed
	}

	var idx *indexdb.SQLiteIndex
	if !*disableDB {
		idx, err = indexdb.OpenSQLite(filepath.Join(*dataDir, "index.db"))
		if err != nil {
			logger.Fatalf("open index: %v", err)
		}
		defer idx.Close()
	}

	ctx, cancel := signalContext()
	defer cancel()

	if sc.IsSweep() {
		runSweep(ctx, sc, idx, *dataDir, *parallel, *record, logger)
		return
	}
	runSingle(ctx, sc, idx, *dataDir, *record, logger)
}

func runSingle(ctx context.Context, sc scenario.Scenario, idx *indexdb.SQLiteIndex, dataDir string, record bool, logger *log.Logger) {
	cfg, err := sc.Config()
	if err != nil {
		logger.Fatalf("scenario: %v", err)
	}
	sim, err := engine.New(cfg)
	if err != nil {
		logger.Fatalf("engine: %v", err)
	}

	runID := newRunID()
	runDir := filepath.Join(dataDir, "runs", runID)

	var hist *persistlog.HistoryLogger
	if record {
		hist = persistlog.NewHistoryLogger(runDir)
		defer hist.Close()
	}
	if err := idx.RecordRun(runID, sc.Name, sim.Config()); err != nil {
		logger.Printf("index: record run: %v", err)
	}

	sim.OnBlock = func(snap engine.BlockSnapshot) {
		if hist != nil {
			if err := hist.WriteBlock(snap); err != nil {
				logger.Printf("history: %v", err)
			}
		}
		idx.WriteBlock(runID, snap)
	}

	start := time.Now()
	res, err := sim.Run(ctx)
	if err != nil {
		logger.Printf("run stopped early: %v", err)
	}
	logger.Printf("run %s: %d blocks in %s", runID, res.Blocks, time.Since(start).Round(time.Millisecond))

	if err := persistlog.WriteResults(runDir, res); err != nil {
		logger.Printf("write results: %v", err)
	}
	idx.Flush()
	if err := idx.RecordResults(runID, res.Metrics); err != nil {
		logger.Printf("index: record results: %v", err)
	}

	printMetrics(res.Metrics)
}

func runSweep(ctx context.Context, sc scenario.Scenario, idx *indexdb.SQLiteIndex, dataDir string, parallel int, record bool, logger *log.Logger) {
	runs, err := sequence.Expand(sc)
	if err != nil {
		logger.Fatalf("expand sweep: %v", err)
	}
	logger.Printf("sweep %s: %d runs, parallel=%d", sc.Name, len(runs), parallel)

	start := time.Now()
	runs = sequence.Execute(ctx, runs, parallel)
	logger.Printf("sweep done in %s", time.Since(start).Round(time.Millisecond))

	sweepID := newRunID()
	fmt.Printf("%8s %8s %12s %12s %12s %12s\n",
		"vehicles", "demand", "p3_fraction", "wait_time", "wait_frac", "completed")
	for _, r := range runs {
		runID := fmt.Sprintf("%s_%03d", sweepID, r.Index)
		if r.Err != nil {
			logger.Printf("run %s (n=%d r=%.2f): %v", runID, r.VehicleCount, r.RequestRate, r.Err)
			continue
		}
		if record {
			if err := persistlog.WriteResults(filepath.Join(dataDir, "runs", runID), r.Results); err != nil {
				logger.Printf("write results: %v", err)
			}
		}
		if err := idx.RecordRun(runID, sc.Name, r.Config); err != nil {
			logger.Printf("index: record run: %v", err)
		}
		if err := idx.RecordResults(runID, r.Results.Metrics); err != nil {
			logger.Printf("index: record results: %v", err)
		}
		m := r.Results.Measures
		fmt.Printf("%8d %8.2f %12.3f %12.2f %12.3f %12.2f\n",
			r.VehicleCount, r.RequestRate,
			m.VehicleFractionP3, m.MeanWaitTime, m.WaitFraction, m.CompletedPerBlock)
	}
}

func printMetrics(metrics map[string]float64) {
	names := make([]string, 0, len(metrics))
	for name := range metrics {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Printf("%-28s %12.4f\n", name, metrics[name])
	}
}

func newRunID() string {
	return "run_" + time.Now().UTC().Format("20060102_150405")
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}
