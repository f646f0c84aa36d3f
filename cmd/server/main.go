package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/tomslee/ridehail-sub001/internal/persistence/indexdb"
	persistlog "github.com/tomslee/ridehail-sub001/internal/persistence/log"
	"github.com/tomslee/ridehail-sub001/internal/protocol"
	"github.com/tomslee/ridehail-sub001/internal/sim/engine"
	"github.com/tomslee/ridehail-sub001/internal/sim/scenario"
	"github.com/tomslee/ridehail-sub001/internal/transport/ws"
)

func main() {
	var (
		addr       = flag.String("addr", ":8080", "http listen address")
		configPath = flag.String("config", "", "scenario yaml (empty for built-in defaults)")
		dataDir    = flag.String("data", "./data", "runtime data directory")
		seed       = flag.Int64("seed", 0, "override seed (0 keeps the scenario value)")
		blocks     = flag.Int("blocks", 0, "override time_blocks (0 keeps the scenario value; open-ended runs use -open)")
		openEnded  = flag.Bool("open", false, "run without a block horizon until stopped")
		rate       = flag.Float64("rate", 4, "blocks per second")
		disableDB  = flag.Bool("disable_db", false, "disable the sqlite run index")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lmicroseconds)

	sc, err := scenario.Load(*configPath)
	if err != nil {
		logger.Fatalf("load scenario: %v", err)
	}
	if *seed != 0 {
		sc.Seed = *seed
	}
	if *blocks > 0 {
		sc.TimeBlocks = *blocks
	}
	if *openEnded {
		sc.TimeBlocks = 0
	}
	if *rate <= 0 {
		logger.Fatalf("rate must be positive")
	}

	cfg, err := sc.Config()
	if err != nil {
		logger.Fatalf("scenario: %v", err)
	}
	sim, err := engine.New(cfg)
	if err != nil {
		logger.Fatalf("engine: %v", err)
	}
	cfg = sim.Config()

	runID := "run_" + time.Now().UTC().Format("20060102_150405")
	runDir := filepath.Join(*dataDir, "runs", runID)

	var idx *indexdb.SQLiteIndex
	if !*disableDB {
		idx, err = indexdb.OpenSQLite(filepath.Join(*dataDir, "index.db"))
		if err != nil {
			logger.Fatalf("open index: %v", err)
		}
		defer idx.Close()
	}
	if err := idx.RecordRun(runID, sc.Name, cfg); err != nil {
		logger.Printf("index: record run: %v", err)
	}

	hist := persistlog.NewHistoryLogger(runDir)
	defer hist.Close()

	hub := ws.NewHub(protocol.RunMsg{
		Type:            protocol.TypeRun,
		ProtocolVersion: protocol.Version,
		RunID:           runID,
		Scenario:        sc.Name,
		CitySize:        cfg.CitySize,
		VehicleCount:    cfg.VehicleCount,
		BaseDemand:      cfg.BaseDemand,
		TimeBlocks:      cfg.TimeBlocks,
		Seed:            cfg.Seed,
	}, logger)

	ctx, cancel := signalContext()
	defer cancel()

	loop := &runLoop{
		sim:      sim,
		hub:      hub,
		hist:     hist,
		idx:      idx,
		runID:    runID,
		runDir:   runDir,
		interval: time.Duration(float64(time.Second) / *rate),
		logger:   logger,
	}
	loopDone := make(chan struct{})
	go func() {
		defer close(loopDone)
		loop.run(ctx)
	}()

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.HandleFunc("/metrics", loop.metricsHandler(runID))
	mux.HandleFunc("/v1/ws", ws.NewServer(hub, logger).Handler())

	if envBool("RH_ENABLE_PPROF_HTTP", false) {
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	} else {
		logger.Printf("pprof endpoints disabled (RH_ENABLE_PPROF_HTTP=false)")
	}

	srv := &http.Server{
		Addr:              *addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		select {
		case <-ctx.Done():
		case <-loopDone:
		}
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		_ = srv.Shutdown(ctx2)
	}()

	logger.Printf("run %s: scenario=%s city=%d vehicles=%d demand=%.2f listening on %s",
		runID, sc.Name, cfg.CitySize, cfg.VehicleCount, cfg.BaseDemand, *addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("ListenAndServe: %v", err)
	}
	<-loopDone
}

// runLoop owns the simulation. All stepping happens on its goroutine;
// observers see only snapshots.
type runLoop struct {
	sim      *engine.Simulation
	hub      *ws.Hub
	hist     *persistlog.HistoryLogger
	idx      *indexdb.SQLiteIndex
	runID    string
	runDir   string
	interval time.Duration
	logger   *log.Logger

	latest atomic.Pointer[engine.BlockSnapshot]
	paused atomic.Bool
}

func (l *runLoop) run(ctx context.Context) {
	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	horizon := l.sim.Config().TimeBlocks
	for {
		select {
		case <-ctx.Done():
			l.finish("signal")
			return
		case ctrl := <-l.hub.Ctrl():
			switch ctrl.Action {
			case protocol.CtrlPause:
				l.paused.Store(true)
			case protocol.CtrlResume:
				l.paused.Store(false)
			case protocol.CtrlStep:
				if l.paused.Load() {
					if !l.step(horizon) {
						l.finish("horizon")
						return
					}
				}
			case protocol.CtrlStop:
				l.finish("stop")
				return
			}
		case <-ticker.C:
			if l.paused.Load() {
				continue
			}
			if !l.step(horizon) {
				l.finish("horizon")
				return
			}
		}
	}
}

// step advances one block and publishes it. Returns false once the
// horizon is reached.
func (l *runLoop) step(horizon int) bool {
	l.sim.Step()
	snap := l.sim.Snapshot()
	l.latest.Store(&snap)

	l.hub.Broadcast(protocol.FrameMsg{
		Type:            protocol.TypeFrame,
		ProtocolVersion: protocol.Version,
		Snapshot:        snap,
	})
	if err := l.hist.WriteBlock(snap); err != nil {
		l.logger.Printf("history: %v", err)
	}
	l.idx.WriteBlock(l.runID, snap)

	return horizon == 0 || snap.Block < horizon
}

func (l *runLoop) finish(reason string) {
	res := l.sim.Results()
	l.logger.Printf("run %s finished (%s) after %d blocks, %d frames dropped",
		l.runID, reason, res.Blocks, l.hub.Dropped())

	if err := l.hist.Close(); err != nil {
		l.logger.Printf("history close: %v", err)
	}
	if err := persistlog.WriteResults(l.runDir, res); err != nil {
		l.logger.Printf("write results: %v", err)
	}
	l.idx.Flush()
	if err := l.idx.RecordResults(l.runID, res.Metrics); err != nil {
		l.logger.Printf("index: record results: %v", err)
	}

	l.hub.Finish(protocol.ResultMsg{
		Type:            protocol.TypeResult,
		ProtocolVersion: protocol.Version,
		RunID:           l.runID,
		Blocks:          res.Blocks,
		Metrics:         res.Metrics,
	})
}

func (l *runLoop) metricsHandler(runID string) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("Content-Type", "text/plain; version=0.0.4")

		snap := l.latest.Load()
		if snap == nil {
			fmt.Fprintf(rw, "# no blocks yet\n")
			return
		}

		// Minimal Prometheus exposition format.
		fmt.Fprintf(rw, "# HELP ridehail_block Current simulation block.\n")
		fmt.Fprintf(rw, "# TYPE ridehail_block gauge\n")
		fmt.Fprintf(rw, "ridehail_block{run=%q} %d\n", runID, snap.Block)

		fmt.Fprintf(rw, "# HELP ridehail_vehicles Current fleet size.\n")
		fmt.Fprintf(rw, "# TYPE ridehail_vehicles gauge\n")
		fmt.Fprintf(rw, "ridehail_vehicles{run=%q} %d\n", runID, snap.VehicleCount)

		fmt.Fprintf(rw, "# HELP ridehail_request_rate Current requests per block.\n")
		fmt.Fprintf(rw, "# TYPE ridehail_request_rate gauge\n")
		fmt.Fprintf(rw, "ridehail_request_rate{run=%q} %.6f\n", runID, snap.RequestRate)

		fmt.Fprintf(rw, "# HELP ridehail_price Current price per block of ride.\n")
		fmt.Fprintf(rw, "# TYPE ridehail_price gauge\n")
		fmt.Fprintf(rw, "ridehail_price{run=%q} %.6f\n", runID, snap.Price)

		fmt.Fprintf(rw, "# HELP ridehail_vehicle_fraction Rolling vehicle time share by phase.\n")
		fmt.Fprintf(rw, "# TYPE ridehail_vehicle_fraction gauge\n")
		fmt.Fprintf(rw, "ridehail_vehicle_fraction{run=%q,phase=%q} %.6f\n", runID, "P1", snap.Measures.VehicleFractionP1)
		fmt.Fprintf(rw, "ridehail_vehicle_fraction{run=%q,phase=%q} %.6f\n", runID, "P2", snap.Measures.VehicleFractionP2)
		fmt.Fprintf(rw, "ridehail_vehicle_fraction{run=%q,phase=%q} %.6f\n", runID, "P3", snap.Measures.VehicleFractionP3)

		fmt.Fprintf(rw, "# HELP ridehail_mean_wait_time Rolling mean trip wait in blocks.\n")
		fmt.Fprintf(rw, "# TYPE ridehail_mean_wait_time gauge\n")
		fmt.Fprintf(rw, "ridehail_mean_wait_time{run=%q} %.6f\n", runID, snap.Measures.MeanWaitTime)

		fmt.Fprintf(rw, "# HELP ridehail_wait_fraction Rolling wait share of total trip time.\n")
		fmt.Fprintf(rw, "# TYPE ridehail_wait_fraction gauge\n")
		fmt.Fprintf(rw, "ridehail_wait_fraction{run=%q} %.6f\n", runID, snap.Measures.WaitFraction)

		fmt.Fprintf(rw, "# HELP ridehail_paused Whether the run is paused.\n")
		fmt.Fprintf(rw, "# TYPE ridehail_paused gauge\n")
		fmt.Fprintf(rw, "ridehail_paused{run=%q} %d\n", runID, boolGauge(l.paused.Load()))

		fmt.Fprintf(rw, "# HELP ridehail_frames_dropped_total Frames dropped on slow observer sessions.\n")
		fmt.Fprintf(rw, "# TYPE ridehail_frames_dropped_total counter\n")
		fmt.Fprintf(rw, "ridehail_frames_dropped_total{run=%q} %d\n", runID, l.hub.Dropped())
	}
}

func boolGauge(b bool) int {
	if b {
		return 1
	}
	return 0
}

func envBool(name string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(name))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
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
