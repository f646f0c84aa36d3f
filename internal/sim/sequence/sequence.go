// Package sequence expands a swept scenario into independent runs and
// executes them. Runs share no mutable state: each gets its own simulation,
// RNG stream, and derived seed, so they are executed concurrently without any
// synchronization beyond collecting results.
package sequence

import (
	"context"
	"sync"

	"github.com/tomslee/ridehail-sub001/internal/sim/engine"
	"github.com/tomslee/ridehail-sub001/internal/sim/scenario"
)

// Run is one point of a sweep.
type Run struct {
	Index        int
	VehicleCount int
	RequestRate  float64
	Config       engine.Config

	Results engine.Results
	Err     error
}

// Expand produces the cross product of the sweep lists over the base
// scenario. A missing list reuses the base value. Seeds are derived from the
// base seed by run index so each run is reproducible on its own.
func Expand(sc scenario.Scenario) ([]Run, error) {
	base, err := sc.Config()
	if err != nil {
		return nil, err
	}

	counts := []int{base.VehicleCount}
	rates := []float64{base.BaseDemand}
	if sc.Sweep != nil {
		if len(sc.Sweep.VehicleCounts) > 0 {
			counts = sc.Sweep.VehicleCounts
		}
		if len(sc.Sweep.RequestRates) > 0 {
			rates = sc.Sweep.RequestRates
		}
	}

	runs := make([]Run, 0, len(counts)*len(rates))
	for _, n := range counts {
		for _, r := range rates {
			cfg := base
			cfg.VehicleCount = n
			cfg.BaseDemand = r
			if base.Seed != 0 {
				cfg.Seed = base.Seed + int64(len(runs))
			}
			runs = append(runs, Run{
				Index:        len(runs),
				VehicleCount: n,
				RequestRate:  r,
				Config:       cfg,
			})
		}
	}
	return runs, nil
}

// Execute runs every point, at most parallel at a time (<=0 means all at
// once). The returned slice preserves run order regardless of completion
// order.
func Execute(ctx context.Context, runs []Run, parallel int) []Run {
	if parallel <= 0 || parallel > len(runs) {
		parallel = len(runs)
	}
	sem := make(chan struct{}, parallel)
	var wg sync.WaitGroup
	for i := range runs {
		wg.Add(1)
		go func(r *Run) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			s, err := engine.New(r.Config)
			if err != nil {
				r.Err = err
				return
			}
			r.Results, r.Err = s.Run(ctx)
		}(&runs[i])
	}
	wg.Wait()
	return runs
}
