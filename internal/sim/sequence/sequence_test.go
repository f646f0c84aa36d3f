package sequence

import (
	"context"
	"testing"

	"github.com/tomslee/ridehail-sub001/internal/sim/scenario"
)

func baseScenario(t *testing.T) scenario.Scenario {
	t.Helper()
	sc, err := scenario.Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	sc.TimeBlocks = 60
	sc.Seed = 42
	return sc
}

func TestExpandCrossProduct(t *testing.T) {
	sc := baseScenario(t)
	sc.Sweep = &scenario.SweepSpec{
		VehicleCounts: []int{2, 4, 8},
		RequestRates:  []float64{0.2, 0.6},
	}

	runs, err := Expand(sc)
	if err != nil {
		t.Fatalf("expand: %v", err)
	}
	if len(runs) != 6 {
		t.Fatalf("expanded %d runs, want 6", len(runs))
	}
	for i, r := range runs {
		if r.Index != i {
			t.Fatalf("run %d: index %d", i, r.Index)
		}
		if r.Config.VehicleCount != r.VehicleCount || r.Config.BaseDemand != r.RequestRate {
			t.Fatalf("run %d: config mismatch %+v", i, r)
		}
		if r.Config.Seed != 42+int64(i) {
			t.Fatalf("run %d: seed %d", i, r.Config.Seed)
		}
	}
}

func TestExpandWithoutSweepYieldsOneRun(t *testing.T) {
	sc := baseScenario(t)
	runs, err := Expand(sc)
	if err != nil {
		t.Fatalf("expand: %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("expanded %d runs, want 1", len(runs))
	}
	if runs[0].VehicleCount != sc.VehicleCount || runs[0].RequestRate != sc.BaseDemand {
		t.Fatalf("run: %+v", runs[0])
	}
}

func TestExpandZeroSeedLeavesSeedsUnset(t *testing.T) {
	sc := baseScenario(t)
	sc.Seed = 0
	sc.Sweep = &scenario.SweepSpec{VehicleCounts: []int{2, 4}}
	runs, err := Expand(sc)
	if err != nil {
		t.Fatalf("expand: %v", err)
	}
	for i, r := range runs {
		if r.Config.Seed != 0 {
			t.Fatalf("run %d: seed %d, want 0", i, r.Config.Seed)
		}
	}
}

func TestExecuteRunsEveryPoint(t *testing.T) {
	sc := baseScenario(t)
	sc.Sweep = &scenario.SweepSpec{
		VehicleCounts: []int{2, 4},
		RequestRates:  []float64{0.2, 0.4},
	}
	runs, err := Expand(sc)
	if err != nil {
		t.Fatalf("expand: %v", err)
	}

	runs = Execute(context.Background(), runs, 2)
	for i, r := range runs {
		if r.Err != nil {
			t.Fatalf("run %d: %v", i, r.Err)
		}
		if r.Results.Blocks != 60 {
			t.Fatalf("run %d: %d blocks", i, r.Results.Blocks)
		}
	}
}

func TestExecuteIsDeterministicPerRun(t *testing.T) {
	sc := baseScenario(t)
	sc.Sweep = &scenario.SweepSpec{VehicleCounts: []int{3, 5}}

	first, err := Expand(sc)
	if err != nil {
		t.Fatalf("expand: %v", err)
	}
	second, err := Expand(sc)
	if err != nil {
		t.Fatalf("expand: %v", err)
	}

	first = Execute(context.Background(), first, 1)
	second = Execute(context.Background(), second, 2)
	for i := range first {
		if first[i].Err != nil || second[i].Err != nil {
			t.Fatalf("run %d: %v %v", i, first[i].Err, second[i].Err)
		}
		fm, sm := first[i].Results.Metrics, second[i].Results.Metrics
		for name, v := range fm {
			if sm[name] != v {
				t.Fatalf("run %d: metric %s differs: %v vs %v", i, name, v, sm[name])
			}
		}
	}
}

func TestExecuteHonorsCancellation(t *testing.T) {
	sc := baseScenario(t)
	sc.TimeBlocks = 0 // open-ended
	runs, err := Expand(sc)
	if err != nil {
		t.Fatalf("expand: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	runs = Execute(ctx, runs, 1)
	if runs[0].Err != context.Canceled {
		t.Fatalf("err = %v, want context.Canceled", runs[0].Err)
	}
}
