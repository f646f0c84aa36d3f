package engine

import (
	"context"
	"math"
	"reflect"
	"testing"
)

func TestPhaseOccupancySumsToVehicleCount(t *testing.T) {
	s := newTestSim(t, Config{CitySize: 8, WrapCity: true, VehicleCount: 5, BaseDemand: 0.4})
	for i := 0; i < 300; i++ {
		s.Step()
		counts := map[VehiclePhase]int{}
		for _, v := range s.vehicles {
			counts[v.Phase]++
		}
		if counts[VehicleIdle]+counts[VehicleDispatched]+counts[VehicleWithRider] != s.VehicleTotal() {
			t.Fatalf("block %d: occupancy %v != vehicle count %d", i, counts, s.VehicleTotal())
		}
	}
}

func TestVehicleCountInvariantWithoutEquilibration(t *testing.T) {
	s := newTestSim(t, Config{CitySize: 8, WrapCity: true, VehicleCount: 6, BaseDemand: 0.5})
	for i := 0; i < 200; i++ {
		s.Step()
		if s.VehicleTotal() != 6 {
			t.Fatalf("block %d: vehicle count drifted to %d", i, s.VehicleTotal())
		}
	}
}

func TestZeroDemandAllIdle(t *testing.T) {
	s := newTestSim(t, Config{CitySize: 8, WrapCity: true, VehicleCount: 4, BaseDemand: 0, IdleVehiclesMoving: true})
	for i := 0; i < 100; i++ {
		s.Step()
	}
	m := s.History().Window(50)
	if m.VehicleFractionP1 != 1 || m.VehicleFractionP2 != 0 || m.VehicleFractionP3 != 0 {
		t.Fatalf("fractions = %v/%v/%v, want 1/0/0", m.VehicleFractionP1, m.VehicleFractionP2, m.VehicleFractionP3)
	}
	if got := s.Results().Metrics["completed_trips"]; got != 0 {
		t.Fatalf("completed trips = %v, want 0", got)
	}
}

func TestZeroVehiclesTripsStayUnassigned(t *testing.T) {
	s := newTestSim(t, Config{CitySize: 8, WrapCity: true, VehicleCount: 0, BaseDemand: 1})
	for i := 0; i < 100; i++ {
		s.Step()
		for _, id := range s.tripOrder {
			if s.trips[id].Phase != TripUnassigned {
				t.Fatalf("block %d: trip %d left UNASSIGNED with no vehicles", i, id)
			}
		}
	}
	if got := s.Results().Metrics["completed_trips"]; got != 0 {
		t.Fatalf("completed trips = %v, want 0", got)
	}
}

func TestDeterministicSeedReproducesMetrics(t *testing.T) {
	cfg := Config{
		CitySize:           8,
		WrapCity:           true,
		VehicleCount:       4,
		BaseDemand:         0.4,
		TimeBlocks:         250,
		Seed:               1337,
		DispatchMethod:     DispatchDefault,
		IdleVehiclesMoving: true,
	}
	run := func() Results {
		s := newTestSim(t, cfg)
		r, err := s.Run(context.Background())
		if err != nil {
			t.Fatalf("run: %v", err)
		}
		return r
	}
	a, b := run(), run()
	if !reflect.DeepEqual(a.Metrics, b.Metrics) {
		t.Fatalf("same seed produced different metrics:\n%v\n%v", a.Metrics, b.Metrics)
	}
}

func TestGarbageCollectionKeepsReferencesValid(t *testing.T) {
	s := newTestSim(t, Config{CitySize: 8, WrapCity: true, VehicleCount: 3, BaseDemand: 0.8})
	for i := 0; i < 300; i++ {
		s.Step()
		for _, v := range s.vehicles {
			if v.TripID == 0 {
				continue
			}
			tr := s.trips[v.TripID]
			if tr == nil {
				t.Fatalf("block %d: vehicle %d references removed trip %d", i, v.ID, v.TripID)
			}
			if tr.Phase != TripWaiting && tr.Phase != TripRiding {
				t.Fatalf("block %d: vehicle %d references trip in phase %s", i, v.ID, tr.Phase)
			}
		}
	}
}

func TestExampleScenarioCompletes(t *testing.T) {
	s := newTestSim(t, Config{
		CitySize:     8,
		WrapCity:     true,
		VehicleCount: 4,
		BaseDemand:   0.2,
		TimeBlocks:   200,
		Seed:         99,
	})
	r, err := s.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	sum := r.Measures.VehicleFractionP1 + r.Measures.VehicleFractionP2 + r.Measures.VehicleFractionP3
	if math.Abs(sum-1) > 1e-9 {
		t.Fatalf("phase fractions sum to %v, want 1", sum)
	}
	if r.Metrics["completed_trips"] < 1 {
		t.Fatalf("completed trips = %v, want >= 1", r.Metrics["completed_trips"])
	}
}

func TestOversaturatedSingleVehicleIsBusy(t *testing.T) {
	s := newTestSim(t, Config{
		CitySize:     6,
		WrapCity:     true,
		VehicleCount: 1,
		BaseDemand:   2.0,
		TimeBlocks:   150,
		Seed:         7,
	})
	r, err := s.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if r.Measures.VehicleFractionP1 > 0.1 {
		t.Fatalf("idle fraction = %v under demand far above capacity, want <= 0.1", r.Measures.VehicleFractionP1)
	}
}

// Vehicle-time / passenger-time conservation: in steady state,
// n*P3 ~ request_rate*mean_ride_time and n*P2 ~ request_rate*mean_wait_time
// (wait here is dominated by the dispatch leg because assignment happens the
// block a request arrives when capacity is free).
func TestConservationIdentities(t *testing.T) {
	s := newTestSim(t, Config{
		CitySize:      8,
		WrapCity:      true,
		VehicleCount:  4,
		BaseDemand:    0.2,
		TimeBlocks:    600,
		ResultsWindow: 500,
		Seed:          21,
	})
	r, err := s.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	m := r.Measures
	n := m.MeanVehicleCount
	completionRate := m.CompletedPerBlock

	within := func(name string, got, want, tol float64) {
		t.Helper()
		if want == 0 {
			t.Fatalf("%s: degenerate identity, no completed trips", name)
		}
		if math.Abs(got-want)/want > tol {
			t.Fatalf("%s: %v vs %v (relative error > %v)", name, got, want, tol)
		}
	}
	within("p3 identity", n*m.VehicleFractionP3, completionRate*m.MeanRideTime, 0.35)
	within("p2 identity", n*m.VehicleFractionP2, completionRate*m.MeanWaitTime, 0.45)
}

func TestRunStopsOnContextCancel(t *testing.T) {
	s := newTestSim(t, Config{CitySize: 8, WrapCity: true, VehicleCount: 2, BaseDemand: 0.1, TimeBlocks: 0})
	ctx, cancel := context.WithCancel(context.Background())
	blocks := 0
	s.OnBlock = func(BlockSnapshot) {
		blocks++
		if blocks == 25 {
			cancel()
		}
	}
	if _, err := s.Run(ctx); err != context.Canceled {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if s.Block() < 25 {
		t.Fatalf("stopped after %d blocks, want >= 25", s.Block())
	}
}

func TestImpulsesApplyAtScheduledBlock(t *testing.T) {
	rate := 1.5
	count := 9
	size := 12
	s := newTestSim(t, Config{
		CitySize:     8,
		WrapCity:     true,
		VehicleCount: 3,
		BaseDemand:   0.2,
		Impulses: []Impulse{
			{Block: 10, RequestRate: &rate},
			{Block: 20, VehicleCount: &count},
			{Block: 30, CitySize: &size},
		},
	})
	for i := 0; i < 40; i++ {
		s.Step()
		switch s.Block() - 1 {
		case 10:
			if s.RequestRate() != rate {
				t.Fatalf("request rate = %v after impulse, want %v", s.RequestRate(), rate)
			}
		case 20:
			if s.VehicleTotal() != count {
				t.Fatalf("vehicle count = %d after impulse, want %d", s.VehicleTotal(), count)
			}
		case 30:
			if s.city.Size != size {
				t.Fatalf("city size = %d after impulse, want %d", s.city.Size, size)
			}
			for _, v := range s.vehicles {
				if v.Loc.X < 0 || v.Loc.X >= size || v.Loc.Y < 0 || v.Loc.Y >= size {
					t.Fatalf("vehicle %d at %v outside resized city", v.ID, v.Loc)
				}
			}
		}
	}
}

func TestCityShrinkImpulseRepositionsVehicles(t *testing.T) {
	size := 4
	s := newTestSim(t, Config{
		CitySize:     16,
		WrapCity:     true,
		VehicleCount: 10,
		BaseDemand:   0.5,
		Impulses:     []Impulse{{Block: 15, CitySize: &size}},
	})
	for i := 0; i < 60; i++ {
		s.Step()
	}
	for _, v := range s.vehicles {
		if v.Loc.X < 0 || v.Loc.X >= s.city.Size || v.Loc.Y < 0 || v.Loc.Y >= s.city.Size {
			t.Fatalf("vehicle %d at %v outside city of size %d", v.ID, v.Loc, s.city.Size)
		}
	}
}

func TestMaxWaitCancelsUnassignedTrips(t *testing.T) {
	s := newTestSim(t, Config{
		CitySize:      8,
		WrapCity:      true,
		VehicleCount:  0,
		BaseDemand:    1,
		MaxWaitBlocks: 5,
	})
	for i := 0; i < 50; i++ {
		s.Step()
	}
	if got := s.Results().Metrics["cancelled_trips"]; got == 0 {
		t.Fatal("no trips cancelled despite zero vehicles and a max-wait policy")
	}
	for _, id := range s.tripOrder {
		if s.trips[id].PhaseTime[TripUnassigned] > 6 {
			t.Fatalf("trip %d waited %d blocks past the cancellation bound", id, s.trips[id].PhaseTime[TripUnassigned])
		}
	}
}

func TestValidateRejectsBadConfigs(t *testing.T) {
	cases := []struct {
		name string
		cfg  Config
	}{
		{"odd city", Config{CitySize: 7}},
		{"negative vehicles", Config{CitySize: 8, VehicleCount: -1}},
		{"min over max", Config{CitySize: 8, MinTripDistance: 6, MaxTripDistance: 2}},
		{"supply without wage", Config{CitySize: 8, Equilibration: EquilibrationConfig{Method: EquilibrationSupply, Price: 1}}},
		{"price without elasticity", Config{CitySize: 8, Equilibration: EquilibrationConfig{Method: EquilibrationPrice, Price: 1}}},
		{"bad target wait fraction", Config{CitySize: 8, Equilibration: EquilibrationConfig{Method: EquilibrationWaitFraction, Price: 1, TargetWaitFraction: 1.5, DemandElasticity: 1}}},
	}
	for _, tc := range cases {
		if _, err := New(tc.cfg); err == nil {
			t.Fatalf("%s: config accepted, want error", tc.name)
		}
	}
}
