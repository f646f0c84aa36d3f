package engine

import "testing"

func TestHistoryCumulativeCountersAreMonotonic(t *testing.T) {
	s := newTestSim(t, Config{CitySize: 8, WrapCity: true, VehicleCount: 4, BaseDemand: 0.5, TimeBlocks: 100})
	for i := 0; i < 100; i++ {
		s.Step()
	}
	h := s.History()
	for name, a := range map[string][]int{
		"vehicle_time_p1":    h.VehicleTimeP1,
		"vehicle_time_p2":    h.VehicleTimeP2,
		"vehicle_time_p3":    h.VehicleTimeP3,
		"vehicle_time":       h.VehicleTime,
		"trip_wait_time":     h.TripWaitTime,
		"trip_riding_time":   h.TripRidingTime,
		"completed_count":    h.CompletedCount,
		"completed_distance": h.CompletedDistance,
		"requested_count":    h.RequestedCount,
		"cancelled_count":    h.CancelledCount,
	} {
		if len(a) != 100 {
			t.Fatalf("%s has %d slots, want 100", name, len(a))
		}
		for i := 1; i < len(a); i++ {
			if a[i] < a[i-1] {
				t.Fatalf("%s decreases at block %d: %d -> %d", name, i, a[i-1], a[i])
			}
		}
	}
}

func TestHistoryWindowedDifference(t *testing.T) {
	h := newHistory()
	for i := 0; i < 10; i++ {
		h.extend()
		// Two units of vehicle time per block.
		h.addVehicleBlock(VehicleIdle)
		h.addVehicleBlock(VehicleIdle)
	}
	if got := windowInt(h.VehicleTime, 4); got != 8 {
		t.Fatalf("window(4) = %d, want 8", got)
	}
	// Window longer than history falls back to the full running total.
	if got := windowInt(h.VehicleTime, 100); got != 20 {
		t.Fatalf("window(100) = %d, want 20", got)
	}
}

func TestHistoryEmptyWindowYieldsZeros(t *testing.T) {
	h := newHistory()
	m := h.Window(20)
	if m != (Measures{}) {
		t.Fatalf("measures on empty history = %+v, want zero", m)
	}

	// A window with vehicle time but no completed trips must not divide by
	// zero: trip means stay at a defined zero.
	h.extend()
	h.addVehicleBlock(VehicleIdle)
	m = h.Window(20)
	if m.MeanWaitTime != 0 || m.MeanTripDistance != 0 || m.WaitFraction != 0 {
		t.Fatalf("trip means with zero completed trips = %+v, want zeros", m)
	}
	if m.VehicleFractionP1 != 1 {
		t.Fatalf("p1 fraction = %v, want 1", m.VehicleFractionP1)
	}
}

func TestHistoryPhaseFractionsSumToOne(t *testing.T) {
	s := newTestSim(t, Config{CitySize: 8, WrapCity: true, VehicleCount: 4, BaseDemand: 0.3})
	for i := 0; i < 200; i++ {
		s.Step()
		m := s.History().Window(20)
		sum := m.VehicleFractionP1 + m.VehicleFractionP2 + m.VehicleFractionP3
		if sum < 1-1e-9 || sum > 1+1e-9 {
			t.Fatalf("block %d: phase fractions sum to %v", i, sum)
		}
	}
}
