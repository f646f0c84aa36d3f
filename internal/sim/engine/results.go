package engine

// Results summarizes a finished (or stopped) run: the measures over the
// results window, a flat named-metrics map for exporters, and the full block
// history for serialization by an external writer.
type Results struct {
	Blocks   int
	Config   Config
	Measures Measures
	Metrics  map[string]float64
	History  *History
}

// Results may be called at any block boundary; metrics reflect the trailing
// results window at that point.
func (s *Simulation) Results() Results {
	m := s.history.Window(s.cfg.ResultsWindow)

	total := func(a []int) float64 {
		if len(a) == 0 {
			return 0
		}
		return float64(a[len(a)-1])
	}

	metrics := map[string]float64{
		"blocks":              float64(s.block),
		"vehicle_fraction_p1": m.VehicleFractionP1,
		"vehicle_fraction_p2": m.VehicleFractionP2,
		"vehicle_fraction_p3": m.VehicleFractionP3,
		"mean_wait_time":      m.MeanWaitTime,
		"mean_ride_time":      m.MeanRideTime,
		"mean_trip_distance":  m.MeanTripDistance,
		"wait_fraction":       m.WaitFraction,
		"completed_per_block": m.CompletedPerBlock,
		"mean_vehicle_count":  m.MeanVehicleCount,
		"mean_request_rate":   m.MeanRequestRate,
		"completed_trips":     total(s.history.CompletedCount),
		"requested_trips":     total(s.history.RequestedCount),
		"cancelled_trips":     total(s.history.CancelledCount),
		"final_vehicle_count": float64(len(s.vehicles)),
		"final_request_rate":  s.requestRate,
	}
	if s.cfg.Equilibration.Method != EquilibrationNone {
		metrics["equilibration_price"] = s.eq.price
		metrics["equilibration_last_utility"] = s.eq.lastUtility
		metrics["equilibration_vehicles_added"] = float64(s.eq.totalAdded)
		metrics["equilibration_vehicles_removed"] = float64(s.eq.totalRemoved)
		metrics["equilibration_demand_adjustments"] = float64(s.eq.demandAdjusted)
		metrics["equilibration_price_adjustments"] = float64(s.eq.priceAdjusted)
	}

	return Results{
		Blocks:   s.block,
		Config:   s.cfg,
		Measures: m,
		Metrics:  metrics,
		History:  s.history,
	}
}
