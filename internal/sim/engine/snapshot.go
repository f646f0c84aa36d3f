package engine

// VehicleView is the read-only per-vehicle slice of a block snapshot.
type VehicleView struct {
	ID        int    `json:"id"`
	X         int    `json:"x"`
	Y         int    `json:"y"`
	Direction string `json:"direction"`
	Phase     string `json:"phase"`
	TripID    int    `json:"trip_id,omitempty"`
}

// TripView is the read-only per-trip slice of a block snapshot.
type TripView struct {
	ID          int    `json:"id"`
	Origin      Point  `json:"origin"`
	Destination Point  `json:"destination"`
	Distance    int    `json:"distance"`
	Phase       string `json:"phase"`
	VehicleID   int    `json:"vehicle_id,omitempty"`
}

// BlockSnapshot is everything a renderer or exporter needs about one block.
// It shares no storage with the simulation and never mutates it.
type BlockSnapshot struct {
	Block        int           `json:"block"`
	CitySize     int           `json:"city_size"`
	VehicleCount int           `json:"vehicle_count"`
	RequestRate  float64       `json:"request_rate"`
	Price        float64       `json:"price"`
	Vehicles     []VehicleView `json:"vehicles"`
	Trips        []TripView    `json:"trips"`
	Measures     Measures      `json:"measures"`
}

// Snapshot builds a read-only view of the current state. Vehicles appear in
// creation order, trips in request order.
func (s *Simulation) Snapshot() BlockSnapshot {
	snap := BlockSnapshot{
		Block:        s.block,
		CitySize:     s.city.Size,
		VehicleCount: len(s.vehicles),
		RequestRate:  s.requestRate,
		Price:        s.eq.Price(),
		Vehicles:     make([]VehicleView, 0, len(s.vehicles)),
		Trips:        make([]TripView, 0, len(s.tripOrder)),
		Measures:     s.history.Window(s.cfg.RollingWindow),
	}
	for _, v := range s.vehicles {
		snap.Vehicles = append(snap.Vehicles, VehicleView{
			ID:        v.ID,
			X:         v.Loc.X,
			Y:         v.Loc.Y,
			Direction: v.Dir.String(),
			Phase:     v.Phase.String(),
			TripID:    v.TripID,
		})
	}
	for _, id := range s.tripOrder {
		t := s.trips[id]
		snap.Trips = append(snap.Trips, TripView{
			ID:          t.ID,
			Origin:      t.Origin,
			Destination: t.Destination,
			Distance:    t.Distance,
			Phase:       t.Phase.String(),
			VehicleID:   t.VehicleID,
		})
	}
	return snap
}
