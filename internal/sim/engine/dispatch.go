package engine

// dispatch runs once per block over every UNASSIGNED trip. Trips are visited
// in randomized order so no request gains a systematic advantage from its
// creation index; a vehicle is removed from the candidate pool the moment it
// is selected, so it cannot be double-assigned within the block.
func (s *Simulation) dispatch() {
	var unassigned []*Trip
	for _, id := range s.tripOrder {
		t := s.trips[id]
		if t.Phase == TripUnassigned {
			unassigned = append(unassigned, t)
		}
	}
	if len(unassigned) == 0 {
		return
	}
	if s.cfg.DispatchMethod != DispatchLegacy {
		s.rng.Shuffle(len(unassigned), func(i, j int) {
			unassigned[i], unassigned[j] = unassigned[j], unassigned[i]
		})
	}

	var idle []*Vehicle
	for _, v := range s.vehicles {
		if v.Phase == VehicleIdle {
			idle = append(idle, v)
		}
	}

	for _, t := range unassigned {
		switch s.cfg.DispatchMethod {
		case DispatchRandom:
			if len(idle) == 0 {
				continue
			}
			i := s.rng.Intn(len(idle))
			s.assign(t, idle[i])
			idle = removeAt(idle, i)
		case DispatchLegacy:
			if len(idle) == 0 {
				continue
			}
			best, bestDist := 0, s.city.Distance(idle[0].Loc, t.Origin)
			for i := 1; i < len(idle); i++ {
				if d := s.city.Distance(idle[i].Loc, t.Origin); d < bestDist {
					best, bestDist = i, d
				}
			}
			s.assign(t, idle[best])
			idle = removeAt(idle, best)
		case DispatchForward:
			idle = s.dispatchForward(t, idle)
		default:
			i, ok := s.nearestRandomized(t.Origin, idle)
			if !ok {
				continue
			}
			s.assign(t, idle[i])
			idle = removeAt(idle, i)
		}
	}
}

// nearestRandomized scans the pool in a freshly randomized visitation order
// and returns the index of the first vehicle at minimal distance, so exact
// ties are broken by that random order.
func (s *Simulation) nearestRandomized(origin Point, pool []*Vehicle) (int, bool) {
	if len(pool) == 0 {
		return 0, false
	}
	best := -1
	bestDist := 0
	for _, i := range s.rng.Perm(len(pool)) {
		d := s.city.Distance(pool[i].Loc, origin)
		if best < 0 || d < bestDist {
			best, bestDist = i, d
		}
	}
	return best, true
}

// dispatchForward considers, besides the idle pool, vehicles in P3 whose
// projected dropoff is closer to the pickup than any idle vehicle. The bias
// factor scales projected-dropoff distances: values above 1 make forward
// dispatch less attractive, below 1 more. A reserved vehicle heads to the new
// pickup directly after its dropoff instead of going idle.
func (s *Simulation) dispatchForward(t *Trip, idle []*Vehicle) []*Vehicle {
	idleIdx, idleOK := s.nearestRandomized(t.Origin, idle)
	idleDist := 0
	if idleOK {
		idleDist = s.city.Distance(idle[idleIdx].Loc, t.Origin)
	}

	var fwd *Vehicle
	fwdDist := 0.0
	for _, v := range s.vehicles {
		if v.Phase != VehicleWithRider || v.ReservedTripID != 0 {
			continue
		}
		serving := s.trips[v.TripID]
		if serving == nil {
			continue
		}
		d := float64(s.city.Distance(serving.Destination, t.Origin)) * s.cfg.ForwardDispatchBias
		if fwd == nil || d < fwdDist {
			fwd, fwdDist = v, d
		}
	}

	switch {
	case fwd != nil && (!idleOK || fwdDist < float64(idleDist)):
		fwd.ReservedTripID = t.ID
		t.Phase = TripWaiting
		t.VehicleID = fwd.ID
		return idle
	case idleOK:
		s.assign(t, idle[idleIdx])
		return removeAt(idle, idleIdx)
	}
	return idle
}

// assign puts an idle vehicle on the road toward t's origin.
func (s *Simulation) assign(t *Trip, v *Vehicle) {
	v.Phase = VehicleDispatched
	v.TripID = t.ID
	t.Phase = TripWaiting
	t.VehicleID = v.ID
}

func removeAt(pool []*Vehicle, i int) []*Vehicle {
	pool[i] = pool[len(pool)-1]
	return pool[:len(pool)-1]
}
