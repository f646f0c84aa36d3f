package engine

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"time"
)

// Simulation is a single-threaded ride-hail market simulation. All state must
// be accessed only between calls to Step; the block's seven steps run in a
// fixed order and never observe partially-updated later-step state.
type Simulation struct {
	cfg  Config
	city *City
	rng  *rand.Rand

	block int

	vehicles      []*Vehicle
	nextVehicleID int

	// Active trips keyed by stable ID, plus creation order for deterministic
	// iteration. Vehicles reference trips only by ID, so compaction here can
	// never leave a dangling positional reference.
	trips      map[int]*Trip
	tripOrder  []int
	nextTripID int

	requestRate float64
	// requestCapital accumulates fractional demand; one trip is emitted per
	// whole unit crossed.
	requestCapital float64

	history *History
	eq      *Equilibrator

	impulses []Impulse

	// OnBlock, when set, is called with a read-only snapshot after every
	// completed block. It must not retain or mutate simulation state beyond
	// the snapshot it is handed.
	OnBlock func(BlockSnapshot)
}

// New validates cfg (after filling defaults) and builds a simulation with its
// own seeded RNG stream. Instances share no mutable state and may run on
// separate goroutines.
func New(cfg Config) (*Simulation, error) {
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(seed))

	s := &Simulation{
		cfg:         cfg,
		rng:         rng,
		city:        newCity(cfg, rng),
		trips:       map[int]*Trip{},
		nextTripID:  1,
		requestRate: cfg.BaseDemand,
		history:     newHistory(),
		eq:          newEquilibrator(cfg.Equilibration),
	}
	s.impulses = append(s.impulses, cfg.Impulses...)
	sort.SliceStable(s.impulses, func(i, j int) bool { return s.impulses[i].Block < s.impulses[j].Block })
	s.addVehicles(cfg.VehicleCount)
	return s, nil
}

func (s *Simulation) Block() int { return s.block }

func (s *Simulation) Config() Config { return s.cfg }

func (s *Simulation) VehicleTotal() int { return len(s.vehicles) }

func (s *Simulation) RequestRate() float64 { return s.requestRate }

func (s *Simulation) History() *History { return s.history }


// Step advances the simulation by one block in the fixed order: impulse,
// equilibration, movement/transitions, completion accounting + trip GC,
// request generation, dispatch, statistics.
func (s *Simulation) Step() {
	s.history.extend()

	s.applyImpulses()

	if s.eq.due(s.block, s.cfg.RollingWindow) {
		s.eq.adjust(s)
	}

	s.moveVehicles()

	s.collectTrips()

	s.generateRequests()

	s.dispatch()

	s.updateStats()

	s.block++

	if s.OnBlock != nil {
		s.OnBlock(s.Snapshot())
	}
}

// Run executes blocks until the configured horizon, or until ctx is
// cancelled when the horizon is 0 (open-ended). Cancellation is cooperative:
// it is observed only between blocks.
func (s *Simulation) Run(ctx context.Context) (Results, error) {
	for s.cfg.TimeBlocks == 0 || s.block < s.cfg.TimeBlocks {
		select {
		case <-ctx.Done():
			return s.Results(), ctx.Err()
		default:
		}
		s.Step()
	}
	return s.Results(), nil
}

// applyImpulses applies every override scheduled for the current block.
func (s *Simulation) applyImpulses() {
	for i := range s.impulses {
		imp := &s.impulses[i]
		if imp.Block != s.block {
			continue
		}
		if imp.RequestRate != nil {
			s.requestRate = *imp.RequestRate
		}
		if imp.VehicleCount != nil {
			s.resizeFleet(*imp.VehicleCount)
		}
		if imp.CitySize != nil {
			s.resizeCity(*imp.CitySize)
		}
	}
}

func (s *Simulation) addVehicles(n int) {
	for i := 0; i < n; i++ {
		s.nextVehicleID++
		s.vehicles = append(s.vehicles, &Vehicle{
			ID:  s.nextVehicleID,
			Loc: s.city.randomPoint(),
			Dir: Direction(s.rng.Intn(4)),
		})
	}
}

// removeIdleVehicles removes up to n vehicles currently in P1, returning how
// many were removed. Vehicles serving or reserved for a trip are never
// touched; a shortfall is not an error.
func (s *Simulation) removeIdleVehicles(n int) int {
	removed := 0
	kept := s.vehicles[:0]
	for _, v := range s.vehicles {
		if removed < n && v.Phase == VehicleIdle && v.ReservedTripID == 0 {
			removed++
			continue
		}
		kept = append(kept, v)
	}
	s.vehicles = kept
	return removed
}

// resizeFleet grows or shrinks toward target. Shrinking removes idle vehicles
// first, then dispatched ones (their trips return to UNASSIGNED); vehicles
// carrying a rider are never removed mid-trip.
func (s *Simulation) resizeFleet(target int) {
	if target > len(s.vehicles) {
		s.addVehicles(target - len(s.vehicles))
		return
	}
	deficit := len(s.vehicles) - target
	deficit -= s.removeIdleVehicles(deficit)
	if deficit <= 0 {
		return
	}
	kept := s.vehicles[:0]
	for _, v := range s.vehicles {
		if deficit > 0 && v.Phase == VehicleDispatched {
			if t := s.trips[v.TripID]; t != nil {
				t.Phase = TripUnassigned
				t.VehicleID = 0
			}
			if t := s.trips[v.ReservedTripID]; t != nil {
				t.Phase = TripUnassigned
				t.VehicleID = 0
			}
			deficit--
			continue
		}
		kept = append(kept, v)
	}
	s.vehicles = kept
}

// resizeCity swaps in a new grid and repositions every existing vehicle and
// active trip endpoint into the new bounds by modulo wrap.
func (s *Simulation) resizeCity(size int) {
	cfg := s.cfg
	cfg.CitySize = size
	s.cfg = cfg
	s.city = newCity(cfg, s.rng)
	for _, v := range s.vehicles {
		v.Loc = s.city.WrapPoint(v.Loc)
	}
	for _, id := range s.tripOrder {
		t := s.trips[id]
		t.Origin = s.city.WrapPoint(t.Origin)
		t.Destination = s.city.WrapPoint(t.Destination)
	}
}

// moveVehicles advances every vehicle one unit and processes arrival
// transitions: P2 reaching the pickup boards the rider; P3 reaching the
// dropoff completes the trip and either goes idle or heads straight to a
// forward-dispatched pickup.
func (s *Simulation) moveVehicles() {
	for _, v := range s.vehicles {
		switch v.Phase {
		case VehicleIdle:
			if s.cfg.IdleVehiclesMoving {
				v.wander(s.city, s.rng)
			}
		case VehicleDispatched:
			t := s.mustTrip(v.TripID)
			v.advanceToward(s.city, s.rng, t.Origin)
			if v.Loc == t.Origin {
				v.Phase = VehicleWithRider
				t.Phase = TripRiding
			}
		case VehicleWithRider:
			t := s.mustTrip(v.TripID)
			v.advanceToward(s.city, s.rng, t.Destination)
			if v.Loc == t.Destination {
				t.Phase = TripFinished
				t.VehicleID = 0
				v.TripID = 0
				if v.ReservedTripID != 0 {
					next := s.mustTrip(v.ReservedTripID)
					v.Phase = VehicleDispatched
					v.TripID = next.ID
					v.ReservedTripID = 0
					if v.Loc == next.Origin {
						v.Phase = VehicleWithRider
						next.Phase = TripRiding
					}
				} else {
					v.Phase = VehicleIdle
				}
			}
		}
	}
}

// collectTrips cancels over-age unassigned trips, accumulates completed-trip
// statistics, and garbage-collects terminal trips from the active set.
func (s *Simulation) collectTrips() {
	if s.cfg.MaxWaitBlocks > 0 {
		for _, id := range s.tripOrder {
			t := s.trips[id]
			if t.Phase == TripUnassigned && t.PhaseTime[TripUnassigned] >= s.cfg.MaxWaitBlocks {
				t.Phase = TripCancelled
			}
		}
	}

	kept := s.tripOrder[:0]
	for _, id := range s.tripOrder {
		t := s.trips[id]
		switch t.Phase {
		case TripFinished:
			s.history.addCompletedTrip(t)
			delete(s.trips, id)
		case TripCancelled:
			s.history.addCancelledTrip()
			delete(s.trips, id)
		default:
			kept = append(kept, id)
		}
	}
	s.tripOrder = kept

	s.checkTripReferences()
}

// checkTripReferences asserts that no vehicle points at a collected trip. A
// failure here is an implementation bug and aborts loudly rather than letting
// the run continue with corrupted state.
func (s *Simulation) checkTripReferences() {
	for _, v := range s.vehicles {
		if v.TripID != 0 {
			t := s.trips[v.TripID]
			if t == nil {
				panic(fmt.Sprintf("block %d: vehicle %d references collected trip %d", s.block, v.ID, v.TripID))
			}
			if t.Phase != TripWaiting && t.Phase != TripRiding {
				panic(fmt.Sprintf("block %d: vehicle %d references trip %d in phase %s", s.block, v.ID, v.TripID, t.Phase))
			}
		}
		if v.ReservedTripID != 0 {
			t := s.trips[v.ReservedTripID]
			if t == nil {
				panic(fmt.Sprintf("block %d: vehicle %d reservation references collected trip %d", s.block, v.ID, v.ReservedTripID))
			}
			if t.Phase != TripWaiting {
				panic(fmt.Sprintf("block %d: vehicle %d reservation references trip %d in phase %s", s.block, v.ID, v.ReservedTripID, t.Phase))
			}
		}
	}
}

// generateRequests accumulates the request rate into fractional capital and
// emits one trip per whole unit crossed.
func (s *Simulation) generateRequests() {
	s.requestCapital += s.requestRate
	for s.requestCapital >= 1 {
		s.requestCapital--
		origin := s.city.SampleOrigin()
		dest := s.city.SampleDestination(origin)
		s.nextTripID++
		t := &Trip{
			ID:          s.nextTripID,
			Origin:      origin,
			Destination: dest,
			Distance:    s.city.Distance(origin, dest),
		}
		s.trips[t.ID] = t
		s.tripOrder = append(s.tripOrder, t.ID)
		s.history.addRequest()
	}
}

// updateStats charges one block of vehicle time per vehicle to its phase,
// ages every active trip, records the point snapshots, and asserts the phase
// occupancy invariant.
func (s *Simulation) updateStats() {
	counts := [3]int{}
	for _, v := range s.vehicles {
		s.history.addVehicleBlock(v.Phase)
		counts[v.Phase]++
	}
	if counts[0]+counts[1]+counts[2] != len(s.vehicles) {
		panic(fmt.Sprintf("block %d: phase occupancy %v does not sum to vehicle count %d", s.block, counts, len(s.vehicles)))
	}

	for _, id := range s.tripOrder {
		t := s.trips[id]
		t.PhaseTime[t.Phase]++
	}

	s.history.observe(len(s.vehicles), s.requestRate, s.eq.Price())
}

func (s *Simulation) mustTrip(id int) *Trip {
	t := s.trips[id]
	if t == nil {
		panic(fmt.Sprintf("block %d: trip %d not in active set", s.block, id))
	}
	return t
}
