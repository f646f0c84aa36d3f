package engine

import "math"

// Equilibrator nudges vehicle supply and/or request demand toward an economic
// balance point. All feedback state lives here, one instance per simulation,
// so parallel runs equilibrate independently.
type Equilibrator struct {
	cfg   EquilibrationConfig
	price float64

	lastAdjusted int
	// Diagnostics surfaced in the final metrics.
	lastUtility    float64
	totalAdded     int
	totalRemoved   int
	demandAdjusted int
	priceAdjusted  int
}

func newEquilibrator(cfg EquilibrationConfig) *Equilibrator {
	return &Equilibrator{cfg: cfg, price: cfg.Price, lastAdjusted: -1}
}

// Price is the current effective trip price (adjusted by wait-fraction
// equilibration, fixed otherwise).
func (e *Equilibrator) Price() float64 { return e.price }

// due gates adjustment on the configured interval, after a warm-up of one
// full rolling window.
func (e *Equilibrator) due(block, rollingWindow int) bool {
	if e.cfg.Method == EquilibrationNone {
		return false
	}
	return block%e.cfg.Interval == 0 && block >= rollingWindow
}

// adjust applies one equilibration cycle using the previous block's windowed
// statistics.
func (e *Equilibrator) adjust(s *Simulation) {
	m := s.history.Window(s.cfg.RollingWindow)
	switch e.cfg.Method {
	case EquilibrationSupply:
		e.adjustSupply(s, m)
	case EquilibrationDemand:
		e.adjustDemand(s, m)
	case EquilibrationPrice:
		s.requestRate = s.cfg.BaseDemand * math.Pow(e.price, -e.cfg.DemandElasticity)
		e.demandAdjusted++
	case EquilibrationWaitFraction:
		e.adjustWaitFraction(s, m)
	}
	e.lastAdjusted = s.block
}

// adjustSupply computes per-block driver utility from the paid fraction and
// converts it into a damped vehicle-count increment. A negative increment
// removes idle vehicles only; if fewer are idle than the increment calls for,
// the shortfall is simply not removed this cycle.
func (e *Equilibrator) adjustSupply(s *Simulation, m Measures) {
	utility := e.price*m.VehicleFractionP3*(1-e.cfg.PlatformCommission) - e.supplyCost()
	e.lastUtility = utility

	inc := int(math.Round(utility / (e.supplyCost() * e.cfg.Damping)))
	switch {
	case inc > 0:
		s.addVehicles(inc)
		e.totalAdded += inc
	case inc < 0:
		e.totalRemoved += s.removeIdleVehicles(-inc)
	}
}

func (e *Equilibrator) supplyCost() float64 {
	if e.cfg.OperatingCost > 0 {
		return e.cfg.OperatingCost
	}
	return e.cfg.ReservationWage
}

// adjustDemand steps the request rate up or down by a fixed amount when rider
// utility clears a small blur threshold either way, floored at a strictly
// positive minimum.
func (e *Equilibrator) adjustDemand(s *Simulation, m Measures) {
	utility := e.cfg.DemandBaseUtility - e.price - e.cfg.DemandWaitCost*m.WaitFraction
	e.lastUtility = utility
	switch {
	case utility > e.cfg.DemandBlur:
		s.requestRate += e.cfg.DemandStep
		e.demandAdjusted++
	case utility < -e.cfg.DemandBlur:
		s.requestRate = math.Max(e.cfg.DemandFloor, s.requestRate-e.cfg.DemandStep)
		e.demandAdjusted++
	}
}

// adjustWaitFraction drives the realized wait fraction toward the target by
// damped price moves (wait too high -> raise price to draw supply and shed
// demand), then repositions demand on the price-elasticity curve.
func (e *Equilibrator) adjustWaitFraction(s *Simulation, m Measures) {
	gap := m.WaitFraction - e.cfg.TargetWaitFraction
	e.lastUtility = gap
	if gap != 0 {
		e.price += e.price * gap / e.cfg.Damping
		if e.price < 0.1 {
			e.price = 0.1
		}
		e.priceAdjusted++
	}
	s.requestRate = math.Max(e.cfg.DemandFloor,
		s.cfg.BaseDemand*math.Pow(e.price, -e.cfg.DemandElasticity))
}
