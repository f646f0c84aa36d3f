package engine

import (
	"fmt"
	"strings"
)

// Config describes one simulation instance. Zero values are filled in by
// applyDefaults; Validate rejects configurations that cannot run.
type Config struct {
	// City geometry.
	CitySize      int     // side length, even, >= 2
	WrapCity      bool    // toroidal topology when true
	Inhomogeneity float64 // probability of sampling an origin in the central zone

	// InhomogeneousDestinations applies the central-zone bias to destinations too.
	InhomogeneousDestinations bool

	MinTripDistance int
	MaxTripDistance int // 0 means unbounded

	VehicleCount       int
	BaseDemand         float64 // mean trip requests per block
	IdleVehiclesMoving bool

	DispatchMethod      DispatchMethod
	ForwardDispatchBias float64 // multiplier applied to projected-dropoff distances

	// MaxWaitBlocks cancels a trip that stays unassigned this many blocks. 0 disables.
	MaxWaitBlocks int

	Equilibration EquilibrationConfig

	RollingWindow int // trailing blocks for equilibration statistics
	ResultsWindow int // trailing blocks for end-of-run metrics

	TimeBlocks int // 0 means run until externally stopped

	Seed int64 // 0 means seed from the clock at New

	Impulses []Impulse
}

// EquilibrationConfig holds the economic feedback parameters. Only the fields
// required by the chosen method are validated.
type EquilibrationConfig struct {
	Method EquilibrationMethod

	Price              float64
	PlatformCommission float64
	ReservationWage    float64
	// OperatingCost, when set, replaces the reservation wage as the cost basis
	// of the supply-side increment.
	OperatingCost    float64
	DemandElasticity float64
	Interval         int // blocks between adjustments

	TargetWaitFraction float64

	// Demand-side utility parameters.
	DemandBaseUtility float64
	DemandWaitCost    float64
	DemandStep        float64 // request-rate step per adjustment
	DemandBlur        float64 // dead zone around zero utility
	DemandFloor       float64 // strictly positive request-rate floor

	Damping float64 // divisor damping supply/price increments
}

// Impulse is a scheduled one-time parameter override. Nil fields are left
// unchanged.
type Impulse struct {
	Block        int
	RequestRate  *float64
	VehicleCount *int
	CitySize     *int
}

type DispatchMethod int

const (
	DispatchDefault DispatchMethod = iota
	DispatchRandom
	DispatchLegacy
	DispatchForward
)

func (m DispatchMethod) String() string {
	switch m {
	case DispatchDefault:
		return "default"
	case DispatchRandom:
		return "random"
	case DispatchLegacy:
		return "legacy"
	case DispatchForward:
		return "forward"
	}
	return fmt.Sprintf("dispatch(%d)", int(m))
}

func ParseDispatchMethod(s string) (DispatchMethod, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "default", "nearest":
		return DispatchDefault, nil
	case "random":
		return DispatchRandom, nil
	case "legacy":
		return DispatchLegacy, nil
	case "forward", "forward_dispatch":
		return DispatchForward, nil
	}
	return DispatchDefault, fmt.Errorf("unknown dispatch method %q", s)
}

type EquilibrationMethod int

const (
	EquilibrationNone EquilibrationMethod = iota
	EquilibrationSupply
	EquilibrationDemand
	EquilibrationPrice
	EquilibrationWaitFraction
)

func (m EquilibrationMethod) String() string {
	switch m {
	case EquilibrationNone:
		return "none"
	case EquilibrationSupply:
		return "supply"
	case EquilibrationDemand:
		return "demand"
	case EquilibrationPrice:
		return "price"
	case EquilibrationWaitFraction:
		return "wait_fraction"
	}
	return fmt.Sprintf("equilibration(%d)", int(m))
}

func ParseEquilibrationMethod(s string) (EquilibrationMethod, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none":
		return EquilibrationNone, nil
	case "supply":
		return EquilibrationSupply, nil
	case "demand":
		return EquilibrationDemand, nil
	case "price":
		return EquilibrationPrice, nil
	case "wait_fraction", "waitfraction":
		return EquilibrationWaitFraction, nil
	}
	return EquilibrationNone, fmt.Errorf("unknown equilibration method %q", s)
}

func (c *Config) applyDefaults() {
	if c.CitySize <= 0 {
		c.CitySize = 8
	}
	if c.MinTripDistance <= 0 {
		c.MinTripDistance = 1
	}
	if c.RollingWindow <= 0 {
		c.RollingWindow = 20
	}
	if c.ResultsWindow <= 0 {
		c.ResultsWindow = 50
	}
	if c.ForwardDispatchBias <= 0 {
		c.ForwardDispatchBias = 1.0
	}
	c.Equilibration.applyDefaults()
}

func (e *EquilibrationConfig) applyDefaults() {
	if e.Method == EquilibrationNone {
		return
	}
	if e.Interval <= 0 {
		e.Interval = 5
	}
	if e.Damping <= 0 {
		e.Damping = 8
	}
	if e.DemandStep <= 0 {
		e.DemandStep = 0.05
	}
	if e.DemandBlur <= 0 {
		e.DemandBlur = 0.02
	}
	if e.DemandFloor <= 0 {
		e.DemandFloor = 0.05
	}
}

// Validate reports the first violated constraint. It does not mutate c; call
// applyDefaults first (New does both).
func (c Config) Validate() error {
	if c.CitySize < 2 || c.CitySize%2 != 0 {
		return fmt.Errorf("city size must be even and >= 2, got %d", c.CitySize)
	}
	if c.Inhomogeneity < 0 || c.Inhomogeneity > 1 {
		return fmt.Errorf("inhomogeneity must be in [0,1], got %v", c.Inhomogeneity)
	}
	if c.MaxTripDistance > 0 && c.MinTripDistance > c.MaxTripDistance {
		return fmt.Errorf("min trip distance %d exceeds max %d", c.MinTripDistance, c.MaxTripDistance)
	}
	if c.VehicleCount < 0 {
		return fmt.Errorf("vehicle count must be >= 0, got %d", c.VehicleCount)
	}
	if c.BaseDemand < 0 {
		return fmt.Errorf("base demand must be >= 0, got %v", c.BaseDemand)
	}
	if c.TimeBlocks < 0 {
		return fmt.Errorf("time blocks must be >= 0, got %d", c.TimeBlocks)
	}
	if c.MaxWaitBlocks < 0 {
		return fmt.Errorf("max wait blocks must be >= 0, got %d", c.MaxWaitBlocks)
	}
	for i, imp := range c.Impulses {
		if imp.Block < 0 {
			return fmt.Errorf("impulse[%d] block must be >= 0", i)
		}
		if imp.CitySize != nil && (*imp.CitySize < 2 || *imp.CitySize%2 != 0) {
			return fmt.Errorf("impulse[%d] city size must be even and >= 2", i)
		}
		if imp.VehicleCount != nil && *imp.VehicleCount < 0 {
			return fmt.Errorf("impulse[%d] vehicle count must be >= 0", i)
		}
		if imp.RequestRate != nil && *imp.RequestRate < 0 {
			return fmt.Errorf("impulse[%d] request rate must be >= 0", i)
		}
	}
	return c.Equilibration.validate()
}

func (e EquilibrationConfig) validate() error {
	switch e.Method {
	case EquilibrationNone:
		return nil
	case EquilibrationSupply:
		if e.Price <= 0 {
			return fmt.Errorf("supply equilibration requires price > 0")
		}
		if e.ReservationWage <= 0 && e.OperatingCost <= 0 {
			return fmt.Errorf("supply equilibration requires reservation wage or operating cost")
		}
		if e.PlatformCommission < 0 || e.PlatformCommission >= 1 {
			return fmt.Errorf("platform commission must be in [0,1), got %v", e.PlatformCommission)
		}
	case EquilibrationDemand:
		if e.Price <= 0 {
			return fmt.Errorf("demand equilibration requires price > 0")
		}
	case EquilibrationPrice:
		if e.Price <= 0 {
			return fmt.Errorf("price equilibration requires price > 0")
		}
		if e.DemandElasticity <= 0 {
			return fmt.Errorf("price equilibration requires demand elasticity > 0")
		}
	case EquilibrationWaitFraction:
		if e.Price <= 0 {
			return fmt.Errorf("wait-fraction equilibration requires price > 0")
		}
		if e.TargetWaitFraction <= 0 || e.TargetWaitFraction >= 1 {
			return fmt.Errorf("target wait fraction must be in (0,1), got %v", e.TargetWaitFraction)
		}
		if e.DemandElasticity <= 0 {
			return fmt.Errorf("wait-fraction equilibration requires demand elasticity > 0")
		}
	default:
		return fmt.Errorf("unknown equilibration method %d", int(e.Method))
	}
	return nil
}
