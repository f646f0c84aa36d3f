// Package scenario loads simulation scenario files. A scenario is a YAML
// document describing one run plus optional impulses and an optional sweep
// over vehicle counts and request rates.
package scenario

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/tomslee/ridehail-sub001/internal/sim/engine"
)

type Scenario struct {
	Name string `yaml:"name"`

	CitySize                  int     `yaml:"city_size"`
	WrapCity                  *bool   `yaml:"wrap_city,omitempty"`
	Inhomogeneity             float64 `yaml:"inhomogeneity"`
	InhomogeneousDestinations bool    `yaml:"inhomogeneous_destinations"`
	MinTripDistance           int     `yaml:"min_trip_distance"`
	MaxTripDistance           int     `yaml:"max_trip_distance"`

	VehicleCount       int     `yaml:"vehicle_count"`
	BaseDemand         float64 `yaml:"base_demand"`
	IdleVehiclesMoving bool    `yaml:"idle_vehicles_moving"`

	DispatchMethod      string  `yaml:"dispatch_method"`
	ForwardDispatchBias float64 `yaml:"forward_dispatch_bias"`
	MaxWaitBlocks       int     `yaml:"max_wait_blocks"`

	Equilibration EquilibrationSpec `yaml:"equilibration"`

	RollingWindow int   `yaml:"rolling_window"`
	ResultsWindow int   `yaml:"results_window"`
	TimeBlocks    int   `yaml:"time_blocks"`
	Seed          int64 `yaml:"seed"`

	Impulses []ImpulseSpec `yaml:"impulses,omitempty"`

	// Sweep, when present, expands this scenario into one run per
	// combination of the listed values.
	Sweep *SweepSpec `yaml:"sweep,omitempty"`
}

type EquilibrationSpec struct {
	Method             string  `yaml:"method"`
	Price              float64 `yaml:"price"`
	PlatformCommission float64 `yaml:"platform_commission"`
	ReservationWage    float64 `yaml:"reservation_wage"`
	OperatingCost      float64 `yaml:"operating_cost"`
	DemandElasticity   float64 `yaml:"demand_elasticity"`
	Interval           int     `yaml:"interval"`
	TargetWaitFraction float64 `yaml:"target_wait_fraction"`
	DemandBaseUtility  float64 `yaml:"demand_base_utility"`
	DemandWaitCost     float64 `yaml:"demand_wait_cost"`
	DemandStep         float64 `yaml:"demand_step"`
	DemandBlur         float64 `yaml:"demand_blur"`
	DemandFloor        float64 `yaml:"demand_floor"`
	Damping            float64 `yaml:"damping"`
}

type ImpulseSpec struct {
	Block        int      `yaml:"block"`
	RequestRate  *float64 `yaml:"request_rate,omitempty"`
	VehicleCount *int     `yaml:"vehicle_count,omitempty"`
	CitySize     *int     `yaml:"city_size,omitempty"`
}

type SweepSpec struct {
	VehicleCounts []int     `yaml:"vehicle_counts,omitempty"`
	RequestRates  []float64 `yaml:"request_rates,omitempty"`
}

// Load reads a scenario file and converts it to a validated engine config.
// An empty path yields the built-in defaults.
func Load(path string) (Scenario, error) {
	sc := defaults()
	if strings.TrimSpace(path) == "" {
		return sc, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return sc, err
	}
	if err := yaml.Unmarshal(b, &sc); err != nil {
		return sc, fmt.Errorf("%s: %w", path, err)
	}
	sc.Normalize()
	if _, err := sc.Config(); err != nil {
		return sc, fmt.Errorf("%s: %w", path, err)
	}
	return sc, nil
}

func defaults() Scenario {
	wrap := true
	return Scenario{
		Name:         "default",
		CitySize:     8,
		WrapCity:     &wrap,
		VehicleCount: 4,
		BaseDemand:   0.2,
		TimeBlocks:   200,
	}
}

// Normalize fills derived fields without validating.
func (sc *Scenario) Normalize() {
	if sc == nil {
		return
	}
	if strings.TrimSpace(sc.Name) == "" {
		sc.Name = "scenario"
	}
	if sc.WrapCity == nil {
		wrap := true
		sc.WrapCity = &wrap
	}
	sort.SliceStable(sc.Impulses, func(i, j int) bool { return sc.Impulses[i].Block < sc.Impulses[j].Block })
}

// Config converts the scenario into an engine.Config, reporting the first
// invalid field.
func (sc Scenario) Config() (engine.Config, error) {
	sc.Normalize()
	dispatch, err := engine.ParseDispatchMethod(sc.DispatchMethod)
	if err != nil {
		return engine.Config{}, err
	}
	eqMethod, err := engine.ParseEquilibrationMethod(sc.Equilibration.Method)
	if err != nil {
		return engine.Config{}, err
	}

	cfg := engine.Config{
		CitySize:                  sc.CitySize,
		WrapCity:                  *sc.WrapCity,
		Inhomogeneity:             sc.Inhomogeneity,
		InhomogeneousDestinations: sc.InhomogeneousDestinations,
		MinTripDistance:           sc.MinTripDistance,
		MaxTripDistance:           sc.MaxTripDistance,
		VehicleCount:              sc.VehicleCount,
		BaseDemand:                sc.BaseDemand,
		IdleVehiclesMoving:        sc.IdleVehiclesMoving,
		DispatchMethod:            dispatch,
		ForwardDispatchBias:       sc.ForwardDispatchBias,
		MaxWaitBlocks:             sc.MaxWaitBlocks,
		RollingWindow:             sc.RollingWindow,
		ResultsWindow:             sc.ResultsWindow,
		TimeBlocks:                sc.TimeBlocks,
		Seed:                      sc.Seed,
		Equilibration: engine.EquilibrationConfig{
			Method:             eqMethod,
			Price:              sc.Equilibration.Price,
			PlatformCommission: sc.Equilibration.PlatformCommission,
			ReservationWage:    sc.Equilibration.ReservationWage,
			OperatingCost:      sc.Equilibration.OperatingCost,
			DemandElasticity:   sc.Equilibration.DemandElasticity,
			Interval:           sc.Equilibration.Interval,
			TargetWaitFraction: sc.Equilibration.TargetWaitFraction,
			DemandBaseUtility:  sc.Equilibration.DemandBaseUtility,
			DemandWaitCost:     sc.Equilibration.DemandWaitCost,
			DemandStep:         sc.Equilibration.DemandStep,
			DemandBlur:         sc.Equilibration.DemandBlur,
			DemandFloor:        sc.Equilibration.DemandFloor,
			Damping:            sc.Equilibration.Damping,
		},
	}
	for _, imp := range sc.Impulses {
		cfg.Impulses = append(cfg.Impulses, engine.Impulse{
			Block:        imp.Block,
			RequestRate:  imp.RequestRate,
			VehicleCount: imp.VehicleCount,
			CitySize:     imp.CitySize,
		})
	}

	// Build once to surface validation errors here rather than at run time.
	if _, err := engine.New(cfg); err != nil {
		return engine.Config{}, err
	}
	return cfg, nil
}

// IsSweep reports whether the scenario expands to more than one run.
func (sc Scenario) IsSweep() bool {
	return sc.Sweep != nil && (len(sc.Sweep.VehicleCounts) > 0 || len(sc.Sweep.RequestRates) > 0)
}
