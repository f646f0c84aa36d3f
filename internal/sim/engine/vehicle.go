package engine

import (
	"fmt"
	"math/rand"
)

type VehiclePhase int

const (
	VehicleIdle       VehiclePhase = iota // P1
	VehicleDispatched                     // P2, en route to pickup
	VehicleWithRider                      // P3, carrying a passenger
)

func (p VehiclePhase) String() string {
	switch p {
	case VehicleIdle:
		return "P1"
	case VehicleDispatched:
		return "P2"
	case VehicleWithRider:
		return "P3"
	}
	return fmt.Sprintf("phase(%d)", int(p))
}

// Vehicle is one driver agent. Trip links are stable trip IDs, never slice
// positions, so trip garbage collection can never leave them dangling.
type Vehicle struct {
	ID    int
	Loc   Point
	Dir   Direction
	Phase VehiclePhase

	// TripID is the trip currently served (P2/P3). 0 means none.
	TripID int
	// ReservedTripID is a forward-dispatch reservation picked up after the
	// current dropoff. At most one per vehicle; 0 means none.
	ReservedTripID int
}

// advanceToward moves one unit toward target, preferring the axis with the
// larger remaining distance and breaking exact ties with the RNG so paths do
// not all share one staircase shape.
func (v *Vehicle) advanceToward(c *City, rng *rand.Rand, target Point) {
	sx := c.axisStep(v.Loc.X, target.X)
	sy := c.axisStep(v.Loc.Y, target.Y)
	if sx == 0 && sy == 0 {
		return
	}
	moveX := sx != 0
	if sx != 0 && sy != 0 {
		dx := c.axisDistance(v.Loc.X, target.X)
		dy := c.axisDistance(v.Loc.Y, target.Y)
		switch {
		case dx > dy:
			moveX = true
		case dy > dx:
			moveX = false
		default:
			moveX = rng.Intn(2) == 0
		}
	}
	if moveX {
		v.Loc.X += sx
		if sx > 0 {
			v.Dir = East
		} else {
			v.Dir = West
		}
	} else {
		v.Loc.Y += sy
		if sy > 0 {
			v.Dir = North
		} else {
			v.Dir = South
		}
	}
	if c.Wrap {
		v.Loc = c.WrapPoint(v.Loc)
	}
}

// wander moves an idle vehicle one unit: straight ahead, left, or right,
// chosen uniformly. On a bounded grid directions that would leave the city
// are excluded.
func (v *Vehicle) wander(c *City, rng *rand.Rand) {
	legal := make([]Direction, 0, 3)
	for _, d := range [3]Direction{v.Dir, v.Dir.left(), v.Dir.right()} {
		if c.Wrap || v.canStep(c, d) {
			legal = append(legal, d)
		}
	}
	if len(legal) == 0 {
		// Boxed in on a bounded grid: reverse.
		legal = append(legal, v.Dir.left().left())
	}
	d := legal[rng.Intn(len(legal))]
	dx, dy := d.vector()
	v.Dir = d
	v.Loc.X += dx
	v.Loc.Y += dy
	if c.Wrap {
		v.Loc = c.WrapPoint(v.Loc)
	}
}

func (v *Vehicle) canStep(c *City, d Direction) bool {
	dx, dy := d.vector()
	x, y := v.Loc.X+dx, v.Loc.Y+dy
	return x >= 0 && x < c.Size && y >= 0 && y < c.Size
}
