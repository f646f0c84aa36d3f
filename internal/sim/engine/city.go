package engine

import "math/rand"

// Point is an intersection on the city grid.
type Point struct {
	X int `json:"x"`
	Y int `json:"y"`
}

type Direction int

const (
	North Direction = iota
	East
	South
	West
)

func (d Direction) String() string {
	switch d {
	case North:
		return "N"
	case East:
		return "E"
	case South:
		return "S"
	case West:
		return "W"
	}
	return "?"
}

func (d Direction) vector() (dx, dy int) {
	switch d {
	case North:
		return 0, 1
	case East:
		return 1, 0
	case South:
		return 0, -1
	}
	return -1, 0
}

func (d Direction) left() Direction  { return (d + 3) % 4 }
func (d Direction) right() Direction { return (d + 1) % 4 }

// destinationRetryCap bounds resampling when min/max trip distance constraints
// reject a candidate destination.
const destinationRetryCap = 100

// City is the square grid all agents live on. Distances are Manhattan,
// wrapped when the topology is toroidal. The central zone of side Size/2
// receives extra demand weight when Inhomogeneity > 0.
type City struct {
	Size int
	Wrap bool

	Inhomogeneity             float64
	InhomogeneousDestinations bool

	MinTripDistance int
	MaxTripDistance int

	rng *rand.Rand
}

func newCity(cfg Config, rng *rand.Rand) *City {
	return &City{
		Size:                      cfg.CitySize,
		Wrap:                      cfg.WrapCity,
		Inhomogeneity:             cfg.Inhomogeneity,
		InhomogeneousDestinations: cfg.InhomogeneousDestinations,
		MinTripDistance:           cfg.MinTripDistance,
		MaxTripDistance:           cfg.MaxTripDistance,
		rng:                       rng,
	}
}

// WrapPoint maps an arbitrary point into [0,Size) on both axes. Used for
// movement on the torus and for repositioning after a city-size impulse.
func (c *City) WrapPoint(p Point) Point {
	p.X = ((p.X % c.Size) + c.Size) % c.Size
	p.Y = ((p.Y % c.Size) + c.Size) % c.Size
	return p
}

// axisDistance is the shortest non-negative distance between two coordinates
// along one axis.
func (c *City) axisDistance(a, b int) int {
	d := a - b
	if d < 0 {
		d = -d
	}
	if c.Wrap && c.Size-d < d {
		d = c.Size - d
	}
	return d
}

// Distance is the (wrap-aware) Manhattan distance between two points.
func (c *City) Distance(a, b Point) int {
	return c.axisDistance(a.X, b.X) + c.axisDistance(a.Y, b.Y)
}

// axisStep returns -1, 0 or +1: the direction of the shortest move from a
// toward b along one axis.
func (c *City) axisStep(a, b int) int {
	if a == b {
		return 0
	}
	step := 1
	if a > b {
		step = -1
	}
	if c.Wrap {
		direct := a - b
		if direct < 0 {
			direct = -direct
		}
		if c.Size-direct < direct {
			step = -step
		}
	}
	return step
}

func (c *City) randomPoint() Point {
	return Point{X: c.rng.Intn(c.Size), Y: c.rng.Intn(c.Size)}
}

// randomCorePoint samples uniformly from the central zone of side Size/2.
func (c *City) randomCorePoint() Point {
	lo := c.Size / 4
	half := c.Size / 2
	return Point{X: lo + c.rng.Intn(half), Y: lo + c.rng.Intn(half)}
}

// SampleOrigin draws a trip origin: the central zone with probability
// Inhomogeneity, the whole grid otherwise.
func (c *City) SampleOrigin() Point {
	if c.Inhomogeneity > 0 && c.rng.Float64() < c.Inhomogeneity {
		return c.randomCorePoint()
	}
	return c.randomPoint()
}

// SampleDestination draws a destination whose distance from origin satisfies
// the configured [min,max] bound, resampling up to destinationRetryCap times.
// After the cap it fails closed to a legal point at exactly the minimum
// distance rather than looping forever.
func (c *City) SampleDestination(origin Point) Point {
	for i := 0; i < destinationRetryCap; i++ {
		var p Point
		if c.InhomogeneousDestinations && c.Inhomogeneity > 0 && c.rng.Float64() < c.Inhomogeneity {
			p = c.randomCorePoint()
		} else {
			p = c.randomPoint()
		}
		if c.tripDistanceOK(c.Distance(origin, p)) {
			return p
		}
	}
	// Best-effort fallback: march east by the minimum legal distance.
	d := c.MinTripDistance
	if d < 1 {
		d = 1
	}
	if d >= c.Size {
		d = c.Size - 1
	}
	p := Point{X: origin.X + d, Y: origin.Y}
	if c.Wrap {
		return c.WrapPoint(p)
	}
	if p.X >= c.Size {
		p.X = origin.X - d
	}
	return p
}

func (c *City) tripDistanceOK(d int) bool {
	if d < c.MinTripDistance {
		return false
	}
	if c.MaxTripDistance > 0 && d > c.MaxTripDistance {
		return false
	}
	return true
}
