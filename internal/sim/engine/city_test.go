package engine

import (
	"math/rand"
	"testing"
)

func testCity(t *testing.T, cfg Config, seed int64) *City {
	t.Helper()
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("config: %v", err)
	}
	return newCity(cfg, rand.New(rand.NewSource(seed)))
}

func TestCityDistanceWrap(t *testing.T) {
	c := testCity(t, Config{CitySize: 8, WrapCity: true}, 1)
	if d := c.Distance(Point{0, 0}, Point{7, 0}); d != 1 {
		t.Fatalf("wrapped distance = %d, want 1", d)
	}
	if d := c.Distance(Point{1, 1}, Point{6, 7}); d != 5 {
		t.Fatalf("wrapped distance = %d, want 5", d)
	}

	c.Wrap = false
	if d := c.Distance(Point{0, 0}, Point{7, 0}); d != 7 {
		t.Fatalf("bounded distance = %d, want 7", d)
	}
}

func TestCityAxisStepTakesShortPath(t *testing.T) {
	c := testCity(t, Config{CitySize: 8, WrapCity: true}, 1)
	// 0 -> 7 on a ring of 8 is one step backward.
	if s := c.axisStep(0, 7); s != -1 {
		t.Fatalf("axisStep(0,7) = %d, want -1", s)
	}
	if s := c.axisStep(7, 0); s != 1 {
		t.Fatalf("axisStep(7,0) = %d, want 1", s)
	}
	c.Wrap = false
	if s := c.axisStep(0, 7); s != 1 {
		t.Fatalf("bounded axisStep(0,7) = %d, want 1", s)
	}
}

func TestCitySamplingStaysInBounds(t *testing.T) {
	c := testCity(t, Config{CitySize: 8, Inhomogeneity: 0.5, InhomogeneousDestinations: true}, 7)
	for i := 0; i < 1000; i++ {
		o := c.SampleOrigin()
		d := c.SampleDestination(o)
		for _, p := range []Point{o, d} {
			if p.X < 0 || p.X >= c.Size || p.Y < 0 || p.Y >= c.Size {
				t.Fatalf("point %v outside city of size %d", p, c.Size)
			}
		}
	}
}

func TestCityFullInhomogeneitySamplesCore(t *testing.T) {
	c := testCity(t, Config{CitySize: 8, Inhomogeneity: 1}, 3)
	for i := 0; i < 1000; i++ {
		p := c.SampleOrigin()
		if p.X < 2 || p.X >= 6 || p.Y < 2 || p.Y >= 6 {
			t.Fatalf("origin %v outside central zone [2,6)", p)
		}
	}
}

func TestCityTripDistanceBounds(t *testing.T) {
	c := testCity(t, Config{CitySize: 8, WrapCity: true, MinTripDistance: 2, MaxTripDistance: 5}, 11)
	for i := 0; i < 1000; i++ {
		o := c.SampleOrigin()
		dest := c.SampleDestination(o)
		d := c.Distance(o, dest)
		if d < 2 || d > 5 {
			t.Fatalf("trip distance %d outside [2,5]", d)
		}
	}
}

func TestCityDestinationFailsClosed(t *testing.T) {
	// Min distance equal to the grid diameter is unsatisfiable by uniform
	// sampling most of the time; the fallback must still return a legal point.
	c := testCity(t, Config{CitySize: 4, WrapCity: true, MinTripDistance: 4, MaxTripDistance: 4}, 5)
	o := Point{0, 0}
	dest := c.SampleDestination(o)
	if dest.X < 0 || dest.X >= c.Size || dest.Y < 0 || dest.Y >= c.Size {
		t.Fatalf("fallback destination %v outside city", dest)
	}
}
