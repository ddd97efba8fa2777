package camera

import (
	gomath "math"
	"testing"

	"github.com/Faultbox/globestream/pkg/math"
)

func near(a, b float64) bool {
	return gomath.Abs(a-b) < 1e-9
}

func TestPositionAboveTarget(t *testing.T) {
	c := New()
	c.Alt = 1000
	p := c.Position()
	if !near(p.X, 0) || !near(p.Y, 0) || !near(p.Z, math.EarthRadius+1000) {
		t.Errorf("Position = %+v", p)
	}
}

func TestForwardLooksDownWithoutTilt(t *testing.T) {
	c := New()
	c.LookAt(90, 0)
	f := c.Forward()
	if !near(f.X, -1) || !near(f.Y, 0) || !near(f.Z, 0) {
		t.Errorf("Forward = %+v, want (-1, 0, 0)", f)
	}

	// Heading north at 0 tilt puts north at the top of the screen.
	u := c.Up()
	if !near(u.Y, 1) {
		t.Errorf("Up = %+v, want north", u)
	}
}

func TestTiltLeansTowardHeading(t *testing.T) {
	c := New()
	c.HandleRotate(0, gomath.Pi/4)
	f := c.Forward()
	if !(f.Y > 0 && f.Z < 0) {
		t.Errorf("tilted north Forward = %+v", f)
	}
	if d := f.Dot(c.Up()); !near(d, 0) {
		t.Errorf("forward and up not orthogonal: %v", d)
	}

	c.HandleRotate(0, 10)
	if c.Tilt != c.MaxTilt {
		t.Errorf("Tilt = %v, want clamp at %v", c.Tilt, c.MaxTilt)
	}
}

func TestMoveByWrapsAndClamps(t *testing.T) {
	c := New()
	c.LookAt(179, 89)
	c.MoveBy(2, 5)
	if !near(c.Lon, -179) {
		t.Errorf("Lon = %v, want -179", c.Lon)
	}
	if !near(c.Lat, 89.9) {
		t.Errorf("Lat = %v, want 89.9", c.Lat)
	}
}

func TestZoomRespectsGround(t *testing.T) {
	c := New()
	c.Alt = 5000
	c.SetGround(4950)
	if c.Alt < 4950+c.MinAltitude {
		t.Errorf("Alt = %v below ground clearance", c.Alt)
	}

	for i := 0; i < 200; i++ {
		c.HandleZoom(5)
	}
	if c.Alt < 4950+c.MinAltitude-1e-6 {
		t.Errorf("zoomed through the ground: %v", c.Alt)
	}

	c.SetAltitude(1e12)
	if c.Alt != c.MaxAltitude {
		t.Errorf("Alt = %v, want %v", c.Alt, c.MaxAltitude)
	}
}

func TestPickCentreOfScreen(t *testing.T) {
	c := New()
	c.LookAt(10, 20)
	c.Alt = 100000

	lon, lat, ok := c.Pick(400, 300, 800, 600)
	if !ok {
		t.Fatal("centre ray missed the globe")
	}
	if gomath.Abs(lon-10) > 1e-6 || gomath.Abs(lat-20) > 1e-6 {
		t.Errorf("Pick = (%v, %v), want (10, 20)", lon, lat)
	}

	c.Alt = 20000000
	if _, _, ok := c.Pick(0, 0, 800, 600); ok {
		t.Error("corner ray from far orbit should miss the globe")
	}
}

func TestJumpedFrom(t *testing.T) {
	prev := *New()
	prev.Alt = 1000000 // About 9 degrees of footprint

	tests := []struct {
		name     string
		lon, lat float64
		alt      float64
		want     bool
	}{
		{"still", 0, 0, 1000000, false},
		{"small pan", 1, 0, 1000000, false},
		{"large pan", 0, 20, 1000000, true},
		{"gentle zoom", 0, 0, 900000, false},
		{"fast zoom", 0, 0, 500000, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := prev
			c.Lon, c.Lat, c.Alt = tt.lon, tt.lat, tt.alt
			if got := c.JumpedFrom(prev); got != tt.want {
				t.Errorf("JumpedFrom = %v, want %v", got, tt.want)
			}
		})
	}

	// Crossing the antimeridian is a short hop.
	a, b := prev, prev
	a.Lon, b.Lon = -179.5, 179.5
	if b.JumpedFrom(a) {
		t.Error("seam crossing counted as a jump")
	}
}
