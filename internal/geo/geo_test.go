package geo

import (
	"errors"
	"math"
	"testing"

	geom "github.com/peterstace/simplefeatures/geom"
	"github.com/spotterhq/spotter/pkg/core"
)

func TestCoordinateFromString_ValidWithAltitude(t *testing.T) {
	c, alt, err := CoordinateFromString("40.5,-74.25,50.0")

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.Latitude != 40.5 {
		t.Errorf("expected lat=40.5, got %f", c.Latitude)
	}
	if c.Longitude != -74.25 {
		t.Errorf("expected lon=-74.25, got %f", c.Longitude)
	}
	if alt != 50.0 {
		t.Errorf("expected altitude=50.0, got %f", alt)
	}
}

func TestCoordinateFromString_ValidWithoutAltitude(t *testing.T) {
	c, alt, err := CoordinateFromString(" 12.5 , 100.25 ")

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.Latitude != 12.5 || c.Longitude != 100.25 {
		t.Errorf("expected 12.5,100.25, got %v", c)
	}
	if alt != 0 {
		t.Errorf("expected altitude=0, got %f", alt)
	}
}

func TestCoordinateFromString_Invalid(t *testing.T) {
	inputs := []string{
		"",
		"40.5",
		"abc,10",
		"10,xyz",
		"10,10,invalid",
		"91,0",
		"0,-180.5",
	}
	for _, in := range inputs {
		_, _, err := CoordinateFromString(in)
		if err == nil {
			t.Errorf("expected error for %q", in)
			continue
		}
		if !errors.Is(err, ErrInvalidCoordinates) {
			t.Errorf("expected ErrInvalidCoordinates for %q, got %v", in, err)
		}
	}
}

func TestPoint3857_Origin(t *testing.T) {
	point := Point3857(core.GeoCoordinate{}, 0)

	coords, ok := point.Coordinates()
	if !ok {
		t.Fatal("expected valid coordinates")
	}
	// At (0, 0) in 4326, the 3857 coordinates should also be (0, 0)
	if math.Abs(coords.X) > 1e-6 {
		t.Errorf("expected X=0 at origin, got %f", coords.X)
	}
	if math.Abs(coords.Y) > 1e-6 {
		t.Errorf("expected Y=0 at origin, got %f", coords.Y)
	}
}

func TestPoint3857_Hemispheres(t *testing.T) {
	point := Point3857(core.GeoCoordinate{Latitude: -30, Longitude: -45}, 12)

	coords, ok := point.Coordinates()
	if !ok {
		t.Fatal("expected valid coordinates")
	}
	if coords.X >= 0 {
		t.Errorf("expected negative X for western hemisphere, got %f", coords.X)
	}
	if coords.Y >= 0 {
		t.Errorf("expected negative Y for southern hemisphere, got %f", coords.Y)
	}
	if coords.Z != 12 {
		t.Errorf("expected Z=12, got %f", coords.Z)
	}
}

func TestCoordinateFrom3857_RoundTrip(t *testing.T) {
	in := core.GeoCoordinate{Latitude: 48.8584, Longitude: 2.2945}

	out, elev, err := CoordinateFrom3857(Point3857(in, 330))

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if math.Abs(out.Latitude-in.Latitude) > 1e-6 || math.Abs(out.Longitude-in.Longitude) > 1e-6 {
		t.Errorf("expected %v, got %v", in, out)
	}
	if elev != 330 {
		t.Errorf("expected elevation=330, got %f", elev)
	}
}

func TestCoordinateFrom3857_EmptyPoint(t *testing.T) {
	_, _, err := CoordinateFrom3857(geom.NewEmptyPoint(geom.DimXYZ))

	if !errors.Is(err, ErrInvalidCoordinates) {
		t.Errorf("expected ErrInvalidCoordinates, got %v", err)
	}
}
