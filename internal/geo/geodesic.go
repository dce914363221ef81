package geo

import (
	"math"

	"github.com/spotterhq/spotter/pkg/core"
)

// EarthRadiusMeters is the mean Earth radius of the spherical WGS-84 approximation.
const EarthRadiusMeters = 6371008.8

const (
	deg2rad = math.Pi / 180.0
	rad2deg = 180.0 / math.Pi
)

// NormalizeBearing maps any angle into [0,360). NaN and infinities map to 0.
func NormalizeBearing(deg float64) float64 {
	if math.IsNaN(deg) || math.IsInf(deg, 0) {
		return 0
	}
	b := math.Mod(deg, 360)
	if b < 0 {
		b += 360
	}
	// -1e-14 + 360 rounds to 360
	if b >= 360 {
		b = 0
	}
	return b
}

// BearingDelta is the minimal circular difference between two bearings, in [0,180].
func BearingDelta(a, b float64) float64 {
	d := math.Mod(math.Abs(a-b), 360)
	if math.IsNaN(d) {
		return 180
	}
	if d > 180 {
		d = 360 - d
	}
	return d
}

// BearingBetween returns the initial great-circle bearing from a to b.
// Coincident points return 0.
func BearingBetween(a, b core.GeoCoordinate) float64 {
	if a == b {
		return 0
	}
	lat1 := a.Latitude * deg2rad
	lat2 := b.Latitude * deg2rad
	dLon := (b.Longitude - a.Longitude) * deg2rad

	y := math.Sin(dLon) * math.Cos(lat2)
	x := math.Cos(lat1)*math.Sin(lat2) - math.Sin(lat1)*math.Cos(lat2)*math.Cos(dLon)
	if x == 0 && y == 0 {
		return 0
	}
	return NormalizeBearing(math.Atan2(y, x) * rad2deg)
}

// DistanceBetween returns the haversine distance in meters.
func DistanceBetween(a, b core.GeoCoordinate) float64 {
	lat1 := a.Latitude * deg2rad
	lat2 := b.Latitude * deg2rad
	dLat := lat2 - lat1
	dLon := (b.Longitude - a.Longitude) * deg2rad

	sinLat := math.Sin(dLat / 2)
	sinLon := math.Sin(dLon / 2)
	h := sinLat*sinLat + math.Cos(lat1)*math.Cos(lat2)*sinLon*sinLon
	h = clamp(h, 0, 1)
	return 2 * EarthRadiusMeters * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}

// Destination projects a point distance meters from origin along bearing.
func Destination(origin core.GeoCoordinate, bearing, distance float64) core.GeoCoordinate {
	lat1 := origin.Latitude * deg2rad
	lon1 := origin.Longitude * deg2rad
	theta := NormalizeBearing(bearing) * deg2rad
	delta := distance / EarthRadiusMeters

	sinLat2 := math.Sin(lat1)*math.Cos(delta) + math.Cos(lat1)*math.Sin(delta)*math.Cos(theta)
	lat2 := math.Asin(clamp(sinLat2, -1, 1))
	lon2 := lon1 + math.Atan2(
		math.Sin(theta)*math.Sin(delta)*math.Cos(lat1),
		math.Cos(delta)-math.Sin(lat1)*math.Sin(lat2),
	)

	return core.GeoCoordinate{
		Latitude:  clamp(lat2*rad2deg, -90, 90),
		Longitude: normalizeLongitude(lon2 * rad2deg),
	}
}

// BoundingBox is a lat/lon window enclosing a search circle.
type BoundingBox struct {
	MinLat, MaxLat float64
	MinLon, MaxLon float64
	// AllLongitudes is set when the circle reaches a pole or crosses the antimeridian.
	AllLongitudes bool
}

// SearchBounds returns a box containing every point within radius meters of origin.
func SearchBounds(origin core.GeoCoordinate, radius float64) BoundingBox {
	dLat := radius / EarthRadiusMeters * rad2deg
	box := BoundingBox{
		MinLat: math.Max(origin.Latitude-dLat, -90),
		MaxLat: math.Min(origin.Latitude+dLat, 90),
	}
	if box.MinLat <= -90 || box.MaxLat >= 90 {
		box.AllLongitudes = true
		box.MinLon, box.MaxLon = -180, 180
		return box
	}
	cosLat := math.Cos(math.Max(math.Abs(box.MinLat), math.Abs(box.MaxLat)) * deg2rad)
	dLon := dLat / cosLat
	box.MinLon = origin.Longitude - dLon
	box.MaxLon = origin.Longitude + dLon
	if dLon >= 180 || box.MinLon < -180 || box.MaxLon > 180 {
		box.AllLongitudes = true
		box.MinLon, box.MaxLon = -180, 180
	}
	return box
}

func normalizeLongitude(lon float64) float64 {
	l := math.Mod(lon+540, 360) - 180
	if l == -180 && lon > 0 {
		return 180
	}
	return l
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
