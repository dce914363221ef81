package geo

import (
	"errors"
	"strconv"
	"strings"

	geom "github.com/peterstace/simplefeatures/geom"
	"github.com/spotterhq/spotter/pkg/core"
	"github.com/wroge/wgs84"
)

// GEO POINTS
// Candidate locations are stored as EPSG:3857 WKB points alongside plain lat/lon columns,
// because SQLite has no spatial awareness and the points must survive a Scan round trip.

// ErrInvalidCoordinates is returned when the coordinates are invalid
var ErrInvalidCoordinates = errors.New("invalid coordinates provided")

// CoordinateFromString parses "lat,lon" or "lat,lon,alt" into a coordinate and altitude.
func CoordinateFromString(coords string) (core.GeoCoordinate, float64, error) {
	coordsSplit := strings.Split(coords, ",")
	if len(coordsSplit) < 2 {
		return core.GeoCoordinate{}, 0, ErrInvalidCoordinates
	}
	lat, err := strconv.ParseFloat(strings.TrimSpace(coordsSplit[0]), 64)
	if err != nil {
		return core.GeoCoordinate{}, 0, ErrInvalidCoordinates
	}
	lon, err := strconv.ParseFloat(strings.TrimSpace(coordsSplit[1]), 64)
	if err != nil {
		return core.GeoCoordinate{}, 0, ErrInvalidCoordinates
	}
	var alt float64
	if len(coordsSplit) > 2 {
		alt, err = strconv.ParseFloat(strings.TrimSpace(coordsSplit[2]), 64)
		if err != nil {
			return core.GeoCoordinate{}, 0, ErrInvalidCoordinates
		}
	}
	c := core.GeoCoordinate{Latitude: lat, Longitude: lon}
	if !c.Valid() {
		return core.GeoCoordinate{}, 0, ErrInvalidCoordinates
	}
	return c, alt, nil
}

// Point3857 projects a WGS-84 coordinate to a Web Mercator point carrying elev as Z.
func Point3857(c core.GeoCoordinate, elev float64) geom.Point {
	epsg := wgs84.EPSG()
	f := epsg.Transform(4326, 3857)
	x, y, _ := f(c.Longitude, c.Latitude, 0)
	return geom.NewPoint(
		geom.Coordinates{
			XY:   geom.XY{X: x, Y: y},
			Z:    elev,
			Type: geom.CoordinatesType(geom.DimXYZ),
		},
	)
}

// CoordinateFrom3857 reverses Point3857. Empty points yield ErrInvalidCoordinates.
func CoordinateFrom3857(point geom.Point) (core.GeoCoordinate, float64, error) {
	coords, ok := point.Coordinates()
	if !ok {
		return core.GeoCoordinate{}, 0, ErrInvalidCoordinates
	}
	epsg := wgs84.EPSG()
	f := epsg.Transform(3857, 4326)
	lon, lat, _ := f(coords.X, coords.Y, 0)
	return core.GeoCoordinate{Latitude: lat, Longitude: lon}, coords.Z, nil
}
