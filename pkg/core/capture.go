// pkg/core/capture.go
package core

import (
	"fmt"
	"math"
	"time"
)

// GeoCoordinate is a WGS-84 position in degrees.
type GeoCoordinate struct {
	Latitude  float64 `json:"lat"`
	Longitude float64 `json:"lon"`
}

// Valid reports whether the coordinate lies within the WGS-84 domain.
func (c GeoCoordinate) Valid() bool {
	if math.IsNaN(c.Latitude) || math.IsNaN(c.Longitude) {
		return false
	}
	return c.Latitude >= -90 && c.Latitude <= 90 && c.Longitude >= -180 && c.Longitude <= 180
}

func (c GeoCoordinate) String() string {
	return fmt.Sprintf("%.6f,%.6f", c.Latitude, c.Longitude)
}

// ImageSize is the captured image resolution in pixels.
type ImageSize struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Center returns the pixel coordinates of the image center.
func (s ImageSize) Center() TapPoint {
	return TapPoint{X: s.Width / 2, Y: s.Height / 2}
}

// TapPoint is a user-selected pixel within the captured image.
type TapPoint struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Within reports whether the tap lies inside [0,width]x[0,height].
func (p TapPoint) Within(s ImageSize) bool {
	if math.IsNaN(p.X) || math.IsNaN(p.Y) {
		return false
	}
	return p.X >= 0 && p.X <= s.Width && p.Y >= 0 && p.Y <= s.Height
}

// CaptureMetadata is produced by the capture collaborator and is read-only
// to the engine.
type CaptureMetadata struct {
	Timestamp   time.Time     `json:"timestamp"`
	Observer    GeoCoordinate `json:"observer"`
	Altitude    float64       `json:"altitude"`    // meters above sea level
	Heading     float64       `json:"heading"`     // degrees clockwise from true north
	Pitch       float64       `json:"pitch"`       // informational
	Roll        float64       `json:"roll"`        // informational
	FocalLength float64       `json:"focalLength"` // millimeters, informational
	Image       ImageSize     `json:"image"`
	ZoomFactor  float64       `json:"zoomFactor"`
	FieldOfView float64       `json:"fieldOfView"` // base horizontal FOV at zoom 1, degrees
	GPSAccuracy float64       `json:"gpsAccuracy"` // meters
}

// EffectiveFieldOfView is the base FOV narrowed by the zoom factor.
func (m CaptureMetadata) EffectiveFieldOfView() float64 {
	if m.ZoomFactor <= 0 {
		return m.FieldOfView
	}
	return m.FieldOfView / m.ZoomFactor
}

// Validate checks every field against its documented domain.
// Violations wrap ErrInvalidInput.
func (m CaptureMetadata) Validate(minZoom, maxZoom float64) error {
	if !m.Observer.Valid() {
		return fmt.Errorf("%w: observer %s out of range", ErrInvalidInput, m.Observer)
	}
	if !finite(m.Altitude) {
		return fmt.Errorf("%w: altitude %v", ErrInvalidInput, m.Altitude)
	}
	if !finite(m.Heading) || m.Heading < 0 || m.Heading >= 360 {
		return fmt.Errorf("%w: heading %v not in [0,360)", ErrInvalidInput, m.Heading)
	}
	if !finite(m.Image.Width) || !finite(m.Image.Height) || m.Image.Width <= 0 || m.Image.Height <= 0 {
		return fmt.Errorf("%w: image size %vx%v", ErrInvalidInput, m.Image.Width, m.Image.Height)
	}
	if !finite(m.ZoomFactor) || m.ZoomFactor < minZoom || m.ZoomFactor > maxZoom {
		return fmt.Errorf("%w: zoom factor %v not in [%v,%v]", ErrInvalidInput, m.ZoomFactor, minZoom, maxZoom)
	}
	fov := m.EffectiveFieldOfView()
	if !finite(fov) || fov <= 0 || fov >= 180 {
		return fmt.Errorf("%w: effective field of view %v not in (0,180)", ErrInvalidInput, fov)
	}
	if !finite(m.GPSAccuracy) || m.GPSAccuracy < 0 {
		return fmt.Errorf("%w: gps accuracy %v", ErrInvalidInput, m.GPSAccuracy)
	}
	return nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
