package bearing

import (
	"testing"

	"github.com/spotterhq/spotter/pkg/core"
	"github.com/stretchr/testify/assert"
)

var img = core.ImageSize{Width: 4000, Height: 3000}

func TestProject_Center(t *testing.T) {
	assert.InDelta(t, 90.0, Project(core.TapPoint{X: 2000, Y: 1500}, img, 90, 60), 1e-9)
}

func TestProject_Edges(t *testing.T) {
	assert.InDelta(t, 60.0, Project(core.TapPoint{X: 0, Y: 0}, img, 90, 60), 1e-9)
	assert.InDelta(t, 120.0, Project(core.TapPoint{X: 4000, Y: 3000}, img, 90, 60), 1e-9)
}

func TestProject_WrapsAroundNorth(t *testing.T) {
	assert.InDelta(t, 340.0, Project(core.TapPoint{X: 0}, img, 10, 60), 1e-9)
	assert.InDelta(t, 20.0, Project(core.TapPoint{X: 4000}, img, 350, 60), 1e-9)
}

func TestProject_AlwaysInRange(t *testing.T) {
	for h := 0.0; h < 360; h += 7.5 {
		for x := 0.0; x <= img.Width; x += 250 {
			for _, fov := range []float64{0.5, 30, 63.5, 179.9} {
				b := Project(core.TapPoint{X: x, Y: 10}, img, h, fov)
				assert.GreaterOrEqual(t, b, 0.0)
				assert.Less(t, b, 360.0)
			}
		}
	}
}

func TestProject_ZoomNarrowsOffset(t *testing.T) {
	tap := core.TapPoint{X: 3000, Y: 1500}
	wide := Project(tap, img, 0, 60)
	narrow := Project(tap, img, 0, 60.0/4)

	assert.InDelta(t, 15.0, wide, 1e-9)
	assert.InDelta(t, 3.75, narrow, 1e-9)
}

func TestCenter(t *testing.T) {
	assert.Equal(t, 0.0, Center(360))
	assert.Equal(t, 45.0, Center(45))
}
