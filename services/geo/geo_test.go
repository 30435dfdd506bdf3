package geo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"memory-lane-backend/services/apperr"
)

var (
	nyc    = Point{Latitude: 40.7128, Longitude: -74.0060}
	london = Point{Latitude: 51.5074, Longitude: -0.1278}
)

func TestDistanceZeroForSamePoint(t *testing.T) {
	for _, p := range []Point{nyc, london, {90, 0}, {-90, 180}, {0, -180}} {
		assert.Equal(t, 0.0, Distance(p, p))
	}
}

func TestDistanceSymmetric(t *testing.T) {
	pairs := [][2]Point{
		{nyc, london},
		{{0, 0}, {0, 179.9}},
		{{-33.8688, 151.2093}, {35.6762, 139.6503}},
	}
	for _, pair := range pairs {
		assert.InDelta(t, Distance(pair[0], pair[1]), Distance(pair[1], pair[0]), 1e-6)
	}
}

func TestDistanceKnownValue(t *testing.T) {
	// NYC - London ~5570 km
	assert.InDelta(t, 5_570_000, Distance(nyc, london), 10_000)
}

func TestOffsetRoundTrip(t *testing.T) {
	for _, bearing := range []float64{0, 45, 90, 180, 270} {
		p := Offset(nyc, bearing, 500)
		assert.InDelta(t, 500, Distance(nyc, p), 0.5)
	}
}

func TestCentroid(t *testing.T) {
	a := Point{Latitude: 10, Longitude: 10}
	b := Point{Latitude: 10, Longitude: 12}
	c := Centroid([]Point{a, b})
	assert.InDelta(t, 11, c.Longitude, 1e-6)
	assert.InDelta(t, 10, c.Latitude, 0.01)

	assert.Equal(t, Point{}, Centroid(nil))
	assert.Equal(t, nyc.Latitude, Centroid([]Point{nyc}).Latitude)
}

func TestValidateCoordinates(t *testing.T) {
	require.NoError(t, ValidateCoordinates(90, -180))

	err := ValidateCoordinates(91, 0)
	require.Error(t, err)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
	assert.Equal(t, "latitude", apperr.FieldOf(err))

	err = ValidateCoordinates(0, 180.5)
	assert.Equal(t, "longitude", apperr.FieldOf(err))
}

func TestBBox(t *testing.T) {
	b := BBox{North: 41, South: 40, East: -73, West: -75}
	require.NoError(t, b.Validate())
	assert.True(t, b.Contains(nyc))
	assert.False(t, b.Contains(london))

	assert.Error(t, BBox{North: 40, South: 41, East: -73, West: -75}.Validate())
	assert.Error(t, BBox{North: 41, South: 40, East: -75, West: -73}.Validate())
}
