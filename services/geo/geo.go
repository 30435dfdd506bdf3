// Package geo holds coordinate validation and geodesic math used outside the database.
package geo

import (
	"math"

	"github.com/golang/geo/s1"
	"github.com/golang/geo/s2"

	"memory-lane-backend/services/apperr"
)

// EarthRadiusMeters - средний радиус Земли (IUGG)
const EarthRadiusMeters = 6371008.8

type Point struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

func (p Point) latLng() s2.LatLng {
	return s2.LatLngFromDegrees(p.Latitude, p.Longitude)
}

// ValidateCoordinates проверяет диапазоны широты и долготы
func ValidateCoordinates(lat, lon float64) error {
	if math.IsNaN(lat) || lat < -90 || lat > 90 {
		return apperr.Validation("latitude", "must be between -90 and 90")
	}
	if math.IsNaN(lon) || lon < -180 || lon > 180 {
		return apperr.Validation("longitude", "must be between -180 and 180")
	}
	return nil
}

func (p Point) Validate() error {
	return ValidateCoordinates(p.Latitude, p.Longitude)
}

// Distance - расстояние по большому кругу в метрах. Симметрично, 0 для одинаковых точек.
func Distance(a, b Point) float64 {
	if a == b {
		return 0
	}
	angle := a.latLng().Distance(b.latLng())
	return angle.Radians() * EarthRadiusMeters
}

// Offset возвращает точку на расстоянии meters от p по азимуту bearing (градусы от севера).
func Offset(p Point, bearing, meters float64) Point {
	delta := meters / EarthRadiusMeters
	theta := bearing * math.Pi / 180
	lat1 := p.Latitude * math.Pi / 180
	lon1 := p.Longitude * math.Pi / 180

	lat2 := math.Asin(math.Sin(lat1)*math.Cos(delta) + math.Cos(lat1)*math.Sin(delta)*math.Cos(theta))
	lon2 := lon1 + math.Atan2(math.Sin(theta)*math.Sin(delta)*math.Cos(lat1), math.Cos(delta)-math.Sin(lat1)*math.Sin(lat2))

	ll := s2.LatLng{Lat: s1.Angle(lat2), Lng: s1.Angle(lon2)}.Normalized()
	return Point{Latitude: ll.Lat.Degrees(), Longitude: ll.Lng.Degrees()}
}

// Centroid - центр масс точек на сфере
func Centroid(points []Point) Point {
	if len(points) == 0 {
		return Point{}
	}
	var sum s2.Point
	for _, p := range points {
		sum = s2.Point{Vector: sum.Add(s2.PointFromLatLng(p.latLng()).Vector)}
	}
	if sum.Norm() == 0 {
		return points[0]
	}
	ll := s2.LatLngFromPoint(s2.Point{Vector: sum.Normalize()})
	return Point{Latitude: ll.Lat.Degrees(), Longitude: ll.Lng.Degrees()}
}

// BBox - прямоугольник в градусах
type BBox struct {
	North float64 `json:"north"`
	South float64 `json:"south"`
	East  float64 `json:"east"`
	West  float64 `json:"west"`
}

func (b BBox) Validate() error {
	if err := ValidateCoordinates(b.North, b.East); err != nil {
		return err
	}
	if err := ValidateCoordinates(b.South, b.West); err != nil {
		return err
	}
	if b.North <= b.South {
		return apperr.Validation("north", "must be greater than south")
	}
	if b.East <= b.West {
		return apperr.Validation("east", "must be greater than west")
	}
	return nil
}

func (b BBox) Contains(p Point) bool {
	return p.Latitude >= b.South && p.Latitude <= b.North &&
		p.Longitude >= b.West && p.Longitude <= b.East
}

// Round2 округляет до сантиметров
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}
