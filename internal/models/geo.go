package models

import "math"

// GeoPoint is a GeoJSON point. Coordinates are [lng, lat].
type GeoPoint struct {
	Type        string    `json:"type" bson:"type" firestore:"type"`
	Coordinates []float64 `json:"coordinates" bson:"coordinates" firestore:"coordinates"`
}

func (p *GeoPoint) Lng() float64 { return p.Coordinates[0] }
func (p *GeoPoint) Lat() float64 { return p.Coordinates[1] }

// LngLat is the request-side form of a point.
type LngLat struct {
	Lng float64 `json:"lng"`
	Lat float64 `json:"lat"`
}

func (l *LngLat) GeoPoint() *GeoPoint {
	return &GeoPoint{Type: "Point", Coordinates: []float64{l.Lng, l.Lat}}
}

func (l *LngLat) validate() string {
	if math.IsNaN(l.Lng) || l.Lng < -180 || l.Lng > 180 {
		return "Longitude must be between -180 and 180"
	}
	if math.IsNaN(l.Lat) || l.Lat < -90 || l.Lat > 90 {
		return "Latitude must be between -90 and 90"
	}
	return ""
}

// ValidCoordinates reports whether lng/lat are within range.
func ValidCoordinates(lng, lat float64) bool {
	l := LngLat{Lng: lng, Lat: lat}
	return l.validate() == ""
}
