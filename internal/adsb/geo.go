package adsb

import "math"

const (
	earthRadiusKM = 6371.0088
	kmPerNM       = 1.852
)

// Distance returns the great-circle distance between two coordinates in
// kilometres, using the haversine formula.
func Distance(lat1, lon1, lat2, lon2 float64) float64 {
	rad := math.Pi / 180
	dLat := (lat2 - lat1) * rad
	dLon := (lon2 - lon1) * rad

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1*rad)*math.Cos(lat2*rad)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusKM * math.Asin(math.Sqrt(a))
}

// PointOfInterest defines a circular region around a coordinate. Unit is
// "km" or "nm"; anything else is treated as kilometres.
type PointOfInterest struct {
	Lat      float64
	Lon      float64
	Distance float64
	Unit     string
}

// Contains reports whether the sighting lies within the region. Sightings
// without coordinates are never contained.
func (p PointOfInterest) Contains(s *Sighting) bool {
	if !s.HasPosition() {
		return false
	}
	dist := Distance(*s.Lat, *s.Lon, p.Lat, p.Lon)
	if p.Unit == "nm" {
		dist /= kmPerNM
	}
	return dist <= p.Distance
}

// Filter returns the sightings contained in the region.
func (p PointOfInterest) Filter(sightings []Sighting) []Sighting {
	out := make([]Sighting, 0, len(sightings))
	for i := range sightings {
		if p.Contains(&sightings[i]) {
			out = append(out, sightings[i])
		}
	}
	return out
}
