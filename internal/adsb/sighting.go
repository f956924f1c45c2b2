// Package adsb provides ADS-B sighting types and feed decoding.
package adsb

import (
	"encoding/json"
	"strconv"
	"strings"
)

// FlexAlt handles altitude fields that can be either a number of feet or
// the literal string "ground" used by some feeds for aircraft on the surface.
type FlexAlt struct {
	Feet  int
	Valid bool
}

func (f *FlexAlt) UnmarshalJSON(data []byte) error {
	// An explicit null means "no altitude report", not 0 ft; unmarshalling
	// null into a float64 is a no-op that would leave the zero value valid.
	if string(data) == "null" {
		f.Valid = false
		return nil
	}

	// Try as number first
	var n float64
	if err := json.Unmarshal(data, &n); err == nil {
		f.Feet = int(n)
		f.Valid = true
		return nil
	}

	// Try as string
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		s = strings.TrimSpace(strings.ToLower(s))
		if s == "ground" {
			f.Feet = 0
			f.Valid = true
			return nil
		}
		if i, err := strconv.Atoi(s); err == nil {
			f.Feet = i
			f.Valid = true
			return nil
		}
		// Silently ignore unparseable altitudes
		f.Valid = false
		return nil
	}

	f.Valid = false
	return nil
}

// MarshalJSON emits the altitude in feet, or null when absent.
func (f FlexAlt) MarshalJSON() ([]byte, error) {
	if !f.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(f.Feet)
}

// Sighting represents one observation of an aircraft from a feed.
// Hex is the 24-bit ICAO address; everything else is optional.
type Sighting struct {
	Hex         string   `json:"hex"`
	Flight      string   `json:"flight,omitempty"`
	Squawk      string   `json:"squawk,omitempty"`
	Lat         *float64 `json:"lat,omitempty"`
	Lon         *float64 `json:"lon,omitempty"`
	AltBaro     FlexAlt  `json:"alt_baro,omitempty"`
	GroundSpeed *float64 `json:"gs,omitempty"`
	Track       *float64 `json:"track,omitempty"`
}

// Normalize canonicalises the identity fields in place: the ICAO address is
// lowercased and the callsign is stripped of padding whitespace.
func (s *Sighting) Normalize() {
	s.Hex = strings.ToLower(strings.TrimSpace(s.Hex))
	s.Flight = strings.TrimSpace(s.Flight)
	s.Squawk = strings.TrimSpace(s.Squawk)
}

// Altitude returns the barometric altitude in feet, or nil if absent.
func (s *Sighting) Altitude() *int {
	if !s.AltBaro.Valid {
		return nil
	}
	ft := s.AltBaro.Feet
	return &ft
}

// HasPosition returns true if the sighting carries coordinates.
func (s *Sighting) HasPosition() bool {
	return s.Lat != nil && s.Lon != nil
}

// FeedResponse is the envelope returned by adsb.one-style point queries.
type FeedResponse struct {
	Aircraft []Sighting `json:"ac"`
	Total    int        `json:"total"`
	Now      int64      `json:"now"` // Feed server time, epoch milliseconds.
}

// DecodeFeed parses a feed response body into normalized sightings.
func DecodeFeed(data []byte) ([]Sighting, error) {
	var resp FeedResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, err
	}
	for i := range resp.Aircraft {
		resp.Aircraft[i].Normalize()
	}
	return resp.Aircraft, nil
}
