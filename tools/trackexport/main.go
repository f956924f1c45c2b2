// Package main provides a tool to export an aircraft's position history to
// KML format. KML (Keyhole Markup Language) files can be viewed in Google
// Earth, Google Maps, and other mapping applications.
package main

import (
	"context"
	"encoding/xml"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"adsb_tracker/internal/storage"
)

// KML structures for XML marshalling.
// These follow the KML 2.2 specification: https://developers.google.com/kml/documentation/kmlreference

// KML is the root element of a KML document.
type KML struct {
	XMLName   xml.Name `xml:"kml"`
	Namespace string   `xml:"xmlns,attr"`
	Document  Document `xml:"Document"`
}

// Document contains the document metadata and features.
type Document struct {
	Name        string      `xml:"name"`
	Description string      `xml:"description,omitempty"`
	Styles      []Style     `xml:"Style,omitempty"`
	Placemarks  []Placemark `xml:"Placemark"`
}

// Style defines the visual appearance of features.
type Style struct {
	ID        string     `xml:"id,attr"`
	LineStyle *LineStyle `xml:"LineStyle,omitempty"`
	IconStyle *IconStyle `xml:"IconStyle,omitempty"`
}

// LineStyle defines how lines are drawn.
type LineStyle struct {
	Color string  `xml:"color"`
	Width float64 `xml:"width"`
}

// IconStyle defines how icons are displayed.
type IconStyle struct {
	Scale float64 `xml:"scale,omitempty"`
	Icon  Icon    `xml:"Icon"`
}

// Icon specifies the icon image.
type Icon struct {
	Href string `xml:"href"`
}

// Placemark represents a geographic feature with geometry and metadata.
type Placemark struct {
	Name         string        `xml:"name"`
	Description  string        `xml:"description,omitempty"`
	StyleURL     string        `xml:"styleUrl,omitempty"`
	LineString   *LineString   `xml:"LineString,omitempty"`
	Point        *Point        `xml:"Point,omitempty"`
	ExtendedData *ExtendedData `xml:"ExtendedData,omitempty"`
}

// LineString represents a connected path of coordinates.
type LineString struct {
	Extrude      int    `xml:"extrude"`
	Tessellate   int    `xml:"tessellate"`
	AltitudeMode string `xml:"altitudeMode"`
	Coordinates  string `xml:"coordinates"` // Whitespace-separated lon,lat,altitude triples.
}

// Point represents a geographic location.
type Point struct {
	Coordinates string `xml:"coordinates"` // Format: lon,lat,altitude
}

// ExtendedData holds custom data associated with a placemark.
type ExtendedData struct {
	Data []Data `xml:"Data"`
}

// Data represents a single piece of extended data.
type Data struct {
	Name  string `xml:"name,attr"`
	Value string `xml:"value"`
}

const feetPerMetre = 3.28084

func main() {
	dbPath := flag.String("db", "adsb_tracker.db", "SQLite database file")
	dataset := flag.String("dataset", "civilian", "Dataset to export from")
	datasetSpec := flag.String("datasets", "", "Dataset mapping (name=state,history;...), defaults to civilian/military")
	hex := flag.String("hex", "", "ICAO 24-bit address to export (required)")
	output := flag.String("output", "", "Output KML file (default: stdout)")
	showStats := flag.Bool("stats", false, "Show statistics only, don't export")
	verbose := flag.Bool("v", false, "Verbose output")

	flag.Parse()

	ctx := context.Background()

	db, err := storage.OpenSQLite(*dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening database: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	datasets := storage.DefaultDatasets()
	if *datasetSpec != "" {
		datasets, err = parseDatasets(*datasetSpec)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Dataset config error: %v\n", err)
			os.Exit(1)
		}
	}
	tables, err := datasets.Resolve(*dataset)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	// Show stats mode.
	if *showStats {
		showTrackStats(ctx, db, tables)
		return
	}

	if *hex == "" {
		fmt.Fprintf(os.Stderr, "Error: -hex is required\n")
		os.Exit(2)
	}

	kml, count, err := exportTrack(ctx, db, tables, *hex)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if count == 0 {
		fmt.Fprintf(os.Stderr, "No position history for %s\n", *hex)
		os.Exit(0)
	}

	if *verbose {
		fmt.Fprintf(os.Stderr, "Exporting %d positions for %s to KML\n", count, *hex)
	}

	xmlData, err := xml.MarshalIndent(kml, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error generating KML: %v\n", err)
		os.Exit(1)
	}
	xmlOutput := xml.Header + string(xmlData)

	if *output != "" {
		if err := os.WriteFile(*output, []byte(xmlOutput), 0644); err != nil {
			fmt.Fprintf(os.Stderr, "Error writing file: %v\n", err)
			os.Exit(1)
		}
		if *verbose {
			fmt.Fprintf(os.Stderr, "Wrote %s\n", *output)
		}
	} else {
		fmt.Println(xmlOutput)
	}
}

func parseDatasets(spec string) (*storage.Datasets, error) {
	cfg := make(map[string][]string)
	for _, part := range strings.Split(spec, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		name, tables, ok := strings.Cut(part, "=")
		if !ok {
			return nil, fmt.Errorf("invalid dataset entry %q (want name=state,history)", part)
		}
		var pair []string
		for _, tbl := range strings.Split(tables, ",") {
			if tbl = strings.TrimSpace(tbl); tbl != "" {
				pair = append(pair, tbl)
			}
		}
		cfg[strings.TrimSpace(name)] = pair
	}
	return storage.NewDatasets(cfg)
}

// exportTrack queries an aircraft's history and builds its KML document.
// The address is normalized the same way ingestion normalizes it, so
// mixed-case input still matches stored rows.
func exportTrack(ctx context.Context, db *storage.SQLiteDB, tables storage.Tables, hex string) (KML, int, error) {
	hex = strings.ToLower(strings.TrimSpace(hex))

	positions, err := db.Positions(ctx, tables, hex)
	if err != nil {
		return KML{}, 0, fmt.Errorf("query positions: %w", err)
	}
	if len(positions) == 0 {
		return KML{}, 0, nil
	}

	aircraft, err := db.GetAircraft(ctx, tables, hex)
	if err != nil {
		return KML{}, 0, fmt.Errorf("query aircraft: %w", err)
	}

	return generateKML(hex, aircraft, positions), len(positions), nil
}

// generateKML creates a KML document with the flight track as a line plus a
// placemark at the last known position.
func generateKML(hex string, aircraft *storage.AircraftState, positions []storage.PositionRecord) KML {
	name := hex
	if aircraft != nil && aircraft.Flight != "" {
		name = fmt.Sprintf("%s (%s)", aircraft.Flight, hex)
	}

	var coords string
	for _, p := range positions {
		if p.Lat == nil || p.Lon == nil {
			continue
		}
		altMetres := 0.0
		if p.Altitude != nil {
			altMetres = float64(*p.Altitude) / feetPerMetre
		}
		coords += fmt.Sprintf("%.6f,%.6f,%.0f\n", *p.Lon, *p.Lat, altMetres)
	}

	placemarks := []Placemark{
		{
			Name:     name,
			StyleURL: "#trackStyle",
			LineString: &LineString{
				Tessellate:   1,
				AltitudeMode: "absolute",
				Coordinates:  coords,
			},
		},
	}

	// Mark the most recent position.
	last := positions[len(positions)-1]
	if last.Lat != nil && last.Lon != nil {
		altMetres := 0.0
		if last.Altitude != nil {
			altMetres = float64(*last.Altitude) / feetPerMetre
		}
		data := []Data{
			{Name: "icao24", Value: hex},
			{Name: "timestamp", Value: time.Unix(last.Timestamp, 0).UTC().Format(time.RFC3339)},
		}
		if last.GroundSpeed != nil {
			data = append(data, Data{Name: "ground_speed", Value: fmt.Sprintf("%.1f", *last.GroundSpeed)})
		}
		if last.Track != nil {
			data = append(data, Data{Name: "track", Value: fmt.Sprintf("%.1f", *last.Track)})
		}
		placemarks = append(placemarks, Placemark{
			Name:         "Last position",
			StyleURL:     "#lastPosStyle",
			Point:        &Point{Coordinates: fmt.Sprintf("%.6f,%.6f,%.0f", *last.Lon, *last.Lat, altMetres)},
			ExtendedData: &ExtendedData{Data: data},
		})
	}

	return KML{
		Namespace: "http://www.opengis.net/kml/2.2",
		Document: Document{
			Name:        fmt.Sprintf("Track for %s", name),
			Description: fmt.Sprintf("Position history exported %s.", time.Now().Format("2006-01-02 15:04:05")),
			Styles: []Style{
				{
					ID:        "trackStyle",
					LineStyle: &LineStyle{Color: "ff0000ff", Width: 2},
				},
				{
					ID: "lastPosStyle",
					IconStyle: &IconStyle{
						Scale: 0.8,
						Icon: Icon{
							Href: "http://maps.google.com/mapfiles/kml/shapes/airports.png",
						},
					},
				},
			},
			Placemarks: placemarks,
		},
	}
}

// showTrackStats displays statistics about the dataset's position history.
func showTrackStats(ctx context.Context, db *storage.SQLiteDB, tables storage.Tables) {
	aircraft, err := db.ListAircraft(ctx, tables)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error listing aircraft: %v\n", err)
		os.Exit(1)
	}

	total := 0
	maxCount := 0
	var maxHex string
	var oldest, newest int64
	for _, a := range aircraft {
		n, err := db.CountPositions(ctx, tables, a.Hex)
		if err != nil {
			continue
		}
		total += n
		if n > maxCount {
			maxCount = n
			maxHex = a.Hex
		}
		if oldest == 0 || a.FirstSeen < oldest {
			oldest = a.FirstSeen
		}
		if a.LastSeen > newest {
			newest = a.LastSeen
		}
	}

	fmt.Println("Track Statistics")
	fmt.Println("────────────────")
	fmt.Printf("Aircraft tracked:    %d\n", len(aircraft))
	fmt.Printf("Positions recorded:  %d\n", total)
	if maxHex != "" {
		fmt.Printf("Longest track:       %s (%d positions)\n", maxHex, maxCount)
	}
	if oldest > 0 {
		fmt.Printf("Date range:          %s to %s\n",
			time.Unix(oldest, 0).UTC().Format("2006-01-02"),
			time.Unix(newest, 0).UTC().Format("2006-01-02"))
	}
}
