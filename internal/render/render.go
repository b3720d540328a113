package render

import (
	"embed"
	"encoding/json"
	"fmt"
	"html/template"
	"math"
	"os"

	"stopmap/internal/trajectory"
)

//go:embed templates/*.html
var templatesFS embed.FS

const timeLayout = "2006-01-02 15:04:05"

type Options struct {
	Title       string
	Zoom        int
	PathColor   string
	MarkerColor string
	FallbackLat float64
	FallbackLon float64
}

func DefaultOptions() Options {
	return Options{
		Title:       "Vehicle Stoppages",
		Zoom:        12,
		PathColor:   "blue",
		MarkerColor: "red",
		// near Borkhedi, Maharashtra, India
		FallbackLat: 20.0827,
		FallbackLon: 78.9629,
	}
}

// Snapshot is the JSON payload the map page consumes. The live server
// broadcasts the same shape over its websocket.
type Snapshot struct {
	CenterLat float64        `json:"centerLat"`
	CenterLon float64        `json:"centerLon"`
	Zoom      int            `json:"zoom"`
	Vehicles  []VehicleTrack `json:"vehicles"`
}

type VehicleTrack struct {
	ID    string       `json:"id"`
	Path  [][2]float64 `json:"path"`
	Stops []StopMarker `json:"stops"`
}

type StopMarker struct {
	Lat             float64 `json:"lat"`
	Lon             float64 `json:"lon"`
	ReachTime       string  `json:"reachTime"`
	EndTime         string  `json:"endTime"`
	DurationMinutes float64 `json:"durationMinutes"`
}

// Center returns the arithmetic mean of all point coordinates, or false when
// there are no points.
func Center(analyses []trajectory.Analysis) (float64, float64, bool) {
	var lat, lon float64
	n := 0
	for _, a := range analyses {
		for _, p := range a.Trajectory.Points {
			lat += p.Lat
			lon += p.Lon
			n++
		}
	}
	if n == 0 {
		return 0, 0, false
	}
	return lat / float64(n), lon / float64(n), true
}

// BuildSnapshot converts analysis results into the map payload, falling back
// to the configured default center when no points exist.
func BuildSnapshot(analyses []trajectory.Analysis, opts Options) Snapshot {
	snapshot := Snapshot{Zoom: opts.Zoom, Vehicles: []VehicleTrack{}}

	lat, lon, ok := Center(analyses)
	if !ok {
		lat, lon = opts.FallbackLat, opts.FallbackLon
	}
	snapshot.CenterLat = lat
	snapshot.CenterLon = lon

	for _, a := range analyses {
		track := VehicleTrack{ID: a.Trajectory.VehicleID, Path: [][2]float64{}, Stops: []StopMarker{}}
		for _, p := range a.Trajectory.Points {
			track.Path = append(track.Path, [2]float64{p.Lat, p.Lon})
		}
		for _, stop := range a.Stops {
			track.Stops = append(track.Stops, StopMarker{
				Lat:             stop.Lat,
				Lon:             stop.Lon,
				ReachTime:       stop.Start.Format(timeLayout),
				EndTime:         stop.End.Format(timeLayout),
				DurationMinutes: math.Round(stop.Duration.Minutes()*100) / 100,
			})
		}
		snapshot.Vehicles = append(snapshot.Vehicles, track)
	}

	return snapshot
}

type mapPage struct {
	Title       string
	PathColor   string
	MarkerColor string
	Data        template.JS
}

// WriteMap renders the snapshot into a self-contained HTML map and writes it
// to path, overwriting any existing file.
func WriteMap(path string, analyses []trajectory.Analysis, opts Options) error {
	tmpl, err := template.ParseFS(templatesFS, "templates/map.html")
	if err != nil {
		return fmt.Errorf("parse map template: %w", err)
	}

	snapshot := BuildSnapshot(analyses, opts)
	data, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("encode map data: %w", err)
	}

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create map file: %w", err)
	}

	page := mapPage{
		Title:       opts.Title,
		PathColor:   opts.PathColor,
		MarkerColor: opts.MarkerColor,
		Data:        template.JS(data),
	}
	if err := tmpl.Execute(file, page); err != nil {
		_ = file.Close()
		return fmt.Errorf("render map: %w", err)
	}
	return file.Close()
}
