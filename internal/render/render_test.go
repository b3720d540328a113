package render

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"stopmap/internal/gps"
	"stopmap/internal/trajectory"
)

func sampleAnalyses(base time.Time) []trajectory.Analysis {
	return []trajectory.Analysis{
		{
			Trajectory: trajectory.Trajectory{
				VehicleID: "EXC-42",
				Points: []gps.Point{
					{Lat: 20.0, Lon: 78.0, Time: base},
					{Lat: 21.0, Lon: 79.0, Time: base.Add(time.Minute)},
				},
			},
			Stops: []gps.Stop{
				{
					Lat:      20.5,
					Lon:      78.5,
					Start:    base,
					End:      base.Add(10*time.Minute + 30*time.Second),
					Duration: 10*time.Minute + 30*time.Second,
				},
			},
		},
	}
}

func TestCenterIsMeanOfCoordinates(t *testing.T) {
	base := time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC)
	lat, lon, ok := Center(sampleAnalyses(base))
	if !ok {
		t.Fatal("expected a center")
	}
	if lat != 20.5 || lon != 78.5 {
		t.Fatalf("expected center (20.5, 78.5), got (%f, %f)", lat, lon)
	}
}

func TestBuildSnapshotFallbackCenter(t *testing.T) {
	opts := DefaultOptions()
	snapshot := BuildSnapshot(nil, opts)
	if snapshot.CenterLat != opts.FallbackLat || snapshot.CenterLon != opts.FallbackLon {
		t.Fatalf("expected fallback center, got (%f, %f)", snapshot.CenterLat, snapshot.CenterLon)
	}
	if len(snapshot.Vehicles) != 0 {
		t.Fatalf("expected no vehicles, got %d", len(snapshot.Vehicles))
	}
}

func TestBuildSnapshotFormatsStops(t *testing.T) {
	base := time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC)
	snapshot := BuildSnapshot(sampleAnalyses(base), DefaultOptions())
	if len(snapshot.Vehicles) != 1 {
		t.Fatalf("expected 1 vehicle, got %d", len(snapshot.Vehicles))
	}
	stops := snapshot.Vehicles[0].Stops
	if len(stops) != 1 {
		t.Fatalf("expected 1 stop, got %d", len(stops))
	}
	if stops[0].ReachTime != "2024-01-01 08:00:00" {
		t.Fatalf("unexpected reach time %q", stops[0].ReachTime)
	}
	if stops[0].EndTime != "2024-01-01 08:10:30" {
		t.Fatalf("unexpected end time %q", stops[0].EndTime)
	}
	if stops[0].DurationMinutes != 10.5 {
		t.Fatalf("expected 10.5 minutes, got %f", stops[0].DurationMinutes)
	}
}

func TestWriteMapWithData(t *testing.T) {
	base := time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC)
	path := filepath.Join(t.TempDir(), "map.html")

	if err := WriteMap(path, sampleAnalyses(base), DefaultOptions()); err != nil {
		t.Fatalf("write map: %v", err)
	}

	html, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read map: %v", err)
	}
	out := string(html)
	if !strings.Contains(out, "EXC-42") {
		t.Fatal("expected vehicle id in map output")
	}
	if !strings.Contains(out, "2024-01-01 08:00:00") {
		t.Fatal("expected formatted reach time in map output")
	}
	if !strings.Contains(out, "leaflet") {
		t.Fatal("expected leaflet assets in map output")
	}
}

func TestWriteMapEmptyDataStillCreatesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "map.html")

	if err := WriteMap(path, nil, DefaultOptions()); err != nil {
		t.Fatalf("write map: %v", err)
	}

	html, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read map: %v", err)
	}
	out := string(html)
	if !strings.Contains(out, `"vehicles":[]`) {
		t.Fatal("expected empty vehicles payload")
	}
	if !strings.Contains(out, "20.0827") {
		t.Fatal("expected fallback center in map output")
	}
}

func TestWriteMapOverwritesExisting(t *testing.T) {
	path := filepath.Join(t.TempDir(), "map.html")
	if err := os.WriteFile(path, []byte("stale"), 0o644); err != nil {
		t.Fatalf("seed file: %v", err)
	}

	if err := WriteMap(path, nil, DefaultOptions()); err != nil {
		t.Fatalf("write map: %v", err)
	}

	html, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read map: %v", err)
	}
	if strings.Contains(string(html), "stale") {
		t.Fatal("expected old contents to be replaced")
	}
}
