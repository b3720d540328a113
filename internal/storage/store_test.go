package storage

import (
	"context"
	"testing"
	"time"

	"stopmap/internal/gps"
	"stopmap/internal/trajectory"
)

func TestSaveRunAndListBack(t *testing.T) {
	ctx := context.Background()
	store, err := Open(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer store.Close()

	if err := store.InitSchema(ctx); err != nil {
		t.Fatalf("init schema: %v", err)
	}

	base := time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC)
	analyses := []trajectory.Analysis{
		{
			Trajectory: trajectory.Trajectory{
				VehicleID: "EXC-42",
				Points: []gps.Point{
					{Lat: 20.0827, Lon: 78.9629, Time: base.Add(123 * time.Millisecond)},
					{Lat: 20.0828, Lon: 78.9630, Time: base.Add(10*time.Minute + 456*time.Millisecond)},
				},
			},
			Stops: []gps.Stop{
				{
					Lat:        20.08275,
					Lon:        78.96295,
					Start:      base,
					End:        base.Add(10 * time.Minute),
					Duration:   10 * time.Minute,
					PointCount: 2,
				},
			},
		},
	}

	runID, err := store.SaveRun(ctx, "sheet", base, analyses)
	if err != nil {
		t.Fatalf("save run: %v", err)
	}

	runs, err := store.ListRuns(ctx, 10)
	if err != nil {
		t.Fatalf("list runs: %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("expected 1 run, got %d", len(runs))
	}
	if runs[0].ID != runID || runs[0].Source != "sheet" {
		t.Fatalf("unexpected run %+v", runs[0])
	}
	if runs[0].PingCount != 2 || runs[0].StopCount != 1 {
		t.Fatalf("unexpected counts %+v", runs[0])
	}

	stoppages, err := store.ListStoppages(ctx, runID)
	if err != nil {
		t.Fatalf("list stoppages: %v", err)
	}
	if len(stoppages) != 1 {
		t.Fatalf("expected 1 stoppage, got %d", len(stoppages))
	}
	st := stoppages[0]
	if st.VehicleID != "EXC-42" || st.DurationS != 600 {
		t.Fatalf("unexpected stoppage %+v", st)
	}
	if !st.Start.Equal(base) || !st.End.Equal(base.Add(10*time.Minute)) {
		t.Fatalf("unexpected interval %s - %s", st.Start, st.End)
	}

	pings, err := store.ListPings(ctx, runID)
	if err != nil {
		t.Fatalf("list pings: %v", err)
	}
	if len(pings) != 2 {
		t.Fatalf("expected 2 pings, got %d", len(pings))
	}
	// ping timestamps keep millisecond precision through the archive
	if !pings[0].Time.Equal(base.Add(123 * time.Millisecond)) {
		t.Fatalf("unexpected ping time %s", pings[0].Time)
	}
	if !pings[1].Time.Equal(base.Add(10*time.Minute + 456*time.Millisecond)) {
		t.Fatalf("unexpected ping time %s", pings[1].Time)
	}
	if pings[0].Seq != 0 || pings[1].Seq != 1 || pings[0].VehicleID != "EXC-42" {
		t.Fatalf("unexpected pings %+v", pings)
	}
}

func TestListRunsEmpty(t *testing.T) {
	ctx := context.Background()
	store, err := Open(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer store.Close()

	if err := store.InitSchema(ctx); err != nil {
		t.Fatalf("init schema: %v", err)
	}

	runs, err := store.ListRuns(ctx, 0)
	if err != nil {
		t.Fatalf("list runs: %v", err)
	}
	if len(runs) != 0 {
		t.Fatalf("expected no runs, got %d", len(runs))
	}
}
