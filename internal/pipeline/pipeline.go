package pipeline

import (
	"context"
	"fmt"
	"log"
	"time"

	"stopmap/internal/gps"
	"stopmap/internal/render"
	"stopmap/internal/storage"
	"stopmap/internal/trajectory"
)

// Source produces ping records, either from a spreadsheet or a live feed.
type Source interface {
	Name() string
	Fetch(ctx context.Context) ([]trajectory.Ping, error)
}

// Pipeline runs load -> prepare -> detect -> render. A render failure is
// reported but does not discard the detection results; loader failures abort.
type Pipeline struct {
	Source     Source
	Store      *storage.Store
	Options    gps.StopOptions
	Map        render.Options
	OutputPath string
}

type Summary struct {
	Source    string
	PingCount int
	Vehicles  int
	StopCount int
	RunID     int64
	RenderErr error
}

func (p *Pipeline) Run(ctx context.Context) (Summary, error) {
	started := time.Now().UTC()

	pings, err := p.Source.Fetch(ctx)
	if err != nil {
		return Summary{}, fmt.Errorf("load pings from %s: %w", p.Source.Name(), err)
	}

	analyses := Analyze(pings, p.Options)

	summary := Summary{Source: p.Source.Name(), PingCount: len(pings), Vehicles: len(analyses)}
	for _, a := range analyses {
		summary.StopCount += len(a.Stops)
	}
	if summary.StopCount == 0 {
		log.Printf("no stoppages found exceeding the threshold")
	}

	if p.OutputPath != "" {
		if err := render.WriteMap(p.OutputPath, analyses, p.Map); err != nil {
			log.Printf("render map: %v", err)
			summary.RenderErr = err
		} else {
			log.Printf("map saved to %s", p.OutputPath)
		}
	}

	if p.Store != nil {
		runID, err := p.Store.SaveRun(ctx, p.Source.Name(), started, analyses)
		if err != nil {
			log.Printf("archive run: %v", err)
		} else {
			summary.RunID = runID
		}
	}

	return summary, nil
}

// Analyze groups pings into per-vehicle trajectories and detects stops on
// each one. Empty input yields an empty, non-nil result set downstream
// renderers can handle.
func Analyze(pings []trajectory.Ping, opts gps.StopOptions) []trajectory.Analysis {
	trajectories := trajectory.Group(pings)
	analyses := make([]trajectory.Analysis, 0, len(trajectories))
	for _, tr := range trajectories {
		analyses = append(analyses, trajectory.Analysis{
			Trajectory: tr,
			Stops:      gps.DetectStops(tr.Points, opts),
		})
	}
	return analyses
}
