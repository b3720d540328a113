package pipeline

import (
	"context"
	"fmt"

	"stopmap/internal/sheets"
	"stopmap/internal/trajectory"
)

// SheetSource loads raw rows from a Google Sheet and prepares them into
// pings.
type SheetSource struct {
	Client        *sheets.Client
	SpreadsheetID string
	Range         string
	Columns       trajectory.Columns
}

func (s *SheetSource) Name() string { return "sheet" }

func (s *SheetSource) Fetch(ctx context.Context) ([]trajectory.Ping, error) {
	table, err := s.Client.Values(ctx, s.SpreadsheetID, s.Range)
	if err != nil {
		return nil, err
	}

	pings, err := trajectory.ParseTable(table, s.Columns)
	if err != nil {
		return nil, fmt.Errorf("prepare sheet rows: %w", err)
	}
	return pings, nil
}
