package storage

import (
	"context"
	"database/sql"
	"time"

	_ "modernc.org/sqlite"

	"stopmap/internal/trajectory"
)

type Store struct {
	db *sql.DB
}

// Run is one archived pipeline execution.
type Run struct {
	ID        int64
	Source    string
	StartedAt time.Time
	PingCount int
	StopCount int
}

// Ping is one archived GPS observation. Times keep millisecond precision;
// the backing column is ts_ms (stoppage intervals use whole seconds).
type Ping struct {
	RunID     int64
	Seq       int
	VehicleID string
	Time      time.Time
	Lat       float64
	Lon       float64
}

// Stoppage is an archived stop interval.
type Stoppage struct {
	RunID     int64
	VehicleID string
	Start     time.Time
	End       time.Time
	DurationS int64
	Lat       float64
	Lon       float64
}

func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) InitSchema(ctx context.Context) error {
	schema := `
CREATE TABLE IF NOT EXISTS runs (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	source TEXT NOT NULL,
	started_at INTEGER NOT NULL,
	ping_count INTEGER NOT NULL,
	stop_count INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS pings (
	run_id INTEGER NOT NULL,
	seq INTEGER NOT NULL,
	vehicle_id TEXT NOT NULL,
	ts_ms INTEGER NOT NULL,
	lat REAL NOT NULL,
	lon REAL NOT NULL,
	PRIMARY KEY (run_id, seq)
);
CREATE TABLE IF NOT EXISTS stoppages (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id INTEGER NOT NULL,
	vehicle_id TEXT NOT NULL,
	start_time INTEGER NOT NULL,
	end_time INTEGER NOT NULL,
	duration_seconds INTEGER NOT NULL,
	lat REAL NOT NULL,
	lon REAL NOT NULL
);
`
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// SaveRun archives one pipeline execution: the run row, every prepared ping
// and every detected stoppage, in a single transaction.
func (s *Store) SaveRun(ctx context.Context, source string, startedAt time.Time, analyses []trajectory.Analysis) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() {
		_ = tx.Rollback()
	}()

	pingCount := 0
	stopCount := 0
	for _, a := range analyses {
		pingCount += len(a.Trajectory.Points)
		stopCount += len(a.Stops)
	}

	res, err := tx.ExecContext(ctx,
		`INSERT INTO runs (source, started_at, ping_count, stop_count) VALUES (?, ?, ?, ?)`,
		source, startedAt.Unix(), pingCount, stopCount)
	if err != nil {
		return 0, err
	}
	runID, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}

	seq := 0
	for _, a := range analyses {
		for _, p := range a.Trajectory.Points {
			_, err := tx.ExecContext(ctx,
				`INSERT INTO pings (run_id, seq, vehicle_id, ts_ms, lat, lon) VALUES (?, ?, ?, ?, ?, ?)`,
				runID, seq, a.Trajectory.VehicleID, p.Time.UnixMilli(), p.Lat, p.Lon)
			if err != nil {
				return 0, err
			}
			seq++
		}
		for _, stop := range a.Stops {
			_, err := tx.ExecContext(ctx,
				`INSERT INTO stoppages (run_id, vehicle_id, start_time, end_time, duration_seconds, lat, lon) VALUES (?, ?, ?, ?, ?, ?, ?)`,
				runID, a.Trajectory.VehicleID, stop.Start.Unix(), stop.End.Unix(), int64(stop.Duration.Seconds()), stop.Lat, stop.Lon)
			if err != nil {
				return 0, err
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return runID, nil
}

func (s *Store) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, source, started_at, ping_count, stop_count FROM runs ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		var startedAt int64
		if err := rows.Scan(&r.ID, &r.Source, &startedAt, &r.PingCount, &r.StopCount); err != nil {
			return nil, err
		}
		r.StartedAt = time.Unix(startedAt, 0).UTC()
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

func (s *Store) ListPings(ctx context.Context, runID int64) ([]Ping, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, seq, vehicle_id, ts_ms, lat, lon FROM pings WHERE run_id = ? ORDER BY seq`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var pings []Ping
	for rows.Next() {
		var p Ping
		var tsMs int64
		if err := rows.Scan(&p.RunID, &p.Seq, &p.VehicleID, &tsMs, &p.Lat, &p.Lon); err != nil {
			return nil, err
		}
		p.Time = time.UnixMilli(tsMs).UTC()
		pings = append(pings, p)
	}
	return pings, rows.Err()
}

func (s *Store) ListStoppages(ctx context.Context, runID int64) ([]Stoppage, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, vehicle_id, start_time, end_time, duration_seconds, lat, lon
		 FROM stoppages WHERE run_id = ? ORDER BY start_time`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var stoppages []Stoppage
	for rows.Next() {
		var st Stoppage
		var start, end int64
		if err := rows.Scan(&st.RunID, &st.VehicleID, &start, &end, &st.DurationS, &st.Lat, &st.Lon); err != nil {
			return nil, err
		}
		st.Start = time.Unix(start, 0).UTC()
		st.End = time.Unix(end, 0).UTC()
		stoppages = append(stoppages, st)
	}
	return stoppages, rows.Err()
}
