package trajectory

import (
	"fmt"
	"sort"
	"strconv"
	"time"

	"stopmap/internal/gps"
)

// Table is a raw sheet payload: one header row plus string cell rows.
type Table struct {
	Columns []string
	Rows    [][]string
}

// Ping is one GPS observation attributed to a vehicle.
type Ping struct {
	VehicleID string
	Time      time.Time
	Lat       float64
	Lon       float64
}

// Trajectory is the time-ordered sequence of pings for one vehicle.
type Trajectory struct {
	VehicleID string
	Points    []gps.Point
}

// Analysis pairs a trajectory with the stops detected on it.
type Analysis struct {
	Trajectory Trajectory
	Stops      []gps.Stop
}

// Columns names the table columns a preparer reads. VehicleID lists candidate
// column names tried in order; the first one present in the table wins.
type Columns struct {
	Timestamp string
	Latitude  string
	Longitude string
	VehicleID []string
}

func DefaultColumns() Columns {
	return Columns{
		Timestamp: "eventGeneratedTime",
		Latitude:  "latitude",
		Longitude: "longitude",
		VehicleID: []string{"EquipmentId", "Vehicle1_ID"},
	}
}

// ParseTable coerces raw rows into pings. The timestamp column holds
// milliseconds since the Unix epoch. Rows whose timestamp, latitude or
// longitude fail to parse are dropped. Missing required columns are an error;
// an empty result is not.
func ParseTable(table Table, cols Columns) ([]Ping, error) {
	index := make(map[string]int, len(table.Columns))
	for i, name := range table.Columns {
		index[name] = i
	}

	tsIdx, ok := index[cols.Timestamp]
	if !ok {
		return nil, fmt.Errorf("timestamp column %q not found", cols.Timestamp)
	}
	latIdx, ok := index[cols.Latitude]
	if !ok {
		return nil, fmt.Errorf("latitude column %q not found", cols.Latitude)
	}
	lonIdx, ok := index[cols.Longitude]
	if !ok {
		return nil, fmt.Errorf("longitude column %q not found", cols.Longitude)
	}

	vehicleIdx := -1
	for _, candidate := range cols.VehicleID {
		if i, ok := index[candidate]; ok {
			vehicleIdx = i
			break
		}
	}
	if vehicleIdx < 0 {
		return nil, fmt.Errorf("no vehicle id column found (tried %v)", cols.VehicleID)
	}

	var pings []Ping
	for _, row := range table.Rows {
		cell := func(i int) string {
			if i < len(row) {
				return row[i]
			}
			return ""
		}

		ms, err := strconv.ParseInt(cell(tsIdx), 10, 64)
		if err != nil {
			continue
		}
		lat, err := strconv.ParseFloat(cell(latIdx), 64)
		if err != nil {
			continue
		}
		lon, err := strconv.ParseFloat(cell(lonIdx), 64)
		if err != nil {
			continue
		}

		pings = append(pings, Ping{
			VehicleID: cell(vehicleIdx),
			Time:      time.UnixMilli(ms).UTC(),
			Lat:       lat,
			Lon:       lon,
		})
	}

	return pings, nil
}

// Group sorts pings by time and splits them into per-vehicle trajectories,
// ordered by vehicle id for stable output.
func Group(pings []Ping) []Trajectory {
	if len(pings) == 0 {
		return nil
	}

	byVehicle := make(map[string][]gps.Point)
	for _, p := range pings {
		byVehicle[p.VehicleID] = append(byVehicle[p.VehicleID], gps.Point{
			Lat:  p.Lat,
			Lon:  p.Lon,
			Time: p.Time,
		})
	}

	ids := make([]string, 0, len(byVehicle))
	for id := range byVehicle {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	trajectories := make([]Trajectory, 0, len(ids))
	for _, id := range ids {
		points := byVehicle[id]
		sort.Slice(points, func(i, j int) bool { return points[i].Time.Before(points[j].Time) })
		trajectories = append(trajectories, Trajectory{VehicleID: id, Points: points})
	}

	return trajectories
}
