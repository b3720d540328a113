package gps

import (
	"math"
	"time"
)

type Point struct {
	Lat  float64
	Lon  float64
	Time time.Time
}

type Stop struct {
	Lat        float64
	Lon        float64
	Start      time.Time
	End        time.Time
	Duration   time.Duration
	PointCount int
}

type StopOptions struct {
	MinDuration       time.Duration
	MaxDiameterMeters float64
}

// DetectStops finds maximal runs of consecutive points that stay within
// MaxDiameterMeters of each other for at least MinDuration. Points must be
// sorted by time. Each stop carries the mean coordinate of its points.
func DetectStops(points []Point, opts StopOptions) []Stop {
	if len(points) < 2 {
		return nil
	}

	var stops []Stop
	i := 0
	for i < len(points)-1 {
		j := i + 1
		for j < len(points) && withinDiameter(points[i:j+1], opts.MaxDiameterMeters) {
			j++
		}
		// points[i:j] is the largest cluster anchored at i
		last := j - 1
		if last > i {
			duration := points[last].Time.Sub(points[i].Time)
			if duration >= opts.MinDuration {
				lat, lon := meanCoordinate(points[i : last+1])
				stops = append(stops, Stop{
					Lat:        lat,
					Lon:        lon,
					Start:      points[i].Time,
					End:        points[last].Time,
					Duration:   duration,
					PointCount: last - i + 1,
				})
				i = j
				continue
			}
		}
		i++
	}

	return stops
}

// withinDiameter reports whether the newest point of the window is within
// maxMeters of every other point. The window grows one point at a time, so
// checking the newest point against the rest keeps the whole window's
// pairwise spread bounded.
func withinDiameter(window []Point, maxMeters float64) bool {
	newest := window[len(window)-1]
	for _, p := range window[:len(window)-1] {
		if HaversineMeters(p.Lat, p.Lon, newest.Lat, newest.Lon) > maxMeters {
			return false
		}
	}
	return true
}

func meanCoordinate(points []Point) (float64, float64) {
	var lat, lon float64
	for _, p := range points {
		lat += p.Lat
		lon += p.Lon
	}
	n := float64(len(points))
	return lat / n, lon / n
}

// HaversineMeters calculates the distance between two points in meters.
func HaversineMeters(lat1, lon1, lat2, lon2 float64) float64 {
	const earthRadius = 6371000 // meters
	lat1Rad := lat1 * math.Pi / 180
	lat2Rad := lat2 * math.Pi / 180
	dLat := (lat2 - lat1) * math.Pi / 180
	dLon := (lon2 - lon1) * math.Pi / 180

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1Rad)*math.Cos(lat2Rad)*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return earthRadius * c
}
