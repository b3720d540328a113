package feed

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	gtfs "github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"google.golang.org/protobuf/proto"

	"stopmap/internal/trajectory"
)

// GTFSRTSource reads vehicle positions from a GTFS-Realtime protobuf feed and
// normalizes them to ping records.
type GTFSRTSource struct {
	URL        string
	HTTPClient *http.Client
}

func NewGTFSRTSource(url string, timeout time.Duration) *GTFSRTSource {
	return &GTFSRTSource{
		URL:        url,
		HTTPClient: &http.Client{Timeout: timeout},
	}
}

func (s *GTFSRTSource) Name() string { return "gtfs-rt" }

func (s *GTFSRTSource) Fetch(ctx context.Context) ([]trajectory.Ping, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.URL, nil)
	if err != nil {
		return nil, err
	}

	client := s.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("gtfs-rt http status: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var message gtfs.FeedMessage
	if err := proto.Unmarshal(body, &message); err != nil {
		return nil, fmt.Errorf("decode gtfs-rt feed: %w", err)
	}

	var headerTime time.Time
	if message.Header != nil && message.Header.Timestamp != nil {
		headerTime = time.Unix(int64(*message.Header.Timestamp), 0).UTC()
	}

	pings := make([]trajectory.Ping, 0, len(message.Entity))
	for _, ent := range message.Entity {
		if ent == nil || ent.Vehicle == nil {
			continue
		}
		vp := ent.Vehicle
		if vp.Vehicle == nil || vp.Position == nil {
			continue
		}
		id := vp.Vehicle.Id
		if id == nil || *id == "" {
			continue
		}
		lat := vp.Position.Latitude
		lon := vp.Position.Longitude
		if lat == nil || lon == nil {
			continue
		}

		ts := headerTime
		if vp.Timestamp != nil {
			ts = time.Unix(int64(*vp.Timestamp), 0).UTC()
		}
		if ts.IsZero() {
			ts = time.Now().UTC()
		}

		pings = append(pings, trajectory.Ping{
			VehicleID: *id,
			Time:      ts,
			Lat:       float64(*lat),
			Lon:       float64(*lon),
		})
	}

	return pings, nil
}
