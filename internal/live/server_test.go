package live

import (
	"context"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"stopmap/internal/gps"
	"stopmap/internal/render"
	"stopmap/internal/trajectory"
)

type stubSource struct {
	pings []trajectory.Ping
}

func (s *stubSource) Name() string { return "stub" }

func (s *stubSource) Fetch(ctx context.Context) ([]trajectory.Ping, error) {
	return s.pings, nil
}

func newTestServer(t *testing.T, pings []trajectory.Ping) *Server {
	t.Helper()
	server, err := NewServer(
		&stubSource{pings: pings},
		gps.StopOptions{MinDuration: 5 * time.Minute, MaxDiameterMeters: 50},
		render.DefaultOptions(),
		time.Second,
	)
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	return server
}

func TestIndexServesMapPage(t *testing.T) {
	server := newTestServer(t, nil)
	ts := httptest.NewServer(server.Router())
	defer ts.Close()

	resp, err := ts.Client().Get(ts.URL + "/")
	if err != nil {
		t.Fatalf("get index: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != 200 {
		t.Fatalf("unexpected status %d", resp.StatusCode)
	}
}

func TestTickBroadcastsChangedSnapshot(t *testing.T) {
	base := time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC)
	pings := []trajectory.Ping{
		{VehicleID: "EXC-42", Time: base, Lat: 20.0827, Lon: 78.9629},
		{VehicleID: "EXC-42", Time: base.Add(10 * time.Minute), Lat: 20.08272, Lon: 78.96292},
	}
	server := newTestServer(t, pings)

	ts := httptest.NewServer(server.Router())
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial ws: %v", err)
	}
	defer conn.Close()

	// wait for the hub to register the client
	deadline := time.Now().Add(2 * time.Second)
	for server.hub.count() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}

	server.tick(context.Background())

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read snapshot: %v", err)
	}
	payload := string(data)
	if !strings.Contains(payload, "EXC-42") {
		t.Fatalf("expected vehicle in snapshot, got %s", payload)
	}
	if !strings.Contains(payload, `"durationMinutes":10`) {
		t.Fatalf("expected stop in snapshot, got %s", payload)
	}
}

// growingSource returns one more ping per fetch so every tick broadcasts.
type growingSource struct {
	mu sync.Mutex
	n  int
}

func (s *growingSource) Name() string { return "growing" }

func (s *growingSource) Fetch(ctx context.Context) ([]trajectory.Ping, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.n++
	base := time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC)
	pings := make([]trajectory.Ping, 0, s.n)
	for i := 0; i < s.n; i++ {
		pings = append(pings, trajectory.Ping{
			VehicleID: "EXC-42",
			Time:      base.Add(time.Duration(i) * time.Minute),
			Lat:       20.0 + float64(i)*0.01,
			Lon:       78.0 + float64(i)*0.01,
		})
	}
	return pings, nil
}

func TestConnectDuringBroadcasts(t *testing.T) {
	server, err := NewServer(
		&growingSource{},
		gps.StopOptions{MinDuration: 5 * time.Minute, MaxDiameterMeters: 50},
		render.DefaultOptions(),
		time.Second,
	)
	if err != nil {
		t.Fatalf("new server: %v", err)
	}

	ts := httptest.NewServer(server.Router())
	defer ts.Close()

	// seed a snapshot so every new connection gets the initial write
	server.tick(context.Background())

	stop := make(chan struct{})
	var ticker sync.WaitGroup
	ticker.Add(1)
	go func() {
		defer ticker.Done()
		for {
			select {
			case <-stop:
				return
			default:
				server.tick(context.Background())
			}
		}
	}()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	var clients sync.WaitGroup
	for i := 0; i < 20; i++ {
		clients.Add(1)
		go func() {
			defer clients.Done()
			conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
			if err != nil {
				t.Errorf("dial ws: %v", err)
				return
			}
			defer conn.Close()
			_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
			if _, _, err := conn.ReadMessage(); err != nil {
				t.Errorf("read snapshot: %v", err)
			}
		}()
	}
	clients.Wait()
	close(stop)
	ticker.Wait()
}

func TestTickSkipsUnchangedSnapshot(t *testing.T) {
	server := newTestServer(t, nil)

	server.tick(context.Background())
	first := server.snapshot()
	if first == nil {
		t.Fatal("expected snapshot after first tick")
	}

	server.tick(context.Background())
	if &first[0] != &server.snapshot()[0] {
		t.Fatal("expected unchanged snapshot to be kept")
	}
}
