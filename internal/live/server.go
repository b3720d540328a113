package live

import (
	"bytes"
	"context"
	"embed"
	"encoding/json"
	"fmt"
	"html/template"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"stopmap/internal/gps"
	"stopmap/internal/pipeline"
	"stopmap/internal/render"
)

//go:embed templates/*.html
var templatesFS embed.FS

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Server polls a ping source, re-runs stop detection and pushes map
// snapshots to connected websocket clients whenever the picture changes.
type Server struct {
	Source   pipeline.Source
	Options  gps.StopOptions
	Map      render.Options
	Interval time.Duration

	hub  *hub
	tmpl *template.Template

	mu   sync.Mutex
	last []byte
}

func NewServer(source pipeline.Source, opts gps.StopOptions, mapOpts render.Options, interval time.Duration) (*Server, error) {
	tmpl, err := template.ParseFS(templatesFS, "templates/live.html")
	if err != nil {
		return nil, fmt.Errorf("parse live template: %w", err)
	}
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Server{
		Source:   source,
		Options:  opts,
		Map:      mapOpts,
		Interval: interval,
		hub:      newHub(),
		tmpl:     tmpl,
	}, nil
}

func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/", s.handleIndex).Methods(http.MethodGet)
	r.HandleFunc("/ws", s.handleWebSocket)
	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}).Methods(http.MethodGet)
	return r
}

// Run polls the source until the context is cancelled. The first tick fires
// immediately so a freshly connected browser is not left on a blank map.
func (s *Server) Run(ctx context.Context) {
	t := time.NewTimer(0)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			s.tick(ctx)
			t.Reset(s.Interval)
		}
	}
}

func (s *Server) tick(ctx context.Context) {
	fetchCtx, cancel := context.WithTimeout(ctx, s.Interval)
	defer cancel()

	pings, err := s.Source.Fetch(fetchCtx)
	if err != nil {
		log.Printf("poll %s: %v", s.Source.Name(), err)
		return
	}

	analyses := pipeline.Analyze(pings, s.Options)
	snapshot := render.BuildSnapshot(analyses, s.Map)
	data, err := json.Marshal(snapshot)
	if err != nil {
		log.Printf("encode snapshot: %v", err)
		return
	}

	s.mu.Lock()
	changed := !bytes.Equal(data, s.last)
	if changed {
		s.last = data
	}
	s.mu.Unlock()

	if changed {
		log.Printf("snapshot updated: %d pings, %d vehicles", len(pings), len(analyses))
		s.hub.broadcast(data)
	}
}

func (s *Server) snapshot() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	page := struct {
		Title       string
		PathColor   string
		MarkerColor string
	}{
		Title:       s.Map.Title,
		PathColor:   s.Map.PathColor,
		MarkerColor: s.Map.MarkerColor,
	}
	if err := s.tmpl.Execute(w, page); err != nil {
		http.Error(w, "template render failed", http.StatusInternalServerError)
	}
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws upgrade error: %v", err)
		return
	}

	// Send the latest snapshot so the map centers without waiting a tick.
	// The connection joins the hub only after this write: broadcast is the
	// sole writer for registered connections, and gorilla/websocket allows
	// one concurrent writer per connection.
	if data := s.snapshot(); data != nil {
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			_ = conn.Close()
			return
		}
	}

	s.hub.add(conn)
	go s.readPump(conn)
}

func (s *Server) readPump(c *websocket.Conn) {
	defer func() {
		s.hub.remove(c)
		_ = c.Close()
	}()
	for {
		if _, _, err := c.ReadMessage(); err != nil {
			return
		}
	}
}
