package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"stopmap/internal/config"
	"stopmap/internal/feed"
	"stopmap/internal/gps"
	"stopmap/internal/live"
	"stopmap/internal/pipeline"
	"stopmap/internal/render"
	"stopmap/internal/sheets"
	"stopmap/internal/storage"
	"stopmap/internal/trajectory"
)

var (
	serve        = flag.Bool("serve", false, "serve a live map instead of writing a one-shot HTML file")
	history      = flag.Int("history", 0, "list the N most recent archived runs and exit")
	envFile      = flag.String("env", ".env", "path to the .env file")
	settingsFile = flag.String("settings", "stopmap.yaml", "path to the YAML settings file")
)

func main() {
	flag.Parse()

	cfg, err := config.Load(*envFile, *settingsFile)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	var store *storage.Store
	if cfg.DatabasePath != "" {
		store, err = storage.Open(cfg.DatabasePath)
		if err != nil {
			log.Fatalf("open db: %v", err)
		}
		defer store.Close()
		if err := store.InitSchema(context.Background()); err != nil {
			log.Fatalf("init schema: %v", err)
		}
	}

	if *history > 0 {
		if store == nil {
			log.Fatalf("history requires DATABASE_PATH")
		}
		if err := printHistory(context.Background(), store, *history); err != nil {
			log.Fatalf("list runs: %v", err)
		}
		return
	}

	source, err := buildSource(cfg)
	if err != nil {
		log.Fatalf("configure source: %v", err)
	}

	stopOpts := gps.StopOptions{
		MinDuration:       time.Duration(cfg.Settings.Detection.MinDurationMinutes * float64(time.Minute)),
		MaxDiameterMeters: cfg.Settings.Detection.MaxDiameterMeters,
	}
	mapOpts := render.Options{
		Title:       cfg.Settings.Map.Title,
		Zoom:        cfg.Settings.Map.Zoom,
		PathColor:   cfg.Settings.Map.PathColor,
		MarkerColor: cfg.Settings.Map.MarkerColor,
		FallbackLat: cfg.Settings.Map.FallbackLat,
		FallbackLon: cfg.Settings.Map.FallbackLon,
	}

	if *serve {
		runServer(cfg, source, stopOpts, mapOpts)
		return
	}

	p := &pipeline.Pipeline{
		Source:     source,
		Store:      store,
		Options:    stopOpts,
		Map:        mapOpts,
		OutputPath: cfg.OutputPath,
	}

	summary, err := p.Run(context.Background())
	if err != nil {
		log.Fatalf("run pipeline: %v", err)
	}
	log.Printf("done: %d pings, %d vehicles, %d stoppages", summary.PingCount, summary.Vehicles, summary.StopCount)
}

func buildSource(cfg config.Config) (pipeline.Source, error) {
	if cfg.GTFSRTURL != "" {
		return feed.NewGTFSRTSource(cfg.GTFSRTURL, 10*time.Second), nil
	}

	if cfg.SheetURL == "" {
		return nil, fmt.Errorf("SHEET_URL or GTFSRT_URL required")
	}

	spreadsheetID, err := sheets.SpreadsheetIDFromURL(cfg.SheetURL)
	if err != nil {
		return nil, err
	}
	creds, err := sheets.LoadCredentials(cfg.CredentialsFile)
	if err != nil {
		return nil, err
	}

	return &pipeline.SheetSource{
		Client: &sheets.Client{
			TokenSource: &sheets.ServiceAccountTokenSource{Credentials: creds},
		},
		SpreadsheetID: spreadsheetID,
		Range:         cfg.SheetRange,
		Columns: trajectory.Columns{
			Timestamp: cfg.Settings.Columns.Timestamp,
			Latitude:  cfg.Settings.Columns.Latitude,
			Longitude: cfg.Settings.Columns.Longitude,
			VehicleID: cfg.Settings.Columns.VehicleID,
		},
	}, nil
}

func runServer(cfg config.Config, source pipeline.Source, stopOpts gps.StopOptions, mapOpts render.Options) {
	interval := time.Duration(cfg.PollIntervalSec) * time.Second
	liveServer, err := live.NewServer(source, stopOpts, mapOpts, interval)
	if err != nil {
		log.Fatalf("load templates: %v", err)
	}

	server := &http.Server{
		Addr:         cfg.ServerAddr,
		Handler:      liveServer.Router(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 0, // websocket connections stay open
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		log.Printf("serving live map on %s", cfg.ServerAddr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("http server error: %v", err)
			stop()
		}
	}()

	go liveServer.Run(ctx)

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = server.Shutdown(shutdownCtx)
}

func printHistory(ctx context.Context, store *storage.Store, limit int) error {
	runs, err := store.ListRuns(ctx, limit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println("no archived runs")
		return nil
	}
	for _, r := range runs {
		fmt.Printf("run %d  %s  source=%s  pings=%d  stoppages=%d\n",
			r.ID, r.StartedAt.Format(time.RFC3339), r.Source, r.PingCount, r.StopCount)
	}
	return nil
}
