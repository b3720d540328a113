package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Settings holds detection and rendering parameters, loadable from a YAML
// file. Environment variables override individual values.
type Settings struct {
	Detection DetectionSettings `yaml:"detection"`
	Map       MapSettings       `yaml:"map"`
	Columns   ColumnSettings    `yaml:"columns"`
}

type DetectionSettings struct {
	MinDurationMinutes float64 `yaml:"min_duration_minutes"`
	MaxDiameterMeters  float64 `yaml:"max_diameter_meters"`
}

type MapSettings struct {
	Title       string  `yaml:"title"`
	Zoom        int     `yaml:"zoom"`
	PathColor   string  `yaml:"path_color"`
	MarkerColor string  `yaml:"marker_color"`
	FallbackLat float64 `yaml:"fallback_lat"`
	FallbackLon float64 `yaml:"fallback_lon"`
}

type ColumnSettings struct {
	Timestamp string   `yaml:"timestamp"`
	Latitude  string   `yaml:"latitude"`
	Longitude string   `yaml:"longitude"`
	VehicleID []string `yaml:"vehicle_id"`
}

type Config struct {
	CredentialsFile string
	SheetURL        string
	SheetRange      string
	GTFSRTURL       string
	OutputPath      string
	DatabasePath    string
	ServerAddr      string
	PollIntervalSec int
	Settings        Settings
}

func defaultSettings() Settings {
	return Settings{
		Detection: DetectionSettings{
			MinDurationMinutes: 5,
			MaxDiameterMeters:  50,
		},
		Map: MapSettings{
			Title:       "Vehicle Stoppages",
			Zoom:        12,
			PathColor:   "blue",
			MarkerColor: "red",
			FallbackLat: 20.0827,
			FallbackLon: 78.9629,
		},
		Columns: ColumnSettings{
			Timestamp: "eventGeneratedTime",
			Latitude:  "latitude",
			Longitude: "longitude",
			VehicleID: []string{"EquipmentId", "Vehicle1_ID"},
		},
	}
}

// Load reads the optional .env file at envPath, the optional YAML settings
// file at settingsPath, and applies environment overrides on top.
func Load(envPath, settingsPath string) (Config, error) {
	if envPath != "" {
		if err := godotenv.Load(envPath); err != nil && !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", envPath, err)
		}
	}

	cfg := Config{
		CredentialsFile: getenv("GOOGLE_CREDENTIALS_FILE", "google_sheets_service_account.json"),
		SheetURL:        os.Getenv("SHEET_URL"),
		SheetRange:      getenv("SHEET_RANGE", "A:ZZ"),
		GTFSRTURL:       os.Getenv("GTFSRT_URL"),
		OutputPath:      getenv("OUTPUT_PATH", "vehicle_stoppages_map.html"),
		DatabasePath:    os.Getenv("DATABASE_PATH"),
		ServerAddr:      getenv("SERVER_ADDR", ":8080"),
		PollIntervalSec: 30,
		Settings:        defaultSettings(),
	}

	if settingsPath != "" {
		data, err := os.ReadFile(settingsPath)
		switch {
		case errors.Is(err, os.ErrNotExist):
			// optional file, defaults stand
		case err != nil:
			return Config{}, fmt.Errorf("read %s: %w", settingsPath, err)
		default:
			if err := yaml.Unmarshal(data, &cfg.Settings); err != nil {
				return Config{}, fmt.Errorf("parse %s: %w", settingsPath, err)
			}
		}
	}

	if v := os.Getenv("POLL_INTERVAL_SECONDS"); v != "" {
		if err := parseInt(&cfg.PollIntervalSec, v); err != nil {
			return Config{}, fmt.Errorf("POLL_INTERVAL_SECONDS: %w", err)
		}
	}
	if v := os.Getenv("STOPPAGE_THRESHOLD_MINUTES"); v != "" {
		if err := parseFloat(&cfg.Settings.Detection.MinDurationMinutes, v); err != nil {
			return Config{}, fmt.Errorf("STOPPAGE_THRESHOLD_MINUTES: %w", err)
		}
	}
	if v := os.Getenv("MAX_STATIONARY_DIAMETER_METERS"); v != "" {
		if err := parseFloat(&cfg.Settings.Detection.MaxDiameterMeters, v); err != nil {
			return Config{}, fmt.Errorf("MAX_STATIONARY_DIAMETER_METERS: %w", err)
		}
	}
	// An explicit vehicle id column replaces the candidate list outright.
	if v := os.Getenv("VEHICLE_ID_COLUMN"); v != "" {
		cfg.Settings.Columns.VehicleID = splitAndTrim(v)
	}

	if cfg.Settings.Detection.MinDurationMinutes <= 0 {
		return Config{}, fmt.Errorf("stoppage threshold must be positive, got %v", cfg.Settings.Detection.MinDurationMinutes)
	}
	if cfg.Settings.Detection.MaxDiameterMeters <= 0 {
		return Config{}, fmt.Errorf("stationary diameter must be positive, got %v", cfg.Settings.Detection.MaxDiameterMeters)
	}

	return cfg, nil
}

func getenv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func parseInt(target *int, value string) error {
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return err
	}
	*target = parsed
	return nil
}

func parseFloat(target *float64, value string) error {
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return err
	}
	*target = parsed
	return nil
}

func splitAndTrim(value string) []string {
	parts := strings.Split(value, ",")
	var out []string
	for _, p := range parts {
		if v := strings.TrimSpace(p); v != "" {
			out = append(out, v)
		}
	}
	return out
}
