package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	VehicleSourceREST   = "rest"
	VehicleSourceGTFSRT = "gtfsrt"
)

var defaultVehicleIDs = []string{"Bus1", "Bus2", "Bus3", "Bus4", "Bus5"}

type Config struct {
	HTTPAddr    string
	MetricsAddr string
	LogLevel    string
	LogFormat   string
	Location    *time.Location

	// Network sources, first non-empty wins: GTFS, database, file, built-in.
	NetworkGTFS   string
	DatabaseURL   string
	NetworkDBName string // replaces the database named in DatabaseURL
	NetworkFile   string

	VehicleSource     string
	VehicleAPIURL     string
	GTFSRTVehiclesURL string
	VehicleIDs        []string
	VehicleCacheTTL   time.Duration
	PollInterval      time.Duration
	TrackOnStart      bool

	OSRMURL            string
	NominatimURL       string
	NominatimUserAgent string
	RoutingCacheSize   int
	HTTPTimeout        time.Duration
	GeofenceMeters     float64

	NATSURL           string
	NATSSubjectPrefix string
	LogNATSSubjects   bool
}

func Load() (*Config, error) {
	// Load .env into environment (ignore if missing)
	_ = godotenv.Load()

	cfg := &Config{
		HTTPAddr:           getenvDefault("HTTP_ADDR", ":8080"),
		MetricsAddr:        os.Getenv("METRICS_ADDR"),
		LogLevel:           getenvDefault("LOG_LEVEL", "info"),
		LogFormat:          getenvDefault("LOG_FORMAT", "text"),
		NetworkGTFS:        os.Getenv("NETWORK_GTFS"),
		NetworkFile:        os.Getenv("NETWORK_FILE"),
		NetworkDBName:      os.Getenv("NETWORK_DB_NAME"),
		OSRMURL:            getenvDefault("OSRM_URL", "https://router.project-osrm.org"),
		NominatimURL:       getenvDefault("NOMINATIM_URL", "https://nominatim.openstreetmap.org"),
		NominatimUserAgent: getenvDefault("NOMINATIM_USER_AGENT", "shuttle-tracker/1.0"),
		NATSURL:            os.Getenv("NATS_URL"),
		NATSSubjectPrefix:  getenvDefault("NATS_SUBJECT_PREFIX", "vehicles"),
	}

	cfg.DatabaseURL = databaseURL()

	cfg.VehicleSource = strings.ToLower(getenvDefault("VEHICLE_SOURCE", VehicleSourceREST))
	cfg.VehicleAPIURL = firstNonEmpty(os.Getenv("VEHICLE_API_URL"), os.Getenv("FIREBASE_DB_URL"))
	cfg.GTFSRTVehiclesURL = os.Getenv("GTFSRT_VEHICLES_URL")
	switch cfg.VehicleSource {
	case VehicleSourceREST:
		if cfg.VehicleAPIURL == "" {
			return nil, errors.New("VEHICLE_API_URL or FIREBASE_DB_URL must be set when VEHICLE_SOURCE=rest")
		}
	case VehicleSourceGTFSRT:
		if cfg.GTFSRTVehiclesURL == "" {
			return nil, errors.New("GTFSRT_VEHICLES_URL must be set when VEHICLE_SOURCE=gtfsrt")
		}
	default:
		return nil, fmt.Errorf("invalid VEHICLE_SOURCE: %q", cfg.VehicleSource)
	}

	// "*" accepts any vehicle id.
	switch v := strings.TrimSpace(os.Getenv("VEHICLE_IDS")); v {
	case "":
		cfg.VehicleIDs = append([]string(nil), defaultVehicleIDs...)
	case "*":
		cfg.VehicleIDs = nil
	default:
		cfg.VehicleIDs = splitList(v)
	}

	var err error
	if cfg.PollInterval, err = envMillis("POLL_INTERVAL_MS", 2000, false); err != nil {
		return nil, err
	}
	// Cached positions must expire before the next poll tick.
	defTTL := int(cfg.PollInterval / 2 / time.Millisecond)
	if cfg.VehicleCacheTTL, err = envMillis("VEHICLE_CACHE_TTL_MS", defTTL, true); err != nil {
		return nil, err
	}
	if cfg.VehicleCacheTTL >= cfg.PollInterval {
		return nil, fmt.Errorf("invalid VEHICLE_CACHE_TTL_MS: %q (must be below POLL_INTERVAL_MS)", os.Getenv("VEHICLE_CACHE_TTL_MS"))
	}
	if cfg.HTTPTimeout, err = envMillis("HTTP_TIMEOUT_MS", 10000, false); err != nil {
		return nil, err
	}

	cfg.RoutingCacheSize = 1000
	if v := os.Getenv("ROUTING_CACHE_SIZE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("invalid ROUTING_CACHE_SIZE: %q", v)
		}
		cfg.RoutingCacheSize = n
	}

	cfg.GeofenceMeters = 250
	if v := os.Getenv("GEOFENCE_METERS"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || f <= 0 {
			return nil, fmt.Errorf("invalid GEOFENCE_METERS: %q", v)
		}
		cfg.GeofenceMeters = f
	}

	cfg.LogNATSSubjects = envBool("LOG_NATS_SUBJECTS")
	cfg.TrackOnStart = envBool("TRACK_ON_START")

	switch strings.ToLower(cfg.LogFormat) {
	case "text", "json":
	default:
		return nil, fmt.Errorf("invalid LOG_FORMAT: %q", cfg.LogFormat)
	}

	// Time zone
	tzName := getenvDefault("TZ", "")
	if tzName == "" {
		cfg.Location = time.Local
	} else {
		loc, err := time.LoadLocation(tzName)
		if err != nil {
			return nil, fmt.Errorf("invalid TZ: %v", err)
		}
		cfg.Location = loc
	}

	return cfg, nil
}

// databaseURL prefers DATABASE_URL / PG_DSN, else builds a DSN from PG* vars.
// It is empty when no database is configured.
func databaseURL() string {
	if dsn := firstNonEmpty(os.Getenv("DATABASE_URL"), os.Getenv("PG_DSN")); dsn != "" {
		return dsn
	}
	db := os.Getenv("PGDATABASE")
	if db == "" {
		return ""
	}
	host := getenvDefault("PGHOST", "127.0.0.1")
	port := getenvDefault("PGPORT", "5432")
	user := getenvDefault("PGUSER", "postgres")
	pass := os.Getenv("PGPASSWORD")
	sslmode := getenvDefault("PGSSLMODE", "disable")
	if pass != "" {
		return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", urlEscape(user), urlEscape(pass), host, port, db, sslmode)
	}
	return fmt.Sprintf("postgres://%s@%s:%s/%s?sslmode=%s", urlEscape(user), host, port, db, sslmode)
}

func envMillis(k string, def int, allowZero bool) (time.Duration, error) {
	v := os.Getenv(k)
	if v == "" {
		return time.Duration(def) * time.Millisecond, nil
	}
	ms, err := strconv.Atoi(v)
	if err != nil || ms < 0 || (ms == 0 && !allowZero) {
		return 0, fmt.Errorf("invalid %s: %q", k, v)
	}
	return time.Duration(ms) * time.Millisecond, nil
}

func envBool(k string) bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(k))) {
	case "1", "true", "t", "yes", "y", "on":
		return true
	default:
		return false
	}
}

func splitList(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func getenvDefault(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func urlEscape(s string) string {
	// Minimal escape for DSN user/pass with special chars
	r := strings.NewReplacer("@", "%40", ":", "%3A", "/", "%2F", "?", "%3F", "#", "%23")
	return r.Replace(s)
}
