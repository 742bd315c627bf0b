package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"shuttle-tracker/internal/api"
	"shuttle-tracker/internal/config"
	"shuttle-tracker/internal/db"
	"shuttle-tracker/internal/eta"
	"shuttle-tracker/internal/geocode"
	"shuttle-tracker/internal/logging"
	"shuttle-tracker/internal/metrics"
	"shuttle-tracker/internal/network"
	"shuttle-tracker/internal/planner"
	"shuttle-tracker/internal/publisher"
	"shuttle-tracker/internal/routing"
	"shuttle-tracker/internal/tracker"
	"shuttle-tracker/internal/trip"
	"shuttle-tracker/internal/vehicle"
)

func main() {
	// Load configuration from .env and environment
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	logger := logging.New(os.Stderr, cfg.LogFormat, logging.ParseLevel(cfg.LogLevel))
	slog.SetDefault(logger)

	// Root context with cancellation on SIGINT/SIGTERM
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	nw, source, err := loadNetwork(ctx, cfg)
	if err != nil {
		log.Fatalf("network error: %v", err)
	}
	logging.LogOperation(logger, "network loaded",
		slog.String("source", source),
		slog.Int("stops", len(nw.Stops())),
		slog.Int("routes", len(nw.Routes())))

	// Metrics are always collected; the listener is optional.
	mcol := metrics.NewCollector(cfg.PollInterval)
	if cfg.MetricsAddr != "" {
		srv := mcol.Serve(cfg.MetricsAddr, logger)
		defer shutdown(srv)
	}

	router := routing.NewOSRM(cfg.OSRMURL, cfg.HTTPTimeout, cfg.RoutingCacheSize, mcol)
	vehicles := newVehicleSource(cfg, nw)

	hub := api.NewHub(api.DefaultSubscriberBuffer)
	sinks := tracker.Sinks{hub}
	if cfg.NATSURL != "" {
		pub, err := publisher.NewNATSPublisher(cfg.NATSURL, cfg.NATSSubjectPrefix, cfg.LogNATSSubjects, mcol, logger)
		if err != nil {
			log.Fatalf("nats error: %v", err)
		}
		defer pub.Close()
		sinks = append(sinks, pub)
	}

	mgr := tracker.NewManager(vehicles, nw, cfg.PollInterval, sinks, mcol, logger)
	defer mgr.Close()
	if cfg.TrackOnStart {
		for _, id := range cfg.VehicleIDs {
			if err := mgr.Start(id); err != nil {
				logging.LogError(logger, "start tracking", err, slog.String("vehicle", id))
			}
		}
	}

	a := api.New(api.Deps{
		Network:    nw,
		Planner:    planner.New(nw),
		Assembler:  trip.NewAssembler(nw, router),
		Tracker:    mgr,
		Vehicles:   vehicles,
		VehicleIDs: cfg.VehicleIDs,
		ETA:        eta.New(nw, router, cfg.GeofenceMeters, cfg.Location),
		Geocoder:   geocode.NewClient(cfg.NominatimURL, cfg.NominatimUserAgent, cfg.HTTPTimeout),
		Hub:        hub,
		Metrics:    mcol,
		Logger:     logger,
	})
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           a.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(_ net.Listener) context.Context { return ctx },
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("http server error: %v", err)
		}
	}()
	logging.LogOperation(logger, "http listening", slog.String("addr", cfg.HTTPAddr))

	// Block until context cancelled
	<-ctx.Done()
	shutdown(srv)
	log.Println("shutdown complete")
}

// loadNetwork builds the stop registry and route catalog from the first
// configured source: GTFS, database, file, then the built-in network.
func loadNetwork(ctx context.Context, cfg *config.Config) (*network.Network, string, error) {
	switch {
	case cfg.NetworkGTFS != "":
		n, err := network.LoadGTFS(cfg.NetworkGTFS)
		return n, "gtfs", err
	case cfg.DatabaseURL != "":
		dsn := cfg.DatabaseURL
		if cfg.NetworkDBName != "" {
			var err error
			if dsn, err = db.WithDatabase(dsn, cfg.NetworkDBName); err != nil {
				return nil, "", err
			}
		}
		sqlDB, err := db.Open(dsn)
		if err != nil {
			return nil, "", err
		}
		defer sqlDB.Close()
		if err := db.Ping(ctx, sqlDB); err != nil {
			return nil, "", err
		}
		n, err := db.LoadNetwork(ctx, sqlDB)
		return n, "database", err
	case cfg.NetworkFile != "":
		n, err := network.LoadFile(cfg.NetworkFile)
		return n, "file", err
	default:
		n, err := network.Default()
		return n, "builtin", err
	}
}

func newVehicleSource(cfg *config.Config, nw *network.Network) vehicle.Source {
	var src vehicle.Source
	switch cfg.VehicleSource {
	case config.VehicleSourceGTFSRT:
		src = vehicle.NewGTFSRT(cfg.GTFSRTVehiclesURL, nw, cfg.HTTPTimeout)
	default:
		src = vehicle.NewREST(cfg.VehicleAPIURL, cfg.HTTPTimeout)
	}
	if cfg.VehicleCacheTTL > 0 {
		src = vehicle.NewCached(src, len(cfg.VehicleIDs)+16, cfg.VehicleCacheTTL)
	}
	return vehicle.Restrict(src, cfg.VehicleIDs)
}

func shutdown(srv *http.Server) {
	// Shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	_ = srv.Shutdown(ctx)
}
