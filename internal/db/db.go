package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"shuttle-tracker/internal/network"

	_ "github.com/jackc/pgx/v5/stdlib"
)

func Open(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(30 * time.Minute)
	return db, nil
}

func Ping(ctx context.Context, db *sql.DB) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return db.PingContext(ctx)
}

// LoadNetwork reads the stop registry from `stops` and the route catalog from
// `route_stops`. Vehicle assignments come from `vehicle_routes` when that
// table exists. Routes are returned ordered by route_name.
func LoadNetwork(ctx context.Context, db *sql.DB) (*network.Network, error) {
	stops, err := fetchStops(ctx, db)
	if err != nil {
		return nil, err
	}
	rows, err := fetchRouteStops(ctx, db)
	if err != nil {
		return nil, err
	}
	vehicles, err := fetchVehicleRoutes(ctx, db)
	if err != nil {
		return nil, err
	}
	return network.New(stops, groupRoutes(rows), vehicles)
}

func fetchStops(ctx context.Context, db *sql.DB) ([]network.Stop, error) {
	// Prefer stop_lat/stop_lon, but support PostGIS stop_loc geography as fallback
	cols, err := hasColumns(ctx, db, "public", "stops", "stop_lat", "stop_lon", "stop_loc")
	if err != nil {
		return nil, fmt.Errorf("introspect stops columns: %w", err)
	}
	var q string
	switch {
	case cols["stop_lat"] && cols["stop_lon"]:
		q = `SELECT stop_name, stop_lat, stop_lon FROM stops ORDER BY stop_name`
	case cols["stop_loc"]:
		q = `SELECT stop_name, ST_Y(stop_loc::geometry), ST_X(stop_loc::geometry) FROM stops ORDER BY stop_name`
	default:
		return nil, fmt.Errorf("stops table missing expected columns (stop_lat/lon or stop_loc)")
	}
	rows, err := db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("query stops: %w", err)
	}
	defer rows.Close()
	var stops []network.Stop
	for rows.Next() {
		var s network.Stop
		if err := rows.Scan(&s.Name, &s.Lat, &s.Lon); err != nil {
			return nil, err
		}
		stops = append(stops, s)
	}
	return stops, rows.Err()
}

type routeStopRow struct {
	Route string
	Stop  string
}

func fetchRouteStops(ctx context.Context, db *sql.DB) ([]routeStopRow, error) {
	q := `SELECT route_name, stop_name FROM route_stops ORDER BY route_name, stop_sequence`
	rows, err := db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("query route_stops: %w", err)
	}
	defer rows.Close()
	var out []routeStopRow
	for rows.Next() {
		var r routeStopRow
		if err := rows.Scan(&r.Route, &r.Stop); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func fetchVehicleRoutes(ctx context.Context, db *sql.DB) (map[string]string, error) {
	exists, err := hasTable(ctx, db, "public", "vehicle_routes")
	if err != nil {
		return nil, fmt.Errorf("introspect vehicle_routes: %w", err)
	}
	if !exists {
		return nil, nil
	}
	rows, err := db.QueryContext(ctx, `SELECT vehicle_id, route_name FROM vehicle_routes`)
	if err != nil {
		return nil, fmt.Errorf("query vehicle_routes: %w", err)
	}
	defer rows.Close()
	out := map[string]string{}
	for rows.Next() {
		var id, route string
		if err := rows.Scan(&id, &route); err != nil {
			return nil, err
		}
		out[id] = route
	}
	return out, rows.Err()
}

// groupRoutes folds ordered (route, stop) rows into routes, keeping the
// order in which each route first appears.
func groupRoutes(rows []routeStopRow) []network.Route {
	var routes []network.Route
	idx := map[string]int{}
	for _, r := range rows {
		i, ok := idx[r.Route]
		if !ok {
			i = len(routes)
			idx[r.Route] = i
			routes = append(routes, network.Route{Name: r.Route})
		}
		routes[i].Stops = append(routes[i].Stops, r.Stop)
	}
	return routes
}

// hasColumns returns a map of requested column names to existence for the given table.
func hasColumns(ctx context.Context, db *sql.DB, schema, table string, cols ...string) (map[string]bool, error) {
	res := make(map[string]bool, len(cols))
	if len(cols) == 0 {
		return res, nil
	}
	for _, c := range cols {
		res[c] = false
	}
	q := `SELECT column_name FROM information_schema.columns
          WHERE table_schema = $1 AND table_name = $2 AND column_name = ANY($3)`
	rows, err := db.QueryContext(ctx, q, schema, table, cols)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		res[name] = true
	}
	return res, rows.Err()
}

func hasTable(ctx context.Context, db *sql.DB, schema, table string) (bool, error) {
	q := `SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_schema = $1 AND table_name = $2)`
	var ok bool
	if err := db.QueryRowContext(ctx, q, schema, table).Scan(&ok); err != nil {
		return false, err
	}
	return ok, nil
}
