package station

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/skybrief/skybrief/pkg/polyline"
)

const sqliteSchema = `
	CREATE TABLE IF NOT EXISTS stations (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		latitude REAL NOT NULL,
		longitude REAL NOT NULL,
		elevation_ft INTEGER NOT NULL DEFAULT 0,
		runways INTEGER NOT NULL DEFAULT 0
	);
	CREATE INDEX IF NOT EXISTS idx_stations_lat_lon ON stations(latitude, longitude);
`

// SQLiteRepository is an embedded SQLite implementation of Repository.
type SQLiteRepository struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) the station database at path and
// seeds it with the built-in stations when it is empty.
func OpenSQLite(ctx context.Context, path string) (*SQLiteRepository, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening station database: %w", err)
	}
	_, _ = db.ExecContext(ctx, "PRAGMA journal_mode=WAL")
	_, _ = db.ExecContext(ctx, "PRAGMA synchronous=NORMAL")

	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("creating station schema: %w", err)
	}

	r := &SQLiteRepository{db: db}
	if err := r.provision(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return r, nil
}

func (r *SQLiteRepository) provision(ctx context.Context) error {
	var count int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM stations").Scan(&count); err != nil {
		return fmt.Errorf("counting stations: %w", err)
	}
	if count > 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning provision: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `INSERT OR IGNORE INTO stations (id, name, latitude, longitude, elevation_ft, runways) VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing provision: %w", err)
	}
	defer stmt.Close()

	for _, s := range DefaultStations() {
		if _, err := stmt.ExecContext(ctx, s.ID, s.Name, s.Location.Lat, s.Location.Lon, s.ElevationFt, s.Runways); err != nil {
			return fmt.Errorf("inserting station %s: %w", s.ID, err)
		}
	}
	return tx.Commit()
}

// Ping reports whether the database is usable.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the underlying database.
func (r *SQLiteRepository) Close() error {
	return r.db.Close()
}

// Get retrieves a station by identifier.
func (r *SQLiteRepository) Get(ctx context.Context, id string) (*Station, error) {
	var s Station
	err := r.db.QueryRowContext(ctx,
		"SELECT id, name, latitude, longitude, elevation_ft, runways FROM stations WHERE id = ?",
		NormalizeID(id),
	).Scan(&s.ID, &s.Name, &s.Location.Lat, &s.Location.Lon, &s.ElevationFt, &s.Runways)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound(id)
	}
	if err != nil {
		return nil, fmt.Errorf("querying station by id: %w", err)
	}
	return &s, nil
}

// Nearest filters candidates with a bounding box, then by great-circle
// distance.
func (r *SQLiteRepository) Nearest(ctx context.Context, at polyline.Coordinate, radiusNM float64) (*Match, error) {
	latDelta, lonDelta := boundingBox(at, radiusNM)
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, latitude, longitude, elevation_ft, runways
		FROM stations
		WHERE latitude BETWEEN ? AND ?
		  AND longitude BETWEEN ? AND ?
	`, at.Lat-latDelta, at.Lat+latDelta, at.Lon-lonDelta, at.Lon+lonDelta)
	if err != nil {
		return nil, fmt.Errorf("querying stations: %w", err)
	}
	candidates, err := scanStations(rows)
	if err != nil {
		return nil, err
	}
	return closest(candidates, at, radiusNM)
}

// List retrieves all stations ordered by identifier.
func (r *SQLiteRepository) List(ctx context.Context) ([]Station, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT id, name, latitude, longitude, elevation_ft, runways FROM stations ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("listing stations: %w", err)
	}
	return scanStations(rows)
}

// Upsert creates or replaces a station.
func (r *SQLiteRepository) Upsert(ctx context.Context, s Station) error {
	s.ID = NormalizeID(s.ID)
	if err := s.Validate(); err != nil {
		return err
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO stations (id, name, latitude, longitude, elevation_ft, runways)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			latitude = excluded.latitude,
			longitude = excluded.longitude,
			elevation_ft = excluded.elevation_ft,
			runways = excluded.runways
	`, s.ID, s.Name, s.Location.Lat, s.Location.Lon, s.ElevationFt, s.Runways)
	if err != nil {
		return fmt.Errorf("upserting station %s: %w", s.ID, err)
	}
	return nil
}

func scanStations(rows *sql.Rows) ([]Station, error) {
	defer rows.Close()

	var out []Station
	for rows.Next() {
		var s Station
		if err := rows.Scan(&s.ID, &s.Name, &s.Location.Lat, &s.Location.Lon, &s.ElevationFt, &s.Runways); err != nil {
			return nil, fmt.Errorf("scanning station: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
