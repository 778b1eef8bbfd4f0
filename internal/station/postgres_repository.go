package station

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/skybrief/skybrief/pkg/polyline"
)

// PostgresRepository is a PostgreSQL implementation of Repository.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a new PostgreSQL station repository.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

const postgresSchema = `
	CREATE TABLE IF NOT EXISTS stations (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		latitude DOUBLE PRECISION NOT NULL,
		longitude DOUBLE PRECISION NOT NULL,
		elevation_ft INTEGER NOT NULL DEFAULT 0,
		runways INTEGER NOT NULL DEFAULT 0
	);
	CREATE INDEX IF NOT EXISTS idx_stations_lat_lon ON stations (latitude, longitude);
`

// EnsureSchema creates the stations table if needed and seeds it with the
// built-in stations when it is empty.
func (r *PostgresRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, postgresSchema); err != nil {
		return fmt.Errorf("creating station schema: %w", err)
	}

	var count int
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM stations").Scan(&count); err != nil {
		return fmt.Errorf("counting stations: %w", err)
	}
	if count > 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, s := range DefaultStations() {
		batch.Queue(`
			INSERT INTO stations (id, name, latitude, longitude, elevation_ft, runways)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (id) DO NOTHING
		`, s.ID, s.Name, s.Location.Lat, s.Location.Lon, s.ElevationFt, s.Runways)
	}
	if err := r.pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("seeding stations: %w", err)
	}
	return nil
}

// Ping reports whether the database is reachable.
func (r *PostgresRepository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// Get retrieves a station by identifier.
func (r *PostgresRepository) Get(ctx context.Context, id string) (*Station, error) {
	query := `
		SELECT id, name, latitude, longitude, elevation_ft, runways
		FROM stations
		WHERE id = $1
	`

	var s Station
	err := r.pool.QueryRow(ctx, query, NormalizeID(id)).Scan(
		&s.ID,
		&s.Name,
		&s.Location.Lat,
		&s.Location.Lon,
		&s.ElevationFt,
		&s.Runways,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, notFound(id)
		}
		return nil, err
	}
	return &s, nil
}

// Nearest returns the closest station within radiusNM of the point.
func (r *PostgresRepository) Nearest(ctx context.Context, at polyline.Coordinate, radiusNM float64) (*Match, error) {
	latDelta, lonDelta := boundingBox(at, radiusNM)
	query := `
		SELECT id, name, latitude, longitude, elevation_ft, runways
		FROM stations
		WHERE latitude BETWEEN $1 AND $2
		  AND longitude BETWEEN $3 AND $4
	`

	candidates, err := r.query(ctx, query, at.Lat-latDelta, at.Lat+latDelta, at.Lon-lonDelta, at.Lon+lonDelta)
	if err != nil {
		return nil, err
	}
	return closest(candidates, at, radiusNM)
}

// List retrieves all stations ordered by identifier.
func (r *PostgresRepository) List(ctx context.Context) ([]Station, error) {
	return r.query(ctx, `
		SELECT id, name, latitude, longitude, elevation_ft, runways
		FROM stations
		ORDER BY id
	`)
}

// Upsert creates or replaces a station.
func (r *PostgresRepository) Upsert(ctx context.Context, s Station) error {
	s.ID = NormalizeID(s.ID)
	if err := s.Validate(); err != nil {
		return err
	}

	query := `
		INSERT INTO stations (id, name, latitude, longitude, elevation_ft, runways)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			latitude = EXCLUDED.latitude,
			longitude = EXCLUDED.longitude,
			elevation_ft = EXCLUDED.elevation_ft,
			runways = EXCLUDED.runways
	`

	_, err := r.pool.Exec(ctx, query,
		s.ID,
		s.Name,
		s.Location.Lat,
		s.Location.Lon,
		s.ElevationFt,
		s.Runways,
	)
	return err
}

func (r *PostgresRepository) query(ctx context.Context, query string, args ...any) ([]Station, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var stations []Station
	for rows.Next() {
		var s Station
		err := rows.Scan(
			&s.ID,
			&s.Name,
			&s.Location.Lat,
			&s.Location.Lon,
			&s.ElevationFt,
			&s.Runways,
		)
		if err != nil {
			return nil, err
		}
		stations = append(stations, s)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}
	return stations, nil
}
