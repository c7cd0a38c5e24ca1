package envcache

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

const postgresSchema = `
	CREATE TABLE IF NOT EXISTS uv_day_cache (
		key_lat DOUBLE PRECISION NOT NULL,
		key_lon DOUBLE PRECISION NOT NULL,
		date DATE NOT NULL,
		lat DOUBLE PRECISION NOT NULL,
		lon DOUBLE PRECISION NOT NULL,
		hourly_uv DOUBLE PRECISION[] NOT NULL,
		hourly_cloud DOUBLE PRECISION[] NOT NULL,
		max_uv DOUBLE PRECISION NOT NULL,
		sunrise TIMESTAMPTZ,
		sunset TIMESTAMPTZ,
		updated_at TIMESTAMPTZ NOT NULL,
		PRIMARY KEY (key_lat, key_lon, date)
	);
	CREATE INDEX IF NOT EXISTS idx_uv_day_cache_date ON uv_day_cache(date);
	CREATE INDEX IF NOT EXISTS idx_uv_day_cache_point ON uv_day_cache(lat, lon);
`

// PostgresRepository is a PostgreSQL implementation of Repository, used when
// several worker and API instances share one cache.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a new PostgreSQL day record repository.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

// EnsureSchema creates the table if it does not exist.
func (r *PostgresRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, postgresSchema); err != nil {
		return fmt.Errorf("creating uv_day_cache table: %w", err)
	}
	return nil
}

// Upsert inserts or replaces a record by key.
func (r *PostgresRepository) Upsert(ctx context.Context, rec DayRecord) error {
	query := `
		INSERT INTO uv_day_cache (key_lat, key_lon, date, lat, lon, hourly_uv, hourly_cloud, max_uv, sunrise, sunset, updated_at)
		VALUES ($1, $2, $3::date, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (key_lat, key_lon, date) DO UPDATE SET
			lat = EXCLUDED.lat,
			lon = EXCLUDED.lon,
			hourly_uv = EXCLUDED.hourly_uv,
			hourly_cloud = EXCLUDED.hourly_cloud,
			max_uv = EXCLUDED.max_uv,
			sunrise = EXCLUDED.sunrise,
			sunset = EXCLUDED.sunset,
			updated_at = EXCLUDED.updated_at
	`

	k := rec.key()
	_, err := r.pool.Exec(ctx, query,
		k.lat, k.lon, k.date, rec.Lat, rec.Lon,
		nonNil(rec.HourlyUV), nonNil(rec.HourlyCloud), rec.MaxUV,
		nullableTime(rec.Sunrise), nullableTime(rec.Sunset), rec.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upserting day record: %w", err)
	}
	return nil
}

// Find returns records within tolerance and the date range.
func (r *PostgresRepository) Find(ctx context.Context, q Query) ([]DayRecord, error) {
	query := `
		SELECT lat, lon, to_char(date, 'YYYY-MM-DD'), hourly_uv, hourly_cloud, max_uv, sunrise, sunset, updated_at
		FROM uv_day_cache
		WHERE lat BETWEEN $1 AND $2
		  AND lon BETWEEN $3 AND $4
		  AND date BETWEEN $5::date AND $6::date
		ORDER BY date
	`

	tol := q.Tolerance + coordEpsilon
	rows, err := r.pool.Query(ctx, query, q.Lat-tol, q.Lat+tol, q.Lon-tol, q.Lon+tol, q.FromDate, q.ToDate)
	if err != nil {
		return nil, fmt.Errorf("querying day records: %w", err)
	}
	defer rows.Close()

	var out []DayRecord
	for rows.Next() {
		var (
			rec             DayRecord
			sunrise, sunset *time.Time
		)
		if err := rows.Scan(
			&rec.Lat, &rec.Lon, &rec.Date,
			&rec.HourlyUV, &rec.HourlyCloud, &rec.MaxUV,
			&sunrise, &sunset, &rec.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scanning day record: %w", err)
		}
		if sunrise != nil {
			rec.Sunrise = *sunrise
		}
		if sunset != nil {
			rec.Sunset = *sunset
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// DeleteBefore removes records older than cutoff.
func (r *PostgresRepository) DeleteBefore(ctx context.Context, cutoff string) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM uv_day_cache WHERE date < $1::date`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("pruning day records: %w", err)
	}
	return tag.RowsAffected(), nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

var _ Repository = (*PostgresRepository)(nil)
