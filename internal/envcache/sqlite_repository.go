package envcache

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

const sqliteSchema = `
	CREATE TABLE IF NOT EXISTS uv_day_cache (
		key_lat REAL NOT NULL,
		key_lon REAL NOT NULL,
		date TEXT NOT NULL,
		lat REAL NOT NULL,
		lon REAL NOT NULL,
		hourly_uv TEXT NOT NULL,
		hourly_cloud TEXT NOT NULL,
		max_uv REAL NOT NULL,
		sunrise TEXT,
		sunset TEXT,
		updated_at TEXT NOT NULL,
		PRIMARY KEY (key_lat, key_lon, date)
	);
	CREATE INDEX IF NOT EXISTS idx_uv_day_cache_date ON uv_day_cache(date);
`

// SQLiteRepository stores day records in a local SQLite database.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a repository over an open SQLite handle.
// Call EnsureSchema before first use.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// EnsureSchema creates the table and index if they do not exist.
func (r *SQLiteRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, sqliteSchema); err != nil {
		return fmt.Errorf("creating uv_day_cache table: %w", err)
	}
	return nil
}

// Upsert inserts or replaces a record by key.
func (r *SQLiteRepository) Upsert(ctx context.Context, rec DayRecord) error {
	uv, cloud, err := encodeSeries(rec)
	if err != nil {
		return err
	}

	k := rec.key()
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO uv_day_cache (key_lat, key_lon, date, lat, lon, hourly_uv, hourly_cloud, max_uv, sunrise, sunset, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(key_lat, key_lon, date) DO UPDATE SET
			lat = excluded.lat,
			lon = excluded.lon,
			hourly_uv = excluded.hourly_uv,
			hourly_cloud = excluded.hourly_cloud,
			max_uv = excluded.max_uv,
			sunrise = excluded.sunrise,
			sunset = excluded.sunset,
			updated_at = excluded.updated_at
	`,
		k.lat, k.lon, k.date, rec.Lat, rec.Lon, uv, cloud, rec.MaxUV,
		formatTime(rec.Sunrise), formatTime(rec.Sunset), formatTime(rec.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("upserting day record: %w", err)
	}
	return nil
}

// Find returns records within tolerance and the date range.
func (r *SQLiteRepository) Find(ctx context.Context, q Query) ([]DayRecord, error) {
	tol := q.Tolerance + coordEpsilon
	rows, err := r.db.QueryContext(ctx, `
		SELECT lat, lon, date, hourly_uv, hourly_cloud, max_uv, sunrise, sunset, updated_at
		FROM uv_day_cache
		WHERE lat BETWEEN ? AND ?
		  AND lon BETWEEN ? AND ?
		  AND date BETWEEN ? AND ?
		ORDER BY date
	`, q.Lat-tol, q.Lat+tol, q.Lon-tol, q.Lon+tol, q.FromDate, q.ToDate)
	if err != nil {
		return nil, fmt.Errorf("querying day records: %w", err)
	}
	defer rows.Close()

	var out []DayRecord
	for rows.Next() {
		var (
			rec                      DayRecord
			uv, cloud                string
			sunrise, sunset, updated sql.NullString
		)
		if err := rows.Scan(&rec.Lat, &rec.Lon, &rec.Date, &uv, &cloud, &rec.MaxUV, &sunrise, &sunset, &updated); err != nil {
			return nil, fmt.Errorf("scanning day record: %w", err)
		}
		if err := json.Unmarshal([]byte(uv), &rec.HourlyUV); err != nil {
			return nil, fmt.Errorf("decoding hourly uv: %w", err)
		}
		if err := json.Unmarshal([]byte(cloud), &rec.HourlyCloud); err != nil {
			return nil, fmt.Errorf("decoding hourly cloud: %w", err)
		}
		rec.Sunrise = parseTime(sunrise)
		rec.Sunset = parseTime(sunset)
		rec.UpdatedAt = parseTime(updated)
		out = append(out, rec)
	}
	return out, rows.Err()
}

// DeleteBefore removes records older than cutoff.
func (r *SQLiteRepository) DeleteBefore(ctx context.Context, cutoff string) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM uv_day_cache WHERE date < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("pruning day records: %w", err)
	}
	return res.RowsAffected()
}

func encodeSeries(rec DayRecord) (string, string, error) {
	uv, err := json.Marshal(nonNil(rec.HourlyUV))
	if err != nil {
		return "", "", fmt.Errorf("encoding hourly uv: %w", err)
	}
	cloud, err := json.Marshal(nonNil(rec.HourlyCloud))
	if err != nil {
		return "", "", fmt.Errorf("encoding hourly cloud: %w", err)
	}
	return string(uv), string(cloud), nil
}

func nonNil(s []float64) []float64 {
	if s == nil {
		return []float64{}
	}
	return s
}

func formatTime(t time.Time) sql.NullString {
	if t.IsZero() {
		return sql.NullString{}
	}
	return sql.NullString{String: t.Format(time.RFC3339Nano), Valid: true}
}

func parseTime(s sql.NullString) time.Time {
	if !s.Valid {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s.String)
	if err != nil {
		return time.Time{}
	}
	return t
}

var _ Repository = (*SQLiteRepository)(nil)
