package health

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sundose/sundose/internal/dose"
)

const postgresSchema = `
	CREATE TABLE IF NOT EXISTS health_attributes (
		id SMALLINT PRIMARY KEY DEFAULT 1 CHECK (id = 1),
		skin_type SMALLINT,
		age INTEGER,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	);
	CREATE TABLE IF NOT EXISTS dose_samples (
		id UUID PRIMARY KEY,
		iu DOUBLE PRECISION NOT NULL,
		at TIMESTAMPTZ NOT NULL,
		manual BOOLEAN NOT NULL DEFAULT false
	);
	CREATE INDEX IF NOT EXISTS idx_dose_samples_at ON dose_samples(at);
`

// PostgresStore is a PostgreSQL-backed health store for the single user.
// Connection errors surface as ErrUnavailable.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL health store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// EnsureSchema creates the tables if they do not exist.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, postgresSchema); err != nil {
		return fmt.Errorf("creating health tables: %w", err)
	}
	return nil
}

// SetAttributes upserts the physiological attributes.
func (s *PostgresStore) SetAttributes(ctx context.Context, skinType *dose.SkinType, age *int) error {
	var st *int16
	if skinType != nil {
		v := int16(*skinType)
		st = &v
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO health_attributes (id, skin_type, age, updated_at)
		VALUES (1, $1, $2, now())
		ON CONFLICT (id) DO UPDATE SET skin_type = EXCLUDED.skin_type, age = EXCLUDED.age, updated_at = now()
	`, st, age)
	if err != nil {
		return unavailable(err)
	}
	return nil
}

func (s *PostgresStore) SkinType(ctx context.Context) (dose.SkinType, bool, error) {
	var st *int16
	err := s.pool.QueryRow(ctx, `SELECT skin_type FROM health_attributes WHERE id = 1`).Scan(&st)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, unavailable(err)
	}
	if st == nil {
		return 0, false, nil
	}

	parsed, err := dose.ParseSkinType(int(*st))
	if err != nil {
		return 0, false, nil
	}
	return parsed, true, nil
}

func (s *PostgresStore) Age(ctx context.Context) (int, bool, error) {
	var age *int32
	err := s.pool.QueryRow(ctx, `SELECT age FROM health_attributes WHERE id = 1`).Scan(&age)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, unavailable(err)
	}
	if age == nil {
		return 0, false, nil
	}
	return int(*age), true, nil
}

func (s *PostgresStore) DoseBetween(ctx context.Context, from, to time.Time) (float64, error) {
	var total float64
	err := s.pool.QueryRow(ctx, `
		SELECT COALESCE(SUM(iu), 0) FROM dose_samples WHERE at >= $1 AND at < $2
	`, from, to).Scan(&total)
	if err != nil {
		return 0, unavailable(err)
	}
	return total, nil
}

func (s *PostgresStore) DailyDoses(ctx context.Context, n int, now time.Time) ([]DailyDose, error) {
	if n <= 0 {
		return nil, nil
	}

	from := StartOfDay(now).AddDate(0, 0, -(n - 1))
	to := StartOfDay(now).AddDate(0, 0, 1)

	rows, err := s.pool.Query(ctx, `
		SELECT id::text, iu, at, manual FROM dose_samples WHERE at >= $1 AND at < $2
	`, from, to)
	if err != nil {
		return nil, unavailable(err)
	}
	defer rows.Close()

	var samples []Sample
	for rows.Next() {
		var smp Sample
		if err := rows.Scan(&smp.ID, &smp.IU, &smp.At, &smp.Manual); err != nil {
			return nil, fmt.Errorf("scanning dose sample: %w", err)
		}
		samples = append(samples, smp)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable(err)
	}

	return bucketDaily(samples, n, now), nil
}

func (s *PostgresStore) AppendDose(ctx context.Context, smp Sample) error {
	if smp.ID == "" {
		smp.ID = uuid.New().String()
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO dose_samples (id, iu, at, manual) VALUES ($1, $2, $3, $4)
	`, smp.ID, smp.IU, smp.At, smp.Manual)
	if err != nil {
		return unavailable(err)
	}
	return nil
}

func unavailable(err error) error {
	return fmt.Errorf("%w: %w", ErrUnavailable, err)
}

var _ Store = (*PostgresStore)(nil)
