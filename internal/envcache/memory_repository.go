package envcache

import (
	"context"
	"sort"
	"sync"
)

// InMemoryRepository is an in-memory implementation of Repository.
// This is intended for testing and development.
type InMemoryRepository struct {
	mu      sync.RWMutex
	records map[key]DayRecord
}

// NewInMemoryRepository creates a new in-memory day record repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		records: make(map[key]DayRecord),
	}
}

// Upsert stores a copy of the record.
func (r *InMemoryRepository) Upsert(_ context.Context, rec DayRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.records[rec.key()] = cloneRecord(rec)
	return nil
}

// Find returns matching records ordered by date.
func (r *InMemoryRepository) Find(_ context.Context, q Query) ([]DayRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []DayRecord
	for _, rec := range r.records {
		if rec.Date < q.FromDate || rec.Date > q.ToDate {
			continue
		}
		if !rec.Within(q.Lat, q.Lon, q.Tolerance) {
			continue
		}
		out = append(out, cloneRecord(rec))
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out, nil
}

// DeleteBefore removes records older than cutoff.
func (r *InMemoryRepository) DeleteBefore(_ context.Context, cutoff string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var n int64
	for k, rec := range r.records {
		if rec.Date < cutoff {
			delete(r.records, k)
			n++
		}
	}
	return n, nil
}

// Len returns the number of stored records.
func (r *InMemoryRepository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.records)
}

func cloneRecord(rec DayRecord) DayRecord {
	rec.HourlyUV = append([]float64(nil), rec.HourlyUV...)
	rec.HourlyCloud = append([]float64(nil), rec.HourlyCloud...)
	return rec
}

var _ Repository = (*InMemoryRepository)(nil)
