package health

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sundose/sundose/internal/dose"
)

// MemoryStore is an in-process health store.
type MemoryStore struct {
	mu          sync.RWMutex
	skinType    *dose.SkinType
	age         *int
	samples     []Sample
	unavailable bool
}

// NewMemoryStore creates an empty health store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// SetAttributes sets the physiological attributes. Nil clears a value.
func (m *MemoryStore) SetAttributes(skinType *dose.SkinType, age *int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.skinType = skinType
	m.age = age
}

// SetUnavailable makes every call fail with ErrUnavailable.
func (m *MemoryStore) SetUnavailable(v bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.unavailable = v
}

func (m *MemoryStore) SkinType(_ context.Context) (dose.SkinType, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.unavailable {
		return 0, false, ErrUnavailable
	}
	if m.skinType == nil {
		return 0, false, nil
	}
	return *m.skinType, true, nil
}

func (m *MemoryStore) Age(_ context.Context) (int, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.unavailable {
		return 0, false, ErrUnavailable
	}
	if m.age == nil {
		return 0, false, nil
	}
	return *m.age, true, nil
}

func (m *MemoryStore) DoseBetween(_ context.Context, from, to time.Time) (float64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.unavailable {
		return 0, ErrUnavailable
	}

	var total float64
	for _, s := range m.samples {
		if !s.At.Before(from) && s.At.Before(to) {
			total += s.IU
		}
	}
	return total, nil
}

func (m *MemoryStore) DailyDoses(_ context.Context, n int, now time.Time) ([]DailyDose, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.unavailable {
		return nil, ErrUnavailable
	}
	return bucketDaily(m.samples, n, now), nil
}

func (m *MemoryStore) AppendDose(_ context.Context, s Sample) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.unavailable {
		return ErrUnavailable
	}
	if s.ID == "" {
		s.ID = uuid.New().String()
	}
	m.samples = append(m.samples, s)
	return nil
}

// Samples returns a copy of every stored sample.
func (m *MemoryStore) Samples() []Sample {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]Sample(nil), m.samples...)
}

var _ Store = (*MemoryStore)(nil)
