// Package state is the typed persistence port for small pieces of host
// state: the profile, last known location, active session snapshot, last
// fetch time and notification marker.
package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/sundose/sundose/internal/dose"
	"github.com/sundose/sundose/internal/uv"
)

// ErrCorrupt is returned when a stored value cannot be decoded.
var ErrCorrupt = errors.New("stored value is corrupt")

// Keys used in the backend.
const (
	KeyProfile            = "profile"
	KeyLastLocation       = "last_location"
	KeySession            = "session"
	KeyLastFetch          = "last_fetch"
	KeyNotificationMarker = "notification_marker"
)

// Store provides typed access to a Backend.
type Store struct {
	backend Backend
}

// NewStore creates a typed store over the backend.
func NewStore(backend Backend) *Store {
	return &Store{backend: backend}
}

// Profile returns the saved profile, if any.
func (s *Store) Profile(ctx context.Context) (dose.Profile, bool, error) {
	var p dose.Profile
	ok, err := s.load(ctx, KeyProfile, &p)
	return p, ok, err
}

// SaveProfile persists the profile. The derived seven-day average is not stored.
func (s *Store) SaveProfile(ctx context.Context, p dose.Profile) error {
	return s.save(ctx, KeyProfile, p)
}

// LastLocation returns the last known location, if any.
func (s *Store) LastLocation(ctx context.Context) (uv.Location, bool, error) {
	var loc uv.Location
	ok, err := s.load(ctx, KeyLastLocation, &loc)
	return loc, ok, err
}

// SaveLastLocation persists the last known location.
func (s *Store) SaveLastLocation(ctx context.Context, loc uv.Location) error {
	return s.save(ctx, KeyLastLocation, loc)
}

// LoadSession returns the persisted session snapshot or nil.
func (s *Store) LoadSession(ctx context.Context) (*dose.Session, error) {
	var sess dose.Session
	ok, err := s.load(ctx, KeySession, &sess)
	if err != nil || !ok {
		return nil, err
	}
	return &sess, nil
}

// SaveSession persists the session snapshot.
func (s *Store) SaveSession(ctx context.Context, sess dose.Session) error {
	return s.save(ctx, KeySession, sess)
}

// ClearSession removes the session snapshot.
func (s *Store) ClearSession(ctx context.Context) error {
	return s.backend.Delete(ctx, KeySession)
}

// LastFetch returns the time of the last successful fetch, if any.
func (s *Store) LastFetch(ctx context.Context) (time.Time, bool, error) {
	var t time.Time
	ok, err := s.load(ctx, KeyLastFetch, &t)
	return t, ok, err
}

// SaveLastFetch persists the time of the last successful fetch.
func (s *Store) SaveLastFetch(ctx context.Context, t time.Time) error {
	return s.save(ctx, KeyLastFetch, t)
}

// NotificationMarker returns the date sun events were last scheduled for,
// or "" when never.
func (s *Store) NotificationMarker(ctx context.Context) (string, error) {
	var date string
	_, err := s.load(ctx, KeyNotificationMarker, &date)
	return date, err
}

// SaveNotificationMarker persists the date sun events were scheduled for.
func (s *Store) SaveNotificationMarker(ctx context.Context, date string) error {
	return s.save(ctx, KeyNotificationMarker, date)
}

func (s *Store) load(ctx context.Context, key string, v any) (bool, error) {
	raw, ok, err := s.backend.Get(ctx, key)
	if err != nil || !ok {
		return false, err
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return false, fmt.Errorf("%w: %s: %w", ErrCorrupt, key, err)
	}
	return true, nil
}

func (s *Store) save(ctx context.Context, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", key, err)
	}
	return s.backend.Set(ctx, key, raw)
}

var _ dose.SessionStore = (*Store)(nil)
