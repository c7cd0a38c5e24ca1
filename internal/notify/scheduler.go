package notify

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// TimerScheduler delivers alerts to a Sink when they fall due, using one
// timer per kind.
type TimerScheduler struct {
	mu      sync.Mutex
	sink    Sink
	logger  zerolog.Logger
	now     func() time.Time
	pending map[Kind]*pendingAlert
	closed  bool
}

type pendingAlert struct {
	n     Notification
	timer *time.Timer
}

// NewTimerScheduler creates a scheduler that delivers to sink.
func NewTimerScheduler(sink Sink, logger zerolog.Logger) *TimerScheduler {
	return &TimerScheduler{
		sink:    sink,
		logger:  logger.With().Str("component", "notify_scheduler").Logger(),
		now:     time.Now,
		pending: make(map[Kind]*pendingAlert),
	}
}

// Schedule implements Scheduler.
func (s *TimerScheduler) Schedule(ctx context.Context, n Notification) error {
	delay := n.At.Sub(s.now())

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.cancelLocked(n.Kind)

	if delay <= 0 {
		s.mu.Unlock()
		return s.sink.Deliver(ctx, n)
	}

	alert := &pendingAlert{n: n}
	alert.timer = time.AfterFunc(delay, func() { s.fire(alert) })
	s.pending[n.Kind] = alert
	s.mu.Unlock()

	s.logger.Debug().
		Str("kind", string(n.Kind)).
		Time("at", n.At).
		Msg("notification scheduled")
	return nil
}

// Cancel implements Scheduler.
func (s *TimerScheduler) Cancel(kind Kind) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelLocked(kind)
}

// Pending returns the alerts that have not fired yet.
func (s *TimerScheduler) Pending() []Notification {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Notification, 0, len(s.pending))
	for _, a := range s.pending {
		out = append(out, a.n)
	}
	return out
}

// Close stops every pending timer. Later calls to Schedule are ignored.
func (s *TimerScheduler) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for kind := range s.pending {
		s.cancelLocked(kind)
	}
	s.closed = true
}

func (s *TimerScheduler) cancelLocked(kind Kind) {
	if a, ok := s.pending[kind]; ok {
		a.timer.Stop()
		delete(s.pending, kind)
	}
}

func (s *TimerScheduler) fire(alert *pendingAlert) {
	s.mu.Lock()
	if s.pending[alert.n.Kind] != alert {
		s.mu.Unlock()
		return
	}
	delete(s.pending, alert.n.Kind)
	s.mu.Unlock()

	if err := s.sink.Deliver(context.Background(), alert.n); err != nil {
		s.logger.Error().Err(err).Str("kind", string(alert.n.Kind)).Msg("failed to deliver notification")
	}
}

var _ Scheduler = (*TimerScheduler)(nil)
