package connectivity

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// DefaultProbeInterval is how often the monitor checks reachability.
const DefaultProbeInterval = 30 * time.Second

// Prober checks whether an endpoint answers.
type Prober interface {
	Probe(ctx context.Context, url string) error
}

// MonitorConfig holds configuration for a Monitor.
type MonitorConfig struct {
	Gate     *Gate
	Prober   Prober
	URL      string
	Interval time.Duration
	Timeout  time.Duration
	Logger   zerolog.Logger
}

// Monitor polls a URL and feeds the result into a Gate.
type Monitor struct {
	gate     *Gate
	prober   Prober
	url      string
	interval time.Duration
	timeout  time.Duration
	logger   zerolog.Logger
}

// NewMonitor creates a new reachability monitor.
func NewMonitor(cfg MonitorConfig) *Monitor {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultProbeInterval
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}

	return &Monitor{
		gate:     cfg.Gate,
		prober:   cfg.Prober,
		url:      cfg.URL,
		interval: cfg.Interval,
		timeout:  cfg.Timeout,
		logger:   cfg.Logger.With().Str("component", "connectivity").Logger(),
	}
}

// Run probes immediately and then on every interval until ctx is done.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.Check(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Check(ctx)
		}
	}
}

// Check runs a single probe and updates the gate.
func (m *Monitor) Check(ctx context.Context) bool {
	probeCtx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	err := m.prober.Probe(probeCtx, m.url)
	if ctx.Err() != nil {
		return m.gate.Online()
	}

	reachable := err == nil
	if m.gate.Set(reachable) {
		event := m.logger.Info()
		if !reachable {
			event = m.logger.Warn().Err(err)
		}
		event.Bool("reachable", reachable).Msg("connectivity changed")
	}
	return reachable
}
