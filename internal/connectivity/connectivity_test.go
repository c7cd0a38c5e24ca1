package connectivity_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sundose/sundose/internal/connectivity"
	"github.com/sundose/sundose/internal/provider/resilience"
)

func TestGate_EdgeTriggered(t *testing.T) {
	var online, offline int
	gate := connectivity.NewGate(connectivity.GateConfig{
		OnOnline:  func() { online++ },
		OnOffline: func() { offline++ },
	})

	assert.True(t, gate.Online())

	assert.False(t, gate.Set(true), "repeated online is not an edge")
	assert.Equal(t, 0, online)

	assert.True(t, gate.Set(false))
	assert.False(t, gate.Set(false))
	assert.Equal(t, 1, offline)
	assert.False(t, gate.Online())

	assert.True(t, gate.Set(true))
	assert.Equal(t, 1, online)
	assert.Equal(t, 1, offline)
}

func TestGate_NilCallbacks(t *testing.T) {
	gate := connectivity.NewGate(connectivity.GateConfig{})
	assert.True(t, gate.Set(false))
	assert.True(t, gate.Set(true))
}

func TestGate_CallbackMayReadState(t *testing.T) {
	var gate *connectivity.Gate
	var seen bool
	gate = connectivity.NewGate(connectivity.GateConfig{
		OnOffline: func() { seen = gate.Online() },
	})

	gate.Set(false)
	assert.False(t, seen)
}

type scriptedProber struct {
	mu   sync.Mutex
	errs []error
}

func (p *scriptedProber) Probe(_ context.Context, _ string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.errs) == 0 {
		return nil
	}
	err := p.errs[0]
	p.errs = p.errs[1:]
	return err
}

func TestMonitor_Check(t *testing.T) {
	var offline, online int
	gate := connectivity.NewGate(connectivity.GateConfig{
		OnOnline:  func() { online++ },
		OnOffline: func() { offline++ },
	})

	prober := &scriptedProber{errs: []error{errors.New("no route"), errors.New("no route"), nil}}
	monitor := connectivity.NewMonitor(connectivity.MonitorConfig{
		Gate:   gate,
		Prober: prober,
		URL:    "https://example.invalid",
		Logger: zerolog.Nop(),
	})

	ctx := context.Background()
	assert.False(t, monitor.Check(ctx))
	assert.False(t, monitor.Check(ctx))
	assert.True(t, monitor.Check(ctx))

	assert.Equal(t, 1, offline)
	assert.Equal(t, 1, online)
}

func TestMonitor_WithResilientClient(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		assert.Equal(t, http.MethodHead, r.Method)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	gate := connectivity.NewGate(connectivity.GateConfig{})
	gate.Set(false)

	client := resilience.NewClient(resilience.DefaultClientConfig("probe"))
	monitor := connectivity.NewMonitor(connectivity.MonitorConfig{
		Gate:     gate,
		Prober:   client,
		URL:      server.URL,
		Interval: 10 * time.Millisecond,
		Logger:   zerolog.Nop(),
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		monitor.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return hits.Load() >= 2 }, time.Second, 5*time.Millisecond)
	cancel()
	<-done

	assert.True(t, gate.Online())
}
