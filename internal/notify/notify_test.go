package notify_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sundose/sundose/internal/notify"
	"github.com/sundose/sundose/internal/state"
)

type recordingScheduler struct {
	scheduled []notify.Notification
	cancelled []notify.Kind
}

func (r *recordingScheduler) Schedule(_ context.Context, n notify.Notification) error {
	r.scheduled = append(r.scheduled, n)
	return nil
}

func (r *recordingScheduler) Cancel(kind notify.Kind) {
	r.cancelled = append(r.cancelled, kind)
}

func newTrigger(now time.Time) (*notify.Trigger, *recordingScheduler, *state.Store) {
	sched := &recordingScheduler{}
	markers := state.NewStore(state.NewMemoryBackend())
	trigger := notify.NewTrigger(notify.TriggerConfig{
		Scheduler: sched,
		Markers:   markers,
		Logger:    zerolog.Nop(),
		Now:       func() time.Time { return now },
	})
	return trigger, sched, markers
}

func TestScheduleSunEvents_FutureOnlyAndOncePerDay(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 6, 21, 9, 0, 0, 0, time.UTC)
	trigger, sched, markers := newTrigger(now)

	sunrise := time.Date(2026, 6, 21, 5, 48, 0, 0, time.UTC)
	sunset := time.Date(2026, 6, 21, 20, 35, 0, 0, time.UTC)

	n, err := trigger.ScheduleSunEvents(ctx, sunrise, sunset)
	require.NoError(t, err)
	assert.Equal(t, 1, n, "sunrise already passed")
	require.Len(t, sched.scheduled, 1)
	assert.Equal(t, notify.KindSunset, sched.scheduled[0].Kind)
	assert.Equal(t, sunset, sched.scheduled[0].At)
	assert.NotEmpty(t, sched.scheduled[0].ID)

	marker, err := markers.NotificationMarker(ctx)
	require.NoError(t, err)
	assert.Equal(t, "2026-06-21", marker)

	n, err = trigger.ScheduleSunEvents(ctx, sunrise, sunset)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Len(t, sched.scheduled, 1)
}

func TestScheduleSunEvents_BothFuture(t *testing.T) {
	now := time.Date(2026, 6, 21, 3, 0, 0, 0, time.UTC)
	trigger, sched, _ := newTrigger(now)

	n, err := trigger.ScheduleSunEvents(context.Background(),
		time.Date(2026, 6, 21, 5, 48, 0, 0, time.UTC),
		time.Date(2026, 6, 21, 20, 35, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, notify.KindSunrise, sched.scheduled[0].Kind)
}

func TestScheduleSunEvents_NextDayAllowed(t *testing.T) {
	ctx := context.Background()
	markers := state.NewStore(state.NewMemoryBackend())
	require.NoError(t, markers.SaveNotificationMarker(ctx, "2026-06-20"))

	sched := &recordingScheduler{}
	trigger := notify.NewTrigger(notify.TriggerConfig{
		Scheduler: sched,
		Markers:   markers,
		Logger:    zerolog.Nop(),
		Now:       func() time.Time { return time.Date(2026, 6, 21, 3, 0, 0, 0, time.UTC) },
	})

	n, err := trigger.ScheduleSunEvents(ctx,
		time.Date(2026, 6, 21, 5, 48, 0, 0, time.UTC),
		time.Date(2026, 6, 21, 20, 35, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestBurnWarning(t *testing.T) {
	now := time.Date(2026, 6, 21, 13, 0, 0, 0, time.UTC)
	trigger, sched, _ := newTrigger(now)

	require.NoError(t, trigger.BurnWarning(context.Background(), 0.8))
	require.Len(t, sched.scheduled, 1)
	assert.Equal(t, notify.KindBurnWarning, sched.scheduled[0].Kind)
	assert.Equal(t, now, sched.scheduled[0].At)
	assert.Contains(t, sched.scheduled[0].Body, "80%")
}

func TestCancelSunEvents_AllowsRescheduleSameDay(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 6, 21, 3, 0, 0, 0, time.UTC)
	trigger, sched, markers := newTrigger(now)

	sunrise := time.Date(2026, 6, 21, 5, 48, 0, 0, time.UTC)
	sunset := time.Date(2026, 6, 21, 20, 35, 0, 0, time.UTC)

	n, err := trigger.ScheduleSunEvents(ctx, sunrise, sunset)
	require.NoError(t, err)
	require.Equal(t, 2, n)

	trigger.CancelSunEvents(ctx)
	assert.Equal(t, []notify.Kind{notify.KindSunrise, notify.KindSunset}, sched.cancelled)

	marker, err := markers.NotificationMarker(ctx)
	require.NoError(t, err)
	assert.Empty(t, marker)

	n, err = trigger.ScheduleSunEvents(ctx, sunrise.Add(9*time.Minute), sunset.Add(9*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Len(t, sched.scheduled, 4)
}

type collectingSink struct {
	mu  sync.Mutex
	got []notify.Notification
}

func (c *collectingSink) Deliver(_ context.Context, n notify.Notification) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.got = append(c.got, n)
	return nil
}

func (c *collectingSink) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.got)
}

func TestTimerScheduler(t *testing.T) {
	ctx := context.Background()
	sink := &collectingSink{}
	sched := notify.NewTimerScheduler(sink, zerolog.Nop())
	defer sched.Close()

	// Past instants are delivered synchronously.
	require.NoError(t, sched.Schedule(ctx, notify.Notification{Kind: notify.KindBurnWarning, At: time.Now().Add(-time.Second)}))
	assert.Equal(t, 1, sink.count())

	require.NoError(t, sched.Schedule(ctx, notify.Notification{Kind: notify.KindSunset, At: time.Now().Add(20 * time.Millisecond)}))
	assert.Len(t, sched.Pending(), 1)

	require.Eventually(t, func() bool { return sink.count() == 2 }, time.Second, 5*time.Millisecond)
	assert.Empty(t, sched.Pending())
}

func TestTimerScheduler_CancelAndReplace(t *testing.T) {
	ctx := context.Background()
	sink := &collectingSink{}
	sched := notify.NewTimerScheduler(sink, zerolog.Nop())
	defer sched.Close()

	require.NoError(t, sched.Schedule(ctx, notify.Notification{ID: "a", Kind: notify.KindSunrise, At: time.Now().Add(time.Hour)}))
	require.NoError(t, sched.Schedule(ctx, notify.Notification{ID: "b", Kind: notify.KindSunrise, At: time.Now().Add(2 * time.Hour)}))

	pending := sched.Pending()
	require.Len(t, pending, 1)
	assert.Equal(t, "b", pending[0].ID)

	sched.Cancel(notify.KindSunrise)
	assert.Empty(t, sched.Pending())
	assert.Equal(t, 0, sink.count())
}

type fakeToken struct {
	err error
}

func (f *fakeToken) Wait() bool                     { return true }
func (f *fakeToken) WaitTimeout(time.Duration) bool { return true }
func (f *fakeToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}
func (f *fakeToken) Error() error { return f.err }

type fakePublisher struct {
	topic   string
	qos     byte
	payload []byte
	err     error
}

func (f *fakePublisher) Publish(topic string, qos byte, _ bool, payload interface{}) mqtt.Token {
	f.topic = topic
	f.qos = qos
	f.payload = payload.([]byte)
	return &fakeToken{err: f.err}
}

func TestMQTTSink_Deliver(t *testing.T) {
	pub := &fakePublisher{}
	sink := notify.NewMQTTSinkWithClient(pub, "", 0)

	n := notify.Notification{ID: "n1", Kind: notify.KindSunrise, Title: "Sunrise", At: time.Date(2026, 6, 21, 5, 48, 0, 0, time.UTC)}
	require.NoError(t, sink.Deliver(context.Background(), n))

	assert.Equal(t, "sundose/notifications/sunrise", pub.topic)
	assert.Equal(t, byte(1), pub.qos)

	var decoded notify.Notification
	require.NoError(t, json.Unmarshal(pub.payload, &decoded))
	assert.Equal(t, "n1", decoded.ID)
	assert.Equal(t, notify.KindSunrise, decoded.Kind)
}

func TestMQTTSink_PublishError(t *testing.T) {
	pub := &fakePublisher{err: errors.New("not connected")}
	sink := notify.NewMQTTSinkWithClient(pub, "custom", time.Second)

	err := sink.Deliver(context.Background(), notify.Notification{Kind: notify.KindSunset})
	require.Error(t, err)
	assert.Equal(t, "custom/sunset", pub.topic)
}

func TestNewMQTTSink_RequiresBroker(t *testing.T) {
	_, err := notify.NewMQTTSink(notify.MQTTConfig{})
	assert.Error(t, err)
}
