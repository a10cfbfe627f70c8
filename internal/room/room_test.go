package room

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/schedy/internal/actor"
	"github.com/ManuGH/schedy/internal/schedule"
	"github.com/ManuGH/schedy/internal/store"
	"github.com/ManuGH/schedy/internal/value"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// fakeActor is a minimal temperature actor recording every send.
type fakeActor struct {
	mu     sync.Mutex
	entity string
	sent   []value.Value
	failN  int
	cur    value.Value
}

func (a *fakeActor) EntityID() string { return a.entity }
func (a *fakeActor) Type() string     { return "fake" }

func (a *fakeActor) ValidateValue(raw any) (value.Value, error) {
	return value.ParseTemp(raw)
}

func (a *fakeActor) DeserializeValue(s string) (value.Value, error) {
	return value.ParseTemp(s)
}

func (a *fakeActor) FilterSetValue(v value.Value) (value.Value, bool) { return v, true }

func (a *fakeActor) Send(_ context.Context, v value.Value) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.failN > 0 {
		a.failN--
		return assert.AnError
	}
	a.sent = append(a.sent, v)
	a.cur = v
	return nil
}

func (a *fakeActor) HandleState(attrs map[string]any) (actor.StateUpdate, error) {
	raw, ok := attrs["temperature"]
	if !ok {
		return actor.StateUpdate{}, nil
	}
	v, err := value.ParseTemp(raw)
	if err != nil {
		return actor.StateUpdate{}, err
	}
	a.mu.Lock()
	a.cur = v
	a.mu.Unlock()
	return actor.StateUpdate{Value: v}, nil
}

func (a *fakeActor) CurrentValue() value.Value {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.cur
}

func (a *fakeActor) CheckConfig(map[string]any) {}

func (a *fakeActor) sentValues() []value.Value {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]value.Value, len(a.sent))
	copy(out, a.sent)
	return out
}

func allDaySchedule(t *testing.T, v any) *schedule.Schedule {
	t.Helper()
	s, err := schedule.Build([]schedule.RuleConfig{{Value: v}})
	require.NoError(t, err)
	return s
}

// noon on a fixed Wednesday
var testNow = time.Date(2026, 1, 7, 12, 0, 0, 0, time.UTC)

func newTestRoom(t *testing.T, cfg Config, sched *schedule.Schedule) (*Room, *fakeActor, *fakeClock, *store.MemoryStore) {
	t.Helper()
	if cfg.Name == "" {
		cfg.Name = "living"
	}
	a := &fakeActor{entity: "climate.living"}
	clk := &fakeClock{now: testNow}
	st := store.NewMemoryStore()
	r, err := New(cfg, sched, []actor.Actor{a}, st, WithClock(clk))
	require.NoError(t, err)
	return r, a, clk, st
}

func TestApplySendsScheduledValue(t *testing.T) {
	r, a, _, _ := newTestRoom(t, Config{}, allDaySchedule(t, 20.0))

	require.NoError(t, r.Apply(context.Background()))
	sent := a.sentValues()
	require.Len(t, sent, 1)
	assert.Equal(t, "20", sent[0].Serialize())
}

func TestApplySkipsWhenActorAlreadyMatches(t *testing.T) {
	r, a, _, _ := newTestRoom(t, Config{}, allDaySchedule(t, 20.0))
	a.cur = value.NewTemp(20)

	require.NoError(t, r.Apply(context.Background()))
	assert.Empty(t, a.sentValues())
}

func TestOverrideWinsOverSchedule(t *testing.T) {
	r, a, _, _ := newTestRoom(t, Config{}, allDaySchedule(t, 20.0))

	require.NoError(t, r.SetOverride(context.Background(), 25.0, 0))
	sent := a.sentValues()
	require.NotEmpty(t, sent)
	assert.Equal(t, "25", sent[len(sent)-1].Serialize())

	snap := r.Snapshot()
	assert.Equal(t, "25", snap.Wanted)
	require.NotNil(t, snap.Overlay)
	assert.Equal(t, "25", snap.Overlay.Value)
	assert.Nil(t, snap.Overlay.ExpiresAt)
}

func TestOverrideExpires(t *testing.T) {
	r, a, clk, _ := newTestRoom(t, Config{}, allDaySchedule(t, 20.0))

	require.NoError(t, r.SetOverride(context.Background(), 25.0, time.Hour))
	assert.Equal(t, testNow.Add(time.Hour), r.NextWake())

	clk.advance(2 * time.Hour)
	require.NoError(t, r.Apply(context.Background()))

	assert.Nil(t, r.Overlay())
	sent := a.sentValues()
	require.NotEmpty(t, sent)
	assert.Equal(t, "20", sent[len(sent)-1].Serialize())
}

func TestClearOverride(t *testing.T) {
	r, a, _, _ := newTestRoom(t, Config{}, allDaySchedule(t, 20.0))

	require.NoError(t, r.SetOverride(context.Background(), 25.0, 0))
	require.NoError(t, r.ClearOverride(context.Background()))

	assert.Nil(t, r.Overlay())
	sent := a.sentValues()
	require.NotEmpty(t, sent)
	assert.Equal(t, "20", sent[len(sent)-1].Serialize())
}

func TestExternalChangeRevertedImmediately(t *testing.T) {
	r, a, _, _ := newTestRoom(t, Config{ReschedulingDelay: 0}, allDaySchedule(t, 20.0))
	require.NoError(t, r.Apply(context.Background()))

	// Someone turns the knob to 23.
	require.NoError(t, r.HandleStateChange(context.Background(), "climate.living", map[string]any{"temperature": 23.0}))

	sent := a.sentValues()
	require.NotEmpty(t, sent)
	assert.Equal(t, "20", sent[len(sent)-1].Serialize())
	assert.Nil(t, r.Overlay())
}

func TestExternalChangeKeptWithDelay(t *testing.T) {
	r, a, clk, _ := newTestRoom(t, Config{ReschedulingDelay: 30 * time.Minute}, allDaySchedule(t, 20.0))
	require.NoError(t, r.Apply(context.Background()))
	before := len(a.sentValues())

	require.NoError(t, r.HandleStateChange(context.Background(), "climate.living", map[string]any{"temperature": 23.0}))

	// Nothing re-sent; the manual value holds until the timer fires.
	assert.Len(t, a.sentValues(), before)
	o := r.Overlay()
	require.NotNil(t, o)
	assert.Equal(t, "23", o.Value.Serialize())
	require.NotNil(t, o.ExpiresAt)
	assert.Equal(t, testNow.Add(30*time.Minute), *o.ExpiresAt)
	assert.Equal(t, testNow.Add(30*time.Minute), r.NextWake())

	// After the delay the schedule takes over again.
	clk.advance(time.Hour)
	require.NoError(t, r.Apply(context.Background()))
	assert.Nil(t, r.Overlay())
	sent := a.sentValues()
	assert.Equal(t, "20", sent[len(sent)-1].Serialize())
}

func TestExternalChangeMatchingWantedIsIgnored(t *testing.T) {
	r, a, _, _ := newTestRoom(t, Config{ReschedulingDelay: 30 * time.Minute}, allDaySchedule(t, 20.0))
	require.NoError(t, r.Apply(context.Background()))

	require.NoError(t, r.HandleStateChange(context.Background(), "climate.living", map[string]any{"temperature": 20.0}))
	assert.Nil(t, r.Overlay())
	assert.Len(t, a.sentValues(), 1)
}

func TestStateChangeForUnknownEntityIsIgnored(t *testing.T) {
	r, _, _, _ := newTestRoom(t, Config{}, allDaySchedule(t, 20.0))
	require.NoError(t, r.HandleStateChange(context.Background(), "climate.other", map[string]any{"temperature": 23.0}))
}

func TestOverrideSurvivesRestart(t *testing.T) {
	r, _, clk, st := newTestRoom(t, Config{}, allDaySchedule(t, 20.0))
	require.NoError(t, r.SetOverride(context.Background(), 25.0, 2*time.Hour))

	// A fresh room over the same store restores the overlay.
	a2 := &fakeActor{entity: "climate.living"}
	r2, err := New(Config{Name: "living"}, allDaySchedule(t, 20.0), []actor.Actor{a2}, st, WithClock(clk))
	require.NoError(t, err)
	require.NoError(t, r2.Restore(context.Background()))

	o := r2.Overlay()
	require.NotNil(t, o)
	assert.Equal(t, "25", o.Value.Serialize())
}

func TestExpiredOverrideDiscardedOnRestore(t *testing.T) {
	r, _, clk, st := newTestRoom(t, Config{}, allDaySchedule(t, 20.0))
	require.NoError(t, r.SetOverride(context.Background(), 25.0, time.Hour))

	clk.advance(2 * time.Hour)
	a2 := &fakeActor{entity: "climate.living"}
	r2, err := New(Config{Name: "living"}, allDaySchedule(t, 20.0), []actor.Actor{a2}, st, WithClock(clk))
	require.NoError(t, err)
	require.NoError(t, r2.Restore(context.Background()))

	assert.Nil(t, r2.Overlay())

	// The store no longer carries the stale overlay either.
	rec, err := st.GetRoom(context.Background(), "living")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Nil(t, rec.Overlay)
}

func TestSendRetries(t *testing.T) {
	r, a, _, _ := newTestRoom(t, Config{SendRetries: 3, SendRetryInterval: time.Millisecond}, allDaySchedule(t, 20.0))
	a.failN = 2

	require.NoError(t, r.Apply(context.Background()))
	sent := a.sentValues()
	require.Len(t, sent, 1)
	assert.Equal(t, "20", sent[0].Serialize())
}

func TestNoMatchNoOverlayLeavesActorsAlone(t *testing.T) {
	// Rule constrained to Mondays; testNow is a Wednesday.
	s, err := schedule.Build([]schedule.RuleConfig{{Value: 20.0, Weekdays: 1}})
	require.NoError(t, err)
	r, a, _, _ := newTestRoom(t, Config{}, s)

	require.NoError(t, r.Apply(context.Background()))
	assert.Empty(t, a.sentValues())
	snap := r.Snapshot()
	assert.Empty(t, snap.Wanted)
}

func TestNextWakeUsesScheduleBoundary(t *testing.T) {
	s, err := schedule.Build([]schedule.RuleConfig{
		{Value: 21.0, Start: "07:00", End: "22:00"},
		{Value: 17.0},
	})
	require.NoError(t, err)
	r, _, _, _ := newTestRoom(t, Config{}, s)

	// At noon the next boundary is 22:00.
	assert.Equal(t, time.Date(2026, 1, 7, 22, 0, 0, 0, time.UTC), r.NextWake())
}

func TestRescheduleDropsOverlay(t *testing.T) {
	r, a, _, _ := newTestRoom(t, Config{}, allDaySchedule(t, 20.0))
	require.NoError(t, r.SetOverride(context.Background(), 25.0, 0))

	require.NoError(t, r.Reschedule(context.Background(), "api"))
	assert.Nil(t, r.Overlay())
	sent := a.sentValues()
	assert.Equal(t, "20", sent[len(sent)-1].Serialize())
}
