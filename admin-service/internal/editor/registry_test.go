package editor

import (
	"sync"
	"testing"
	"time"

	"chunked-loader/admin-service/internal/notify"
	"chunked-loader/shared/models"
	"chunked-loader/shared/tuple/tupletest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
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

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestRegistry(t *testing.T, sinks SinkFactory, maxOpen int) (*Registry, *tupletest.Transport, *fakeClock) {
	v := "1"
	store := tupletest.Tuples([]models.SettingProperty{{ID: 1, Key: "a", CharValue: &v}})
	tr := &tupletest.Transport{Reply: tupletest.Echo(&store)}
	clock := &fakeClock{now: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}

	r := NewRegistry(tr, sinks, 10*time.Minute, maxOpen, zap.NewNop())
	r.now = clock.Now
	t.Cleanup(r.Close)
	return r, tr, clock
}

func mustOpen(t *testing.T, r *Registry) *Session {
	t.Helper()
	s, err := r.Open()
	require.NoError(t, err)
	return s
}

func TestRegistry_OpenAndGet(t *testing.T) {
	r, _, _ := newTestRegistry(t, nil, 0)

	s := mustOpen(t, r)
	require.NotNil(t, s)
	assert.NotEmpty(t, s.ID)
	require.Eventually(t, s.Editor.Loaded, time.Second, 5*time.Millisecond)

	got, ok := r.Get(s.ID)
	assert.True(t, ok)
	assert.Same(t, s, got)

	_, ok = r.Get("unknown")
	assert.False(t, ok)
	assert.Equal(t, 1, r.Len())
}

func TestRegistry_SessionsAreIndependent(t *testing.T) {
	r, tr, _ := newTestRegistry(t, nil, 0)

	a := mustOpen(t, r)
	b := mustOpen(t, r)
	require.Eventually(t, func() bool { return a.Editor.Loaded() && b.Editor.Loaded() }, time.Second, 5*time.Millisecond)

	require.NoError(t, a.Editor.SetValue(1, "edited"))
	assert.Equal(t, "1", b.Editor.Items()[0].Value())
	assert.Equal(t, 2, tr.Observers())
}

func TestRegistry_SinksReceiveSessionNotifications(t *testing.T) {
	extra := notify.NewQueue(0)
	var sinkSession string
	r, _, _ := newTestRegistry(t, func(id string) []notify.Notifier {
		sinkSession = id
		return []notify.Notifier{extra}
	}, 0)

	s := mustOpen(t, r)
	require.Eventually(t, s.Editor.Loaded, time.Second, 5*time.Millisecond)
	require.NoError(t, s.Editor.Reset(t.Context()))

	assert.Equal(t, s.ID, sinkSession)
	assert.Len(t, s.Balloons.Drain(), 1)
	assert.Len(t, extra.Drain(), 1)
}

func TestRegistry_Reap(t *testing.T) {
	r, tr, clock := newTestRegistry(t, nil, 0)

	idle := mustOpen(t, r)
	active := mustOpen(t, r)
	require.Eventually(t, func() bool { return idle.Editor.Loaded() && active.Editor.Loaded() }, time.Second, 5*time.Millisecond)

	clock.Advance(6 * time.Minute)
	_, ok := r.Get(active.ID)
	require.True(t, ok)
	clock.Advance(6 * time.Minute)

	assert.Equal(t, 1, r.Reap())
	_, ok = r.Get(idle.ID)
	assert.False(t, ok)
	_, ok = r.Get(active.ID)
	assert.True(t, ok)
	assert.Equal(t, 1, tr.Observers(), "reaped editor must release its subscription")

	assert.ErrorIs(t, idle.Editor.Save(t.Context()), ErrEditorDestroyed)
}

func TestRegistry_Close(t *testing.T) {
	r, tr, _ := newTestRegistry(t, nil, 0)
	r.StartReaper(time.Hour)

	s := mustOpen(t, r)
	require.Eventually(t, s.Editor.Loaded, time.Second, 5*time.Millisecond)

	r.Close()
	r.Close()

	assert.Equal(t, 0, r.Len())
	assert.Equal(t, 0, tr.Observers())
	s, err := r.Open()
	assert.Nil(t, s)
	assert.ErrorIs(t, err, ErrRegistryClosed)
}

func TestRegistry_MaxOpenSessions(t *testing.T) {
	r, tr, clock := newTestRegistry(t, nil, 2)

	first := mustOpen(t, r)
	mustOpen(t, r)

	s, err := r.Open()
	assert.Nil(t, s)
	assert.ErrorIs(t, err, ErrTooManySessions)
	assert.Equal(t, 2, r.Len())
	assert.Equal(t, 2, tr.Observers(), "refused session must not subscribe")

	// Освободившееся место можно занять снова
	clock.Advance(11 * time.Minute)
	_, ok := r.Get(first.ID)
	require.True(t, ok)
	assert.Equal(t, 1, r.Reap())
	mustOpen(t, r)
	assert.Equal(t, 2, r.Len())
}
