package session

import (
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testStore() *Store {
	return NewStore(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestCreateIsIdempotent(t *testing.T) {
	st := testStore()

	first := st.Create("s1")
	second := st.Create("s1")

	require.Same(t, first, second)
	assert.Equal(t, 1, st.Len())
}

func TestCreateGeneratesID(t *testing.T) {
	st := testStore()

	sess := st.Create("")
	assert.NotEmpty(t, sess.ID)

	other := st.Create("")
	assert.NotEqual(t, sess.ID, other.ID)
}

func TestGetMissing(t *testing.T) {
	st := testStore()

	_, ok := st.Get("nope")
	assert.False(t, ok)
}

func TestTouchUpdatesActivity(t *testing.T) {
	st := testStore()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	st.Now = func() time.Time { return now }

	sess := st.Create("s1")
	require.Equal(t, now, sess.LastActivityAt)

	now = now.Add(5 * time.Minute)
	require.True(t, st.Touch("s1"))
	assert.Equal(t, now, sess.LastActivityAt)

	assert.False(t, st.Touch("missing"))
}

func TestDelete(t *testing.T) {
	st := testStore()
	st.Create("s1")
	st.Delete("s1")

	_, ok := st.Get("s1")
	assert.False(t, ok)
	assert.Equal(t, 0, st.Len())

	// deleting again is a no-op
	st.Delete("s1")
}

func TestSweepReapsIdleSessions(t *testing.T) {
	st := testStore()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	st.Now = func() time.Time { return now }

	st.Create("idle")
	now = now.Add(10 * time.Minute)
	st.Create("fresh")

	removed := st.Sweep(now, 5*time.Minute)
	assert.Equal(t, 1, removed)

	_, ok := st.Get("idle")
	assert.False(t, ok)
	_, ok = st.Get("fresh")
	assert.True(t, ok)
}

func TestSweepZeroTTLDisabled(t *testing.T) {
	st := testStore()
	st.Create("s1")

	removed := st.Sweep(time.Now().Add(24*time.Hour), 0)
	assert.Equal(t, 0, removed)
	assert.Equal(t, 1, st.Len())
}

func TestConcurrentCreateAndMutate(t *testing.T) {
	st := testStore()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sess := st.Create("shared")
			sess.Lock()
			sess.Items = append(sess.Items, Item{Name: "x", Quantity: 1})
			sess.Unlock()
		}()
	}
	wg.Wait()

	sess, ok := st.Get("shared")
	require.True(t, ok)
	assert.Len(t, sess.SnapshotItems(), 50)
}

func TestAddMessageBoundsHistory(t *testing.T) {
	st := testStore()
	sess := st.Create("s1")

	sess.Lock()
	for i := 0; i < maxHistory+10; i++ {
		sess.AddMessage("user", "hello", time.Now())
	}
	sess.Unlock()

	assert.Len(t, sess.SnapshotMessages(), maxHistory)
}
