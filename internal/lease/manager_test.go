package lease

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vigil/backend/internal/core"
)

func TestAcquireAndRelease(t *testing.T) {
	m := NewManager()

	l, err := m.Acquire(core.ResourceCamera, "session-a")
	require.NoError(t, err)
	require.NotNil(t, l)

	holder, held := m.Holder(core.ResourceCamera)
	assert.True(t, held)
	assert.Equal(t, "session-a", holder)

	require.NoError(t, l.Release())
	_, held = m.Holder(core.ResourceCamera)
	assert.False(t, held)
}

func TestAcquireWhileHeldFailsBusy(t *testing.T) {
	m := NewManager()

	_, err := m.Acquire(core.ResourceCamera, "session-a")
	require.NoError(t, err)

	_, err = m.Acquire(core.ResourceCamera, "session-b")
	assert.ErrorIs(t, err, ErrResourceBusy)
}

func TestAcquireByHolderIsIdempotent(t *testing.T) {
	m := NewManager()

	first, err := m.Acquire(core.ResourceCamera, "session-a")
	require.NoError(t, err)

	again, err := m.Acquire(core.ResourceCamera, "session-a")
	require.NoError(t, err)
	assert.Same(t, first, again, "holder re-acquire must return the same lease")
}

func TestReleaseThenAcquireHandoff(t *testing.T) {
	m := NewManager()

	la, err := m.Acquire(core.ResourceCamera, "session-a")
	require.NoError(t, err)

	// B fails fast while A holds.
	_, err = m.Acquire(core.ResourceCamera, "session-b")
	require.ErrorIs(t, err, ErrResourceBusy)

	// A releases, B retries and wins.
	require.NoError(t, la.Release())
	lb, err := m.Acquire(core.ResourceCamera, "session-b")
	require.NoError(t, err)
	assert.Equal(t, "session-b", lb.SessionID)
}

func TestReleaseWithoutOwnershipFailsNotHolder(t *testing.T) {
	m := NewManager()

	la, err := m.Acquire(core.ResourceCamera, "session-a")
	require.NoError(t, err)
	require.NoError(t, la.Release())

	// A stale guard released after a handoff must not evict the new holder.
	_, err = m.Acquire(core.ResourceCamera, "session-b")
	require.NoError(t, err)

	err = m.release(core.ResourceCamera, "session-a")
	assert.ErrorIs(t, err, ErrNotHolder)

	holder, _ := m.Holder(core.ResourceCamera)
	assert.Equal(t, "session-b", holder)
}

func TestDoubleReleaseIsSafe(t *testing.T) {
	m := NewManager()

	l, err := m.Acquire(core.ResourceCamera, "session-a")
	require.NoError(t, err)

	require.NoError(t, l.Release())
	// Second release through the guard is a no-op, not ErrNotHolder.
	assert.NoError(t, l.Release())
}

func TestResourcesAreIndependent(t *testing.T) {
	m := NewManager()

	_, err := m.Acquire(core.ResourceCamera, "session-a")
	require.NoError(t, err)

	// A different resource is still free for another session.
	_, err = m.Acquire(core.ResourceBehaviorSource, "session-b")
	assert.NoError(t, err)
}

func TestConcurrentAcquireHasExactlyOneWinner(t *testing.T) {
	m := NewManager()

	const contenders = 32
	var wg sync.WaitGroup
	wins := make(chan string, contenders)

	for i := 0; i < contenders; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			session := string(rune('A' + id))
			if _, err := m.Acquire(core.ResourceCamera, session); err == nil {
				wins <- session
			}
		}(i)
	}
	wg.Wait()
	close(wins)

	var winners []string
	for w := range wins {
		winners = append(winners, w)
	}
	require.Len(t, winners, 1, "exactly one session may win the race")

	holder, held := m.Holder(core.ResourceCamera)
	require.True(t, held)
	assert.Equal(t, winners[0], holder)
}

func TestConcurrentAcquireReleaseNeverDoubleHolds(t *testing.T) {
	m := NewManager()

	var wg sync.WaitGroup
	for _, session := range []string{"session-a", "session-b"} {
		wg.Add(1)
		go func(session string) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				l, err := m.Acquire(core.ResourceCamera, session)
				if err != nil {
					continue
				}
				holder, held := m.Holder(core.ResourceCamera)
				assert.True(t, held)
				assert.Equal(t, session, holder)
				assert.NoError(t, l.Release())
			}
		}(session)
	}
	wg.Wait()

	_, held := m.Holder(core.ResourceCamera)
	assert.False(t, held)
}

func TestSnapshot(t *testing.T) {
	m := NewManager()
	_, err := m.Acquire(core.ResourceCamera, "session-a")
	require.NoError(t, err)
	_, err = m.Acquire(core.ResourceBehaviorSource, "session-a")
	require.NoError(t, err)

	records := m.Snapshot()
	assert.Len(t, records, 2)
	for _, r := range records {
		assert.Equal(t, "session-a", r.Holder)
		assert.False(t, r.AcquiredAt.IsZero())
	}
}
