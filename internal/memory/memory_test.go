package memory

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/multisense/agent/internal/log"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newTestService(t *testing.T, maxTurns int, ttl time.Duration) *Service {
	t.Helper()
	svc, err := New(Config{MaxTurns: maxTurns, TTL: ttl}, log.NewNop())
	require.NoError(t, err)
	return svc
}

func userTurn(sessionID, text string) Turn {
	return Turn{SessionID: sessionID, Role: RoleUser, Text: text, Timestamp: time.Now()}
}

func TestNewValidatesConfig(t *testing.T) {
	t.Parallel()

	_, err := New(Config{MaxTurns: 0, TTL: time.Hour}, log.NewNop())
	require.Error(t, err)

	_, err = New(Config{MaxTurns: 10, TTL: 0}, log.NewNop())
	require.Error(t, err)
}

func TestHistoryUnknownSession(t *testing.T) {
	t.Parallel()

	svc := newTestService(t, 10, time.Hour)
	assert.Empty(t, svc.History("never-seen"))
}

func TestAppendAndHistoryOrder(t *testing.T) {
	t.Parallel()

	svc := newTestService(t, 10, time.Hour)
	svc.Append("s1", userTurn("s1", "first"))
	svc.Append("s1", Turn{SessionID: "s1", Role: RoleAssistant, Text: "second"})
	svc.Append("s1", userTurn("s1", "third"))

	turns := svc.History("s1")
	require.Len(t, turns, 3)
	assert.Equal(t, "first", turns[0].Text)
	assert.Equal(t, "second", turns[1].Text)
	assert.Equal(t, "third", turns[2].Text)
}

func TestBoundedFIFOEviction(t *testing.T) {
	t.Parallel()

	const maxTurns = 6
	svc := newTestService(t, maxTurns, time.Hour)

	for i := 0; i < maxTurns+5; i++ {
		svc.Append("s1", userTurn("s1", fmt.Sprintf("turn-%d", i)))
	}

	turns := svc.History("s1")
	require.Len(t, turns, maxTurns)
	// The most recent maxTurns survive, oldest first.
	assert.Equal(t, "turn-5", turns[0].Text)
	assert.Equal(t, "turn-10", turns[maxTurns-1].Text)
}

func TestTTLExpiry(t *testing.T) {
	t.Parallel()

	svc := newTestService(t, 10, time.Hour)

	base := time.Now()
	svc.now = func() time.Time { return base }
	svc.Append("s1", userTurn("s1", "hello"))

	// Just inside the TTL: still there, and the access refreshes the
	// idle clock.
	svc.now = func() time.Time { return base.Add(59 * time.Minute) }
	require.Len(t, svc.History("s1"), 1)

	// 59m + 59m exceeds the original hour but not the refreshed clock.
	svc.now = func() time.Time { return base.Add(118 * time.Minute) }
	require.Len(t, svc.History("s1"), 1)

	// Past the TTL since last access: purged, indistinguishable from new.
	svc.now = func() time.Time { return base.Add(200 * time.Minute) }
	assert.Empty(t, svc.History("s1"))
	assert.Empty(t, svc.ActiveSessions())

	// The session restarts cleanly.
	svc.Append("s1", userTurn("s1", "again"))
	require.Len(t, svc.History("s1"), 1)
}

func TestAppendAfterExpiryStartsFresh(t *testing.T) {
	t.Parallel()

	svc := newTestService(t, 10, time.Hour)

	base := time.Now()
	svc.now = func() time.Time { return base }
	svc.Append("s1", userTurn("s1", "old"))

	svc.now = func() time.Time { return base.Add(2 * time.Hour) }
	svc.Append("s1", userTurn("s1", "new"))

	turns := svc.History("s1")
	require.Len(t, turns, 1)
	assert.Equal(t, "new", turns[0].Text)
}

func TestClear(t *testing.T) {
	t.Parallel()

	svc := newTestService(t, 10, time.Hour)
	svc.Append("s1", userTurn("s1", "hello"))
	svc.Clear("s1")

	assert.Empty(t, svc.History("s1"))
	// Clearing an unknown session is a no-op.
	svc.Clear("does-not-exist")
}

func TestActiveSessions(t *testing.T) {
	t.Parallel()

	svc := newTestService(t, 10, time.Hour)
	svc.Append("s1", userTurn("s1", "a"))
	svc.Append("s2", userTurn("s2", "b"))

	assert.ElementsMatch(t, []string{"s1", "s2"}, svc.ActiveSessions())
}

func TestHistoryReturnsCopy(t *testing.T) {
	t.Parallel()

	svc := newTestService(t, 10, time.Hour)
	svc.Append("s1", userTurn("s1", "original"))

	turns := svc.History("s1")
	turns[0].Text = "mutated"

	assert.Equal(t, "original", svc.History("s1")[0].Text)
}

func TestConcurrentAppendsSameSession(t *testing.T) {
	t.Parallel()

	const (
		workers = 8
		each    = 50
		maxTurn = workers * each
	)
	svc := newTestService(t, maxTurn, time.Hour)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < each; i++ {
				svc.Append("shared", userTurn("shared", fmt.Sprintf("w%d-%d", w, i)))
			}
		}(w)
	}
	wg.Wait()

	// No turn lost to a race.
	assert.Len(t, svc.History("shared"), maxTurn)
}

func TestConcurrentDistinctSessions(t *testing.T) {
	t.Parallel()

	svc := newTestService(t, 100, time.Hour)

	var wg sync.WaitGroup
	for w := 0; w < 16; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			id := fmt.Sprintf("session-%d", w)
			for i := 0; i < 25; i++ {
				svc.Append(id, userTurn(id, "x"))
				_ = svc.History(id)
			}
		}(w)
	}
	wg.Wait()

	assert.Len(t, svc.ActiveSessions(), 16)
	for w := 0; w < 16; w++ {
		assert.Len(t, svc.History(fmt.Sprintf("session-%d", w)), 25)
	}
}

func TestAppendSurvivesConcurrentExpiryPurge(t *testing.T) {
	t.Parallel()

	// An Append racing the purge of an expired session must not land on
	// the evicted state: whichever order the two take, the new turn is
	// visible afterwards.
	for i := 0; i < 500; i++ {
		svc := newTestService(t, 10, time.Hour)
		base := time.Now()
		svc.now = func() time.Time { return base }
		svc.Append("s1", userTurn("s1", "stale"))

		// Everything recorded so far is now past the TTL.
		svc.now = func() time.Time { return base.Add(2 * time.Hour) }

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			_ = svc.History("s1")
		}()
		go func() {
			defer wg.Done()
			svc.Append("s1", Turn{SessionID: "s1", Role: RoleAssistant, Text: "fresh"})
		}()
		wg.Wait()

		turns := svc.History("s1")
		require.Len(t, turns, 1, "appended turn lost to concurrent purge")
		assert.Equal(t, "fresh", turns[0].Text)
	}
}
