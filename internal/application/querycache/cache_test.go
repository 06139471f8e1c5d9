package querycache_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"coachhub/internal/application/querycache"
)

// fakeClock is a settable time source.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}

func newCache() (*querycache.Cache, *fakeClock) {
	clock := &fakeClock{now: time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)}
	return querycache.New(querycache.Options{Stale: 30 * time.Second, Now: clock.Now}), clock
}

var sessionsKey = querycache.Key{Resource: querycache.ResourceSessions, Scope: "role=coach;org=o1;coach=c1"}

func counting(calls *int32, values ...[]string) func(context.Context) ([]string, error) {
	return func(context.Context) ([]string, error) {
		n := atomic.AddInt32(calls, 1)
		if int(n) <= len(values) {
			return values[n-1], nil
		}
		return values[len(values)-1], nil
	}
}

// TestGet_CachesUntilStale verifies hits inside the staleness window and refetch after.
func TestGet_CachesUntilStale(t *testing.T) {
	c, clock := newCache()
	var calls int32
	fetch := counting(&calls, []string{"a"}, []string{"a", "b"})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		v, err := querycache.Get(ctx, c, sessionsKey, fetch)
		if err != nil || len(v) != 1 {
			t.Fatalf("Get() = %v, %v", v, err)
		}
	}
	if calls != 1 {
		t.Errorf("fetches = %d, want 1", calls)
	}
	clock.Advance(31 * time.Second)
	v, _ := querycache.Get(ctx, c, sessionsKey, fetch)
	if len(v) != 2 || calls != 2 {
		t.Errorf("after stale: v=%v fetches=%d", v, calls)
	}
	hits, misses := c.Stats()
	if hits != 2 || misses != 2 {
		t.Errorf("hits=%d misses=%d, want 2/2", hits, misses)
	}
}

// TestGet_KeysAreIndependent verifies scope and filters separate entries.
func TestGet_KeysAreIndependent(t *testing.T) {
	c, _ := newCache()
	var calls int32
	fetch := counting(&calls, []string{"x"})
	ctx := context.Background()
	other := sessionsKey
	other.Filters = "status=completed"

	querycache.Get(ctx, c, sessionsKey, fetch)
	querycache.Get(ctx, c, other, fetch)
	if calls != 2 || c.Len() != 2 {
		t.Errorf("fetches=%d len=%d, want 2/2", calls, c.Len())
	}
}

// TestGet_CoalescesConcurrentMisses verifies one fetch for concurrent readers.
func TestGet_CoalescesConcurrentMisses(t *testing.T) {
	c, _ := newCache()
	var calls int32
	release := make(chan struct{})
	started := make(chan struct{})
	var once sync.Once
	fetch := func(context.Context) ([]string, error) {
		atomic.AddInt32(&calls, 1)
		once.Do(func() { close(started) })
		<-release
		return []string{"shared"}, nil
	}

	var wg sync.WaitGroup
	results := make([][]string, 5)
	wg.Add(1)
	go func() {
		defer wg.Done()
		results[0], _ = querycache.Get(context.Background(), c, sessionsKey, fetch)
	}()
	<-started
	for i := 1; i < 5; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], _ = querycache.Get(context.Background(), c, sessionsKey, fetch)
		}(i)
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	if calls != 1 {
		t.Errorf("fetches = %d, want 1", calls)
	}
	for i, r := range results {
		if len(r) != 1 || r[0] != "shared" {
			t.Errorf("result %d = %v", i, r)
		}
	}
}

// TestInvalidate_InFlightReadDoesNotRepopulate verifies generation fencing.
func TestInvalidate_InFlightReadDoesNotRepopulate(t *testing.T) {
	c, _ := newCache()
	ctx := context.Background()

	_, err := querycache.Get(ctx, c, sessionsKey, func(context.Context) ([]string, error) {
		c.Invalidate(querycache.ResourceSessions)
		return []string{"stale"}, nil
	})
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if c.Len() != 0 {
		t.Fatal("read started before invalidation must not fill the cache")
	}

	var calls int32
	v, _ := querycache.Get(ctx, c, sessionsKey, counting(&calls, []string{"fresh"}))
	if calls != 1 || v[0] != "fresh" {
		t.Errorf("v=%v fetches=%d", v, calls)
	}
}

// TestInvalidate_OnlyNamedResource verifies other resources survive.
func TestInvalidate_OnlyNamedResource(t *testing.T) {
	c, _ := newCache()
	ctx := context.Background()
	var calls int32
	fetch := counting(&calls, []string{"v"})
	goalsKey := querycache.Key{Resource: querycache.ResourceGoals}

	querycache.Get(ctx, c, sessionsKey, fetch)
	querycache.Get(ctx, c, goalsKey, fetch)
	c.Invalidate(querycache.ResourceSessions)
	querycache.Get(ctx, c, goalsKey, fetch)
	if calls != 2 {
		t.Errorf("fetches = %d, want 2 (goals still cached)", calls)
	}
}

// TestGet_ErrorsAreNotCached verifies failed fetches are retried on next read.
func TestGet_ErrorsAreNotCached(t *testing.T) {
	c, _ := newCache()
	boom := errors.New("boom")
	if _, err := querycache.Get(context.Background(), c, sessionsKey, func(context.Context) ([]string, error) {
		return nil, boom
	}); !errors.Is(err, boom) {
		t.Fatalf("err = %v", err)
	}
	if c.Len() != 0 {
		t.Error("error cached")
	}
}

type userRow struct {
	ID     string
	Active bool
}

func toggle(id string) func([]userRow) []userRow {
	return func(rows []userRow) []userRow {
		out := make([]userRow, len(rows))
		copy(out, rows)
		for i := range out {
			if out[i].ID == id {
				out[i].Active = !out[i].Active
			}
		}
		return out
	}
}

func usersFetch(rows []userRow) func(context.Context) ([]userRow, error) {
	return func(context.Context) ([]userRow, error) { return rows, nil }
}

// TestOptimistic_Rollback restores the snapshot on failure.
func TestOptimistic_Rollback(t *testing.T) {
	c, _ := newCache()
	ctx := context.Background()
	key := querycache.Key{Resource: querycache.ResourceUsers, Scope: "org=o1"}
	original := []userRow{{ID: "u1", Active: true}, {ID: "u2", Active: true}}
	querycache.Get(ctx, c, key, usersFetch(original))

	op := c.Snapshot(querycache.ResourceUsers)
	querycache.Apply(op, toggle("u1"))

	got, _ := querycache.Get(ctx, c, key, usersFetch(nil))
	if got[0].Active {
		t.Fatal("optimistic change not visible")
	}
	if !original[0].Active {
		t.Fatal("Apply mutated the fetched slice")
	}

	op.Rollback()
	got, _ = querycache.Get(ctx, c, key, usersFetch(nil))
	if !got[0].Active {
		t.Error("rollback did not restore the snapshot")
	}
	op.Commit()
	if c.Len() != 1 {
		t.Error("Commit after Rollback must be a no-op")
	}
}

// TestOptimistic_Commit invalidates so the next read refetches.
func TestOptimistic_Commit(t *testing.T) {
	c, _ := newCache()
	ctx := context.Background()
	key := querycache.Key{Resource: querycache.ResourceUsers}
	querycache.Get(ctx, c, key, usersFetch([]userRow{{ID: "u1", Active: true}}))

	op := c.Snapshot(querycache.ResourceUsers)
	querycache.Apply(op, toggle("u1"))
	op.Commit()

	var calls int32
	fetch := func(context.Context) ([]userRow, error) {
		atomic.AddInt32(&calls, 1)
		return []userRow{{ID: "u1", Active: false}}, nil
	}
	got, _ := querycache.Get(ctx, c, key, fetch)
	if calls != 1 || got[0].Active {
		t.Errorf("calls=%d got=%v", calls, got)
	}
}

// TestOptimistic_RollbackAfterInvalidate leaves newer state alone.
func TestOptimistic_RollbackAfterInvalidate(t *testing.T) {
	c, _ := newCache()
	ctx := context.Background()
	key := querycache.Key{Resource: querycache.ResourceUsers}
	querycache.Get(ctx, c, key, usersFetch([]userRow{{ID: "u1", Active: true}}))

	op := c.Snapshot(querycache.ResourceUsers)
	c.Invalidate(querycache.ResourceUsers)
	querycache.Get(ctx, c, key, usersFetch([]userRow{{ID: "u1", Active: false}}))
	op.Rollback()

	got, _ := querycache.Get(ctx, c, key, usersFetch(nil))
	if got[0].Active {
		t.Error("rollback overwrote data fetched after invalidation")
	}
}
