package pool

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/me/enrolld/internal/logging"
	"github.com/me/enrolld/internal/store"
	"github.com/me/enrolld/pkg/model"
)

func testManager(t *testing.T) (*Manager, store.Store) {
	t.Helper()
	st, err := store.NewSQLiteStore(":memory:", logging.Discard())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	if err := st.Migrate(context.Background()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return NewManager(st, logging.Discard()), st
}

func addResource(t *testing.T, st store.Store, id string, limit int, enabled bool) {
	t.Helper()
	err := st.CreateResource(context.Background(), &model.Resource{
		ID:         id,
		Kind:       model.ResourceKindContactAddress,
		Ref:        id + "@pool.test",
		DailyLimit: limit,
		Enabled:    enabled,
		CreatedAt:  time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("create resource %s: %v", id, err)
	}
}

func TestAcquirePicksLeastUsed(t *testing.T) {
	m, st := testManager(t)
	ctx := context.Background()

	addResource(t, st, "a", 3, true)
	addResource(t, st, "b", 3, true)

	// Consume one slot of a.
	res, err := m.Acquire(ctx, nil)
	if err != nil || res == nil {
		t.Fatalf("acquire: res=%v err=%v", res, err)
	}
	if res.ID != "a" {
		t.Fatalf("first acquire = %s, want a (insertion order tie-break)", res.ID)
	}
	if err := m.RecordUse(ctx, res.ID); err != nil {
		t.Fatalf("record use: %v", err)
	}

	// b is now least used.
	res, err = m.Acquire(ctx, nil)
	if err != nil || res == nil {
		t.Fatalf("acquire: res=%v err=%v", res, err)
	}
	if res.ID != "b" {
		t.Errorf("second acquire = %s, want b", res.ID)
	}
}

func TestAcquireExcludesIdentities(t *testing.T) {
	m, st := testManager(t)
	ctx := context.Background()

	addResource(t, st, "a", 1, true)
	addResource(t, st, "b", 1, true)

	res, err := m.Acquire(ctx, map[string]bool{"a": true})
	if err != nil || res == nil {
		t.Fatalf("acquire: res=%v err=%v", res, err)
	}
	if res.ID != "b" {
		t.Errorf("acquire = %s, want b", res.ID)
	}
}

func TestAcquireSkipsDisabled(t *testing.T) {
	m, st := testManager(t)
	ctx := context.Background()

	addResource(t, st, "a", 1, false)

	res, err := m.Acquire(ctx, nil)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if res != nil {
		t.Errorf("disabled resource handed out: %s", res.ID)
	}
}

func TestAcquireNoCapacityReturnsNil(t *testing.T) {
	m, st := testManager(t)
	ctx := context.Background()

	addResource(t, st, "a", 1, true)

	res, _ := m.Acquire(ctx, nil)
	if res == nil {
		t.Fatal("expected first acquire to succeed")
	}
	if err := m.RecordUse(ctx, res.ID); err != nil {
		t.Fatalf("record use: %v", err)
	}

	res, err := m.Acquire(ctx, nil)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if res != nil {
		t.Errorf("exhausted pool handed out %s", res.ID)
	}
}

func TestReservationBlocksDoubleGrant(t *testing.T) {
	// Acquire without RecordUse must still count against the limit: a
	// resource with one remaining slot is never granted twice.
	m, st := testManager(t)
	ctx := context.Background()

	addResource(t, st, "a", 1, true)

	first, err := m.Acquire(ctx, nil)
	if err != nil || first == nil {
		t.Fatalf("first acquire: res=%v err=%v", first, err)
	}

	second, err := m.Acquire(ctx, nil)
	if err != nil {
		t.Fatalf("second acquire: %v", err)
	}
	if second != nil {
		t.Errorf("reserved resource handed out again: %s", second.ID)
	}

	// Releasing the reservation frees the slot again.
	m.Release(first.ID)
	third, _ := m.Acquire(ctx, nil)
	if third == nil {
		t.Error("released slot not reusable")
	}
}

func TestConcurrentAcquireExclusivity(t *testing.T) {
	m, st := testManager(t)
	ctx := context.Background()

	const slots = 3
	addResource(t, st, "a", slots, true)

	var wg sync.WaitGroup
	var mu sync.Mutex
	granted := 0

	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := m.Acquire(ctx, nil)
			if err != nil {
				t.Errorf("acquire: %v", err)
				return
			}
			if res == nil {
				return
			}
			if err := m.RecordUse(ctx, res.ID); err != nil {
				t.Errorf("record use: %v", err)
				return
			}
			mu.Lock()
			granted++
			mu.Unlock()
		}()
	}
	wg.Wait()

	if granted != slots {
		t.Errorf("granted = %d, want exactly %d", granted, slots)
	}

	got, err := st.GetResource(ctx, "a", time.Now().UTC().Format(dayFormat))
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.DailyUsage != slots {
		t.Errorf("persisted usage = %d, want %d", got.DailyUsage, slots)
	}
}

// flakyStore wraps a real store and fails usage increments on demand.
type flakyStore struct {
	store.Store
	failIncrement bool
}

func (s *flakyStore) IncrementResourceUsage(ctx context.Context, id, day string) error {
	if s.failIncrement {
		return context.DeadlineExceeded
	}
	return s.Store.IncrementResourceUsage(ctx, id, day)
}

func TestRecordUseReleasesReservationOnStoreError(t *testing.T) {
	// A failed usage write must not strand the reservation: the slot was
	// never consumed, so the resource has to stay acquirable.
	st, err := store.NewSQLiteStore(":memory:", logging.Discard())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	if err := st.Migrate(context.Background()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	fs := &flakyStore{Store: st, failIncrement: true}
	m := NewManager(fs, logging.Discard())
	ctx := context.Background()

	addResource(t, st, "a", 1, true)

	res, err := m.Acquire(ctx, nil)
	if err != nil || res == nil {
		t.Fatalf("acquire: res=%v err=%v", res, err)
	}
	if err := m.RecordUse(ctx, res.ID); err == nil {
		t.Fatal("expected record use to fail")
	}

	fs.failIncrement = false
	res, err = m.Acquire(ctx, nil)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if res == nil || res.ID != "a" {
		t.Errorf("resource not acquirable after failed usage write: %v", res)
	}
}

func TestMarkExhaustedToday(t *testing.T) {
	m, st := testManager(t)
	ctx := context.Background()

	addResource(t, st, "a", 5, true)

	res, _ := m.Acquire(ctx, nil)
	if res == nil {
		t.Fatal("acquire failed")
	}
	if err := m.MarkExhaustedToday(ctx, res.ID); err != nil {
		t.Fatalf("mark exhausted: %v", err)
	}

	next, err := m.Acquire(ctx, nil)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if next != nil {
		t.Errorf("exhausted resource handed out: %s", next.ID)
	}
}

func TestResetDailyUsage(t *testing.T) {
	m, st := testManager(t)
	ctx := context.Background()

	addResource(t, st, "a", 1, true)

	res, _ := m.Acquire(ctx, nil)
	if err := m.RecordUse(ctx, res.ID); err != nil {
		t.Fatalf("record use: %v", err)
	}
	if r, _ := m.Acquire(ctx, nil); r != nil {
		t.Fatal("pool should be exhausted")
	}

	if err := m.ResetDailyUsage(ctx); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if r, _ := m.Acquire(ctx, nil); r == nil {
		t.Error("pool still exhausted after reset")
	}
}

func TestDayRolloverResetsCounters(t *testing.T) {
	m, st := testManager(t)
	ctx := context.Background()

	addResource(t, st, "a", 1, true)

	base := time.Date(2026, 8, 31, 23, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return base }

	res, _ := m.Acquire(ctx, nil)
	if err := m.RecordUse(ctx, res.ID); err != nil {
		t.Fatalf("record use: %v", err)
	}
	if r, _ := m.Acquire(ctx, nil); r != nil {
		t.Fatal("pool should be exhausted for the day")
	}

	// Next calendar day: counters start from zero.
	m.now = func() time.Time { return base.Add(2 * time.Hour) }
	if r, _ := m.Acquire(ctx, nil); r == nil {
		t.Error("new day should have fresh capacity")
	}
}
