package pool

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/me/enrolld/internal/store"
	"github.com/me/enrolld/pkg/model"
)

// dayFormat keys usage counters by calendar day.
const dayFormat = "2006-01-02"

// Manager hands out pool resources under per-resource daily limits. It is the
// only mutable state shared across batch workers: the mutex serializes the
// whole read-check-reserve sequence, and the held map counts resources that
// are bound to an in-flight job but whose use is not yet persisted. A
// resource's held count plus its persisted usage never exceeds its daily
// limit.
type Manager struct {
	mu     sync.Mutex
	store  store.Store
	logger *slog.Logger
	now    func() time.Time
	held   map[string]int // resource id -> in-flight reservations
}

// NewManager creates a pool Manager backed by the given store.
func NewManager(st store.Store, logger *slog.Logger) *Manager {
	return &Manager{
		store:  st,
		logger: logger.With("component", "pool"),
		now:    time.Now,
		held:   make(map[string]int),
	}
}

func (m *Manager) day() string {
	return m.now().UTC().Format(dayFormat)
}

// Acquire returns the enabled resource with the lowest effective usage
// (persisted plus held) strictly below its daily limit, excluding the given
// identities. Ties break by pool insertion order. Returns nil, nil when no
// eligible resource exists; callers must treat that as a distinct
// no-capacity outcome, never as success.
//
// The returned resource is reserved: the caller must follow up with exactly
// one of RecordUse, MarkExhaustedToday, or Release.
func (m *Manager) Acquire(ctx context.Context, exclude map[string]bool) (*model.Resource, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	resources, err := m.store.ListResources(ctx, m.day())
	if err != nil {
		return nil, fmt.Errorf("list resources: %w", err)
	}

	var best *model.Resource
	bestUsage := 0
	for _, res := range resources {
		if !res.Enabled || exclude[res.ID] {
			continue
		}
		effective := res.DailyUsage + m.held[res.ID]
		if effective >= res.DailyLimit {
			continue
		}
		// Strictly-less keeps the earliest-inserted resource on ties.
		if best == nil || effective < bestUsage {
			best = res
			bestUsage = effective
		}
	}

	if best == nil {
		m.logger.Debug("no resource capacity", "excluded", len(exclude))
		return nil, nil
	}

	m.held[best.ID]++
	m.logger.Debug("resource acquired", "id", best.ID, "usage", bestUsage, "limit", best.DailyLimit)
	return best, nil
}

// RecordUse persists one consumed assignment for the resource and releases
// the caller's reservation.
func (m *Manager) RecordUse(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.store.IncrementResourceUsage(ctx, id, m.day()); err != nil {
		// The use was not persisted, so the reservation must not keep the
		// slot blocked for the rest of the process lifetime.
		m.release(id)
		return fmt.Errorf("record use of %s: %w", id, err)
	}
	m.release(id)
	m.logger.Debug("resource use recorded", "id", id)
	return nil
}

// Lookup loads a single resource with today's usage counter, or nil when it
// does not exist. No reservation is taken.
func (m *Manager) Lookup(ctx context.Context, id string) (*model.Resource, error) {
	return m.store.GetResource(ctx, id, m.day())
}

// MarkExhaustedToday forces the resource's usage to its daily limit for the
// remainder of the day and releases the caller's reservation. Used when the
// external process rejected the resource itself, not on generic failures.
func (m *Manager) MarkExhaustedToday(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	res, err := m.store.GetResource(ctx, id, m.day())
	if err != nil {
		return fmt.Errorf("get resource %s: %w", id, err)
	}
	if res == nil {
		return fmt.Errorf("resource %s not found", id)
	}
	if err := m.store.SetResourceUsage(ctx, id, m.day(), res.DailyLimit); err != nil {
		return fmt.Errorf("exhaust %s: %w", id, err)
	}
	m.release(id)
	m.logger.Info("resource exhausted for today", "id", id, "ref", res.Ref)
	return nil
}

// Release drops a reservation without consuming a slot, e.g. when a job was
// stopped before the step ran.
func (m *Manager) Release(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.release(id)
}

func (m *Manager) release(id string) {
	if m.held[id] > 0 {
		m.held[id]--
		if m.held[id] == 0 {
			delete(m.held, id)
		}
	}
}

// ResetDailyUsage zeroes today's counters. Operator-invoked, for manual
// quota resets and testing.
func (m *Manager) ResetDailyUsage(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.store.ResetResourceUsage(ctx, m.day()); err != nil {
		return fmt.Errorf("reset usage: %w", err)
	}
	m.logger.Info("daily usage reset", "day", m.day())
	return nil
}
