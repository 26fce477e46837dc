package server

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/me/enrolld/internal/scheduler"
	"github.com/me/enrolld/pkg/model"
)

// BatchState tracks a batch through its in-process lifecycle.
type BatchState string

const (
	BatchStateRunning   BatchState = "RUNNING"
	BatchStateCompleted BatchState = "COMPLETED"
	BatchStateStopped   BatchState = "STOPPED"
)

// Batch is one in-flight or finished batch run. Job state is persisted by
// the runner as it goes; the batch itself is in-memory only and does not
// survive a server restart.
type Batch struct {
	ID         string
	AccountIDs []string
	CreatedAt  time.Time

	cancel context.CancelFunc

	mu          sync.Mutex
	state       BatchState
	stopWanted  bool
	completedAt *time.Time
	results     map[string]model.Result
	runErr      string
	events      []scheduler.Event
	subs        map[chan scheduler.Event]struct{}
}

// BatchView is the JSON shape of a batch snapshot.
type BatchView struct {
	ID          string                  `json:"id"`
	State       BatchState              `json:"state"`
	AccountIDs  []string                `json:"account_ids"`
	CreatedAt   time.Time               `json:"created_at"`
	CompletedAt *time.Time              `json:"completed_at,omitempty"`
	Results     map[string]model.Result `json:"results,omitempty"`
	Error       string                  `json:"error,omitempty"`
}

// View returns a consistent snapshot for API responses.
func (b *Batch) View() BatchView {
	b.mu.Lock()
	defer b.mu.Unlock()

	v := BatchView{
		ID:          b.ID,
		State:       b.state,
		AccountIDs:  b.AccountIDs,
		CreatedAt:   b.CreatedAt,
		CompletedAt: b.completedAt,
		Error:       b.runErr,
	}
	if b.results != nil {
		v.Results = make(map[string]model.Result, len(b.results))
		for k, r := range b.results {
			v.Results[k] = r
		}
	}
	return v
}

// publish appends the event to the batch log and fans it out. A subscriber
// that stops draining misses events rather than stalling the batch.
func (b *Batch) publish(ev scheduler.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.events = append(b.events, ev)
	for ch := range b.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

// Subscribe registers a live event channel and returns it together with a
// replay of everything published so far.
func (b *Batch) Subscribe() (<-chan scheduler.Event, []scheduler.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan scheduler.Event, 64)
	b.subs[ch] = struct{}{}

	replay := make([]scheduler.Event, len(b.events))
	copy(replay, b.events)

	if b.state != BatchStateRunning {
		// Already finished; the subscriber gets the replay and an
		// immediately closed live channel.
		delete(b.subs, ch)
		close(ch)
	}
	return ch, replay
}

// Unsubscribe removes and closes a channel returned by Subscribe.
func (b *Batch) Unsubscribe(ch <-chan scheduler.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for sub := range b.subs {
		if sub == ch {
			delete(b.subs, sub)
			close(sub)
			return
		}
	}
}

func (b *Batch) finalize(results map[string]model.Result, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now().UTC()
	b.completedAt = &now
	b.results = results
	if err != nil {
		b.runErr = err.Error()
	}
	if b.stopWanted {
		b.state = BatchStateStopped
	} else {
		b.state = BatchStateCompleted
	}

	for ch := range b.subs {
		delete(b.subs, ch)
		close(ch)
	}
}

// Stop requests cooperative cancellation. Steps already executing run to
// completion; everything not yet started is reported as stopped.
func (b *Batch) Stop() {
	b.mu.Lock()
	running := b.state == BatchStateRunning
	if running {
		b.stopWanted = true
	}
	b.mu.Unlock()

	if running {
		b.cancel()
	}
}

// BatchRegistry owns all batches started through the API and the background
// goroutines that drive them.
type BatchRegistry struct {
	mu      sync.Mutex
	batches map[string]*Batch
	runner  *scheduler.Runner
	logger  *slog.Logger
}

// NewBatchRegistry creates an empty registry backed by the given runner.
func NewBatchRegistry(runner *scheduler.Runner, logger *slog.Logger) *BatchRegistry {
	return &BatchRegistry{
		batches: make(map[string]*Batch),
		runner:  runner,
		logger:  logger.With("component", "batches"),
	}
}

// Start launches a batch over the given accounts in the background and
// returns it immediately. Duplicate account ids are rejected up front.
func (r *BatchRegistry) Start(accountIDs []string) (*Batch, error) {
	if len(accountIDs) == 0 {
		return nil, fmt.Errorf("empty batch")
	}
	seen := make(map[string]bool, len(accountIDs))
	for _, id := range accountIDs {
		if seen[id] {
			return nil, fmt.Errorf("duplicate account %q in batch", id)
		}
		seen[id] = true
	}

	ctx, cancel := context.WithCancel(context.Background())
	b := &Batch{
		ID:         "batch_" + uuid.New().String(),
		AccountIDs: accountIDs,
		CreatedAt:  time.Now().UTC(),
		cancel:     cancel,
		state:      BatchStateRunning,
		subs:       make(map[chan scheduler.Event]struct{}),
	}

	r.mu.Lock()
	r.batches[b.ID] = b
	r.mu.Unlock()

	events := make(chan scheduler.Event, 64)
	drained := make(chan struct{})
	go func() {
		for ev := range events {
			b.publish(ev)
		}
		close(drained)
	}()
	go func() {
		results, err := r.runner.Run(ctx, accountIDs, events)
		close(events)
		<-drained
		b.finalize(results, err)
		cancel()
		r.logger.Info("batch finished", "batch_id", b.ID, "jobs", len(results), "state", b.View().State)
	}()

	r.logger.Info("batch started", "batch_id", b.ID, "jobs", len(accountIDs))
	return b, nil
}

// Get returns the batch with the given id, or nil.
func (r *BatchRegistry) Get(id string) *Batch {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.batches[id]
}

// List returns all batches, newest first.
func (r *BatchRegistry) List() []*Batch {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*Batch, 0, len(r.batches))
	for _, b := range r.batches {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

// StopAll cancels every running batch.
func (r *BatchRegistry) StopAll() {
	for _, b := range r.List() {
		b.Stop()
	}
}
