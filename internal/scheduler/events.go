package scheduler

import (
	"time"

	"github.com/me/enrolld/pkg/model"
)

// EventType identifies a batch progress event.
type EventType string

const (
	EventJobStarted     EventType = "job_started"
	EventJobStep        EventType = "job_step"
	EventJobCompleted   EventType = "job_completed"
	EventBatchCompleted EventType = "batch_completed"
)

// Event is one entry in a batch's progress stream. The runner produces
// events into a channel the caller consumes, decoupling the workers from
// whatever displays progress; a caller that stops draining applies
// backpressure to the workers.
type Event struct {
	Type      EventType       `json:"type"`
	Time      time.Time       `json:"time"`
	AccountID string          `json:"account_id,omitempty"`
	Step      model.Step      `json:"step,omitempty"`
	Status    model.JobStatus `json:"status,omitempty"`
	Outcome   model.Outcome   `json:"outcome,omitempty"`
	Progress  int             `json:"progress,omitempty"`
	Message   string          `json:"message,omitempty"`
}

// emit sends an event if the caller asked for a stream.
func emit(events chan<- Event, ev Event) {
	if events == nil {
		return
	}
	ev.Time = time.Now().UTC()
	events <- ev
}
