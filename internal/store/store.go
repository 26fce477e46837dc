package store

import (
	"context"

	"github.com/me/enrolld/pkg/model"
)

// Store defines the persistence layer for enrolld entities: one record per
// account (Job) and one record per pool resource, with usage counters keyed
// by (resource id, calendar day).
type Store interface {
	// Job records
	CreateJob(ctx context.Context, job *model.Job) error
	GetJob(ctx context.Context, accountID string) (*model.Job, error)
	ListJobs(ctx context.Context, opts model.ListOptions) ([]*model.Job, int, error)
	GetJobsByStatus(ctx context.Context, status model.JobStatus) ([]*model.Job, error)
	UpdateJob(ctx context.Context, job *model.Job) error

	// Resources. List and Get load the usage counter for the given day
	// (formatted YYYY-MM-DD); List preserves pool insertion order.
	CreateResource(ctx context.Context, res *model.Resource) error
	GetResource(ctx context.Context, id, day string) (*model.Resource, error)
	ListResources(ctx context.Context, day string) ([]*model.Resource, error)
	UpdateResource(ctx context.Context, res *model.Resource) error

	// Usage counters. IncrementResourceUsage is atomic: concurrent callers
	// never lose an increment.
	IncrementResourceUsage(ctx context.Context, id, day string) error
	SetResourceUsage(ctx context.Context, id, day string, used int) error
	ResetResourceUsage(ctx context.Context, day string) error

	// Lifecycle
	Close() error
	Migrate(ctx context.Context) error
}
