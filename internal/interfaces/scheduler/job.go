package scheduler

import "context"

// Job is a unit of work run by the worker pool.
type Job interface {
	// Execute must honor ctx cancellation.
	Execute(ctx context.Context) error
	UserID() string
	Description() string
}
