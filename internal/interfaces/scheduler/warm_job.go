package scheduler

import (
	"context"
	"fmt"

	"horizon/internal/domain/aggregation"
)

// Refresher is satisfied by *aggregation.CachedService.
type Refresher interface {
	Refresh(ctx context.Context, userID, selectedAccountID string) (*aggregation.Result, error)
}

// LinkLister is satisfied by *postgres.LinkRepository.
type LinkLister interface {
	ListLinkedUserIDs(ctx context.Context) ([]string, error)
}

// WarmJob re-aggregates one user's default view so the next dashboard
// request is served from cache.
type WarmJob struct {
	userID    string
	refresher Refresher
}

func NewWarmJob(userID string, refresher Refresher) *WarmJob {
	return &WarmJob{userID: userID, refresher: refresher}
}

func (j *WarmJob) Execute(ctx context.Context) error {
	result, err := j.refresher.Refresh(ctx, j.userID, "")
	if err != nil {
		return fmt.Errorf("warm view: %w", err)
	}
	// Degraded views are not cached, so the warm-up did not take.
	if result.Degraded() {
		return fmt.Errorf("warm view: degraded with %d diagnostics", len(result.Diagnostics))
	}
	return nil
}

func (j *WarmJob) UserID() string {
	return j.userID
}

func (j *WarmJob) Description() string {
	return "cache warm-up"
}

// WarmJobs returns a JobProvider yielding one WarmJob per linked user.
func WarmJobs(links LinkLister, refresher Refresher) JobProvider {
	return func(ctx context.Context) ([]Job, error) {
		ids, err := links.ListLinkedUserIDs(ctx)
		if err != nil {
			return nil, fmt.Errorf("list linked users: %w", err)
		}
		jobs := make([]Job, 0, len(ids))
		for _, id := range ids {
			jobs = append(jobs, NewWarmJob(id, refresher))
		}
		return jobs, nil
	}
}
