package redis

import (
	"context"
	"encoding/json"
	"time"

	"script-breakdown/internal/domain/model"
)

// JobStatusCache keeps short-TTL job snapshots so the polling status
// endpoint does not hammer the job table. Stale reads are acceptable
// within the TTL; terminal states are written through immediately by
// the runner.
type JobStatusCache struct {
	client *redClient
	ttl    time.Duration
}

func NewJobStatusCache(client *redClient, ttl time.Duration) *JobStatusCache {
	return &JobStatusCache{client: client, ttl: ttl}
}

func (c *JobStatusCache) Store(ctx context.Context, job *model.Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, "job_status:"+job.ID, data, c.ttl)
}

func (c *JobStatusCache) Get(ctx context.Context, jobID string) (*model.Job, error) {
	data, err := c.client.Get(ctx, "job_status:"+jobID)
	if err != nil {
		return nil, err
	}
	var job model.Job
	if err := json.Unmarshal([]byte(data), &job); err != nil {
		return nil, err
	}
	return &job, nil
}

func (c *JobStatusCache) Invalidate(ctx context.Context, jobID string) error {
	return c.client.Del(ctx, "job_status:"+jobID)
}
