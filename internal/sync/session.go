package sync

import (
	"context"

	"github.com/kyleking/schemasync/internal/migrations"
	"github.com/kyleking/schemasync/internal/schema"
)

// PullRequest is what the client sends to the server when pulling changes
type PullRequest struct {
	// LastPulledAt is nil on the first sync
	LastPulledAt  *int64                `json:"lastPulledAt"`
	SchemaVersion schema.Version        `json:"schemaVersion"`
	Migration     *migrations.ChangeSet `json:"migration"`
}

// PullResponse carries the server time of the pulled changes
type PullResponse struct {
	Timestamp int64 `json:"timestamp"`
}

// PullFunc performs the pull against the server and applies the result
type PullFunc func(ctx context.Context, req PullRequest) (PullResponse, error)

// Synchronize runs one pull session. Only one session runs at a time. The
// bookkeeping is persisted only after pull succeeds.
func (c *Coordinator) Synchronize(ctx context.Context, pull PullFunc) (*Plan, error) {
	c.session.Lock()
	defer c.session.Unlock()

	lastPulledAt, found, err := c.GetLastPulledAt(ctx)
	if err != nil {
		return nil, err
	}

	plan, err := c.Plan(ctx, lastPulledAt)
	if err != nil {
		return nil, err
	}

	req := PullRequest{SchemaVersion: plan.SchemaVersion, Migration: plan.Migration}
	if found {
		req.LastPulledAt = &lastPulledAt
	}

	resp, err := pull(ctx, req)
	if err != nil {
		c.logger.ErrorWithErr("Pull failed", err)
		return nil, err
	}

	if err := c.SetLastPulledAt(ctx, resp.Timestamp); err != nil {
		return nil, err
	}

	if plan.ShouldPersistSchemaVersion {
		if err := c.SetLastPulledSchemaVersion(ctx, plan.SchemaVersion); err != nil {
			return nil, err
		}
	}

	c.logger.WithField("timestamp", resp.Timestamp).Debug("Pull finished")

	return plan, nil
}
