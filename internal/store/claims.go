package store

import (
	"context"
	"strings"

	"github.com/imkarma/taskhive/internal/apperr"
)

// ClaimTask assigns the task to agent and moves it to IN_PROGRESS. The
// check-and-set is a single UPDATE, so of several agents racing for the same
// unclaimed task exactly one wins. Re-claiming a task already held by agent
// succeeds and keeps the original claim time.
func (s *Store) ClaimTask(ctx context.Context, id, agent string) (*Task, error) {
	agent = strings.TrimSpace(agent)
	if agent == "" {
		return nil, apperr.InvalidInput("claim task", "agent id is required")
	}
	now := s.now()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, apperr.Internal("claim task", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE tasks SET
			claimed_at = COALESCE(CASE WHEN claim_holder = ? THEN claimed_at END, ?),
			claim_holder = ?,
			status = 'IN_PROGRESS',
			modified_by = ?, modified_at = ?, updated_at = ?
		WHERE id = ? AND (claim_holder IS NULL OR claim_holder = ?)`,
		agent, now, agent, agent, now, now, id, agent,
	)
	if err != nil {
		return nil, apperr.Internal("claim task", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, apperr.Internal("claim task", err)
	}
	if n == 0 {
		tx.Rollback()
		t, err := s.GetTask(ctx, id)
		if err != nil {
			return nil, err
		}
		holder := ""
		if t.Claim != nil {
			holder = t.Claim.Holder
		}
		return nil, apperr.Conflict("claim task", holder)
	}

	if err := addEvent(ctx, tx, id, agent, "claimed", "claimed by "+agent, now); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, apperr.Internal("claim task", err)
	}
	return s.GetTask(ctx, id)
}

// ReleaseTask clears the claim and returns the task to TODO. Any caller may
// release; by is recorded on the task and in the event log. Releasing an
// unclaimed task is a no-op.
func (s *Store) ReleaseTask(ctx context.Context, id, by string) (*Task, error) {
	now := s.now()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, apperr.Internal("release task", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE tasks SET
			claim_holder = NULL, claimed_at = NULL,
			status = 'TODO',
			modified_by = ?, modified_at = ?, updated_at = ?
		WHERE id = ? AND claim_holder IS NOT NULL`,
		nullString(by), now, now, id,
	)
	if err != nil {
		return nil, apperr.Internal("release task", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, apperr.Internal("release task", err)
	}
	if n == 0 {
		// Missing task, or nothing to release.
		tx.Rollback()
		return s.GetTask(ctx, id)
	}

	content := "released"
	if by != "" {
		content = "released by " + by
	}
	if err := addEvent(ctx, tx, id, by, "released", content, now); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, apperr.Internal("release task", err)
	}
	return s.GetTask(ctx, id)
}

// ListClaimedBy returns the tasks currently held by agent, using the partial
// index on claim_holder.
func (s *Store) ListClaimedBy(ctx context.Context, agent string) ([]Task, error) {
	agent = strings.TrimSpace(agent)
	if agent == "" {
		return nil, apperr.InvalidInput("list claimed", "agent id is required")
	}
	return s.ListTasks(ctx, TaskFilter{Holder: agent})
}
