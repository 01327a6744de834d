// Package ledger implements the claim/release protocol agents use to take
// work from the shared backlog.
package ledger

import (
	"context"
	"log/slog"

	"github.com/imkarma/taskhive/internal/apperr"
	"github.com/imkarma/taskhive/internal/logging"
	"github.com/imkarma/taskhive/internal/store"
)

// Ledger arbitrates task ownership between agents.
type Ledger struct {
	store *store.Store
	log   *slog.Logger
}

// New creates a ledger over s. A nil logger means slog.Default().
func New(s *store.Store, log *slog.Logger) *Ledger {
	return &Ledger{store: s, log: logging.OrDefault(log)}
}

// Claim gives agent exclusive ownership of the task. Claiming a task the
// agent already holds succeeds. If another agent holds it the error has
// kind conflict and names the holder.
func (l *Ledger) Claim(ctx context.Context, taskID, agent string) (*store.Task, error) {
	t, err := l.store.ClaimTask(ctx, taskID, agent)
	if err != nil {
		switch apperr.KindOf(err) {
		case apperr.KindConflict:
			l.log.Info("claim rejected", "task_id", taskID, "agent", agent, "holder", apperr.HolderOf(err))
		case apperr.KindNotFound, apperr.KindInvalidInput:
			l.log.Debug("claim failed", "task_id", taskID, "agent", agent, "err", err)
		default:
			l.log.Error("claim failed", "task_id", taskID, "agent", agent, "err", err)
		}
		return nil, err
	}
	l.log.Info("task claimed", "task_id", t.ID, "agent", agent)
	return t, nil
}

// Release drops any claim on the task and puts it back to TODO. Any caller
// may release; by is recorded for audit.
func (l *Ledger) Release(ctx context.Context, taskID, by string) (*store.Task, error) {
	before, err := l.store.GetTask(ctx, taskID)
	if err != nil {
		return nil, err
	}

	t, err := l.store.ReleaseTask(ctx, taskID, by)
	if err != nil {
		l.log.Error("release failed", "task_id", taskID, "by", by, "err", err)
		return nil, err
	}

	if before.Claim == nil {
		l.log.Debug("release of unclaimed task", "task_id", taskID, "by", by)
		return t, nil
	}
	if before.Claim.Holder != by {
		l.log.Warn("task released by non-holder", "task_id", taskID, "holder", before.Claim.Holder, "by", by)
	} else {
		l.log.Info("task released", "task_id", taskID, "by", by)
	}
	return t, nil
}

// ListClaimedBy returns the tasks agent currently holds, in backlog order.
func (l *Ledger) ListClaimedBy(ctx context.Context, agent string) ([]store.Task, error) {
	return l.store.ListClaimedBy(ctx, agent)
}
