// Package vote records reader votes on branches and keeps the branch vote counter
// in step with them.
package vote

import (
	"context"
	"errors"
	"fmt"

	"github.com/mAmineChniti/Forklore/internal/apperrors"
	"github.com/mAmineChniti/Forklore/internal/clock"
	"github.com/mAmineChniti/Forklore/internal/data"
	"github.com/mAmineChniti/Forklore/internal/database"
	"github.com/mAmineChniti/Forklore/internal/events"
	"github.com/mAmineChniti/Forklore/internal/metrics"
	"github.com/mAmineChniti/Forklore/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// Counter applies vote count changes to a branch inside the caller's transaction.
type Counter interface {
	IncrementVoteCount(ctx context.Context, tx database.Tx, branchID string) error
	DecrementVoteCount(ctx context.Context, tx database.Tx, branchID string) error
}

type Ledger struct {
	db       database.Service
	branches Counter
	clock    clock.Clock
	logger   *zap.Logger
	events   events.Publisher
}

func NewLedger(db database.Service, branches Counter, clk clock.Clock, logger *zap.Logger, pub events.Publisher) *Ledger {
	return &Ledger{db: db, branches: branches, clock: clk, logger: logger.Named("vote"), events: pub}
}

func voteID(readerID, branchID string) string {
	return readerID + ":" + branchID
}

// Vote records one vote per reader and branch. A second vote for the same pair,
// concurrent or not, fails with INVALID_STATE.
func (l *Ledger) Vote(ctx context.Context, readerID, branchID string) (err error) {
	ctx, span := telemetry.Start(ctx, "vote.Vote", attribute.String("branch_id", branchID))
	defer func() { telemetry.End(span, err) }()

	if readerID == "" {
		return apperrors.InvalidArgument("reader_id", "reader is required")
	}
	now := l.clock.Now()
	err = l.db.WithTx(ctx, func(ctx context.Context, tx database.Tx) error {
		b, err := tx.Branches().Get(ctx, branchID)
		if err != nil {
			return database.WrapLookup(err, "branch", branchID)
		}
		if b.HiddenFrom(readerID) {
			return apperrors.NotFound("branch", branchID)
		}
		v := &data.BranchVote{ReaderID: readerID, BranchID: branchID, CreatedAt: now}
		if err := tx.Votes().Insert(ctx, v); err != nil {
			if errors.Is(err, database.ErrDuplicate) {
				return apperrors.InvalidState("branch_vote", voteID(readerID, branchID), "already voted")
			}
			return fmt.Errorf("insert vote: %w", err)
		}
		return l.branches.IncrementVoteCount(ctx, tx, branchID)
	})
	if err != nil {
		if errors.Is(err, apperrors.ErrInvalidState) {
			metrics.VotesTotal.WithLabelValues("duplicate").Inc()
		}
		return err
	}

	metrics.VotesTotal.WithLabelValues("vote").Inc()
	events.Emit(ctx, l.events, l.logger, events.New(events.BranchVoted, branchID, readerID, now, nil))
	return nil
}

// Unvote removes the reader's vote. The counter never drops below zero.
func (l *Ledger) Unvote(ctx context.Context, readerID, branchID string) (err error) {
	ctx, span := telemetry.Start(ctx, "vote.Unvote", attribute.String("branch_id", branchID))
	defer func() { telemetry.End(span, err) }()

	err = l.db.WithTx(ctx, func(ctx context.Context, tx database.Tx) error {
		if err := tx.Votes().Delete(ctx, readerID, branchID); err != nil {
			if errors.Is(err, database.ErrNotFound) {
				return apperrors.InvalidState("branch_vote", voteID(readerID, branchID), "never voted")
			}
			return fmt.Errorf("delete vote: %w", err)
		}
		err := l.branches.DecrementVoteCount(ctx, tx, branchID)
		// The branch may have been deleted since; the vote row still goes.
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil
		}
		return err
	})
	if err != nil {
		return err
	}

	metrics.VotesTotal.WithLabelValues("unvote").Inc()
	events.Emit(ctx, l.events, l.logger, events.New(events.BranchUnvoted, branchID, readerID, l.clock.Now(), nil))
	return nil
}

func (l *Ledger) HasVoted(ctx context.Context, readerID, branchID string) (bool, error) {
	if readerID == "" {
		return false, nil
	}
	var voted bool
	err := l.db.View(ctx, func(ctx context.Context, tx database.Tx) error {
		var err error
		voted, err = tx.Votes().Exists(ctx, readerID, branchID)
		return err
	})
	return voted, err
}
