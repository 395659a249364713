// Package linkrequest runs the review flow that lets a branch author surface their
// branch on the original novel's page.
package linkrequest

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
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

const entity = "link_request"

// Linker flips a branch to LINKED inside the approval transaction.
type Linker interface {
	ApplyApprovedLink(ctx context.Context, tx database.Tx, branchID string) error
}

type Workflow struct {
	db       database.Service
	branches Linker
	clock    clock.Clock
	logger   *zap.Logger
	events   events.Publisher
}

func NewWorkflow(db database.Service, branches Linker, clk clock.Clock, logger *zap.Logger, pub events.Publisher) *Workflow {
	return &Workflow{db: db, branches: branches, clock: clk, logger: logger.Named("linkrequest"), events: pub}
}

func alreadyPending(branchID string) error {
	return apperrors.InvalidState("branch", branchID, "a link request is already pending for this branch")
}

func (w *Workflow) RequestLink(ctx context.Context, branchID, requesterID, message string) (req *data.BranchLinkRequest, err error) {
	ctx, span := telemetry.Start(ctx, "linkrequest.RequestLink", attribute.String("branch_id", branchID))
	defer func() { telemetry.End(span, err) }()

	if err = data.Validate(&data.LinkRequestCreateRequest{Message: message}); err != nil {
		return nil, err
	}

	err = w.db.WithTx(ctx, func(ctx context.Context, tx database.Tx) error {
		b, err := tx.Branches().Get(ctx, branchID)
		if err != nil {
			return database.WrapLookup(err, "branch", branchID)
		}
		if b.AuthorID != requesterID {
			return apperrors.Permission("branch", branchID, requesterID)
		}
		if b.IsMain {
			return apperrors.InvalidState("branch", branchID, "main branch cannot request a link")
		}
		if b.Visibility == data.VisibilityLinked {
			return apperrors.InvalidState("branch", branchID, "branch is already linked")
		}
		if _, err := tx.LinkRequests().FindPending(ctx, branchID); err == nil {
			return alreadyPending(branchID)
		} else if !errors.Is(err, database.ErrNotFound) {
			return fmt.Errorf("find pending link request: %w", err)
		}

		r := &data.BranchLinkRequest{
			ID:             uuid.NewString(),
			BranchID:       branchID,
			NovelID:        b.NovelID,
			RequesterID:    requesterID,
			Status:         data.LinkRequestPending,
			RequestMessage: message,
			CreatedAt:      w.clock.Now(),
		}
		if err := tx.LinkRequests().Insert(ctx, r); err != nil {
			if errors.Is(err, database.ErrDuplicate) {
				return alreadyPending(branchID)
			}
			return fmt.Errorf("insert link request: %w", err)
		}
		req = r
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.LinkRequestsTotal.WithLabelValues(string(data.LinkRequestPending)).Inc()
	events.Emit(ctx, w.events, w.logger, events.New(events.LinkRequestCreated, req.ID, requesterID, req.CreatedAt,
		map[string]string{"branch_id": branchID, "novel_id": req.NovelID}))
	return req, nil
}

// ApproveLink accepts the request and links the branch in the same transaction.
func (w *Workflow) ApproveLink(ctx context.Context, requestID, reviewerID, comment string) (*data.BranchLinkRequest, error) {
	return w.review(ctx, requestID, reviewerID, comment, data.LinkRequestApproved)
}

func (w *Workflow) RejectLink(ctx context.Context, requestID, reviewerID, comment string) (*data.BranchLinkRequest, error) {
	return w.review(ctx, requestID, reviewerID, comment, data.LinkRequestRejected)
}

func (w *Workflow) review(ctx context.Context, requestID, reviewerID, comment string, status data.LinkRequestStatus) (req *data.BranchLinkRequest, err error) {
	ctx, span := telemetry.Start(ctx, "linkrequest.review",
		attribute.String("link_request_id", requestID),
		attribute.String("status", string(status)),
	)
	defer func() { telemetry.End(span, err) }()

	if err = data.Validate(&data.LinkReviewRequest{Comment: comment}); err != nil {
		return nil, err
	}

	err = w.db.WithTx(ctx, func(ctx context.Context, tx database.Tx) error {
		r, err := tx.LinkRequests().Get(ctx, requestID)
		if err != nil {
			return database.WrapLookup(err, entity, requestID)
		}
		novel, err := tx.Novels().Get(ctx, r.NovelID)
		if err != nil {
			return database.WrapLookup(err, "novel", r.NovelID)
		}
		if novel.AuthorID != reviewerID {
			return apperrors.Permission(entity, requestID, reviewerID)
		}
		if !r.Status.CanTransitionTo(status) {
			return apperrors.InvalidState(entity, requestID, "link request was already processed")
		}

		review := data.LinkReview{Status: status, ReviewerID: reviewerID, Comment: comment, ReviewedAt: w.clock.Now()}
		// The store re-checks PENDING, so of two concurrent reviewers only one lands.
		if err := tx.LinkRequests().Review(ctx, requestID, review); err != nil {
			if errors.Is(err, database.ErrConflict) {
				return apperrors.InvalidState(entity, requestID, "link request was already processed")
			}
			return database.WrapLookup(err, entity, requestID)
		}
		if status == data.LinkRequestApproved {
			if err := w.branches.ApplyApprovedLink(ctx, tx, r.BranchID); err != nil {
				return err
			}
		}

		r.Status = review.Status
		r.ReviewerID = &review.ReviewerID
		r.ReviewComment = review.Comment
		r.ReviewedAt = &review.ReviewedAt
		req = r
		return nil
	})
	if err != nil {
		return nil, err
	}

	evt := events.LinkRequestRejected
	if status == data.LinkRequestApproved {
		evt = events.LinkRequestApproved
	}
	metrics.LinkRequestsTotal.WithLabelValues(string(status)).Inc()
	w.logger.Info("link request reviewed",
		zap.String("link_request_id", requestID),
		zap.String("branch_id", req.BranchID),
		zap.String("status", string(status)),
	)
	events.Emit(ctx, w.events, w.logger, events.New(evt, req.ID, reviewerID, *req.ReviewedAt,
		map[string]string{"branch_id": req.BranchID, "novel_id": req.NovelID}))
	return req, nil
}

// Get returns the request to the branch author who filed it or to the novel author
// who reviews it.
func (w *Workflow) Get(ctx context.Context, viewerID, requestID string) (*data.BranchLinkRequest, error) {
	var req *data.BranchLinkRequest
	err := w.db.View(ctx, func(ctx context.Context, tx database.Tx) error {
		r, err := tx.LinkRequests().Get(ctx, requestID)
		if err != nil {
			return database.WrapLookup(err, entity, requestID)
		}
		if r.RequesterID != viewerID {
			novel, err := tx.Novels().Get(ctx, r.NovelID)
			if err != nil {
				return database.WrapLookup(err, "novel", r.NovelID)
			}
			if novel.AuthorID != viewerID {
				return apperrors.Permission(entity, requestID, viewerID)
			}
		}
		req = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return req, nil
}

// ListForNovel is the novel author's review inbox. An empty status lists all.
func (w *Workflow) ListForNovel(ctx context.Context, reviewerID, novelID string, status data.LinkRequestStatus) ([]data.BranchLinkRequest, error) {
	switch status {
	case "", data.LinkRequestPending, data.LinkRequestApproved, data.LinkRequestRejected:
	default:
		return nil, apperrors.InvalidArgument("status", "status must be one of PENDING, APPROVED, REJECTED")
	}

	var out []data.BranchLinkRequest
	err := w.db.View(ctx, func(ctx context.Context, tx database.Tx) error {
		novel, err := tx.Novels().Get(ctx, novelID)
		if err != nil {
			return database.WrapLookup(err, "novel", novelID)
		}
		if novel.AuthorID != reviewerID {
			return apperrors.Permission("novel", novelID, reviewerID)
		}
		out, err = tx.LinkRequests().List(ctx, novelID, status)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
