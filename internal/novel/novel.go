// Package novel manages novels. A novel is created together with its main branch.
package novel

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/mAmineChniti/Forklore/internal/apperrors"
	"github.com/mAmineChniti/Forklore/internal/clock"
	"github.com/mAmineChniti/Forklore/internal/data"
	"github.com/mAmineChniti/Forklore/internal/database"
	"go.uber.org/zap"
)

const entity = "novel"

// MainBrancher creates the main branch inside the novel-creation transaction.
type MainBrancher interface {
	CreateMainBranch(ctx context.Context, tx database.Tx, novel *data.Novel) (*data.Branch, error)
}

type Service struct {
	db       database.Service
	branches MainBrancher
	clock    clock.Clock
	logger   *zap.Logger
}

func NewService(db database.Service, branches MainBrancher, clk clock.Clock, logger *zap.Logger) *Service {
	return &Service{db: db, branches: branches, clock: clk, logger: logger.Named("novel")}
}

// Create stores the novel and its main branch atomically. The novel starts with a
// branch count of one.
func (s *Service) Create(ctx context.Context, authorID string, req data.NovelCreateRequest) (*data.Novel, *data.Branch, error) {
	if err := data.Validate(&req); err != nil {
		return nil, nil, err
	}
	rating := req.AgeRating
	if rating == "" {
		rating = data.AgeRatingAll
	}
	allowBranching := true
	if req.AllowBranching != nil {
		allowBranching = *req.AllowBranching
	}

	var (
		novel *data.Novel
		main  *data.Branch
	)
	err := s.db.WithTx(ctx, func(ctx context.Context, tx database.Tx) error {
		now := s.clock.Now()
		n := &data.Novel{
			ID:             uuid.NewString(),
			AuthorID:       authorID,
			Title:          req.Title,
			Description:    req.Description,
			CoverImageURL:  req.CoverImageURL,
			Genre:          req.Genre,
			AgeRating:      rating,
			Status:         data.NovelOngoing,
			AllowBranching: allowBranching,
			BranchCount:    1,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		if err := tx.Novels().Insert(ctx, n); err != nil {
			return fmt.Errorf("insert novel: %w", err)
		}
		b, err := s.branches.CreateMainBranch(ctx, tx, n)
		if err != nil {
			return err
		}
		novel, main = n, b
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	s.logger.Info("novel created", zap.String("novel_id", novel.ID), zap.String("main_branch_id", main.ID))
	return novel, main, nil
}

func (s *Service) Get(ctx context.Context, id string) (*data.Novel, error) {
	var n *data.Novel
	err := s.db.View(ctx, func(ctx context.Context, tx database.Tx) error {
		var err error
		n, err = tx.Novels().Get(ctx, id)
		return database.WrapLookup(err, entity, id)
	})
	if err != nil {
		return nil, err
	}
	return n, nil
}

// List pages through novels, newest first, optionally narrowed by genre and status.
func (s *Service) List(ctx context.Context, q data.NovelQuery) ([]data.Novel, error) {
	if q.Status != "" && !q.Status.Valid() {
		return nil, apperrors.InvalidArgument("status", "status must be one of ONGOING, COMPLETED, HIATUS")
	}
	q.Pagination = q.Pagination.Normalize()
	var out []data.Novel
	err := s.db.View(ctx, func(ctx context.Context, tx database.Tx) error {
		var err error
		out, err = tx.Novels().List(ctx, q)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Service) Update(ctx context.Context, requesterID, id string, req data.NovelUpdateRequest) (*data.Novel, error) {
	if err := data.Validate(&req); err != nil {
		return nil, err
	}

	var updated *data.Novel
	err := s.db.WithTx(ctx, func(ctx context.Context, tx database.Tx) error {
		n, err := s.owned(ctx, tx, requesterID, id)
		if err != nil {
			return err
		}
		if req.Title != nil {
			n.Title = *req.Title
		}
		if req.Description != nil {
			n.Description = *req.Description
		}
		if req.CoverImageURL != nil {
			n.CoverImageURL = *req.CoverImageURL
		}
		if req.Genre != nil {
			n.Genre = *req.Genre
		}
		if req.AgeRating != nil {
			n.AgeRating = *req.AgeRating
		}
		if req.Status != nil {
			n.Status = *req.Status
		}
		if req.AllowBranching != nil {
			n.AllowBranching = *req.AllowBranching
		}
		n.UpdatedAt = s.clock.Now()
		if err := tx.Novels().Update(ctx, n); err != nil {
			return database.WrapLookup(err, entity, id)
		}
		updated = n
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// Delete tombstones the novel. Its branches stay in place but can no longer be forked.
func (s *Service) Delete(ctx context.Context, requesterID, id string) error {
	return s.db.WithTx(ctx, func(ctx context.Context, tx database.Tx) error {
		if _, err := s.owned(ctx, tx, requesterID, id); err != nil {
			return err
		}
		return database.WrapLookup(tx.Novels().SoftDelete(ctx, id, s.clock.Now()), entity, id)
	})
}

func (s *Service) owned(ctx context.Context, tx database.Tx, requesterID, id string) (*data.Novel, error) {
	n, err := tx.Novels().Get(ctx, id)
	if err != nil {
		return nil, database.WrapLookup(err, entity, id)
	}
	if n.AuthorID != requesterID {
		return nil, apperrors.Permission(entity, id, requesterID)
	}
	return n, nil
}
