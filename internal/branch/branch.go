// Package branch manages the branch tree of a novel: the main branch, forks,
// visibility and canon transitions, and the branch counters.
package branch

import (
	"context"
	"errors"
	"fmt"
	"strconv"

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

// maxAncestry bounds the parent walk done on fork.
const maxAncestry = 64

const entity = "branch"

type Manager struct {
	db     database.Service
	clock  clock.Clock
	logger *zap.Logger
	events events.Publisher
}

func NewManager(db database.Service, clk clock.Clock, logger *zap.Logger, pub events.Publisher) *Manager {
	return &Manager{db: db, clock: clk, logger: logger.Named("branch"), events: pub}
}

// CreateMainBranch inserts the novel's main branch. It runs inside the caller's
// novel-creation transaction.
func (m *Manager) CreateMainBranch(ctx context.Context, tx database.Tx, novel *data.Novel) (*data.Branch, error) {
	b := data.NewMainBranch(uuid.NewString(), novel, m.clock.Now())
	if err := tx.Branches().Insert(ctx, b); err != nil {
		if errors.Is(err, database.ErrDuplicate) {
			return nil, apperrors.InvalidState("novel", novel.ID, "novel already has a main branch")
		}
		return nil, fmt.Errorf("insert main branch: %w", err)
	}
	return b, nil
}

func (m *Manager) Fork(ctx context.Context, novelID, userID string, req data.ForkRequest) (forked *data.Branch, err error) {
	ctx, span := telemetry.Start(ctx, "branch.Fork", attribute.String("novel_id", novelID))
	defer func() { telemetry.End(span, err) }()

	if err = data.Validate(&req); err != nil {
		return nil, err
	}
	visibility := req.Visibility
	if visibility == "" {
		visibility = data.VisibilityPrivate
	}
	if visibility == data.VisibilityLinked {
		return nil, apperrors.InvalidState(entity, "", "LINKED is only granted through an approved link request")
	}
	branchType := req.BranchType
	if branchType == "" {
		branchType = data.BranchFanFic
	}

	err = m.db.WithTx(ctx, func(ctx context.Context, tx database.Tx) error {
		novel, err := tx.Novels().Get(ctx, novelID)
		if err != nil {
			return database.WrapLookup(err, "novel", novelID)
		}
		if !novel.AllowBranching {
			return apperrors.InvalidState("novel", novelID, "branching is disabled for this novel")
		}

		parent, err := m.resolveParent(ctx, tx, novel, userID, req.ParentBranchID)
		if err != nil {
			return err
		}
		if req.ForkPointChapter != nil && *req.ForkPointChapter > parent.LastChapterNumber {
			return apperrors.WithMetadata(apperrors.KindInvalidArgument,
				"fork point is beyond the parent's last chapter", map[string]string{
					"field":               "fork_point_chapter",
					"parent_branch_id":    parent.ID,
					"last_chapter_number": strconv.Itoa(parent.LastChapterNumber),
				})
		}

		now := m.clock.Now()
		parentID := parent.ID
		b := &data.Branch{
			ID:               uuid.NewString(),
			NovelID:          novel.ID,
			AuthorID:         userID,
			ParentBranchID:   &parentID,
			ForkPointChapter: req.ForkPointChapter,
			Name:             req.Name,
			Description:      req.Description,
			CoverImageURL:    req.CoverImageURL,
			BranchType:       branchType,
			Visibility:       visibility,
			CanonStatus:      data.CanonNonCanon,
			VoteThreshold:    data.DefaultVoteThreshold,
			CreatedAt:        now,
			UpdatedAt:        now,
		}
		if err := tx.Branches().Insert(ctx, b); err != nil {
			return fmt.Errorf("insert branch: %w", err)
		}
		if err := tx.Novels().IncCounter(ctx, novel.ID, data.NovelBranchCount, 1); err != nil {
			return fmt.Errorf("bump branch count: %w", err)
		}
		forked = b
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.BranchesForkedTotal.Inc()
	m.logger.Info("branch forked",
		zap.String("branch_id", forked.ID),
		zap.String("novel_id", novelID),
		zap.String("parent_branch_id", *forked.ParentBranchID),
	)
	events.Emit(ctx, m.events, m.logger, events.New(events.BranchForked, forked.ID, userID, forked.CreatedAt,
		map[string]string{"novel_id": novelID, "parent_branch_id": *forked.ParentBranchID}))
	return forked, nil
}

func (m *Manager) resolveParent(ctx context.Context, tx database.Tx, novel *data.Novel, userID string, parentID *string) (*data.Branch, error) {
	if parentID == nil {
		main, err := tx.Branches().GetMain(ctx, novel.ID)
		if err != nil {
			return nil, database.WrapLookup(err, entity, "main:"+novel.ID)
		}
		return main, nil
	}

	parent, err := tx.Branches().Get(ctx, *parentID)
	if err != nil {
		return nil, database.WrapLookup(err, entity, *parentID)
	}
	if parent.HiddenFrom(userID) {
		return nil, apperrors.NotFound(entity, *parentID)
	}
	if parent.NovelID != novel.ID {
		return nil, apperrors.WithMetadata(apperrors.KindInvalidArgument,
			"parent branch belongs to another novel", map[string]string{
				"field":            "parent_branch_id",
				"parent_branch_id": parent.ID,
				"novel_id":         novel.ID,
			})
	}
	if err := checkAncestry(ctx, tx, parent); err != nil {
		return nil, err
	}
	return parent, nil
}

// checkAncestry walks parent links up to the main branch. A tombstoned ancestor ends
// the walk: its own chain was checked when it was forked and parent links never change.
func checkAncestry(ctx context.Context, tx database.Tx, from *data.Branch) error {
	seen := map[string]bool{from.ID: true}
	cur := from
	for depth := 0; depth < maxAncestry; depth++ {
		if cur.IsMain {
			return nil
		}
		if cur.ParentBranchID == nil {
			return apperrors.InvalidState(entity, cur.ID, "branch chain does not reach the main branch")
		}
		next := *cur.ParentBranchID
		if seen[next] {
			return apperrors.InvalidState(entity, cur.ID, "branch chain contains a cycle")
		}
		seen[next] = true

		parent, err := tx.Branches().Get(ctx, next)
		if errors.Is(err, database.ErrNotFound) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("load ancestor %s: %w", next, err)
		}
		cur = parent
	}
	return apperrors.InvalidState(entity, from.ID, "branch chain is too deep")
}

// loadOwned fetches a branch and checks that requesterID wrote it.
func loadOwned(ctx context.Context, tx database.Tx, branchID, requesterID string) (*data.Branch, error) {
	b, err := tx.Branches().Get(ctx, branchID)
	if err != nil {
		return nil, database.WrapLookup(err, entity, branchID)
	}
	if b.AuthorID != requesterID {
		return nil, apperrors.Permission(entity, branchID, requesterID)
	}
	return b, nil
}

func (m *Manager) Update(ctx context.Context, requesterID, branchID string, req data.BranchUpdateRequest) (*data.Branch, error) {
	if err := data.Validate(&req); err != nil {
		return nil, err
	}

	var updated *data.Branch
	err := m.db.WithTx(ctx, func(ctx context.Context, tx database.Tx) error {
		b, err := loadOwned(ctx, tx, branchID, requesterID)
		if err != nil {
			return err
		}
		if req.Name != nil {
			b.Name = *req.Name
		}
		if req.Description != nil {
			b.Description = *req.Description
		}
		if req.CoverImageURL != nil {
			b.CoverImageURL = *req.CoverImageURL
		}
		if req.BranchType != nil {
			if b.IsMain {
				return apperrors.InvalidState(entity, branchID, "main branch type cannot change")
			}
			b.BranchType = *req.BranchType
		}
		b.UpdatedAt = m.clock.Now()
		if err := tx.Branches().Update(ctx, b); err != nil {
			return database.WrapLookup(err, entity, branchID)
		}
		updated = b
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (m *Manager) Delete(ctx context.Context, requesterID, branchID string) error {
	var novelID string
	err := m.db.WithTx(ctx, func(ctx context.Context, tx database.Tx) error {
		b, err := loadOwned(ctx, tx, branchID, requesterID)
		if err != nil {
			return err
		}
		if b.IsMain {
			return apperrors.InvalidState(entity, branchID, "main branch cannot be deleted")
		}
		if err := tx.Branches().SoftDelete(ctx, branchID, m.clock.Now()); err != nil {
			return database.WrapLookup(err, entity, branchID)
		}
		err = tx.Novels().IncCounter(ctx, b.NovelID, data.NovelBranchCount, -1)
		if err != nil && !errors.Is(err, database.ErrNotFound) {
			return fmt.Errorf("drop branch count: %w", err)
		}
		novelID = b.NovelID
		return nil
	})
	if err != nil {
		return err
	}

	m.logger.Info("branch deleted", zap.String("branch_id", branchID))
	events.Emit(ctx, m.events, m.logger, events.New(events.BranchDeleted, branchID, requesterID, m.clock.Now(),
		map[string]string{"novel_id": novelID}))
	return nil
}

// ChangeVisibility lets the owner move a branch between PRIVATE and PUBLIC. A LINKED
// branch may be taken back to either, which drops the link.
func (m *Manager) ChangeVisibility(ctx context.Context, requesterID, branchID string, v data.Visibility) (*data.Branch, error) {
	if !v.Valid() {
		return nil, apperrors.InvalidArgument("visibility", "visibility must be one of PRIVATE, PUBLIC, LINKED")
	}
	var updated *data.Branch
	err := m.db.WithTx(ctx, func(ctx context.Context, tx database.Tx) error {
		b, err := loadOwned(ctx, tx, branchID, requesterID)
		if err != nil {
			return err
		}
		switch {
		case v == data.VisibilityLinked:
			return apperrors.InvalidState(entity, branchID, "LINKED is only granted through an approved link request")
		case b.IsMain:
			return apperrors.InvalidState(entity, branchID, "main branch visibility cannot change")
		case !b.Visibility.OwnerCanSet(v):
			return apperrors.InvalidState(entity, branchID, "visibility transition not allowed")
		}
		b.Visibility = v
		b.UpdatedAt = m.clock.Now()
		if err := tx.Branches().Update(ctx, b); err != nil {
			return database.WrapLookup(err, entity, branchID)
		}
		updated = b
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// AuthorizeCanonReview checks that requesterID wrote the novel the branch belongs to.
// Only that author may move a branch toward canon.
func (m *Manager) AuthorizeCanonReview(ctx context.Context, requesterID, branchID string) error {
	return m.db.View(ctx, func(ctx context.Context, tx database.Tx) error {
		b, err := tx.Branches().Get(ctx, branchID)
		if err != nil {
			return database.WrapLookup(err, entity, branchID)
		}
		novel, err := tx.Novels().Get(ctx, b.NovelID)
		if err != nil {
			return database.WrapLookup(err, "novel", b.NovelID)
		}
		if novel.AuthorID != requesterID {
			return apperrors.Permission(entity, branchID, requesterID)
		}
		return nil
	})
}

func (m *Manager) MarkAsCandidate(ctx context.Context, branchID string) (*data.Branch, error) {
	return m.advanceCanon(ctx, branchID, data.CanonCandidate, nil)
}

func (m *Manager) MergeToCanon(ctx context.Context, branchID string, atChapter int) (*data.Branch, error) {
	if atChapter < 1 {
		return nil, apperrors.InvalidArgument("at_chapter", "merge chapter must be at least 1")
	}
	return m.advanceCanon(ctx, branchID, data.CanonMerged, &atChapter)
}

func (m *Manager) advanceCanon(ctx context.Context, branchID string, target data.CanonStatus, atChapter *int) (*data.Branch, error) {
	var updated *data.Branch
	err := m.db.WithTx(ctx, func(ctx context.Context, tx database.Tx) error {
		b, err := tx.Branches().Get(ctx, branchID)
		if err != nil {
			return database.WrapLookup(err, entity, branchID)
		}
		if b.IsMain {
			return apperrors.InvalidState(entity, branchID, "main branch has no canon status to change")
		}
		if !b.CanonStatus.CanAdvanceTo(target) {
			return apperrors.WithMetadata(apperrors.KindInvalidState, "canon status cannot move backwards", map[string]string{
				"entity": entity, "id": branchID, "from": string(b.CanonStatus), "to": string(target),
			})
		}
		b.CanonStatus = target
		if atChapter != nil {
			b.MergedAtChapter = atChapter
		}
		b.UpdatedAt = m.clock.Now()
		if err := tx.Branches().Update(ctx, b); err != nil {
			return database.WrapLookup(err, entity, branchID)
		}
		updated = b
		return nil
	})
	if err != nil {
		return nil, err
	}

	events.Emit(ctx, m.events, m.logger, events.New(events.BranchCanonChanged, branchID, "", updated.UpdatedAt,
		map[string]string{"canon_status": string(target)}))
	return updated, nil
}

// ApplyApprovedLink marks the branch LINKED. It is the only path to that visibility
// and runs inside the link approval transaction.
func (m *Manager) ApplyApprovedLink(ctx context.Context, tx database.Tx, branchID string) error {
	b, err := tx.Branches().Get(ctx, branchID)
	if err != nil {
		return database.WrapLookup(err, entity, branchID)
	}
	if b.IsMain {
		return apperrors.InvalidState(entity, branchID, "main branch cannot be linked")
	}
	b.Visibility = data.VisibilityLinked
	b.UpdatedAt = m.clock.Now()
	if err := tx.Branches().Update(ctx, b); err != nil {
		return database.WrapLookup(err, entity, branchID)
	}
	return nil
}

func (m *Manager) IncrementVoteCount(ctx context.Context, tx database.Tx, branchID string) error {
	return incCounter(ctx, tx, branchID, data.BranchVoteCount, 1)
}

// DecrementVoteCount never takes the counter below zero.
func (m *Manager) DecrementVoteCount(ctx context.Context, tx database.Tx, branchID string) error {
	return incCounter(ctx, tx, branchID, data.BranchVoteCount, -1)
}

func (m *Manager) IncrementViewCount(ctx context.Context, tx database.Tx, branchID string) error {
	return incCounter(ctx, tx, branchID, data.BranchViewCount, 1)
}

func (m *Manager) IncrementChapterCount(ctx context.Context, tx database.Tx, branchID string) error {
	return incCounter(ctx, tx, branchID, data.BranchChapterCount, 1)
}

func incCounter(ctx context.Context, tx database.Tx, branchID string, field data.BranchCounter, delta int64) error {
	if err := tx.Branches().IncCounter(ctx, branchID, field, delta); err != nil {
		return database.WrapLookup(err, entity, branchID)
	}
	return nil
}

// Get returns a branch. PRIVATE branches are visible to their author only.
func (m *Manager) Get(ctx context.Context, viewerID, branchID string) (*data.Branch, error) {
	var b *data.Branch
	err := m.db.View(ctx, func(ctx context.Context, tx database.Tx) error {
		var err error
		b, err = tx.Branches().Get(ctx, branchID)
		if err != nil {
			return database.WrapLookup(err, entity, branchID)
		}
		if b.HiddenFrom(viewerID) {
			return apperrors.NotFound(entity, branchID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return b, nil
}

func (m *Manager) GetMain(ctx context.Context, novelID string) (*data.Branch, error) {
	var b *data.Branch
	err := m.db.View(ctx, func(ctx context.Context, tx database.Tx) error {
		var err error
		b, err = tx.Branches().GetMain(ctx, novelID)
		return database.WrapLookup(err, entity, "main:"+novelID)
	})
	if err != nil {
		return nil, err
	}
	return b, nil
}

// ListPublic lists the novel's PUBLIC and LINKED branches.
func (m *Manager) ListPublic(ctx context.Context, novelID string, sort data.BranchSort, p data.Pagination) ([]data.Branch, error) {
	switch sort {
	case "":
		sort = data.SortLatest
	case data.SortLatest, data.SortVotes, data.SortViews:
	default:
		return nil, apperrors.InvalidArgument("sort", "sort must be one of latest, votes, views")
	}
	return m.list(ctx, novelID, data.BranchQuery{
		Visibilities: []data.Visibility{data.VisibilityPublic, data.VisibilityLinked},
		Sort:         sort,
		Pagination:   p.Normalize(),
	})
}

// ListLinked lists the branches shown on the novel's own page.
func (m *Manager) ListLinked(ctx context.Context, novelID string) ([]data.Branch, error) {
	return m.list(ctx, novelID, data.BranchQuery{
		Visibilities: []data.Visibility{data.VisibilityLinked},
		Sort:         data.SortVotes,
	})
}

func (m *Manager) list(ctx context.Context, novelID string, q data.BranchQuery) ([]data.Branch, error) {
	var out []data.Branch
	err := m.db.View(ctx, func(ctx context.Context, tx database.Tx) error {
		if _, err := tx.Novels().Get(ctx, novelID); err != nil {
			return database.WrapLookup(err, "novel", novelID)
		}
		var err error
		out, err = tx.Branches().List(ctx, novelID, q)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
