// Package chapter handles chapter authoring, publication and reading.
package chapter

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/mAmineChniti/Forklore/internal/access"
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

const entity = "chapter"

const (
	triggerManual    = "manual"
	triggerScheduled = "scheduled"
)

// Renderer turns chapter source into HTML and a word count.
type Renderer interface {
	Render(text string) (html string, words int, err error)
}

// Counter keeps the branch counters in step with chapter writes and reads.
type Counter interface {
	IncrementChapterCount(ctx context.Context, tx database.Tx, branchID string) error
	IncrementViewCount(ctx context.Context, tx database.Tx, branchID string) error
}

// Gate decides age and entitlement for a reader inside an open transaction.
type Gate interface {
	Decide(ctx context.Context, tx database.Tx, readerID string, c *data.Chapter) (access.Decision, error)
	AgeAllowed(ctx context.Context, tx database.Tx, readerID string, novel *data.Novel) (bool, error)
}

type Lifecycle struct {
	db       database.Service
	branches Counter
	gate     Gate
	renderer Renderer
	clock    clock.Clock
	logger   *zap.Logger
	events   events.Publisher
}

func NewLifecycle(db database.Service, branches Counter, gate Gate, renderer Renderer, clk clock.Clock, logger *zap.Logger, pub events.Publisher) *Lifecycle {
	return &Lifecycle{
		db:       db,
		branches: branches,
		gate:     gate,
		renderer: renderer,
		clock:    clk,
		logger:   logger.Named("chapter"),
		events:   pub,
	}
}

func ownedBranch(ctx context.Context, tx database.Tx, branchID, requesterID string) (*data.Branch, error) {
	b, err := tx.Branches().Get(ctx, branchID)
	if err != nil {
		return nil, database.WrapLookup(err, "branch", branchID)
	}
	if b.AuthorID != requesterID {
		return nil, apperrors.Permission("branch", branchID, requesterID)
	}
	return b, nil
}

func ownedChapter(ctx context.Context, tx database.Tx, chapterID, requesterID string) (*data.Chapter, *data.Branch, error) {
	c, err := tx.Chapters().Get(ctx, chapterID)
	if err != nil {
		return nil, nil, database.WrapLookup(err, entity, chapterID)
	}
	b, err := tx.Branches().Get(ctx, c.BranchID)
	if err != nil {
		return nil, nil, database.WrapLookup(err, "branch", c.BranchID)
	}
	if b.AuthorID != requesterID {
		return nil, nil, apperrors.Permission(entity, chapterID, requesterID)
	}
	return c, b, nil
}

// Create appends a DRAFT chapter to the branch. Its number comes from the branch
// allocator and is never handed out again, even after a delete.
func (l *Lifecycle) Create(ctx context.Context, branchID, requesterID string, req data.ChapterCreateRequest) (created *data.Chapter, err error) {
	ctx, span := telemetry.Start(ctx, "chapter.Create", attribute.String("branch_id", branchID))
	defer func() { telemetry.End(span, err) }()

	if err = data.Validate(&req); err != nil {
		return nil, err
	}
	html, words, err := l.renderer.Render(req.Content)
	if err != nil {
		return nil, fmt.Errorf("render chapter: %w", err)
	}
	accessType := req.AccessType
	if accessType == "" {
		accessType = data.AccessFree
	}

	err = l.db.WithTx(ctx, func(ctx context.Context, tx database.Tx) error {
		b, err := ownedBranch(ctx, tx, branchID, requesterID)
		if err != nil {
			return err
		}
		number, err := tx.Branches().NextChapterNumber(ctx, branchID)
		if err != nil {
			return database.WrapLookup(err, "branch", branchID)
		}
		now := l.clock.Now()
		c := &data.Chapter{
			ID:            uuid.NewString(),
			BranchID:      branchID,
			ChapterNumber: number,
			Title:         req.Title,
			Content:       req.Content,
			ContentHTML:   html,
			WordCount:     words,
			AccessType:    accessType,
			Price:         req.Price,
			AuthorComment: req.AuthorComment,
			Status:        data.ChapterDraft,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		if err := tx.Chapters().Insert(ctx, c); err != nil {
			return fmt.Errorf("insert chapter: %w", err)
		}
		if err := l.branches.IncrementChapterCount(ctx, tx, branchID); err != nil {
			return err
		}
		if err := tx.Novels().IncCounter(ctx, b.NovelID, data.NovelTotalChapterCount, 1); err != nil {
			return database.WrapLookup(err, "novel", b.NovelID)
		}
		created = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// Update edits a chapter. Once published its content is frozen; title, pricing and
// the author comment stay editable.
func (l *Lifecycle) Update(ctx context.Context, chapterID, requesterID string, req data.ChapterUpdateRequest) (*data.Chapter, error) {
	if err := data.Validate(&req); err != nil {
		return nil, err
	}

	var updated *data.Chapter
	err := l.db.WithTx(ctx, func(ctx context.Context, tx database.Tx) error {
		c, _, err := ownedChapter(ctx, tx, chapterID, requesterID)
		if err != nil {
			return err
		}
		if req.Content != nil {
			if c.Status == data.ChapterPublished {
				return apperrors.InvalidState(entity, chapterID, "published chapter content cannot be edited")
			}
			html, words, err := l.renderer.Render(*req.Content)
			if err != nil {
				return fmt.Errorf("render chapter: %w", err)
			}
			c.Content, c.ContentHTML, c.WordCount = *req.Content, html, words
		}
		if req.Title != nil {
			c.Title = *req.Title
		}
		if req.AccessType != nil {
			c.AccessType = *req.AccessType
		}
		if req.Price != nil {
			c.Price = *req.Price
		}
		if req.AuthorComment != nil {
			c.AuthorComment = *req.AuthorComment
		}
		c.UpdatedAt = l.clock.Now()
		if err := tx.Chapters().Update(ctx, c); err != nil {
			return database.WrapLookup(err, entity, chapterID)
		}
		updated = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// Publish makes the chapter readable now. Publishing a published chapter returns it
// unchanged.
func (l *Lifecycle) Publish(ctx context.Context, chapterID, requesterID string) (published *data.Chapter, err error) {
	ctx, span := telemetry.Start(ctx, "chapter.Publish", attribute.String("chapter_id", chapterID))
	defer func() { telemetry.End(span, err) }()

	var changed bool
	err = l.db.WithTx(ctx, func(ctx context.Context, tx database.Tx) error {
		changed = false
		c, _, err := ownedChapter(ctx, tx, chapterID, requesterID)
		if err != nil {
			return err
		}
		if c.Status == data.ChapterPublished {
			published = c
			return nil
		}
		now := l.clock.Now()
		err = tx.Chapters().Publish(ctx, chapterID, now)
		switch {
		case errors.Is(err, database.ErrConflict):
			// The scheduler got there first.
			published, err = tx.Chapters().Get(ctx, chapterID)
			return database.WrapLookup(err, entity, chapterID)
		case err != nil:
			return database.WrapLookup(err, entity, chapterID)
		}
		c.Status = data.ChapterPublished
		c.PublishedAt = &now
		c.ScheduledAt = nil
		c.UpdatedAt = now
		published, changed = c, true
		return nil
	})
	if err != nil {
		return nil, err
	}
	if changed {
		l.announce(ctx, published, requesterID, triggerManual)
	}
	return published, nil
}

// Schedule sets the chapter to publish itself at when, which must lie in the future.
func (l *Lifecycle) Schedule(ctx context.Context, chapterID, requesterID string, when time.Time) (*data.Chapter, error) {
	now := l.clock.Now()
	if !when.After(now) {
		return nil, apperrors.InvalidArgument("scheduled_at", "scheduled time must be in the future")
	}
	when = when.UTC()

	var scheduled *data.Chapter
	err := l.db.WithTx(ctx, func(ctx context.Context, tx database.Tx) error {
		c, _, err := ownedChapter(ctx, tx, chapterID, requesterID)
		if err != nil {
			return err
		}
		if !c.Status.CanTransitionTo(data.ChapterScheduled) {
			return apperrors.InvalidState(entity, chapterID, "published chapter cannot be scheduled")
		}
		if err := tx.Chapters().Schedule(ctx, chapterID, when, now); err != nil {
			if errors.Is(err, database.ErrConflict) {
				return apperrors.InvalidState(entity, chapterID, "published chapter cannot be scheduled")
			}
			return database.WrapLookup(err, entity, chapterID)
		}
		c.Status = data.ChapterScheduled
		c.ScheduledAt = &when
		c.UpdatedAt = now
		scheduled = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	return scheduled, nil
}

// PublishScheduledChapters publishes every SCHEDULED chapter whose time has come and
// returns how many it published. Chapters published, rescheduled or deleted after
// the listing are skipped. Each chapter commits on its own.
func (l *Lifecycle) PublishScheduledChapters(ctx context.Context) (int, error) {
	now := l.clock.Now()
	var due []data.Chapter
	err := l.db.View(ctx, func(ctx context.Context, tx database.Tx) error {
		var err error
		due, err = tx.Chapters().DueScheduled(ctx, now)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("list due chapters: %w", err)
	}

	var (
		published int
		errs      []error
	)
	for i := range due {
		c := due[i]
		err := l.db.WithTx(ctx, func(ctx context.Context, tx database.Tx) error {
			return tx.Chapters().PublishDue(ctx, c.ID, now)
		})
		switch {
		case errors.Is(err, database.ErrConflict), errors.Is(err, database.ErrNotFound):
			continue
		case err != nil:
			l.logger.Error("failed to publish scheduled chapter", zap.String("chapter_id", c.ID), zap.Error(err))
			errs = append(errs, fmt.Errorf("publish %s: %w", c.ID, err))
			continue
		}
		c.Status = data.ChapterPublished
		c.PublishedAt = &now
		c.ScheduledAt = nil
		published++
		l.announce(ctx, &c, "", triggerScheduled)
	}
	return published, errors.Join(errs...)
}

func (l *Lifecycle) announce(ctx context.Context, c *data.Chapter, actorID, trigger string) {
	metrics.ChaptersPublishedTotal.WithLabelValues(trigger).Inc()
	l.logger.Info("chapter published",
		zap.String("chapter_id", c.ID),
		zap.String("branch_id", c.BranchID),
		zap.Int("chapter_number", c.ChapterNumber),
		zap.String("trigger", trigger),
	)
	events.Emit(ctx, l.events, l.logger, events.New(events.ChapterPublished, c.ID, actorID, *c.PublishedAt,
		map[string]string{
			"branch_id":      c.BranchID,
			"chapter_number": strconv.Itoa(c.ChapterNumber),
			"trigger":        trigger,
		}))
}

// Delete tombstones the chapter. Its number stays taken and the branch chapter
// count is not lowered.
func (l *Lifecycle) Delete(ctx context.Context, chapterID, requesterID string) error {
	return l.db.WithTx(ctx, func(ctx context.Context, tx database.Tx) error {
		if _, _, err := ownedChapter(ctx, tx, chapterID, requesterID); err != nil {
			return err
		}
		return database.WrapLookup(tx.Chapters().SoftDelete(ctx, chapterID, l.clock.Now()), entity, chapterID)
	})
}

// Get returns chapter metadata. Only the branch author sees the body here; readers
// go through Read.
func (l *Lifecycle) Get(ctx context.Context, viewerID, chapterID string) (*data.Chapter, error) {
	var out *data.Chapter
	err := l.db.View(ctx, func(ctx context.Context, tx database.Tx) error {
		c, b, err := load(ctx, tx, chapterID)
		if err != nil {
			return err
		}
		if !c.VisibleTo(b, viewerID) {
			return apperrors.NotFound(entity, chapterID)
		}
		if b.AuthorID != viewerID {
			preview := c.Preview()
			c = &preview
		}
		out = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// List returns the branch's chapters in reading order, without bodies. The branch
// author also sees drafts and scheduled chapters.
func (l *Lifecycle) List(ctx context.Context, viewerID, branchID string) ([]data.Chapter, error) {
	var out []data.Chapter
	err := l.db.View(ctx, func(ctx context.Context, tx database.Tx) error {
		b, err := tx.Branches().Get(ctx, branchID)
		if err != nil {
			return database.WrapLookup(err, "branch", branchID)
		}
		isAuthor := b.AuthorID == viewerID
		if b.HiddenFrom(viewerID) {
			return apperrors.NotFound("branch", branchID)
		}
		chapters, err := tx.Chapters().List(ctx, branchID, !isAuthor)
		if err != nil {
			return err
		}
		out = make([]data.Chapter, 0, len(chapters))
		for _, c := range chapters {
			out = append(out, c.Preview())
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func load(ctx context.Context, tx database.Tx, chapterID string) (*data.Chapter, *data.Branch, error) {
	c, err := tx.Chapters().Get(ctx, chapterID)
	if err != nil {
		return nil, nil, database.WrapLookup(err, entity, chapterID)
	}
	b, err := tx.Branches().Get(ctx, c.BranchID)
	if err != nil {
		return nil, nil, database.WrapLookup(err, "branch", c.BranchID)
	}
	return c, b, nil
}

// Reading is what a reader gets back. A denied reading carries the chapter without
// its body and the reason for the denial.
type Reading struct {
	Chapter data.Chapter    `json:"chapter"`
	Access  access.Decision `json:"access"`
}

// Read opens a chapter for readerID. The gates run in order: publication, age
// rating, entitlement. A granted reading counts as a view.
func (l *Lifecycle) Read(ctx context.Context, readerID, chapterID string) (reading *Reading, err error) {
	ctx, span := telemetry.Start(ctx, "chapter.Read", attribute.String("chapter_id", chapterID))
	defer func() { telemetry.End(span, err) }()

	err = l.db.WithTx(ctx, func(ctx context.Context, tx database.Tx) error {
		c, b, err := load(ctx, tx, chapterID)
		if err != nil {
			return err
		}
		if !c.VisibleTo(b, readerID) {
			return apperrors.NotFound(entity, chapterID)
		}
		novel, err := tx.Novels().Get(ctx, b.NovelID)
		if err != nil {
			return database.WrapLookup(err, "novel", b.NovelID)
		}

		decision := access.Decision{Allowed: true}
		if b.AuthorID != readerID {
			if novel.AgeRating.MinimumAge() > 0 {
				ok, err := l.gate.AgeAllowed(ctx, tx, readerID, novel)
				if err != nil {
					return err
				}
				if !ok {
					return apperrors.WithMetadata(apperrors.KindPermission, "reader does not meet the age rating", map[string]string{
						"entity":     "novel",
						"id":         novel.ID,
						"age_rating": string(novel.AgeRating),
					})
				}
			}
			if decision, err = l.gate.Decide(ctx, tx, readerID, c); err != nil {
				return err
			}
		}

		if !decision.Allowed {
			reading = &Reading{Chapter: c.Preview(), Access: decision}
			return nil
		}
		if err := l.recordView(ctx, tx, c, b); err != nil {
			return err
		}
		c.ViewCount++
		reading = &Reading{Chapter: *c, Access: decision}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return reading, nil
}

// RecordView bumps the chapter, branch and novel view counters.
func (l *Lifecycle) RecordView(ctx context.Context, chapterID string) error {
	return l.db.WithTx(ctx, func(ctx context.Context, tx database.Tx) error {
		c, b, err := load(ctx, tx, chapterID)
		if err != nil {
			return err
		}
		return l.recordView(ctx, tx, c, b)
	})
}

func (l *Lifecycle) recordView(ctx context.Context, tx database.Tx, c *data.Chapter, b *data.Branch) error {
	if err := tx.Chapters().IncCounter(ctx, c.ID, data.ChapterViewCount, 1); err != nil {
		return database.WrapLookup(err, entity, c.ID)
	}
	if err := l.branches.IncrementViewCount(ctx, tx, b.ID); err != nil {
		return err
	}
	if err := tx.Novels().IncCounter(ctx, b.NovelID, data.NovelTotalViewCount, 1); err != nil {
		return database.WrapLookup(err, "novel", b.NovelID)
	}
	return nil
}
