// Package testkit seeds an in-memory store for service tests.
package testkit

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/mAmineChniti/Forklore/internal/clock"
	"github.com/mAmineChniti/Forklore/internal/data"
	"github.com/mAmineChniti/Forklore/internal/database"
	"github.com/mAmineChniti/Forklore/internal/events"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

// Epoch is the mock clock's starting time.
var Epoch = time.Date(2025, time.March, 1, 9, 0, 0, 0, time.UTC)

type Env struct {
	DB     *database.Memory
	Clock  *clock.Mock
	Events *events.Recorder
	Logger *zap.Logger
}

func NewEnv(t *testing.T) *Env {
	t.Helper()
	return &Env{
		DB:     database.NewMemory(),
		Clock:  clock.NewMock(Epoch),
		Events: &events.Recorder{},
		Logger: zaptest.NewLogger(t),
	}
}

func (e *Env) tx(t *testing.T, fn database.TxFunc) {
	t.Helper()
	require.NoError(t, e.DB.WithTx(context.Background(), fn))
}

// Novel inserts a branching-enabled novel and its main branch.
func (e *Env) Novel(t *testing.T, authorID string, opts ...func(*data.Novel)) (*data.Novel, *data.Branch) {
	t.Helper()
	now := e.Clock.Now()
	n := &data.Novel{
		ID:             uuid.NewString(),
		AuthorID:       authorID,
		Title:          "Moonfall",
		Description:    "The moon fell on a Tuesday.",
		Genre:          "fantasy",
		AgeRating:      data.AgeRatingAll,
		Status:         data.NovelOngoing,
		AllowBranching: true,
		BranchCount:    1,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	for _, opt := range opts {
		opt(n)
	}
	main := data.NewMainBranch(uuid.NewString(), n, now)
	e.tx(t, func(ctx context.Context, tx database.Tx) error {
		if err := tx.Novels().Insert(ctx, n); err != nil {
			return err
		}
		return tx.Branches().Insert(ctx, main)
	})
	return n, main
}

// Fork inserts a branch under parent without going through the branch manager.
func (e *Env) Fork(t *testing.T, parent *data.Branch, authorID string, visibility data.Visibility) *data.Branch {
	t.Helper()
	now := e.Clock.Now()
	parentID := parent.ID
	b := &data.Branch{
		ID:             uuid.NewString(),
		NovelID:        parent.NovelID,
		AuthorID:       authorID,
		ParentBranchID: &parentID,
		Name:           "What if the sun fell instead",
		BranchType:     data.BranchIfStory,
		Visibility:     visibility,
		CanonStatus:    data.CanonNonCanon,
		VoteThreshold:  data.DefaultVoteThreshold,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	e.tx(t, func(ctx context.Context, tx database.Tx) error {
		return tx.Branches().Insert(ctx, b)
	})
	return b
}

// Chapter appends a chapter to the branch using the branch's number allocator.
func (e *Env) Chapter(t *testing.T, branchID string, access data.AccessType, price int, status data.ChapterStatus) *data.Chapter {
	t.Helper()
	now := e.Clock.Now()
	c := &data.Chapter{
		ID:         uuid.NewString(),
		BranchID:   branchID,
		Title:      "Chapter",
		Content:    "The tide went out and did not return.",
		AccessType: access,
		Price:      price,
		Status:     status,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if status == data.ChapterPublished {
		c.PublishedAt = &now
	}
	e.tx(t, func(ctx context.Context, tx database.Tx) error {
		n, err := tx.Branches().NextChapterNumber(ctx, branchID)
		if err != nil {
			return err
		}
		c.ChapterNumber = n
		return tx.Chapters().Insert(ctx, c)
	})
	return c
}

// User upserts a reader. A nil birth date leaves the age unknown.
func (e *Env) User(t *testing.T, id string, birthDate *time.Time) *data.User {
	t.Helper()
	now := e.Clock.Now()
	u := &data.User{ID: id, Nickname: id, BirthDate: birthDate, CreatedAt: now, UpdatedAt: now}
	e.tx(t, func(ctx context.Context, tx database.Tx) error {
		return tx.Users().Upsert(ctx, u)
	})
	return u
}

// Branch reads a live branch straight from the store.
func (e *Env) Branch(t *testing.T, id string) *data.Branch {
	t.Helper()
	var b *data.Branch
	require.NoError(t, e.DB.View(context.Background(), func(ctx context.Context, tx database.Tx) error {
		var err error
		b, err = tx.Branches().Get(ctx, id)
		return err
	}))
	return b
}

func (e *Env) NovelByID(t *testing.T, id string) *data.Novel {
	t.Helper()
	var n *data.Novel
	require.NoError(t, e.DB.View(context.Background(), func(ctx context.Context, tx database.Tx) error {
		var err error
		n, err = tx.Novels().Get(ctx, id)
		return err
	}))
	return n
}

func (e *Env) ChapterByID(t *testing.T, id string) *data.Chapter {
	t.Helper()
	var c *data.Chapter
	require.NoError(t, e.DB.View(context.Background(), func(ctx context.Context, tx database.Tx) error {
		var err error
		c, err = tx.Chapters().Get(ctx, id)
		return err
	}))
	return c
}

func Date(year int, month time.Month, day int) *time.Time {
	d := time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
	return &d
}
