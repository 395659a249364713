package database

import (
	"context"
	"errors"
	"time"

	"github.com/mAmineChniti/Forklore/internal/apperrors"
	"github.com/mAmineChniti/Forklore/internal/data"
)

var (
	ErrNotFound  = errors.New("database: not found")
	ErrDuplicate = errors.New("database: duplicate key")
	// ErrConflict reports that a conditional write found the document in another state.
	ErrConflict = errors.New("database: conflict")
	ErrReadOnly = errors.New("database: write in read-only view")
)

// TxFunc runs against one transaction. Stores must be called with the ctx passed in.
type TxFunc func(ctx context.Context, tx Tx) error

type Service interface {
	WithTx(ctx context.Context, fn TxFunc) error
	View(ctx context.Context, fn TxFunc) error
	Health(ctx context.Context) (map[string]string, error)
	Close(ctx context.Context) error
}

type Tx interface {
	Users() UserStore
	Novels() NovelStore
	Branches() BranchStore
	Votes() VoteStore
	LinkRequests() LinkRequestStore
	Chapters() ChapterStore
	Purchases() PurchaseStore
	Subscriptions() SubscriptionStore
}

type UserStore interface {
	Get(ctx context.Context, id string) (*data.User, error)
	Upsert(ctx context.Context, u *data.User) error
}

type NovelStore interface {
	Insert(ctx context.Context, n *data.Novel) error
	Get(ctx context.Context, id string) (*data.Novel, error)
	List(ctx context.Context, q data.NovelQuery) ([]data.Novel, error)
	// Update writes the descriptive fields. Counters are left untouched.
	Update(ctx context.Context, n *data.Novel) error
	SoftDelete(ctx context.Context, id string, at time.Time) error
	IncCounter(ctx context.Context, id string, field data.NovelCounter, delta int64) error
}

type BranchStore interface {
	Insert(ctx context.Context, b *data.Branch) error
	Get(ctx context.Context, id string) (*data.Branch, error)
	GetMain(ctx context.Context, novelID string) (*data.Branch, error)
	List(ctx context.Context, novelID string, q data.BranchQuery) ([]data.Branch, error)
	// Update writes the descriptive and state fields. Counters are left untouched.
	Update(ctx context.Context, b *data.Branch) error
	SoftDelete(ctx context.Context, id string, at time.Time) error
	// IncCounter adds delta to the counter. Negative deltas floor the counter at zero.
	IncCounter(ctx context.Context, id string, field data.BranchCounter, delta int64) error
	// NextChapterNumber atomically bumps the branch's chapter number allocator.
	NextChapterNumber(ctx context.Context, id string) (int, error)
}

type VoteStore interface {
	Insert(ctx context.Context, v *data.BranchVote) error
	Delete(ctx context.Context, readerID, branchID string) error
	Exists(ctx context.Context, readerID, branchID string) (bool, error)
}

type LinkRequestStore interface {
	Insert(ctx context.Context, r *data.BranchLinkRequest) error
	Get(ctx context.Context, id string) (*data.BranchLinkRequest, error)
	FindPending(ctx context.Context, branchID string) (*data.BranchLinkRequest, error)
	List(ctx context.Context, novelID string, status data.LinkRequestStatus) ([]data.BranchLinkRequest, error)
	// Review applies the terminal state only while the request is still PENDING.
	Review(ctx context.Context, id string, review data.LinkReview) error
}

type ChapterStore interface {
	Insert(ctx context.Context, c *data.Chapter) error
	Get(ctx context.Context, id string) (*data.Chapter, error)
	List(ctx context.Context, branchID string, publishedOnly bool) ([]data.Chapter, error)
	// Update writes the editable content fields.
	Update(ctx context.Context, c *data.Chapter) error
	SoftDelete(ctx context.Context, id string, at time.Time) error
	// Schedule and Publish succeed only while the chapter is not PUBLISHED.
	Schedule(ctx context.Context, id string, at, now time.Time) error
	Publish(ctx context.Context, id string, now time.Time) error
	// PublishDue publishes only a SCHEDULED chapter whose scheduled time is at or
	// before now. Any other state is ErrConflict.
	PublishDue(ctx context.Context, id string, now time.Time) error
	DueScheduled(ctx context.Context, now time.Time) ([]data.Chapter, error)
	IncCounter(ctx context.Context, id string, field data.ChapterCounter, delta int64) error
}

type PurchaseStore interface {
	Insert(ctx context.Context, p *data.Purchase) error
	Exists(ctx context.Context, readerID, chapterID string) (bool, error)
	List(ctx context.Context, readerID string) ([]data.Purchase, error)
}

type SubscriptionStore interface {
	Insert(ctx context.Context, s *data.Subscription) error
	// Current returns the reader's ACTIVE subscription regardless of its end date.
	Current(ctx context.Context, readerID string) (*data.Subscription, error)
	List(ctx context.Context, readerID string) ([]data.Subscription, error)
	Update(ctx context.Context, s *data.Subscription) error
	ExpireBefore(ctx context.Context, day, now time.Time) (int, error)
	DueRenewal(ctx context.Context, day time.Time) ([]data.Subscription, error)
}

// WrapLookup converts a storage miss into a NOT_FOUND domain error.
func WrapLookup(err error, entity, id string) error {
	if errors.Is(err, ErrNotFound) {
		return apperrors.NotFound(entity, id)
	}
	return err
}
