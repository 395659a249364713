// Package access decides whether a reader may open a chapter. Every check here is
// a pure read.
package access

import (
	"context"
	"errors"
	"fmt"

	"github.com/mAmineChniti/Forklore/internal/apperrors"
	"github.com/mAmineChniti/Forklore/internal/clock"
	"github.com/mAmineChniti/Forklore/internal/data"
	"github.com/mAmineChniti/Forklore/internal/database"
	"github.com/mAmineChniti/Forklore/internal/metrics"
)

// Denial reasons shown to readers as-is.
const (
	ReasonLoginRequired       = "로그인이 필요합니다."
	ReasonEntitlementRequired = "구독 또는 개별 구매가 필요합니다."
)

type Decision struct {
	Allowed       bool   `json:"allowed"`
	Reason        string `json:"reason,omitempty"`
	RequiredPrice *int   `json:"required_price,omitempty"`
}

func allow(outcome string) Decision {
	metrics.AccessDecisionsTotal.WithLabelValues(outcome).Inc()
	return Decision{Allowed: true}
}

func deny(outcome, reason string, price *int) Decision {
	metrics.AccessDecisionsTotal.WithLabelValues(outcome).Inc()
	return Decision{Reason: reason, RequiredPrice: price}
}

type Resolver struct {
	db    database.Service
	clock clock.Clock
}

func NewResolver(db database.Service, clk clock.Clock) *Resolver {
	return &Resolver{db: db, clock: clk}
}

// CanAccessChapter reports whether readerID may read the chapter. An empty readerID
// is an anonymous reader.
func (r *Resolver) CanAccessChapter(ctx context.Context, readerID, chapterID string) (bool, error) {
	d, err := r.CheckAccess(ctx, readerID, chapterID)
	return d.Allowed, err
}

// CheckAccess explains the decision. Chapters the reader may not see at all, drafts
// and chapters of someone else's PRIVATE branch, are NOT_FOUND.
func (r *Resolver) CheckAccess(ctx context.Context, readerID, chapterID string) (Decision, error) {
	var d Decision
	err := r.db.View(ctx, func(ctx context.Context, tx database.Tx) error {
		c, err := tx.Chapters().Get(ctx, chapterID)
		if err != nil {
			return database.WrapLookup(err, "chapter", chapterID)
		}
		b, err := tx.Branches().Get(ctx, c.BranchID)
		if err != nil {
			return database.WrapLookup(err, "branch", c.BranchID)
		}
		if !c.VisibleTo(b, readerID) {
			return apperrors.NotFound("chapter", chapterID)
		}
		d, err = r.Decide(ctx, tx, readerID, c)
		return err
	})
	if err != nil {
		return Decision{}, err
	}
	return d, nil
}

// Decide applies the entitlement rules to an already loaded chapter: free, then
// login, then purchase, then an active subscription.
func (r *Resolver) Decide(ctx context.Context, tx database.Tx, readerID string, c *data.Chapter) (Decision, error) {
	if c.IsFree() {
		return allow("free"), nil
	}
	if readerID == "" {
		return deny("anonymous", ReasonLoginRequired, nil), nil
	}

	purchased, err := tx.Purchases().Exists(ctx, readerID, c.ID)
	if err != nil {
		return Decision{}, fmt.Errorf("check purchase: %w", err)
	}
	if purchased {
		return allow("purchased"), nil
	}

	sub, err := tx.Subscriptions().Current(ctx, readerID)
	switch {
	case err == nil && sub.ActiveOn(clock.Today(r.clock)):
		return allow("subscribed"), nil
	case err != nil && !errors.Is(err, database.ErrNotFound):
		return Decision{}, fmt.Errorf("check subscription: %w", err)
	}

	price := c.Price
	return deny("denied", ReasonEntitlementRequired, &price), nil
}

// CheckAgeRating reports whether the reader is old enough for the novel. Anonymous
// readers and readers with no birth date on file never pass, not even for ALL.
func (r *Resolver) CheckAgeRating(ctx context.Context, readerID, novelID string) (bool, error) {
	var ok bool
	err := r.db.View(ctx, func(ctx context.Context, tx database.Tx) error {
		novel, err := tx.Novels().Get(ctx, novelID)
		if err != nil {
			return database.WrapLookup(err, "novel", novelID)
		}
		ok, err = r.AgeAllowed(ctx, tx, readerID, novel)
		return err
	})
	return ok, err
}

// CheckChapterAgeRating resolves the chapter's novel through its branch first.
func (r *Resolver) CheckChapterAgeRating(ctx context.Context, readerID, chapterID string) (bool, error) {
	var ok bool
	err := r.db.View(ctx, func(ctx context.Context, tx database.Tx) error {
		c, err := tx.Chapters().Get(ctx, chapterID)
		if err != nil {
			return database.WrapLookup(err, "chapter", chapterID)
		}
		b, err := tx.Branches().Get(ctx, c.BranchID)
		if err != nil {
			return database.WrapLookup(err, "branch", c.BranchID)
		}
		novel, err := tx.Novels().Get(ctx, b.NovelID)
		if err != nil {
			return database.WrapLookup(err, "novel", b.NovelID)
		}
		ok, err = r.AgeAllowed(ctx, tx, readerID, novel)
		return err
	})
	return ok, err
}

// AgeAllowed is the age check for callers that already hold a transaction and the novel.
func (r *Resolver) AgeAllowed(ctx context.Context, tx database.Tx, readerID string, novel *data.Novel) (bool, error) {
	if readerID == "" {
		return false, nil
	}
	u, err := tx.Users().Get(ctx, readerID)
	if err != nil {
		return false, database.WrapLookup(err, "user", readerID)
	}
	age, known := u.AgeOn(clock.Today(r.clock))
	if !known {
		return false, nil
	}
	return age >= novel.AgeRating.MinimumAge(), nil
}
