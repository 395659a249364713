package database

import (
	"context"
	"testing"
	"time"

	"github.com/mAmineChniti/Forklore/internal/data"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2026, time.January, 5, 12, 0, 0, 0, time.UTC)

func seedNovel(t *testing.T, svc Service, novelID, mainID string) {
	t.Helper()
	err := svc.WithTx(context.Background(), func(ctx context.Context, tx Tx) error {
		novel := &data.Novel{
			ID:             novelID,
			AuthorID:       "author",
			Title:          "Moonfall",
			Genre:          "fantasy",
			AgeRating:      data.AgeRatingAll,
			Status:         data.NovelOngoing,
			AllowBranching: true,
			BranchCount:    1,
			CreatedAt:      epoch,
			UpdatedAt:      epoch,
		}
		if err := tx.Novels().Insert(ctx, novel); err != nil {
			return err
		}
		return tx.Branches().Insert(ctx, data.NewMainBranch(mainID, novel, epoch))
	})
	require.NoError(t, err)
}

// runStoreContract exercises the behaviour every Service implementation must share.
func runStoreContract(t *testing.T, svc Service) {
	ctx := context.Background()

	t.Run("duplicate vote is rejected", func(t *testing.T) {
		seedNovel(t, svc, "n-vote", "b-vote")
		vote := &data.BranchVote{ReaderID: "r-1", BranchID: "b-vote", CreatedAt: epoch}

		require.NoError(t, svc.WithTx(ctx, func(ctx context.Context, tx Tx) error {
			return tx.Votes().Insert(ctx, vote)
		}))
		err := svc.WithTx(ctx, func(ctx context.Context, tx Tx) error {
			return tx.Votes().Insert(ctx, vote)
		})
		assert.ErrorIs(t, err, ErrDuplicate)

		err = svc.View(ctx, func(ctx context.Context, tx Tx) error {
			ok, err := tx.Votes().Exists(ctx, "r-1", "b-vote")
			assert.True(t, ok)
			return err
		})
		require.NoError(t, err)
	})

	t.Run("counter decrement floors at zero", func(t *testing.T) {
		seedNovel(t, svc, "n-count", "b-count")
		require.NoError(t, svc.WithTx(ctx, func(ctx context.Context, tx Tx) error {
			if err := tx.Branches().IncCounter(ctx, "b-count", data.BranchVoteCount, 1); err != nil {
				return err
			}
			if err := tx.Branches().IncCounter(ctx, "b-count", data.BranchVoteCount, -1); err != nil {
				return err
			}
			return tx.Branches().IncCounter(ctx, "b-count", data.BranchVoteCount, -1)
		}))

		require.NoError(t, svc.View(ctx, func(ctx context.Context, tx Tx) error {
			b, err := tx.Branches().Get(ctx, "b-count")
			require.NoError(t, err)
			assert.Equal(t, 0, b.VoteCount)
			return nil
		}))
	})

	t.Run("chapter numbers are allocated monotonically", func(t *testing.T) {
		seedNovel(t, svc, "n-num", "b-num")
		var got []int
		for range 3 {
			require.NoError(t, svc.WithTx(ctx, func(ctx context.Context, tx Tx) error {
				n, err := tx.Branches().NextChapterNumber(ctx, "b-num")
				got = append(got, n)
				return err
			}))
		}
		assert.Equal(t, []int{1, 2, 3}, got)
	})

	t.Run("link review is conditional on pending", func(t *testing.T) {
		seedNovel(t, svc, "n-link", "b-link")
		req := &data.BranchLinkRequest{
			ID:        "lr-1",
			BranchID:  "b-fork",
			NovelID:   "n-link",
			Status:    data.LinkRequestPending,
			CreatedAt: epoch,
		}
		require.NoError(t, svc.WithTx(ctx, func(ctx context.Context, tx Tx) error {
			return tx.LinkRequests().Insert(ctx, req)
		}))

		dup := *req
		dup.ID = "lr-2"
		err := svc.WithTx(ctx, func(ctx context.Context, tx Tx) error {
			return tx.LinkRequests().Insert(ctx, &dup)
		})
		assert.ErrorIs(t, err, ErrDuplicate)

		review := data.LinkReview{Status: data.LinkRequestApproved, ReviewerID: "author", ReviewedAt: epoch}
		require.NoError(t, svc.WithTx(ctx, func(ctx context.Context, tx Tx) error {
			return tx.LinkRequests().Review(ctx, "lr-1", review)
		}))
		err = svc.WithTx(ctx, func(ctx context.Context, tx Tx) error {
			review.Status = data.LinkRequestRejected
			return tx.LinkRequests().Review(ctx, "lr-1", review)
		})
		assert.ErrorIs(t, err, ErrConflict)

		err = svc.WithTx(ctx, func(ctx context.Context, tx Tx) error {
			return tx.LinkRequests().Review(ctx, "missing", review)
		})
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("publish is conditional on unpublished", func(t *testing.T) {
		seedNovel(t, svc, "n-pub", "b-pub")
		when := epoch.Add(time.Hour)
		ch := &data.Chapter{
			ID:            "c-pub",
			BranchID:      "b-pub",
			ChapterNumber: 1,
			Title:         "One",
			AccessType:    data.AccessFree,
			Status:        data.ChapterDraft,
			CreatedAt:     epoch,
			UpdatedAt:     epoch,
		}
		require.NoError(t, svc.WithTx(ctx, func(ctx context.Context, tx Tx) error {
			if err := tx.Chapters().Insert(ctx, ch); err != nil {
				return err
			}
			return tx.Chapters().Schedule(ctx, "c-pub", when, epoch)
		}))

		require.NoError(t, svc.View(ctx, func(ctx context.Context, tx Tx) error {
			due, err := tx.Chapters().DueScheduled(ctx, when)
			require.NoError(t, err)
			require.Len(t, due, 1)
			assert.Equal(t, "c-pub", due[0].ID)
			return nil
		}))

		require.NoError(t, svc.WithTx(ctx, func(ctx context.Context, tx Tx) error {
			return tx.Chapters().Publish(ctx, "c-pub", when)
		}))
		err := svc.WithTx(ctx, func(ctx context.Context, tx Tx) error {
			return tx.Chapters().Publish(ctx, "c-pub", when)
		})
		assert.ErrorIs(t, err, ErrConflict)

		require.NoError(t, svc.View(ctx, func(ctx context.Context, tx Tx) error {
			got, err := tx.Chapters().Get(ctx, "c-pub")
			require.NoError(t, err)
			assert.Equal(t, data.ChapterPublished, got.Status)
			assert.Nil(t, got.ScheduledAt)
			return nil
		}))
	})

	t.Run("publish due requires a passed schedule", func(t *testing.T) {
		seedNovel(t, svc, "n-due", "b-due")
		when := epoch.Add(time.Hour)
		ch := &data.Chapter{
			ID:            "c-due",
			BranchID:      "b-due",
			ChapterNumber: 1,
			Title:         "One",
			AccessType:    data.AccessFree,
			Status:        data.ChapterDraft,
			CreatedAt:     epoch,
			UpdatedAt:     epoch,
		}
		require.NoError(t, svc.WithTx(ctx, func(ctx context.Context, tx Tx) error {
			return tx.Chapters().Insert(ctx, ch)
		}))

		publishDue := func(now time.Time) error {
			return svc.WithTx(ctx, func(ctx context.Context, tx Tx) error {
				return tx.Chapters().PublishDue(ctx, "c-due", now)
			})
		}
		assert.ErrorIs(t, publishDue(when), ErrConflict, "draft")

		require.NoError(t, svc.WithTx(ctx, func(ctx context.Context, tx Tx) error {
			return tx.Chapters().Schedule(ctx, "c-due", when, epoch)
		}))
		assert.ErrorIs(t, publishDue(when.Add(-time.Minute)), ErrConflict, "not yet due")
		require.NoError(t, publishDue(when))
		assert.ErrorIs(t, publishDue(when), ErrConflict, "already published")
		assert.ErrorIs(t, svc.WithTx(ctx, func(ctx context.Context, tx Tx) error {
			return tx.Chapters().PublishDue(ctx, "missing", when)
		}), ErrNotFound)

		require.NoError(t, svc.View(ctx, func(ctx context.Context, tx Tx) error {
			got, err := tx.Chapters().Get(ctx, "c-due")
			require.NoError(t, err)
			assert.Equal(t, data.ChapterPublished, got.Status)
			assert.Nil(t, got.ScheduledAt)
			require.NotNil(t, got.PublishedAt)
			assert.True(t, when.Equal(*got.PublishedAt))
			return nil
		}))
	})

	t.Run("duplicate purchase is rejected", func(t *testing.T) {
		p := &data.Purchase{ID: "p-1", ReaderID: "r-9", ChapterID: "c-9", Price: 100, PurchasedAt: epoch}
		require.NoError(t, svc.WithTx(ctx, func(ctx context.Context, tx Tx) error {
			return tx.Purchases().Insert(ctx, p)
		}))
		again := *p
		again.ID = "p-2"
		err := svc.WithTx(ctx, func(ctx context.Context, tx Tx) error {
			return tx.Purchases().Insert(ctx, &again)
		})
		assert.ErrorIs(t, err, ErrDuplicate)
	})

	t.Run("subscriptions expire before the given day", func(t *testing.T) {
		today := time.Date(2026, time.February, 1, 0, 0, 0, 0, time.UTC)
		sub := &data.Subscription{
			ID:        "s-1",
			ReaderID:  "r-sub",
			PlanType:  data.PlanBasic,
			StartDate: today.AddDate(0, 0, -31),
			EndDate:   today.AddDate(0, 0, -1),
			Status:    data.SubscriptionActive,
			CreatedAt: epoch,
			UpdatedAt: epoch,
		}
		require.NoError(t, svc.WithTx(ctx, func(ctx context.Context, tx Tx) error {
			return tx.Subscriptions().Insert(ctx, sub)
		}))

		var expired int
		require.NoError(t, svc.WithTx(ctx, func(ctx context.Context, tx Tx) error {
			var err error
			expired, err = tx.Subscriptions().ExpireBefore(ctx, today, today)
			return err
		}))
		assert.Equal(t, 1, expired)

		err := svc.View(ctx, func(ctx context.Context, tx Tx) error {
			_, err := tx.Subscriptions().Current(ctx, "r-sub")
			return err
		})
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("soft deleted branch disappears from reads", func(t *testing.T) {
		seedNovel(t, svc, "n-del", "b-del-main")
		fork := &data.Branch{
			ID:          "b-del",
			NovelID:     "n-del",
			AuthorID:    "forker",
			Name:        "Gone",
			BranchType:  data.BranchFanFic,
			Visibility:  data.VisibilityPublic,
			CanonStatus: data.CanonNonCanon,
			CreatedAt:   epoch,
			UpdatedAt:   epoch,
		}
		require.NoError(t, svc.WithTx(ctx, func(ctx context.Context, tx Tx) error {
			if err := tx.Branches().Insert(ctx, fork); err != nil {
				return err
			}
			return tx.Branches().SoftDelete(ctx, "b-del", epoch)
		}))

		require.NoError(t, svc.View(ctx, func(ctx context.Context, tx Tx) error {
			_, err := tx.Branches().Get(ctx, "b-del")
			assert.ErrorIs(t, err, ErrNotFound)

			listed, err := tx.Branches().List(ctx, "n-del", data.BranchQuery{
				Visibilities: []data.Visibility{data.VisibilityPublic, data.VisibilityLinked},
			})
			require.NoError(t, err)
			require.Len(t, listed, 1)
			assert.Equal(t, "b-del-main", listed[0].ID)
			return nil
		}))
	})
}
