package access

import (
	"context"
	"testing"
	"time"

	"github.com/mAmineChniti/Forklore/internal/apperrors"
	"github.com/mAmineChniti/Forklore/internal/data"
	"github.com/mAmineChniti/Forklore/internal/database"
	"github.com/mAmineChniti/Forklore/internal/testkit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedSubscription(t *testing.T, env *testkit.Env, readerID string, status data.SubscriptionStatus, end time.Time) {
	t.Helper()
	require.NoError(t, env.DB.WithTx(context.Background(), func(ctx context.Context, tx database.Tx) error {
		return tx.Subscriptions().Insert(ctx, &data.Subscription{
			ID:        readerID + "-sub",
			ReaderID:  readerID,
			PlanType:  data.PlanBasic,
			StartDate: end.AddDate(0, 0, -30),
			EndDate:   end,
			Status:    status,
		})
	}))
}

func TestFreeChapterOpenToAnonymous(t *testing.T) {
	env := testkit.NewEnv(t)
	r := NewResolver(env.DB, env.Clock)
	_, main := env.Novel(t, "author-1")
	c := env.Chapter(t, main.ID, data.AccessFree, 0, data.ChapterPublished)

	ok, err := r.CanAccessChapter(context.Background(), "", c.ID)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestPaidChapterDecisions(t *testing.T) {
	env := testkit.NewEnv(t)
	r := NewResolver(env.DB, env.Clock)
	_, main := env.Novel(t, "author-1")
	paid := env.Chapter(t, main.ID, data.AccessSubscription, 100, data.ChapterPublished)
	today := time.Date(2025, time.March, 1, 0, 0, 0, 0, time.UTC)

	seedSubscription(t, env, "subscriber", data.SubscriptionActive, today)
	seedSubscription(t, env, "lapsed", data.SubscriptionActive, today.AddDate(0, 0, -1))
	seedSubscription(t, env, "cancelled", data.SubscriptionCancelled, today.AddDate(0, 0, 10))
	require.NoError(t, env.DB.WithTx(context.Background(), func(ctx context.Context, tx database.Tx) error {
		return tx.Purchases().Insert(ctx, &data.Purchase{ID: "p-1", ReaderID: "buyer", ChapterID: paid.ID, Price: 100})
	}))

	price := 100
	tests := []struct {
		name   string
		reader string
		want   Decision
	}{
		{"anonymous", "", Decision{Reason: ReasonLoginRequired}},
		{"no entitlement", "reader-1", Decision{Reason: ReasonEntitlementRequired, RequiredPrice: &price}},
		{"purchased without subscription", "buyer", Decision{Allowed: true}},
		{"subscription ends today", "subscriber", Decision{Allowed: true}},
		{"subscription ended yesterday", "lapsed", Decision{Reason: ReasonEntitlementRequired, RequiredPrice: &price}},
		{"cancelled subscription", "cancelled", Decision{Reason: ReasonEntitlementRequired, RequiredPrice: &price}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := r.CheckAccess(context.Background(), tt.reader, paid.ID)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)

			ok, err := r.CanAccessChapter(context.Background(), tt.reader, paid.ID)
			require.NoError(t, err)
			assert.Equal(t, tt.want.Allowed, ok)
		})
	}
}

func TestCheckAccessMissingChapter(t *testing.T) {
	env := testkit.NewEnv(t)
	r := NewResolver(env.DB, env.Clock)

	_, err := r.CheckAccess(context.Background(), "reader-1", "nope")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	_, err = r.CanAccessChapter(context.Background(), "", "nope")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestCheckAgeRating(t *testing.T) {
	env := testkit.NewEnv(t)
	r := NewResolver(env.DB, env.Clock)
	// the clock reads 2025-03-01
	env.User(t, "turns-19-today", testkit.Date(2006, time.March, 1))
	env.User(t, "turns-19-tomorrow", testkit.Date(2006, time.March, 2))
	env.User(t, "twelve", testkit.Date(2012, time.January, 15))
	env.User(t, "unknown-age", nil)

	novels := map[data.AgeRating]string{}
	for _, rating := range []data.AgeRating{data.AgeRatingAll, data.AgeRatingR12, data.AgeRatingR15, data.AgeRatingR19} {
		n, _ := env.Novel(t, "author-1", func(n *data.Novel) { n.AgeRating = rating })
		novels[rating] = n.ID
	}

	tests := []struct {
		reader string
		rating data.AgeRating
		want   bool
	}{
		{"turns-19-today", data.AgeRatingR19, true},
		{"turns-19-tomorrow", data.AgeRatingR19, false},
		{"turns-19-tomorrow", data.AgeRatingR15, true},
		{"twelve", data.AgeRatingR12, true},
		{"twelve", data.AgeRatingR15, false},
		{"twelve", data.AgeRatingAll, true},
		{"unknown-age", data.AgeRatingAll, false},
		{"unknown-age", data.AgeRatingR12, false},
		{"", data.AgeRatingAll, false},
	}
	for _, tt := range tests {
		t.Run(tt.reader+"/"+string(tt.rating), func(t *testing.T) {
			ok, err := r.CheckAgeRating(context.Background(), tt.reader, novels[tt.rating])
			require.NoError(t, err)
			assert.Equal(t, tt.want, ok)
		})
	}

	_, err := r.CheckAgeRating(context.Background(), "ghost", novels[data.AgeRatingAll])
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	_, err = r.CheckAgeRating(context.Background(), "twelve", "nope")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestCheckChapterAgeRating(t *testing.T) {
	env := testkit.NewEnv(t)
	r := NewResolver(env.DB, env.Clock)
	env.User(t, "twelve", testkit.Date(2012, time.January, 15))
	_, main := env.Novel(t, "author-1", func(n *data.Novel) { n.AgeRating = data.AgeRatingR15 })
	c := env.Chapter(t, main.ID, data.AccessFree, 0, data.ChapterPublished)

	ok, err := r.CheckChapterAgeRating(context.Background(), "twelve", c.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = r.CheckChapterAgeRating(context.Background(), "twelve", "nope")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestCheckAccessHidesUnseenChapters(t *testing.T) {
	env := testkit.NewEnv(t)
	r := NewResolver(env.DB, env.Clock)
	_, main := env.Novel(t, "author-1")
	draft := env.Chapter(t, main.ID, data.AccessSubscription, 100, data.ChapterDraft)
	private := env.Fork(t, main, "author-2", data.VisibilityPrivate)
	secret := env.Chapter(t, private.ID, data.AccessSubscription, 300, data.ChapterPublished)

	for _, id := range []string{draft.ID, secret.ID} {
		for _, reader := range []string{"", "reader-1"} {
			d, err := r.CheckAccess(context.Background(), reader, id)
			assert.ErrorIs(t, err, apperrors.ErrNotFound)
			assert.Nil(t, d.RequiredPrice)

			ok, err := r.CanAccessChapter(context.Background(), reader, id)
			assert.ErrorIs(t, err, apperrors.ErrNotFound)
			assert.False(t, ok)
		}
	}

	price := 100
	d, err := r.CheckAccess(context.Background(), "author-1", draft.ID)
	require.NoError(t, err)
	assert.Equal(t, Decision{Reason: ReasonEntitlementRequired, RequiredPrice: &price}, d)

	_, err = r.CheckAccess(context.Background(), "author-2", secret.ID)
	require.NoError(t, err)
}

func TestUnknownAccessTypeNeedsEntitlement(t *testing.T) {
	env := testkit.NewEnv(t)
	r := NewResolver(env.DB, env.Clock)
	_, main := env.Novel(t, "author-1")
	c := env.Chapter(t, main.ID, data.AccessType(""), 40, data.ChapterPublished)

	ok, err := r.CanAccessChapter(context.Background(), "reader-1", c.ID)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestChecksDoNotMutate(t *testing.T) {
	env := testkit.NewEnv(t)
	r := NewResolver(env.DB, env.Clock)
	_, main := env.Novel(t, "author-1")
	c := env.Chapter(t, main.ID, data.AccessSubscription, 50, data.ChapterPublished)
	before := *env.ChapterByID(t, c.ID)

	_, err := r.CheckAccess(context.Background(), "reader-1", c.ID)
	require.NoError(t, err)
	assert.Equal(t, before, *env.ChapterByID(t, c.ID))
}
