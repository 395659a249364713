package data

import (
	"errors"
	"testing"
	"time"

	"github.com/mAmineChniti/Forklore/internal/apperrors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanonStatusForwardOnly(t *testing.T) {
	tests := []struct {
		from, to CanonStatus
		want     bool
	}{
		{CanonNonCanon, CanonCandidate, true},
		{CanonNonCanon, CanonMerged, true},
		{CanonCandidate, CanonMerged, true},
		{CanonCandidate, CanonCandidate, false},
		{CanonCandidate, CanonNonCanon, false},
		{CanonMerged, CanonCandidate, false},
		{CanonMerged, CanonNonCanon, false},
		{CanonMerged, CanonMerged, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.from.CanAdvanceTo(tt.to))
			if tt.want {
				assert.Greater(t, tt.to.Rank(), tt.from.Rank())
			}
		})
	}
}

func TestVisibilityOwnerTransitions(t *testing.T) {
	assert.True(t, VisibilityPrivate.OwnerCanSet(VisibilityPublic))
	assert.True(t, VisibilityLinked.OwnerCanSet(VisibilityPrivate))
	assert.False(t, VisibilityPublic.OwnerCanSet(VisibilityLinked))
	assert.False(t, VisibilityPrivate.OwnerCanSet(Visibility("HIDDEN")))
	assert.False(t, Visibility("HIDDEN").Valid())

	assert.True(t, VisibilityLinked.Listed())
	assert.False(t, VisibilityPrivate.Listed())
}

func TestLinkRequestAndChapterFlows(t *testing.T) {
	assert.True(t, LinkRequestPending.CanTransitionTo(LinkRequestApproved))
	assert.True(t, LinkRequestPending.CanTransitionTo(LinkRequestRejected))
	assert.False(t, LinkRequestApproved.CanTransitionTo(LinkRequestRejected))
	assert.True(t, LinkRequestRejected.Terminal())

	assert.True(t, ChapterDraft.CanTransitionTo(ChapterScheduled))
	assert.True(t, ChapterScheduled.CanTransitionTo(ChapterPublished))
	assert.False(t, ChapterPublished.CanTransitionTo(ChapterScheduled))
	assert.False(t, ChapterPublished.CanTransitionTo(ChapterDraft))
}

func TestAgeRatingMinimumAge(t *testing.T) {
	assert.Equal(t, 0, AgeRatingAll.MinimumAge())
	assert.Equal(t, 12, AgeRatingR12.MinimumAge())
	assert.Equal(t, 15, AgeRatingR15.MinimumAge())
	assert.Equal(t, 19, AgeRatingR19.MinimumAge())
}

func TestUserAgeOn(t *testing.T) {
	born := time.Date(2008, time.June, 15, 0, 0, 0, 0, time.UTC)
	u := &User{BirthDate: &born}

	age, ok := u.AgeOn(time.Date(2027, time.June, 14, 0, 0, 0, 0, time.UTC))
	require.True(t, ok)
	assert.Equal(t, 18, age)

	age, _ = u.AgeOn(time.Date(2027, time.June, 15, 0, 0, 0, 0, time.UTC))
	assert.Equal(t, 19, age)

	_, ok = (&User{}).AgeOn(time.Now())
	assert.False(t, ok)
}

func TestSubscriptionActiveOn(t *testing.T) {
	today := time.Date(2026, time.March, 10, 0, 0, 0, 0, time.UTC)
	sub := &Subscription{Status: SubscriptionActive, EndDate: today}

	assert.True(t, sub.ActiveOn(today))
	assert.False(t, sub.ActiveOn(today.AddDate(0, 0, 1)))

	sub.Status = SubscriptionCancelled
	assert.False(t, sub.ActiveOn(today))
}

func TestNewMainBranch(t *testing.T) {
	now := time.Now().UTC()
	novel := &Novel{ID: "n-1", AuthorID: "u-1", Title: "Moonfall", Description: "desc"}

	b := NewMainBranch("b-1", novel, now)

	assert.True(t, b.IsMain)
	assert.Equal(t, VisibilityPublic, b.Visibility)
	assert.Equal(t, CanonNonCanon, b.CanonStatus)
	assert.Equal(t, BranchMain, b.BranchType)
	assert.Equal(t, "Moonfall", b.Name)
	assert.Equal(t, DefaultVoteThreshold, b.VoteThreshold)
	assert.Nil(t, b.ParentBranchID)
}

func TestBranchHiddenFrom(t *testing.T) {
	private := &Branch{AuthorID: "author", Visibility: VisibilityPrivate}
	public := &Branch{AuthorID: "author", Visibility: VisibilityPublic}

	assert.False(t, private.HiddenFrom("author"))
	assert.True(t, private.HiddenFrom("reader"))
	assert.True(t, private.HiddenFrom(""))
	assert.False(t, public.HiddenFrom("reader"))
}

func TestChapterVisibleTo(t *testing.T) {
	public := &Branch{AuthorID: "author", Visibility: VisibilityPublic}
	private := &Branch{AuthorID: "author", Visibility: VisibilityPrivate}
	published := &Chapter{Status: ChapterPublished}
	scheduled := &Chapter{Status: ChapterScheduled}

	assert.True(t, published.VisibleTo(public, "reader"))
	assert.False(t, scheduled.VisibleTo(public, "reader"))
	assert.False(t, published.VisibleTo(private, "reader"))
	assert.True(t, scheduled.VisibleTo(private, "author"))
}

func TestChapterIsFree(t *testing.T) {
	assert.True(t, (&Chapter{AccessType: AccessFree}).IsFree())
	assert.False(t, (&Chapter{AccessType: AccessSubscription}).IsFree())
	assert.False(t, (&Chapter{}).IsFree())
	assert.False(t, (&Chapter{AccessType: "PREMIUM"}).IsFree())
}

func TestValidateForkRequest(t *testing.T) {
	zero := 0
	err := Validate(&ForkRequest{Name: "If only", ForkPointChapter: &zero, BranchType: BranchMain})

	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrInvalidArgument))

	var appErr *apperrors.Error
	require.True(t, errors.As(err, &appErr))
	assert.Contains(t, appErr.Metadata, "ForkPointChapter")
	assert.Contains(t, appErr.Metadata, "BranchType")

	one := 1
	assert.NoError(t, Validate(&ForkRequest{Name: "If only", ForkPointChapter: &one}))
}

func TestPaginationNormalize(t *testing.T) {
	p := Pagination{}.Normalize()
	assert.Equal(t, 1, p.Page)
	assert.Equal(t, 20, p.Limit)
	assert.Equal(t, 20, Pagination{Page: 2, Limit: 20}.Skip())
}
