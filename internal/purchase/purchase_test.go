package purchase

import (
	"context"
	"sync"
	"testing"

	"github.com/mAmineChniti/Forklore/internal/access"
	"github.com/mAmineChniti/Forklore/internal/apperrors"
	"github.com/mAmineChniti/Forklore/internal/data"
	"github.com/mAmineChniti/Forklore/internal/events"
	"github.com/mAmineChniti/Forklore/internal/testkit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPurchaseGrantsAccess(t *testing.T) {
	env := testkit.NewEnv(t)
	s := NewService(env.DB, env.Clock, env.Logger, env.Events)
	resolver := access.NewResolver(env.DB, env.Clock)
	_, main := env.Novel(t, "author-1")
	paid := env.Chapter(t, main.ID, data.AccessSubscription, 100, data.ChapterPublished)
	env.User(t, "reader-1", nil)
	ctx := context.Background()

	ok, err := resolver.CanAccessChapter(ctx, "reader-1", paid.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	p, err := s.Purchase(ctx, "reader-1", paid.ID)
	require.NoError(t, err)
	assert.Equal(t, 100, p.Price)
	assert.Equal(t, testkit.Epoch, p.PurchasedAt)

	ok, err = resolver.CanAccessChapter(ctx, "reader-1", paid.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	bought, err := s.HasPurchased(ctx, "reader-1", paid.ID)
	require.NoError(t, err)
	assert.True(t, bought)

	list, err := s.List(ctx, "reader-1")
	require.NoError(t, err)
	assert.Len(t, list, 1)
	assert.Equal(t, []events.Type{events.PurchaseCreated}, env.Events.Types())
}

func TestPurchaseFailures(t *testing.T) {
	env := testkit.NewEnv(t)
	s := NewService(env.DB, env.Clock, env.Logger, env.Events)
	_, main := env.Novel(t, "author-1")
	free := env.Chapter(t, main.ID, data.AccessFree, 0, data.ChapterPublished)
	unpublished := env.Chapter(t, main.ID, data.AccessSubscription, 100, data.ChapterDraft)
	paid := env.Chapter(t, main.ID, data.AccessSubscription, 100, data.ChapterPublished)
	env.User(t, "reader-1", nil)
	ctx := context.Background()

	_, err := s.Purchase(ctx, "ghost", paid.ID)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	_, err = s.Purchase(ctx, "reader-1", "nope")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	_, err = s.Purchase(ctx, "reader-1", free.ID)
	assert.ErrorIs(t, err, apperrors.ErrInvalidState)
	_, err = s.Purchase(ctx, "reader-1", unpublished.ID)
	assert.ErrorIs(t, err, apperrors.ErrInvalidState)

	_, err = s.Purchase(ctx, "reader-1", paid.ID)
	require.NoError(t, err)
	_, err = s.Purchase(ctx, "reader-1", paid.ID)
	assert.ErrorIs(t, err, apperrors.ErrInvalidState)
}

func TestConcurrentDuplicatePurchases(t *testing.T) {
	env := testkit.NewEnv(t)
	s := NewService(env.DB, env.Clock, env.Logger, env.Events)
	_, main := env.Novel(t, "author-1")
	paid := env.Chapter(t, main.ID, data.AccessSubscription, 100, data.ChapterPublished)
	env.User(t, "reader-1", nil)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
	)
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.Purchase(context.Background(), "reader-1", paid.ID); err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, succeeded)
	list, err := s.List(context.Background(), "reader-1")
	require.NoError(t, err)
	assert.Len(t, list, 1)
}
