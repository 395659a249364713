package database

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/mAmineChniti/Forklore/internal/data"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryContract(t *testing.T) {
	runStoreContract(t, NewMemory())
}

func TestMemoryRollsBackFailedTx(t *testing.T) {
	svc := NewMemory()
	seedNovel(t, svc, "n-1", "b-1")
	boom := errors.New("boom")

	err := svc.WithTx(context.Background(), func(ctx context.Context, tx Tx) error {
		if err := tx.Branches().IncCounter(ctx, "b-1", data.BranchVoteCount, 5); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	require.NoError(t, svc.View(context.Background(), func(ctx context.Context, tx Tx) error {
		b, err := tx.Branches().Get(ctx, "b-1")
		require.NoError(t, err)
		assert.Equal(t, 0, b.VoteCount)
		return nil
	}))
}

func TestMemoryViewIsReadOnly(t *testing.T) {
	svc := NewMemory()
	seedNovel(t, svc, "n-1", "b-1")

	err := svc.View(context.Background(), func(ctx context.Context, tx Tx) error {
		return tx.Branches().IncCounter(ctx, "b-1", data.BranchViewCount, 1)
	})
	assert.ErrorIs(t, err, ErrReadOnly)
}

func TestMemoryReturnsCopies(t *testing.T) {
	svc := NewMemory()
	seedNovel(t, svc, "n-1", "b-1")

	require.NoError(t, svc.View(context.Background(), func(ctx context.Context, tx Tx) error {
		b, err := tx.Branches().Get(ctx, "b-1")
		require.NoError(t, err)
		b.Name = "mutated"
		again, err := tx.Branches().Get(ctx, "b-1")
		require.NoError(t, err)
		assert.Equal(t, "Moonfall", again.Name)
		return nil
	}))
}

func TestMemoryConcurrentIncrements(t *testing.T) {
	svc := NewMemory()
	seedNovel(t, svc, "n-1", "b-1")

	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = svc.WithTx(context.Background(), func(ctx context.Context, tx Tx) error {
				return tx.Branches().IncCounter(ctx, "b-1", data.BranchViewCount, 1)
			})
		}()
	}
	wg.Wait()

	require.NoError(t, svc.View(context.Background(), func(ctx context.Context, tx Tx) error {
		b, err := tx.Branches().Get(ctx, "b-1")
		require.NoError(t, err)
		assert.Equal(t, int64(50), b.ViewCount)
		return nil
	}))
}
