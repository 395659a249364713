package linkrequest

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/mAmineChniti/Forklore/internal/apperrors"
	"github.com/mAmineChniti/Forklore/internal/branch"
	"github.com/mAmineChniti/Forklore/internal/data"
	"github.com/mAmineChniti/Forklore/internal/events"
	"github.com/mAmineChniti/Forklore/internal/testkit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newWorkflow(t *testing.T) (*Workflow, *testkit.Env) {
	env := testkit.NewEnv(t)
	branches := branch.NewManager(env.DB, env.Clock, env.Logger, env.Events)
	return NewWorkflow(env.DB, branches, env.Clock, env.Logger, env.Events), env
}

func TestRequestLinkTwiceWhilePending(t *testing.T) {
	w, env := newWorkflow(t)
	_, main := env.Novel(t, "author-1")
	b := env.Fork(t, main, "writer-1", data.VisibilityPublic)

	first, err := w.RequestLink(context.Background(), b.ID, "writer-1", "Please link my tide story")
	require.NoError(t, err)
	assert.Equal(t, data.LinkRequestPending, first.Status)
	assert.Equal(t, main.NovelID, first.NovelID)
	assert.Nil(t, first.ReviewerID)

	_, err = w.RequestLink(context.Background(), b.ID, "writer-1", "again")
	assert.ErrorIs(t, err, apperrors.ErrInvalidState)
}

func TestRequestLinkFailures(t *testing.T) {
	w, env := newWorkflow(t)
	_, main := env.Novel(t, "author-1")
	b := env.Fork(t, main, "writer-1", data.VisibilityPublic)

	tests := []struct {
		name      string
		branchID  string
		requester string
		message   string
		want      error
	}{
		{"missing branch", "nope", "writer-1", "", apperrors.ErrNotFound},
		{"not branch author", b.ID, "author-1", "", apperrors.ErrPermission},
		{"main branch", main.ID, "author-1", "", apperrors.ErrInvalidState},
		{"message too long", b.ID, "writer-1", strings.Repeat("x", 1001), apperrors.ErrInvalidArgument},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := w.RequestLink(context.Background(), tt.branchID, tt.requester, tt.message)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestApproveLinksBranch(t *testing.T) {
	w, env := newWorkflow(t)
	novel, main := env.Novel(t, "author-1")
	b := env.Fork(t, main, "writer-1", data.VisibilityPrivate)
	other := env.Fork(t, main, "writer-1", data.VisibilityPublic)

	req, err := w.RequestLink(context.Background(), b.ID, "writer-1", "")
	require.NoError(t, err)
	otherReq, err := w.RequestLink(context.Background(), other.ID, "writer-1", "")
	require.NoError(t, err)

	// the branch author cannot approve their own request
	_, err = w.ApproveLink(context.Background(), otherReq.ID, "writer-1", "")
	assert.ErrorIs(t, err, apperrors.ErrPermission)

	approved, err := w.ApproveLink(context.Background(), req.ID, "author-1", "Welcome aboard")
	require.NoError(t, err)
	assert.Equal(t, data.LinkRequestApproved, approved.Status)
	require.NotNil(t, approved.ReviewerID)
	assert.Equal(t, "author-1", *approved.ReviewerID)
	assert.Equal(t, "Welcome aboard", approved.ReviewComment)
	assert.Equal(t, testkit.Epoch, *approved.ReviewedAt)
	assert.Equal(t, data.VisibilityLinked, env.Branch(t, b.ID).Visibility)

	_, err = w.ApproveLink(context.Background(), req.ID, "author-1", "")
	assert.ErrorIs(t, err, apperrors.ErrInvalidState)
	_, err = w.RequestLink(context.Background(), b.ID, "writer-1", "")
	assert.ErrorIs(t, err, apperrors.ErrInvalidState)

	inbox, err := w.ListForNovel(context.Background(), "author-1", novel.ID, data.LinkRequestPending)
	require.NoError(t, err)
	require.Len(t, inbox, 1)
	assert.Equal(t, otherReq.ID, inbox[0].ID)

	assert.Equal(t, []events.Type{
		events.LinkRequestCreated,
		events.LinkRequestCreated,
		events.LinkRequestApproved,
	}, env.Events.Types())
}

func TestRejectKeepsVisibility(t *testing.T) {
	w, env := newWorkflow(t)
	_, main := env.Novel(t, "author-1")
	b := env.Fork(t, main, "writer-1", data.VisibilityPublic)

	req, err := w.RequestLink(context.Background(), b.ID, "writer-1", "")
	require.NoError(t, err)

	rejected, err := w.RejectLink(context.Background(), req.ID, "author-1", "Not this time")
	require.NoError(t, err)
	assert.Equal(t, data.LinkRequestRejected, rejected.Status)
	assert.Equal(t, data.VisibilityPublic, env.Branch(t, b.ID).Visibility)

	_, err = w.ApproveLink(context.Background(), req.ID, "author-1", "")
	assert.ErrorIs(t, err, apperrors.ErrInvalidState)

	// a rejected request does not block a new one
	_, err = w.RequestLink(context.Background(), b.ID, "writer-1", "Second try")
	assert.NoError(t, err)
}

func TestReviewMissingRequest(t *testing.T) {
	w, _ := newWorkflow(t)
	_, err := w.ApproveLink(context.Background(), "nope", "author-1", "")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	_, err = w.RejectLink(context.Background(), "nope", "author-1", "")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestConcurrentReviewsProduceOneTerminalState(t *testing.T) {
	w, env := newWorkflow(t)
	_, main := env.Novel(t, "author-1")
	b := env.Fork(t, main, "writer-1", data.VisibilityPublic)
	req, err := w.RequestLink(context.Background(), b.ID, "writer-1", "")
	require.NoError(t, err)

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins []data.LinkRequestStatus
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(approve bool) {
			defer wg.Done()
			review := w.RejectLink
			if approve {
				review = w.ApproveLink
			}
			got, err := review(context.Background(), req.ID, "author-1", "")
			if err != nil {
				assert.ErrorIs(t, err, apperrors.ErrInvalidState)
				return
			}
			mu.Lock()
			wins = append(wins, got.Status)
			mu.Unlock()
		}(i%2 == 0)
	}
	wg.Wait()

	require.Len(t, wins, 1)
	stored, err := w.Get(context.Background(), "author-1", req.ID)
	require.NoError(t, err)
	assert.Equal(t, wins[0], stored.Status)

	want := data.VisibilityPublic
	if wins[0] == data.LinkRequestApproved {
		want = data.VisibilityLinked
	}
	assert.Equal(t, want, env.Branch(t, b.ID).Visibility)
}

func TestGetAndInboxPermissions(t *testing.T) {
	w, env := newWorkflow(t)
	novel, main := env.Novel(t, "author-1")
	b := env.Fork(t, main, "writer-1", data.VisibilityPublic)
	req, err := w.RequestLink(context.Background(), b.ID, "writer-1", "")
	require.NoError(t, err)

	_, err = w.Get(context.Background(), "writer-1", req.ID)
	assert.NoError(t, err)
	_, err = w.Get(context.Background(), "stranger", req.ID)
	assert.ErrorIs(t, err, apperrors.ErrPermission)

	_, err = w.ListForNovel(context.Background(), "writer-1", novel.ID, "")
	assert.ErrorIs(t, err, apperrors.ErrPermission)
	_, err = w.ListForNovel(context.Background(), "author-1", novel.ID, "DONE")
	assert.ErrorIs(t, err, apperrors.ErrInvalidArgument)

	all, err := w.ListForNovel(context.Background(), "author-1", novel.ID, "")
	require.NoError(t, err)
	assert.Len(t, all, 1)
}
