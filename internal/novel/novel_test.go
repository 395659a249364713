package novel

import (
	"context"
	"testing"

	"github.com/mAmineChniti/Forklore/internal/apperrors"
	"github.com/mAmineChniti/Forklore/internal/branch"
	"github.com/mAmineChniti/Forklore/internal/data"
	"github.com/mAmineChniti/Forklore/internal/testkit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newService(t *testing.T) (*Service, *branch.Manager, *testkit.Env) {
	env := testkit.NewEnv(t)
	branches := branch.NewManager(env.DB, env.Clock, env.Logger, env.Events)
	return NewService(env.DB, branches, env.Clock, env.Logger), branches, env
}

func TestCreateBuildsMainBranch(t *testing.T) {
	s, branches, _ := newService(t)
	ctx := context.Background()

	n, main, err := s.Create(ctx, "author-1", data.NovelCreateRequest{
		Title:       "Moonfall",
		Description: "The moon fell on a Tuesday.",
		Genre:       "fantasy",
	})
	require.NoError(t, err)

	assert.Equal(t, data.AgeRatingAll, n.AgeRating)
	assert.True(t, n.AllowBranching)
	assert.Equal(t, 1, n.BranchCount)
	assert.Equal(t, data.NovelOngoing, n.Status)

	assert.True(t, main.IsMain)
	assert.Equal(t, "author-1", main.AuthorID)
	assert.Equal(t, data.VisibilityPublic, main.Visibility)
	assert.Equal(t, data.BranchMain, main.BranchType)
	assert.Equal(t, "Moonfall", main.Name)
	assert.Nil(t, main.ParentBranchID)

	got, err := branches.GetMain(ctx, n.ID)
	require.NoError(t, err)
	assert.Equal(t, main.ID, got.ID)
}

func TestCreateValidates(t *testing.T) {
	s, _, _ := newService(t)
	_, _, err := s.Create(context.Background(), "author-1", data.NovelCreateRequest{Title: "No genre"})
	assert.ErrorIs(t, err, apperrors.ErrInvalidArgument)
	_, _, err = s.Create(context.Background(), "author-1", data.NovelCreateRequest{Title: "x", Genre: "y", AgeRating: "R21"})
	assert.ErrorIs(t, err, apperrors.ErrInvalidArgument)
}

func TestUpdateAndDelete(t *testing.T) {
	s, _, _ := newService(t)
	ctx := context.Background()
	closed := false
	n, _, err := s.Create(ctx, "author-1", data.NovelCreateRequest{Title: "Moonfall", Genre: "fantasy", AllowBranching: &closed})
	require.NoError(t, err)
	assert.False(t, n.AllowBranching)

	_, err = s.Update(ctx, "reader-1", n.ID, data.NovelUpdateRequest{})
	assert.ErrorIs(t, err, apperrors.ErrPermission)

	open := true
	rating := data.AgeRatingR15
	updated, err := s.Update(ctx, "author-1", n.ID, data.NovelUpdateRequest{AllowBranching: &open, AgeRating: &rating})
	require.NoError(t, err)
	assert.True(t, updated.AllowBranching)
	assert.Equal(t, data.AgeRatingR15, updated.AgeRating)
	assert.Equal(t, "Moonfall", updated.Title)

	assert.ErrorIs(t, s.Delete(ctx, "reader-1", n.ID), apperrors.ErrPermission)
	require.NoError(t, s.Delete(ctx, "author-1", n.ID))
	_, err = s.Get(ctx, n.ID)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestListByGenre(t *testing.T) {
	s, _, _ := newService(t)
	ctx := context.Background()
	for _, genre := range []string{"fantasy", "fantasy", "romance"} {
		_, _, err := s.Create(ctx, "author-1", data.NovelCreateRequest{Title: "t", Genre: genre})
		require.NoError(t, err)
	}

	fantasy, err := s.List(ctx, data.NovelQuery{Genre: "fantasy"})
	require.NoError(t, err)
	assert.Len(t, fantasy, 2)

	all, err := s.List(ctx, data.NovelQuery{Pagination: data.Pagination{Page: 1, Limit: 2}})
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestListByStatus(t *testing.T) {
	s, _, _ := newService(t)
	ctx := context.Background()
	done, _, err := s.Create(ctx, "author-1", data.NovelCreateRequest{Title: "Done", Genre: "fantasy"})
	require.NoError(t, err)
	_, _, err = s.Create(ctx, "author-1", data.NovelCreateRequest{Title: "Going", Genre: "fantasy"})
	require.NoError(t, err)
	_, _, err = s.Create(ctx, "author-1", data.NovelCreateRequest{Title: "Elsewhere", Genre: "romance"})
	require.NoError(t, err)
	completed := data.NovelCompleted
	_, err = s.Update(ctx, "author-1", done.ID, data.NovelUpdateRequest{Status: &completed})
	require.NoError(t, err)

	got, err := s.List(ctx, data.NovelQuery{Status: data.NovelCompleted})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, done.ID, got[0].ID)

	ongoing, err := s.List(ctx, data.NovelQuery{Genre: "fantasy", Status: data.NovelOngoing})
	require.NoError(t, err)
	require.Len(t, ongoing, 1)
	assert.Equal(t, "Going", ongoing[0].Title)

	_, err = s.List(ctx, data.NovelQuery{Status: "ABANDONED"})
	assert.ErrorIs(t, err, apperrors.ErrInvalidArgument)
}
