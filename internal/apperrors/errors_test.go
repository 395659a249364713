package apperrors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsMatchesByKind(t *testing.T) {
	err := NotFound("branch", "b-1")

	assert.True(t, errors.Is(err, ErrNotFound))
	assert.False(t, errors.Is(err, ErrPermission))
	assert.Equal(t, "b-1", err.Metadata["id"])
}

func TestKindOfWrapped(t *testing.T) {
	err := fmt.Errorf("vote: %w", InvalidState("branch_vote", "r:b", "already voted"))

	assert.Equal(t, KindInvalidState, KindOf(err))
	assert.True(t, errors.Is(err, ErrInvalidState))
	assert.Equal(t, Kind(""), KindOf(errors.New("boom")))
}

func TestWrapUnwrapsCause(t *testing.T) {
	cause := errors.New("duplicate key")
	err := Wrap(KindInvalidState, "already purchased", cause)

	assert.ErrorIs(t, err, cause)
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		kind Kind
		want int
	}{
		{KindNotFound, http.StatusNotFound},
		{KindPermission, http.StatusForbidden},
		{KindInvalidState, http.StatusConflict},
		{KindInvalidArgument, http.StatusBadRequest},
		{Kind("other"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.kind.HTTPStatus())
		})
	}
}
