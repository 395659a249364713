// Package user keeps the local profile of identity-provider principals.
package user

import (
	"context"

	"github.com/mAmineChniti/Forklore/internal/apperrors"
	"github.com/mAmineChniti/Forklore/internal/clock"
	"github.com/mAmineChniti/Forklore/internal/data"
	"github.com/mAmineChniti/Forklore/internal/database"
)

type Service struct {
	db    database.Service
	clock clock.Clock
}

func NewService(db database.Service, clk clock.Clock) *Service {
	return &Service{db: db, clock: clk}
}

// Sync creates or replaces the profile of the principal id. The birth date drives
// the age-rating checks; it is stored as a calendar day.
func (s *Service) Sync(ctx context.Context, id string, profile data.UserProfile) (*data.User, error) {
	if id == "" {
		return nil, apperrors.InvalidArgument("id", "user id is required")
	}
	if err := data.Validate(&profile); err != nil {
		return nil, err
	}
	now := s.clock.Now()
	if profile.BirthDate != nil {
		day := clock.Day(*profile.BirthDate)
		if day.After(now) {
			return nil, apperrors.InvalidArgument("birth_date", "birth date cannot be in the future")
		}
		profile.BirthDate = &day
	}

	u := &data.User{
		ID:        id,
		Nickname:  profile.Nickname,
		Email:     profile.Email,
		BirthDate: profile.BirthDate,
		CreatedAt: now,
		UpdatedAt: now,
	}
	err := s.db.WithTx(ctx, func(ctx context.Context, tx database.Tx) error {
		return tx.Users().Upsert(ctx, u)
	})
	if err != nil {
		return nil, err
	}
	return u, nil
}

func (s *Service) Get(ctx context.Context, id string) (*data.User, error) {
	var u *data.User
	err := s.db.View(ctx, func(ctx context.Context, tx database.Tx) error {
		var err error
		u, err = tx.Users().Get(ctx, id)
		return database.WrapLookup(err, "user", id)
	})
	if err != nil {
		return nil, err
	}
	return u, nil
}
