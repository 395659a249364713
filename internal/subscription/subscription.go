// Package subscription runs reader subscriptions: sign-up, cancellation, plan
// changes and the daily expire and renew sweeps.
package subscription

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mAmineChniti/Forklore/internal/apperrors"
	"github.com/mAmineChniti/Forklore/internal/clock"
	"github.com/mAmineChniti/Forklore/internal/data"
	"github.com/mAmineChniti/Forklore/internal/database"
	"github.com/mAmineChniti/Forklore/internal/events"
	"github.com/mAmineChniti/Forklore/internal/metrics"
	"go.uber.org/zap"
)

const entity = "subscription"

type Service struct {
	db     database.Service
	clock  clock.Clock
	logger *zap.Logger
	events events.Publisher
}

func NewService(db database.Service, clk clock.Clock, logger *zap.Logger, pub events.Publisher) *Service {
	return &Service{db: db, clock: clk, logger: logger.Named("subscription"), events: pub}
}

// Subscribe starts a plan today. A reader holds at most one active subscription; a
// stale ACTIVE row past its end date is expired on the way.
func (s *Service) Subscribe(ctx context.Context, readerID string, req data.SubscribeRequest) (*data.Subscription, error) {
	if err := data.Validate(&req); err != nil {
		return nil, err
	}

	var created *data.Subscription
	err := s.db.WithTx(ctx, func(ctx context.Context, tx database.Tx) error {
		if _, err := tx.Users().Get(ctx, readerID); err != nil {
			return database.WrapLookup(err, "user", readerID)
		}
		now := s.clock.Now()
		today := clock.Day(now)

		cur, err := tx.Subscriptions().Current(ctx, readerID)
		switch {
		case err == nil && cur.ActiveOn(today):
			return apperrors.InvalidState(entity, cur.ID, "reader already has an active subscription")
		case err == nil:
			cur.Status = data.SubscriptionExpired
			cur.UpdatedAt = now
			if err := tx.Subscriptions().Update(ctx, cur); err != nil {
				return fmt.Errorf("expire stale subscription: %w", err)
			}
		case !errors.Is(err, database.ErrNotFound):
			return fmt.Errorf("load current subscription: %w", err)
		}

		sub := &data.Subscription{
			ID:        uuid.NewString(),
			ReaderID:  readerID,
			PlanType:  req.PlanType,
			StartDate: today,
			EndDate:   today.Add(req.PlanType.Period()),
			Status:    data.SubscriptionActive,
			AutoRenew: req.AutoRenew,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := tx.Subscriptions().Insert(ctx, sub); err != nil {
			if errors.Is(err, database.ErrDuplicate) {
				return apperrors.InvalidState(entity, readerID, "reader already has an active subscription")
			}
			return fmt.Errorf("insert subscription: %w", err)
		}
		created = sub
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.SubscriptionsTotal.WithLabelValues("subscribe").Inc()
	events.Emit(ctx, s.events, s.logger, events.New(events.SubscriptionCreated, created.ID, readerID, created.CreatedAt,
		map[string]string{"plan_type": string(created.PlanType)}))
	return created, nil
}

// activeNow loads the reader's subscription that grants access today.
func activeNow(ctx context.Context, tx database.Tx, readerID string, today time.Time) (*data.Subscription, error) {
	sub, err := tx.Subscriptions().Current(ctx, readerID)
	if errors.Is(err, database.ErrNotFound) || (err == nil && !sub.ActiveOn(today)) {
		return nil, apperrors.InvalidState(entity, readerID, "reader has no active subscription")
	}
	if err != nil {
		return nil, fmt.Errorf("load current subscription: %w", err)
	}
	return sub, nil
}

// Cancel ends the subscription now and turns auto-renew off. Access stops with it.
func (s *Service) Cancel(ctx context.Context, readerID string) (*data.Subscription, error) {
	var cancelled *data.Subscription
	err := s.db.WithTx(ctx, func(ctx context.Context, tx database.Tx) error {
		now := s.clock.Now()
		sub, err := activeNow(ctx, tx, readerID, clock.Day(now))
		if err != nil {
			return err
		}
		sub.Status = data.SubscriptionCancelled
		sub.AutoRenew = false
		sub.CancelledAt = &now
		sub.UpdatedAt = now
		if err := tx.Subscriptions().Update(ctx, sub); err != nil {
			return database.WrapLookup(err, entity, sub.ID)
		}
		cancelled = sub
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.SubscriptionsTotal.WithLabelValues("cancel").Inc()
	events.Emit(ctx, s.events, s.logger, events.New(events.SubscriptionCancelled, cancelled.ID, readerID, *cancelled.CancelledAt,
		map[string]string{"plan_type": string(cancelled.PlanType)}))
	return cancelled, nil
}

// ChangePlan switches the plan and recomputes the end date from the start date.
func (s *Service) ChangePlan(ctx context.Context, readerID string, req data.ChangePlanRequest) (*data.Subscription, error) {
	if err := data.Validate(&req); err != nil {
		return nil, err
	}

	var changed *data.Subscription
	err := s.db.WithTx(ctx, func(ctx context.Context, tx database.Tx) error {
		now := s.clock.Now()
		sub, err := activeNow(ctx, tx, readerID, clock.Day(now))
		if err != nil {
			return err
		}
		sub.PlanType = req.PlanType
		sub.EndDate = sub.StartDate.Add(req.PlanType.Period())
		sub.UpdatedAt = now
		if err := tx.Subscriptions().Update(ctx, sub); err != nil {
			return database.WrapLookup(err, entity, sub.ID)
		}
		changed = sub
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.SubscriptionsTotal.WithLabelValues("change_plan").Inc()
	return changed, nil
}

// Status returns the subscription granting access today, or nil when there is none.
func (s *Service) Status(ctx context.Context, readerID string) (*data.Subscription, error) {
	var sub *data.Subscription
	err := s.db.View(ctx, func(ctx context.Context, tx database.Tx) error {
		cur, err := tx.Subscriptions().Current(ctx, readerID)
		if errors.Is(err, database.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if cur.ActiveOn(clock.Today(s.clock)) {
			sub = cur
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return sub, nil
}

// History lists every subscription the reader ever held, newest first.
func (s *Service) History(ctx context.Context, readerID string) ([]data.Subscription, error) {
	var out []data.Subscription
	err := s.db.View(ctx, func(ctx context.Context, tx database.Tx) error {
		var err error
		out, err = tx.Subscriptions().List(ctx, readerID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ExpireSubscriptions marks ACTIVE subscriptions whose end date has passed as EXPIRED.
func (s *Service) ExpireSubscriptions(ctx context.Context) (int, error) {
	var n int
	err := s.db.WithTx(ctx, func(ctx context.Context, tx database.Tx) error {
		now := s.clock.Now()
		var err error
		n, err = tx.Subscriptions().ExpireBefore(ctx, clock.Day(now), now)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("expire subscriptions: %w", err)
	}
	if n > 0 {
		metrics.SubscriptionsTotal.WithLabelValues("expire").Add(float64(n))
		s.logger.Info("subscriptions expired", zap.Int("count", n))
	}
	return n, nil
}

// RenewSubscriptions rolls auto-renewing subscriptions that end today into their next
// period. Running it twice on the same day renews nothing the second time.
func (s *Service) RenewSubscriptions(ctx context.Context) (int, error) {
	var n int
	err := s.db.WithTx(ctx, func(ctx context.Context, tx database.Tx) error {
		n = 0
		now := s.clock.Now()
		due, err := tx.Subscriptions().DueRenewal(ctx, clock.Day(now))
		if err != nil {
			return err
		}
		for i := range due {
			sub := &due[i]
			sub.StartDate = sub.EndDate
			sub.EndDate = sub.StartDate.Add(sub.PlanType.Period())
			sub.UpdatedAt = now
			if err := tx.Subscriptions().Update(ctx, sub); err != nil {
				return fmt.Errorf("renew %s: %w", sub.ID, err)
			}
			n++
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("renew subscriptions: %w", err)
	}
	if n > 0 {
		metrics.SubscriptionsTotal.WithLabelValues("renew").Add(float64(n))
		s.logger.Info("subscriptions renewed", zap.Int("count", n))
	}
	return n, nil
}
