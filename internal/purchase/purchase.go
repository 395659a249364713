// Package purchase sells single chapters to readers.
package purchase

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/google/uuid"
	"github.com/mAmineChniti/Forklore/internal/apperrors"
	"github.com/mAmineChniti/Forklore/internal/clock"
	"github.com/mAmineChniti/Forklore/internal/data"
	"github.com/mAmineChniti/Forklore/internal/database"
	"github.com/mAmineChniti/Forklore/internal/events"
	"github.com/mAmineChniti/Forklore/internal/metrics"
	"go.uber.org/zap"
)

type Service struct {
	db     database.Service
	clock  clock.Clock
	logger *zap.Logger
	events events.Publisher
}

func NewService(db database.Service, clk clock.Clock, logger *zap.Logger, pub events.Publisher) *Service {
	return &Service{db: db, clock: clk, logger: logger.Named("purchase"), events: pub}
}

// Purchase records that readerID bought the chapter at its current price. Free
// chapters cannot be bought and a chapter is bought at most once.
func (s *Service) Purchase(ctx context.Context, readerID, chapterID string) (*data.Purchase, error) {
	var p *data.Purchase
	err := s.db.WithTx(ctx, func(ctx context.Context, tx database.Tx) error {
		if _, err := tx.Users().Get(ctx, readerID); err != nil {
			return database.WrapLookup(err, "user", readerID)
		}
		c, err := tx.Chapters().Get(ctx, chapterID)
		if err != nil {
			return database.WrapLookup(err, "chapter", chapterID)
		}
		if c.IsFree() {
			return apperrors.InvalidState("chapter", chapterID, "free chapters cannot be purchased")
		}
		if c.Status != data.ChapterPublished {
			return apperrors.InvalidState("chapter", chapterID, "chapter is not published")
		}

		bought := &data.Purchase{
			ID:          uuid.NewString(),
			ReaderID:    readerID,
			ChapterID:   chapterID,
			Price:       c.Price,
			PurchasedAt: s.clock.Now(),
		}
		if err := tx.Purchases().Insert(ctx, bought); err != nil {
			if errors.Is(err, database.ErrDuplicate) {
				return apperrors.InvalidState("purchase", readerID+":"+chapterID, "chapter already purchased")
			}
			return fmt.Errorf("insert purchase: %w", err)
		}
		p = bought
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.PurchasesTotal.Inc()
	events.Emit(ctx, s.events, s.logger, events.New(events.PurchaseCreated, p.ID, readerID, p.PurchasedAt,
		map[string]string{"chapter_id": chapterID, "price": strconv.Itoa(p.Price)}))
	return p, nil
}

func (s *Service) HasPurchased(ctx context.Context, readerID, chapterID string) (bool, error) {
	var ok bool
	err := s.db.View(ctx, func(ctx context.Context, tx database.Tx) error {
		var err error
		ok, err = tx.Purchases().Exists(ctx, readerID, chapterID)
		return err
	})
	return ok, err
}

// List returns the reader's purchases, newest first.
func (s *Service) List(ctx context.Context, readerID string) ([]data.Purchase, error) {
	var out []data.Purchase
	err := s.db.View(ctx, func(ctx context.Context, tx database.Tx) error {
		var err error
		out, err = tx.Purchases().List(ctx, readerID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
