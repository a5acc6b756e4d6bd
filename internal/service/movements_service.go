package service

import (
	"context"
	"errors"
	"time"

	"github.com/rendafacil/movements-service/internal/client"
	"github.com/rendafacil/movements-service/internal/events"
	"github.com/rendafacil/movements-service/internal/model"

	"go.uber.org/zap"
)

// MovementsFetcher fetches movements from the remote B3 API.
type MovementsFetcher interface {
	Movements(ctx context.Context, marketType model.MarketType, document string, startDate, endDate time.Time) ([]model.MovementRecord, error)
}

// MovementsStore reads and writes the cached movements of a document.
type MovementsStore interface {
	GetMovements(ctx context.Context, document string, marketType model.MarketType, start, end time.Time) ([]model.MovementRecord, error)
	SaveMovements(ctx context.Context, document string, marketType model.MarketType, records []model.MovementRecord) error
}

// EventPublisher announces completed syncs.
type EventPublisher interface {
	PublishSynced(ctx context.Context, event events.SyncedEvent)
}

// MovementsService reconciles cached movements with the remote B3 API: it
// loads the cached window, fetches only the range past the cache watermark,
// merges the two sets and persists the delta.
type MovementsService struct {
	store     MovementsStore
	b3        MovementsFetcher
	publisher EventPublisher
	logger    *zap.Logger

	now func() time.Time
}

// NewMovementsService creates a movements sync service.
func NewMovementsService(
	store MovementsStore,
	b3 MovementsFetcher,
	publisher EventPublisher,
	logger *zap.Logger,
) *MovementsService {
	return &MovementsService{
		store:     store,
		b3:        b3,
		publisher: publisher,
		logger:    logger,
		now:       time.Now,
	}
}

// GetMovements returns the calendar-indexed movements of a document for the
// requested window, syncing from B3 first when the cache is behind today.
//
// The read-fetch-persist sequence is not transactional: the store contract
// is an upsert with last-write-wins, and a concurrent sync for the same
// document at worst re-writes identical delta records.
func (s *MovementsService) GetMovements(
	ctx context.Context,
	document string,
	marketType model.MarketType,
	startDate, endDate time.Time,
) (*model.MovementsGrouped, error) {
	if !marketType.Valid() {
		return nil, &model.ValidationError{Reason: "invalid or unsupported market type"}
	}

	window, err := model.NewSyncWindow(startDate, endDate, s.now())
	if err != nil {
		return nil, err
	}

	cached, err := s.store.GetMovements(ctx, document, marketType, window.Start, window.End)
	if err != nil {
		s.logger.Error("Failed to fetch movements from store",
			zap.String("document", document),
			zap.String("market_type", string(marketType)),
			zap.Error(err))
		return nil, err
	}

	watermark := s.watermark(cached)
	today := model.DateOnly(s.now())

	var delta []model.MovementRecord
	fetched := false
	if watermark.Before(today) {
		delta, err = s.b3.Movements(ctx, marketType, document, watermark.AddDate(0, 0, 1), today)
		if err != nil {
			s.logger.Error("Failed to fetch movements from B3",
				zap.String("document", document),
				zap.String("market_type", string(marketType)),
				zap.Time("watermark", watermark),
				zap.Error(err))
			// With nothing cached there is nothing to degrade to, and an
			// access denial with an empty cache must reach the caller as
			// exactly that.
			if len(cached) == 0 {
				return nil, err
			}
			if errors.Is(err, client.ErrUnauthorizedClientAccess) {
				s.logger.Warn("B3 access denied, serving cached movements only",
					zap.String("document", document),
					zap.String("market_type", string(marketType)))
			}
			delta = nil
		} else {
			fetched = true
		}
	}

	merged, added := model.MergeRecords(cached, delta)

	if len(added) > 0 {
		// A failed write never fails an already-computed read: stale but
		// correct data beats losing the result.
		if err := s.store.SaveMovements(ctx, document, marketType, added); err != nil {
			s.logger.Error("Failed to persist movements delta",
				zap.String("document", document),
				zap.String("market_type", string(marketType)),
				zap.Int("records", len(added)),
				zap.Error(err))
		}
	}

	if fetched && len(added) > 0 && s.publisher != nil {
		s.publisher.PublishSynced(ctx, events.SyncedEvent{
			Document:   document,
			MarketType: string(marketType),
			StartDate:  window.Start.Format(model.DateFormat),
			EndDate:    window.End.Format(model.DateFormat),
			Fetched:    len(added),
			SyncedAt:   s.now(),
		})
	}

	return &model.MovementsGrouped{
		Document:   document,
		MarketType: string(marketType),
		Movements:  model.ToCalendar(merged),
	}, nil
}

// watermark is the most recent date the cache is known complete for, or the
// retention edge when nothing is cached.
func (s *MovementsService) watermark(cached []model.MovementRecord) time.Time {
	latest, ok := model.ToCalendar(cached).LatestDate()
	if !ok {
		return model.RetentionEdge(s.now())
	}
	parsed, err := time.Parse(model.DateFormat, latest)
	if err != nil {
		return model.RetentionEdge(s.now())
	}
	return parsed
}
