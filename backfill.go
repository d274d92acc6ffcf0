package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"price_digest/models"
	"price_digest/services/datafetcher"
)

// historySource serves a coin's current snapshot and daily history
type historySource interface {
	Fetch(ctx context.Context, id models.InstrumentID) (models.Snapshot, error)
	History(ctx context.Context, id models.InstrumentID, days int) ([]datafetcher.HistoryPoint, error)
}

// snapshotWriter writes one daily close
type snapshotWriter interface {
	Upsert(ctx context.Context, snap models.Snapshot, day time.Time) (bool, error)
}

// runBackfill loads up to days of daily closes for each coin. Days already
// stored are left untouched, so re-running is safe.
func runBackfill(ctx context.Context, src historySource, store snapshotWriter, ids []models.InstrumentID, days int, logger *zap.Logger) error {
	if len(ids) == 0 {
		return errors.New("no ids to backfill")
	}

	var failed []models.InstrumentID
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return err
		}
		inserted, skipped, err := backfillOne(ctx, src, store, id, days)
		if err != nil {
			logger.Error("backfill failed", zap.String("id", string(id)), zap.Error(err))
			failed = append(failed, id)
			continue
		}
		logger.Info("backfill done",
			zap.String("id", string(id)),
			zap.Int("inserted", inserted),
			zap.Int("skipped", skipped),
		)
	}

	if len(failed) > 0 {
		return fmt.Errorf("backfill failed for %v", failed)
	}
	return nil
}

func backfillOne(ctx context.Context, src historySource, store snapshotWriter, id models.InstrumentID, days int) (int, int, error) {
	// the current snapshot carries the display name and ticker the series is keyed on
	current, err := src.Fetch(ctx, id)
	if err != nil {
		return 0, 0, err
	}
	points, err := src.History(ctx, id, days)
	if err != nil {
		return 0, 0, err
	}

	inserted, skipped := 0, 0
	for _, p := range points {
		snap := models.Snapshot{
			InstrumentID: id,
			Kind:         models.KindCrypto,
			DisplayName:  current.DisplayName,
			Ticker:       current.Ticker,
			Price:        p.Close,
			MarketCap:    p.MarketCap,
			Volume:       p.Volume,
		}
		ok, err := store.Upsert(ctx, snap, p.Day)
		if err != nil {
			return inserted, skipped, err
		}
		if ok {
			inserted++
		} else {
			skipped++
		}
	}
	return inserted, skipped, nil
}
