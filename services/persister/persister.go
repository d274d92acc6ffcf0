package persister

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"price_digest/models"
)

// PersistenceError reports a failed write for one snapshot
type PersistenceError struct {
	InstrumentID models.InstrumentID
	Day          time.Time
	Cause        error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persist %s for %s: %v", e.InstrumentID, e.Day.Format("2006-01-02"), e.Cause)
}

func (e *PersistenceError) Unwrap() error {
	return e.Cause
}

// Persister writes snapshots into the asset time series. Each row is written
// once per (asset, day); later writes for the same pair are no-ops.
type Persister struct {
	db     *gorm.DB
	logger *zap.Logger
}

func New(db *gorm.DB, logger *zap.Logger) *Persister {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Persister{db: db, logger: logger}
}

// Day truncates t to its UTC calendar day
func Day(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// Upsert records snap for day inside its own transaction. It reports whether a new
// fact row was inserted; false means a row for (asset, day) already existed.
func (p *Persister) Upsert(ctx context.Context, snap models.Snapshot, day time.Time) (bool, error) {
	day = Day(day)
	perr := func(err error) error {
		return &PersistenceError{InstrumentID: snap.InstrumentID, Day: day, Cause: err}
	}

	if snap.DisplayName == "" {
		return false, perr(errors.New("snapshot has no display name"))
	}
	if snap.Price.IsNegative() || snap.Volume.IsNegative() {
		return false, perr(errors.New("negative price or volume"))
	}

	inserted := false
	err := p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		asset, err := findOrCreateAsset(tx, snap)
		if err != nil {
			return err
		}

		row := models.AssetData{
			AssetID:    asset.ID,
			Date:       day,
			ClosePrice: snap.Price,
			MarketCap:  snap.MarketCap,
			Volume:     snap.Volume,
		}
		res := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "asset_id"}, {Name: "date"}},
			DoNothing: true,
		}).Create(&row)
		if res.Error != nil {
			return fmt.Errorf("insert asset data: %w", res.Error)
		}
		inserted = res.RowsAffected > 0
		return nil
	})
	if err != nil {
		return false, perr(err)
	}
	return inserted, nil
}

// findOrCreateAsset returns the dimension row for the snapshot's name, creating it on first sighting
func findOrCreateAsset(tx *gorm.DB, snap models.Snapshot) (models.Asset, error) {
	asset := models.Asset{Name: snap.DisplayName, Ticker: snap.Ticker}
	res := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoNothing: true,
	}).Create(&asset)
	if res.Error != nil {
		return models.Asset{}, fmt.Errorf("create asset: %w", res.Error)
	}
	if res.RowsAffected > 0 && asset.ID != 0 {
		return asset, nil
	}

	var existing models.Asset
	if err := tx.Where("name = ?", snap.DisplayName).First(&existing).Error; err != nil {
		return models.Asset{}, fmt.Errorf("load asset: %w", err)
	}
	return existing, nil
}

// Result summarizes a batch write
type Result struct {
	Inserted int
	Skipped  int
	Errors   []error
}

// PersistAll writes every snapshot for day. Failures are collected, not fatal.
// Once ctx is cancelled no further writes are started.
func (p *Persister) PersistAll(ctx context.Context, snaps []models.Snapshot, day time.Time) Result {
	var r Result
	for _, s := range snaps {
		if err := ctx.Err(); err != nil {
			r.Errors = append(r.Errors, &PersistenceError{InstrumentID: s.InstrumentID, Day: Day(day), Cause: err})
			continue
		}
		inserted, err := p.Upsert(ctx, s, day)
		switch {
		case err != nil:
			p.logger.Error("persist failed", zap.String("instrument", string(s.InstrumentID)), zap.Error(err))
			r.Errors = append(r.Errors, err)
		case inserted:
			r.Inserted++
		default:
			r.Skipped++
		}
	}
	p.logger.Info("snapshots persisted",
		zap.Int("inserted", r.Inserted),
		zap.Int("skipped", r.Skipped),
		zap.Int("failed", len(r.Errors)),
	)
	return r
}
