package aggregator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"price_digest/models"
	"price_digest/services/datafetcher"
)

// GlobalSource fetches market-wide crypto totals
type GlobalSource interface {
	FetchGlobal(ctx context.Context) (models.GlobalStats, error)
}

// Aggregator fetches the whole universe concurrently. Crypto fetches fan out
// without limit; index fetches run one at a time, spaced by IndexDelay, alongside them.
type Aggregator struct {
	crypto     datafetcher.Source
	index      datafetcher.Source
	global     GlobalSource
	indexDelay time.Duration
	logger     *zap.Logger
}

// Options configures an Aggregator
type Options struct {
	Crypto     datafetcher.Source
	Index      datafetcher.Source
	Global     GlobalSource
	IndexDelay time.Duration
	Logger     *zap.Logger
}

func New(opts Options) *Aggregator {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Aggregator{
		crypto:     opts.Crypto,
		index:      opts.Index,
		global:     opts.Global,
		indexDelay: opts.IndexDelay,
		logger:     logger,
	}
}

var errNoSource = errors.New("no source configured")

// Aggregate fetches every instrument and returns once all fetches have settled.
// A failed fetch becomes a failure entry and never affects the others.
func (a *Aggregator) Aggregate(ctx context.Context, universe []models.Instrument) *SnapshotSet {
	entries := make([]Entry, len(universe))
	var indexSlots []int

	var wg sync.WaitGroup
	for i, inst := range universe {
		entries[i].Instrument = inst
		if inst.Kind == models.KindIndex {
			indexSlots = append(indexSlots, i)
			continue
		}
		wg.Add(1)
		go func(i int, inst models.Instrument) {
			defer wg.Done()
			entries[i] = a.fetchOne(ctx, a.crypto, inst)
		}(i, inst)
	}

	if len(indexSlots) > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			a.fetchPaced(ctx, universe, indexSlots, entries)
		}()
	}

	wg.Wait()

	set := newSnapshotSet(entries)
	a.logger.Info("aggregation complete",
		zap.Int("instruments", set.Len()),
		zap.Int("failed", len(set.Failures())),
	)
	return set
}

// fetchPaced fetches index instruments sequentially with a delay between requests
func (a *Aggregator) fetchPaced(ctx context.Context, universe []models.Instrument, slots []int, entries []Entry) {
	for n, i := range slots {
		inst := universe[i]
		if n > 0 && a.indexDelay > 0 {
			timer := time.NewTimer(a.indexDelay)
			select {
			case <-ctx.Done():
				timer.Stop()
				for _, j := range slots[n:] {
					entries[j] = a.failed(universe[j], ctx.Err())
				}
				return
			case <-timer.C:
			}
		}
		entries[i] = a.fetchOne(ctx, a.index, inst)
	}
}

func (a *Aggregator) fetchOne(ctx context.Context, src datafetcher.Source, inst models.Instrument) Entry {
	if src == nil {
		return a.failed(inst, fmt.Errorf("%w for %s instruments", errNoSource, inst.Kind))
	}
	if err := ctx.Err(); err != nil {
		return a.failed(inst, err)
	}
	snap, err := src.Fetch(ctx, inst.ID)
	if err != nil {
		return a.failed(inst, err)
	}
	return Entry{Instrument: inst, Snapshot: snap}
}

func (a *Aggregator) failed(inst models.Instrument, err error) Entry {
	var se *datafetcher.SourceError
	if !errors.As(err, &se) {
		err = &datafetcher.SourceError{InstrumentID: inst.ID, Cause: err}
	}
	a.logger.Warn("fetch failed",
		zap.String("instrument", string(inst.ID)),
		zap.String("kind", string(inst.Kind)),
		zap.Error(err),
	)
	return Entry{Instrument: inst, Err: err}
}

// AggregateGlobal fetches market-wide totals independently of the instrument fetches
func (a *Aggregator) AggregateGlobal(ctx context.Context) (models.GlobalStats, error) {
	if a.global == nil {
		return models.GlobalStats{}, fmt.Errorf("global stats: %w", errNoSource)
	}
	stats, err := a.global.FetchGlobal(ctx)
	if err != nil {
		a.logger.Warn("global stats fetch failed", zap.Error(err))
		return models.GlobalStats{}, err
	}
	return stats, nil
}
