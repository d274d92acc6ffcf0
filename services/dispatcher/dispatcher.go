package dispatcher

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"price_digest/models"
	"price_digest/services/aggregator"
	"price_digest/services/mailer"
	"price_digest/services/period"
	"price_digest/services/persister"
	"price_digest/services/report"
	"price_digest/services/roster"
)

// ErrRunInProgress is returned when Run is called while another run is active
var ErrRunInProgress = errors.New("digest run already in progress")

// Universe lists the instruments to fetch for a run
type Universe interface {
	Instruments(marketOpen bool) []models.Instrument
}

// SnapshotStore persists a run's successful snapshots
type SnapshotStore interface {
	PersistAll(ctx context.Context, snaps []models.Snapshot, day time.Time) persister.Result
}

// RunRecorder archives finished run summaries
type RunRecorder interface {
	Record(ctx context.Context, s RunSummary) error
}

// Options wires a Dispatcher
type Options struct {
	Universe        Universe
	Aggregator      *aggregator.Aggregator
	Store           SnapshotStore
	Roster          roster.Roster
	Builder         *report.Builder
	Sender          mailer.Sender
	Recorder        RunRecorder
	MailConcurrency int
	Now             func() time.Time
	Logger          *zap.Logger
}

// Dispatcher runs the daily digest pipeline end to end
type Dispatcher struct {
	opts Options

	running sync.Mutex
	mu      sync.RWMutex
	last    *RunSummary
}

func New(opts Options) *Dispatcher {
	if opts.MailConcurrency < 1 {
		opts.MailConcurrency = 1
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Dispatcher{opts: opts}
}

// LastRun returns the most recent finished run, or nil
func (d *Dispatcher) LastRun() *RunSummary {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.last == nil {
		return nil
	}
	cp := *d.last
	return &cp
}

// Run executes one digest: fetch, persist, render and send. Only a roster failure
// aborts the run; every other failure is counted in the summary.
func (d *Dispatcher) Run(ctx context.Context) (RunSummary, error) {
	if !d.running.TryLock() {
		return RunSummary{}, ErrRunInProgress
	}
	defer d.running.Unlock()

	now := d.opts.Now().UTC()
	cls := period.Classify(now)
	day := persister.Day(now)

	summary := RunSummary{
		RunID:      uuid.NewString(),
		StartedAt:  now,
		Day:        day.Format("2006-01-02"),
		Tier:       string(cls.Tier),
		Timeframe:  cls.Timeframe,
		MarketOpen: cls.MarketOpen,
	}
	log := d.opts.Logger.With(zap.String("run_id", summary.RunID))
	log.Info("digest run started",
		zap.String("tier", summary.Tier),
		zap.Bool("market_open", cls.MarketOpen),
	)

	var (
		set    *aggregator.SnapshotSet
		global *models.GlobalStats
		users  []models.UserPreference
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		set = d.opts.Aggregator.Aggregate(gctx, d.opts.Universe.Instruments(cls.MarketOpen))
		return nil
	})
	g.Go(func() error {
		stats, err := d.opts.Aggregator.AggregateGlobal(gctx)
		if err == nil {
			global = &stats
		}
		return nil
	})
	g.Go(func() error {
		u, err := d.opts.Roster.Users(gctx)
		if err != nil {
			var re *roster.RosterError
			if !errors.As(err, &re) {
				err = &roster.RosterError{Source: "unknown", Cause: err}
			}
			return err
		}
		users = u
		return nil
	})
	if err := g.Wait(); err != nil {
		log.Error("roster unavailable, aborting run", zap.Error(err))
		summary.Error = err.Error()
		d.finish(ctx, log, &summary)
		return summary, err
	}

	summary.Instruments = set.Len()
	for _, f := range set.Failures() {
		summary.FailedInstruments = append(summary.FailedInstruments, string(f.Instrument.ID))
	}
	summary.GlobalStatsOK = global != nil

	pr := d.opts.Store.PersistAll(ctx, set.Successful(), day)
	summary.Persisted, summary.PersistSkipped = pr.Inserted, pr.Skipped
	for _, err := range pr.Errors {
		summary.PersistErrors = append(summary.PersistErrors, err.Error())
	}

	summary.Users = len(users)
	summary.Outcomes = d.sendAll(ctx, log, set, global, cls, users)
	summary.tally()

	d.finish(ctx, log, &summary)
	return summary, nil
}

// sendAll builds and sends every user's digest with bounded concurrency and waits for all of them
func (d *Dispatcher) sendAll(ctx context.Context, log *zap.Logger, set *aggregator.SnapshotSet, global *models.GlobalStats, cls period.Classification, users []models.UserPreference) []UserOutcome {
	outcomes := make([]UserOutcome, len(users))

	var g errgroup.Group
	g.SetLimit(d.opts.MailConcurrency)
	for i, u := range users {
		g.Go(func() error {
			outcomes[i] = d.sendOne(ctx, log, set, global, cls, u)
			return nil
		})
	}
	_ = g.Wait()
	return outcomes
}

func (d *Dispatcher) sendOne(ctx context.Context, log *zap.Logger, set *aggregator.SnapshotSet, global *models.GlobalStats, cls period.Classification, u models.UserPreference) UserOutcome {
	out := UserOutcome{Email: u.Email}

	msg, err := d.opts.Builder.Build(set, global, cls, u)
	switch {
	case errors.Is(err, report.ErrUnsubscribed):
		out.Status = StatusUnsubscribed
		return out
	case err != nil:
		log.Error("digest render failed", zap.String("email", u.Email), zap.Error(err))
		out.Status, out.Error = StatusRenderFailed, err.Error()
		return out
	}

	if err := ctx.Err(); err != nil {
		out.Status, out.Error = StatusCancelled, err.Error()
		return out
	}

	if err := d.opts.Sender.Send(ctx, msg); err != nil {
		log.Error("digest delivery failed", zap.String("email", u.Email), zap.Error(err))
		out.Status, out.Error = StatusDeliveryFailed, err.Error()
		return out
	}
	out.Status = StatusSent
	return out
}

func (d *Dispatcher) finish(ctx context.Context, log *zap.Logger, s *RunSummary) {
	s.FinishedAt = d.opts.Now().UTC()

	log.Info("digest run finished",
		zap.Int("instruments", s.Instruments),
		zap.Strings("failed_instruments", s.FailedInstruments),
		zap.Int("persisted", s.Persisted),
		zap.Int("persist_errors", len(s.PersistErrors)),
		zap.Int("users", s.Users),
		zap.Int("sent", s.Sent),
		zap.Int("render_failed", s.RenderFailed),
		zap.Int("delivery_failed", s.DeliveryFailed),
		zap.Duration("elapsed", s.FinishedAt.Sub(s.StartedAt)),
	)

	if d.opts.Recorder != nil {
		// archive even when the run context is already done
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		if err := d.opts.Recorder.Record(rctx, *s); err != nil {
			log.Warn("failed to archive run summary", zap.Error(err))
		}
	}

	d.mu.Lock()
	cp := *s
	d.last = &cp
	d.mu.Unlock()
}
