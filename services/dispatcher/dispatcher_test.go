package dispatcher

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"price_digest/models"
	"price_digest/services/aggregator"
	"price_digest/services/datafetcher"
	"price_digest/services/mailer"
	"price_digest/services/persister"
	"price_digest/services/report"
	"price_digest/services/roster"
)

type staticUniverse []models.Instrument

func (u staticUniverse) Instruments(marketOpen bool) []models.Instrument {
	var out []models.Instrument
	for _, inst := range u {
		if inst.Kind == models.KindIndex && !marketOpen {
			continue
		}
		out = append(out, inst)
	}
	return out
}

type fakeSource struct {
	fail map[models.InstrumentID]bool
}

func (f fakeSource) Fetch(ctx context.Context, id models.InstrumentID) (models.Snapshot, error) {
	if f.fail[id] {
		return models.Snapshot{}, &datafetcher.SourceError{InstrumentID: id, Cause: datafetcher.ErrStatus}
	}
	return models.Snapshot{
		InstrumentID: id,
		Kind:         models.KindCrypto,
		DisplayName:  string(id),
		Ticker:       string(id),
		Price:        decimal.NewFromInt(100),
		MarketCap:    decimal.NewNullDecimal(decimal.NewFromInt(1000)),
		ChangePct24h: decimal.NewFromInt(1),
	}, nil
}

type fakeGlobal struct{}

func (fakeGlobal) FetchGlobal(ctx context.Context) (models.GlobalStats, error) {
	return models.GlobalStats{TotalMarketCap: decimal.NewFromInt(5000)}, nil
}

type fakeStore struct {
	mu    sync.Mutex
	snaps []models.Snapshot
	day   time.Time
}

func (s *fakeStore) PersistAll(ctx context.Context, snaps []models.Snapshot, day time.Time) persister.Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snaps = append(s.snaps, snaps...)
	s.day = day
	return persister.Result{Inserted: len(snaps)}
}

type fakeRoster struct {
	users []models.UserPreference
	err   error
}

func (r fakeRoster) Users(ctx context.Context) ([]models.UserPreference, error) {
	return r.users, r.err
}

type fakeSender struct {
	mu   sync.Mutex
	sent []string
	fail map[string]bool
}

func (s *fakeSender) Send(ctx context.Context, msg report.Message) error {
	if s.fail[msg.To] {
		return &mailer.DeliveryError{Recipient: msg.To, Cause: errors.New("421 try later")}
	}
	s.mu.Lock()
	s.sent = append(s.sent, msg.To)
	s.mu.Unlock()
	return nil
}

type fakeRecorder struct {
	got []RunSummary
}

func (r *fakeRecorder) Record(ctx context.Context, s RunSummary) error {
	r.got = append(r.got, s)
	return nil
}

func ptr(s string) *string { return &s }

// 2024-03-12 is a Tuesday
var tuesday = time.Date(2024, 3, 12, 0, 0, 5, 0, time.UTC)

func newTestDispatcher(r roster.Roster, sender *fakeSender, store *fakeStore, rec *fakeRecorder) *Dispatcher {
	universe := staticUniverse{
		{ID: "bitcoin", Kind: models.KindCrypto},
		{ID: "ethereum", Kind: models.KindCrypto},
		{ID: "solana", Kind: models.KindCrypto},
	}
	agg := aggregator.New(aggregator.Options{
		Crypto: fakeSource{fail: map[models.InstrumentID]bool{"solana": true}},
		Global: fakeGlobal{},
	})
	opts := Options{
		Universe:        universe,
		Aggregator:      agg,
		Store:           store,
		Roster:          r,
		Builder:         report.NewBuilder(report.Config{Benchmark: "bitcoin"}),
		Sender:          sender,
		MailConcurrency: 2,
		Now:             func() time.Time { return tuesday },
	}
	if rec != nil {
		opts.Recorder = rec
	}
	return New(opts)
}

func TestRunIsolatesFailures(t *testing.T) {
	users := fakeRoster{users: []models.UserPreference{
		{Email: "eth@example.com", RawOptions: ptr("Ethereum (ETH)")},
		{Email: "sol@example.com", RawOptions: ptr("Solana (SOL)")},
		{Email: "plain@example.com"},
		{Email: "gone@example.com", Unsubscribed: true},
		{Email: "bounce@example.com"},
	}}
	sender := &fakeSender{fail: map[string]bool{"bounce@example.com": true}}
	store := &fakeStore{}
	rec := &fakeRecorder{}

	d := newTestDispatcher(users, sender, store, rec)
	summary, err := d.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	sort.Strings(sender.sent)
	want := []string{"eth@example.com", "plain@example.com"}
	if len(sender.sent) != len(want) || sender.sent[0] != want[0] || sender.sent[1] != want[1] {
		t.Errorf("sent = %v, want %v", sender.sent, want)
	}

	if summary.Users != 5 || summary.Sent != 2 || summary.RenderFailed != 1 || summary.Unsubscribed != 1 || summary.DeliveryFailed != 1 {
		t.Errorf("summary counts = %+v", summary)
	}
	if summary.Outcomes[1].Email != "sol@example.com" || summary.Outcomes[1].Status != StatusRenderFailed {
		t.Errorf("solana user outcome = %+v", summary.Outcomes[1])
	}
	if summary.Instruments != 3 || len(summary.FailedInstruments) != 1 || summary.FailedInstruments[0] != "solana" {
		t.Errorf("instrument summary = %d %v", summary.Instruments, summary.FailedInstruments)
	}
	if !summary.GlobalStatsOK || summary.Tier != "Daily" || summary.Day != "2024-03-12" {
		t.Errorf("run metadata = %+v", summary)
	}
	if summary.RunID == "" {
		t.Error("missing run id")
	}

	if len(store.snaps) != 2 {
		t.Errorf("persisted %d snapshots, want the 2 successful ones", len(store.snaps))
	}
	if !store.day.Equal(time.Date(2024, 3, 12, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("persist day = %s", store.day)
	}

	if len(rec.got) != 1 || rec.got[0].RunID != summary.RunID {
		t.Errorf("recorder got %d summaries", len(rec.got))
	}
	if last := d.LastRun(); last == nil || last.RunID != summary.RunID {
		t.Errorf("LastRun = %+v", last)
	}
}

func TestRunRosterFailureIsFatal(t *testing.T) {
	sender := &fakeSender{}
	store := &fakeStore{}
	rec := &fakeRecorder{}
	d := newTestDispatcher(fakeRoster{err: &roster.RosterError{Source: "sheety", Cause: errors.New("503")}}, sender, store, rec)

	summary, err := d.Run(context.Background())
	var re *roster.RosterError
	if !errors.As(err, &re) {
		t.Fatalf("err = %v, want RosterError", err)
	}
	if len(sender.sent) != 0 || len(store.snaps) != 0 {
		t.Errorf("nothing should be sent or persisted: sent=%v persisted=%d", sender.sent, len(store.snaps))
	}
	if summary.Error == "" || len(rec.got) != 1 {
		t.Errorf("failed run should still be recorded: %+v", summary)
	}
}

func TestRunWrapsPlainRosterErrors(t *testing.T) {
	d := newTestDispatcher(fakeRoster{err: errors.New("boom")}, &fakeSender{}, &fakeStore{}, nil)
	_, err := d.Run(context.Background())
	var re *roster.RosterError
	if !errors.As(err, &re) {
		t.Errorf("err = %v, want RosterError", err)
	}
}

type blockingRoster struct {
	entered chan struct{}
	release chan struct{}
}

func (b blockingRoster) Users(ctx context.Context) ([]models.UserPreference, error) {
	close(b.entered)
	<-b.release
	return nil, nil
}

func TestRunRejectsOverlap(t *testing.T) {
	br := blockingRoster{entered: make(chan struct{}), release: make(chan struct{})}
	d := newTestDispatcher(br, &fakeSender{}, &fakeStore{}, nil)

	done := make(chan struct{})
	go func() {
		defer close(done)
		d.Run(context.Background())
	}()

	<-br.entered
	if _, err := d.Run(context.Background()); !errors.Is(err, ErrRunInProgress) {
		t.Errorf("overlapping run err = %v, want ErrRunInProgress", err)
	}
	close(br.release)
	<-done
}
