package report

import (
	"bytes"
	"errors"
	"fmt"
	"html"
	"html/template"
	"strings"

	"github.com/shopspring/decimal"

	"price_digest/models"
	"price_digest/services/aggregator"
	"price_digest/services/period"
)

// ErrUnsubscribed is returned for users who opted out; nothing is rendered for them
var ErrUnsubscribed = errors.New("user unsubscribed")

// RenderError means one user's digest could not be assembled
type RenderError struct {
	Email        string
	InstrumentID models.InstrumentID
	Cause        error
}

func (e *RenderError) Error() string {
	if e.InstrumentID != "" {
		return fmt.Sprintf("render digest for %s: instrument %s: %v", e.Email, e.InstrumentID, e.Cause)
	}
	return fmt.Sprintf("render digest for %s: %v", e.Email, e.Cause)
}

func (e *RenderError) Unwrap() error {
	return e.Cause
}

// Message is a rendered digest ready for delivery
type Message struct {
	To      string
	Subject string
	HTML    string
}

// Config configures a Builder
type Config struct {
	Benchmark      models.InstrumentID
	Indices        []models.InstrumentID
	Aliases        []models.Alias
	PreferencesURL string
	// UnsubscribeURL returns the one-click link for an email. Optional.
	UnsubscribeURL func(email string) (string, error)
}

// Builder renders per-user digests. It holds no per-run state and is safe for concurrent use.
type Builder struct {
	cfg        Config
	normalizer *Normalizer
}

func NewBuilder(cfg Config) *Builder {
	return &Builder{cfg: cfg, normalizer: NewNormalizer(cfg.Aliases)}
}

// ChosenInstruments exposes the preference parsing used by Build
func (b *Builder) ChosenInstruments(raw *string) []models.InstrumentID {
	return b.normalizer.ChosenInstruments(raw)
}

var envelope = template.Must(template.New("digest").Parse(`<html>
  <body>
    {{.Body}}
    <br>
    <hr>
    {{- if .PreferencesURL}}
    <p>Click <a href="{{.PreferencesURL}}">here</a> to update your preferences.</p>
    {{- end}}
    {{- if .UnsubscribeURL}}
    <p><a href="{{.UnsubscribeURL}}">Unsubscribe</a> from these emails.</p>
    {{- end}}
  </body>
</html>
`))

type envelopeData struct {
	Body           template.HTML
	PreferencesURL string
	UnsubscribeURL string
}

// Build renders one user's digest. global may be nil when the market-wide fetch failed;
// the footer total then falls back to the sum of the fetched crypto market caps.
func (b *Builder) Build(set *aggregator.SnapshotSet, global *models.GlobalStats, p period.Classification, pref models.UserPreference) (Message, error) {
	if pref.Unsubscribed {
		return Message{}, ErrUnsubscribed
	}

	bench, err := set.Get(b.cfg.Benchmark)
	if err != nil {
		return Message{}, &RenderError{Email: pref.Email, InstrumentID: b.cfg.Benchmark, Cause: err}
	}

	var body strings.Builder

	body.WriteString("<p>")
	body.WriteString(priceLine(bench))
	if p.Longer() {
		body.WriteString(longerLine(p, bench))
	}
	body.WriteString("</p>")

	if chosen := b.normalizer.ChosenInstruments(pref.RawOptions); len(chosen) > 0 {
		body.WriteString("<p>")
		for _, id := range chosen {
			snap, err := set.Get(id)
			if err != nil {
				return Message{}, &RenderError{Email: pref.Email, InstrumentID: id, Cause: err}
			}
			body.WriteString(priceLine(snap))
			if p.Longer() {
				body.WriteString(longerLine(p, snap))
			}
		}
		body.WriteString("</p>")
	}

	if p.MarketOpen && len(b.cfg.Indices) > 0 {
		var lines strings.Builder
		for _, id := range b.cfg.Indices {
			// indices are not user selections; a failed one is left out
			snap, err := set.Get(id)
			if err != nil {
				continue
			}
			lines.WriteString(priceLine(snap))
			if p.Longer() {
				lines.WriteString(longerLine(p, snap))
			}
		}
		if lines.Len() > 0 {
			body.WriteString("<p>")
			body.WriteString(lines.String())
			body.WriteString("</p>")
		}
	}

	body.WriteString(b.footer(set, global, bench))

	data := envelopeData{
		Body:           template.HTML(body.String()),
		PreferencesURL: b.cfg.PreferencesURL,
	}
	if b.cfg.UnsubscribeURL != nil {
		link, err := b.cfg.UnsubscribeURL(pref.Email)
		if err != nil {
			return Message{}, &RenderError{Email: pref.Email, Cause: err}
		}
		data.UnsubscribeURL = link
	}

	var out bytes.Buffer
	if err := envelope.Execute(&out, data); err != nil {
		return Message{}, &RenderError{Email: pref.Email, Cause: err}
	}

	return Message{
		To:      pref.Email,
		Subject: Subject(bench, p),
		HTML:    out.String(),
	}, nil
}

// Subject is shared by every user's digest for a run
func Subject(bench models.Snapshot, p period.Classification) string {
	return fmt.Sprintf("%s %s Close: %s", bench.Ticker, p.Tier, FormatDollars(bench.Price))
}

func priceLine(s models.Snapshot) string {
	parts := []string{html.EscapeString(s.Ticker) + ":", FormatDollars(s.Price)}
	if g := Glyph(s.ChangePct24h); g != "" {
		parts = append(parts, g)
	}
	parts = append(parts, FormatPercent(s.ChangePct24h))
	return strings.Join(parts, " ") + "<br>"
}

func longerLine(p period.Classification, s models.Snapshot) string {
	pct := s.ChangePct7d
	if p.Tier == period.Monthly {
		pct = s.ChangePct30d
	}
	parts := []string{"&nbsp;&nbsp;" + p.Timeframe}
	if g := Glyph(pct); g != "" {
		parts = append(parts, g)
	}
	parts = append(parts, FormatPercent(pct))
	return strings.Join(parts, " ") + "<br>"
}

func (b *Builder) footer(set *aggregator.SnapshotSet, global *models.GlobalStats, bench models.Snapshot) string {
	benchCap := "N/A"
	if bench.MarketCap.Valid {
		benchCap = FormatDollars(bench.MarketCap.Decimal)
	}
	return fmt.Sprintf("<p>%s Market Cap:<br>%s<br>Total Cryptocurrency Market Cap:<br>%s</p>",
		html.EscapeString(bench.Ticker), benchCap, FormatDollars(TotalMarketCap(set, global)))
}

// TotalMarketCap prefers the market-wide figure and otherwise sums the fetched crypto caps
func TotalMarketCap(set *aggregator.SnapshotSet, global *models.GlobalStats) decimal.Decimal {
	if global != nil && global.TotalMarketCap.IsPositive() {
		return global.TotalMarketCap
	}
	total := decimal.Zero
	for _, s := range set.Successful() {
		if s.Kind == models.KindCrypto && s.MarketCap.Valid {
			total = total.Add(s.MarketCap.Decimal)
		}
	}
	return total
}
