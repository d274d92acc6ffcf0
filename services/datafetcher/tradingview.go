package datafetcher

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"price_digest/models"
)

// Column names the index source must return
const (
	ColName      = "name"
	ColClose     = "close"
	ColChange    = "change"
	ColChange1W  = "change|1W"
	ColChange1M  = "change|1M"
	ColMarketCap = "market_cap_basic"
	ColVolume    = "volume"
)

var requiredIndexColumns = []string{ColName, ColClose, ColChange, ColChange1W, ColChange1M}

// TradingViewConfig configures the index source
type TradingViewConfig struct {
	Endpoint string
	APIKey   string
	Host     string
	Columns  []string
	Timeout  time.Duration
}

// indexSchema maps a column name to its offset in the positional response
type indexSchema map[string]int

func newIndexSchema(columns []string) (indexSchema, error) {
	s := make(indexSchema, len(columns))
	for i, c := range columns {
		c = strings.TrimSpace(c)
		if _, dup := s[c]; dup {
			return nil, fmt.Errorf("duplicate index column %q", c)
		}
		s[c] = i
	}
	for _, c := range requiredIndexColumns {
		if _, ok := s[c]; !ok {
			return nil, fmt.Errorf("index columns must include %q", c)
		}
	}
	return s, nil
}

// TradingView serves stock index snapshots through RapidAPI
type TradingView struct {
	cfg     TradingViewConfig
	schema  indexSchema
	columns string
	names   map[models.InstrumentID]models.Instrument
	httpGetter
}

// NewTradingView validates the column schema and creates the index source.
// indices supplies display names and fallback tickers.
func NewTradingView(cfg TradingViewConfig, indices []models.Instrument, client *http.Client, logger *zap.Logger) (*TradingView, error) {
	schema, err := newIndexSchema(cfg.Columns)
	if err != nil {
		return nil, err
	}
	names := make(map[models.InstrumentID]models.Instrument, len(indices))
	for _, idx := range indices {
		names[idx.ID] = idx
	}
	return &TradingView{
		cfg:        cfg,
		schema:     schema,
		columns:    strings.Join(cfg.Columns, ","),
		names:      names,
		httpGetter: newHTTPGetter(client, cfg.Timeout, logger),
	}, nil
}

type financialsResponse struct {
	Data []struct {
		Symbol string            `json:"s"`
		Values []json.RawMessage `json:"d"`
	} `json:"data"`
}

// Fetch returns the current snapshot for one index symbol such as "SP:SPX"
func (tv *TradingView) Fetch(ctx context.Context, id models.InstrumentID) (models.Snapshot, error) {
	q := url.Values{}
	q.Set("symbol", string(id))
	q.Set("columns", tv.columns)
	endpoint := tv.cfg.Endpoint + "?" + q.Encode()

	headers := map[string]string{
		"x-rapidapi-key":  tv.cfg.APIKey,
		"x-rapidapi-host": tv.cfg.Host,
	}

	var body financialsResponse
	if err := tv.getJSON(ctx, endpoint, headers, &body); err != nil {
		return models.Snapshot{}, sourceErr(id, err)
	}
	if len(body.Data) == 0 {
		return models.Snapshot{}, sourceErr(id, fmt.Errorf("%w: data[0]", ErrMissingField))
	}

	snap, err := tv.parseRow(id, body.Data[0].Values)
	if err != nil {
		return models.Snapshot{}, sourceErr(id, err)
	}
	return snap, nil
}

func (tv *TradingView) parseRow(id models.InstrumentID, d []json.RawMessage) (models.Snapshot, error) {
	meta := tv.names[id]
	snap := models.Snapshot{
		InstrumentID: id,
		Kind:         models.KindIndex,
		DisplayName:  meta.DisplayName,
		Ticker:       meta.Ticker,
	}
	if snap.DisplayName == "" {
		snap.DisplayName = string(id)
	}

	name, err := tv.stringAt(d, ColName)
	if err != nil {
		return models.Snapshot{}, err
	}
	if name != "" {
		snap.Ticker = name
	}
	if snap.Ticker == "" {
		return models.Snapshot{}, fmt.Errorf("%w: %s", ErrMissingField, ColName)
	}

	if snap.Price, err = tv.required(d, ColClose, true); err != nil {
		return models.Snapshot{}, err
	}
	if snap.ChangePct24h, err = tv.required(d, ColChange, false); err != nil {
		return models.Snapshot{}, err
	}
	if snap.ChangePct7d, err = tv.required(d, ColChange1W, false); err != nil {
		return models.Snapshot{}, err
	}
	if snap.ChangePct30d, err = tv.required(d, ColChange1M, false); err != nil {
		return models.Snapshot{}, err
	}

	mc, err := tv.decimalAt(d, ColMarketCap)
	if err != nil {
		return models.Snapshot{}, err
	}
	if snap.MarketCap, err = optionalDecimal(ColMarketCap, mc); err != nil {
		return models.Snapshot{}, err
	}

	// Indices frequently report no volume; absent is recorded as zero.
	vol, err := tv.decimalAt(d, ColVolume)
	if err != nil {
		return models.Snapshot{}, err
	}
	if vol != nil {
		if snap.Volume, err = requireDecimal(ColVolume, vol, true); err != nil {
			return models.Snapshot{}, err
		}
	}
	return snap, nil
}

func (tv *TradingView) required(d []json.RawMessage, col string, nonNegative bool) (decimal.Decimal, error) {
	v, err := tv.decimalAt(d, col)
	if err != nil {
		return decimal.Zero, err
	}
	return requireDecimal(col, v, nonNegative)
}

// raw returns the value at col's offset, or nil when the column was not requested,
// the row is short, or the value is null
func (tv *TradingView) raw(d []json.RawMessage, col string) json.RawMessage {
	off, ok := tv.schema[col]
	if !ok || off >= len(d) {
		return nil
	}
	v := d[off]
	if len(v) == 0 || string(v) == "null" {
		return nil
	}
	return v
}

func (tv *TradingView) decimalAt(d []json.RawMessage, col string) (*decimal.Decimal, error) {
	v := tv.raw(d, col)
	if v == nil {
		return nil, nil
	}
	var out decimal.Decimal
	if err := json.Unmarshal(v, &out); err != nil {
		return nil, fmt.Errorf("%w: %s is not numeric (%s)", ErrInvalidField, col, string(v))
	}
	return &out, nil
}

func (tv *TradingView) stringAt(d []json.RawMessage, col string) (string, error) {
	v := tv.raw(d, col)
	if v == nil {
		return "", nil
	}
	var s string
	if err := json.Unmarshal(v, &s); err != nil {
		return "", fmt.Errorf("%w: %s is not a string", ErrInvalidField, col)
	}
	return s, nil
}
