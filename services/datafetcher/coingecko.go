package datafetcher

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"price_digest/models"
)

const coinGeckoKeyHeader = "x-cg-demo-api-key"

// CoinGeckoConfig configures the crypto source
type CoinGeckoConfig struct {
	Endpoint string // e.g. https://api.coingecko.com/api/v3
	APIKey   string
	Timeout  time.Duration
}

// CoinGecko serves crypto snapshots, global market stats and daily history
type CoinGecko struct {
	cfg CoinGeckoConfig
	httpGetter
}

// NewCoinGecko creates the crypto source. A nil client uses a default http.Client.
func NewCoinGecko(cfg CoinGeckoConfig, client *http.Client, logger *zap.Logger) *CoinGecko {
	cfg.Endpoint = strings.TrimRight(cfg.Endpoint, "/")
	return &CoinGecko{
		cfg:        cfg,
		httpGetter: newHTTPGetter(client, cfg.Timeout, logger),
	}
}

type usdQuote map[string]*decimal.Decimal

func (q usdQuote) usd() *decimal.Decimal {
	if q == nil {
		return nil
	}
	return q["usd"]
}

// coinResponse is the subset of /coins/{id} that we read
type coinResponse struct {
	Name       *string `json:"name"`
	Symbol     *string `json:"symbol"`
	MarketData *struct {
		CurrentPrice usdQuote         `json:"current_price"`
		MarketCap    usdQuote         `json:"market_cap"`
		TotalVolume  usdQuote         `json:"total_volume"`
		Change24h    *decimal.Decimal `json:"price_change_percentage_24h"`
		Change7d     *decimal.Decimal `json:"price_change_percentage_7d"`
		Change30d    *decimal.Decimal `json:"price_change_percentage_30d"`
	} `json:"market_data"`
}

type globalResponse struct {
	Data *struct {
		TotalMarketCap      usdQuote                    `json:"total_market_cap"`
		MarketCapPercentage map[string]*decimal.Decimal `json:"market_cap_percentage"`
	} `json:"data"`
}

type marketChartResponse struct {
	Prices       [][]decimal.Decimal `json:"prices"`
	MarketCaps   [][]decimal.Decimal `json:"market_caps"`
	TotalVolumes [][]decimal.Decimal `json:"total_volumes"`
}

// HistoryPoint is one daily close from the market chart endpoint
type HistoryPoint struct {
	Day       time.Time
	Close     decimal.Decimal
	MarketCap decimal.NullDecimal
	Volume    decimal.Decimal
}

func (c *CoinGecko) headers() map[string]string {
	return map[string]string{coinGeckoKeyHeader: c.cfg.APIKey}
}

// Fetch returns the current snapshot for one coin id
func (c *CoinGecko) Fetch(ctx context.Context, id models.InstrumentID) (models.Snapshot, error) {
	endpoint := fmt.Sprintf("%s/coins/%s", c.cfg.Endpoint, url.PathEscape(string(id)))

	var body coinResponse
	if err := c.getJSON(ctx, endpoint, c.headers(), &body); err != nil {
		return models.Snapshot{}, sourceErr(id, err)
	}

	snap, err := parseCoin(id, body)
	if err != nil {
		return models.Snapshot{}, sourceErr(id, err)
	}
	return snap, nil
}

func parseCoin(id models.InstrumentID, body coinResponse) (models.Snapshot, error) {
	if body.Name == nil || *body.Name == "" {
		return models.Snapshot{}, fmt.Errorf("%w: name", ErrMissingField)
	}
	if body.Symbol == nil || *body.Symbol == "" {
		return models.Snapshot{}, fmt.Errorf("%w: symbol", ErrMissingField)
	}
	md := body.MarketData
	if md == nil {
		return models.Snapshot{}, fmt.Errorf("%w: market_data", ErrMissingField)
	}

	snap := models.Snapshot{
		InstrumentID: id,
		Kind:         models.KindCrypto,
		DisplayName:  *body.Name,
		Ticker:       strings.ToUpper(*body.Symbol),
	}

	var err error
	if snap.Price, err = requireDecimal("market_data.current_price.usd", md.CurrentPrice.usd(), true); err != nil {
		return models.Snapshot{}, err
	}
	if snap.MarketCap, err = optionalDecimal("market_data.market_cap.usd", md.MarketCap.usd()); err != nil {
		return models.Snapshot{}, err
	}
	if snap.Volume, err = requireDecimal("market_data.total_volume.usd", md.TotalVolume.usd(), true); err != nil {
		return models.Snapshot{}, err
	}
	if snap.ChangePct24h, err = requireDecimal("market_data.price_change_percentage_24h", md.Change24h, false); err != nil {
		return models.Snapshot{}, err
	}
	if snap.ChangePct7d, err = requireDecimal("market_data.price_change_percentage_7d", md.Change7d, false); err != nil {
		return models.Snapshot{}, err
	}
	if snap.ChangePct30d, err = requireDecimal("market_data.price_change_percentage_30d", md.Change30d, false); err != nil {
		return models.Snapshot{}, err
	}
	return snap, nil
}

// FetchGlobal returns total crypto market capitalization and dominance percentages
func (c *CoinGecko) FetchGlobal(ctx context.Context) (models.GlobalStats, error) {
	var body globalResponse
	if err := c.getJSON(ctx, c.cfg.Endpoint+"/global", c.headers(), &body); err != nil {
		return models.GlobalStats{}, fmt.Errorf("fetch global stats: %w", err)
	}
	if body.Data == nil {
		return models.GlobalStats{}, fmt.Errorf("fetch global stats: %w: data", ErrMissingField)
	}

	total, err := requireDecimal("data.total_market_cap.usd", body.Data.TotalMarketCap.usd(), true)
	if err != nil {
		return models.GlobalStats{}, fmt.Errorf("fetch global stats: %w", err)
	}

	pct := make(map[string]decimal.Decimal, len(body.Data.MarketCapPercentage))
	for sym, v := range body.Data.MarketCapPercentage {
		if v != nil {
			pct[sym] = *v
		}
	}
	return models.GlobalStats{TotalMarketCap: total, MarketCapPct: pct}, nil
}

// History returns up to days daily closes for a coin, oldest first, one point per UTC day
func (c *CoinGecko) History(ctx context.Context, id models.InstrumentID, days int) ([]HistoryPoint, error) {
	if days <= 0 {
		return nil, fmt.Errorf("history for %s: days must be positive", id)
	}
	q := url.Values{}
	q.Set("vs_currency", "usd")
	q.Set("days", fmt.Sprint(days))
	q.Set("interval", "daily")
	endpoint := fmt.Sprintf("%s/coins/%s/market_chart?%s", c.cfg.Endpoint, url.PathEscape(string(id)), q.Encode())

	var body marketChartResponse
	if err := c.getJSON(ctx, endpoint, c.headers(), &body); err != nil {
		return nil, sourceErr(id, err)
	}

	caps := pointsByDay(body.MarketCaps)
	vols := pointsByDay(body.TotalVolumes)

	byDay := make(map[time.Time]HistoryPoint)
	for _, p := range body.Prices {
		if len(p) < 2 {
			continue
		}
		day := msToDay(p[0])
		if _, ok := byDay[day]; ok {
			continue
		}
		hp := HistoryPoint{Day: day, Close: p[1], Volume: vols[day]}
		if mc, ok := caps[day]; ok {
			hp.MarketCap = decimal.NewNullDecimal(mc)
		}
		byDay[day] = hp
	}

	out := make([]HistoryPoint, 0, len(byDay))
	for _, hp := range byDay {
		out = append(out, hp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Day.Before(out[j].Day) })
	return out, nil
}

func pointsByDay(series [][]decimal.Decimal) map[time.Time]decimal.Decimal {
	m := make(map[time.Time]decimal.Decimal, len(series))
	for _, p := range series {
		if len(p) < 2 {
			continue
		}
		day := msToDay(p[0])
		if _, ok := m[day]; !ok {
			m[day] = p[1]
		}
	}
	return m
}

func msToDay(ms decimal.Decimal) time.Time {
	t := time.UnixMilli(ms.IntPart()).UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
