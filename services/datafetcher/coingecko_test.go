package datafetcher

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"price_digest/models"
)

const bitcoinBody = `{
  "name": "Bitcoin",
  "symbol": "btc",
  "market_data": {
    "current_price": {"usd": 67000.5},
    "market_cap": {"usd": 1320000000000},
    "total_volume": {"usd": 25000000000},
    "price_change_percentage_24h": 1.234,
    "price_change_percentage_7d": -3.5,
    "price_change_percentage_30d": 0
  }
}`

func newCoinGeckoServer(t *testing.T, handler http.HandlerFunc) *CoinGecko {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewCoinGecko(CoinGeckoConfig{Endpoint: srv.URL, APIKey: "demo-key", Timeout: time.Second}, srv.Client(), nil)
}

func TestCoinGeckoFetch(t *testing.T) {
	cg := newCoinGeckoServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/coins/bitcoin" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if got := r.Header.Get("x-cg-demo-api-key"); got != "demo-key" {
			t.Errorf("api key header = %q", got)
		}
		fmt.Fprint(w, bitcoinBody)
	})

	snap, err := cg.Fetch(context.Background(), "bitcoin")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if snap.Ticker != "BTC" || snap.DisplayName != "Bitcoin" || snap.Kind != models.KindCrypto {
		t.Errorf("identity = %s/%s/%s", snap.Ticker, snap.DisplayName, snap.Kind)
	}
	if !snap.Price.Equal(decimal.RequireFromString("67000.5")) {
		t.Errorf("price = %s", snap.Price)
	}
	if !snap.MarketCap.Valid || !snap.MarketCap.Decimal.Equal(decimal.RequireFromString("1320000000000")) {
		t.Errorf("market cap = %+v", snap.MarketCap)
	}
	if !snap.ChangePct7d.Equal(decimal.RequireFromString("-3.5")) {
		t.Errorf("7d change = %s", snap.ChangePct7d)
	}
	if !snap.ChangePct30d.IsZero() {
		t.Errorf("30d change = %s, want 0", snap.ChangePct30d)
	}
}

func TestCoinGeckoFetchFailures(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		cause  error
	}{
		{
			name:   "server error",
			status: http.StatusInternalServerError,
			body:   `{"error":"boom"}`,
			cause:  ErrStatus,
		},
		{
			name:   "rate limited",
			status: http.StatusTooManyRequests,
			body:   `{}`,
			cause:  ErrStatus,
		},
		{
			name:   "missing price",
			status: http.StatusOK,
			body:   `{"name":"Bitcoin","symbol":"btc","market_data":{"current_price":{},"total_volume":{"usd":1},"price_change_percentage_24h":1,"price_change_percentage_7d":1,"price_change_percentage_30d":1}}`,
			cause:  ErrMissingField,
		},
		{
			name:   "null change",
			status: http.StatusOK,
			body:   `{"name":"Bitcoin","symbol":"btc","market_data":{"current_price":{"usd":1},"total_volume":{"usd":1},"price_change_percentage_24h":null,"price_change_percentage_7d":1,"price_change_percentage_30d":1}}`,
			cause:  ErrMissingField,
		},
		{
			name:   "negative volume",
			status: http.StatusOK,
			body:   `{"name":"Bitcoin","symbol":"btc","market_data":{"current_price":{"usd":1},"total_volume":{"usd":-5},"price_change_percentage_24h":1,"price_change_percentage_7d":1,"price_change_percentage_30d":1}}`,
			cause:  ErrInvalidField,
		},
		{
			name:   "no market data",
			status: http.StatusOK,
			body:   `{"name":"Bitcoin","symbol":"btc"}`,
			cause:  ErrMissingField,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cg := newCoinGeckoServer(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				fmt.Fprint(w, tt.body)
			})

			_, err := cg.Fetch(context.Background(), "bitcoin")
			var se *SourceError
			if !errors.As(err, &se) {
				t.Fatalf("error %v is not a SourceError", err)
			}
			if se.InstrumentID != "bitcoin" {
				t.Errorf("instrument = %q", se.InstrumentID)
			}
			if !errors.Is(err, tt.cause) {
				t.Errorf("error %v, want cause %v", err, tt.cause)
			}
		})
	}
}

func TestCoinGeckoFetchTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	cg := NewCoinGecko(CoinGeckoConfig{Endpoint: srv.URL, Timeout: 50 * time.Millisecond}, srv.Client(), nil)

	start := time.Now()
	_, err := cg.Fetch(context.Background(), "bitcoin")
	var se *SourceError
	if !errors.As(err, &se) {
		t.Fatalf("expected SourceError, got %v", err)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("fetch took %s, timeout not applied", elapsed)
	}
}

func TestCoinGeckoFetchGlobal(t *testing.T) {
	cg := newCoinGeckoServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/global" {
			t.Errorf("path = %s", r.URL.Path)
		}
		fmt.Fprint(w, `{"data":{"total_market_cap":{"usd":2400000000000,"eur":1},"market_cap_percentage":{"btc":54.1,"eth":17.2}}}`)
	})

	g, err := cg.FetchGlobal(context.Background())
	if err != nil {
		t.Fatalf("FetchGlobal: %v", err)
	}
	if !g.TotalMarketCap.Equal(decimal.RequireFromString("2400000000000")) {
		t.Errorf("total = %s", g.TotalMarketCap)
	}
	if got := g.MarketCapPct["btc"]; !got.Equal(decimal.RequireFromString("54.1")) {
		t.Errorf("btc dominance = %s", got)
	}
}

func TestCoinGeckoHistory(t *testing.T) {
	day1 := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC).UnixMilli()
	day2 := time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC).UnixMilli()
	day2Later := day2 + int64(13*time.Hour/time.Millisecond)

	cg := newCoinGeckoServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/coins/bitcoin/market_chart" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if r.URL.Query().Get("days") != "2" || r.URL.Query().Get("vs_currency") != "usd" {
			t.Errorf("query = %s", r.URL.RawQuery)
		}
		fmt.Fprintf(w, `{
		  "prices": [[%d, 61000], [%d, 62000], [%d, 62500]],
		  "market_caps": [[%d, 1200], [%d, 1210]],
		  "total_volumes": [[%d, 30], [%d, 31], [%d, 99]]
		}`, day2, day1, day2Later, day1, day2, day1, day2, day2Later)
	})

	points, err := cg.History(context.Background(), "bitcoin", 2)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(points) != 2 {
		t.Fatalf("got %d points, want 2", len(points))
	}
	if !points[0].Day.Before(points[1].Day) {
		t.Errorf("points not ordered: %v then %v", points[0].Day, points[1].Day)
	}
	if !points[0].Close.Equal(decimal.NewFromInt(62000)) {
		t.Errorf("day1 close = %s", points[0].Close)
	}
	if !points[1].Close.Equal(decimal.NewFromInt(61000)) {
		t.Errorf("day2 close = %s, want first sample of the day", points[1].Close)
	}
	if !points[1].MarketCap.Valid || !points[1].Volume.Equal(decimal.NewFromInt(31)) {
		t.Errorf("day2 = %+v", points[1])
	}
}
