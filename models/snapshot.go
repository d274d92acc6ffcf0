package models

import (
	"github.com/shopspring/decimal"
)

// InstrumentID is the remote API's key for an asset or index, e.g. "bitcoin" or "SP:SPX"
type InstrumentID string

// InstrumentKind selects which source serves an instrument
type InstrumentKind string

const (
	KindCrypto InstrumentKind = "crypto"
	KindIndex  InstrumentKind = "index"
)

// Instrument is one entry of the tracked universe
type Instrument struct {
	ID          InstrumentID   `yaml:"id" json:"id"`
	Kind        InstrumentKind `yaml:"-" json:"kind"`
	DisplayName string         `yaml:"name" json:"name"`
	Ticker      string         `yaml:"ticker" json:"ticker"`
}

// Alias maps a multi-word display name to its instrument id
type Alias struct {
	Name string       `yaml:"name"`
	ID   InstrumentID `yaml:"id"`
}

// Snapshot is one instrument's market data for a run
type Snapshot struct {
	InstrumentID InstrumentID        `json:"instrument_id"`
	Kind         InstrumentKind      `json:"kind"`
	DisplayName  string              `json:"display_name"`
	Ticker       string              `json:"ticker"`
	Price        decimal.Decimal     `json:"price"`
	MarketCap    decimal.NullDecimal `json:"market_cap"`
	Volume       decimal.Decimal     `json:"volume"`
	ChangePct24h decimal.Decimal     `json:"change_pct_24h"`
	ChangePct7d  decimal.Decimal     `json:"change_pct_7d"`
	ChangePct30d decimal.Decimal     `json:"change_pct_30d"`
}

// GlobalStats holds market-wide crypto totals
type GlobalStats struct {
	TotalMarketCap decimal.Decimal            `json:"total_market_cap"`
	MarketCapPct   map[string]decimal.Decimal `json:"market_cap_percentage"`
}

// UserPreference is one roster entry. RawOptions is nil when the user picked nothing.
type UserPreference struct {
	Email        string
	RawOptions   *string
	Unsubscribed bool
}
