package report

import (
	"fmt"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Glyphs for the sign of a percent change
const (
	GlyphUp   = "▲"
	GlyphDown = "▼"
	GlyphFlat = ""
)

var printer = message.NewPrinter(language.English)

var (
	one  = decimal.NewFromInt(1)
	cent = decimal.RequireFromString("0.01")
)

// Glyph maps a signed percent change to its marker. Zero has no marker.
func Glyph(pct decimal.Decimal) string {
	switch pct.Sign() {
	case 1:
		return GlyphUp
	case -1:
		return GlyphDown
	default:
		return GlyphFlat
	}
}

// FormatDollars renders a USD amount with thousands separators. Precision grows
// as the amount shrinks: 2 places from $1, 4 from $0.01, 8 below that.
func FormatDollars(v decimal.Decimal) string {
	if v.IsNegative() {
		return "-" + FormatDollars(v.Neg())
	}
	places := int32(8)
	switch {
	case v.GreaterThanOrEqual(one):
		places = 2
	case v.GreaterThanOrEqual(cent):
		places = 4
	}
	return printer.Sprintf(fmt.Sprintf("$%%.%df", places), v.Round(places).InexactFloat64())
}

// FormatPercent rounds to two places and appends a percent sign
func FormatPercent(v decimal.Decimal) string {
	return fmt.Sprintf("%s%%", v.Round(2).String())
}
