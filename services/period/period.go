package period

import "time"

// Tier is the significance of a run's report
type Tier string

const (
	Daily   Tier = "Daily"
	Weekly  Tier = "Weekly"
	Monthly Tier = "Monthly"
)

// Timeframe labels shown next to longer-horizon changes
const (
	LabelDaily   = "1D"
	LabelWeekly  = "7D"
	LabelMonthly = "1M"
)

// MarketClosedRunDays are the UTC run days with no fresh US equity session to report.
// The digest runs at 00:00 UTC, so a Sunday run covers Saturday and a Monday run covers Sunday.
var MarketClosedRunDays = map[time.Weekday]bool{
	time.Sunday: true,
	time.Monday: true,
}

// Classification describes the run date
type Classification struct {
	Tier       Tier   `json:"tier"`
	Timeframe  string `json:"timeframe"`
	MarketOpen bool   `json:"market_open"`
}

// Longer reports whether the tier carries a longer-horizon change line
func (c Classification) Longer() bool {
	return c.Tier == Weekly || c.Tier == Monthly
}

// Classify derives the tier and market status from t's UTC calendar date.
// The first of the month is Monthly even when it falls on a Monday.
func Classify(t time.Time) Classification {
	t = t.UTC()
	c := Classification{Tier: Daily, Timeframe: LabelDaily}
	switch {
	case t.Day() == 1:
		c.Tier, c.Timeframe = Monthly, LabelMonthly
	case t.Weekday() == time.Monday:
		c.Tier, c.Timeframe = Weekly, LabelWeekly
	}
	c.MarketOpen = !MarketClosedRunDays[t.Weekday()]
	return c
}
