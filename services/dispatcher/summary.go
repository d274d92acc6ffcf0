package dispatcher

import "time"

// Per-user outcome statuses
const (
	StatusSent           = "sent"
	StatusUnsubscribed   = "unsubscribed"
	StatusRenderFailed   = "render_failed"
	StatusDeliveryFailed = "delivery_failed"
	StatusCancelled      = "cancelled"
)

// UserOutcome is the result of one user's build and send
type UserOutcome struct {
	Email  string `json:"email" bson:"email"`
	Status string `json:"status" bson:"status"`
	Error  string `json:"error,omitempty" bson:"error,omitempty"`
}

// RunSummary records everything a run did, for logs and the run archive
type RunSummary struct {
	RunID      string    `json:"run_id" bson:"run_id"`
	StartedAt  time.Time `json:"started_at" bson:"started_at"`
	FinishedAt time.Time `json:"finished_at" bson:"finished_at"`
	Day        string    `json:"day" bson:"day"`
	Tier       string    `json:"tier" bson:"tier"`
	Timeframe  string    `json:"timeframe" bson:"timeframe"`
	MarketOpen bool      `json:"market_open" bson:"market_open"`

	Instruments       int      `json:"instruments" bson:"instruments"`
	FailedInstruments []string `json:"failed_instruments" bson:"failed_instruments"`
	GlobalStatsOK     bool     `json:"global_stats_ok" bson:"global_stats_ok"`

	Persisted      int      `json:"persisted" bson:"persisted"`
	PersistSkipped int      `json:"persist_skipped" bson:"persist_skipped"`
	PersistErrors  []string `json:"persist_errors" bson:"persist_errors"`

	Users          int           `json:"users" bson:"users"`
	Sent           int           `json:"sent" bson:"sent"`
	Unsubscribed   int           `json:"unsubscribed" bson:"unsubscribed"`
	RenderFailed   int           `json:"render_failed" bson:"render_failed"`
	DeliveryFailed int           `json:"delivery_failed" bson:"delivery_failed"`
	Outcomes       []UserOutcome `json:"outcomes" bson:"outcomes"`

	Error string `json:"error,omitempty" bson:"error,omitempty"`
}

func (s *RunSummary) tally() {
	s.Sent, s.Unsubscribed, s.RenderFailed, s.DeliveryFailed = 0, 0, 0, 0
	for _, o := range s.Outcomes {
		switch o.Status {
		case StatusSent:
			s.Sent++
		case StatusUnsubscribed:
			s.Unsubscribed++
		case StatusRenderFailed:
			s.RenderFailed++
		case StatusDeliveryFailed:
			s.DeliveryFailed++
		}
	}
}
