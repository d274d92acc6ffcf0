package datafetcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"price_digest/models"
)

// Source fetches one instrument's snapshot from a remote API
type Source interface {
	Fetch(ctx context.Context, id models.InstrumentID) (models.Snapshot, error)
}

// Causes carried by SourceError. Missing and invalid fields are reported
// separately but callers treat every SourceError the same way.
var (
	ErrMissingField = errors.New("missing required field")
	ErrInvalidField = errors.New("invalid field")
	ErrStatus       = errors.New("unexpected HTTP status")
)

// SourceError reports a failed fetch for one instrument
type SourceError struct {
	InstrumentID models.InstrumentID
	Cause        error
}

func (e *SourceError) Error() string {
	return fmt.Sprintf("fetch %s: %v", e.InstrumentID, e.Cause)
}

func (e *SourceError) Unwrap() error {
	return e.Cause
}

func sourceErr(id models.InstrumentID, cause error) *SourceError {
	return &SourceError{InstrumentID: id, Cause: cause}
}

// httpGetter is the request plumbing shared by every source
type httpGetter struct {
	client  *http.Client
	timeout time.Duration
	logger  *zap.Logger
}

func newHTTPGetter(client *http.Client, timeout time.Duration, logger *zap.Logger) httpGetter {
	if client == nil {
		client = &http.Client{}
	}
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return httpGetter{client: client, timeout: timeout, logger: logger}
}

// getJSON issues a GET bounded by the per-fetch timeout and decodes the body into out
func (g httpGetter) getJSON(ctx context.Context, url string, headers map[string]string, out any) error {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	for k, v := range headers {
		if v != "" {
			req.Header.Set(k, v)
		}
	}

	start := time.Now()
	resp, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	g.logger.Debug("source response",
		zap.String("url", req.URL.Path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", time.Since(start)),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%w %d: %s", ErrStatus, resp.StatusCode, string(body))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// requireDecimal checks a required numeric field
func requireDecimal(field string, v *decimal.Decimal, nonNegative bool) (decimal.Decimal, error) {
	if v == nil {
		return decimal.Zero, fmt.Errorf("%w: %s", ErrMissingField, field)
	}
	if nonNegative && v.IsNegative() {
		return decimal.Zero, fmt.Errorf("%w: %s is negative (%s)", ErrInvalidField, field, v.String())
	}
	return *v, nil
}

// optionalDecimal accepts an absent field but still rejects negatives
func optionalDecimal(field string, v *decimal.Decimal) (decimal.NullDecimal, error) {
	if v == nil {
		return decimal.NullDecimal{}, nil
	}
	if v.IsNegative() {
		return decimal.NullDecimal{}, fmt.Errorf("%w: %s is negative (%s)", ErrInvalidField, field, v.String())
	}
	return decimal.NewNullDecimal(*v), nil
}
