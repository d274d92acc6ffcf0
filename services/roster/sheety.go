package roster

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"price_digest/models"
)

// Column keys of the signup spreadsheet as Sheety exposes them
const (
	sheetyEmailKey       = "emailAddress"
	sheetyPreferencesKey = "anyExtraDataYou'dLikeInYourReport?"
	sheetyUnsubscribeKey = "unsubscribe?"
)

// SheetyRoster reads the signup spreadsheet through the Sheety API
type SheetyRoster struct {
	endpoint   string
	bearer     string
	timeout    time.Duration
	httpClient *http.Client
	logger     *zap.Logger
}

func NewSheetyRoster(endpoint, bearer string, timeout time.Duration, client *http.Client, logger *zap.Logger) *SheetyRoster {
	if client == nil {
		client = &http.Client{}
	}
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SheetyRoster{endpoint: endpoint, bearer: bearer, timeout: timeout, httpClient: client, logger: logger}
}

type sheetyResponse struct {
	Users []map[string]any `json:"users"`
}

// Users fetches the sheet. Rows without an email address are skipped.
func (r *SheetyRoster) Users(ctx context.Context) ([]models.UserPreference, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.endpoint, nil)
	if err != nil {
		return nil, &RosterError{Source: "sheety", Cause: err}
	}
	req.Header.Set("Accept", "application/json")
	if r.bearer != "" {
		req.Header.Set("Authorization", "Bearer "+r.bearer)
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, &RosterError{Source: "sheety", Cause: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &RosterError{Source: "sheety", Cause: fmt.Errorf("status %d: %s", resp.StatusCode, string(body))}
	}

	var body sheetyResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, &RosterError{Source: "sheety", Cause: fmt.Errorf("decode: %w", err)}
	}
	if body.Users == nil {
		return nil, &RosterError{Source: "sheety", Cause: fmt.Errorf("response has no users list")}
	}

	out := make([]models.UserPreference, 0, len(body.Users))
	for i, row := range body.Users {
		email, _ := row[sheetyEmailKey].(string)
		email = strings.TrimSpace(email)
		if email == "" {
			r.logger.Warn("roster row without email", zap.Int("row", i))
			continue
		}
		pref := models.UserPreference{
			Email:        email,
			Unsubscribed: truthy(row[sheetyUnsubscribeKey]),
		}
		if opts, ok := row[sheetyPreferencesKey].(string); ok && strings.TrimSpace(opts) != "" {
			pref.RawOptions = &opts
		}
		out = append(out, pref)
	}
	return out, nil
}

// truthy treats any non-empty cell in the unsubscribe column as an opt-out
func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return strings.TrimSpace(t) != ""
	default:
		return true
	}
}
