package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestRateLimiterAllow(t *testing.T) {
	now := time.Date(2024, 3, 12, 10, 0, 0, 0, time.UTC)
	rl := NewRateLimiter(3, time.Minute, 5*time.Minute)
	rl.now = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		if ok, _, _ := rl.Allow("1.2.3.4"); !ok {
			t.Fatalf("attempt %d refused", i+1)
		}
	}
	ok, remaining, wait := rl.Allow("1.2.3.4")
	if ok || remaining != 0 || wait != 5*time.Minute {
		t.Errorf("4th attempt = %v %d %s", ok, remaining, wait)
	}
	if ok, _, _ := rl.Allow("5.6.7.8"); !ok {
		t.Error("other IPs must not be affected")
	}

	now = now.Add(6 * time.Minute)
	if ok, remaining, _ := rl.Allow("1.2.3.4"); !ok || remaining != 2 {
		t.Errorf("after lock expiry = %v %d", ok, remaining)
	}
}

func TestRateLimiterWindowReset(t *testing.T) {
	now := time.Date(2024, 3, 12, 10, 0, 0, 0, time.UTC)
	rl := NewRateLimiter(2, time.Minute, time.Hour)
	rl.now = func() time.Time { return now }

	rl.Allow("ip")
	rl.Allow("ip")
	now = now.Add(2 * time.Minute)
	if ok, _, _ := rl.Allow("ip"); !ok {
		t.Error("window should have reset")
	}

	rl.cleanup()
	if len(rl.attempts) != 1 {
		t.Errorf("attempts = %d", len(rl.attempts))
	}
}

func TestFormRateLimitMiddleware(t *testing.T) {
	rl := NewRateLimiter(1, time.Minute, time.Minute)
	r := gin.New()
	r.Use(FormRateLimitMiddleware(rl))
	r.POST("/signup", func(c *gin.Context) { c.Status(http.StatusCreated) })
	r.GET("/signup", func(c *gin.Context) { c.Status(http.StatusOK) })

	do := func(method string) *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(method, "/signup", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		r.ServeHTTP(w, req)
		return w
	}

	if w := do(http.MethodPost); w.Code != http.StatusCreated {
		t.Fatalf("first POST = %d", w.Code)
	}
	w := do(http.MethodPost)
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("second POST = %d", w.Code)
	}
	if w.Header().Get("Retry-After") == "" {
		t.Error("missing Retry-After")
	}
	if w := do(http.MethodGet); w.Code != http.StatusOK {
		t.Errorf("GET should not be limited, got %d", w.Code)
	}
}

type stubParser map[string]string

func (s stubParser) Parse(token string) (string, error) {
	if email, ok := s[token]; ok {
		return email, nil
	}
	return "", errors.New("bad token")
}

func TestUnsubscribeTokenMiddleware(t *testing.T) {
	r := gin.New()
	r.GET("/unsubscribe", UnsubscribeTokenMiddleware(stubParser{"good": "alice@example.com"}), func(c *gin.Context) {
		c.String(http.StatusOK, c.GetString(SubscriberEmailKey))
	})

	tests := []struct {
		query string
		code  int
		body  string
	}{
		{"?token=good", http.StatusOK, "alice@example.com"},
		{"?token=forged", http.StatusUnauthorized, ""},
		{"", http.StatusBadRequest, ""},
	}
	for _, tt := range tests {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/unsubscribe"+tt.query, nil))
		if w.Code != tt.code {
			t.Errorf("%q: status = %d, want %d", tt.query, w.Code, tt.code)
		}
		if tt.body != "" && w.Body.String() != tt.body {
			t.Errorf("%q: body = %q", tt.query, w.Body.String())
		}
	}
}

func TestRequestLogger(t *testing.T) {
	r := gin.New()
	r.Use(RequestLogger(zap.NewNop()))
	r.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	if w.Code != http.StatusOK {
		t.Errorf("status = %d", w.Code)
	}
}
