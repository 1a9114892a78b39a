package dashboard

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/quaxel/eodstrangle/internal/storage"
)

// memStorage is an in-memory attempt log for handler tests.
type memStorage struct {
	attempts []storage.AttemptRecord
}

func (m *memStorage) RecordAttempt(rec storage.AttemptRecord) error {
	m.attempts = append(m.attempts, rec)
	return nil
}

func (m *memStorage) Attempts() []storage.AttemptRecord { return m.attempts }

func (m *memStorage) AttemptsForSymbol(symbol string) []storage.AttemptRecord {
	var out []storage.AttemptRecord
	for _, a := range m.attempts {
		if a.Symbol == symbol {
			out = append(out, a)
		}
	}
	return out
}

func testServer(token string) (*Server, *memStorage) {
	store := &memStorage{attempts: []storage.AttemptRecord{
		{ID: "a1", Symbol: "CL", State: "staged", CreatedAt: time.Date(2026, 9, 1, 16, 0, 0, 0, time.UTC)},
		{ID: "a2", Symbol: "CL", State: "transmitted", CreatedAt: time.Date(2026, 9, 2, 16, 0, 0, 0, time.UTC)},
		{ID: "a3", Symbol: "SPY", State: "staged", CreatedAt: time.Date(2026, 9, 2, 16, 5, 0, 0, time.UTC)},
	}}
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return NewServer(Config{Addr: ":0", AuthToken: token}, store, logger), store
}

func TestHealth(t *testing.T) {
	s, _ := testServer("")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decoding body: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("body = %v", body)
	}
}

func TestAttemptsEndpoints(t *testing.T) {
	s, _ := testServer("")

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/attempts", nil))
	var all []storage.AttemptRecord
	if err := json.Unmarshal(rec.Body.Bytes(), &all); err != nil {
		t.Fatalf("decoding attempts: %v", err)
	}
	if len(all) != 3 {
		t.Errorf("expected 3 attempts, got %d", len(all))
	}

	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/attempts/CL", nil))
	var cl []storage.AttemptRecord
	if err := json.Unmarshal(rec.Body.Bytes(), &cl); err != nil {
		t.Fatalf("decoding attempts: %v", err)
	}
	if len(cl) != 2 {
		t.Errorf("expected 2 CL attempts, got %d", len(cl))
	}
}

func TestSummary(t *testing.T) {
	s, _ := testServer("")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/summary", nil))

	var view summaryView
	if err := json.Unmarshal(rec.Body.Bytes(), &view); err != nil {
		t.Fatalf("decoding summary: %v", err)
	}
	if view.Total != 3 || view.ByState["staged"] != 2 || view.BySymbol["CL"] != 2 {
		t.Errorf("summary = %+v", view)
	}
	if view.LastAttempt == nil {
		t.Error("last attempt missing")
	}
}

func TestAuthMiddleware(t *testing.T) {
	s, _ := testServer("sekrit")

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/attempts", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("unauthenticated status = %d, want 401", rec.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/attempts", nil)
	req.Header.Set("X-Auth-Token", "sekrit")
	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("authenticated status = %d, want 200", rec.Code)
	}

	// Health stays open.
	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("health status = %d, want 200", rec.Code)
	}
}
