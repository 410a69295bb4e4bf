// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package middleware

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/danielhkuo/propjockey/metrics"
	"github.com/danielhkuo/propjockey/models"
)

// captureLog points the zerolog global at a buffer for one test.
func captureLog(t *testing.T) *bytes.Buffer {
	t.Helper()
	prev := log.Logger
	t.Cleanup(func() { log.Logger = prev })

	var buf bytes.Buffer
	log.Logger = zerolog.New(&buf).Level(zerolog.InfoLevel)
	return &buf
}

func TestWithLogging(t *testing.T) {
	buf := captureLog(t)

	handler := WithLogging(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		w.Write([]byte("short and stout"))
	})
	req := httptest.NewRequest("POST", "/vote", nil)
	req.Header.Set("X-Forwarded-For", "203.0.113.9")
	w := httptest.NewRecorder()
	handler(w, req)

	if w.Code != http.StatusTeapot || w.Body.String() != "short and stout" {
		t.Errorf("Response altered: %d %q", w.Code, w.Body.String())
	}

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("Expected one JSON log line, got %q: %v", buf.String(), err)
	}
	if line["method"] != "POST" || line["path"] != "/vote" {
		t.Errorf("Unexpected request fields: %v", line)
	}
	if line["status"] != float64(http.StatusTeapot) {
		t.Errorf("Expected status 418 in log, got %v", line["status"])
	}
	if _, ok := line["duration_ms"]; !ok {
		t.Error("Expected duration_ms in log")
	}
}

func TestLoggingDefaultStatus(t *testing.T) {
	buf := captureLog(t)

	// Writing a body without WriteHeader is an implicit 200.
	handler := Logging(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("OK"))
	}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/health", nil))

	if !strings.Contains(buf.String(), `"status":200`) {
		t.Errorf("Expected status 200 in log, got %s", buf.String())
	}
}

func TestStatusRecorderReuse(t *testing.T) {
	w := httptest.NewRecorder()
	outer := record(w)
	if inner := record(outer); inner != outer {
		t.Error("record should reuse an existing recorder")
	}

	outer.WriteHeader(http.StatusConflict)
	if outer.status != http.StatusConflict || w.Code != http.StatusConflict {
		t.Errorf("status not forwarded: recorder=%d response=%d", outer.status, w.Code)
	}
}

func TestStackedMiddlewareSeesHandlerStatus(t *testing.T) {
	buf := captureLog(t)

	r := mux.NewRouter()
	r.Use(Metrics, Logging)
	r.HandleFunc("/stacked", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	})
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/stacked", nil))

	if !strings.Contains(buf.String(), `"status":202`) {
		t.Errorf("Logging missed the status: %s", buf.String())
	}
	body := scrapeMetrics(t)
	if !strings.Contains(body, `propjockey_http_requests_total{method="GET",route="/stacked",status="202"}`) {
		t.Errorf("Metrics missed the status:\n%s", body)
	}
}

func scrapeMetrics(t *testing.T) string {
	t.Helper()
	w := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(w, httptest.NewRequest("GET", "/metrics", nil))
	return w.Body.String()
}

func TestMetricsRouteLabels(t *testing.T) {
	r := mux.NewRouter()
	r.Use(Metrics)
	r.HandleFunc("/entries/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	for _, id := range []string{"mp-1", "mp-2", "mp-3"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/entries/"+id, nil))
	}

	// Outside a router there is no current route.
	bare := Metrics(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	bare.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/nowhere", nil))

	body := scrapeMetrics(t)
	tests := []struct {
		name string
		want string
	}{
		{"template label", `propjockey_http_requests_total{method="GET",route="/entries/{id}",status="204"} 3`},
		{"unmatched fallback", `propjockey_http_requests_total{method="GET",route="unmatched",status="404"}`},
		{"latency histogram", `propjockey_http_request_duration_seconds_count{method="GET",route="/entries/{id}"} 3`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !strings.Contains(body, tt.want) {
				t.Errorf("metrics missing %s", tt.want)
			}
		})
	}
	if strings.Contains(body, "mp-1") {
		t.Error("raw paths must not become labels")
	}
}

func TestCodedErrorResponse(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		code       string
		message    string
		wantError  string
		wantInJSON bool
	}{
		{"auth required", http.StatusUnauthorized, models.CodeAuthRequired, "Sign in to request data", "Unauthorized", true},
		{"already voted", http.StatusConflict, models.CodeAlreadyVoted, "already voted for mp-1", "Conflict", true},
		{"bad filter", http.StatusBadRequest, models.CodeBadFilter, "invalid JSON", "Bad Request", true},
		{"service error", http.StatusInternalServerError, models.CodeServiceUnavailable, "Database error", "Internal Server Error", true},
		{"uncoded", http.StatusNotFound, "", "no such entry", "Not Found", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			CodedErrorResponse(w, tt.status, tt.code, tt.message)

			if w.Code != tt.status {
				t.Errorf("Expected status %d, got %d", tt.status, w.Code)
			}
			if ct := w.Header().Get("Content-Type"); ct != "application/json" {
				t.Errorf("Expected application/json, got %s", ct)
			}
			raw := w.Body.String()
			var resp models.ErrorResponse
			if err := json.Unmarshal([]byte(raw), &resp); err != nil {
				t.Fatalf("Failed to decode: %v", err)
			}
			if resp.Error != tt.wantError || resp.Code != tt.code || resp.Message != tt.message {
				t.Errorf("Unexpected envelope %+v", resp)
			}
			if got := strings.Contains(raw, `"code"`); got != tt.wantInJSON {
				t.Errorf("code key present = %v, want %v: %s", got, tt.wantInJSON, raw)
			}
		})
	}
}

func TestErrorResponseHasNoCode(t *testing.T) {
	w := httptest.NewRecorder()
	ErrorResponse(w, http.StatusBadRequest, "bad input")

	if strings.Contains(w.Body.String(), `"code"`) {
		t.Errorf("ErrorResponse should omit code: %s", w.Body.String())
	}
}

func TestParseJSONBody(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		want    models.VoteRequest
		wantErr bool
	}{
		{"vote", `{"entry_id":"mp-1","direction":"up"}`, models.VoteRequest{EntryID: "mp-1", Direction: "up"}, false},
		{"extra fields", `{"entry_id":"mp-2","direction":"down","why":"x"}`, models.VoteRequest{EntryID: "mp-2", Direction: "down"}, false},
		{"invalid", `{"entry_id":`, models.VoteRequest{}, true},
		{"empty", ``, models.VoteRequest{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("POST", "/vote", strings.NewReader(tt.body))
			var got models.VoteRequest
			err := ParseJSONBody(req, &got)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("got %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestCORS(t *testing.T) {
	tests := []struct {
		name       string
		origins    []string
		method     string
		origin     string
		wantAllow  string
		wantNext   bool
		wantStatus int
	}{
		{"no origin header", nil, "GET", "", "*", true, http.StatusOK},
		{"open list reflects origin", nil, "GET", "https://any.example.com", "https://any.example.com", true, http.StatusOK},
		{"allowed origin", []string{"https://app.example.org"}, "POST", "https://app.example.org", "https://app.example.org", true, http.StatusOK},
		{"second allowed origin", []string{"https://a.example.org", "https://b.example.org"}, "GET", "https://b.example.org", "https://b.example.org", true, http.StatusOK},
		{"origin not on list", []string{"https://app.example.org"}, "GET", "https://evil.example.com", "", true, http.StatusOK},
		{"preflight short-circuits", []string{"https://app.example.org"}, "OPTIONS", "https://app.example.org", "https://app.example.org", false, http.StatusOK},
		{"rejected preflight", []string{"https://app.example.org"}, "OPTIONS", "https://evil.example.com", "", false, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			called := false
			handler := CORS(tt.origins...)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				called = true
			}))
			req := httptest.NewRequest(tt.method, "/vote", nil)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			if w.Code != tt.wantStatus {
				t.Errorf("Expected status %d, got %d", tt.wantStatus, w.Code)
			}
			if called != tt.wantNext {
				t.Errorf("next called = %v, want %v", called, tt.wantNext)
			}
			if got := w.Header().Get("Access-Control-Allow-Origin"); got != tt.wantAllow {
				t.Errorf("Allow-Origin = %q, want %q", got, tt.wantAllow)
			}
			if tt.wantAllow == "" {
				if h := w.Header().Get("Access-Control-Allow-Methods"); h != "" {
					t.Errorf("rejected origin got Allow-Methods %q", h)
				}
				return
			}
			if h := w.Header().Get("Access-Control-Allow-Headers"); !strings.Contains(h, "Authorization") {
				t.Errorf("Allow-Headers = %q, want Authorization", h)
			}
			if h := w.Header().Get("Access-Control-Allow-Methods"); h != "GET, POST, OPTIONS" {
				t.Errorf("Allow-Methods = %q", h)
			}
		})
	}
}

func TestGetClientIP(t *testing.T) {
	tests := []struct {
		name       string
		headers    map[string]string
		remoteAddr string
		want       string
	}{
		{"forwarded chain uses first hop", map[string]string{"X-Forwarded-For": "203.0.113.9, 10.0.0.1"}, "10.0.0.2:5000", "203.0.113.9"},
		{"forwarded wins over real ip", map[string]string{"X-Forwarded-For": "203.0.113.9", "X-Real-IP": "198.51.100.4"}, "10.0.0.2:5000", "203.0.113.9"},
		{"real ip", map[string]string{"X-Real-IP": "198.51.100.4"}, "10.0.0.2:5000", "198.51.100.4"},
		{"remote addr port stripped", nil, "192.0.2.7:41234", "192.0.2.7"},
		{"remote addr without port", nil, "192.0.2.7", "192.0.2.7"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/rows", nil)
			req.RemoteAddr = tt.remoteAddr
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			if got := GetClientIP(req); got != tt.want {
				t.Errorf("GetClientIP = %q, want %q", got, tt.want)
			}
		})
	}
}
