package logger

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestNewFallsBackToInfo(t *testing.T) {
	l := New("not-a-level")
	if l.GetLevel() != zerolog.InfoLevel {
		t.Errorf("Expected info level, got %v", l.GetLevel())
	}

	l = New("DEBUG")
	if l.GetLevel() != zerolog.DebugLevel {
		t.Errorf("Expected debug level, got %v", l.GetLevel())
	}
}

func TestMiddleware(t *testing.T) {
	var buf bytes.Buffer
	l := zerolog.New(&buf)

	var sawLogger bool
	h := Middleware(l)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sawLogger = zerolog.Ctx(r.Context()).GetLevel() != zerolog.Disabled
		w.WriteHeader(http.StatusTeapot)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/posts/hello", nil))

	if !sawLogger {
		t.Error("Expected the request context to carry a logger")
	}
	if rec.Header().Get("X-Request-Id") == "" {
		t.Error("Expected a request id header")
	}
	if !strings.Contains(buf.String(), `"status":418`) {
		t.Errorf("Expected an access line with the status, got %s", buf.String())
	}
}

func TestMiddlewareSkipsStreams(t *testing.T) {
	var buf bytes.Buffer
	h := Middleware(zerolog.New(&buf))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/sse?topic=x", nil))

	if buf.Len() != 0 {
		t.Errorf("Expected no access line for streams, got %s", buf.String())
	}
}
