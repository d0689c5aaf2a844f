package logging

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestCompactHandlerFormat(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(NewCompactHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})).
		With("component", "framegraph")

	log.Info("frame compiled", "passes", 5, "name", "deferred frame", "frameID", "0123456789abcdef")

	out := buf.String()
	if !strings.HasPrefix(out, "[INFO]  ") {
		t.Errorf("Expected INFO prefix, got %q", out)
	}
	for _, want := range []string{
		"framegraph: frame compiled |",
		"passes=5",
		`name="deferred frame"`,
		"frame=01234567",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("Expected %q in %q", want, out)
		}
	}
	if strings.Contains(out, "component=") {
		t.Errorf("Expected component as prefix only, got %q", out)
	}
}

func TestCompactHandlerLevel(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(NewCompactHandler(&buf, &slog.HandlerOptions{Level: slog.LevelWarn}))

	log.Info("hidden")
	log.Warn("shown")
	log.Log(context.Background(), LevelTrace, "also hidden")

	if out := buf.String(); strings.Contains(out, "hidden") || !strings.Contains(out, "[WARN]  ") {
		t.Errorf("Unexpected output %q", out)
	}
}

func TestCompactHandlerGroup(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(NewCompactHandler(&buf, nil)).WithGroup("pool")
	log.Info("stats", "idle", 2)

	if !strings.Contains(buf.String(), "pool.idle=2") {
		t.Errorf("Expected grouped key, got %q", buf.String())
	}
}

func TestAttrsKeepTheirGroup(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf, slog.LevelInfo)
	defer Discard()

	New("web").With("frame", "f1").WithGroup("req").With("path", "/api/plan").Info("served", "status", 200)

	out := buf.String()
	for _, want := range []string{"web: served |", "frame=f1", "req.path=/api/plan", "req.status=200"} {
		if !strings.Contains(out, want) {
			t.Errorf("Expected %q in %q", want, out)
		}
	}
	if strings.Contains(out, "req.frame") {
		t.Errorf("Expected attribute added before the group to stay outside it, got %q", out)
	}

	buf.Reset()
	slog.New(NewCompactHandler(&buf, nil)).With("a", 1).WithGroup("g").Info("m", "b", 2)
	if out := buf.String(); !strings.Contains(out, " a=1") || !strings.Contains(out, "g.b=2") {
		t.Errorf("Expected a=1 and g.b=2, got %q", out)
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		name    string
		verbose int
		want    slog.Level
	}{
		{"", 0, slog.LevelInfo},
		{"", 1, slog.LevelDebug},
		{"", 3, LevelTrace},
		{"warning", 2, slog.LevelWarn},
		{"error", 0, slog.LevelError},
		{"trace", 0, LevelTrace},
		{"bogus", 0, slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.name, tt.verbose); got != tt.want {
			t.Errorf("ParseLevel(%q, %d) = %v, want %v", tt.name, tt.verbose, got, tt.want)
		}
	}
}

func TestComponentLoggerFollowsOutput(t *testing.T) {
	log := New("pool")

	var buf bytes.Buffer
	SetOutput(&buf, slog.LevelDebug)
	defer Discard()

	log.Debug("evicted", "key", "rgba8unorm")
	if !strings.Contains(buf.String(), "pool: evicted | key=rgba8unorm") {
		t.Errorf("Expected component logger to use new output, got %q", buf.String())
	}
}

func TestContextIDs(t *testing.T) {
	ctx := WithFrameID(WithRequestID(context.Background(), "req-1"), "frame-1")
	if GetRequestID(ctx) != "req-1" || GetFrameID(ctx) != "frame-1" {
		t.Errorf("Unexpected IDs %q %q", GetRequestID(ctx), GetFrameID(ctx))
	}
	if GetFrameID(context.Background()) != "" {
		t.Error("Expected empty frame ID")
	}

	args := withIDs(ctx, []any{"k", "v"})
	if len(args) != 6 || args[0] != "requestID" || args[2] != "frameID" {
		t.Errorf("Unexpected args %v", args)
	}
}

func TestRequestIDMiddleware(t *testing.T) {
	Discard()

	var seen string
	h := RequestIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r.Context())
		w.WriteHeader(http.StatusTeapot)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/plan", nil)
	req.Header.Set("X-Request-ID", "abc")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if seen != "abc" || rec.Header().Get("X-Request-ID") != "abc" {
		t.Errorf("Expected request ID abc to propagate, got %q / %q", seen, rec.Header().Get("X-Request-ID"))
	}
	if rec.Code != http.StatusTeapot {
		t.Errorf("Expected status to pass through, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if len(rec.Header().Get("X-Request-ID")) != 36 {
		t.Errorf("Expected generated UUID, got %q", rec.Header().Get("X-Request-ID"))
	}
}
