package web

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/ritzau/framegraph/pkg/framegraph"
	"github.com/ritzau/framegraph/pkg/logging"
	"github.com/ritzau/framegraph/pkg/model"
	"github.com/ritzau/framegraph/pkg/pool"
	"github.com/ritzau/framegraph/pkg/pubsub"
	"github.com/ritzau/framegraph/pkg/script"
)

func TestMain(m *testing.M) {
	logging.Discard()
	os.Exit(m.Run())
}

func compiledFrame(t *testing.T) *Frame {
	t.Helper()
	f, err := script.Load("../script/testdata/deferred.toml")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	fg := framegraph.New(framegraph.WithFrameID("test-frame"))
	rec := &script.Recorder{}
	if err := f.Build(fg, rec); err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	fg.Compile()
	if err := fg.Execute(context.Background()); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	return &Frame{
		Name:       f.Name,
		Graph:      fg.Snapshot(),
		Plan:       fg.Plan(),
		Executions: rec.Executions(),
	}
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestEndpointsWithoutFrame(t *testing.T) {
	s := NewServer()
	h := s.Handler()

	for _, path := range []string{"/api/frame", "/api/frame.dot", "/api/plan", "/api/resources/hdr"} {
		if rec := get(t, h, path); rec.Code != http.StatusServiceUnavailable {
			t.Errorf("%s: expected 503, got %d", path, rec.Code)
		}
	}
	if rec := get(t, h, "/api/executions"); rec.Code != http.StatusOK || strings.TrimSpace(rec.Body.String()) != "[]" {
		t.Errorf("Expected empty executions, got %d %q", rec.Code, rec.Body.String())
	}
}

func TestFrameEndpoints(t *testing.T) {
	s := NewServer()
	if err := s.SetFrame(compiledFrame(t)); err != nil {
		t.Fatalf("SetFrame failed: %v", err)
	}
	h := s.Handler()

	rec := get(t, h, "/api/plan")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200 for plan, got %d", rec.Code)
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("Expected a request ID header")
	}
	var plan model.Plan
	if err := json.Unmarshal(rec.Body.Bytes(), &plan); err != nil {
		t.Fatalf("Failed to decode plan: %v", err)
	}
	if plan.Frame != "test-frame" {
		t.Errorf("Expected frame ID test-frame, got %q", plan.Frame)
	}
	if len(plan.Culled) != 1 || plan.Culled[0] != "debug_overlay" {
		t.Errorf("Expected debug_overlay culled, got %v", plan.Culled)
	}

	rec = get(t, h, "/api/frame")
	var g model.Graph
	if err := json.Unmarshal(rec.Body.Bytes(), &g); err != nil {
		t.Fatalf("Failed to decode graph: %v", err)
	}
	if len(g.Nodes) == 0 || len(g.Edges) == 0 {
		t.Errorf("Expected a populated graph, got %d nodes %d edges", len(g.Nodes), len(g.Edges))
	}

	rec = get(t, h, "/api/frame.dot")
	if !strings.Contains(rec.Body.String(), "digraph") {
		t.Errorf("Expected DOT output, got %q", rec.Body.String())
	}

	rec = get(t, h, "/api/resources/hdr")
	var info model.ResourceInfo
	if err := json.Unmarshal(rec.Body.Bytes(), &info); err != nil {
		t.Fatalf("Failed to decode resource: %v", err)
	}
	if info.Name != "hdr" || !info.Live {
		t.Errorf("Unexpected hdr info %+v", info)
	}

	if rec := get(t, h, "/api/resources/nope"); rec.Code != http.StatusNotFound {
		t.Errorf("Expected 404 for unknown resource, got %d", rec.Code)
	}

	rec = get(t, h, "/api/executions")
	var execs []script.Execution
	if err := json.Unmarshal(rec.Body.Bytes(), &execs); err != nil {
		t.Fatalf("Failed to decode executions: %v", err)
	}
	if len(execs) != 5 {
		t.Errorf("Expected 5 executions, got %d", len(execs))
	}
}

func TestPoolEndpoint(t *testing.T) {
	s := NewServer()
	s.SetPoolStats(pool.Stats{Created: 3, Reused: 2, Idle: 1})

	rec := get(t, s.Handler(), "/api/pool")
	var stats pool.Stats
	if err := json.Unmarshal(rec.Body.Bytes(), &stats); err != nil {
		t.Fatalf("Failed to decode stats: %v", err)
	}
	if stats.Created != 3 || stats.Reused != 2 || stats.Idle != 1 {
		t.Errorf("Unexpected stats %+v", stats)
	}
}

func TestStaticIndex(t *testing.T) {
	rec := get(t, NewServer().Handler(), "/")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "Frame Graph") {
		t.Errorf("Expected index page, got %d", rec.Code)
	}
}

func TestSubscribeUnknownTopic(t *testing.T) {
	if rec := get(t, NewServer().Handler(), "/api/subscribe/bogus"); rec.Code != http.StatusNotFound {
		t.Errorf("Expected 404 for unknown topic, got %d", rec.Code)
	}
}

func TestSubscribeReplaysLatestFrame(t *testing.T) {
	s := NewServer()
	if err := s.SetFrame(compiledFrame(t)); err != nil {
		t.Fatalf("SetFrame failed: %v", err)
	}
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/subscribe/frames", nil)
	if err != nil {
		t.Fatalf("NewRequest failed: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Expected event stream, got %q", ct)
	}

	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var ev pubsub.Event
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &ev); err != nil {
			t.Fatalf("Failed to decode event: %v", err)
		}
		var summary pubsub.FrameSummary
		if err := json.Unmarshal(ev.Data, &summary); err != nil {
			t.Fatalf("Failed to decode summary: %v", err)
		}
		if ev.Type != "compiled" || summary.Frame != "test-frame" || !summary.Executed {
			t.Errorf("Unexpected summary %s %+v", ev.Type, summary)
		}
		if summary.Passes != 6 {
			t.Errorf("Expected 6 passes, got %d", summary.Passes)
		}
		return
	}
	t.Fatalf("No event received: %v", scanner.Err())
}
