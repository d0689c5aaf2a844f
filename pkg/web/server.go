package web

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/ritzau/framegraph/pkg/logging"
	"github.com/ritzau/framegraph/pkg/model"
	"github.com/ritzau/framegraph/pkg/pool"
	"github.com/ritzau/framegraph/pkg/pubsub"
	"github.com/ritzau/framegraph/pkg/script"
)

//go:embed static/*
var staticFiles embed.FS

// Frame is everything the server knows about the latest compiled frame.
type Frame struct {
	Name       string
	Graph      *model.Graph
	Plan       *model.Plan
	Executions []script.Execution
}

// Server serves the latest frame and streams updates over SSE.
type Server struct {
	router    *mux.Router
	publisher *pubsub.SSEPublisher
	log       *slog.Logger

	mu    sync.RWMutex
	frame *Frame
	pool  *pool.Stats
}

// NewServer creates a new web server
func NewServer() *Server {
	ssePublisher := pubsub.NewSSEPublisher()

	// frame_status: buffer last 10 events, replay only last event to new subscribers
	ssePublisher.ConfigureTopic(pubsub.TopicFrameStatus, pubsub.TopicConfig{
		BufferSize: 10,
		ReplayAll:  false,
	})

	// frames: replay the latest summary so new clients can fetch right away
	ssePublisher.ConfigureTopic(pubsub.TopicFrames, pubsub.TopicConfig{
		BufferSize: 5,
		ReplayAll:  false,
	})

	s := &Server{
		router:    mux.NewRouter(),
		publisher: ssePublisher,
		log:       logging.New("web"),
	}
	s.setupRoutes()
	return s
}

// SetFrame replaces the served frame and notifies subscribers.
func (s *Server) SetFrame(f *Frame) error {
	s.mu.Lock()
	s.frame = f
	s.mu.Unlock()

	summary := pubsub.FrameSummary{
		Name:     f.Name,
		Executed: f.Executions != nil,
	}
	if f.Graph != nil {
		summary.Frame = f.Graph.Frame
		summary.Passes, summary.Live = f.Graph.LiveCount()
	}
	if f.Plan != nil {
		summary.Culled = f.Plan.Culled
		summary.Resources = len(f.Plan.Resources)
		summary.Passes += len(f.Plan.Culled)
	}
	return s.publisher.Publish(pubsub.TopicFrames, "compiled", summary)
}

// SetPoolStats records allocator statistics for /api/pool.
func (s *Server) SetPoolStats(stats pool.Stats) {
	s.mu.Lock()
	s.pool = &stats
	s.mu.Unlock()
}

// PublishFrameStatus publishes a frame status event
func (s *Server) PublishFrameStatus(state, message, frame string) error {
	status := pubsub.FrameStatus{
		State:   state,
		Message: message,
		Frame:   frame,
	}
	return s.publisher.Publish(pubsub.TopicFrameStatus, state, status)
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves on addr until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		s.log.Info("serving", "addr", addr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	s.publisher.Close()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down: %w", err)
	}
	if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) setupRoutes() {
	s.router.Use(logging.RequestIDMiddleware)

	// SSE subscription endpoint
	s.router.HandleFunc("/api/subscribe/{topic}", s.handleSubscribe).Methods("GET")

	// API routes - more specific routes must come first
	s.router.HandleFunc("/api/frame", s.handleFrame).Methods("GET")
	s.router.HandleFunc("/api/frame.dot", s.handleFrameDOT).Methods("GET")
	s.router.HandleFunc("/api/plan", s.handlePlan).Methods("GET")
	s.router.HandleFunc("/api/resources/{name}", s.handleResource).Methods("GET")
	s.router.HandleFunc("/api/executions", s.handleExecutions).Methods("GET")
	s.router.HandleFunc("/api/pool", s.handlePool).Methods("GET")

	// Serve static files
	staticFS, err := fs.Sub(staticFiles, "static")
	if err != nil {
		panic(err)
	}
	s.router.PathPrefix("/").Handler(http.FileServer(http.FS(staticFS)))
}

func (s *Server) current() *Frame {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.frame
}

func (s *Server) writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Warn("failed to encode response", "error", err)
	}
}

func (s *Server) handleSubscribe(w http.ResponseWriter, r *http.Request) {
	topic := mux.Vars(r)["topic"]
	if topic != pubsub.TopicFrames && topic != pubsub.TopicFrameStatus {
		http.Error(w, fmt.Sprintf("Unknown topic: %s", topic), http.StatusNotFound)
		return
	}

	// Set SSE headers
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*") // CORS support

	// Create subscription
	sub, err := s.publisher.Subscribe(r.Context(), topic)
	if err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	defer sub.Close()

	// Send initial comment to establish connection (Safari compatibility)
	fmt.Fprintf(w, ": connected\n\n")
	if flusher, ok := w.(http.Flusher); ok {
		flusher.Flush()
	}

	// Stream events
	for event := range sub.Events() {
		if err := pubsub.WriteSSE(w, event); err != nil {
			s.log.DebugContext(r.Context(), "client went away", "topic", topic, "error", err)
			return
		}
		if flusher, ok := w.(http.Flusher); ok {
			flusher.Flush()
		}
	}
}

func (s *Server) handleFrame(w http.ResponseWriter, r *http.Request) {
	f := s.current()
	if f == nil || f.Graph == nil {
		http.Error(w, "Frame not available", http.StatusServiceUnavailable)
		return
	}
	s.writeJSON(w, f.Graph)
}

func (s *Server) handleFrameDOT(w http.ResponseWriter, r *http.Request) {
	f := s.current()
	if f == nil || f.Graph == nil {
		http.Error(w, "Frame not available", http.StatusServiceUnavailable)
		return
	}

	data, err := f.Graph.MarshalDOT(f.Name)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/vnd.graphviz")
	w.Write(data)
}

func (s *Server) handlePlan(w http.ResponseWriter, r *http.Request) {
	f := s.current()
	if f == nil || f.Plan == nil {
		http.Error(w, "Plan not available", http.StatusServiceUnavailable)
		return
	}
	s.writeJSON(w, f.Plan)
}

func (s *Server) handleResource(w http.ResponseWriter, r *http.Request) {
	f := s.current()
	if f == nil || f.Plan == nil {
		http.Error(w, "Plan not available", http.StatusServiceUnavailable)
		return
	}

	name := mux.Vars(r)["name"]
	for _, info := range f.Plan.Resources {
		if info.Name == name {
			s.writeJSON(w, info)
			return
		}
	}
	http.Error(w, fmt.Sprintf("Resource not found: %s", name), http.StatusNotFound)
}

func (s *Server) handleExecutions(w http.ResponseWriter, r *http.Request) {
	f := s.current()
	if f == nil || f.Executions == nil {
		s.writeJSON(w, []script.Execution{})
		return
	}
	s.writeJSON(w, f.Executions)
}

func (s *Server) handlePool(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	stats := s.pool
	s.mu.RUnlock()

	if stats == nil {
		s.writeJSON(w, pool.Stats{})
		return
	}
	s.writeJSON(w, stats)
}
