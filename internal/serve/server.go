// Package serve publishes the most recent graph over HTTP and pushes build
// events to websocket clients.
package serve

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/conduit-lang/codegraph/internal/export"
	"github.com/conduit-lang/codegraph/internal/graph"
)

// ShutdownTimeout bounds how long Serve waits for in-flight requests
const ShutdownTimeout = 5 * time.Second

var contentTypes = map[export.Format]string{
	export.FormatDGML: "application/xml; charset=utf-8",
	export.FormatDOT:  "text/vnd.graphviz; charset=utf-8",
	export.FormatJSON: "application/json",
}

// Server serves the latest published graph
type Server struct {
	hub    *Hub
	logger *zap.Logger
	router chi.Router

	mu      sync.RWMutex
	graph   *graph.Graph
	built   time.Time
	elapsed time.Duration
	lastErr string
}

// New creates a server with no graph published yet
func New(logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		hub:    NewHub(logger),
		logger: logger,
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/healthz", s.handleHealth)
	r.Get("/stats", s.handleStats)
	r.Get("/events", s.hub.HandleWebSocket)
	r.Get("/graph.{format}", s.handleGraph)
	s.router = r

	return s
}

// Handler returns the HTTP handler for every route
func (s *Server) Handler() http.Handler {
	return s.router
}

// Hub returns the event hub
func (s *Server) Hub() *Hub {
	return s.hub
}

// Publish replaces the served graph and notifies clients
func (s *Server) Publish(g *graph.Graph, elapsed time.Duration) {
	s.mu.Lock()
	s.graph = g
	s.built = time.Now()
	s.elapsed = elapsed
	s.lastErr = ""
	s.mu.Unlock()

	s.hub.Notify(&Event{
		Type:     "updated",
		Nodes:    g.NodeCount(),
		Links:    g.EdgeCount(),
		Duration: float64(elapsed.Microseconds()) / 1000,
	})
}

// PublishError notifies clients of a failed build. The previous graph
// stays published.
func (s *Server) PublishError(err error) {
	s.mu.Lock()
	s.lastErr = err.Error()
	s.mu.Unlock()

	s.hub.Notify(&Event{Type: "error", Error: err.Error()})
}

// Serve handles requests on l until ctx is done, then shuts down
// gracefully
func (s *Server) Serve(ctx context.Context, l net.Listener) error {
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("serving graph", zap.String("addr", l.Addr().String()))
		errCh <- srv.Serve(l)
	}()

	select {
	case err := <-errCh:
		s.hub.Close()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}

	s.logger.Info("shutting down server")
	// websocket connections are hijacked and not tracked by Shutdown
	s.hub.Close()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		srv.Close()
		return fmt.Errorf("server shutdown: %w", err)
	}
	return nil
}

// Close disconnects every websocket client
func (s *Server) Close() {
	s.hub.Close()
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok\n"))
}

func (s *Server) handleGraph(w http.ResponseWriter, r *http.Request) {
	format, err := export.ParseFormat(chi.URLParam(r, "format"))
	if err != nil || !format.IsFile() {
		http.NotFound(w, r)
		return
	}

	s.mu.RLock()
	g := s.graph
	s.mu.RUnlock()
	if g == nil {
		http.Error(w, "graph not built yet", http.StatusServiceUnavailable)
		return
	}

	writer, err := export.NewWriter(format)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", contentTypes[format])
	if err := writer.Write(w, g); err != nil {
		s.logger.Warn("failed to write graph", zap.String("format", string(format)), zap.Error(err))
	}
}

type statsResponse struct {
	Built      *time.Time     `json:"built,omitempty"`
	DurationMs float64        `json:"duration_ms,omitempty"`
	Nodes      map[string]int `json:"nodes"`
	Links      map[string]int `json:"links"`
	Groups     int            `json:"groups"`
	NodeCount  int            `json:"node_count"`
	EdgeCount  int            `json:"edge_count"`
	Clients    int            `json:"clients"`
	Error      string         `json:"error,omitempty"`
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	g, built, elapsed, lastErr := s.graph, s.built, s.elapsed, s.lastErr
	s.mu.RUnlock()

	resp := statsResponse{
		Nodes:   map[string]int{},
		Links:   map[string]int{},
		Clients: s.hub.ConnectionCount(),
		Error:   lastErr,
	}
	if g != nil {
		gs := g.Stats()
		for c, n := range gs.Nodes {
			resp.Nodes[c.String()] = n
		}
		for c, n := range gs.Links {
			name := c.String()
			if c == graph.LinkPlain {
				name = "Dependency"
			}
			resp.Links[name] = n
		}
		resp.Groups = gs.Groups
		resp.NodeCount = gs.NodeCount
		resp.EdgeCount = gs.EdgeCount
		resp.Built = &built
		resp.DurationMs = float64(elapsed.Microseconds()) / 1000
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.logger.Warn("failed to write stats", zap.Error(err))
	}
}
