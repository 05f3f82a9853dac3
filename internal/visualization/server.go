package visualization

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/nvandessel/adoptsim/internal/logging"
	"github.com/nvandessel/adoptsim/internal/models"
	"github.com/nvandessel/adoptsim/internal/store"
)

// Server serves exploration trees as HTML, JSON and DOT.
type Server struct {
	store      store.Store
	logger     *slog.Logger
	httpServer *http.Server
	listener   net.Listener
	mu         sync.Mutex
	addr       string
}

// NewServer creates a new exploration viewer. A nil logger discards output.
func NewServer(s store.Store, logger *slog.Logger) *Server {
	return &Server{
		store:  s,
		logger: logging.OrDiscard(logger),
	}
}

// Addr returns the address the server is listening on (e.g., "localhost:PORT").
// Returns empty string if the server hasn't started yet.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

// Handler returns the HTTP routes served by the viewer.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("GET /explorations/{id}", s.handleExploration)
	mux.HandleFunc("GET /api/explorations", s.handleList)
	mux.HandleFunc("GET /api/explorations/{id}", s.handleTreeJSON)
	mux.HandleFunc("GET /api/explorations/{id}/dot", s.handleTreeDOT)
	return mux
}

// ListenAndServe starts the HTTP server on addr and blocks until the
// context is cancelled. An empty addr lets the OS pick a free local port.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	if addr == "" {
		addr = "localhost:0"
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}

	s.mu.Lock()
	s.listener = ln
	s.addr = ln.Addr().String()
	s.httpServer = &http.Server{Handler: s.Handler(), ReadHeaderTimeout: 10 * time.Second}
	srv := s.httpServer
	s.mu.Unlock()

	s.logger.Info("viewer listening", "addr", ln.Addr().String())

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.logger.Warn("viewer shutdown", "error", err)
		}
	}()

	err = srv.Serve(ln)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

var indexTemplate = template.Must(template.New("index.html.tmpl").
	Funcs(template.FuncMap{"pct": func(v float64) float64 { return v * 100 }}).
	ParseFS(templates, "templates/index.html.tmpl"))

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	exps, err := s.store.ListExplorations(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var buf bytes.Buffer
	if err := indexTemplate.Execute(&buf, exps); err != nil {
		s.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

func (s *Server) handleExploration(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	tree, err := LoadTree(r.Context(), s.store, id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	html, err := RenderHTML(tree, "/api/explorations/"+id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(html)
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	exps, err := s.store.ListExplorations(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, exps)
}

func (s *Server) handleTreeJSON(w http.ResponseWriter, r *http.Request) {
	tree, err := LoadTree(r.Context(), s.store, r.PathValue("id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, RenderJSON(tree))
}

func (s *Server) handleTreeDOT(w http.ResponseWriter, r *http.Request) {
	tree, err := LoadTree(r.Context(), s.store, r.PathValue("id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/vnd.graphviz; charset=utf-8")
	_, _ = w.Write([]byte(RenderDOT(tree)))
}

// fail maps store errors onto HTTP status codes.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, models.ErrNotFound) {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	s.logger.Error("viewer request failed", "path", r.URL.Path, "error", err)
	http.Error(w, "internal error: "+err.Error(), http.StatusInternalServerError)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}
