package server

import (
	"context"
	"net"
	"net/http"
	"path/filepath"
	"time"

	"github.com/NavineDevs/Navine-File-Sharer/internal/store"
)

// Server wires the upload engine, the stores and the sweeper behind one
// HTTP surface.
type Server struct {
	cfg      Config
	store    store.Store
	objects  ObjectStore
	registry *Registry
	sweeper  *Sweeper
	metrics  *Metrics

	httpServer *http.Server
}

// New assembles a Server over the given metadata and object stores. The
// chunk spool lives under cfg.DataDir regardless of backend: sessions are
// local to the process.
func New(cfg Config, st store.Store, objects ObjectStore) (*Server, error) {
	registry, err := NewRegistry(filepath.Join(cfg.DataDir, "uploads"), cfg)
	if err != nil {
		return nil, err
	}

	s := &Server{
		cfg:      cfg,
		store:    st,
		objects:  objects,
		registry: registry,
		metrics:  NewMetrics(),
	}
	s.sweeper = NewSweeper(st, objects, registry, s.metrics, cfg)

	mux := http.NewServeMux()
	mux.Handle("/api/init", s.initHandler())
	mux.Handle("/api/chunk", s.chunkHandler())
	mux.Handle("/api/finish", s.finishHandler())
	mux.Handle("/download/", s.downloadHandler())
	mux.HandleFunc("/health", s.healthHandler())
	mux.HandleFunc("/metrics", s.metrics.Handler())
	mux.Handle("/", http.FileServer(http.Dir(cfg.PublicDir)))

	// Wrap middleware: requestID -> logging -> mux
	var handler http.Handler = mux
	handler = s.loggingMiddleware(handler)
	handler = requestIDMiddleware(handler)

	s.httpServer = &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	return s, nil
}

// Handler exposes the full middleware-wrapped handler, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Sweeper returns the retention sweeper so the caller can run it on its
// own lifecycle.
func (s *Server) Sweeper() *Sweeper {
	return s.sweeper
}

func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return err
	}
	return s.httpServer.Serve(ln)
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
