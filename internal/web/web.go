package web

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"

	"lunarcal/internal/calendar"
	"lunarcal/internal/config"
	"lunarcal/internal/grid"
	"lunarcal/internal/lunar"
	appLog "lunarcal/internal/log"
	"lunarcal/internal/metrics"
	"lunarcal/internal/notify"
	"lunarcal/internal/selection"
)

// Options wires a Server. Service is required.
type Options struct {
	Config    *config.Config
	Service   *calendar.Service
	Inbox     *notify.Inbox
	Converter lunar.Converter
	Now       func() time.Time
}

// Server exposes the calendar over HTTP. It owns a single view session:
// one selection.Controller guarded by viewMu.
type Server struct {
	cfg     *config.Config
	svc     *calendar.Service
	inbox   *notify.Inbox
	conv    lunar.Converter
	builder *grid.Builder
	now     func() time.Time
	router  *mux.Router

	viewMu sync.Mutex
	view   *selection.Controller
}

// NewServer constructs a new Server.
func NewServer(opts Options) (*Server, error) {
	if opts.Service == nil {
		return nil, errors.New("web: calendar service is required")
	}
	if opts.Config == nil {
		opts.Config = config.DefaultConfig()
	}
	if opts.Converter == nil {
		opts.Converter = lunar.Default
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Inbox == nil {
		opts.Inbox = notify.NewInbox(opts.Config.Notify.InboxSize)
	}

	b := grid.NewBuilder(opts.Converter, opts.Now)
	view, err := selection.New(b, opts.Service, opts.Now)
	if err != nil {
		return nil, err
	}

	s := &Server{
		cfg:     opts.Config,
		svc:     opts.Service,
		inbox:   opts.Inbox,
		conv:    opts.Converter,
		builder: b,
		now:     opts.Now,
		router:  mux.NewRouter(),
		view:    view,
	}
	s.registerRoutes()
	return s, nil
}

// Handler returns the underlying http.Handler for this server.
func (s *Server) Handler() http.Handler {
	h := http.Handler(s.router)
	if s.basicAuthEnabled() {
		appLog.Info("HTTP basic auth enabled", "listen", "http://"+s.cfg.Listen)
		h = s.basicAuthMiddleware(h)
	}
	return logRequests(h)
}

// ListenAndServe serves on cfg.Listen until ctx is cancelled, then shuts
// down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+s.cfg.Listen)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	appLog.Info("HTTP server stopped")
	return nil
}

func (s *Server) registerRoutes() {
	r := s.router
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/grid", s.handleGrid).Methods(http.MethodGet)

	api.HandleFunc("/view", s.handleView).Methods(http.MethodGet)
	api.HandleFunc("/view/month", s.handleViewMonth).Methods(http.MethodPost)
	api.HandleFunc("/view/select", s.handleViewSelect).Methods(http.MethodPost)
	api.HandleFunc("/view/today", s.handleViewToday).Methods(http.MethodPost)

	api.HandleFunc("/days/{date}/events", s.handleDayEvents).Methods(http.MethodGet)

	api.HandleFunc("/events", s.handleCreateEvent).Methods(http.MethodPost)
	api.HandleFunc("/events/{id:[0-9]+}", s.handleGetEvent).Methods(http.MethodGet)
	api.HandleFunc("/events/{id:[0-9]+}", s.handleUpdateEvent).Methods(http.MethodPut)
	api.HandleFunc("/events/{id:[0-9]+}", s.handleDeleteEvent).Methods(http.MethodDelete)

	api.HandleFunc("/lunar/{date}", s.handleLunar).Methods(http.MethodGet)
	api.HandleFunc("/notifications", s.handleNotifications).Methods(http.MethodGet)

	api.HandleFunc("/export.ics", s.handleExport).Methods(http.MethodGet)
	api.HandleFunc("/import.ics", s.handleImport).Methods(http.MethodPost)

	api.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "not found")
	})
}

// statusRecorder captures the response status for request logging.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		appLog.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}
