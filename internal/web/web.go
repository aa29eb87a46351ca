// Package web serves the JSON API over the agenda service.
package web

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/gorilla/mux"
	"github.com/hashicorp/golang-lru/v2/expirable"

	"lunarcal/internal/agenda"
	"lunarcal/internal/config"
	"lunarcal/internal/ics"
	appLog "lunarcal/internal/log"
	"lunarcal/internal/lunar"
	"lunarcal/internal/model"
	"lunarcal/internal/store"
)

const (
	monthCacheSize = 64
	monthCacheTTL  = time.Minute
	maxImportBody  = 16 << 20
)

// Options configure a Server. Zero values disable auth and remote imports.
type Options struct {
	BasicAuth *config.BasicAuthConfig
	Fetcher   *ics.Fetcher
	// MonthCacheTTL overrides the lifetime of cached month views.
	MonthCacheTTL time.Duration
}

// Server provides the HTTP API for events, calendar views and lunar dates.
type Server struct {
	svc     *agenda.Service
	fetcher *ics.Fetcher
	router  *mux.Router
	auth    atomic.Pointer[config.BasicAuthConfig]

	// Month views are the most expensive response (up to 42 decorated days);
	// every write purges the cache.
	months *expirable.LRU[string, rangeResponse]
}

// NewServer constructs a new Server.
func NewServer(svc *agenda.Service, opts Options) *Server {
	ttl := opts.MonthCacheTTL
	if ttl <= 0 {
		ttl = monthCacheTTL
	}
	s := &Server{
		svc:     svc,
		fetcher: opts.Fetcher,
		router:  mux.NewRouter(),
		months:  expirable.NewLRU[string, rangeResponse](monthCacheSize, nil, ttl),
	}
	s.SetBasicAuth(opts.BasicAuth)
	s.registerRoutes()
	return s
}

// Handler returns the root handler with logging and optional basic auth.
func (s *Server) Handler() http.Handler {
	return logRequest(s.basicAuthMiddleware(s.router))
}

// SetBasicAuth replaces the credentials; nil or incomplete credentials
// disable authentication. Safe to call while serving.
func (s *Server) SetBasicAuth(ba *config.BasicAuthConfig) {
	if ba == nil || ba.Username == "" || ba.Password == "" {
		s.auth.Store(nil)
		return
	}
	cp := *ba
	s.auth.Store(&cp)
	appLog.Info("HTTP basic auth enabled", "user", cp.Username)
}

// Invalidate drops cached views. Call it when storage changes behind the
// server's back.
func (s *Server) Invalidate() {
	s.months.Purge()
}

func (s *Server) registerRoutes() {
	r := s.router
	notFound := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "not found")
	})
	notAllowed := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})
	r.NotFoundHandler = notFound
	r.MethodNotAllowedHandler = notAllowed

	const (
		id   = "{id:[0-9]+}"
		date = "{date:[0-9]{4}-[0-9]{2}-[0-9]{2}}"
	)

	r.Path("/health").HandlerFunc(s.handleHealth).Methods(http.MethodGet)

	// Subrouters do not inherit the root's fallback handlers.
	api := r.PathPrefix("/api").Subrouter()
	api.NotFoundHandler = notFound
	api.MethodNotAllowedHandler = notAllowed
	api.Path("/events").HandlerFunc(s.handleListEvents).Methods(http.MethodGet)
	api.Path("/events").HandlerFunc(s.handleCreateEvent).Methods(http.MethodPost)
	api.Path("/events/" + id).HandlerFunc(s.handleGetEvent).Methods(http.MethodGet)
	api.Path("/events/" + id).HandlerFunc(s.handleUpdateEvent).Methods(http.MethodPut)
	api.Path("/events/" + id).HandlerFunc(s.handleDeleteEvent).Methods(http.MethodDelete)
	api.Path("/events/" + id + "/toggle").HandlerFunc(s.handleToggleEvent).Methods(http.MethodPost)

	api.Path("/day/" + date).HandlerFunc(s.handleDay).Methods(http.MethodGet)
	api.Path("/week/" + date).HandlerFunc(s.handleWeek).Methods(http.MethodGet)
	api.Path("/month/{year:[0-9]{4}}/{month:[0-9]{1,2}}").HandlerFunc(s.handleMonth).Methods(http.MethodGet)

	api.Path("/lunar/" + date).HandlerFunc(s.handleLunar).Methods(http.MethodGet)
	api.Path("/lunar/year/{year:[0-9]{4}}").HandlerFunc(s.handleLunarYear).Methods(http.MethodGet)
	api.Path("/solar/{year:[0-9]{4}}/{month:[0-9]{1,2}}/{day:[0-9]{1,2}}").HandlerFunc(s.handleSolar).Methods(http.MethodGet)

	api.Path("/export.ics").HandlerFunc(s.handleExport).Methods(http.MethodGet)
	api.Path("/import").HandlerFunc(s.handleImport).Methods(http.MethodPost)
}

// basicAuthMiddleware guards everything except /health when credentials
// are configured.
func (s *Server) basicAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ba := s.auth.Load()
		if ba == nil || r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		u, p, ok := r.BasicAuth()
		if !ok || !secureCompare(u, ba.Username) || !secureCompare(p, ba.Password) {
			w.Header().Set("WWW-Authenticate", `Basic realm="lunarcal", charset="UTF-8"`)
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// secureCompare compares two strings in constant time.
func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

type wrappedResponseWriter struct {
	http.ResponseWriter
	code int
}

func (wrw *wrappedResponseWriter) WriteHeader(code int) {
	wrw.code = code
	wrw.ResponseWriter.WriteHeader(code)
}

func logRequest(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		wrw := &wrappedResponseWriter{ResponseWriter: w, code: http.StatusOK}
		t0 := time.Now()
		next.ServeHTTP(wrw, r)

		msg := fmt.Sprintf("%s %s %s", r.Method, r.URL.Path, r.Proto)
		kv := []any{"remote_addr", r.RemoteAddr, "code", wrw.code, "took", time.Since(t0)}
		switch {
		case wrw.code < 400:
			appLog.Info(msg, kv...)
		case wrw.code < 500:
			appLog.Warn(msg, kv...)
		default:
			appLog.Error(msg, errors.New(http.StatusText(wrw.code)), kv...)
		}
	})
}

// Serve runs an http.Server on listen until ctx is canceled, then shuts it
// down gracefully.
func (s *Server) Serve(ctx context.Context, listen string) error {
	srv := &http.Server{
		Addr:              listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+listen)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	appLog.Info("shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// writeServiceError maps domain errors onto status codes.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "event not found")
	case errors.Is(err, model.ErrEmptyTitle),
		errors.Is(err, model.ErrUnknownCategory),
		errors.Is(err, agenda.ErrInvalidMonth),
		errors.Is(err, errBadRequest):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, lunar.ErrOutOfRange), errors.Is(err, lunar.ErrInvalidDate):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		appLog.Error("request failed", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

var errBadRequest = errors.New("bad request")

func badRequest(format string, args ...any) error {
	return fmt.Errorf("%w: %s", errBadRequest, fmt.Sprintf(format, args...))
}

func pathID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil || id <= 0 {
		return 0, badRequest("invalid id")
	}
	return id, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("failed to write JSON response", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	type errResp struct {
		Error string `json:"error"`
	}
	writeJSON(w, status, errResp{Error: msg})
}
