// Package httpapi exposes the external sweep trigger: a small HTTP
// surface a periodic caller (curl in cron, an uptime monitor) hits to
// run one sweep and read back the summary.
package httpapi

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"golang.org/x/time/rate"

	"remindbot/internal/reminder"
	logx "remindbot/pkg/logx"
)

const apiKeyHeader = "X-API-Key"

type Config struct {
	Addr       string // default "127.0.0.1:8484"
	APIKey     string // optional X-API-Key gate
	RatePerSec int    // /sweep token bucket, default 2
}

func (c Config) withDefaults() Config {
	if strings.TrimSpace(c.Addr) == "" {
		c.Addr = "127.0.0.1:8484"
	}
	if c.RatePerSec <= 0 {
		c.RatePerSec = 2
	}
	return c
}

// Server runs the trigger endpoint. One Run call per /sweep request;
// serialization happens inside the Sweeper.
type Server struct {
	mu   sync.Mutex
	cfg  Config
	log  logx.Logger
	srv  *http.Server
	ln   net.Listener
	addr string

	sweeper *reminder.Sweeper
	limiter *rate.Limiter

	statusMu sync.Mutex
	lastAt   time.Time
	last     *reminder.Summary
}

func New(cfg Config, sw *reminder.Sweeper, log logx.Logger) *Server {
	cfg = cfg.withDefaults()
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Server{
		cfg:     cfg,
		log:     log,
		sweeper: sw,
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec),
	}
}

func (s *Server) routes() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/sweep", s.requireKey(s.handleSweep)).Methods(http.MethodGet, http.MethodPost)
	r.HandleFunc("/status", s.requireKey(s.handleStatus)).Methods(http.MethodGet)
	r.HandleFunc("/healthz", s.handleHealthz).Methods(http.MethodGet)
	return r
}

// Start binds the listener and serves in the background.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.srv != nil {
		return nil
	}

	srv := &http.Server{
		Addr:         s.cfg.Addr,
		Handler:      s.routes(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return err
	}
	s.srv = srv
	s.ln = ln
	s.addr = ln.Addr().String()

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Warn("http server error", logx.String("addr", s.addr), logx.Err(err))
		}
	}()
	s.log.Info("sweep trigger listening", logx.String("addr", s.addr))
	return nil
}

func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	srv := s.srv
	ln := s.ln
	s.srv = nil
	s.ln = nil
	s.addr = ""
	s.mu.Unlock()

	if srv == nil {
		return nil
	}
	if ctx == nil {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
	}
	err := srv.Shutdown(ctx)
	if ln != nil {
		_ = ln.Close()
	}
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Addr reports the actual listen address if running.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

// requireKey gates a handler behind the configured X-API-Key header
// (or api_key query parameter). No key configured means open access.
func (s *Server) requireKey(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key := s.cfg.APIKey
		if key != "" {
			got := r.Header.Get(apiKeyHeader)
			if got == "" {
				got = r.URL.Query().Get("api_key")
			}
			if subtle.ConstantTimeCompare([]byte(got), []byte(key)) != 1 {
				writeJSON(w, http.StatusUnauthorized, map[string]any{
					"success": false,
					"error":   "invalid or missing API key",
				})
				return
			}
		}
		next(w, r)
	}
}

func (s *Server) handleSweep(w http.ResponseWriter, r *http.Request) {
	if !s.limiter.Allow() {
		writeJSON(w, http.StatusTooManyRequests, map[string]any{
			"success": false,
			"error":   "rate limited",
		})
		return
	}

	sum, err := s.sweeper.Run(r.Context())
	s.recordSummary(sum)
	if err != nil {
		// Only the candidate fetch surfaces here; per-pair failures are
		// part of a 200 summary.
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"success": false,
			"error":   err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.statusMu.Lock()
	last := s.last
	lastAt := s.lastAt
	s.statusMu.Unlock()

	resp := map[string]any{"running": true}
	if last != nil {
		resp["last_sweep_at"] = lastAt
		resp["last_sweep"] = last
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// RecordSummary lets other triggers (cron, /sweep command) publish
// their result so /status reflects the latest sweep regardless of who
// ran it.
func (s *Server) RecordSummary(sum reminder.Summary) { s.recordSummary(sum) }

func (s *Server) recordSummary(sum reminder.Summary) {
	s.statusMu.Lock()
	s.last = &sum
	s.lastAt = time.Now()
	s.statusMu.Unlock()
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
