// Package web serves the calendar view over HTTP: a JSON navigation API,
// a server-rendered /calendar page and an ICS export of the snapshot.
package web

import (
	"bytes"
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"golang.org/x/crypto/bcrypt"

	"calview/internal/calendar"
	"calview/internal/config"
	appLog "calview/internal/log"
	"calview/internal/model"
	"calview/internal/refresh"
	"calview/internal/source"
)

// Refresher reloads the session's snapshot on demand.
type Refresher interface {
	Refresh(ctx context.Context) (refresh.Result, error)
}

// Server provides the HTTP API around a Session.
type Server struct {
	sess      *Session
	refresher Refresher
	auth      *config.BasicAuthConfig
	now       func() time.Time
	mux       *http.ServeMux
}

// Options configures a Server. Refresher may be nil, in which case
// POST /api/refresh answers 503.
type Options struct {
	Refresher Refresher
	BasicAuth *config.BasicAuthConfig
	Now       func() time.Time
}

func NewServer(sess *Session, opts Options) *Server {
	s := &Server{
		sess:      sess,
		refresher: opts.Refresher,
		auth:      opts.BasicAuth,
		now:       opts.Now,
		mux:       http.NewServeMux(),
	}
	if s.now == nil {
		s.now = time.Now
	}
	s.registerRoutes()
	return s
}

// Handler returns the root handler, wrapped in basic auth when configured.
func (s *Server) Handler() http.Handler {
	h := http.Handler(s.mux)
	if s.basicAuthEnabled() {
		appLog.Info("HTTP basic auth enabled", "user", s.auth.Username, "hashed", s.auth.PasswordHash != "")
		return s.basicAuthMiddleware(h)
	}
	return h
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)

	s.mux.HandleFunc("GET /api/view", s.handleView)
	s.mux.HandleFunc("POST /api/view/next", s.handleNext)
	s.mux.HandleFunc("POST /api/view/previous", s.handlePrevious)
	s.mux.HandleFunc("POST /api/view/today", s.handleToday)
	s.mux.HandleFunc("PUT /api/view/mode", s.handleMode)
	s.mux.HandleFunc("POST /api/refresh", s.handleRefresh)

	s.mux.HandleFunc("GET /calendar", s.handleCalendarPage)
	s.mux.HandleFunc("GET /calendar.ics", s.handleCalendarICS)
}

// Run serves on addr until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+addr)
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

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	appLog.Info("shutting down HTTP server")
	return srv.Shutdown(shutdownCtx)
}

func (s *Server) basicAuthEnabled() bool {
	if s.auth == nil || s.auth.Username == "" {
		return false
	}
	return s.auth.Password != "" || s.auth.PasswordHash != ""
}

// basicAuthMiddleware guards every route except /health.
func (s *Server) basicAuthMiddleware(next http.Handler) http.Handler {
	username := s.auth.Username
	password := s.auth.Password
	hash := []byte(s.auth.PasswordHash)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		u, p, ok := r.BasicAuth()
		valid := ok && secureCompare(u, username)
		if valid {
			if len(hash) > 0 {
				valid = bcrypt.CompareHashAndPassword(hash, []byte(p)) == nil
			} else {
				valid = secureCompare(p, password)
			}
		}
		if !valid {
			w.Header().Set("WWW-Authenticate", `Basic realm="calview", charset="UTF-8"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

func (s *Server) handleView(w http.ResponseWriter, _ *http.Request) {
	writeFrame(w, s.sess.Frame())
}

func (s *Server) handleNext(w http.ResponseWriter, _ *http.Request) {
	writeFrame(w, s.sess.Next())
}

func (s *Server) handlePrevious(w http.ResponseWriter, _ *http.Request) {
	writeFrame(w, s.sess.Previous())
}

func (s *Server) handleToday(w http.ResponseWriter, _ *http.Request) {
	writeFrame(w, s.sess.Today())
}

type modeRequest struct {
	Mode string `json:"mode"`
}

// handleMode switches the view mode.
//
// PUT /api/view/mode {"mode": "month"}
func (s *Server) handleMode(w http.ResponseWriter, r *http.Request) {
	var req modeRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<12)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	mode, ok := model.ParseViewMode(req.Mode)
	if !ok {
		writeError(w, http.StatusBadRequest, "mode must be day, week or month")
		return
	}
	frame, err := s.sess.SwitchView(mode)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	appLog.Info("view mode switched", "mode", mode)
	writeFrame(w, frame)
}

type refreshResponse struct {
	Events  int `json:"events"`
	Sources int `json:"sources"`
	Failed  int `json:"failed"`
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if s.refresher == nil {
		writeError(w, http.StatusServiceUnavailable, "refresh not configured")
		return
	}
	res, err := s.refresher.Refresh(r.Context())
	if err != nil {
		appLog.Error("api refresh failed", err)
		writeError(w, http.StatusBadGateway, "refresh failed; previous snapshot kept")
		return
	}
	writeJSON(w, http.StatusOK, refreshResponse{Events: res.Events, Sources: res.Sources, Failed: res.Failed})
}

func (s *Server) handleCalendarPage(w http.ResponseWriter, _ *http.Request) {
	var buf bytes.Buffer
	if err := calendarPage.Execute(&buf, newPageData(s.sess.Frame())); err != nil {
		appLog.Error("calendar page render failed", err)
		http.Error(w, "render failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

// handleCalendarICS exports the whole snapshot, not just the visible range.
func (s *Server) handleCalendarICS(w http.ResponseWriter, _ *http.Request) {
	frame := s.sess.Frame()
	body := source.EncodeICS(s.sess.Events(), frame.Anchor.Location(), s.now().UTC())
	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="calview.ics"`)
	_, _ = w.Write(body)
}

func writeFrame(w http.ResponseWriter, f calendar.Frame) {
	writeJSON(w, http.StatusOK, newFrameResponse(f))
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
