package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gorilla/mux"
	prom "github.com/prometheus/client_golang/prometheus"

	errs "instabridge/pkg/errors"
	"instabridge/pkg/logger"
	"instabridge/pkg/metrics"
	"instabridge/pkg/schedule"
	"instabridge/pkg/settings"
	"instabridge/pkg/state"
)

// Version is reported by the health endpoint
const Version = "1.0.0"

// Options wires the dashboard to the files it reads and writes
type Options struct {
	Settings *settings.Store
	State    *state.Store
	Registry *prom.Registry
	// FallbackName and FallbackPhone seed the default recipient
	FallbackName  string
	FallbackPhone string
	// DataDir is checked for writability by the health endpoint
	DataDir string
	// HasCredentials reports whether Instagram credentials can be found
	HasCredentials func() bool
	Logger         logger.Logger
	Now            func() time.Time
}

// Server is the settings dashboard API
type Server struct {
	opts   Options
	router *mux.Router
	logger logger.Logger
	now    func() time.Time
}

// New creates the server and registers its routes
func New(opts Options) *Server {
	s := &Server{
		opts:   opts,
		router: mux.NewRouter(),
		logger: opts.Logger,
		now:    opts.Now,
	}
	if s.logger == nil {
		s.logger = logger.GetLogger()
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.opts.Registry == nil {
		s.opts.Registry = prom.NewRegistry()
	}

	s.router.Use(s.logRequests)
	// Routes live on the root router so a wrong verb on a known path is a 405
	s.router.HandleFunc("/api/health", s.health).Methods(http.MethodGet)
	s.router.HandleFunc("/api/settings", s.getSettings).Methods(http.MethodGet)
	s.router.HandleFunc("/api/settings", s.saveSettings).Methods(http.MethodPost)
	s.router.HandleFunc("/api/scheduler/next-run", s.nextRun).Methods(http.MethodGet)
	s.router.HandleFunc("/api/state", s.getState).Methods(http.MethodGet)
	s.router.Handle("/metrics", metrics.HTTPHandler(s.opts.Registry)).Methods(http.MethodGet)
	return s
}

// Handler returns the routed handler
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves on addr until ctx is done, then shuts down gracefully
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.InfoWithFields("Dashboard listening", map[string]interface{}{"addr": addr})
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.DebugWithFields("HTTP request", map[string]interface{}{
			"method":   r.Method,
			"path":     r.URL.Path,
			"status":   rec.status,
			"duration": time.Since(start).String(),
		})
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	checks := map[string]bool{
		"data_dir_writable":    writable(s.opts.DataDir),
		"settings_file_exists": s.opts.Settings.Exists(),
		"state_file_exists":    s.opts.State.Exists(),
	}
	env := map[string]bool{
		"ig_credentials_set": s.opts.HasCredentials != nil && s.opts.HasCredentials(),
		"wa_contact_set":     s.opts.FallbackName != "" || s.opts.FallbackPhone != "",
	}

	healthy := true
	for _, ok := range checks {
		healthy = healthy && ok
	}
	for _, ok := range env {
		healthy = healthy && ok
	}

	status, code := "healthy", http.StatusOK
	if !healthy {
		status, code = "degraded", http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]interface{}{
		"status":      status,
		"checks":      checks,
		"environment": env,
		"version":     Version,
	})
}

func (s *Server) loadSettings() (*settings.Document, error) {
	return s.opts.Settings.Load(s.opts.FallbackName, s.opts.FallbackPhone)
}

func (s *Server) getSettings(w http.ResponseWriter, r *http.Request) {
	doc, err := s.loadSettings()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"settings": settings.ToPublic(doc)})
}

func (s *Server) saveSettings(w http.ResponseWriter, r *http.Request) {
	var payload any
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&payload); err != nil {
		writeError(w, errs.Wrap(errs.ErrorTypeValidation, err, "invalid JSON"))
		return
	}
	doc, err := settings.FromPublic(payload)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := s.opts.Settings.Save(doc); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"ok": true, "settings": settings.ToPublic(doc)})
}

func (s *Server) nextRun(w http.ResponseWriter, r *http.Request) {
	doc, err := s.loadSettings()
	if err != nil {
		writeError(w, err)
		return
	}
	_, tz := schedule.ResolveLocation(doc.Schedule.TZ)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"global_schedule": settings.Schedule{
			Enabled:  doc.Schedule.Enabled,
			TZ:       tz,
			TimeHHMM: settings.NormalizeHHMM(doc.Schedule.TimeHHMM),
		},
		"recipients": schedule.Plan(doc, s.now()),
	})
}

type stateSummary struct {
	SentTotal      int            `json:"sent_total"`
	Recipients     map[string]int `json:"recipients"`
	LastRunTS      *float64       `json:"last_run_ts"`
	LastRun        string         `json:"last_run"`
	LastRunFiles   []string       `json:"last_run_files"`
	LastRunCaption string         `json:"last_run_caption"`
}

func (s *Server) getState(w http.ResponseWriter, r *http.Request) {
	st := s.opts.State.Load()
	out := stateSummary{
		SentTotal:      len(st.SentIDs),
		Recipients:     make(map[string]int),
		LastRunTS:      st.LastRunTS,
		LastRun:        "never",
		LastRunFiles:   st.LastRunFiles,
		LastRunCaption: st.LastRunCaption,
	}
	for _, rid := range st.Recipients() {
		out.Recipients[rid] = st.SentCount(rid)
	}
	if st.LastRunTS != nil {
		out.LastRun = humanize.RelTime(st.LastRun(), s.now(), "ago", "from now")
	}
	writeJSON(w, http.StatusOK, out)
}

func writable(dir string) bool {
	if dir == "" {
		dir = "."
	}
	f, err := os.CreateTemp(dir, ".healthcheck-*")
	if err != nil {
		return false
	}
	name := f.Name()
	f.Close()
	os.Remove(filepath.Clean(name))
	return true
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	code := http.StatusInternalServerError
	if errs.Is(err, errs.ErrorTypeValidation) {
		code = http.StatusBadRequest
	}
	writeJSON(w, code, map[string]string{"error": err.Error()})
}
