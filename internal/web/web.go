// Package web serves the published feed, a human-browsable debug listing of
// the most recent reconciled event set, and a small JSON API. The listing is
// a diagnostics surface only; it must tolerate an empty (or not yet
// produced) event set without erroring.
package web

import (
	"encoding/json"
	"html/template"
	"net/http"
	"os"
	"sync"
	"time"

	"racecal/internal/config"
	appLog "racecal/internal/log"
	"racecal/internal/model"
	"racecal/internal/pipeline"
)

// Server provides the HTTP endpoints.
type Server struct {
	cfg *config.Config
	mux *http.ServeMux

	mu      sync.RWMutex
	latest  *pipeline.Result
	lastRun time.Time

	// refresh triggers an asynchronous pipeline run; nil disables the
	// manual trigger endpoint.
	refresh func()
}

// NewServer constructs a Server. refresh may be nil.
func NewServer(cfg *config.Config, refresh func()) *Server {
	s := &Server{
		cfg:     cfg,
		mux:     http.NewServeMux(),
		refresh: refresh,
	}
	s.mux.HandleFunc("/healthz", s.handleHealth)
	s.mux.HandleFunc("/calendar.ics", s.handleFeed)
	s.mux.HandleFunc("/api/events", s.handleEvents)
	s.mux.HandleFunc("/api/refresh", s.handleRefresh)
	s.mux.HandleFunc("/", s.handleIndex)
	return s
}

// SetResult publishes the latest pipeline result to the UI.
func (s *Server) SetResult(r *pipeline.Result) {
	s.mu.Lock()
	s.latest = r
	s.lastRun = time.Now().UTC()
	s.mu.Unlock()
}

// Handler returns the root http.Handler.
func (s *Server) Handler() http.Handler { return s.mux }

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// handleFeed serves the published feed file as-is. The feed on disk is the
// source of truth; this handler never regenerates it.
func (s *Server) handleFeed(w http.ResponseWriter, r *http.Request) {
	if _, err := os.Stat(s.cfg.FeedPath); err != nil {
		http.Error(w, "feed not yet published", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	http.ServeFile(w, r, s.cfg.FeedPath)
}

func (s *Server) handleEvents(w http.ResponseWriter, _ *http.Request) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	events := []model.CanonicalEvent{}
	if s.latest != nil && s.latest.Set != nil {
		events = s.latest.Set.Events
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(events); err != nil {
		appLog.Error("encoding events response", err)
	}
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "POST required", http.StatusMethodNotAllowed)
		return
	}
	if s.refresh == nil {
		http.Error(w, "refresh not available", http.StatusServiceUnavailable)
		return
	}
	go s.refresh()
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]string{"status": "refresh scheduled"})
}

var indexTemplate = template.Must(template.New("index").Parse(`<!DOCTYPE html>
<html>
<head>
<title>racecal debug</title>
<meta charset="UTF-8">
<style>
body { font-family: sans-serif; margin: 40px; }
.event { border: 1px solid #ccc; margin: 10px 0; padding: 12px; }
.title { font-weight: bold; }
.meta { color: #666; font-size: 0.9em; }
</style>
</head>
<body>
<h1>Race calendar debug</h1>
<p>Last run: {{if .LastRun.IsZero}}never{{else}}{{.LastRun.Format "2006-01-02 15:04:05 UTC"}}{{end}}
 &mdash; {{len .Events}} events, {{.Dropped}} rows dropped</p>
<p><a href="/calendar.ics">Download feed</a></p>
{{range .Events}}
<div class="event">
  <div class="title">{{.Title}}</div>
  <div class="meta">{{.Start.Format "2006-01-02"}}{{if not .AllDay}} {{.Start.Format "15:04"}}{{end}}
   &mdash; {{.Location}}{{if .Category}} &mdash; {{.Category}}{{end}}</div>
  {{if .URL}}<div><a href="{{.URL}}">More info</a></div>{{end}}
</div>
{{else}}
<div class="event">
  <div class="title">No events</div>
  <div class="meta">No reconciled events yet; run the pipeline or wait for the next scheduled refresh.</div>
</div>
{{end}}
</body>
</html>
`))

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	s.mu.RLock()
	data := struct {
		LastRun time.Time
		Events  []model.CanonicalEvent
		Dropped int
	}{LastRun: s.lastRun}
	if s.latest != nil && s.latest.Set != nil {
		data.Events = s.latest.Set.Events
		data.Dropped = s.latest.Set.DroppedRows
	}
	s.mu.RUnlock()

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := indexTemplate.Execute(w, data); err != nil {
		appLog.Error("rendering debug page", err)
	}
}
