package httpapi

import (
	"net/http"
	"time"

	"github.com/rs/zerolog/hlog"

	"github.com/Guilhem-Bonnet/ruv-dl/internal/buildinfo"
	"github.com/Guilhem-Bonnet/ruv-dl/internal/httpjson"
)

const defaultRequestTimeout = 30 * time.Second

type healthDTO struct {
	Status          string `json:"status"`
	Version         string `json:"version"`
	RunActive       bool   `json:"runActive"`
	RunID           string `json:"runId,omitempty"`
	ActiveDownloads int    `json:"activeDownloads"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	h := healthDTO{Status: "ok", Version: buildinfo.Current().Version}
	if s.downloads != nil {
		if st, ok := s.downloads.Current(); ok {
			h.RunID = st.RunID
			h.RunActive = st.Running
		}
		h.ActiveDownloads = s.downloads.ActiveDownloads()
	}
	httpjson.Write(w, http.StatusOK, h)
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	httpjson.Write(w, http.StatusOK, buildinfo.Current())
}

// accessLogFn: le flux /events se ferme seulement à la déconnexion, sa durée
// n'est pas une latence. Les 5xx remontent en warning.
func accessLogFn(r *http.Request, status, size int, duration time.Duration) {
	logger := hlog.FromRequest(r)
	e := logger.Info()
	if status >= http.StatusInternalServerError {
		e = logger.Warn()
	}
	e = e.Int("status", status).
		Int("size", size).
		Str("method", r.Method).
		Str("path", r.URL.Path)
	if r.URL.Path != "/api/v1/events" {
		e = e.Dur("duration", duration)
	}
	e.Msg("http")
}
