package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/Guilhem-Bonnet/ruv-dl/internal/app"
	"github.com/Guilhem-Bonnet/ruv-dl/internal/httpjson"
	"github.com/go-chi/chi/v5"
)

// Réglages modifiables à chaud, non persistés: la config fichier reste la source.
type settingsDTO struct {
	MaxParallelDownloads int `json:"maxParallelDownloads"`
}

type SettingsHandler struct {
	downloads *app.DownloadService
}

func NewSettingsHandler(downloads *app.DownloadService) *SettingsHandler {
	return &SettingsHandler{downloads: downloads}
}

func (h *SettingsHandler) Routes(r chi.Router) {
	r.Get("/settings", h.get)
	r.Patch("/settings", h.patch)
	// Variante avec slash final (utile selon reverse-proxy / clients).
	r.Get("/settings/", h.get)
	r.Patch("/settings/", h.patch)
}

func (h *SettingsHandler) get(w http.ResponseWriter, r *http.Request) {
	httpjson.Write(w, http.StatusOK, settingsDTO{MaxParallelDownloads: h.downloads.MaxParallelDownloads()})
}

func (h *SettingsHandler) patch(w http.ResponseWriter, r *http.Request) {
	var s settingsDTO
	if err := json.NewDecoder(r.Body).Decode(&s); err != nil {
		httpjson.WriteError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if s.MaxParallelDownloads <= 0 {
		httpjson.WriteError(w, http.StatusBadRequest, "maxParallelDownloads must be positive")
		return
	}
	h.downloads.SetMaxParallelDownloads(s.MaxParallelDownloads)
	httpjson.Write(w, http.StatusOK, settingsDTO{MaxParallelDownloads: h.downloads.MaxParallelDownloads()})
}
