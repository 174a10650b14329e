package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/Guilhem-Bonnet/ruv-dl/internal/app"
	"github.com/Guilhem-Bonnet/ruv-dl/internal/httpjson"
	"github.com/Guilhem-Bonnet/ruv-dl/internal/ports"
	"github.com/go-chi/chi/v5"
)

type DownloadsHandler struct {
	runCtx    context.Context
	downloads *app.DownloadService
}

func NewDownloadsHandler(runCtx context.Context, downloads *app.DownloadService) *DownloadsHandler {
	if runCtx == nil {
		runCtx = context.Background()
	}
	return &DownloadsHandler{runCtx: runCtx, downloads: downloads}
}

func (h *DownloadsHandler) Routes(r chi.Router) {
	r.Route("/downloads", func(r chi.Router) {
		r.Post("/", h.start)
		r.Get("/current", h.current)
	})
}

func (h *DownloadsHandler) start(w http.ResponseWriter, r *http.Request) {
	var req app.StartDownloadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpjson.WriteError(w, http.StatusBadRequest, "invalid json")
		return
	}
	st, err := h.downloads.Start(h.runCtx, req)
	if err != nil {
		switch {
		case errors.Is(err, app.ErrInvalidRequest):
			httpjson.WriteError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, ports.ErrConflict):
			httpjson.WriteError(w, http.StatusConflict, err.Error())
		default:
			httpjson.WriteError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}
	httpjson.Write(w, http.StatusAccepted, st)
}

func (h *DownloadsHandler) current(w http.ResponseWriter, r *http.Request) {
	st, ok := h.downloads.Current()
	if !ok {
		httpjson.WriteError(w, http.StatusNotFound, "not found")
		return
	}
	httpjson.Write(w, http.StatusOK, st)
}
