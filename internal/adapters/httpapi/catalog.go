package httpapi

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/Guilhem-Bonnet/ruv-dl/internal/app"
	"github.com/Guilhem-Bonnet/ruv-dl/internal/domain"
	"github.com/Guilhem-Bonnet/ruv-dl/internal/httpjson"
	"github.com/Guilhem-Bonnet/ruv-dl/internal/ports"
	"github.com/go-chi/chi/v5"
)

type CatalogHandler struct {
	catalog *app.CatalogService
	ledger  ports.Ledger
}

func NewCatalogHandler(catalog *app.CatalogService, ledger ports.Ledger) *CatalogHandler {
	return &CatalogHandler{catalog: catalog, ledger: ledger}
}

func (h *CatalogHandler) Routes(r chi.Router) {
	r.Get("/programs", h.programs)
	if h.ledger != nil {
		r.Get("/completions", h.completions)
	}
}

type programSummary struct {
	ID               string `json:"id"`
	Title            string `json:"title"`
	ForeignTitle     string `json:"foreignTitle,omitempty"`
	ShortDescription string `json:"shortDescription,omitempty"`
	Episodes         int    `json:"episodes"`
}

// programs: ?q= (répétable ou séparé par des virgules), ?ignoreCase=true, ?force=true.
func (h *CatalogHandler) programs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	force, _ := strconv.ParseBool(q.Get("force"))
	programs, err := h.catalog.Programs(r.Context(), force)
	if err != nil {
		httpjson.WriteError(w, http.StatusBadGateway, err.Error())
		return
	}

	var patterns []string
	for _, v := range q["q"] {
		for _, p := range strings.Split(v, ",") {
			if p = strings.TrimSpace(p); p != "" {
				patterns = append(patterns, p)
			}
		}
	}
	if len(patterns) > 0 {
		ignoreCase, _ := strconv.ParseBool(q.Get("ignoreCase"))
		programs = app.SearchPrograms(programs, patterns, ignoreCase)
	}

	out := make([]programSummary, 0, len(programs))
	for _, p := range programs {
		out = append(out, summarize(p))
	}
	httpjson.Write(w, http.StatusOK, out)
}

func summarize(p domain.Program) programSummary {
	return programSummary{
		ID:               p.ID,
		Title:            p.Title,
		ForeignTitle:     p.ForeignTitle,
		ShortDescription: p.ShortDescription,
		Episodes:         len(p.Episodes),
	}
}

type completionDTO struct {
	ID           string `json:"id"`
	ProgramID    string `json:"programId,omitempty"`
	ProgramTitle string `json:"programTitle"`
	Title        string `json:"title"`
	ForeignTitle string `json:"foreignTitle,omitempty"`
	Quality      string `json:"quality,omitempty"`
	FirstAirDate string `json:"firstAirDate,omitempty"`
}

func (h *CatalogHandler) completions(w http.ResponseWriter, r *http.Request) {
	records, err := h.ledger.Load(r.Context())
	if err != nil {
		httpjson.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	out := make([]completionDTO, 0, len(records))
	for _, rec := range records {
		out = append(out, completionDTO{
			ID:           rec.ID,
			ProgramID:    rec.ProgramID,
			ProgramTitle: rec.ProgramTitle,
			Title:        rec.Title,
			ForeignTitle: rec.ForeignTitle,
			Quality:      rec.QualityLabel,
			FirstAirDate: rec.FirstAirDate,
		})
	}
	httpjson.Write(w, http.StatusOK, out)
}
