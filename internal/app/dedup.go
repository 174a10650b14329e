package app

import (
	"github.com/Guilhem-Bonnet/ruv-dl/internal/domain"
)

// CompletionIndex est la vue mémoire du ledger pour un run. Il n'est lu et
// écrit que par le collecteur de l'orchestrateur.
//
// Règle de dédup: un épisode est satisfait si un record a le même id (titre
// ignoré), ou le même titre de programme ET la même date de première
// diffusion, les deux dates étant renseignées.
type CompletionIndex struct {
	ids         map[string]struct{}
	titleAndAir map[titleAirKey]struct{}
}

type titleAirKey struct {
	programTitle string
	firstAirDate string
}

func NewCompletionIndex(records []domain.CompletionRecord) *CompletionIndex {
	idx := &CompletionIndex{
		ids:         make(map[string]struct{}, len(records)),
		titleAndAir: make(map[titleAirKey]struct{}, len(records)),
	}
	for _, r := range records {
		idx.Add(r)
	}
	return idx
}

func (i *CompletionIndex) Add(rec domain.CompletionRecord) {
	if rec.ID != "" {
		i.ids[rec.ID] = struct{}{}
	}
	if rec.FirstAirDate != "" {
		i.titleAndAir[titleAirKey{rec.ProgramTitle, rec.FirstAirDate}] = struct{}{}
	}
}

func (i *CompletionIndex) Contains(ep domain.Episode) bool {
	if ep.ID != "" {
		if _, ok := i.ids[ep.ID]; ok {
			return true
		}
	}
	if ep.FirstAirDate == "" {
		return false
	}
	_, ok := i.titleAndAir[titleAirKey{ep.ProgramTitle, ep.FirstAirDate}]
	return ok
}
