package domain

// Episode est une unité de travail: un épisode candidat au téléchargement,
// déjà résolu depuis (programme, qualité).
//
// Les chaînes vides signifient "absent" pour ForeignTitle, FirstAirDate et SubtitleURL.
type Episode struct {
	ID           string `json:"id"`
	ProgramID    string `json:"programId"`
	ProgramTitle string `json:"programTitle"`
	ForeignTitle string `json:"foreignTitle,omitempty"`
	Title        string `json:"title"`

	// FirstAirDate sert de clé secondaire de dédup (avec ProgramTitle).
	FirstAirDate string `json:"firstAirDate,omitempty"`

	QualityLabel string `json:"quality"`
	ManifestURL  string `json:"manifestUrl"`
	SubtitleURL  string `json:"subtitleUrl,omitempty"`
}

// CompletionRecord est le fait persisté qu'un épisode a été téléchargé
// (ou confirmé présent). Jamais modifié ni supprimé.
type CompletionRecord struct {
	ID           string
	ProgramID    string
	ProgramTitle string
	Title        string
	ForeignTitle string
	QualityLabel string
	URL          string
	FirstAirDate string
}

func RecordFromEpisode(ep Episode) CompletionRecord {
	return CompletionRecord{
		ID:           ep.ID,
		ProgramID:    ep.ProgramID,
		ProgramTitle: ep.ProgramTitle,
		Title:        ep.Title,
		ForeignTitle: ep.ForeignTitle,
		QualityLabel: ep.QualityLabel,
		URL:          ep.ManifestURL,
		FirstAirDate: ep.FirstAirDate,
	}
}

// Rendition est une variante d'un manifest HLS.
// Bandwidth vaut 0 quand le manifest ne la déclare pas.
type Rendition struct {
	Index     int    `json:"index"`
	Width     int    `json:"width"`
	Height    int    `json:"height"`
	Bandwidth int64  `json:"bandwidth,omitempty"`
	Address   string `json:"address"`
}

type Program struct {
	ID               string           `json:"id"`
	Title            string           `json:"title"`
	ForeignTitle     string           `json:"foreignTitle,omitempty"`
	ShortDescription string           `json:"shortDescription,omitempty"`
	Episodes         []ProgramEpisode `json:"episodes"`
}

type ProgramEpisode struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	ManifestURL string `json:"file,omitempty"`
	FirstRun    string `json:"firstrun,omitempty"`
	SubtitleURL string `json:"subtitleUrl,omitempty"`
}

// EpisodesFor construit les candidats d'un programme pour une qualité donnée.
func (p Program) EpisodesFor(quality string) []Episode {
	out := make([]Episode, 0, len(p.Episodes))
	for _, e := range p.Episodes {
		out = append(out, Episode{
			ID:           e.ID,
			ProgramID:    p.ID,
			ProgramTitle: p.Title,
			ForeignTitle: p.ForeignTitle,
			Title:        e.Title,
			FirstAirDate: e.FirstRun,
			QualityLabel: quality,
			ManifestURL:  e.ManifestURL,
			SubtitleURL:  e.SubtitleURL,
		})
	}
	return out
}

// RemuxRequest décrit une invocation du remuxeur externe.
type RemuxRequest struct {
	Input        string
	Output       string
	SubtitlePath string
	AudioOnly    bool
}
