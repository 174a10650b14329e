package jsonl

import (
	"bytes"
	"encoding/json"

	"github.com/Guilhem-Bonnet/ruv-dl/internal/domain"
)

// recordLine est le format historique du journal: noms de champs snake_case,
// champs optionnels écrits à null.
type recordLine struct {
	ID           flexString `json:"id"`
	ProgramID    flexString `json:"program_id"`
	ProgramTitle string     `json:"program_title"`
	Title        *string    `json:"title"`
	ForeignTitle *string    `json:"foreign_title"`
	QualityStr   string     `json:"quality_str"`
	URL          string     `json:"url"`
	FirstRun     *string    `json:"firstrun"`
}

// flexString accepte une chaîne ou un nombre (les anciens journaux
// contiennent des program_id numériques).
type flexString string

func (s *flexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*s = ""
		return nil
	}
	if b[0] == '"' {
		var v string
		if err := json.Unmarshal(b, &v); err != nil {
			return err
		}
		*s = flexString(v)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*s = flexString(n.String())
	return nil
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func toLine(rec domain.CompletionRecord) recordLine {
	return recordLine{
		ID:           flexString(rec.ID),
		ProgramID:    flexString(rec.ProgramID),
		ProgramTitle: rec.ProgramTitle,
		Title:        optional(rec.Title),
		ForeignTitle: optional(rec.ForeignTitle),
		QualityStr:   rec.QualityLabel,
		URL:          rec.URL,
		FirstRun:     optional(rec.FirstAirDate),
	}
}

func (l recordLine) record() domain.CompletionRecord {
	return domain.CompletionRecord{
		ID:           string(l.ID),
		ProgramID:    string(l.ProgramID),
		ProgramTitle: l.ProgramTitle,
		Title:        deref(l.Title),
		ForeignTitle: deref(l.ForeignTitle),
		QualityLabel: l.QualityStr,
		URL:          l.URL,
		FirstAirDate: deref(l.FirstRun),
	}
}

// encodeLine sérialise sans échappement HTML, terminé par '\n'.
func encodeLine(rec domain.CompletionRecord) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(toLine(rec)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
