package app

import (
	"strings"

	"github.com/Guilhem-Bonnet/ruv-dl/internal/domain"
	"golang.org/x/text/cases"
)

// SearchPrograms renvoie les programmes dont le titre ou le titre étranger
// contient l'un des motifs. Résultat dédupliqué, dans l'ordre du catalogue.
func SearchPrograms(programs []domain.Program, patterns []string, ignoreCase bool) []domain.Program {
	fold := cases.Fold()
	norm := func(s string) string {
		if ignoreCase {
			return fold.String(s)
		}
		return s
	}

	needles := make([]string, 0, len(patterns))
	for _, p := range patterns {
		if p == "" {
			continue
		}
		needles = append(needles, norm(p))
	}
	if len(needles) == 0 {
		return nil
	}

	var out []domain.Program
	seen := map[string]struct{}{}
	for _, prog := range programs {
		if _, ok := seen[prog.ID]; ok {
			continue
		}
		title := norm(prog.Title)
		foreign := norm(prog.ForeignTitle)
		for _, n := range needles {
			if strings.Contains(title, n) || (foreign != "" && strings.Contains(foreign, n)) {
				seen[prog.ID] = struct{}{}
				out = append(out, prog)
				break
			}
		}
	}
	return out
}
