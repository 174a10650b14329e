package app

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/Guilhem-Bonnet/ruv-dl/internal/domain"
	"github.com/Guilhem-Bonnet/ruv-dl/internal/ports"
)

// ParseQuality convertit un libellé ("720p", "1080P", "720") en hauteur.
func ParseQuality(label string) (int, error) {
	s := strings.TrimSuffix(strings.ToLower(strings.TrimSpace(label)), "p")
	h, err := strconv.Atoi(s)
	if err != nil || h <= 0 {
		return 0, fmt.Errorf("invalid quality %q", label)
	}
	return h, nil
}

// SelectRendition renvoie la première variante dont la hauteur est égale à la
// qualité demandée. Aucune hypothèse sur l'ordre du manifest.
func SelectRendition(renditions []domain.Rendition, qualityLabel string) (domain.Rendition, error) {
	height, err := ParseQuality(qualityLabel)
	if err != nil {
		return domain.Rendition{}, fmt.Errorf("%w: %v", ports.ErrNoMatchingRendition, err)
	}
	for _, r := range renditions {
		if r.Height == height {
			return r, nil
		}
	}
	return domain.Rendition{}, fmt.Errorf("%w: %s (available: %s)",
		ports.ErrNoMatchingRendition, qualityLabel, strings.Join(AvailableQualities(renditions), "/"))
}

// LowestBandwidth sert le mode audio seul. Une bande passante inconnue (0)
// ne gagne que si aucune variante ne la déclare.
func LowestBandwidth(renditions []domain.Rendition) (domain.Rendition, error) {
	if len(renditions) == 0 {
		return domain.Rendition{}, ports.ErrNoMatchingRendition
	}
	best := -1
	for i, r := range renditions {
		if r.Bandwidth <= 0 {
			continue
		}
		if best < 0 || r.Bandwidth < renditions[best].Bandwidth {
			best = i
		}
	}
	if best < 0 {
		return renditions[0], nil
	}
	return renditions[best], nil
}

// AvailableQualities liste les hauteurs distinctes, triées, au format "720p".
func AvailableQualities(renditions []domain.Rendition) []string {
	seen := map[int]struct{}{}
	heights := make([]int, 0, len(renditions))
	for _, r := range renditions {
		if r.Height <= 0 {
			continue
		}
		if _, ok := seen[r.Height]; ok {
			continue
		}
		seen[r.Height] = struct{}{}
		heights = append(heights, r.Height)
	}
	sort.Ints(heights)
	out := make([]string, 0, len(heights))
	for _, h := range heights {
		out = append(out, strconv.Itoa(h)+"p")
	}
	return out
}
