package app

import (
	"fmt"
	"strings"

	"github.com/Guilhem-Bonnet/ruv-dl/internal/domain"
)

const (
	mediaExt    = ".mp4"
	subtitleExt = ".vtt"

	// Valeur écrite par les anciennes versions pour un titre absent.
	missingTitle = "None"
)

var separatorReplacer = strings.NewReplacer("/", "|", "\\", "|")

// CanonicalName renvoie le nom de fichier (sans extension) d'un épisode.
// Stable pour des entrées identiques; toujours un seul segment de chemin.
func CanonicalName(ep domain.Episode) string {
	return separatorReplacer.Replace(fmt.Sprintf("%s [%s]", baseName(ep), ep.ID))
}

// LegacyName est l'ancien schéma, sans l'id. Migré vers CanonicalName au besoin.
func LegacyName(ep domain.Episode) string {
	return separatorReplacer.Replace(baseName(ep))
}

func baseName(ep domain.Episode) string {
	return fmt.Sprintf("%s ||| %s ||| %s [%s]",
		orNone(ep.ProgramTitle), orNone(ep.Title), orNone(ep.ForeignTitle), ep.QualityLabel)
}

func orNone(s string) string {
	if strings.TrimSpace(s) == "" {
		return missingTitle
	}
	return s
}
