package app

import (
	"context"
	"crypto/md5"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
)

type MoveStatus string

const (
	MoveDone          MoveStatus = "moved"
	MovePlanned       MoveStatus = "would_move"
	MoveUnrecognized  MoveStatus = "unrecognized"
	MoveNoShowName    MoveStatus = "no_foreign_title"
	MoveExistsSame    MoveStatus = "exists_same_checksum"
	MoveExistsDiffers MoveStatus = "exists_different_checksum"
)

type Move struct {
	From   string     `json:"from"`
	To     string     `json:"to,omitempty"`
	Status MoveStatus `json:"status"`
}

// Organizer range les fichiers téléchargés en <Show>/Season NN/<Show> - SNNENN.
// Approche best effort: la numérotation d'origine est souvent approximative.
type Organizer struct {
	logger       zerolog.Logger
	destDir      string
	translations map[string]string
}

func NewOrganizer(logger zerolog.Logger, destDir string, translations map[string]string) *Organizer {
	if translations == nil {
		translations = map[string]string{}
	}
	return &Organizer{logger: logger.With().Str("component", "organizer").Logger(), destDir: destDir, translations: translations}
}

// ReadTranslations charge la table titre islandais -> titre étranger.
// Un fichier absent donne une table vide.
func ReadTranslations(path string) (map[string]string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return map[string]string{}, nil
		}
		return nil, err
	}
	out := map[string]string{}
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, fmt.Errorf("parse translations %s: %w", path, err)
	}
	return out, nil
}

var (
	downloadNameRe = regexp.MustCompile(`^(.+?) \|\|\| (.+?) \|\|\| (.+?)(?: \[([^\]]+)\])?(?: \[([^\]]+)\])?\.mp4$`)
	seasonSuffixRe = regexp.MustCompile(`\s(X|IX|VIII|VII|VI|V|IV|III|II|I)$`)
	twoEpisodesRe  = regexp.MustCompile(`^E(\d+)-E(\d+)$`)
	oneEpisodeRe   = regexp.MustCompile(`^E(\d+)$`)
)

var romanNumerals = map[string]int{
	"I": 1, "II": 2, "III": 3, "IV": 4, "V": 5,
	"VI": 6, "VII": 7, "VIII": 8, "IX": 9, "X": 10,
}

// Destination calcule le chemin rangé d'un fichier, "" avec un statut si impossible.
func (o *Organizer) Destination(path string) (string, MoveStatus) {
	m := downloadNameRe.FindStringSubmatch(filepath.Base(path))
	if m == nil {
		return "", MoveUnrecognized
	}
	programIS, episodeName, show, quality := m[1], m[2], m[3], m[4]

	if show == missingTitle {
		t, ok := o.translations[programIS]
		if !ok {
			return "", MoveNoShowName
		}
		show = t
	}

	season := 1
	if sm := seasonSuffixRe.FindStringSubmatch(show); sm != nil {
		season = romanNumerals[sm[1]]
		show = strings.TrimSpace(strings.TrimSuffix(show, sm[0]))
	}

	qualitySuffix := ""
	if quality != "" {
		qualitySuffix = " [" + quality + "]"
	}
	name := formatEpisodeName(show, season, episodeName, qualitySuffix)
	return filepath.Join(o.destDir, show, fmt.Sprintf("Season %02d", season), name+mediaExt), ""
}

func formatEpisodeName(show string, season int, episodeName, quality string) string {
	start, end, ok := GuessEpisodeNumber(episodeName)
	switch {
	case !ok:
		return fmt.Sprintf("%s - S%02d - %s%s", show, season, episodeName, quality)
	case start == end:
		return fmt.Sprintf("%s - S%02dE%02d%s", show, season, start, quality)
	default:
		return fmt.Sprintf("%s - S%02dE%02d-E%02d%s", show, season, start, end, quality)
	}
}

// GuessEpisodeNumber reconnaît "E01", "E01-E02" et "Þáttur 3 af 8" (2e mot numérique).
func GuessEpisodeNumber(episodeName string) (start, end int, ok bool) {
	if m := twoEpisodesRe.FindStringSubmatch(episodeName); m != nil {
		start, _ = strconv.Atoi(m[1])
		end, _ = strconv.Atoi(m[2])
		return start, end, true
	}
	if m := oneEpisodeRe.FindStringSubmatch(episodeName); m != nil {
		start, _ = strconv.Atoi(m[1])
		return start, start, true
	}
	fields := strings.Split(episodeName, " ")
	if len(fields) < 2 {
		return 0, 0, false
	}
	n, err := strconv.Atoi(fields[1])
	if err != nil {
		return 0, 0, false
	}
	return n, n, true
}

// Organize déplace (ou simule le déplacement de) chaque fichier.
// Une destination existante n'est jamais écrasée.
func (o *Organizer) Organize(ctx context.Context, paths []string, dryRun bool) ([]Move, error) {
	moves := make([]Move, 0, len(paths))
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return moves, err
		}
		log := o.logger.With().Str("path", path).Logger()

		dst, status := o.Destination(path)
		if dst == "" {
			log.Warn().Str("status", string(status)).Msg("skipping file")
			moves = append(moves, Move{From: path, Status: status})
			continue
		}

		mv := Move{From: path, To: dst}
		if _, err := os.Stat(dst); err == nil {
			same, err := sameChecksum(path, dst)
			if err != nil {
				return moves, err
			}
			mv.Status = MoveExistsDiffers
			if same {
				mv.Status = MoveExistsSame
			}
			log.Warn().Str("to", dst).Bool("same_checksum", same).Msg("destination already exists, not moving")
			moves = append(moves, mv)
			continue
		}

		if dryRun {
			log.Warn().Str("to", dst).Msg("would move")
			mv.Status = MovePlanned
			moves = append(moves, mv)
			continue
		}

		if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
			return moves, err
		}
		if err := os.Rename(path, dst); err != nil {
			return moves, fmt.Errorf("move %s: %w", path, err)
		}
		log.Info().Str("to", dst).Msg("moved")
		mv.Status = MoveDone
		moves = append(moves, mv)
	}
	return moves, nil
}

func sameChecksum(a, b string) (bool, error) {
	ha, err := fileMD5(a)
	if err != nil {
		return false, err
	}
	hb, err := fileMD5(b)
	if err != nil {
		return false, err
	}
	return ha == hb, nil
}

func fileMD5(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := md5.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return fmt.Sprintf("%x", h.Sum(nil)), nil
}
