package jsonl

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/Guilhem-Bonnet/ruv-dl/internal/domain"
	"github.com/Guilhem-Bonnet/ruv-dl/internal/ports"
	"github.com/gofrs/flock"
	"github.com/rs/zerolog"
)

const (
	maxLineSize    = 1 << 20
	lockRetryDelay = 50 * time.Millisecond
	lockTimeout    = 30 * time.Second
)

// Ledger est le journal des épisodes terminés: un objet JSON par ligne,
// en ajout seul. Les écritures sont sérialisées dans le process (mutex) et
// entre process (flock sur <path>.lock).
type Ledger struct {
	logger zerolog.Logger
	path   string

	mu   sync.Mutex
	lock *flock.Flock
}

func New(logger zerolog.Logger, path string) *Ledger {
	return &Ledger{
		logger: logger.With().Str("component", "ledger").Str("path", path).Logger(),
		path:   path,
		lock:   flock.New(path + ".lock"),
	}
}

// Load lit tout le journal. Fichier absent: liste vide. Ligne illisible ou
// démesurée (fin de fichier remplie de NUL après un crash): ignorée avec un
// warning. Seule une vraie erreur d'E/S est fatale.
func (l *Ledger) Load(ctx context.Context) ([]domain.CompletionRecord, error) {
	f, err := os.Open(l.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: open ledger: %v", ports.ErrStorage, err)
	}
	defer f.Close()

	var out []domain.CompletionRecord
	r := bufio.NewReaderSize(f, 64*1024)
	lineNo := 0
	for {
		line, tooLong, readErr := readLine(r, maxLineSize)
		eof := errors.Is(readErr, io.EOF)
		if readErr != nil && !eof {
			return nil, fmt.Errorf("%w: read ledger line %d: %v", ports.ErrStorage, lineNo+1, readErr)
		}
		if eof && len(line) == 0 && !tooLong {
			break
		}
		lineNo++
		if lineNo%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}

		switch {
		case tooLong:
			l.logger.Warn().Int("line", lineNo).Int("max_bytes", maxLineSize).Msg("skipping oversized ledger line")
		default:
			if rec, ok := l.parseLine(lineNo, bytes.TrimSpace(line)); ok {
				out = append(out, rec)
			}
		}
		if eof {
			break
		}
	}
	return out, nil
}

func (l *Ledger) parseLine(lineNo int, line []byte) (domain.CompletionRecord, bool) {
	if len(line) == 0 {
		return domain.CompletionRecord{}, false
	}
	var rl recordLine
	if err := json.Unmarshal(line, &rl); err != nil {
		l.logger.Warn().Err(err).Int("line", lineNo).Msg("skipping corrupt ledger line")
		return domain.CompletionRecord{}, false
	}
	if rl.ID == "" && rl.ProgramTitle == "" {
		l.logger.Warn().Int("line", lineNo).Msg("skipping ledger line without identity")
		return domain.CompletionRecord{}, false
	}
	return rl.record(), true
}

// readLine lit jusqu'au prochain '\n' inclus. Au-delà de limit octets le reste
// de la ligne est consommé sans être gardé et tooLong vaut true.
func readLine(r *bufio.Reader, limit int) (line []byte, tooLong bool, err error) {
	for {
		chunk, rerr := r.ReadSlice('\n')
		if !tooLong {
			if len(line)+len(chunk) > limit {
				tooLong = true
				line = nil
			} else {
				line = append(line, chunk...)
			}
		}
		if errors.Is(rerr, bufio.ErrBufferFull) {
			continue
		}
		return line, tooLong, rerr
	}
}

// Append ajoute une ligne et la synchronise sur disque avant de rendre la main.
func (l *Ledger) Append(ctx context.Context, rec domain.CompletionRecord) error {
	line, err := encodeLine(rec)
	if err != nil {
		return fmt.Errorf("%w: encode record: %v", ports.ErrStorage, err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return fmt.Errorf("%w: %v", ports.ErrStorage, err)
	}

	lockCtx, cancel := context.WithTimeout(ctx, lockTimeout)
	defer cancel()
	ok, err := l.lock.TryLockContext(lockCtx, lockRetryDelay)
	if err != nil || !ok {
		return fmt.Errorf("%w: lock ledger: %v", ports.ErrStorage, err)
	}
	defer func() {
		if err := l.lock.Unlock(); err != nil {
			l.logger.Warn().Err(err).Msg("failed to release ledger lock")
		}
	}()

	f, err := os.OpenFile(l.path, os.O_RDWR|os.O_APPEND|os.O_CREATE, 0o644)
	if err != nil {
		return fmt.Errorf("%w: open ledger: %v", ports.ErrStorage, err)
	}
	defer f.Close()

	torn, err := endsWithoutNewline(f)
	if err != nil {
		return fmt.Errorf("%w: %v", ports.ErrStorage, err)
	}
	if torn {
		// Ligne interrompue par un arrêt brutal: on la termine pour ne pas
		// corrompre l'enregistrement suivant.
		line = append([]byte{'\n'}, line...)
	}

	if _, err := f.Write(line); err != nil {
		return fmt.Errorf("%w: write ledger: %v", ports.ErrStorage, err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("%w: sync ledger: %v", ports.ErrStorage, err)
	}
	return nil
}

func endsWithoutNewline(f *os.File) (bool, error) {
	fi, err := f.Stat()
	if err != nil {
		return false, err
	}
	if fi.Size() == 0 {
		return false, nil
	}
	last := make([]byte, 1)
	if _, err := f.ReadAt(last, fi.Size()-1); err != nil && !errors.Is(err, io.EOF) {
		return false, err
	}
	return last[0] != '\n', nil
}
