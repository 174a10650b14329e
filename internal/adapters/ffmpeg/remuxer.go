package ffmpeg

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/Guilhem-Bonnet/ruv-dl/internal/domain"
	"github.com/Guilhem-Bonnet/ruv-dl/internal/ports"
	"github.com/rs/zerolog"
)

// Codes de sortie d'ffmpeg après SIGINT: 130 (128+2) via le shell, 255 en direct.
const (
	exitSigint      = 130
	exitInterrupted = 255
)

const stderrTail = 4 << 10

type Options struct {
	// Binary est le chemin d'ffmpeg; "ffmpeg" par défaut (résolu via PATH).
	Binary string
	// WaitDelay borne l'attente après l'envoi de SIGINT avant un kill.
	WaitDelay time.Duration
}

// Remuxer appelle ffmpeg en copie de flux, sans ré-encodage.
type Remuxer struct {
	logger zerolog.Logger
	opts   Options
}

func New(logger zerolog.Logger, opts Options) *Remuxer {
	if opts.Binary == "" {
		opts.Binary = "ffmpeg"
	}
	if opts.WaitDelay <= 0 {
		opts.WaitDelay = 5 * time.Second
	}
	return &Remuxer{logger: logger.With().Str("component", "ffmpeg").Logger(), opts: opts}
}

// RemuxArgs construit la ligne de commande pour req.
func RemuxArgs(req domain.RemuxRequest) []string {
	args := []string{"-hide_banner", "-nostdin", "-loglevel", "error", "-y", "-i", req.Input}
	withSubs := req.SubtitlePath != ""
	if withSubs {
		args = append(args, "-i", req.SubtitlePath)
	}
	if req.AudioOnly {
		args = append(args, "-map", "0:a", "-vn")
	} else {
		args = append(args, "-map", "0:v", "-map", "0:a")
	}
	if withSubs {
		args = append(args, "-map", "1:s")
	}
	args = append(args, "-c", "copy")
	if withSubs {
		args = append(args, "-c:s", "mov_text")
	}
	return append(args, req.Output)
}

// VerifyArgs décode la piste audio sans rien écrire; un fichier tronqué échoue.
func VerifyArgs(path string) []string {
	return []string{"-hide_banner", "-nostdin", "-v", "error", "-i", path, "-map", "0:a:0", "-f", "null", "-"}
}

func (r *Remuxer) Remux(ctx context.Context, req domain.RemuxRequest) error {
	if req.Input == "" || req.Output == "" {
		return fmt.Errorf("%w: input and output are required", ports.ErrRemuxFailed)
	}
	log := r.logger.With().Str("output", req.Output).Logger()
	log.Debug().Str("input", req.Input).Bool("subtitles", req.SubtitlePath != "").Bool("audio_only", req.AudioOnly).Msg("remux start")

	stderr, err := r.run(ctx, RemuxArgs(req))
	if err != nil {
		_ = os.Remove(req.Output)
		err = classify(ctx, err, stderr, ports.ErrRemuxFailed)
		if errors.Is(err, ports.ErrInterrupted) {
			log.Warn().Msg("remux interrupted")
		} else {
			log.Error().Err(err).Msg("remux failed")
		}
		return err
	}
	log.Debug().Msg("remux done")
	return nil
}

// Verify implémente ports.Prober.
func (r *Remuxer) Verify(ctx context.Context, path string) error {
	stderr, err := r.run(ctx, VerifyArgs(path))
	if err != nil {
		return classify(ctx, err, stderr, ports.ErrRemuxFailed)
	}
	// ffmpeg peut sortir en 0 tout en signalant des erreurs de décodage.
	if msg := strings.TrimSpace(stderr); msg != "" {
		return fmt.Errorf("%w: %s: %s", ports.ErrRemuxFailed, path, msg)
	}
	return nil
}

func (r *Remuxer) run(ctx context.Context, args []string) (string, error) {
	cmd := exec.CommandContext(ctx, r.opts.Binary, args...)
	// SIGINT plutôt que kill pour laisser ffmpeg fermer proprement.
	cmd.Cancel = func() error { return cmd.Process.Signal(os.Interrupt) }
	cmd.WaitDelay = r.opts.WaitDelay
	var tail tailBuffer
	cmd.Stderr = &tail
	err := cmd.Run()
	return tail.String(), err
}

func classify(ctx context.Context, err error, stderr string, failure error) error {
	msg := strings.TrimSpace(stderr)
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		code := exitErr.ExitCode()
		if code == exitSigint || code == exitInterrupted || (code == -1 && ctx.Err() != nil) {
			return fmt.Errorf("%w: ffmpeg exited with %d", ports.ErrInterrupted, code)
		}
		if ctx.Err() != nil {
			return fmt.Errorf("%w: %v", ports.ErrInterrupted, ctx.Err())
		}
		if msg != "" {
			return fmt.Errorf("%w: exit %d: %s", failure, code, msg)
		}
		return fmt.Errorf("%w: exit %d", failure, code)
	}
	if ctx.Err() != nil {
		return fmt.Errorf("%w: %v", ports.ErrInterrupted, ctx.Err())
	}
	// Binaire absent, permissions...
	return fmt.Errorf("%w: %v", failure, err)
}

// tailBuffer garde les derniers octets écrits sur stderr.
type tailBuffer struct {
	mu  sync.Mutex
	buf []byte
}

func (b *tailBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf = append(b.buf, p...)
	if len(b.buf) > stderrTail {
		b.buf = append([]byte(nil), b.buf[len(b.buf)-stderrTail:]...)
	}
	return len(p), nil
}

func (b *tailBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return string(b.buf)
}
