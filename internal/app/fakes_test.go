package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/Guilhem-Bonnet/ruv-dl/internal/domain"
	"github.com/Guilhem-Bonnet/ruv-dl/internal/ports"
)

type memLedger struct {
	mu        sync.Mutex
	records   []domain.CompletionRecord
	appendErr error
}

func (l *memLedger) Load(ctx context.Context) ([]domain.CompletionRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]domain.CompletionRecord(nil), l.records...), nil
}

func (l *memLedger) Append(ctx context.Context, rec domain.CompletionRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.appendErr != nil {
		return l.appendErr
	}
	l.records = append(l.records, rec)
	return nil
}

func (l *memLedger) ids() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, 0, len(l.records))
	for _, r := range l.records {
		out = append(out, r.ID)
	}
	return out
}

type stubResolver struct {
	mu         sync.Mutex
	calls      int
	renditions []domain.Rendition
	err        error
	failFor    map[string]error
	panicFor   string
}

func (r *stubResolver) Resolve(ctx context.Context, manifestURL string) ([]domain.Rendition, error) {
	r.mu.Lock()
	r.calls++
	r.mu.Unlock()
	if manifestURL == r.panicFor && r.panicFor != "" {
		panic("boom")
	}
	if err, ok := r.failFor[manifestURL]; ok {
		return nil, err
	}
	if r.err != nil {
		return nil, r.err
	}
	return r.renditions, nil
}

func (r *stubResolver) callCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

type stubSubtitles struct {
	err error
}

func (s stubSubtitles) Fetch(ctx context.Context, url string, dst string) error {
	if s.err != nil {
		return s.err
	}
	return os.WriteFile(dst, []byte("WEBVTT\n"), 0o644)
}

// stubRemuxer écrit la sortie et enregistre les requêtes reçues.
// Si block est non nil, il écrit une sortie partielle puis attend l'annulation.
type stubRemuxer struct {
	mu       sync.Mutex
	requests []domain.RemuxRequest
	err      error
	empty    bool
	block    chan struct{}
	onStart  func(req domain.RemuxRequest)
	subSeen  []bool
}

func (r *stubRemuxer) Remux(ctx context.Context, req domain.RemuxRequest) error {
	r.mu.Lock()
	r.requests = append(r.requests, req)
	subExists := false
	if req.SubtitlePath != "" {
		_, err := os.Stat(req.SubtitlePath)
		subExists = err == nil
	}
	r.subSeen = append(r.subSeen, subExists)
	onStart := r.onStart
	r.mu.Unlock()

	if onStart != nil {
		onStart(req)
	}
	if r.block != nil {
		if err := os.WriteFile(req.Output, []byte("partial"), 0o644); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %v", ports.ErrInterrupted, ctx.Err())
		case <-r.block:
		}
	}
	if r.err != nil {
		_ = os.WriteFile(req.Output, []byte("partial"), 0o644)
		return r.err
	}
	if r.empty {
		return os.WriteFile(req.Output, nil, 0o644)
	}
	return os.WriteFile(req.Output, []byte("media"), 0o644)
}

func (r *stubRemuxer) lastRequest() domain.RemuxRequest {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.requests) == 0 {
		return domain.RemuxRequest{}
	}
	return r.requests[len(r.requests)-1]
}

type stubProber struct {
	err   error
	calls int
}

func (p *stubProber) Verify(ctx context.Context, path string) error {
	p.calls++
	return p.err
}

var errStub = errors.New("stub failure")

func testRenditions() []domain.Rendition {
	return []domain.Rendition{
		{Index: 0, Height: 240, Bandwidth: 400_000, Address: "https://cdn/240.m3u8"},
		{Index: 1, Height: 720, Bandwidth: 3_000_000, Address: "https://cdn/720.m3u8"},
		{Index: 2, Height: 1080, Bandwidth: 6_000_000, Address: "https://cdn/1080.m3u8"},
	}
}

func testEpisode(id, programTitle, firstAir string) domain.Episode {
	return domain.Episode{
		ID:           id,
		ProgramID:    "p1",
		ProgramTitle: programTitle,
		Title:        "Þáttur " + id,
		FirstAirDate: firstAir,
		QualityLabel: "720p",
		ManifestURL:  "https://cdn/" + id + "/index.m3u8",
	}
}
