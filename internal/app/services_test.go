package app

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Guilhem-Bonnet/ruv-dl/internal/domain"
	"github.com/Guilhem-Bonnet/ruv-dl/internal/ports"
	"github.com/rs/zerolog"
)

type fakeCatalog struct {
	all       []domain.Program
	allErr    error
	allCalls  int
	byID      map[string]domain.Program
	lastLimit int
}

func (c *fakeCatalog) FetchAllPrograms(ctx context.Context) ([]domain.Program, error) {
	c.allCalls++
	if c.allErr != nil {
		return nil, c.allErr
	}
	return c.all, nil
}

func (c *fakeCatalog) FetchProgramsWithEpisodes(ctx context.Context, ids []string, concurrency int) ([]domain.Program, error) {
	c.lastLimit = concurrency
	var out []domain.Program
	for _, id := range ids {
		if p, ok := c.byID[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

type memProgramCache struct {
	programs  []domain.Program
	fetchedAt time.Time
	saved     int
}

func (c *memProgramCache) Load(ctx context.Context) ([]domain.Program, time.Time, error) {
	if c.programs == nil {
		return nil, time.Time{}, ports.ErrNotFound
	}
	return c.programs, c.fetchedAt, nil
}

func (c *memProgramCache) Save(ctx context.Context, programs []domain.Program, fetchedAt time.Time) error {
	c.programs = programs
	c.fetchedAt = fetchedAt
	c.saved++
	return nil
}

func TestCatalogService_ProgramsUsesFreshCache(t *testing.T) {
	cat := &fakeCatalog{all: []domain.Program{{ID: "1", Title: "Kastljós"}}}
	cache := &memProgramCache{}
	svc := NewCatalogService(zerolog.Nop(), cat, cache, CatalogOptions{RefreshInterval: time.Minute})

	if _, err := svc.Programs(context.Background(), false); err != nil {
		t.Fatalf("Programs: %v", err)
	}
	if _, err := svc.Programs(context.Background(), false); err != nil {
		t.Fatalf("Programs: %v", err)
	}
	if cat.allCalls != 1 || cache.saved != 1 {
		t.Fatalf("expected a single catalog fetch, calls=%d saved=%d", cat.allCalls, cache.saved)
	}

	if _, err := svc.Programs(context.Background(), true); err != nil {
		t.Fatalf("Programs(force): %v", err)
	}
	if cat.allCalls != 2 {
		t.Fatalf("force should refetch, calls=%d", cat.allCalls)
	}
}

func TestCatalogService_ProgramsRefreshesExpiredCache(t *testing.T) {
	cat := &fakeCatalog{all: []domain.Program{{ID: "2", Title: "Fresh"}}}
	cache := &memProgramCache{programs: []domain.Program{{ID: "1", Title: "Old"}}, fetchedAt: time.Now().Add(-time.Hour)}
	svc := NewCatalogService(zerolog.Nop(), cat, cache, CatalogOptions{RefreshInterval: 10 * time.Minute})

	programs, err := svc.Programs(context.Background(), false)
	if err != nil {
		t.Fatalf("Programs: %v", err)
	}
	if len(programs) != 1 || programs[0].ID != "2" || cat.allCalls != 1 {
		t.Fatalf("expected refreshed programs, got %+v", programs)
	}
}

func TestCatalogService_StaleCacheOnCatalogFailure(t *testing.T) {
	cat := &fakeCatalog{allErr: ports.ErrCatalogUnavailable}
	cache := &memProgramCache{programs: []domain.Program{{ID: "1", Title: "Old"}}, fetchedAt: time.Now().Add(-time.Hour)}
	svc := NewCatalogService(zerolog.Nop(), cat, cache, CatalogOptions{})

	programs, err := svc.Programs(context.Background(), false)
	if err != nil || len(programs) != 1 {
		t.Fatalf("expected stale programs, got %+v err=%v", programs, err)
	}

	empty := NewCatalogService(zerolog.Nop(), cat, &memProgramCache{}, CatalogOptions{})
	if _, err := empty.Programs(context.Background(), false); !errors.Is(err, ports.ErrCatalogUnavailable) {
		t.Fatalf("expected catalog error without cache, got %v", err)
	}
}

func TestCatalogService_EpisodesDropsUnknownIDs(t *testing.T) {
	cat := &fakeCatalog{byID: map[string]domain.Program{
		"10": {ID: "10", Title: "Show", ForeignTitle: "The Show", Episodes: []domain.ProgramEpisode{
			{ID: "a", Title: "E01", ManifestURL: "https://cdn/a.m3u8", FirstRun: "2020-01-01T20:00:00"},
			{ID: "b", Title: "E02", ManifestURL: "https://cdn/b.m3u8"},
		}},
	}}
	svc := NewCatalogService(zerolog.Nop(), cat, nil, CatalogOptions{Concurrency: 3})

	eps, err := svc.Episodes(context.Background(), []string{"10", "missing", "10"}, "720p")
	if err != nil {
		t.Fatalf("Episodes: %v", err)
	}
	if len(eps) != 2 {
		t.Fatalf("expected 2 episodes, got %d", len(eps))
	}
	if eps[0].ProgramTitle != "Show" || eps[0].ForeignTitle != "The Show" || eps[0].QualityLabel != "720p" || eps[0].FirstAirDate != "2020-01-01T20:00:00" {
		t.Fatalf("unexpected episode %+v", eps[0])
	}
	if cat.lastLimit != 3 {
		t.Fatalf("expected concurrency to be forwarded, got %d", cat.lastLimit)
	}
}

func TestSearchPrograms(t *testing.T) {
	programs := []domain.Program{
		{ID: "1", Title: "Kastljós"},
		{ID: "2", Title: "Krakkafréttir", ForeignTitle: "Kids News"},
		{ID: "3", Title: "ÆVINTÝRI"},
	}

	got := SearchPrograms(programs, []string{"kast"}, false)
	if len(got) != 0 {
		t.Fatalf("case-sensitive search should not match, got %+v", got)
	}
	got = SearchPrograms(programs, []string{"kast", "news"}, true)
	if len(got) != 2 || got[0].ID != "1" || got[1].ID != "2" {
		t.Fatalf("unexpected result %+v", got)
	}
	got = SearchPrograms(programs, []string{"ævintýri"}, true)
	if len(got) != 1 || got[0].ID != "3" {
		t.Fatalf("unicode folding should match, got %+v", got)
	}
	got = SearchPrograms(programs, []string{"K", "Kids"}, false)
	if len(got) != 2 {
		t.Fatalf("results must be deduplicated, got %+v", got)
	}
}

func TestDetailsService(t *testing.T) {
	cat := &fakeCatalog{byID: map[string]domain.Program{
		"10": {ID: "10", Title: "Show", ShortDescription: "desc", Episodes: []domain.ProgramEpisode{
			{ID: "a", Title: "E01", ManifestURL: "https://cdn/a.m3u8"},
			{ID: "b", Title: "E02", ManifestURL: "https://cdn/b.m3u8"},
		}},
	}}
	resolver := &stubResolver{
		renditions: testRenditions(),
		failFor:    map[string]error{"https://cdn/b.m3u8": ports.ErrManifestUnavailable},
	}
	svc := NewDetailsService(zerolog.Nop(), NewCatalogService(zerolog.Nop(), cat, nil, CatalogOptions{}), resolver, 2)

	rows, err := svc.Details(context.Background(), []string{"10"})
	if err != nil {
		t.Fatalf("Details: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	if strings.Join(rows[0].Qualities, "/") != "240p/720p/1080p" {
		t.Fatalf("unexpected qualities %v", rows[0].Qualities)
	}
	if len(rows[1].Qualities) != 0 || rows[1].ShortDescription != "desc" {
		t.Fatalf("unexpected row %+v", rows[1])
	}
}

func TestGuessEpisodeNumber(t *testing.T) {
	cases := []struct {
		in         string
		start, end int
		ok         bool
	}{
		{"Þáttur 1 af 26", 1, 1, true},
		{"Þessi þáttur heitir eitthvað", 0, 0, false},
		{"E23", 23, 23, true},
		{"E23-E24", 23, 24, true},
		{"Kastljós", 0, 0, false},
	}
	for _, c := range cases {
		start, end, ok := GuessEpisodeNumber(c.in)
		if start != c.start || end != c.end || ok != c.ok {
			t.Fatalf("GuessEpisodeNumber(%q) = (%d,%d,%v), want (%d,%d,%v)", c.in, start, end, ok, c.start, c.end, c.ok)
		}
	}
}

func TestOrganizer_Destination(t *testing.T) {
	dest := "/organized"
	o := NewOrganizer(zerolog.Nop(), dest, map[string]string{"Hraunið": "The Lava Field"})

	cases := []struct {
		name string
		want string
		st   MoveStatus
	}{
		{"Ófærð II ||| Þáttur 3 af 10 ||| Trapped II [1080p] [abc].mp4", filepath.Join(dest, "Trapped", "Season 02", "Trapped - S02E03 [1080p].mp4"), ""},
		{"Ófærð ||| E01-E02 ||| Trapped [720p].mp4", filepath.Join(dest, "Trapped", "Season 01", "Trapped - S01E01-E02 [720p].mp4"), ""},
		{"Hraunið ||| Lokaþáttur ||| None [720p] [x1].mp4", filepath.Join(dest, "The Lava Field", "Season 01", "The Lava Field - S01 - Lokaþáttur [720p].mp4"), ""},
		{"Óþekkt ||| E01 ||| None [720p].mp4", "", MoveNoShowName},
		{"random.mp4", "", MoveUnrecognized},
		{"Taxi ||| E01 ||| Taxi [720p].mp4", filepath.Join(dest, "Taxi", "Season 01", "Taxi - S01E01 [720p].mp4"), ""},
	}
	for _, c := range cases {
		got, st := o.Destination(filepath.Join("/downloads", c.name))
		if got != c.want || st != c.st {
			t.Fatalf("Destination(%q) = (%q,%q), want (%q,%q)", c.name, got, st, c.want, c.st)
		}
	}
}

func TestOrganizer_Organize(t *testing.T) {
	src := t.TempDir()
	dest := t.TempDir()
	o := NewOrganizer(zerolog.Nop(), dest, nil)

	a := filepath.Join(src, "Ófærð ||| E01 ||| Trapped [720p] [a].mp4")
	b := filepath.Join(src, "Ófærð ||| E02 ||| Trapped [720p] [b].mp4")
	for _, p := range []string{a, b} {
		if err := os.WriteFile(p, []byte(filepath.Base(p)), 0o644); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
	bDest, _ := o.Destination(b)
	if err := os.MkdirAll(filepath.Dir(bDest), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(bDest, []byte("other"), 0o644); err != nil {
		t.Fatalf("seed: %v", err)
	}

	moves, err := o.Organize(context.Background(), []string{a, b}, true)
	if err != nil {
		t.Fatalf("Organize(dry): %v", err)
	}
	if moves[0].Status != MovePlanned || moves[1].Status != MoveExistsDiffers {
		t.Fatalf("unexpected dry-run moves %+v", moves)
	}
	if _, err := os.Stat(a); err != nil {
		t.Fatalf("dry run must not move files")
	}

	moves, err = o.Organize(context.Background(), []string{a}, false)
	if err != nil {
		t.Fatalf("Organize: %v", err)
	}
	if moves[0].Status != MoveDone {
		t.Fatalf("expected moved, got %+v", moves[0])
	}
	if _, err := os.Stat(moves[0].To); err != nil {
		t.Fatalf("destination should exist: %v", err)
	}
}

func TestReadTranslations(t *testing.T) {
	dir := t.TempDir()
	got, err := ReadTranslations(filepath.Join(dir, "missing.json"))
	if err != nil || len(got) != 0 {
		t.Fatalf("missing file should give an empty table, got %v err=%v", got, err)
	}

	path := filepath.Join(dir, "translations.json")
	if err := os.WriteFile(path, []byte(`{"Ófærð":"Trapped"}`), 0o644); err != nil {
		t.Fatalf("seed: %v", err)
	}
	got, err = ReadTranslations(path)
	if err != nil || got["Ófærð"] != "Trapped" {
		t.Fatalf("unexpected translations %v err=%v", got, err)
	}
}

func TestProgressReporter_LogsOutcomes(t *testing.T) {
	buf := &syncBuffer{}
	bus := newChanBus()
	r := NewProgressReporter(zerolog.New(buf), bus)

	ctx, cancel := context.WithCancel(context.Background())
	stopped := r.Start(ctx)

	ep := testEpisode("e1", "Show", "")
	publish(bus, TopicEpisodeDownloaded, outcomeEvent("run1", domain.Downloaded(ep, "/x.mp4"), 1, 3))
	publish(bus, TopicEpisodeFailed, outcomeEvent("run1", domain.Failed(ep, coded(CodeRemuxFailed, "remux", errStub)), 2, 3))

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) && strings.Count(buf.String(), "\n") < 2 {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	<-stopped

	out := buf.String()
	if !strings.Contains(out, "1/3 downloaded") || !strings.Contains(out, "2/3 failed") || !strings.Contains(out, CodeRemuxFailed) {
		t.Fatalf("unexpected log output: %s", out)
	}
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// chanBus est un bus synchrone minimal pour les tests du reporter.
type chanBus struct {
	ch chan ports.Event
}

func newChanBus() *chanBus { return &chanBus{ch: make(chan ports.Event, 16)} }

func (b *chanBus) Publish(topic string, payload []byte) {
	b.ch <- ports.Event{Topic: topic, Payload: payload}
}

func (b *chanBus) Subscribe() (<-chan ports.Event, func()) { return b.ch, func() {} }
