package httpapi

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Guilhem-Bonnet/ruv-dl/internal/adapters/jsonl"
	"github.com/Guilhem-Bonnet/ruv-dl/internal/adapters/memorybus"
	"github.com/Guilhem-Bonnet/ruv-dl/internal/app"
	"github.com/Guilhem-Bonnet/ruv-dl/internal/domain"
	"github.com/rs/zerolog"
)

type fakeCatalog struct{}

func (fakeCatalog) FetchAllPrograms(ctx context.Context) ([]domain.Program, error) {
	return []domain.Program{
		{ID: "1", Title: "Kastljós"},
		{ID: "2", Title: "Krakkafréttir", ForeignTitle: "Kids News"},
	}, nil
}

func (fakeCatalog) FetchProgramsWithEpisodes(ctx context.Context, ids []string, concurrency int) ([]domain.Program, error) {
	var out []domain.Program
	for _, id := range ids {
		if id == "2" {
			out = append(out, domain.Program{ID: "2", Title: "Krakkafréttir", Episodes: []domain.ProgramEpisode{
				{ID: "e1", Title: "Þáttur 1 af 2", ManifestURL: "https://cdn/e1.m3u8"},
			}})
		}
	}
	return out, nil
}

// gateFetcher bloque jusqu'à la fermeture de release.
type gateFetcher struct {
	release chan struct{}
}

func (f *gateFetcher) Fetch(ctx context.Context, ep domain.Episode) domain.Outcome {
	select {
	case <-f.release:
		return domain.Downloaded(ep, "/dl/"+ep.ID+".mp4")
	case <-ctx.Done():
		return domain.Canceled(ep, ctx.Err())
	}
}

type fixture struct {
	handler   http.Handler
	ledger    *jsonl.Ledger
	bus       *memorybus.Bus
	downloads *app.DownloadService
	fetcher   *gateFetcher
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := zerolog.Nop()
	ledger := jsonl.New(logger, filepath.Join(t.TempDir(), "downloaded.jsonl"))
	bus := memorybus.New()
	fetcher := &gateFetcher{release: make(chan struct{})}
	catalog := app.NewCatalogService(logger, fakeCatalog{}, nil, app.DefaultCatalogOptions())
	orch := app.NewOrchestrator(logger, ledger, fetcher, bus, app.OrchestratorOptions{MaxParallelDownloads: 1})
	downloads := app.NewDownloadService(logger, catalog, orch, "720p")

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(func() {
		cancel()
		downloads.Wait()
	})
	srv := NewServer(ctx, logger, ledger, catalog, downloads, bus)
	return &fixture{handler: srv.Router(), ledger: ledger, bus: bus, downloads: downloads, fetcher: fetcher}
}

func (f *fixture) do(t *testing.T, method, path string, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	f.handler.ServeHTTP(rr, req)
	return rr
}

func (f *fixture) health(t *testing.T) healthDTO {
	t.Helper()
	rr := f.do(t, http.MethodGet, "/api/v1/health", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("health: want 200, got %d", rr.Code)
	}
	var h healthDTO
	if err := json.Unmarshal(rr.Body.Bytes(), &h); err != nil {
		t.Fatalf("decode health: %v", err)
	}
	return h
}

func TestRouter_HealthAndVersion(t *testing.T) {
	f := newFixture(t)
	if h := f.health(t); h.Status != "ok" || h.RunActive || h.ActiveDownloads != 0 {
		t.Fatalf("unexpected idle health %+v", h)
	}
	rr := f.do(t, http.MethodGet, "/api/v1/version", "")
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), "version") {
		t.Fatalf("version: unexpected %d %s", rr.Code, rr.Body.String())
	}
	if rr := f.do(t, http.MethodGet, "/api/v1/openapi.json", ""); rr.Code != http.StatusOK {
		t.Fatalf("openapi: want 200, got %d", rr.Code)
	}
}

func TestRouter_ProgramsSearch(t *testing.T) {
	f := newFixture(t)
	rr := f.do(t, http.MethodGet, "/api/v1/programs?q=kids&ignoreCase=true", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("programs: want 200, got %d", rr.Code)
	}
	var got []programSummary
	if err := json.Unmarshal(rr.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got) != 1 || got[0].ID != "2" {
		t.Fatalf("unexpected programs %+v", got)
	}

	rr = f.do(t, http.MethodGet, "/api/v1/programs", "")
	_ = json.Unmarshal(rr.Body.Bytes(), &got)
	if len(got) != 2 {
		t.Fatalf("expected the full list without q, got %d", len(got))
	}
}

func TestRouter_DownloadRunLifecycle(t *testing.T) {
	f := newFixture(t)

	if rr := f.do(t, http.MethodPost, "/api/v1/downloads", `{"programIds":[]}`); rr.Code != http.StatusBadRequest {
		t.Fatalf("empty ids: want 400, got %d", rr.Code)
	}
	if rr := f.do(t, http.MethodPost, "/api/v1/downloads", `{"programIds":["2"],"quality":"best"}`); rr.Code != http.StatusBadRequest {
		t.Fatalf("bad quality: want 400, got %d", rr.Code)
	}

	rr := f.do(t, http.MethodPost, "/api/v1/downloads", `{"programIds":["2"]}`)
	if rr.Code != http.StatusAccepted {
		t.Fatalf("start: want 202, got %d %s", rr.Code, rr.Body.String())
	}
	var st app.RunStatusDTO
	if err := json.Unmarshal(rr.Body.Bytes(), &st); err != nil || st.RunID == "" || st.Quality != "720p" {
		t.Fatalf("unexpected status %+v err=%v", st, err)
	}

	if rr := f.do(t, http.MethodPost, "/api/v1/downloads", `{"programIds":["2"]}`); rr.Code != http.StatusConflict {
		t.Fatalf("second start: want 409, got %d", rr.Code)
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		h := f.health(t)
		if h.RunActive && h.RunID == st.RunID && h.ActiveDownloads == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("health never reported the active download, last %+v", h)
		}
		time.Sleep(5 * time.Millisecond)
	}

	close(f.fetcher.release)
	f.downloads.Wait()
	if h := f.health(t); h.RunActive || h.ActiveDownloads != 0 {
		t.Fatalf("health should be idle after the run, got %+v", h)
	}

	rr = f.do(t, http.MethodGet, "/api/v1/downloads/current", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("current: want 200, got %d", rr.Code)
	}
	var done app.RunStatusDTO
	if err := json.Unmarshal(rr.Body.Bytes(), &done); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if done.Running || done.Result == nil || len(done.Result.Downloaded) != 1 || done.Result.RunID != st.RunID {
		t.Fatalf("unexpected final status %+v", done)
	}

	rr = f.do(t, http.MethodGet, "/api/v1/completions", "")
	var completions []completionDTO
	if err := json.Unmarshal(rr.Body.Bytes(), &completions); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(completions) != 1 || completions[0].ID != "e1" || completions[0].Quality != "720p" {
		t.Fatalf("unexpected completions %+v", completions)
	}
}

func TestRouter_Settings(t *testing.T) {
	f := newFixture(t)
	if rr := f.do(t, http.MethodPatch, "/api/v1/settings", `{"maxParallelDownloads":0}`); rr.Code != http.StatusBadRequest {
		t.Fatalf("want 400, got %d", rr.Code)
	}
	rr := f.do(t, http.MethodPatch, "/api/v1/settings", `{"maxParallelDownloads":3}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("want 200, got %d", rr.Code)
	}
	if f.downloads.MaxParallelDownloads() != 3 {
		t.Fatalf("limit not applied: %d", f.downloads.MaxParallelDownloads())
	}
	rr = f.do(t, http.MethodGet, "/api/v1/settings", "")
	if !strings.Contains(rr.Body.String(), `"maxParallelDownloads":3`) {
		t.Fatalf("unexpected settings %s", rr.Body.String())
	}
}

func TestRouter_EventsStream(t *testing.T) {
	f := newFixture(t)
	srv := httptest.NewServer(f.handler)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/v1/events", nil)
	resp, err := srv.Client().Do(req)
	if err != nil {
		t.Fatalf("GET events: %v", err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("unexpected content type %q", ct)
	}

	sc := bufio.NewScanner(resp.Body)
	readEvent := func() string {
		for sc.Scan() {
			if line := sc.Text(); strings.HasPrefix(line, "event: ") {
				return strings.TrimPrefix(line, "event: ")
			}
		}
		t.Fatalf("stream ended: %v", sc.Err())
		return ""
	}
	if got := readEvent(); got != "hello" {
		t.Fatalf("expected hello, got %q", got)
	}
	// L'abonnement précède le hello: l'événement ne peut pas être manqué.
	f.bus.Publish(app.TopicRunStarted, []byte(`{"runId":"r1"}`))
	if got := readEvent(); got != app.TopicRunStarted {
		t.Fatalf("expected %s, got %q", app.TopicRunStarted, got)
	}
}
