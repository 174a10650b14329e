package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Guilhem-Bonnet/ruv-dl/internal/adapters/sqlite"
	"github.com/Guilhem-Bonnet/ruv-dl/internal/domain"
)

type cliResult struct {
	stdout string
	stderr string
	err    error
}

func runCLI(t *testing.T, stdin string, args ...string) cliResult {
	t.Helper()
	cmd, cctx := newRootCommand()
	defer cctx.close()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return cliResult{stdout: out.String(), stderr: errOut.String(), err: err}
}

// seedProgramCache remplit le cache sqlite pour que search n'appelle pas le réseau.
func seedProgramCache(t *testing.T, workDir string, programs []domain.Program) {
	t.Helper()
	ctx := context.Background()
	db, err := sqlite.Open(ctx, filepath.Join(workDir, "programs.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer db.Close()
	if err := sqlite.NewProgramsRepository(db.SQL).Save(ctx, programs, time.Now().UTC()); err != nil {
		t.Fatalf("Save: %v", err)
	}
}

func TestVersionCommand(t *testing.T) {
	res := runCLI(t, "", "version")
	if res.err != nil {
		t.Fatalf("version: %v", res.err)
	}
	if !strings.HasPrefix(res.stdout, "ruv-dl ") {
		t.Fatalf("unexpected output %q", res.stdout)
	}
}

func TestConfigShow(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "ruv-dl.toml"), []byte("quality = \"720p\"\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	res := runCLI(t, "", "--work-dir", dir, "config", "show")
	if res.err != nil {
		t.Fatalf("config show: %v", res.err)
	}
	if !strings.Contains(res.stdout, "quality") || !strings.Contains(res.stdout, "720p") {
		t.Fatalf("expected quality from file, got:\n%s", res.stdout)
	}
	if _, err := os.Stat(filepath.Join(dir, "downloads")); err != nil {
		t.Fatalf("download dir should be created: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "debug.log")); err != nil {
		t.Fatalf("debug.log should be created: %v", err)
	}
}

func TestInvalidLogLevel(t *testing.T) {
	res := runCLI(t, "", "--work-dir", t.TempDir(), "--log-level", "loud", "config", "show")
	if res.err == nil {
		t.Fatalf("expected an error for an invalid log level")
	}
}

func TestSearchCommand(t *testing.T) {
	dir := t.TempDir()
	seedProgramCache(t, dir, []domain.Program{
		{ID: "35422", Title: "Kastljós", ShortDescription: "Fréttaskýringarþáttur", Episodes: []domain.ProgramEpisode{{ID: "a", Title: "1"}}},
		{ID: "26322", Title: "Krakkafréttir", ForeignTitle: "Kids News"},
	})

	res := runCLI(t, "", "--work-dir", dir, "search", "--ignore-case", "KASTLJÓS")
	if res.err != nil {
		t.Fatalf("search: %v", res.err)
	}
	if !strings.Contains(res.stdout, "Kastljós") || strings.Contains(res.stdout, "Krakkafréttir") {
		t.Fatalf("unexpected table:\n%s", res.stdout)
	}

	res = runCLI(t, "", "--work-dir", dir, "search", "--only-ids", "Kastljós", "Kids")
	if res.err != nil {
		t.Fatalf("search: %v", res.err)
	}
	if got := strings.TrimSpace(res.stdout); got != "35422 26322" {
		t.Fatalf("unexpected ids %q", got)
	}
}

func TestDownloadWithoutEpisodes(t *testing.T) {
	dir := t.TempDir()
	res := runCLI(t, "", "--work-dir", dir, "download")
	if res.err != nil {
		t.Fatalf("download: %v", res.err)
	}
	if strings.TrimSpace(res.stdout) != "No episodes downloaded." {
		t.Fatalf("unexpected output %q", res.stdout)
	}
}

func TestDownloadRejectsInvalidQuality(t *testing.T) {
	res := runCLI(t, "", "--work-dir", t.TempDir(), "download", "--quality", "4k", "1")
	if res.err == nil || !strings.Contains(res.err.Error(), "quality") {
		t.Fatalf("expected quality error, got %v", res.err)
	}
}

func TestOrganizeDryRun(t *testing.T) {
	dir := t.TempDir()
	downloads := filepath.Join(dir, "downloads")
	if err := os.MkdirAll(downloads, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	src := filepath.Join(downloads, "Krakkafréttir ||| Þáttur 3 af 8 ||| Kids News II [720p] [abc].mp4")
	if err := os.WriteFile(src, []byte("x"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	res := runCLI(t, "", "--work-dir", dir, "organize", "--dry-run")
	if res.err != nil {
		t.Fatalf("organize: %v", res.err)
	}
	want := filepath.Join(dir, "organized", "Kids News", "Season 02", "Kids News - S02E03 [720p].mp4")
	if !strings.Contains(res.stdout, "would_move") || !strings.Contains(res.stdout, want) {
		t.Fatalf("unexpected output %q, want %q", res.stdout, want)
	}
	if _, err := os.Stat(src); err != nil {
		t.Fatalf("dry run must not move the file: %v", err)
	}
}

func TestProgramIDs(t *testing.T) {
	ids, err := programIDs(nil, strings.NewReader("35422 26322\n 1 "))
	if err != nil {
		t.Fatalf("programIDs: %v", err)
	}
	if strings.Join(ids, ",") != "35422,26322,1" {
		t.Fatalf("unexpected ids %v", ids)
	}
	ids, _ = programIDs([]string{"9"}, strings.NewReader("1 2"))
	if len(ids) != 1 || ids[0] != "9" {
		t.Fatalf("arguments must win over stdin, got %v", ids)
	}
}

func TestNewLoggerLevels(t *testing.T) {
	var console, file bytes.Buffer
	logger, err := newLogger("warn", &console, &file)
	if err != nil {
		t.Fatalf("newLogger: %v", err)
	}
	logger.Info().Msg("progress")
	logger.Warn().Msg("careful")
	logger.Debug().Msg("noise")

	if strings.Contains(console.String(), "progress") || !strings.Contains(console.String(), "careful") {
		t.Fatalf("console should only get warn+: %q", console.String())
	}
	if !strings.Contains(file.String(), "progress") || !strings.Contains(file.String(), "careful") {
		t.Fatalf("file should get info+: %q", file.String())
	}
	if strings.Contains(file.String(), "noise") {
		t.Fatalf("debug should not reach the file")
	}
}

func TestRenderTable(t *testing.T) {
	out := renderTable([]string{"A", "B"}, [][]string{{"1"}, {"2", "3"}}, []columnAlignment{alignRight})
	if !strings.Contains(out, "A") || !strings.Contains(out, "3") {
		t.Fatalf("unexpected table:\n%s", out)
	}
	if truncate("Ævintýri", 3) != "Ævi" {
		t.Fatalf("truncate must count runes")
	}
}
