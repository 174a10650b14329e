package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// FileName est le nom du fichier de config cherché dans le répertoire de travail.
const FileName = "ruv-dl.toml"

// Qualities liste les qualités proposées par le catalogue, de la plus basse à la plus haute.
var Qualities = []string{"240p", "360p", "480p", "720p", "1080p"}

// Config est une valeur immuable: elle est construite une fois puis passée
// aux services. Aucun état global.
type Config struct {
	WorkDir          string `toml:"work_dir"`
	DownloadDir      string `toml:"download_dir"`
	OrganizedDir     string `toml:"organized_dir"`
	LedgerPath       string `toml:"ledger_path"`
	CacheDBPath      string `toml:"cache_db_path"`
	TranslationsPath string `toml:"translations_path"`
	LogPath          string `toml:"log_path"`

	Quality              string `toml:"quality"`
	MaxParallelDownloads int    `toml:"max_parallel_downloads"`
	CatalogConcurrency   int    `toml:"catalog_concurrency"`
	AudioOnly            bool   `toml:"audio_only"`
	VerifyExisting       bool   `toml:"verify_existing"`
	FFmpegBinary         string `toml:"ffmpeg_binary"`

	ProgramsRefreshInterval Duration `toml:"programs_refresh_interval"`
	CatalogURL              string   `toml:"catalog_url"`
	HTTPTimeout             Duration `toml:"http_timeout"`

	Addr string `toml:"addr"`
}

// Duration accepte "10m", "30s"... dans le TOML.
type Duration struct {
	time.Duration
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(strings.TrimSpace(string(b)))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

const DefaultCatalogURL = "https://spilari.nyr.ruv.is/gql/"

// Default renvoie la config par défaut pour un répertoire de travail.
// Les chemins dérivés sont laissés vides et remplis par normalize().
func Default(workDir string) Config {
	return Config{
		WorkDir:                 workDir,
		Quality:                 "1080p",
		MaxParallelDownloads:    1,
		CatalogConcurrency:      8,
		FFmpegBinary:            "ffmpeg",
		ProgramsRefreshInterval: Duration{10 * time.Minute},
		CatalogURL:              DefaultCatalogURL,
		HTTPTimeout:             Duration{30 * time.Second},
		Addr:                    "127.0.0.1:8080",
	}
}

// Load construit la config: défauts, puis fichier TOML (path ou <workDir>/ruv-dl.toml
// s'il existe), puis variables d'environnement RUVDL_*.
func Load(workDir, path string) (Config, error) {
	cfg := Default(workDir)

	resolved := strings.TrimSpace(path)
	explicit := resolved != ""
	if !explicit && strings.TrimSpace(workDir) != "" {
		resolved = filepath.Join(workDir, FileName)
	}
	if resolved != "" {
		file, err := os.Open(resolved)
		switch {
		case err == nil:
			defer file.Close()
			if err := toml.NewDecoder(file).Decode(&cfg); err != nil {
				return Config{}, fmt.Errorf("parse config %s: %w", resolved, err)
			}
		case errors.Is(err, fs.ErrNotExist) && !explicit:
		default:
			return Config{}, fmt.Errorf("open config: %w", err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}
	if err := cfg.normalize(); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	c.WorkDir = envOr("RUVDL_WORK_DIR", c.WorkDir)
	c.DownloadDir = envOr("RUVDL_DOWNLOAD_DIR", c.DownloadDir)
	c.LedgerPath = envOr("RUVDL_LEDGER_PATH", c.LedgerPath)
	c.Quality = envOr("RUVDL_QUALITY", c.Quality)
	c.FFmpegBinary = envOr("RUVDL_FFMPEG", c.FFmpegBinary)
	c.CatalogURL = envOr("RUVDL_CATALOG_URL", c.CatalogURL)
	c.Addr = envOr("RUVDL_ADDR", c.Addr)
	if v := os.Getenv("RUVDL_MAX_PARALLEL_DOWNLOADS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("RUVDL_MAX_PARALLEL_DOWNLOADS: %w", err)
		}
		c.MaxParallelDownloads = n
	}
	return nil
}

func (c *Config) normalize() error {
	if strings.TrimSpace(c.WorkDir) == "" {
		return errors.New("work_dir is required")
	}
	abs, err := filepath.Abs(filepath.Clean(c.WorkDir))
	if err != nil {
		return fmt.Errorf("resolve work dir: %w", err)
	}
	c.WorkDir = abs

	derive := func(v *string, name string) {
		if strings.TrimSpace(*v) == "" {
			*v = filepath.Join(c.WorkDir, name)
		}
	}
	derive(&c.DownloadDir, "downloads")
	derive(&c.OrganizedDir, "organized")
	derive(&c.LedgerPath, "downloaded.jsonl")
	derive(&c.CacheDBPath, "programs.db")
	derive(&c.TranslationsPath, "translations.json")
	derive(&c.LogPath, "debug.log")

	c.Quality = strings.ToLower(strings.TrimSpace(c.Quality))
	c.FFmpegBinary = strings.TrimSpace(c.FFmpegBinary)
	if c.FFmpegBinary == "" {
		c.FFmpegBinary = "ffmpeg"
	}
	c.CatalogURL = strings.TrimSpace(c.CatalogURL)
	return nil
}

// Validate rejette les valeurs qui rendraient un run incohérent.
func (c Config) Validate() error {
	if !IsQuality(c.Quality) {
		return fmt.Errorf("invalid quality %q (expected one of %s)", c.Quality, strings.Join(Qualities, ", "))
	}
	if c.MaxParallelDownloads <= 0 {
		return fmt.Errorf("max_parallel_downloads must be positive, got %d", c.MaxParallelDownloads)
	}
	if c.CatalogConcurrency <= 0 {
		return fmt.Errorf("catalog_concurrency must be positive, got %d", c.CatalogConcurrency)
	}
	if c.ProgramsRefreshInterval.Duration < 0 {
		return errors.New("programs_refresh_interval must not be negative")
	}
	if c.CatalogURL == "" {
		return errors.New("catalog_url is required")
	}
	return nil
}

// EnsureDirectories crée les répertoires attendus et vérifie que le
// répertoire de travail est inscriptible.
func (c Config) EnsureDirectories() error {
	for _, dir := range []string{c.WorkDir, c.DownloadDir, c.OrganizedDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	probe, err := os.CreateTemp(c.WorkDir, ".ruvdl-probe-*")
	if err != nil {
		return fmt.Errorf("work dir %q is not writable: %w", c.WorkDir, err)
	}
	name := probe.Name()
	_ = probe.Close()
	_ = os.Remove(name)
	return nil
}

// Marshal sérialise la config effective (commande `config show`).
func (c Config) Marshal() ([]byte, error) {
	return toml.Marshal(c)
}

func IsQuality(q string) bool {
	for _, v := range Qualities {
		if v == q {
			return true
		}
	}
	return false
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
