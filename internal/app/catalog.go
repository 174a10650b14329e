package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Guilhem-Bonnet/ruv-dl/internal/domain"
	"github.com/Guilhem-Bonnet/ruv-dl/internal/ports"
	"github.com/rs/zerolog"
)

type CatalogOptions struct {
	RefreshInterval time.Duration
	Concurrency     int
}

func DefaultCatalogOptions() CatalogOptions {
	return CatalogOptions{RefreshInterval: 10 * time.Minute, Concurrency: 8}
}

// CatalogService met en cache la liste des programmes et construit les
// candidats au téléchargement.
type CatalogService struct {
	logger  zerolog.Logger
	catalog ports.Catalog
	cache   ports.ProgramCache
	opts    CatalogOptions
	now     func() time.Time
}

func NewCatalogService(logger zerolog.Logger, catalog ports.Catalog, cache ports.ProgramCache, opts CatalogOptions) *CatalogService {
	def := DefaultCatalogOptions()
	if opts.RefreshInterval <= 0 {
		opts.RefreshInterval = def.RefreshInterval
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = def.Concurrency
	}
	return &CatalogService{
		logger:  logger.With().Str("component", "catalog").Logger(),
		catalog: catalog,
		cache:   cache,
		opts:    opts,
		now:     time.Now,
	}
}

// Programs renvoie tous les programmes (sans le détail des épisodes).
// Le cache est utilisé tant qu'il a moins de RefreshInterval, sauf si force.
// Si le catalogue est injoignable, un cache périmé est préféré à une erreur.
func (s *CatalogService) Programs(ctx context.Context, force bool) ([]domain.Program, error) {
	var stale []domain.Program
	if s.cache != nil {
		programs, fetchedAt, err := s.cache.Load(ctx)
		switch {
		case err == nil:
			age := s.now().Sub(fetchedAt)
			if !force && age < s.opts.RefreshInterval {
				s.logger.Debug().Int("programs", len(programs)).Dur("age", age).Msg("programs loaded from cache")
				return programs, nil
			}
			stale = programs
			if !force {
				s.logger.Info().Dur("age", age).Msg("program cache expired, refreshing")
			}
		case errors.Is(err, ports.ErrNotFound):
			s.logger.Info().Msg("no cached programs")
		default:
			s.logger.Warn().Err(err).Msg("failed to read program cache")
		}
	}

	programs, err := s.catalog.FetchAllPrograms(ctx)
	if err != nil {
		if len(stale) > 0 && ctx.Err() == nil {
			s.logger.Warn().Err(err).Msg("catalog unavailable, using stale program cache")
			return stale, nil
		}
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.Save(ctx, programs, s.now().UTC()); err != nil {
			s.logger.Warn().Err(err).Msg("failed to save program cache")
		}
	}
	s.logger.Info().Int("programs", len(programs)).Msg("programs fetched")
	return programs, nil
}

// ProgramsWithEpisodes renvoie les programmes demandés, dans l'ordre des ids.
// Un id absent du catalogue est journalisé puis ignoré.
func (s *CatalogService) ProgramsWithEpisodes(ctx context.Context, ids []string) ([]domain.Program, error) {
	ids = uniqueNonEmpty(ids)
	if len(ids) == 0 {
		return nil, nil
	}
	programs, err := s.catalog.FetchProgramsWithEpisodes(ctx, ids, s.opts.Concurrency)
	if err != nil {
		return nil, fmt.Errorf("fetch programs: %w", err)
	}

	byID := make(map[string]domain.Program, len(programs))
	for _, p := range programs {
		byID[p.ID] = p
	}
	out := make([]domain.Program, 0, len(ids))
	for _, id := range ids {
		p, ok := byID[id]
		if !ok {
			s.logger.Error().Str("program_id", id).Msg("invalid program id")
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

// Episodes construit les candidats de téléchargement pour une qualité.
func (s *CatalogService) Episodes(ctx context.Context, ids []string, quality string) ([]domain.Episode, error) {
	programs, err := s.ProgramsWithEpisodes(ctx, ids)
	if err != nil {
		return nil, err
	}
	var eps []domain.Episode
	for _, p := range programs {
		eps = append(eps, p.EpisodesFor(quality)...)
	}
	return eps, nil
}

func uniqueNonEmpty(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
