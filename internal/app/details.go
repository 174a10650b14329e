package app

import (
	"context"

	"github.com/Guilhem-Bonnet/ruv-dl/internal/domain"
	"github.com/Guilhem-Bonnet/ruv-dl/internal/ports"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

type EpisodeDetail struct {
	ProgramTitle     string   `json:"programTitle"`
	ForeignTitle     string   `json:"foreignTitle,omitempty"`
	Title            string   `json:"title"`
	ProgramID        string   `json:"programId"`
	EpisodeID        string   `json:"episodeId"`
	ShortDescription string   `json:"shortDescription,omitempty"`
	Qualities        []string `json:"qualities"`
	URL              string   `json:"url"`
}

type DetailsService struct {
	logger      zerolog.Logger
	catalog     *CatalogService
	resolver    ports.ManifestResolver
	concurrency int
}

func NewDetailsService(logger zerolog.Logger, catalog *CatalogService, resolver ports.ManifestResolver, concurrency int) *DetailsService {
	if concurrency <= 0 {
		concurrency = DefaultCatalogOptions().Concurrency
	}
	return &DetailsService{logger: logger.With().Str("component", "details").Logger(), catalog: catalog, resolver: resolver, concurrency: concurrency}
}

// Details liste les épisodes des programmes demandés avec les qualités
// annoncées par leur manifest. Un manifest illisible laisse Qualities vide.
func (s *DetailsService) Details(ctx context.Context, ids []string) ([]EpisodeDetail, error) {
	programs, err := s.catalog.ProgramsWithEpisodes(ctx, ids)
	if err != nil {
		return nil, err
	}

	var rows []EpisodeDetail
	for _, p := range programs {
		for _, e := range p.Episodes {
			rows = append(rows, detailRow(p, e))
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i := range rows {
		row := &rows[i]
		if row.URL == "" {
			continue
		}
		g.Go(func() error {
			renditions, err := s.resolver.Resolve(gctx, row.URL)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				s.logger.Warn().Err(err).Str("episode_id", row.EpisodeID).Msg("failed to read manifest")
				return nil
			}
			row.Qualities = AvailableQualities(renditions)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return rows, nil
}

func detailRow(p domain.Program, e domain.ProgramEpisode) EpisodeDetail {
	return EpisodeDetail{
		ProgramTitle:     p.Title,
		ForeignTitle:     p.ForeignTitle,
		Title:            e.Title,
		ProgramID:        p.ID,
		EpisodeID:        e.ID,
		ShortDescription: p.ShortDescription,
		Qualities:        []string{},
		URL:              e.ManifestURL,
	}
}
