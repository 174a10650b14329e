package ports

import (
	"context"
	"time"

	"github.com/Guilhem-Bonnet/ruv-dl/internal/domain"
)

type Catalog interface {
	// FetchAllPrograms renvoie tous les programmes, sans le détail des épisodes.
	FetchAllPrograms(ctx context.Context) ([]domain.Program, error)
	// FetchProgramsWithEpisodes renvoie les programmes demandés avec leurs épisodes.
	// Un id inconnu est omis du résultat, ce n'est pas une erreur.
	FetchProgramsWithEpisodes(ctx context.Context, ids []string, concurrency int) ([]domain.Program, error)
}

type ProgramCache interface {
	// Load renvoie ErrNotFound si le cache n'a jamais été rempli.
	Load(ctx context.Context) ([]domain.Program, time.Time, error)
	Save(ctx context.Context, programs []domain.Program, fetchedAt time.Time) error
}
