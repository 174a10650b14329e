package ports

import (
	"context"

	"github.com/Guilhem-Bonnet/ruv-dl/internal/domain"
)

type ManifestResolver interface {
	// Resolve renvoie les variantes d'un manifest multi-débit.
	// Les erreurs enveloppent ErrManifestUnavailable.
	Resolve(ctx context.Context, manifestURL string) ([]domain.Rendition, error)
}

type SubtitleFetcher interface {
	Fetch(ctx context.Context, url string, dst string) error
}

type Remuxer interface {
	// Remux renvoie nil en cas de succès, une erreur enveloppant ErrInterrupted
	// si le process a été interrompu, ErrRemuxFailed sinon.
	Remux(ctx context.Context, req domain.RemuxRequest) error
}

// Prober vérifie l'intégrité d'un fichier déjà téléchargé.
type Prober interface {
	Verify(ctx context.Context, path string) error
}
