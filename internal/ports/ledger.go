package ports

import (
	"context"

	"github.com/Guilhem-Bonnet/ruv-dl/internal/domain"
)

// Ledger est le journal append-only des épisodes terminés.
// Append doit être sûr en appels concurrents.
type Ledger interface {
	Load(ctx context.Context) ([]domain.CompletionRecord, error)
	Append(ctx context.Context, rec domain.CompletionRecord) error
}
