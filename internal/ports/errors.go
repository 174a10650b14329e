package ports

import "errors"

var ErrNotFound = errors.New("not found")

var ErrConflict = errors.New("conflict")

// Erreurs de frontière: chaque adapter les enveloppe (%w) pour que l'app
// puisse classer l'échec sans connaître l'adapter.
var (
	ErrStorage             = errors.New("storage error")
	ErrCatalogUnavailable  = errors.New("catalog unavailable")
	ErrManifestUnavailable = errors.New("manifest unavailable")
	ErrNoMatchingRendition = errors.New("no matching rendition")
	ErrRemuxFailed         = errors.New("remux failed")
	// ErrInterrupted signale un remux interrompu (signal/annulation), pas un échec.
	ErrInterrupted = errors.New("interrupted")
)
