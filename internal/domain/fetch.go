package domain

import "errors"

type FetchStage string

const (
	StageStart            FetchStage = "start"
	StageCheckExisting    FetchStage = "check_existing"
	StageResolveRendition FetchStage = "resolve_rendition"
	StageFetchSubtitle    FetchStage = "fetch_subtitle"
	StageTranscode        FetchStage = "transcode"
	StageValidate         FetchStage = "validate"
	StageDone             FetchStage = "done"
)

var ErrInvalidStage = errors.New("invalid fetch stage transition")

// CanAdvance décrit les transitions légales du pipeline d'un épisode.
// Chaque étape peut sauter directement à done (skip, échec, annulation).
func CanAdvance(from, to FetchStage) bool {
	if to == StageDone {
		return from != StageDone
	}
	switch from {
	case StageStart:
		return to == StageCheckExisting
	case StageCheckExisting:
		return to == StageResolveRendition
	case StageResolveRendition:
		// Le sous-titre est optionnel.
		return to == StageFetchSubtitle || to == StageTranscode
	case StageFetchSubtitle:
		return to == StageTranscode
	case StageTranscode:
		return to == StageValidate
	default:
		return false
	}
}

type OutcomeKind string

const (
	OutcomeDownloaded OutcomeKind = "downloaded"
	OutcomeSkipped    OutcomeKind = "skipped"
	OutcomeFailed     OutcomeKind = "failed"
	// OutcomeCanceled ne rejoint jamais une partition: l'épisode a été
	// interrompu par l'arrêt du run.
	OutcomeCanceled OutcomeKind = "canceled"
)

// Outcome est produit par le pipeline et consommé une seule fois par l'orchestrateur.
type Outcome struct {
	Kind    OutcomeKind
	Episode Episode
	Path    string
	Reason  error
}

func Downloaded(ep Episode, path string) Outcome {
	return Outcome{Kind: OutcomeDownloaded, Episode: ep, Path: path}
}

func Skipped(ep Episode, path string) Outcome {
	return Outcome{Kind: OutcomeSkipped, Episode: ep, Path: path}
}

func Failed(ep Episode, reason error) Outcome {
	return Outcome{Kind: OutcomeFailed, Episode: ep, Reason: reason}
}

func Canceled(ep Episode, reason error) Outcome {
	return Outcome{Kind: OutcomeCanceled, Episode: ep, Reason: reason}
}

// Counts reports whether the outcome lands in the ledger.
func (o Outcome) Counts() bool {
	return o.Kind == OutcomeDownloaded || o.Kind == OutcomeSkipped
}
