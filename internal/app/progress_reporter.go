package app

import (
	"context"
	"encoding/json"

	"github.com/Guilhem-Bonnet/ruv-dl/internal/domain"
	"github.com/Guilhem-Bonnet/ruv-dl/internal/ports"
	"github.com/rs/zerolog"
)

// ProgressReporter journalise l'avancement des runs à partir du bus.
// Purement observationnel: le bus abandonne les événements si le reporter
// est lent, le run n'attend jamais.
type ProgressReporter struct {
	logger zerolog.Logger
	bus    ports.EventBus
}

func NewProgressReporter(logger zerolog.Logger, bus ports.EventBus) *ProgressReporter {
	return &ProgressReporter{logger: logger, bus: bus}
}

// Start s'abonne immédiatement puis consomme en arrière-plan.
// L'appelant annule ctx pour arrêter; le channel renvoyé est fermé à la sortie.
func (r *ProgressReporter) Start(ctx context.Context) <-chan struct{} {
	stopped := make(chan struct{})
	if r == nil || r.bus == nil {
		close(stopped)
		return stopped
	}
	ch, cancel := r.bus.Subscribe()
	go func() {
		defer close(stopped)
		defer cancel()
		r.loop(ctx, ch)
	}()
	return stopped
}

func (r *ProgressReporter) loop(ctx context.Context, ch <-chan ports.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-ch:
			if !ok {
				return
			}
			r.handleEvent(evt)
		}
	}
}

func (r *ProgressReporter) handleEvent(evt ports.Event) {
	switch evt.Topic {
	case TopicRunStarted, TopicRunFinished:
		var run RunEventDTO
		if err := json.Unmarshal(evt.Payload, &run); err != nil {
			return
		}
		e := r.logger.Info()
		if run.Interrupted {
			e = r.logger.Warn()
		}
		e.Str("run_id", run.RunID).
			Int("total", run.Total).
			Int("downloaded", run.Downloaded).
			Int("skipped", run.Skipped).
			Int("failed", run.Failed).
			Msg(evt.Topic)
	case TopicEpisodeDownloaded, TopicEpisodeSkipped, TopicEpisodeFailed:
		var ep EpisodeEventDTO
		if err := json.Unmarshal(evt.Payload, &ep); err != nil {
			return
		}
		e := r.logger.Info()
		if ep.Outcome == domain.OutcomeFailed {
			e = r.logger.Warn().Str("code", ep.ErrorCode)
		}
		e.Str("run_id", ep.RunID).
			Str("episode_id", ep.EpisodeID).
			Str("program", ep.ProgramTitle).
			Str("title", ep.Title).
			Int("done", ep.Done).
			Int("total", ep.Total).
			Msgf("%d/%d %s", ep.Done, ep.Total, ep.Outcome)
	case TopicEpisodeStage:
		var ep EpisodeEventDTO
		if err := json.Unmarshal(evt.Payload, &ep); err != nil {
			return
		}
		r.logger.Debug().Str("episode_id", ep.EpisodeID).Str("stage", string(ep.Stage)).Msg("stage")
	}
}
