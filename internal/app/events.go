package app

import (
	"encoding/json"
	"time"

	"github.com/Guilhem-Bonnet/ruv-dl/internal/domain"
	"github.com/Guilhem-Bonnet/ruv-dl/internal/ports"
)

// Topics publiés sur le bus.
const (
	TopicRunStarted        = "run.started"
	TopicRunFinished       = "run.finished"
	TopicEpisodeStage      = "episode.stage"
	TopicEpisodeDownloaded = "episode.downloaded"
	TopicEpisodeSkipped    = "episode.skipped"
	TopicEpisodeFailed     = "episode.failed"
	TopicEpisodeCanceled   = "episode.canceled"
)

type EpisodeEventDTO struct {
	RunID        string             `json:"runId,omitempty"`
	EpisodeID    string             `json:"episodeId"`
	ProgramID    string             `json:"programId,omitempty"`
	ProgramTitle string             `json:"programTitle,omitempty"`
	Title        string             `json:"title,omitempty"`
	Stage        domain.FetchStage  `json:"stage,omitempty"`
	Outcome      domain.OutcomeKind `json:"outcome,omitempty"`
	Path         string             `json:"path,omitempty"`
	ErrorCode    string             `json:"errorCode,omitempty"`
	Error        string             `json:"error,omitempty"`
	Done         int                `json:"done,omitempty"`
	Total        int                `json:"total,omitempty"`
}

type RunEventDTO struct {
	RunID       string    `json:"runId"`
	Total       int       `json:"total"`
	Downloaded  int       `json:"downloaded"`
	Skipped     int       `json:"skipped"`
	Failed      int       `json:"failed"`
	Interrupted bool      `json:"interrupted,omitempty"`
	At          time.Time `json:"at"`
}

func outcomeTopic(kind domain.OutcomeKind) string {
	switch kind {
	case domain.OutcomeDownloaded:
		return TopicEpisodeDownloaded
	case domain.OutcomeSkipped:
		return TopicEpisodeSkipped
	case domain.OutcomeFailed:
		return TopicEpisodeFailed
	default:
		return TopicEpisodeCanceled
	}
}

func episodeEvent(ep domain.Episode) EpisodeEventDTO {
	return EpisodeEventDTO{
		EpisodeID:    ep.ID,
		ProgramID:    ep.ProgramID,
		ProgramTitle: ep.ProgramTitle,
		Title:        ep.Title,
	}
}

func outcomeEvent(runID string, out domain.Outcome, done, total int) EpisodeEventDTO {
	evt := episodeEvent(out.Episode)
	evt.RunID = runID
	evt.Outcome = out.Kind
	evt.Path = out.Path
	evt.Done = done
	evt.Total = total
	if out.Reason != nil {
		evt.ErrorCode = ErrorCode(out.Reason)
		evt.Error = out.Reason.Error()
	}
	return evt
}

// publish est best-effort: un bus absent ou un payload invalide est ignoré.
func publish(bus ports.EventBus, topic string, v any) {
	if bus == nil {
		return
	}
	b, err := json.Marshal(v)
	if err != nil {
		return
	}
	bus.Publish(topic, b)
}
