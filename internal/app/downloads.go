package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Guilhem-Bonnet/ruv-dl/internal/ports"
	"github.com/rs/zerolog"
)

var (
	// ErrRunActive: un seul run de téléchargement à la fois.
	ErrRunActive      = fmt.Errorf("%w: a download run is already active", ports.ErrConflict)
	ErrInvalidRequest = errors.New("invalid request")
)

type StartDownloadRequest struct {
	ProgramIDs []string `json:"programIds"`
	Quality    string   `json:"quality,omitempty"`
}

type RunStatusDTO struct {
	RunID      string     `json:"runId"`
	ProgramIDs []string   `json:"programIds"`
	Quality    string     `json:"quality"`
	Running    bool       `json:"running"`
	StartedAt  time.Time  `json:"startedAt"`
	FinishedAt *time.Time `json:"finishedAt,omitempty"`
	Result     *RunResult `json:"result,omitempty"`
	Error      string     `json:"error,omitempty"`
}

// DownloadService lance des runs en arrière-plan (API HTTP) en garantissant
// qu'un seul est actif.
type DownloadService struct {
	logger         zerolog.Logger
	catalog        *CatalogService
	orchestrator   *Orchestrator
	defaultQuality string

	mu      sync.Mutex
	current *RunStatusDTO
	wg      sync.WaitGroup
}

func NewDownloadService(logger zerolog.Logger, catalog *CatalogService, orchestrator *Orchestrator, defaultQuality string) *DownloadService {
	return &DownloadService{
		logger:         logger.With().Str("component", "downloads").Logger(),
		catalog:        catalog,
		orchestrator:   orchestrator,
		defaultQuality: defaultQuality,
	}
}

// Start démarre un run et rend la main immédiatement. ctx borne la durée de
// vie du run (celle du serveur, pas celle de la requête).
func (s *DownloadService) Start(ctx context.Context, req StartDownloadRequest) (RunStatusDTO, error) {
	ids := uniqueNonEmpty(req.ProgramIDs)
	if len(ids) == 0 {
		return RunStatusDTO{}, fmt.Errorf("%w: programIds is required", ErrInvalidRequest)
	}
	quality := req.Quality
	if quality == "" {
		quality = s.defaultQuality
	}
	if _, err := ParseQuality(quality); err != nil {
		return RunStatusDTO{}, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	s.mu.Lock()
	if s.current != nil && s.current.Running {
		s.mu.Unlock()
		return RunStatusDTO{}, ErrRunActive
	}
	st := &RunStatusDTO{RunID: NewRunID(), ProgramIDs: ids, Quality: quality, Running: true, StartedAt: time.Now().UTC()}
	s.current = st
	snapshot := *st
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		res, err := s.run(ctx, st.RunID, ids, quality)
		s.finish(st, res, err)
	}()
	return snapshot, nil
}

func (s *DownloadService) run(ctx context.Context, runID string, ids []string, quality string) (*RunResult, error) {
	log := s.logger.With().Str("run_id", runID).Logger()
	episodes, err := s.catalog.Episodes(ctx, ids, quality)
	if err != nil {
		log.Error().Err(err).Msg("failed to list episodes")
		return nil, err
	}
	res, err := s.orchestrator.RunWithID(ctx, runID, episodes)
	if err != nil {
		log.Error().Err(err).Msg("run failed")
	}
	return &res, err
}

func (s *DownloadService) finish(st *RunStatusDTO, res *RunResult, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	st.Running = false
	st.FinishedAt = &now
	st.Result = res
	if err != nil {
		st.Error = err.Error()
	}
}

// Current renvoie le run actif ou le dernier terminé.
func (s *DownloadService) Current() (RunStatusDTO, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return RunStatusDTO{}, false
	}
	return *s.current, true
}

// Wait bloque jusqu'à la fin du run en cours (arrêt du serveur, tests).
func (s *DownloadService) Wait() { s.wg.Wait() }

func (s *DownloadService) ActiveDownloads() int { return s.orchestrator.ActiveDownloads() }

func (s *DownloadService) MaxParallelDownloads() int { return s.orchestrator.MaxParallelDownloads() }

func (s *DownloadService) SetMaxParallelDownloads(n int) { s.orchestrator.SetMaxParallelDownloads(n) }
