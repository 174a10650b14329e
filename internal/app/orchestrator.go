package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Guilhem-Bonnet/ruv-dl/internal/domain"
	"github.com/Guilhem-Bonnet/ruv-dl/internal/ports"
	"github.com/rs/xid"
	"github.com/rs/zerolog"
)

// Fetcher exécute un épisode. *Pipeline l'implémente.
type Fetcher interface {
	Fetch(ctx context.Context, ep domain.Episode) domain.Outcome
}

type FailedEpisode struct {
	Episode domain.Episode `json:"episode"`
	Code    string         `json:"code,omitempty"`
	Reason  string         `json:"reason"`
}

// RunResult partitionne les candidats d'un run.
// Un épisode annulé n'apparaît dans aucune liste.
type RunResult struct {
	RunID       string           `json:"runId"`
	Downloaded  []domain.Episode `json:"downloaded"`
	Skipped     []domain.Episode `json:"skipped"`
	Failed      []FailedEpisode  `json:"failed"`
	Interrupted bool             `json:"interrupted"`
}

func (r RunResult) Total() int {
	return len(r.Downloaded) + len(r.Skipped) + len(r.Failed)
}

type OrchestratorOptions struct {
	MaxParallelDownloads int
}

type Orchestrator struct {
	logger  zerolog.Logger
	ledger  ports.Ledger
	fetcher Fetcher
	bus     ports.EventBus
	limiter *Limiter
}

func NewOrchestrator(logger zerolog.Logger, ledger ports.Ledger, fetcher Fetcher, bus ports.EventBus, opts OrchestratorOptions) *Orchestrator {
	return &Orchestrator{
		logger:  logger.With().Str("component", "orchestrator").Logger(),
		ledger:  ledger,
		fetcher: fetcher,
		bus:     bus,
		limiter: NewLimiter(opts.MaxParallelDownloads),
	}
}

func (o *Orchestrator) MaxParallelDownloads() int { return o.limiter.Limit() }

// ActiveDownloads compte les épisodes en cours de récupération.
func (o *Orchestrator) ActiveDownloads() int { return o.limiter.InFlight() }

// SetMaxParallelDownloads prend effet immédiatement, y compris sur un run en cours.
func (o *Orchestrator) SetMaxParallelDownloads(n int) { o.limiter.SetLimit(n) }

// Run déduplique les candidats contre le ledger, exécute le reste avec une
// concurrence bornée et renvoie les partitions.
//
// L'annulation de ctx n'est pas une erreur: Run renvoie les partitions
// accumulées avec Interrupted=true. Seul un ledger inutilisable est fatal.
func (o *Orchestrator) Run(ctx context.Context, episodes []domain.Episode) (RunResult, error) {
	return o.RunWithID(ctx, NewRunID(), episodes)
}

func NewRunID() string { return xid.New().String() }

// RunWithID est Run avec un identifiant choisi par l'appelant (API HTTP).
func (o *Orchestrator) RunWithID(ctx context.Context, runID string, episodes []domain.Episode) (RunResult, error) {
	res := RunResult{RunID: runID}
	log := o.logger.With().Str("run_id", res.RunID).Logger()

	records, err := o.ledger.Load(ctx)
	if err != nil {
		return res, fmt.Errorf("load ledger: %w", err)
	}
	idx := NewCompletionIndex(records)

	// Les écritures du ledger doivent aboutir même pendant l'arrêt du run.
	persistCtx := context.WithoutCancel(ctx)

	// Un id n'est unique que dans un programme: un second candidat portant
	// le même id attend le verdict du premier au lieu d'être téléchargé.
	pending := make([]domain.Episode, 0, len(episodes))
	queued := make(map[string]struct{}, len(episodes))
	held := map[string][]domain.Episode{}
	heldCount := 0
	for _, ep := range episodes {
		if idx.Contains(ep) {
			if err := o.ledger.Append(persistCtx, domain.RecordFromEpisode(ep)); err != nil {
				return res, fmt.Errorf("append ledger: %w", err)
			}
			res.Skipped = append(res.Skipped, ep)
			continue
		}
		if ep.ID != "" {
			if _, dup := queued[ep.ID]; dup {
				log.Info().Str("episode_id", ep.ID).Str("program", ep.ProgramTitle).Msg("episode id already queued in this run, waiting for it")
				held[ep.ID] = append(held[ep.ID], ep)
				heldCount++
				continue
			}
			queued[ep.ID] = struct{}{}
		}
		pending = append(pending, ep)
	}

	total := len(res.Skipped) + len(pending) + heldCount
	publish(o.bus, TopicRunStarted, RunEventDTO{RunID: res.RunID, Total: total, Skipped: len(res.Skipped), At: time.Now().UTC()})
	for i, ep := range res.Skipped {
		publish(o.bus, TopicEpisodeSkipped, outcomeEvent(res.RunID, domain.Skipped(ep, ""), i+1, total))
	}
	log.Info().
		Int("candidates", len(episodes)).
		Int("already_done", len(res.Skipped)).
		Int("to_fetch", len(pending)).
		Int("held", heldCount).
		Int("parallel", o.limiter.Limit()).
		Msg("run started")

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	outcomes := make(chan domain.Outcome)
	go o.dispatch(runCtx, log, pending, outcomes)

	done := len(res.Skipped)
	// settle classe un résultat définitif: ledger d'abord, partitions ensuite.
	settle := func(out domain.Outcome) error {
		switch out.Kind {
		case domain.OutcomeDownloaded, domain.OutcomeSkipped:
			rec := domain.RecordFromEpisode(out.Episode)
			if err := o.ledger.Append(persistCtx, rec); err != nil {
				return err
			}
			idx.Add(rec)
			if out.Kind == domain.OutcomeDownloaded {
				res.Downloaded = append(res.Downloaded, out.Episode)
			} else {
				res.Skipped = append(res.Skipped, out.Episode)
			}
		case domain.OutcomeFailed:
			code := ErrorCode(out.Reason)
			log.Error().Err(out.Reason).Str("code", code).Str("episode_id", out.Episode.ID).Msg("episode failed")
			res.Failed = append(res.Failed, FailedEpisode{Episode: out.Episode, Code: code, Reason: errString(out.Reason)})
		}
		done++
		publish(o.bus, outcomeTopic(out.Kind), outcomeEvent(res.RunID, out, done, total))
		return nil
	}

	// Collecteur unique: seul écrivain du ledger et des partitions.
	var fatal error
	for out := range outcomes {
		if fatal != nil {
			continue
		}
		if out.Kind == domain.OutcomeCanceled {
			// Un remux interrompu arrête tout le run.
			log.Warn().Str("episode_id", out.Episode.ID).Msg("episode interrupted")
			res.Interrupted = true
			cancel()
			publish(o.bus, outcomeTopic(out.Kind), outcomeEvent(res.RunID, out, done, total))
			continue
		}
		err := settle(out)
		for _, dup := range held[out.Episode.ID] {
			if err != nil {
				break
			}
			err = settle(heldOutcome(idx, dup, out))
		}
		delete(held, out.Episode.ID)
		if err != nil {
			fatal = fmt.Errorf("append ledger: %w", err)
			log.Error().Err(err).Str("episode_id", out.Episode.ID).Msg("ledger append failed, aborting run")
			cancel()
		}
	}

	if ctx.Err() != nil {
		res.Interrupted = true
	}
	if res.Interrupted {
		log.Warn().Int("held", len(held)).Msg("stopping")
	}

	publish(o.bus, TopicRunFinished, RunEventDTO{
		RunID:       res.RunID,
		Total:       total,
		Downloaded:  len(res.Downloaded),
		Skipped:     len(res.Skipped),
		Failed:      len(res.Failed),
		Interrupted: res.Interrupted,
		At:          time.Now().UTC(),
	})
	log.Info().
		Int("downloaded", len(res.Downloaded)).
		Int("skipped", len(res.Skipped)).
		Int("failed", len(res.Failed)).
		Bool("interrupted", res.Interrupted).
		Msg("run finished")

	if fatal != nil {
		return res, fatal
	}
	return res, nil
}

// heldOutcome tranche un candidat mis en attente derrière first (même id).
// Une fois first consigné, l'index le reconnaît et le doublon est satisfait;
// sinon il partage l'échec de first.
func heldOutcome(idx *CompletionIndex, dup domain.Episode, first domain.Outcome) domain.Outcome {
	if idx.Contains(dup) {
		return domain.Skipped(dup, first.Path)
	}
	reason := first.Reason
	if reason == nil {
		reason = fmt.Errorf("episode %s not recorded", dup.ID)
	}
	return domain.Failed(dup, fmt.Errorf("same episode id as %s: %w", first.Episode.ProgramTitle, reason))
}

// dispatch soumet les épisodes tant que ctx est actif, puis ferme out une
// fois toutes les unités en vol terminées.
func (o *Orchestrator) dispatch(ctx context.Context, log zerolog.Logger, pending []domain.Episode, out chan<- domain.Outcome) {
	var wg sync.WaitGroup
	defer func() {
		wg.Wait()
		close(out)
	}()

	for i, ep := range pending {
		if err := o.limiter.Acquire(ctx); err != nil {
			log.Info().Int("not_started", len(pending)-i).Msg("dispatch stopped")
			return
		}
		wg.Add(1)
		go func(ep domain.Episode) {
			defer wg.Done()
			defer o.limiter.Release()
			out <- o.fetcher.Fetch(ctx, ep)
		}(ep)
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
