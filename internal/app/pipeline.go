package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Guilhem-Bonnet/ruv-dl/internal/domain"
	"github.com/Guilhem-Bonnet/ruv-dl/internal/ports"
	"github.com/rs/zerolog"
)

type PipelineOptions struct {
	DownloadDir    string
	AudioOnly      bool
	VerifyExisting bool
	// CancelGrace borne l'attente de l'arrêt du remuxeur après annulation,
	// avant le nettoyage de la sortie partielle.
	CancelGrace time.Duration
}

func DefaultPipelineOptions() PipelineOptions {
	return PipelineOptions{CancelGrace: 5 * time.Second}
}

type PipelineDeps struct {
	Resolver  ports.ManifestResolver
	Subtitles ports.SubtitleFetcher
	Remuxer   ports.Remuxer
	// Prober est optionnel; utilisé seulement si VerifyExisting.
	Prober ports.Prober
	Bus    ports.EventBus
}

// Pipeline exécute le fetch d'un épisode de bout en bout.
// Il ne garde aucun état entre deux appels à Fetch.
type Pipeline struct {
	logger zerolog.Logger
	deps   PipelineDeps
	opts   PipelineOptions
}

func NewPipeline(logger zerolog.Logger, deps PipelineDeps, opts PipelineOptions) *Pipeline {
	if opts.CancelGrace <= 0 {
		opts.CancelGrace = DefaultPipelineOptions().CancelGrace
	}
	return &Pipeline{logger: logger.With().Str("component", "pipeline").Logger(), deps: deps, opts: opts}
}

// OutputPath renvoie le chemin canonique d'un épisode dans le dossier de téléchargement.
func (p *Pipeline) OutputPath(ep domain.Episode) string {
	return filepath.Join(p.opts.DownloadDir, CanonicalName(ep)+mediaExt)
}

var errFetchCanceled = errors.New("fetch canceled")

// Fetch ne panique jamais et ne renvoie jamais d'erreur: tout est classé dans l'Outcome.
func (p *Pipeline) Fetch(ctx context.Context, ep domain.Episode) (out domain.Outcome) {
	log := p.logger.With().Str("episode_id", ep.ID).Str("program", ep.ProgramTitle).Logger()
	st := &stageTracker{logger: log, bus: p.deps.Bus, ep: ep, stage: domain.StageStart}

	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("fetch pipeline panicked")
			out = domain.Failed(ep, coded(CodePanic, fmt.Sprint(r), nil))
		}
		st.finish(out)
	}()

	if err := validateEpisode(ep); err != nil {
		return domain.Failed(ep, coded(CodeInvalidEpisode, "invalid episode", err))
	}
	if err := ctx.Err(); err != nil {
		return domain.Canceled(ep, err)
	}

	output := p.OutputPath(ep)

	st.advance(domain.StageCheckExisting)
	present, err := p.checkExisting(ctx, log, ep, output)
	if err != nil {
		if errors.Is(err, errFetchCanceled) {
			return domain.Canceled(ep, err)
		}
		return domain.Failed(ep, coded(CodeIOError, "check existing output", err))
	}
	if present {
		log.Info().Str("path", output).Msg("output already present")
		return domain.Skipped(ep, output)
	}

	st.advance(domain.StageResolveRendition)
	rendition, err := p.resolve(ctx, ep)
	if err != nil {
		if ctx.Err() != nil {
			return domain.Canceled(ep, ctx.Err())
		}
		code := CodeManifestUnavailable
		if errors.Is(err, ports.ErrNoMatchingRendition) {
			code = CodeNoMatchingRendition
		}
		log.Warn().Err(err).Str("code", code).Msg("rendition resolution failed")
		return domain.Failed(ep, coded(code, "resolve rendition", err))
	}

	subtitlePath := ""
	if ep.SubtitleURL != "" && p.deps.Subtitles != nil {
		st.advance(domain.StageFetchSubtitle)
		dst := strings.TrimSuffix(output, mediaExt) + subtitleExt
		// Toujours supprimé après le remux, même en cas d'échec du fetch.
		defer removeIfExists(log, dst)
		if err := p.deps.Subtitles.Fetch(ctx, ep.SubtitleURL, dst); err != nil {
			log.Warn().Err(err).Msg("subtitle fetch failed, continuing without subtitles")
		} else {
			subtitlePath = dst
		}
	}

	st.advance(domain.StageTranscode)
	err = p.remux(ctx, domain.RemuxRequest{
		Input:        rendition.Address,
		Output:       output,
		SubtitlePath: subtitlePath,
		AudioOnly:    p.opts.AudioOnly,
	})
	if err != nil {
		removeIfExists(log, output)
		if errors.Is(err, ports.ErrInterrupted) || ctx.Err() != nil {
			log.Warn().Msg("remux interrupted, partial output removed")
			return domain.Canceled(ep, err)
		}
		log.Error().Err(err).Msg("remux failed")
		return domain.Failed(ep, coded(CodeRemuxFailed, "remux", err))
	}

	st.advance(domain.StageValidate)
	if err := validateOutput(output); err != nil {
		removeIfExists(log, output)
		return domain.Failed(ep, coded(CodeRemuxFailed, "validate output", err))
	}

	log.Info().Str("path", output).Int("height", rendition.Height).Msg("episode downloaded")
	return domain.Downloaded(ep, output)
}

func validateEpisode(ep domain.Episode) error {
	switch {
	case strings.TrimSpace(ep.ID) == "":
		return errors.New("missing id")
	case strings.TrimSpace(ep.ProgramTitle) == "":
		return errors.New("missing program title")
	case strings.TrimSpace(ep.ManifestURL) == "":
		return errors.New("missing manifest url")
	}
	return nil
}

// checkExisting migre au besoin un fichier nommé selon l'ancien schéma,
// puis indique si la sortie canonique est déjà là (et valide si demandé).
func (p *Pipeline) checkExisting(ctx context.Context, log zerolog.Logger, ep domain.Episode, output string) (bool, error) {
	exists, err := regularFileExists(output)
	if err != nil {
		return false, err
	}
	if !exists {
		legacy := filepath.Join(p.opts.DownloadDir, LegacyName(ep)+mediaExt)
		found, err := regularFileExists(legacy)
		if err != nil || !found {
			return false, err
		}
		if err := os.Rename(legacy, output); err != nil {
			return false, fmt.Errorf("rename legacy file: %w", err)
		}
		log.Info().Str("from", legacy).Str("path", output).Msg("renamed legacy output")
	}

	if !p.opts.VerifyExisting || p.deps.Prober == nil {
		return true, nil
	}
	if err := p.deps.Prober.Verify(ctx, output); err != nil {
		if errors.Is(err, ports.ErrInterrupted) || ctx.Err() != nil {
			return false, errFetchCanceled
		}
		log.Warn().Err(err).Str("path", output).Msg("existing output failed integrity check, fetching again")
		if rmErr := os.Remove(output); rmErr != nil && !os.IsNotExist(rmErr) {
			return false, rmErr
		}
		return false, nil
	}
	return true, nil
}

func (p *Pipeline) resolve(ctx context.Context, ep domain.Episode) (domain.Rendition, error) {
	if p.deps.Resolver == nil {
		return domain.Rendition{}, fmt.Errorf("%w: no resolver", ports.ErrManifestUnavailable)
	}
	renditions, err := p.deps.Resolver.Resolve(ctx, ep.ManifestURL)
	if err != nil {
		return domain.Rendition{}, err
	}
	if p.opts.AudioOnly {
		return LowestBandwidth(renditions)
	}
	return SelectRendition(renditions, ep.QualityLabel)
}

// remux tourne hors de la goroutine du pipeline pour que l'annulation soit
// observée même si le remuxeur tarde à rendre la main.
func (p *Pipeline) remux(ctx context.Context, req domain.RemuxRequest) error {
	if p.deps.Remuxer == nil {
		return fmt.Errorf("%w: no remuxer", ports.ErrRemuxFailed)
	}
	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("%w: remuxer panic: %v", ports.ErrRemuxFailed, r)
			}
		}()
		done <- p.deps.Remuxer.Remux(ctx, req)
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		// Attendre la fin du process avant de supprimer la sortie partielle.
		timer := time.NewTimer(p.opts.CancelGrace)
		defer timer.Stop()
		select {
		case <-done:
		case <-timer.C:
			p.logger.Warn().Str("path", req.Output).Msg("remuxer did not stop within grace period")
			// Le remuxeur peut encore écrire: on repasse derrière lui à sa sortie.
			go func() {
				<-done
				removeIfExists(p.logger, req.Output)
			}()
		}
		return fmt.Errorf("%w: %v", ports.ErrInterrupted, ctx.Err())
	}
}

func validateOutput(path string) error {
	fi, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("output missing: %w", err)
	}
	if fi.Size() == 0 {
		return errors.New("output is empty")
	}
	return nil
}

func regularFileExists(path string) (bool, error) {
	fi, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return fi.Mode().IsRegular(), nil
}

func removeIfExists(log zerolog.Logger, path string) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		log.Warn().Err(err).Str("path", path).Msg("failed to remove file")
	}
}

type stageTracker struct {
	logger zerolog.Logger
	bus    ports.EventBus
	ep     domain.Episode
	stage  domain.FetchStage
}

func (t *stageTracker) advance(to domain.FetchStage) {
	if !domain.CanAdvance(t.stage, to) {
		t.logger.Warn().Str("from", string(t.stage)).Str("stage", string(to)).Msg("unexpected stage transition")
	}
	t.stage = to
	t.logger.Debug().Str("stage", string(to)).Msg("stage")
	evt := episodeEvent(t.ep)
	evt.Stage = to
	publish(t.bus, TopicEpisodeStage, evt)
}

func (t *stageTracker) finish(out domain.Outcome) {
	if t.stage == domain.StageDone {
		return
	}
	t.stage = domain.StageDone
	evt := episodeEvent(t.ep)
	evt.Stage = domain.StageDone
	evt.Outcome = out.Kind
	publish(t.bus, TopicEpisodeStage, evt)
}
