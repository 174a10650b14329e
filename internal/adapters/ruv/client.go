package ruv

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Guilhem-Bonnet/ruv-dl/internal/domain"
	"github.com/Guilhem-Bonnet/ruv-dl/internal/ports"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

const DefaultEndpoint = "https://spilari.nyr.ruv.is/gql/"

// Requêtes persistées côté serveur: seul le hash est envoyé.
const (
	opCategories = "getCategories"
	opCategory   = "getCategory"
	opEpisodes   = "getEpisode"
	opSerie      = "getSerie"
)

var persistedQueries = map[string]string{
	opCategories: "5a28b209a1a593a9f98e30d460718cba16f657b534b42c14fdcd5196bd39cdf9",
	opCategory:   "4d04a20dcfe37d6ec064299abb82895802d51bfa8bdd1ff283b64478cb2a2328",
	opEpisodes:   "f3f957a3a577be001eccf93a76cf2ae1b6d10c95e67305c56e4273279115bb93",
	opSerie:      "afd9cf0c67f1ebed0a981b72ee127a5a152eb90f4adb2b3bd3e6c1ec185a2dd3",
}

const defaultConcurrency = 8

// Client interroge l'API GraphQL du lecteur RÚV.
type Client struct {
	logger      zerolog.Logger
	endpoint    string
	client      *http.Client
	concurrency int
}

func New(logger zerolog.Logger, client *http.Client) *Client {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{
		logger:      logger.With().Str("component", "ruv").Logger(),
		endpoint:    DefaultEndpoint,
		client:      client,
		concurrency: defaultConcurrency,
	}
}

func (c *Client) WithEndpoint(endpoint string) *Client {
	if strings.TrimSpace(endpoint) != "" {
		c.endpoint = strings.TrimSpace(endpoint)
	}
	return c
}

func (c *Client) WithConcurrency(n int) *Client {
	if n > 0 {
		c.concurrency = n
	}
	return c
}

type graphQLError struct {
	Message string `json:"message"`
}

type graphQLResponse[T any] struct {
	Data   T              `json:"data"`
	Errors []graphQLError `json:"errors,omitempty"`
}

// flexID accepte un id numérique ou chaîne (les programmes ont des ids entiers).
type flexID string

func (f *flexID) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*f = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*f = flexID(n.String())
	return nil
}

type categoryDTO struct {
	Title    string       `json:"title"`
	Slug     string       `json:"slug"`
	Programs []programDTO `json:"programs"`
}

type categoriesData struct {
	Category struct {
		Categories []categoryDTO `json:"categories"`
	} `json:"Category"`
}

type programDTO struct {
	ID               flexID       `json:"id"`
	Title            string       `json:"title"`
	ForeignTitle     *string      `json:"foreign_title"`
	ShortDescription *string      `json:"short_description"`
	Episodes         []episodeDTO `json:"episodes"`
}

type episodeDTO struct {
	ID        flexID        `json:"id"`
	Title     string        `json:"title"`
	File      string        `json:"file"`
	FirstRun  string        `json:"firstrun"`
	Subtitles []subtitleDTO `json:"subtitles"`
}

type subtitleDTO struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type programData struct {
	Program *programDTO `json:"Program"`
}

// FetchAllPrograms liste les programmes de toutes les catégories TV.
// Les épisodes renvoyés ici sont partiels (pas d'adresse de manifest).
func (c *Client) FetchAllPrograms(ctx context.Context) ([]domain.Program, error) {
	var cats graphQLResponse[categoriesData]
	if err := c.query(ctx, opCategories, map[string]any{"type": "tv"}, &cats); err != nil {
		return nil, err
	}
	categories := cats.Data.Category.Categories

	perCategory := make([][]programDTO, len(categories))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.concurrency)
	for i, cat := range categories {
		if cat.Slug == "" {
			continue
		}
		g.Go(func() error {
			var out graphQLResponse[categoriesData]
			if err := c.query(gctx, opCategory, map[string]any{"category": cat.Slug, "station": "tv"}, &out); err != nil {
				return err
			}
			if len(out.Data.Category.Categories) > 0 {
				perCategory[i] = out.Data.Category.Categories[0].Programs
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	// Un programme peut apparaître dans plusieurs catégories.
	seen := map[string]struct{}{}
	var programs []domain.Program
	for _, list := range perCategory {
		for _, dto := range list {
			p, ok := c.toProgram(dto)
			if !ok {
				continue
			}
			if _, dup := seen[p.ID]; dup {
				continue
			}
			seen[p.ID] = struct{}{}
			programs = append(programs, p)
		}
	}
	c.logger.Info().Int("categories", len(categories)).Int("programs", len(programs)).Msg("catalog fetched")
	return programs, nil
}

// FetchProgramsWithEpisodes charge chaque programme puis chaque épisode pour
// obtenir l'adresse du manifest. Les ids inconnus sont omis.
func (c *Client) FetchProgramsWithEpisodes(ctx context.Context, ids []string, concurrency int) ([]domain.Program, error) {
	if concurrency <= 0 {
		concurrency = c.concurrency
	}
	results := make([]*domain.Program, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for i, id := range ids {
		g.Go(func() error {
			p, err := c.fetchProgram(gctx, id, concurrency)
			if err != nil {
				return err
			}
			results[i] = p
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make([]domain.Program, 0, len(ids))
	for _, p := range results {
		if p != nil {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (c *Client) fetchProgram(ctx context.Context, id string, concurrency int) (*domain.Program, error) {
	log := c.logger.With().Str("program_id", id).Logger()
	programID, err := strconv.Atoi(strings.TrimSpace(id))
	if err != nil {
		log.Warn().Msg("program id is not numeric, skipping")
		return nil, nil
	}

	var resp graphQLResponse[programData]
	if err := c.query(ctx, opEpisodes, map[string]any{"programID": programID}, &resp); err != nil {
		return nil, err
	}
	if resp.Data.Program == nil {
		log.Warn().Msg("unknown program, skipping")
		return nil, nil
	}
	program, ok := c.toProgram(*resp.Data.Program)
	if !ok {
		return nil, nil
	}

	// Le détail (fichier, sous-titres) n'est disponible qu'épisode par épisode.
	episodes := make([]*domain.ProgramEpisode, len(program.Episodes))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for i, ep := range program.Episodes {
		g.Go(func() error {
			var serie graphQLResponse[programData]
			vars := map[string]any{"episodeID": []string{ep.ID}, "programID": programID}
			if err := c.query(gctx, opSerie, vars, &serie); err != nil {
				return err
			}
			if serie.Data.Program == nil || len(serie.Data.Program.Episodes) == 0 {
				log.Warn().Str("episode_id", ep.ID).Msg("episode details missing, skipping")
				return nil
			}
			detailed, ok := c.toEpisode(serie.Data.Program.Episodes[0])
			if !ok {
				return nil
			}
			if detailed.FirstRun == "" {
				detailed.FirstRun = ep.FirstRun
			}
			episodes[i] = &detailed
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	program.Episodes = program.Episodes[:0]
	for _, ep := range episodes {
		if ep != nil {
			program.Episodes = append(program.Episodes, *ep)
		}
	}
	return &program, nil
}

func (c *Client) toProgram(dto programDTO) (domain.Program, bool) {
	id := strings.TrimSpace(string(dto.ID))
	title := strings.TrimSpace(dto.Title)
	if id == "" || title == "" {
		c.logger.Warn().Str("program_id", id).Str("title", title).Msg("dropping program without id or title")
		return domain.Program{}, false
	}
	p := domain.Program{
		ID:               id,
		Title:            title,
		ForeignTitle:     deref(dto.ForeignTitle),
		ShortDescription: deref(dto.ShortDescription),
		Episodes:         make([]domain.ProgramEpisode, 0, len(dto.Episodes)),
	}
	for _, e := range dto.Episodes {
		if ep, ok := c.toEpisode(e); ok {
			p.Episodes = append(p.Episodes, ep)
		}
	}
	return p, true
}

func (c *Client) toEpisode(dto episodeDTO) (domain.ProgramEpisode, bool) {
	id := strings.TrimSpace(string(dto.ID))
	title := strings.TrimSpace(dto.Title)
	if id == "" || title == "" {
		c.logger.Warn().Str("episode_id", id).Str("title", title).Msg("dropping episode without id or title")
		return domain.ProgramEpisode{}, false
	}
	ep := domain.ProgramEpisode{ID: id, Title: title, ManifestURL: dto.File, FirstRun: dto.FirstRun}
	for _, s := range dto.Subtitles {
		if s.Value != "" {
			ep.SubtitleURL = s.Value
			break
		}
	}
	return ep, true
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return strings.TrimSpace(*s)
}

// persistedQueryURL construit l'URL GET d'une requête persistée.
func (c *Client) persistedQueryURL(op string, variables map[string]any) (string, error) {
	vars, err := json.Marshal(variables)
	if err != nil {
		return "", err
	}
	ext, err := json.Marshal(map[string]any{
		"persistedQuery": map[string]any{"version": 1, "sha256Hash": persistedQueries[op]},
	})
	if err != nil {
		return "", err
	}
	q := url.Values{}
	q.Set("operationName", op)
	q.Set("variables", string(vars))
	q.Set("extensions", string(ext))
	return c.endpoint + "?" + q.Encode(), nil
}

func (c *Client) query(ctx context.Context, op string, variables map[string]any, out any) error {
	u, err := c.persistedQueryURL(op, variables)
	if err != nil {
		return err
	}
	if err := c.do(ctx, u, out); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: %s: %v", ports.ErrCatalogUnavailable, op, err)
	}
	if errs := graphQLErrors(out); len(errs) > 0 {
		return fmt.Errorf("%w: %s: %s", ports.ErrCatalogUnavailable, op, errs[0].Message)
	}
	return nil
}

func graphQLErrors(out any) []graphQLError {
	switch v := out.(type) {
	case *graphQLResponse[categoriesData]:
		return v.Errors
	case *graphQLResponse[programData]:
		return v.Errors
	}
	return nil
}

func (c *Client) do(ctx context.Context, u string, out any) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("Referer", "https://www.ruv.is/sjonvarp")
	httpReq.Header.Set("Origin", "https://www.ruv.is")
	httpReq.Header.Set("User-Agent", "ruv-dl")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return errors.New("ruv http error: " + resp.Status)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
