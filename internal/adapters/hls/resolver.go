package hls

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Guilhem-Bonnet/ruv-dl/internal/domain"
	"github.com/Guilhem-Bonnet/ruv-dl/internal/ports"
	"github.com/grafov/m3u8"
)

// Resolver lit un manifest HLS maître et en liste les variantes.
type Resolver struct {
	client *http.Client
}

func NewResolver(client *http.Client) *Resolver {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &Resolver{client: client}
}

// Resolve renvoie les variantes dans l'ordre du manifest, adresses absolues.
// Une playlist média (une seule variante) n'est pas supportée.
func (r *Resolver) Resolve(ctx context.Context, manifestURL string) ([]domain.Rendition, error) {
	base, err := url.Parse(manifestURL)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("%w: invalid manifest url %q", ports.ErrManifestUnavailable, manifestURL)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, manifestURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ports.ErrManifestUnavailable, err)
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ports.ErrManifestUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: %s returned %s", ports.ErrManifestUnavailable, manifestURL, resp.Status)
	}

	playlist, _, err := m3u8.DecodeFrom(resp.Body, true)
	if err != nil {
		return nil, fmt.Errorf("%w: decode %s: %v", ports.ErrManifestUnavailable, manifestURL, err)
	}
	master, ok := playlist.(*m3u8.MasterPlaylist)
	if !ok {
		return nil, fmt.Errorf("%w: %s is a media playlist, expected a multi-variant playlist", ports.ErrManifestUnavailable, manifestURL)
	}
	return renditions(base, master)
}

func renditions(base *url.URL, master *m3u8.MasterPlaylist) ([]domain.Rendition, error) {
	out := make([]domain.Rendition, 0, len(master.Variants))
	for i, v := range master.Variants {
		if v == nil || v.URI == "" {
			continue
		}
		ref, err := url.Parse(v.URI)
		if err != nil {
			return nil, fmt.Errorf("%w: variant %d: %v", ports.ErrManifestUnavailable, i, err)
		}
		w, h := parseResolution(v.Resolution)
		out = append(out, domain.Rendition{
			Index:     i,
			Width:     w,
			Height:    h,
			Bandwidth: int64(v.Bandwidth),
			Address:   base.ResolveReference(ref).String(),
		})
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: no variants", ports.ErrManifestUnavailable)
	}
	return out, nil
}

// parseResolution lit "1280x720"; 0,0 si absent ou invalide.
func parseResolution(s string) (int, int) {
	ws, hs, ok := strings.Cut(strings.ToLower(strings.TrimSpace(s)), "x")
	if !ok {
		return 0, 0
	}
	w, err1 := strconv.Atoi(ws)
	h, err2 := strconv.Atoi(hs)
	if errors.Join(err1, err2) != nil {
		return 0, 0
	}
	return w, h
}
