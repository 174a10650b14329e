package httpapi

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"

	"github.com/Guilhem-Bonnet/ruv-dl/internal/app"
	"github.com/Guilhem-Bonnet/ruv-dl/internal/ports"
)

type Server struct {
	logger    zerolog.Logger
	ledger    ports.Ledger
	catalog   *app.CatalogService
	downloads *app.DownloadService
	bus       ports.EventBus
	// runCtx borne les runs lancés par POST /downloads: ils survivent à la
	// requête mais s'arrêtent avec le serveur.
	runCtx context.Context
}

func NewServer(runCtx context.Context, logger zerolog.Logger, ledger ports.Ledger, catalog *app.CatalogService, downloads *app.DownloadService, bus ports.EventBus) *Server {
	return &Server{logger: logger, ledger: ledger, catalog: catalog, downloads: downloads, bus: bus, runCtx: runCtx}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(hlog.NewHandler(s.logger))
	r.Use(hlog.RequestIDHandler("request_id", "Request-Id"))
	r.Use(hlog.RemoteAddrHandler("remote_ip"))
	r.Use(hlog.UserAgentHandler("user_agent"))
	r.Use(hlog.AccessHandler(accessLogFn))

	r.Route("/api/v1", func(r chi.Router) {
		// Le flux SSE reste ouvert: pas de timeout.
		r.Get("/events", s.handleEvents)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(defaultRequestTimeout))
			r.Get("/health", s.handleHealth)
			r.Get("/version", s.handleVersion)
			r.Get("/openapi.json", s.handleOpenAPI)

			if s.catalog != nil {
				NewCatalogHandler(s.catalog, s.ledger).Routes(r)
			}
			if s.downloads != nil {
				NewDownloadsHandler(s.runCtx, s.downloads).Routes(r)
				NewSettingsHandler(s.downloads).Routes(r)
			}
		})
	})

	return r
}
