package inventory

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/FredZ6/cloud-project/api/controllers"
	"github.com/FredZ6/cloud-project/api/middleware"
	"github.com/FredZ6/cloud-project/pkg/logger"
)

// RouterParams wires the inventory HTTP surface.
type RouterParams struct {
	Logg     *logger.Logger
	Handlers *Handlers
	DB       controllers.Pinger
	Redis    controllers.Pinger
	Bus      controllers.Pinger
	Registry *prometheus.Registry
}

func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(params.Logg),
		middleware.RequestID(params.Logg),
		middleware.Logging(params.Logg),
	)

	r.Get("/healthz", controllers.Healthz(params.Logg, params.DB, params.Redis, params.Bus))
	if params.Registry != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(params.Registry, promhttp.HandlerOpts{}))
	}

	r.Route("/api/stocks", func(r chi.Router) {
		r.Post("/", params.Handlers.UpsertStock)
		r.Post("/reservations", params.Handlers.ReserveStock)
		r.Get("/release-events", params.Handlers.ListReleaseEvents)
		r.Get("/release-events/cursor", params.Handlers.ListReleaseEventsCursor)
		r.Get("/release-events/export", params.Handlers.ExportReleaseEvents)
		r.Get("/{skuId}", params.Handlers.GetStock)
	})

	return r
}
