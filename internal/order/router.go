package order

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/FredZ6/cloud-project/api/controllers"
	"github.com/FredZ6/cloud-project/api/middleware"
	"github.com/FredZ6/cloud-project/pkg/logger"
)

// RouterParams wires the order HTTP surface.
type RouterParams struct {
	Logg     *logger.Logger
	Handlers *Handlers
	DB       controllers.Pinger
	Bus      controllers.Pinger
}

func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(params.Logg),
		middleware.RequestID(params.Logg),
		middleware.Logging(params.Logg),
	)

	r.Get("/healthz", controllers.Healthz(params.Logg, params.DB, params.Bus))

	r.Route("/api/orders", func(r chi.Router) {
		r.Post("/", params.Handlers.CreateOrder)
		r.Get("/{orderId}", params.Handlers.GetOrder)
	})

	return r
}
