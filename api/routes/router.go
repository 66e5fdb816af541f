package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/storefront/api/controllers"
	"github.com/angelmondragon/storefront/api/middleware"
	"github.com/angelmondragon/storefront/pkg/config"
	"github.com/angelmondragon/storefront/pkg/logger"
	"github.com/angelmondragon/storefront/pkg/redis"
)

// Deps are the collaborators the HTTP surface is built from. Idempotency and Gatherer
// are optional.
type Deps struct {
	Carts       controllers.CartSessions
	Catalog     catalogService
	Checkout    controllers.OrderSubmitter
	Idempotency redis.IdempotencyStore
	Pingers     map[string]controllers.Pinger
	Gatherer    prometheus.Gatherer
}

type catalogService interface {
	controllers.ProductCatalog
	controllers.ItemResolver
}

func NewRouter(cfg *config.Config, logg *logger.Logger, deps Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.App.CORSOrigins),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, deps.Pingers))
	})

	if deps.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Session(cfg.Session, logg))

		r.Route("/products", func(r chi.Router) {
			r.Get("/", controllers.ProductList(deps.Catalog, logg))
			r.Get("/{productId}", controllers.ProductDetail(deps.Catalog, logg))
		})

		r.Route("/cart", func(r chi.Router) {
			r.Get("/", controllers.CartFetch(deps.Carts, logg))
			r.Delete("/", controllers.CartClear(deps.Carts, logg))
			r.Get("/badge", controllers.CartBadge(deps.Carts, logg))
			r.Get("/summary", controllers.CartSummary(deps.Carts, logg))
			r.Get("/events", controllers.CartEvents(deps.Carts, logg))
			r.Post("/items", controllers.CartAddItem(deps.Carts, deps.Catalog, controllers.AddItemOptions{AllowClientItems: cfg.Cart.AllowClientItems}, logg))
			r.Delete("/items/{productId}", controllers.CartRemoveItem(deps.Carts, logg))
		})

		r.With(middleware.Idempotency(deps.Idempotency, middleware.IdempotencyOptions{}, logg)).
			Post("/checkout", controllers.Checkout(deps.Carts, deps.Checkout, logg))
	})

	return r
}
