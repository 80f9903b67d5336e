package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Christian112b/InonicApp/internal/service"
	"github.com/Christian112b/InonicApp/internal/ui"
	"github.com/Christian112b/InonicApp/pkg/health"
	"github.com/Christian112b/InonicApp/pkg/middleware"
)

const serviceName = "storefront"

// RouterConfig holds the knobs of the local API surface.
type RouterConfig struct {
	CORS       middleware.CORSConfig
	PprofCIDRs []string
	SessionID  func() string
}

// NewRouter creates a chi router with every storefront route registered.
func NewRouter(
	svc *service.Storefront,
	recorder *ui.Recorder,
	healthHandler *health.Handler,
	parseToken middleware.TokenParser,
	cfg RouterConfig,
	logger *slog.Logger,
) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.Recovery(logger))
	r.Use(chimw.Compress(5))
	r.Use(middleware.RequestLogging(logger))
	r.Use(middleware.PrometheusMetrics(serviceName))
	r.Use(middleware.Tracing(serviceName))
	r.Use(middleware.CORS(cfg.CORS))

	// Health check endpoints
	r.Get("/health/live", healthHandler.LivenessHandler())
	r.Get("/health/ready", healthHandler.ReadinessHandler())
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		promhttp.Handler().ServeHTTP(w, r)
	})

	// Pprof debug endpoints with IP allowlist.
	middleware.RegisterPprof(r, cfg.PprofCIDRs, logger)

	h := NewStorefrontHandler(svc, recorder, logger)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.NoStore)
		r.Use(ContentTypeJSON)
		r.Use(middleware.Auth(parseToken))
		r.Use(middleware.RequestLogger(logger, cfg.SessionID))

		r.Route("/cart", func(r chi.Router) {
			r.Get("/", h.OpenCart)
			r.Delete("/", h.ClearCart)
			r.Post("/items", h.AddItem)
			r.Put("/items/{id}", h.SetQuantity)
			r.Delete("/items/{id}", h.RemoveItem)
		})

		r.Post("/session/sync", h.SyncAfterLogin)
		r.Post("/session/logout", h.Logout)

		r.Get("/addresses", h.ListAddresses)
		r.Post("/addresses", h.AddAddress)
		r.Get("/coupons", h.ListCoupons)

		r.Route("/checkout", func(r chi.Router) {
			r.Post("/", h.BeginCheckout)
			r.Get("/", h.CheckoutState)
			r.Delete("/", h.CloseCheckout)
			r.Post("/next", h.Next)
			r.Post("/back", h.Back)
			r.Post("/tabs/{index}", h.GoTo)
			r.Put("/address", h.SelectAddress)
			r.Put("/method", h.SelectMethod)
			r.Post("/coupon", h.ApplyCoupon)
			r.Post("/finalize", h.Finalize)
		})
	})

	return r
}
