package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/traceid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	httpSwagger "github.com/swaggo/http-swagger/v2"

	_ "github.com/jimmyurl/loans-sub000/docs"

	"github.com/jimmyurl/loans-sub000/internal/api/handler"
	mw "github.com/jimmyurl/loans-sub000/internal/api/middleware"
	"github.com/jimmyurl/loans-sub000/internal/config"
	"github.com/jimmyurl/loans-sub000/internal/domain/client"
	"github.com/jimmyurl/loans-sub000/internal/domain/loan"
)

func SetupRouter(loanService loan.LoanService, clientService client.ClientService, rdb *redis.Client, cfg *config.Config, logger *slog.Logger) *chi.Mux {
	router := chi.NewRouter()

	setupMiddleware(router, rdb, cfg, logger)
	setupMetricsEndpoint(router, cfg, logger)
	setupClientRoutes(router, cfg, clientService, logger)
	setupLoanRoutes(router, loanService, cfg, logger)
	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	})
	setupSwaggerEndpoint(router, logger)

	return router
}

func setupMiddleware(router *chi.Mux, rdb *redis.Client, cfg *config.Config, logger *slog.Logger) {
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(traceid.Middleware)
	router.Use(mw.StructuredLogger(logger))
	router.Use(middleware.Recoverer)
	router.Use(middleware.Compress(5))
	router.Use(middleware.Timeout(60 * time.Second))
	router.Use(mw.NewRateLimiterMiddleware(cfg.Server.RateLimit, rdb, logger).Middleware)
	router.Use(mw.MetricsMiddleware())
}

func setupMetricsEndpoint(router *chi.Mux, cfg *config.Config, logger *slog.Logger) {
	metricsPath := cfg.Metrics.Path
	if metricsPath == "" {
		metricsPath = "/metrics"
	}
	logger.Info("Setting up Prometheus metrics endpoint", "path", metricsPath)
	router.Handle(metricsPath, promhttp.Handler())
}

func setupSwaggerEndpoint(router *chi.Mux, logger *slog.Logger) {
	logger.Info("Setting up Swagger UI endpoint", "path", "/swagger/")
	router.Get("/swagger/*", httpSwagger.WrapHandler)
	router.Get("/swagger", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/swagger/index.html", http.StatusMovedPermanently)
	})
}

func setupLoanRoutes(router *chi.Mux, loanService loan.LoanService, cfg *config.Config, logger *slog.Logger) {
	loanHandler := handler.NewLoanHandler(loanService, logger)

	router.Route("/loans", func(r chi.Router) {
		r.Use(mw.AuthMiddleware(cfg.Server.Auth, logger))
		r.Post("/", loanHandler.CreateLoan)
		r.Post("/schedule-preview", loanHandler.PreviewSchedule)
		r.Route("/{loanID}", func(r chi.Router) {
			r.Get("/", loanHandler.GetLoan)
			r.Get("/schedule", loanHandler.GetSchedule)
			r.Get("/outstanding", loanHandler.GetOutstanding)
			r.Get("/delinquent", loanHandler.IsDelinquent)
			r.Post("/disbursements", loanHandler.RecordDisbursement)
			r.Post("/repayments", loanHandler.RecordRepayment)
		})
	})
}

func setupClientRoutes(r chi.Router, cfg *config.Config, svc client.ClientService, logger *slog.Logger) {
	h := handler.NewClientHandler(svc, logger)

	r.Route("/clients", func(r chi.Router) {
		r.Use(mw.AuthMiddleware(cfg.Server.Auth, logger))
		r.Post("/", h.RegisterClient)
		r.Get("/", h.ListClients)
		r.Get("/by-loan/{loanID}", h.FindClientByLoan)
		r.Route("/{clientID}", func(r chi.Router) {
			r.Get("/", h.GetClient)
			r.Delete("/", h.DeactivateClient)
			r.Put("/address", h.UpdateClientAddress)
			r.Put("/delinquency", h.UpdateDelinquency)
			r.Post("/reactivate", h.ReactivateClient)
		})
	})
}
