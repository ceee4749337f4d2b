package main

import (
	"database/sql"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/prospecthq/prospect-api/internal/api"
	"github.com/prospecthq/prospect-api/internal/api/middleware"
	"github.com/prospecthq/prospect-api/internal/api/shared"
)

// buildRouter assembles the HTTP routes and middleware chain.
func buildRouter(
	companyHandler *api.CompanyHandler,
	webhookHandler *api.WebhookHandler,
	exportHandler *api.ExportHandler,
	db *sql.DB,
) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.TraceMiddleware)
	r.Use(chimiddleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		if err := db.PingContext(req.Context()); err != nil {
			shared.RespondWithError(w, req, http.StatusServiceUnavailable, "database unreachable")
			return
		}
		shared.RespondWithJSON(w, req, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(r chi.Router) {
		r.Route("/companies", func(r chi.Router) {
			r.Post("/", companyHandler.CreateCompany)
			r.Get("/", companyHandler.ListCompanies)
			r.Get("/export", exportHandler.ExportCompanies)
			r.Get("/{id}", companyHandler.GetCompany)
			r.Delete("/{id}", companyHandler.DeleteCompany)
		})

		r.Post("/webhooks/parallel", webhookHandler.HandleNotification)
	})

	return r
}
