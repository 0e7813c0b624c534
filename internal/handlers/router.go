package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/ukydev/vehicle-marketplace/internal/middleware"
	"github.com/ukydev/vehicle-marketplace/internal/models"
)

// RouterConfig carries the handlers and middleware mounted by NewRouter.
type RouterConfig struct {
	Auth          *AuthHandler
	Vehicles      *VehicleHandler
	Transactions  *TransactionHandler
	Commissions   *CommissionHandler
	Conversations *ConversationHandler
	Users         *UserHandler

	AuthMiddleware *middleware.AuthMiddleware
	// Limiter throttles login and registration. Nil disables throttling.
	Limiter        middleware.Limiter
	RequestTimeout time.Duration
}

// NewRouter builds the HTTP API.
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(middleware.RequestLogger)
	if cfg.RequestTimeout > 0 {
		r.Use(chimw.Timeout(cfg.RequestTimeout))
	}

	r.Get("/health", Health)

	r.Route("/api", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			if cfg.Limiter != nil {
				r.Use(middleware.RateLimit(cfg.Limiter, "auth"))
			}
			r.Post("/auth/register", cfg.Auth.Register)
			r.Post("/auth/login", cfg.Auth.Login)
		})

		r.Get("/vehicles", cfg.Vehicles.List)
		r.Get("/vehicles/{id}", cfg.Vehicles.Get)
		r.Get("/commissions/quote", cfg.Commissions.Quote)

		r.Group(func(r chi.Router) {
			r.Use(cfg.AuthMiddleware.Authenticate)

			r.Get("/auth/profile", cfg.Auth.GetProfile)
			r.Put("/auth/profile", cfg.Auth.UpdateProfile)
			r.Post("/auth/change-password", cfg.Auth.ChangePassword)

			r.With(cfg.AuthMiddleware.RequirePermission(models.ActionListVehicle)).
				Post("/vehicles", cfg.Vehicles.Create)
			r.Put("/vehicles/{id}", cfg.Vehicles.Update)
			r.Patch("/vehicles/{id}/status", cfg.Vehicles.SetStatus)
			r.Delete("/vehicles/{id}", cfg.Vehicles.Delete)

			r.Route("/transactions", func(r chi.Router) {
				r.With(cfg.AuthMiddleware.RequirePermission(models.ActionMakeOffer)).
					Post("/", cfg.Transactions.Create)
				r.Get("/", cfg.Transactions.List)
				r.Get("/{id}", cfg.Transactions.Get)
				r.Post("/{id}/process", cfg.Transactions.Process)
				r.Post("/{id}/complete", cfg.Transactions.Complete)
				r.Post("/{id}/cancel", cfg.Transactions.Cancel)
			})

			r.Route("/conversations", func(r chi.Router) {
				r.Use(cfg.AuthMiddleware.RequirePermission(models.ActionSendMessage))
				r.Get("/", cfg.Conversations.List)
				r.Post("/", cfg.Conversations.Start)
				r.Get("/unread", cfg.Conversations.Unread)
				r.Get("/{id}/messages", cfg.Conversations.Messages)
				r.Post("/{id}/messages", cfg.Conversations.Send)
			})

			r.Route("/admin", func(r chi.Router) {
				r.Use(cfg.AuthMiddleware.RequireRole(models.RoleAdmin))

				r.Route("/commission-rules", func(r chi.Router) {
					r.Use(cfg.AuthMiddleware.RequirePermission(models.ActionManageRules))
					r.Get("/", cfg.Commissions.ListRules)
					r.Post("/", cfg.Commissions.CreateRule)
					r.Get("/{id}", cfg.Commissions.GetRule)
					r.Put("/{id}", cfg.Commissions.UpdateRule)
					r.Delete("/{id}", cfg.Commissions.DeleteRule)
				})

				r.Route("/commissions", func(r chi.Router) {
					r.Use(cfg.AuthMiddleware.RequirePermission(models.ActionViewCommissions))
					r.Get("/", cfg.Commissions.ListCommissions)
					r.Post("/{id}/pay", cfg.Commissions.PayCommission)
				})

				r.Route("/users", func(r chi.Router) {
					r.Use(cfg.AuthMiddleware.RequirePermission(models.ActionManageUsers))
					r.Get("/", cfg.Users.List)
					r.Patch("/{id}/active", cfg.Users.SetActive)
				})
			})
		})
	})

	return r
}
