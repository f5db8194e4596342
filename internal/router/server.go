package router

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/wellywell/redeemy/internal/auth"
	"github.com/wellywell/redeemy/internal/config"
	"github.com/wellywell/redeemy/internal/handlers"
)

const (
	compressLevel = 5
)

type Middleware interface {
	Handle(h http.Handler) http.Handler
}

type Router struct {
	server *http.Server
	router *chi.Mux
}

func NewRouter(conf *config.ServerConfig, h *handlers.HandlerSet, middlewares ...Middleware) *Router {

	r := chi.NewRouter()

	r.Use(RequestLogger{}.Handle)
	for _, m := range middlewares {
		r.Use(m.Handle)
	}
	r.Use(middleware.Compress(compressLevel))

	r.Get("/api/codes/{code}", h.HandleCheckCode)
	r.Post("/api/redeem", h.HandleRedeem)
	r.Get("/api/track/{code}", h.HandleTrack)

	r.Post("/api/admin/register", h.HandleRegisterAdmin)
	r.Post("/api/admin/login", h.HandleLogin)
	r.Post("/api/admin/logout", h.HandleLogout)

	authMiddleware := &auth.AuthenticateMiddleware{Secret: conf.Secret}

	r.Group(func(r chi.Router) {

		r.Use(authMiddleware.Handle)
		r.Get("/api/admin/orders", h.HandleListOrders)
		r.Delete("/api/admin/orders", h.HandleDeleteOrders)
		r.Get("/api/admin/orders/{id}", h.HandleGetOrder)
		r.Post("/api/admin/orders/{id}/credentials", h.HandleAttachCredentials)
		r.Post("/api/admin/codes", h.HandleIssueCodes)
		r.Post("/api/admin/codes/{code}/cancel", h.HandleCancelCode)
		r.Get("/api/admin/notifications", h.HandleGetNotifications)
		r.Post("/api/admin/notifications/read", h.HandleMarkRead)
		r.Delete("/api/admin/notifications", h.HandleClearNotifications)
	})

	return &Router{
		router: r,
		server: &http.Server{
			Addr:              conf.RunAddress,
			Handler:           r,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}
}

func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.router.ServeHTTP(w, req)
}

// ListenAndServe blocks until the server fails or Shutdown is called.
func (r *Router) ListenAndServe() error {
	err := r.server.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

func (r *Router) Shutdown(ctx context.Context) error {
	return r.server.Shutdown(ctx)
}
