package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"go-blog-platform/internal/config"
	"go-blog-platform/internal/handler"
	"go-blog-platform/internal/metrics"
	"go-blog-platform/internal/middleware"
)

type Handlers struct {
	Auth *handler.AuthHandler
	Role *handler.RoleHandler
	User *handler.UserHandler
}

// New wires the HTTP surface. Permission codes sit next to the routes they
// protect so the authorization matrix is readable in one place.
func New(cfg *config.Config, guard *middleware.AuthMiddleware, h Handlers, ws http.Handler) http.Handler {
	r := chi.NewRouter()
	rateLimitMiddleware := middleware.NewRateLimitMiddleware(cfg.RateLimitRPM, cfg.AuthRateLimitRPM)

	r.Use(middleware.Recovery)
	r.Use(middleware.Logging)
	r.Use(middleware.Metrics)
	r.Use(middleware.CORS(cfg.CORSOrigins))
	r.Use(middleware.SecurityHeaders)
	r.Use(rateLimitMiddleware.Handler)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	// The socket upgrade cannot pass through http.TimeoutHandler, so it
	// mounts outside the API timeout.
	r.Method(http.MethodGet, "/ws", ws)

	r.Route("/api/v1", func(api chi.Router) {
		api.Use(middleware.Timeout(cfg.RequestTimeout))

		api.Route("/auth", func(auth chi.Router) {
			auth.Post("/login", h.Auth.Login)
			auth.Post("/refresh", h.Auth.Refresh)
			auth.With(guard.RequireAuth).Post("/logout", h.Auth.Logout)
			auth.With(guard.RequireAuth).Get("/me", h.Auth.Me)
			auth.With(guard.RequireAuth).Get("/permissions", h.Auth.Permissions)
			auth.With(guard.RequireAuth).Get("/menus", h.Auth.Menus)
			auth.With(guard.RequireAuth).Post("/change-password", h.Auth.ChangePassword)
		})

		api.Route("/admin", func(admin chi.Router) {
			admin.Use(guard.RequireAuth)

			admin.With(guard.RequirePermissions("roles:read")).Get("/roles", h.Role.List)
			admin.With(guard.RequirePermissions("roles:read")).Get("/roles/{roleID}", h.Role.Get)
			admin.With(guard.RequirePermissions("roles:write")).Post("/roles", h.Role.Create)
			admin.With(guard.RequirePermissions("roles:write")).Put("/roles/{roleID}", h.Role.Update)
			admin.With(guard.RequirePermissions("roles:write")).Delete("/roles/{roleID}", h.Role.Delete)
			admin.With(guard.RequirePermissions("roles:write")).Put("/roles/{roleID}/permissions", h.Role.SetPermissions)
			admin.With(guard.RequirePermissions("roles:write")).Put("/roles/{roleID}/menus", h.Role.SetMenus)

			// Defining new permission codes and menu entries is reserved for
			// the admin role; no permission code can gate its own creation.
			admin.With(guard.RequirePermissions("permissions:read")).Get("/permissions", h.Role.ListPermissions)
			admin.With(guard.RequireRoles("admin")).Post("/permissions", h.Role.CreatePermission)

			admin.With(guard.RequirePermissions("menus:read")).Get("/menus", h.Role.ListMenus)
			admin.With(guard.RequireRoles("admin")).Post("/menus", h.Role.CreateMenu)

			admin.With(guard.RequirePermissions("users:read")).Get("/users", h.User.List)
			admin.With(guard.RequirePermissions("users:read")).Get("/users/{userID}", h.User.Get)
			admin.With(guard.RequirePermissions("users:write")).Put("/users/{userID}/status", h.User.UpdateStatus)
			admin.With(guard.RequirePermissions("users:write")).Post("/users/{userID}/force-logout", h.User.ForceLogout)
			admin.With(guard.RequirePermissions("users:write")).Post("/users/{userID}/roles", h.User.AssignRole)
			admin.With(guard.RequirePermissions("users:write")).Delete("/users/{userID}/roles/{roleID}", h.User.RemoveRole)
		})
	})

	return r
}
