package handler

import (
	"github.com/alexizher/onboarding-back-sub000/internal/auth/policy"
	"github.com/gofiber/fiber/v2"
)

func RegisterRoutes(app *fiber.App, auth *AuthHandler, security *SecurityHandler, mw *AuthMiddleware) {
	v1 := app.Group("/api/v1")

	a := v1.Group("/auth")
	a.Post("/register", auth.Register)
	a.Post("/login", auth.Login)
	a.Post("/refresh", auth.Refresh)

	s := v1.Group("/security")
	s.Post("/password-reset/request", security.RequestPasswordReset)
	s.Post("/password-reset/confirm", security.ConfirmPasswordReset)
	s.Post("/logout", mw.RequireAuth, security.Logout)
	s.Get("/sessions", mw.RequireAuth, security.Sessions)
	s.Post("/sessions/close-others", mw.RequireAuth, security.CloseOtherSessions)
	s.Post("/change-password", mw.RequireAuth, security.ChangePassword)

	// Admin-only endpoints
	admin := v1.Group("/admin", mw.RequireAuth, mw.RequirePermission(policy.PermSecurityManage))
	admin.Post("/users/:id/unlock", security.UnlockAccount)
	admin.Delete("/users/:id/sessions", security.ForceLogout)
	admin.Get("/users/:id/sessions", security.UserSessions)
}
