package handler

import (
	"strings"

	"github.com/alexizher/onboarding-back-sub000/internal/auth/policy"
	"github.com/alexizher/onboarding-back-sub000/internal/auth/service"
	"github.com/gofiber/fiber/v2"
)

// AuthMiddleware gates protected routes. A request passes only when the
// bearer token verifies (signature, expiry, revocation registry) AND its
// session is still live; the session's activity timestamp is refreshed as a
// side effect.
type AuthMiddleware struct {
	tokens   service.TokenGenerator
	sessions *service.SessionService
	policies *policy.Table
}

func NewAuthMiddleware(tokens service.TokenGenerator, sessions *service.SessionService,
	policies *policy.Table) *AuthMiddleware {
	return &AuthMiddleware{tokens: tokens, sessions: sessions, policies: policies}
}

func (m *AuthMiddleware) RequireAuth(c *fiber.Ctx) error {
	const prefix = "Bearer "

	header := c.Get(fiber.HeaderAuthorization)
	if !strings.HasPrefix(header, prefix) {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "missing bearer token"})
	}
	rawToken := strings.TrimPrefix(header, prefix)

	claims, err := m.tokens.Verify(c.UserContext(), rawToken)
	if err != nil {
		return writeError(c, err)
	}

	if _, err := m.sessions.Validate(c.UserContext(), m.tokens.Fingerprint(rawToken)); err != nil {
		return writeError(c, err)
	}

	c.Locals("claims", claims)
	c.Locals("userID", claims.UserID)
	c.Locals("role", claims.Role)
	c.Locals("token", rawToken)

	return c.Next()
}

// RequirePermission checks the caller's role against the policy table. Must
// run after RequireAuth.
func (m *AuthMiddleware) RequirePermission(permission string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		role, _ := c.Locals("role").(string)
		if !m.policies.Allowed(role, permission) {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "insufficient permissions"})
		}
		return c.Next()
	}
}
