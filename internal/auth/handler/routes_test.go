package handler_test

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alexizher/onboarding-back-sub000/config"
	"github.com/alexizher/onboarding-back-sub000/internal/auth/domain"
	"github.com/alexizher/onboarding-back-sub000/internal/auth/handler"
	"github.com/alexizher/onboarding-back-sub000/internal/auth/policy"
	"github.com/alexizher/onboarding-back-sub000/internal/auth/service"
	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestApp(f *handlerFixture) *fiber.App {
	sessionSvc := service.NewSessionService(f.sessions, 3, 24*time.Hour, 15*time.Minute,
		fixedClock{testNow}, nil, nil)
	mw := handler.NewAuthMiddleware(f.tokens, sessionSvc, policy.Default())
	authHandler := handler.NewAuthHandler(f.svc)
	securityHandler := handler.NewSecurityHandler(f.svc, &config.Config{Env: "test"})

	app := fiber.New()
	handler.RegisterRoutes(app, authHandler, securityHandler, mw)
	return app
}

// TestRegisterRoutes verifies that every route is mounted. Unauthenticated
// requests bounce off the middleware or the body parser, which is enough to
// distinguish a mounted route from a 404.
func TestRegisterRoutes(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	app := newTestApp(newHandlerFixture(ctrl))

	testCases := []struct {
		method string
		path   string
	}{
		{http.MethodPost, "/api/v1/auth/register"},
		{http.MethodPost, "/api/v1/auth/login"},
		{http.MethodPost, "/api/v1/auth/refresh"},
		{http.MethodPost, "/api/v1/security/password-reset/request"},
		{http.MethodPost, "/api/v1/security/password-reset/confirm"},
		{http.MethodPost, "/api/v1/security/logout"},
		{http.MethodGet, "/api/v1/security/sessions"},
		{http.MethodPost, "/api/v1/security/sessions/close-others"},
		{http.MethodPost, "/api/v1/security/change-password"},
		{http.MethodPost, "/api/v1/admin/users/u1/unlock"},
		{http.MethodDelete, "/api/v1/admin/users/u1/sessions"},
		{http.MethodGet, "/api/v1/admin/users/u1/sessions"},
	}

	for _, tc := range testCases {
		t.Run(fmt.Sprintf("%s_%s_exists", tc.method, tc.path), func(t *testing.T) {
			req := httptest.NewRequest(tc.method, tc.path, nil)
			resp, err := app.Test(req)
			require.NoError(t, err)
			assert.NotEqual(t, http.StatusNotFound, resp.StatusCode)
		})
	}
}

func liveSession(userID, fingerprint string) *domain.Session {
	return &domain.Session{
		ID:               "s1",
		UserID:           userID,
		TokenFingerprint: fingerprint,
		Active:           true,
		ExpiresAt:        testNow.Add(time.Hour),
		LastActivityAt:   testNow.Add(-time.Minute),
	}
}

func TestAuthMiddleware(t *testing.T) {
	adminRoute := "/api/v1/admin/users/target-user/sessions"

	t.Run("fails without auth header", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()
		app := newTestApp(newHandlerFixture(ctrl))

		resp, err := app.Test(httptest.NewRequest(http.MethodGet, adminRoute, nil))
		require.NoError(t, err)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("fails with malformed header", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()
		app := newTestApp(newHandlerFixture(ctrl))

		req := httptest.NewRequest(http.MethodGet, adminRoute, nil)
		req.Header.Set("Authorization", "BearerInvalidToken") // no space

		resp, err := app.Test(req)
		require.NoError(t, err)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("fails when the session is gone", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()
		f := newHandlerFixture(ctrl)
		app := newTestApp(f)

		claims := &service.JWTCustomClaims{UserID: "admin-1", Role: "admin"}
		f.tokens.EXPECT().Verify(gomock.Any(), "orphan-token").Return(claims, nil)
		f.tokens.EXPECT().Fingerprint("orphan-token").Return("fp-orphan")
		f.sessions.EXPECT().GetActiveByFingerprint(gomock.Any(), "fp-orphan").Return(nil, nil)

		req := httptest.NewRequest(http.MethodGet, adminRoute, nil)
		req.Header.Set("Authorization", "Bearer orphan-token")

		resp, err := app.Test(req)
		require.NoError(t, err)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("fails for a role without the permission", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()
		f := newHandlerFixture(ctrl)
		app := newTestApp(f)

		claims := &service.JWTCustomClaims{UserID: "user-1", Role: "user"}
		f.tokens.EXPECT().Verify(gomock.Any(), "user-token").Return(claims, nil)
		f.tokens.EXPECT().Fingerprint("user-token").Return("fp-user")
		f.sessions.EXPECT().GetActiveByFingerprint(gomock.Any(), "fp-user").
			Return(liveSession("user-1", "fp-user"), nil)
		f.sessions.EXPECT().Touch(gomock.Any(), "s1", testNow).Return(nil)

		req := httptest.NewRequest(http.MethodGet, adminRoute, nil)
		req.Header.Set("Authorization", "Bearer user-token")

		resp, err := app.Test(req)
		require.NoError(t, err)
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	})

	t.Run("admin passes through to the handler", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()
		f := newHandlerFixture(ctrl)
		app := newTestApp(f)

		claims := &service.JWTCustomClaims{
			UserID: "admin-1",
			Role:   "admin",
			RegisteredClaims: jwt.RegisteredClaims{
				ExpiresAt: jwt.NewNumericDate(testNow.Add(time.Hour)),
			},
		}
		f.tokens.EXPECT().Verify(gomock.Any(), "admin-token").Return(claims, nil)
		f.tokens.EXPECT().Fingerprint("admin-token").Return("fp-admin")
		f.sessions.EXPECT().GetActiveByFingerprint(gomock.Any(), "fp-admin").
			Return(liveSession("admin-1", "fp-admin"), nil)
		f.sessions.EXPECT().Touch(gomock.Any(), "s1", testNow).Return(nil)
		f.sessions.EXPECT().GetActiveByUserID(gomock.Any(), "target-user").
			Return([]domain.Session{*liveSession("target-user", "fp-t")}, nil)

		req := httptest.NewRequest(http.MethodGet, adminRoute, nil)
		req.Header.Set("Authorization", "Bearer admin-token")

		resp, err := app.Test(req)
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})
}
