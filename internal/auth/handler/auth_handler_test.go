package handler_test

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alexizher/onboarding-back-sub000/internal/auth/domain"
	"github.com/alexizher/onboarding-back-sub000/internal/auth/dto"
	"github.com/alexizher/onboarding-back-sub000/internal/auth/handler"
	"github.com/alexizher/onboarding-back-sub000/internal/auth/service"
	"github.com/alexizher/onboarding-back-sub000/internal/mocks"
	"github.com/gofiber/fiber/v2"
	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

var testNow = time.Date(2026, 8, 27, 12, 0, 0, 0, time.UTC)

// app.Test requests arrive from this address.
const testIP = "0.0.0.0"

type handlerFixture struct {
	users    *mocks.MockUserRepository
	sessions *mocks.MockSessionRepository
	refresh  *mocks.MockRefreshTokenRepository
	attempts *mocks.MockLoginAttemptRepository
	resets   *mocks.MockResetTokenRepository
	tokens   *mocks.MockTokenGenerator
	svc      *service.UserService
}

func newHandlerFixture(ctrl *gomock.Controller) *handlerFixture {
	f := &handlerFixture{
		users:    mocks.NewMockUserRepository(ctrl),
		sessions: mocks.NewMockSessionRepository(ctrl),
		refresh:  mocks.NewMockRefreshTokenRepository(ctrl),
		attempts: mocks.NewMockLoginAttemptRepository(ctrl),
		resets:   mocks.NewMockResetTokenRepository(ctrl),
		tokens:   mocks.NewMockTokenGenerator(ctrl),
	}
	clock := fixedClock{testNow}
	sessionSvc := service.NewSessionService(f.sessions, 3, 24*time.Hour, 15*time.Minute, clock, nil, nil)
	refreshSvc := service.NewRefreshService(f.refresh, "hash-key", 30*time.Minute, 5, clock)
	lockoutSvc := service.NewLockoutService(f.users, 3, 5, clock, nil)
	throttleSvc := service.NewThrottleService(f.attempts, 15*time.Minute, 3, 5, 3, clock)
	resetSvc := service.NewResetService(f.users, f.resets, time.Hour, 3, time.Hour, 3, 15*time.Minute, clock, nil)

	f.svc = service.NewUserService(f.users, f.tokens, sessionSvc, refreshSvc, lockoutSvc,
		throttleSvc, resetSvc, nil, clock)
	return f
}

func jsonRequest(t *testing.T, method, target string, payload any) *http.Request {
	t.Helper()
	body, err := json.Marshal(payload)
	require.NoError(t, err)
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func decodeBody(t *testing.T, r io.Reader) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.NewDecoder(r).Decode(&out))
	return out
}

func hashPassword(t *testing.T, password string) string {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	return string(hash)
}

func TestAuthHandler_Register(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	f := newHandlerFixture(ctrl)
	authHandler := handler.NewAuthHandler(f.svc)

	app := fiber.New()
	app.Post("/register", authHandler.Register)

	t.Run("success", func(t *testing.T) {
		input := dto.RegisterInput{Username: "tester", Email: "test@example.com", Password: "password123"}
		f.users.EXPECT().GetByEmail(gomock.Any(), input.Email).Return(nil, nil)
		f.users.EXPECT().Create(gomock.Any(), gomock.Any()).Return(nil)

		resp, err := app.Test(jsonRequest(t, "POST", "/register", input))
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusCreated, resp.StatusCode)
	})

	t.Run("bad request", func(t *testing.T) {
		req := httptest.NewRequest("POST", "/register", bytes.NewReader([]byte("{invalid")))
		req.Header.Set("Content-Type", "application/json")

		resp, err := app.Test(req)
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	})

	t.Run("email already in use", func(t *testing.T) {
		input := dto.RegisterInput{Email: "taken@example.com", Password: "password123"}
		f.users.EXPECT().GetByEmail(gomock.Any(), input.Email).
			Return(&domain.User{ID: "existing"}, nil)

		resp, err := app.Test(jsonRequest(t, "POST", "/register", input))
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusConflict, resp.StatusCode)
	})
}

func TestAuthHandler_Login(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	f := newHandlerFixture(ctrl)
	authHandler := handler.NewAuthHandler(f.svc)

	app := fiber.New()
	app.Post("/login", authHandler.Login)

	windowStart := testNow.Add(-15 * time.Minute)

	t.Run("too many requests", func(t *testing.T) {
		input := dto.LoginInput{Email: "test@example.com", Password: "password123"}

		f.attempts.EXPECT().CountFailedByIP(gomock.Any(), testIP, windowStart).Return(5, nil)
		f.attempts.EXPECT().Record(gomock.Any(), gomock.Any()).Return(nil)

		resp, err := app.Test(jsonRequest(t, "POST", "/login", input))
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusTooManyRequests, resp.StatusCode)
	})

	t.Run("invalid password reports captcha state", func(t *testing.T) {
		input := dto.LoginInput{Email: "test@example.com", Password: "wrong-password"}
		user := &domain.User{ID: "u1", Email: input.Email,
			PasswordHash: hashPassword(t, "the-real-password"), Active: true, Version: 1}

		f.attempts.EXPECT().CountFailedByIP(gomock.Any(), testIP, windowStart).Return(2, nil)
		f.attempts.EXPECT().CountFailedByEmail(gomock.Any(), input.Email, windowStart).Return(2, nil)
		f.users.EXPECT().GetByEmail(gomock.Any(), input.Email).Return(user, nil)
		f.attempts.EXPECT().Record(gomock.Any(), gomock.Any()).Return(nil)
		f.users.EXPECT().UpdateLockoutState(gomock.Any(), "u1", 1, 0, nil, 1).Return(true, nil)
		// The handler asks again after the failure is recorded.
		f.attempts.EXPECT().CountFailedByIP(gomock.Any(), testIP, windowStart).Return(3, nil)

		resp, err := app.Test(jsonRequest(t, "POST", "/login", input))
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)

		body := decodeBody(t, resp.Body)
		assert.Equal(t, true, body["captcha_required"])
	})

	t.Run("locked account returns retry delay", func(t *testing.T) {
		input := dto.LoginInput{Email: "test@example.com", Password: "password123"}
		until := testNow.Add(30 * time.Minute)
		user := &domain.User{ID: "u1", Email: input.Email,
			PasswordHash: hashPassword(t, input.Password), Active: true,
			LockoutLevel: 1, LockoutUntil: &until, Version: 2}

		f.attempts.EXPECT().CountFailedByIP(gomock.Any(), testIP, windowStart).Return(0, nil)
		f.attempts.EXPECT().CountFailedByEmail(gomock.Any(), input.Email, windowStart).Return(0, nil)
		f.users.EXPECT().GetByEmail(gomock.Any(), input.Email).Return(user, nil)
		f.attempts.EXPECT().Record(gomock.Any(), gomock.Any()).Return(nil)
		escalatedUntil := testNow.Add(4 * time.Hour)
		f.users.EXPECT().UpdateLockoutState(gomock.Any(), "u1", 0, 2, &escalatedUntil, 2).Return(true, nil)

		resp, err := app.Test(jsonRequest(t, "POST", "/login", input))
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusLocked, resp.StatusCode)

		body := decodeBody(t, resp.Body)
		assert.Equal(t, float64(1800), body["retry_after_seconds"])
	})

	t.Run("bad request - invalid json", func(t *testing.T) {
		req := httptest.NewRequest("POST", "/login", bytes.NewReader([]byte("{invalid-json")))
		req.Header.Set("Content-Type", "application/json")

		resp, err := app.Test(req)
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	})
}

func TestAuthHandler_Refresh(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	f := newHandlerFixture(ctrl)
	authHandler := handler.NewAuthHandler(f.svc)

	app := fiber.New()
	app.Post("/refresh", authHandler.Refresh)

	t.Run("success", func(t *testing.T) {
		input := dto.RefreshInput{RefreshToken: "raw-refresh"}
		old := &domain.RefreshToken{ID: "rt-old", UserID: "u1", DeviceFingerprint: "dev-1",
			ExpiresAt: testNow.Add(time.Minute)}
		user := &domain.User{ID: "u1", Email: "test@example.com", Active: true}

		f.refresh.EXPECT().GetByHash(gomock.Any(), gomock.Any()).Return(old, nil)
		f.refresh.EXPECT().Revoke(gomock.Any(), "rt-old", testNow).Return(nil)
		f.users.EXPECT().GetByID(gomock.Any(), "u1").Return(user, nil)
		f.tokens.EXPECT().Generate(user).Return("new-access", "jti-2", testNow.Add(15*time.Minute), nil)
		f.tokens.EXPECT().Fingerprint("new-access").Return("fp-2")
		f.sessions.EXPECT().CreateEnforcingCap(gomock.Any(), gomock.Any(), 3).Return(0, nil)
		f.refresh.EXPECT().Store(gomock.Any(), gomock.Any()).Return(nil)
		f.refresh.EXPECT().GetActiveCountByUserID(gomock.Any(), "u1").Return(1, nil)
		f.tokens.EXPECT().GetAccessTokenExpiry().Return(15 * time.Minute)

		req := jsonRequest(t, "POST", "/refresh", input)
		req.Header.Set("X-Device-Fingerprint", "dev-1")

		resp, err := app.Test(req)
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusOK, resp.StatusCode)

		body := decodeBody(t, resp.Body)
		assert.Equal(t, "new-access", body["access_token"])
		assert.NotEmpty(t, body["refresh_token"])
	})

	t.Run("unauthorized", func(t *testing.T) {
		input := dto.RefreshInput{RefreshToken: "never-issued"}
		f.refresh.EXPECT().GetByHash(gomock.Any(), gomock.Any()).Return(nil, nil)

		resp, err := app.Test(jsonRequest(t, "POST", "/refresh", input))
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("fingerprint mismatch", func(t *testing.T) {
		input := dto.RefreshInput{RefreshToken: "raw-refresh"}
		old := &domain.RefreshToken{ID: "rt-old", UserID: "u1", DeviceFingerprint: "dev-1",
			ExpiresAt: testNow.Add(time.Minute)}

		f.refresh.EXPECT().GetByHash(gomock.Any(), gomock.Any()).Return(old, nil)

		req := jsonRequest(t, "POST", "/refresh", input)
		req.Header.Set("X-Device-Fingerprint", "someone-else")

		resp, err := app.Test(req)
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
	})
}
