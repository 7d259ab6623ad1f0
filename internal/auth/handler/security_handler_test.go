package handler_test

import (
	"testing"
	"time"

	"github.com/alexizher/onboarding-back-sub000/internal/auth/domain"
	"github.com/alexizher/onboarding-back-sub000/internal/auth/dto"
	"github.com/gofiber/fiber/v2"
	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSecurityHandler_RequestPasswordReset(t *testing.T) {
	route := "/api/v1/security/password-reset/request"
	windowStart := testNow.Add(-time.Hour)

	t.Run("unknown email gets the uniform response", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()
		f := newHandlerFixture(ctrl)
		app := newTestApp(f)

		f.users.EXPECT().GetByEmail(gomock.Any(), "nobody@example.com").Return(nil, nil)

		input := dto.ResetRequestInput{Email: "nobody@example.com"}
		resp, err := app.Test(jsonRequest(t, "POST", route, input))
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusAccepted, resp.StatusCode)

		body := decodeBody(t, resp.Body)
		assert.NotContains(t, body, "reset_token")
	})

	t.Run("rate-limited account gets the same uniform response", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()
		f := newHandlerFixture(ctrl)
		app := newTestApp(f)

		// The issue limit only trips for accounts that exist; a different
		// status here would let a caller enumerate accounts by hammering the
		// endpoint.
		user := &domain.User{ID: "u1", Email: "test@example.com", Active: true}
		f.users.EXPECT().GetByEmail(gomock.Any(), user.Email).Return(user, nil)
		f.resets.EXPECT().CountIssuedSince(gomock.Any(), "u1", windowStart).Return(3, nil)

		input := dto.ResetRequestInput{Email: user.Email}
		resp, err := app.Test(jsonRequest(t, "POST", route, input))
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusAccepted, resp.StatusCode)

		body := decodeBody(t, resp.Body)
		assert.NotContains(t, body, "reset_token")
	})

	t.Run("issued token is echoed outside production", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()
		f := newHandlerFixture(ctrl)
		app := newTestApp(f)

		user := &domain.User{ID: "u1", Email: "test@example.com", Active: true}
		f.users.EXPECT().GetByEmail(gomock.Any(), user.Email).Return(user, nil)
		f.resets.EXPECT().CountIssuedSince(gomock.Any(), "u1", windowStart).Return(0, nil)
		f.resets.EXPECT().InvalidateActiveByUserID(gomock.Any(), "u1", testNow).Return(0, nil)
		f.resets.EXPECT().Store(gomock.Any(), gomock.Any()).Return(nil)

		input := dto.ResetRequestInput{Email: user.Email}
		resp, err := app.Test(jsonRequest(t, "POST", route, input))
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusAccepted, resp.StatusCode)

		body := decodeBody(t, resp.Body)
		assert.NotEmpty(t, body["reset_token"])
	})
}
