package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/alexizher/onboarding-back-sub000/internal/auth/domain"
	"github.com/alexizher/onboarding-back-sub000/internal/auth/service"
	autherror "github.com/alexizher/onboarding-back-sub000/internal/errors"
	"github.com/alexizher/onboarding-back-sub000/internal/mocks"
	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newResetService(ctrl *gomock.Controller) (*service.ResetService, *mocks.MockUserRepository, *mocks.MockResetTokenRepository) {
	mockUsers := mocks.NewMockUserRepository(ctrl)
	mockResets := mocks.NewMockResetTokenRepository(ctrl)
	s := service.NewResetService(mockUsers, mockResets, time.Hour, 3, time.Hour, 3, 15*time.Minute,
		fixedClock{testNow}, nil)
	return s, mockUsers, mockResets
}

func activeUser() *domain.User {
	return &domain.User{ID: "u1", Email: "a@example.com", Active: true}
}

func TestResetService_Issue(t *testing.T) {
	ctx := context.Background()

	t.Run("unknown email pretends to succeed", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()
		s, mockUsers, _ := newResetService(ctrl)

		mockUsers.EXPECT().GetByEmail(gomock.Any(), "nobody@example.com").Return(nil, nil)

		token, err := s.Issue(ctx, "nobody@example.com", "1.2.3.4", "ua")
		require.NoError(t, err)
		assert.Empty(t, token)
	})

	t.Run("issue rate limit", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()
		s, mockUsers, mockResets := newResetService(ctrl)

		mockUsers.EXPECT().GetByEmail(gomock.Any(), "a@example.com").Return(activeUser(), nil)
		mockResets.EXPECT().CountIssuedSince(gomock.Any(), "u1", testNow.Add(-time.Hour)).Return(3, nil)

		_, err := s.Issue(ctx, "a@example.com", "1.2.3.4", "ua")
		assert.ErrorIs(t, err, autherror.ErrResetRateLimited)
	})

	t.Run("issuing invalidates prior tokens and stores a fresh one", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()
		s, mockUsers, mockResets := newResetService(ctrl)

		mockUsers.EXPECT().GetByEmail(gomock.Any(), "a@example.com").Return(activeUser(), nil)
		mockResets.EXPECT().CountIssuedSince(gomock.Any(), "u1", testNow.Add(-time.Hour)).Return(1, nil)
		mockResets.EXPECT().InvalidateActiveByUserID(gomock.Any(), "u1", testNow).Return(1, nil)

		var stored *domain.PasswordResetToken
		mockResets.EXPECT().
			Store(gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ context.Context, tok *domain.PasswordResetToken) error {
				stored = tok
				return nil
			})

		raw, err := s.Issue(ctx, "a@example.com", "1.2.3.4", "ua")
		require.NoError(t, err)
		assert.NotEmpty(t, raw)
		assert.Equal(t, raw, stored.Token)
		assert.Equal(t, "u1", stored.UserID)
		assert.Equal(t, testNow.Add(time.Hour), stored.ExpiresAt)
		assert.Equal(t, "1.2.3.4", stored.IssuedIP)
	})
}

func TestResetService_Validate(t *testing.T) {
	ctx := context.Background()

	t.Run("unknown token", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()
		s, _, mockResets := newResetService(ctrl)

		mockResets.EXPECT().GetByToken(gomock.Any(), "raw").Return(nil, nil)

		_, err := s.Validate(ctx, "raw", "1.2.3.4", "ua")
		assert.ErrorIs(t, err, autherror.ErrResetTokenInvalid)
	})

	t.Run("every presentation bumps the validation counter", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()
		s, _, mockResets := newResetService(ctrl)

		token := &domain.PasswordResetToken{ID: "t1", UserID: "u1", Token: "raw",
			ExpiresAt: testNow.Add(time.Hour), IssuedIP: "1.2.3.4", IssuedUserAgent: "ua"}
		mockResets.EXPECT().GetByToken(gomock.Any(), "raw").Return(token, nil)
		mockResets.EXPECT().IncrementValidationCount(gomock.Any(), "t1").Return(nil)

		got, err := s.Validate(ctx, "raw", "1.2.3.4", "ua")
		require.NoError(t, err)
		assert.Equal(t, "t1", got.ID)
	})

	t.Run("used token is invalid even before expiry", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()
		s, _, mockResets := newResetService(ctrl)

		token := &domain.PasswordResetToken{ID: "t1", Token: "raw", Used: true,
			ExpiresAt: testNow.Add(time.Hour)}
		mockResets.EXPECT().GetByToken(gomock.Any(), "raw").Return(token, nil)
		mockResets.EXPECT().IncrementValidationCount(gomock.Any(), "t1").Return(nil)

		_, err := s.Validate(ctx, "raw", "1.2.3.4", "ua")
		assert.ErrorIs(t, err, autherror.ErrResetTokenInvalid)
	})

	t.Run("blocked token in cooldown", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()
		s, _, mockResets := newResetService(ctrl)

		cooldown := testNow.Add(10 * time.Minute)
		token := &domain.PasswordResetToken{ID: "t1", Token: "raw", Blocked: true,
			CooldownUntil: &cooldown, ExpiresAt: testNow.Add(time.Hour)}
		mockResets.EXPECT().GetByToken(gomock.Any(), "raw").Return(token, nil)
		mockResets.EXPECT().IncrementValidationCount(gomock.Any(), "t1").Return(nil)

		_, err := s.Validate(ctx, "raw", "1.2.3.4", "ua")
		assert.ErrorIs(t, err, autherror.ErrResetTokenCooldown)
	})

	t.Run("blocked token past cooldown stays blocked", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()
		s, _, mockResets := newResetService(ctrl)

		cooldown := testNow.Add(-time.Minute)
		token := &domain.PasswordResetToken{ID: "t1", Token: "raw", Blocked: true,
			CooldownUntil: &cooldown, ExpiresAt: testNow.Add(time.Hour)}
		mockResets.EXPECT().GetByToken(gomock.Any(), "raw").Return(token, nil)
		mockResets.EXPECT().IncrementValidationCount(gomock.Any(), "t1").Return(nil)

		_, err := s.Validate(ctx, "raw", "1.2.3.4", "ua")
		assert.ErrorIs(t, err, autherror.ErrResetTokenBlocked)
	})
}

func TestResetService_Consume(t *testing.T) {
	ctx := context.Background()

	t.Run("success marks used, kills siblings and swaps the hash", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()
		s, mockUsers, mockResets := newResetService(ctrl)

		token := &domain.PasswordResetToken{ID: "t1", UserID: "u1", Token: "raw",
			ExpiresAt: testNow.Add(time.Hour)}
		mockResets.EXPECT().GetByToken(gomock.Any(), "raw").Return(token, nil)
		mockResets.EXPECT().MarkUsed(gomock.Any(), "t1", testNow, "1.2.3.4", "ua").Return(true, nil)
		mockResets.EXPECT().InvalidateActiveByUserID(gomock.Any(), "u1", testNow).Return(0, nil)
		mockUsers.EXPECT().UpdatePasswordHash(gomock.Any(), "u1", "new-hash").Return(nil)
		mockUsers.EXPECT().AppendPasswordHistory(gomock.Any(), "u1", "new-hash").Return(nil)

		userID, err := s.Consume(ctx, "raw", "new-hash", "1.2.3.4", "ua")
		require.NoError(t, err)
		assert.Equal(t, "u1", userID)
	})

	t.Run("losing the claim race leaves the password untouched", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()
		s, _, mockResets := newResetService(ctrl)

		// Both consumers read the token while still unused; only the one that
		// wins the conditional update may install a password hash.
		token := &domain.PasswordResetToken{ID: "t1", UserID: "u1", Token: "raw",
			ExpiresAt: testNow.Add(time.Hour)}
		mockResets.EXPECT().GetByToken(gomock.Any(), "raw").Return(token, nil)
		mockResets.EXPECT().MarkUsed(gomock.Any(), "t1", testNow, "1.2.3.4", "ua").Return(false, nil)

		_, err := s.Consume(ctx, "raw", "new-hash", "1.2.3.4", "ua")
		assert.ErrorIs(t, err, autherror.ErrResetTokenInvalid)
	})

	t.Run("expired token counts as a failure", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()
		s, _, mockResets := newResetService(ctrl)

		token := &domain.PasswordResetToken{ID: "t1", UserID: "u1", Token: "raw",
			ExpiresAt: testNow.Add(-time.Minute)}
		mockResets.EXPECT().GetByToken(gomock.Any(), "raw").Return(token, nil)
		mockResets.EXPECT().RegisterFailedAttempt(gomock.Any(), "t1").Return(1, nil)

		_, err := s.Consume(ctx, "raw", "new-hash", "1.2.3.4", "ua")
		assert.ErrorIs(t, err, autherror.ErrResetTokenInvalid)
	})

	t.Run("third failure blocks the token and kills the rest", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()
		s, _, mockResets := newResetService(ctrl)

		token := &domain.PasswordResetToken{ID: "t1", UserID: "u1", Token: "raw",
			ExpiresAt: testNow.Add(-time.Minute), FailedAttempts: 2}
		mockResets.EXPECT().GetByToken(gomock.Any(), "raw").Return(token, nil)
		mockResets.EXPECT().RegisterFailedAttempt(gomock.Any(), "t1").Return(3, nil)
		mockResets.EXPECT().
			Block(gomock.Any(), "t1", gomock.Any(), testNow.Add(15*time.Minute)).
			Return(nil)
		mockResets.EXPECT().InvalidateActiveByUserID(gomock.Any(), "u1", testNow).Return(1, nil)

		_, err := s.Consume(ctx, "raw", "new-hash", "1.2.3.4", "ua")
		assert.ErrorIs(t, err, autherror.ErrResetTokenInvalid)
	})

	t.Run("already used token does not accumulate failures", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()
		s, _, mockResets := newResetService(ctrl)

		token := &domain.PasswordResetToken{ID: "t1", UserID: "u1", Token: "raw", Used: true,
			ExpiresAt: testNow.Add(time.Hour)}
		mockResets.EXPECT().GetByToken(gomock.Any(), "raw").Return(token, nil)

		_, err := s.Consume(ctx, "raw", "new-hash", "1.2.3.4", "ua")
		assert.ErrorIs(t, err, autherror.ErrResetTokenInvalid)
	})
}
