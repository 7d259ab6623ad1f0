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

func newSessionService(ctrl *gomock.Controller) (*service.SessionService, *mocks.MockSessionRepository) {
	mockSessions := mocks.NewMockSessionRepository(ctrl)
	s := service.NewSessionService(mockSessions, 3, 24*time.Hour, 15*time.Minute, fixedClock{testNow}, nil, nil)
	return s, mockSessions
}

func TestSessionService_Create(t *testing.T) {
	ctx := context.Background()

	t.Run("below cap", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()
		s, mockSessions := newSessionService(ctrl)

		var stored *domain.Session
		mockSessions.EXPECT().
			CreateEnforcingCap(gomock.Any(), gomock.Any(), 3).
			DoAndReturn(func(_ context.Context, sess *domain.Session, _ int) (int, error) {
				stored = sess
				return 0, nil
			})

		sess, err := s.Create(ctx, "u1", "fp-1", "1.2.3.4", "ua")
		require.NoError(t, err)
		require.NotNil(t, stored)
		assert.Equal(t, "u1", stored.UserID)
		assert.Equal(t, "fp-1", stored.TokenFingerprint)
		assert.True(t, stored.Active)
		assert.Equal(t, testNow, stored.CreatedAt)
		assert.Equal(t, testNow.Add(24*time.Hour), stored.ExpiresAt)
		assert.Equal(t, sess.ID, stored.ID)
	})

	t.Run("cap overflow still succeeds after prior sessions are revoked", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()
		s, mockSessions := newSessionService(ctrl)

		mockSessions.EXPECT().
			CreateEnforcingCap(gomock.Any(), gomock.Any(), 3).
			Return(3, nil)

		sess, err := s.Create(ctx, "u1", "fp-new", "1.2.3.4", "ua")
		require.NoError(t, err)
		assert.NotEmpty(t, sess.ID)
	})
}

func TestSessionService_Validate(t *testing.T) {
	ctx := context.Background()

	t.Run("live session is touched", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()
		s, mockSessions := newSessionService(ctrl)

		session := &domain.Session{
			ID:             "s1",
			UserID:         "u1",
			Active:         true,
			ExpiresAt:      testNow.Add(time.Hour),
			LastActivityAt: testNow.Add(-5 * time.Minute),
		}
		mockSessions.EXPECT().GetActiveByFingerprint(gomock.Any(), "fp-1").Return(session, nil)
		mockSessions.EXPECT().Touch(gomock.Any(), "s1", testNow).Return(nil)

		got, err := s.Validate(ctx, "fp-1")
		require.NoError(t, err)
		assert.Equal(t, testNow, got.LastActivityAt)
	})

	t.Run("unknown fingerprint", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()
		s, mockSessions := newSessionService(ctrl)

		mockSessions.EXPECT().GetActiveByFingerprint(gomock.Any(), "fp-x").Return(nil, nil)

		_, err := s.Validate(ctx, "fp-x")
		assert.ErrorIs(t, err, autherror.ErrSessionNotFound)
	})

	t.Run("absolute expiry deactivates on the spot", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()
		s, mockSessions := newSessionService(ctrl)

		session := &domain.Session{
			ID:             "s1",
			UserID:         "u1",
			ExpiresAt:      testNow.Add(-time.Minute),
			LastActivityAt: testNow.Add(-2 * time.Minute),
		}
		mockSessions.EXPECT().GetActiveByFingerprint(gomock.Any(), "fp-1").Return(session, nil)
		mockSessions.EXPECT().Deactivate(gomock.Any(), "s1", "u1").Return(nil)

		_, err := s.Validate(ctx, "fp-1")
		assert.ErrorIs(t, err, autherror.ErrSessionNotFound)
	})

	t.Run("inactivity breach deactivates on the spot", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()
		s, mockSessions := newSessionService(ctrl)

		session := &domain.Session{
			ID:             "s1",
			UserID:         "u1",
			ExpiresAt:      testNow.Add(time.Hour),
			LastActivityAt: testNow.Add(-16 * time.Minute),
		}
		mockSessions.EXPECT().GetActiveByFingerprint(gomock.Any(), "fp-1").Return(session, nil)
		mockSessions.EXPECT().Deactivate(gomock.Any(), "s1", "u1").Return(nil)

		_, err := s.Validate(ctx, "fp-1")
		assert.ErrorIs(t, err, autherror.ErrSessionNotFound)
	})
}

func TestSessionService_CloseOthers(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	s, mockSessions := newSessionService(ctrl)

	mockSessions.EXPECT().DeactivateOthers(gomock.Any(), "u1", "fp-keep").Return(2, nil)

	n, err := s.CloseOthers(context.Background(), "u1", "fp-keep")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestSessionService_InvalidateAll(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	s, mockSessions := newSessionService(ctrl)

	mockSessions.EXPECT().DeactivateAll(gomock.Any(), "u1").Return(3, nil)

	n, err := s.InvalidateAll(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}
