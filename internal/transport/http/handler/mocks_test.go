package handler

import (
	"context"

	"github.com/go-qr-auth/internal/application/otp"
	"github.com/go-qr-auth/internal/domain"
	"github.com/stretchr/testify/mock"
)

type mockOTPSvc struct{ mock.Mock }

func (m *mockOTPSvc) Send(ctx context.Context, req otp.SendRequest) (*otp.SendResult, error) {
	args := m.Called(ctx, req)
	if r, _ := args.Get(0).(*otp.SendResult); r != nil {
		return r, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockOTPSvc) Verify(ctx context.Context, req otp.VerifyRequest) (*otp.VerifyResult, error) {
	args := m.Called(ctx, req)
	if r, _ := args.Get(0).(*otp.VerifyResult); r != nil {
		return r, args.Error(1)
	}
	return nil, args.Error(1)
}

type mockSessionSvc struct{ mock.Mock }

func (m *mockSessionSvc) Establish(ctx context.Context, userID string) (*domain.TokenBundle, error) {
	args := m.Called(ctx, userID)
	if b, _ := args.Get(0).(*domain.TokenBundle); b != nil {
		return b, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockSessionSvc) Exchange(ctx context.Context, key string) (*domain.TokenBundle, error) {
	args := m.Called(ctx, key)
	if b, _ := args.Get(0).(*domain.TokenBundle); b != nil {
		return b, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockSessionSvc) Refresh(ctx context.Context, refreshToken string) (string, error) {
	args := m.Called(ctx, refreshToken)
	return args.String(0), args.Error(1)
}

func (m *mockSessionSvc) Invalidate(ctx context.Context, userID string) (int64, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockSessionSvc) RotateOnExpiry(ctx context.Context, oldKey, userID string) (string, error) {
	args := m.Called(ctx, oldKey, userID)
	return args.String(0), args.Error(1)
}

func (m *mockSessionSvc) Authenticate(ctx context.Context, accessToken string) (*domain.Principal, error) {
	args := m.Called(ctx, accessToken)
	if p, _ := args.Get(0).(*domain.Principal); p != nil {
		return p, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockSessionSvc) AuthenticateKey(ctx context.Context, key string) (*domain.Principal, error) {
	args := m.Called(ctx, key)
	if p, _ := args.Get(0).(*domain.Principal); p != nil {
		return p, args.Error(1)
	}
	return nil, args.Error(1)
}

type mockUserSvc struct{ mock.Mock }

func (m *mockUserSvc) GetProfile(ctx context.Context, userID string) (*domain.User, error) {
	args := m.Called(ctx, userID)
	if u, _ := args.Get(0).(*domain.User); u != nil {
		return u, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockUserSvc) UpdateProfile(ctx context.Context, userID string, req domain.UpdateProfileRequest) (*domain.User, error) {
	args := m.Called(ctx, userID, req)
	if u, _ := args.Get(0).(*domain.User); u != nil {
		return u, args.Error(1)
	}
	return nil, args.Error(1)
}
