package mocks

import (
	"context"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"github.com/keyward/keyward-server/internal/model"
)

// AuthenticationTokenStore is a mock implementation of
// model.AuthenticationTokenStore.
type AuthenticationTokenStore struct {
	mock.Mock
}

func NewAuthenticationTokenStore() *AuthenticationTokenStore {
	return &AuthenticationTokenStore{}
}

func (m *AuthenticationTokenStore) Create(ctx context.Context, token model.AuthenticationToken) error {
	args := m.Called(ctx, token)
	return args.Error(0)
}

func (m *AuthenticationTokenStore) FindActive(ctx context.Context, userID uuid.UUID, token string, typ model.AuthenticationTokenType) (model.AuthenticationToken, error) {
	args := m.Called(ctx, userID, token, typ)
	return args.Get(0).(model.AuthenticationToken), args.Error(1)
}

func (m *AuthenticationTokenStore) Rotate(ctx context.Context, old model.AuthenticationToken, replacement model.AuthenticationToken) error {
	args := m.Called(ctx, old, replacement)
	return args.Error(0)
}

func (m *AuthenticationTokenStore) Deactivate(ctx context.Context, userID uuid.UUID, token string, typ model.AuthenticationTokenType) (int64, error) {
	args := m.Called(ctx, userID, token, typ)
	return args.Get(0).(int64), args.Error(1)
}

func (m *AuthenticationTokenStore) DeactivateAllForUser(ctx context.Context, userID uuid.UUID, typ model.AuthenticationTokenType) (int64, error) {
	args := m.Called(ctx, userID, typ)
	return args.Get(0).(int64), args.Error(1)
}
