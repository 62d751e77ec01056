package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/gaborage/go-retrier/auth"
)

// MockRefresher provides a testify-based mock implementation of auth.Refresher.
//
// Example usage:
//
//	r := &mocks.MockRefresher{}
//	r.On("Refresh", mock.Anything).Return(auth.Credential{Token: "fresh"}, nil).Once()
type MockRefresher struct {
	mock.Mock
}

var _ auth.Refresher = (*MockRefresher)(nil)

// Refresh implements auth.Refresher
func (m *MockRefresher) Refresh(ctx context.Context) (auth.Credential, error) {
	arguments := m.Called(ctx)
	return arguments.Get(0).(auth.Credential), arguments.Error(1)
}
