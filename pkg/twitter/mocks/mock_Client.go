// Package mocks provides test doubles for the twitter client.
package mocks

import (
	"context"

	mock "github.com/stretchr/testify/mock"
	twitter "github.com/sells-group/affiliate-scout/pkg/twitter"
)

// MockClient is a mock type for the Client interface.
type MockClient struct {
	mock.Mock
}

// SearchRecent provides a mock function with given fields: ctx, query, maxResults
func (_m *MockClient) SearchRecent(ctx context.Context, query string, maxResults int) ([]twitter.User, error) {
	ret := _m.Called(ctx, query, maxResults)

	if len(ret) == 0 {
		panic("no return value specified for SearchRecent")
	}

	var r0 []twitter.User
	if rf, ok := ret.Get(0).(func(context.Context, string, int) ([]twitter.User, error)); ok {
		return rf(ctx, query, maxResults)
	}
	if ret.Get(0) != nil {
		r0 = ret.Get(0).([]twitter.User)
	}

	return r0, ret.Error(1)
}

// GetUser provides a mock function with given fields: ctx, id
func (_m *MockClient) GetUser(ctx context.Context, id string) (*twitter.User, error) {
	ret := _m.Called(ctx, id)

	if len(ret) == 0 {
		panic("no return value specified for GetUser")
	}

	var r0 *twitter.User
	if rf, ok := ret.Get(0).(func(context.Context, string) (*twitter.User, error)); ok {
		return rf(ctx, id)
	}
	if ret.Get(0) != nil {
		r0 = ret.Get(0).(*twitter.User)
	}

	return r0, ret.Error(1)
}

// NewMockClient creates a new instance of MockClient and registers cleanup assertions.
func NewMockClient(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockClient {
	m := &MockClient{}
	m.Mock.Test(t)

	t.Cleanup(func() { m.AssertExpectations(t) })

	return m
}
