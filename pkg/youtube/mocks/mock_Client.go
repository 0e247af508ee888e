// Package mocks provides test doubles for the youtube client.
package mocks

import (
	"context"

	mock "github.com/stretchr/testify/mock"
	youtube "github.com/sells-group/affiliate-scout/pkg/youtube"
)

// MockClient is a mock type for the Client interface.
type MockClient struct {
	mock.Mock
}

// Search provides a mock function with given fields: ctx, req
func (_m *MockClient) Search(ctx context.Context, req youtube.SearchRequest) ([]youtube.SearchItem, error) {
	ret := _m.Called(ctx, req)

	if len(ret) == 0 {
		panic("no return value specified for Search")
	}

	var r0 []youtube.SearchItem
	var r1 error
	if rf, ok := ret.Get(0).(func(context.Context, youtube.SearchRequest) ([]youtube.SearchItem, error)); ok {
		return rf(ctx, req)
	}
	if ret.Get(0) != nil {
		r0 = ret.Get(0).([]youtube.SearchItem)
	}
	r1 = ret.Error(1)

	return r0, r1
}

// GetChannel provides a mock function with given fields: ctx, channelID
func (_m *MockClient) GetChannel(ctx context.Context, channelID string) (*youtube.Channel, error) {
	ret := _m.Called(ctx, channelID)

	if len(ret) == 0 {
		panic("no return value specified for GetChannel")
	}

	var r0 *youtube.Channel
	var r1 error
	if rf, ok := ret.Get(0).(func(context.Context, string) (*youtube.Channel, error)); ok {
		return rf(ctx, channelID)
	}
	if ret.Get(0) != nil {
		r0 = ret.Get(0).(*youtube.Channel)
	}
	r1 = ret.Error(1)

	return r0, r1
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
