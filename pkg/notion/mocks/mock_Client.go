// Package mocks provides test doubles for the notion client.
package mocks

import (
	"context"

	notionapi "github.com/jomei/notionapi"
	mock "github.com/stretchr/testify/mock"
)

// MockClient is a mock type for the Client interface.
type MockClient struct {
	mock.Mock
}

// CreatePage provides a mock function with given fields: ctx, req
func (_m *MockClient) CreatePage(ctx context.Context, req *notionapi.PageCreateRequest) (*notionapi.Page, error) {
	ret := _m.Called(ctx, req)

	if len(ret) == 0 {
		panic("no return value specified for CreatePage")
	}

	var r0 *notionapi.Page
	var r1 error
	if rf, ok := ret.Get(0).(func(context.Context, *notionapi.PageCreateRequest) (*notionapi.Page, error)); ok {
		return rf(ctx, req)
	}
	if rf, ok := ret.Get(0).(func(context.Context, *notionapi.PageCreateRequest) *notionapi.Page); ok {
		r0 = rf(ctx, req)
	} else {
		if ret.Get(0) != nil {
			r0 = ret.Get(0).(*notionapi.Page)
		}
	}

	if rf, ok := ret.Get(1).(func(context.Context, *notionapi.PageCreateRequest) error); ok {
		r1 = rf(ctx, req)
	} else {
		r1 = ret.Error(1)
	}

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
