// Package mocks provides test doubles for the stripe client.
package mocks

import (
	"context"

	mock "github.com/stretchr/testify/mock"
	stripe "github.com/sells-group/affiliate-scout/pkg/stripe"
)

// MockClient is a mock type for the Client interface.
type MockClient struct {
	mock.Mock
}

// SearchCustomers provides a mock function with given fields: ctx, keyword, limit
func (_m *MockClient) SearchCustomers(ctx context.Context, keyword string, limit int) ([]stripe.Customer, error) {
	ret := _m.Called(ctx, keyword, limit)

	if len(ret) == 0 {
		panic("no return value specified for SearchCustomers")
	}

	var r0 []stripe.Customer
	if rf, ok := ret.Get(0).(func(context.Context, string, int) ([]stripe.Customer, error)); ok {
		return rf(ctx, keyword, limit)
	}
	if ret.Get(0) != nil {
		r0 = ret.Get(0).([]stripe.Customer)
	}

	return r0, ret.Error(1)
}

// ListCharges provides a mock function with given fields: ctx, customerID
func (_m *MockClient) ListCharges(ctx context.Context, customerID string) ([]stripe.Charge, error) {
	ret := _m.Called(ctx, customerID)

	if len(ret) == 0 {
		panic("no return value specified for ListCharges")
	}

	var r0 []stripe.Charge
	if rf, ok := ret.Get(0).(func(context.Context, string) ([]stripe.Charge, error)); ok {
		return rf(ctx, customerID)
	}
	if ret.Get(0) != nil {
		r0 = ret.Get(0).([]stripe.Charge)
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
