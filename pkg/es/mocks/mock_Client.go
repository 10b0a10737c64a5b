// Package mocks provides test doubles for the es client.
package mocks

import (
	"context"

	es "github.com/sells-group/factsearch/pkg/es"
	mock "github.com/stretchr/testify/mock"
)

// MockClient is a mock type for the Client interface.
type MockClient struct {
	mock.Mock
}

// Search provides a mock function with given fields: ctx, index, body
func (_m *MockClient) Search(ctx context.Context, index string, body any) (*es.SearchResponse, error) {
	ret := _m.Called(ctx, index, body)

	if len(ret) == 0 {
		panic("no return value specified for Search")
	}

	var r0 *es.SearchResponse
	if rf, ok := ret.Get(0).(func(context.Context, string, any) *es.SearchResponse); ok {
		r0 = rf(ctx, index, body)
	} else if ret.Get(0) != nil {
		r0 = ret.Get(0).(*es.SearchResponse)
	}

	return r0, ret.Error(1)
}

// StartScroll provides a mock function with given fields: ctx, index, body, keepAlive
func (_m *MockClient) StartScroll(ctx context.Context, index string, body any, keepAlive string) (*es.SearchResponse, error) {
	ret := _m.Called(ctx, index, body, keepAlive)

	if len(ret) == 0 {
		panic("no return value specified for StartScroll")
	}

	var r0 *es.SearchResponse
	if rf, ok := ret.Get(0).(func(context.Context, string, any, string) *es.SearchResponse); ok {
		r0 = rf(ctx, index, body, keepAlive)
	} else if ret.Get(0) != nil {
		r0 = ret.Get(0).(*es.SearchResponse)
	}

	return r0, ret.Error(1)
}

// Scroll provides a mock function with given fields: ctx, scrollID, keepAlive
func (_m *MockClient) Scroll(ctx context.Context, scrollID string, keepAlive string) (*es.SearchResponse, error) {
	ret := _m.Called(ctx, scrollID, keepAlive)

	if len(ret) == 0 {
		panic("no return value specified for Scroll")
	}

	var r0 *es.SearchResponse
	if rf, ok := ret.Get(0).(func(context.Context, string, string) *es.SearchResponse); ok {
		r0 = rf(ctx, scrollID, keepAlive)
	} else if ret.Get(0) != nil {
		r0 = ret.Get(0).(*es.SearchResponse)
	}

	return r0, ret.Error(1)
}

// ClearScroll provides a mock function with given fields: ctx, scrollIDs
func (_m *MockClient) ClearScroll(ctx context.Context, scrollIDs ...string) error {
	ret := _m.Called(ctx, scrollIDs)

	if len(ret) == 0 {
		panic("no return value specified for ClearScroll")
	}

	return ret.Error(0)
}

// Count provides a mock function with given fields: ctx, index, body
func (_m *MockClient) Count(ctx context.Context, index string, body any) (int64, error) {
	ret := _m.Called(ctx, index, body)

	if len(ret) == 0 {
		panic("no return value specified for Count")
	}

	var r0 int64
	if rf, ok := ret.Get(0).(func(context.Context, string, any) int64); ok {
		r0 = rf(ctx, index, body)
	} else {
		r0 = ret.Get(0).(int64)
	}

	return r0, ret.Error(1)
}

// Bulk provides a mock function with given fields: ctx, actions
func (_m *MockClient) Bulk(ctx context.Context, actions []es.BulkAction) (*es.BulkResponse, error) {
	ret := _m.Called(ctx, actions)

	if len(ret) == 0 {
		panic("no return value specified for Bulk")
	}

	var r0 *es.BulkResponse
	if rf, ok := ret.Get(0).(func(context.Context, []es.BulkAction) *es.BulkResponse); ok {
		r0 = rf(ctx, actions)
	} else if ret.Get(0) != nil {
		r0 = ret.Get(0).(*es.BulkResponse)
	}

	return r0, ret.Error(1)
}

// Update provides a mock function with given fields: ctx, index, id, doc
func (_m *MockClient) Update(ctx context.Context, index string, id string, doc any) error {
	ret := _m.Called(ctx, index, id, doc)

	if len(ret) == 0 {
		panic("no return value specified for Update")
	}

	return ret.Error(0)
}

// NewMockClient creates a new instance of MockClient. It also registers a
// testing interface on the mock and a cleanup function to assert the mocks
// expectations.
func NewMockClient(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockClient {
	m := &MockClient{}
	m.Mock.Test(t)

	t.Cleanup(func() { m.AssertExpectations(t) })

	return m
}
