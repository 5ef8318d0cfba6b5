package coordination

import (
	"context"

	"github.com/stretchr/testify/mock"
)

type Mock_Store struct {
	mock.Mock
}

func (m *Mock_Store) Close() error {
	ret := m.Called()

	var r0 error
	if rf, ok := ret.Get(0).(func() error); ok {
		r0 = rf()
	} else {
		r0 = ret.Error(0)
	}

	return r0
}

func (m *Mock_Store) Leader(ctx context.Context) (string, error) {
	ret := m.Called(ctx)

	var r0 string
	if rf, ok := ret.Get(0).(func(ctx context.Context) string); ok {
		r0 = rf(ctx)
	} else {
		r0 = ret.String(0)
	}

	var r1 error
	if rf, ok := ret.Get(1).(func(ctx context.Context) error); ok {
		r1 = rf(ctx)
	} else {
		r1 = ret.Error(1)
	}

	return r0, r1
}

func (m *Mock_Store) CreateSession(ctx context.Context, request SessionRequest) (string, error) {
	ret := m.Called(ctx, request)

	var r0 string
	if rf, ok := ret.Get(0).(func(ctx context.Context, request SessionRequest) string); ok {
		r0 = rf(ctx, request)
	} else {
		r0 = ret.String(0)
	}

	var r1 error
	if rf, ok := ret.Get(1).(func(ctx context.Context, request SessionRequest) error); ok {
		r1 = rf(ctx, request)
	} else {
		r1 = ret.Error(1)
	}

	return r0, r1
}

func (m *Mock_Store) RenewSession(ctx context.Context, id string) error {
	ret := m.Called(ctx, id)

	var r0 error
	if rf, ok := ret.Get(0).(func(ctx context.Context, id string) error); ok {
		r0 = rf(ctx, id)
	} else {
		r0 = ret.Error(0)
	}

	return r0
}

func (m *Mock_Store) DestroySession(ctx context.Context, id string) error {
	ret := m.Called(ctx, id)

	var r0 error
	if rf, ok := ret.Get(0).(func(ctx context.Context, id string) error); ok {
		r0 = rf(ctx, id)
	} else {
		r0 = ret.Error(0)
	}

	return r0
}

func (m *Mock_Store) Get(ctx context.Context, key string, options *QueryOptions) (*KVPair, *QueryMeta, error) {
	ret := m.Called(ctx, key, options)

	var r0 *KVPair
	if rf, ok := ret.Get(0).(func(ctx context.Context, key string, options *QueryOptions) *KVPair); ok {
		r0 = rf(ctx, key, options)
	} else {
		if ret.Get(0) != nil {
			r0 = ret.Get(0).(*KVPair)
		}
	}

	var r1 *QueryMeta
	if rf, ok := ret.Get(1).(func(ctx context.Context, key string, options *QueryOptions) *QueryMeta); ok {
		r1 = rf(ctx, key, options)
	} else {
		if ret.Get(1) != nil {
			r1 = ret.Get(1).(*QueryMeta)
		}
	}

	var r2 error
	if rf, ok := ret.Get(2).(func(ctx context.Context, key string, options *QueryOptions) error); ok {
		r2 = rf(ctx, key, options)
	} else {
		r2 = ret.Error(2)
	}

	return r0, r1, r2
}

func (m *Mock_Store) CompareAndSet(ctx context.Context, pair *KVPair) (bool, error) {
	ret := m.Called(ctx, pair)

	var r0 bool
	if rf, ok := ret.Get(0).(func(ctx context.Context, pair *KVPair) bool); ok {
		r0 = rf(ctx, pair)
	} else {
		r0 = ret.Get(0).(bool)
	}

	var r1 error
	if rf, ok := ret.Get(1).(func(ctx context.Context, pair *KVPair) error); ok {
		r1 = rf(ctx, pair)
	} else {
		r1 = ret.Error(1)
	}

	return r0, r1
}

func (m *Mock_Store) Acquire(ctx context.Context, pair *KVPair) (bool, error) {
	ret := m.Called(ctx, pair)

	var r0 bool
	if rf, ok := ret.Get(0).(func(ctx context.Context, pair *KVPair) bool); ok {
		r0 = rf(ctx, pair)
	} else {
		r0 = ret.Get(0).(bool)
	}

	var r1 error
	if rf, ok := ret.Get(1).(func(ctx context.Context, pair *KVPair) error); ok {
		r1 = rf(ctx, pair)
	} else {
		r1 = ret.Error(1)
	}

	return r0, r1
}

func (m *Mock_Store) Release(ctx context.Context, pair *KVPair) (bool, error) {
	ret := m.Called(ctx, pair)

	var r0 bool
	if rf, ok := ret.Get(0).(func(ctx context.Context, pair *KVPair) bool); ok {
		r0 = rf(ctx, pair)
	} else {
		r0 = ret.Get(0).(bool)
	}

	var r1 error
	if rf, ok := ret.Get(1).(func(ctx context.Context, pair *KVPair) error); ok {
		r1 = rf(ctx, pair)
	} else {
		r1 = ret.Error(1)
	}

	return r0, r1
}

func (m *Mock_Store) PassCheck(ctx context.Context, checkID string, note string) error {
	ret := m.Called(ctx, checkID, note)

	var r0 error
	if rf, ok := ret.Get(0).(func(ctx context.Context, checkID string, note string) error); ok {
		r0 = rf(ctx, checkID, note)
	} else {
		r0 = ret.Error(0)
	}

	return r0
}

func (m *Mock_Store) RegisterService(ctx context.Context, registration ServiceRegistration) error {
	ret := m.Called(ctx, registration)

	var r0 error
	if rf, ok := ret.Get(0).(func(ctx context.Context, registration ServiceRegistration) error); ok {
		r0 = rf(ctx, registration)
	} else {
		r0 = ret.Error(0)
	}

	return r0
}

func (m *Mock_Store) HealthyService(ctx context.Context, service string, options *QueryOptions) ([]ServiceEntry, *QueryMeta, error) {
	ret := m.Called(ctx, service, options)

	var r0 []ServiceEntry
	if rf, ok := ret.Get(0).(func(ctx context.Context, service string, options *QueryOptions) []ServiceEntry); ok {
		r0 = rf(ctx, service, options)
	} else {
		if ret.Get(0) != nil {
			r0 = ret.Get(0).([]ServiceEntry)
		}
	}

	var r1 *QueryMeta
	if rf, ok := ret.Get(1).(func(ctx context.Context, service string, options *QueryOptions) *QueryMeta); ok {
		r1 = rf(ctx, service, options)
	} else {
		if ret.Get(1) != nil {
			r1 = ret.Get(1).(*QueryMeta)
		}
	}

	var r2 error
	if rf, ok := ret.Get(2).(func(ctx context.Context, service string, options *QueryOptions) error); ok {
		r2 = rf(ctx, service, options)
	} else {
		r2 = ret.Error(2)
	}

	return r0, r1, r2
}
