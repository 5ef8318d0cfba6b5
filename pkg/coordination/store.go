package coordination

import (
	"context"
	"io"
)

type Store interface {
	io.Closer

	Leader(ctx context.Context) (string, error)

	CreateSession(ctx context.Context, request SessionRequest) (string, error)
	RenewSession(ctx context.Context, id string) error
	DestroySession(ctx context.Context, id string) error

	Get(ctx context.Context, key string, options *QueryOptions) (*KVPair, *QueryMeta, error)
	// CompareAndSet writes pair only if the key's index still equals
	// pair.ModifyIndex; a ModifyIndex of 0 only creates a missing key.
	// A lost race is reported as false, not as an error.
	CompareAndSet(ctx context.Context, pair *KVPair) (bool, error)
	Acquire(ctx context.Context, pair *KVPair) (bool, error)
	Release(ctx context.Context, pair *KVPair) (bool, error)

	PassCheck(ctx context.Context, checkID string, note string) error
	RegisterService(ctx context.Context, registration ServiceRegistration) error
	HealthyService(ctx context.Context, service string, options *QueryOptions) ([]ServiceEntry, *QueryMeta, error)
}
