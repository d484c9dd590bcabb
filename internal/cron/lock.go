package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/convtrack-backend/pkg/instance"
)

// Lock elects the single worker instance that runs a cycle.
type Lock interface {
	Acquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

type leaseStore interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	DelIfValue(ctx context.Context, key, value string) (bool, error)
}

// RedisLock is a lease on one Redis key. The lease expires on its own after
// ttl, so a worker that dies mid-cycle blocks others for at most ttl.
type RedisLock struct {
	store leaseStore
	name  string
	lease time.Duration
	token string
}

func NewRedisLock(store leaseStore, name string, lease time.Duration) (*RedisLock, error) {
	switch {
	case store == nil:
		return nil, errors.New("redis client required for lock")
	case name == "":
		return nil, errors.New("lock key is required")
	case lease <= 0:
		return nil, errors.New("lock ttl must be positive")
	}
	return &RedisLock{store: store, name: name, lease: lease}, nil
}

// Acquire takes the lease with a fresh token naming this instance.
func (l *RedisLock) Acquire(ctx context.Context) (bool, error) {
	token := fmt.Sprintf("%s:%s", instance.GetID(), uuid.NewString())
	won, err := l.store.SetNX(ctx, l.name, token, l.lease)
	if err != nil {
		return false, fmt.Errorf("acquire %s: %w", l.name, err)
	}
	if won {
		l.token = token
	}
	return won, nil
}

// Release gives the lease back if the key still carries our token. A lease
// that lapsed and was taken by another instance is left untouched.
func (l *RedisLock) Release(ctx context.Context) error {
	token := l.token
	if token == "" {
		return nil
	}
	l.token = ""
	if _, err := l.store.DelIfValue(ctx, l.name, token); err != nil {
		return fmt.Errorf("release %s: %w", l.name, err)
	}
	return nil
}
