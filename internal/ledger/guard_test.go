package ledger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/angelmondragon/convtrack-backend/internal/conversions"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClaimStore struct {
	keys   map[string]bool
	setErr error
}

func newFakeClaimStore() *fakeClaimStore {
	return &fakeClaimStore{keys: map[string]bool{}}
}

func (f *fakeClaimStore) SetNX(_ context.Context, key string, _ any, _ time.Duration) (bool, error) {
	if f.setErr != nil {
		return false, f.setErr
	}
	if f.keys[key] {
		return false, nil
	}
	f.keys[key] = true
	return true, nil
}

func (f *fakeClaimStore) ClaimKey(scope, id string) string {
	return "ct:claim:" + scope + ":" + id
}

func (f *fakeClaimStore) Del(_ context.Context, keys ...string) error {
	for _, key := range keys {
		delete(f.keys, key)
	}
	return nil
}

func TestDeliveryGuardClaimAndRelease(t *testing.T) {
	store := newFakeClaimStore()
	guard, err := NewDeliveryGuard(store, time.Minute, "conversion")
	require.NoError(t, err)
	ctx := context.Background()
	key := conversions.Key{Source: "acme", OrderID: "O1"}

	claimed, err := guard.Claim(ctx, key)
	require.NoError(t, err)
	assert.True(t, claimed)
	assert.True(t, store.keys["ct:claim:conversion:acme:O1"])

	claimed, err = guard.Claim(ctx, key)
	require.NoError(t, err)
	assert.False(t, claimed)

	require.NoError(t, guard.Release(ctx, key))
	claimed, err = guard.Claim(ctx, key)
	require.NoError(t, err)
	assert.True(t, claimed)
}

func TestDeliveryGuardErrors(t *testing.T) {
	_, err := NewDeliveryGuard(nil, time.Minute, "conversion")
	require.Error(t, err)
	_, err = NewDeliveryGuard(newFakeClaimStore(), 0, "conversion")
	require.Error(t, err)
	_, err = NewDeliveryGuard(newFakeClaimStore(), time.Minute, "")
	require.Error(t, err)

	store := newFakeClaimStore()
	store.setErr = errors.New("redis down")
	guard, err := NewDeliveryGuard(store, time.Minute, "conversion")
	require.NoError(t, err)

	_, err = guard.Claim(context.Background(), conversions.Key{Source: "acme", OrderID: "O1"})
	require.Error(t, err)
	_, err = guard.Claim(context.Background(), conversions.Key{Source: "acme"})
	require.Error(t, err)
}
