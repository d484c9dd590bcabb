package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/angelmondragon/convtrack-backend/internal/conversions"
	"github.com/angelmondragon/convtrack-backend/pkg/redis"
)

// DeliveryGuard serializes concurrent deliveries of the same conversion with
// a short-lived Redis claim.
type DeliveryGuard struct {
	store redis.ClaimStore
	ttl   time.Duration
	scope string
}

func NewDeliveryGuard(store redis.ClaimStore, ttl time.Duration, scope string) (*DeliveryGuard, error) {
	if store == nil {
		return nil, errors.New("claim store is required")
	}
	if ttl <= 0 {
		return nil, errors.New("ttl must be positive")
	}
	if scope == "" {
		return nil, errors.New("scope is required")
	}
	return &DeliveryGuard{
		store: store,
		ttl:   ttl,
		scope: scope,
	}, nil
}

// Claim returns true when the caller now owns the delivery of key and false
// when another delivery already holds it.
func (g *DeliveryGuard) Claim(ctx context.Context, key conversions.Key) (bool, error) {
	if key.Source == "" || key.OrderID == "" {
		return false, errors.New("source and order id are required")
	}
	set, err := g.store.SetNX(ctx, g.key(key), "1", g.ttl)
	if err != nil {
		return false, fmt.Errorf("set delivery claim: %w", err)
	}
	return set, nil
}

// Release drops the claim so a retried delivery can proceed.
func (g *DeliveryGuard) Release(ctx context.Context, key conversions.Key) error {
	if key.Source == "" || key.OrderID == "" {
		return errors.New("source and order id are required")
	}
	return g.store.Del(ctx, g.key(key))
}

func (g *DeliveryGuard) key(key conversions.Key) string {
	return g.store.ClaimKey(g.scope, key.Source+":"+key.OrderID)
}
