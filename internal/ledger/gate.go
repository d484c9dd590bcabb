package ledger

import (
	"context"
	"errors"
	"strings"

	"github.com/angelmondragon/convtrack-backend/internal/conversions"
	pkgerrors "github.com/angelmondragon/convtrack-backend/pkg/errors"
)

// Gate decides whether a conversion has already been recorded.
type Gate struct {
	repo Repository
}

// NewGate wires a dedup gate over the ledger repository.
func NewGate(repo Repository) (*Gate, error) {
	if repo == nil {
		return nil, errors.New("ledger repository required")
	}
	return &Gate{repo: repo}, nil
}

// IsDuplicate reports whether key is already present in the ledger.
func (g *Gate) IsDuplicate(ctx context.Context, key conversions.Key) (bool, error) {
	if strings.TrimSpace(key.Source) == "" || strings.TrimSpace(key.OrderID) == "" {
		return false, pkgerrors.New(pkgerrors.CodeValidation, "source and order id are required")
	}
	exists, err := g.repo.HasOrder(ctx, key.Source, key.OrderID)
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeStorage, err, "check ledger for order")
	}
	return exists, nil
}

// Snapshot reads the existing key set for source once, for batch runs that
// check many orders.
func (g *Gate) Snapshot(ctx context.Context, source string) (*KeySet, error) {
	ids, err := g.repo.ExistingOrderIDs(ctx, source)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeStorage, err, "read ledger order ids")
	}
	return &KeySet{source: source, ids: ids}, nil
}

// KeySet is a point-in-time copy of one source's recorded order ids. It is
// not safe for concurrent use.
type KeySet struct {
	source string
	ids    map[string]struct{}
}

func (k *KeySet) Contains(orderID string) bool {
	_, ok := k.ids[orderID]
	return ok
}

// Add marks orderID as recorded for the rest of the run.
func (k *KeySet) Add(orderID string) {
	if k.ids == nil {
		k.ids = map[string]struct{}{}
	}
	k.ids[orderID] = struct{}{}
}

func (k *KeySet) Len() int {
	return len(k.ids)
}
