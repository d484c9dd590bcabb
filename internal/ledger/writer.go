package ledger

import (
	"context"
	"errors"

	"github.com/angelmondragon/convtrack-backend/internal/conversions"
	"github.com/angelmondragon/convtrack-backend/pkg/db/models"
	"github.com/google/uuid"
)

// Writer appends canonical events to the raw conversion log.
type Writer struct {
	repo  Repository
	newID func() uuid.UUID
}

// NewWriter wires a ledger writer over the repository.
func NewWriter(repo Repository) (*Writer, error) {
	if repo == nil {
		return nil, errors.New("ledger repository required")
	}
	return &Writer{repo: repo, newID: uuid.New}, nil
}

// Append maps event onto the raw row schema and inserts it once. inserted is
// false when the (source, order) pair was already present. Storage errors
// are returned unwrapped and not retried.
func (w *Writer) Append(ctx context.Context, event conversions.ConversionEvent) (bool, error) {
	return w.repo.InsertIfAbsent(ctx, w.toRow(event))
}

func (w *Writer) toRow(event conversions.ConversionEvent) *models.RawConversion {
	return &models.RawConversion{
		ID:           w.newID(),
		TrackingID:   event.TrackingID,
		EventID:      event.EventID,
		DealName:     event.DealName,
		SourceName:   event.SourceName,
		RewardAmount: event.RewardAmount.Round(2),
		Status:       event.Status,
		OrderID:      event.OrderID,
		OccurredAt:   event.OccurredAt.UTC(),
	}
}
