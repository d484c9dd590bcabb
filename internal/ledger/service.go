package ledger

import (
	"context"
	"time"

	"github.com/angelmondragon/convtrack-backend/internal/conversions"
	"github.com/angelmondragon/convtrack-backend/pkg/db/models"
	"github.com/angelmondragon/convtrack-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/convtrack-backend/pkg/errors"
	"github.com/angelmondragon/convtrack-backend/pkg/pagination"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Service exposes read access to recorded conversions.
type Service interface {
	Get(ctx context.Context, key conversions.Key) (*Conversion, error)
	List(ctx context.Context, params ListParams) (*ListResult, error)
}

type service struct {
	repo Repository
}

// Conversion is the API view of a raw ledger row.
type Conversion struct {
	ID           uuid.UUID              `json:"id"`
	SourceName   string                 `json:"source_name"`
	OrderID      string                 `json:"order_id"`
	TrackingID   string                 `json:"tracking_id"`
	EventID      string                 `json:"event_id"`
	DealName     string                 `json:"deal_name"`
	RewardAmount decimal.Decimal        `json:"reward_amount"`
	Status       enums.ConversionStatus `json:"status"`
	OccurredAt   time.Time              `json:"occurred_at"`
	CreatedAt    time.Time              `json:"created_at"`
}

// ListParams filters and pages the ledger.
type ListParams struct {
	Source string
	Status string
	pagination.Params
}

// ListResult wraps one page of conversions and the cursor for the next.
type ListResult struct {
	Items  []Conversion `json:"items"`
	Cursor string       `json:"cursor"`
}

// NewService wires the read-side ledger service.
func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeConfiguration, "ledger repository required")
	}
	return &service{repo: repo}, nil
}

func (s *service) Get(ctx context.Context, key conversions.Key) (*Conversion, error) {
	source := conversions.NormalizeSource(key.Source)
	if source == "" || key.OrderID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "source and order id are required")
	}
	row, err := s.repo.Get(ctx, source, key.OrderID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeStorage, err, "get conversion")
	}
	if row == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "conversion not found")
	}
	out := fromRow(*row)
	return &out, nil
}

func (s *service) List(ctx context.Context, params ListParams) (*ListResult, error) {
	query := listParams{
		Source: conversions.NormalizeSource(params.Source),
		Limit:  params.Limit,
	}
	if params.Status != "" {
		status, err := enums.ParseConversionStatus(params.Status)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status filter")
		}
		query.Status = status
	}
	if params.Cursor != "" {
		cursor, err := pagination.ParseCursor(params.Cursor)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
		}
		query.Cursor = cursor
	}

	rows, next, err := s.repo.List(ctx, query)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeStorage, err, "list conversions")
	}

	items := make([]Conversion, 0, len(rows))
	for _, row := range rows {
		items = append(items, fromRow(row))
	}
	cursor := ""
	if next != nil {
		cursor = pagination.EncodeCursor(*next)
	}
	return &ListResult{Items: items, Cursor: cursor}, nil
}

func fromRow(row models.RawConversion) Conversion {
	return Conversion{
		ID:           row.ID,
		SourceName:   row.SourceName,
		OrderID:      row.OrderID,
		TrackingID:   row.TrackingID,
		EventID:      row.EventID,
		DealName:     row.DealName,
		RewardAmount: row.RewardAmount,
		Status:       row.Status,
		OccurredAt:   row.OccurredAt.UTC(),
		CreatedAt:    row.CreatedAt.UTC(),
	}
}
