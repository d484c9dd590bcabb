package ledger

import (
	"context"
	"errors"

	"github.com/angelmondragon/convtrack-backend/pkg/db"
	"github.com/angelmondragon/convtrack-backend/pkg/db/models"
	"github.com/angelmondragon/convtrack-backend/pkg/enums"
	"github.com/angelmondragon/convtrack-backend/pkg/pagination"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository manages persistence for raw conversion rows.
type Repository interface {
	InsertIfAbsent(ctx context.Context, row *models.RawConversion) (bool, error)
	HasOrder(ctx context.Context, source, orderID string) (bool, error)
	ExistingOrderIDs(ctx context.Context, source string) (map[string]struct{}, error)
	Get(ctx context.Context, source, orderID string) (*models.RawConversion, error)
	List(ctx context.Context, params listParams) ([]models.RawConversion, *pagination.Cursor, error)
}

const (
	uniqueKey        = "raw_conversions_source_order_key"
	// SQLite names the columns rather than the constraint.
	uniqueKeyColumns = "raw_conversions.source_name, raw_conversions.order_id"
)

type repository struct {
	db *gorm.DB
}

// NewRepository returns a ledger repository bound to the provided database.
func NewRepository(conn *gorm.DB) Repository {
	return &repository{db: conn}
}

type listParams struct {
	Source string
	Status enums.ConversionStatus
	Limit  int
	Cursor *pagination.Cursor
}

// InsertIfAbsent appends row unless (source_name, order_id) already exists.
// It reports false when the unique key suppressed the insert.
func (r *repository) InsertIfAbsent(ctx context.Context, row *models.RawConversion) (bool, error) {
	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "source_name"}, {Name: "order_id"}},
			DoNothing: true,
		}).
		Create(row)
	if result.Error != nil {
		if db.IsUniqueViolation(result.Error, uniqueKey) || db.IsUniqueViolation(result.Error, uniqueKeyColumns) {
			return false, nil
		}
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repository) HasOrder(ctx context.Context, source, orderID string) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&models.RawConversion{}).
		Where("source_name = ? AND order_id = ?", source, orderID).
		Limit(1).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// ExistingOrderIDs reads the full order-id column for source.
func (r *repository) ExistingOrderIDs(ctx context.Context, source string) (map[string]struct{}, error) {
	var ids []string
	if err := r.db.WithContext(ctx).
		Model(&models.RawConversion{}).
		Where("source_name = ?", source).
		Pluck("order_id", &ids).Error; err != nil {
		return nil, err
	}
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set, nil
}

func (r *repository) Get(ctx context.Context, source, orderID string) (*models.RawConversion, error) {
	var row models.RawConversion
	err := r.db.WithContext(ctx).
		Where("source_name = ? AND order_id = ?", source, orderID).
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (r *repository) List(ctx context.Context, params listParams) ([]models.RawConversion, *pagination.Cursor, error) {
	query := r.db.WithContext(ctx).Model(&models.RawConversion{})
	if params.Source != "" {
		query = query.Where("source_name = ?", params.Source)
	}
	if params.Status != "" {
		query = query.Where("status = ?", params.Status)
	}
	if params.Cursor != nil {
		query = query.Where("(occurred_at, id) < (?, ?)", params.Cursor.At, params.Cursor.ID)
	}

	var rows []models.RawConversion
	if err := query.Order("occurred_at DESC, id DESC").Limit(pagination.LimitWithBuffer(params.Limit)).Find(&rows).Error; err != nil {
		return nil, nil, err
	}

	page, last := pagination.Split(rows, params.Limit)
	if last == nil {
		return page, nil, nil
	}
	return page, &pagination.Cursor{At: last.OccurredAt, ID: last.ID}, nil
}
