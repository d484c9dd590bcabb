package clicks

import (
	"context"
	"errors"
	"time"

	"github.com/angelmondragon/convtrack-backend/pkg/db/models"
	"gorm.io/gorm"
)

// Repository reads the click log written by the click-tracking service.
type Repository interface {
	FindByEventID(ctx context.Context, eventID string) (*models.ClickEvent, error)
	ListBetween(ctx context.Context, from, to time.Time) ([]models.ClickEvent, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a click repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

// FindByEventID returns nil when no click carries eventID.
func (r *repository) FindByEventID(ctx context.Context, eventID string) (*models.ClickEvent, error) {
	var click models.ClickEvent
	err := r.db.WithContext(ctx).
		Where("event_id = ?", eventID).
		Take(&click).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &click, nil
}

// ListBetween returns clicks with from <= clicked_at <= to in log order.
func (r *repository) ListBetween(ctx context.Context, from, to time.Time) ([]models.ClickEvent, error) {
	var rows []models.ClickEvent
	if err := r.db.WithContext(ctx).
		Where("clicked_at >= ? AND clicked_at <= ?", from.UTC(), to.UTC()).
		Order("id ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}
