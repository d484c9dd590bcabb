package deals

import (
	"context"
	"errors"

	"github.com/angelmondragon/convtrack-backend/pkg/db/models"
	"gorm.io/gorm"
)

// Repository is the deal catalog lookup used when scoring rewards.
type Repository interface {
	GetDealByID(ctx context.Context, id string) (*models.Deal, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a deal catalog bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

// GetDealByID returns nil, nil for unknown deals.
func (r *repository) GetDealByID(ctx context.Context, id string) (*models.Deal, error) {
	if id == "" {
		return nil, nil
	}
	var deal models.Deal
	err := r.db.WithContext(ctx).Where("id = ?", id).Take(&deal).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &deal, nil
}
