package repo

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/Skotchmaster/calculator/internal/models"
)

type TypeStats struct {
	Type    string  `json:"type"`
	Count   int64   `json:"count"`
	Average float64 `json:"average"`
}

func (r *GormRepo) CreateCalculation(ctx context.Context, c *models.Calculation) error {
	if err := r.DB.WithContext(ctx).Create(c).Error; err != nil {
		return fmt.Errorf("create calculation: %w", translate(err))
	}
	return nil
}

// CalculationByID only returns rows owned by owner.
func (r *GormRepo) CalculationByID(ctx context.Context, owner, id uuid.UUID) (*models.Calculation, error) {
	var calc models.Calculation
	if err := r.DB.WithContext(ctx).
		Where("id = ? AND user_id = ?", id, owner).
		First(&calc).Error; err != nil {
		return nil, translate(err)
	}
	return &calc, nil
}

func (r *GormRepo) ListCalculations(ctx context.Context, owner uuid.UUID, offset, limit int) (int64, []models.Calculation, error) {
	var total int64
	if err := r.DB.WithContext(ctx).Model(&models.Calculation{}).
		Where("user_id = ?", owner).
		Count(&total).Error; err != nil {
		return 0, nil, err
	}

	items := make([]models.Calculation, 0, limit)
	if err := r.DB.WithContext(ctx).
		Where("user_id = ?", owner).
		Order("created_at DESC, id ASC").
		Offset(offset).
		Limit(limit).
		Find(&items).Error; err != nil {
		return 0, nil, err
	}
	return total, items, nil
}

// UpdateCalculation writes inputs, result and updated_at. Type and owner are
// never touched.
func (r *GormRepo) UpdateCalculation(ctx context.Context, c *models.Calculation) error {
	res := r.DB.WithContext(ctx).Model(&models.Calculation{}).
		Where("id = ? AND user_id = ?", c.ID, c.UserID).
		Updates(map[string]any{
			"inputs":     c.Inputs,
			"result":     c.Result,
			"updated_at": c.UpdatedAt,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *GormRepo) DeleteCalculation(ctx context.Context, owner, id uuid.UUID) error {
	res := r.DB.WithContext(ctx).
		Where("id = ? AND user_id = ?", id, owner).
		Delete(&models.Calculation{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *GormRepo) CalculationStats(ctx context.Context, owner uuid.UUID) ([]TypeStats, error) {
	var out []TypeStats
	if err := r.DB.WithContext(ctx).Model(&models.Calculation{}).
		Select("type, COUNT(*) AS count, AVG(result) AS average").
		Where("user_id = ?", owner).
		Group("type").
		Order("type ASC").
		Scan(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}
