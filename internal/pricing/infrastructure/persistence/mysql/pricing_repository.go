// Package mysql 定价结果的 GORM 仓储，方言由 pkg/db 决定（MySQL 或 PostgreSQL）
package mysql

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/wyfcoding/optionpricing/internal/pricing/domain"
	"github.com/wyfcoding/optionpricing/pkg/db"
)

type pricingRepository struct {
	db *gorm.DB
}

// NewPricingRepository 创建并返回一个新的 pricingRepository 实例。
func NewPricingRepository(gdb *gorm.DB) domain.PricingRepository {
	return &pricingRepository{db: gdb}
}

// Migrate 迁移定价结果表
func Migrate(gdb *gorm.DB) error {
	return gdb.AutoMigrate(&PricingResultModel{})
}

func (r *pricingRepository) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return db.WithTx(ctx, r.db, fn)
}

func (r *pricingRepository) SavePricingResult(ctx context.Context, res *domain.PricingResult) error {
	model := toPricingResultModel(res)
	if model == nil {
		return nil
	}
	conn := db.Conn(ctx, r.db)
	if model.ID == 0 {
		if err := conn.Create(model).Error; err != nil {
			return err
		}
		res.ID = model.ID
		res.CreatedAt = model.CreatedAt
		res.UpdatedAt = model.UpdatedAt
		return nil
	}
	return conn.Model(&PricingResultModel{}).
		Where("id = ?", model.ID).
		Updates(map[string]any{
			"option_price":     model.OptionPrice,
			"underlying_price": model.UnderlyingPrice,
			"std_error":        model.StdError,
			"delta":            model.Delta,
			"gamma":            model.Gamma,
			"theta":            model.Theta,
			"vega":             model.Vega,
			"rho":              model.Rho,
			"calculated_at":    model.CalculatedAt,
			"pricing_model":    model.PricingModel,
			"updated_at":       time.Now(),
		}).Error
}

func (r *pricingRepository) GetLatestPricingResult(ctx context.Context, symbol string) (*domain.PricingResult, error) {
	var m PricingResultModel
	if err := latestQuery(db.Conn(ctx, r.db), symbol).First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return toPricingResult(&m), nil
}

func (r *pricingRepository) GetPricingResultHistory(ctx context.Context, symbol string, offset, limit int) ([]*domain.PricingResult, error) {
	var models []PricingResultModel
	if err := historyQuery(db.Conn(ctx, r.db), symbol, offset, limit).Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]*domain.PricingResult, len(models))
	for i := range models {
		res[i] = toPricingResult(&models[i])
	}
	return res, nil
}

func latestQuery(tx *gorm.DB, symbol string) *gorm.DB {
	return tx.Where("symbol = ?", symbol).Order("calculated_at desc").Order("id desc")
}

func historyQuery(tx *gorm.DB, symbol string, offset, limit int) *gorm.DB {
	return latestQuery(tx, symbol).Offset(offset).Limit(limit)
}
