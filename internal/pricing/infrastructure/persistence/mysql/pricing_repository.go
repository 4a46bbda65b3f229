package mysql

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/wyfcoding/gbsmpricing/internal/pricing/domain"
	"github.com/wyfcoding/gbsmpricing/pkg/contextx"
	"gorm.io/gorm"
)

type pricingRepository struct {
	db *gorm.DB
}

// NewPricingRepository 创建并返回一个新的 pricingRepository 实例。
// 适用于任意 gorm 方言（mysql、postgres、sqlite）。
func NewPricingRepository(db *gorm.DB) domain.PricingRepository {
	return &pricingRepository{db: db}
}

// AutoMigrate 迁移定价相关表结构
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(Models()...)
}

func (r *pricingRepository) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(contextx.WithTx(ctx, tx))
	})
}

// --- PricingResult ---

func (r *pricingRepository) SavePricingResult(ctx context.Context, res *domain.PricingResult) error {
	model := toPricingResultModel(res)
	if model == nil {
		return nil
	}
	if err := r.getDB(ctx).Create(model).Error; err != nil {
		return fmt.Errorf("save pricing result: %w", err)
	}
	res.ID = model.ID
	res.CreatedAt = model.CreatedAt
	res.UpdatedAt = model.UpdatedAt
	return nil
}

func (r *pricingRepository) GetLatestPricingResult(ctx context.Context, symbol string) (*domain.PricingResult, error) {
	var m PricingResultModel
	err := r.getDB(ctx).
		Where("symbol = ?", symbol).
		Order("calculated_at desc").
		Order("id desc").
		First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: pricing result for %s", domain.ErrNotFound, symbol)
	}
	if err != nil {
		return nil, err
	}
	return toPricingResult(&m), nil
}

func (r *pricingRepository) GetPricingResultHistory(ctx context.Context, symbol string, limit int) ([]*domain.PricingResult, error) {
	var models []PricingResultModel
	if err := r.getDB(ctx).
		Where("symbol = ?", symbol).
		Order("calculated_at desc").
		Order("id desc").
		Limit(limit).
		Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]*domain.PricingResult, len(models))
	for i := range models {
		res[i] = toPricingResult(&models[i])
	}
	return res, nil
}

// --- ImpliedVolRecord ---

func (r *pricingRepository) SaveImpliedVolRecord(ctx context.Context, rec *domain.ImpliedVolRecord) error {
	model := toImpliedVolRecordModel(rec)
	if model == nil {
		return nil
	}
	if err := r.getDB(ctx).Create(model).Error; err != nil {
		return fmt.Errorf("save implied volatility record: %w", err)
	}
	rec.ID = model.ID
	rec.CreatedAt = model.CreatedAt
	return nil
}

func (r *pricingRepository) GetImpliedVolHistory(ctx context.Context, symbol string, limit int) ([]*domain.ImpliedVolRecord, error) {
	var models []ImpliedVolRecordModel
	if err := r.getDB(ctx).
		Where("symbol = ?", symbol).
		Order("calculated_at desc").
		Order("id desc").
		Limit(limit).
		Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]*domain.ImpliedVolRecord, len(models))
	for i := range models {
		res[i] = toImpliedVolRecord(&models[i])
	}
	return res, nil
}

// StaleSymbols 按标的取最新计算时间，返回早于 cutoff 的标的
func (r *pricingRepository) StaleSymbols(ctx context.Context, cutoff time.Time) ([]string, error) {
	var symbols []string
	err := r.getDB(ctx).Model(&PricingResultModel{}).
		Group("symbol").
		Having("MAX(calculated_at) < ?", cutoff.UnixMilli()).
		Order("symbol").
		Pluck("symbol", &symbols).Error
	if err != nil {
		return nil, err
	}
	return symbols, nil
}

// CleanupBefore 维护任务，删除两张表中 cutoff 之前计算的记录
func (r *pricingRepository) CleanupBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	var total int64
	err := r.WithTx(ctx, func(txCtx context.Context) error {
		db := r.getDB(txCtx)
		res := db.Where("calculated_at < ?", cutoff.UnixMilli()).Delete(&PricingResultModel{})
		if res.Error != nil {
			return res.Error
		}
		total += res.RowsAffected

		res = db.Where("calculated_at < ?", cutoff.UnixMilli()).Delete(&ImpliedVolRecordModel{})
		if res.Error != nil {
			return res.Error
		}
		total += res.RowsAffected
		return nil
	})
	if err != nil {
		return 0, err
	}
	return total, nil
}

func (r *pricingRepository) getDB(ctx context.Context) *gorm.DB {
	if tx, ok := contextx.GetTx(ctx).(*gorm.DB); ok {
		return tx.WithContext(ctx)
	}
	return r.db.WithContext(ctx)
}
