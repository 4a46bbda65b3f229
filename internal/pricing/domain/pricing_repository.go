package domain

import (
	"context"
	"time"
)

// PricingRepository 定价历史仓储接口
type PricingRepository interface {
	// WithTx 在事务中执行，事务经 context 传递
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error

	SavePricingResult(ctx context.Context, result *PricingResult) error
	// GetLatestPricingResult 不存在时返回 ErrNotFound
	GetLatestPricingResult(ctx context.Context, symbol string) (*PricingResult, error)
	GetPricingResultHistory(ctx context.Context, symbol string, limit int) ([]*PricingResult, error)

	SaveImpliedVolRecord(ctx context.Context, record *ImpliedVolRecord) error
	GetImpliedVolHistory(ctx context.Context, symbol string, limit int) ([]*ImpliedVolRecord, error)

	// StaleSymbols 最新定价结果早于 cutoff 的标的，清理后这些标的不再有定价结果
	StaleSymbols(ctx context.Context, cutoff time.Time) ([]string, error)
	// CleanupBefore 删除 cutoff 之前的记录，返回删除行数
	CleanupBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// PricingCache 最新定价结果缓存，未命中返回 nil, nil
type PricingCache interface {
	GetLatestPricingResult(ctx context.Context, symbol string) (*PricingResult, error)
	SetLatestPricingResult(ctx context.Context, result *PricingResult) error
	Invalidate(ctx context.Context, symbol string) error
}
