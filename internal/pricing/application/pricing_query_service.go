package application

import (
	"context"
	"log/slog"
	"time"

	"github.com/wyfcoding/gbsmpricing/internal/pricing/domain"
	"github.com/wyfcoding/gbsmpricing/pkg/logger"
	"github.com/wyfcoding/gbsmpricing/pkg/metrics"
)

// PricingQueryService 处理所有定价相关的查询操作（Queries）。
type PricingQueryService struct {
	repo         domain.PricingRepository
	cache        domain.PricingCache
	metrics      *metrics.Metrics
	logger       *slog.Logger
	defaultLimit int
	maxLimit     int
	now          func() time.Time
}

// HistoryLimits 历史查询条数限制
type HistoryLimits struct {
	Default int
	Max     int
}

// NewPricingQueryService 构造函数，cache 可为 nil
func NewPricingQueryService(repo domain.PricingRepository, cache domain.PricingCache, m *metrics.Metrics, limits HistoryLimits) *PricingQueryService {
	if limits.Default <= 0 {
		limits.Default = 20
	}
	if limits.Max < limits.Default {
		limits.Max = limits.Default
	}
	return &PricingQueryService{
		repo:         repo,
		cache:        cache,
		metrics:      m,
		logger:       logger.WithModule("pricing.query"),
		defaultLimit: limits.Default,
		maxLimit:     limits.Max,
		now:          time.Now,
	}
}

// GetVega 计算 Vega，不落库
func (s *PricingQueryService) GetVega(ctx context.Context, q VegaQuery) (*VegaDTO, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	_, market, rates, err := q.resolve(q.Volatility, s.now())
	if err != nil {
		return nil, err
	}

	start := time.Now()
	vega, err := domain.Vega(market, rates)
	s.metrics.RecordCalculation("vega", "", err, time.Since(start))
	if err != nil {
		return nil, err
	}
	return &VegaDTO{Vega: vega, TimeToExpiry: market.TimeToExpiry}, nil
}

// GetGreeks 计算希腊字母
func (s *PricingQueryService) GetGreeks(ctx context.Context, q GreeksQuery) (*GreeksDTO, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	optionType, market, rates, err := q.resolve(q.Volatility, s.now())
	if err != nil {
		return nil, err
	}

	start := time.Now()
	greeks, err := domain.CalculateGreeks(optionType, market, rates)
	s.metrics.RecordCalculation("greeks", optionType.String(), err, time.Since(start))
	if err != nil {
		return nil, err
	}
	return &GreeksDTO{OptionType: optionType, TimeToExpiry: market.TimeToExpiry, Greeks: greeks}, nil
}

// GetLatestResult 获取最新定价结果，先查缓存，未命中回源并回填
func (s *PricingQueryService) GetLatestResult(ctx context.Context, symbol string) (*domain.PricingResult, error) {
	symbol, err := requireSymbol(symbol)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		cached, err := s.cache.GetLatestPricingResult(ctx, symbol)
		switch {
		case err != nil:
			s.metrics.RecordCache("error")
			logger.Enrich(ctx, s.logger).WarnContext(ctx, "pricing cache lookup failed", "symbol", symbol, "error", err)
		case cached != nil:
			s.metrics.RecordCache("hit")
			return cached, nil
		default:
			s.metrics.RecordCache("miss")
		}
	}

	result, err := s.repo.GetLatestPricingResult(ctx, symbol)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.SetLatestPricingResult(ctx, result); err != nil {
			logger.Enrich(ctx, s.logger).WarnContext(ctx, "failed to backfill pricing cache", "symbol", symbol, "error", err)
		}
	}
	return result, nil
}

// GetResultHistory 按时间倒序返回定价历史
func (s *PricingQueryService) GetResultHistory(ctx context.Context, symbol string, limit int) ([]*domain.PricingResult, error) {
	symbol, err := requireSymbol(symbol)
	if err != nil {
		return nil, err
	}
	return s.repo.GetPricingResultHistory(ctx, symbol, s.clampLimit(limit))
}

// GetImpliedVolHistory 按时间倒序返回隐含波动率求解历史
func (s *PricingQueryService) GetImpliedVolHistory(ctx context.Context, symbol string, limit int) ([]*domain.ImpliedVolRecord, error) {
	symbol, err := requireSymbol(symbol)
	if err != nil {
		return nil, err
	}
	return s.repo.GetImpliedVolHistory(ctx, symbol, s.clampLimit(limit))
}

func (s *PricingQueryService) clampLimit(limit int) int {
	if limit <= 0 {
		return s.defaultLimit
	}
	if limit > s.maxLimit {
		return s.maxLimit
	}
	return limit
}
