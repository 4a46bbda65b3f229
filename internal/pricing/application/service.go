package application

import (
	"context"
	"time"

	"github.com/wyfcoding/gbsmpricing/internal/pricing/domain"
)

// PricingService 定价服务门面，组合命令与查询服务
type PricingService struct {
	Command *PricingCommandService
	Query   *PricingQueryService
}

// NewPricingService 创建定价服务门面
func NewPricingService(command *PricingCommandService, query *PricingQueryService) *PricingService {
	return &PricingService{
		Command: command,
		Query:   query,
	}
}

// PriceOption 期权定价
func (s *PricingService) PriceOption(ctx context.Context, cmd PriceOptionCommand) (*domain.PricingResult, error) {
	return s.Command.PriceOption(ctx, cmd)
}

// SolveImpliedVolatility 求解隐含波动率
func (s *PricingService) SolveImpliedVolatility(ctx context.Context, cmd SolveImpliedVolCommand) (*domain.ImpliedVolRecord, error) {
	return s.Command.SolveImpliedVolatility(ctx, cmd)
}

// CleanupHistory 清理过期历史
func (s *PricingService) CleanupHistory(ctx context.Context, retention time.Duration) (int64, error) {
	return s.Command.CleanupHistory(ctx, retention)
}

// GetVega 计算 Vega
func (s *PricingService) GetVega(ctx context.Context, q VegaQuery) (*VegaDTO, error) {
	return s.Query.GetVega(ctx, q)
}

// GetGreeks 计算希腊字母
func (s *PricingService) GetGreeks(ctx context.Context, q GreeksQuery) (*GreeksDTO, error) {
	return s.Query.GetGreeks(ctx, q)
}

// GetLatestResult 获取最新定价结果
func (s *PricingService) GetLatestResult(ctx context.Context, symbol string) (*domain.PricingResult, error) {
	return s.Query.GetLatestResult(ctx, symbol)
}

// GetResultHistory 获取定价历史
func (s *PricingService) GetResultHistory(ctx context.Context, symbol string, limit int) ([]*domain.PricingResult, error) {
	return s.Query.GetResultHistory(ctx, symbol, limit)
}

// GetImpliedVolHistory 获取隐含波动率求解历史
func (s *PricingService) GetImpliedVolHistory(ctx context.Context, symbol string, limit int) ([]*domain.ImpliedVolRecord, error) {
	return s.Query.GetImpliedVolHistory(ctx, symbol, limit)
}
