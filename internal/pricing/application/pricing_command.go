package application

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/wyfcoding/gbsmpricing/internal/pricing/domain"
	"github.com/wyfcoding/gbsmpricing/pkg/contextx"
	"github.com/wyfcoding/gbsmpricing/pkg/logger"
	"github.com/wyfcoding/gbsmpricing/pkg/metrics"
)

// PricingCommandService 处理定价相关的命令操作
// 使用 Outbox 发布领域事件
type PricingCommandService struct {
	repo      domain.PricingRepository
	cache     domain.PricingCache
	publisher domain.EventPublisher
	metrics   *metrics.Metrics
	logger    *slog.Logger
	now       func() time.Time
}

// NewPricingCommandService 创建新的 PricingCommandService 实例，cache 与 publisher 可为 nil
func NewPricingCommandService(repo domain.PricingRepository, cache domain.PricingCache, publisher domain.EventPublisher, m *metrics.Metrics) *PricingCommandService {
	return &PricingCommandService{
		repo:      repo,
		cache:     cache,
		publisher: publisher,
		metrics:   m,
		logger:    logger.WithModule("pricing.command"),
		now:       time.Now,
	}
}

// PriceOption 期权定价，结果与 OptionPriced 事件在同一事务内落库
func (c *PricingCommandService) PriceOption(ctx context.Context, cmd PriceOptionCommand) (*domain.PricingResult, error) {
	symbol, err := requireSymbol(cmd.Symbol)
	if err != nil {
		return nil, err
	}

	now := c.now()
	optionType, market, rates, err := cmd.resolve(cmd.Volatility, now)
	if err != nil {
		c.publishError(ctx, symbol, cmd.OptionType, "price", err)
		return nil, err
	}

	start := time.Now()
	price, err := domain.Price(optionType, market, rates)
	var greeks *domain.Greeks
	if err == nil {
		greeks, err = domain.CalculateGreeks(optionType, market, rates)
	}
	c.metrics.RecordCalculation("price", optionType.String(), err, time.Since(start))
	if err != nil {
		c.publishError(ctx, symbol, cmd.OptionType, "price", err)
		return nil, err
	}

	result := domain.NewPricingResult(symbol, optionType, market, rates, price, greeks, now)

	err = c.repo.WithTx(ctx, func(txCtx context.Context) error {
		if err := c.repo.SavePricingResult(txCtx, result); err != nil {
			return err
		}
		if c.publisher == nil {
			return nil
		}
		event := domain.OptionPricedEvent{
			Symbol:          symbol,
			OptionType:      optionType,
			StrikePrice:     market.StrikePrice,
			TimeToExpiry:    market.TimeToExpiry,
			OptionPrice:     price,
			UnderlyingPrice: market.AssetPrice,
			Volatility:      market.Volatility,
			InterestRate:    rates.InterestRate,
			CostOfCarry:     rates.CostOfCarry,
			Vega:            greeks.Vega.InexactFloat64(),
			PricingModel:    result.PricingModel,
			CalculatedAt:    result.CalculatedAt,
			OccurredOn:      now,
		}
		return c.publisher.PublishInTx(txCtx, contextx.GetTx(txCtx), domain.OptionPricedEventType, symbol, event)
	})
	if err != nil {
		logger.Enrich(ctx, c.logger).ErrorContext(ctx, "failed to persist pricing result", "symbol", symbol, "error", err)
		return nil, err
	}

	if c.cache != nil {
		if err := c.cache.SetLatestPricingResult(ctx, result); err != nil {
			logger.Enrich(ctx, c.logger).WarnContext(ctx, "failed to refresh pricing cache", "symbol", symbol, "error", err)
		}
	}

	logger.Enrich(ctx, c.logger).InfoContext(ctx, "option priced",
		"symbol", symbol,
		"option_type", optionType,
		"price", price,
		"time_to_expiry", market.TimeToExpiry,
	)
	return result, nil
}

// SolveImpliedVolatility 求解隐含波动率并记录
// 未收敛不视为错误，记录中的 Converged 为 false
func (c *PricingCommandService) SolveImpliedVolatility(ctx context.Context, cmd SolveImpliedVolCommand) (*domain.ImpliedVolRecord, error) {
	symbol, err := requireSymbol(cmd.Symbol)
	if err != nil {
		return nil, err
	}

	now := c.now()
	optionType, market, rates, err := cmd.resolve(0, now)
	if err != nil {
		c.publishError(ctx, symbol, cmd.OptionType, "implied_volatility", err)
		return nil, err
	}

	start := time.Now()
	res, err := domain.ImpliedVolatility(optionType, market, rates, cmd.OptionPrice)
	if err != nil && !errors.Is(err, domain.ErrNotConverged) {
		c.metrics.RecordCalculation("implied_volatility", optionType.String(), err, time.Since(start))
		c.publishError(ctx, symbol, cmd.OptionType, "implied_volatility", err)
		return nil, err
	}
	c.metrics.RecordCalculation("implied_volatility", optionType.String(), nil, time.Since(start))
	c.metrics.RecordImpliedVol(res.Iterations, res.Converged)

	if !res.Converged {
		logger.Enrich(ctx, c.logger).WarnContext(ctx, "implied volatility did not converge",
			"symbol", symbol,
			"iterations", res.Iterations,
			"residual", res.Residual,
			"volatility", res.Volatility,
		)
	}

	record := domain.NewImpliedVolRecord(symbol, optionType, market, rates, cmd.OptionPrice, res, now)

	err = c.repo.WithTx(ctx, func(txCtx context.Context) error {
		if err := c.repo.SaveImpliedVolRecord(txCtx, record); err != nil {
			return err
		}
		if c.publisher == nil {
			return nil
		}
		event := domain.ImpliedVolatilitySolvedEvent{
			Symbol:          symbol,
			OptionType:      optionType,
			StrikePrice:     market.StrikePrice,
			TimeToExpiry:    market.TimeToExpiry,
			UnderlyingPrice: market.AssetPrice,
			ObservedPrice:   cmd.OptionPrice,
			Volatility:      res.Volatility,
			Iterations:      res.Iterations,
			Converged:       res.Converged,
			CalculatedAt:    record.CalculatedAt,
			OccurredOn:      now,
		}
		return c.publisher.PublishInTx(txCtx, contextx.GetTx(txCtx), domain.ImpliedVolatilitySolvedEventType, symbol, event)
	})
	if err != nil {
		logger.Enrich(ctx, c.logger).ErrorContext(ctx, "failed to persist implied volatility record", "symbol", symbol, "error", err)
		return nil, err
	}

	logger.Enrich(ctx, c.logger).InfoContext(ctx, "implied volatility solved",
		"symbol", symbol,
		"volatility", res.Volatility,
		"iterations", res.Iterations,
		"converged", res.Converged,
	)
	return record, nil
}

// CleanupHistory 删除保留期之前的定价与求解记录
// 最新结果被删除的标的同时失效缓存，避免查询返回已删除的结果
func (c *PricingCommandService) CleanupHistory(ctx context.Context, retention time.Duration) (int64, error) {
	cutoff := c.now().Add(-retention)

	var stale []string
	if c.cache != nil {
		symbols, err := c.repo.StaleSymbols(ctx, cutoff)
		if err != nil {
			return 0, err
		}
		stale = symbols
	}

	n, err := c.repo.CleanupBefore(ctx, cutoff)
	if err != nil {
		return 0, err
	}

	for _, symbol := range stale {
		if err := c.cache.Invalidate(ctx, symbol); err != nil {
			logger.Enrich(ctx, c.logger).WarnContext(ctx, "failed to invalidate pricing cache", "symbol", symbol, "error", err)
		}
	}

	logger.Enrich(ctx, c.logger).InfoContext(ctx, "pricing history cleaned up", "cutoff", cutoff, "deleted", n, "invalidated", len(stale))
	return n, nil
}

// publishError 尽力发布 PricingErrorEvent，失败只记日志
func (c *PricingCommandService) publishError(ctx context.Context, symbol, optionType, operation string, cause error) {
	if c.publisher == nil {
		return
	}
	now := c.now()
	event := domain.PricingErrorEvent{
		Symbol:     symbol,
		OptionType: optionType,
		Operation:  operation,
		Error:      cause.Error(),
		ErrorCode:  domain.ErrorCode(cause),
		OccurredAt: now.UnixMilli(),
		OccurredOn: now,
	}
	if err := c.publisher.Publish(ctx, domain.PricingErrorEventType, symbol, event); err != nil {
		logger.Enrich(ctx, c.logger).WarnContext(ctx, "failed to publish pricing error event", "symbol", symbol, "error", err)
	}
}
