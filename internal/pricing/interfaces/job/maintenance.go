// Package job 定时维护任务：清理过期定价历史、已投递的 outbox 消息与闲置的限流器
package job

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/wyfcoding/gbsmpricing/pkg/logger"
)

// HistoryCleaner 清理定价历史
type HistoryCleaner interface {
	CleanupHistory(ctx context.Context, retention time.Duration) (int64, error)
}

// OutboxCleaner 清理已发送的 outbox 消息
type OutboxCleaner interface {
	Cleanup(ctx context.Context, before time.Time) (int64, error)
}

// LimiterSweeper 回收闲置的限流器
type LimiterSweeper interface {
	Sweep(now time.Time) int
}

// MaintenanceConfig 维护任务参数
type MaintenanceConfig struct {
	Spec             string
	HistoryRetention time.Duration
	OutboxRetention  time.Duration
	Timeout          time.Duration
}

// Maintenance 维护任务，outbox 与 limiter 可为 nil
type Maintenance struct {
	history HistoryCleaner
	outbox  OutboxCleaner
	limiter LimiterSweeper
	cfg     MaintenanceConfig
	logger  *slog.Logger
	now     func() time.Time
}

// NewMaintenance 创建维护任务
func NewMaintenance(history HistoryCleaner, outbox OutboxCleaner, limiter LimiterSweeper, cfg MaintenanceConfig) *Maintenance {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Minute
	}
	return &Maintenance{
		history: history,
		outbox:  outbox,
		limiter: limiter,
		cfg:     cfg,
		logger:  logger.WithModule("pricing.maintenance"),
		now:     time.Now,
	}
}

// Schedule 将维护任务注册到 cron，并在 ctx 结束时停止
func (m *Maintenance) Schedule(ctx context.Context) (*cron.Cron, error) {
	c := cron.New()
	if _, err := c.AddFunc(m.cfg.Spec, func() {
		runCtx, cancel := context.WithTimeout(ctx, m.cfg.Timeout)
		defer cancel()
		m.RunOnce(runCtx)
	}); err != nil {
		return nil, err
	}
	c.Start()
	m.logger.Info("maintenance scheduled", "spec", m.cfg.Spec)
	return c, nil
}

// RunOnce 执行一轮维护，单项失败不影响其他项
func (m *Maintenance) RunOnce(ctx context.Context) {
	defer logger.LogDuration(ctx, "maintenance finished")()

	if m.history != nil {
		if n, err := m.history.CleanupHistory(ctx, m.cfg.HistoryRetention); err != nil {
			m.logger.ErrorContext(ctx, "pricing history cleanup failed", "error", err)
		} else {
			m.logger.InfoContext(ctx, "pricing history cleanup", "deleted", n)
		}
	}

	if m.outbox != nil {
		before := m.now().Add(-m.cfg.OutboxRetention)
		if n, err := m.outbox.Cleanup(ctx, before); err != nil {
			m.logger.ErrorContext(ctx, "outbox cleanup failed", "error", err)
		} else {
			m.logger.InfoContext(ctx, "outbox cleanup", "deleted", n)
		}
	}

	if m.limiter != nil {
		if n := m.limiter.Sweep(m.now()); n > 0 {
			m.logger.InfoContext(ctx, "idle rate limiters swept", "removed", n)
		}
	}
}
