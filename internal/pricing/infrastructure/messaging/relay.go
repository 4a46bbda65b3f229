package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"gorm.io/gorm"

	"github.com/wyfcoding/gbsmpricing/pkg/breaker"
	"github.com/wyfcoding/gbsmpricing/pkg/logger"
	"github.com/wyfcoding/gbsmpricing/pkg/metrics"
	"github.com/wyfcoding/gbsmpricing/pkg/trace"
)

const (
	sendTimeout = 10 * time.Second
	baseBackoff = time.Minute
	maxBackoff  = 24 * time.Hour
)

// Producer 消息发送接口，*mq.KafkaProducer 满足该接口
type Producer interface {
	Publish(ctx context.Context, topic, key string, payload []byte, headers map[string]string) error
}

// RelayConfig Relay 参数
type RelayConfig struct {
	BatchSize    int
	PollInterval time.Duration
}

// Relay 轮询 outbox 表并将待发送消息投递到 Producer
type Relay struct {
	db        *gorm.DB
	producer  Producer
	breaker   *breaker.Breaker
	metrics   *metrics.Metrics
	logger    *slog.Logger
	batchSize int
	interval  time.Duration
	now       func() time.Time
}

// NewRelay 创建 Relay，breaker 与 metrics 可为 nil
func NewRelay(db *gorm.DB, producer Producer, cb *breaker.Breaker, m *metrics.Metrics, cfg RelayConfig) *Relay {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 500 * time.Millisecond
	}
	return &Relay{
		db:        db,
		producer:  producer,
		breaker:   cb,
		metrics:   m,
		logger:    logger.WithModule("pricing.outbox.relay"),
		batchSize: cfg.BatchSize,
		interval:  cfg.PollInterval,
		now:       time.Now,
	}
}

// Run 按轮询间隔处理 outbox，直到 ctx 结束
func (r *Relay) Run(ctx context.Context) error {
	r.logger.InfoContext(ctx, "outbox relay started", "interval", r.interval, "batch_size", r.batchSize)
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("outbox relay stopped")
			return nil
		case <-ticker.C:
			if _, _, err := r.ProcessOnce(ctx); err != nil && ctx.Err() == nil {
				r.logger.ErrorContext(ctx, "outbox relay pass failed", "error", err)
			}
		}
	}
}

// ProcessOnce 执行一次扫描与投递，返回成功发送与永久失败的条数
// 熔断打开时本批次剩余消息保持 pending，不计入重试次数
func (r *Relay) ProcessOnce(ctx context.Context) (sent, failed int, err error) {
	var messages []OutboxMessage
	err = r.db.WithContext(ctx).
		Where("status = ? AND next_attempt_at <= ?", StatusPending, r.now().UnixMilli()).
		Order("created_at ASC").
		Order("id ASC").
		Limit(r.batchSize).
		Find(&messages).Error
	if err != nil {
		return 0, 0, err
	}

	retried := 0
	for i := range messages {
		msg := &messages[i]
		sendErr := r.send(ctx, msg)
		if errors.Is(sendErr, breaker.ErrServiceUnavailable) {
			r.logger.WarnContext(ctx, "circuit breaker open, outbox batch deferred", "remaining", len(messages)-i)
			break
		}
		if sendErr == nil {
			if err := r.markSent(ctx, msg); err != nil {
				return sent, failed, err
			}
			sent++
			continue
		}

		permanent, err := r.markFailure(ctx, msg, sendErr)
		if err != nil {
			return sent, failed, err
		}
		if permanent {
			failed++
		} else {
			retried++
		}
	}

	r.metrics.RecordOutbox("sent", sent)
	r.metrics.RecordOutbox("retry", retried)
	r.metrics.RecordOutbox("failed", failed)
	return sent, failed, nil
}

// send 恢复追踪上下文后经熔断器投递单条消息
func (r *Relay) send(ctx context.Context, msg *OutboxMessage) error {
	var carrier map[string]string
	if msg.Metadata != "" {
		if err := json.Unmarshal([]byte(msg.Metadata), &carrier); err == nil {
			ctx = trace.ExtractContext(ctx, carrier)
		}
	}

	ctx, span := trace.StartSpan(ctx, "Outbox.Relay.Send")
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()

	headers := map[string]string{
		"event_type": msg.EventType,
		"outbox_id":  msg.ID,
	}
	for k, v := range carrier {
		headers[k] = v
	}

	err := r.breaker.Execute(func() error {
		return r.producer.Publish(ctx, msg.Topic, msg.MessageKey, []byte(msg.Payload), headers)
	})
	trace.SetError(ctx, err)
	return err
}

func (r *Relay) markSent(ctx context.Context, msg *OutboxMessage) error {
	return r.db.WithContext(ctx).Model(msg).Updates(map[string]any{
		"status":     StatusSent,
		"attempts":   msg.Attempts + 1,
		"sent_at":    r.now().UnixMilli(),
		"last_error": "",
	}).Error
}

// markFailure 记录失败并计算下次重试时间，达到最大次数时标记为 failed
func (r *Relay) markFailure(ctx context.Context, msg *OutboxMessage, cause error) (bool, error) {
	attempts := msg.Attempts + 1
	updates := map[string]any{
		"attempts":        attempts,
		"next_attempt_at": r.now().Add(Backoff(msg.Attempts)).UnixMilli(),
		"last_error":      cause.Error(),
	}

	permanent := attempts >= msg.MaxAttempts
	if permanent {
		updates["status"] = StatusFailed
		r.logger.ErrorContext(ctx, "outbox message failed permanently", "id", msg.ID, "topic", msg.Topic, "attempts", attempts, "error", cause)
	} else {
		r.logger.WarnContext(ctx, "outbox message send failed, retrying later", "id", msg.ID, "topic", msg.Topic, "attempts", attempts, "error", cause)
	}

	return permanent, r.db.WithContext(ctx).Model(msg).Updates(updates).Error
}

// Cleanup 删除 before 之前已发送的消息
func (r *Relay) Cleanup(ctx context.Context, before time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("status = ? AND sent_at < ?", StatusSent, before.UnixMilli()).
		Delete(&OutboxMessage{})
	if res.Error != nil {
		return 0, res.Error
	}
	if res.RowsAffected > 0 {
		logger.Enrich(ctx, r.logger).InfoContext(ctx, "outbox messages cleaned up", "deleted", res.RowsAffected)
	}
	return res.RowsAffected, nil
}

// Backoff 第 attempts 次失败后的等待时长：1 分钟起翻倍，上限 24 小时
func Backoff(attempts int) time.Duration {
	if attempts < 0 {
		attempts = 0
	}
	if attempts >= 11 {
		return maxBackoff
	}
	return min(baseBackoff<<uint(attempts), maxBackoff)
}
