package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/wyfcoding/gbsmpricing/internal/pricing/domain"
	"github.com/wyfcoding/gbsmpricing/pkg/logger"
	"github.com/wyfcoding/gbsmpricing/pkg/trace"
)

// 消息状态
const (
	StatusPending = "pending"
	StatusSent    = "sent"
	StatusFailed  = "failed"
)

// DefaultMaxAttempts 默认最大投递次数
const DefaultMaxAttempts = 10

// OutboxMessage outbox 消息，与定价记录处于同一数据库
type OutboxMessage struct {
	ID            string `gorm:"column:id;type:varchar(36);primaryKey"`
	EventType     string `gorm:"column:event_type;type:varchar(100);not null"`
	Topic         string `gorm:"column:topic;type:varchar(255);not null"`
	MessageKey    string `gorm:"column:message_key;type:varchar(64)"`
	Payload       string `gorm:"column:payload;type:text;not null"`
	Metadata      string `gorm:"column:metadata;type:text"`
	Status        string `gorm:"column:status;type:varchar(20);not null;index:idx_outbox_status_next,priority:1"`
	Attempts      int    `gorm:"column:attempts;not null;default:0"`
	MaxAttempts   int    `gorm:"column:max_attempts;not null"`
	NextAttemptAt int64  `gorm:"column:next_attempt_at;not null;index:idx_outbox_status_next,priority:2"`
	LastError     string `gorm:"column:last_error;type:text"`
	SentAt        int64  `gorm:"column:sent_at;not null;default:0"`
	CreatedAt     int64  `gorm:"column:created_at;autoCreateTime:milli"`
	UpdatedAt     int64  `gorm:"column:updated_at;autoUpdateTime:milli"`
}

// TableName 指定表名
func (OutboxMessage) TableName() string {
	return "pricing_outbox_messages"
}

// AutoMigrate 迁移 outbox 表
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&OutboxMessage{})
}

var _ domain.EventPublisher = (*OutboxEventPublisher)(nil)

// OutboxEventPublisher 实现 domain.EventPublisher，事件先写 outbox 表，由 Relay 异步投递
type OutboxEventPublisher struct {
	db          *gorm.DB
	topicPrefix string
	maxAttempts int
	logger      *slog.Logger
	now         func() time.Time
}

// NewOutboxEventPublisher 创建 OutboxEventPublisher，topicPrefix 拼接在事件类型之前作为 Kafka topic
func NewOutboxEventPublisher(db *gorm.DB, topicPrefix string, maxAttempts int) *OutboxEventPublisher {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	return &OutboxEventPublisher{
		db:          db,
		topicPrefix: topicPrefix,
		maxAttempts: maxAttempts,
		logger:      logger.WithModule("pricing.outbox"),
		now:         time.Now,
	}
}

// Publish 非事务写入 outbox
func (p *OutboxEventPublisher) Publish(ctx context.Context, eventType, key string, event any) error {
	return p.write(ctx, p.db, eventType, key, event)
}

// PublishInTx 使用调用方事务写入 outbox，tx 为空时退化为非事务写入
func (p *OutboxEventPublisher) PublishInTx(ctx context.Context, tx any, eventType, key string, event any) error {
	switch t := tx.(type) {
	case nil:
		return p.write(ctx, p.db, eventType, key, event)
	case *gorm.DB:
		if t == nil {
			return p.write(ctx, p.db, eventType, key, event)
		}
		return p.write(ctx, t, eventType, key, event)
	default:
		return fmt.Errorf("outbox: unsupported transaction type %T", tx)
	}
}

func (p *OutboxEventPublisher) write(ctx context.Context, db *gorm.DB, eventType, key string, event any) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("outbox: marshal %s: %w", eventType, err)
	}
	metadata, err := json.Marshal(trace.InjectContext(ctx))
	if err != nil {
		return fmt.Errorf("outbox: marshal trace metadata: %w", err)
	}

	msg := &OutboxMessage{
		ID:            uuid.NewString(),
		EventType:     eventType,
		Topic:         p.topicPrefix + eventType,
		MessageKey:    key,
		Payload:       string(payload),
		Metadata:      string(metadata),
		Status:        StatusPending,
		MaxAttempts:   p.maxAttempts,
		NextAttemptAt: p.now().UnixMilli(),
	}
	if err := db.WithContext(ctx).Create(msg).Error; err != nil {
		logger.Enrich(ctx, p.logger).ErrorContext(ctx, "failed to save outbox message", "topic", msg.Topic, "error", err)
		return err
	}
	return nil
}
