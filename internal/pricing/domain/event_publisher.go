package domain

import "context"

// EventPublisher 领域事件发布接口
type EventPublisher interface {
	// Publish 非事务发布
	Publish(ctx context.Context, topic string, key string, event any) error
	// PublishInTx 与业务写入处于同一事务 (Outbox)，tx 通常为 *gorm.DB
	PublishInTx(ctx context.Context, tx any, topic string, key string, event any) error
}
