// Package messaging 事务性 Outbox：事件随定价结果同事务落库，由 OutboxRelay 异步投递到 Kafka
package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/wyfcoding/optionpricing/pkg/db"
)

// 消息状态
const (
	StatusPending = "pending"
	StatusSent    = "sent"
	StatusDead    = "dead"
)

// OutboxMessage Outbox 表
type OutboxMessage struct {
	ID        string    `gorm:"type:varchar(36);primaryKey"`
	EventType string    `gorm:"type:varchar(64);index"`
	Key       string    `gorm:"column:msg_key;type:varchar(128)"`
	Topic     string    `gorm:"type:varchar(128)"`
	Payload   string    `gorm:"type:text"`
	Status    string    `gorm:"type:varchar(16);index:idx_status_created,priority:1;default:'pending'"`
	Attempts  int       `gorm:"default:0"`
	LastError string    `gorm:"type:varchar(512)"`
	CreatedAt time.Time `gorm:"index:idx_status_created,priority:2"`
	UpdatedAt time.Time
}

// TableName 指定表名
func (OutboxMessage) TableName() string {
	return "pricing_outbox_messages"
}

// Migrate 迁移 Outbox 表
func Migrate(gdb *gorm.DB) error {
	return gdb.AutoMigrate(&OutboxMessage{})
}

// OutboxEventPublisher 实现 domain.EventPublisher，ctx 中有事务时加入该事务
type OutboxEventPublisher struct {
	db    *gorm.DB
	topic string
	now   func() time.Time
}

// NewOutboxEventPublisher 创建新的 OutboxEventPublisher 实例
func NewOutboxEventPublisher(gdb *gorm.DB, topic string) *OutboxEventPublisher {
	return &OutboxEventPublisher{db: gdb, topic: topic, now: time.Now}
}

// Publish 写入一条待投递消息
func (p *OutboxEventPublisher) Publish(ctx context.Context, eventType, key string, event any) error {
	msg, err := newOutboxMessage(p.topic, eventType, key, event, p.now())
	if err != nil {
		return err
	}
	return db.Conn(ctx, p.db).Create(msg).Error
}

func newOutboxMessage(topic, eventType, key string, event any, now time.Time) (*OutboxMessage, error) {
	payload, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("marshal %s: %w", eventType, err)
	}
	return &OutboxMessage{
		ID:        uuid.NewString(),
		EventType: eventType,
		Key:       key,
		Topic:     topic,
		Payload:   string(payload),
		Status:    StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}
