package messaging

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/wyfcoding/riskgateway/internal/riskgateway/domain"
	"github.com/wyfcoding/riskgateway/pkg/logger"
	"github.com/wyfcoding/riskgateway/pkg/mq"
)

// OutboxMessage 决策事件的事务发件箱记录。与决策审计行同事务写入，由
// OutboxRelay 异步投递到 Kafka。
type OutboxMessage struct {
	ID        string    `gorm:"type:varchar(36);primary_key"`
	EventID   string    `gorm:"type:varchar(36);index"`
	EventType string    `gorm:"type:varchar(100);index"`
	Key       string    `gorm:"type:varchar(128)"`
	Payload   string    `gorm:"type:text"`
	Status    string    `gorm:"type:varchar(20);index;default:'pending'"`
	CreatedAt time.Time `gorm:"index"`
	UpdatedAt time.Time
}

// TableName 指定表名
func (OutboxMessage) TableName() string { return "risk_outbox_messages" }

// NewDecisionOutboxMessage 将决策打包为待投递的发件箱记录。
func NewDecisionOutboxMessage(decision *domain.RiskDecision, key string) (*OutboxMessage, error) {
	payload, err := json.Marshal(decision)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	return &OutboxMessage{
		ID:        uuid.New().String(),
		EventID:   uuid.New().String(),
		EventType: "RiskDecisionEvent",
		Key:       key,
		Payload:   string(payload),
		Status:    "pending",
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// OutboxRelay 周期扫描发件箱并投递到 Kafka。
type OutboxRelay struct {
	db       *gorm.DB
	producer *mq.KafkaProducer
	topic    string

	interval  time.Duration
	batchSize int
	retention time.Duration
}

// NewOutboxRelay 创建发件箱投递器。
func NewOutboxRelay(db *gorm.DB, producer *mq.KafkaProducer, topic string) *OutboxRelay {
	return &OutboxRelay{
		db:        db,
		producer:  producer,
		topic:     topic,
		interval:  200 * time.Millisecond,
		batchSize: 200,
		retention: 24 * time.Hour,
	}
}

// Start 投递循环，直到 ctx 取消。
func (r *OutboxRelay) Start(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	cleanup := time.NewTicker(time.Hour)
	defer cleanup.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := r.ProcessPending(ctx); err != nil {
				logger.Error(ctx, "outbox relay round failed", "error", err)
			}
		case <-cleanup.C:
			if err := r.CleanupSent(ctx, time.Now().Add(-r.retention)); err != nil {
				logger.Error(ctx, "outbox cleanup failed", "error", err)
			}
		}
	}
}

// ProcessPending 投递一批待发送消息。逐条投递，失败的消息保留 pending
// 状态等待下一轮。
func (r *OutboxRelay) ProcessPending(ctx context.Context) error {
	var messages []OutboxMessage
	err := r.db.WithContext(ctx).
		Where("status = ?", "pending").
		Order("created_at ASC").
		Limit(r.batchSize).
		Find(&messages).Error
	if err != nil {
		return err
	}

	for i := range messages {
		message := &messages[i]
		if err := r.producer.SendMessage(ctx, r.topic, message.Key, json.RawMessage(message.Payload)); err != nil {
			logger.Error(ctx, "failed to publish outbox message", "event_id", message.EventID, "error", err)
			continue
		}
		if err := r.db.WithContext(ctx).Model(message).Updates(map[string]any{
			"status":     "sent",
			"updated_at": time.Now(),
		}).Error; err != nil {
			return err
		}
	}
	return nil
}

// CleanupSent 清理早于给定时间的已投递消息。
func (r *OutboxRelay) CleanupSent(ctx context.Context, before time.Time) error {
	return r.db.WithContext(ctx).
		Where("status = ? AND updated_at < ?", "sent", before).
		Delete(&OutboxMessage{}).Error
}
