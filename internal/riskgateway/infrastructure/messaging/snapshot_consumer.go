package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/wyfcoding/riskgateway/internal/riskgateway/domain"
	"github.com/wyfcoding/riskgateway/pkg/cache"
	"github.com/wyfcoding/riskgateway/pkg/logger"
	"github.com/wyfcoding/riskgateway/pkg/metrics"
	"github.com/wyfcoding/riskgateway/pkg/mq"
)

const (
	pnlCacheKey      = "riskgateway:pnl"
	positionCacheKey = "riskgateway:positions"
)

// PnlMessage 簿记服务推送的盈亏快照。Fields 描述快照覆盖的维度，消费端
// 按规范化作用域键落账。
type PnlMessage struct {
	Fields    map[string]string `json:"fields"`
	Pnl       decimal.Decimal   `json:"pnl"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// PositionMessage 簿记服务推送的持仓快照。Qty 与 Amt 同时为零表示平仓。
type PositionMessage struct {
	Fields    map[string]string `json:"fields"`
	Qty       decimal.Decimal   `json:"qty"`
	Amt       decimal.Decimal   `json:"amt"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// SnapshotConsumer 消费盈亏与持仓快照流，写入内存台账并写穿 Redis。
// Redis 中的副本用于进程重启后的暖启动，解析失败的消息转入死信队列。
type SnapshotConsumer struct {
	pnlConsumer      *mq.KafkaConsumer
	positionConsumer *mq.KafkaConsumer
	ledger           domain.CounterLedger
	cache            *cache.RedisCache
	dlq              *mq.DeadLetterQueue
	metrics          *metrics.Metrics
}

// NewSnapshotConsumer 创建快照消费器。cache 与 dlq 允许为 nil。
func NewSnapshotConsumer(
	pnlConsumer *mq.KafkaConsumer,
	positionConsumer *mq.KafkaConsumer,
	ledger domain.CounterLedger,
	redisCache *cache.RedisCache,
	dlq *mq.DeadLetterQueue,
	m *metrics.Metrics,
) *SnapshotConsumer {
	return &SnapshotConsumer{
		pnlConsumer:      pnlConsumer,
		positionConsumer: positionConsumer,
		ledger:           ledger,
		cache:            redisCache,
		dlq:              dlq,
		metrics:          m,
	}
}

// WarmStart 从 Redis 恢复最近一次的快照副本。恢复出的盈亏快照仍带原始
// 时间戳，超过时效预算的条目会在评估时按过期处理。
func (c *SnapshotConsumer) WarmStart(ctx context.Context) error {
	if c.cache == nil {
		return nil
	}

	pnlEntries, err := c.cache.HGetAll(ctx, pnlCacheKey)
	if err != nil {
		return err
	}
	for scope, raw := range pnlEntries {
		var msg PnlMessage
		if err := json.Unmarshal([]byte(raw), &msg); err != nil {
			logger.Warn(ctx, "skipping corrupt cached pnl snapshot", "scope", scope, "error", err)
			continue
		}
		c.ledger.SetPnl(scope, msg.Pnl, msg.UpdatedAt)
	}

	positionEntries, err := c.cache.HGetAll(ctx, positionCacheKey)
	if err != nil {
		return err
	}
	restored := 0
	for scope, raw := range positionEntries {
		var msg PositionMessage
		if err := json.Unmarshal([]byte(raw), &msg); err != nil {
			logger.Warn(ctx, "skipping corrupt cached position snapshot", "scope", scope, "error", err)
			continue
		}
		c.ledger.ApplyPositionUpdate(domain.PositionSnapshot{
			Fields:    msg.Fields,
			Qty:       msg.Qty,
			Amt:       msg.Amt,
			UpdatedAt: msg.UpdatedAt,
		})
		restored++
	}

	logger.Info(ctx, "ledger warm start completed", "pnl_scopes", len(pnlEntries), "positions", restored)
	c.updatePnlAge()
	return nil
}

// Start 启动盈亏与持仓两条消费循环，阻塞直到 ctx 取消。
func (c *SnapshotConsumer) Start(ctx context.Context) {
	go c.consumeLoop(ctx, c.pnlConsumer, "pnl snapshot", c.handlePnl)
	c.consumeLoop(ctx, c.positionConsumer, "position update", c.handlePosition)
}

func (c *SnapshotConsumer) consumeLoop(ctx context.Context, consumer *mq.KafkaConsumer, kind string, handle func(context.Context, *mq.Message) error) {
	if consumer == nil {
		return
	}
	for {
		msg, err := consumer.ReadMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				return
			}
			logger.Error(ctx, "failed to read snapshot message", "kind", kind, "error", err)
			time.Sleep(time.Second)
			continue
		}
		if err := handle(ctx, msg); err != nil {
			logger.Error(ctx, "failed to process snapshot message", "kind", kind, "offset", msg.Offset, "error", err)
			if c.dlq != nil {
				if dlqErr := c.dlq.Send(ctx, msg, kind+" processing failed", err); dlqErr != nil {
					logger.Error(ctx, "failed to forward message to dead letter queue", "kind", kind, "error", dlqErr)
				}
			}
		}
	}
}

func (c *SnapshotConsumer) handlePnl(ctx context.Context, msg *mq.Message) error {
	var payload PnlMessage
	if err := msg.UnmarshalPayload(&payload); err != nil {
		return err
	}
	if len(payload.Fields) == 0 {
		return errors.New("pnl snapshot without fields")
	}
	if payload.UpdatedAt.IsZero() {
		payload.UpdatedAt = msg.Time
	}

	scope := domain.CanonicalScope(payload.Fields)
	c.ledger.SetPnl(scope, payload.Pnl, payload.UpdatedAt)
	c.writeThrough(ctx, pnlCacheKey, scope, payload)
	c.updatePnlAge()
	return nil
}

func (c *SnapshotConsumer) handlePosition(ctx context.Context, msg *mq.Message) error {
	var payload PositionMessage
	if err := msg.UnmarshalPayload(&payload); err != nil {
		return err
	}
	if len(payload.Fields) == 0 {
		return errors.New("position update without fields")
	}
	if payload.UpdatedAt.IsZero() {
		payload.UpdatedAt = msg.Time
	}

	c.ledger.ApplyPositionUpdate(domain.PositionSnapshot{
		Fields:    payload.Fields,
		Qty:       payload.Qty,
		Amt:       payload.Amt,
		UpdatedAt: payload.UpdatedAt,
	})
	c.writeThrough(ctx, positionCacheKey, domain.CanonicalScope(payload.Fields), payload)
	return nil
}

func (c *SnapshotConsumer) writeThrough(ctx context.Context, key, field string, value any) {
	if c.cache == nil {
		return
	}
	data, err := json.Marshal(value)
	if err != nil {
		return
	}
	if err := c.cache.HSet(ctx, key, field, string(data)); err != nil {
		logger.Warn(ctx, "snapshot cache write-through failed", "key", key, "field", field, "error", err)
	}
}

func (c *SnapshotConsumer) updatePnlAge() {
	if c.metrics == nil {
		return
	}
	if age, ok := c.ledger.OldestPnlAge(time.Now()); ok {
		c.metrics.PnlSnapshotAge.Set(age.Seconds())
	}
}

// Close 关闭底层消费者。
func (c *SnapshotConsumer) Close() {
	if c.pnlConsumer != nil {
		_ = c.pnlConsumer.Close()
	}
	if c.positionConsumer != nil {
		_ = c.positionConsumer.Close()
	}
}
