package messaging

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/wyfcoding/optionpricing/pkg/db"
	"github.com/wyfcoding/optionpricing/pkg/logger"
	"github.com/wyfcoding/optionpricing/pkg/mq"
)

// Producer 消息发送方，由 mq.KafkaProducer 实现
type Producer interface {
	Send(ctx context.Context, msgs ...mq.Message) error
}

// RelayRecorder 转发指标
type RelayRecorder interface {
	RecordOutbox(relayed, failed int)
}

// RelayConfig 转发配置
type RelayConfig struct {
	Interval    time.Duration
	BatchSize   int
	MaxAttempts int
}

// OutboxRelay 轮询 Outbox 表并投递到 Kafka，下游故障时熔断
type OutboxRelay struct {
	db       *gorm.DB
	producer Producer
	breaker  *gobreaker.CircuitBreaker
	recorder RelayRecorder
	cfg      RelayConfig
}

// NewOutboxRelay recorder 可为 nil
func NewOutboxRelay(gdb *gorm.DB, producer Producer, recorder RelayRecorder, cfg RelayConfig) *OutboxRelay {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 10
	}
	return &OutboxRelay{
		db:       gdb,
		producer: producer,
		breaker:  newBreaker("pricing-outbox"),
		recorder: recorder,
		cfg:      cfg,
	}
}

func newBreaker(name string) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     10 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn(context.Background(), "circuit breaker state changed", "name", name, "from", from.String(), "to", to.String())
		},
	})
}

// Run 按固定间隔转发，直到 ctx 取消
func (r *OutboxRelay) Run(ctx context.Context) {
	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()
	logger.Info(ctx, "outbox relay started", "interval", r.cfg.Interval, "batch_size", r.cfg.BatchSize)
	for {
		select {
		case <-ctx.Done():
			logger.Info(ctx, "outbox relay stopped")
			return
		case <-ticker.C:
			if _, err := r.RelayOnce(ctx); err != nil && !errors.Is(err, gobreaker.ErrOpenState) && ctx.Err() == nil {
				logger.Error(ctx, "outbox relay failed", "error", err)
			}
		}
	}
}

// RelayOnce 取一批待投递消息（SKIP LOCKED，多实例互不阻塞）并投递，返回成功条数。
// 投递失败时重试计数照常提交，错误随返回值带出。
func (r *OutboxRelay) RelayOnce(ctx context.Context) (int, error) {
	var (
		sent       int
		deliverErr error
	)
	err := db.WithTx(ctx, r.db, func(txCtx context.Context) error {
		conn := db.Conn(txCtx, r.db)
		var batch []OutboxMessage
		if err := conn.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
			Where("status = ?", StatusPending).
			Order("created_at").
			Limit(r.cfg.BatchSize).
			Find(&batch).Error; err != nil {
			return err
		}
		if len(batch) == 0 {
			return nil
		}

		if deliverErr = r.deliver(txCtx, batch); deliverErr != nil {
			r.record(0, len(batch))
			return r.markFailed(conn, batch, deliverErr)
		}
		ids := make([]string, len(batch))
		for i := range batch {
			ids[i] = batch[i].ID
		}
		sent = len(batch)
		r.record(sent, 0)
		return conn.Model(&OutboxMessage{}).
			Where("id IN ?", ids).
			Updates(map[string]any{"status": StatusSent, "updated_at": time.Now()}).Error
	})
	if err != nil {
		return 0, err
	}
	return sent, deliverErr
}

// deliver 经熔断器整批发送
func (r *OutboxRelay) deliver(ctx context.Context, batch []OutboxMessage) error {
	msgs := make([]mq.Message, len(batch))
	for i, m := range batch {
		msgs[i] = mq.Message{
			Topic: m.Topic,
			Key:   m.Key,
			Value: []byte(m.Payload),
			Headers: map[string]string{
				"event_id":   m.ID,
				"event_type": m.EventType,
			},
		}
	}
	_, err := r.breaker.Execute(func() (any, error) {
		return nil, r.producer.Send(ctx, msgs...)
	})
	return err
}

// markFailed 增加重试计数，超过上限的消息标记为 dead；熔断拒绝不计入重试
func (r *OutboxRelay) markFailed(conn *gorm.DB, batch []OutboxMessage, cause error) error {
	if errors.Is(cause, gobreaker.ErrOpenState) || errors.Is(cause, gobreaker.ErrTooManyRequests) {
		return nil
	}
	reason := cause.Error()
	if len(reason) > 512 {
		reason = reason[:512]
	}
	for _, m := range batch {
		status := StatusPending
		if m.Attempts+1 >= r.cfg.MaxAttempts {
			status = StatusDead
			logger.Error(conn.Statement.Context, "outbox message exceeded max attempts", "id", m.ID, "event_type", m.EventType)
		}
		if err := conn.Model(&OutboxMessage{}).Where("id = ?", m.ID).Updates(map[string]any{
			"attempts":   m.Attempts + 1,
			"last_error": reason,
			"status":     status,
			"updated_at": time.Now(),
		}).Error; err != nil {
			return err
		}
	}
	return nil
}

func (r *OutboxRelay) record(relayed, failed int) {
	if r.recorder != nil {
		r.recorder.RecordOutbox(relayed, failed)
	}
}
