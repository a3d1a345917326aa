package worker

import (
	"context"

	"classchat/internal/event"
	"classchat/internal/metrics"
	"classchat/internal/models"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// AuditHook 在 user_joined/user_left 事件上调用，默认只记日志。
// 需要审计留痕的部署在装配时注入自己的实现。
type AuditHook func(evt event.Chat) error

// Worker 是聊天事件变成持久记录的唯一场所。多个 Worker 用同名
// 消费组分摊读取，组内每条事件只处理一次；broker 层面的重投
// 仍然可能发生，消息表没有幂等键，重投会产生重复行。
type Worker struct {
	db    *gorm.DB
	audit AuditHook
}

func New(db *gorm.DB) *Worker {
	return &Worker{db: db}
}

// WithAudit 注入出入房事件的审计钩子。
func (w *Worker) WithAudit(hook AuditHook) *Worker {
	w.audit = hook
	return w
}

// Run 持续消费直到 ctx 取消。单条事件的处理错误只记日志并跳过，
// 消息总是被 ack，不做无限重试。
func (w *Worker) Run(ctx context.Context, consumer jetstream.Consumer) error {
	iter, err := consumer.Messages()
	if err != nil {
		return err
	}
	go func() {
		<-ctx.Done()
		iter.Stop()
	}()
	for {
		msg, err := iter.Next()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			log.Warn().Err(err).Msg("consume next")
			continue
		}
		evt, err := event.Decode(msg.Data())
		if err != nil {
			metrics.PersistFailuresTotal.Inc()
			log.Error().Err(err).Msg("decode event")
		} else if err := w.Handle(evt); err != nil {
			metrics.PersistFailuresTotal.Inc()
			log.Error().Err(err).Str("kind", evt.Kind()).Msg("handle event")
		}
		if err := msg.Ack(); err != nil {
			log.Warn().Err(err).Msg("ack event")
		}
	}
}

// Handle 按变体处理单条事件。重复调用同一条 message 事件会插入
// 两行，这是当前落库语义的一部分。
func (w *Worker) Handle(e event.Event) error {
	switch evt := e.(type) {
	case event.Chat:
		return w.handleChat(evt)
	case event.Status:
		log.Info().Str("instance", evt.IP).Bool("available", evt.Status).Msg("instance status")
		return nil
	default:
		return event.ErrUnknownType
	}
}

func (w *Worker) handleChat(evt event.Chat) error {
	switch evt.Type {
	case event.TypeMessage:
		msg := models.Message{Room: evt.Room, Sender: evt.Name, Body: evt.Message, CreatedAt: evt.When}
		if err := w.db.Create(&msg).Error; err != nil {
			return err
		}
		metrics.PersistedTotal.Inc()
		return nil
	case event.TypeUserJoined, event.TypeUserLeft:
		if w.audit != nil {
			return w.audit(evt)
		}
		log.Debug().Str("kind", evt.Type).Str("room", evt.Room).Str("name", evt.Name).Msg("presence event")
		return nil
	case event.TypeRoomCreate:
		room := models.Room{Name: evt.Room, CreatedAt: evt.When}
		return w.db.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "name"}},
			DoNothing: true,
		}).Create(&room).Error
	case event.TypeRoomDelete:
		// 删房间级联清掉它的全部消息。
		return w.db.Transaction(func(tx *gorm.DB) error {
			if err := tx.Where("room = ?", evt.Room).Delete(&models.Message{}).Error; err != nil {
				return err
			}
			return tx.Where("name = ?", evt.Room).Delete(&models.Room{}).Error
		})
	default:
		return event.ErrUnknownType
	}
}
