package broker

import (
	"context"
	"fmt"
	"time"

	"classchat/internal/event"
	"classchat/internal/metrics"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"
)

const (
	// StreamName 是承载全部聊天与状态事件的流。
	StreamName = "CHAT"
	// Subject 是唯一的主题，发布时不按房间分key，
	// 因此跨分区的房间内顺序没有保证。
	Subject = "chat"
)

// Publisher 是事件发布的最小接口，真实实现是 Broker，
// 测试里用内存 fake 替换。发布是尽力而为的旁路，没有返回值。
type Publisher interface {
	Publish(evt event.Event)
}

// Broker 封装到 NATS JetStream 的连接和流管理。
type Broker struct {
	nc     *nats.Conn
	js     jetstream.JetStream
	stream jetstream.Stream
}

// Connect 建立连接并确保流存在。启动期失败应当中止进程，
// 由调用方决定。
func Connect(ctx context.Context, url string) (*Broker, error) {
	nc, err := nats.Connect(url,
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("broker connect: %w", err)
	}
	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("jetstream context: %w", err)
	}
	stream, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:     StreamName,
		Subjects: []string{Subject},
		Storage:  jetstream.FileStorage,
		MaxAge:   7 * 24 * time.Hour,
	})
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("ensure stream: %w", err)
	}
	return &Broker{nc: nc, js: js, stream: stream}, nil
}

// Publish 异步发布事件。失败只记日志和指标，绝不向调用方传播，
// 实时路径的成败与落库路径的成败互不影响。
func (b *Broker) Publish(evt event.Event) {
	data, err := event.Encode(evt)
	if err != nil {
		metrics.PublishFailuresTotal.Inc()
		log.Error().Err(err).Str("kind", evt.Kind()).Msg("encode event")
		return
	}
	future, err := b.js.PublishAsync(Subject, data)
	if err != nil {
		metrics.PublishFailuresTotal.Inc()
		log.Error().Err(err).Str("kind", evt.Kind()).Msg("publish event")
		return
	}
	go func() {
		select {
		case <-future.Ok():
		case err := <-future.Err():
			metrics.PublishFailuresTotal.Inc()
			log.Error().Err(err).Str("kind", evt.Kind()).Msg("publish ack")
		}
	}()
}

// Consumer 创建（或复用）一个以 group 命名的持久消费者。
// 同名消费者会在多个 worker 实例间分摊消息，重投语义是 at-least-once。
func (b *Broker) Consumer(ctx context.Context, group string) (jetstream.Consumer, error) {
	consumer, err := b.stream.CreateOrUpdateConsumer(ctx, jetstream.ConsumerConfig{
		Name:      group,
		Durable:   group,
		AckPolicy: jetstream.AckExplicitPolicy,
		AckWait:   30 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("ensure consumer %s: %w", group, err)
	}
	return consumer, nil
}

// Close 排空未发送完的消息后断开连接。
func (b *Broker) Close() {
	if err := b.nc.Drain(); err != nil {
		log.Warn().Err(err).Msg("broker drain")
	}
}
