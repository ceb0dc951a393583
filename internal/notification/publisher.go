package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hitoshi/socialgraph/internal/model"
	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"
)

// Publisher は作成済み通知を外部へ配信する。
type Publisher interface {
	Publish(ctx context.Context, n *model.Notification) error
	Name() string
	Close() error
}

// Event は配信される通知イベントのペイロード。
type Event struct {
	ID         string    `json:"id"`
	Type       string    `json:"type"`
	FromUserID string    `json:"from_user_id"`
	ToUserID   string    `json:"to_user_id"`
	PostID     *string   `json:"post_id,omitempty"`
	CommentID  *string   `json:"comment_id,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// NewEvent は通知から配信イベントを生成する。
func NewEvent(n *model.Notification) Event {
	return Event{
		ID:         n.ID,
		Type:       string(n.Type),
		FromUserID: n.FromUserID,
		ToUserID:   n.ToUserID,
		PostID:     n.PostID,
		CommentID:  n.CommentID,
		CreatedAt:  n.CreatedAt,
	}
}

func marshalEvent(n *model.Notification) ([]byte, error) {
	b, err := json.Marshal(NewEvent(n))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal notification event: %w", err)
	}
	return b, nil
}

// NopPublisher は何も配信しない。
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, *model.Notification) error { return nil }
func (NopPublisher) Name() string                                       { return "none" }
func (NopPublisher) Close() error                                       { return nil }

// --- Kafka ---

// messageWriter はkafka.Writerのうち配信に必要な部分。
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher は通知イベントをKafkaトピックへ書き込む。
// 宛先ユーザーIDをキーとし、同一ユーザー宛てのイベント順序を保つ。
type KafkaPublisher struct {
	writer messageWriter
}

// NewKafkaPublisher はKafkaPublisherを生成する。
func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireOne,
			BatchTimeout: 50 * time.Millisecond,
		},
	}
}

// Publish は通知イベントを書き込む。
func (p *KafkaPublisher) Publish(ctx context.Context, n *model.Notification) error {
	value, err := marshalEvent(n)
	if err != nil {
		return err
	}
	if err := p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(n.ToUserID),
		Value: value,
		Time:  n.CreatedAt,
	}); err != nil {
		return fmt.Errorf("kafka write failed: %w", err)
	}
	return nil
}

func (p *KafkaPublisher) Name() string { return "kafka" }

func (p *KafkaPublisher) Close() error { return p.writer.Close() }

// --- Redis ---

// redisPublisher はredis.Clientのうち配信に必要な部分。
type redisPublisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
	Close() error
}

// RedisPublisher は通知イベントをRedis Pub/Subへ配信する。
// チャンネル名は "<prefix>:<宛先ユーザーID>"。
type RedisPublisher struct {
	client  redisPublisher
	channel string
}

// NewRedisPublisher はRedisPublisherを生成する。
func NewRedisPublisher(addr, channel string) *RedisPublisher {
	return &RedisPublisher{
		client:  redis.NewClient(&redis.Options{Addr: addr}),
		channel: channel,
	}
}

// ChannelFor は宛先ユーザーのチャンネル名を返す。
func (p *RedisPublisher) ChannelFor(userID string) string {
	return p.channel + ":" + userID
}

// Publish は通知イベントを宛先ユーザーのチャンネルへ配信する。
func (p *RedisPublisher) Publish(ctx context.Context, n *model.Notification) error {
	payload, err := marshalEvent(n)
	if err != nil {
		return err
	}
	if err := p.client.Publish(ctx, p.ChannelFor(n.ToUserID), payload).Err(); err != nil {
		return fmt.Errorf("redis publish failed: %w", err)
	}
	return nil
}

func (p *RedisPublisher) Name() string { return "redis" }

func (p *RedisPublisher) Close() error { return p.client.Close() }

// compile-time interface checks
var (
	_ Publisher = NopPublisher{}
	_ Publisher = (*KafkaPublisher)(nil)
	_ Publisher = (*RedisPublisher)(nil)
)
