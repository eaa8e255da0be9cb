package service

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	commonlog "schoolboard/server/common/log"
)

const eventsExchange = "school.events"

const (
	EventConversationCreated = "conversation.created"
	EventMessageAppended     = "message.appended"
	EventConversationDeleted = "conversation.deleted"
	EventAnnouncementCreated = "announcement.created"
	EventAnnouncementPinned  = "announcement.pinned"
	EventUserRenamed         = "user.renamed"
)

// EventPublisher announces completed writes to downstream consumers such as
// push notification workers.
type EventPublisher interface {
	Publish(ctx context.Context, key string, payload any) error
	Close()
}

type AMQPPublisher struct {
	mu      sync.Mutex
	conn    *amqp.Connection
	channel *amqp.Channel
}

func NewAMQPPublisher(conn *amqp.Connection) (*AMQPPublisher, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, err
	}
	if err := ch.ExchangeDeclare(eventsExchange, "topic", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		return nil, err
	}
	return &AMQPPublisher{conn: conn, channel: ch}, nil
}

func (p *AMQPPublisher) Publish(ctx context.Context, key string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.channel.PublishWithContext(ctx, eventsExchange, key, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         body,
		Timestamp:    time.Now(),
	})
}

func (p *AMQPPublisher) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.channel != nil {
		_ = p.channel.Close()
	}
	if p.conn != nil {
		_ = p.conn.Close()
	}
}

type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, string, any) error { return nil }
func (NopPublisher) Close()                                     {}

// publish logs instead of failing the write that already committed.
func publish(ctx context.Context, events EventPublisher, key string, payload any) {
	if events == nil {
		return
	}
	if err := events.Publish(ctx, key, payload); err != nil {
		commonlog.Warnf("event=school_event_publish action=%s status=failed error=%v", key, err)
	}
}
