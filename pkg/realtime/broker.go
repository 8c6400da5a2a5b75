// Package realtime fans row changes out to subscribers, in process or
// through a RabbitMQ topic exchange keyed by table name.
package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"socialclient/pkg/backend"
	"socialclient/pkg/metrics"
	sc_trace "socialclient/pkg/trace"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const EXCHANGE = "table-changes"

type message struct {
	Change      backend.Change       `json:"change"`
	SpanContext sc_trace.SpanContext `json:"span_context"`
	SendTs      int64                `json:"send_ts"`
}

func routingKey(table string) string {
	return fmt.Sprintf("table-%s", table)
}

// Broker publishes changes on a shared channel and opens one channel per
// subscription, each bound to an exclusive auto-deleted queue.
type Broker struct {
	conn   *amqp.Connection
	mu     sync.Mutex
	ch     *amqp.Channel
	logger *slog.Logger
}

func NewBroker(conn *amqp.Connection, ch *amqp.Channel, logger *slog.Logger) (*Broker, error) {
	err := ch.ExchangeDeclare(EXCHANGE, "topic", false, false, false, false, nil)
	if err != nil {
		logger.Error("error declaring exchange for rabbitmq", "msg", err.Error())
		return nil, err
	}
	return &Broker{conn: conn, ch: ch, logger: logger}, nil
}

func (b *Broker) Publish(ctx context.Context, change backend.Change) error {
	spanContext := trace.SpanContextFromContext(ctx)
	msg := message{
		Change:      change,
		SpanContext: sc_trace.BuildSpanContext(spanContext),
		SendTs:      time.Now().UnixMilli(),
	}
	msgJSON, err := json.Marshal(msg)
	if err != nil {
		b.logger.Error("error converting rabbitmq message to json", "msg", err.Error())
		return err
	}

	amqMsg := amqp.Publishing{
		ContentType: "application/json",
		Body:        msgJSON,
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	err = b.ch.PublishWithContext(ctx, EXCHANGE, routingKey(change.Table), false, false, amqMsg)
	if err != nil {
		b.logger.Error("error publishing change to rabbitmq", "table", change.Table, "msg", err.Error())
		return err
	}
	return nil
}

func (b *Broker) Subscribe(ctx context.Context, table string, fn func(backend.Change)) (backend.Unsubscribe, error) {
	ch, err := b.conn.Channel()
	if err != nil {
		b.logger.Error("error openning channel for rabbitmq", "msg", err.Error())
		return nil, err
	}
	q, err := ch.QueueDeclare("", false, true, true, false, nil)
	if err != nil {
		ch.Close()
		b.logger.Error("error declaring queue for rabbitmq", "msg", err.Error())
		return nil, err
	}
	err = ch.QueueBind(q.Name, routingKey(table), EXCHANGE, false, nil)
	if err != nil {
		ch.Close()
		b.logger.Error("error binding queue for rabbitmq", "msg", err.Error())
		return nil, err
	}
	msgs, err := ch.Consume(q.Name, "", true, true, false, false, nil)
	if err != nil {
		ch.Close()
		b.logger.Error("error consuming queue", "msg", err.Error())
		return nil, err
	}

	go func() {
		for d := range msgs {
			if err := b.onReceived(d.Body, fn); err != nil {
				b.logger.Warn("error handling change message", "table", table, "msg", err.Error())
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() { ch.Close() })
	}, nil
}

func (b *Broker) onReceived(body []byte, fn func(backend.Change)) error {
	var msg message
	if err := json.Unmarshal(body, &msg); err != nil {
		return err
	}
	ctx := context.Background()
	if sc, err := sc_trace.ParseSpanContext(msg.SpanContext); err == nil && sc.IsValid() {
		ctx = trace.ContextWithRemoteSpanContext(ctx, sc)
	}
	delay := time.Now().UnixMilli() - msg.SendTs
	sc_trace.Event(ctx, "reading change message",
		attribute.String("table", msg.Change.Table),
		attribute.Int64("delay_ms", delay),
	)
	label := metrics.TableLabel{Table: msg.Change.Table}
	metrics.ChangeEvents.Get(label).Inc()
	metrics.ChangeDelayMs.Get(label).Put(float64(delay))
	fn(msg.Change)
	return nil
}

func (b *Broker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.ch.Close()
	return b.conn.Close()
}
