package notify

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"
)

var errPublisherClosed = errors.New("amqp publisher closed")

// AMQPPublisher is a watermill publisher over RabbitMQ.  Each topic maps to
// a durable queue of the same name on the default exchange.  The connection
// is opened lazily and re-dialled after the broker drops it.
type AMQPPublisher struct {
	url string
	log logrus.FieldLogger

	mu       sync.Mutex
	conn     *amqp.Connection
	ch       *amqp.Channel
	declared map[string]bool
	closed   bool
}

var _ message.Publisher = (*AMQPPublisher)(nil)

func NewAMQPPublisher(url string, log logrus.FieldLogger) *AMQPPublisher {
	return &AMQPPublisher{url: url, log: log.WithField("component", "amqp-publisher"), declared: map[string]bool{}}
}

func (p *AMQPPublisher) Publish(topic string, msgs ...*message.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return errPublisherClosed
	}
	if err := p.ensureChannel(topic); err != nil {
		return err
	}
	for _, msg := range msgs {
		if err := p.publishOne(topic, msg); err != nil {
			// channel errors close the channel; force a reconnect next time
			p.reset()
			return err
		}
	}
	return nil
}

func (p *AMQPPublisher) publishOne(topic string, msg *message.Message) error {
	headers := amqp.Table{}
	for k, v := range msg.Metadata {
		headers[k] = v
	}
	ctx := msg.Context()
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, 3*time.Second)
		defer cancel()
	}
	return p.ch.PublishWithContext(ctx,
		"",    // default exchange
		topic, // routing key = queue name
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    msg.UUID,
			Timestamp:    time.Now().UTC(),
			Headers:      headers,
			Body:         msg.Payload,
		})
}

func (p *AMQPPublisher) ensureChannel(topic string) error {
	if p.conn == nil || p.conn.IsClosed() || p.ch == nil || p.ch.IsClosed() {
		p.reset()
		conn, err := amqp.Dial(p.url)
		if err != nil {
			return fmt.Errorf("amqp dial: %w", err)
		}
		ch, err := conn.Channel()
		if err != nil {
			_ = conn.Close()
			return fmt.Errorf("amqp channel: %w", err)
		}
		p.conn, p.ch = conn, ch
		p.log.Info("connected to broker")
	}
	if !p.declared[topic] {
		if _, err := p.ch.QueueDeclare(topic, true, false, false, false, nil); err != nil {
			p.reset()
			return fmt.Errorf("amqp queue declare %s: %w", topic, err)
		}
		p.declared[topic] = true
	}
	return nil
}

func (p *AMQPPublisher) reset() {
	if p.ch != nil {
		_ = p.ch.Close()
	}
	if p.conn != nil {
		_ = p.conn.Close()
	}
	p.ch, p.conn = nil, nil
	p.declared = map[string]bool{}
}

func (p *AMQPPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	p.reset()
	return nil
}
