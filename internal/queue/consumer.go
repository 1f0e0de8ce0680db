package queue

import (
    "context"
    "errors"
    "fmt"
    "os"
    "path/filepath"
    "sync"
    "time"

    "github.com/ThreeDotsLabs/watermill"
    "github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
    "github.com/ThreeDotsLabs/watermill/message"
    amqp "github.com/rabbitmq/amqp091-go"
    "github.com/redis/go-redis/v9"
    "github.com/sirupsen/logrus"
)

// Recorder appends one human-readable line per confirmed booking to a log
// file.  Duplicated deliveries produce duplicated lines carrying the same
// event_id.
type Recorder struct {
    path string
    mu   sync.Mutex
}

func NewRecorder(path string) *Recorder {
    if path == "" {
        path = filepath.Join("logs", "booking.log")
    }
    return &Recorder{path: path}
}

// ErrMalformedEvent marks payloads that can never be recorded.  Consumers
// drop them; any other Handle error is worth a redelivery.
var ErrMalformedEvent = errors.New("malformed booking event")

// Handle decodes a BookingConfirmedEvent body and records it.
func (r *Recorder) Handle(body []byte) error {
    ev, err := DecodeBookingConfirmed(body)
    if err != nil {
        return fmt.Errorf("%w: unmarshal: %v", ErrMalformedEvent, err)
    }
    if ev.BookingID == 0 {
        return fmt.Errorf("%w: booking_id missing", ErrMalformedEvent)
    }
    r.mu.Lock()
    defer r.mu.Unlock()
    if err := os.MkdirAll(filepath.Dir(r.path), 0o755); err != nil {
        return fmt.Errorf("mkdir logs: %w", err)
    }
    f, err := os.OpenFile(r.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
    if err != nil {
        return fmt.Errorf("open log file: %w", err)
    }
    defer f.Close()

    line := fmt.Sprintf("[%s] Booking confirmed | booking_id=%d | user_id=%d | show_id=%d | seats=%d | event_id=%s\n",
        ev.ConfirmedAt, ev.BookingID, ev.UserID, ev.ShowID, ev.SeatCount, ev.EventID)
    if _, err := f.WriteString(line); err != nil {
        return fmt.Errorf("write log: %w", err)
    }
    return nil
}

// AMQPConsumer reads the booking.confirmed queue and feeds the Recorder.  It
// keeps reconnecting with exponential backoff until ctx is cancelled.
type AMQPConsumer struct {
    URL      string
    Recorder *Recorder
    Log      logrus.FieldLogger
}

func (c *AMQPConsumer) Run(ctx context.Context) error {
    backoff := time.Second
    for {
        conn, err := amqp.Dial(c.URL)
        if err != nil {
            c.Log.WithError(err).Warnf("booking-consumer: dial failed, retrying in %s", backoff)
            if !sleep(ctx, backoff) {
                return ctx.Err()
            }
            if backoff < 30*time.Second {
                backoff *= 2
            }
            continue
        }
        backoff = time.Second // reset after successful connect

        err = c.consume(ctx, conn)
        _ = conn.Close()
        if ctx.Err() != nil {
            return ctx.Err()
        }
        c.Log.WithError(err).Warn("booking-consumer: consume loop ended, reconnecting")
        if !sleep(ctx, 2*time.Second) {
            return ctx.Err()
        }
    }
}

func (c *AMQPConsumer) consume(ctx context.Context, conn *amqp.Connection) error {
    ch, err := conn.Channel()
    if err != nil {
        return fmt.Errorf("channel open: %w", err)
    }
    defer func() { _ = ch.Close() }()

    if err := ch.Qos(50, 0, false); err != nil {
        c.Log.WithError(err).Warn("booking-consumer: set QoS failed")
    }
    if _, err := ch.QueueDeclare(BookingConfirmedTopic, true, false, false, false, nil); err != nil {
        return fmt.Errorf("queue declare: %w", err)
    }
    msgs, err := ch.ConsumeWithContext(ctx, BookingConfirmedTopic, "", false, false, false, false, nil)
    if err != nil {
        return fmt.Errorf("queue consume: %w", err)
    }

    for {
        select {
        case <-ctx.Done():
            return ctx.Err()
        case d, ok := <-msgs:
            if !ok {
                return errors.New("deliveries channel closed")
            }
            if err := c.Recorder.Handle(d.Body); err != nil {
                c.Log.WithError(err).WithField("message_id", d.MessageId).Error("booking-consumer: handle message failed")
                if errors.Is(err, ErrMalformedEvent) {
                    _ = d.Nack(false, false)
                    continue
                }
                // back off before requeueing so a broken log file does not spin
                if !sleep(ctx, time.Second) {
                    _ = d.Nack(false, true)
                    return ctx.Err()
                }
                _ = d.Nack(false, true)
                continue
            }
            _ = d.Ack(false)
        }
    }
}

// RedisStreamConsumer reads the booking.confirmed stream in a consumer group.
// Subscriber may be set to read from another watermill transport; when nil a
// redisstream subscriber is built from Client.
type RedisStreamConsumer struct {
    Client        redis.UniversalClient
    Subscriber    message.Subscriber
    ConsumerGroup string
    Recorder      *Recorder
    Logger        watermill.LoggerAdapter
    Log           logrus.FieldLogger
}

func (c *RedisStreamConsumer) Run(ctx context.Context) error {
    sub := c.Subscriber
    if sub == nil {
        group := c.ConsumerGroup
        if group == "" {
            group = "booking-log"
        }
        rs, err := redisstream.NewSubscriber(redisstream.SubscriberConfig{
            Client:        c.Client,
            Unmarshaller:  redisstream.DefaultMarshallerUnmarshaller{},
            ConsumerGroup: group,
        }, c.Logger)
        if err != nil {
            return fmt.Errorf("redis stream subscriber: %w", err)
        }
        defer rs.Close()
        sub = rs
    }

    msgs, err := sub.Subscribe(ctx, BookingConfirmedTopic)
    if err != nil {
        return fmt.Errorf("redis stream subscribe: %w", err)
    }
    for msg := range msgs {
        c.handle(msg)
    }
    return ctx.Err()
}

// handle acks recorded and malformed messages and nacks the rest so the
// subscriber redelivers them.
func (c *RedisStreamConsumer) handle(msg *message.Message) {
    err := c.Recorder.Handle(msg.Payload)
    if err == nil {
        msg.Ack()
        return
    }
    c.Log.WithError(err).WithField("message_id", msg.UUID).Error("booking-consumer: handle message failed")
    if errors.Is(err, ErrMalformedEvent) {
        msg.Ack()
        return
    }
    msg.Nack()
}

func sleep(ctx context.Context, d time.Duration) bool {
    t := time.NewTimer(d)
    defer t.Stop()
    select {
    case <-ctx.Done():
        return false
    case <-t.C:
        return true
    }
}
