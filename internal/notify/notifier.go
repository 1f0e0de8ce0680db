// Package notify delivers BookingConfirmed messages to the event bus.
//
// The Notifier never blocks or fails a reservation: events go into a
// bounded buffer drained by a small worker pool, and every delivery problem
// ends in a log entry.  The Relay is the outbox alternative, forwarding
// messages written inside reservation transactions.
package notify

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/cinema-show-booking/internal/queue"
)

type Options struct {
	Topic          string
	Buffer         int
	Workers        int
	PublishTimeout time.Duration
}

// Stats counts delivery outcomes since start.
type Stats struct {
	Published uint64
	Failed    uint64
	Dropped   uint64
}

type Notifier struct {
	pub     message.Publisher
	topic   string
	timeout time.Duration
	log     logrus.FieldLogger

	mu     sync.RWMutex
	closed bool
	events chan queue.BookingConfirmedEvent
	wg     sync.WaitGroup

	published, failed, dropped atomic.Uint64
}

// NewNotifier starts the workers.  Close must be called to stop them.
func NewNotifier(pub message.Publisher, opts Options, log logrus.FieldLogger) *Notifier {
	if opts.Topic == "" {
		opts.Topic = queue.BookingConfirmedTopic
	}
	if opts.Buffer < 1 {
		opts.Buffer = 1
	}
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.PublishTimeout <= 0 {
		opts.PublishTimeout = 3 * time.Second
	}
	n := &Notifier{
		pub:     pub,
		topic:   opts.Topic,
		timeout: opts.PublishTimeout,
		log:     log.WithField("component", "notifier"),
		events:  make(chan queue.BookingConfirmedEvent, opts.Buffer),
	}
	for i := 0; i < opts.Workers; i++ {
		n.wg.Add(1)
		go n.work()
	}
	return n
}

// Notify enqueues ev for delivery.  A full buffer or a closed notifier drops
// the event with a warning.
func (n *Notifier) Notify(_ context.Context, ev queue.BookingConfirmedEvent) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	if n.closed {
		n.drop(ev, "notifier closed")
		return
	}
	select {
	case n.events <- ev:
	default:
		n.drop(ev, "buffer full")
	}
}

// Close stops accepting events, delivers what is buffered and waits for
// the workers.  It does not close the publisher.
func (n *Notifier) Close() error {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return nil
	}
	n.closed = true
	close(n.events)
	n.mu.Unlock()
	n.wg.Wait()
	return nil
}

func (n *Notifier) Stats() Stats {
	return Stats{Published: n.published.Load(), Failed: n.failed.Load(), Dropped: n.dropped.Load()}
}

func (n *Notifier) work() {
	defer n.wg.Done()
	for ev := range n.events {
		n.publish(ev)
	}
}

func (n *Notifier) publish(ev queue.BookingConfirmedEvent) {
	entry := n.log.WithFields(logrus.Fields{
		"event_id":   ev.EventID,
		"booking_id": ev.BookingID,
		"show_id":    ev.ShowID,
	})
	msg, err := ev.Message()
	if err != nil {
		n.failed.Add(1)
		entry.WithError(err).Error("encode booking confirmation")
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), n.timeout)
	defer cancel()
	msg.SetContext(ctx)

	if err := n.pub.Publish(n.topic, msg); err != nil {
		n.failed.Add(1)
		entry.WithError(err).Warn("publish booking confirmation failed")
		return
	}
	n.published.Add(1)
	entry.Debug("booking confirmation published")
}

func (n *Notifier) drop(ev queue.BookingConfirmedEvent, reason string) {
	n.dropped.Add(1)
	n.log.WithFields(logrus.Fields{
		"event_id":   ev.EventID,
		"booking_id": ev.BookingID,
		"reason":     reason,
	}).Warn("booking confirmation dropped")
}
