package notify

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	watermillSQL "github.com/ThreeDotsLabs/watermill-sql/v2/pkg/sql"
	"github.com/ThreeDotsLabs/watermill/components/forwarder"
	"github.com/ThreeDotsLabs/watermill/message"
)

// Relay moves messages staged in the MySQL outbox to the event bus.  A
// message leaves the outbox only after the bus accepted it, so delivery is
// at least once.
type Relay struct {
	fwd *forwarder.Forwarder
}

// NewRelay creates the outbox table when missing and prepares the
// forwarder.  topic must match the one the engine stages into.
func NewRelay(db *sql.DB, topic string, out message.Publisher, logger watermill.LoggerAdapter) (*Relay, error) {
	sub, err := watermillSQL.NewSubscriber(db, watermillSQL.SubscriberConfig{
		SchemaAdapter:    watermillSQL.DefaultMySQLSchema{},
		OffsetsAdapter:   watermillSQL.DefaultMySQLOffsetsAdapter{},
		PollInterval:     500 * time.Millisecond,
		InitializeSchema: true,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("outbox subscriber: %w", err)
	}
	if err := sub.SubscribeInitialize(topic); err != nil {
		return nil, fmt.Errorf("outbox schema: %w", err)
	}
	fwd, err := forwarder.NewForwarder(sub, out, logger, forwarder.Config{ForwarderTopic: topic})
	if err != nil {
		return nil, fmt.Errorf("outbox forwarder: %w", err)
	}
	return &Relay{fwd: fwd}, nil
}

// Run blocks until ctx is done or the forwarder fails.
func (r *Relay) Run(ctx context.Context) error { return r.fwd.Run(ctx) }

// Running is closed once the relay is consuming.
func (r *Relay) Running() chan struct{} { return r.fwd.Running() }

func (r *Relay) Close() error { return r.fwd.Close() }
