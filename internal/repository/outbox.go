package repository

import (
	"database/sql"

	"github.com/ThreeDotsLabs/watermill"
	watermillSQL "github.com/ThreeDotsLabs/watermill-sql/v2/pkg/sql"
	"github.com/ThreeDotsLabs/watermill/components/forwarder"
	"github.com/ThreeDotsLabs/watermill/message"
)

// DefaultOutboxTopic names the table (watermill_<topic>) holding messages
// waiting for the relay.
const DefaultOutboxTopic = "booking_outbox"

// Outbox writes messages into the MySQL outbox table inside a caller's
// transaction.  Each message is enveloped with its destination topic so the
// forwarder relay can deliver it later.
type Outbox struct {
	topic  string
	logger watermill.LoggerAdapter
}

func NewOutbox(topic string, logger watermill.LoggerAdapter) *Outbox {
	if topic == "" {
		topic = DefaultOutboxTopic
	}
	return &Outbox{topic: topic, logger: logger}
}

// Topic is the forwarder topic the relay must subscribe to.
func (o *Outbox) Topic() string { return o.topic }

// PublishTx stages msg for destination topic within tx.  The outbox table
// must exist already; schema auto-initialisation is not possible inside a
// transaction.
func (o *Outbox) PublishTx(tx *sql.Tx, topic string, msg *message.Message) error {
	pub, err := watermillSQL.NewPublisher(tx, watermillSQL.PublisherConfig{
		SchemaAdapter: watermillSQL.DefaultMySQLSchema{},
	}, o.logger)
	if err != nil {
		return err
	}
	fwd := forwarder.NewPublisher(pub, forwarder.PublisherConfig{ForwarderTopic: o.topic})
	return fwd.Publish(topic, msg)
}
