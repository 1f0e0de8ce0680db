// Package queue defines the booking messages exchanged over the event bus and
// the consumer that records them.
package queue

import (
    "encoding/json"
    "time"

    "github.com/ThreeDotsLabs/watermill/message"
    "github.com/google/uuid"
)

// BookingConfirmedTopic is both the RabbitMQ queue name and the Redis stream
// that carries BookingConfirmedEvent messages.
const BookingConfirmedTopic = "booking.confirmed"

// BookingConfirmedEvent is published once per committed booking.  Consumers
// must tolerate duplicates; EventID identifies a delivery.
type BookingConfirmedEvent struct {
    EventID     string `json:"event_id"`
    BookingID   uint64 `json:"booking_id"`
    UserID      uint64 `json:"user_id"`
    ShowID      uint64 `json:"show_id"`
    SeatCount   int    `json:"seat_count"`
    ConfirmedAt string `json:"confirmed_at"`
}

// NewBookingConfirmed builds the event for a booking committed at createdAt.
func NewBookingConfirmed(bookingID, userID, showID uint64, seats int, createdAt time.Time) BookingConfirmedEvent {
    return BookingConfirmedEvent{
        EventID:     uuid.NewString(),
        BookingID:   bookingID,
        UserID:      userID,
        ShowID:      showID,
        SeatCount:   seats,
        ConfirmedAt: createdAt.UTC().Format(time.RFC3339Nano),
    }
}

// Message wraps the event in a watermill message whose UUID is the EventID.
func (e BookingConfirmedEvent) Message() (*message.Message, error) {
    body, err := json.Marshal(e)
    if err != nil {
        return nil, err
    }
    msg := message.NewMessage(e.EventID, body)
    msg.Metadata.Set("content_type", "application/json")
    msg.Metadata.Set("event_name", "BookingConfirmed")
    return msg, nil
}

// DecodeBookingConfirmed parses a message body.
func DecodeBookingConfirmed(body []byte) (BookingConfirmedEvent, error) {
    var ev BookingConfirmedEvent
    err := json.Unmarshal(body, &ev)
    return ev, err
}
