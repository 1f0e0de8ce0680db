package model

import "time"

// Booking is a committed reservation of SeatCount seats on one show by one
// user.  Rows are append-only; every field is immutable once written.
//
// Fields:
//  ID        – primary key, assigned on insert.
//  UserID    – user who booked.
//  ShowID    – show the seats were taken from.
//  SeatCount – seats booked; equals the capacity taken from the show.
//  CreatedAt – commit time of the reservation (UTC, microseconds).
type Booking struct {
    ID        uint64    // bookings.id
    UserID    uint64    // bookings.user_id
    ShowID    uint64    // bookings.show_id
    SeatCount int       // bookings.seat_count
    CreatedAt time.Time // bookings.created_at
}
