package model

import "time"

// Show represents a scheduled screening of an event at a venue.  Its
// capacity is fixed at creation; BookedSeats is the only column the
// reservation engine ever writes.
//
// Fields:
//  ID             – primary key identifier.
//  EventID        – event being screened.
//  VenueName      – name of the venue (cinema, theatre).
//  AuditoriumName – room inside the venue.
//  StartsAt       – when the show begins.
//  EndsAt         – StartsAt plus the event duration.
//  TotalSeats     – capacity, positive and immutable.
//  BookedSeats    – seats already booked, 0 ≤ BookedSeats ≤ TotalSeats.
//  CreatedAt      – creation timestamp.
//  UpdatedAt      – last update timestamp.
type Show struct {
    ID             uint64    // shows.id
    EventID        uint64    // shows.event_id
    VenueName      string    // shows.venue_name
    AuditoriumName string    // shows.auditorium_name
    StartsAt       time.Time // shows.starts_at
    EndsAt         time.Time // shows.ends_at
    TotalSeats     int       // shows.total_seats
    BookedSeats    int       // shows.booked_seats
    CreatedAt      time.Time // shows.created_at
    UpdatedAt      time.Time // shows.updated_at
}

// Available returns the number of seats that can still be booked.
func (s Show) Available() int {
    if s.BookedSeats >= s.TotalSeats {
        return 0
    }
    return s.TotalSeats - s.BookedSeats
}
