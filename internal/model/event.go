package model

import "time"

// Event is a catalog entry (a film, a concert) that shows are scheduled
// for.  DurationMinutes drives the end time of every show of the event.
type Event struct {
    ID              uint64    // events.id
    Title           string    // events.title
    City            string    // events.city
    Language        string    // events.language
    Genre           string    // events.genre
    DurationMinutes int       // events.duration_minutes
    Rating          float64   // events.rating
    CreatedAt       time.Time // events.created_at
    UpdatedAt       time.Time // events.updated_at
}
