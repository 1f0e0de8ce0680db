// Package memstore is an in-process implementation of the show inventory,
// booking ledger and outbox.  Each show has its own lock so reservations on
// different shows never wait for one another.  It backs tests and local runs
// without MySQL.
package memstore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/iliyamo/cinema-show-booking/internal/model"
	"github.com/iliyamo/cinema-show-booking/internal/repository"
)

// Staged is an outbox entry written by a committed unit of work.
type Staged struct {
	Topic string
	Msg   *message.Message
}

// Store keeps shows, bookings and staged messages in memory.
type Store struct {
	mu       sync.RWMutex
	shows    map[uint64]model.Show
	bookings []model.Booking
	staged   []Staged

	lockMu sync.Mutex
	locks  map[uint64]chan struct{}

	showSeq    atomic.Uint64
	bookingSeq atomic.Uint64

	failMu     sync.Mutex
	failCommit error
}

var _ repository.TxStore = (*Store)(nil)

func New() *Store {
	return &Store{
		shows: map[uint64]model.Show{},
		locks: map[uint64]chan struct{}{},
	}
}

// AddShow stores s, assigning an ID when it has none.
func (s *Store) AddShow(show model.Show) model.Show {
	if show.ID == 0 {
		show.ID = s.showSeq.Add(1)
	}
	s.mu.Lock()
	s.shows[show.ID] = show
	s.mu.Unlock()
	return show
}

// FailNextCommit makes the next Commit return err without applying writes.
func (s *Store) FailNextCommit(err error) {
	s.failMu.Lock()
	s.failCommit = err
	s.failMu.Unlock()
}

func (s *Store) GetByID(_ context.Context, id uint64) (model.Show, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	show, ok := s.shows[id]
	if !ok {
		return model.Show{}, repository.ErrShowNotFound
	}
	return show, nil
}

func (s *Store) ListByUser(_ context.Context, userID uint64) ([]model.Booking, error) {
	return s.filter(func(b model.Booking) bool { return b.UserID == userID }), nil
}

func (s *Store) ListAll(_ context.Context) ([]model.Booking, error) {
	return s.filter(func(model.Booking) bool { return true }), nil
}

// SeatsByShow sums seat_count over the committed bookings of a show.
func (s *Store) SeatsByShow(_ context.Context, showID uint64) (int, error) {
	n := 0
	for _, b := range s.filter(func(b model.Booking) bool { return b.ShowID == showID }) {
		n += b.SeatCount
	}
	return n, nil
}

// Staged returns the messages written by committed units of work.
func (s *Store) Staged() []Staged {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Staged(nil), s.staged...)
}

func (s *Store) filter(keep func(model.Booking) bool) []model.Booking {
	s.mu.RLock()
	out := []model.Booking{}
	for _, b := range s.bookings {
		if keep(b) {
			out = append(out, b)
		}
	}
	s.mu.RUnlock()
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

func (s *Store) showLock(id uint64) chan struct{} {
	s.lockMu.Lock()
	defer s.lockMu.Unlock()
	ch, ok := s.locks[id]
	if !ok {
		ch = make(chan struct{}, 1)
		s.locks[id] = ch
	}
	return ch
}

func (s *Store) Begin(ctx context.Context) (repository.UnitOfWork, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &unit{
		store:  s,
		held:   map[uint64]chan struct{}{},
		booked: map[uint64]int{},
	}, nil
}

type unit struct {
	store    *Store
	held     map[uint64]chan struct{}
	booked   map[uint64]int
	bookings []model.Booking
	staged   []Staged
	done     bool
}

func (u *unit) LockShow(ctx context.Context, showID uint64) (model.Show, error) {
	if u.done {
		return model.Show{}, errors.New("memstore: unit of work finished")
	}
	if _, ok := u.held[showID]; !ok {
		if _, err := u.store.GetByID(ctx, showID); err != nil {
			return model.Show{}, err
		}
		ch := u.store.showLock(showID)
		select {
		case ch <- struct{}{}:
			u.held[showID] = ch
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.Canceled) {
				return model.Show{}, ctx.Err()
			}
			return model.Show{}, fmt.Errorf("%w: show %d: %v", repository.ErrLockTimeout, showID, ctx.Err())
		}
	}
	// re-read under the lock so the caller sees the latest committed value
	show, err := u.store.GetByID(ctx, showID)
	if err != nil {
		return model.Show{}, err
	}
	if v, ok := u.booked[showID]; ok {
		show.BookedSeats = v
	}
	return show, nil
}

func (u *unit) SetBookedSeats(_ context.Context, showID uint64, booked int) error {
	if _, ok := u.held[showID]; !ok {
		return fmt.Errorf("memstore: show %d is not locked", showID)
	}
	u.booked[showID] = booked
	return nil
}

func (u *unit) InsertBooking(_ context.Context, b *model.Booking) error {
	if _, ok := u.held[b.ShowID]; !ok {
		return fmt.Errorf("memstore: show %d is not locked", b.ShowID)
	}
	b.ID = u.store.bookingSeq.Add(1)
	u.bookings = append(u.bookings, *b)
	return nil
}

func (u *unit) Stage(_ context.Context, topic string, msg *message.Message) error {
	u.staged = append(u.staged, Staged{Topic: topic, Msg: msg})
	return nil
}

func (u *unit) Commit() error {
	if u.done {
		return errors.New("memstore: unit of work finished")
	}
	defer u.release()

	u.store.failMu.Lock()
	fail := u.store.failCommit
	u.store.failCommit = nil
	u.store.failMu.Unlock()
	if fail != nil {
		return fail
	}

	s := u.store
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, booked := range u.booked {
		show, ok := s.shows[id]
		if !ok {
			return repository.ErrShowNotFound
		}
		if booked < 0 || booked > show.TotalSeats {
			return fmt.Errorf("memstore: show %d booked_seats %d out of range", id, booked)
		}
	}
	for id, booked := range u.booked {
		show := s.shows[id]
		show.BookedSeats = booked
		s.shows[id] = show
	}
	s.bookings = append(s.bookings, u.bookings...)
	s.staged = append(s.staged, u.staged...)
	return nil
}

func (u *unit) Rollback() error {
	if u.done {
		return nil
	}
	u.release()
	return nil
}

func (u *unit) release() {
	u.done = true
	for id, ch := range u.held {
		<-ch
		delete(u.held, id)
	}
}
