package booking

import (
	"errors"
	"fmt"

	"github.com/iliyamo/cinema-show-booking/internal/repository"
)

var (
	// ErrShowNotFound: the show does not exist.  Terminal.
	ErrShowNotFound = repository.ErrShowNotFound

	// ErrInsufficientCapacity: the request asks for more seats than remain,
	// or for zero or fewer seats.  Terminal for that request.
	ErrInsufficientCapacity = errors.New("insufficient capacity")

	// ErrTransientConflict: the show could not be locked in time.  Nothing
	// was written; the caller may retry with backoff.
	ErrTransientConflict = errors.New("transient conflict")

	// ErrUserNotResolved: no user could be resolved for the caller.
	ErrUserNotResolved = errors.New("user not resolved")
)

// CapacityError carries the numbers behind an ErrInsufficientCapacity.
type CapacityError struct {
	ShowID    uint64
	Requested int
	Available int
}

func (e *CapacityError) Error() string {
	return fmt.Sprintf("insufficient capacity on show %d: requested %d, available %d", e.ShowID, e.Requested, e.Available)
}

func (e *CapacityError) Is(target error) bool { return target == ErrInsufficientCapacity }
