package domain

import (
	"context"
	"time"
)

// Show is the seat inventory of one scheduled screening. Values are treated as
// immutable: mutations return a new Show with Version incremented.
type Show struct {
	ID             int64
	TotalSeats     int
	BookedSeats    int
	AvailableSeats int
	StartsAt       time.Time
	EndsAt         time.Time
	Version        int
}

func NewShow(totalSeats int, startsAt, endsAt time.Time) (Show, error) {
	if totalSeats <= 0 {
		return Show{}, ErrInvalidSeatCount
	}

	return Show{
		TotalSeats:     totalSeats,
		AvailableSeats: totalSeats,
		StartsAt:       startsAt,
		EndsAt:         endsAt,
		Version:        1,
	}, nil
}

// BookSeats moves n seats from available to booked.
func BookSeats(s Show, n int) (Show, error) {
	if n <= 0 {
		return s, ErrInvalidSeatCount
	}

	if n > s.AvailableSeats {
		return s, ErrInsufficientSeats
	}

	s.AvailableSeats -= n
	s.BookedSeats += n
	s.Version++

	return s, nil
}

// ReleaseSeats moves n seats from booked back to available.
func ReleaseSeats(s Show, n int) (Show, error) {
	if n <= 0 {
		return s, ErrInvalidSeatCount
	}

	if n > s.BookedSeats {
		return s, ErrOverRelease
	}

	s.AvailableSeats += n
	s.BookedSeats -= n
	s.Version++

	return s, nil
}

// Consistent reports whether booked and available seats add up to the total.
func (s Show) Consistent() bool {
	return s.BookedSeats+s.AvailableSeats == s.TotalSeats &&
		s.BookedSeats >= 0 && s.AvailableSeats >= 0
}

// HoursUntilStart returns the fractional number of hours between now and the
// start of the show. It is negative once the show has started.
func (s Show) HoursUntilStart(now time.Time) float64 {
	return s.StartsAt.Sub(now).Hours()
}

type ShowRepository interface {
	CreateShow(ctx context.Context, show *Show) error
	GetShow(ctx context.Context, id int64) (*Show, error)
	// WriteShow stores next only if the persisted version still equals
	// expectedVersion, returning ErrVersionConflict otherwise.
	WriteShow(ctx context.Context, next Show, expectedVersion int) error
}
