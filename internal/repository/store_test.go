package repository

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/metinatakli/cinex-booking/internal/domain"
	"github.com/metinatakli/cinex-booking/internal/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

// StoreSuite checks the conditional write contract shared by every store.
type StoreSuite struct {
	suite.Suite
	shows    domain.ShowRepository
	bookings domain.BookingRepository
	ctx      context.Context
	now      time.Time
}

func (s *StoreSuite) SetupSuite() {
	s.ctx = context.Background()
	s.now = time.Now().UTC().Truncate(time.Microsecond)
}

func (s *StoreSuite) createShow(total int, startsIn time.Duration) domain.Show {
	show, err := domain.NewShow(total, s.now.Add(startsIn), s.now.Add(startsIn+2*time.Hour))
	s.Require().NoError(err)
	s.Require().NoError(s.shows.CreateShow(s.ctx, &show))
	s.Require().NotZero(show.ID)
	return show
}

func (s *StoreSuite) createBooking(show domain.Show, createdAt time.Time, seatIDs ...int64) domain.Booking {
	seats := make([]domain.SeatSnapshot, 0, len(seatIDs))
	for _, id := range seatIDs {
		seats = append(seats, domain.SeatSnapshot{
			SeatID:   id,
			Row:      "B",
			Number:   int(id),
			Category: "PREMIUM",
			Price:    decimal.RequireFromString("15.00"),
		})
	}

	b, _, err := domain.NewBooking(show, 1, seats, createdAt)
	s.Require().NoError(err)

	next, err := domain.BookSeats(show, b.NumberOfSeats)
	s.Require().NoError(err)
	s.Require().NoError(s.bookings.CreateBooking(s.ctx, &b, next, show.Version))
	s.Require().NotZero(b.ID)

	return b
}

func (s *StoreSuite) TestWriteShowIsConditional() {
	show := s.createShow(10, 48*time.Hour)

	next, err := domain.BookSeats(show, 6)
	s.Require().NoError(err)
	s.Require().NoError(s.shows.WriteShow(s.ctx, next, show.Version))

	stale, err := domain.BookSeats(show, 6)
	s.Require().NoError(err)
	s.ErrorIs(s.shows.WriteShow(s.ctx, stale, show.Version), domain.ErrVersionConflict)

	got, err := s.shows.GetShow(s.ctx, show.ID)
	s.Require().NoError(err)
	s.Equal(4, got.AvailableSeats)
	s.Equal(6, got.BookedSeats)
	s.Equal(show.Version+1, got.Version)
	s.True(got.Consistent())
}

func (s *StoreSuite) TestMissingShow() {
	_, err := s.shows.GetShow(s.ctx, 999999)
	s.ErrorIs(err, domain.ErrRecordNotFound)

	s.ErrorIs(s.shows.WriteShow(s.ctx, domain.Show{ID: 999999, Version: 2}, 1), domain.ErrRecordNotFound)
}

func (s *StoreSuite) TestCreateBookingPersistsSnapshot() {
	show := s.createShow(10, 48*time.Hour)
	b := s.createBooking(show, s.now, 3, 4)

	got, err := s.bookings.GetBookingByReference(s.ctx, b.Reference)
	s.Require().NoError(err)
	s.Equal(b.ID, got.ID)
	s.Equal(domain.BookingStatusPending, got.Status)
	s.Equal(2, got.NumberOfSeats)
	s.Len(got.Seats, 2)
	s.True(got.TotalAmount.Equal(decimal.RequireFromString("30")))
	s.True(got.ExpiresAt.Equal(b.ExpiresAt))

	updatedShow, err := s.shows.GetShow(s.ctx, show.ID)
	s.Require().NoError(err)
	s.Equal(8, updatedShow.AvailableSeats)
}

func (s *StoreSuite) TestCreateBookingWithStaleShowWritesNothing() {
	show := s.createShow(10, 48*time.Hour)
	s.createBooking(show, s.now, 1)

	b, _, err := domain.NewBooking(show, 1, []domain.SeatSnapshot{{SeatID: 2, Price: decimal.NewFromInt(5)}}, s.now)
	s.Require().NoError(err)
	next, err := domain.BookSeats(show, 1)
	s.Require().NoError(err)

	err = s.bookings.CreateBooking(s.ctx, &b, next, show.Version)
	s.ErrorIs(err, domain.ErrVersionConflict)

	_, err = s.bookings.GetBookingByReference(s.ctx, b.Reference)
	s.ErrorIs(err, domain.ErrRecordNotFound)
}

func (s *StoreSuite) TestUpdateBookingWithShowIsOneUnit() {
	show := s.createShow(10, 48*time.Hour)
	b := s.createBooking(show, s.now.Add(-20*time.Minute), 1, 2)

	current, err := s.shows.GetShow(s.ctx, show.ID)
	s.Require().NoError(err)

	expired, ev, err := domain.Expire(b, s.now)
	s.Require().NoError(err)
	released, err := domain.ReleaseSeats(*current, ev.SeatsReleased)
	s.Require().NoError(err)

	// A stale show version must roll the booking update back as well.
	err = s.bookings.UpdateBooking(s.ctx, expired, b.Version,
		&domain.ShowWrite{Next: released, ExpectedVersion: current.Version - 1})
	s.ErrorIs(err, domain.ErrVersionConflict)

	got, err := s.bookings.GetBooking(s.ctx, b.ID)
	s.Require().NoError(err)
	s.Equal(domain.BookingStatusPending, got.Status)

	err = s.bookings.UpdateBooking(s.ctx, expired, b.Version,
		&domain.ShowWrite{Next: released, ExpectedVersion: current.Version})
	s.Require().NoError(err)

	got, err = s.bookings.GetBooking(s.ctx, b.ID)
	s.Require().NoError(err)
	s.Equal(domain.BookingStatusExpired, got.Status)
	s.Len(got.Seats, 2)

	after, err := s.shows.GetShow(s.ctx, show.ID)
	s.Require().NoError(err)
	s.Equal(10, after.AvailableSeats)

	err = s.bookings.UpdateBooking(s.ctx, expired, b.Version, nil)
	s.ErrorIs(err, domain.ErrVersionConflict)
}

func (s *StoreSuite) TestCreateBookingRejectsHeldSeat() {
	show := s.createShow(10, 48*time.Hour)
	b := s.createBooking(show, s.now.Add(-20*time.Minute), 1, 2)

	held, err := s.bookings.HeldSeatIDs(s.ctx, show.ID)
	s.Require().NoError(err)
	s.ElementsMatch([]int64{1, 2}, held)

	current, err := s.shows.GetShow(s.ctx, show.ID)
	s.Require().NoError(err)

	clash, _, err := domain.NewBooking(*current, 2, []domain.SeatSnapshot{
		{SeatID: 2, Price: decimal.NewFromInt(5)},
		{SeatID: 3, Price: decimal.NewFromInt(5)},
	}, s.now)
	s.Require().NoError(err)
	next, err := domain.BookSeats(*current, clash.NumberOfSeats)
	s.Require().NoError(err)

	err = s.bookings.CreateBooking(s.ctx, &clash, next, current.Version)
	s.ErrorIs(err, domain.ErrSeatAlreadyBooked)

	after, err := s.shows.GetShow(s.ctx, show.ID)
	s.Require().NoError(err)
	s.Equal(8, after.AvailableSeats)

	expired, ev, err := domain.Expire(b, s.now)
	s.Require().NoError(err)
	released, err := domain.ReleaseSeats(*after, ev.SeatsReleased)
	s.Require().NoError(err)
	s.Require().NoError(s.bookings.UpdateBooking(s.ctx, expired, b.Version,
		&domain.ShowWrite{Next: released, ExpectedVersion: after.Version}))

	held, err = s.bookings.HeldSeatIDs(s.ctx, show.ID)
	s.Require().NoError(err)
	s.Empty(held)

	current, err = s.shows.GetShow(s.ctx, show.ID)
	s.Require().NoError(err)
	s.createBooking(*current, s.now, 2, 3)
}

func (s *StoreSuite) TestListExpiredPending() {
	show := s.createShow(20, 48*time.Hour)
	old := s.createBooking(show, s.now.Add(-time.Hour), 1)

	show2, err := s.shows.GetShow(s.ctx, show.ID)
	s.Require().NoError(err)
	fresh := s.createBooking(*show2, s.now, 2)

	got, err := s.bookings.ListExpiredPending(s.ctx, s.now, 100)
	s.Require().NoError(err)

	ids := make(map[int64]bool)
	for _, b := range got {
		ids[b.ID] = true
		s.Equal(domain.BookingStatusPending, b.Status)
	}
	s.True(ids[old.ID])
	s.False(ids[fresh.ID])
}

func (s *StoreSuite) TestListCompletable() {
	show := s.createShow(5, time.Hour)
	b := s.createBooking(show, s.now, 1)

	paid, _, err := domain.ApplyPayment(b, domain.PaymentResult{Success: true, Reference: "pay", Status: domain.PaymentStatusCompleted}, s.now)
	s.Require().NoError(err)
	s.Require().NoError(s.bookings.UpdateBooking(s.ctx, paid, b.Version, nil))

	got, err := s.bookings.ListCompletable(s.ctx, show.EndsAt.Add(time.Minute), 100)
	s.Require().NoError(err)

	found := false
	for _, c := range got {
		if c.ID == b.ID {
			found = true
			s.Equal(domain.BookingStatusConfirmed, c.Status)
		}
	}
	s.True(found)

	got, err = s.bookings.ListCompletable(s.ctx, show.EndsAt.Add(-time.Minute), 100)
	s.Require().NoError(err)
	for _, c := range got {
		s.NotEqual(b.ID, c.ID)
	}
}

func (s *StoreSuite) TestConcurrentWritersNeverOversell() {
	show := s.createShow(10, 48*time.Hour)

	var wg sync.WaitGroup
	results := make(chan error, 8)

	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()

			current, err := s.shows.GetShow(s.ctx, show.ID)
			if err != nil {
				results <- err
				return
			}

			next, err := domain.BookSeats(*current, 3)
			if err != nil {
				results <- err
				return
			}

			results <- s.shows.WriteShow(s.ctx, next, current.Version)
		}()
	}

	wg.Wait()
	close(results)

	committed := 0
	for err := range results {
		if err == nil {
			committed += 3
			continue
		}
		s.True(errors.Is(err, domain.ErrVersionConflict) || errors.Is(err, domain.ErrInsufficientSeats),
			"unexpected error %v", err)
	}

	got, err := s.shows.GetShow(s.ctx, show.ID)
	s.Require().NoError(err)
	s.LessOrEqual(committed, 10)
	s.Equal(committed, got.BookedSeats)
	s.True(got.Consistent())
}

func TestMemoryStore(t *testing.T) {
	store := NewMemoryStore()
	suite.Run(t, &StoreSuite{shows: store, bookings: store})
}

func TestPostgresStore(t *testing.T) {
	db := testutil.Postgres(t)
	suite.Run(t, &StoreSuite{
		shows:    NewPostgresShowRepository(db),
		bookings: NewPostgresBookingRepository(db),
	})
}

func TestMemoryUserRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryUserRepository()

	user := &domain.User{FirstName: "Jane", LastName: "Doe", Email: "Jane@Example.com"}
	require.NoError(t, repo.Create(ctx, user))
	assert.NotZero(t, user.ID)

	err := repo.Create(ctx, &domain.User{Email: "jane@example.com"})
	assert.ErrorIs(t, err, domain.ErrUserAlreadyExists)

	got, err := repo.GetByEmail(ctx, "JANE@example.com")
	require.NoError(t, err)
	assert.Equal(t, user.ID, got.ID)

	_, err = repo.GetByEmail(ctx, "john@example.com")
	assert.ErrorIs(t, err, domain.ErrRecordNotFound)

	byID, err := repo.GetByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, "Jane@Example.com", byID.Email)

	_, err = repo.GetByID(ctx, user.ID+100)
	assert.ErrorIs(t, err, domain.ErrRecordNotFound)
}

func TestPostgresUserRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewPostgresUserRepository(testutil.Postgres(t))

	user := &domain.User{FirstName: "Jane", LastName: "Doe", Email: "jane@example.com"}
	require.NoError(t, user.Password.Set("Secret123!"))
	require.NoError(t, repo.Create(ctx, user))
	assert.NotZero(t, user.ID)

	dup := &domain.User{FirstName: "Jane", LastName: "Doe", Email: "JANE@example.com"}
	require.NoError(t, dup.Password.Set("Secret123!"))
	assert.ErrorIs(t, repo.Create(ctx, dup), domain.ErrUserAlreadyExists)

	got, err := repo.GetByEmail(ctx, "Jane@Example.com")
	require.NoError(t, err)
	ok, err := got.Password.Matches("Secret123!")
	require.NoError(t, err)
	assert.True(t, ok)

	byID, err := repo.GetByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, "jane@example.com", byID.Email)
}
