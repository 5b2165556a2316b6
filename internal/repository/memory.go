package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/metinatakli/cinex-booking/internal/domain"
)

// MemoryStore keeps shows and bookings in process memory with the same
// version-checked write semantics as the PostgreSQL repositories. Each
// method is atomic.
type MemoryStore struct {
	mu       sync.Mutex
	shows    map[int64]domain.Show
	bookings map[int64]domain.Booking
	byRef    map[string]int64
	nextShow int64
	nextBook int64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		shows:    make(map[int64]domain.Show),
		bookings: make(map[int64]domain.Booking),
		byRef:    make(map[string]int64),
	}
}

func (m *MemoryStore) CreateShow(ctx context.Context, show *domain.Show) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextShow++
	show.ID = m.nextShow
	m.shows[show.ID] = *show

	return nil
}

func (m *MemoryStore) GetShow(ctx context.Context, id int64) (*domain.Show, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	show, ok := m.shows[id]
	if !ok {
		return nil, domain.ErrRecordNotFound
	}

	return &show, nil
}

func (m *MemoryStore) WriteShow(ctx context.Context, next domain.Show, expectedVersion int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.checkShow(next.ID, expectedVersion); err != nil {
		return err
	}

	m.shows[next.ID] = next
	return nil
}

func (m *MemoryStore) checkShow(id int64, expectedVersion int) error {
	current, ok := m.shows[id]
	if !ok {
		return domain.ErrRecordNotFound
	}

	if current.Version != expectedVersion {
		return domain.ErrVersionConflict
	}

	return nil
}

func (m *MemoryStore) CreateBooking(ctx context.Context, b *domain.Booking, show domain.Show, expectedShowVersion int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.checkShow(show.ID, expectedShowVersion); err != nil {
		return err
	}

	if err := domain.CheckSeatsFree(b.Seats, m.heldSeatIDs(b.ShowID)); err != nil {
		return err
	}

	m.nextBook++
	b.ID = m.nextBook

	m.shows[show.ID] = show
	m.bookings[b.ID] = copyBooking(*b)
	m.byRef[b.Reference] = b.ID

	return nil
}

func (m *MemoryStore) GetBooking(ctx context.Context, id int64) (*domain.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	b, ok := m.bookings[id]
	if !ok {
		return nil, domain.ErrRecordNotFound
	}

	b = copyBooking(b)
	return &b, nil
}

func (m *MemoryStore) GetBookingByReference(ctx context.Context, reference string) (*domain.Booking, error) {
	m.mu.Lock()
	id, ok := m.byRef[reference]
	m.mu.Unlock()

	if !ok {
		return nil, domain.ErrRecordNotFound
	}

	return m.GetBooking(ctx, id)
}

func (m *MemoryStore) UpdateBooking(ctx context.Context, next domain.Booking, expectedVersion int, show *domain.ShowWrite) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	current, ok := m.bookings[next.ID]
	if !ok {
		return domain.ErrRecordNotFound
	}

	if current.Version != expectedVersion {
		return domain.ErrVersionConflict
	}

	if show != nil {
		if err := m.checkShow(show.Next.ID, show.ExpectedVersion); err != nil {
			return err
		}
		m.shows[show.Next.ID] = show.Next
	}

	// Seats are owned by the booking and never change after creation.
	next.Seats = current.Seats
	m.bookings[next.ID] = copyBooking(next)

	return nil
}

func (m *MemoryStore) HeldSeatIDs(ctx context.Context, showID int64) ([]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.heldSeatIDs(showID), nil
}

func (m *MemoryStore) heldSeatIDs(showID int64) []int64 {
	held := make([]int64, 0)
	for _, b := range m.bookings {
		if b.ShowID == showID && b.HoldsSeats() {
			held = append(held, b.SeatIDs()...)
		}
	}
	return held
}

func (m *MemoryStore) ListExpiredPending(ctx context.Context, now time.Time, limit int) ([]domain.Booking, error) {
	return m.list(limit, func(b domain.Booking) (bool, time.Time) {
		return b.Status == domain.BookingStatusPending && b.ExpiresAt.Before(now), b.ExpiresAt
	}), nil
}

func (m *MemoryStore) ListCompletable(ctx context.Context, endedBefore time.Time, limit int) ([]domain.Booking, error) {
	m.mu.Lock()
	shows := make(map[int64]domain.Show, len(m.shows))
	for id, s := range m.shows {
		shows[id] = s
	}
	m.mu.Unlock()

	return m.list(limit, func(b domain.Booking) (bool, time.Time) {
		show := shows[b.ShowID]
		return b.Status == domain.BookingStatusConfirmed && show.EndsAt.Before(endedBefore), show.EndsAt
	}), nil
}

func (m *MemoryStore) list(limit int, match func(domain.Booking) (bool, time.Time)) []domain.Booking {
	m.mu.Lock()
	defer m.mu.Unlock()

	type candidate struct {
		booking domain.Booking
		order   time.Time
	}

	candidates := make([]candidate, 0)
	for _, b := range m.bookings {
		if ok, order := match(b); ok {
			b.Seats = nil
			candidates = append(candidates, candidate{booking: b, order: order})
		}
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].order.Equal(candidates[j].order) {
			return candidates[i].booking.ID < candidates[j].booking.ID
		}
		return candidates[i].order.Before(candidates[j].order)
	})

	if limit > 0 && len(candidates) > limit {
		candidates = candidates[:limit]
	}

	bookings := make([]domain.Booking, 0, len(candidates))
	for _, c := range candidates {
		bookings = append(bookings, c.booking)
	}

	return bookings
}

func copyBooking(b domain.Booking) domain.Booking {
	b.Seats = append([]domain.SeatSnapshot(nil), b.Seats...)
	return b
}

// MemoryUserRepository is an in-process domain.UserRepository.
type MemoryUserRepository struct {
	mu      sync.Mutex
	users   map[string]domain.User
	nextID  int64
	nowFunc func() time.Time
}

func NewMemoryUserRepository() *MemoryUserRepository {
	return &MemoryUserRepository{
		users:   make(map[string]domain.User),
		nowFunc: time.Now,
	}
}

func (m *MemoryUserRepository) Create(ctx context.Context, user *domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := domain.NormalizeEmail(user.Email)
	if _, exists := m.users[key]; exists {
		return domain.ErrUserAlreadyExists
	}

	m.nextID++
	user.ID = m.nextID
	user.CreatedAt = m.nowFunc()
	user.Version = 1
	m.users[key] = *user

	return nil
}

func (m *MemoryUserRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	user, ok := m.users[domain.NormalizeEmail(email)]
	if !ok {
		return nil, domain.ErrRecordNotFound
	}

	return &user, nil
}

func (m *MemoryUserRepository) GetByID(ctx context.Context, id int64) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, user := range m.users {
		if user.ID == id {
			return &user, nil
		}
	}

	return nil, domain.ErrRecordNotFound
}
