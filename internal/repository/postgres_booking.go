package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/metinatakli/cinex-booking/internal/domain"
)

type PostgresBookingRepository struct {
	db *pgxpool.Pool
}

func NewPostgresBookingRepository(db *pgxpool.Pool) *PostgresBookingRepository {
	return &PostgresBookingRepository{
		db: db,
	}
}

const bookingColumns = `
	b.id, b.reference, b.show_id, b.user_id, b.number_of_seats, b.status, b.payment_status,
	b.payment_reference, b.total_amount, b.refund_amount, b.created_at, b.expires_at,
	b.confirmed_at, b.cancelled_at, b.cancellation_reason, b.version`

func scanBooking(row pgx.Row) (*domain.Booking, error) {
	var b domain.Booking

	err := row.Scan(
		&b.ID,
		&b.Reference,
		&b.ShowID,
		&b.UserID,
		&b.NumberOfSeats,
		&b.Status,
		&b.PaymentStatus,
		&b.PaymentReference,
		&b.TotalAmount,
		&b.RefundAmount,
		&b.CreatedAt,
		&b.ExpiresAt,
		&b.ConfirmedAt,
		&b.CancelledAt,
		&b.CancellationReason,
		&b.Version,
	)
	if err != nil {
		return nil, err
	}

	return &b, nil
}

func (p *PostgresBookingRepository) CreateBooking(
	ctx context.Context,
	b *domain.Booking,
	show domain.Show,
	expectedShowVersion int) error {

	return runInTx(ctx, p.db, func(tx pgx.Tx) error {
		err := writeShow(ctx, tx, show, expectedShowVersion)
		if err != nil {
			return err
		}

		query := `
			INSERT INTO bookings (
				reference, show_id, user_id, number_of_seats, status, payment_status, payment_reference,
				total_amount, refund_amount, created_at, expires_at, cancellation_reason, version)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
			RETURNING id`

		err = tx.QueryRow(
			ctx,
			query,
			b.Reference,
			b.ShowID,
			b.UserID,
			b.NumberOfSeats,
			b.Status,
			b.PaymentStatus,
			b.PaymentReference,
			b.TotalAmount,
			b.RefundAmount,
			b.CreatedAt,
			b.ExpiresAt,
			b.CancellationReason,
			b.Version).Scan(&b.ID)
		if err != nil {
			return err
		}

		seatsQuery := `
			INSERT INTO booking_seats (booking_id, show_id, seat_id, seat_row, seat_number, category, price)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`

		batch := &pgx.Batch{}
		for _, seat := range b.Seats {
			batch.Queue(seatsQuery, b.ID, b.ShowID, seat.SeatID, seat.Row, seat.Number, seat.Category, seat.Price)
		}

		err = tx.SendBatch(ctx, batch).Close()
		if err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
				return domain.ErrSeatAlreadyBooked
			}

			return err
		}

		return nil
	})
}

// HeldSeatIDs returns the seat ids of the show's bookings that are neither
// cancelled nor expired.
func (p *PostgresBookingRepository) HeldSeatIDs(ctx context.Context, showID int64) ([]int64, error) {
	query := `
		SELECT seat_id
		FROM booking_seats
		WHERE show_id = $1 AND held`

	rows, err := p.db.Query(ctx, query, showID)
	if err != nil {
		return nil, err
	}

	defer rows.Close()

	held := make([]int64, 0)

	for rows.Next() {
		var seatID int64
		if err = rows.Scan(&seatID); err != nil {
			return nil, err
		}

		held = append(held, seatID)
	}

	if err = rows.Err(); err != nil {
		return nil, err
	}

	return held, nil
}

func (p *PostgresBookingRepository) GetBooking(ctx context.Context, id int64) (*domain.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings b WHERE b.id = $1`
	return p.getWithSeats(ctx, query, id)
}

func (p *PostgresBookingRepository) GetBookingByReference(ctx context.Context, reference string) (*domain.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings b WHERE b.reference = $1`
	return p.getWithSeats(ctx, query, reference)
}

func (p *PostgresBookingRepository) getWithSeats(ctx context.Context, query string, arg any) (*domain.Booking, error) {
	b, err := scanBooking(p.db.QueryRow(ctx, query, arg))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrRecordNotFound
		}
		return nil, err
	}

	seatsQuery := `
		SELECT seat_id, seat_row, seat_number, category, price
		FROM booking_seats
		WHERE booking_id = $1
		ORDER BY seat_row, seat_number`

	rows, err := p.db.Query(ctx, seatsQuery, b.ID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var seat domain.SeatSnapshot

		err = rows.Scan(&seat.SeatID, &seat.Row, &seat.Number, &seat.Category, &seat.Price)
		if err != nil {
			return nil, err
		}

		b.Seats = append(b.Seats, seat)
	}

	if err = rows.Err(); err != nil {
		return nil, err
	}

	return b, nil
}

func (p *PostgresBookingRepository) UpdateBooking(
	ctx context.Context,
	next domain.Booking,
	expectedVersion int,
	show *domain.ShowWrite) error {

	return runInTx(ctx, p.db, func(tx pgx.Tx) error {
		query := `
			UPDATE bookings
			SET status = $2,
				payment_status = $3,
				payment_reference = $4,
				refund_amount = $5,
				confirmed_at = $6,
				cancelled_at = $7,
				cancellation_reason = $8,
				version = $9
			WHERE id = $1 AND version = $10`

		tag, err := tx.Exec(ctx,
			query,
			next.ID,
			next.Status,
			next.PaymentStatus,
			next.PaymentReference,
			next.RefundAmount,
			next.ConfirmedAt,
			next.CancelledAt,
			next.CancellationReason,
			next.Version,
			expectedVersion)
		if err != nil {
			return err
		}

		if tag.RowsAffected() == 0 {
			return missingOrConflict(ctx, tx, "bookings", next.ID)
		}

		if !next.HoldsSeats() {
			_, err = tx.Exec(ctx, `UPDATE booking_seats SET held = FALSE WHERE booking_id = $1`, next.ID)
			if err != nil {
				return err
			}
		}

		if show == nil {
			return nil
		}

		return writeShow(ctx, tx, show.Next, show.ExpectedVersion)
	})
}

// ListExpiredPending returns pending bookings whose hold ended before now.
// Seat snapshots are not loaded.
func (p *PostgresBookingRepository) ListExpiredPending(ctx context.Context, now time.Time, limit int) ([]domain.Booking, error) {
	query := `
		SELECT ` + bookingColumns + `
		FROM bookings b
		WHERE b.status = 'PENDING' AND b.expires_at < $1
		ORDER BY b.expires_at
		LIMIT $2`

	return p.list(ctx, query, now, limit)
}

// ListCompletable returns confirmed bookings whose show ended before
// endedBefore. Seat snapshots are not loaded.
func (p *PostgresBookingRepository) ListCompletable(ctx context.Context, endedBefore time.Time, limit int) ([]domain.Booking, error) {
	query := `
		SELECT ` + bookingColumns + `
		FROM bookings b
		JOIN shows s ON s.id = b.show_id
		WHERE b.status = 'CONFIRMED' AND s.ends_at < $1
		ORDER BY s.ends_at
		LIMIT $2`

	return p.list(ctx, query, endedBefore, limit)
}

func (p *PostgresBookingRepository) list(ctx context.Context, query string, args ...any) ([]domain.Booking, error) {
	rows, err := p.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	bookings := make([]domain.Booking, 0)

	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}

		bookings = append(bookings, *b)
	}

	if err = rows.Err(); err != nil {
		return nil, err
	}

	return bookings, nil
}
