package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/metinatakli/cinex-booking/internal/domain"
)

type PostgresShowRepository struct {
	db *pgxpool.Pool
}

func NewPostgresShowRepository(db *pgxpool.Pool) *PostgresShowRepository {
	return &PostgresShowRepository{
		db: db,
	}
}

func (p *PostgresShowRepository) CreateShow(ctx context.Context, show *domain.Show) error {
	query := `
		INSERT INTO shows (total_seats, booked_seats, available_seats, starts_at, ends_at, version)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`

	return p.db.QueryRow(ctx,
		query,
		show.TotalSeats,
		show.BookedSeats,
		show.AvailableSeats,
		show.StartsAt,
		show.EndsAt,
		show.Version).Scan(&show.ID)
}

func (p *PostgresShowRepository) GetShow(ctx context.Context, id int64) (*domain.Show, error) {
	return getShow(ctx, p.db, id)
}

func (p *PostgresShowRepository) WriteShow(ctx context.Context, next domain.Show, expectedVersion int) error {
	return writeShow(ctx, p.db, next, expectedVersion)
}

func getShow(ctx context.Context, q querier, id int64) (*domain.Show, error) {
	query := `
		SELECT id, total_seats, booked_seats, available_seats, starts_at, ends_at, version
		FROM shows
		WHERE id = $1`

	var show domain.Show

	err := q.QueryRow(ctx, query, id).Scan(
		&show.ID,
		&show.TotalSeats,
		&show.BookedSeats,
		&show.AvailableSeats,
		&show.StartsAt,
		&show.EndsAt,
		&show.Version,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrRecordNotFound
		}
		return nil, err
	}

	return &show, nil
}

// writeShow is the conditional write every seat count change goes through.
func writeShow(ctx context.Context, q querier, next domain.Show, expectedVersion int) error {
	query := `
		UPDATE shows
		SET booked_seats = $2, available_seats = $3, version = $4
		WHERE id = $1 AND version = $5`

	tag, err := q.Exec(ctx, query, next.ID, next.BookedSeats, next.AvailableSeats, next.Version, expectedVersion)
	if err != nil {
		return err
	}

	if tag.RowsAffected() == 0 {
		return missingOrConflict(ctx, q, "shows", next.ID)
	}

	return nil
}

// missingOrConflict tells a guarded update that matched no row apart from
// one that targeted a row that does not exist.
func missingOrConflict(ctx context.Context, q querier, table string, id int64) error {
	var exists bool

	err := q.QueryRow(ctx, "SELECT EXISTS (SELECT 1 FROM "+table+" WHERE id = $1)", id).Scan(&exists)
	if err != nil {
		return err
	}

	if !exists {
		return domain.ErrRecordNotFound
	}

	return domain.ErrVersionConflict
}
