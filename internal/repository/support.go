package repository

import (
	"context"
	"errors"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/enerhogar/energia-tracker/internal/common"
	"github.com/enerhogar/energia-tracker/internal/entity"
)

type SupportRepository interface {
	Create(ctx context.Context, userID int64, subject, message string) (entity.SupportTicket, error)
	ListByUser(ctx context.Context, userID int64) ([]entity.SupportTicket, error)
	UpdateStatus(ctx context.Context, id int64, status string) (entity.SupportTicket, error)
	Delete(ctx context.Context, id int64) error
}

type supportRepository struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

func NewSupportRepository(pool *pgxpool.Pool, logger *slog.Logger) SupportRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &supportRepository{pool: pool, logger: logger}
}

const ticketColumns = `id, user_id, subject, message, status, created_at, updated_at`

func (r *supportRepository) Create(ctx context.Context, userID int64, subject, message string) (entity.SupportTicket, error) {
	const q = `
		INSERT INTO support_tickets (user_id, subject, message, status)
		VALUES ($1, $2, $3, $4)
		RETURNING ` + ticketColumns

	var t entity.SupportTicket
	err := r.pool.QueryRow(ctx, q, userID, subject, message, entity.TicketOpen).Scan(
		&t.ID, &t.UserID, &t.Subject, &t.Message, &t.Status, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		r.logger.Error("failed to create support ticket", "user_id", userID, "error", err)
		return entity.SupportTicket{}, err
	}
	return t, nil
}

func (r *supportRepository) ListByUser(ctx context.Context, userID int64) ([]entity.SupportTicket, error) {
	const q = `SELECT ` + ticketColumns + ` FROM support_tickets WHERE user_id = $1 ORDER BY created_at DESC`

	rows, err := r.pool.Query(ctx, q, userID)
	if err != nil {
		r.logger.Error("failed to list support tickets", "user_id", userID, "error", err)
		return nil, err
	}
	defer rows.Close()

	var out []entity.SupportTicket
	for rows.Next() {
		var t entity.SupportTicket
		if err := rows.Scan(&t.ID, &t.UserID, &t.Subject, &t.Message, &t.Status, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (r *supportRepository) UpdateStatus(ctx context.Context, id int64, status string) (entity.SupportTicket, error) {
	const q = `
		UPDATE support_tickets
		SET status = $2, updated_at = now()
		WHERE id = $1
		RETURNING ` + ticketColumns

	var t entity.SupportTicket
	err := r.pool.QueryRow(ctx, q, id, status).Scan(
		&t.ID, &t.UserID, &t.Subject, &t.Message, &t.Status, &t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return entity.SupportTicket{}, common.ErrNotFound
	}
	if err != nil {
		r.logger.Error("failed to update support ticket", "id", id, "error", err)
		return entity.SupportTicket{}, err
	}
	return t, nil
}

func (r *supportRepository) Delete(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM support_tickets WHERE id = $1`, id)
	if err != nil {
		r.logger.Error("failed to delete support ticket", "id", id, "error", err)
		return err
	}
	if tag.RowsAffected() == 0 {
		return common.ErrNotFound
	}
	return nil
}
