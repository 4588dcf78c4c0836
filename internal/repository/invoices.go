package repository

import (
	"context"
	"errors"
	"log/slog"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/enerhogar/energia-tracker/internal/common"
	"github.com/enerhogar/energia-tracker/internal/entity"
	"github.com/enerhogar/energia-tracker/internal/extract"
)

const pgUniqueViolation = "23505"

type InvoiceRepository interface {
	CreateInvoice(ctx context.Context, userID int64, inv extract.Invoice) (int64, error)
	ListByUser(ctx context.Context, userID int64) ([]entity.Invoice, error)
}

type invoiceRepository struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

func NewInvoiceRepository(pool *pgxpool.Pool, logger *slog.Logger) InvoiceRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &invoiceRepository{pool: pool, logger: logger}
}

// CreateInvoice inserts a committed invoice. The payment_reference column
// carries a unique constraint enforced by the database at commit time; a
// violation surfaces as common.ErrDuplicateInvoice.
func (r *invoiceRepository) CreateInvoice(ctx context.Context, userID int64, inv extract.Invoice) (int64, error) {
	const q = `
		INSERT INTO invoices (user_id, contract_number, payment_reference, billing_date, consumption_kwh, total_amount)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`

	var id int64
	err := r.pool.QueryRow(ctx, q,
		userID, inv.ContractNumber, inv.PaymentReference, inv.BillingDate, inv.ConsumptionKWH, inv.TotalAmount,
	).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			r.logger.Warn("duplicate invoice rejected", "user_id", userID, "payment_reference", inv.PaymentReference)
			return 0, common.ErrDuplicateInvoice
		}
		r.logger.Error("failed to create invoice", "user_id", userID, "error", err)
		return 0, err
	}
	return id, nil
}

func (r *invoiceRepository) ListByUser(ctx context.Context, userID int64) ([]entity.Invoice, error) {
	const q = `
		SELECT id, user_id, contract_number, payment_reference, billing_date, consumption_kwh, total_amount, created_at
		FROM invoices
		WHERE user_id = $1
		ORDER BY billing_date DESC`

	rows, err := r.pool.Query(ctx, q, userID)
	if err != nil {
		r.logger.Error("failed to list invoices", "user_id", userID, "error", err)
		return nil, err
	}
	defer rows.Close()

	var out []entity.Invoice
	for rows.Next() {
		var inv entity.Invoice
		if err := rows.Scan(&inv.ID, &inv.UserID, &inv.ContractNumber, &inv.PaymentReference,
			&inv.BillingDate, &inv.ConsumptionKWH, &inv.TotalAmount, &inv.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, inv)
	}
	return out, rows.Err()
}
