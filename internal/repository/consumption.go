package repository

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/enerhogar/energia-tracker/internal/common"
	"github.com/enerhogar/energia-tracker/internal/entity"
)

// UpdateConsumptionParams carries the mutable fields of a consumption entry;
// nil means "keep the stored value".
type UpdateConsumptionParams struct {
	RecordedAt     *time.Time
	ConsumptionKWH *float64
	Cost           *int64
}

type ConsumptionRepository interface {
	AddEntry(ctx context.Context, userID int64, recordedAt time.Time, kwh float64, cost int64) error
	Create(ctx context.Context, userID int64, recordedAt time.Time, kwh float64, cost *int64) (entity.ConsumptionEntry, error)
	List(ctx context.Context) ([]entity.ConsumptionEntry, error)
	ListByUser(ctx context.Context, userID int64) ([]entity.ConsumptionEntry, error)
	GetByID(ctx context.Context, id int64) (entity.ConsumptionEntry, error)
	Update(ctx context.Context, id int64, params UpdateConsumptionParams) (entity.ConsumptionEntry, error)
	Delete(ctx context.Context, id int64) error
	LastMonth(ctx context.Context, userID int64, now time.Time) ([]entity.ConsumptionEntry, error)
}

type consumptionRepository struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

func NewConsumptionRepository(pool *pgxpool.Pool, logger *slog.Logger) ConsumptionRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &consumptionRepository{pool: pool, logger: logger}
}

const consumptionColumns = `id, user_id, recorded_at, consumption_kwh, cost, created_at`

// AddEntry is the pipeline-facing insert: it records the companion
// consumption point for a committed invoice.
func (r *consumptionRepository) AddEntry(ctx context.Context, userID int64, recordedAt time.Time, kwh float64, cost int64) error {
	_, err := r.Create(ctx, userID, recordedAt, kwh, &cost)
	return err
}

func (r *consumptionRepository) Create(ctx context.Context, userID int64, recordedAt time.Time, kwh float64, cost *int64) (entity.ConsumptionEntry, error) {
	const q = `
		INSERT INTO consumption_history (user_id, recorded_at, consumption_kwh, cost)
		VALUES ($1, $2, $3, $4)
		RETURNING ` + consumptionColumns

	var e entity.ConsumptionEntry
	err := r.pool.QueryRow(ctx, q, userID, recordedAt, kwh, cost).Scan(
		&e.ID, &e.UserID, &e.RecordedAt, &e.ConsumptionKWH, &e.Cost, &e.CreatedAt)
	if err != nil {
		r.logger.Error("failed to create consumption entry", "user_id", userID, "error", err)
		return entity.ConsumptionEntry{}, err
	}
	return e, nil
}

func (r *consumptionRepository) List(ctx context.Context) ([]entity.ConsumptionEntry, error) {
	const q = `SELECT ` + consumptionColumns + ` FROM consumption_history ORDER BY recorded_at DESC`
	return r.query(ctx, q)
}

func (r *consumptionRepository) ListByUser(ctx context.Context, userID int64) ([]entity.ConsumptionEntry, error) {
	const q = `SELECT ` + consumptionColumns + ` FROM consumption_history WHERE user_id = $1 ORDER BY recorded_at ASC`
	return r.query(ctx, q, userID)
}

func (r *consumptionRepository) GetByID(ctx context.Context, id int64) (entity.ConsumptionEntry, error) {
	const q = `SELECT ` + consumptionColumns + ` FROM consumption_history WHERE id = $1`

	var e entity.ConsumptionEntry
	err := r.pool.QueryRow(ctx, q, id).Scan(
		&e.ID, &e.UserID, &e.RecordedAt, &e.ConsumptionKWH, &e.Cost, &e.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return entity.ConsumptionEntry{}, common.ErrNotFound
	}
	if err != nil {
		return entity.ConsumptionEntry{}, err
	}
	return e, nil
}

func (r *consumptionRepository) Update(ctx context.Context, id int64, params UpdateConsumptionParams) (entity.ConsumptionEntry, error) {
	const q = `
		UPDATE consumption_history
		SET recorded_at     = COALESCE($2, recorded_at),
		    consumption_kwh = COALESCE($3, consumption_kwh),
		    cost            = COALESCE($4, cost)
		WHERE id = $1
		RETURNING ` + consumptionColumns

	var e entity.ConsumptionEntry
	err := r.pool.QueryRow(ctx, q, id, params.RecordedAt, params.ConsumptionKWH, params.Cost).Scan(
		&e.ID, &e.UserID, &e.RecordedAt, &e.ConsumptionKWH, &e.Cost, &e.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return entity.ConsumptionEntry{}, common.ErrNotFound
	}
	if err != nil {
		r.logger.Error("failed to update consumption entry", "id", id, "error", err)
		return entity.ConsumptionEntry{}, err
	}
	return e, nil
}

func (r *consumptionRepository) Delete(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM consumption_history WHERE id = $1`, id)
	if err != nil {
		r.logger.Error("failed to delete consumption entry", "id", id, "error", err)
		return err
	}
	if tag.RowsAffected() == 0 {
		return common.ErrNotFound
	}
	return nil
}

// LastMonth returns a user's entries recorded within the calendar month
// preceding now, oldest first.
func (r *consumptionRepository) LastMonth(ctx context.Context, userID int64, now time.Time) ([]entity.ConsumptionEntry, error) {
	from := now.AddDate(0, -1, 0)
	const q = `
		SELECT ` + consumptionColumns + `
		FROM consumption_history
		WHERE user_id = $1 AND recorded_at >= $2 AND recorded_at <= $3
		ORDER BY recorded_at ASC`
	return r.query(ctx, q, userID, from, now)
}

func (r *consumptionRepository) query(ctx context.Context, q string, args ...any) ([]entity.ConsumptionEntry, error) {
	rows, err := r.pool.Query(ctx, q, args...)
	if err != nil {
		r.logger.Error("consumption query failed", "error", err)
		return nil, err
	}
	defer rows.Close()

	var out []entity.ConsumptionEntry
	for rows.Next() {
		var e entity.ConsumptionEntry
		if err := rows.Scan(&e.ID, &e.UserID, &e.RecordedAt, &e.ConsumptionKWH, &e.Cost, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
