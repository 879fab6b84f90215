package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/ignatzorin/escrow-platform/internal/models"
	"github.com/ignatzorin/escrow-platform/internal/repository/common"
)

// ErrEscrowNotFound возвращается, когда запись сделки не найдена.
var ErrEscrowNotFound = errors.New("escrow not found")

// EscrowRepository отвечает за таблицу escrow: идентификаторы выдаёт
// последовательность БД, индекс по id служит постраничным каталогом.
type EscrowRepository struct {
	db *sqlx.DB
}

// NewEscrowRepository создаёт экземпляр репозитория.
func NewEscrowRepository(db *sqlx.DB) *EscrowRepository {
	return &EscrowRepository{db: db}
}

// Create сохраняет новую сделку и заполняет присвоенный ID и временные метки.
func (r *EscrowRepository) Create(ctx context.Context, escrow *models.Escrow) error {
	query := `
		INSERT INTO escrow (buyer_id, seller_id, arbiter_id, token, amount, released_amount, status, refund_deadline, allow_partial_refund)
		VALUES ($1, $2, $3, $4, $5, 0, $6, $7, $8)
		RETURNING id, created_at, updated_at
	`

	if err := r.db.QueryRowxContext(
		ctx, query,
		escrow.BuyerID, escrow.SellerID, escrow.ArbiterID, escrow.Token,
		escrow.Amount, escrow.Status, escrow.RefundDeadline, escrow.AllowPartialRefund,
	).Scan(&escrow.ID, &escrow.CreatedAt, &escrow.UpdatedAt); err != nil {
		return fmt.Errorf("escrow repository: create %w", err)
	}

	return nil
}

// CreateBatch сохраняет набор сделок в одной транзакции: либо создаются все,
// либо ни одна.
func (r *EscrowRepository) CreateBatch(ctx context.Context, escrows []*models.Escrow) error {
	return common.WithTransaction(ctx, r.db, func(tx *sqlx.Tx) error {
		query := `
			INSERT INTO escrow (buyer_id, seller_id, arbiter_id, token, amount, released_amount, status, refund_deadline, allow_partial_refund)
			VALUES ($1, $2, $3, $4, $5, 0, $6, $7, $8)
			RETURNING id, created_at, updated_at
		`
		for _, escrow := range escrows {
			if err := tx.QueryRowxContext(
				ctx, query,
				escrow.BuyerID, escrow.SellerID, escrow.ArbiterID, escrow.Token,
				escrow.Amount, escrow.Status, escrow.RefundDeadline, escrow.AllowPartialRefund,
			).Scan(&escrow.ID, &escrow.CreatedAt, &escrow.UpdatedAt); err != nil {
				return fmt.Errorf("escrow repository: create batch %w", err)
			}
		}
		return nil
	})
}

// GetByID возвращает сделку по идентификатору.
func (r *EscrowRepository) GetByID(ctx context.Context, id int64) (*models.Escrow, error) {
	return common.GetByID[models.Escrow](ctx, r.db, "escrow", id, ErrEscrowNotFound)
}

// Update сохраняет изменяемые поля сделки.
func (r *EscrowRepository) Update(ctx context.Context, escrow *models.Escrow) error {
	query := `
		UPDATE escrow
		SET amount = $2, released_amount = $3, status = $4, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at
	`
	if err := r.db.QueryRowxContext(
		ctx, query,
		escrow.ID, escrow.Amount, escrow.ReleasedAmount, escrow.Status,
	).Scan(&escrow.UpdatedAt); err != nil {
		return fmt.Errorf("escrow repository: update %w", err)
	}

	return nil
}

// ListIDs возвращает страницу идентификаторов сделок в порядке возрастания.
// При выходе start за пределы каталога возвращается пустой срез.
func (r *EscrowRepository) ListIDs(ctx context.Context, start, limit int64) ([]int64, error) {
	ids := []int64{}
	query := `SELECT id FROM escrow ORDER BY id OFFSET $1 LIMIT $2`
	if err := r.db.SelectContext(ctx, &ids, query, start, limit); err != nil {
		return nil, fmt.Errorf("escrow repository: list ids %w", err)
	}

	return ids, nil
}

// Count возвращает общее число сделок.
func (r *EscrowRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM escrow`); err != nil {
		return 0, fmt.Errorf("escrow repository: count %w", err)
	}

	return count, nil
}
