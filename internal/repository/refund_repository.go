package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/ignatzorin/escrow-platform/internal/models"
	"github.com/ignatzorin/escrow-platform/internal/repository/common"
)

// ErrRefundRequestNotFound возвращается, когда заявка на возврат не найдена.
var ErrRefundRequestNotFound = errors.New("refund request not found")

// RefundRepository отвечает за таблицы refund_requests и refund_history.
type RefundRepository struct {
	db *sqlx.DB
}

// NewRefundRepository создаёт экземпляр репозитория.
func NewRefundRepository(db *sqlx.DB) *RefundRepository {
	return &RefundRepository{db: db}
}

// Create сохраняет новую заявку на возврат.
func (r *RefundRepository) Create(ctx context.Context, req *models.RefundRequest) error {
	query := `
		INSERT INTO refund_requests (escrow_id, buyer_id, refund_amount, reason, description, status, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at, updated_at
	`

	if err := r.db.QueryRowxContext(
		ctx, query,
		req.EscrowID, req.BuyerID, req.RefundAmount, req.Reason,
		req.Description, req.Status, req.ExpiresAt,
	).Scan(&req.ID, &req.CreatedAt, &req.UpdatedAt); err != nil {
		return fmt.Errorf("refund repository: create %w", err)
	}

	return nil
}

// GetByID возвращает заявку по идентификатору.
func (r *RefundRepository) GetByID(ctx context.Context, id int64) (*models.RefundRequest, error) {
	return common.GetByID[models.RefundRequest](ctx, r.db, "refund_requests", id, ErrRefundRequestNotFound)
}

// Update сохраняет изменяемые поля заявки.
func (r *RefundRepository) Update(ctx context.Context, req *models.RefundRequest) error {
	query := `
		UPDATE refund_requests
		SET status = $2, evidence_path = $3, processed_by = $4, processed_at = $5, rejection_reason = $6, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at
	`
	if err := r.db.QueryRowxContext(
		ctx, query,
		req.ID, req.Status, req.EvidencePath, req.ProcessedBy, req.ProcessedAt, req.RejectionReason,
	).Scan(&req.UpdatedAt); err != nil {
		return fmt.Errorf("refund repository: update %w", err)
	}

	return nil
}

// ListByEscrow возвращает все заявки по сделке, новые первыми.
func (r *RefundRepository) ListByEscrow(ctx context.Context, escrowID int64) ([]models.RefundRequest, error) {
	requests := []models.RefundRequest{}
	query := `SELECT * FROM refund_requests WHERE escrow_id = $1 ORDER BY created_at DESC`
	if err := r.db.SelectContext(ctx, &requests, query, escrowID); err != nil {
		return nil, fmt.Errorf("refund repository: list by escrow %w", err)
	}

	return requests, nil
}

// Complete атомарно фиксирует выполненный возврат: переводит заявку в
// completed, записывает новое состояние сделки и добавляет запись аудита.
func (r *RefundRepository) Complete(ctx context.Context, req *models.RefundRequest, escrow *models.Escrow, entry *models.RefundHistoryEntry) error {
	return common.WithTransaction(ctx, r.db, func(tx *sqlx.Tx) error {
		if err := tx.QueryRowxContext(ctx, `
			UPDATE refund_requests
			SET status = $2, processed_by = $3, processed_at = $4, updated_at = NOW()
			WHERE id = $1
			RETURNING updated_at
		`, req.ID, req.Status, req.ProcessedBy, req.ProcessedAt).Scan(&req.UpdatedAt); err != nil {
			return fmt.Errorf("refund repository: complete request %w", err)
		}

		if err := tx.QueryRowxContext(ctx, `
			UPDATE escrow
			SET amount = $2, released_amount = $3, status = $4, updated_at = NOW()
			WHERE id = $1
			RETURNING updated_at
		`, escrow.ID, escrow.Amount, escrow.ReleasedAmount, escrow.Status).Scan(&escrow.UpdatedAt); err != nil {
			return fmt.Errorf("refund repository: complete escrow %w", err)
		}

		if err := tx.QueryRowxContext(ctx, `
			INSERT INTO refund_history (refund_id, escrow_id, amount, is_full_refund, processed_by, processed_at)
			VALUES ($1, $2, $3, $4, $5, $6)
			RETURNING id
		`, entry.RefundID, entry.EscrowID, entry.Amount, entry.IsFullRefund,
			entry.ProcessedBy, entry.ProcessedAt).Scan(&entry.ID); err != nil {
			return fmt.Errorf("refund repository: complete history %w", err)
		}

		return nil
	})
}

// HistoryByEscrow возвращает записи аудита возвратов по сделке.
func (r *RefundRepository) HistoryByEscrow(ctx context.Context, escrowID int64) ([]models.RefundHistoryEntry, error) {
	entries := []models.RefundHistoryEntry{}
	query := `SELECT * FROM refund_history WHERE escrow_id = $1 ORDER BY processed_at`
	if err := r.db.SelectContext(ctx, &entries, query, escrowID); err != nil {
		return nil, fmt.Errorf("refund repository: history by escrow %w", err)
	}

	return entries, nil
}

// HistoryAll возвращает глобальную страницу записей аудита возвратов.
func (r *RefundRepository) HistoryAll(ctx context.Context, limit, offset int64) ([]models.RefundHistoryEntry, error) {
	entries := []models.RefundHistoryEntry{}
	query := `SELECT * FROM refund_history ORDER BY processed_at DESC LIMIT $1 OFFSET $2`
	if err := r.db.SelectContext(ctx, &entries, query, limit, offset); err != nil {
		return nil, fmt.Errorf("refund repository: history all %w", err)
	}

	return entries, nil
}
