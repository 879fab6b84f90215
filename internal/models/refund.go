package models

import (
	"time"

	"github.com/google/uuid"
)

// Статусы заявки на возврат
const (
	RefundStatusPending   = "pending"
	RefundStatusApproved  = "approved"
	RefundStatusRejected  = "rejected"
	RefundStatusCompleted = "completed"
	RefundStatusCancelled = "cancelled"
)

// Причины возврата
const (
	RefundReasonNotReceived    = "not_received"
	RefundReasonNotAsDescribed = "not_as_described"
	RefundReasonDamaged        = "damaged"
	RefundReasonAgreement      = "cancelled_by_agreement"
	RefundReasonOther          = "other"
)

// RefundRequest представляет заявку покупателя на возврат средств из escrow.
// Заявка проходит собственный цикл: pending → approved/rejected/cancelled,
// approved → completed. Конечные статусы неизменяемы.
type RefundRequest struct {
	ID           int64     `db:"id" json:"id"`
	EscrowID     int64     `db:"escrow_id" json:"escrow_id"`
	BuyerID      uuid.UUID `db:"buyer_id" json:"buyer_id"`
	RefundAmount int64     `db:"refund_amount" json:"refund_amount"`
	Reason       string    `db:"reason" json:"reason"`
	Description  string    `db:"description" json:"description"`
	Status       string    `db:"status" json:"status"`
	// EvidencePath — относительный путь приложенного подтверждения (скриншот, документ).
	EvidencePath    *string    `db:"evidence_path" json:"evidence_path,omitempty"`
	CreatedAt       time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time  `db:"updated_at" json:"updated_at"`
	ExpiresAt       time.Time  `db:"expires_at" json:"expires_at"`
	ProcessedBy     *uuid.UUID `db:"processed_by" json:"processed_by,omitempty"`
	ProcessedAt     *time.Time `db:"processed_at" json:"processed_at,omitempty"`
	RejectionReason *string    `db:"rejection_reason" json:"rejection_reason,omitempty"`
}

// ValidRefundReason проверяет, что причина входит в известный набор.
func ValidRefundReason(reason string) bool {
	switch reason {
	case RefundReasonNotReceived, RefundReasonNotAsDescribed, RefundReasonDamaged,
		RefundReasonAgreement, RefundReasonOther:
		return true
	default:
		return false
	}
}

// RefundHistoryEntry — запись аудита выполненного возврата. Записывается
// один раз при завершении заявки и больше не изменяется.
type RefundHistoryEntry struct {
	ID           int64     `db:"id" json:"id"`
	RefundID     int64     `db:"refund_id" json:"refund_id"`
	EscrowID     int64     `db:"escrow_id" json:"escrow_id"`
	Amount       int64     `db:"amount" json:"amount"`
	IsFullRefund bool      `db:"is_full_refund" json:"is_full_refund"`
	ProcessedBy  uuid.UUID `db:"processed_by" json:"processed_by"`
	ProcessedAt  time.Time `db:"processed_at" json:"processed_at"`
}
