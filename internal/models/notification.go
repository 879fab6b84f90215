package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Notification описывает доменное событие, доставленное участнику сделки.
// Каждая операция, меняющая состояние escrow или заявки на возврат,
// порождает уведомление для затронутых сторон.
type Notification struct {
	ID        uuid.UUID       `db:"id" json:"id"`
	UserID    uuid.UUID       `db:"user_id" json:"user_id"`
	Payload   json.RawMessage `db:"payload" json:"payload"`
	IsRead    bool            `db:"is_read" json:"is_read"`
	CreatedAt time.Time       `db:"created_at" json:"created_at"`
}

// Типы доменных событий
const (
	EventEscrowCreated    = "escrow.created"
	EventEscrowFunded     = "escrow.funded"
	EventEscrowReleased   = "escrow.released"
	EventEscrowPartial    = "escrow.partial_released"
	EventEscrowRefunded   = "escrow.refunded"
	EventEscrowStatus     = "escrow.status_changed"
	EventDisputeResolved  = "escrow.dispute_resolved"
	EventRefundSubmitted  = "refund.submitted"
	EventRefundApproved   = "refund.approved"
	EventRefundRejected   = "refund.rejected"
	EventRefundCompleted  = "refund.completed"
	EventRefundCancelled  = "refund.cancelled"
	EventFeeChanged       = "fee.changed"
	EventAdminTransferred = "admin.transferred"
)
