package models

import (
	"time"

	"github.com/google/uuid"
)

// Статусы escrow
const (
	EscrowStatusPending  = "pending"
	EscrowStatusDisputed = "disputed"
	EscrowStatusReleased = "released"
	EscrowStatusRefunded = "refunded"
)

// Escrow представляет защищённую сделку: средства покупателя удерживаются
// на кастодиальном счёте до выпуска продавцу или возврата.
type Escrow struct {
	ID             int64     `db:"id" json:"id"`
	BuyerID        uuid.UUID `db:"buyer_id" json:"buyer_id"`
	SellerID       uuid.UUID `db:"seller_id" json:"seller_id"`
	ArbiterID      uuid.UUID `db:"arbiter_id" json:"arbiter_id"`
	Token          string    `db:"token" json:"token"`
	Amount         int64     `db:"amount" json:"amount"`
	ReleasedAmount int64     `db:"released_amount" json:"released_amount"`
	Status         string    `db:"status" json:"status"`
	// RefundDeadline — крайний срок подачи заявок на возврат (nil = без срока).
	RefundDeadline     *time.Time `db:"refund_deadline" json:"refund_deadline,omitempty"`
	AllowPartialRefund bool       `db:"allow_partial_refund" json:"allow_partial_refund"`
	CreatedAt          time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time  `db:"updated_at" json:"updated_at"`
}

// RemainingAmount возвращает ещё не выпущенную часть суммы.
func (e *Escrow) RemainingAmount() int64 {
	return e.Amount - e.ReleasedAmount
}

// IsTerminal сообщает, достигла ли сделка конечного статуса.
// Из released и refunded переходов не существует.
func IsTerminalEscrowStatus(status string) bool {
	return status == EscrowStatusReleased || status == EscrowStatusRefunded
}

// CanTransitionEscrow проверяет допустимость перехода по графу статусов:
//
//	pending  → released | disputed | refunded
//	disputed → released | refunded
//
// Самопереходы и выходы из конечных статусов запрещены.
func CanTransitionEscrow(from, to string) bool {
	switch from {
	case EscrowStatusPending:
		return to == EscrowStatusReleased || to == EscrowStatusDisputed || to == EscrowStatusRefunded
	case EscrowStatusDisputed:
		return to == EscrowStatusReleased || to == EscrowStatusRefunded
	default:
		return false
	}
}

// FeeConfig хранит платформенную комиссию и администратора.
// Таблица содержит единственную строку (id = 1).
type FeeConfig struct {
	ID           int16      `db:"id" json:"-"`
	AdminID      *uuid.UUID `db:"admin_id" json:"admin_id,omitempty"`
	FeeCollector *uuid.UUID `db:"fee_collector" json:"fee_collector,omitempty"`
	FeeBps       int64      `db:"fee_bps" json:"fee_bps"`
	MinFee       int64      `db:"min_fee" json:"min_fee"`
	UpdatedAt    time.Time  `db:"updated_at" json:"updated_at"`
}

// MaxFeeBps — верхняя граница комиссии: 10 000 базисных пунктов = 100%.
const MaxFeeBps = 10_000
