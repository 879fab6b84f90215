package ledger

import (
	"context"
	"errors"
	"fmt"
)

// ErrInsufficientFunds возвращается, когда на счёте недостаточно средств.
var ErrInsufficientFunds = errors.New("insufficient funds")

// Ledger — порт внешней системы движения средств. Движок escrow не хранит
// деньги сам: он только даёт распоряжения о переводах между счетами и
// проверяет баланс кастодиального счёта сделки.
type Ledger interface {
	// Transfer переводит amount единиц токена со счёта from на счёт to.
	Transfer(ctx context.Context, token, from, to string, amount int64) error
	// Balance возвращает баланс счёта в указанном токене.
	Balance(ctx context.Context, token, account string) (int64, error)
}

// EscrowAccount возвращает имя кастодиального счёта сделки.
// Наличие средств на этом счёте и есть признак профинансированности.
func EscrowAccount(escrowID int64) string {
	return fmt.Sprintf("escrow:%d", escrowID)
}

// UserAccount возвращает имя счёта участника.
func UserAccount(userID string) string {
	return "user:" + userID
}
