package ledger

import (
	"context"
	"fmt"
	"sync"
)

// MemoryLedger — простая внутрипроцессная реализация Ledger для разработки
// и тестов. Продовая интеграция подключает внешний расчётный контур через
// тот же интерфейс.
type MemoryLedger struct {
	mu       sync.Mutex
	balances map[string]int64

	// TransferHook, если задан, вызывается после каждого успешного перевода.
	// Используется в тестах для моделирования внешних вызовов.
	TransferHook func(token, from, to string, amount int64)
}

// NewMemoryLedger создаёт пустой реестр счетов.
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{balances: make(map[string]int64)}
}

func key(token, account string) string {
	return token + "/" + account
}

// Credit зачисляет средства на счёт (эмиссия для dev-окружения и тестов).
func (l *MemoryLedger) Credit(token, account string, amount int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.balances[key(token, account)] += amount
}

// Transfer переводит средства между счетами.
func (l *MemoryLedger) Transfer(ctx context.Context, token, from, to string, amount int64) error {
	if amount < 0 {
		return fmt.Errorf("ledger: отрицательная сумма перевода %d", amount)
	}

	l.mu.Lock()
	fromKey, toKey := key(token, from), key(token, to)
	if l.balances[fromKey] < amount {
		l.mu.Unlock()
		return ErrInsufficientFunds
	}
	l.balances[fromKey] -= amount
	l.balances[toKey] += amount
	hook := l.TransferHook
	l.mu.Unlock()

	if hook != nil {
		hook(token, from, to, amount)
	}
	return nil
}

// Balance возвращает баланс счёта.
func (l *MemoryLedger) Balance(ctx context.Context, token, account string) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balances[key(token, account)], nil
}
