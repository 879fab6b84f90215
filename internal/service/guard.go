package service

import (
	"sync"

	"github.com/ignatzorin/escrow-platform/internal/pkg/apperror"
)

// ReentrancyGuard защищает операции выпуска средств от повторного входа.
// Замок берётся на конкретную сделку: параллельная работа с разными
// сделками не сериализуется, вложенный вход по той же сделке запрещён.
type ReentrancyGuard struct {
	mu     sync.Mutex
	locked map[int64]bool
}

// NewReentrancyGuard создаёт пустой guard.
func NewReentrancyGuard() *ReentrancyGuard {
	return &ReentrancyGuard{locked: make(map[int64]bool)}
}

// Enter занимает замок сделки. Возвращает ReentrancyDetected, если замок
// уже занят. Успешный Enter обязан сопровождаться defer Exit.
func (g *ReentrancyGuard) Enter(escrowID int64) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.locked[escrowID] {
		return apperror.ErrReentrancyDetected
	}
	g.locked[escrowID] = true
	return nil
}

// Exit освобождает замок сделки.
func (g *ReentrancyGuard) Exit(escrowID int64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.locked, escrowID)
}
