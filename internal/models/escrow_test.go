package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanTransitionEscrow(t *testing.T) {
	allowed := map[[2]string]bool{
		{EscrowStatusPending, EscrowStatusReleased}:  true,
		{EscrowStatusPending, EscrowStatusDisputed}:  true,
		{EscrowStatusPending, EscrowStatusRefunded}:  true,
		{EscrowStatusDisputed, EscrowStatusReleased}: true,
		{EscrowStatusDisputed, EscrowStatusRefunded}: true,
	}

	statuses := []string{EscrowStatusPending, EscrowStatusDisputed, EscrowStatusReleased, EscrowStatusRefunded}
	for _, from := range statuses {
		for _, to := range statuses {
			assert.Equal(t, allowed[[2]string{from, to}], CanTransitionEscrow(from, to), "%s → %s", from, to)
		}
	}
}

func TestIsTerminalEscrowStatus(t *testing.T) {
	assert.False(t, IsTerminalEscrowStatus(EscrowStatusPending))
	assert.False(t, IsTerminalEscrowStatus(EscrowStatusDisputed))
	assert.True(t, IsTerminalEscrowStatus(EscrowStatusReleased))
	assert.True(t, IsTerminalEscrowStatus(EscrowStatusRefunded))
}

func TestRemainingAmount(t *testing.T) {
	escrow := &Escrow{Amount: 1_000, ReleasedAmount: 400}
	assert.Equal(t, int64(600), escrow.RemainingAmount())
}
