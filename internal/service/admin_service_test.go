package service

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignatzorin/escrow-platform/internal/models"
	"github.com/ignatzorin/escrow-platform/internal/pkg/apperror"
)

func TestAdminService_Initialize(t *testing.T) {
	configs := newFakeConfigRepo()
	events := &fakeEvents{}
	svc := NewAdminService(configs, events)
	ctx := context.Background()

	admin := uuid.New()
	collector := uuid.New()

	// Первый вызов назначает администратора, кем бы ни был вызывающий.
	cfg, err := svc.Initialize(ctx, uuid.New(), InitializeParams{
		AdminID:      admin,
		FeeCollector: collector,
		FeeBps:       250,
		MinFee:       10,
	})
	require.NoError(t, err)
	require.NotNil(t, cfg.AdminID)
	assert.Equal(t, admin, *cfg.AdminID)
	assert.Equal(t, int64(250), cfg.FeeBps)

	// Повторный вызов требует полномочий действующего администратора.
	_, err = svc.Initialize(ctx, uuid.New(), InitializeParams{AdminID: uuid.New(), FeeCollector: collector, FeeBps: 100})
	assert.ErrorIs(t, err, apperror.ErrNotAdmin)

	// Повторный вызов администратором обновляет комиссию, но не меняет
	// самого администратора.
	other := uuid.New()
	cfg, err = svc.Initialize(ctx, admin, InitializeParams{AdminID: other, FeeCollector: collector, FeeBps: 100, MinFee: 5})
	require.NoError(t, err)
	assert.Equal(t, admin, *cfg.AdminID)
	assert.Equal(t, int64(100), cfg.FeeBps)
	assert.Equal(t, int64(5), cfg.MinFee)
}

func TestAdminService_Initialize_InvalidFee(t *testing.T) {
	svc := NewAdminService(newFakeConfigRepo(), nil)
	ctx := context.Background()

	for _, p := range []InitializeParams{
		{AdminID: uuid.New(), FeeCollector: uuid.New(), FeeBps: -1},
		{AdminID: uuid.New(), FeeCollector: uuid.New(), FeeBps: models.MaxFeeBps + 1},
		{AdminID: uuid.New(), FeeCollector: uuid.New(), MinFee: -1},
	} {
		_, err := svc.Initialize(ctx, uuid.New(), p)
		assert.ErrorIs(t, err, apperror.ErrInvalidFeeConfig)
	}
}

func TestAdminService_SetAdmin(t *testing.T) {
	configs := newFakeConfigRepo()
	events := &fakeEvents{}
	svc := NewAdminService(configs, events)
	ctx := context.Background()

	admin := uuid.New()
	_, err := svc.Initialize(ctx, admin, InitializeParams{AdminID: admin, FeeCollector: uuid.New()})
	require.NoError(t, err)

	_, err = svc.SetAdmin(ctx, uuid.New(), uuid.New())
	assert.ErrorIs(t, err, apperror.ErrNotAdmin)

	successor := uuid.New()
	cfg, err := svc.SetAdmin(ctx, admin, successor)
	require.NoError(t, err)
	assert.Equal(t, successor, *cfg.AdminID)
	assert.Contains(t, events.names(), models.EventAdminTransferred)

	// Прежний администратор теряет полномочия.
	_, err = svc.SetAdmin(ctx, admin, admin)
	assert.ErrorIs(t, err, apperror.ErrNotAdmin)
}

func TestAdminService_SetFee(t *testing.T) {
	configs := newFakeConfigRepo()
	svc := NewAdminService(configs, &fakeEvents{})
	ctx := context.Background()

	admin := uuid.New()
	_, err := svc.Initialize(ctx, admin, InitializeParams{AdminID: admin, FeeCollector: uuid.New(), FeeBps: 250})
	require.NoError(t, err)

	_, err = svc.SetFee(ctx, admin, models.MaxFeeBps+1, 0)
	assert.ErrorIs(t, err, apperror.ErrInvalidFeeConfig)
	_, err = svc.SetFee(ctx, uuid.New(), 100, 0)
	assert.ErrorIs(t, err, apperror.ErrNotAdmin)

	cfg, err := svc.SetFee(ctx, admin, 500, 25)
	require.NoError(t, err)
	assert.Equal(t, int64(500), cfg.FeeBps)
	assert.Equal(t, int64(25), cfg.MinFee)
}

func TestAdminService_GetAdmin(t *testing.T) {
	configs := newFakeConfigRepo()
	svc := NewAdminService(configs, nil)
	ctx := context.Background()

	// До инициализации администратора нет.
	_, err := svc.GetAdmin(ctx)
	assert.ErrorIs(t, err, apperror.ErrNotAdmin)

	admin := uuid.New()
	_, err = svc.Initialize(ctx, admin, InitializeParams{AdminID: admin, FeeCollector: uuid.New()})
	require.NoError(t, err)

	got, err := svc.GetAdmin(ctx)
	require.NoError(t, err)
	assert.Equal(t, admin, got)

	cfg, err := svc.GetFee(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), cfg.FeeBps)
}
