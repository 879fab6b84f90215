package service

import (
	"context"
	"math/rand"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignatzorin/escrow-platform/internal/ledger"
	"github.com/ignatzorin/escrow-platform/internal/models"
	"github.com/ignatzorin/escrow-platform/internal/pkg/apperror"
)

const testToken = "USDC"

type escrowEnv struct {
	repo    *fakeEscrowRepo
	configs *fakeConfigRepo
	ledger  *ledger.MemoryLedger
	events  *fakeEvents
	svc     *EscrowService

	buyer     uuid.UUID
	seller    uuid.UUID
	arbiter   uuid.UUID
	collector uuid.UUID
}

func newEscrowEnv(t *testing.T, feeBps, minFee int64) *escrowEnv {
	t.Helper()

	env := &escrowEnv{
		repo:      newFakeEscrowRepo(),
		configs:   newFakeConfigRepo(),
		ledger:    ledger.NewMemoryLedger(),
		events:    &fakeEvents{},
		buyer:     uuid.New(),
		seller:    uuid.New(),
		arbiter:   uuid.New(),
		collector: uuid.New(),
	}

	cfg := &models.FeeConfig{ID: 1, FeeBps: feeBps, MinFee: minFee}
	if feeBps > 0 || minFee > 0 {
		cfg.FeeCollector = &env.collector
	}
	require.NoError(t, env.configs.Save(context.Background(), cfg))

	env.svc = NewEscrowService(env.repo, env.configs, env.ledger, env.events)
	return env
}

func (env *escrowEnv) create(t *testing.T, amount int64) *models.Escrow {
	t.Helper()
	escrow, err := env.svc.Create(context.Background(), CreateParams{
		BuyerID:   env.buyer,
		SellerID:  env.seller,
		ArbiterID: env.arbiter,
		Token:     testToken,
		Amount:    amount,
	})
	require.NoError(t, err)
	return escrow
}

func (env *escrowEnv) createFunded(t *testing.T, amount int64) *models.Escrow {
	t.Helper()
	escrow := env.create(t, amount)
	env.ledger.Credit(testToken, ledger.UserAccount(env.buyer.String()), amount)
	_, err := env.svc.Fund(context.Background(), escrow.ID, env.buyer)
	require.NoError(t, err)
	return escrow
}

func (env *escrowEnv) balance(t *testing.T, account string) int64 {
	t.Helper()
	balance, err := env.ledger.Balance(context.Background(), testToken, account)
	require.NoError(t, err)
	return balance
}

func TestEscrowService_Create(t *testing.T) {
	env := newEscrowEnv(t, 0, 0)

	escrow := env.create(t, 10_000)
	assert.Equal(t, int64(1), escrow.ID)
	assert.Equal(t, models.EscrowStatusPending, escrow.Status)
	assert.Equal(t, int64(0), escrow.ReleasedAmount)
	assert.Contains(t, env.events.names(), models.EventEscrowCreated)

	_, err := env.svc.Create(context.Background(), CreateParams{BuyerID: env.buyer, SellerID: env.seller, ArbiterID: env.arbiter, Token: testToken, Amount: 0})
	assert.ErrorIs(t, err, apperror.ErrInvalidEscrowAmount)
}

func TestEscrowService_CreateBulk(t *testing.T) {
	env := newEscrowEnv(t, 0, 0)
	ctx := context.Background()

	sellers := []uuid.UUID{uuid.New(), uuid.New(), uuid.New()}
	amounts := []int64{100, 200, 300}

	escrows, err := env.svc.CreateBulk(ctx, env.buyer, env.arbiter, testToken, sellers, amounts, nil, false)
	require.NoError(t, err)
	require.Len(t, escrows, 3)
	assert.Equal(t, []int64{1, 2, 3}, []int64{escrows[0].ID, escrows[1].ID, escrows[2].ID})

	_, err = env.svc.CreateBulk(ctx, env.buyer, env.arbiter, testToken, sellers, []int64{100}, nil, false)
	assert.ErrorIs(t, err, apperror.ErrLengthMismatch)

	_, err = env.svc.CreateBulk(ctx, env.buyer, env.arbiter, testToken, nil, nil, nil, false)
	assert.ErrorIs(t, err, apperror.ErrLengthMismatch)

	// Ни одна сделка не создаётся, если хотя бы одна сумма невалидна.
	before, _ := env.repo.Count(ctx)
	_, err = env.svc.CreateBulk(ctx, env.buyer, env.arbiter, testToken, sellers, []int64{100, -5, 300}, nil, false)
	assert.ErrorIs(t, err, apperror.ErrInvalidEscrowAmount)
	after, _ := env.repo.Count(ctx)
	assert.Equal(t, before, after)
}

func TestEscrowService_ListIDs(t *testing.T) {
	env := newEscrowEnv(t, 0, 0)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		env.create(t, 100)
	}

	ids, err := env.svc.ListIDs(ctx, 0, 3)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2, 3}, ids)

	ids, err = env.svc.ListIDs(ctx, 3, 10)
	require.NoError(t, err)
	assert.Equal(t, []int64{4, 5}, ids)

	// Отрицательное начало и нулевой лимит заменяются значениями по умолчанию.
	ids, err = env.svc.ListIDs(ctx, -1, 0)
	require.NoError(t, err)
	assert.Len(t, ids, 5)
}

func TestEscrowService_Fund(t *testing.T) {
	env := newEscrowEnv(t, 0, 0)
	ctx := context.Background()
	escrow := env.create(t, 10_000)
	env.ledger.Credit(testToken, ledger.UserAccount(env.buyer.String()), 15_000)

	_, err := env.svc.Fund(ctx, escrow.ID, env.seller)
	assert.ErrorIs(t, err, apperror.ErrUnauthorized)

	funded, err := env.svc.Fund(ctx, escrow.ID, env.buyer)
	require.NoError(t, err)
	// Финансирование не меняет статус: профинансированность определяется
	// балансом кастодиального счёта.
	assert.Equal(t, models.EscrowStatusPending, funded.Status)
	assert.Equal(t, int64(10_000), env.balance(t, ledger.EscrowAccount(escrow.ID)))
	assert.Equal(t, int64(5_000), env.balance(t, ledger.UserAccount(env.buyer.String())))

	_, err = env.svc.Fund(ctx, escrow.ID, env.buyer)
	assert.ErrorIs(t, err, apperror.ErrAlreadyFunded)
}

func TestEscrowService_Fund_TerminalState(t *testing.T) {
	env := newEscrowEnv(t, 0, 0)
	ctx := context.Background()
	escrow := env.createFunded(t, 10_000)
	_, err := env.svc.Release(ctx, escrow.ID, env.buyer)
	require.NoError(t, err)

	// Финансирование завершённой сделки отклоняется как повторное, причём
	// до проверки полномочий.
	_, err = env.svc.Fund(ctx, escrow.ID, env.buyer)
	assert.ErrorIs(t, err, apperror.ErrAlreadyFunded)
	_, err = env.svc.Fund(ctx, escrow.ID, uuid.New())
	assert.ErrorIs(t, err, apperror.ErrAlreadyFunded)
}

func TestEscrowService_Fund_InsufficientFunds(t *testing.T) {
	env := newEscrowEnv(t, 0, 0)
	escrow := env.create(t, 10_000)

	_, err := env.svc.Fund(context.Background(), escrow.ID, env.buyer)
	require.Error(t, err)
	assert.True(t, apperror.IsConflict(err))
}

func TestEscrowService_Release_FullWithFee(t *testing.T) {
	env := newEscrowEnv(t, 250, 0)
	ctx := context.Background()
	escrow := env.createFunded(t, 10_000)

	released, err := env.svc.Release(ctx, escrow.ID, env.buyer)
	require.NoError(t, err)
	assert.Equal(t, models.EscrowStatusReleased, released.Status)
	assert.Equal(t, int64(10_000), released.ReleasedAmount)

	assert.Equal(t, int64(9_750), env.balance(t, ledger.UserAccount(env.seller.String())))
	assert.Equal(t, int64(250), env.balance(t, ledger.UserAccount(env.collector.String())))
	assert.Equal(t, int64(0), env.balance(t, ledger.EscrowAccount(escrow.ID)))
	assert.Contains(t, env.events.names(), models.EventEscrowReleased)
}

func TestEscrowService_Release_Unfunded(t *testing.T) {
	env := newEscrowEnv(t, 0, 0)
	escrow := env.create(t, 10_000)

	_, err := env.svc.Release(context.Background(), escrow.ID, env.buyer)
	assert.ErrorIs(t, err, apperror.ErrEscrowNotFunded)
}

func TestEscrowService_Release_OnlyBuyer(t *testing.T) {
	env := newEscrowEnv(t, 0, 0)
	escrow := env.createFunded(t, 10_000)

	_, err := env.svc.Release(context.Background(), escrow.ID, env.seller)
	assert.ErrorIs(t, err, apperror.ErrUnauthorized)
	_, err = env.svc.Release(context.Background(), escrow.ID, env.arbiter)
	assert.ErrorIs(t, err, apperror.ErrUnauthorized)
}

func TestEscrowService_Release_TerminalIsFinal(t *testing.T) {
	env := newEscrowEnv(t, 0, 0)
	ctx := context.Background()
	escrow := env.createFunded(t, 10_000)

	_, err := env.svc.Release(ctx, escrow.ID, env.buyer)
	require.NoError(t, err)

	// Кастодиальный счёт уже расформирован. Проверка состояния выполняется
	// раньше проверки полномочий, поэтому и для постороннего вызывающего
	// возвращается EscrowNotFunded.
	_, err = env.svc.Release(ctx, escrow.ID, env.buyer)
	assert.ErrorIs(t, err, apperror.ErrEscrowNotFunded)
	_, err = env.svc.Release(ctx, escrow.ID, uuid.New())
	assert.ErrorIs(t, err, apperror.ErrEscrowNotFunded)
}

func TestEscrowService_ReleasePartial(t *testing.T) {
	env := newEscrowEnv(t, 0, 0)
	ctx := context.Background()
	escrow := env.createFunded(t, 10_000)

	_, err := env.svc.ReleasePartial(ctx, escrow.ID, env.buyer, 0)
	assert.ErrorIs(t, err, apperror.ErrInvalidReleaseAmount)
	_, err = env.svc.ReleasePartial(ctx, escrow.ID, env.buyer, 10_001)
	assert.ErrorIs(t, err, apperror.ErrInvalidReleaseAmount)

	partial, err := env.svc.ReleasePartial(ctx, escrow.ID, env.buyer, 4_000)
	require.NoError(t, err)
	assert.Equal(t, models.EscrowStatusPending, partial.Status)
	assert.Equal(t, int64(4_000), partial.ReleasedAmount)
	assert.Equal(t, int64(6_000), partial.RemainingAmount())
	assert.Contains(t, env.events.names(), models.EventEscrowPartial)

	// Выпуск остатка переводит сделку в released.
	full, err := env.svc.Release(ctx, escrow.ID, env.buyer)
	require.NoError(t, err)
	assert.Equal(t, models.EscrowStatusReleased, full.Status)
	assert.Equal(t, int64(10_000), env.balance(t, ledger.UserAccount(env.seller.String())))
}

func TestEscrowService_Release_FeeBelowMinimum(t *testing.T) {
	env := newEscrowEnv(t, 250, 500)
	ctx := context.Background()
	escrow := env.createFunded(t, 10_000)

	// Комиссия 250 меньше минимальной 500: операция отклоняется целиком.
	_, err := env.svc.Release(ctx, escrow.ID, env.buyer)
	assert.ErrorIs(t, err, apperror.ErrFeeBelowMinimum)

	stored, getErr := env.svc.Get(ctx, escrow.ID)
	require.NoError(t, getErr)
	assert.Equal(t, models.EscrowStatusPending, stored.Status)
	assert.Equal(t, int64(0), stored.ReleasedAmount)
	assert.Equal(t, int64(10_000), env.balance(t, ledger.EscrowAccount(escrow.ID)))
}

func TestEscrowService_Release_ZeroFeeSkipsTransfer(t *testing.T) {
	env := newEscrowEnv(t, 0, 0)
	ctx := context.Background()
	escrow := env.createFunded(t, 10_000)

	_, err := env.svc.Release(ctx, escrow.ID, env.buyer)
	require.NoError(t, err)
	assert.Equal(t, int64(10_000), env.balance(t, ledger.UserAccount(env.seller.String())))
	assert.Equal(t, int64(0), env.balance(t, ledger.UserAccount(env.collector.String())))
}

func TestEscrowService_Release_MissingCollector(t *testing.T) {
	env := newEscrowEnv(t, 0, 0)
	ctx := context.Background()
	require.NoError(t, env.configs.Save(ctx, &models.FeeConfig{ID: 1, FeeBps: 250}))
	escrow := env.createFunded(t, 10_000)

	_, err := env.svc.Release(ctx, escrow.ID, env.buyer)
	assert.ErrorIs(t, err, apperror.ErrInvalidFeeConfig)
}

func TestEscrowService_Refund_FromPending(t *testing.T) {
	env := newEscrowEnv(t, 250, 0)
	ctx := context.Background()

	// Из pending возврат доступен и покупателю, и продавцу. Комиссия при
	// возврате не удерживается.
	for _, caller := range []uuid.UUID{env.buyer, env.seller} {
		escrow := env.createFunded(t, 10_000)
		buyerBefore := env.balance(t, ledger.UserAccount(env.buyer.String()))

		refunded, err := env.svc.Refund(ctx, escrow.ID, caller)
		require.NoError(t, err)
		assert.Equal(t, models.EscrowStatusRefunded, refunded.Status)
		assert.Equal(t, buyerBefore+10_000, env.balance(t, ledger.UserAccount(env.buyer.String())))
	}

	escrow := env.createFunded(t, 10_000)
	_, err := env.svc.Refund(ctx, escrow.ID, env.arbiter)
	assert.ErrorIs(t, err, apperror.ErrUnauthorized)
}

func TestEscrowService_Refund_FromDisputedBuyerOnly(t *testing.T) {
	env := newEscrowEnv(t, 0, 0)
	ctx := context.Background()
	escrow := env.createFunded(t, 10_000)
	_, err := env.svc.TransitionStatus(ctx, escrow.ID, models.EscrowStatusDisputed, env.buyer)
	require.NoError(t, err)

	_, err = env.svc.Refund(ctx, escrow.ID, env.seller)
	assert.ErrorIs(t, err, apperror.ErrUnauthorized)

	refunded, err := env.svc.Refund(ctx, escrow.ID, env.buyer)
	require.NoError(t, err)
	assert.Equal(t, models.EscrowStatusRefunded, refunded.Status)
}

func TestEscrowService_Refund_Unfunded(t *testing.T) {
	env := newEscrowEnv(t, 0, 0)
	escrow := env.create(t, 10_000)

	_, err := env.svc.Refund(context.Background(), escrow.ID, env.buyer)
	assert.ErrorIs(t, err, apperror.ErrEscrowNotFunded)
}

func TestEscrowService_TransitionStatus_Graph(t *testing.T) {
	env := newEscrowEnv(t, 0, 0)
	ctx := context.Background()
	escrow := env.createFunded(t, 10_000)

	// Самопереход запрещён.
	_, err := env.svc.TransitionStatus(ctx, escrow.ID, models.EscrowStatusPending, env.buyer)
	assert.ErrorIs(t, err, apperror.ErrInvalidTransition)

	// Спор открывает только покупатель.
	for _, caller := range []uuid.UUID{env.seller, env.arbiter, uuid.New()} {
		_, err = env.svc.TransitionStatus(ctx, escrow.ID, models.EscrowStatusDisputed, caller)
		assert.ErrorIs(t, err, apperror.ErrUnauthorized)
	}

	disputed, err := env.svc.TransitionStatus(ctx, escrow.ID, models.EscrowStatusDisputed, env.buyer)
	require.NoError(t, err)
	assert.Equal(t, models.EscrowStatusDisputed, disputed.Status)

	// Повторное открытие спора — недопустимый переход.
	_, err = env.svc.TransitionStatus(ctx, escrow.ID, models.EscrowStatusDisputed, env.buyer)
	assert.ErrorIs(t, err, apperror.ErrInvalidTransition)
}

func TestEscrowService_TransitionStatus_DisputedToReleased(t *testing.T) {
	env := newEscrowEnv(t, 0, 0)
	ctx := context.Background()
	escrow := env.createFunded(t, 10_000)
	_, err := env.svc.TransitionStatus(ctx, escrow.ID, models.EscrowStatusDisputed, env.buyer)
	require.NoError(t, err)

	// Переход disputed → released не требует отдельных полномочий.
	released, err := env.svc.TransitionStatus(ctx, escrow.ID, models.EscrowStatusReleased, env.seller)
	require.NoError(t, err)
	assert.Equal(t, models.EscrowStatusReleased, released.Status)
	assert.Equal(t, int64(10_000), env.balance(t, ledger.UserAccount(env.seller.String())))
}

func TestEscrowService_TransitionStatus_Terminal(t *testing.T) {
	env := newEscrowEnv(t, 0, 0)
	ctx := context.Background()
	escrow := env.createFunded(t, 10_000)
	_, err := env.svc.Release(ctx, escrow.ID, env.buyer)
	require.NoError(t, err)

	for _, status := range []string{models.EscrowStatusPending, models.EscrowStatusDisputed, models.EscrowStatusRefunded} {
		_, err := env.svc.TransitionStatus(ctx, escrow.ID, status, env.buyer)
		assert.ErrorIs(t, err, apperror.ErrInvalidTransition, "released → %s", status)
	}
}

func TestEscrowService_ResolveDispute(t *testing.T) {
	env := newEscrowEnv(t, 0, 0)
	ctx := context.Background()
	escrow := env.createFunded(t, 10_000)

	// Спор ещё не открыт.
	_, err := env.svc.ResolveDispute(ctx, escrow.ID, env.arbiter, models.EscrowStatusReleased)
	assert.ErrorIs(t, err, apperror.ErrInvalidTransition)

	_, err = env.svc.TransitionStatus(ctx, escrow.ID, models.EscrowStatusDisputed, env.buyer)
	require.NoError(t, err)

	_, err = env.svc.ResolveDispute(ctx, escrow.ID, env.arbiter, "pending")
	assert.ErrorIs(t, err, apperror.ErrInvalidTransition)

	_, err = env.svc.ResolveDispute(ctx, escrow.ID, env.buyer, models.EscrowStatusReleased)
	assert.ErrorIs(t, err, apperror.ErrUnauthorized)

	resolved, err := env.svc.ResolveDispute(ctx, escrow.ID, env.arbiter, models.EscrowStatusReleased)
	require.NoError(t, err)
	assert.Equal(t, models.EscrowStatusReleased, resolved.Status)
	assert.Contains(t, env.events.names(), models.EventDisputeResolved)
}

func TestEscrowService_ResolveDispute_Refund(t *testing.T) {
	env := newEscrowEnv(t, 0, 0)
	ctx := context.Background()
	escrow := env.createFunded(t, 10_000)
	_, err := env.svc.TransitionStatus(ctx, escrow.ID, models.EscrowStatusDisputed, env.buyer)
	require.NoError(t, err)

	resolved, err := env.svc.ResolveDispute(ctx, escrow.ID, env.arbiter, models.EscrowStatusRefunded)
	require.NoError(t, err)
	assert.Equal(t, models.EscrowStatusRefunded, resolved.Status)
	assert.Equal(t, int64(10_000), env.balance(t, ledger.UserAccount(env.buyer.String())))
}

func TestEscrowService_ReentrancyBlocked(t *testing.T) {
	env := newEscrowEnv(t, 0, 0)
	ctx := context.Background()
	escrow := env.createFunded(t, 10_000)

	// Внешний вызов из перевода пытается повторно войти в выпуск той же
	// сделки и обязан быть отвергнут guard'ом.
	var nestedErr error
	env.ledger.TransferHook = func(token, from, to string, amount int64) {
		env.ledger.TransferHook = nil
		_, nestedErr = env.svc.Release(ctx, escrow.ID, env.buyer)
	}

	released, err := env.svc.Release(ctx, escrow.ID, env.buyer)
	require.NoError(t, err)
	assert.Equal(t, models.EscrowStatusReleased, released.Status)
	assert.ErrorIs(t, nestedErr, apperror.ErrReentrancyDetected)

	// Баланс выпущен ровно один раз.
	assert.Equal(t, int64(10_000), env.balance(t, ledger.UserAccount(env.seller.String())))
}

func TestEscrowService_Get(t *testing.T) {
	env := newEscrowEnv(t, 0, 0)
	ctx := context.Background()

	_, err := env.svc.Get(ctx, 42)
	assert.ErrorIs(t, err, apperror.ErrEscrowNotFound)

	escrow, err := env.svc.TryGet(ctx, 42)
	require.NoError(t, err)
	assert.Nil(t, escrow)

	created := env.create(t, 100)
	got, err := env.svc.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.ID, got.ID)
}

func TestEscrowService_RefundDeadlinePersisted(t *testing.T) {
	env := newEscrowEnv(t, 0, 0)
	deadline := time.Now().Add(48 * time.Hour).UTC().Truncate(time.Second)

	escrow, err := env.svc.Create(context.Background(), CreateParams{
		BuyerID:            env.buyer,
		SellerID:           env.seller,
		ArbiterID:          env.arbiter,
		Token:              testToken,
		Amount:             100,
		RefundDeadline:     &deadline,
		AllowPartialRefund: true,
	})
	require.NoError(t, err)

	got, err := env.svc.Get(context.Background(), escrow.ID)
	require.NoError(t, err)
	require.NotNil(t, got.RefundDeadline)
	assert.True(t, got.RefundDeadline.Equal(deadline))
	assert.True(t, got.AllowPartialRefund)
}

// Случайные последовательности операций: каждый наблюдаемый переход статуса
// обязан быть ребром графа, а ошибка операции не меняет статус.
func TestEscrowService_RandomSequencesFollowGraph(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	env := newEscrowEnv(t, 0, 0)
	ctx := context.Background()

	for run := 0; run < 40; run++ {
		escrow := env.create(t, 1_000)
		env.ledger.Credit(testToken, ledger.UserAccount(env.buyer.String()), 1_000)
		callers := []uuid.UUID{env.buyer, env.seller, env.arbiter, uuid.New()}

		for step := 0; step < 12; step++ {
			before, err := env.svc.Get(ctx, escrow.ID)
			require.NoError(t, err)

			caller := callers[rng.Intn(len(callers))]
			var opErr error
			switch rng.Intn(6) {
			case 0:
				_, opErr = env.svc.Fund(ctx, escrow.ID, caller)
			case 1:
				_, opErr = env.svc.Release(ctx, escrow.ID, caller)
			case 2:
				_, opErr = env.svc.ReleasePartial(ctx, escrow.ID, caller, rng.Int63n(1_500)+1)
			case 3:
				_, opErr = env.svc.Refund(ctx, escrow.ID, caller)
			case 4:
				_, opErr = env.svc.TransitionStatus(ctx, escrow.ID, models.EscrowStatusDisputed, caller)
			case 5:
				resolutions := []string{models.EscrowStatusReleased, models.EscrowStatusRefunded}
				_, opErr = env.svc.ResolveDispute(ctx, escrow.ID, caller, resolutions[rng.Intn(2)])
			}

			after, err := env.svc.Get(ctx, escrow.ID)
			require.NoError(t, err)

			if after.Status != before.Status {
				assert.True(t, models.CanTransitionEscrow(before.Status, after.Status), "переход %s → %s", before.Status, after.Status)
			}
			if opErr != nil {
				assert.Equal(t, before.Status, after.Status, "ошибка операции изменила статус")
			}
		}
	}
}
