package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/ignatzorin/escrow-platform/internal/ledger"
	"github.com/ignatzorin/escrow-platform/internal/logger"
	"github.com/ignatzorin/escrow-platform/internal/models"
	"github.com/ignatzorin/escrow-platform/internal/pkg/apperror"
	"github.com/ignatzorin/escrow-platform/internal/repository"
)

type EscrowRepository interface {
	Create(ctx context.Context, escrow *models.Escrow) error
	CreateBatch(ctx context.Context, escrows []*models.Escrow) error
	GetByID(ctx context.Context, id int64) (*models.Escrow, error)
	Update(ctx context.Context, escrow *models.Escrow) error
	ListIDs(ctx context.Context, start, limit int64) ([]int64, error)
	Count(ctx context.Context) (int64, error)
}

type ConfigRepository interface {
	Get(ctx context.Context) (*models.FeeConfig, error)
	Save(ctx context.Context, cfg *models.FeeConfig) error
}

// EventPublisher доставляет доменные события затронутым участникам.
type EventPublisher interface {
	Publish(ctx context.Context, event string, recipients []uuid.UUID, payload interface{})
}

// EscrowService реализует жизненный цикл сделки: создание, финансирование,
// выпуск средств, возврат, споры. Все проверки состояния выполняются до
// проверок полномочий; при ошибке состояние не изменяется частично.
type EscrowService struct {
	repo    EscrowRepository
	configs ConfigRepository
	ledger  ledger.Ledger
	guard   *ReentrancyGuard
	events  EventPublisher
	log     *logrus.Entry
}

func NewEscrowService(repo EscrowRepository, configs ConfigRepository, l ledger.Ledger, events EventPublisher) *EscrowService {
	return &EscrowService{
		repo:    repo,
		configs: configs,
		ledger:  l,
		guard:   NewReentrancyGuard(),
		events:  events,
		log:     logger.WithComponent("escrow"),
	}
}

// CreateParams — параметры новой сделки.
type CreateParams struct {
	BuyerID            uuid.UUID
	SellerID           uuid.UUID
	ArbiterID          uuid.UUID
	Token              string
	Amount             int64
	RefundDeadline     *time.Time
	AllowPartialRefund bool
}

// Create регистрирует новую сделку в статусе pending. Идентификатор выдаёт
// хранилище; средства на этом шаге не двигаются.
func (s *EscrowService) Create(ctx context.Context, p CreateParams) (*models.Escrow, error) {
	if p.Amount <= 0 {
		return nil, apperror.ErrInvalidEscrowAmount
	}

	escrow := &models.Escrow{
		BuyerID:            p.BuyerID,
		SellerID:           p.SellerID,
		ArbiterID:          p.ArbiterID,
		Token:              p.Token,
		Amount:             p.Amount,
		Status:             models.EscrowStatusPending,
		RefundDeadline:     p.RefundDeadline,
		AllowPartialRefund: p.AllowPartialRefund,
	}
	if err := s.repo.Create(ctx, escrow); err != nil {
		return nil, apperror.Wrap(err, apperror.ErrCodeDatabaseError, "не удалось создать сделку")
	}

	s.log.WithFields(logrus.Fields{"escrow_id": escrow.ID, "amount": escrow.Amount}).Info("сделка создана")
	s.publish(ctx, models.EventEscrowCreated, escrow, map[string]interface{}{"escrow_id": escrow.ID})

	return escrow, nil
}

// CreateBulk создаёт набор сделок одного покупателя с общим арбитром:
// продавцы и суммы передаются параллельными массивами. Создаются либо все
// сделки, либо ни одной.
func (s *EscrowService) CreateBulk(ctx context.Context, buyerID, arbiterID uuid.UUID, token string, sellers []uuid.UUID, amounts []int64, refundDeadline *time.Time, allowPartialRefund bool) ([]*models.Escrow, error) {
	if len(sellers) != len(amounts) {
		return nil, apperror.ErrLengthMismatch
	}
	if len(sellers) == 0 {
		return nil, apperror.ErrLengthMismatch
	}

	escrows := make([]*models.Escrow, 0, len(sellers))
	for i, sellerID := range sellers {
		if amounts[i] <= 0 {
			return nil, apperror.ErrInvalidEscrowAmount
		}
		escrows = append(escrows, &models.Escrow{
			BuyerID:            buyerID,
			SellerID:           sellerID,
			ArbiterID:          arbiterID,
			Token:              token,
			Amount:             amounts[i],
			Status:             models.EscrowStatusPending,
			RefundDeadline:     refundDeadline,
			AllowPartialRefund: allowPartialRefund,
		})
	}

	if err := s.repo.CreateBatch(ctx, escrows); err != nil {
		return nil, apperror.Wrap(err, apperror.ErrCodeDatabaseError, "не удалось создать сделки")
	}

	for _, escrow := range escrows {
		s.publish(ctx, models.EventEscrowCreated, escrow, map[string]interface{}{"escrow_id": escrow.ID})
	}
	s.log.WithField("count", len(escrows)).Info("создан пакет сделок")

	return escrows, nil
}

// Get возвращает сделку или EscrowNotFound.
func (s *EscrowService) Get(ctx context.Context, id int64) (*models.Escrow, error) {
	return s.getEscrow(ctx, id)
}

// TryGet возвращает сделку либо nil, если её не существует.
func (s *EscrowService) TryGet(ctx context.Context, id int64) (*models.Escrow, error) {
	escrow, err := s.getEscrow(ctx, id)
	if err != nil {
		if errors.Is(err, apperror.ErrEscrowNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return escrow, nil
}

// ListIDs возвращает страницу идентификаторов сделок.
func (s *EscrowService) ListIDs(ctx context.Context, start, limit int64) ([]int64, error) {
	if start < 0 {
		start = 0
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return s.repo.ListIDs(ctx, start, limit)
}

// Fund переводит сумму сделки со счёта покупателя на кастодиальный счёт.
// Профинансированность определяется балансом кастодиального счёта, статус
// сделки остаётся pending. Повторное финансирование запрещено.
func (s *EscrowService) Fund(ctx context.Context, id int64, callerID uuid.UUID) (*models.Escrow, error) {
	escrow, err := s.getEscrow(ctx, id)
	if err != nil {
		return nil, err
	}
	if escrow.Status != models.EscrowStatusPending {
		return nil, apperror.ErrAlreadyFunded
	}
	if callerID != escrow.BuyerID {
		return nil, apperror.ErrUnauthorized
	}

	custody := ledger.EscrowAccount(escrow.ID)
	balance, err := s.ledger.Balance(ctx, escrow.Token, custody)
	if err != nil {
		return nil, apperror.Wrap(err, apperror.ErrCodeInternal, "не удалось получить баланс сделки")
	}
	if balance > 0 {
		return nil, apperror.ErrAlreadyFunded
	}

	buyerAccount := ledger.UserAccount(escrow.BuyerID.String())
	if err := s.ledger.Transfer(ctx, escrow.Token, buyerAccount, custody, escrow.Amount); err != nil {
		if errors.Is(err, ledger.ErrInsufficientFunds) {
			return nil, apperror.Wrap(err, apperror.ErrCodeConflict, "недостаточно средств для финансирования сделки")
		}
		return nil, apperror.Wrap(err, apperror.ErrCodeInternal, "не удалось перевести средства")
	}

	s.log.WithField("escrow_id", escrow.ID).Info("сделка профинансирована")
	s.publish(ctx, models.EventEscrowFunded, escrow, map[string]interface{}{"escrow_id": escrow.ID, "amount": escrow.Amount})

	return escrow, nil
}

// Release выпускает продавцу весь остаток суммы сделки.
func (s *EscrowService) Release(ctx context.Context, id int64, callerID uuid.UUID) (*models.Escrow, error) {
	return s.release(ctx, id, callerID, 0)
}

// ReleasePartial выпускает продавцу часть суммы. Сделка переходит в
// released только когда выпущена вся сумма.
func (s *EscrowService) ReleasePartial(ctx context.Context, id int64, callerID uuid.UUID, amount int64) (*models.Escrow, error) {
	if amount <= 0 {
		return nil, apperror.ErrInvalidReleaseAmount
	}
	return s.release(ctx, id, callerID, amount)
}

// release — общий путь полного и частичного выпуска. amount == 0 означает
// весь остаток.
func (s *EscrowService) release(ctx context.Context, id int64, callerID uuid.UUID, amount int64) (*models.Escrow, error) {
	escrow, err := s.getEscrow(ctx, id)
	if err != nil {
		return nil, err
	}
	// Из любого статуса кроме pending кастодиальный счёт уже расформирован.
	if escrow.Status != models.EscrowStatusPending {
		return nil, apperror.ErrEscrowNotFunded
	}
	if callerID != escrow.BuyerID {
		return nil, apperror.ErrUnauthorized
	}

	if err := s.guard.Enter(escrow.ID); err != nil {
		return nil, err
	}
	defer s.guard.Exit(escrow.ID)

	if amount == 0 {
		amount = escrow.RemainingAmount()
	}
	if err := s.payOut(ctx, escrow, amount); err != nil {
		return nil, err
	}

	event := models.EventEscrowPartial
	if escrow.Status == models.EscrowStatusReleased {
		event = models.EventEscrowReleased
	}
	s.log.WithFields(logrus.Fields{"escrow_id": escrow.ID, "amount": amount, "status": escrow.Status}).Info("средства выпущены")
	s.publish(ctx, event, escrow, map[string]interface{}{"escrow_id": escrow.ID, "amount": amount, "status": escrow.Status})

	return escrow, nil
}

// payOut проверяет сумму, считает комиссию и выполняет переводы
// custody → продавец и custody → сборщик комиссии. Статус записывается
// после переводов.
func (s *EscrowService) payOut(ctx context.Context, escrow *models.Escrow, amount int64) error {
	custody := ledger.EscrowAccount(escrow.ID)
	balance, err := s.ledger.Balance(ctx, escrow.Token, custody)
	if err != nil {
		return apperror.Wrap(err, apperror.ErrCodeInternal, "не удалось получить баланс сделки")
	}
	if balance == 0 {
		return apperror.ErrEscrowNotFunded
	}
	if amount <= 0 || amount > escrow.RemainingAmount() || amount > balance {
		return apperror.ErrInvalidReleaseAmount
	}

	cfg, err := s.configs.Get(ctx)
	if err != nil {
		return apperror.Wrap(err, apperror.ErrCodeDatabaseError, "не удалось получить конфигурацию комиссии")
	}
	fee, net := SplitFee(amount, cfg.FeeBps)
	if fee < cfg.MinFee {
		return apperror.ErrFeeBelowMinimum
	}
	if fee > 0 && cfg.FeeCollector == nil {
		return apperror.ErrInvalidFeeConfig
	}

	sellerAccount := ledger.UserAccount(escrow.SellerID.String())
	if err := s.ledger.Transfer(ctx, escrow.Token, custody, sellerAccount, net); err != nil {
		return apperror.Wrap(err, apperror.ErrCodeInternal, "не удалось перевести средства продавцу")
	}
	// Нулевая комиссия не порождает перевод.
	if fee > 0 {
		collectorAccount := ledger.UserAccount(cfg.FeeCollector.String())
		if err := s.ledger.Transfer(ctx, escrow.Token, custody, collectorAccount, fee); err != nil {
			return apperror.Wrap(err, apperror.ErrCodeInternal, "не удалось перевести комиссию")
		}
	}

	escrow.ReleasedAmount += amount
	if escrow.ReleasedAmount == escrow.Amount {
		escrow.Status = models.EscrowStatusReleased
	}
	if err := s.repo.Update(ctx, escrow); err != nil {
		return apperror.Wrap(err, apperror.ErrCodeDatabaseError, "не удалось сохранить сделку")
	}

	return nil
}

// Refund возвращает покупателю весь остаток средств. Из pending возврат
// доступен покупателю и продавцу, из disputed — только покупателю.
func (s *EscrowService) Refund(ctx context.Context, id int64, callerID uuid.UUID) (*models.Escrow, error) {
	escrow, err := s.getEscrow(ctx, id)
	if err != nil {
		return nil, err
	}

	switch escrow.Status {
	case models.EscrowStatusPending:
		if callerID != escrow.BuyerID && callerID != escrow.SellerID {
			return nil, apperror.ErrUnauthorized
		}
	case models.EscrowStatusDisputed:
		if callerID != escrow.BuyerID {
			return nil, apperror.ErrUnauthorized
		}
	default:
		return nil, apperror.ErrInvalidTransition
	}

	if err := s.refundAll(ctx, escrow); err != nil {
		return nil, err
	}

	s.log.WithField("escrow_id", escrow.ID).Info("средства возвращены покупателю")
	s.publish(ctx, models.EventEscrowRefunded, escrow, map[string]interface{}{"escrow_id": escrow.ID})

	return escrow, nil
}

// refundAll переводит остаток кастодиального счёта покупателю и переводит
// сделку в refunded.
func (s *EscrowService) refundAll(ctx context.Context, escrow *models.Escrow) error {
	custody := ledger.EscrowAccount(escrow.ID)
	balance, err := s.ledger.Balance(ctx, escrow.Token, custody)
	if err != nil {
		return apperror.Wrap(err, apperror.ErrCodeInternal, "не удалось получить баланс сделки")
	}
	if balance == 0 {
		return apperror.ErrEscrowNotFunded
	}

	buyerAccount := ledger.UserAccount(escrow.BuyerID.String())
	if err := s.ledger.Transfer(ctx, escrow.Token, custody, buyerAccount, balance); err != nil {
		return apperror.Wrap(err, apperror.ErrCodeInternal, "не удалось вернуть средства покупателю")
	}

	escrow.Status = models.EscrowStatusRefunded
	if err := s.repo.Update(ctx, escrow); err != nil {
		return apperror.Wrap(err, apperror.ErrCodeDatabaseError, "не удалось сохранить сделку")
	}

	return nil
}

// TransitionStatus переводит сделку по графу статусов. Допустимость
// перехода проверяется до полномочий. Переходы в конечные статусы двигают
// средства тем же путём, что Release и Refund.
func (s *EscrowService) TransitionStatus(ctx context.Context, id int64, newStatus string, callerID uuid.UUID) (*models.Escrow, error) {
	escrow, err := s.getEscrow(ctx, id)
	if err != nil {
		return nil, err
	}
	if !models.CanTransitionEscrow(escrow.Status, newStatus) {
		return nil, apperror.ErrInvalidTransition
	}

	switch {
	case newStatus == models.EscrowStatusDisputed:
		// Открыть спор может только покупатель.
		if callerID != escrow.BuyerID {
			return nil, apperror.ErrUnauthorized
		}
		escrow.Status = models.EscrowStatusDisputed
		if err := s.repo.Update(ctx, escrow); err != nil {
			return nil, apperror.Wrap(err, apperror.ErrCodeDatabaseError, "не удалось сохранить сделку")
		}
	case newStatus == models.EscrowStatusReleased && escrow.Status == models.EscrowStatusPending:
		return s.release(ctx, id, callerID, 0)
	case newStatus == models.EscrowStatusReleased:
		// disputed → released: выпуск в пользу продавца не требует
		// отдельного согласия, спор разрешается в его пользу.
		if err := s.guard.Enter(escrow.ID); err != nil {
			return nil, err
		}
		defer s.guard.Exit(escrow.ID)
		if err := s.payOut(ctx, escrow, escrow.RemainingAmount()); err != nil {
			return nil, err
		}
	case newStatus == models.EscrowStatusRefunded:
		return s.Refund(ctx, id, callerID)
	}

	s.log.WithFields(logrus.Fields{"escrow_id": escrow.ID, "status": escrow.Status}).Info("статус сделки изменён")
	s.publish(ctx, models.EventEscrowStatus, escrow, map[string]interface{}{"escrow_id": escrow.ID, "status": escrow.Status})

	return escrow, nil
}

// ResolveDispute завершает спор решением арбитра: released выпускает
// остаток продавцу, refunded возвращает его покупателю.
func (s *EscrowService) ResolveDispute(ctx context.Context, id int64, callerID uuid.UUID, resolution string) (*models.Escrow, error) {
	escrow, err := s.getEscrow(ctx, id)
	if err != nil {
		return nil, err
	}
	if escrow.Status != models.EscrowStatusDisputed {
		return nil, apperror.ErrInvalidTransition
	}
	if resolution != models.EscrowStatusReleased && resolution != models.EscrowStatusRefunded {
		return nil, apperror.ErrInvalidTransition
	}
	if callerID != escrow.ArbiterID {
		return nil, apperror.ErrUnauthorized
	}

	if resolution == models.EscrowStatusReleased {
		if err := s.guard.Enter(escrow.ID); err != nil {
			return nil, err
		}
		defer s.guard.Exit(escrow.ID)
		if err := s.payOut(ctx, escrow, escrow.RemainingAmount()); err != nil {
			return nil, err
		}
	} else {
		if err := s.refundAll(ctx, escrow); err != nil {
			return nil, err
		}
	}

	s.log.WithFields(logrus.Fields{"escrow_id": escrow.ID, "resolution": resolution}).Info("спор разрешён")
	s.publish(ctx, models.EventDisputeResolved, escrow, map[string]interface{}{"escrow_id": escrow.ID, "resolution": resolution})

	return escrow, nil
}

func (s *EscrowService) getEscrow(ctx context.Context, id int64) (*models.Escrow, error) {
	escrow, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrEscrowNotFound) {
			return nil, apperror.ErrEscrowNotFound
		}
		return nil, apperror.Wrap(err, apperror.ErrCodeDatabaseError, "не удалось получить сделку")
	}
	return escrow, nil
}

// publish отправляет событие всем сторонам сделки.
func (s *EscrowService) publish(ctx context.Context, event string, escrow *models.Escrow, payload map[string]interface{}) {
	if s.events == nil {
		return
	}
	payload["event"] = event
	s.events.Publish(ctx, event, []uuid.UUID{escrow.BuyerID, escrow.SellerID, escrow.ArbiterID}, payload)
}
