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

// refundRequestTTL — минимальный срок жизни заявки с момента подачи.
const refundRequestTTL = 7 * 24 * time.Hour

type RefundRepository interface {
	Create(ctx context.Context, req *models.RefundRequest) error
	GetByID(ctx context.Context, id int64) (*models.RefundRequest, error)
	Update(ctx context.Context, req *models.RefundRequest) error
	ListByEscrow(ctx context.Context, escrowID int64) ([]models.RefundRequest, error)
	Complete(ctx context.Context, req *models.RefundRequest, escrow *models.Escrow, entry *models.RefundHistoryEntry) error
	HistoryByEscrow(ctx context.Context, escrowID int64) ([]models.RefundHistoryEntry, error)
	HistoryAll(ctx context.Context, limit, offset int64) ([]models.RefundHistoryEntry, error)
}

// RefundService реализует цикл заявок на возврат: подача покупателем,
// решение администратора, исполнение возврата, отмена. Выполненные
// возвраты фиксируются в неизменяемой истории.
type RefundService struct {
	refunds RefundRepository
	escrows EscrowRepository
	configs ConfigRepository
	ledger  ledger.Ledger
	events  EventPublisher
	log     *logrus.Entry

	now func() time.Time
}

func NewRefundService(refunds RefundRepository, escrows EscrowRepository, configs ConfigRepository, l ledger.Ledger, events EventPublisher) *RefundService {
	return &RefundService{
		refunds: refunds,
		escrows: escrows,
		configs: configs,
		ledger:  l,
		events:  events,
		log:     logger.WithComponent("refund"),
		now:     time.Now,
	}
}

// SubmitParams — параметры новой заявки на возврат.
type SubmitParams struct {
	EscrowID    int64
	BuyerID     uuid.UUID
	Amount      int64
	Reason      string
	Description string
}

// Submit регистрирует заявку покупателя на возврат. Заявка живёт не меньше
// семи дней: expires_at = max(refund_deadline сделки, now + 7d).
func (s *RefundService) Submit(ctx context.Context, p SubmitParams) (*models.RefundRequest, error) {
	escrow, err := s.getEscrow(ctx, p.EscrowID)
	if err != nil {
		return nil, err
	}
	if escrow.Status != models.EscrowStatusPending && escrow.Status != models.EscrowStatusDisputed {
		return nil, apperror.ErrInvalidTransition
	}
	if p.BuyerID != escrow.BuyerID {
		return nil, apperror.ErrUnauthorized
	}
	if !models.ValidRefundReason(p.Reason) {
		return nil, apperror.New(apperror.ErrCodeValidation, "неизвестная причина возврата")
	}
	if p.Amount <= 0 || p.Amount > escrow.Amount {
		return nil, apperror.ErrRefundAmountExceedsEscrow
	}
	if p.Amount < escrow.Amount && !escrow.AllowPartialRefund {
		return nil, apperror.ErrRefundAmountExceedsEscrow
	}

	now := s.now()
	if escrow.RefundDeadline != nil && now.After(*escrow.RefundDeadline) {
		return nil, apperror.ErrRefundWindowExpired
	}

	expiresAt := now.Add(refundRequestTTL)
	if escrow.RefundDeadline != nil && escrow.RefundDeadline.After(expiresAt) {
		expiresAt = *escrow.RefundDeadline
	}

	req := &models.RefundRequest{
		EscrowID:     escrow.ID,
		BuyerID:      p.BuyerID,
		RefundAmount: p.Amount,
		Reason:       p.Reason,
		Description:  p.Description,
		Status:       models.RefundStatusPending,
		ExpiresAt:    expiresAt,
	}
	if err := s.refunds.Create(ctx, req); err != nil {
		return nil, apperror.Wrap(err, apperror.ErrCodeDatabaseError, "не удалось создать заявку на возврат")
	}

	s.log.WithFields(logrus.Fields{"refund_id": req.ID, "escrow_id": escrow.ID, "amount": req.RefundAmount}).Info("подана заявка на возврат")
	s.publish(ctx, models.EventRefundSubmitted, escrow, req)

	return req, nil
}

// Approve одобряет заявку. Доступно только администратору и только для
// заявок в статусе pending.
func (s *RefundService) Approve(ctx context.Context, requestID int64, callerID uuid.UUID) (*models.RefundRequest, error) {
	if err := s.requireAdmin(ctx, callerID); err != nil {
		return nil, err
	}
	req, err := s.getRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if req.Status != models.RefundStatusPending {
		return nil, apperror.ErrRefundAlreadyProcessed
	}
	if s.now().After(req.ExpiresAt) {
		return nil, apperror.ErrRefundWindowExpired
	}

	now := s.now()
	req.Status = models.RefundStatusApproved
	req.ProcessedBy = &callerID
	req.ProcessedAt = &now
	if err := s.refunds.Update(ctx, req); err != nil {
		return nil, apperror.Wrap(err, apperror.ErrCodeDatabaseError, "не удалось сохранить заявку")
	}

	s.log.WithField("refund_id", req.ID).Info("заявка на возврат одобрена")
	s.publishToRequest(ctx, models.EventRefundApproved, req)

	return req, nil
}

// Reject отклоняет заявку с указанием причины. Доступно только
// администратору и только для заявок в статусе pending.
func (s *RefundService) Reject(ctx context.Context, requestID int64, callerID uuid.UUID, reason string) (*models.RefundRequest, error) {
	if err := s.requireAdmin(ctx, callerID); err != nil {
		return nil, err
	}
	req, err := s.getRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if req.Status != models.RefundStatusPending {
		return nil, apperror.ErrRefundAlreadyProcessed
	}

	now := s.now()
	req.Status = models.RefundStatusRejected
	req.ProcessedBy = &callerID
	req.ProcessedAt = &now
	req.RejectionReason = &reason
	if err := s.refunds.Update(ctx, req); err != nil {
		return nil, apperror.Wrap(err, apperror.ErrCodeDatabaseError, "не удалось сохранить заявку")
	}

	s.log.WithField("refund_id", req.ID).Info("заявка на возврат отклонена")
	s.publishToRequest(ctx, models.EventRefundRejected, req)

	return req, nil
}

// Process исполняет одобренную заявку: переводит сумму с кастодиального
// счёта покупателю. Частичный возврат уменьшает сумму сделки, полный
// переводит сделку в refunded. Запись аудита добавляется атомарно с
// изменением заявки и сделки.
func (s *RefundService) Process(ctx context.Context, requestID int64, callerID uuid.UUID) (*models.RefundRequest, error) {
	if err := s.requireAdmin(ctx, callerID); err != nil {
		return nil, err
	}
	req, err := s.getRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if req.Status != models.RefundStatusApproved {
		return nil, apperror.ErrRefundAlreadyProcessed
	}

	escrow, err := s.getEscrow(ctx, req.EscrowID)
	if err != nil {
		return nil, err
	}
	if escrow.Status != models.EscrowStatusPending && escrow.Status != models.EscrowStatusDisputed {
		return nil, apperror.ErrInvalidTransition
	}

	custody := ledger.EscrowAccount(escrow.ID)
	balance, err := s.ledger.Balance(ctx, escrow.Token, custody)
	if err != nil {
		return nil, apperror.Wrap(err, apperror.ErrCodeInternal, "не удалось получить баланс сделки")
	}
	if balance == 0 {
		return nil, apperror.ErrEscrowNotFunded
	}
	if req.RefundAmount > balance {
		return nil, apperror.ErrRefundAmountExceedsEscrow
	}

	isFull := req.RefundAmount >= escrow.Amount

	buyerAccount := ledger.UserAccount(escrow.BuyerID.String())
	if err := s.ledger.Transfer(ctx, escrow.Token, custody, buyerAccount, req.RefundAmount); err != nil {
		return nil, apperror.Wrap(err, apperror.ErrCodeInternal, "не удалось вернуть средства покупателю")
	}

	now := s.now()
	if isFull {
		escrow.Status = models.EscrowStatusRefunded
	} else {
		escrow.Amount -= req.RefundAmount
	}
	req.Status = models.RefundStatusCompleted
	req.ProcessedBy = &callerID
	req.ProcessedAt = &now

	entry := &models.RefundHistoryEntry{
		RefundID:     req.ID,
		EscrowID:     escrow.ID,
		Amount:       req.RefundAmount,
		IsFullRefund: isFull,
		ProcessedBy:  callerID,
		ProcessedAt:  now,
	}
	if err := s.refunds.Complete(ctx, req, escrow, entry); err != nil {
		return nil, apperror.Wrap(err, apperror.ErrCodeDatabaseError, "не удалось зафиксировать возврат")
	}

	s.log.WithFields(logrus.Fields{"refund_id": req.ID, "escrow_id": escrow.ID, "full": isFull}).Info("возврат выполнен")
	s.publish(ctx, models.EventRefundCompleted, escrow, req)
	if isFull {
		s.publish(ctx, models.EventEscrowRefunded, escrow, req)
	}

	return req, nil
}

// Cancel отзывает заявку. Доступно только подавшему её покупателю и только
// в статусе pending.
func (s *RefundService) Cancel(ctx context.Context, requestID int64, callerID uuid.UUID) (*models.RefundRequest, error) {
	req, err := s.getRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if callerID != req.BuyerID {
		return nil, apperror.ErrUnauthorized
	}
	if req.Status != models.RefundStatusPending {
		return nil, apperror.ErrRefundAlreadyProcessed
	}

	req.Status = models.RefundStatusCancelled
	if err := s.refunds.Update(ctx, req); err != nil {
		return nil, apperror.Wrap(err, apperror.ErrCodeDatabaseError, "не удалось сохранить заявку")
	}

	s.log.WithField("refund_id", req.ID).Info("заявка на возврат отозвана")
	s.publishToRequest(ctx, models.EventRefundCancelled, req)

	return req, nil
}

// AttachEvidence сохраняет путь загруженного подтверждения к заявке.
func (s *RefundService) AttachEvidence(ctx context.Context, requestID int64, callerID uuid.UUID, path string) (*models.RefundRequest, error) {
	req, err := s.getRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if callerID != req.BuyerID {
		return nil, apperror.ErrUnauthorized
	}
	if req.Status != models.RefundStatusPending {
		return nil, apperror.ErrRefundAlreadyProcessed
	}

	req.EvidencePath = &path
	if err := s.refunds.Update(ctx, req); err != nil {
		return nil, apperror.Wrap(err, apperror.ErrCodeDatabaseError, "не удалось сохранить заявку")
	}

	return req, nil
}

// GetRequest возвращает заявку по идентификатору.
func (s *RefundService) GetRequest(ctx context.Context, id int64) (*models.RefundRequest, error) {
	return s.getRequest(ctx, id)
}

// ListByEscrow возвращает заявки по сделке.
func (s *RefundService) ListByEscrow(ctx context.Context, escrowID int64) ([]models.RefundRequest, error) {
	if _, err := s.getEscrow(ctx, escrowID); err != nil {
		return nil, err
	}
	return s.refunds.ListByEscrow(ctx, escrowID)
}

// HistoryByEscrow возвращает историю возвратов по сделке.
func (s *RefundService) HistoryByEscrow(ctx context.Context, escrowID int64) ([]models.RefundHistoryEntry, error) {
	if _, err := s.getEscrow(ctx, escrowID); err != nil {
		return nil, err
	}
	return s.refunds.HistoryByEscrow(ctx, escrowID)
}

// HistoryAll возвращает глобальную историю возвратов.
func (s *RefundService) HistoryAll(ctx context.Context, limit, offset int64) ([]models.RefundHistoryEntry, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return s.refunds.HistoryAll(ctx, limit, offset)
}

// requireAdmin проверяет, что вызывающий — действующий администратор.
// Пока администратор не назначен, привилегированные операции недоступны.
func (s *RefundService) requireAdmin(ctx context.Context, callerID uuid.UUID) error {
	cfg, err := s.configs.Get(ctx)
	if err != nil {
		return apperror.Wrap(err, apperror.ErrCodeDatabaseError, "не удалось получить конфигурацию")
	}
	if cfg.AdminID == nil || *cfg.AdminID != callerID {
		return apperror.ErrNotAdmin
	}
	return nil
}

func (s *RefundService) getRequest(ctx context.Context, id int64) (*models.RefundRequest, error) {
	req, err := s.refunds.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrRefundRequestNotFound) {
			return nil, apperror.ErrRefundRequestNotFound
		}
		return nil, apperror.Wrap(err, apperror.ErrCodeDatabaseError, "не удалось получить заявку")
	}
	return req, nil
}

func (s *RefundService) getEscrow(ctx context.Context, id int64) (*models.Escrow, error) {
	escrow, err := s.escrows.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrEscrowNotFound) {
			return nil, apperror.ErrEscrowNotFound
		}
		return nil, apperror.Wrap(err, apperror.ErrCodeDatabaseError, "не удалось получить сделку")
	}
	return escrow, nil
}

func (s *RefundService) publish(ctx context.Context, event string, escrow *models.Escrow, req *models.RefundRequest) {
	if s.events == nil {
		return
	}
	s.events.Publish(ctx, event, []uuid.UUID{escrow.BuyerID, escrow.SellerID, escrow.ArbiterID}, map[string]interface{}{
		"event":     event,
		"escrow_id": escrow.ID,
		"refund_id": req.ID,
		"amount":    req.RefundAmount,
		"status":    req.Status,
	})
}

func (s *RefundService) publishToRequest(ctx context.Context, event string, req *models.RefundRequest) {
	if s.events == nil {
		return
	}
	s.events.Publish(ctx, event, []uuid.UUID{req.BuyerID}, map[string]interface{}{
		"event":     event,
		"escrow_id": req.EscrowID,
		"refund_id": req.ID,
		"status":    req.Status,
	})
}
