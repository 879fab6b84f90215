package service

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"

	"github.com/ignatzorin/escrow-platform/internal/logger"
	"github.com/ignatzorin/escrow-platform/internal/models"
	"github.com/ignatzorin/escrow-platform/internal/pkg/apperror"
)

// NotificationRepository описывает взаимодействие сервиса с хранилищем уведомлений.
type NotificationRepository interface {
	Create(ctx context.Context, notification *models.Notification) error
	List(ctx context.Context, userID uuid.UUID, limit, offset int, unreadOnly bool) ([]models.Notification, error)
	MarkAsRead(ctx context.Context, id uuid.UUID) error
	CountUnread(ctx context.Context, userID uuid.UUID) (int, error)
}

// Notifier доставляет событие подключённым клиентам в реальном времени.
type Notifier interface {
	Notify(userID uuid.UUID, payload []byte)
}

// NotificationService сохраняет доменные события и рассылает их получателям.
// Реализует EventPublisher для сервисов жизненного цикла.
type NotificationService struct {
	repo     NotificationRepository
	notifier Notifier
}

// NewNotificationService создаёт новый сервис уведомлений.
func NewNotificationService(repo NotificationRepository, notifier Notifier) *NotificationService {
	return &NotificationService{repo: repo, notifier: notifier}
}

// Publish сохраняет событие каждому получателю и пушит его онлайн-клиентам.
// Ошибка доставки не влияет на операцию, породившую событие.
func (s *NotificationService) Publish(ctx context.Context, event string, recipients []uuid.UUID, payload interface{}) {
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		logger.WithComponent("notification").WithError(err).Error("не удалось сериализовать событие")
		return
	}

	seen := make(map[uuid.UUID]bool, len(recipients))
	for _, userID := range recipients {
		if userID == uuid.Nil || seen[userID] {
			continue
		}
		seen[userID] = true

		notification := &models.Notification{
			UserID:  userID,
			Payload: payloadBytes,
			IsRead:  false,
		}
		if err := s.repo.Create(ctx, notification); err != nil {
			logger.WithComponent("notification").WithError(err).WithField("event", event).Error("не удалось сохранить уведомление")
			continue
		}

		if s.notifier != nil {
			s.notifier.Notify(userID, payloadBytes)
		}
	}
}

// ListNotifications возвращает список уведомлений пользователя.
func (s *NotificationService) ListNotifications(ctx context.Context, userID uuid.UUID, limit, offset int, unreadOnly bool) ([]models.Notification, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	return s.repo.List(ctx, userID, limit, offset, unreadOnly)
}

// MarkAsRead отмечает уведомление как прочитанное.
func (s *NotificationService) MarkAsRead(ctx context.Context, id uuid.UUID) error {
	if err := s.repo.MarkAsRead(ctx, id); err != nil {
		return apperror.Wrap(err, apperror.ErrCodeNotFound, "уведомление не найдено")
	}
	return nil
}

// CountUnread возвращает количество непрочитанных уведомлений.
func (s *NotificationService) CountUnread(ctx context.Context, userID uuid.UUID) (int, error) {
	return s.repo.CountUnread(ctx, userID)
}
