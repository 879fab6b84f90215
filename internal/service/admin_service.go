package service

import (
	"context"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/ignatzorin/escrow-platform/internal/logger"
	"github.com/ignatzorin/escrow-platform/internal/models"
	"github.com/ignatzorin/escrow-platform/internal/pkg/apperror"
)

// AdminService управляет конфигурацией платформы: администратором, счётом
// сбора комиссии и параметрами комиссии.
type AdminService struct {
	configs ConfigRepository
	events  EventPublisher
	log     *logrus.Entry
}

func NewAdminService(configs ConfigRepository, events EventPublisher) *AdminService {
	return &AdminService{
		configs: configs,
		events:  events,
		log:     logger.WithComponent("admin"),
	}
}

// InitializeParams — параметры инициализации платформы.
type InitializeParams struct {
	AdminID      uuid.UUID
	FeeCollector uuid.UUID
	FeeBps       int64
	MinFee       int64
}

// Initialize задаёт начальную конфигурацию. Первый вызов назначает
// администратора; повторные вызовы требуют полномочий действующего
// администратора и обновляют только параметры комиссии — сменить
// администратора через Initialize нельзя, для этого есть SetAdmin.
func (s *AdminService) Initialize(ctx context.Context, callerID uuid.UUID, p InitializeParams) (*models.FeeConfig, error) {
	if p.FeeBps < 0 || p.FeeBps > models.MaxFeeBps || p.MinFee < 0 {
		return nil, apperror.ErrInvalidFeeConfig
	}

	cfg, err := s.configs.Get(ctx)
	if err != nil {
		return nil, apperror.Wrap(err, apperror.ErrCodeDatabaseError, "не удалось получить конфигурацию")
	}

	if cfg.AdminID == nil {
		cfg.AdminID = &p.AdminID
	} else if *cfg.AdminID != callerID {
		return nil, apperror.ErrNotAdmin
	}

	cfg.FeeCollector = &p.FeeCollector
	cfg.FeeBps = p.FeeBps
	cfg.MinFee = p.MinFee
	if err := s.configs.Save(ctx, cfg); err != nil {
		return nil, apperror.Wrap(err, apperror.ErrCodeDatabaseError, "не удалось сохранить конфигурацию")
	}

	s.log.WithFields(logrus.Fields{"fee_bps": cfg.FeeBps, "min_fee": cfg.MinFee}).Info("платформа инициализирована")

	return cfg, nil
}

// SetAdmin передаёт права администратора. Требует полномочий действующего
// администратора.
func (s *AdminService) SetAdmin(ctx context.Context, callerID, newAdminID uuid.UUID) (*models.FeeConfig, error) {
	cfg, err := s.requireAdmin(ctx, callerID)
	if err != nil {
		return nil, err
	}

	cfg.AdminID = &newAdminID
	if err := s.configs.Save(ctx, cfg); err != nil {
		return nil, apperror.Wrap(err, apperror.ErrCodeDatabaseError, "не удалось сохранить конфигурацию")
	}

	s.log.WithField("admin_id", newAdminID).Info("права администратора переданы")
	if s.events != nil {
		s.events.Publish(ctx, models.EventAdminTransferred, []uuid.UUID{callerID, newAdminID}, map[string]interface{}{
			"event":    models.EventAdminTransferred,
			"admin_id": newAdminID,
		})
	}

	return cfg, nil
}

// SetFee обновляет параметры комиссии. Требует полномочий администратора.
func (s *AdminService) SetFee(ctx context.Context, callerID uuid.UUID, feeBps, minFee int64) (*models.FeeConfig, error) {
	if feeBps < 0 || feeBps > models.MaxFeeBps || minFee < 0 {
		return nil, apperror.ErrInvalidFeeConfig
	}

	cfg, err := s.requireAdmin(ctx, callerID)
	if err != nil {
		return nil, err
	}

	cfg.FeeBps = feeBps
	cfg.MinFee = minFee
	if err := s.configs.Save(ctx, cfg); err != nil {
		return nil, apperror.Wrap(err, apperror.ErrCodeDatabaseError, "не удалось сохранить конфигурацию")
	}

	s.log.WithFields(logrus.Fields{"fee_bps": feeBps, "min_fee": minFee}).Info("параметры комиссии обновлены")
	if s.events != nil && cfg.AdminID != nil {
		s.events.Publish(ctx, models.EventFeeChanged, []uuid.UUID{*cfg.AdminID}, map[string]interface{}{
			"event":   models.EventFeeChanged,
			"fee_bps": feeBps,
			"min_fee": minFee,
		})
	}

	return cfg, nil
}

// GetAdmin возвращает действующего администратора или NotAdmin, если он
// не назначен.
func (s *AdminService) GetAdmin(ctx context.Context) (uuid.UUID, error) {
	cfg, err := s.configs.Get(ctx)
	if err != nil {
		return uuid.Nil, apperror.Wrap(err, apperror.ErrCodeDatabaseError, "не удалось получить конфигурацию")
	}
	if cfg.AdminID == nil {
		return uuid.Nil, apperror.ErrNotAdmin
	}
	return *cfg.AdminID, nil
}

// GetFee возвращает текущую конфигурацию комиссии.
func (s *AdminService) GetFee(ctx context.Context) (*models.FeeConfig, error) {
	cfg, err := s.configs.Get(ctx)
	if err != nil {
		return nil, apperror.Wrap(err, apperror.ErrCodeDatabaseError, "не удалось получить конфигурацию")
	}
	return cfg, nil
}

func (s *AdminService) requireAdmin(ctx context.Context, callerID uuid.UUID) (*models.FeeConfig, error) {
	cfg, err := s.configs.Get(ctx)
	if err != nil {
		return nil, apperror.Wrap(err, apperror.ErrCodeDatabaseError, "не удалось получить конфигурацию")
	}
	if cfg.AdminID == nil || *cfg.AdminID != callerID {
		return nil, apperror.ErrNotAdmin
	}
	return cfg, nil
}
