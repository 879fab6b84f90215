package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/ignatzorin/escrow-platform/internal/models"
)

// ConfigRepository хранит единственную строку fee_config (id = 1):
// администратор платформы, счёт сбора комиссии и параметры комиссии.
type ConfigRepository struct {
	db *sqlx.DB
}

// NewConfigRepository создаёт экземпляр репозитория.
func NewConfigRepository(db *sqlx.DB) *ConfigRepository {
	return &ConfigRepository{db: db}
}

// Get возвращает конфигурацию комиссии. Если строка ещё не создана,
// возвращается нулевая конфигурация без администратора.
func (r *ConfigRepository) Get(ctx context.Context) (*models.FeeConfig, error) {
	var cfg models.FeeConfig
	if err := r.db.GetContext(ctx, &cfg, `SELECT * FROM fee_config WHERE id = 1`); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return &models.FeeConfig{ID: 1}, nil
		}
		return nil, fmt.Errorf("config repository: get %w", err)
	}

	return &cfg, nil
}

// Save создаёт или обновляет строку конфигурации.
func (r *ConfigRepository) Save(ctx context.Context, cfg *models.FeeConfig) error {
	query := `
		INSERT INTO fee_config (id, admin_id, fee_collector, fee_bps, min_fee, updated_at)
		VALUES (1, $1, $2, $3, $4, NOW())
		ON CONFLICT (id) DO UPDATE
		SET admin_id = EXCLUDED.admin_id,
			fee_collector = EXCLUDED.fee_collector,
			fee_bps = EXCLUDED.fee_bps,
			min_fee = EXCLUDED.min_fee,
			updated_at = NOW()
		RETURNING updated_at
	`
	if err := r.db.QueryRowxContext(
		ctx, query,
		cfg.AdminID, cfg.FeeCollector, cfg.FeeBps, cfg.MinFee,
	).Scan(&cfg.UpdatedAt); err != nil {
		return fmt.Errorf("config repository: save %w", err)
	}
	cfg.ID = 1

	return nil
}
