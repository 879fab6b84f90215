package service

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"

	"github.com/ignatzorin/escrow-platform/internal/ledger"
	"github.com/ignatzorin/escrow-platform/internal/models"
	"github.com/ignatzorin/escrow-platform/internal/repository"
)

// SeedService наполняет development окружение демо-данными: участники
// каждой роли, стартовые балансы и конфигурация комиссии.
type SeedService struct {
	users   *repository.UserRepository
	configs ConfigRepository
	ledger  *ledger.MemoryLedger
}

// NewSeedService создаёт сервис демо-данных.
func NewSeedService(users *repository.UserRepository, configs ConfigRepository, l *ledger.MemoryLedger) *SeedService {
	return &SeedService{users: users, configs: configs, ledger: l}
}

// SeedResult описывает созданные демо-аккаунты.
type SeedResult struct {
	Users []*models.User `json:"users"`
}

var seedAccounts = []struct {
	email    string
	username string
	role     string
	balance  int64
}{
	{"buyer@demo.local", "demo_buyer", models.RoleBuyer, 1_000_000},
	{"seller@demo.local", "demo_seller", models.RoleSeller, 0},
	{"arbiter@demo.local", "demo_arbiter", models.RoleArbiter, 0},
	{"admin@demo.local", "demo_admin", models.RoleAdmin, 0},
}

const seedToken = "USDC"

// Seed создаёт демо-пользователей (пароль у всех Password123), начисляет
// покупателю стартовый баланс и назначает администратора, если
// конфигурация комиссии ещё не инициализирована. Повторный вызов
// переиспользует уже существующие аккаунты.
func (s *SeedService) Seed(ctx context.Context) (*SeedResult, error) {
	passHash, err := bcrypt.GenerateFromPassword([]byte("Password123"), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("seed: не удалось захешировать пароль: %w", err)
	}

	result := &SeedResult{}
	for _, acc := range seedAccounts {
		user, err := s.users.GetByEmail(ctx, acc.email)
		if errors.Is(err, repository.ErrUserNotFound) {
			user = &models.User{
				Email:        acc.email,
				Username:     acc.username,
				PasswordHash: string(passHash),
				Role:         acc.role,
			}
			if err := s.users.Create(ctx, user); err != nil {
				return nil, fmt.Errorf("seed: не удалось создать пользователя %s: %w", acc.email, err)
			}
		} else if err != nil {
			return nil, err
		}

		if acc.balance > 0 {
			s.ledger.Credit(seedToken, ledger.UserAccount(user.ID.String()), acc.balance)
		}
		result.Users = append(result.Users, user)
	}

	// Администратором становится demo_admin, если конфигурация пуста.
	cfg, err := s.configs.Get(ctx)
	if err != nil {
		return nil, err
	}
	if cfg.AdminID == nil {
		admin := result.Users[len(result.Users)-1]
		cfg.AdminID = &admin.ID
		cfg.FeeCollector = &admin.ID
		if err := s.configs.Save(ctx, cfg); err != nil {
			return nil, err
		}
	}

	return result, nil
}
