package models

import (
	"time"

	"github.com/google/uuid"
)

// Роли участников платформы
const (
	RoleBuyer   = "buyer"
	RoleSeller  = "seller"
	RoleArbiter = "arbiter"
	RoleAdmin   = "admin"
)

// User описывает сущность участника платформы. Идентичность пользователя —
// это та самая «личность» из escrow: покупатель, продавец или арбитр.
type User struct {
	ID           uuid.UUID  `db:"id" json:"id"`
	Email        string     `db:"email" json:"email"`
	Username     string     `db:"username" json:"username"`
	PasswordHash string     `db:"password_hash" json:"-"`
	Role         string     `db:"role" json:"role"`
	IsActive     bool       `db:"is_active" json:"is_active"`
	LastLoginAt  *time.Time `db:"last_login_at" json:"last_login_at,omitempty"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at" json:"updated_at"`
}

// ValidRole проверяет, что роль входит в известный набор.
func ValidRole(role string) bool {
	switch role {
	case RoleBuyer, RoleSeller, RoleArbiter, RoleAdmin:
		return true
	default:
		return false
	}
}

// Session хранит refresh-токен пользователя.
type Session struct {
	ID           uuid.UUID `db:"id" json:"id"`
	UserID       uuid.UUID `db:"user_id" json:"user_id"`
	RefreshToken string    `db:"refresh_token" json:"-"`
	UserAgent    string    `db:"user_agent" json:"user_agent"`
	IPAddress    string    `db:"ip_address" json:"ip_address"`
	ExpiresAt    time.Time `db:"expires_at" json:"expires_at"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}
