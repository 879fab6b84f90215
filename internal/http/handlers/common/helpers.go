package common

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/ignatzorin/escrow-platform/internal/http/middleware"
	"github.com/ignatzorin/escrow-platform/internal/pkg/apperror"
)

// ErrUserNotFound возвращается, когда идентичность отсутствует в контексте.
var ErrUserNotFound = errors.New("пользователь не найден в контексте")

// CurrentUserID извлекает userID вызывающего из контекста запроса.
func CurrentUserID(c *gin.Context) (uuid.UUID, error) {
	raw, exists := c.Get(middleware.ContextUserIDKey)
	if !exists {
		return uuid.Nil, ErrUserNotFound
	}

	userID, ok := raw.(uuid.UUID)
	if !ok {
		return uuid.Nil, ErrUserNotFound
	}

	return userID, nil
}

// CurrentUserRole извлекает роль вызывающего из контекста запроса.
func CurrentUserRole(c *gin.Context) (string, error) {
	raw, exists := c.Get(middleware.ContextRoleKey)
	if !exists {
		return "", ErrUserNotFound
	}

	role, ok := raw.(string)
	if !ok {
		return "", ErrUserNotFound
	}

	return role, nil
}

// ParseIDParam читает числовой идентификатор из параметра пути.
func ParseIDParam(c *gin.Context, paramName string) (int64, error) {
	id, err := strconv.ParseInt(c.Param(paramName), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("параметр %s должен быть положительным числом", paramName)
	}
	return id, nil
}

// BindAndValidate парсит JSON тело запроса.
func BindAndValidate(c *gin.Context, req interface{}) error {
	if err := c.ShouldBindJSON(req); err != nil {
		return fmt.Errorf("ошибка валидации запроса: %w", err)
	}
	return nil
}

// RespondError отправляет доменную ошибку с её HTTP статусом и кодом.
// Неизвестные ошибки маскируются как внутренние.
func RespondError(c *gin.Context, err error) {
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		c.JSON(appErr.HTTPStatus, gin.H{"error": appErr.Message, "code": appErr.Code})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": "внутренняя ошибка сервера"})
}

// RespondBadRequest отправляет 400 с сообщением.
func RespondBadRequest(c *gin.Context, message string) {
	if message == "" {
		message = "некорректный запрос"
	}
	c.JSON(http.StatusBadRequest, gin.H{"error": message})
}

// RespondUnauthorized отправляет 401 с сообщением.
func RespondUnauthorized(c *gin.Context, message string) {
	if message == "" {
		message = "требуется авторизация"
	}
	c.JSON(http.StatusUnauthorized, gin.H{"error": message})
}

// GetPagination извлекает limit и offset из query параметров.
func GetPagination(c *gin.Context) (limit, offset int64) {
	limit, offset = 20, 0
	if v := c.Query("limit"); v != "" {
		if parsed, err := strconv.ParseInt(v, 10, 64); err == nil {
			limit = parsed
		}
	}
	if v := c.Query("offset"); v != "" {
		if parsed, err := strconv.ParseInt(v, 10, 64); err == nil {
			offset = parsed
		}
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return
}
