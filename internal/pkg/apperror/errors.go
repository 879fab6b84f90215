package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

type ErrorCode string

const (
	ErrCodeNotFound      ErrorCode = "NOT_FOUND"
	ErrCodeUnauthorized  ErrorCode = "UNAUTHORIZED"
	ErrCodeForbidden     ErrorCode = "FORBIDDEN"
	ErrCodeBadRequest    ErrorCode = "BAD_REQUEST"
	ErrCodeConflict      ErrorCode = "CONFLICT"
	ErrCodeInternal      ErrorCode = "INTERNAL_ERROR"
	ErrCodeValidation    ErrorCode = "VALIDATION_ERROR"
	ErrCodeDatabaseError ErrorCode = "DATABASE_ERROR"
)

type AppError struct {
	Code       ErrorCode
	Message    string
	HTTPStatus int
	Cause      error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: codeToHTTPStatus(code),
	}
}

func Wrap(err error, code ErrorCode, message string) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: codeToHTTPStatus(code),
		Cause:      err,
	}
}

func codeToHTTPStatus(code ErrorCode) int {
	switch code {
	case ErrCodeNotFound:
		return http.StatusNotFound
	case ErrCodeUnauthorized:
		return http.StatusUnauthorized
	case ErrCodeForbidden:
		return http.StatusForbidden
	case ErrCodeBadRequest, ErrCodeValidation:
		return http.StatusBadRequest
	case ErrCodeConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func IsNotFound(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Code == ErrCodeNotFound
}

func IsForbidden(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Code == ErrCodeForbidden
}

func IsValidation(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Code == ErrCodeValidation
}

func IsConflict(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Code == ErrCodeConflict
}

// Замкнутое множество доменных ошибок: каждая операция движка escrow
// завершается либо успехом, либо одной из ошибок этого списка.
var (
	ErrEscrowNotFound            = New(ErrCodeNotFound, "сделка не найдена")
	ErrRefundRequestNotFound     = New(ErrCodeNotFound, "заявка на возврат не найдена")
	ErrUserNotFound              = New(ErrCodeNotFound, "пользователь не найден")
	ErrInvalidTransition         = New(ErrCodeConflict, "недопустимый переход статуса сделки")
	ErrUnauthorized              = New(ErrCodeForbidden, "операция недоступна этому участнику")
	ErrEscrowNotFunded           = New(ErrCodeConflict, "сделка не профинансирована")
	ErrAlreadyFunded             = New(ErrCodeConflict, "сделка уже профинансирована")
	ErrInvalidFeeConfig          = New(ErrCodeValidation, "недопустимая конфигурация комиссии")
	ErrInvalidEscrowAmount       = New(ErrCodeValidation, "сумма сделки должна быть положительной")
	ErrRefundAmountExceedsEscrow = New(ErrCodeValidation, "сумма возврата превышает сумму сделки")
	ErrRefundAlreadyProcessed    = New(ErrCodeConflict, "заявка на возврат уже обработана")
	ErrRefundWindowExpired       = New(ErrCodeConflict, "срок подачи заявки на возврат истёк")
	ErrNotAdmin                  = New(ErrCodeForbidden, "требуются права администратора")
	ErrFeeBelowMinimum           = New(ErrCodeConflict, "комиссия меньше установленного минимума")
	ErrLengthMismatch            = New(ErrCodeValidation, "длины массивов параметров не совпадают")
	ErrInvalidReleaseAmount      = New(ErrCodeValidation, "недопустимая сумма выпуска")
	ErrReentrancyDetected        = New(ErrCodeConflict, "повторный вход в операцию по той же сделке")

	ErrAuthRequired       = New(ErrCodeUnauthorized, "требуется авторизация")
	ErrInvalidCredentials = New(ErrCodeUnauthorized, "неверные учетные данные")
)
