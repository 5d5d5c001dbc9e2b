// Package apperr содержит типизированные бизнес-ошибки ядра.
// Любое нарушение бизнес-правил возвращается вызывающему как *Error
// с кодом и человекочитаемым сообщением, никогда не паникой.
// Инфраструктурные сбои оборачиваются обычным fmt.Errorf и идут отдельно.
package apperr

import (
	"errors"
	"fmt"
)

type Code string

const (
	CodeValidation    Code = "validation"
	CodeConflict      Code = "conflict"
	CodeTiming        Code = "timing"
	CodeAuthorization Code = "authorization"
	CodeNotFound      Code = "not_found"
)

type Error struct {
	Code    Code
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

func newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

func Validation(format string, args ...any) *Error {
	return newf(CodeValidation, format, args...)
}

func Conflict(format string, args ...any) *Error {
	return newf(CodeConflict, format, args...)
}

func Timing(format string, args ...any) *Error {
	return newf(CodeTiming, format, args...)
}

func Authorization(format string, args ...any) *Error {
	return newf(CodeAuthorization, format, args...)
}

func NotFound(format string, args ...any) *Error {
	return newf(CodeNotFound, format, args...)
}

// CodeOf возвращает код бизнес-ошибки, пустую строку для остальных ошибок
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// IsCode проверяет что ошибка бизнесовая и имеет указанный код
func IsCode(err error, code Code) bool {
	return CodeOf(err) == code
}
