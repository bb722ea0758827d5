// Package apperr define a taxonomia de erros exposta pelos serviços.
package apperr

import (
	"errors"
	"net/http"
)

// Kind classifica a falha para o chamador.
type Kind string

const (
	KindNotFound           Kind = "NOT_FOUND"
	KindUnauthorized       Kind = "UNAUTHORIZED"
	KindForbidden          Kind = "FORBIDDEN"
	KindPreconditionFailed Kind = "PRECONDITION_FAILED"
	KindConflict           Kind = "CONFLICT"
	KindBadRequest         Kind = "BAD_REQUEST"
	KindStorageFailed      Kind = "STORAGE_FAILED"
)

var (
	ErrNotFound           = &Error{Kind: KindNotFound}
	ErrUnauthorized       = &Error{Kind: KindUnauthorized}
	ErrForbidden          = &Error{Kind: KindForbidden}
	ErrPreconditionFailed = &Error{Kind: KindPreconditionFailed}
	ErrConflict           = &Error{Kind: KindConflict}
	ErrBadRequest         = &Error{Kind: KindBadRequest}
	ErrStorageFailed      = &Error{Kind: KindStorageFailed}
)

// Error carrega o tipo da falha, mensagem pública e causa interna.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is compara apenas o Kind, permitindo errors.Is(err, apperr.ErrNotFound).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

func New(kind Kind, message string) error {
	return &Error{Kind: kind, Message: message}
}

func Wrap(kind Kind, message string, err error) error {
	return &Error{Kind: kind, Message: message, Err: err}
}

func NotFound(message string) error           { return New(KindNotFound, message) }
func Unauthorized(message string) error       { return New(KindUnauthorized, message) }
func Forbidden(message string) error          { return New(KindForbidden, message) }
func PreconditionFailed(message string) error { return New(KindPreconditionFailed, message) }
func BadRequest(message string) error         { return New(KindBadRequest, message) }

func Conflict(message string, err error) error {
	return Wrap(KindConflict, message, err)
}

func StorageFailed(message string, err error) error {
	return Wrap(KindStorageFailed, message, err)
}

// KindOf devolve o Kind do primeiro apperr.Error na cadeia.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}

// PublicMessage devolve a mensagem segura para o cliente.
func PublicMessage(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Message != "" {
		return e.Message
	}
	return "erro interno"
}

// HTTPStatus mapeia o Kind para o status HTTP correspondente.
func HTTPStatus(kind Kind) int {
	switch kind {
	case KindNotFound:
		return http.StatusNotFound
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindPreconditionFailed:
		return http.StatusPreconditionFailed
	case KindConflict:
		return http.StatusConflict
	case KindBadRequest:
		return http.StatusBadRequest
	case KindStorageFailed:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
