package apperr

import (
	"errors"
	"fmt"
	"net/http"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type Code int

const (
	Internal Code = iota
	Validation
	WorkflowViolation
	NotFound
	Conflict
	NoIssue
	Collaborator
	Unauthorized
	Forbidden
)

// GenericMessage возвращается клиенту вместо деталей сбоя внешних сервисов
const GenericMessage = "something went wrong, please try again later"

func (c Code) String() string {
	switch c {
	case Validation:
		return "validation_error"
	case WorkflowViolation:
		return "workflow_violation"
	case NotFound:
		return "not_found"
	case Conflict:
		return "conflict"
	case NoIssue:
		return "no_issue_detected"
	case Collaborator:
		return "collaborator_failure"
	case Unauthorized:
		return "unauthorized"
	case Forbidden:
		return "forbidden"
	default:
		return "internal"
	}
}

func (c Code) HTTPStatus() int {
	switch c {
	case Validation, WorkflowViolation:
		return http.StatusBadRequest
	case NotFound:
		return http.StatusNotFound
	case Conflict:
		return http.StatusConflict
	case NoIssue:
		return http.StatusUnprocessableEntity
	case Unauthorized:
		return http.StatusUnauthorized
	case Forbidden:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

func (c Code) GRPCCode() codes.Code {
	switch c {
	case Validation:
		return codes.InvalidArgument
	case WorkflowViolation:
		return codes.FailedPrecondition
	case NotFound:
		return codes.NotFound
	case Conflict:
		return codes.Aborted
	case NoIssue:
		return codes.InvalidArgument
	case Collaborator:
		return codes.Unavailable
	case Unauthorized:
		return codes.Unauthenticated
	case Forbidden:
		return codes.PermissionDenied
	default:
		return codes.Internal
	}
}

// Error несёт код для клиента, безопасное сообщение и исходную причину для логов
type Error struct {
	Code Code
	Msg  string
	Err  error
}

func New(code Code, msg string, underlying error) *Error {
	return &Error{Code: code, Msg: msg, Err: underlying}
}

func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Msg: fmt.Sprintf(format, args...)}
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("[%s] %s", e.Code, e.Msg)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Msg, e.Err.Error())
}

func (e *Error) Unwrap() error {
	return e.Err
}

// PublicMessage скрывает детали внутренних сбоев
func (e *Error) PublicMessage() string {
	switch e.Code {
	case Collaborator, Internal:
		return GenericMessage
	default:
		return e.Msg
	}
}

func (e *Error) GRPCStatus() *status.Status {
	return status.New(e.Code.GRPCCode(), e.PublicMessage())
}

// From приводит произвольную ошибку к *Error; неизвестные ошибки считаются внутренними
func From(err error) *Error {
	if err == nil {
		return nil
	}
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr
	}
	return New(Internal, "internal error", err)
}

func CodeOf(err error) Code {
	if err == nil {
		return Internal
	}
	return From(err).Code
}

func IsCode(err error, code Code) bool {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}
