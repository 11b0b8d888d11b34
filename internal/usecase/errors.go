package usecase

import (
	"errors"
	"fmt"
	"net/http"
)

// エラーの種類。handlerはKindではなくStatusを見ればよいが、テストや呼び出し側の分岐に使う
type ErrorKind string

const (
	KindValidation   ErrorKind = "validation"
	KindUnavailable  ErrorKind = "unavailable"
	KindUnauthorized ErrorKind = "unauthorized"
	KindForbidden    ErrorKind = "forbidden"
	KindNotFound     ErrorKind = "not_found"
	KindConflict     ErrorKind = "conflict"
	KindInternal     ErrorKind = "internal"
)

var kindStatus = map[ErrorKind]int{
	KindValidation:   http.StatusBadRequest,
	KindUnavailable:  http.StatusUnprocessableEntity,
	KindUnauthorized: http.StatusUnauthorized,
	KindForbidden:    http.StatusForbidden,
	KindNotFound:     http.StatusNotFound,
	KindConflict:     http.StatusConflict,
	KindInternal:     http.StatusInternalServerError,
}

type HTTPError struct {
	Kind    ErrorKind
	Status  int
	Message string
	// ログ用の元エラー（レスポンスには出さない）
	Err error
}

func (e *HTTPError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%d: %s: %v", e.Status, e.Message, e.Err)
	}
	return fmt.Sprintf("%d: %s", e.Status, e.Message)
}

func (e *HTTPError) Unwrap() error { return e.Err }

func NewHTTPError(status int, message string) error {
	kind := KindInternal
	for k, s := range kindStatus {
		if s == status {
			kind = k
			break
		}
	}
	return &HTTPError{Kind: kind, Status: status, Message: message}
}

func newError(kind ErrorKind, message string) error {
	return &HTTPError{Kind: kind, Status: kindStatus[kind], Message: message}
}

func validationError(message string) error  { return newError(KindValidation, message) }
func unavailableError(message string) error { return newError(KindUnavailable, message) }
func conflictError(message string) error    { return newError(KindConflict, message) }

var (
	errUnauthorized = newError(KindUnauthorized, "unauthorized")
	errForbidden    = newError(KindForbidden, "forbidden")
	errNotFound     = newError(KindNotFound, "not found")
)

// DBなどの失敗。中身は返さずログに回す
func internalError(err error) error {
	return &HTTPError{Kind: KindInternal, Status: http.StatusInternalServerError, Message: "internal error", Err: err}
}

func AsHTTPError(err error) (*HTTPError, bool) {
	var he *HTTPError
	ok := errors.As(err, &he)
	return he, ok
}

func IsKind(err error, kind ErrorKind) bool {
	he, ok := AsHTTPError(err)
	return ok && he.Kind == kind
}
