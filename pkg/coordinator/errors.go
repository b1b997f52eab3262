package coordinator

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrAuthorization = errors.New("not authorized")
	ErrCapacity      = errors.New("capacity exceeded")
	ErrNotFound      = errors.New("not found")
	ErrProtocol      = errors.New("protocol error")
	ErrConflict      = errors.New("conflict")
)

func authorizationError(format string, a ...any) error { return wrap(ErrAuthorization, format, a...) }
func capacityError(format string, a ...any) error      { return wrap(ErrCapacity, format, a...) }
func notFoundError(format string, a ...any) error      { return wrap(ErrNotFound, format, a...) }
func protocolError(format string, a ...any) error      { return wrap(ErrProtocol, format, a...) }
func conflictError(format string, a ...any) error      { return wrap(ErrConflict, format, a...) }

func wrap(kind error, format string, a ...any) error {
	return fmt.Errorf("%w: %s", kind, fmt.Sprintf(format, a...))
}

// Code is the wire name of an error.
func Code(err error) string {
	switch {
	case errors.Is(err, ErrAuthorization):
		return "authorization"
	case errors.Is(err, ErrCapacity):
		return "capacity"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrProtocol):
		return "protocol"
	case errors.Is(err, ErrConflict):
		return "conflict"
	}
	return "internal"
}

func HttpStatus(err error) int {
	switch {
	case errors.Is(err, ErrAuthorization):
		return http.StatusForbidden
	case errors.Is(err, ErrCapacity):
		return http.StatusTooManyRequests
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrProtocol):
		return http.StatusBadRequest
	case errors.Is(err, ErrConflict):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}
