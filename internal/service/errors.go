package service

import (
	"errors"

	"github.com/maheshrc27/vantage/internal/models"
	"github.com/maheshrc27/vantage/internal/publisher"
)

var (
	ErrNotFound   = errors.New("not found")
	ErrBadRequest = errors.New("bad request")
)

// RequestError carries a message that is safe to show API callers.
type RequestError struct {
	Message string
}

func (e *RequestError) Error() string { return e.Message }

func (e *RequestError) Is(target error) bool { return target == ErrBadRequest }

func badRequest(msg string) error {
	return &RequestError{Message: msg}
}

// IsTerminal reports failures that a queued retry cannot fix.
func IsTerminal(err error) bool {
	return publisher.IsTerminal(err) ||
		errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrBadRequest) ||
		errors.Is(err, models.ErrTerminalReference)
}
