package publisher

import (
	"errors"
	"fmt"
	"strings"

	"github.com/maheshrc27/vantage/internal/client"
)

var ErrUnsupportedPlatform = errors.New("unsupported platform")

// ValidationError means the content or the options are unusable as given.
// Resubmitting the same request will fail again.
type ValidationError struct {
	Platform string
	Errors   []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: validation failed: %s", e.Platform, strings.Join(e.Errors, "; "))
}

// AuthenticationError means the token is missing, invalid or expired and
// the account has to be reconnected.
type AuthenticationError struct {
	Platform string
	Message  string
	Err      error
}

func (e *AuthenticationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: authentication failed: %s: %v", e.Platform, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: authentication failed: %s", e.Platform, e.Message)
}

func (e *AuthenticationError) Unwrap() error { return e.Err }

// PublishingError means the platform accepted the call shape but the
// operation itself did not succeed.
type PublishingError struct {
	Platform string
	Op       string
	Err      error
}

func (e *PublishingError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Platform, e.Op, e.Err)
}

func (e *PublishingError) Unwrap() error { return e.Err }

// IsTerminal reports errors that a retry cannot fix.
func IsTerminal(err error) bool {
	var ve *ValidationError
	var ae *AuthenticationError
	return errors.As(err, &ve) || errors.As(err, &ae) || errors.Is(err, ErrUnsupportedPlatform)
}

// classify turns credential rejections into AuthenticationError and leaves
// every other client error as is.
func classify(platform string, err error) error {
	if err == nil {
		return nil
	}
	var httpErr *client.HTTPError
	if errors.As(err, &httpErr) && httpErr.Unauthorized() {
		return &AuthenticationError{Platform: platform, Message: httpErr.Message, Err: err}
	}
	return err
}

func isNotFound(err error) bool {
	var httpErr *client.HTTPError
	return errors.As(err, &httpErr) && httpErr.NotFound()
}
