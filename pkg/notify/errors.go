package notify

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidLocale matches any *InvalidLocaleError.
	ErrInvalidLocale = errors.New("the specified locale is not supported")
	// ErrInvalidRecipient matches any *InvalidRecipientError.
	ErrInvalidRecipient = errors.New("recipient does not expose device tokens")
	// ErrMissingCredentialConfig matches any *MissingCredentialConfigError.
	ErrMissingCredentialConfig = errors.New("gateway configuration is missing")
)

// InvalidLocaleError is returned by the builder for a locale outside the
// configured set.
type InvalidLocaleError struct {
	Locale Locale
}

func (e *InvalidLocaleError) Error() string {
	return fmt.Sprintf("locale %q is not supported", e.Locale)
}

func (e *InvalidLocaleError) Is(target error) bool { return target == ErrInvalidLocale }

// InvalidRecipientError is returned when a recipient entity cannot provide
// device tokens. Index is the entity's position in the resolved sequence.
type InvalidRecipientError struct {
	Index int
	Ref   EntityRef
}

func (e *InvalidRecipientError) Error() string {
	return fmt.Sprintf("recipient %d (%s) must implement TokenHolder to provide device tokens", e.Index, e.Ref)
}

func (e *InvalidRecipientError) Is(target error) bool { return target == ErrInvalidRecipient }

// MissingCredentialConfigError names the gateway setting that is absent.
type MissingCredentialConfigError struct {
	Field string
}

func (e *MissingCredentialConfigError) Error() string {
	return fmt.Sprintf("gateway configuration is missing %s", e.Field)
}

func (e *MissingCredentialConfigError) Is(target error) bool {
	return target == ErrMissingCredentialConfig
}

// CredentialFetchError wraps a failed access token issuance call.
type CredentialFetchError struct {
	Err error
}

func (e *CredentialFetchError) Error() string {
	return fmt.Sprintf("failed to fetch gateway access token: %v", e.Err)
}

func (e *CredentialFetchError) Unwrap() error { return e.Err }

// GatewayTransientError is a retryable send failure: a transport error or a
// 5xx/429 response. Status is zero for transport errors.
type GatewayTransientError struct {
	Status int
	Err    error
}

func (e *GatewayTransientError) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("gateway transport failed: %v", e.Err)
	}
	return fmt.Sprintf("gateway returned %d: %v", e.Status, e.Err)
}

func (e *GatewayTransientError) Unwrap() error { return e.Err }

// GatewayFatalError is a non-retryable send failure. Unregistered is set
// only when the gateway explicitly reported the device token as gone; a bare
// 404 from a misrouted request leaves it false.
type GatewayFatalError struct {
	Status       int
	Unregistered bool
	Err          error
}

func (e *GatewayFatalError) Error() string {
	return fmt.Sprintf("gateway rejected message (%d): %v", e.Status, e.Err)
}

func (e *GatewayFatalError) Unwrap() error { return e.Err }

// IsRetryable reports whether err should consume another send attempt.
// Errors that are not classified as fatal are treated as transient.
func IsRetryable(err error) bool {
	var fatal *GatewayFatalError
	return err != nil && !errors.As(err, &fatal)
}

// IsUnregistered reports whether err carries the gateway's verdict that the
// device token no longer exists.
func IsUnregistered(err error) bool {
	var fatal *GatewayFatalError
	return errors.As(err, &fatal) && fatal.Unregistered
}
