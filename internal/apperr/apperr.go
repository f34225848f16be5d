// Package apperr defines the error taxonomy shared by every service in the
// repository. Callers classify failures by wrapping one of the sentinels with
// fmt.Errorf("%w: ...") and the HTTP boundary maps the class to a status code.
package apperr

import (
	"errors"
	"strings"
)

var (
	// ErrAuth marks authentication/authorization failures: bad credentials,
	// invalid, expired or already-consumed tokens, malformed bearers.
	ErrAuth = errors.New("authentication failed")

	// ErrLogic marks business-rule violations on otherwise well-formed input.
	ErrLogic = errors.New("logic error")

	// ErrInfrastructure marks downstream dependency failures: store
	// transactions, event publishing. Details never reach the client.
	ErrInfrastructure = errors.New("infrastructure error")
)

// IsAuth reports whether err belongs to the authentication class.
func IsAuth(err error) bool { return errors.Is(err, ErrAuth) }

// IsLogic reports whether err belongs to the business-rule class.
func IsLogic(err error) bool { return errors.Is(err, ErrLogic) }

// IsInfrastructure reports whether err belongs to the dependency-failure class.
func IsInfrastructure(err error) bool { return errors.Is(err, ErrInfrastructure) }

// Message returns the human-readable part of a classified error, without the
// class prefix.
func Message(err error) string {
	if err == nil {
		return ""
	}
	s := err.Error()
	for _, sentinel := range []error{ErrAuth, ErrLogic, ErrInfrastructure} {
		if prefix := sentinel.Error() + ": "; strings.HasPrefix(s, prefix) {
			return s[len(prefix):]
		}
	}
	return s
}
