package check

import (
	"errors"
	"fmt"
)

// Reason classifies why a definition cannot be compiled.
type Reason string

// Reason values. All of them are domain-level conditions, never fatal.
const (
	ReasonMissingKeyColumn     Reason = "MissingKeyColumn"
	ReasonMissingQuery         Reason = "MissingQuery"
	ReasonUnsupportedCheckType Reason = "UnsupportedCheckType"
	ReasonInvalidIdentifier    Reason = "InvalidIdentifier"
	ReasonInvalidFilter        Reason = "InvalidFilter"
	ReasonInvalidQuery         Reason = "InvalidQuery"
	ReasonInvalidParameter     Reason = "InvalidParameter"
	ReasonInvalidSchedule      Reason = "InvalidSchedule"
)

// Invalid is returned by Compile when a definition cannot produce a job.
type Invalid struct {
	Reason  Reason
	Message string
}

func (e *Invalid) Error() string {
	if e.Message == "" {
		return string(e.Reason)
	}
	return string(e.Reason) + ": " + e.Message
}

// Unsupported reports whether the definition was rejected only because its
// type has no compiler. Such definitions keep any existing job.
func (e *Invalid) Unsupported() bool {
	return e.Reason == ReasonUnsupportedCheckType
}

func invalidf(reason Reason, format string, args ...interface{}) *Invalid {
	return &Invalid{Reason: reason, Message: fmt.Sprintf(format, args...)}
}

// AsInvalid extracts an *Invalid from err.
func AsInvalid(err error) (*Invalid, bool) {
	var inv *Invalid
	if errors.As(err, &inv) {
		return inv, true
	}
	return nil, false
}
