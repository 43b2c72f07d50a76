package otp

import (
	"errors"
	"fmt"
	"time"
)

// Kind classifies an OTP failure.
type Kind string

const (
	KindSendFailed       Kind = "send_failed"
	KindAttemptsExceeded Kind = "attempts_exceeded"
	KindExpired          Kind = "expired"
	KindInvalidCode      Kind = "invalid_code"
	KindNotSent          Kind = "not_sent"
	KindCooldown         Kind = "cooldown"
)

// ErrStale is returned when the session was reset while a provider call was
// in flight. The result of that call has been discarded.
var ErrStale = errors.New("otp: session superseded")

// Error is a recoverable OTP failure. Message is safe to show the user.
type Error struct {
	Kind       Kind
	Message    string
	Remaining  int
	RetryAfter time.Duration
	Err        error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("otp %s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("otp %s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// IsKind reports whether err is an *Error of kind k.
func IsKind(err error, k Kind) bool {
	var oe *Error
	return errors.As(err, &oe) && oe.Kind == k
}

func sendFailed(err error) *Error {
	return &Error{Kind: KindSendFailed, Message: "Failed to send OTP. Please try again.", Err: err}
}

func attemptsExceeded() *Error {
	return &Error{Kind: KindAttemptsExceeded, Message: "Maximum OTP attempts reached. Please resend OTP."}
}

func expired() *Error {
	return &Error{Kind: KindExpired, Message: "OTP has expired. Please resend OTP."}
}

func invalidCode(remaining int, err error) *Error {
	return &Error{
		Kind:      KindInvalidCode,
		Message:   fmt.Sprintf("Invalid OTP. %d attempts remaining.", remaining),
		Remaining: remaining,
		Err:       err,
	}
}

func notSent() *Error {
	return &Error{Kind: KindNotSent, Message: "Please request an OTP first."}
}

func cooldown(wait time.Duration) *Error {
	return &Error{Kind: KindCooldown, Message: "Please wait before resending OTP.", RetryAfter: wait}
}
