package conversation

import "errors"

var (
	ErrWrongStep          = errors.New("conversation: answer does not match the active step")
	ErrBusy               = errors.New("conversation: another request is in progress")
	ErrStale              = errors.New("conversation: session moved on while the request was in flight")
	ErrConversationClosed = errors.New("conversation: steps are complete")
	ErrNotAtOTPStep       = errors.New("conversation: not at the OTP step")
	ErrNotChatting        = errors.New("conversation: follow-up chat is not available")
	ErrSessionNotFound    = errors.New("conversation: session not found")
)
