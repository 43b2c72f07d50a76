package conversation

import (
	"time"

	"github.com/wolfman30/listing-lead-assistant/internal/cities"
)

// Sound is a feedback cue for the widget.
type Sound string

const (
	SoundChat  Sound = "chat"
	SoundError Sound = "error"
)

// StepView is what the shell needs to render the active step.
type StepView struct {
	Index int            `json:"index"`
	Total int            `json:"total"`
	Step  StepDefinition `json:"step"`
	// Set on the OTP step only.
	ResendAvailableAt time.Time `json:"resendAvailableAt,omitzero"`
	ExpiresAt         time.Time `json:"expiresAt,omitzero"`
}

// Shell renders session events. Calls are made while the session is locked,
// so implementations must not block and must not call back into the Session.
type Shell interface {
	RenderStep(view StepView)
	ShowMessage(text string)
	ShowError(text string)
	ShowReminder(text string)
	ShowTyping()
	HideTyping()
	PlayFeedbackSound(kind Sound)
	ShowTerminal(success bool, message string)
	ShowCities(entries []cities.Entry)
}
