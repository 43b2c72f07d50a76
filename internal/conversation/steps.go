package conversation

import (
	"slices"

	"github.com/wolfman30/listing-lead-assistant/internal/listing"
)

// Kind is the input widget a step asks for.
type Kind string

const (
	KindChoice   Kind = "choice"
	KindFreeText Kind = "free_text"
	KindOTP      Kind = "otp"
)

// StepDefinition describes one question. Validation is looked up by Field.
type StepDefinition struct {
	Kind        Kind          `json:"kind"`
	Field       listing.Field `json:"field"`
	Message     string        `json:"message"`
	Options     []string      `json:"options,omitempty"`
	Placeholder string        `json:"placeholder,omitempty"`
	Reminder    string        `json:"reminder"`
}

var steps = []StepDefinition{
	{
		Kind:     KindChoice,
		Field:    listing.FieldUserType,
		Message:  "Are you the property owner or an agent? 🧑‍💼",
		Options:  []string{string(listing.Owner), string(listing.Agent)},
		Reminder: "⏳ Are you still there? Please choose if you’re an owner or agent.",
	},
	{
		Kind:     KindChoice,
		Field:    listing.FieldListingType,
		Message:  "🏠 Is the property for sale or rent? 💸",
		Options:  []string{string(listing.Sale), string(listing.Rent)},
		Reminder: "⏳ Are you still there? Please select if the property is for sale or rent.",
	},
	{
		Kind:        KindFreeText,
		Field:       listing.FieldCity,
		Message:     "📍 Which city is your property in? 🌆 (Please select from the dropdown)",
		Placeholder: "Type and select a city (e.g., Mumbai)",
		Reminder:    "⏳ Are you still there? Please select your city from the dropdown.",
	},
	{
		Kind:     KindFreeText,
		Field:    listing.FieldName,
		Message:  "✨ To list your property quickly and hassle-free, our expert agent is ready to assist you personally! Please share your name. 📝",
		Reminder: "⏳ Are you still there? Please share your name.",
	},
	{
		Kind:     KindFreeText,
		Field:    listing.FieldNumber,
		Message:  "📞 Please enter your 10-digit phone number to receive an OTP for verification. 🔒 Your data is secure.",
		Reminder: "⏳ Are you still there? Please enter your phone number.",
	},
	{
		Kind:        KindOTP,
		Field:       listing.FieldOTP,
		Message:     "Please enter the 4-digit OTP sent to your phone number.",
		Placeholder: "Enter OTP",
		Reminder:    "Are you still there? Please enter the OTP.",
	},
}

const (
	numberStep = 4
	otpStep    = 5
)

// Steps returns a copy of the step list in order.
func Steps() []StepDefinition {
	out := make([]StepDefinition, len(steps))
	for i, s := range steps {
		s.Options = slices.Clone(s.Options)
		out[i] = s
	}
	return out
}

// StepCount is the number of steps before submission.
func StepCount() int { return len(steps) }
