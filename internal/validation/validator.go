// Package validation checks raw conversation input against per-field rules.
// Every validator returns "" when the input is acceptable and a user-facing
// message otherwise.
package validation

import (
	"regexp"
	"slices"

	"github.com/wolfman30/listing-lead-assistant/internal/listing"
)

const (
	MsgInvalidName   = "Please enter a valid name (only letters, max 20 characters)."
	MsgInvalidPhone  = "Please enter a valid 10-digit phone number."
	MsgInvalidOTP    = "Please enter a valid 4-digit OTP."
	MsgEmptyCity     = "Please enter a valid city."
	MsgUnknownCity   = "Please select a city from the dropdown list."
	MsgInvalidChoice = "Please choose one of the options shown."
)

var (
	namePattern        = regexp.MustCompile(`^[a-zA-Z\s]{1,20}$`)
	phonePattern       = regexp.MustCompile(`^[0-9]{10}$`)
	otpPattern         = regexp.MustCompile(`^[0-9]{4}$`)
	intakePhonePattern = regexp.MustCompile(`^91-[6-9][0-9]{9}$`)
)

// CitySet is the membership view of the city directory used by ValidateCity.
type CitySet interface {
	Has(name string) bool
}

// ValidateName accepts 1-20 letters or spaces.
func ValidateName(s string) string {
	if !namePattern.MatchString(s) {
		return MsgInvalidName
	}
	return ""
}

// ValidatePhone accepts exactly 10 digits.
func ValidatePhone(s string) string {
	if !phonePattern.MatchString(s) {
		return MsgInvalidPhone
	}
	return ""
}

// ValidateOTP accepts exactly 4 digits.
func ValidateOTP(s string) string {
	if !otpPattern.MatchString(s) {
		return MsgInvalidOTP
	}
	return ""
}

// ValidateCity requires an exact display-name match in set.
func ValidateCity(s string, set CitySet) string {
	if s == "" {
		return MsgEmptyCity
	}
	if set == nil || !set.Has(s) {
		return MsgUnknownCity
	}
	return ""
}

// ValidateChoice requires s to be one of options.
func ValidateChoice(s string, options []string) string {
	if !slices.Contains(options, s) {
		return MsgInvalidChoice
	}
	return ""
}

// ValidIntakePhone reports whether s is in the "91-[6-9]XXXXXXXXX" intake format.
func ValidIntakePhone(s string) bool {
	return intakePhonePattern.MatchString(s)
}

// Rule validates the value for one field. options and cities are supplied by
// the caller; rules that do not need them ignore them.
type Rule func(value string, options []string, cities CitySet) string

var rules = map[listing.Field]Rule{
	listing.FieldUserType:    func(v string, opts []string, _ CitySet) string { return ValidateChoice(v, opts) },
	listing.FieldListingType: func(v string, opts []string, _ CitySet) string { return ValidateChoice(v, opts) },
	listing.FieldCity:        func(v string, _ []string, c CitySet) string { return ValidateCity(v, c) },
	listing.FieldName:        func(v string, _ []string, _ CitySet) string { return ValidateName(v) },
	listing.FieldNumber:      func(v string, _ []string, _ CitySet) string { return ValidatePhone(v) },
	listing.FieldOTP:         func(v string, _ []string, _ CitySet) string { return ValidateOTP(v) },
}

// For returns the rule registered for field.
func For(field listing.Field) (Rule, bool) {
	r, ok := rules[field]
	return r, ok
}

// Check runs the rule for field and wraps a failure in *Error.
func Check(field listing.Field, value string, options []string, cities CitySet) error {
	rule, ok := For(field)
	if !ok {
		return &Error{Field: field, Message: "unknown field"}
	}
	if msg := rule(value, options, cities); msg != "" {
		return &Error{Field: field, Message: msg}
	}
	return nil
}

// Error is a recoverable field-level validation failure.
type Error struct {
	Field   listing.Field
	Message string
}

func (e *Error) Error() string {
	return string(e.Field) + ": " + e.Message
}
