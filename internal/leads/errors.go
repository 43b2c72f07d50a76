package leads

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidName is returned when the name is invalid
	ErrInvalidName = errors.New("name must be 1-20 letters")

	// ErrInvalidPhone is returned when the phone number is not 10 digits
	ErrInvalidPhone = errors.New("phone must be 10 digits")

	// ErrInvalidUserType is returned when the role is neither Owner nor Agent
	ErrInvalidUserType = errors.New("userType must be Owner or Agent")

	// ErrInvalidListingType is returned when the listing type is neither Sale nor Rent
	ErrInvalidListingType = errors.New("listingType must be Sale or Rent")

	// ErrMissingCity is returned when no city was given
	ErrMissingCity = errors.New("city is required")

	// ErrLeadNotFound is returned when a lead is not found
	ErrLeadNotFound = errors.New("lead not found")
)

// SubmissionError is a terminal failure of one submission attempt. The
// conversation must be restarted to try again.
type SubmissionError struct {
	Outcome    Outcome
	StatusCode int
	Message    string
	Err        error
}

func (e *SubmissionError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("leads: submission %s (status %d): %s", e.Outcome, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("leads: submission %s: %s", e.Outcome, e.Message)
}

func (e *SubmissionError) Unwrap() error { return e.Err }
