package leads

import (
	"strings"
	"time"

	"github.com/wolfman30/listing-lead-assistant/internal/listing"
	"github.com/wolfman30/listing-lead-assistant/internal/validation"
)

// Lead is a stored copy of a submitted listing lead.
type Lead struct {
	ID             string    `json:"id"`
	UserType       string    `json:"user_type"`
	ListingType    string    `json:"listing_type"`
	CityID         string    `json:"city_id"`
	CityName       string    `json:"city_name"`
	Name           string    `json:"name"`
	Phone          string    `json:"phone"`
	VerifiedUserID string    `json:"verified_user_id,omitempty"`
	Source         string    `json:"source"`
	CreatedAt      time.Time `json:"created_at"`
}

// CreateLeadRequest represents the request body for recording a lead
type CreateLeadRequest struct {
	UserType       string `json:"userType"`
	ListingType    string `json:"listingType"`
	City           string `json:"city"`
	CityID         string `json:"cityId,omitempty"`
	Name           string `json:"name"`
	Number         string `json:"number"`
	VerifiedUserID string `json:"-"`
	Source         string `json:"-"`
}

// Validate validates the create lead request
func (r *CreateLeadRequest) Validate() error {
	r.Name = strings.TrimSpace(r.Name)
	r.Number = strings.TrimSpace(r.Number)
	r.City = strings.TrimSpace(r.City)

	switch listing.UserType(r.UserType) {
	case listing.Owner, listing.Agent:
	default:
		return ErrInvalidUserType
	}
	switch listing.ListingType(r.ListingType) {
	case listing.Sale, listing.Rent:
	default:
		return ErrInvalidListingType
	}
	if r.City == "" {
		return ErrMissingCity
	}
	if validation.ValidateName(r.Name) != "" {
		return ErrInvalidName
	}
	if validation.ValidatePhone(r.Number) != "" {
		return ErrInvalidPhone
	}
	return nil
}

// RequestFromForm converts a completed conversation form.
func RequestFromForm(form listing.LeadForm, source string) *CreateLeadRequest {
	return &CreateLeadRequest{
		UserType:       string(form.UserType),
		ListingType:    string(form.ListingType),
		City:           form.CityName,
		CityID:         form.CityID,
		Name:           form.FullName,
		Number:         form.PhoneNumber,
		VerifiedUserID: form.VerifiedUserID,
		Source:         source,
	}
}

func (r *CreateLeadRequest) toLead(id string, createdAt time.Time) *Lead {
	return &Lead{
		ID:             id,
		UserType:       r.UserType,
		ListingType:    r.ListingType,
		CityID:         r.CityID,
		CityName:       r.City,
		Name:           r.Name,
		Phone:          r.Number,
		VerifiedUserID: r.VerifiedUserID,
		Source:         r.Source,
		CreatedAt:      createdAt,
	}
}

// ListLeadsFilter narrows an admin listing.
type ListLeadsFilter struct {
	CityID      string
	ListingType string
	Limit       int
	Offset      int
}

var timeNow = func() time.Time { return time.Now().UTC() }
