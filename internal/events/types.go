package events

import (
	"time"

	"github.com/google/uuid"

	"github.com/wolfman30/listing-lead-assistant/internal/leads"
)

// TypeLeadSubmitted is the event type of LeadSubmittedV1.
const TypeLeadSubmitted = "listing.lead.submitted.v1"

type LeadSubmittedV1 struct {
	EventID        string    `json:"event_id"`
	Type           string    `json:"type"`
	LeadID         string    `json:"lead_id"`
	UserType       string    `json:"user_type"`
	ListingType    string    `json:"listing_type"`
	CityID         string    `json:"city_id"`
	CityName       string    `json:"city_name"`
	Name           string    `json:"name"`
	Phone          string    `json:"phone"`
	VerifiedUserID string    `json:"verified_user_id,omitempty"`
	Source         string    `json:"source"`
	SubmittedAt    time.Time `json:"submitted_at"`
}

// NewLeadSubmitted builds the event for lead.
func NewLeadSubmitted(lead *leads.Lead) LeadSubmittedV1 {
	submitted := lead.CreatedAt
	if submitted.IsZero() {
		submitted = time.Now().UTC()
	}
	return LeadSubmittedV1{
		EventID:        uuid.NewString(),
		Type:           TypeLeadSubmitted,
		LeadID:         lead.ID,
		UserType:       lead.UserType,
		ListingType:    lead.ListingType,
		CityID:         lead.CityID,
		CityName:       lead.CityName,
		Name:           lead.Name,
		Phone:          lead.Phone,
		VerifiedUserID: lead.VerifiedUserID,
		Source:         lead.Source,
		SubmittedAt:    submitted,
	}
}
