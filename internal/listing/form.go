// Package listing holds the lead form the widget fills in and the enum
// codes the intake endpoint expects.
package listing

import "strings"

// UserType is who is listing the property.
type UserType string

const (
	Owner UserType = "Owner"
	Agent UserType = "Agent"
)

// ListingType is the kind of deal the property is offered for.
type ListingType string

const (
	Sale ListingType = "Sale"
	Rent ListingType = "Rent"
)

// Code returns the intake code for the listing type: "1" for sale, "2" otherwise.
func (t ListingType) Code() string {
	if t == Sale {
		return "1"
	}
	return "2"
}

// Field names a LeadForm value written by a conversation step.
type Field string

const (
	FieldUserType    Field = "userType"
	FieldListingType Field = "listingType"
	FieldCity        Field = "city"
	FieldName        Field = "name"
	FieldNumber      Field = "number"
	FieldOTP         Field = "otp"
)

// LeadForm is the answer set collected during one conversation.
type LeadForm struct {
	UserType       UserType    `json:"userType"`
	ListingType    ListingType `json:"listingType"`
	CityName       string      `json:"cityName"`
	CityID         string      `json:"cityId"`
	FullName       string      `json:"fullName"`
	PhoneNumber    string      `json:"phoneNumber"`
	OTPCode        string      `json:"otpCode"`
	VerifiedUserID string      `json:"verifiedUserId"`
}

// Set writes a single answer. City ids are written separately by the caller
// because they come from the directory, not from the user.
func (f *LeadForm) Set(field Field, value string) {
	switch field {
	case FieldUserType:
		f.UserType = UserType(value)
	case FieldListingType:
		f.ListingType = ListingType(value)
	case FieldCity:
		f.CityName = value
	case FieldName:
		f.FullName = value
	case FieldNumber:
		f.PhoneNumber = value
	case FieldOTP:
		f.OTPCode = value
	}
}

// ClearPhone drops the number and everything derived from it.
func (f *LeadForm) ClearPhone() {
	f.PhoneNumber = ""
	f.OTPCode = ""
	f.VerifiedUserID = ""
}

// IntakePhone formats the number the way the intake endpoint expects ("91-XXXXXXXXXX").
func (f LeadForm) IntakePhone(countryCode string) string {
	if countryCode == "" {
		countryCode = "91"
	}
	return countryCode + "-" + f.PhoneNumber
}

// UpperUserType is the user type in the casing the intake endpoint expects.
func (f LeadForm) UpperUserType() string {
	return strings.ToUpper(string(f.UserType))
}
