package domain

import "time"

type User struct {
	UserID       string     `json:"id" dynamodbav:"user_id"`
	CountryCode  string     `json:"countryCode" dynamodbav:"country_code"`
	MobileNumber string     `json:"mobileNumber" dynamodbav:"mobile_number"`
	FirstName    string     `json:"firstName" dynamodbav:"first_name"`
	LastName     string     `json:"lastName" dynamodbav:"last_name"`
	Email        string     `json:"email,omitempty" dynamodbav:"email,omitempty"`
	DateOfBirth  *time.Time `json:"dateOfBirth,omitempty" dynamodbav:"date_of_birth,omitempty"`
	Gender       string     `json:"gender,omitempty" dynamodbav:"gender,omitempty"`
	QRCodes      []string   `json:"allQr" dynamodbav:"qr_codes"`
	IsActive     bool       `json:"isActive" dynamodbav:"is_active"`
	CreatedAt    time.Time  `json:"createdAt" dynamodbav:"created_at"`
	UpdatedAt    time.Time  `json:"updatedAt" dynamodbav:"updated_at"`
}

// PhoneKey is the uniqueness key for (countryCode, mobileNumber).
func PhoneKey(countryCode, mobileNumber string) string {
	return countryCode + "#" + mobileNumber
}

type UpdateProfileRequest struct {
	FirstName   *string `json:"firstName" validate:"omitempty,max=100"`
	LastName    *string `json:"lastName" validate:"omitempty,max=100"`
	Email       *string `json:"email" validate:"omitempty,email"`
	DateOfBirth *string `json:"dateOfBirth"` // expected format: YYYY-MM-DD
	Gender      *string `json:"gender" validate:"omitempty,oneof='Male' 'Female' 'Other' 'Prefer not to say'"`
}
