package domain

// OTPRecord is a hashed one-time passcode for a full mobile number.
// PK: mobile_number (country code + number), SK: created_at (unix nanos).
// ExpiresAt is a Unix timestamp used as DynamoDB TTL.
type OTPRecord struct {
	MobileNumber string `json:"mobile_number" dynamodbav:"mobile_number"`
	CreatedAt    int64  `json:"created_at" dynamodbav:"created_at"`
	OTPHash      string `json:"-" dynamodbav:"otp_hash"`
	ExpiresAt    int64  `json:"expires_at" dynamodbav:"expires_at"` // TTL (Unix seconds)
}

// FullMobileNumber concatenates country code and number the way SMS gateways expect it.
func FullMobileNumber(countryCode, mobileNumber string) string {
	return countryCode + mobileNumber
}
