package dynamo

import "time"

// DynamoDB attribute names used in key and condition expressions across repos.
// Using constants prevents silent runtime bugs caused by key typos.
const (
	fieldUserID       = "user_id"
	fieldPhoneKey     = "phone_key"
	fieldMobileNumber = "mobile_number"
	fieldCreatedAt    = "created_at"
	fieldExpiresAt    = "expires_at"
	fieldUpdatedAt    = "updated_at"
)

// batchWriteLimit is DynamoDB's cap on requests per BatchWriteItem call.
const batchWriteLimit = 25

const tableWaitTimeout = 2 * time.Minute
