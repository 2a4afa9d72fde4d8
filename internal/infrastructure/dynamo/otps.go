package dynamo

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/go-qr-auth/internal/domain"
)

// OTPRepo stores hashed passcodes keyed by full mobile number and creation time.
// Expired items are removed by DynamoDB TTL; reads still filter on expires_at
// because TTL deletion is lazy.
type OTPRepo struct {
	client    *dynamodb.Client
	tableName string
}

func NewOTPRepo(client *dynamodb.Client, tableName string) *OTPRepo {
	return &OTPRepo{client: client, tableName: tableName}
}

func (r *OTPRepo) Put(ctx context.Context, rec *domain.OTPRecord) error {
	item, err := attributevalue.MarshalMap(rec)
	if err != nil {
		return fmt.Errorf("marshal otp: %w", err)
	}
	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(r.tableName),
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("put otp: %w", err)
	}
	return nil
}

// Latest returns the newest unexpired record for mobileNumber.
func (r *OTPRepo) Latest(ctx context.Context, mobileNumber string) (*domain.OTPRecord, error) {
	out, err := r.client.Query(ctx, &dynamodb.QueryInput{
		TableName:                 aws.String(r.tableName),
		KeyConditionExpression:    aws.String("#pk = :pk"),
		ExpressionAttributeNames:  map[string]string{"#pk": fieldMobileNumber},
		ExpressionAttributeValues: map[string]types.AttributeValue{":pk": &types.AttributeValueMemberS{Value: mobileNumber}},
		ScanIndexForward:          aws.Bool(false),
		Limit:                     aws.Int32(1),
		ConsistentRead:            aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("query otp: %w", err)
	}
	if len(out.Items) == 0 {
		return nil, domain.ErrNotFound
	}
	var rec domain.OTPRecord
	if err := attributevalue.UnmarshalMap(out.Items[0], &rec); err != nil {
		return nil, fmt.Errorf("unmarshal otp: %w", err)
	}
	if rec.ExpiresAt <= time.Now().Unix() {
		return nil, domain.ErrNotFound
	}
	return &rec, nil
}

// Consume deletes exactly the given record. Only one of several concurrent
// callers succeeds; the rest get domain.ErrNotFound.
func (r *OTPRepo) Consume(ctx context.Context, rec *domain.OTPRecord) error {
	_, err := r.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName:           aws.String(r.tableName),
		Key:                 otpKey(rec.MobileNumber, rec.CreatedAt),
		ConditionExpression: aws.String("attribute_exists(" + fieldMobileNumber + ")"),
	})
	if err != nil {
		if isConditionFailure(err) {
			return domain.ErrNotFound
		}
		return fmt.Errorf("consume otp: %w", err)
	}
	return nil
}

// DeleteAll removes every record for mobileNumber.
func (r *OTPRepo) DeleteAll(ctx context.Context, mobileNumber string) error {
	return r.deleteWhere(ctx, mobileNumber, func(int64) bool { return true })
}

// DeleteAllExcept removes every record for mobileNumber other than the one
// created at keepCreatedAt.
func (r *OTPRepo) DeleteAllExcept(ctx context.Context, mobileNumber string, keepCreatedAt int64) error {
	return r.deleteWhere(ctx, mobileNumber, func(createdAt int64) bool { return createdAt != keepCreatedAt })
}

func (r *OTPRepo) deleteWhere(ctx context.Context, mobileNumber string, match func(int64) bool) error {
	p := dynamodb.NewQueryPaginator(r.client, &dynamodb.QueryInput{
		TableName:                 aws.String(r.tableName),
		KeyConditionExpression:    aws.String("#pk = :pk"),
		ProjectionExpression:      aws.String("#pk, #sk"),
		ExpressionAttributeNames:  map[string]string{"#pk": fieldMobileNumber, "#sk": fieldCreatedAt},
		ExpressionAttributeValues: map[string]types.AttributeValue{":pk": &types.AttributeValueMemberS{Value: mobileNumber}},
	})

	var keys []int64
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return fmt.Errorf("query otps: %w", err)
		}
		var recs []domain.OTPRecord
		if err := attributevalue.UnmarshalListOfMaps(page.Items, &recs); err != nil {
			return fmt.Errorf("unmarshal otps: %w", err)
		}
		for _, rec := range recs {
			if match(rec.CreatedAt) {
				keys = append(keys, rec.CreatedAt)
			}
		}
	}

	for _, batch := range chunk(keys, batchWriteLimit) {
		reqs := make([]types.WriteRequest, 0, len(batch))
		for _, createdAt := range batch {
			reqs = append(reqs, types.WriteRequest{
				DeleteRequest: &types.DeleteRequest{Key: otpKey(mobileNumber, createdAt)},
			})
		}
		if err := r.batchWrite(ctx, reqs); err != nil {
			return err
		}
	}
	return nil
}

// batchWrite retries unprocessed items a bounded number of times.
func (r *OTPRepo) batchWrite(ctx context.Context, reqs []types.WriteRequest) error {
	pending := map[string][]types.WriteRequest{r.tableName: reqs}
	for attempt := 0; attempt < maxRetryAttempts && len(pending[r.tableName]) > 0; attempt++ {
		out, err := r.client.BatchWriteItem(ctx, &dynamodb.BatchWriteItemInput{RequestItems: pending})
		if err != nil {
			return fmt.Errorf("batch delete otps: %w", err)
		}
		pending = out.UnprocessedItems
	}
	if n := len(pending[r.tableName]); n > 0 {
		return fmt.Errorf("batch delete otps: %d items unprocessed", n)
	}
	return nil
}
