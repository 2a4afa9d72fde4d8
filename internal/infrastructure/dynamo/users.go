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

// phoneItem maps a (countryCode, mobileNumber) pair to the owning user.
type phoneItem struct {
	PhoneKey string `dynamodbav:"phone_key"`
	UserID   string `dynamodbav:"user_id"`
}

// UserRepo provides typed DynamoDB operations for the users and user_phones tables.
type UserRepo struct {
	client     *dynamodb.Client
	tableName  string
	phoneTable string
}

func NewUserRepo(client *dynamodb.Client, tableName, phoneTable string) *UserRepo {
	return &UserRepo{client: client, tableName: tableName, phoneTable: phoneTable}
}

// Create writes the user and its phone mapping in one transaction. A second
// signup for the same phone number fails with domain.ErrConflict.
func (r *UserRepo) Create(ctx context.Context, u *domain.User) error {
	item, err := attributevalue.MarshalMap(u)
	if err != nil {
		return fmt.Errorf("marshal user: %w", err)
	}
	phone, err := attributevalue.MarshalMap(phoneItem{
		PhoneKey: domain.PhoneKey(u.CountryCode, u.MobileNumber),
		UserID:   u.UserID,
	})
	if err != nil {
		return fmt.Errorf("marshal phone: %w", err)
	}
	_, err = r.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{
			{Put: &types.Put{
				TableName:           aws.String(r.phoneTable),
				Item:                phone,
				ConditionExpression: aws.String("attribute_not_exists(" + fieldPhoneKey + ")"),
			}},
			{Put: &types.Put{
				TableName:           aws.String(r.tableName),
				Item:                item,
				ConditionExpression: aws.String("attribute_not_exists(" + fieldUserID + ")"),
			}},
		},
	})
	if err != nil {
		if isConditionFailure(err) {
			return fmt.Errorf("user %s: %w", domain.PhoneKey(u.CountryCode, u.MobileNumber), domain.ErrConflict)
		}
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

func (r *UserRepo) Get(ctx context.Context, userID string) (*domain.User, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(r.tableName),
		Key:       strKey(fieldUserID, userID),
	})
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	if out.Item == nil {
		return nil, domain.ErrNotFound
	}
	var u domain.User
	if err := attributevalue.UnmarshalMap(out.Item, &u); err != nil {
		return nil, fmt.Errorf("unmarshal user: %w", err)
	}
	return &u, nil
}

// GetByPhone resolves the phone mapping with a consistent read so a user
// created moments ago by a concurrent verify is visible.
func (r *UserRepo) GetByPhone(ctx context.Context, countryCode, mobileNumber string) (*domain.User, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(r.phoneTable),
		Key:            strKey(fieldPhoneKey, domain.PhoneKey(countryCode, mobileNumber)),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("get phone: %w", err)
	}
	if out.Item == nil {
		return nil, domain.ErrNotFound
	}
	var p phoneItem
	if err := attributevalue.UnmarshalMap(out.Item, &p); err != nil {
		return nil, fmt.Errorf("unmarshal phone: %w", err)
	}
	return r.Get(ctx, p.UserID)
}

// Update applies a partial update and returns the stored user afterwards.
func (r *UserRepo) Update(ctx context.Context, userID string, updates map[string]interface{}) (*domain.User, error) {
	updates[fieldUpdatedAt] = time.Now().UTC()
	ue, err := buildUpdateExpr(updates)
	if err != nil {
		return nil, err
	}
	out, err := r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(r.tableName),
		Key:                       strKey(fieldUserID, userID),
		UpdateExpression:          aws.String(ue.Expr),
		ConditionExpression:       aws.String("attribute_exists(" + fieldUserID + ")"),
		ExpressionAttributeNames:  ue.Names,
		ExpressionAttributeValues: ue.Values,
		ReturnValues:              types.ReturnValueAllNew,
	})
	if err != nil {
		if isConditionFailure(err) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("update user: %w", err)
	}
	var u domain.User
	if err := attributevalue.UnmarshalMap(out.Attributes, &u); err != nil {
		return nil, fmt.Errorf("unmarshal user: %w", err)
	}
	return &u, nil
}

// Ping reports whether the users table is reachable.
func (r *UserRepo) Ping(ctx context.Context) error {
	if _, err := r.client.DescribeTable(ctx, &dynamodb.DescribeTableInput{
		TableName: aws.String(r.tableName),
	}); err != nil {
		return fmt.Errorf("describe %s: %w", r.tableName, err)
	}
	return nil
}
