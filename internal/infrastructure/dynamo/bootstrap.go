package dynamo

import (
	"context"
	"errors"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/go-qr-auth/internal/config"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Bootstrap creates all DynamoDB tables if they don't already exist and
// enables TTL on the OTP table. Safe to call on every startup.
// Tables are created concurrently; the first hard failure is returned.
func Bootstrap(ctx context.Context, client *dynamodb.Client, tables config.DynamoTables) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return createTable(ctx, client, &dynamodb.CreateTableInput{
			TableName:   aws.String(tables.Users),
			BillingMode: types.BillingModePayPerRequest,
			AttributeDefinitions: []types.AttributeDefinition{
				{AttributeName: aws.String(fieldUserID), AttributeType: types.ScalarAttributeTypeS},
			},
			KeySchema: []types.KeySchemaElement{
				{AttributeName: aws.String(fieldUserID), KeyType: types.KeyTypeHash},
			},
		})
	})

	// One item per (countryCode, mobileNumber); its conditional put is what
	// keeps phone numbers unique.
	g.Go(func() error {
		return createTable(ctx, client, &dynamodb.CreateTableInput{
			TableName:   aws.String(tables.UserPhones),
			BillingMode: types.BillingModePayPerRequest,
			AttributeDefinitions: []types.AttributeDefinition{
				{AttributeName: aws.String(fieldPhoneKey), AttributeType: types.ScalarAttributeTypeS},
			},
			KeySchema: []types.KeySchemaElement{
				{AttributeName: aws.String(fieldPhoneKey), KeyType: types.KeyTypeHash},
			},
		})
	})

	g.Go(func() error {
		err := createTable(ctx, client, &dynamodb.CreateTableInput{
			TableName:   aws.String(tables.OTPs),
			BillingMode: types.BillingModePayPerRequest,
			AttributeDefinitions: []types.AttributeDefinition{
				{AttributeName: aws.String(fieldMobileNumber), AttributeType: types.ScalarAttributeTypeS},
				{AttributeName: aws.String(fieldCreatedAt), AttributeType: types.ScalarAttributeTypeN},
			},
			KeySchema: []types.KeySchemaElement{
				{AttributeName: aws.String(fieldMobileNumber), KeyType: types.KeyTypeHash},
				{AttributeName: aws.String(fieldCreatedAt), KeyType: types.KeyTypeRange},
			},
		})
		if err != nil {
			return err
		}
		if err := waitForTable(ctx, client, tables.OTPs); err != nil {
			return err
		}
		enableTTL(ctx, client, tables.OTPs, fieldExpiresAt)
		return nil
	})

	return g.Wait()
}

func createTable(ctx context.Context, client *dynamodb.Client, input *dynamodb.CreateTableInput) error {
	_, err := client.CreateTable(ctx, input)
	if err != nil {
		// ResourceInUseException: the table already exists.
		var riue *types.ResourceInUseException
		if errors.As(err, &riue) {
			return nil
		}
		return err
	}
	zap.L().Info("created table", zap.String("table", *input.TableName))
	return nil
}

func waitForTable(ctx context.Context, client *dynamodb.Client, tableName string) error {
	w := dynamodb.NewTableExistsWaiter(client)
	return w.Wait(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(tableName)}, tableWaitTimeout)
}

func enableTTL(ctx context.Context, client *dynamodb.Client, tableName, ttlAttr string) {
	_, err := client.UpdateTimeToLive(ctx, &dynamodb.UpdateTimeToLiveInput{
		TableName: aws.String(tableName),
		TimeToLiveSpecification: &types.TimeToLiveSpecification{
			Enabled:       aws.Bool(true),
			AttributeName: aws.String(ttlAttr),
		},
	})
	if err != nil {
		// Re-enabling an already enabled TTL is rejected by DynamoDB; not fatal.
		zap.L().Warn("could not enable TTL", zap.String("table", tableName), zap.Error(err))
	}
}
