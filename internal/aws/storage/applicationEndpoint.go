package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/chess-vn/slduel/internal/domains/entities"
)

func (client *Client) GetApplicationEndpoint(
	ctx context.Context,
	userId string,
) (
	entities.ApplicationEndpoint,
	error,
) {
	output, err := client.dynamodb.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: client.cfg.ApplicationEndpointsTableName,
		Key: map[string]types.AttributeValue{
			"UserId": &types.AttributeValueMemberS{
				Value: userId,
			},
		},
	})
	if err != nil {
		return entities.ApplicationEndpoint{}, err
	}
	if output.Item == nil {
		return entities.ApplicationEndpoint{}, ErrApplicationEndpointNotFound
	}
	var endpoint entities.ApplicationEndpoint
	if err := attributevalue.UnmarshalMap(output.Item, &endpoint); err != nil {
		return entities.ApplicationEndpoint{}, err
	}
	return endpoint, nil
}

// PutApplicationEndpoint registers the SNS endpoint used for push when the user
// has no live connection.
func (client *Client) PutApplicationEndpoint(ctx context.Context, endpoint entities.ApplicationEndpoint) error {
	if endpoint.UpdatedAt.IsZero() {
		endpoint.UpdatedAt = time.Now()
	}
	av, err := attributevalue.MarshalMap(endpoint)
	if err != nil {
		return fmt.Errorf("failed to marshal map: %w", err)
	}
	_, err = client.dynamodb.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: client.cfg.ApplicationEndpointsTableName,
		Item:      av,
	})
	if err != nil {
		return fmt.Errorf("failed to put application endpoint: %w", err)
	}
	return nil
}
