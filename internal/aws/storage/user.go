package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/chess-vn/slduel/internal/domains/dtos"
	"github.com/chess-vn/slduel/internal/domains/entities"
)

func (client *Client) GetUser(ctx context.Context, userId string) (entities.User, error) {
	output, err := client.dynamodb.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: client.cfg.UsersTableName,
		Key: map[string]types.AttributeValue{
			"UserId": &types.AttributeValueMemberS{
				Value: userId,
			},
		},
	})
	if err != nil {
		return entities.User{}, err
	}
	if output.Item == nil {
		return entities.User{}, ErrUserNotFound
	}
	var user entities.User
	if err := attributevalue.UnmarshalMap(output.Item, &user); err != nil {
		return entities.User{}, err
	}
	return user, nil
}

// CreateUser stores a new user record. An existing record is left untouched
// and reported as ErrConditionFailed.
func (client *Client) CreateUser(ctx context.Context, user entities.User) error {
	av, err := attributevalue.MarshalMap(user)
	if err != nil {
		return fmt.Errorf("failed to marshal user: %w", err)
	}
	_, err = client.dynamodb.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           client.cfg.UsersTableName,
		Item:                av,
		ConditionExpression: aws.String("attribute_not_exists(UserId)"),
	})
	if err != nil {
		if isConditionFailure(err) {
			return ErrConditionFailed
		}
		return fmt.Errorf("failed to put user: %w", err)
	}
	return nil
}

type DuelOutcome string

const (
	OutcomeWin     DuelOutcome = "win"
	OutcomeLoss    DuelOutcome = "loss"
	OutcomeDraw    DuelOutcome = "draw"
	OutcomeForfeit DuelOutcome = "forfeit"
)

func (o DuelOutcome) attribute() (string, error) {
	switch o {
	case OutcomeWin:
		return "Wins", nil
	case OutcomeLoss:
		return "Losses", nil
	case OutcomeDraw:
		return "Draws", nil
	case OutcomeForfeit:
		return "Forfeits", nil
	}
	return "", fmt.Errorf("unknown duel outcome %q", o)
}

// RecordDuelResult counts the outcomes of a finished duel once. A marker keyed
// on the duel id is written in the same transaction as the counters, so a
// redelivered result fails with ErrResultRecorded and changes nothing.
func (client *Client) RecordDuelResult(ctx context.Context, result dtos.DuelResultEvent) error {
	outcomes := DuelOutcomes(result)
	if len(outcomes) == 0 {
		return nil
	}
	recordedAt, err := attributevalue.Marshal(time.Now())
	if err != nil {
		return err
	}
	items := []types.TransactWriteItem{
		{
			Put: &types.Put{
				TableName: client.cfg.ProcessedDuelResultsTableName,
				Item: map[string]types.AttributeValue{
					"DuelId":     &types.AttributeValueMemberS{Value: result.DuelId},
					"RecordedAt": recordedAt,
				},
				ConditionExpression: aws.String("attribute_not_exists(DuelId)"),
			},
		},
	}
	for userId, userOutcomes := range outcomes {
		update, err := client.outcomeUpdate(userId, userOutcomes)
		if err != nil {
			return err
		}
		items = append(items, types.TransactWriteItem{Update: update})
	}
	_, err = client.dynamodb.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: items,
	})
	if err != nil {
		if isConditionFailure(err) {
			return ErrResultRecorded
		}
		return fmt.Errorf("failed to record duel result: %w", err)
	}
	return nil
}

func (client *Client) outcomeUpdate(userId string, outcomes []DuelOutcome) (*types.Update, error) {
	names := map[string]string{}
	adds := make([]string, 0, len(outcomes))
	for i, outcome := range outcomes {
		attribute, err := outcome.attribute()
		if err != nil {
			return nil, err
		}
		placeholder := fmt.Sprintf("#c%d", i)
		names[placeholder] = attribute
		adds = append(adds, placeholder+" :one")
	}
	updatedAt, err := attributevalue.Marshal(time.Now())
	if err != nil {
		return nil, err
	}
	return &types.Update{
		TableName: client.cfg.UserDuelStatsTableName,
		Key: map[string]types.AttributeValue{
			"UserId": &types.AttributeValueMemberS{Value: userId},
		},
		UpdateExpression:         aws.String("ADD " + strings.Join(adds, ", ") + " SET UpdatedAt = :updatedAt"),
		ExpressionAttributeNames: names,
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":one":       &types.AttributeValueMemberN{Value: "1"},
			":updatedAt": updatedAt,
		},
	}, nil
}

func (client *Client) GetUserDuelStats(ctx context.Context, userId string) (entities.UserDuelStats, error) {
	output, err := client.dynamodb.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: client.cfg.UserDuelStatsTableName,
		Key: map[string]types.AttributeValue{
			"UserId": &types.AttributeValueMemberS{Value: userId},
		},
	})
	if err != nil {
		return entities.UserDuelStats{}, err
	}
	if output.Item == nil {
		return entities.UserDuelStats{UserId: userId}, nil
	}
	var stats entities.UserDuelStats
	if err := attributevalue.UnmarshalMap(output.Item, &stats); err != nil {
		return entities.UserDuelStats{}, err
	}
	return stats, nil
}
