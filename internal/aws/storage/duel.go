package storage

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/chess-vn/slduel/internal/domains/entities"
)

// CreateDuel stores the duel and claims the pair lock in one transaction.
func (client *Client) CreateDuel(ctx context.Context, duel entities.Duel) error {
	av, err := attributevalue.MarshalMap(duel)
	if err != nil {
		return fmt.Errorf("failed to marshal duel: %w", err)
	}
	_, err = client.dynamodb.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{
			{
				Put: &types.Put{
					TableName: client.cfg.DuelPairsTableName,
					Item: map[string]types.AttributeValue{
						"PairKey": &types.AttributeValueMemberS{Value: duel.PairKey},
						"DuelId":  &types.AttributeValueMemberS{Value: duel.Id},
					},
					ConditionExpression: aws.String("attribute_not_exists(PairKey)"),
				},
			},
			{
				Put: &types.Put{
					TableName:           client.cfg.DuelsTableName,
					Item:                av,
					ConditionExpression: aws.String("attribute_not_exists(DuelId)"),
				},
			},
		},
	})
	if err != nil {
		if isConditionFailure(err) {
			return ErrPairLocked
		}
		return fmt.Errorf("failed to put duel: %w", err)
	}
	return nil
}

func (client *Client) GetDuel(ctx context.Context, duelId string) (entities.Duel, error) {
	output, err := client.dynamodb.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: client.cfg.DuelsTableName,
		Key: map[string]types.AttributeValue{
			"DuelId": &types.AttributeValueMemberS{Value: duelId},
		},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return entities.Duel{}, err
	}
	if output.Item == nil {
		return entities.Duel{}, ErrDuelNotFound
	}
	var duel entities.Duel
	if err := attributevalue.UnmarshalMap(output.Item, &duel); err != nil {
		return entities.Duel{}, err
	}
	return duel, nil
}

// FetchUserDuels returns every duel the user takes part in, newest first.
func (client *Client) FetchUserDuels(ctx context.Context, userId string) ([]entities.Duel, error) {
	asChallenger, err := client.queryDuels(ctx, client.cfg.ChallengerIndexName, "ChallengerId", userId)
	if err != nil {
		return nil, err
	}
	asOpponent, err := client.queryDuels(ctx, client.cfg.OpponentIndexName, "OpponentId", userId)
	if err != nil {
		return nil, err
	}
	duels := append(asChallenger, asOpponent...)
	sort.Slice(duels, func(i, j int) bool {
		return duels[i].CreatedAt.After(duels[j].CreatedAt)
	})
	return duels, nil
}

// FetchDuelsByStatus returns duels in the given status created at or after since.
func (client *Client) FetchDuelsByStatus(
	ctx context.Context,
	status entities.DuelStatus,
	since time.Time,
) (
	[]entities.Duel,
	error,
) {
	duels, err := client.queryDuels(ctx, client.cfg.StatusIndexName, "Status", string(status))
	if err != nil {
		return nil, err
	}
	filtered := duels[:0]
	for _, duel := range duels {
		if !duel.CreatedAt.Before(since) {
			filtered = append(filtered, duel)
		}
	}
	return filtered, nil
}

func (client *Client) queryDuels(
	ctx context.Context,
	indexName *string,
	attribute string,
	value string,
) (
	[]entities.Duel,
	error,
) {
	paginator := dynamodb.NewQueryPaginator(client.dynamodb, &dynamodb.QueryInput{
		TableName:              client.cfg.DuelsTableName,
		IndexName:              indexName,
		KeyConditionExpression: aws.String("#key = :value"),
		ExpressionAttributeNames: map[string]string{
			"#key": attribute,
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":value": &types.AttributeValueMemberS{Value: value},
		},
	})
	var duels []entities.Duel
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to query duels: %w", err)
		}
		var items []entities.Duel
		if err := attributevalue.UnmarshalListOfMaps(page.Items, &items); err != nil {
			return nil, err
		}
		duels = append(duels, items...)
	}
	return duels, nil
}

func (client *Client) AppendDuelLog(
	ctx context.Context,
	duelId string,
	log entities.DuelLog,
) (
	entities.Duel,
	error,
) {
	duel, err := client.UpdateDuel(ctx, duelId, DuelCondition{}, DuelUpdateOptions{Log: &log})
	if errors.Is(err, ErrConditionFailed) {
		return entities.Duel{}, ErrDuelNotFound
	}
	return duel, err
}

// UpdateDuel applies opts only if the stored duel satisfies cond. Updates that
// move the duel into a terminal status also release its pair lock.
func (client *Client) UpdateDuel(
	ctx context.Context,
	duelId string,
	cond DuelCondition,
	opts DuelUpdateOptions,
) (
	entities.Duel,
	error,
) {
	expr, err := buildDuelUpdate(cond, opts)
	if err != nil {
		return entities.Duel{}, err
	}
	key := map[string]types.AttributeValue{
		"DuelId": &types.AttributeValueMemberS{Value: duelId},
	}

	if !opts.ReleasesPair() {
		output, err := client.dynamodb.UpdateItem(ctx, &dynamodb.UpdateItemInput{
			TableName:                 client.cfg.DuelsTableName,
			Key:                       key,
			UpdateExpression:          aws.String(expr.update),
			ConditionExpression:       aws.String(expr.condition),
			ExpressionAttributeNames:  expr.names,
			ExpressionAttributeValues: expr.values,
			ReturnValues:              types.ReturnValueAllNew,
		})
		if err != nil {
			if isConditionFailure(err) {
				return entities.Duel{}, ErrConditionFailed
			}
			return entities.Duel{}, fmt.Errorf("failed to update duel: %w", err)
		}
		var duel entities.Duel
		if err := attributevalue.UnmarshalMap(output.Attributes, &duel); err != nil {
			return entities.Duel{}, err
		}
		return duel, nil
	}

	current, err := client.GetDuel(ctx, duelId)
	if err != nil {
		if errors.Is(err, ErrDuelNotFound) {
			return entities.Duel{}, ErrConditionFailed
		}
		return entities.Duel{}, err
	}
	_, err = client.dynamodb.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{
			{
				Update: &types.Update{
					TableName:                 client.cfg.DuelsTableName,
					Key:                       key,
					UpdateExpression:          aws.String(expr.update),
					ConditionExpression:       aws.String(expr.condition),
					ExpressionAttributeNames:  expr.names,
					ExpressionAttributeValues: expr.values,
				},
			},
			{
				Delete: &types.Delete{
					TableName: client.cfg.DuelPairsTableName,
					Key: map[string]types.AttributeValue{
						"PairKey": &types.AttributeValueMemberS{Value: current.PairKey},
					},
				},
			},
		},
	})
	if err != nil {
		if isConditionFailure(err) {
			return entities.Duel{}, ErrConditionFailed
		}
		return entities.Duel{}, fmt.Errorf("failed to update duel: %w", err)
	}
	return client.GetDuel(ctx, duelId)
}

type duelUpdateExpression struct {
	update    string
	condition string
	names     map[string]string
	values    map[string]types.AttributeValue
}

func buildDuelUpdate(cond DuelCondition, opts DuelUpdateOptions) (duelUpdateExpression, error) {
	expr := duelUpdateExpression{
		names:  map[string]string{},
		values: map[string]types.AttributeValue{},
	}
	sets := []string{}

	if opts.Status != nil {
		expr.names["#status"] = "Status"
		expr.values[":status"] = &types.AttributeValueMemberS{Value: string(*opts.Status)}
		sets = append(sets, "#status = :status")
	}
	setTime := func(attribute, placeholder string, t *time.Time) error {
		if t == nil {
			return nil
		}
		av, err := attributevalue.Marshal(*t)
		if err != nil {
			return err
		}
		expr.values[placeholder] = av
		sets = append(sets, attribute+" = "+placeholder)
		return nil
	}
	if err := setTime("StartTime", ":startTime", opts.StartTime); err != nil {
		return expr, err
	}
	if err := setTime("EndTime", ":endTime", opts.EndTime); err != nil {
		return expr, err
	}
	if opts.WinnerId != nil {
		expr.values[":winnerId"] = &types.AttributeValueMemberS{Value: *opts.WinnerId}
		sets = append(sets, "WinnerId = :winnerId")
	}
	if opts.ForfeitById != nil {
		expr.values[":forfeitById"] = &types.AttributeValueMemberS{Value: *opts.ForfeitById}
		sets = append(sets, "ForfeitById = :forfeitById")
	}
	if opts.Log != nil {
		av, err := attributevalue.Marshal([]entities.DuelLog{*opts.Log})
		if err != nil {
			return expr, err
		}
		expr.values[":log"] = av
		expr.values[":emptyLogs"] = &types.AttributeValueMemberL{Value: []types.AttributeValue{}}
		sets = append(sets, "Logs = list_append(if_not_exists(Logs, :emptyLogs), :log)")
	}
	if len(sets) == 0 {
		return expr, errors.New("empty duel update")
	}
	expr.update = "SET " + strings.Join(sets, ", ")

	conditions := []string{"attribute_exists(DuelId)"}
	if len(cond.Statuses) > 0 {
		expr.names["#status"] = "Status"
		placeholders := make([]string, 0, len(cond.Statuses))
		for i, status := range cond.Statuses {
			placeholder := ":expected" + strconv.Itoa(i)
			expr.values[placeholder] = &types.AttributeValueMemberS{Value: string(status)}
			placeholders = append(placeholders, placeholder)
		}
		conditions = append(conditions, "#status IN ("+strings.Join(placeholders, ", ")+")")
	}
	if cond.WinnerUnset {
		conditions = append(conditions, "attribute_not_exists(WinnerId)")
	}
	if cond.LogCount != nil {
		expr.values[":logCount"] = &types.AttributeValueMemberN{Value: strconv.Itoa(*cond.LogCount)}
		if *cond.LogCount == 0 {
			conditions = append(conditions, "(attribute_not_exists(Logs) OR size(Logs) = :logCount)")
		} else {
			conditions = append(conditions, "size(Logs) = :logCount")
		}
	}
	expr.condition = strings.Join(conditions, " AND ")

	if len(expr.names) == 0 {
		expr.names = nil
	}
	return expr, nil
}

func isConditionFailure(err error) bool {
	var ccf *types.ConditionalCheckFailedException
	if errors.As(err, &ccf) {
		return true
	}
	var tce *types.TransactionCanceledException
	if errors.As(err, &tce) {
		for _, reason := range tce.CancellationReasons {
			if aws.ToString(reason.Code) == "ConditionalCheckFailed" {
				return true
			}
		}
	}
	return false
}
