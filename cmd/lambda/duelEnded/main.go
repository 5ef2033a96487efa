package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/chess-vn/slduel/internal/aws/storage"
	"github.com/chess-vn/slduel/internal/domains/dtos"
	"github.com/chess-vn/slduel/pkg/logging"
	"go.uber.org/zap"
)

type statsRecorder interface {
	RecordDuelResult(ctx context.Context, result dtos.DuelResultEvent) error
}

var statsClient statsRecorder

func init() {
	cfg, _ := config.LoadDefaultConfig(context.TODO())
	statsClient = storage.NewClient(dynamodb.NewFromConfig(cfg))
}

func handler(ctx context.Context, event json.RawMessage) error {
	var result dtos.DuelResultEvent
	if err := json.Unmarshal(event, &result); err != nil {
		return fmt.Errorf("failed to unmarshal duel result: %w", err)
	}
	if result.DuelId == "" {
		return fmt.Errorf("duel result without duel id")
	}

	err := statsClient.RecordDuelResult(ctx, result)
	if errors.Is(err, storage.ErrResultRecorded) {
		logging.Info("duel result already recorded", zap.String("duelId", result.DuelId))
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to record duel result %s: %w", result.DuelId, err)
	}
	logging.Info("duel result recorded",
		zap.String("duelId", result.DuelId),
		zap.String("status", result.Status),
		zap.Int("players", len(storage.DuelOutcomes(result))),
	)
	return nil
}

func main() {
	lambda.Start(handler)
}
