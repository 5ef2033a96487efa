package main

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/chess-vn/slduel/internal/aws/auth"
	"github.com/chess-vn/slduel/internal/aws/storage"
	"github.com/chess-vn/slduel/internal/domains/dtos"
	"github.com/chess-vn/slduel/internal/domains/entities"
	"github.com/chess-vn/slduel/pkg/logging"
	"go.uber.org/zap"
)

type statsReader interface {
	GetUserDuelStats(ctx context.Context, userId string) (entities.UserDuelStats, error)
}

var statsClient statsReader

func init() {
	cfg, _ := config.LoadDefaultConfig(context.TODO())
	statsClient = storage.NewClient(dynamodb.NewFromConfig(cfg))
}

func handler(ctx context.Context, event events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	userId, err := auth.UserIdFromAuthorizer(event.RequestContext.Authorizer)
	if err != nil {
		return events.APIGatewayProxyResponse{StatusCode: http.StatusUnauthorized}, nil
	}
	targetId := event.PathParameters["id"]
	if targetId == "" {
		targetId = userId
	}
	stats, err := statsClient.GetUserDuelStats(ctx, targetId)
	if err != nil {
		logging.Error("Failed to get duel stats", zap.String("userId", targetId), zap.Error(err))
		return events.APIGatewayProxyResponse{StatusCode: http.StatusInternalServerError}, nil
	}
	statsJson, err := json.Marshal(dtos.UserDuelStatsResponseFromEntity(stats))
	if err != nil {
		logging.Error("Failed to marshal duel stats", zap.Error(err))
		return events.APIGatewayProxyResponse{StatusCode: http.StatusInternalServerError}, nil
	}
	return events.APIGatewayProxyResponse{StatusCode: http.StatusOK, Body: string(statsJson)}, nil
}

func main() {
	lambda.Start(handler)
}
