package main

import (
	"context"
	"encoding/json"
	"errors"
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

type userReader interface {
	GetUser(ctx context.Context, userId string) (entities.User, error)
}

var userClient userReader

func init() {
	cfg, _ := config.LoadDefaultConfig(context.TODO())
	userClient = storage.NewClient(dynamodb.NewFromConfig(cfg))
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
	user, err := userClient.GetUser(ctx, targetId)
	if err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			return events.APIGatewayProxyResponse{StatusCode: http.StatusNotFound}, nil
		}
		logging.Error("Failed to get user", zap.String("userId", targetId), zap.Error(err))
		return events.APIGatewayProxyResponse{StatusCode: http.StatusInternalServerError}, nil
	}
	userJson, err := json.Marshal(dtos.UserResponseFromEntity(user))
	if err != nil {
		logging.Error("Failed to marshal user", zap.Error(err))
		return events.APIGatewayProxyResponse{StatusCode: http.StatusInternalServerError}, nil
	}
	return events.APIGatewayProxyResponse{StatusCode: http.StatusOK, Body: string(userJson)}, nil
}

func main() {
	lambda.Start(handler)
}
