package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/chess-vn/slduel/internal/aws/storage"
	"github.com/chess-vn/slduel/internal/domains/entities"
	"github.com/chess-vn/slduel/pkg/logging"
	"go.uber.org/zap"
)

type userCreator interface {
	CreateUser(ctx context.Context, user entities.User) error
}

var userClient userCreator

func init() {
	cfg, _ := config.LoadDefaultConfig(context.TODO())
	userClient = storage.NewClient(dynamodb.NewFromConfig(cfg))
}

// handler creates the duel user record once Cognito confirms a sign-up.
func handler(ctx context.Context, event events.CognitoEventUserPoolsPostConfirmation) (events.CognitoEventUserPoolsPostConfirmation, error) {
	userId := event.Request.UserAttributes["sub"]
	if userId == "" {
		return event, fmt.Errorf("missing sub attribute for %s", event.UserName)
	}
	username := event.Request.UserAttributes["preferred_username"]
	if username == "" {
		username = event.UserName
	}
	user := entities.User{
		Id:        userId,
		Username:  username,
		Avatar:    event.Request.UserAttributes["picture"],
		CreatedAt: time.Now(),
	}
	err := userClient.CreateUser(ctx, user)
	switch {
	case err == nil:
		logging.Info("user created", zap.String("userId", userId))
	case errors.Is(err, storage.ErrConditionFailed):
		logging.Info("user already exists", zap.String("userId", userId))
	default:
		logging.Error("Failed to create user", zap.String("userId", userId), zap.Error(err))
		return event, err
	}
	return event, nil
}

func main() {
	lambda.Start(handler)
}
