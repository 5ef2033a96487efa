package compute

import (
	"context"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/lambda"
)

type lambdaAPI interface {
	Invoke(ctx context.Context, params *lambda.InvokeInput, optFns ...func(*lambda.Options)) (*lambda.InvokeOutput, error)
}

// Client invokes the functions that run outside the duel server.
type Client struct {
	lambda lambdaAPI
	cfg    config
}

type config struct {
	DuelEndedFunctionName *string
}

func NewClient(lambdaClient *lambda.Client) *Client {
	return &Client{
		lambda: lambdaClient,
		cfg:    loadConfig(),
	}
}

func loadConfig() config {
	cfg := config{
		DuelEndedFunctionName: aws.String("duelEnded"),
	}
	if v, ok := os.LookupEnv("DUEL_ENDED_FUNCTION_NAME"); ok {
		cfg.DuelEndedFunctionName = aws.String(v)
	}
	return cfg
}
