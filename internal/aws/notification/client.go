package notification

import (
	"context"
	"os"

	"github.com/aws/aws-sdk-go-v2/service/sns"
)

type snsAPI interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

type Client struct {
	sns snsAPI
	cfg config
}

type config struct {
	AppName string
}

func NewClient(snsClient *sns.Client) *Client {
	return &Client{
		sns: snsClient,
		cfg: loadConfig(),
	}
}

func loadConfig() config {
	cfg := config{AppName: "slduel"}
	if v, ok := os.LookupEnv("PUSH_APP_NAME"); ok {
		cfg.AppName = v
	}
	return cfg
}
