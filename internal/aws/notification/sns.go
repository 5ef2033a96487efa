package notification

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/chess-vn/slduel/internal/domains/dtos"
)

func (client *Client) SendPushNotification(
	ctx context.Context,
	endpointArn,
	message string,
) error {
	_, err := client.sns.Publish(ctx, &sns.PublishInput{
		Message:          aws.String(message),
		MessageStructure: aws.String("json"),
		TargetArn:        aws.String(endpointArn),
	})
	if err != nil {
		return fmt.Errorf("failed to publish message: %w", err)
	}
	return nil
}

type fcmMessage struct {
	Notification fcmNotification   `json:"notification"`
	Data         map[string]string `json:"data"`
}

type fcmNotification struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

// PushDuelInvite notifies an offline opponent's device about a new challenge.
func (client *Client) PushDuelInvite(ctx context.Context, endpointArn string, event dtos.DuelEvent) error {
	challenger := "Someone"
	if event.Challenger != nil && event.Challenger.Username != "" {
		challenger = event.Challenger.Username
	}
	body := fmt.Sprintf("%s challenged you to a duel", challenger)
	gcm, err := json.Marshal(fcmMessage{
		Notification: fcmNotification{
			Title: client.cfg.AppName,
			Body:  body,
		},
		Data: map[string]string{
			"type":      "duel:invite",
			"duelId":    event.DuelId,
			"problemId": event.ProblemId,
		},
	})
	if err != nil {
		return fmt.Errorf("failed to marshal push payload: %w", err)
	}
	message, err := json.Marshal(map[string]string{
		"default": body,
		"GCM":     string(gcm),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal push message: %w", err)
	}
	return client.SendPushNotification(ctx, endpointArn, string(message))
}
