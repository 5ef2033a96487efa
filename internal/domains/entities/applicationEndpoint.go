package entities

import "time"

type ApplicationEndpoint struct {
	UserId      string    `dynamodbav:"UserId"`
	EndpointArn string    `dynamodbav:"EndpointArn"`
	DeviceToken string    `dynamodbav:"DeviceToken"`
	Platform    string    `dynamodbav:"Platform"`
	UpdatedAt   time.Time `dynamodbav:"UpdatedAt"`
}
