package entities

import (
	"time"
)

type User struct {
	Id        string    `dynamodbav:"UserId"`
	Username  string    `dynamodbav:"Username"`
	Avatar    string    `dynamodbav:"Avatar"`
	CreatedAt time.Time `dynamodbav:"CreatedAt"`
}

type UserDuelStats struct {
	UserId    string    `dynamodbav:"UserId"`
	Wins      int       `dynamodbav:"Wins"`
	Losses    int       `dynamodbav:"Losses"`
	Draws     int       `dynamodbav:"Draws"`
	Forfeits  int       `dynamodbav:"Forfeits"`
	UpdatedAt time.Time `dynamodbav:"UpdatedAt"`
}
