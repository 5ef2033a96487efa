package dtos

import "github.com/chess-vn/slduel/internal/domains/entities"

type UserResponse struct {
	Id       string `json:"id"`
	Username string `json:"username"`
	Avatar   string `json:"avatar,omitempty"`
}

func UserResponseFromEntity(user entities.User) UserResponse {
	return UserResponse{
		Id:       user.Id,
		Username: user.Username,
		Avatar:   user.Avatar,
	}
}

type UserDuelStatsResponse struct {
	UserId   string `json:"userId"`
	Wins     int    `json:"wins"`
	Losses   int    `json:"losses"`
	Draws    int    `json:"draws"`
	Forfeits int    `json:"forfeits"`
}

func UserDuelStatsResponseFromEntity(stats entities.UserDuelStats) UserDuelStatsResponse {
	return UserDuelStatsResponse{
		UserId:   stats.UserId,
		Wins:     stats.Wins,
		Losses:   stats.Losses,
		Draws:    stats.Draws,
		Forfeits: stats.Forfeits,
	}
}
