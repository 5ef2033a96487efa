package dtos

import (
	"time"

	"github.com/chess-vn/slduel/internal/domains/entities"
)

type CreateDuelRequest struct {
	OpponentId string `json:"opponentId"`
	ProblemId  string `json:"problemId"`
}

type SubmitSolutionRequest struct {
	TestCasesPassed int    `json:"testCasesPassed"`
	TotalTestCases  int    `json:"totalTestCases"`
	Result          string `json:"result"`
}

type DuelResponse struct {
	Id           string             `json:"id"`
	ChallengerId string             `json:"challengerId"`
	OpponentId   string             `json:"opponentId"`
	ProblemId    string             `json:"problemId"`
	Status       string             `json:"status"`
	Timeout      int64              `json:"timeoutSeconds"`
	CreatedAt    time.Time          `json:"createdAt"`
	StartTime    *time.Time         `json:"startTime,omitempty"`
	EndTime      *time.Time         `json:"endTime,omitempty"`
	Deadline     *time.Time         `json:"deadline,omitempty"`
	WinnerId     *string            `json:"winnerId,omitempty"`
	ForfeitById  *string            `json:"forfeitById,omitempty"`
	Logs         []entities.DuelLog `json:"logs"`
}

type DuelListResponse struct {
	Items []DuelResponse `json:"items"`
}

func DuelResponseFromEntity(duel entities.Duel) DuelResponse {
	resp := DuelResponse{
		Id:           duel.Id,
		ChallengerId: duel.ChallengerId,
		OpponentId:   duel.OpponentId,
		ProblemId:    duel.ProblemId,
		Status:       string(duel.Status),
		Timeout:      int64(duel.Timeout / time.Second),
		CreatedAt:    duel.CreatedAt,
		StartTime:    duel.StartTime,
		EndTime:      duel.EndTime,
		WinnerId:     duel.WinnerId,
		ForfeitById:  duel.ForfeitById,
		Logs:         duel.Logs,
	}
	if resp.Logs == nil {
		resp.Logs = []entities.DuelLog{}
	}
	if duel.StartTime != nil {
		deadline := duel.Deadline()
		resp.Deadline = &deadline
	}
	return resp
}

func DuelListResponseFromEntities(duels []entities.Duel) DuelListResponse {
	resp := DuelListResponse{Items: make([]DuelResponse, 0, len(duels))}
	for _, duel := range duels {
		resp.Items = append(resp.Items, DuelResponseFromEntity(duel))
	}
	return resp
}

// DuelEvent is the payload of every duel:* message pushed to participants.
type DuelEvent struct {
	DuelId          string             `json:"duelId"`
	Timestamp       time.Time          `json:"timestamp"`
	Status          string             `json:"status"`
	UserId          string             `json:"userId,omitempty"`
	ProblemId       string             `json:"problemId,omitempty"`
	Challenger      *UserResponse      `json:"challenger,omitempty"`
	TestCasesPassed int                `json:"testCasesPassed,omitempty"`
	TotalTestCases  int                `json:"totalTestCases,omitempty"`
	Result          string             `json:"result,omitempty"`
	WinnerId        *string            `json:"winnerId,omitempty"`
	ForfeitById     *string            `json:"forfeitById,omitempty"`
	StartTime       *time.Time         `json:"startTime,omitempty"`
	Deadline        *time.Time         `json:"deadline,omitempty"`
	Logs            []entities.DuelLog `json:"logs,omitempty"`
}

// DuelResultEvent is sent to the duel-ended function once a duel reaches a
// terminal status.
type DuelResultEvent struct {
	DuelId       string     `json:"duelId"`
	ChallengerId string     `json:"challengerId"`
	OpponentId   string     `json:"opponentId"`
	Status       string     `json:"status"`
	WinnerId     *string    `json:"winnerId,omitempty"`
	ForfeitById  *string    `json:"forfeitById,omitempty"`
	EndTime      *time.Time `json:"endTime,omitempty"`
}

func DuelResultEventFromEntity(duel entities.Duel) DuelResultEvent {
	return DuelResultEvent{
		DuelId:       duel.Id,
		ChallengerId: duel.ChallengerId,
		OpponentId:   duel.OpponentId,
		Status:       string(duel.Status),
		WinnerId:     duel.WinnerId,
		ForfeitById:  duel.ForfeitById,
		EndTime:      duel.EndTime,
	}
}
