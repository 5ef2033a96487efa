package storage

import (
	"testing"

	"github.com/chess-vn/slduel/internal/domains/dtos"
	"github.com/stretchr/testify/assert"
)

func TestDuelOutcomes(t *testing.T) {
	alice, bob := "alice", "bob"
	tests := []struct {
		name   string
		result dtos.DuelResultEvent
		want   map[string][]DuelOutcome
	}{
		{
			name:   "solved",
			result: dtos.DuelResultEvent{ChallengerId: alice, OpponentId: bob, Status: "completed", WinnerId: &alice},
			want: map[string][]DuelOutcome{
				alice: {OutcomeWin},
				bob:   {OutcomeLoss},
			},
		},
		{
			name:   "forfeited",
			result: dtos.DuelResultEvent{ChallengerId: alice, OpponentId: bob, Status: "completed", WinnerId: &alice, ForfeitById: &bob},
			want: map[string][]DuelOutcome{
				alice: {OutcomeWin},
				bob:   {OutcomeLoss, OutcomeForfeit},
			},
		},
		{
			name:   "timed out level",
			result: dtos.DuelResultEvent{ChallengerId: alice, OpponentId: bob, Status: "completed"},
			want: map[string][]DuelOutcome{
				alice: {OutcomeDraw},
				bob:   {OutcomeDraw},
			},
		},
		{
			name:   "cancelled",
			result: dtos.DuelResultEvent{ChallengerId: alice, OpponentId: bob, Status: "cancelled"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DuelOutcomes(tt.result))
		})
	}
}
