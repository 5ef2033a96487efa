package storage

import (
	"github.com/chess-vn/slduel/internal/domains/dtos"
	"github.com/chess-vn/slduel/internal/domains/entities"
)

// DuelOutcomes maps each participant of a finished duel to the counters it
// bumps. Duels that did not complete yield nothing.
func DuelOutcomes(result dtos.DuelResultEvent) map[string][]DuelOutcome {
	if result.Status != string(entities.DuelCompleted) {
		return nil
	}
	players := []string{result.ChallengerId, result.OpponentId}
	outcomes := make(map[string][]DuelOutcome, len(players))
	if result.WinnerId == nil || *result.WinnerId == "" {
		for _, userId := range players {
			outcomes[userId] = []DuelOutcome{OutcomeDraw}
		}
		return outcomes
	}
	for _, userId := range players {
		if userId == *result.WinnerId {
			outcomes[userId] = []DuelOutcome{OutcomeWin}
			continue
		}
		outcomes[userId] = []DuelOutcome{OutcomeLoss}
		if result.ForfeitById != nil && *result.ForfeitById == userId {
			outcomes[userId] = append(outcomes[userId], OutcomeForfeit)
		}
	}
	return outcomes
}
