package duel

import (
	"github.com/chess-vn/slduel/internal/domains/dtos"
	"github.com/chess-vn/slduel/internal/domains/entities"
)

type EventType string

const (
	EventInvite   EventType = "duel:invite"
	EventAccept   EventType = "duel:accept"
	EventStart    EventType = "duel:start"
	EventProgress EventType = "duel:progress"
	EventComplete EventType = "duel:complete"
	EventForfeit  EventType = "duel:forfeit"
	EventTimeout  EventType = "duel:timeout"
	EventCancel   EventType = "duel:cancel"
)

type Event struct {
	Type       EventType
	Duel       entities.Duel
	Recipients []string
	Payload    dtos.DuelEvent
}

// Decided reports whether the event closes a duel with a result worth
// recording. Cancelled duels never started and carry no result.
func (e Event) Decided() bool {
	switch e.Type {
	case EventComplete, EventForfeit, EventTimeout:
		return true
	}
	return false
}

func newEvent(eventType EventType, duel entities.Duel, recipients ...string) Event {
	if len(recipients) == 0 {
		recipients = duel.Participants()
	}
	payload := dtos.DuelEvent{
		DuelId:      duel.Id,
		Status:      string(duel.Status),
		ProblemId:   duel.ProblemId,
		WinnerId:    duel.WinnerId,
		ForfeitById: duel.ForfeitById,
		StartTime:   duel.StartTime,
	}
	if duel.StartTime != nil {
		deadline := duel.Deadline()
		payload.Deadline = &deadline
	}
	return Event{
		Type:       eventType,
		Duel:       duel,
		Recipients: recipients,
		Payload:    payload,
	}
}
