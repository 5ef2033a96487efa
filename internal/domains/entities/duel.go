package entities

import (
	"slices"
	"time"
)

type DuelStatus string

const (
	DuelPending   DuelStatus = "pending"
	DuelInvited   DuelStatus = "invited"
	DuelAccepted  DuelStatus = "accepted"
	DuelActive    DuelStatus = "active"
	DuelCompleted DuelStatus = "completed"
	DuelCancelled DuelStatus = "cancelled"
	DuelExpired   DuelStatus = "expired"
)

// Open reports whether the status still holds the pair lock.
func (s DuelStatus) Open() bool {
	switch s {
	case DuelPending, DuelInvited, DuelAccepted, DuelActive:
		return true
	}
	return false
}

func (s DuelStatus) Terminal() bool {
	switch s {
	case DuelCompleted, DuelCancelled, DuelExpired:
		return true
	}
	return false
}

type DuelAction string

const (
	ActionAccept   DuelAction = "accept"
	ActionStart    DuelAction = "start"
	ActionSubmit   DuelAction = "submit"
	ActionForfeit  DuelAction = "forfeit"
	ActionProgress DuelAction = "progress"
	ActionComplete DuelAction = "complete"
	ActionTimeout  DuelAction = "timeout"
	ActionCancel   DuelAction = "cancel"
)

type DuelLog struct {
	UserId          string     `dynamodbav:"UserId" json:"userId"`
	Action          DuelAction `dynamodbav:"Action" json:"action"`
	Time            time.Time  `dynamodbav:"Time" json:"time"`
	Result          string     `dynamodbav:"Result,omitempty" json:"result,omitempty"`
	TestCasesPassed int        `dynamodbav:"TestCasesPassed" json:"testCasesPassed"`
	TotalTestCases  int        `dynamodbav:"TotalTestCases" json:"totalTestCases"`
}

type Duel struct {
	Id           string        `dynamodbav:"DuelId"`
	ChallengerId string        `dynamodbav:"ChallengerId"`
	OpponentId   string        `dynamodbav:"OpponentId"`
	ProblemId    string        `dynamodbav:"ProblemId"`
	PairKey      string        `dynamodbav:"PairKey"`
	Status       DuelStatus    `dynamodbav:"Status"`
	Timeout      time.Duration `dynamodbav:"Timeout"`
	CreatedAt    time.Time     `dynamodbav:"CreatedAt"`
	StartTime    *time.Time    `dynamodbav:"StartTime,omitempty"`
	EndTime      *time.Time    `dynamodbav:"EndTime,omitempty"`
	WinnerId     *string       `dynamodbav:"WinnerId,omitempty"`
	ForfeitById  *string       `dynamodbav:"ForfeitById,omitempty"`
	Logs         []DuelLog     `dynamodbav:"Logs"`
}

func (d Duel) IsParticipant(userId string) bool {
	return userId != "" && (d.ChallengerId == userId || d.OpponentId == userId)
}

// OtherParticipant returns the id of the participant that is not userId.
func (d Duel) OtherParticipant(userId string) string {
	if d.ChallengerId == userId {
		return d.OpponentId
	}
	return d.ChallengerId
}

func (d Duel) Participants() []string {
	return []string{d.ChallengerId, d.OpponentId}
}

// Deadline is the end of the active phase, zero until the duel starts.
func (d Duel) Deadline() time.Time {
	if d.StartTime == nil {
		return time.Time{}
	}
	return d.StartTime.Add(d.Timeout)
}

func (d Duel) Overdue(now time.Time) bool {
	return d.Status == DuelActive && d.StartTime != nil && now.After(d.Deadline())
}

func (d Duel) HasWinner() bool {
	return d.WinnerId != nil && *d.WinnerId != ""
}

// Clone returns a deep copy so callers can't alias stored logs or pointers.
func (d Duel) Clone() Duel {
	c := d
	c.Logs = slices.Clone(d.Logs)
	if d.StartTime != nil {
		t := *d.StartTime
		c.StartTime = &t
	}
	if d.EndTime != nil {
		t := *d.EndTime
		c.EndTime = &t
	}
	if d.WinnerId != nil {
		w := *d.WinnerId
		c.WinnerId = &w
	}
	if d.ForfeitById != nil {
		f := *d.ForfeitById
		c.ForfeitById = &f
	}
	return c
}
