package storage

import (
	"slices"
	"time"

	"github.com/chess-vn/slduel/internal/domains/entities"
)

// DuelCondition guards a duel update. An empty condition only requires the duel
// to exist.
type DuelCondition struct {
	Statuses    []entities.DuelStatus
	WinnerUnset bool
	// LogCount, when set, pins the number of log entries the caller read.
	LogCount *int
}

func (c DuelCondition) Matches(duel entities.Duel) bool {
	if len(c.Statuses) > 0 && !slices.Contains(c.Statuses, duel.Status) {
		return false
	}
	if c.WinnerUnset && duel.HasWinner() {
		return false
	}
	if c.LogCount != nil && len(duel.Logs) != *c.LogCount {
		return false
	}
	return true
}

type DuelUpdateOptions struct {
	Status      *entities.DuelStatus
	StartTime   *time.Time
	EndTime     *time.Time
	WinnerId    *string
	ForfeitById *string
	Log         *entities.DuelLog
}

func (opts DuelUpdateOptions) Apply(duel *entities.Duel) {
	if opts.Status != nil {
		duel.Status = *opts.Status
	}
	if opts.StartTime != nil {
		t := *opts.StartTime
		duel.StartTime = &t
	}
	if opts.EndTime != nil {
		t := *opts.EndTime
		duel.EndTime = &t
	}
	if opts.WinnerId != nil {
		w := *opts.WinnerId
		duel.WinnerId = &w
	}
	if opts.ForfeitById != nil {
		f := *opts.ForfeitById
		duel.ForfeitById = &f
	}
	if opts.Log != nil {
		duel.Logs = append(duel.Logs, *opts.Log)
	}
}

// ReleasesPair reports whether the update moves the duel out of the open states.
func (opts DuelUpdateOptions) ReleasesPair() bool {
	return opts.Status != nil && opts.Status.Terminal()
}
