package duel

import (
	"context"
	"time"

	"github.com/chess-vn/slduel/internal/aws/storage"
	"github.com/chess-vn/slduel/internal/domains/entities"
)

// Repository persists duels. UpdateDuel must apply opts only when the stored
// duel satisfies cond and return storage.ErrConditionFailed otherwise; moving a
// duel into a terminal status releases its pair lock. CreateDuel returns
// storage.ErrPairLocked while another open duel holds the pair.
//
// Both storage.Client and storage.MemoryStore implement it.
type Repository interface {
	CreateDuel(ctx context.Context, duel entities.Duel) error
	GetDuel(ctx context.Context, duelId string) (entities.Duel, error)
	FetchUserDuels(ctx context.Context, userId string) ([]entities.Duel, error)
	FetchDuelsByStatus(ctx context.Context, status entities.DuelStatus, since time.Time) ([]entities.Duel, error)
	AppendDuelLog(ctx context.Context, duelId string, log entities.DuelLog) (entities.Duel, error)
	UpdateDuel(ctx context.Context, duelId string, cond storage.DuelCondition, opts storage.DuelUpdateOptions) (entities.Duel, error)
}

type UserDirectory interface {
	GetUser(ctx context.Context, userId string) (entities.User, error)
}

// Publisher receives an event after every successful transition. Publish must
// not fail the transition, so it has no error result.
type Publisher interface {
	Publish(ctx context.Context, event Event)
}

type PublisherFunc func(ctx context.Context, event Event)

func (f PublisherFunc) Publish(ctx context.Context, event Event) {
	f(ctx, event)
}

var noopPublisher = PublisherFunc(func(context.Context, Event) {})
