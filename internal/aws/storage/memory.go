package storage

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/chess-vn/slduel/internal/domains/dtos"
	"github.com/chess-vn/slduel/internal/domains/entities"
)

// MemoryStore keeps duels and users in process. It honours the same conditional
// write semantics as the DynamoDB client and is used for local runs and tests.
type MemoryStore struct {
	duels sync.Map // duel id -> *duelRecord

	pairsMu sync.Mutex
	pairs   map[string]string // pair key -> open duel id

	usersMu   sync.RWMutex
	users     map[string]entities.User
	stats     map[string]entities.UserDuelStats
	endpoints map[string]entities.ApplicationEndpoint
	results   map[string]struct{} // duel ids already counted
}

type duelRecord struct {
	mu   sync.Mutex
	duel entities.Duel
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		pairs:     make(map[string]string),
		users:     make(map[string]entities.User),
		stats:     make(map[string]entities.UserDuelStats),
		endpoints: make(map[string]entities.ApplicationEndpoint),
		results:   make(map[string]struct{}),
	}
}

func (m *MemoryStore) PutUser(user entities.User) {
	m.usersMu.Lock()
	defer m.usersMu.Unlock()
	m.users[user.Id] = user
}

// CreateUser mirrors Client.CreateUser: existing users are not overwritten.
func (m *MemoryStore) CreateUser(_ context.Context, user entities.User) error {
	m.usersMu.Lock()
	defer m.usersMu.Unlock()
	if _, ok := m.users[user.Id]; ok {
		return ErrConditionFailed
	}
	m.users[user.Id] = user
	return nil
}

func (m *MemoryStore) GetUser(_ context.Context, userId string) (entities.User, error) {
	m.usersMu.RLock()
	defer m.usersMu.RUnlock()
	user, ok := m.users[userId]
	if !ok {
		return entities.User{}, ErrUserNotFound
	}
	return user, nil
}

func (m *MemoryStore) CreateDuel(_ context.Context, duel entities.Duel) error {
	m.pairsMu.Lock()
	defer m.pairsMu.Unlock()
	if _, locked := m.pairs[duel.PairKey]; locked {
		return ErrPairLocked
	}
	if _, exists := m.duels.Load(duel.Id); exists {
		return ErrConditionFailed
	}
	if duel.Status.Open() {
		m.pairs[duel.PairKey] = duel.Id
	}
	m.duels.Store(duel.Id, &duelRecord{duel: duel.Clone()})
	return nil
}

func (m *MemoryStore) record(duelId string) (*duelRecord, bool) {
	v, ok := m.duels.Load(duelId)
	if !ok {
		return nil, false
	}
	return v.(*duelRecord), true
}

func (m *MemoryStore) GetDuel(_ context.Context, duelId string) (entities.Duel, error) {
	rec, ok := m.record(duelId)
	if !ok {
		return entities.Duel{}, ErrDuelNotFound
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	return rec.duel.Clone(), nil
}

func (m *MemoryStore) FetchUserDuels(_ context.Context, userId string) ([]entities.Duel, error) {
	duels := m.collect(func(d entities.Duel) bool {
		return d.IsParticipant(userId)
	})
	return duels, nil
}

func (m *MemoryStore) FetchDuelsByStatus(
	_ context.Context,
	status entities.DuelStatus,
	since time.Time,
) (
	[]entities.Duel,
	error,
) {
	duels := m.collect(func(d entities.Duel) bool {
		return d.Status == status && !d.CreatedAt.Before(since)
	})
	return duels, nil
}

func (m *MemoryStore) collect(keep func(entities.Duel) bool) []entities.Duel {
	var duels []entities.Duel
	m.duels.Range(func(_, v any) bool {
		rec := v.(*duelRecord)
		rec.mu.Lock()
		if keep(rec.duel) {
			duels = append(duels, rec.duel.Clone())
		}
		rec.mu.Unlock()
		return true
	})
	sort.Slice(duels, func(i, j int) bool {
		return duels[i].CreatedAt.After(duels[j].CreatedAt)
	})
	return duels
}

func (m *MemoryStore) AppendDuelLog(
	ctx context.Context,
	duelId string,
	log entities.DuelLog,
) (
	entities.Duel,
	error,
) {
	duel, err := m.UpdateDuel(ctx, duelId, DuelCondition{}, DuelUpdateOptions{Log: &log})
	if errors.Is(err, ErrConditionFailed) {
		return entities.Duel{}, ErrDuelNotFound
	}
	return duel, err
}

func (m *MemoryStore) UpdateDuel(
	_ context.Context,
	duelId string,
	cond DuelCondition,
	opts DuelUpdateOptions,
) (
	entities.Duel,
	error,
) {
	rec, ok := m.record(duelId)
	if !ok {
		return entities.Duel{}, ErrConditionFailed
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	if !cond.Matches(rec.duel) {
		return entities.Duel{}, ErrConditionFailed
	}
	opts.Apply(&rec.duel)
	if opts.ReleasesPair() {
		m.pairsMu.Lock()
		if m.pairs[rec.duel.PairKey] == rec.duel.Id {
			delete(m.pairs, rec.duel.PairKey)
		}
		m.pairsMu.Unlock()
	}
	return rec.duel.Clone(), nil
}

func (m *MemoryStore) RecordDuelResult(_ context.Context, result dtos.DuelResultEvent) error {
	outcomes := DuelOutcomes(result)
	if len(outcomes) == 0 {
		return nil
	}
	m.usersMu.Lock()
	defer m.usersMu.Unlock()
	if _, ok := m.results[result.DuelId]; ok {
		return ErrResultRecorded
	}
	updated := make(map[string]entities.UserDuelStats, len(outcomes))
	for userId, userOutcomes := range outcomes {
		stats, err := countOutcomes(m.stats[userId], userId, userOutcomes)
		if err != nil {
			return err
		}
		updated[userId] = stats
	}
	for userId, stats := range updated {
		m.stats[userId] = stats
	}
	m.results[result.DuelId] = struct{}{}
	return nil
}

func countOutcomes(stats entities.UserDuelStats, userId string, outcomes []DuelOutcome) (entities.UserDuelStats, error) {
	stats.UserId = userId
	for _, outcome := range outcomes {
		switch outcome {
		case OutcomeWin:
			stats.Wins++
		case OutcomeLoss:
			stats.Losses++
		case OutcomeDraw:
			stats.Draws++
		case OutcomeForfeit:
			stats.Forfeits++
		default:
			_, err := outcome.attribute()
			return stats, err
		}
	}
	stats.UpdatedAt = time.Now()
	return stats, nil
}

func (m *MemoryStore) GetUserDuelStats(_ context.Context, userId string) (entities.UserDuelStats, error) {
	m.usersMu.RLock()
	defer m.usersMu.RUnlock()
	stats, ok := m.stats[userId]
	if !ok {
		return entities.UserDuelStats{UserId: userId}, nil
	}
	return stats, nil
}

func (m *MemoryStore) GetApplicationEndpoint(_ context.Context, userId string) (entities.ApplicationEndpoint, error) {
	m.usersMu.RLock()
	defer m.usersMu.RUnlock()
	endpoint, ok := m.endpoints[userId]
	if !ok {
		return entities.ApplicationEndpoint{}, ErrApplicationEndpointNotFound
	}
	return endpoint, nil
}

func (m *MemoryStore) PutApplicationEndpoint(_ context.Context, endpoint entities.ApplicationEndpoint) error {
	if endpoint.UpdatedAt.IsZero() {
		endpoint.UpdatedAt = time.Now()
	}
	m.usersMu.Lock()
	defer m.usersMu.Unlock()
	m.endpoints[endpoint.UserId] = endpoint
	return nil
}
