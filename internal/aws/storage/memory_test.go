package storage

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/chess-vn/slduel/internal/domains/dtos"
	"github.com/chess-vn/slduel/internal/domains/entities"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDuel(id string, status entities.DuelStatus) entities.Duel {
	return entities.Duel{
		Id:           id,
		ChallengerId: "alice",
		OpponentId:   "bob",
		ProblemId:    "two-sum",
		PairKey:      "alice#bob",
		Status:       status,
		Timeout:      30 * time.Minute,
		CreatedAt:    time.Unix(1700000000, 0),
	}
}

func TestMemoryStoreCreateDuelLocksPair(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	require.NoError(t, store.CreateDuel(ctx, newTestDuel("d1", entities.DuelInvited)))
	err := store.CreateDuel(ctx, newTestDuel("d2", entities.DuelInvited))
	assert.ErrorIs(t, err, ErrPairLocked)

	status := entities.DuelCancelled
	_, err = store.UpdateDuel(ctx, "d1", DuelCondition{Statuses: []entities.DuelStatus{entities.DuelInvited}}, DuelUpdateOptions{Status: &status})
	require.NoError(t, err)

	assert.NoError(t, store.CreateDuel(ctx, newTestDuel("d2", entities.DuelInvited)))
}

func TestMemoryStoreUpdateDuelCondition(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	require.NoError(t, store.CreateDuel(ctx, newTestDuel("d1", entities.DuelActive)))

	completed := entities.DuelCompleted
	winner := "alice"
	cond := DuelCondition{Statuses: []entities.DuelStatus{entities.DuelActive}, WinnerUnset: true}

	duel, err := store.UpdateDuel(ctx, "d1", cond, DuelUpdateOptions{Status: &completed, WinnerId: &winner})
	require.NoError(t, err)
	assert.Equal(t, entities.DuelCompleted, duel.Status)

	other := "bob"
	_, err = store.UpdateDuel(ctx, "d1", cond, DuelUpdateOptions{Status: &completed, WinnerId: &other})
	assert.ErrorIs(t, err, ErrConditionFailed)

	stored, err := store.GetDuel(ctx, "d1")
	require.NoError(t, err)
	require.NotNil(t, stored.WinnerId)
	assert.Equal(t, "alice", *stored.WinnerId)

	_, err = store.UpdateDuel(ctx, "missing", DuelCondition{}, DuelUpdateOptions{Status: &completed})
	assert.ErrorIs(t, err, ErrConditionFailed)
}

func TestMemoryStoreUpdateDuelLogCount(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	require.NoError(t, store.CreateDuel(ctx, newTestDuel("d1", entities.DuelActive)))

	seen := 0
	_, err := store.AppendDuelLog(ctx, "d1", entities.DuelLog{UserId: "bob", Action: entities.ActionSubmit, TestCasesPassed: 7})
	require.NoError(t, err)

	completed := entities.DuelCompleted
	cond := DuelCondition{Statuses: []entities.DuelStatus{entities.DuelActive}, LogCount: &seen}
	_, err = store.UpdateDuel(ctx, "d1", cond, DuelUpdateOptions{Status: &completed})
	assert.ErrorIs(t, err, ErrConditionFailed)

	seen = 1
	duel, err := store.UpdateDuel(ctx, "d1", cond, DuelUpdateOptions{Status: &completed})
	require.NoError(t, err)
	assert.Equal(t, entities.DuelCompleted, duel.Status)
}

func TestMemoryStoreConcurrentWinnerSwap(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	require.NoError(t, store.CreateDuel(ctx, newTestDuel("d1", entities.DuelActive)))

	var applied atomic.Int32
	var wg sync.WaitGroup
	for _, user := range []string{"alice", "bob", "alice", "bob"} {
		wg.Add(1)
		go func(user string) {
			defer wg.Done()
			completed := entities.DuelCompleted
			_, err := store.UpdateDuel(ctx, "d1",
				DuelCondition{Statuses: []entities.DuelStatus{entities.DuelActive}, WinnerUnset: true},
				DuelUpdateOptions{Status: &completed, WinnerId: &user, Log: &entities.DuelLog{UserId: user, Action: entities.ActionComplete}},
			)
			if err == nil {
				applied.Add(1)
			}
		}(user)
	}
	wg.Wait()

	assert.Equal(t, int32(1), applied.Load())
	duel, err := store.GetDuel(ctx, "d1")
	require.NoError(t, err)
	assert.Len(t, duel.Logs, 1)
}

func TestMemoryStoreAppendDuelLogAndQueries(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	first := newTestDuel("d1", entities.DuelInvited)
	second := newTestDuel("d2", entities.DuelCompleted)
	second.PairKey = "alice#carol"
	second.OpponentId = "carol"
	second.CreatedAt = first.CreatedAt.Add(time.Minute)
	require.NoError(t, store.CreateDuel(ctx, first))
	require.NoError(t, store.CreateDuel(ctx, second))

	duel, err := store.AppendDuelLog(ctx, "d1", entities.DuelLog{UserId: "bob", Action: entities.ActionProgress})
	require.NoError(t, err)
	assert.Len(t, duel.Logs, 1)

	_, err = store.AppendDuelLog(ctx, "missing", entities.DuelLog{})
	assert.ErrorIs(t, err, ErrDuelNotFound)

	duels, err := store.FetchUserDuels(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, duels, 2)
	assert.Equal(t, "d2", duels[0].Id)

	invited, err := store.FetchDuelsByStatus(ctx, entities.DuelInvited, first.CreatedAt)
	require.NoError(t, err)
	require.Len(t, invited, 1)

	invited, err = store.FetchDuelsByStatus(ctx, entities.DuelInvited, first.CreatedAt.Add(time.Second))
	require.NoError(t, err)
	assert.Empty(t, invited)
}

func TestMemoryStoreReturnsCopies(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	require.NoError(t, store.CreateDuel(ctx, newTestDuel("d1", entities.DuelActive)))

	duel, err := store.AppendDuelLog(ctx, "d1", entities.DuelLog{UserId: "alice", Action: entities.ActionSubmit})
	require.NoError(t, err)
	duel.Logs[0].UserId = "mallory"

	stored, err := store.GetDuel(ctx, "d1")
	require.NoError(t, err)
	assert.Equal(t, "alice", stored.Logs[0].UserId)
}

func TestMemoryStoreGetUser(t *testing.T) {
	store := NewMemoryStore()
	store.PutUser(entities.User{Id: "alice", Username: "Alice"})

	user, err := store.GetUser(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, "Alice", user.Username)

	_, err = store.GetUser(context.Background(), "bob")
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestMemoryStoreDuelStats(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	stats, err := store.GetUserDuelStats(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, entities.UserDuelStats{UserId: "alice"}, stats)

	winner, forfeiter := "bob", "alice"
	require.NoError(t, store.RecordDuelResult(ctx, dtos.DuelResultEvent{
		DuelId:       "d1",
		ChallengerId: "alice",
		OpponentId:   "bob",
		Status:       string(entities.DuelCompleted),
		WinnerId:     &winner,
		ForfeitById:  &forfeiter,
	}))
	winner = "alice"
	require.NoError(t, store.RecordDuelResult(ctx, dtos.DuelResultEvent{
		DuelId:       "d2",
		ChallengerId: "alice",
		OpponentId:   "bob",
		Status:       string(entities.DuelCompleted),
		WinnerId:     &winner,
	}))
	_, err = countOutcomes(entities.UserDuelStats{}, "alice", []DuelOutcome{"bogus"})
	assert.Error(t, err)

	stats, err = store.GetUserDuelStats(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Wins)
	assert.Equal(t, 1, stats.Losses)
	assert.Equal(t, 1, stats.Forfeits)
	assert.Zero(t, stats.Draws)
}

func TestMemoryStoreRecordDuelResultOnce(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	winner := "bob"
	result := dtos.DuelResultEvent{
		DuelId:       "d1",
		ChallengerId: "alice",
		OpponentId:   "bob",
		Status:       string(entities.DuelCompleted),
		WinnerId:     &winner,
	}

	require.NoError(t, store.RecordDuelResult(ctx, result))
	assert.ErrorIs(t, store.RecordDuelResult(ctx, result), ErrResultRecorded)

	bob, err := store.GetUserDuelStats(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, 1, bob.Wins)
	alice, err := store.GetUserDuelStats(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 1, alice.Losses)

	cancelled := dtos.DuelResultEvent{DuelId: "d2", ChallengerId: "alice", OpponentId: "bob", Status: string(entities.DuelCancelled)}
	require.NoError(t, store.RecordDuelResult(ctx, cancelled))
	require.NoError(t, store.RecordDuelResult(ctx, cancelled))
}

func TestMemoryStoreApplicationEndpoint(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	_, err := store.GetApplicationEndpoint(ctx, "alice")
	assert.ErrorIs(t, err, ErrApplicationEndpointNotFound)

	require.NoError(t, store.PutApplicationEndpoint(ctx, entities.ApplicationEndpoint{UserId: "alice", EndpointArn: "arn:aws:sns:endpoint/alice"}))
	endpoint, err := store.GetApplicationEndpoint(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "arn:aws:sns:endpoint/alice", endpoint.EndpointArn)
	assert.False(t, endpoint.UpdatedAt.IsZero())
}
