package duel

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/chess-vn/slduel/internal/aws/storage"
	"github.com/chess-vn/slduel/internal/domains/dtos"
	"github.com/chess-vn/slduel/internal/domains/entities"
	"github.com/chess-vn/slduel/pkg/logging"
	"github.com/chess-vn/slduel/pkg/utils"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	DefaultTimeout       = 30 * time.Minute
	DefaultInviteTTL     = time.Hour
	DefaultWaitingWindow = 10 * time.Minute
)

// SystemActor is the log actor for transitions no participant made.
const SystemActor = "system"

// Timeout log results.
const (
	ResultDraw    = "draw"
	ResultDecided = "decided"
	ResultExpired = "expired"
)

type Config struct {
	// Timeout is the length of the active phase given to new duels.
	Timeout time.Duration
	// InviteTTL is how long a duel may sit in invited before the sweeper
	// cancels it.
	InviteTTL time.Duration
	// WaitingWindow bounds how old an invite may be to be listed as waiting.
	WaitingWindow time.Duration
}

func DefaultConfig() Config {
	return Config{
		Timeout:       DefaultTimeout,
		InviteTTL:     DefaultInviteTTL,
		WaitingWindow: DefaultWaitingWindow,
	}
}

type Submission struct {
	TestCasesPassed int
	TotalTestCases  int
	Result          string
}

func (s Submission) FullSolve() bool {
	return s.TestCasesPassed == s.TotalTestCases
}

type Option func(*Service)

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

func WithMetrics(m *Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// Service owns the duel lifecycle. Every write goes through a conditional
// repository update so concurrent callers never block each other; the caller
// that loses a race observes the advanced state instead of an error.
type Service struct {
	repo      Repository
	users     UserDirectory
	publisher Publisher
	cfg       Config
	now       func() time.Time
	metrics   *Metrics
}

func NewService(repo Repository, users UserDirectory, publisher Publisher, cfg Config, opts ...Option) *Service {
	defaults := DefaultConfig()
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaults.Timeout
	}
	if cfg.InviteTTL <= 0 {
		cfg.InviteTTL = defaults.InviteTTL
	}
	if cfg.WaitingWindow <= 0 {
		cfg.WaitingWindow = defaults.WaitingWindow
	}
	if publisher == nil {
		publisher = noopPublisher
	}
	s := &Service{
		repo:      repo,
		users:     users,
		publisher: publisher,
		cfg:       cfg,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) CreateDuel(ctx context.Context, challengerId, opponentId, problemId string) (entities.Duel, error) {
	challengerId = strings.TrimSpace(challengerId)
	opponentId = strings.TrimSpace(opponentId)
	problemId = strings.TrimSpace(problemId)
	if challengerId == "" || opponentId == "" || problemId == "" {
		return entities.Duel{}, invalidInput("challenger, opponent and problem are required")
	}
	if challengerId == opponentId {
		return entities.Duel{}, invalidInput("cannot challenge yourself")
	}

	challenger, err := s.lookupUser(ctx, challengerId)
	if err != nil {
		return entities.Duel{}, err
	}
	if _, err := s.lookupUser(ctx, opponentId); err != nil {
		return entities.Duel{}, err
	}

	duel := entities.Duel{
		Id:           uuid.NewString(),
		ChallengerId: challengerId,
		OpponentId:   opponentId,
		ProblemId:    problemId,
		PairKey:      utils.PairKey(challengerId, opponentId),
		Status:       entities.DuelInvited,
		Timeout:      s.cfg.Timeout,
		CreatedAt:    s.now(),
		Logs:         []entities.DuelLog{},
	}
	if err := s.repo.CreateDuel(ctx, duel); err != nil {
		if errors.Is(err, storage.ErrPairLocked) {
			return entities.Duel{}, ErrDuelConflict
		}
		return entities.Duel{}, fmt.Errorf("failed to create duel: %w", err)
	}
	s.metrics.transition(duel.Status)
	logging.Info("duel created",
		zap.String("duelId", duel.Id),
		zap.String("challengerId", challengerId),
		zap.String("opponentId", opponentId),
	)

	event := newEvent(EventInvite, duel, opponentId)
	event.Payload.UserId = challengerId
	challengerInfo := dtos.UserResponseFromEntity(challenger)
	event.Payload.Challenger = &challengerInfo
	s.publish(ctx, event)
	return duel, nil
}

func (s *Service) AcceptDuel(ctx context.Context, duelId, userId string) (entities.Duel, error) {
	duel, err := s.load(ctx, duelId)
	if err != nil {
		return entities.Duel{}, err
	}
	if userId == "" || duel.OpponentId != userId {
		return entities.Duel{}, ErrForbidden
	}
	if duel.Status != entities.DuelInvited {
		return entities.Duel{}, badState("accept", duel.Status, entities.DuelInvited)
	}

	status := entities.DuelAccepted
	updated, err := s.repo.UpdateDuel(ctx, duelId,
		storage.DuelCondition{Statuses: []entities.DuelStatus{entities.DuelInvited}},
		storage.DuelUpdateOptions{
			Status: &status,
			Log: &entities.DuelLog{
				UserId: userId,
				Action: entities.ActionAccept,
				Time:   s.now(),
			},
		},
	)
	if err != nil {
		return s.settle(ctx, duelId, "accept", err, entities.DuelAccepted, entities.DuelInvited)
	}
	s.metrics.transition(status)
	logging.Info("duel accepted", zap.String("duelId", duelId), zap.String("userId", userId))

	event := newEvent(EventAccept, updated)
	event.Payload.UserId = userId
	s.publish(ctx, event)
	return updated, nil
}

// CancelDuel withdraws or declines an invite. Either participant may cancel
// while the duel is still invited.
func (s *Service) CancelDuel(ctx context.Context, duelId, userId string) (entities.Duel, error) {
	duel, err := s.load(ctx, duelId)
	if err != nil {
		return entities.Duel{}, err
	}
	if !duel.IsParticipant(userId) {
		return entities.Duel{}, ErrForbidden
	}
	if duel.Status != entities.DuelInvited {
		return entities.Duel{}, badState("cancel", duel.Status, entities.DuelInvited)
	}

	updated, err := s.cancel(ctx, duelId, userId, "cancelled")
	if err != nil {
		return s.settle(ctx, duelId, "cancel", err, entities.DuelCancelled, entities.DuelInvited)
	}
	return updated, nil
}

func (s *Service) cancel(ctx context.Context, duelId, userId, result string) (entities.Duel, error) {
	now := s.now()
	status := entities.DuelCancelled
	updated, err := s.repo.UpdateDuel(ctx, duelId,
		storage.DuelCondition{Statuses: []entities.DuelStatus{entities.DuelInvited}},
		storage.DuelUpdateOptions{
			Status:  &status,
			EndTime: &now,
			Log: &entities.DuelLog{
				UserId: userId,
				Action: entities.ActionCancel,
				Time:   now,
				Result: result,
			},
		},
	)
	if err != nil {
		return entities.Duel{}, err
	}
	s.metrics.transition(status)
	logging.Info("duel cancelled",
		zap.String("duelId", duelId),
		zap.String("userId", userId),
		zap.String("result", result),
	)

	event := newEvent(EventCancel, updated)
	event.Payload.UserId = userId
	event.Payload.Result = result
	s.publish(ctx, event)
	return updated, nil
}

// StartDuel moves an accepted duel to active. Both participants may race to
// start; the one whose write lands second gets the active duel back as if it
// had started it.
func (s *Service) StartDuel(ctx context.Context, duelId, userId string) (entities.Duel, error) {
	duel, err := s.load(ctx, duelId)
	if err != nil {
		return entities.Duel{}, err
	}
	if !duel.IsParticipant(userId) {
		return entities.Duel{}, ErrForbidden
	}
	if duel.Status == entities.DuelActive {
		return duel, nil
	}
	if duel.Status != entities.DuelAccepted {
		return entities.Duel{}, badState("start", duel.Status, entities.DuelAccepted)
	}

	now := s.now()
	status := entities.DuelActive
	updated, err := s.repo.UpdateDuel(ctx, duelId,
		storage.DuelCondition{Statuses: []entities.DuelStatus{entities.DuelAccepted}},
		storage.DuelUpdateOptions{
			Status:    &status,
			StartTime: &now,
			Log: &entities.DuelLog{
				UserId: userId,
				Action: entities.ActionStart,
				Time:   now,
			},
		},
	)
	if err != nil {
		return s.settle(ctx, duelId, "start", err, entities.DuelActive, entities.DuelAccepted)
	}
	s.metrics.transition(status)
	logging.Info("duel started",
		zap.String("duelId", duelId),
		zap.String("userId", userId),
		zap.Time("deadline", updated.Deadline()),
	)

	event := newEvent(EventStart, updated)
	event.Payload.UserId = userId
	s.publish(ctx, event)
	return updated, nil
}

// SubmitSolution records a graded submission. A full solve completes the duel
// only if no winner was recorded yet; a losing full solve stays in the logs.
func (s *Service) SubmitSolution(ctx context.Context, duelId, userId string, submission Submission) (entities.Duel, error) {
	duel, err := s.load(ctx, duelId)
	if err != nil {
		return entities.Duel{}, err
	}
	if !duel.IsParticipant(userId) {
		return entities.Duel{}, ErrForbidden
	}
	if duel.Status != entities.DuelActive {
		return entities.Duel{}, badState("submit to", duel.Status, entities.DuelActive)
	}
	if duel.Overdue(s.now()) {
		resolved, err := s.resolveTimeout(ctx, duel)
		if err != nil {
			return entities.Duel{}, err
		}
		return entities.Duel{}, badState("submit to", resolved.Status, entities.DuelActive)
	}
	if submission.TotalTestCases <= 0 ||
		submission.TestCasesPassed < 0 ||
		submission.TestCasesPassed > submission.TotalTestCases {
		return entities.Duel{}, invalidInput(
			"test cases passed %d out of %d",
			submission.TestCasesPassed,
			submission.TotalTestCases,
		)
	}

	now := s.now()
	updated, err := s.repo.AppendDuelLog(ctx, duelId, entities.DuelLog{
		UserId:          userId,
		Action:          entities.ActionSubmit,
		Time:            now,
		Result:          submission.Result,
		TestCasesPassed: submission.TestCasesPassed,
		TotalTestCases:  submission.TotalTestCases,
	})
	if err != nil {
		if errors.Is(err, storage.ErrDuelNotFound) {
			return entities.Duel{}, ErrDuelNotFound
		}
		return entities.Duel{}, fmt.Errorf("failed to log submission: %w", err)
	}

	won := false
	if submission.FullSolve() && !updated.HasWinner() {
		status := entities.DuelCompleted
		completed, err := s.repo.UpdateDuel(ctx, duelId,
			storage.DuelCondition{
				Statuses:    []entities.DuelStatus{entities.DuelActive},
				WinnerUnset: true,
			},
			storage.DuelUpdateOptions{
				Status:   &status,
				EndTime:  &now,
				WinnerId: &userId,
				Log: &entities.DuelLog{
					UserId:          userId,
					Action:          entities.ActionComplete,
					Time:            now,
					Result:          submission.Result,
					TestCasesPassed: submission.TestCasesPassed,
					TotalTestCases:  submission.TotalTestCases,
				},
			},
		)
		switch {
		case err == nil:
			won = true
			updated = completed
			s.metrics.transition(status)
			logging.Info("duel completed", zap.String("duelId", duelId), zap.String("winnerId", userId))
		case errors.Is(err, storage.ErrConditionFailed):
			if updated, err = s.load(ctx, duelId); err != nil {
				return entities.Duel{}, err
			}
		default:
			return entities.Duel{}, fmt.Errorf("failed to complete duel: %w", err)
		}
	}

	progress := newEvent(EventProgress, updated)
	progress.Payload.UserId = userId
	progress.Payload.TestCasesPassed = submission.TestCasesPassed
	progress.Payload.TotalTestCases = submission.TotalTestCases
	progress.Payload.Result = submission.Result
	s.publish(ctx, progress)

	if won {
		complete := newEvent(EventComplete, updated)
		complete.Payload.UserId = userId
		complete.Payload.Logs = updated.Logs
		s.publish(ctx, complete)
	}
	return updated, nil
}

// ForfeitDuel hands the win to the other participant. If another transition
// already decided the duel, the call is a no-op returning the current duel.
func (s *Service) ForfeitDuel(ctx context.Context, duelId, userId string) (entities.Duel, error) {
	duel, err := s.load(ctx, duelId)
	if err != nil {
		return entities.Duel{}, err
	}
	if !duel.IsParticipant(userId) {
		return entities.Duel{}, ErrForbidden
	}
	if duel.Status != entities.DuelActive && duel.Status != entities.DuelAccepted {
		return entities.Duel{}, badState("forfeit", duel.Status, entities.DuelActive, entities.DuelAccepted)
	}

	now := s.now()
	status := entities.DuelCompleted
	winnerId := duel.OtherParticipant(userId)
	updated, err := s.repo.UpdateDuel(ctx, duelId,
		storage.DuelCondition{
			Statuses:    []entities.DuelStatus{entities.DuelActive, entities.DuelAccepted},
			WinnerUnset: true,
		},
		storage.DuelUpdateOptions{
			Status:      &status,
			EndTime:     &now,
			WinnerId:    &winnerId,
			ForfeitById: &userId,
			Log: &entities.DuelLog{
				UserId: userId,
				Action: entities.ActionForfeit,
				Time:   now,
				Result: "forfeit",
			},
		},
	)
	if err != nil {
		if errors.Is(err, storage.ErrConditionFailed) {
			return s.load(ctx, duelId)
		}
		return entities.Duel{}, fmt.Errorf("failed to forfeit duel: %w", err)
	}
	s.metrics.transition(status)
	logging.Info("duel forfeited",
		zap.String("duelId", duelId),
		zap.String("forfeitById", userId),
		zap.String("winnerId", winnerId),
	)

	event := newEvent(EventForfeit, updated)
	event.Payload.UserId = userId
	s.publish(ctx, event)
	return updated, nil
}

// HandleTimeout resolves an overdue active duel from its submit logs. It is a
// no-op for any duel that is not active or not yet past its deadline.
func (s *Service) HandleTimeout(ctx context.Context, duelId string) (entities.Duel, error) {
	duel, err := s.load(ctx, duelId)
	if err != nil {
		return entities.Duel{}, err
	}
	return s.resolveTimeout(ctx, duel)
}

func (s *Service) resolveTimeout(ctx context.Context, duel entities.Duel) (entities.Duel, error) {
	now := s.now()
	for {
		if !duel.Overdue(now) || duel.HasWinner() {
			return duel, nil
		}
		updated, opts, err := s.writeTimeout(ctx, duel, now)
		if errors.Is(err, storage.ErrConditionFailed) {
			// A submit landed after the read or another writer closed the duel.
			duel, err = s.load(ctx, duel.Id)
			if err != nil {
				return entities.Duel{}, err
			}
			continue
		}
		if err != nil {
			return entities.Duel{}, fmt.Errorf("failed to time out duel: %w", err)
		}
		s.metrics.transition(entities.DuelCompleted)
		s.metrics.timeout()
		logging.Info("duel timed out",
			zap.String("duelId", duel.Id),
			zap.Stringp("winnerId", opts.WinnerId),
		)

		event := newEvent(EventTimeout, updated)
		event.Payload.Result = opts.Log.Result
		event.Payload.Logs = updated.Logs
		s.publish(ctx, event)
		return updated, nil
	}
}

// writeTimeout closes the duel with the winner computed from exactly the logs
// in duel. The write fails if the stored log has grown since.
func (s *Service) writeTimeout(
	ctx context.Context,
	duel entities.Duel,
	now time.Time,
) (
	entities.Duel,
	storage.DuelUpdateOptions,
	error,
) {
	status := entities.DuelCompleted
	opts := storage.DuelUpdateOptions{
		Status:  &status,
		EndTime: &now,
		Log: &entities.DuelLog{
			Action: entities.ActionTimeout,
			Time:   now,
			Result: ResultDraw,
		},
	}
	if winnerId := TimeoutWinner(duel); winnerId != "" {
		opts.WinnerId = &winnerId
		opts.Log.Result = ResultDecided
	}
	logCount := len(duel.Logs)
	updated, err := s.repo.UpdateDuel(ctx, duel.Id,
		storage.DuelCondition{
			Statuses:    []entities.DuelStatus{entities.DuelActive},
			WinnerUnset: true,
			LogCount:    &logCount,
		},
		opts,
	)
	return updated, opts, err
}

// TimeoutWinner returns the participant with the highest test cases passed
// over all submit logs, or "" when both are level.
func TimeoutWinner(duel entities.Duel) string {
	best := map[string]int{}
	for _, log := range duel.Logs {
		if log.Action != entities.ActionSubmit || !duel.IsParticipant(log.UserId) {
			continue
		}
		if log.TestCasesPassed > best[log.UserId] {
			best[log.UserId] = log.TestCasesPassed
		}
	}
	challenger, opponent := best[duel.ChallengerId], best[duel.OpponentId]
	switch {
	case challenger > opponent:
		return duel.ChallengerId
	case opponent > challenger:
		return duel.OpponentId
	}
	return ""
}

// SweepTimeouts resolves every overdue active duel and reports how many it
// closed. Failures on single duels are logged and skipped.
func (s *Service) SweepTimeouts(ctx context.Context) (int, error) {
	duels, err := s.repo.FetchDuelsByStatus(ctx, entities.DuelActive, time.Time{})
	if err != nil {
		return 0, fmt.Errorf("failed to fetch active duels: %w", err)
	}
	resolved := 0
	now := s.now()
	for _, duel := range duels {
		if !duel.Overdue(now) {
			continue
		}
		updated, err := s.resolveTimeout(ctx, duel)
		if err != nil {
			logging.Error("failed to resolve duel timeout", zap.String("duelId", duel.Id), zap.Error(err))
			continue
		}
		if updated.Status != entities.DuelActive {
			resolved++
		}
	}
	return resolved, nil
}

// ExpireInvites cancels invites older than the configured invite TTL.
func (s *Service) ExpireInvites(ctx context.Context) (int, error) {
	duels, err := s.repo.FetchDuelsByStatus(ctx, entities.DuelInvited, time.Time{})
	if err != nil {
		return 0, fmt.Errorf("failed to fetch invited duels: %w", err)
	}
	expired := 0
	cutoff := s.now().Add(-s.cfg.InviteTTL)
	for _, duel := range duels {
		if !duel.CreatedAt.Before(cutoff) {
			continue
		}
		_, err := s.cancel(ctx, duel.Id, SystemActor, ResultExpired)
		if err != nil {
			if !errors.Is(err, storage.ErrConditionFailed) {
				logging.Error("failed to expire invite", zap.String("duelId", duel.Id), zap.Error(err))
			}
			continue
		}
		expired++
	}
	return expired, nil
}

// GetDuel returns the duel, resolving it first if its deadline has passed.
func (s *Service) GetDuel(ctx context.Context, duelId string) (entities.Duel, error) {
	duel, err := s.load(ctx, duelId)
	if err != nil {
		return entities.Duel{}, err
	}
	return s.resolveTimeout(ctx, duel)
}

func (s *Service) GetUserDuels(ctx context.Context, userId string) ([]entities.Duel, error) {
	duels, err := s.repo.FetchUserDuels(ctx, userId)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch user duels: %w", err)
	}
	for i, duel := range duels {
		resolved, err := s.resolveTimeout(ctx, duel)
		if err != nil {
			logging.Error("failed to resolve duel timeout", zap.String("duelId", duel.Id), zap.Error(err))
			continue
		}
		duels[i] = resolved
	}
	return duels, nil
}

// FindWaitingDuels lists invites created within the waiting window, newest first.
func (s *Service) FindWaitingDuels(ctx context.Context) ([]entities.Duel, error) {
	duels, err := s.repo.FetchDuelsByStatus(ctx, entities.DuelInvited, s.now().Add(-s.cfg.WaitingWindow))
	if err != nil {
		return nil, fmt.Errorf("failed to fetch waiting duels: %w", err)
	}
	return duels, nil
}

func (s *Service) load(ctx context.Context, duelId string) (entities.Duel, error) {
	duel, err := s.repo.GetDuel(ctx, duelId)
	if err != nil {
		if errors.Is(err, storage.ErrDuelNotFound) {
			return entities.Duel{}, ErrDuelNotFound
		}
		return entities.Duel{}, fmt.Errorf("failed to get duel: %w", err)
	}
	return duel, nil
}

func (s *Service) lookupUser(ctx context.Context, userId string) (entities.User, error) {
	user, err := s.users.GetUser(ctx, userId)
	if err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			return entities.User{}, fmt.Errorf("%w: %s", ErrUserNotFound, userId)
		}
		return entities.User{}, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}

// settle handles a failed conditional write. If a concurrent caller already
// moved the duel to target, the current duel is returned as success.
func (s *Service) settle(
	ctx context.Context,
	duelId string,
	op string,
	err error,
	target entities.DuelStatus,
	expected ...entities.DuelStatus,
) (
	entities.Duel,
	error,
) {
	if !errors.Is(err, storage.ErrConditionFailed) {
		return entities.Duel{}, fmt.Errorf("failed to %s duel: %w", op, err)
	}
	current, err := s.load(ctx, duelId)
	if err != nil {
		return entities.Duel{}, err
	}
	if current.Status == target {
		return current, nil
	}
	return entities.Duel{}, badState(op, current.Status, expected...)
}

func (s *Service) publish(ctx context.Context, event Event) {
	event.Payload.Timestamp = s.now()
	s.publisher.Publish(ctx, event)
}
