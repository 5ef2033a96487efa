package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/chess-vn/slduel/internal/auth"
	"github.com/chess-vn/slduel/internal/domains/dtos"
	"github.com/chess-vn/slduel/internal/domains/entities"
	"github.com/chess-vn/slduel/internal/duel"
	"github.com/chess-vn/slduel/pkg/logging"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: malformed request body", duel.ErrInvalidInput)
	}
	return nil
}

func (s *server) handleCreateDuel(w http.ResponseWriter, r *http.Request) {
	var req dtos.CreateDuelRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	d, err := s.duels.CreateDuel(r.Context(), userIdFrom(r.Context()), req.OpponentId, req.ProblemId)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, dtos.DuelResponseFromEntity(d))
}

type duelAction func(s *server, w http.ResponseWriter, r *http.Request, duelId, userId string) (entities.Duel, error)

func (s *server) handleDuelAction(action duelAction) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		d, err := action(s, w, r, chi.URLParam(r, "duelId"), userIdFrom(r.Context()))
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, dtos.DuelResponseFromEntity(d))
	}
}

func acceptDuel(s *server, w http.ResponseWriter, r *http.Request, duelId, userId string) (entities.Duel, error) {
	return s.duels.AcceptDuel(r.Context(), duelId, userId)
}

func startDuel(s *server, w http.ResponseWriter, r *http.Request, duelId, userId string) (entities.Duel, error) {
	return s.duels.StartDuel(r.Context(), duelId, userId)
}

func forfeitDuel(s *server, w http.ResponseWriter, r *http.Request, duelId, userId string) (entities.Duel, error) {
	return s.duels.ForfeitDuel(r.Context(), duelId, userId)
}

func cancelDuel(s *server, w http.ResponseWriter, r *http.Request, duelId, userId string) (entities.Duel, error) {
	return s.duels.CancelDuel(r.Context(), duelId, userId)
}

func submitSolution(s *server, w http.ResponseWriter, r *http.Request, duelId, userId string) (entities.Duel, error) {
	var req dtos.SubmitSolutionRequest
	if err := decodeBody(w, r, &req); err != nil {
		return entities.Duel{}, err
	}
	return s.duels.SubmitSolution(r.Context(), duelId, userId, duel.Submission{
		TestCasesPassed: req.TestCasesPassed,
		TotalTestCases:  req.TotalTestCases,
		Result:          req.Result,
	})
}

func (s *server) handleGetDuel(w http.ResponseWriter, r *http.Request) {
	d, err := s.duels.GetDuel(r.Context(), chi.URLParam(r, "duelId"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	if !d.IsParticipant(userIdFrom(r.Context())) {
		writeError(w, r, duel.ErrForbidden)
		return
	}
	writeJSON(w, http.StatusOK, dtos.DuelResponseFromEntity(d))
}

func (s *server) handleWaitingDuels(w http.ResponseWriter, r *http.Request) {
	duels, err := s.duels.FindWaitingDuels(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dtos.DuelListResponseFromEntities(duels))
}

// resolveUserParam maps "me" to the caller.
func resolveUserParam(r *http.Request) string {
	userId := chi.URLParam(r, "userId")
	if userId == "me" {
		return userIdFrom(r.Context())
	}
	return userId
}

func (s *server) handleUserDuels(w http.ResponseWriter, r *http.Request) {
	userId := resolveUserParam(r)
	if userId != userIdFrom(r.Context()) {
		writeError(w, r, duel.ErrForbidden)
		return
	}
	duels, err := s.duels.GetUserDuels(r.Context(), userId)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dtos.DuelListResponseFromEntities(duels))
}

func (s *server) handleUserStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.store.GetUserDuelStats(r.Context(), resolveUserParam(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dtos.UserDuelStatsResponseFromEntity(stats))
}

type endpointRequest struct {
	EndpointArn string `json:"endpointArn"`
	DeviceToken string `json:"deviceToken"`
	Platform    string `json:"platform"`
}

func (s *server) handlePutEndpoint(w http.ResponseWriter, r *http.Request) {
	var req endpointRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if strings.TrimSpace(req.EndpointArn) == "" {
		writeError(w, r, fmt.Errorf("%w: endpointArn is required", duel.ErrInvalidInput))
		return
	}
	err := s.store.PutApplicationEndpoint(r.Context(), entities.ApplicationEndpoint{
		UserId:      userIdFrom(r.Context()),
		EndpointArn: req.EndpointArn,
		DeviceToken: req.DeviceToken,
		Platform:    req.Platform,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) handleSocketToken(w http.ResponseWriter, r *http.Request) {
	userId := userIdFrom(r.Context())
	token, expiresAt, err := s.issuer.Issue(userId, auth.AudienceSocket, s.config.SocketTokenTTL)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidToken) {
			writeErrorCode(w, http.StatusUnauthorized, CodeUnauthorized, err.Error())
			return
		}
		writeError(w, r, err)
		return
	}
	logging.Debug("socket token issued", zap.String("userId", userId), zap.Time("expiresAt", expiresAt))
	writeJSON(w, http.StatusOK, dtos.SocketTokenResponse{Token: token, ExpiresAt: expiresAt})
}

func (s *server) handleSocketStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, dtos.SocketStatsResponse{
		Connections: s.registry.Connections(),
		Users:       s.registry.Users(),
		Rooms:       s.rooms.Count(),
	})
}

func (s *server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"time":   time.Now().UTC(),
	})
}
