package handlers

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"orator/internal/battles"
	"orator/internal/metrics"
	"orator/internal/middleware"
	"orator/internal/models"
	"orator/internal/profiles"
	"orator/internal/ratings"
	"orator/internal/repositories"
	"orator/internal/utils"
)

type BattleHandler struct {
	coordinator *battles.Coordinator
	profiles    *profiles.Repository
	ratings     *ratings.Manager
	logger      *zap.Logger
	jwtSecret   []byte
	upgrader    websocket.Upgrader
}

// profiles may be nil when no profile database is configured; battle
// responses then carry raw UIDs instead of display names.
func NewBattleHandler(coordinator *battles.Coordinator, profileRepo *profiles.Repository, jwtSecret []byte, logger *zap.Logger) *BattleHandler {
	return &BattleHandler{
		coordinator: coordinator,
		profiles:    profileRepo,
		logger:      logger,
		jwtSecret:   jwtSecret,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// SetRatingManager enables the rating lookup endpoint.
func (h *BattleHandler) SetRatingManager(m *ratings.Manager) {
	h.ratings = m
}

// CreateHandler starts a new battle request and returns its ID.
func (h *BattleHandler) CreateHandler(w http.ResponseWriter, r *http.Request) {
	req := middleware.GetValidatedRequest[*models.CreateBattleRequest](r)

	battleID, err := h.coordinator.CreateBattleRequest(r.Context(), req.ChallengerID, req.OpponentID, req.Context)
	if err != nil {
		h.logger.Error("failed to create battle", zap.Error(err))
		utils.JSON(w, http.StatusInternalServerError, models.ErrorResponse{
			Code:    "store_error",
			Message: "Failed to create battle request",
		})
		return
	}

	metrics.BattleCreated()
	utils.JSON(w, http.StatusCreated, models.CreateBattleResponse{BattleID: battleID})
}

// GetHandler fetches one battle, decorated with display names when a
// profile database is available.
func (h *BattleHandler) GetHandler(w http.ResponseWriter, r *http.Request) {
	battleID := chi.URLParam(r, "battleId")

	battle, err := h.coordinator.Get(r.Context(), battleID)
	if err != nil {
		h.writeStoreError(w, err)
		return
	}

	resp := models.BattleResponse{Battle: battle}
	if h.profiles != nil {
		resp.ChallengerName = h.profiles.DisplayName(battle.Challenger)
		resp.OpponentName = h.profiles.DisplayName(battle.Opponent)
	}
	utils.JSON(w, http.StatusOK, resp)
}

// AcceptHandler moves a PENDING battle to IN_PROGRESS and hands both sides
// their signed battle tokens.
func (h *BattleHandler) AcceptHandler(w http.ResponseWriter, r *http.Request) {
	battleID := chi.URLParam(r, "battleId")
	req := middleware.GetValidatedRequest[*models.DecisionRequest](r)

	battle, err := h.coordinator.AcceptBattle(r.Context(), battleID, req.UserID)
	if err != nil {
		h.writeStoreError(w, err)
		return
	}

	challengerToken, opponentToken, err := h.coordinator.IssueBattleTokens(battle)
	if err != nil {
		h.logger.Error("failed to issue battle tokens", zap.Error(err), zap.String("battle_id", battleID))
		utils.JSON(w, http.StatusInternalServerError, models.ErrorResponse{
			Code:    "token_error",
			Message: "Failed to issue battle tokens",
		})
		return
	}

	utils.JSON(w, http.StatusOK, models.AcceptBattleResponse{
		Battle:          battle,
		ChallengerToken: challengerToken,
		OpponentToken:   opponentToken,
	})
}

// DeclineHandler cancels a battle from PENDING or IN_PROGRESS.
func (h *BattleHandler) DeclineHandler(w http.ResponseWriter, r *http.Request) {
	battleID := chi.URLParam(r, "battleId")
	req := middleware.GetValidatedRequest[*models.DecisionRequest](r)

	if err := h.coordinator.DeclineBattle(r.Context(), battleID, req.UserID); err != nil {
		h.writeStoreError(w, err)
		return
	}

	utils.JSON(w, http.StatusOK, map[string]string{"status": models.StatusCancelled})
}

// CompleteHandler submits a participant's finished transcript. The battle
// token must match both the battle and the submitting user.
func (h *BattleHandler) CompleteHandler(w http.ResponseWriter, r *http.Request) {
	battleID := chi.URLParam(r, "battleId")
	req := middleware.GetValidatedRequest[*models.CompleteRequest](r)

	if !h.authorizeParticipant(w, r, battleID, req.UserID) {
		return
	}

	if err := h.coordinator.MarkParticipantCompleted(r.Context(), battleID, req.UserID, req.Transcript); err != nil {
		h.writeStoreError(w, err)
		return
	}

	utils.JSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// EvaluateHandler manually retries a stuck evaluation.
func (h *BattleHandler) EvaluateHandler(w http.ResponseWriter, r *http.Request) {
	battleID := chi.URLParam(r, "battleId")

	if err := h.coordinator.EvaluateBattle(r.Context(), battleID); err != nil {
		if errors.Is(err, repositories.ErrBattleNotFound) || errors.Is(err, repositories.ErrInvalidTransition) {
			h.writeStoreError(w, err)
			return
		}
		h.logger.Error("manual evaluation failed", zap.Error(err), zap.String("battle_id", battleID))
		utils.JSON(w, http.StatusBadGateway, models.ErrorResponse{
			Code:    "evaluation_error",
			Message: "Evaluation failed; the battle remains in EVALUATING",
		})
		return
	}

	utils.JSON(w, http.StatusOK, map[string]string{"status": models.StatusCompleted})
}

// RatingHandler returns a user's current battle rating. Users who have
// never finished a rated battle get the default rating.
func (h *BattleHandler) RatingHandler(w http.ResponseWriter, r *http.Request) {
	if h.ratings == nil {
		utils.JSON(w, http.StatusNotFound, models.ErrorResponse{
			Code:    "ratings_disabled",
			Message: "Ratings are not enabled on this deployment",
		})
		return
	}

	userID := chi.URLParam(r, "userId")
	info, err := h.ratings.GetUserRating(userID)
	if err != nil {
		h.logger.Error("failed to load rating", zap.Error(err), zap.String("user", userID))
		utils.JSON(w, http.StatusInternalServerError, models.ErrorResponse{
			Code:    "rating_error",
			Message: "Failed to load rating",
		})
		return
	}

	utils.JSON(w, http.StatusOK, info)
}

// WsHandler streams battle snapshots to a watching client. The first frame
// is the current state; the connection closes when the client goes away.
func (h *BattleHandler) WsHandler(w http.ResponseWriter, r *http.Request) {
	battleID := chi.URLParam(r, "battleId")

	tokenString := r.URL.Query().Get("token")
	if tokenString == "" {
		http.Error(w, "token required", http.StatusUnauthorized)
		return
	}
	tokenBattleID, userID, err := utils.ParseBattleToken(tokenString, h.jwtSecret)
	if err != nil || tokenBattleID != battleID {
		http.Error(w, "invalid battle token", http.StatusForbidden)
		return
	}

	sub, err := h.coordinator.Watch(r.Context(), battleID)
	if err != nil {
		h.writeStoreError(w, err)
		return
	}
	defer sub.Close()

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	h.logger.Info("battle watch opened",
		zap.String("battle_id", battleID), zap.String("user", userID))

	// Reader goroutine: the client never sends; its disconnect ends the watch.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-done:
			return
		case battle, ok := <-sub.Updates():
			if !ok {
				return
			}
			if err := conn.WriteJSON(battle); err != nil {
				h.logger.Warn("failed to push battle snapshot",
					zap.Error(err), zap.String("battle_id", battleID))
				return
			}
		}
	}
}

// authorizeParticipant checks the Bearer battle token against the battle
// and acting user. Writing another participant's fields is a policy
// violation rejected here, before the store is ever touched.
func (h *BattleHandler) authorizeParticipant(w http.ResponseWriter, r *http.Request, battleID, userID string) bool {
	auth := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(auth) <= len(prefix) || auth[:len(prefix)] != prefix {
		utils.JSON(w, http.StatusUnauthorized, models.ErrorResponse{
			Code:    "missing_token",
			Message: "Battle token required",
		})
		return false
	}

	tokenBattleID, tokenUserID, err := utils.ParseBattleToken(auth[len(prefix):], h.jwtSecret)
	if err != nil || tokenBattleID != battleID || tokenUserID != userID {
		utils.JSON(w, http.StatusForbidden, models.ErrorResponse{
			Code:    "invalid_token",
			Message: "Battle token does not match this battle and user",
		})
		return false
	}
	return true
}

func (h *BattleHandler) writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, repositories.ErrBattleNotFound):
		utils.JSON(w, http.StatusNotFound, models.ErrorResponse{
			Code:    "not_found",
			Message: "Battle not found",
		})
	case errors.Is(err, repositories.ErrNotParticipant):
		utils.JSON(w, http.StatusForbidden, models.ErrorResponse{
			Code:    "not_participant",
			Message: "User is not a participant of this battle",
		})
	case errors.Is(err, repositories.ErrAlreadyCompleted):
		utils.JSON(w, http.StatusConflict, models.ErrorResponse{
			Code:    "already_completed",
			Message: "Participant already submitted a transcript",
		})
	case errors.Is(err, repositories.ErrInvalidTransition):
		utils.JSON(w, http.StatusConflict, models.ErrorResponse{
			Code:    "invalid_transition",
			Message: "Battle is not in a state that allows this action",
		})
	default:
		h.logger.Error("store error", zap.Error(err))
		utils.JSON(w, http.StatusInternalServerError, models.ErrorResponse{
			Code:    "store_error",
			Message: "Battle store operation failed",
		})
	}
}
