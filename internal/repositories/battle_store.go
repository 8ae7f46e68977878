package repositories

import (
	"context"
	"errors"
	"time"

	"orator/internal/models"
)

// Store-level failures handlers and the coordinator branch on.
var (
	ErrBattleNotFound    = errors.New("battle not found")
	ErrDuplicateBattle   = errors.New("battle id already exists")
	ErrNotParticipant    = errors.New("user is not a participant of this battle")
	ErrAlreadyCompleted  = errors.New("participant already submitted a transcript")
	ErrInvalidTransition = errors.New("status transition not allowed from current state")
)

// Publisher receives the fresh document after every successful write so
// subscribed clients observe the change. Implemented by events.Bus.
type Publisher interface {
	PublishBattle(ctx context.Context, battle *models.Battle)
}

// BattleStore is the persistence boundary for battle records.
//
// Writes are guarded: a status update whose current state is not a legal
// predecessor of the target state fails with ErrInvalidTransition, and a
// completion flag can never be flipped back to false.
type BattleStore interface {
	// GenerateID produces a globally-unique battle identifier.
	GenerateID() string

	// Create inserts a full new record. ErrDuplicateBattle if the id is taken.
	Create(ctx context.Context, battle *models.Battle) error

	// Get fetches one record. ErrBattleNotFound if no such document exists;
	// other errors indicate a store failure and are surfaced as-is.
	Get(ctx context.Context, battleID string) (*models.Battle, error)

	// UpdateStatus performs a guarded partial update of the status field and
	// returns the updated record.
	UpdateStatus(ctx context.Context, battleID, newStatus string) (*models.Battle, error)

	// UpdateParticipantCompletion sets the calling participant's completed
	// flag and transcript. The side is determined by matching participantID
	// against the stored challenger/opponent; ErrNotParticipant if neither
	// matches, ErrAlreadyCompleted if that side already submitted.
	UpdateParticipantCompletion(ctx context.Context, battleID, participantID string, transcript []models.Message) (*models.Battle, error)

	// UpdateEvaluationResult atomically sets status=COMPLETED together with
	// the evaluation payload. Only legal from EVALUATING.
	UpdateEvaluationResult(ctx context.Context, battleID string, result *models.EvaluationResult) (*models.Battle, error)

	// RecordEvaluationFailure bumps the attempt counter and keeps the battle
	// in EVALUATING so the sweeper can retry it. ErrInvalidTransition if the
	// battle exists but is not in EVALUATING.
	RecordEvaluationFailure(ctx context.Context, battleID, cause string) error

	// ListEvaluationBacklog returns battles needing evaluation attention
	// whose last update is older than the cutoff: battles sitting in
	// EVALUATING with fewer than maxAttempts tries, and IN_PROGRESS battles
	// whose both completion flags are set but whose both-complete event was
	// never acted on.
	ListEvaluationBacklog(ctx context.Context, olderThan time.Time, maxAttempts int) ([]models.Battle, error)
}

// legalPredecessors maps a target status to the states it may be entered from.
// COMPLETED is absent on purpose: it is only reachable through
// UpdateEvaluationResult.
var legalPredecessors = map[string][]string{
	models.StatusInProgress: {models.StatusPending},
	models.StatusCancelled:  {models.StatusPending, models.StatusInProgress},
	models.StatusEvaluating: {models.StatusInProgress},
}

// LegalPredecessors returns the states from which target may be entered,
// or nil if target is never a valid direct-update target.
func LegalPredecessors(target string) []string {
	return legalPredecessors[target]
}
