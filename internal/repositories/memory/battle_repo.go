package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"orator/internal/models"
	"orator/internal/repositories"
)

// Repo is an in-memory battle store with the same guarded-write semantics
// as the Mongo adapter. Used when no MONGO_URI is configured (local
// development) and throughout the test suite.
type Repo struct {
	mu      sync.RWMutex
	battles map[string]*models.Battle
	pub     repositories.Publisher
}

func NewBattleRepo(pub repositories.Publisher) *Repo {
	return &Repo{
		battles: make(map[string]*models.Battle),
		pub:     pub,
	}
}

func (r *Repo) GenerateID() string {
	return uuid.New().String()
}

func (r *Repo) Create(ctx context.Context, battle *models.Battle) error {
	r.mu.Lock()
	if _, exists := r.battles[battle.BattleID]; exists {
		r.mu.Unlock()
		return repositories.ErrDuplicateBattle
	}
	now := time.Now().UTC()
	battle.CreatedAt, battle.UpdatedAt = now, now
	if battle.Status == "" {
		battle.Status = models.StatusPending
	}
	stored := clone(battle)
	r.battles[battle.BattleID] = stored
	r.mu.Unlock()

	r.publish(ctx, stored)
	return nil
}

func (r *Repo) Get(ctx context.Context, battleID string) (*models.Battle, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.battles[battleID]
	if !ok {
		return nil, repositories.ErrBattleNotFound
	}
	return clone(b), nil
}

func (r *Repo) UpdateStatus(ctx context.Context, battleID, newStatus string) (*models.Battle, error) {
	preds := repositories.LegalPredecessors(newStatus)
	if preds == nil {
		return nil, repositories.ErrInvalidTransition
	}

	r.mu.Lock()
	b, ok := r.battles[battleID]
	if !ok {
		r.mu.Unlock()
		return nil, repositories.ErrBattleNotFound
	}
	if !contains(preds, b.Status) {
		r.mu.Unlock()
		return nil, repositories.ErrInvalidTransition
	}
	b.Status = newStatus
	b.UpdatedAt = time.Now().UTC()
	updated := clone(b)
	r.mu.Unlock()

	r.publish(ctx, updated)
	return clone(updated), nil
}

func (r *Repo) UpdateParticipantCompletion(ctx context.Context, battleID, participantID string, transcript []models.Message) (*models.Battle, error) {
	r.mu.Lock()
	b, ok := r.battles[battleID]
	if !ok {
		r.mu.Unlock()
		return nil, repositories.ErrBattleNotFound
	}
	if b.Status != models.StatusInProgress {
		r.mu.Unlock()
		return nil, repositories.ErrInvalidTransition
	}
	switch participantID {
	case b.Challenger:
		if b.ChallengerCompleted {
			r.mu.Unlock()
			return nil, repositories.ErrAlreadyCompleted
		}
		b.ChallengerCompleted = true
		b.ChallengerData = append([]models.Message(nil), transcript...)
	case b.Opponent:
		if b.OpponentCompleted {
			r.mu.Unlock()
			return nil, repositories.ErrAlreadyCompleted
		}
		b.OpponentCompleted = true
		b.OpponentData = append([]models.Message(nil), transcript...)
	default:
		r.mu.Unlock()
		return nil, repositories.ErrNotParticipant
	}
	b.UpdatedAt = time.Now().UTC()
	updated := clone(b)
	r.mu.Unlock()

	r.publish(ctx, updated)
	return clone(updated), nil
}

func (r *Repo) UpdateEvaluationResult(ctx context.Context, battleID string, result *models.EvaluationResult) (*models.Battle, error) {
	r.mu.Lock()
	b, ok := r.battles[battleID]
	if !ok {
		r.mu.Unlock()
		return nil, repositories.ErrBattleNotFound
	}
	if b.Status != models.StatusEvaluating {
		r.mu.Unlock()
		return nil, repositories.ErrInvalidTransition
	}
	b.Status = models.StatusCompleted
	res := *result
	b.EvaluationResult = &res
	b.UpdatedAt = time.Now().UTC()
	updated := clone(b)
	r.mu.Unlock()

	r.publish(ctx, updated)
	return clone(updated), nil
}

func (r *Repo) RecordEvaluationFailure(ctx context.Context, battleID, cause string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.battles[battleID]
	if !ok {
		return repositories.ErrBattleNotFound
	}
	if b.Status != models.StatusEvaluating {
		return repositories.ErrInvalidTransition
	}
	b.EvaluationAttempts++
	b.LastEvaluationError = cause
	b.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *Repo) ListEvaluationBacklog(ctx context.Context, olderThan time.Time, maxAttempts int) ([]models.Battle, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []models.Battle
	for _, b := range r.battles {
		if !b.UpdatedAt.Before(olderThan) {
			continue
		}
		stuck := b.Status == models.StatusEvaluating && b.EvaluationAttempts < maxAttempts
		missed := b.Status == models.StatusInProgress && b.BothCompleted()
		if stuck || missed {
			out = append(out, *clone(b))
		}
	}
	return out, nil
}

func (r *Repo) publish(ctx context.Context, battle *models.Battle) {
	if r.pub != nil {
		r.pub.PublishBattle(ctx, battle)
	}
}

func clone(b *models.Battle) *models.Battle {
	c := *b
	c.ChallengerData = append([]models.Message(nil), b.ChallengerData...)
	c.OpponentData = append([]models.Message(nil), b.OpponentData...)
	if b.EvaluationResult != nil {
		res := *b.EvaluationResult
		c.EvaluationResult = &res
	}
	if b.Context.FocusAreas != nil {
		c.Context.FocusAreas = append([]string(nil), b.Context.FocusAreas...)
	}
	return &c
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
