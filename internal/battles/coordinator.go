package battles

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"orator/internal/events"
	"orator/internal/metrics"
	"orator/internal/models"
	"orator/internal/ratings"
	"orator/internal/repositories"
	"orator/internal/utils"
)

// Coordinator owns the battle state machine. All client intents flow
// through it into the store; status reactions (the EVALUATING transition
// and the evaluation call) are driven off observed snapshots in Run, so
// the decision is always made against the freshest state rather than a
// stale read.
type Coordinator struct {
	store     repositories.BattleStore
	bus       *events.Bus
	evaluator *Evaluator
	logger    *zap.Logger
	jwtSecret []byte
	ratings   *ratings.Manager

	// Per-process guard so one snapshot burst triggers at most one
	// evaluation call per battle. Cross-process duplicates are handled by
	// the guarded EVALUATING write.
	evalMu       sync.Mutex
	evalInFlight map[string]bool
}

func NewCoordinator(store repositories.BattleStore, bus *events.Bus, evaluator *Evaluator, jwtSecret []byte, logger *zap.Logger) *Coordinator {
	return &Coordinator{
		store:        store,
		bus:          bus,
		evaluator:    evaluator,
		logger:       logger,
		jwtSecret:    jwtSecret,
		evalInFlight: make(map[string]bool),
	}
}

// SetRatingManager enables rating updates on completed battles.
func (c *Coordinator) SetRatingManager(m *ratings.Manager) {
	c.ratings = m
}

// CreateBattleRequest generates an ID, persists a PENDING record with empty
// completion and data fields, and returns the ID for navigation.
func (c *Coordinator) CreateBattleRequest(ctx context.Context, challengerID, opponentID string, battleContext models.BattleContext) (string, error) {
	battle := &models.Battle{
		BattleID:   c.store.GenerateID(),
		Challenger: challengerID,
		Opponent:   opponentID,
		Status:     models.StatusPending,
		Context:    battleContext,
	}

	if err := c.store.Create(ctx, battle); err != nil {
		return "", fmt.Errorf("failed to create battle request: %w", err)
	}

	c.logger.Info("battle request created",
		zap.String("battle_id", battle.BattleID),
		zap.String("challenger", challengerID),
		zap.String("opponent", opponentID))

	return battle.BattleID, nil
}

// AcceptBattle moves a PENDING battle to IN_PROGRESS. Only the invited
// opponent may accept. Accepting a battle that is not PENDING does not
// change its status.
func (c *Coordinator) AcceptBattle(ctx context.Context, battleID, userID string) (*models.Battle, error) {
	battle, err := c.store.Get(ctx, battleID)
	if err != nil {
		return nil, err
	}
	if userID != battle.Opponent {
		return nil, repositories.ErrNotParticipant
	}

	updated, err := c.store.UpdateStatus(ctx, battleID, models.StatusInProgress)
	if err != nil {
		return nil, err
	}

	c.logger.Info("battle accepted", zap.String("battle_id", battleID), zap.String("user", userID))
	return updated, nil
}

// DeclineBattle cancels a battle from PENDING or IN_PROGRESS. Either
// participant may decline; CANCELLED is terminal.
func (c *Coordinator) DeclineBattle(ctx context.Context, battleID, userID string) error {
	battle, err := c.store.Get(ctx, battleID)
	if err != nil {
		return err
	}
	if !battle.HasParticipant(userID) {
		return repositories.ErrNotParticipant
	}

	if _, err := c.store.UpdateStatus(ctx, battleID, models.StatusCancelled); err != nil {
		return err
	}

	c.logger.Info("battle declined", zap.String("battle_id", battleID), zap.String("user", userID))
	return nil
}

// MarkParticipantCompleted records one side's finished transcript. It does
// not decide the next status: that happens reactively in Run when a
// snapshot shows both sides complete.
func (c *Coordinator) MarkParticipantCompleted(ctx context.Context, battleID, participantID string, transcript []models.Message) error {
	if _, err := c.store.UpdateParticipantCompletion(ctx, battleID, participantID, transcript); err != nil {
		return err
	}

	c.logger.Info("participant completed",
		zap.String("battle_id", battleID),
		zap.String("participant", participantID))
	return nil
}

// IssueBattleTokens signs one watch/completion token per participant.
func (c *Coordinator) IssueBattleTokens(battle *models.Battle) (challengerToken, opponentToken string, err error) {
	challengerToken, err = utils.GenerateBattleToken(battle.BattleID, battle.Challenger, c.jwtSecret)
	if err != nil {
		return "", "", err
	}
	opponentToken, err = utils.GenerateBattleToken(battle.BattleID, battle.Opponent, c.jwtSecret)
	if err != nil {
		return "", "", err
	}
	return challengerToken, opponentToken, nil
}

// Get is a one-shot fetch for the HTTP surface.
func (c *Coordinator) Get(ctx context.Context, battleID string) (*models.Battle, error) {
	return c.store.Get(ctx, battleID)
}

// Watch exposes a continuously-updated view of one battle for UI binding.
// The first delivery is the current state, read only after the bus
// subscription is live so a concurrent write cannot fall between snapshot
// and stream. The caller must Close() the subscription when the screen
// goes away.
func (c *Coordinator) Watch(ctx context.Context, battleID string) (*events.Subscription, error) {
	return c.bus.Subscribe(ctx, battleID, func(ctx context.Context) (*models.Battle, error) {
		return c.store.Get(ctx, battleID)
	})
}

// Run drives the reactive side of the state machine: it consumes every
// battle snapshot and, when both completion flags are observed true on an
// IN_PROGRESS battle, performs the EVALUATING transition and triggers
// evaluation. Racing observers are safe: the guarded status write makes
// the transition idempotent, and only the writer that wins it evaluates.
// Blocks until ctx is cancelled.
func (c *Coordinator) Run(ctx context.Context) {
	snapshots, stop := c.bus.SubscribeFirehose(ctx)
	defer stop()

	c.logger.Info("battle coordinator loop started")

	for {
		select {
		case <-ctx.Done():
			return
		case battle, ok := <-snapshots:
			if !ok {
				return
			}
			c.handleSnapshot(ctx, battle)
		}
	}
}

func (c *Coordinator) handleSnapshot(ctx context.Context, battle *models.Battle) {
	if battle.Status != models.StatusInProgress || !battle.BothCompleted() {
		return
	}

	_, err := c.store.UpdateStatus(ctx, battle.BattleID, models.StatusEvaluating)
	if errors.Is(err, repositories.ErrInvalidTransition) {
		// Another observer won the transition; nothing to do.
		return
	}
	if err != nil {
		c.logger.Error("failed to transition battle to evaluating",
			zap.Error(err), zap.String("battle_id", battle.BattleID))
		return
	}

	c.logger.Info("battle entered evaluation", zap.String("battle_id", battle.BattleID))

	go c.evaluateOnce(ctx, battle.BattleID)
}

// evaluateOnce runs EvaluateBattle behind a per-battle in-flight guard.
func (c *Coordinator) evaluateOnce(ctx context.Context, battleID string) {
	c.evalMu.Lock()
	if c.evalInFlight[battleID] {
		c.evalMu.Unlock()
		return
	}
	c.evalInFlight[battleID] = true
	c.evalMu.Unlock()

	defer func() {
		c.evalMu.Lock()
		delete(c.evalInFlight, battleID)
		c.evalMu.Unlock()
	}()

	if err := c.EvaluateBattle(ctx, battleID); err != nil {
		c.logger.Error("battle evaluation failed",
			zap.Error(err), zap.String("battle_id", battleID))
	}
}

// EvaluateBattle judges both transcripts through the LLM provider and
// writes the result. On provider failure the attempt is recorded and the
// battle stays in EVALUATING for the sweeper to retry; no partial result
// is ever written.
func (c *Coordinator) EvaluateBattle(ctx context.Context, battleID string) error {
	battle, err := c.store.Get(ctx, battleID)
	if err != nil {
		return err
	}
	if battle.Status != models.StatusEvaluating {
		return repositories.ErrInvalidTransition
	}

	result, err := c.evaluator.Evaluate(ctx, battle)
	if err != nil {
		metrics.EvaluationFinished("failed")
		if recErr := c.store.RecordEvaluationFailure(ctx, battleID, err.Error()); recErr != nil {
			c.logger.Error("failed to record evaluation failure",
				zap.Error(recErr), zap.String("battle_id", battleID))
		}
		return err
	}

	if _, err := c.store.UpdateEvaluationResult(ctx, battleID, result); err != nil {
		return fmt.Errorf("failed to persist evaluation result: %w", err)
	}
	metrics.EvaluationFinished("completed")

	if c.ratings != nil {
		loser := battle.OtherParticipant(result.WinnerUID)
		if _, rerr := c.ratings.ProcessBattleOutcome(result.WinnerUID, loser); rerr != nil {
			// Ratings are best-effort; the battle outcome stands.
			c.logger.Warn("failed to update ratings",
				zap.Error(rerr), zap.String("battle_id", battleID))
		}
	}

	c.logger.Info("battle completed",
		zap.String("battle_id", battleID),
		zap.String("winner", result.WinnerUID))
	return nil
}
