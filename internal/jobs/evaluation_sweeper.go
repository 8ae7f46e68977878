package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"orator/internal/battles"
	"orator/internal/models"
	"orator/internal/repositories"
)

// EvaluationSweeper retries battles stuck in EVALUATING and recovers
// battles whose both-complete event was missed. An evaluation failure
// leaves the record in EVALUATING with its attempt counter bumped, and a
// both-complete snapshot published while no coordinator loop was
// subscribed leaves the record in IN_PROGRESS with both flags set; this
// job picks both up on a schedule so no battle is stranded forever.
type EvaluationSweeper struct {
	store       repositories.BattleStore
	coordinator *battles.Coordinator
	config      *SweeperConfig
	logger      *zap.Logger
	cron        *cron.Cron
}

// SweeperConfig contains configuration for the sweeper job
type SweeperConfig struct {
	Schedule    string        // Cron schedule (e.g., "@every 2m")
	StuckAfter  time.Duration // How long a battle must sit in EVALUATING before retry
	MaxAttempts int           // Give up after this many evaluation attempts
}

func NewEvaluationSweeper(store repositories.BattleStore, coordinator *battles.Coordinator, config *SweeperConfig, logger *zap.Logger) *EvaluationSweeper {
	return &EvaluationSweeper{
		store:       store,
		coordinator: coordinator,
		config:      config,
		logger:      logger,
		cron:        cron.New(),
	}
}

// Start begins the scheduled sweep job
func (s *EvaluationSweeper) Start() error {
	_, err := s.cron.AddFunc(s.config.Schedule, func() {
		if err := s.RunSweep(context.Background()); err != nil {
			s.logger.Error("evaluation sweep failed", zap.Error(err))
		}
	})
	if err != nil {
		return fmt.Errorf("failed to schedule evaluation sweep: %w", err)
	}

	s.cron.Start()
	s.logger.Info("evaluation sweeper started", zap.String("schedule", s.config.Schedule))
	return nil
}

// Stop stops the scheduled sweep job
func (s *EvaluationSweeper) Stop() {
	if s.cron != nil {
		s.cron.Stop()
	}
}

// RunSweep works the evaluation backlog once: battles stranded in
// IN_PROGRESS with both flags set are pushed through the EVALUATING
// transition first, then every EVALUATING battle gets one evaluation
// attempt. Failures are logged per battle; one bad battle does not stop
// the sweep.
func (s *EvaluationSweeper) RunSweep(ctx context.Context) error {
	cutoff := time.Now().UTC().Add(-s.config.StuckAfter)
	backlog, err := s.store.ListEvaluationBacklog(ctx, cutoff, s.config.MaxAttempts)
	if err != nil {
		return fmt.Errorf("failed to list evaluation backlog: %w", err)
	}
	if len(backlog) == 0 {
		return nil
	}

	s.logger.Info("working evaluation backlog", zap.Int("count", len(backlog)))

	for _, battle := range backlog {
		if battle.Status == models.StatusInProgress {
			// The both-complete event was missed; perform the transition the
			// coordinator loop would have made. A racing observer winning it
			// first is fine.
			if _, err := s.store.UpdateStatus(ctx, battle.BattleID, models.StatusEvaluating); err != nil &&
				!errors.Is(err, repositories.ErrInvalidTransition) {
				s.logger.Warn("failed to recover missed evaluating transition",
					zap.Error(err), zap.String("battle_id", battle.BattleID))
				continue
			}
		}
		if err := s.coordinator.EvaluateBattle(ctx, battle.BattleID); err != nil {
			s.logger.Warn("retry evaluation failed",
				zap.Error(err),
				zap.String("battle_id", battle.BattleID),
				zap.Int("attempts", battle.EvaluationAttempts+1))
		}
	}
	return nil
}
