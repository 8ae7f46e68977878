package battles

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"orator/internal/llm"
	"orator/internal/models"
	"orator/internal/prompts"
)

// Evaluator turns two finished transcripts into a judged outcome through
// one chat-completion call. Any request failure is surfaced as an error;
// it never writes anything to the store itself.
type Evaluator struct {
	provider llm.Provider
	prompts  *prompts.Manager
	logger   *zap.Logger
}

func NewEvaluator(provider llm.Provider, promptManager *prompts.Manager, logger *zap.Logger) *Evaluator {
	return &Evaluator{
		provider: provider,
		prompts:  promptManager,
		logger:   logger,
	}
}

// Evaluate judges the battle and returns the winner plus per-side feedback.
// The provider's judgment is authoritative; there is no local tie-break.
func (e *Evaluator) Evaluate(ctx context.Context, battle *models.Battle) (*models.EvaluationResult, error) {
	prompt, err := e.prompts.BuildPrompt("evaluation", map[string]string{
		"InterviewType":        battle.Context.InterviewType,
		"Role":                 battle.Context.Role,
		"Company":              battle.Context.Company,
		"FocusAreas":           strings.Join(battle.Context.FocusAreas, ", "),
		"ChallengerUID":        battle.Challenger,
		"OpponentUID":          battle.Opponent,
		"ChallengerTranscript": formatTranscript(battle.ChallengerData),
		"OpponentTranscript":   formatTranscript(battle.OpponentData),
	})
	if err != nil {
		return nil, err
	}

	raw, err := e.provider.GenerateJudgment(ctx, prompt)
	if err != nil {
		return nil, err
	}

	judgment, err := llm.ParseJudgment(e.provider.GetProviderName(), raw, battle)
	if err != nil {
		return nil, err
	}

	e.logger.Info("judgment received",
		zap.String("battle_id", battle.BattleID),
		zap.String("provider", e.provider.GetProviderName()),
		zap.String("winner", judgment.WinnerUID))

	return &models.EvaluationResult{
		WinnerUID:      judgment.WinnerUID,
		WinnerFeedback: judgment.WinnerFeedback,
		LoserFeedback:  judgment.LoserFeedback,
	}, nil
}

func formatTranscript(messages []models.Message) string {
	var b strings.Builder
	for _, m := range messages {
		b.WriteString(m.Role)
		b.WriteString(": ")
		b.WriteString(m.Content)
		b.WriteString("\n")
	}
	return b.String()
}
