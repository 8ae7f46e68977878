package llm

import (
	"strings"

	"orator/internal/models"
)

// Judgment is the parsed outcome of a battle evaluation call.
type Judgment struct {
	WinnerUID      string
	WinnerFeedback string
	LoserFeedback  string
}

// ParseJudgment extracts a judgment from the model output. The prompt asks
// for a strict three-line format:
//
//	WINNER: <uid>
//	WINNER_FEEDBACK: <text>
//	LOSER_FEEDBACK: <text>
//
// A missing line or a winner UID matching neither participant is an
// invalid_input ProviderError: no partial result must ever be written.
func ParseJudgment(providerName, raw string, battle *models.Battle) (*Judgment, error) {
	j := &Judgment{}

	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(line, "WINNER:"):
			j.WinnerUID = strings.TrimSpace(strings.TrimPrefix(line, "WINNER:"))
		case strings.HasPrefix(line, "WINNER_FEEDBACK:"):
			j.WinnerFeedback = strings.TrimSpace(strings.TrimPrefix(line, "WINNER_FEEDBACK:"))
		case strings.HasPrefix(line, "LOSER_FEEDBACK:"):
			j.LoserFeedback = strings.TrimSpace(strings.TrimPrefix(line, "LOSER_FEEDBACK:"))
		}
	}

	if j.WinnerUID == "" || j.WinnerFeedback == "" || j.LoserFeedback == "" {
		return nil, &ProviderError{
			Provider: providerName,
			Code:     ErrCodeInvalidInput,
			Message:  "judgment response missing required fields",
		}
	}
	if !battle.HasParticipant(j.WinnerUID) {
		return nil, &ProviderError{
			Provider: providerName,
			Code:     ErrCodeInvalidInput,
			Message:  "judged winner is not a battle participant: " + j.WinnerUID,
		}
	}

	return j, nil
}
