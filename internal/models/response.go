package models

// uniform error responses
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error lets handlers return an ErrorResponse straight from Validate().
func (e *ErrorResponse) Error() string {
	return e.Message
}

// CreateBattleResponse is returned after a battle request is persisted.
type CreateBattleResponse struct {
	BattleID string `json:"battleId"`
}

// AcceptBattleResponse carries the updated battle plus the signed battle
// tokens each side uses for completion and watch endpoints.
type AcceptBattleResponse struct {
	Battle          *Battle `json:"battle"`
	ChallengerToken string  `json:"challengerToken"`
	OpponentToken   string  `json:"opponentToken"`
}

// BattleResponse decorates a battle with resolved display names for the UI.
type BattleResponse struct {
	Battle         *Battle `json:"battle"`
	ChallengerName string  `json:"challengerName,omitempty"`
	OpponentName   string  `json:"opponentName,omitempty"`
}
