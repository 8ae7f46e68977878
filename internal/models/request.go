package models

// CreateBattleRequest starts a new battle between the challenger and an opponent.
type CreateBattleRequest struct {
	ChallengerID string        `json:"challengerId"`
	OpponentID   string        `json:"opponentId"`
	Context      BattleContext `json:"context"`
}

func (r *CreateBattleRequest) Validate() error {
	if r.ChallengerID == "" {
		return &ErrorResponse{Code: "missing_field", Message: "challengerId is required"}
	}
	if r.OpponentID == "" {
		return &ErrorResponse{Code: "missing_field", Message: "opponentId is required"}
	}
	if r.ChallengerID == r.OpponentID {
		return &ErrorResponse{Code: "invalid_participants", Message: "challenger and opponent must be different users"}
	}
	if r.Context.InterviewType == "" {
		return &ErrorResponse{Code: "missing_field", Message: "context.interviewType is required"}
	}
	return nil
}

// DecisionRequest carries the acting user for accept/decline actions.
type DecisionRequest struct {
	UserID string `json:"userId"`
}

func (r *DecisionRequest) Validate() error {
	if r.UserID == "" {
		return &ErrorResponse{Code: "missing_field", Message: "userId is required"}
	}
	return nil
}

// CompleteRequest submits a participant's finished transcript.
type CompleteRequest struct {
	UserID     string    `json:"userId"`
	Transcript []Message `json:"transcript"`
}

func (r *CompleteRequest) Validate() error {
	if r.UserID == "" {
		return &ErrorResponse{Code: "missing_field", Message: "userId is required"}
	}
	if len(r.Transcript) == 0 {
		return &ErrorResponse{Code: "missing_field", Message: "transcript must not be empty"}
	}
	for _, m := range r.Transcript {
		if m.Role == "" || m.Content == "" {
			return &ErrorResponse{Code: "invalid_transcript", Message: "every transcript message needs a role and content"}
		}
	}
	return nil
}
