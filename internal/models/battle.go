package models

import (
	"time"
)

// Battle statuses
const (
	StatusPending    = "PENDING"
	StatusInProgress = "IN_PROGRESS"
	StatusEvaluating = "EVALUATING"
	StatusCompleted  = "COMPLETED"
	StatusCancelled  = "CANCELLED"
)

// Message is one turn of a participant's practice transcript.
type Message struct {
	Role    string `bson:"role" json:"role"`
	Content string `bson:"content" json:"content"`
}

// BattleContext is the practice scenario both participants agreed on.
// Fixed at creation, never mutated afterwards.
type BattleContext struct {
	InterviewType string   `bson:"interviewType" json:"interviewType"`
	Role          string   `bson:"role" json:"role"`
	Company       string   `bson:"company" json:"company"`
	FocusAreas    []string `bson:"focusAreas,omitempty" json:"focusAreas,omitempty"`
}

// EvaluationResult holds the judged outcome of a battle.
// Present if and only if the battle is COMPLETED.
type EvaluationResult struct {
	WinnerUID      string `bson:"winnerUid" json:"winnerUid"`
	WinnerFeedback string `bson:"winnerFeedback" json:"winnerFeedback"`
	LoserFeedback  string `bson:"loserFeedback" json:"loserFeedback"`
}

// Battle is one asynchronous 1v1 speech-practice contest between two users.
type Battle struct {
	BattleID            string            `bson:"battleId" json:"battleId"`
	Challenger          string            `bson:"challenger" json:"challenger"`
	Opponent            string            `bson:"opponent" json:"opponent"`
	Status              string            `bson:"status" json:"status"`
	Context             BattleContext     `bson:"context" json:"context"`
	ChallengerCompleted bool              `bson:"challengerCompleted" json:"challengerCompleted"`
	OpponentCompleted   bool              `bson:"opponentCompleted" json:"opponentCompleted"`
	ChallengerData      []Message         `bson:"challengerData,omitempty" json:"challengerData,omitempty"`
	OpponentData        []Message         `bson:"opponentData,omitempty" json:"opponentData,omitempty"`
	EvaluationResult    *EvaluationResult `bson:"evaluationResult,omitempty" json:"evaluationResult,omitempty"`
	EvaluationAttempts  int               `bson:"evaluationAttempts" json:"evaluationAttempts"`
	LastEvaluationError string            `bson:"lastEvaluationError,omitempty" json:"lastEvaluationError,omitempty"`
	CreatedAt           time.Time         `bson:"createdAt" json:"createdAt"`
	UpdatedAt           time.Time         `bson:"updatedAt" json:"updatedAt"`
}

// HasParticipant reports whether uid is one of the two battle participants.
func (b *Battle) HasParticipant(uid string) bool {
	return uid == b.Challenger || uid == b.Opponent
}

// OtherParticipant returns the opposite side of uid, or "" if uid is not a participant.
func (b *Battle) OtherParticipant(uid string) string {
	switch uid {
	case b.Challenger:
		return b.Opponent
	case b.Opponent:
		return b.Challenger
	}
	return ""
}

// BothCompleted reports whether both sides have submitted their transcripts.
func (b *Battle) BothCompleted() bool {
	return b.ChallengerCompleted && b.OpponentCompleted
}

// Terminal reports whether the battle can accept no further writes.
func (b *Battle) Terminal() bool {
	return b.Status == StatusCompleted || b.Status == StatusCancelled
}
