package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
)

func sampleBattle() *Battle {
	return &Battle{
		BattleID:   "battle-1",
		Challenger: "user-a",
		Opponent:   "user-b",
		Status:     StatusCompleted,
		Context: BattleContext{
			InterviewType: "behavioral",
			Role:          "Backend Engineer",
			Company:       "Acme",
			FocusAreas:    []string{"clarity", "structure"},
		},
		ChallengerCompleted: true,
		OpponentCompleted:   true,
		ChallengerData: []Message{
			{Role: "interviewer", Content: "Tell me about yourself"},
			{Role: "candidate", Content: "I am a backend engineer"},
		},
		OpponentData: []Message{
			{Role: "interviewer", Content: "Tell me about yourself"},
			{Role: "candidate", Content: "I build distributed systems"},
		},
		EvaluationResult: &EvaluationResult{
			WinnerUID:      "user-a",
			WinnerFeedback: "Strong structure",
			LoserFeedback:  "Work on pacing",
		},
		EvaluationAttempts: 1,
		CreatedAt:          time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		UpdatedAt:          time.Date(2026, 3, 1, 13, 0, 0, 0, time.UTC),
	}
}

func TestBattleBSONRoundTrip(t *testing.T) {
	original := sampleBattle()

	data, err := bson.Marshal(original)
	require.NoError(t, err)

	var decoded Battle
	require.NoError(t, bson.Unmarshal(data, &decoded))

	assert.Equal(t, original.BattleID, decoded.BattleID)
	assert.Equal(t, original.Challenger, decoded.Challenger)
	assert.Equal(t, original.Opponent, decoded.Opponent)
	assert.Equal(t, original.Status, decoded.Status)
	assert.Equal(t, original.Context, decoded.Context)
	assert.Equal(t, original.ChallengerCompleted, decoded.ChallengerCompleted)
	assert.Equal(t, original.OpponentCompleted, decoded.OpponentCompleted)
	assert.Equal(t, original.ChallengerData, decoded.ChallengerData)
	assert.Equal(t, original.OpponentData, decoded.OpponentData)
	require.NotNil(t, decoded.EvaluationResult)
	assert.Equal(t, *original.EvaluationResult, *decoded.EvaluationResult)
	assert.Equal(t, original.EvaluationAttempts, decoded.EvaluationAttempts)
	assert.True(t, original.CreatedAt.Equal(decoded.CreatedAt))
	assert.True(t, original.UpdatedAt.Equal(decoded.UpdatedAt))
}

func TestHasParticipant(t *testing.T) {
	b := sampleBattle()
	assert.True(t, b.HasParticipant("user-a"))
	assert.True(t, b.HasParticipant("user-b"))
	assert.False(t, b.HasParticipant("user-c"))
	assert.False(t, b.HasParticipant(""))
}

func TestOtherParticipant(t *testing.T) {
	b := sampleBattle()
	assert.Equal(t, "user-b", b.OtherParticipant("user-a"))
	assert.Equal(t, "user-a", b.OtherParticipant("user-b"))
	assert.Equal(t, "", b.OtherParticipant("user-c"))
}

func TestTerminal(t *testing.T) {
	b := sampleBattle()
	for status, terminal := range map[string]bool{
		StatusPending:    false,
		StatusInProgress: false,
		StatusEvaluating: false,
		StatusCompleted:  true,
		StatusCancelled:  true,
	} {
		b.Status = status
		assert.Equal(t, terminal, b.Terminal(), "status %s", status)
	}
}

func TestCreateBattleRequestValidate(t *testing.T) {
	valid := CreateBattleRequest{
		ChallengerID: "user-a",
		OpponentID:   "user-b",
		Context:      BattleContext{InterviewType: "behavioral"},
	}
	assert.NoError(t, valid.Validate())

	missingChallenger := valid
	missingChallenger.ChallengerID = ""
	assert.Error(t, missingChallenger.Validate())

	samePlayers := valid
	samePlayers.OpponentID = "user-a"
	assert.Error(t, samePlayers.Validate())

	noContext := valid
	noContext.Context = BattleContext{}
	assert.Error(t, noContext.Validate())
}

func TestCompleteRequestValidate(t *testing.T) {
	valid := CompleteRequest{
		UserID:     "user-a",
		Transcript: []Message{{Role: "candidate", Content: "hello"}},
	}
	assert.NoError(t, valid.Validate())

	empty := CompleteRequest{UserID: "user-a"}
	assert.Error(t, empty.Validate())

	badMessage := CompleteRequest{
		UserID:     "user-a",
		Transcript: []Message{{Role: "", Content: "hello"}},
	}
	assert.Error(t, badMessage.Validate())
}
