package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"orator/internal/models"
	"orator/internal/repositories"
)

func newBattle(id string) *models.Battle {
	return &models.Battle{
		BattleID:   id,
		Challenger: "user-a",
		Opponent:   "user-b",
		Context:    models.BattleContext{InterviewType: "behavioral"},
	}
}

func transcript(content string) []models.Message {
	return []models.Message{{Role: "candidate", Content: content}}
}

func TestCreateAndGet(t *testing.T) {
	repo := NewBattleRepo(nil)
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, newBattle("b1")))

	got, err := repo.Get(ctx, "b1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, got.Status)
	assert.False(t, got.ChallengerCompleted)
	assert.False(t, got.OpponentCompleted)

	_, err = repo.Get(ctx, "missing")
	assert.ErrorIs(t, err, repositories.ErrBattleNotFound)
}

func TestCreateDuplicate(t *testing.T) {
	repo := NewBattleRepo(nil)
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, newBattle("b1")))
	assert.ErrorIs(t, repo.Create(ctx, newBattle("b1")), repositories.ErrDuplicateBattle)
}

func TestStatusTransitions(t *testing.T) {
	repo := NewBattleRepo(nil)
	ctx := context.Background()
	require.NoError(t, repo.Create(ctx, newBattle("b1")))

	// PENDING -> IN_PROGRESS
	updated, err := repo.UpdateStatus(ctx, "b1", models.StatusInProgress)
	require.NoError(t, err)
	assert.Equal(t, models.StatusInProgress, updated.Status)

	// IN_PROGRESS -> IN_PROGRESS is not legal
	_, err = repo.UpdateStatus(ctx, "b1", models.StatusInProgress)
	assert.ErrorIs(t, err, repositories.ErrInvalidTransition)

	// IN_PROGRESS -> EVALUATING
	updated, err = repo.UpdateStatus(ctx, "b1", models.StatusEvaluating)
	require.NoError(t, err)
	assert.Equal(t, models.StatusEvaluating, updated.Status)

	// EVALUATING is not cancellable
	_, err = repo.UpdateStatus(ctx, "b1", models.StatusCancelled)
	assert.ErrorIs(t, err, repositories.ErrInvalidTransition)

	// COMPLETED is never a direct-update target
	_, err = repo.UpdateStatus(ctx, "b1", models.StatusCompleted)
	assert.ErrorIs(t, err, repositories.ErrInvalidTransition)
}

func TestDeclineFromPendingAndInProgress(t *testing.T) {
	repo := NewBattleRepo(nil)
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, newBattle("pending")))
	updated, err := repo.UpdateStatus(ctx, "pending", models.StatusCancelled)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, updated.Status)

	require.NoError(t, repo.Create(ctx, newBattle("inprogress")))
	_, err = repo.UpdateStatus(ctx, "inprogress", models.StatusInProgress)
	require.NoError(t, err)
	updated, err = repo.UpdateStatus(ctx, "inprogress", models.StatusCancelled)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, updated.Status)

	// accept after cancel is a no-op failure, status stays CANCELLED
	_, err = repo.UpdateStatus(ctx, "pending", models.StatusInProgress)
	assert.ErrorIs(t, err, repositories.ErrInvalidTransition)
	got, err := repo.Get(ctx, "pending")
	require.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, got.Status)
}

func TestParticipantCompletion(t *testing.T) {
	repo := NewBattleRepo(nil)
	ctx := context.Background()
	require.NoError(t, repo.Create(ctx, newBattle("b1")))
	_, err := repo.UpdateStatus(ctx, "b1", models.StatusInProgress)
	require.NoError(t, err)

	// only participants may complete
	_, err = repo.UpdateParticipantCompletion(ctx, "b1", "stranger", transcript("hi"))
	assert.ErrorIs(t, err, repositories.ErrNotParticipant)

	// challenger submits
	updated, err := repo.UpdateParticipantCompletion(ctx, "b1", "user-a", transcript("challenger run"))
	require.NoError(t, err)
	assert.True(t, updated.ChallengerCompleted)
	assert.False(t, updated.OpponentCompleted)
	assert.Len(t, updated.ChallengerData, 1)

	// completed flag never reverts: second submission is rejected
	_, err = repo.UpdateParticipantCompletion(ctx, "b1", "user-a", transcript("second try"))
	assert.ErrorIs(t, err, repositories.ErrAlreadyCompleted)
	got, err := repo.Get(ctx, "b1")
	require.NoError(t, err)
	assert.True(t, got.ChallengerCompleted)
	assert.Equal(t, "challenger run", got.ChallengerData[0].Content)

	// opponent submits independently
	updated, err = repo.UpdateParticipantCompletion(ctx, "b1", "user-b", transcript("opponent run"))
	require.NoError(t, err)
	assert.True(t, updated.BothCompleted())
}

func TestCompletionRequiresInProgress(t *testing.T) {
	repo := NewBattleRepo(nil)
	ctx := context.Background()
	require.NoError(t, repo.Create(ctx, newBattle("b1")))

	_, err := repo.UpdateParticipantCompletion(ctx, "b1", "user-a", transcript("too early"))
	assert.ErrorIs(t, err, repositories.ErrInvalidTransition)
}

func TestEvaluationResultOnlyFromEvaluating(t *testing.T) {
	repo := NewBattleRepo(nil)
	ctx := context.Background()
	require.NoError(t, repo.Create(ctx, newBattle("b1")))

	result := &models.EvaluationResult{
		WinnerUID:      "user-a",
		WinnerFeedback: "good",
		LoserFeedback:  "try harder",
	}

	// not legal from PENDING
	_, err := repo.UpdateEvaluationResult(ctx, "b1", result)
	assert.ErrorIs(t, err, repositories.ErrInvalidTransition)
	got, err := repo.Get(ctx, "b1")
	require.NoError(t, err)
	assert.Nil(t, got.EvaluationResult)

	_, err = repo.UpdateStatus(ctx, "b1", models.StatusInProgress)
	require.NoError(t, err)
	_, err = repo.UpdateStatus(ctx, "b1", models.StatusEvaluating)
	require.NoError(t, err)

	updated, err := repo.UpdateEvaluationResult(ctx, "b1", result)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, updated.Status)
	require.NotNil(t, updated.EvaluationResult)
	assert.Equal(t, "user-a", updated.EvaluationResult.WinnerUID)

	// result can land only once
	_, err = repo.UpdateEvaluationResult(ctx, "b1", result)
	assert.ErrorIs(t, err, repositories.ErrInvalidTransition)
}

func TestRecordEvaluationFailureAndBacklog(t *testing.T) {
	repo := NewBattleRepo(nil)
	ctx := context.Background()
	require.NoError(t, repo.Create(ctx, newBattle("b1")))
	_, err := repo.UpdateStatus(ctx, "b1", models.StatusInProgress)
	require.NoError(t, err)
	_, err = repo.UpdateStatus(ctx, "b1", models.StatusEvaluating)
	require.NoError(t, err)

	require.NoError(t, repo.RecordEvaluationFailure(ctx, "b1", "provider timeout"))
	got, err := repo.Get(ctx, "b1")
	require.NoError(t, err)
	assert.Equal(t, 1, got.EvaluationAttempts)
	assert.Equal(t, "provider timeout", got.LastEvaluationError)
	assert.Equal(t, models.StatusEvaluating, got.Status)

	time.Sleep(5 * time.Millisecond)

	backlog, err := repo.ListEvaluationBacklog(ctx, time.Now().UTC(), 5)
	require.NoError(t, err)
	require.Len(t, backlog, 1)
	assert.Equal(t, "b1", backlog[0].BattleID)

	// max attempts filter
	backlog, err = repo.ListEvaluationBacklog(ctx, time.Now().UTC(), 1)
	require.NoError(t, err)
	assert.Empty(t, backlog)
}

func TestRecordEvaluationFailureRequiresEvaluating(t *testing.T) {
	repo := NewBattleRepo(nil)
	ctx := context.Background()
	require.NoError(t, repo.Create(ctx, newBattle("b1")))

	assert.ErrorIs(t, repo.RecordEvaluationFailure(ctx, "missing", "boom"),
		repositories.ErrBattleNotFound)
	assert.ErrorIs(t, repo.RecordEvaluationFailure(ctx, "b1", "boom"),
		repositories.ErrInvalidTransition)
}

func TestBacklogIncludesMissedBothComplete(t *testing.T) {
	repo := NewBattleRepo(nil)
	ctx := context.Background()
	require.NoError(t, repo.Create(ctx, newBattle("b1")))
	_, err := repo.UpdateStatus(ctx, "b1", models.StatusInProgress)
	require.NoError(t, err)
	_, err = repo.UpdateParticipantCompletion(ctx, "b1", "user-a", transcript("a"))
	require.NoError(t, err)

	// one-sided completion is not backlog
	time.Sleep(5 * time.Millisecond)
	backlog, err := repo.ListEvaluationBacklog(ctx, time.Now().UTC(), 5)
	require.NoError(t, err)
	assert.Empty(t, backlog)

	_, err = repo.UpdateParticipantCompletion(ctx, "b1", "user-b", transcript("b"))
	require.NoError(t, err)

	// both-complete but still IN_PROGRESS means the transition was missed
	time.Sleep(5 * time.Millisecond)
	backlog, err = repo.ListEvaluationBacklog(ctx, time.Now().UTC(), 5)
	require.NoError(t, err)
	require.Len(t, backlog, 1)
	assert.Equal(t, "b1", backlog[0].BattleID)
	assert.Equal(t, models.StatusInProgress, backlog[0].Status)
}

func TestGenerateIDUnique(t *testing.T) {
	repo := NewBattleRepo(nil)
	assert.NotEqual(t, repo.GenerateID(), repo.GenerateID())
}
