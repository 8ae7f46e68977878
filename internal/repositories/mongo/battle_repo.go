package mongo

import (
	"context"
	"errors"
	"os"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"orator/internal/models"
	"orator/internal/repositories"
)

// Repo is the Mongo-backed battle store. Every successful write publishes
// the fresh document so subscribed clients observe the change.
type Repo struct {
	col *mongo.Collection
	pub repositories.Publisher
}

// NewBattleRepo connects to the battles collection and ensures a unique
// index on battleId.
func NewBattleRepo(c *Client, pub repositories.Publisher) (*Repo, error) {
	db, err := c.DB()
	if err != nil {
		return nil, err
	}

	colName := os.Getenv("BATTLES_COLLECTION")
	if colName == "" {
		colName = "battles"
	}

	col := db.Collection(colName)
	r := &Repo{col: col, pub: pub}

	_, _ = r.col.Indexes().CreateOne(context.Background(), mongo.IndexModel{
		Keys:    bson.M{"battleId": 1},
		Options: options.Index().SetUnique(true),
	})

	return r, nil
}

func (r *Repo) GenerateID() string {
	return uuid.New().String()
}

// Create inserts a new PENDING battle record.
func (r *Repo) Create(ctx context.Context, battle *models.Battle) error {
	now := time.Now().UTC()
	battle.CreatedAt, battle.UpdatedAt = now, now
	if battle.Status == "" {
		battle.Status = models.StatusPending
	}
	if _, err := r.col.InsertOne(ctx, battle); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return repositories.ErrDuplicateBattle
		}
		return err
	}
	r.publish(ctx, battle)
	return nil
}

// Get fetches a battle by id. Missing documents map to ErrBattleNotFound;
// any other failure is surfaced, not folded into a nil result.
func (r *Repo) Get(ctx context.Context, battleID string) (*models.Battle, error) {
	var b models.Battle
	err := r.col.FindOne(ctx, bson.M{"battleId": battleID}).Decode(&b)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, repositories.ErrBattleNotFound
	}
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// UpdateStatus performs a guarded partial update: the filter constrains the
// current status to legal predecessors of the target, so a racing or stale
// writer gets ErrInvalidTransition instead of clobbering a terminal state.
func (r *Repo) UpdateStatus(ctx context.Context, battleID, newStatus string) (*models.Battle, error) {
	preds := repositories.LegalPredecessors(newStatus)
	if preds == nil {
		return nil, repositories.ErrInvalidTransition
	}

	filter := bson.M{
		"battleId": battleID,
		"status":   bson.M{"$in": preds},
	}
	update := bson.M{"$set": bson.M{
		"status":    newStatus,
		"updatedAt": time.Now().UTC(),
	}}

	var updated models.Battle
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	err := r.col.FindOneAndUpdate(ctx, filter, update, opts).Decode(&updated)
	if errors.Is(err, mongo.ErrNoDocuments) {
		// Either the battle does not exist or its current status is not a
		// legal predecessor; distinguish with a plain lookup.
		if _, getErr := r.Get(ctx, battleID); getErr != nil {
			return nil, getErr
		}
		return nil, repositories.ErrInvalidTransition
	}
	if err != nil {
		return nil, err
	}
	r.publish(ctx, &updated)
	return &updated, nil
}

// UpdateParticipantCompletion sets the caller's completed flag and transcript.
// The filter pins the side to the caller's own field and requires the flag to
// still be false, so a participant can neither write the other side's fields
// nor revert or overwrite a submission.
func (r *Repo) UpdateParticipantCompletion(ctx context.Context, battleID, participantID string, transcript []models.Message) (*models.Battle, error) {
	current, err := r.Get(ctx, battleID)
	if err != nil {
		return nil, err
	}

	var flagField, dataField string
	switch participantID {
	case current.Challenger:
		flagField, dataField = "challengerCompleted", "challengerData"
	case current.Opponent:
		flagField, dataField = "opponentCompleted", "opponentData"
	default:
		return nil, repositories.ErrNotParticipant
	}

	filter := bson.M{
		"battleId": battleID,
		"status":   models.StatusInProgress,
		flagField:  false,
	}
	update := bson.M{"$set": bson.M{
		flagField:   true,
		dataField:   transcript,
		"updatedAt": time.Now().UTC(),
	}}

	var updated models.Battle
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	err = r.col.FindOneAndUpdate(ctx, filter, update, opts).Decode(&updated)
	if errors.Is(err, mongo.ErrNoDocuments) {
		if current.Status != models.StatusInProgress {
			return nil, repositories.ErrInvalidTransition
		}
		return nil, repositories.ErrAlreadyCompleted
	}
	if err != nil {
		return nil, err
	}
	r.publish(ctx, &updated)
	return &updated, nil
}

// UpdateEvaluationResult atomically sets status=COMPLETED together with the
// evaluation payload. Filtered on EVALUATING so the result can land only
// once and only after the evaluating transition.
func (r *Repo) UpdateEvaluationResult(ctx context.Context, battleID string, result *models.EvaluationResult) (*models.Battle, error) {
	filter := bson.M{
		"battleId": battleID,
		"status":   models.StatusEvaluating,
	}
	update := bson.M{"$set": bson.M{
		"status":           models.StatusCompleted,
		"evaluationResult": result,
		"updatedAt":        time.Now().UTC(),
	}}

	var updated models.Battle
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	err := r.col.FindOneAndUpdate(ctx, filter, update, opts).Decode(&updated)
	if errors.Is(err, mongo.ErrNoDocuments) {
		if _, getErr := r.Get(ctx, battleID); getErr != nil {
			return nil, getErr
		}
		return nil, repositories.ErrInvalidTransition
	}
	if err != nil {
		return nil, err
	}
	r.publish(ctx, &updated)
	return &updated, nil
}

// RecordEvaluationFailure bumps the attempt counter and remembers the cause.
// The battle stays in EVALUATING so the sweeper can pick it up again.
func (r *Repo) RecordEvaluationFailure(ctx context.Context, battleID, cause string) error {
	filter := bson.M{
		"battleId": battleID,
		"status":   models.StatusEvaluating,
	}
	update := bson.M{
		"$inc": bson.M{"evaluationAttempts": 1},
		"$set": bson.M{
			"lastEvaluationError": cause,
			"updatedAt":           time.Now().UTC(),
		},
	}
	res, err := r.col.UpdateOne(ctx, filter, update)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		// The battle may be missing or merely not in EVALUATING.
		if _, getErr := r.Get(ctx, battleID); getErr != nil {
			return getErr
		}
		return repositories.ErrInvalidTransition
	}
	return nil
}

// ListEvaluationBacklog returns battles whose last write is older than the
// cutoff and that still need evaluation attention: EVALUATING records capped
// at maxAttempts tries, plus IN_PROGRESS records whose both-complete event
// was never acted on.
func (r *Repo) ListEvaluationBacklog(ctx context.Context, olderThan time.Time, maxAttempts int) ([]models.Battle, error) {
	filter := bson.M{
		"updatedAt": bson.M{"$lt": olderThan},
		"$or": []bson.M{
			{
				"status":             models.StatusEvaluating,
				"evaluationAttempts": bson.M{"$lt": maxAttempts},
			},
			{
				"status":              models.StatusInProgress,
				"challengerCompleted": true,
				"opponentCompleted":   true,
			},
		},
	}
	cur, err := r.col.Find(ctx, filter)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []models.Battle
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *Repo) publish(ctx context.Context, battle *models.Battle) {
	if r.pub != nil {
		r.pub.PublishBattle(ctx, battle)
	}
}
