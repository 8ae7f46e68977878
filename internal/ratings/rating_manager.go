package ratings

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	// K-factors for rating calculation
	KFactorNew         = 32.0 // Users with < 5 battles
	KFactorExperienced = 24.0 // Users with >= 5 battles

	// Default rating for new users
	DefaultRating = 1500.0

	// Redis key prefixes
	UserRatingPrefix = "user_rating:"

	// Channel for rating update events
	RatingUpdatesChannel = "rating_updates"
)

// Manager handles battle rating calculations and updates
type Manager struct {
	ctx    context.Context
	rdb    *redis.Client
	logger *zap.Logger
}

func NewManager(rdb *redis.Client, logger *zap.Logger) *Manager {
	return &Manager{
		ctx:    context.Background(),
		rdb:    rdb,
		logger: logger,
	}
}

// CalculateExpectedScore calculates the expected performance based on rating difference
// Formula: 1 / (1 + 10^((opponentRating - userRating) / 400))
func CalculateExpectedScore(userRating, opponentRating float64) float64 {
	return 1.0 / (1.0 + math.Pow(10, (opponentRating-userRating)/400.0))
}

// GetKFactor returns the appropriate K-factor based on battle count
func GetKFactor(battlesCompleted int) float64 {
	if battlesCompleted < 5 {
		return KFactorNew
	}
	return KFactorExperienced
}

// CalculateNewRating applies one battle outcome; score is 1 for a win, 0 for a loss.
func CalculateNewRating(currentRating, opponentRating, score float64, battlesCompleted int) float64 {
	expected := CalculateExpectedScore(currentRating, opponentRating)
	kFactor := GetKFactor(battlesCompleted)

	newRating := currentRating + kFactor*(score-expected)

	// Keep ratings in a sane band
	if newRating < 500 {
		newRating = 500
	}
	if newRating > 3000 {
		newRating = 3000
	}

	return newRating
}

// UserRatingInfo contains a user's rating and battle count
type UserRatingInfo struct {
	UserID           string  `json:"userId"`
	Rating           float64 `json:"rating"`
	BattlesCompleted int     `json:"battlesCompleted"`
}

// RatingUpdate is published after every rated battle
type RatingUpdate struct {
	UserID      string    `json:"userId"`
	OldRating   float64   `json:"oldRating"`
	NewRating   float64   `json:"newRating"`
	Change      float64   `json:"change"`
	OpponentUID string    `json:"opponentUid"`
	Won         bool      `json:"won"`
	Timestamp   time.Time `json:"timestamp"`
}

// GetUserRating retrieves a user's rating from Redis (or returns default)
func (m *Manager) GetUserRating(userID string) (*UserRatingInfo, error) {
	key := fmt.Sprintf("%s%s", UserRatingPrefix, userID)

	data, err := m.rdb.HGetAll(m.ctx, key).Result()
	if err == redis.Nil || len(data) == 0 {
		return &UserRatingInfo{
			UserID:           userID,
			Rating:           DefaultRating,
			BattlesCompleted: 0,
		}, nil
	}
	if err != nil {
		return nil, err
	}

	info := &UserRatingInfo{
		UserID: userID,
	}

	if ratingStr, ok := data["rating"]; ok {
		fmt.Sscanf(ratingStr, "%f", &info.Rating)
	} else {
		info.Rating = DefaultRating
	}

	if battlesStr, ok := data["battles_completed"]; ok {
		fmt.Sscanf(battlesStr, "%d", &info.BattlesCompleted)
	}

	return info, nil
}

// SetUserRating stores a user's rating in Redis
func (m *Manager) SetUserRating(userID string, rating float64, battlesCompleted int) error {
	key := fmt.Sprintf("%s%s", UserRatingPrefix, userID)

	err := m.rdb.HSet(m.ctx, key, map[string]interface{}{
		"rating":            rating,
		"battles_completed": battlesCompleted,
		"last_updated":      time.Now().Unix(),
	}).Err()
	if err != nil {
		return fmt.Errorf("failed to set user rating: %w", err)
	}

	// Ratings expire for users inactive 90 days
	m.rdb.Expire(m.ctx, key, 90*24*time.Hour)

	return nil
}

// ProcessBattleOutcome updates both participants' ratings after a judged
// battle and returns the applied updates.
func (m *Manager) ProcessBattleOutcome(winnerUID, loserUID string) ([]*RatingUpdate, error) {
	winnerInfo, err := m.GetUserRating(winnerUID)
	if err != nil {
		return nil, fmt.Errorf("failed to get winner rating: %w", err)
	}

	loserInfo, err := m.GetUserRating(loserUID)
	if err != nil {
		return nil, fmt.Errorf("failed to get loser rating: %w", err)
	}

	newWinnerRating := CalculateNewRating(winnerInfo.Rating, loserInfo.Rating, 1.0, winnerInfo.BattlesCompleted)
	newLoserRating := CalculateNewRating(loserInfo.Rating, winnerInfo.Rating, 0.0, loserInfo.BattlesCompleted)

	if err := m.SetUserRating(winnerUID, newWinnerRating, winnerInfo.BattlesCompleted+1); err != nil {
		return nil, fmt.Errorf("failed to update winner rating: %w", err)
	}
	if err := m.SetUserRating(loserUID, newLoserRating, loserInfo.BattlesCompleted+1); err != nil {
		return nil, fmt.Errorf("failed to update loser rating: %w", err)
	}

	now := time.Now()
	updates := []*RatingUpdate{
		{
			UserID:      winnerUID,
			OldRating:   winnerInfo.Rating,
			NewRating:   newWinnerRating,
			Change:      newWinnerRating - winnerInfo.Rating,
			OpponentUID: loserUID,
			Won:         true,
			Timestamp:   now,
		},
		{
			UserID:      loserUID,
			OldRating:   loserInfo.Rating,
			NewRating:   newLoserRating,
			Change:      newLoserRating - loserInfo.Rating,
			OpponentUID: winnerUID,
			Won:         false,
			Timestamp:   now,
		},
	}

	m.logger.Info("ratings updated",
		zap.String("winner", winnerUID),
		zap.Float64("winner_rating", newWinnerRating),
		zap.String("loser", loserUID),
		zap.Float64("loser_rating", newLoserRating))

	for _, update := range updates {
		m.publishRatingUpdate(update)
	}

	return updates, nil
}

// publishRatingUpdate publishes a rating update event to Redis
func (m *Manager) publishRatingUpdate(update *RatingUpdate) {
	payload, err := json.Marshal(update)
	if err != nil {
		m.logger.Warn("failed to marshal rating update", zap.Error(err))
		return
	}

	if err := m.rdb.Publish(m.ctx, RatingUpdatesChannel, payload).Err(); err != nil {
		m.logger.Warn("failed to publish rating update", zap.Error(err))
	}
}
