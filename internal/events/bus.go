package events

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"orator/internal/models"
)

// Channel names. Every battle write goes out twice: once on the battle's own
// channel for watching clients, once on the firehose for the coordinator's
// reactive loop.
const (
	FirehoseChannel     = "battles:events"
	battleChannelPrefix = "battles:"
)

// BattleChannel returns the per-battle pub/sub channel name.
func BattleChannel(battleID string) string {
	return battleChannelPrefix + battleID
}

// Bus publishes battle snapshots over Redis pub/sub and hands out
// per-battle subscriptions. Updates arrive in server-write order per
// battle; there is no cross-battle ordering guarantee.
type Bus struct {
	rdb    *redis.Client
	logger *zap.Logger
}

func NewBus(rdb *redis.Client, logger *zap.Logger) *Bus {
	return &Bus{rdb: rdb, logger: logger}
}

// PublishBattle broadcasts the fresh battle document. Publish failures are
// logged, not returned: the write already succeeded and subscribers
// re-sync from the store on their next snapshot.
func (b *Bus) PublishBattle(ctx context.Context, battle *models.Battle) {
	payload, err := json.Marshal(battle)
	if err != nil {
		b.logger.Error("failed to marshal battle event", zap.Error(err), zap.String("battle_id", battle.BattleID))
		return
	}
	if err := b.rdb.Publish(ctx, BattleChannel(battle.BattleID), payload).Err(); err != nil {
		b.logger.Warn("failed to publish battle event", zap.Error(err), zap.String("battle_id", battle.BattleID))
	}
	if err := b.rdb.Publish(ctx, FirehoseChannel, payload).Err(); err != nil {
		b.logger.Warn("failed to publish firehose event", zap.Error(err), zap.String("battle_id", battle.BattleID))
	}
}

// Subscription is a continuously-updated view of one battle. The first
// delivery is the initial snapshot supplied at subscribe time; subsequent
// deliveries follow remote writes. Callers must Close() when the view is
// torn down to release the pub/sub connection.
type Subscription struct {
	updates   chan *models.Battle
	pubsub    *redis.PubSub
	closeOnce sync.Once
}

// Updates is the stream of battle snapshots. It is closed after Close().
func (s *Subscription) Updates() <-chan *models.Battle {
	return s.updates
}

// Close cancels the subscription and releases the pub/sub connection.
// Safe to call more than once.
func (s *Subscription) Close() {
	s.closeOnce.Do(func() {
		_ = s.pubsub.Close()
	})
}

// Subscribe registers a push listener for one battle. The subscription is
// confirmed before fetch runs, so a write landing between the initial
// snapshot and the first pushed update cannot be missed. The initial
// snapshot fires immediately; every later remote write fires again until
// Close().
func (b *Bus) Subscribe(ctx context.Context, battleID string, fetch func(context.Context) (*models.Battle, error)) (*Subscription, error) {
	pubsub := b.rdb.Subscribe(ctx, BattleChannel(battleID))
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, err
	}

	initial, err := fetch(ctx)
	if err != nil {
		_ = pubsub.Close()
		return nil, err
	}

	sub := &Subscription{
		updates: make(chan *models.Battle, 8),
		pubsub:  pubsub,
	}
	sub.updates <- initial

	go func() {
		defer close(sub.updates)
		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				sub.Close()
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var battle models.Battle
				if err := json.Unmarshal([]byte(msg.Payload), &battle); err != nil {
					b.logger.Warn("failed to parse battle event", zap.Error(err), zap.String("battle_id", battleID))
					continue
				}
				select {
				case sub.updates <- &battle:
				case <-ctx.Done():
					sub.Close()
					return
				}
			}
		}
	}()

	return sub, nil
}

// SubscribeFirehose registers a listener over every battle write. Used by
// the coordinator's reactive loop; callers receive raw payloads and must
// drain the channel until it closes. The subscription is confirmed before
// returning.
func (b *Bus) SubscribeFirehose(ctx context.Context) (<-chan *models.Battle, func()) {
	pubsub := b.rdb.Subscribe(ctx, FirehoseChannel)
	if _, err := pubsub.Receive(ctx); err != nil {
		b.logger.Warn("failed to confirm firehose subscription", zap.Error(err))
	}
	out := make(chan *models.Battle, 32)

	go func() {
		defer close(out)
		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var battle models.Battle
				if err := json.Unmarshal([]byte(msg.Payload), &battle); err != nil {
					b.logger.Warn("failed to parse firehose event", zap.Error(err))
					continue
				}
				select {
				case out <- &battle:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, func() { _ = pubsub.Close() }
}
