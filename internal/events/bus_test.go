package events

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"orator/internal/models"
)

func setupBus(t *testing.T) *Bus {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	return NewBus(rdb, zap.NewNop())
}

func testBattle(status string) *models.Battle {
	return &models.Battle{
		BattleID:   "battle-1",
		Challenger: "user-a",
		Opponent:   "user-b",
		Status:     status,
	}
}

func fetchBattle(battle *models.Battle) func(context.Context) (*models.Battle, error) {
	return func(context.Context) (*models.Battle, error) {
		return battle, nil
	}
}

func TestBattleChannel(t *testing.T) {
	assert.Equal(t, "battles:abc", BattleChannel("abc"))
}

func TestSubscribeDeliversInitialSnapshotFirst(t *testing.T) {
	bus := setupBus(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sub, err := bus.Subscribe(ctx, "battle-1", fetchBattle(testBattle(models.StatusPending)))
	require.NoError(t, err)
	defer sub.Close()

	select {
	case battle := <-sub.Updates():
		assert.Equal(t, models.StatusPending, battle.Status)
	case <-time.After(2 * time.Second):
		t.Fatal("initial snapshot not delivered")
	}
}

func TestSubscribeDeliversRemoteWrites(t *testing.T) {
	bus := setupBus(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sub, err := bus.Subscribe(ctx, "battle-1", fetchBattle(testBattle(models.StatusPending)))
	require.NoError(t, err)
	defer sub.Close()

	<-sub.Updates() // drain initial snapshot

	bus.PublishBattle(ctx, testBattle(models.StatusInProgress))

	select {
	case battle := <-sub.Updates():
		assert.Equal(t, models.StatusInProgress, battle.Status)
	case <-time.After(2 * time.Second):
		t.Fatal("published update not delivered")
	}
}

func TestSubscribeAttachesBeforeFetchingSnapshot(t *testing.T) {
	bus := setupBus(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// A write landing while the initial snapshot is being read must still
	// reach the subscriber: the subscription is confirmed before fetch runs.
	sub, err := bus.Subscribe(ctx, "battle-1", func(context.Context) (*models.Battle, error) {
		bus.PublishBattle(ctx, testBattle(models.StatusCompleted))
		return testBattle(models.StatusEvaluating), nil
	})
	require.NoError(t, err)
	defer sub.Close()

	select {
	case battle := <-sub.Updates():
		assert.Equal(t, models.StatusEvaluating, battle.Status)
	case <-time.After(2 * time.Second):
		t.Fatal("initial snapshot not delivered")
	}

	select {
	case battle := <-sub.Updates():
		assert.Equal(t, models.StatusCompleted, battle.Status)
	case <-time.After(2 * time.Second):
		t.Fatal("write during snapshot fetch was lost")
	}
}

func TestSubscribeFetchFailure(t *testing.T) {
	bus := setupBus(t)

	wantErr := context.DeadlineExceeded
	_, err := bus.Subscribe(context.Background(), "battle-1",
		func(context.Context) (*models.Battle, error) { return nil, wantErr })
	assert.ErrorIs(t, err, wantErr)
}

func TestSubscribeIgnoresOtherBattles(t *testing.T) {
	bus := setupBus(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sub, err := bus.Subscribe(ctx, "battle-1", fetchBattle(testBattle(models.StatusPending)))
	require.NoError(t, err)
	defer sub.Close()

	<-sub.Updates()

	other := testBattle(models.StatusCancelled)
	other.BattleID = "battle-2"
	bus.PublishBattle(ctx, other)

	select {
	case battle := <-sub.Updates():
		t.Fatalf("unexpected delivery for other battle: %v", battle.BattleID)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestCloseEndsUpdates(t *testing.T) {
	bus := setupBus(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sub, err := bus.Subscribe(ctx, "battle-1", fetchBattle(testBattle(models.StatusPending)))
	require.NoError(t, err)
	<-sub.Updates()

	sub.Close()
	// Close is safe to call twice
	sub.Close()

	select {
	case _, ok := <-sub.Updates():
		assert.False(t, ok, "updates channel should be closed")
	case <-time.After(2 * time.Second):
		t.Fatal("updates channel not closed after Close")
	}
}

func TestSubscribeFirehoseSeesEveryBattle(t *testing.T) {
	bus := setupBus(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	snapshots, stop := bus.SubscribeFirehose(ctx)
	defer stop()

	first := testBattle(models.StatusPending)
	second := testBattle(models.StatusInProgress)
	second.BattleID = "battle-2"
	bus.PublishBattle(ctx, first)
	bus.PublishBattle(ctx, second)

	seen := make(map[string]bool)
	for len(seen) < 2 {
		select {
		case battle := <-snapshots:
			seen[battle.BattleID] = true
		case <-time.After(2 * time.Second):
			t.Fatalf("firehose delivered %d of 2 battles", len(seen))
		}
	}
	assert.True(t, seen["battle-1"])
	assert.True(t, seen["battle-2"])
}
