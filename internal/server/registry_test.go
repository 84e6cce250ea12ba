package server_test

import (
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LudwigRoderich/BatallaNaval/internal/game"
	"github.com/LudwigRoderich/BatallaNaval/internal/server"
)

// fakeNotifier 記錄清理通知的測試替身
type fakeNotifier struct {
	mu       sync.Mutex
	forfeits []string // matchID
	winners  []string
	expired  []string // matchID
}

func (f *fakeNotifier) NotifyForfeit(matchID, remaining string, totalMoves int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.forfeits = append(f.forfeits, matchID)
	f.winners = append(f.winners, remaining)
}

func (f *fakeNotifier) NotifyExpired(matchID string, playerIDs []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.expired = append(f.expired, matchID)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestRegistry(t *testing.T) *server.Registry {
	t.Helper()
	registry := server.NewRegistry(10, 30*time.Minute, 5*time.Minute, time.Hour, testLogger())
	t.Cleanup(registry.Stop)
	return registry
}

// TestRegistry_Assign 測試配對：先補滿最早的未滿對局
func TestRegistry_Assign(t *testing.T) {
	registry := newTestRegistry(t)

	s1 := registry.Assign("p1")
	_, err := s1.Join("p1", "玩家一")
	require.NoError(t, err)

	// 第二位玩家配到同一場對局
	s2 := registry.Assign("p2")
	assert.Equal(t, s1.ID(), s2.ID())
	_, err = s2.Join("p2", "玩家二")
	require.NoError(t, err)

	// 對局已滿，第三位玩家開新局
	s3 := registry.Assign("p3")
	assert.NotEqual(t, s1.ID(), s3.ID())

	// 索引可雙向查找
	found, exists := registry.Lookup(s1.ID())
	require.True(t, exists)
	assert.Equal(t, s1.ID(), found.ID())

	byPlayer, exists := registry.SessionOf("p2")
	require.True(t, exists)
	assert.Equal(t, s1.ID(), byPlayer.ID())

	_, exists = registry.Lookup("no-such-match")
	assert.False(t, exists)
}

// TestRegistry_AssignRetry 測試等待中玩家重送 join 不影響配對
func TestRegistry_AssignRetry(t *testing.T) {
	registry := newTestRegistry(t)

	s1 := registry.Assign("p1")
	_, err := s1.Join("p1", "玩家一")
	require.NoError(t, err)

	// 客戶端重試：同一位等待中的玩家再要一次對局，走重連路徑
	retry := registry.Assign("p1")
	require.Equal(t, s1.ID(), retry.ID())
	outcome, err := retry.Join("p1", "玩家一")
	require.NoError(t, err)
	assert.Equal(t, game.Rejoined, outcome)
	require.True(t, s1.Open())

	// 對局仍對配對可見：下一位真正的對手補進同一場
	s2 := registry.Assign("p2")
	assert.Equal(t, s1.ID(), s2.ID())
	outcome, err = s2.Join("p2", "玩家二")
	require.NoError(t, err)
	assert.Equal(t, game.JoinedPaired, outcome)
}

// TestRegistry_Remove 測試移除對局與玩家索引
func TestRegistry_Remove(t *testing.T) {
	registry := newTestRegistry(t)

	session := registry.Assign("p1")
	_, err := session.Join("p1", "玩家一")
	require.NoError(t, err)

	registry.Remove(session.ID())

	_, exists := registry.Lookup(session.ID())
	assert.False(t, exists)
	_, exists = registry.SessionOf("p1")
	assert.False(t, exists)
}

// TestRegistry_Sweep 測試過期清理
func TestRegistry_Sweep(t *testing.T) {
	t.Run("grace expiry forfeits to remaining player", func(t *testing.T) {
		registry := newTestRegistry(t)
		notifier := &fakeNotifier{}
		registry.SetNotifier(notifier)

		session := registry.Assign("p1")
		_, err := session.Join("p1", "玩家一")
		require.NoError(t, err)
		registry.Assign("p2")
		_, err = session.Join("p2", "玩家二")
		require.NoError(t, err)

		_, err = session.Disconnect("p2")
		require.NoError(t, err)

		// 寬限期內不清理
		registry.Sweep(time.Now())
		_, exists := registry.Lookup(session.ID())
		assert.True(t, exists)

		// 寬限期過後：判定棄權、通知剩餘玩家、移除對局
		registry.Sweep(time.Now().Add(6 * time.Minute))
		_, exists = registry.Lookup(session.ID())
		assert.False(t, exists)
		require.Len(t, notifier.forfeits, 1)
		assert.Equal(t, session.ID(), notifier.forfeits[0])
		assert.Equal(t, "p1", notifier.winners[0])
	})

	t.Run("idle expiry notifies players", func(t *testing.T) {
		registry := newTestRegistry(t)
		notifier := &fakeNotifier{}
		registry.SetNotifier(notifier)

		session := registry.Assign("p1")
		_, err := session.Join("p1", "玩家一")
		require.NoError(t, err)

		registry.Sweep(time.Now().Add(31 * time.Minute))
		_, exists := registry.Lookup(session.ID())
		assert.False(t, exists)
		require.Len(t, notifier.expired, 1)
		assert.Equal(t, session.ID(), notifier.expired[0])
		assert.Empty(t, notifier.forfeits)
	})
}

// TestRegistry_Stats 測試統計
func TestRegistry_Stats(t *testing.T) {
	registry := newTestRegistry(t)

	s1 := registry.Assign("p1")
	_, err := s1.Join("p1", "玩家一")
	require.NoError(t, err)
	registry.Assign("p2")
	_, err = s1.Join("p2", "玩家二")
	require.NoError(t, err)
	registry.Assign("p3")

	stats := registry.Stats()
	assert.Equal(t, 2, stats["total_matches"])
	assert.Equal(t, 3, stats["total_players"])

	byState, ok := stats["by_state"].(map[game.State]int)
	require.True(t, ok)
	assert.Equal(t, 1, byState[game.StatePlacingShips])
	assert.Equal(t, 1, byState[game.StateWaitingForPlayers])
}
