// Package server 組裝對局伺服器：對局註冊表、連線調度器，
// 以及 TCP 監聽迴圈。傳輸細節在 ws 套件，對局規則在 game 套件，
// 這裡只做兩者之間的路由與生命週期管理。
package server

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/LudwigRoderich/BatallaNaval/internal/game"
)

// EvictNotifier 註冊表清理對局時通知仍在線玩家的出口。
// 由連線調度器實作，註冊表本身不持有任何連線。
type EvictNotifier interface {
	// NotifyForfeit 寬限期過期：對局判定棄權，remaining 為勝者
	NotifyForfeit(matchID, remaining string, totalMoves int)
	// NotifyExpired 閒置過期：通知所有仍在線的玩家
	NotifyExpired(matchID string, playerIDs []string)
}

// Registry 對局註冊表
//
// 負責配對（FIFO：永遠先補滿最早的未滿對局）、以
// (matchId, playerId) 查找驗證，以及週期性清理過期對局。
// 註冊表鎖只保護兩張索引表；對局內部狀態由 Session 自己的鎖保護。
type Registry struct {
	sessions      map[string]*game.Session // matchID -> Session
	playerSession map[string]string        // playerID -> matchID
	openQueue     []string                 // 等待中的對局，依建立順序
	mu            sync.RWMutex

	boardSize   int
	idleTimeout time.Duration
	graceWindow time.Duration

	notifier EvictNotifier
	logger   *slog.Logger
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// NewRegistry 建立註冊表並啟動清理 goroutine
func NewRegistry(boardSize int, idleTimeout, graceWindow, sweepInterval time.Duration, logger *slog.Logger) *Registry {
	r := &Registry{
		sessions:      make(map[string]*game.Session),
		playerSession: make(map[string]string),
		boardSize:     boardSize,
		idleTimeout:   idleTimeout,
		graceWindow:   graceWindow,
		logger:        logger,
		stopCh:        make(chan struct{}),
	}

	r.wg.Add(1)
	go r.sweepLoop(sweepInterval)

	return r
}

// SetNotifier 掛上清理通知出口。
// 調度器依賴註冊表，為避免建構循環，通知器在啟動時補掛。
func (r *Registry) SetNotifier(n EvictNotifier) {
	r.mu.Lock()
	r.notifier = n
	r.mu.Unlock()
}

// Assign 為玩家指派對局：補滿最早的未滿對局，否則建立新對局
func (r *Registry) Assign(playerID string) *game.Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	// 先補滿最早建立的未滿對局。只窺視不出隊：
	// 對局在第二位玩家完成 Join 前都要留在隊列裡，
	// 等待中玩家重送 join 才不會把自己的對局從配對中藏掉。
	// 已滿或已移除的隊首在下次指派時懶惰丟棄。
	for len(r.openQueue) > 0 {
		id := r.openQueue[0]
		session, exists := r.sessions[id]
		if !exists || !session.Open() {
			r.openQueue = r.openQueue[1:]
			continue
		}
		r.playerSession[playerID] = id
		return session
	}

	matchID := uuid.NewString()
	session := game.NewSession(matchID, r.boardSize)
	r.sessions[matchID] = session
	r.openQueue = append(r.openQueue, matchID)
	r.playerSession[playerID] = matchID

	r.logger.Info("對局已建立",
		"match_id", matchID,
		"player_id", playerID)

	return session
}

// Lookup 以 matchID 查找對局
func (r *Registry) Lookup(matchID string) (*game.Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	session, exists := r.sessions[matchID]
	return session, exists
}

// Rebind 重連時重建玩家 → 對局的索引
func (r *Registry) Rebind(playerID, matchID string) {
	r.mu.Lock()
	r.playerSession[playerID] = matchID
	r.mu.Unlock()
}

// SessionOf 查找玩家目前所在的對局
func (r *Registry) SessionOf(playerID string) (*game.Session, bool) {
	r.mu.RLock()
	matchID, exists := r.playerSession[playerID]
	if !exists {
		r.mu.RUnlock()
		return nil, false
	}
	session, exists := r.sessions[matchID]
	r.mu.RUnlock()
	return session, exists
}

// Remove 移除對局與其玩家索引
func (r *Registry) Remove(matchID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.removeLocked(matchID)
}

func (r *Registry) removeLocked(matchID string) {
	session, exists := r.sessions[matchID]
	if !exists {
		return
	}
	for _, playerID := range session.PlayerIDs() {
		if r.playerSession[playerID] == matchID {
			delete(r.playerSession, playerID)
		}
	}
	delete(r.sessions, matchID)

	r.logger.Info("對局已移除", "match_id", matchID)
}

// sweepLoop 週期性清理過期對局
func (r *Registry) sweepLoop(interval time.Duration) {
	defer r.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.sweep(time.Now())
		case <-r.stopCh:
			return
		}
	}
}

// Sweep 執行一次清理（公開方法供測試使用）
func (r *Registry) Sweep(now time.Time) {
	r.sweep(now)
}

// sweep 檢查所有對局並移除過期者
//
// 寬限期過期的進行中對局先判定棄權再移除：剩餘玩家獲勝，
// 並收到 game_over 通知。閒置過期的對局直接移除，
// 仍在線的玩家收到對手斷線的狀態通知。
func (r *Registry) sweep(now time.Time) {
	r.mu.RLock()
	candidates := make([]*game.Session, 0, len(r.sessions))
	for _, session := range r.sessions {
		candidates = append(candidates, session)
	}
	notifier := r.notifier
	r.mu.RUnlock()

	for _, session := range candidates {
		reason, remaining := session.CheckExpiry(now, r.idleTimeout, r.graceWindow)
		if reason == game.NotExpired {
			continue
		}

		switch reason {
		case game.ExpiredGrace:
			if remaining != "" && notifier != nil {
				notifier.NotifyForfeit(session.ID(), remaining, session.MoveCount())
			}
			r.logger.Info("對局因重連寬限期過期而回收",
				"match_id", session.ID(),
				"winner", remaining)
		case game.ExpiredIdle:
			if notifier != nil {
				notifier.NotifyExpired(session.ID(), session.PlayerIDs())
			}
			r.logger.Info("對局因閒置而回收", "match_id", session.ID())
		}

		r.mu.Lock()
		r.removeLocked(session.ID())
		r.mu.Unlock()
	}
}

// Stop 停止清理 goroutine
func (r *Registry) Stop() {
	close(r.stopCh)
	r.wg.Wait()
	r.logger.Info("對局註冊表已停止")
}

// Stats 獲取統計資訊
func (r *Registry) Stats() map[string]any {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stateCount := make(map[game.State]int)
	for _, session := range r.sessions {
		stateCount[session.State()]++
	}

	return map[string]any{
		"total_matches": len(r.sessions),
		"total_players": len(r.playerSession),
		"by_state":      stateCount,
	}
}
