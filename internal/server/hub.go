package server

import (
	"log/slog"
	"sync"

	"github.com/LudwigRoderich/BatallaNaval/internal/game"
	"github.com/LudwigRoderich/BatallaNaval/internal/protocol"
)

// Hub 連線調度器
//
// 維護 playerID → 連線的索引，把解碼後的客戶端訊息路由到
// 對應的對局操作，並把結果回覆給發話者、鏡像給對手。
// 連線索引用 RWMutex 保護：廣播多（讀鎖）、註冊少（寫鎖）。
type Hub struct {
	registry *Registry
	logger   *slog.Logger

	conns map[string]*client // playerID -> client
	mu    sync.RWMutex
}

// NewHub 建立連線調度器
func NewHub(registry *Registry, logger *slog.Logger) *Hub {
	return &Hub{
		registry: registry,
		logger:   logger,
		conns:    make(map[string]*client),
	}
}

// register 把玩家綁定到連線；既有連線（重連時的殘留）先關閉
func (h *Hub) register(playerID string, c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if old, exists := h.conns[playerID]; exists && old != c {
		_ = old.conn.Close()
	}
	h.conns[playerID] = c
}

// unregister 解除玩家與連線的綁定。
// 僅在索引仍指向同一條連線時移除，避免重連後的舊連線
// 收尾時誤刪新連線。
func (h *Hub) unregister(playerID string, c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if actual, exists := h.conns[playerID]; exists && actual == c {
		delete(h.conns, playerID)
	}
}

// sendTo 把訊息送給指定玩家；玩家離線時靜默丟棄
func (h *Hub) sendTo(playerID string, msg any) {
	h.mu.RLock()
	c, exists := h.conns[playerID]
	h.mu.RUnlock()
	if !exists {
		return
	}
	c.send(msg)
}

// broadcast 把訊息送給對局的所有在線玩家
func (h *Hub) broadcast(session *game.Session, msg any) {
	for _, playerID := range session.PlayerIDs() {
		h.sendTo(playerID, msg)
	}
}

// NotifyForfeit 寬限期過期的棄權判定：剩餘玩家收到對局結束
func (h *Hub) NotifyForfeit(matchID, remaining string, totalMoves int) {
	h.sendTo(remaining, protocol.NewGameOver(matchID, remaining, "opponent_forfeit", totalMoves))
}

// NotifyExpired 閒置過期：仍在線的玩家收到對手斷線通知
func (h *Hub) NotifyExpired(matchID string, playerIDs []string) {
	for _, playerID := range playerIDs {
		h.sendTo(playerID, protocol.NewState(
			protocol.CodeOpponentDisconnected, matchID, playerID,
			"對局因閒置逾時而關閉", game.StateFinished))
	}
}

// Stop 關閉所有連線
func (h *Hub) Stop() {
	h.mu.Lock()
	for playerID, c := range h.conns {
		_ = c.conn.WriteClose(1001, "server shutdown")
		delete(h.conns, playerID)
	}
	h.mu.Unlock()

	h.logger.Info("連線調度器已停止")
}

// ---- 訊息路由 ----

// dispatch 依訊息型別路由到對應的處理函式
//
// 每則訊息獨立以 recover 包覆：處理過程的 panic 轉為 500
// 錯誤回覆，連線與其他對局不受影響。
func (h *Hub) dispatch(c *client, msg protocol.ClientMessage) {
	defer func() {
		if r := recover(); r != nil {
			h.logger.Error("處理訊息時發生 panic",
				"panic", r,
				"remote", c.conn.RemoteAddr())
			c.send(protocol.NewError(protocol.CodeInternalError, ""))
		}
	}()

	switch m := msg.(type) {
	case protocol.Join:
		h.handleJoin(c, m)
	case protocol.PlaceShips:
		h.handlePlaceShips(c, m)
	case protocol.Attack:
		h.handleAttack(c, m)
	case protocol.Disconnect:
		h.handleDisconnect(c, m)
	case protocol.Surrender:
		h.handleSurrender(c, m)
	case protocol.Ping:
		c.send(protocol.NewPong())
	}
}

// handleJoin 處理加入與重連
//
// 帶 matchId 的 join 指名既有對局：matchId 與 playerId 的配對
// 即為重連憑證。不帶 matchId 時走配對流程。
func (h *Hub) handleJoin(c *client, m protocol.Join) {
	var session *game.Session

	if m.MatchID != "" {
		existing, exists := h.registry.Lookup(m.MatchID)
		if !exists {
			c.send(protocol.NewError(protocol.CodeMatchNotFound, "對局不存在: "+m.MatchID))
			return
		}
		// 非成員指名已滿的對局：對這位玩家而言沒有可加入的對局
		if !existing.HasPlayer(m.PlayerID) && !existing.Open() {
			c.send(protocol.NewError(protocol.CodeMatchNotFound, "對局已滿，無法加入: "+m.MatchID))
			return
		}
		session = existing
	} else {
		session = h.registry.Assign(m.PlayerID)
	}

	outcome, err := session.Join(m.PlayerID, m.PlayerName)
	if err != nil {
		c.send(protocol.NewError(protocol.CodeFor(err), err.Error()))
		return
	}

	c.bind(m.PlayerID, session.ID())
	h.register(m.PlayerID, c)
	h.registry.Rebind(m.PlayerID, session.ID())

	switch outcome {
	case game.JoinedWaiting:
		c.send(protocol.NewState(
			protocol.CodeWaitingForOpponent, session.ID(), m.PlayerID,
			"等待對手加入", session.State()))

		h.logger.Info("玩家加入，等待對手",
			"match_id", session.ID(),
			"player_id", m.PlayerID)

	case game.JoinedPaired:
		// 雙方到齊，對局進入佈署階段
		for _, playerID := range session.PlayerIDs() {
			h.sendTo(playerID, protocol.NewState(
				protocol.CodeBothJoined, session.ID(), playerID,
				"雙方玩家到齊，請佈署船艦", session.State()))
		}

		h.logger.Info("對局配對完成",
			"match_id", session.ID(),
			"player_id", m.PlayerID)

	case game.Rejoined:
		yourTurn := session.Turn() == m.PlayerID
		c.send(protocol.NewState(
			protocol.CodeOK, session.ID(), m.PlayerID,
			"重連成功", session.State()).WithTurn(yourTurn))

		h.logger.Info("玩家重連",
			"match_id", session.ID(),
			"player_id", m.PlayerID)
	}
}

// handlePlaceShips 處理艦隊佈署
func (h *Hub) handlePlaceShips(c *client, m protocol.PlaceShips) {
	session, ok := h.lookup(c, m.MatchID, m.PlayerID)
	if !ok {
		return
	}

	ships, err := protocol.BuildShips(m.Ships)
	if err != nil {
		c.send(protocol.NewError(protocol.PlacementCode(err), err.Error()))
		return
	}

	started, err := session.PlaceShips(m.PlayerID, ships)
	if err != nil {
		c.send(protocol.NewError(protocol.PlacementCode(err), err.Error()))
		return
	}

	c.send(protocol.NewState(
		protocol.CodeOK, session.ID(), m.PlayerID,
		"艦隊佈署完成", session.State()))

	if started {
		// 雙方就緒，對局開始；先手為第一位加入者
		for _, playerID := range session.PlayerIDs() {
			yourTurn := session.Turn() == playerID
			h.sendTo(playerID, protocol.NewState(
				protocol.CodeGameStarted, session.ID(), playerID,
				"對局開始", session.State()).WithTurn(yourTurn))
		}

		h.logger.Info("對局開始",
			"match_id", session.ID(),
			"first_turn", session.Turn())
	}
}

// handleAttack 處理攻擊
func (h *Hub) handleAttack(c *client, m protocol.Attack) {
	session, ok := h.lookup(c, m.MatchID, m.PlayerID)
	if !ok {
		return
	}

	report, err := session.Attack(m.PlayerID, m.Coordinate)
	if err != nil {
		c.send(protocol.NewError(protocol.CodeFor(err), err.Error()))
		return
	}

	c.send(protocol.NewAttackResult(session.ID(), report))
	h.sendTo(report.DefenderID, protocol.NewOpponentMove(session.ID(), report))

	if report.Finished {
		h.broadcast(session, protocol.NewGameOver(
			session.ID(), report.Winner, "all_ships_sunk", report.TotalMoves))

		h.logger.Info("對局結束",
			"match_id", session.ID(),
			"winner", report.Winner,
			"total_moves", report.TotalMoves)
	}
}

// handleDisconnect 處理主動離線通知：標記斷線、通知對手，
// 對局保留到寬限期結束
func (h *Hub) handleDisconnect(c *client, m protocol.Disconnect) {
	session, ok := h.lookup(c, m.MatchID, m.PlayerID)
	if !ok {
		return
	}

	opponentID, err := session.Disconnect(m.PlayerID)
	if err != nil {
		c.send(protocol.NewError(protocol.CodeFor(err), err.Error()))
		return
	}

	c.send(protocol.NewState(
		protocol.CodeOK, session.ID(), m.PlayerID,
		"已登記離線", session.State()))
	h.notifyOpponentGone(session, opponentID)
}

// handleSurrender 處理投降：對局立即結束，勝者為對手
func (h *Hub) handleSurrender(c *client, m protocol.Surrender) {
	session, ok := h.lookup(c, m.MatchID, m.PlayerID)
	if !ok {
		return
	}

	winner, totalMoves, err := session.Surrender(m.PlayerID)
	if err != nil {
		c.send(protocol.NewError(protocol.CodeFor(err), err.Error()))
		return
	}

	h.broadcast(session, protocol.NewGameOver(session.ID(), winner, "surrender", totalMoves))

	h.logger.Info("玩家投降",
		"match_id", session.ID(),
		"player_id", m.PlayerID,
		"winner", winner)
}

// lookup 驗證 (matchId, playerId) 配對並取得對局。
// 對局不存在回 420，玩家不屬於該局回 410。
func (h *Hub) lookup(c *client, matchID, playerID string) (*game.Session, bool) {
	session, exists := h.registry.Lookup(matchID)
	if !exists {
		c.send(protocol.NewError(protocol.CodeMatchNotFound, "對局不存在: "+matchID))
		return nil, false
	}
	if !session.HasPlayer(playerID) {
		c.send(protocol.NewError(protocol.CodePlayerNotFound, "玩家不屬於此對局: "+playerID))
		return nil, false
	}
	return session, true
}

// connectionLost 連線層斷線（讀取錯誤或對端關閉）的收尾：
// 玩家標記為斷線、對手收到 450 通知，對局等待寬限期內的重連
func (h *Hub) connectionLost(c *client) {
	playerID, matchID := c.identity()
	if playerID == "" {
		return
	}
	h.unregister(playerID, c)

	session, exists := h.registry.Lookup(matchID)
	if !exists {
		return
	}
	opponentID, err := session.Disconnect(playerID)
	if err != nil {
		return
	}

	h.logger.Info("玩家斷線",
		"match_id", matchID,
		"player_id", playerID)

	h.notifyOpponentGone(session, opponentID)
}

// notifyOpponentGone 通知仍在線的對手：對方已斷線
func (h *Hub) notifyOpponentGone(session *game.Session, opponentID string) {
	if opponentID == "" || !session.PlayerConnected(opponentID) {
		return
	}
	h.sendTo(opponentID, protocol.NewState(
		protocol.CodeOpponentDisconnected, session.ID(), opponentID,
		"對手已斷線，等待重連", session.State()))
}

// ServeConn 接手一條已接受的 TCP 連線：
// 完成 WebSocket 握手後進入讀取迴圈，直到連線結束
func (h *Hub) ServeConn(c *client) {
	defer func() {
		h.connectionLost(c)
		_ = c.conn.Close()
	}()

	h.logger.Debug("連線建立", "remote", c.conn.RemoteAddr())

	for {
		payload, err := c.conn.ReadMessage()
		if err != nil {
			h.logger.Debug("連線結束",
				"remote", c.conn.RemoteAddr(),
				"reason", err)
			return
		}

		msg, err := protocol.Decode([]byte(payload))
		if err != nil {
			c.send(protocol.NewError(protocol.CodeFor(err), err.Error()))
			continue
		}

		h.dispatch(c, msg)
	}
}
