package server_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LudwigRoderich/BatallaNaval/internal/config"
	"github.com/LudwigRoderich/BatallaNaval/internal/game"
	"github.com/LudwigRoderich/BatallaNaval/internal/protocol"
	"github.com/LudwigRoderich/BatallaNaval/internal/server"
)

// startServer 啟動一個綁在隨機埠的測試伺服器
func startServer(t *testing.T) string {
	t.Helper()

	cfg := config.Default()
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.Port = 0 // 由系統指派
	return startServerWith(t, cfg)
}

func startServerWith(t *testing.T, cfg *config.Config) string {
	t.Helper()

	srv := server.New(cfg, testLogger())
	require.NoError(t, srv.Listen())

	go func() { _ = srv.Serve() }()
	t.Cleanup(srv.Shutdown)

	return "ws://" + srv.Addr().String() + "/ws"
}

// dial 以標準 WebSocket 客戶端連上測試伺服器。
// 客戶端走第三方實作，順便驗證手寫的握手與幀編解碼
// 能與既有生態互通。
func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

// sendJSON 送出一則客戶端訊息
func sendJSON(t *testing.T, conn *websocket.Conn, msg map[string]any) {
	t.Helper()
	payload, err := json.Marshal(msg)
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, payload))
}

// expect 讀取下一則伺服器訊息並驗證型別與狀態碼
func expect(t *testing.T, conn *websocket.Conn, wantType string, wantCode int) map[string]any {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	_, payload, err := conn.ReadMessage()
	require.NoError(t, err)

	var msg map[string]any
	require.NoError(t, json.Unmarshal(payload, &msg))
	require.Equal(t, wantType, msg["type"], "payload: %s", payload)
	require.Equal(t, float64(wantCode), msg["code"], "payload: %s", payload)
	return msg
}

// fleetPlacements 一套合法的完整艦隊佈署（線上格式）
func fleetPlacements() []protocol.ShipPlacement {
	row := func(shipType game.ShipType, y, length int) protocol.ShipPlacement {
		cells := make([]game.Coordinate, length)
		for x := range cells {
			cells[x] = game.Coordinate{X: x, Y: y}
		}
		return protocol.ShipPlacement{Type: string(shipType), Cells: cells}
	}
	return []protocol.ShipPlacement{
		row(game.ShipCarrier, 0, 5),
		row(game.ShipBattleship, 2, 4),
		row(game.ShipCruiser, 4, 3),
		row(game.ShipSubmarine, 6, 3),
		row(game.ShipDestroyer, 8, 2),
	}
}

// joinPair 讓兩位玩家完成配對，回傳 matchID
func joinPair(t *testing.T, c1, c2 *websocket.Conn) string {
	t.Helper()

	sendJSON(t, c1, map[string]any{"type": "join", "playerId": "p1", "playerName": "玩家一"})
	waiting := expect(t, c1, "state", protocol.CodeWaitingForOpponent)
	matchID, ok := waiting["matchId"].(string)
	require.True(t, ok)
	require.NotEmpty(t, matchID)
	assert.Equal(t, "WAITING_FOR_PLAYERS", waiting["state"])

	sendJSON(t, c2, map[string]any{"type": "join", "playerId": "p2", "playerName": "玩家二"})
	paired := expect(t, c2, "state", protocol.CodeBothJoined)
	assert.Equal(t, matchID, paired["matchId"])
	assert.Equal(t, "PLACING_SHIPS", paired["state"])

	// 先加入的一方也收到配對通知
	expect(t, c1, "state", protocol.CodeBothJoined)
	return matchID
}

// placeBoth 雙方佈署艦隊並等待對局開始；p1 為先手
func placeBoth(t *testing.T, c1, c2 *websocket.Conn, matchID string) {
	t.Helper()

	sendJSON(t, c1, map[string]any{
		"type": "place_ships", "matchId": matchID, "playerId": "p1", "ships": fleetPlacements(),
	})
	expect(t, c1, "state", protocol.CodeOK)

	sendJSON(t, c2, map[string]any{
		"type": "place_ships", "matchId": matchID, "playerId": "p2", "ships": fleetPlacements(),
	})
	expect(t, c2, "state", protocol.CodeOK)

	started1 := expect(t, c1, "state", protocol.CodeGameStarted)
	assert.Equal(t, "IN_PROGRESS", started1["state"])
	assert.Equal(t, true, started1["yourTurn"])

	started2 := expect(t, c2, "state", protocol.CodeGameStarted)
	assert.Equal(t, false, started2["yourTurn"])
}

// TestServer_MatchFlow 完整流程：配對、佈署、交戰、擊沉、投降結束
func TestServer_MatchFlow(t *testing.T) {
	url := startServer(t)
	c1 := dial(t, url)
	c2 := dial(t, url)

	matchID := joinPair(t, c1, c2)
	placeBoth(t, c1, c2, matchID)

	// p1 命中 p2 的驅逐艦第一格
	sendJSON(t, c1, map[string]any{
		"type": "attack", "matchId": matchID, "playerId": "p1",
		"coordinate": map[string]int{"x": 0, "y": 8},
	})
	result := expect(t, c1, "attack_result", protocol.CodeAttackRegistered)
	assert.Equal(t, "hit", result["outcome"])

	mirror := expect(t, c2, "opponent_move", protocol.CodeAttackRegistered)
	assert.Equal(t, "hit", mirror["outcome"])

	// 回合交替：p2 打一發空格
	sendJSON(t, c2, map[string]any{
		"type": "attack", "matchId": matchID, "playerId": "p2",
		"coordinate": map[string]int{"x": 9, "y": 9},
	})
	result = expect(t, c2, "attack_result", protocol.CodeAttackRegistered)
	assert.Equal(t, "miss", result["outcome"])
	expect(t, c1, "opponent_move", protocol.CodeAttackRegistered)

	// p1 擊沉驅逐艦，結果帶艦種
	sendJSON(t, c1, map[string]any{
		"type": "attack", "matchId": matchID, "playerId": "p1",
		"coordinate": map[string]int{"x": 1, "y": 8},
	})
	result = expect(t, c1, "attack_result", protocol.CodeAttackRegistered)
	assert.Equal(t, "ship_sunk", result["outcome"])
	assert.Equal(t, "DESTROYER", result["shipType"])
	expect(t, c2, "opponent_move", protocol.CodeAttackRegistered)

	// p2 投降，雙方收到對局結束
	sendJSON(t, c2, map[string]any{"type": "surrender", "matchId": matchID, "playerId": "p2"})
	over1 := expect(t, c1, "game_over", protocol.CodeGameOver)
	assert.Equal(t, "p1", over1["winner"])
	assert.Equal(t, "surrender", over1["reason"])

	over2 := expect(t, c2, "game_over", protocol.CodeGameOver)
	assert.Equal(t, "p1", over2["winner"])
}

// TestServer_TurnAndValidation 測試回合與輸入驗證的錯誤碼
func TestServer_TurnAndValidation(t *testing.T) {
	url := startServer(t)
	c1 := dial(t, url)
	c2 := dial(t, url)

	matchID := joinPair(t, c1, c2)

	t.Run("overlapping fleet rejected with 430", func(t *testing.T) {
		placements := fleetPlacements()
		placements[4] = protocol.ShipPlacement{
			Type:  string(game.ShipDestroyer),
			Cells: []game.Coordinate{{X: 0, Y: 0}, {X: 0, Y: 1}},
		}
		sendJSON(t, c1, map[string]any{
			"type": "place_ships", "matchId": matchID, "playerId": "p1", "ships": placements,
		})
		expect(t, c1, "error", protocol.CodeInvalidPlacement)
	})

	placeBoth(t, c1, c2, matchID)

	t.Run("attack out of turn rejected with 442", func(t *testing.T) {
		sendJSON(t, c2, map[string]any{
			"type": "attack", "matchId": matchID, "playerId": "p2",
			"coordinate": map[string]int{"x": 0, "y": 0},
		})
		expect(t, c2, "error", protocol.CodeNotYourTurn)
	})

	t.Run("attack out of bounds rejected with 440", func(t *testing.T) {
		sendJSON(t, c1, map[string]any{
			"type": "attack", "matchId": matchID, "playerId": "p1",
			"coordinate": map[string]int{"x": 10, "y": 0},
		})
		expect(t, c1, "error", protocol.CodeInvalidCoordinate)
	})

	t.Run("unknown match rejected with 420", func(t *testing.T) {
		sendJSON(t, c1, map[string]any{
			"type": "attack", "matchId": "no-such-match", "playerId": "p1",
			"coordinate": map[string]int{"x": 0, "y": 0},
		})
		expect(t, c1, "error", protocol.CodeMatchNotFound)
	})

	t.Run("foreign player rejected with 410", func(t *testing.T) {
		sendJSON(t, c1, map[string]any{
			"type": "attack", "matchId": matchID, "playerId": "ghost",
			"coordinate": map[string]int{"x": 0, "y": 0},
		})
		expect(t, c1, "error", protocol.CodePlayerNotFound)
	})

	t.Run("malformed message rejected with 400", func(t *testing.T) {
		require.NoError(t, c1.WriteMessage(websocket.TextMessage, []byte("not json")))
		expect(t, c1, "error", protocol.CodeBadRequest)
	})

	t.Run("app level ping answered", func(t *testing.T) {
		sendJSON(t, c1, map[string]any{"type": "ping"})
		expect(t, c1, "pong", protocol.CodeOK)
	})
}

// TestServer_Reconnect 測試斷線通知與寬限期內重連
func TestServer_Reconnect(t *testing.T) {
	url := startServer(t)
	c1 := dial(t, url)
	c2 := dial(t, url)

	matchID := joinPair(t, c1, c2)
	placeBoth(t, c1, c2, matchID)

	// p1 的連線無預警中斷
	require.NoError(t, c1.Close())

	// 對手收到 450 斷線通知，對局保持存活
	gone := expect(t, c2, "state", protocol.CodeOpponentDisconnected)
	assert.Equal(t, "IN_PROGRESS", gone["state"])

	// p1 以 (matchId, playerId) 重連，回到原本的對局與回合
	c1b := dial(t, url)
	sendJSON(t, c1b, map[string]any{
		"type": "join", "playerId": "p1", "playerName": "玩家一", "matchId": matchID,
	})
	rejoined := expect(t, c1b, "state", protocol.CodeOK)
	assert.Equal(t, "IN_PROGRESS", rejoined["state"])
	assert.Equal(t, true, rejoined["yourTurn"])

	// 重連後立即可行動
	sendJSON(t, c1b, map[string]any{
		"type": "attack", "matchId": matchID, "playerId": "p1",
		"coordinate": map[string]int{"x": 9, "y": 9},
	})
	expect(t, c1b, "attack_result", protocol.CodeAttackRegistered)
	expect(t, c2, "opponent_move", protocol.CodeAttackRegistered)
}

// TestServer_ReconnectValidation 測試重連的能力驗證
func TestServer_ReconnectValidation(t *testing.T) {
	url := startServer(t)
	c1 := dial(t, url)
	c2 := dial(t, url)
	matchID := joinPair(t, c1, c2)

	// 不存在的對局
	c3 := dial(t, url)
	sendJSON(t, c3, map[string]any{
		"type": "join", "playerId": "p1", "playerName": "玩家一", "matchId": "no-such-match",
	})
	expect(t, c3, "error", protocol.CodeMatchNotFound)

	// 第三位玩家指名已滿的對局：對其而言沒有可加入的對局
	sendJSON(t, c3, map[string]any{
		"type": "join", "playerId": "intruder", "playerName": "第三者", "matchId": matchID,
	})
	expect(t, c3, "error", protocol.CodeMatchNotFound)
}

// TestServer_JoinRetryStaysMatched 測試等待中玩家重送 join 後仍能被配對
func TestServer_JoinRetryStaysMatched(t *testing.T) {
	url := startServer(t)
	c1 := dial(t, url)

	sendJSON(t, c1, map[string]any{"type": "join", "playerId": "p1", "playerName": "玩家一"})
	waiting := expect(t, c1, "state", protocol.CodeWaitingForOpponent)
	matchID := waiting["matchId"].(string)

	// 客戶端重試同一則 join：走重連路徑，對局留在配對隊列
	sendJSON(t, c1, map[string]any{"type": "join", "playerId": "p1", "playerName": "玩家一"})
	retried := expect(t, c1, "state", protocol.CodeOK)
	assert.Equal(t, matchID, retried["matchId"])
	assert.Equal(t, "WAITING_FOR_PLAYERS", retried["state"])

	// 下一位玩家補進同一場對局
	c2 := dial(t, url)
	sendJSON(t, c2, map[string]any{"type": "join", "playerId": "p2", "playerName": "玩家二"})
	paired := expect(t, c2, "state", protocol.CodeBothJoined)
	assert.Equal(t, matchID, paired["matchId"])
	expect(t, c1, "state", protocol.CodeBothJoined)
}

// TestServer_ReconnectAfterGraceExpired 測試寬限期過後的重連
func TestServer_ReconnectAfterGraceExpired(t *testing.T) {
	cfg := config.Default()
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.Port = 0
	cfg.Game.GraceSeconds = 1
	cfg.Game.SweepIntervalSecond = 1
	url := startServerWith(t, cfg)

	c1 := dial(t, url)
	c2 := dial(t, url)
	matchID := joinPair(t, c1, c2)
	placeBoth(t, c1, c2, matchID)

	require.NoError(t, c1.Close())
	expect(t, c2, "state", protocol.CodeOpponentDisconnected)

	// 寬限期過後掃描器判定棄權：在線的一方獲勝
	forfeit := expect(t, c2, "game_over", protocol.CodeGameOver)
	assert.Equal(t, "p2", forfeit["winner"])
	assert.Equal(t, "opponent_forfeit", forfeit["reason"])

	// 對局已被移除，遲到的重連找不到對局
	time.Sleep(500 * time.Millisecond)
	c1b := dial(t, url)
	sendJSON(t, c1b, map[string]any{
		"type": "join", "playerId": "p1", "playerName": "玩家一", "matchId": matchID,
	})
	expect(t, c1b, "error", protocol.CodeMatchNotFound)
}

// TestServer_ThirdPlayerStartsNewMatch 測試配對：滿局不收第三人
func TestServer_ThirdPlayerStartsNewMatch(t *testing.T) {
	url := startServer(t)
	c1 := dial(t, url)
	c2 := dial(t, url)
	matchID := joinPair(t, c1, c2)

	// 不指名對局的第三位玩家開新局
	c3 := dial(t, url)
	sendJSON(t, c3, map[string]any{"type": "join", "playerId": "p3", "playerName": "玩家三"})
	waiting := expect(t, c3, "state", protocol.CodeWaitingForOpponent)
	assert.NotEqual(t, matchID, waiting["matchId"])
}
