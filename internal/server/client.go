package server

import (
	"log/slog"
	"sync"

	"github.com/LudwigRoderich/BatallaNaval/internal/protocol"
	"github.com/LudwigRoderich/BatallaNaval/internal/ws"
)

// client 一條客戶端連線與其身分綁定
//
// 連線建立時尚無身分；第一個成功的 join 把 playerID 與
// matchID 綁上。讀取由單一 goroutine 進行，身分欄位另以
// 小鎖保護，因為清理通知可能從掃描器 goroutine 讀取。
type client struct {
	conn   *ws.Conn
	logger *slog.Logger

	mu       sync.Mutex
	playerID string
	matchID  string
}

func newClient(conn *ws.Conn, logger *slog.Logger) *client {
	return &client{conn: conn, logger: logger}
}

// bind 綁定玩家身分
func (c *client) bind(playerID, matchID string) {
	c.mu.Lock()
	c.playerID = playerID
	c.matchID = matchID
	c.mu.Unlock()
}

// identity 回傳已綁定的身分（未綁定時為空字串）
func (c *client) identity() (playerID, matchID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.playerID, c.matchID
}

// send 序列化並送出一則伺服器訊息。
// 寫入失敗只記錄：斷線由讀取端統一收尾。
func (c *client) send(msg any) {
	payload, err := protocol.Encode(msg)
	if err != nil {
		c.logger.Error("序列化訊息失敗", "error", err)
		return
	}
	if err := c.conn.WriteMessage(payload); err != nil {
		c.logger.Debug("寫入訊息失敗",
			"remote", c.conn.RemoteAddr(),
			"error", err)
	}
}
