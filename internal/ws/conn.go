package ws

import (
	"bufio"
	"net"
	"sync"
	"time"
)

// Conn 一條已完成握手的 WebSocket 連線
//
// 讀取端供單一 goroutine 使用；寫入端以 writeMu 序列化，
// 廣播與回覆不會交錯位元組。
type Conn struct {
	raw net.Conn
	br  *bufio.Reader

	writeMu sync.Mutex
	once    sync.Once

	maxMessageSize int64
}

func newConn(raw net.Conn, br *bufio.Reader, maxMessageSize int64) *Conn {
	return &Conn{raw: raw, br: br, maxMessageSize: maxMessageSize}
}

// RemoteAddr 回傳對端位址
func (c *Conn) RemoteAddr() net.Addr {
	return c.raw.RemoteAddr()
}

// SetReadDeadline 設定下一次讀取的期限
func (c *Conn) SetReadDeadline(t time.Time) error {
	return c.raw.SetReadDeadline(t)
}

// Close 關閉底層連線；可重複呼叫。
// 關閉會讓阻塞中的讀取端返回錯誤，由上層轉為斷線事件。
func (c *Conn) Close() error {
	var err error
	c.once.Do(func() {
		err = c.raw.Close()
	})
	return err
}

// WriteClose 盡力送出關閉幀後關閉連線
func (c *Conn) WriteClose(code uint16, reason string) error {
	payload := make([]byte, 2+len(reason))
	payload[0] = byte(code >> 8)
	payload[1] = byte(code)
	copy(payload[2:], reason)
	_ = c.writeFrame(opClose, payload)
	return c.Close()
}
