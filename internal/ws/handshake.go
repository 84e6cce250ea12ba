// Package ws 實作伺服器端的 WebSocket 傳輸層：
// 在裸 TCP 連線上完成一次 HTTP Upgrade 握手（RFC 6455），
// 之後以文字幀承載訊息負載。
//
// 本套件與遊戲語義完全無關，只負責把位元組流轉成完整的
// 文字訊息，以及把外送負載封裝成未遮罩的伺服器幀。
package ws

import (
	"bufio"
	"crypto/sha1" // #nosec G505 - RFC 6455 握手規定使用 SHA-1
	"encoding/base64"
	"errors"
	"fmt"
	"net"
	"net/textproto"
	"strings"
)

// acceptGUID RFC 6455 規定的固定 GUID
const acceptGUID = "258EAFA5-E914-47DA-95CA-C5AB0DC85B11"

var (
	// ErrBadHandshake 握手請求缺少必要標頭或格式錯誤
	ErrBadHandshake = errors.New("websocket: bad handshake")

	// ErrMalformedFrame 幀的操作碼或長度不一致
	ErrMalformedFrame = errors.New("websocket: malformed frame")

	// ErrMessageTooLarge 訊息超過大小上限
	ErrMessageTooLarge = errors.New("websocket: message too large")

	// ErrClosed 對端送出關閉幀或連線已關閉
	ErrClosed = errors.New("websocket: connection closed")
)

// AcceptKey 計算握手回應的 Sec-WebSocket-Accept 權杖：
// base64(SHA-1(key ++ GUID))
func AcceptKey(key string) string {
	sum := sha1.Sum([]byte(key + acceptGUID)) // #nosec G401
	return base64.StdEncoding.EncodeToString(sum[:])
}

// Upgrade 在裸連線上執行一次 HTTP Upgrade 握手
//
// 讀取請求行與標頭，要求 Upgrade: websocket 與非空的
// Sec-WebSocket-Key，回應 101 Switching Protocols。
// 握手失敗時回覆 400 並回傳 ErrBadHandshake，
// 該連線不再進行任何協定處理。
func Upgrade(raw net.Conn, maxMessageSize int64) (*Conn, error) {
	br := bufio.NewReader(raw)
	tp := textproto.NewReader(br)

	requestLine, err := tp.ReadLine()
	if err != nil {
		return nil, fmt.Errorf("%w: 讀取請求行失敗: %v", ErrBadHandshake, err)
	}
	if !strings.HasPrefix(requestLine, "GET ") {
		rejectHandshake(raw)
		return nil, fmt.Errorf("%w: 非 GET 請求: %q", ErrBadHandshake, requestLine)
	}

	headers, err := tp.ReadMIMEHeader()
	if err != nil {
		rejectHandshake(raw)
		return nil, fmt.Errorf("%w: 讀取標頭失敗: %v", ErrBadHandshake, err)
	}

	if !headerContains(headers, "Upgrade", "websocket") {
		rejectHandshake(raw)
		return nil, fmt.Errorf("%w: 缺少 Upgrade: websocket", ErrBadHandshake)
	}
	key := strings.TrimSpace(headers.Get("Sec-WebSocket-Key"))
	if key == "" {
		rejectHandshake(raw)
		return nil, fmt.Errorf("%w: 缺少 Sec-WebSocket-Key", ErrBadHandshake)
	}

	response := "HTTP/1.1 101 Switching Protocols\r\n" +
		"Upgrade: websocket\r\n" +
		"Connection: Upgrade\r\n" +
		"Sec-WebSocket-Accept: " + AcceptKey(key) + "\r\n" +
		"\r\n"
	if _, err := raw.Write([]byte(response)); err != nil {
		return nil, fmt.Errorf("%w: 寫入握手回應失敗: %v", ErrBadHandshake, err)
	}

	return newConn(raw, br, maxMessageSize), nil
}

// headerContains 不分大小寫地檢查標頭值（可能以逗號分隔多值）
func headerContains(headers textproto.MIMEHeader, name, token string) bool {
	for _, value := range headers.Values(name) {
		for _, part := range strings.Split(value, ",") {
			if strings.EqualFold(strings.TrimSpace(part), token) {
				return true
			}
		}
	}
	return false
}

// rejectHandshake 盡力回覆 400，錯誤忽略（連線即將關閉）
func rejectHandshake(raw net.Conn) {
	_, _ = raw.Write([]byte("HTTP/1.1 400 Bad Request\r\n\r\n"))
}
