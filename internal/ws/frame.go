package ws

import (
	"encoding/binary"
	"fmt"
	"io"
)

// WebSocket 操作碼（RFC 6455 §5.2）
const (
	opContinuation = 0x0
	opText         = 0x1
	opBinary       = 0x2
	opClose        = 0x8
	opPing         = 0x9
	opPong         = 0xA
)

const (
	finBit  = 0x80
	rsvBits = 0x70
	maskBit = 0x80

	// maxControlPayload 控制幀負載上限（RFC 6455 §5.5）
	maxControlPayload = 125
)

// closeNormal / closeProtocolError / closeTooLarge 關閉狀態碼
const (
	closeNormal        = 1000
	closeProtocolError = 1002
	closeTooLarge      = 1009
)

// ReadMessage 讀取下一則完整的文字訊息
//
// 幀處理規則：
//   - 文字幀依 FIN 位元與後續的延續幀重組為單一邏輯訊息
//   - ping 幀原負載回覆 pong，pong 幀忽略，兩者皆不中斷重組
//   - 關閉幀回以關閉幀並回傳 ErrClosed
//   - 二進位幀、保留操作碼、RSV 位元、超長控制幀、
//     不成對的延續幀一律視為協定錯誤：回覆 1002 關閉幀、
//     關閉連線並回傳 ErrMalformedFrame
//
// 負載長度支援 7/16/64 位元三種編碼；帶遮罩位元的幀
// 以其 4 位元組遮罩鍵還原。
func (c *Conn) ReadMessage() (string, error) {
	var message []byte
	fragmented := false

	for {
		fin, opcode, payload, err := c.readFrame()
		if err != nil {
			return "", err
		}

		switch opcode {
		case opText:
			if fragmented {
				return "", c.failProtocol("重組未完成時收到新的文字幀")
			}
			if fin {
				return string(payload), nil
			}
			message = append(message, payload...)
			fragmented = true

		case opContinuation:
			if !fragmented {
				return "", c.failProtocol("沒有起始幀的延續幀")
			}
			message = append(message, payload...)
			if c.maxMessageSize > 0 && int64(len(message)) > c.maxMessageSize {
				_ = c.WriteClose(closeTooLarge, "message too large")
				return "", ErrMessageTooLarge
			}
			if fin {
				return string(message), nil
			}

		case opPing:
			if err := c.writeFrame(opPong, payload); err != nil {
				return "", err
			}

		case opPong:
			// 忽略

		case opClose:
			_ = c.writeFrame(opClose, payload)
			_ = c.Close()
			return "", ErrClosed

		case opBinary:
			return "", c.failProtocol("不支援二進位幀")

		default:
			return "", c.failProtocol(fmt.Sprintf("未知操作碼 0x%X", opcode))
		}
	}
}

// readFrame 讀取並解碼單一幀
func (c *Conn) readFrame() (fin bool, opcode byte, payload []byte, err error) {
	var header [2]byte
	if _, err := io.ReadFull(c.br, header[:]); err != nil {
		return false, 0, nil, fmt.Errorf("%w: %v", ErrClosed, err)
	}

	fin = header[0]&finBit != 0
	opcode = header[0] & 0x0F
	if header[0]&rsvBits != 0 {
		return false, 0, nil, c.failProtocol("RSV 位元必須為 0")
	}

	masked := header[1]&maskBit != 0
	length := int64(header[1] & 0x7F)

	switch length {
	case 126:
		var ext [2]byte
		if _, err := io.ReadFull(c.br, ext[:]); err != nil {
			return false, 0, nil, fmt.Errorf("%w: %v", ErrClosed, err)
		}
		length = int64(binary.BigEndian.Uint16(ext[:]))
	case 127:
		var ext [8]byte
		if _, err := io.ReadFull(c.br, ext[:]); err != nil {
			return false, 0, nil, fmt.Errorf("%w: %v", ErrClosed, err)
		}
		v := binary.BigEndian.Uint64(ext[:])
		if v > 1<<62 {
			return false, 0, nil, c.failProtocol("負載長度溢位")
		}
		length = int64(v)
	}

	if opcode >= opClose {
		// 控制幀不可分段、負載不可超過 125 位元組
		if !fin || length > maxControlPayload {
			return false, 0, nil, c.failProtocol("控制幀長度或分段不合法")
		}
	}
	if c.maxMessageSize > 0 && length > c.maxMessageSize {
		_ = c.WriteClose(closeTooLarge, "message too large")
		return false, 0, nil, ErrMessageTooLarge
	}

	var maskKey [4]byte
	if masked {
		if _, err := io.ReadFull(c.br, maskKey[:]); err != nil {
			return false, 0, nil, fmt.Errorf("%w: %v", ErrClosed, err)
		}
	}

	payload = make([]byte, length)
	if _, err := io.ReadFull(c.br, payload); err != nil {
		return false, 0, nil, fmt.Errorf("%w: %v", ErrClosed, err)
	}
	if masked {
		for i := range payload {
			payload[i] ^= maskKey[i%4]
		}
	}

	return fin, opcode, payload, nil
}

// failProtocol 以 1002 關閉連線並回傳 ErrMalformedFrame
func (c *Conn) failProtocol(reason string) error {
	_ = c.WriteClose(closeProtocolError, reason)
	return fmt.Errorf("%w: %s", ErrMalformedFrame, reason)
}

// WriteMessage 以單一未遮罩文字幀送出負載。
// 寫入持有 writeMu，與其他寫入者互斥。
func (c *Conn) WriteMessage(payload []byte) error {
	return c.writeFrame(opText, payload)
}

// writeFrame 封裝並送出一個伺服器幀（FIN 永遠為 1，不遮罩）
func (c *Conn) writeFrame(opcode byte, payload []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	header := make([]byte, 0, 10)
	header = append(header, finBit|opcode)

	switch n := len(payload); {
	case n <= 125:
		header = append(header, byte(n))
	case n <= 0xFFFF:
		header = append(header, 126, byte(n>>8), byte(n))
	default:
		header = append(header, 127)
		var ext [8]byte
		binary.BigEndian.PutUint64(ext[:], uint64(n))
		header = append(header, ext[:]...)
	}

	if _, err := c.raw.Write(header); err != nil {
		return fmt.Errorf("%w: %v", ErrClosed, err)
	}
	if len(payload) > 0 {
		if _, err := c.raw.Write(payload); err != nil {
			return fmt.Errorf("%w: %v", ErrClosed, err)
		}
	}
	return nil
}
