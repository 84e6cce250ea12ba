package protocol

import (
	"encoding/json"
	"time"

	"github.com/LudwigRoderich/BatallaNaval/internal/game"
)

// 訊息型別標籤
const (
	// 客戶端 → 伺服器
	TypeJoin       = "join"
	TypePlaceShips = "place_ships"
	TypeAttack     = "attack"
	TypeDisconnect = "disconnect"
	TypeSurrender  = "surrender"
	TypePing       = "ping"

	// 伺服器 → 客戶端
	TypeState        = "state"
	TypeAttackResult = "attack_result"
	TypeOpponentMove = "opponent_move"
	TypeGameOver     = "game_over"
	TypeError        = "error"
	TypePong         = "pong"
)

// ClientMessage 客戶端訊息的封閉變體集合。
// 解碼只會產出下列具名型別之一，對局邏輯依型別窮舉處理。
type ClientMessage interface {
	isClientMessage()
}

// Join 加入對局；帶 MatchID 時視為重連請求
type Join struct {
	PlayerID   string
	PlayerName string
	MatchID    string // 選填，重連時必填
}

// PlaceShips 提交完整艦隊佈署
type PlaceShips struct {
	MatchID  string
	PlayerID string
	Ships    []ShipPlacement
}

// ShipPlacement 線上格式的單艘船佈署
type ShipPlacement struct {
	Type  string            `json:"type"`
	Cells []game.Coordinate `json:"cells"`
}

// Attack 攻擊指定座標
type Attack struct {
	MatchID    string
	PlayerID   string
	Coordinate game.Coordinate
}

// Disconnect 主動告知離線
type Disconnect struct {
	MatchID  string
	PlayerID string
}

// Surrender 投降
type Surrender struct {
	MatchID  string
	PlayerID string
}

// Ping 應用層心跳
type Ping struct{}

func (Join) isClientMessage()       {}
func (PlaceShips) isClientMessage() {}
func (Attack) isClientMessage()     {}
func (Disconnect) isClientMessage() {}
func (Surrender) isClientMessage()  {}
func (Ping) isClientMessage()       {}

// wireMessage 解碼用的寬鬆外層結構。
// 座標用指標欄位區分「缺漏」與「值為 0」。
type wireMessage struct {
	Type       string           `json:"type"`
	MatchID    string           `json:"matchId"`
	PlayerID   string           `json:"playerId"`
	PlayerName string           `json:"playerName"`
	Ships      []ShipPlacement  `json:"ships"`
	Coordinate *wireCoordinate  `json:"coordinate"`
}

type wireCoordinate struct {
	X *int `json:"x"`
	Y *int `json:"y"`
}

// Decode 把文字負載解碼為具型別的客戶端訊息
//
// 任何問題都以 400 拒絕：非 JSON、缺少 type、未知 type、
// 該型別的必要欄位缺漏或形狀錯誤。
func Decode(payload []byte) (ClientMessage, error) {
	var wire wireMessage
	if err := json.Unmarshal(payload, &wire); err != nil {
		return nil, Errf(CodeBadRequest, "訊息不是合法的 JSON")
	}
	if wire.Type == "" {
		return nil, Errf(CodeBadRequest, "缺少必要欄位: type")
	}

	switch wire.Type {
	case TypeJoin:
		if wire.PlayerID == "" || wire.PlayerName == "" {
			return nil, Errf(CodeBadRequest, "join 需要 playerId 與 playerName")
		}
		return Join{PlayerID: wire.PlayerID, PlayerName: wire.PlayerName, MatchID: wire.MatchID}, nil

	case TypePlaceShips:
		if wire.MatchID == "" || wire.PlayerID == "" {
			return nil, Errf(CodeBadRequest, "place_ships 需要 matchId 與 playerId")
		}
		if len(wire.Ships) == 0 {
			return nil, Errf(CodeBadRequest, "place_ships 需要非空的 ships 列表")
		}
		for _, ship := range wire.Ships {
			if ship.Type == "" || len(ship.Cells) == 0 {
				return nil, Errf(CodeBadRequest, "每艘船需要 type 與非空的 cells")
			}
		}
		return PlaceShips{MatchID: wire.MatchID, PlayerID: wire.PlayerID, Ships: wire.Ships}, nil

	case TypeAttack:
		if wire.MatchID == "" || wire.PlayerID == "" {
			return nil, Errf(CodeBadRequest, "attack 需要 matchId 與 playerId")
		}
		if wire.Coordinate == nil || wire.Coordinate.X == nil || wire.Coordinate.Y == nil {
			return nil, Errf(CodeBadRequest, "attack 需要 {x, y} 形式的 coordinate")
		}
		return Attack{
			MatchID:    wire.MatchID,
			PlayerID:   wire.PlayerID,
			Coordinate: game.Coordinate{X: *wire.Coordinate.X, Y: *wire.Coordinate.Y},
		}, nil

	case TypeDisconnect:
		if wire.MatchID == "" || wire.PlayerID == "" {
			return nil, Errf(CodeBadRequest, "disconnect 需要 matchId 與 playerId")
		}
		return Disconnect{MatchID: wire.MatchID, PlayerID: wire.PlayerID}, nil

	case TypeSurrender:
		if wire.MatchID == "" || wire.PlayerID == "" {
			return nil, Errf(CodeBadRequest, "surrender 需要 matchId 與 playerId")
		}
		return Surrender{MatchID: wire.MatchID, PlayerID: wire.PlayerID}, nil

	case TypePing:
		return Ping{}, nil

	default:
		return nil, Errf(CodeBadRequest, "未知的訊息型別: %s", wire.Type)
	}
}

// BuildShips 把線上佈署格式轉成領域的船隻物件。
// 形狀錯誤在這裡攔截（艦種、長度、直線規則）。
func BuildShips(placements []ShipPlacement) ([]*game.Ship, error) {
	ships := make([]*game.Ship, 0, len(placements))
	for _, p := range placements {
		ship, err := game.NewShip(game.ShipType(p.Type), p.Cells)
		if err != nil {
			return nil, err
		}
		ships = append(ships, ship)
	}
	return ships, nil
}

// ---- 伺服器 → 客戶端訊息 ----

// StateMessage 對局狀態通知
type StateMessage struct {
	Type      string `json:"type"`
	Code      int    `json:"code"`
	MatchID   string `json:"matchId,omitempty"`
	PlayerID  string `json:"playerId,omitempty"`
	Message   string `json:"message"`
	State     string `json:"state"`
	YourTurn  *bool  `json:"yourTurn,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

// AttackResultMessage 攻擊結果（回給攻擊者）
type AttackResultMessage struct {
	Type       string          `json:"type"`
	Code       int             `json:"code"`
	MatchID    string          `json:"matchId,omitempty"`
	Coordinate game.Coordinate `json:"coordinate"`
	Outcome    string          `json:"outcome"`
	ShipType   string          `json:"shipType,omitempty"`
	Timestamp  int64           `json:"timestamp"`
}

// OpponentMoveMessage 對手的攻擊（鏡像送給防守方）
type OpponentMoveMessage struct {
	Type       string          `json:"type"`
	Code       int             `json:"code"`
	MatchID    string          `json:"matchId,omitempty"`
	Coordinate game.Coordinate `json:"coordinate"`
	Outcome    string          `json:"outcome"`
	ShipType   string          `json:"shipType,omitempty"`
	Timestamp  int64           `json:"timestamp"`
}

// GameOverStats 對局統計
type GameOverStats struct {
	TotalMoves int `json:"totalMoves"`
}

// GameOverMessage 對局結束廣播
type GameOverMessage struct {
	Type      string        `json:"type"`
	Code      int           `json:"code"`
	MatchID   string        `json:"matchId,omitempty"`
	Winner    string        `json:"winner"`
	Reason    string        `json:"reason,omitempty"`
	Stats     GameOverStats `json:"stats"`
	Timestamp int64         `json:"timestamp"`
}

// ErrorMessage 結構化錯誤回覆
type ErrorMessage struct {
	Type      string `json:"type"`
	Code      int    `json:"code"`
	Message   string `json:"message"`
	Timestamp int64  `json:"timestamp"`
}

// PongMessage 應用層心跳回覆
type PongMessage struct {
	Type      string `json:"type"`
	Code      int    `json:"code"`
	Timestamp int64  `json:"timestamp"`
}

func now() int64 {
	return time.Now().UnixMilli()
}

// NewState 建立狀態通知
func NewState(code int, matchID, playerID, message string, state game.State) *StateMessage {
	return &StateMessage{
		Type:      TypeState,
		Code:      code,
		MatchID:   matchID,
		PlayerID:  playerID,
		Message:   message,
		State:     string(state),
		Timestamp: now(),
	}
}

// WithTurn 標注是否輪到收件者
func (m *StateMessage) WithTurn(yourTurn bool) *StateMessage {
	m.YourTurn = &yourTurn
	return m
}

// NewAttackResult 建立攻擊結果訊息
func NewAttackResult(matchID string, report game.AttackReport) *AttackResultMessage {
	return &AttackResultMessage{
		Type:       TypeAttackResult,
		Code:       CodeAttackRegistered,
		MatchID:    matchID,
		Coordinate: report.Coordinate,
		Outcome:    string(report.Outcome),
		ShipType:   string(report.ShipType),
		Timestamp:  now(),
	}
}

// NewOpponentMove 建立鏡像的對手攻擊訊息
func NewOpponentMove(matchID string, report game.AttackReport) *OpponentMoveMessage {
	return &OpponentMoveMessage{
		Type:       TypeOpponentMove,
		Code:       CodeAttackRegistered,
		MatchID:    matchID,
		Coordinate: report.Coordinate,
		Outcome:    string(report.Outcome),
		ShipType:   string(report.ShipType),
		Timestamp:  now(),
	}
}

// NewGameOver 建立對局結束訊息
func NewGameOver(matchID, winner, reason string, totalMoves int) *GameOverMessage {
	return &GameOverMessage{
		Type:      TypeGameOver,
		Code:      CodeGameOver,
		MatchID:   matchID,
		Winner:    winner,
		Reason:    reason,
		Stats:     GameOverStats{TotalMoves: totalMoves},
		Timestamp: now(),
	}
}

// NewError 建立錯誤訊息；message 為空時使用狀態碼的標準文字
func NewError(code int, message string) *ErrorMessage {
	if message == "" {
		message = CodeText(code)
	}
	return &ErrorMessage{
		Type:      TypeError,
		Code:      code,
		Message:   message,
		Timestamp: now(),
	}
}

// NewPong 建立心跳回覆
func NewPong() *PongMessage {
	return &PongMessage{Type: TypePong, Code: CodeOK, Timestamp: now()}
}

// Encode 序列化伺服器訊息為文字負載
func Encode(msg any) ([]byte, error) {
	return json.Marshal(msg)
}
