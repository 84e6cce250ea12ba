// Package protocol 定義客戶端與伺服器之間的訊息格式：
// 固定的狀態碼表、封閉的訊息變體集合，以及編解碼與驗證。
//
// 解碼在此邊界就拒絕未知的訊息型別與缺漏欄位（400），
// 不讓畸形輸入滲入對局邏輯。
package protocol

import (
	"errors"
	"fmt"

	"github.com/LudwigRoderich/BatallaNaval/internal/game"
)

// 狀態碼表（固定）
const (
	CodeOK                   = 200 // 操作成功
	CodeWaitingForOpponent   = 210 // 等待對手加入
	CodeBothJoined           = 211 // 雙方到齊，進入佈署
	CodeGameStarted          = 212 // 對局開始
	CodeAttackRegistered     = 217 // 攻擊已登記
	CodeGameOver             = 220 // 對局結束
	CodeBadRequest           = 400 // 訊息格式錯誤或非法操作
	CodePlayerNotFound       = 410 // 玩家不存在
	CodeMatchNotFound        = 420 // 對局不存在
	CodeInvalidPlacement     = 430 // 船艦佈署不合法
	CodeInvalidCoordinate    = 440 // 座標不合法或已攻擊過
	CodeNotYourTurn          = 442 // 非該玩家的回合
	CodeOpponentDisconnected = 450 // 對手斷線
	CodeInternalError        = 500 // 伺服器內部錯誤
)

// codeText 狀態碼的標準說明文字
var codeText = map[int]string{
	CodeOK:                   "OK",
	CodeWaitingForOpponent:   "WAITING_FOR_OPPONENT",
	CodeBothJoined:           "BOTH_PLAYERS_READY",
	CodeGameStarted:          "GAME_STARTED",
	CodeAttackRegistered:     "ATTACK_REGISTERED",
	CodeGameOver:             "GAME_OVER",
	CodeBadRequest:           "BAD_REQUEST",
	CodePlayerNotFound:       "PLAYER_NOT_FOUND",
	CodeMatchNotFound:        "GAME_NOT_FOUND",
	CodeInvalidPlacement:     "INVALID_SHIP_PLACEMENT",
	CodeInvalidCoordinate:    "INVALID_COORDINATE",
	CodeNotYourTurn:          "NOT_YOUR_TURN",
	CodeOpponentDisconnected: "OPPONENT_DISCONNECTED",
	CodeInternalError:        "INTERNAL_SERVER_ERROR",
}

// CodeText 回傳狀態碼的標準說明文字，未知碼回傳 UNKNOWN
func CodeText(code int) string {
	if text, ok := codeText[code]; ok {
		return text
	}
	return "UNKNOWN"
}

// Error 帶狀態碼的協定錯誤
type Error struct {
	Code    int
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("[%d] %s", e.Code, e.Message)
}

// Errf 建立帶狀態碼的協定錯誤
func Errf(code int, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// CodeFor 把領域錯誤對應到線上狀態碼。
// 未能辨識的錯誤視為內部錯誤（500）。
func CodeFor(err error) int {
	var perr *Error
	if errors.As(err, &perr) {
		return perr.Code
	}
	switch {
	case errors.Is(err, game.ErrWrongState):
		return CodeBadRequest
	case errors.Is(err, game.ErrMatchFull):
		return CodeMatchNotFound
	case errors.Is(err, game.ErrPlayerNotFound):
		return CodePlayerNotFound
	case errors.Is(err, game.ErrNotYourTurn):
		return CodeNotYourTurn
	case errors.Is(err, game.ErrAlreadyAttacked):
		return CodeInvalidCoordinate
	case errors.Is(err, game.ErrInvalidShip),
		errors.Is(err, game.ErrOverlap),
		errors.Is(err, game.ErrDuplicateShipType),
		errors.Is(err, game.ErrIncompleteFleet):
		return CodeInvalidPlacement
	case errors.Is(err, game.ErrOutOfBounds):
		return CodeInvalidCoordinate
	default:
		return CodeInternalError
	}
}

// PlacementCode 佈署情境下的錯誤對應：出界屬於佈署違規（430），
// 而非攻擊座標錯誤（440）。其餘錯誤沿用 CodeFor。
func PlacementCode(err error) int {
	if errors.Is(err, game.ErrOutOfBounds) {
		return CodeInvalidPlacement
	}
	return CodeFor(err)
}
