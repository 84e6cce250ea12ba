package game

import "errors"

// 棋盤與對局的領域錯誤。
// 協定層（internal/protocol）負責把這些錯誤對應到線上狀態碼。
var (
	// ErrInvalidShip 船的形狀或艦種不合法
	ErrInvalidShip = errors.New("invalid ship")

	// ErrOutOfBounds 座標超出棋盤範圍
	ErrOutOfBounds = errors.New("coordinate out of bounds")

	// ErrOverlap 佈署位置與既有船隻重疊
	ErrOverlap = errors.New("ship overlap")

	// ErrDuplicateShipType 同一艦種只能佈署一艘
	ErrDuplicateShipType = errors.New("ship type already placed")

	// ErrIncompleteFleet 佈署必須一次提交完整的五艘艦隊
	ErrIncompleteFleet = errors.New("incomplete fleet")

	// ErrAlreadyAttacked 該座標已被攻擊過
	ErrAlreadyAttacked = errors.New("coordinate already attacked")

	// ErrWrongState 操作不允許於當前對局狀態執行
	ErrWrongState = errors.New("operation not allowed in current state")

	// ErrNotYourTurn 不是該玩家的回合
	ErrNotYourTurn = errors.New("not your turn")

	// ErrPlayerNotFound 玩家不屬於此對局
	ErrPlayerNotFound = errors.New("player not found")

	// ErrMatchFull 對局已有兩位玩家
	ErrMatchFull = errors.New("match already full")
)
