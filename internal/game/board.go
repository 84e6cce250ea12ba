package game

import "fmt"

// CellState 棋盤格狀態
type CellState string

const (
	CellEmpty CellState = "empty" // 空格
	CellShip  CellState = "ship"  // 有船、未被命中
	CellHit   CellState = "hit"   // 船被命中
	CellMiss  CellState = "miss"  // 攻擊落空
)

// AttackOutcome 單次攻擊的結果，直接作為線上 outcome 欄位的值
type AttackOutcome string

const (
	OutcomeHit  AttackOutcome = "hit"
	OutcomeMiss AttackOutcome = "miss"
	OutcomeSunk AttackOutcome = "ship_sunk"
)

// Board 單一玩家的 N×N 棋盤
//
// 擁有佈署於其上的船隻，並記錄已承受的攻擊座標，
// 用以拒絕重複攻擊。Board 本身不做並發控制，
// 由持有它的 Session 以單一互斥鎖保護。
type Board struct {
	size     int
	cells    [][]CellState
	ships    []*Ship
	attacked map[Coordinate]bool
}

// NewBoard 建立空棋盤
func NewBoard(size int) *Board {
	cells := make([][]CellState, size)
	for y := range cells {
		cells[y] = make([]CellState, size)
		for x := range cells[y] {
			cells[y][x] = CellEmpty
		}
	}
	return &Board{
		size:     size,
		cells:    cells,
		ships:    make([]*Ship, 0, len(shipLengths)),
		attacked: make(map[Coordinate]bool),
	}
}

// Size 回傳棋盤邊長
func (b *Board) Size() int {
	return b.size
}

// InBounds 檢查座標是否在棋盤範圍內
func (b *Board) InBounds(c Coordinate) bool {
	return c.X >= 0 && c.X < b.size && c.Y >= 0 && c.Y < b.size
}

// Place 佈署一艘船
//
// 失敗條件（棋盤狀態不變）：
//   - 任一格超出棋盤範圍
//   - 任一格與既有船隻重疊
//   - 同艦種已佈署過
func (b *Board) Place(ship *Ship) error {
	for _, c := range ship.cells {
		if !b.InBounds(c) {
			return fmt.Errorf("%w: %s 的 %s", ErrOutOfBounds, ship.Type(), c)
		}
	}
	for _, c := range ship.cells {
		if b.cells[c.Y][c.X] == CellShip {
			return fmt.Errorf("%w: %s 的 %s", ErrOverlap, ship.Type(), c)
		}
	}
	for _, existing := range b.ships {
		if existing.Type() == ship.Type() {
			return fmt.Errorf("%w: %s", ErrDuplicateShipType, ship.Type())
		}
	}

	b.ships = append(b.ships, ship)
	for _, c := range ship.cells {
		b.cells[c.Y][c.X] = CellShip
	}
	return nil
}

// ReceiveAttack 解算一次攻擊
//
// 失敗條件（棋盤狀態不變）：座標出界（ErrOutOfBounds）
// 或已被攻擊過（ErrAlreadyAttacked）。成功時標記 HIT/MISS，
// 並在命中時回傳被命中的船；命中滿長度時結果為 ship_sunk。
func (b *Board) ReceiveAttack(c Coordinate) (AttackOutcome, *Ship, error) {
	if !b.InBounds(c) {
		return "", nil, fmt.Errorf("%w: %s", ErrOutOfBounds, c)
	}
	if b.attacked[c] {
		return "", nil, fmt.Errorf("%w: %s", ErrAlreadyAttacked, c)
	}

	b.attacked[c] = true

	ship := b.ShipAt(c)
	if ship == nil {
		b.cells[c.Y][c.X] = CellMiss
		return OutcomeMiss, nil, nil
	}

	ship.RegisterHit(c)
	b.cells[c.Y][c.X] = CellHit

	if ship.IsSunk() {
		return OutcomeSunk, ship, nil
	}
	return OutcomeHit, ship, nil
}

// ShipAt 回傳佔據指定格的船，沒有則回傳 nil
func (b *Board) ShipAt(c Coordinate) *Ship {
	for _, ship := range b.ships {
		if ship.Occupies(c) {
			return ship
		}
	}
	return nil
}

// Attacked 檢查座標是否已被攻擊過
func (b *Board) Attacked(c Coordinate) bool {
	return b.attacked[c]
}

// CellState 回傳指定格的狀態；出界回傳 CellEmpty
func (b *Board) CellState(c Coordinate) CellState {
	if !b.InBounds(c) {
		return CellEmpty
	}
	return b.cells[c.Y][c.X]
}

// Ships 回傳已佈署船隻的副本切片
func (b *Board) Ships() []*Ship {
	out := make([]*Ship, len(b.ships))
	copy(out, b.ships)
	return out
}

// AllSunk 檢查是否所有船都已沉沒；未佈署任何船時回傳 false
func (b *Board) AllSunk() bool {
	if len(b.ships) == 0 {
		return false
	}
	for _, ship := range b.ships {
		if !ship.IsSunk() {
			return false
		}
	}
	return true
}
