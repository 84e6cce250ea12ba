package game

import (
	"fmt"
	"sort"
)

// Coordinate 棋盤座標（兩軸皆為 0 起始的整數）
type Coordinate struct {
	X int `json:"x"`
	Y int `json:"y"`
}

func (c Coordinate) String() string {
	return fmt.Sprintf("(%d,%d)", c.X, c.Y)
}

// ShipType 艦種
type ShipType string

const (
	ShipCarrier    ShipType = "CARRIER"    // 航空母艦，5 格
	ShipBattleship ShipType = "BATTLESHIP" // 戰艦，4 格
	ShipCruiser    ShipType = "CRUISER"    // 巡洋艦，3 格
	ShipSubmarine  ShipType = "SUBMARINE"  // 潛艇，3 格
	ShipDestroyer  ShipType = "DESTROYER"  // 驅逐艦，2 格
)

// shipLengths 標準艦隊的固定長度。
// 每位玩家必須佈署五艘船，每種艦種恰好一艘。
var shipLengths = map[ShipType]int{
	ShipCarrier:    5,
	ShipBattleship: 4,
	ShipCruiser:    3,
	ShipSubmarine:  3,
	ShipDestroyer:  2,
}

// Length 回傳艦種的固定長度，未知艦種回傳 0
func (t ShipType) Length() int {
	return shipLengths[t]
}

// Valid 檢查艦種是否為標準艦隊的一員
func (t ShipType) Valid() bool {
	_, ok := shipLengths[t]
	return ok
}

// Fleet 回傳完整艦隊的艦種列表（固定順序）
func Fleet() []ShipType {
	return []ShipType{ShipCarrier, ShipBattleship, ShipCruiser, ShipSubmarine, ShipDestroyer}
}

// Ship 一艘船：固定的佔據格序列與已命中格
//
// 佈署後佔據格不可變；擊沉判定為命中數等於長度。
type Ship struct {
	shipType ShipType
	cells    []Coordinate
	hits     map[Coordinate]bool
}

// NewShip 建立一艘船並驗證其形狀
//
// 驗證規則：
//   - 艦種必須屬於標準艦隊
//   - 格數必須等於艦種長度
//   - 格子必須互不重複，且連成一條水平或垂直的連續直線
func NewShip(shipType ShipType, cells []Coordinate) (*Ship, error) {
	if !shipType.Valid() {
		return nil, fmt.Errorf("%w: 未知艦種 %q", ErrInvalidShip, string(shipType))
	}
	if len(cells) != shipType.Length() {
		return nil, fmt.Errorf("%w: %s 需要 %d 格，收到 %d 格",
			ErrInvalidShip, shipType, shipType.Length(), len(cells))
	}

	sorted := make([]Coordinate, len(cells))
	copy(sorted, cells)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].X != sorted[j].X {
			return sorted[i].X < sorted[j].X
		}
		return sorted[i].Y < sorted[j].Y
	})

	if !isStraightLine(sorted) {
		return nil, fmt.Errorf("%w: %s 的格子必須連成一條直線", ErrInvalidShip, shipType)
	}

	return &Ship{
		shipType: shipType,
		cells:    sorted,
		hits:     make(map[Coordinate]bool, len(sorted)),
	}, nil
}

// isStraightLine 檢查已排序的格子是否為水平或垂直的連續直線（隱含無重複）
func isStraightLine(cells []Coordinate) bool {
	if len(cells) == 1 {
		return true
	}

	horizontal := true
	for i := 1; i < len(cells); i++ {
		if cells[i].Y != cells[0].Y || cells[i].X != cells[0].X+i {
			horizontal = false
			break
		}
	}
	if horizontal {
		return true
	}

	for i := 1; i < len(cells); i++ {
		if cells[i].X != cells[0].X || cells[i].Y != cells[0].Y+i {
			return false
		}
	}
	return true
}

// Type 回傳艦種
func (s *Ship) Type() ShipType {
	return s.shipType
}

// Cells 回傳佔據格的副本
func (s *Ship) Cells() []Coordinate {
	out := make([]Coordinate, len(s.cells))
	copy(out, s.cells)
	return out
}

// Occupies 檢查船是否佔據指定格
func (s *Ship) Occupies(c Coordinate) bool {
	for _, cell := range s.cells {
		if cell == c {
			return true
		}
	}
	return false
}

// RegisterHit 登記一次命中；若該格不屬於此船則回傳 false
func (s *Ship) RegisterHit(c Coordinate) bool {
	if !s.Occupies(c) {
		return false
	}
	s.hits[c] = true
	return true
}

// Hits 回傳已命中的格數
func (s *Ship) Hits() int {
	return len(s.hits)
}

// IsSunk 檢查船是否已沉沒（每一格都被命中）
func (s *Ship) IsSunk() bool {
	return len(s.hits) == len(s.cells)
}
