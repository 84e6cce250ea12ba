package game

import (
	"fmt"
	"sync"
	"time"
)

// State 對局狀態
//
// 有限狀態機：
//
//	WAITING_FOR_PLAYERS → PLACING_SHIPS → IN_PROGRESS → FINISHED
//
// 狀態只會往前推進。斷線以玩家層級的 Connected 旗標表示，
// 重連回到斷線前的狀態，不屬於狀態機轉換。
type State string

const (
	StateWaitingForPlayers State = "WAITING_FOR_PLAYERS" // 等待第二位玩家
	StatePlacingShips      State = "PLACING_SHIPS"       // 雙方佈署船艦中
	StateInProgress        State = "IN_PROGRESS"         // 交戰中
	StateFinished          State = "FINISHED"            // 對局結束
)

// Player 對局中的玩家
type Player struct {
	ID             string
	Name           string
	Ready          bool      // 已提交合法艦隊
	Connected      bool      // 連線狀態
	JoinedAt       time.Time
	DisconnectedAt time.Time // 最近一次斷線時間，連線中為零值
}

// JoinOutcome 加入操作的分類結果
type JoinOutcome int

const (
	// JoinedWaiting 第一位玩家加入，等待對手
	JoinedWaiting JoinOutcome = iota
	// JoinedPaired 第二位玩家加入，對局進入佈署階段
	JoinedPaired
	// Rejoined 既有玩家在寬限期內重連，狀態不變
	Rejoined
)

// AttackReport 一次攻擊解算後、需要通知雙方的完整結果
type AttackReport struct {
	Coordinate Coordinate
	Outcome    AttackOutcome
	ShipType   ShipType // 僅在擊沉時帶有艦種
	DefenderID string
	Finished   bool
	Winner     string
	NextTurn   string // 對局未結束時的下一個回合
	TotalMoves int
}

// ExpiryReason 掃描器判定對局過期的原因
type ExpiryReason int

const (
	NotExpired ExpiryReason = iota
	// ExpiredIdle 超過閒置上限
	ExpiredIdle
	// ExpiredGrace 斷線玩家的寬限期已過、未重連
	ExpiredGrace
)

// Session 一場對局：兩個玩家槽位、各自的棋盤、回合與狀態機
//
// 並發契約：所有會轉換狀態的操作（Join、PlaceShips、Attack、
// Disconnect、Surrender）在單一互斥鎖下完成完整的
// 「驗證—變更」序列，兩條連線 goroutine 的交錯不可能
// 產生不一致的對局狀態。掃描器檢查過期時取同一把鎖。
type Session struct {
	id        string
	boardSize int

	mu         sync.Mutex
	players    map[string]*Player
	order      []string // 加入順序，order[0] 為先手
	boards     map[string]*Board
	state      State
	turn       string
	winner     string
	moveCount  int
	createdAt  time.Time
	lastActive time.Time
}

// NewSession 建立只有空槽位的新對局
func NewSession(id string, boardSize int) *Session {
	now := time.Now()
	return &Session{
		id:         id,
		boardSize:  boardSize,
		players:    make(map[string]*Player, 2),
		order:      make([]string, 0, 2),
		boards:     make(map[string]*Board, 2),
		state:      StateWaitingForPlayers,
		createdAt:  now,
		lastActive: now,
	}
}

// ID 回傳對局識別碼
func (s *Session) ID() string {
	return s.id
}

// Join 加入對局，或讓既有玩家重連
//
// 規則：
//   - 第一位玩家填入先手槽位，狀態維持 WAITING_FOR_PLAYERS
//   - 第二位玩家觸發轉換至 PLACING_SHIPS
//   - 已在局中且標記為斷線的玩家視為重連，狀態不變
//   - 兩槽位皆滿時拒絕第三位玩家
func (s *Session) Join(playerID, playerName string) (JoinOutcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p, ok := s.players[playerID]; ok {
		// 重連路徑：恢復連線旗標，其餘狀態原封不動
		if s.state == StateFinished {
			return 0, fmt.Errorf("%w: 對局已結束", ErrWrongState)
		}
		p.Connected = true
		p.DisconnectedAt = time.Time{}
		s.touch()
		return Rejoined, nil
	}

	if s.state != StateWaitingForPlayers {
		return 0, fmt.Errorf("%w: 對局狀態為 %s", ErrMatchFull, s.state)
	}
	if len(s.players) >= 2 {
		return 0, ErrMatchFull
	}

	s.players[playerID] = &Player{
		ID:        playerID,
		Name:      playerName,
		Connected: true,
		JoinedAt:  time.Now(),
	}
	s.order = append(s.order, playerID)
	s.touch()

	if len(s.players) == 2 {
		s.state = StatePlacingShips
		return JoinedPaired, nil
	}
	return JoinedWaiting, nil
}

// PlaceShips 為玩家佈署完整艦隊
//
// 僅在 PLACING_SHIPS 狀態接受。五艘船先放上一張全新棋盤，
// 任一艘失敗則整批丟棄、對局狀態不變（430 的語義）。
// 成功時標記玩家就緒；雙方就緒後轉換至 IN_PROGRESS，
// 先手為第一位加入者，回傳 started=true。
func (s *Session) PlaceShips(playerID string, ships []*Ship) (started bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StatePlacingShips {
		return false, fmt.Errorf("%w: 佈署階段之外不可佈署（目前 %s）", ErrWrongState, s.state)
	}
	player, ok := s.players[playerID]
	if !ok {
		return false, fmt.Errorf("%w: %s", ErrPlayerNotFound, playerID)
	}

	if err := validateFleet(ships); err != nil {
		return false, err
	}

	board := NewBoard(s.boardSize)
	for _, ship := range ships {
		if err := board.Place(ship); err != nil {
			return false, err
		}
	}

	// 驗證全數通過後才提交
	s.boards[playerID] = board
	player.Ready = true
	s.touch()

	if s.bothReady() {
		s.state = StateInProgress
		s.turn = s.order[0]
		return true, nil
	}
	return false, nil
}

// validateFleet 檢查提交的是完整的標準艦隊：每種艦種恰好一艘
func validateFleet(ships []*Ship) error {
	required := Fleet()
	if len(ships) != len(required) {
		return fmt.Errorf("%w: 需要 %d 艘，收到 %d 艘", ErrIncompleteFleet, len(required), len(ships))
	}
	seen := make(map[ShipType]bool, len(ships))
	for _, ship := range ships {
		if seen[ship.Type()] {
			return fmt.Errorf("%w: %s", ErrDuplicateShipType, ship.Type())
		}
		seen[ship.Type()] = true
	}
	for _, t := range required {
		if !seen[t] {
			return fmt.Errorf("%w: 缺少 %s", ErrIncompleteFleet, t)
		}
	}
	return nil
}

func (s *Session) bothReady() bool {
	if len(s.players) != 2 {
		return false
	}
	for _, p := range s.players {
		if !p.Ready {
			return false
		}
	}
	return true
}

// Attack 解算一次攻擊
//
// 僅在 IN_PROGRESS 狀態、且輪到攻擊者時接受。座標出界或
// 已攻擊過時對局狀態不變。解算後回合必定交給另一位玩家；
// 對手全艦沉沒時轉換至 FINISHED，勝者為攻擊者。
func (s *Session) Attack(attackerID string, c Coordinate) (AttackReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateInProgress {
		return AttackReport{}, fmt.Errorf("%w: 交戰之外不可攻擊（目前 %s）", ErrWrongState, s.state)
	}
	if _, ok := s.players[attackerID]; !ok {
		return AttackReport{}, fmt.Errorf("%w: %s", ErrPlayerNotFound, attackerID)
	}
	if s.turn != attackerID {
		return AttackReport{}, fmt.Errorf("%w: 目前回合為 %s", ErrNotYourTurn, s.turn)
	}

	defenderID := s.opponentOf(attackerID)
	outcome, ship, err := s.boards[defenderID].ReceiveAttack(c)
	if err != nil {
		return AttackReport{}, err
	}

	s.moveCount++
	s.touch()

	report := AttackReport{
		Coordinate: c,
		Outcome:    outcome,
		DefenderID: defenderID,
		TotalMoves: s.moveCount,
	}
	if outcome == OutcomeSunk {
		report.ShipType = ship.Type()
	}

	if s.boards[defenderID].AllSunk() {
		s.state = StateFinished
		s.winner = attackerID
		report.Finished = true
		report.Winner = attackerID
		return report, nil
	}

	// 回合嚴格交替，命中與否皆然
	s.turn = defenderID
	report.NextTurn = defenderID
	return report, nil
}

// Surrender 投降：對局立即結束，勝者為對手
func (s *Session) Surrender(playerID string) (winner string, totalMoves int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateFinished {
		return "", 0, fmt.Errorf("%w: 對局已結束", ErrWrongState)
	}
	if _, ok := s.players[playerID]; !ok {
		return "", 0, fmt.Errorf("%w: %s", ErrPlayerNotFound, playerID)
	}
	opponent := s.opponentOf(playerID)
	if opponent == "" {
		return "", 0, fmt.Errorf("%w: 尚無對手", ErrWrongState)
	}

	s.state = StateFinished
	s.winner = opponent
	s.touch()
	return opponent, s.moveCount, nil
}

// Disconnect 標記玩家斷線並記錄時間戳；對局保持存活，
// 等待寬限期內的重連。回傳應收到通知的對手 ID（可能為空）。
func (s *Session) Disconnect(playerID string) (opponentID string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.players[playerID]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrPlayerNotFound, playerID)
	}
	if p.Connected {
		p.Connected = false
		p.DisconnectedAt = time.Now()
	}
	s.touch()
	return s.opponentOf(playerID), nil
}

// CheckExpiry 供掃描器使用：判定對局是否應被銷毀
//
// 寬限期過期優先於閒置過期，因為前者需要對剩餘玩家判定棄權。
// remaining 為寬限期過期時仍在線的玩家 ID（可能為空）。
func (s *Session) CheckExpiry(now time.Time, idleTimeout, graceWindow time.Duration) (ExpiryReason, string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateFinished {
		for _, p := range s.players {
			if !p.Connected && now.Sub(p.DisconnectedAt) > graceWindow {
				return ExpiredGrace, s.connectedOpponentOf(p.ID)
			}
		}
	}
	if now.Sub(s.lastActive) > idleTimeout {
		return ExpiredIdle, ""
	}
	return NotExpired, ""
}

// touch 更新最後活動時間（呼叫方須持有鎖）
func (s *Session) touch() {
	s.lastActive = time.Now()
}

// opponentOf 回傳另一位玩家的 ID（呼叫方須持有鎖）
func (s *Session) opponentOf(playerID string) string {
	for _, id := range s.order {
		if id != playerID {
			return id
		}
	}
	return ""
}

func (s *Session) connectedOpponentOf(playerID string) string {
	id := s.opponentOf(playerID)
	if id == "" {
		return ""
	}
	if p := s.players[id]; p != nil && p.Connected {
		return id
	}
	return ""
}

// HasPlayer 檢查玩家是否屬於此對局。
// 重連的 (matchId, playerId) 能力配對即透過此檢查驗證。
func (s *Session) HasPlayer(playerID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.players[playerID]
	return ok
}

// State 回傳當前對局狀態
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Turn 回傳當前回合的玩家 ID
func (s *Session) Turn() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.turn
}

// Winner 回傳勝者 ID，對局未結束時為空字串
func (s *Session) Winner() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.winner
}

// MoveCount 回傳已解算的攻擊總數
func (s *Session) MoveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.moveCount
}

// PlayerIDs 回傳玩家 ID（依加入順序）
func (s *Session) PlayerIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out
}

// OpponentOf 回傳對手 ID，沒有對手時為空字串
func (s *Session) OpponentOf(playerID string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.opponentOf(playerID)
}

// PlayerName 回傳玩家名稱
func (s *Session) PlayerName(playerID string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.players[playerID]; ok {
		return p.Name
	}
	return ""
}

// PlayerConnected 檢查玩家是否在線
func (s *Session) PlayerConnected(playerID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.players[playerID]
	return ok && p.Connected
}

// Open 檢查對局是否還在等待第二位玩家（配對用）
func (s *Session) Open() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == StateWaitingForPlayers && len(s.players) < 2
}
