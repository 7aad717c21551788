package persistence

// State は耐久ストアへの接続状態を表す有限状態機械の状態。
// Disconnected（初期）→ Connected（成功、プロセス存続中は固定）
// Disconnected → Failed（試行上限到達、再起動まで終端）の遷移のみ存在する。
type State int

const (
	StateDisconnected State = iota
	StateConnected
	StateFailed
)

// String returns the state label used in logs and metrics.
func (s State) String() string {
	switch s {
	case StateConnected:
		return "connected"
	case StateFailed:
		return "failed"
	default:
		return "disconnected"
	}
}

// Health は /api/health が返す接続状態のスナップショット。
type Health struct {
	Mode          string `json:"status"`
	Connected     bool   `json:"connected"`
	Failed        bool   `json:"failed"`
	Attempts      int    `json:"attempts"`
	Store         string `json:"store"`
	FallbackCount int    `json:"fallbackCount"`
}
