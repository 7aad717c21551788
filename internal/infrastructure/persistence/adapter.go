// Package persistence は耐久ストアとインメモリフォールバックを束ねる永続化アダプタ。
// 接続状態（Disconnected/Connected/Failed）に応じて読み書きを同一のストアへ振り分け、
// 遅延接続時にはフォールバックに溜まったレコードを耐久ストアへ照合して移し替える。
package persistence

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/sakura-gakuin/admissions-services/api/internal/admissions/application"
	"github.com/sakura-gakuin/admissions-services/api/internal/admissions/domain"
	"github.com/sakura-gakuin/admissions-services/api/internal/infrastructure/memory"
)

// DurableRepository は耐久ストア（Mongo/Postgres）が満たすポート。
type DurableRepository interface {
	application.ApplicationRepository
	Connect(ctx context.Context) error
	Name() string
}

// Adapter implements application.ApplicationRepository on top of the two stores.
type Adapter struct {
	durable  DurableRepository
	fallback *memory.ApplicationRepository
	logger   *log.Logger
	metrics  *Metrics

	maxAttempts    int
	retryInterval  time.Duration
	connectTimeout time.Duration

	mu       sync.RWMutex
	state    State
	attempts int
}

// Config defines dependencies and retry behaviour for Adapter.
type Config struct {
	Durable        DurableRepository
	Fallback       *memory.ApplicationRepository
	Logger         *log.Logger
	Metrics        *Metrics
	MaxAttempts    int
	RetryInterval  time.Duration
	ConnectTimeout time.Duration
}

// NewAdapter constructs the adapter in the Disconnected state.
func NewAdapter(cfg Config) *Adapter {
	maxAttempts := cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	retryInterval := cfg.RetryInterval
	if retryInterval <= 0 {
		retryInterval = 3 * time.Second
	}
	connectTimeout := cfg.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = 5 * time.Second
	}
	fallback := cfg.Fallback
	if fallback == nil {
		fallback = memory.NewApplicationRepository(cfg.Logger)
	}
	a := &Adapter{
		durable:        cfg.Durable,
		fallback:       fallback,
		logger:         cfg.Logger,
		metrics:        cfg.Metrics,
		maxAttempts:    maxAttempts,
		retryInterval:  retryInterval,
		connectTimeout: connectTimeout,
		state:          StateDisconnected,
	}
	a.metrics.observeState(StateDisconnected)
	return a
}

// Start は接続リトライループをバックグラウンドで起動する。
// リトライはリクエスト処理とは独立して進み、処理をブロックしない。
func (a *Adapter) Start(ctx context.Context) {
	go a.connectWithRetry(ctx)
}

// connectWithRetry は固定間隔・回数上限付きで耐久ストアへの接続を試みる。
// 上限に達したら Failed（終端）へ遷移し、以後プロセス再起動までフォールバック運転になる。
func (a *Adapter) connectWithRetry(ctx context.Context) {
	for {
		a.mu.Lock()
		if a.state != StateDisconnected {
			a.mu.Unlock()
			return
		}
		a.attempts++
		attempt := a.attempts
		a.mu.Unlock()

		a.metrics.observeAttempt()
		a.logf("%s への接続を試行します (attempt %d/%d)", a.durable.Name(), attempt, a.maxAttempts)

		connectCtx, cancel := context.WithTimeout(ctx, a.connectTimeout)
		err := a.durable.Connect(connectCtx)
		cancel()

		if err == nil {
			// 状態遷移とドレインは同一クリティカルセクションで行う。
			// フォールバックへの書き込みは RLock 保持中に実行されるため、
			// ドレイン前に状態を読んだ書き込みが取り残されることはない。
			a.mu.Lock()
			a.state = StateConnected
			drained := a.fallback.Drain()
			a.mu.Unlock()
			a.metrics.observeState(StateConnected)
			a.logf("%s に接続しました", a.durable.Name())
			a.reconcile(ctx, drained)
			return
		}

		a.logf("%s への接続に失敗: %v", a.durable.Name(), err)

		if attempt >= a.maxAttempts {
			a.setState(StateFailed)
			a.logf("%s への接続を %d 回失敗したため、インメモリフォールバックで運転します。データはプロセス再起動で失われます。", a.durable.Name(), a.maxAttempts)
			return
		}

		a.logf("%v 後に再試行します", a.retryInterval)
		select {
		case <-ctx.Done():
			return
		case <-time.After(a.retryInterval):
		}
	}
}

// reconcile はドレイン済みのレコードを耐久ストアへ移し替える。
// 移し替えに失敗したレコードはフォールバックへ戻し、二重書き込みは発生させない。
func (a *Adapter) reconcile(ctx context.Context, drained []domain.Application) {
	if len(drained) == 0 {
		return
	}

	moved := 0
	for i := range drained {
		record := drained[i]
		if err := a.durable.Create(ctx, &record); err != nil {
			a.logf("照合に失敗したためフォールバックへ戻します id=%s err=%v", record.ID, err)
			if err := a.fallback.Create(ctx, &record); err != nil {
				a.logf("フォールバックへの復元にも失敗 id=%s err=%v", record.ID, err)
			}
			continue
		}
		moved++
	}

	a.metrics.observeReconciled(moved)
	a.logf("フォールバックのレコード %d/%d 件を %s へ移し替えました", moved, len(drained), a.durable.Name())
}

func (a *Adapter) setState(s State) {
	a.mu.Lock()
	a.state = s
	a.mu.Unlock()
	a.metrics.observeState(s)
}

// State returns the current connectivity state.
func (a *Adapter) State() State {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.state
}

// Health は接続状態のスナップショットを返す。毎リクエストのストア選択にも用いる。
func (a *Adapter) Health() Health {
	a.mu.RLock()
	state := a.state
	attempts := a.attempts
	a.mu.RUnlock()

	mode := "retrying"
	switch state {
	case StateConnected:
		mode = "connected"
	case StateFailed:
		mode = "fallback"
	}

	return Health{
		Mode:          mode,
		Connected:     state == StateConnected,
		Failed:        state == StateFailed,
		Attempts:      attempts,
		Store:         a.durable.Name(),
		FallbackCount: a.fallback.Len(),
	}
}

// acquire は現在の状態で正とするストアと解放関数を返す。
// Connected なら耐久ストア。それ以外（リトライ中・終端）はフォールバックを返し、
// 操作が Connected への遷移とドレインに割り込まれないよう RLock を保持したまま返す。
// 呼び出し側は操作の完了後に必ず release を呼ぶこと。
func (a *Adapter) acquire() (store application.ApplicationRepository, release func()) {
	a.mu.RLock()
	if a.state == StateConnected {
		a.mu.RUnlock()
		return a.durable, func() {}
	}
	return a.fallback, a.mu.RUnlock
}

// Create routes the write to the authoritative store.
// Connected 中の耐久ストア障害はそのままエラーとして返し、リクエスト途中での
// フォールバック切り替えは行わない（照合なしの二重化を避ける）。
func (a *Adapter) Create(ctx context.Context, app *domain.Application) error {
	store, release := a.acquire()
	defer release()
	if store == a.fallback {
		a.metrics.observeFallbackWrite()
	}
	return store.Create(ctx, app)
}

func (a *Adapter) FindByID(ctx context.Context, id string) (*domain.Application, error) {
	store, release := a.acquire()
	defer release()
	return store.FindByID(ctx, id)
}

func (a *Adapter) SearchByNationalID(ctx context.Context, fragment string) ([]domain.Application, error) {
	store, release := a.acquire()
	defer release()
	return store.SearchByNationalID(ctx, fragment)
}

func (a *Adapter) List(ctx context.Context, paging application.Paging) ([]domain.Application, int64, error) {
	store, release := a.acquire()
	defer release()
	return store.List(ctx, paging)
}

func (a *Adapter) UpdateStatus(ctx context.Context, id string, change domain.StatusChange, policy domain.TransitionPolicy) (*domain.Application, error) {
	store, release := a.acquire()
	defer release()
	return store.UpdateStatus(ctx, id, change, policy)
}

func (a *Adapter) ActivityLog(ctx context.Context, id string) ([]domain.ActivityEntry, error) {
	store, release := a.acquire()
	defer release()
	return store.ActivityLog(ctx, id)
}

func (a *Adapter) logf(format string, args ...any) {
	if a.logger == nil {
		return
	}
	a.logger.Printf(format, args...)
}

var _ application.ApplicationRepository = (*Adapter)(nil)
