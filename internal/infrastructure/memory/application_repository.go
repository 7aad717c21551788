// Package memory はプライマリストアに到達できない間の受け皿となる
// プロセス内フォールバックストアを提供する。プロセス再起動でデータは消える
// （耐久性より可用性を優先する設計上のトレードオフ）。
package memory

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"

	"github.com/sakura-gakuin/admissions-services/api/internal/admissions/application"
	"github.com/sakura-gakuin/admissions-services/api/internal/admissions/domain"
)

// fallbackLogPrefix はフォールバック利用の記録に必ず付ける接頭辞。運用者が耐久性の劣化を検知する目印になる。
const fallbackLogPrefix = "[IN-MEMORY FALLBACK]"

// ApplicationRepository はミューテックスで直列化された追記型のインメモリ実装。
// 挿入順を保持し、同一 ID への書き込みは単一ライターに制限される。
type ApplicationRepository struct {
	mu     sync.RWMutex
	order  []string
	byID   map[string]*domain.Application
	logger *log.Logger
}

// NewApplicationRepository constructs an empty fallback store.
func NewApplicationRepository(logger *log.Logger) *ApplicationRepository {
	return &ApplicationRepository{
		byID:   make(map[string]*domain.Application),
		logger: logger,
	}
}

// Create appends the record in insertion order.
func (r *ApplicationRepository) Create(_ context.Context, app *domain.Application) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byID[app.ID]; exists {
		return fmt.Errorf("%w: ID %s は既に存在します", domain.ErrPersistence, app.ID)
	}

	stored := cloneApplication(app)
	r.byID[app.ID] = stored
	r.order = append(r.order, app.ID)

	r.logf("create id=%s", app.ID)
	return nil
}

// FindByID returns a copy of the stored record.
func (r *ApplicationRepository) FindByID(_ context.Context, id string) (*domain.Application, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stored, ok := r.byID[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return cloneApplication(stored), nil
}

// SearchByNationalID matches by substring in insertion order.
func (r *ApplicationRepository) SearchByNationalID(_ context.Context, fragment string) ([]domain.Application, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	results := make([]domain.Application, 0)
	if fragment == "" {
		return results, nil
	}
	for _, id := range r.order {
		stored := r.byID[id]
		if strings.Contains(stored.NationalID, fragment) {
			results = append(results, *cloneApplication(stored))
		}
	}
	return results, nil
}

// List returns one page in insertion order plus the total count.
func (r *ApplicationRepository) List(_ context.Context, paging application.Paging) ([]domain.Application, int64, error) {
	paging = paging.Normalize()

	r.mu.RLock()
	defer r.mu.RUnlock()

	total := int64(len(r.order))
	start := paging.Offset()
	if start >= len(r.order) {
		return []domain.Application{}, total, nil
	}
	end := start + paging.Limit
	if end > len(r.order) {
		end = len(r.order)
	}

	items := make([]domain.Application, 0, end-start)
	for _, id := range r.order[start:end] {
		items = append(items, *cloneApplication(r.byID[id]))
	}
	return items, total, nil
}

// UpdateStatus はロック下でポリシー検査・ステータス更新・監査ログ追記を行う。
// ロックにより同一 ID への並行更新は直列化され、追記が失われることはない。
func (r *ApplicationRepository) UpdateStatus(_ context.Context, id string, change domain.StatusChange, policy domain.TransitionPolicy) (*domain.Application, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.byID[id]
	if !ok {
		return nil, domain.ErrNotFound
	}

	if err := policy.Allowed(stored.Status, change.NewStatus); err != nil {
		return nil, err
	}

	entry := domain.ActivityEntry{
		Timestamp:  change.Timestamp,
		Actor:      change.Actor,
		FromStatus: stored.Status,
		ToStatus:   change.NewStatus,
		Note:       change.Note,
	}
	stored.Status = change.NewStatus
	stored.ActivityLog = append(stored.ActivityLog, entry)
	stored.UpdatedAt = change.Timestamp

	r.logf("updateStatus id=%s to=%s", id, change.NewStatus)
	return cloneApplication(stored), nil
}

// ActivityLog returns the audit entries oldest first.
func (r *ApplicationRepository) ActivityLog(_ context.Context, id string) ([]domain.ActivityEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stored, ok := r.byID[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return append([]domain.ActivityEntry{}, stored.ActivityLog...), nil
}

// Drain removes and returns every record in insertion order.
// プライマリ復旧時の照合（レコードを耐久ストアへ移し替える処理）で使用する。
func (r *ApplicationRepository) Drain() []domain.Application {
	r.mu.Lock()
	defer r.mu.Unlock()

	drained := make([]domain.Application, 0, len(r.order))
	for _, id := range r.order {
		drained = append(drained, *cloneApplication(r.byID[id]))
	}
	r.order = nil
	r.byID = make(map[string]*domain.Application)

	if len(drained) > 0 {
		r.logf("drain count=%d", len(drained))
	}
	return drained
}

// Len returns the number of records currently held.
func (r *ApplicationRepository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

func (r *ApplicationRepository) logf(format string, args ...any) {
	if r.logger == nil {
		return
	}
	r.logger.Printf(fallbackLogPrefix+" "+format, args...)
}

// cloneApplication は内部スライスやポインタを共有しないコピーを返す。
func cloneApplication(app *domain.Application) *domain.Application {
	copied := *app
	if app.TestScore != nil {
		score := *app.TestScore
		copied.TestScore = &score
	}
	if app.IDPhoto != nil {
		photo := *app.IDPhoto
		copied.IDPhoto = &photo
	}
	if app.SelfiePhoto != nil {
		photo := *app.SelfiePhoto
		copied.SelfiePhoto = &photo
	}
	copied.Certificates = append([]domain.CertificateRef{}, app.Certificates...)
	copied.ActivityLog = append([]domain.ActivityEntry{}, app.ActivityLog...)
	return &copied
}
