package application

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/sakura-gakuin/admissions-services/api/internal/admissions/domain"
)

// ApplicationRepository は出願集約の永続化ポート。
// 耐久ストア（Mongo/Postgres）とインメモリフォールバックの双方が実装する。
type ApplicationRepository interface {
	Create(ctx context.Context, app *domain.Application) error
	FindByID(ctx context.Context, id string) (*domain.Application, error)
	SearchByNationalID(ctx context.Context, fragment string) ([]domain.Application, error)
	List(ctx context.Context, paging Paging) ([]domain.Application, int64, error)
	UpdateStatus(ctx context.Context, id string, change domain.StatusChange, policy domain.TransitionPolicy) (*domain.Application, error)
	ActivityLog(ctx context.Context, id string) ([]domain.ActivityEntry, error)
}

// Paging controls pagination.
type Paging struct {
	Page  int
	Limit int
}

// Normalize clamps paging values into the supported range.
func (p Paging) Normalize() Paging {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.Limit < 1 {
		p.Limit = 20
	}
	if p.Limit > 100 {
		p.Limit = 100
	}
	return p
}

// Offset returns the number of records to skip.
func (p Paging) Offset() int {
	return (p.Page - 1) * p.Limit
}

// Clock abstracts time for deterministic tests.
type Clock func() time.Time

// IDGenerator abstracts application ID generation.
type IDGenerator func() string

// SubmitApplicationCommand captures the raw submission after upload handling.
// Text fields arrive as-is from the form; defaults are applied here.
type SubmitApplicationCommand struct {
	StudentName    string
	Email          string
	PhoneNumber    string
	AppliedProgram string
	GPA            string
	Age            string
	NationalID     string
	TestScore      string
	SubmittedAt    string
	Status         string
	IDPhoto        *domain.FileRef
	SelfiePhoto    *domain.FileRef
	Certificates   []domain.CertificateRef
}

// ApplicationCommandService handles writing use-cases.
type ApplicationCommandService interface {
	Submit(ctx context.Context, cmd SubmitApplicationCommand) (*domain.Application, error)
}

// ApplicationQueryService describes read use-cases.
// ApplicationQueryService は出願の参照ユースケースを提供するリーダーモデル。
type ApplicationQueryService interface {
	Detail(ctx context.Context, id string) (*domain.Application, error)
	SearchByNationalID(ctx context.Context, fragment string) ([]domain.Application, error)
	List(ctx context.Context, paging Paging) ([]domain.Application, int64, error)
}

// ReviewService は職員による審査操作（ステータス変更と監査ログ参照）を提供する。
// Status の変更経路はこのサービスに一本化されている。
type ReviewService interface {
	UpdateStatus(ctx context.Context, id, newStatus, actor, note string) (*domain.Application, error)
	ActivityLog(ctx context.Context, id string) ([]domain.ActivityEntry, error)
}

// NewApplicationCommandService は時刻と ID 採番を注入したコマンドサービスを構築する。
func NewApplicationCommandService(repo ApplicationRepository, clock Clock, idGen IDGenerator) ApplicationCommandService {
	if clock == nil {
		clock = time.Now
	}
	if idGen == nil {
		idGen = uuid.NewString
	}
	return &applicationCommandService{repo: repo, clock: clock, idGen: idGen}
}

type applicationCommandService struct {
	repo  ApplicationRepository
	clock Clock
	idGen IDGenerator
}

// Submit はフォーム値とファイルメタデータを正規化し、出願を永続化する。
// 時刻と ID 以外に非決定性はなく、I/O はリポジトリ呼び出しに限られる。
func (s *applicationCommandService) Submit(ctx context.Context, cmd SubmitApplicationCommand) (*domain.Application, error) {
	app, err := s.normalize(cmd)
	if err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, app); err != nil {
		return nil, err
	}
	return app, nil
}

func (s *applicationCommandService) normalize(cmd SubmitApplicationCommand) (*domain.Application, error) {
	now := s.clock().UTC()

	var testScore *float64
	if raw := strings.TrimSpace(cmd.TestScore); raw != "" {
		parsed, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: testScore は数値で指定してください", domain.ErrValidation)
		}
		testScore = &parsed
	}

	submittedAt := now
	if raw := strings.TrimSpace(cmd.SubmittedAt); raw != "" {
		if parsed, err := time.Parse(time.RFC3339, raw); err == nil {
			submittedAt = parsed.UTC()
		}
	}

	status := domain.StatusPending
	if raw := strings.TrimSpace(cmd.Status); raw != "" {
		candidate := domain.ApplicationStatus(raw)
		if !domain.IsKnownStatus(candidate) {
			return nil, fmt.Errorf("%w: 不明なステータス %q", domain.ErrValidation, raw)
		}
		status = candidate
	}

	certificates := append([]domain.CertificateRef{}, cmd.Certificates...)

	return &domain.Application{
		ID:             s.idGen(),
		StudentName:    strings.TrimSpace(cmd.StudentName),
		Email:          strings.TrimSpace(cmd.Email),
		PhoneNumber:    strings.TrimSpace(cmd.PhoneNumber),
		AppliedProgram: strings.TrimSpace(cmd.AppliedProgram),
		GPA:            strings.TrimSpace(cmd.GPA),
		Age:            strings.TrimSpace(cmd.Age),
		NationalID:     strings.TrimSpace(cmd.NationalID),
		TestScore:      testScore,
		IDPhoto:        cmd.IDPhoto,
		SelfiePhoto:    cmd.SelfiePhoto,
		Certificates:   certificates,
		SubmittedAt:    submittedAt,
		Status:         status,
		ActivityLog:    []domain.ActivityEntry{},
		CreatedAt:      now,
		UpdatedAt:      now,
	}, nil
}

// NewApplicationQueryService constructs the read-side service.
func NewApplicationQueryService(repo ApplicationRepository) ApplicationQueryService {
	return &applicationQueryService{repo: repo}
}

type applicationQueryService struct {
	repo ApplicationRepository
}

func (s *applicationQueryService) Detail(ctx context.Context, id string) (*domain.Application, error) {
	return s.repo.FindByID(ctx, strings.TrimSpace(id))
}

func (s *applicationQueryService) SearchByNationalID(ctx context.Context, fragment string) ([]domain.Application, error) {
	return s.repo.SearchByNationalID(ctx, strings.TrimSpace(fragment))
}

func (s *applicationQueryService) List(ctx context.Context, paging Paging) ([]domain.Application, int64, error) {
	return s.repo.List(ctx, paging.Normalize())
}

// NewReviewService は遷移ポリシーを束縛した審査サービスを構築する。
func NewReviewService(repo ApplicationRepository, policy domain.TransitionPolicy, clock Clock) ReviewService {
	if policy == nil {
		policy = domain.AllowAnyTransition()
	}
	if clock == nil {
		clock = time.Now
	}
	return &reviewService{repo: repo, policy: policy, clock: clock}
}

type reviewService struct {
	repo   ApplicationRepository
	policy domain.TransitionPolicy
	clock  Clock
}

func (s *reviewService) UpdateStatus(ctx context.Context, id, newStatus, actor, note string) (*domain.Application, error) {
	candidate := domain.ApplicationStatus(strings.TrimSpace(newStatus))
	if !domain.IsKnownStatus(candidate) {
		return nil, fmt.Errorf("%w: 不明なステータス %q", domain.ErrValidation, newStatus)
	}
	change := domain.StatusChange{
		NewStatus: candidate,
		Actor:     strings.TrimSpace(actor),
		Note:      strings.TrimSpace(note),
		Timestamp: s.clock().UTC(),
	}
	return s.repo.UpdateStatus(ctx, strings.TrimSpace(id), change, s.policy)
}

func (s *reviewService) ActivityLog(ctx context.Context, id string) ([]domain.ActivityEntry, error) {
	return s.repo.ActivityLog(ctx, strings.TrimSpace(id))
}
