package application

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakura-gakuin/admissions-services/api/internal/admissions/domain"
)

type stubRepository struct {
	created      []*domain.Application
	updateID     string
	updateChange domain.StatusChange
	updated      *domain.Application
	err          error
}

func (s *stubRepository) Create(_ context.Context, app *domain.Application) error {
	if s.err != nil {
		return s.err
	}
	s.created = append(s.created, app)
	return nil
}

func (s *stubRepository) FindByID(context.Context, string) (*domain.Application, error) {
	return nil, domain.ErrNotFound
}

func (s *stubRepository) SearchByNationalID(context.Context, string) ([]domain.Application, error) {
	return nil, nil
}

func (s *stubRepository) List(context.Context, Paging) ([]domain.Application, int64, error) {
	return nil, 0, nil
}

func (s *stubRepository) UpdateStatus(_ context.Context, id string, change domain.StatusChange, _ domain.TransitionPolicy) (*domain.Application, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.updateID = id
	s.updateChange = change
	return s.updated, nil
}

func (s *stubRepository) ActivityLog(context.Context, string) ([]domain.ActivityEntry, error) {
	return nil, nil
}

func fixedClock(t time.Time) Clock {
	return func() time.Time { return t }
}

func TestPagingNormalize(t *testing.T) {
	cases := []struct {
		name string
		in   Paging
		want Paging
	}{
		{"デフォルト値の補完", Paging{}, Paging{Page: 1, Limit: 20}},
		{"負数はデフォルトに戻る", Paging{Page: -3, Limit: -1}, Paging{Page: 1, Limit: 20}},
		{"上限を超えるlimitは切り詰め", Paging{Page: 2, Limit: 500}, Paging{Page: 2, Limit: 100}},
		{"範囲内はそのまま", Paging{Page: 3, Limit: 50}, Paging{Page: 3, Limit: 50}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.in.Normalize())
		})
	}
}

func TestPagingOffset(t *testing.T) {
	assert.Equal(t, 0, Paging{Page: 1, Limit: 20}.Offset())
	assert.Equal(t, 40, Paging{Page: 3, Limit: 20}.Offset())
}

func TestSubmitAppliesDefaults(t *testing.T) {
	now := time.Date(2025, 4, 1, 9, 0, 0, 0, time.UTC)
	repo := &stubRepository{}
	svc := NewApplicationCommandService(repo, fixedClock(now), func() string { return "app-1" })

	created, err := svc.Submit(context.Background(), SubmitApplicationCommand{
		StudentName: "  山田 太郎  ",
		Email:       "taro@example.com",
		NationalID:  " AB12345678 ",
	})
	require.NoError(t, err)
	require.Len(t, repo.created, 1)

	assert.Equal(t, "app-1", created.ID)
	assert.Equal(t, "山田 太郎", created.StudentName)
	assert.Equal(t, "AB12345678", created.NationalID)
	assert.Equal(t, domain.StatusPending, created.Status)
	assert.Equal(t, now, created.SubmittedAt)
	assert.Equal(t, now, created.CreatedAt)
	assert.Nil(t, created.TestScore)
	assert.NotNil(t, created.ActivityLog)
	assert.Empty(t, created.ActivityLog)
	assert.NotNil(t, created.Certificates)
}

func TestSubmitParsesOptionalFields(t *testing.T) {
	now := time.Date(2025, 4, 1, 9, 0, 0, 0, time.UTC)
	repo := &stubRepository{}
	svc := NewApplicationCommandService(repo, fixedClock(now), func() string { return "app-2" })

	created, err := svc.Submit(context.Background(), SubmitApplicationCommand{
		StudentName: "花子",
		TestScore:   " 88.5 ",
		SubmittedAt: "2025-03-15T12:30:00+09:00",
		Status:      "under_review",
	})
	require.NoError(t, err)

	require.NotNil(t, created.TestScore)
	assert.Equal(t, 88.5, *created.TestScore)
	assert.Equal(t, time.Date(2025, 3, 15, 3, 30, 0, 0, time.UTC), created.SubmittedAt)
	assert.Equal(t, domain.StatusUnderReview, created.Status)
}

func TestSubmitRejectsInvalidTestScore(t *testing.T) {
	repo := &stubRepository{}
	svc := NewApplicationCommandService(repo, nil, nil)

	_, err := svc.Submit(context.Background(), SubmitApplicationCommand{TestScore: "eighty"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrValidation))
	assert.Empty(t, repo.created)
}

func TestSubmitRejectsUnknownStatus(t *testing.T) {
	repo := &stubRepository{}
	svc := NewApplicationCommandService(repo, nil, nil)

	_, err := svc.Submit(context.Background(), SubmitApplicationCommand{Status: "approved"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrValidation))
	assert.Empty(t, repo.created)
}

func TestSubmitIgnoresMalformedSubmittedAt(t *testing.T) {
	now := time.Date(2025, 4, 1, 9, 0, 0, 0, time.UTC)
	repo := &stubRepository{}
	svc := NewApplicationCommandService(repo, fixedClock(now), nil)

	created, err := svc.Submit(context.Background(), SubmitApplicationCommand{SubmittedAt: "昨日"})
	require.NoError(t, err)
	assert.Equal(t, now, created.SubmittedAt)
}

func TestReviewUpdateStatus(t *testing.T) {
	now := time.Date(2025, 4, 2, 10, 0, 0, 0, time.UTC)
	repo := &stubRepository{updated: &domain.Application{ID: "app-9", Status: domain.StatusAccepted}}
	svc := NewReviewService(repo, nil, fixedClock(now))

	updated, err := svc.UpdateStatus(context.Background(), " app-9 ", "accepted", " 管理者 ", " 書類確認済み ")
	require.NoError(t, err)
	assert.Equal(t, "app-9", updated.ID)

	assert.Equal(t, "app-9", repo.updateID)
	assert.Equal(t, domain.StatusAccepted, repo.updateChange.NewStatus)
	assert.Equal(t, "管理者", repo.updateChange.Actor)
	assert.Equal(t, "書類確認済み", repo.updateChange.Note)
	assert.Equal(t, now, repo.updateChange.Timestamp)
}

func TestReviewUpdateStatusRejectsUnknown(t *testing.T) {
	repo := &stubRepository{}
	svc := NewReviewService(repo, nil, nil)

	_, err := svc.UpdateStatus(context.Background(), "app-9", "done", "admin", "")
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrValidation))
	assert.Empty(t, repo.updateID)
}
