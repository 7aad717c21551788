package admin

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakura-gakuin/admissions-services/api/internal/admissions/application"
	"github.com/sakura-gakuin/admissions-services/api/internal/admissions/domain"
	"github.com/sakura-gakuin/admissions-services/api/internal/infrastructure/memory"
	"github.com/sakura-gakuin/admissions-services/api/internal/interfaces/http/common"
)

func withUser(user *common.AuthenticatedUser) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if user != nil {
				r = r.WithContext(common.ContextWithUser(r.Context(), *user))
			}
			next.ServeHTTP(w, r)
		})
	}
}

func newTestRouter(t *testing.T, user *common.AuthenticatedUser) (chi.Router, *memory.ApplicationRepository) {
	t.Helper()

	logger := log.New(io.Discard, "", 0)
	repo := memory.NewApplicationRepository(nil)
	clock := func() time.Time { return time.Date(2025, 4, 2, 10, 0, 0, 0, time.UTC) }

	handler := NewHandler(Config{
		Logger:  logger,
		Reviews: application.NewReviewService(repo, nil, clock),
	})

	router := chi.NewRouter()
	router.Group(func(staff chi.Router) {
		staff.Use(withUser(user))
		staff.Use(common.RequireRoles(logger, []string{"admin", "admissions"}))
		handler.Register(staff)
	})
	return router, repo
}

func seedApplication(t *testing.T, repo *memory.ApplicationRepository, id string) {
	t.Helper()
	now := time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, repo.Create(context.Background(), &domain.Application{
		ID:          id,
		StudentName: "生徒",
		NationalID:  "AB001",
		SubmittedAt: now,
		Status:      domain.StatusPending,
		ActivityLog: []domain.ActivityEntry{},
		CreatedAt:   now,
		UpdatedAt:   now,
	}))
}

func TestStatusUpdate(t *testing.T) {
	admin := &common.AuthenticatedUser{ID: "u1", Name: "入試担当", Role: "admissions"}
	router, repo := newTestRouter(t, admin)
	seedApplication(t, repo, "a1")

	body := strings.NewReader(`{"status":"under_review","note":"書類確認中"}`)
	req := httptest.NewRequest(http.MethodPut, "/applications/a1/status", body)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp struct {
		ID          string `json:"id"`
		Status      string `json:"applicationStatus"`
		ActivityLog []struct {
			Actor      string `json:"actor"`
			FromStatus string `json:"fromStatus"`
			ToStatus   string `json:"toStatus"`
			Note       string `json:"note"`
		} `json:"activityLog"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "a1", resp.ID)
	assert.Equal(t, "under_review", resp.Status)
	require.Len(t, resp.ActivityLog, 1)
	assert.Equal(t, "入試担当", resp.ActivityLog[0].Actor)
	assert.Equal(t, "pending", resp.ActivityLog[0].FromStatus)
	assert.Equal(t, "under_review", resp.ActivityLog[0].ToStatus)
	assert.Equal(t, "書類確認中", resp.ActivityLog[0].Note)

	stored, err := repo.FindByID(context.Background(), "a1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusUnderReview, stored.Status)
}

func TestStatusUpdateUsesIDWhenNameMissing(t *testing.T) {
	admin := &common.AuthenticatedUser{ID: "u7", Role: "admin"}
	router, repo := newTestRouter(t, admin)
	seedApplication(t, repo, "a1")

	body := strings.NewReader(`{"status":"accepted"}`)
	req := httptest.NewRequest(http.MethodPut, "/applications/a1/status", body)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	entries, err := repo.ActivityLog(context.Background(), "a1")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "u7", entries[0].Actor)
}

func TestStatusUpdateRejectsUnknownStatus(t *testing.T) {
	admin := &common.AuthenticatedUser{ID: "u1", Role: "admin"}
	router, repo := newTestRouter(t, admin)
	seedApplication(t, repo, "a1")

	body := strings.NewReader(`{"status":"approved"}`)
	req := httptest.NewRequest(http.MethodPut, "/applications/a1/status", body)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)

	stored, err := repo.FindByID(context.Background(), "a1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, stored.Status)
	assert.Empty(t, stored.ActivityLog)
}

func TestStatusUpdateUnknownApplication(t *testing.T) {
	admin := &common.AuthenticatedUser{ID: "u1", Role: "admin"}
	router, _ := newTestRouter(t, admin)

	body := strings.NewReader(`{"status":"accepted"}`)
	req := httptest.NewRequest(http.MethodPut, "/applications/missing/status", body)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStatusUpdateRequiresAuthentication(t *testing.T) {
	router, repo := newTestRouter(t, nil)
	seedApplication(t, repo, "a1")

	body := strings.NewReader(`{"status":"accepted"}`)
	req := httptest.NewRequest(http.MethodPut, "/applications/a1/status", body)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestStatusUpdateRequiresStaffRole(t *testing.T) {
	teacher := &common.AuthenticatedUser{ID: "u1", Role: "teacher"}
	router, repo := newTestRouter(t, teacher)
	seedApplication(t, repo, "a1")

	body := strings.NewReader(`{"status":"accepted"}`)
	req := httptest.NewRequest(http.MethodPut, "/applications/a1/status", body)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)

	stored, err := repo.FindByID(context.Background(), "a1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, stored.Status)
}

func TestStatusUpdateRejectsMalformedBody(t *testing.T) {
	admin := &common.AuthenticatedUser{ID: "u1", Role: "admin"}
	router, _ := newTestRouter(t, admin)

	req := httptest.NewRequest(http.MethodPut, "/applications/a1/status", strings.NewReader("{"))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestActivityLog(t *testing.T) {
	admin := &common.AuthenticatedUser{ID: "u1", Role: "admin"}
	router, repo := newTestRouter(t, admin)
	seedApplication(t, repo, "a1")

	ctx := context.Background()
	for i, status := range []domain.ApplicationStatus{domain.StatusUnderReview, domain.StatusAccepted} {
		_, err := repo.UpdateStatus(ctx, "a1", domain.StatusChange{
			NewStatus: status,
			Actor:     "admin",
			Timestamp: time.Date(2025, 4, 2, 10+i, 0, 0, 0, time.UTC),
		}, domain.AllowAnyTransition())
		require.NoError(t, err)
	}

	req := httptest.NewRequest(http.MethodGet, "/applications/a1/activity", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Items []struct {
			FromStatus string `json:"fromStatus"`
			ToStatus   string `json:"toStatus"`
		} `json:"items"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Items, 2)
	assert.Equal(t, "pending", resp.Items[0].FromStatus)
	assert.Equal(t, "under_review", resp.Items[0].ToStatus)
	assert.Equal(t, "under_review", resp.Items[1].FromStatus)
	assert.Equal(t, "accepted", resp.Items[1].ToStatus)
}

func TestActivityLogUnknownApplication(t *testing.T) {
	admin := &common.AuthenticatedUser{ID: "u1", Role: "admin"}
	router, _ := newTestRouter(t, admin)

	req := httptest.NewRequest(http.MethodGet, "/applications/missing/activity", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}
