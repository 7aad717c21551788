package public

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/sakura-gakuin/admissions-services/api/internal/admissions/application"
	"github.com/sakura-gakuin/admissions-services/api/internal/interfaces/http/common"
)

func (h *Handler) applicationDetailHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		idParam := strings.TrimSpace(chi.URLParam(r, "id"))
		if idParam == "" {
			common.WriteJSON(h.logger, w, http.StatusBadRequest, map[string]string{"error": "出願IDが指定されていません"})
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		app, err := h.queries.Detail(ctx, idParam)
		if err != nil {
			common.WriteDomainError(h.logger, w, err)
			return
		}

		common.WriteJSON(h.logger, w, http.StatusOK, buildApplicationResponse(*app))
	}
}

func (h *Handler) applicationSearchHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		fragment := strings.TrimSpace(r.URL.Query().Get("nationalId"))

		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		apps, err := h.queries.SearchByNationalID(ctx, fragment)
		if err != nil {
			h.logger.Printf("出願検索に失敗 nationalId=%q err=%v", fragment, err)
			common.WriteDomainError(h.logger, w, err)
			return
		}

		items := make([]applicationResponse, 0, len(apps))
		for _, app := range apps {
			items = append(items, buildApplicationResponse(app))
		}
		common.WriteJSON(h.logger, w, http.StatusOK, applicationSearchResponse{Items: items})
	}
}

func (h *Handler) applicationListHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query()
		page, _ := common.ParsePositiveInt(query.Get("page"), 1)
		limit, _ := common.ParsePositiveInt(query.Get("limit"), h.defLimit)
		paging := application.Paging{Page: page, Limit: limit}.Normalize()

		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		apps, total, err := h.queries.List(ctx, paging)
		if err != nil {
			h.logger.Printf("出願一覧の取得に失敗: %v", err)
			common.WriteDomainError(h.logger, w, err)
			return
		}

		items := make([]applicationResponse, 0, len(apps))
		for _, app := range apps {
			items = append(items, buildApplicationResponse(app))
		}
		common.WriteJSON(h.logger, w, http.StatusOK, applicationListResponse{
			Items: items,
			Total: total,
			Page:  paging.Page,
			Limit: paging.Limit,
		})
	}
}

// healthHandler は永続化アダプタの接続状態を返す。
// connected / retrying / fallback のいずれかで、監視系が耐久性の劣化を検知できる。
// time は学校の運用タイムゾーンでの現在時刻。
func (h *Handler) healthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		common.WriteJSON(h.logger, w, http.StatusOK, healthResponse{
			Health: h.adapter.Health(),
			Time:   time.Now().In(h.location).Format(time.RFC3339),
		})
	}
}
