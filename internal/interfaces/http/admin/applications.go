package admin

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/sakura-gakuin/admissions-services/api/internal/interfaces/http/common"
)

// statusUpdateHandler はステータス変更を受け付け、監査ログへの追記結果と合わせて返す。
// Status の変更はこのエンドポイント以外から行えない。
func (h *Handler) statusUpdateHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		idParam := strings.TrimSpace(chi.URLParam(r, "id"))
		if idParam == "" {
			common.WriteJSON(h.logger, w, http.StatusBadRequest, map[string]string{"error": "出願IDが指定されていません"})
			return
		}

		user, ok := common.UserFromContext(r.Context())
		if !ok {
			common.WriteJSON(h.logger, w, http.StatusUnauthorized, map[string]string{"error": "認証が必要です"})
			return
		}

		var req updateStatusRequest
		decoder := json.NewDecoder(io.LimitReader(r.Body, common.MaxStatusRequestBody))
		if err := decoder.Decode(&req); err != nil {
			common.WriteJSON(h.logger, w, http.StatusBadRequest, map[string]string{"error": "リクエストの形式が不正です"})
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		updated, err := h.reviews.UpdateStatus(ctx, idParam, req.Status, actorLabel(user), req.Note)
		if err != nil {
			h.logger.Printf("ステータス更新に失敗 id=%s status=%q err=%v", idParam, req.Status, err)
			common.WriteDomainError(h.logger, w, err)
			return
		}

		common.WriteJSON(h.logger, w, http.StatusOK, updateStatusResponse{
			ID:          updated.ID,
			Status:      string(updated.Status),
			UpdatedAt:   updated.UpdatedAt,
			ActivityLog: buildActivityEntryResponses(updated.ActivityLog),
		})
	}
}

// activityLogHandler は監査ログを古い順で返す。
func (h *Handler) activityLogHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		idParam := strings.TrimSpace(chi.URLParam(r, "id"))
		if idParam == "" {
			common.WriteJSON(h.logger, w, http.StatusBadRequest, map[string]string{"error": "出願IDが指定されていません"})
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		entries, err := h.reviews.ActivityLog(ctx, idParam)
		if err != nil {
			common.WriteDomainError(h.logger, w, err)
			return
		}

		common.WriteJSON(h.logger, w, http.StatusOK, activityLogResponse{Items: buildActivityEntryResponses(entries)})
	}
}

// actorLabel は監査ログに残す操作者表記を決める。名前があれば名前、なければ ID。
func actorLabel(user common.AuthenticatedUser) string {
	if name := strings.TrimSpace(user.Name); name != "" {
		return name
	}
	return user.ID
}
