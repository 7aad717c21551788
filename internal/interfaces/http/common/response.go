package common

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/sakura-gakuin/admissions-services/api/internal/admissions/domain"
)

// WriteJSON serializes payload to JSON with status and logs on failure.
func WriteJSON(logger *log.Logger, w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil && logger != nil {
		logger.Printf("JSON エンコードに失敗: %v", err)
	}
}

// WriteDomainError はドメインエラーを HTTP ステータスへ写像して返す。
// 検証系は 400、未検出は 404、権限は 403、永続化障害は 500 に対応する。
func WriteDomainError(logger *log.Logger, w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrValidation),
		errors.Is(err, domain.ErrInvalidFileType),
		errors.Is(err, domain.ErrFileTooLarge):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrForbidden):
		status = http.StatusForbidden
	case errors.Is(err, domain.ErrPersistence):
		status = http.StatusInternalServerError
	}
	WriteJSON(logger, w, status, map[string]string{"error": err.Error()})
}
