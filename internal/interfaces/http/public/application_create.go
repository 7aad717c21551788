package public

import (
	"context"
	"net/http"
	"time"

	"github.com/sakura-gakuin/admissions-services/api/internal/admissions/application"
	"github.com/sakura-gakuin/admissions-services/api/internal/admissions/domain"
	"github.com/sakura-gakuin/admissions-services/api/internal/interfaces/http/common"
	"github.com/sakura-gakuin/admissions-services/api/internal/upload"
)

// applicationCreateHandler はマルチパート提出を受け付ける。
// ファイル検証は永続化より先に行い、どこかで失敗した提出は
// 書き込み済みファイルも含めて原子的に破棄される。
func (h *Handler) applicationCreateHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		defer r.Body.Close()

		if err := r.ParseMultipartForm(common.MaxMultipartMemory); err != nil {
			common.WriteJSON(h.logger, w, http.StatusBadRequest, map[string]string{
				"error": "マルチパートリクエストの解析に失敗しました",
			})
			return
		}
		defer func() {
			if r.MultipartForm != nil {
				r.MultipartForm.RemoveAll()
			}
		}()

		files, err := h.uploads.SaveSubmission(r.MultipartForm)
		if err != nil {
			common.WriteDomainError(h.logger, w, err)
			return
		}

		cmd := application.SubmitApplicationCommand{
			StudentName:    r.FormValue("studentName"),
			Email:          r.FormValue("email"),
			PhoneNumber:    r.FormValue("phoneNumber"),
			AppliedProgram: r.FormValue("appliedProgram"),
			GPA:            r.FormValue("gpa"),
			Age:            r.FormValue("age"),
			NationalID:     r.FormValue("nationalId"),
			TestScore:      r.FormValue("testScore"),
			SubmittedAt:    r.FormValue("submittedAt"),
			Status:         r.FormValue("applicationStatus"),
			IDPhoto:        fileRefFromStored(files.IDPhoto),
			SelfiePhoto:    fileRefFromStored(files.SelfiePhoto),
			Certificates:   certificateRefsFromStored(files.Certificates),
		}

		ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
		defer cancel()

		created, err := h.commands.Submit(ctx, cmd)
		if err != nil {
			// 出願レコードを作れなかった提出のファイルを API から参照可能なまま残さない。
			h.uploads.Remove(files)
			h.logger.Printf("出願の保存に失敗: %v", err)
			common.WriteDomainError(h.logger, w, err)
			return
		}

		common.WriteJSON(h.logger, w, http.StatusCreated, buildApplicationResponse(*created))
	}
}

func fileRefFromStored(stored *upload.StoredFile) *domain.FileRef {
	if stored == nil {
		return nil
	}
	return &domain.FileRef{URL: stored.URL, StoredName: stored.StoredName}
}

func certificateRefsFromStored(stored []upload.StoredFile) []domain.CertificateRef {
	refs := make([]domain.CertificateRef, 0, len(stored))
	for _, file := range stored {
		refs = append(refs, domain.CertificateRef{
			URL:          file.URL,
			OriginalName: file.OriginalName,
			StoredName:   file.StoredName,
		})
	}
	return refs
}
