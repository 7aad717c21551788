package public

import (
	"time"

	"github.com/sakura-gakuin/admissions-services/api/internal/admissions/domain"
	"github.com/sakura-gakuin/admissions-services/api/internal/infrastructure/persistence"
)

// healthResponse は接続状態に運用タイムゾーンでの現在時刻を添えて返す。
type healthResponse struct {
	persistence.Health
	Time string `json:"time"`
}

// applicationResponse は出願 1 件分の API 表現。
// フロントエンドとの互換のため idPhoto/selfiePhoto は URL 文字列（欠損時 null）で返す。
type applicationResponse struct {
	ID             string                `json:"id"`
	StudentName    string                `json:"studentName"`
	Email          string                `json:"email"`
	PhoneNumber    string                `json:"phoneNumber"`
	AppliedProgram string                `json:"appliedProgram"`
	GPA            string                `json:"gpa"`
	Age            string                `json:"age"`
	NationalID     string                `json:"nationalId"`
	TestScore      *float64              `json:"testScore,omitempty"`
	IDPhoto        *string               `json:"idPhoto"`
	SelfiePhoto    *string               `json:"selfiePhoto"`
	Certificates   []certificateResponse `json:"certificates"`
	SubmittedAt    time.Time             `json:"submittedAt"`
	Status         string                `json:"applicationStatus"`
}

type certificateResponse struct {
	URL          string `json:"url"`
	OriginalName string `json:"originalName"`
	Filename     string `json:"filename"`
}

type applicationListResponse struct {
	Items []applicationResponse `json:"items"`
	Total int64                 `json:"total"`
	Page  int                   `json:"page"`
	Limit int                   `json:"limit"`
}

type applicationSearchResponse struct {
	Items []applicationResponse `json:"items"`
}

// buildApplicationResponse はドメイン集約を API 表現へ写像する。
func buildApplicationResponse(app domain.Application) applicationResponse {
	resp := applicationResponse{
		ID:             app.ID,
		StudentName:    app.StudentName,
		Email:          app.Email,
		PhoneNumber:    app.PhoneNumber,
		AppliedProgram: app.AppliedProgram,
		GPA:            app.GPA,
		Age:            app.Age,
		NationalID:     app.NationalID,
		TestScore:      app.TestScore,
		Certificates:   make([]certificateResponse, 0, len(app.Certificates)),
		SubmittedAt:    app.SubmittedAt,
		Status:         string(app.Status),
	}
	if app.IDPhoto != nil {
		url := app.IDPhoto.URL
		resp.IDPhoto = &url
	}
	if app.SelfiePhoto != nil {
		url := app.SelfiePhoto.URL
		resp.SelfiePhoto = &url
	}
	for _, cert := range app.Certificates {
		resp.Certificates = append(resp.Certificates, certificateResponse{
			URL:          cert.URL,
			OriginalName: cert.OriginalName,
			Filename:     cert.StoredName,
		})
	}
	return resp
}
