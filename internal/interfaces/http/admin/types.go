package admin

import (
	"time"

	"github.com/sakura-gakuin/admissions-services/api/internal/admissions/domain"
)

type updateStatusRequest struct {
	Status string `json:"status"`
	Note   string `json:"note"`
}

type updateStatusResponse struct {
	ID          string                  `json:"id"`
	Status      string                  `json:"applicationStatus"`
	UpdatedAt   time.Time               `json:"updatedAt"`
	ActivityLog []activityEntryResponse `json:"activityLog"`
}

type activityLogResponse struct {
	Items []activityEntryResponse `json:"items"`
}

type activityEntryResponse struct {
	Timestamp  time.Time `json:"timestamp"`
	Actor      string    `json:"actor"`
	FromStatus string    `json:"fromStatus"`
	ToStatus   string    `json:"toStatus"`
	Note       string    `json:"note,omitempty"`
}

func buildActivityEntryResponse(entry domain.ActivityEntry) activityEntryResponse {
	return activityEntryResponse{
		Timestamp:  entry.Timestamp,
		Actor:      entry.Actor,
		FromStatus: string(entry.FromStatus),
		ToStatus:   string(entry.ToStatus),
		Note:       entry.Note,
	}
}

func buildActivityEntryResponses(entries []domain.ActivityEntry) []activityEntryResponse {
	items := make([]activityEntryResponse, 0, len(entries))
	for _, entry := range entries {
		items = append(items, buildActivityEntryResponse(entry))
	}
	return items
}
