package domain

import "fmt"

// ApplicationStatus は出願の審査状態を表す列挙値。
type ApplicationStatus string

const (
	StatusPending     ApplicationStatus = "pending"
	StatusUnderReview ApplicationStatus = "under_review"
	StatusAccepted    ApplicationStatus = "accepted"
	StatusRejected    ApplicationStatus = "rejected"
	StatusWaitlisted  ApplicationStatus = "waitlisted"
)

// KnownStatuses returns every status the pipeline recognises.
// StatusPending is always the initial state of a new submission.
func KnownStatuses() []ApplicationStatus {
	return []ApplicationStatus{
		StatusPending,
		StatusUnderReview,
		StatusAccepted,
		StatusRejected,
		StatusWaitlisted,
	}
}

// IsKnownStatus reports whether value belongs to the recognised status set.
func IsKnownStatus(value ApplicationStatus) bool {
	for _, s := range KnownStatuses() {
		if s == value {
			return true
		}
	}
	return false
}

// TransitionPolicy は状態遷移の可否を判定する設定ポイント。
// 既定では任意の遷移を許可する（監査ログの完全性が契約であり、ワークフローの強制ではないため）。
type TransitionPolicy interface {
	Allowed(from, to ApplicationStatus) error
}

type allowAnyTransition struct{}

func (allowAnyTransition) Allowed(from, to ApplicationStatus) error { return nil }

// AllowAnyTransition permits every transition between known statuses.
func AllowAnyTransition() TransitionPolicy { return allowAnyTransition{} }

type strictTransitionPolicy struct {
	allowed map[ApplicationStatus][]ApplicationStatus
}

// StrictTransitionPolicy restricts transitions to the given table.
// A status missing from the table accepts no outgoing transition.
func StrictTransitionPolicy(table map[ApplicationStatus][]ApplicationStatus) TransitionPolicy {
	copied := make(map[ApplicationStatus][]ApplicationStatus, len(table))
	for from, tos := range table {
		copied[from] = append([]ApplicationStatus(nil), tos...)
	}
	return strictTransitionPolicy{allowed: copied}
}

func (p strictTransitionPolicy) Allowed(from, to ApplicationStatus) error {
	for _, candidate := range p.allowed[from] {
		if candidate == to {
			return nil
		}
	}
	return fmt.Errorf("%w: %s から %s への遷移は許可されていません", ErrValidation, from, to)
}
