package domain

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsKnownStatus(t *testing.T) {
	for _, status := range KnownStatuses() {
		assert.True(t, IsKnownStatus(status), "status %s", status)
	}
	assert.False(t, IsKnownStatus("approved"))
	assert.False(t, IsKnownStatus(""))
}

func TestAllowAnyTransition(t *testing.T) {
	policy := AllowAnyTransition()
	assert.NoError(t, policy.Allowed(StatusPending, StatusAccepted))
	assert.NoError(t, policy.Allowed(StatusRejected, StatusPending))
}

func TestStrictTransitionPolicy(t *testing.T) {
	policy := StrictTransitionPolicy(map[ApplicationStatus][]ApplicationStatus{
		StatusPending:     {StatusUnderReview},
		StatusUnderReview: {StatusAccepted, StatusRejected, StatusWaitlisted},
	})

	assert.NoError(t, policy.Allowed(StatusPending, StatusUnderReview))
	assert.NoError(t, policy.Allowed(StatusUnderReview, StatusRejected))

	err := policy.Allowed(StatusPending, StatusAccepted)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrValidation))

	// テーブルにない状態からの遷移はすべて拒否される
	err = policy.Allowed(StatusAccepted, StatusPending)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrValidation))
}
