package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCommitmentTransitionTable(t *testing.T) {
	cases := []struct {
		from    CommitmentStatus
		to      CommitmentStatus
		allowed bool
	}{
		{CommitmentStatusDraft, CommitmentStatusPending, true},
		{CommitmentStatusDraft, CommitmentStatusWithdrawn, true},
		{CommitmentStatusDraft, CommitmentStatusApproved, false},
		{CommitmentStatusPending, CommitmentStatusUnderReview, true},
		{CommitmentStatusPending, CommitmentStatusApproved, false},
		{CommitmentStatusUnderReview, CommitmentStatusApproved, true},
		{CommitmentStatusUnderReview, CommitmentStatusRejected, true},
		{CommitmentStatusUnderReview, CommitmentStatusFunded, false},
		{CommitmentStatusApproved, CommitmentStatusFunded, true},
		{CommitmentStatusApproved, CommitmentStatusWithdrawn, true},
		{CommitmentStatusFunded, CommitmentStatusCompleted, true},
		{CommitmentStatusFunded, CommitmentStatusWithdrawn, true},
		{CommitmentStatusRejected, CommitmentStatusPending, false},
		{CommitmentStatusWithdrawn, CommitmentStatusDraft, false},
		{CommitmentStatusCompleted, CommitmentStatusWithdrawn, false},
	}
	for _, tc := range cases {
		assert.Equalf(t, tc.allowed, tc.from.CanTransitionTo(tc.to), "%s -> %s", tc.from, tc.to)
	}
}

func TestCommitmentTerminalStates(t *testing.T) {
	assert.True(t, CommitmentStatusRejected.Terminal())
	assert.True(t, CommitmentStatusWithdrawn.Terminal())
	assert.True(t, CommitmentStatusCompleted.Terminal())
	assert.False(t, CommitmentStatusDraft.Terminal())
	assert.False(t, CommitmentStatusApproved.Terminal())
}

func TestCountsTowardFunding(t *testing.T) {
	counted := []CommitmentStatus{CommitmentStatusApproved, CommitmentStatusFunded, CommitmentStatusCompleted}
	for _, s := range counted {
		assert.Truef(t, CountsTowardFunding(s), "%s should count", s)
	}
	uncounted := []CommitmentStatus{CommitmentStatusDraft, CommitmentStatusPending, CommitmentStatusUnderReview, CommitmentStatusRejected, CommitmentStatusWithdrawn}
	for _, s := range uncounted {
		assert.Falsef(t, CountsTowardFunding(s), "%s should not count", s)
	}
}

func TestValidCommitmentStatus(t *testing.T) {
	assert.True(t, ValidCommitmentStatus(CommitmentStatusPending))
	assert.False(t, ValidCommitmentStatus("cancelled"))
}
