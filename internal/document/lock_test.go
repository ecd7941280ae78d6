package document

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to Status
		want     bool
	}{
		{StatusDraft, StatusSent, true},
		{StatusDraft, StatusVoid, true},
		{StatusDraft, StatusPartiallyPaid, false},
		{StatusDraft, StatusPaid, false},
		{StatusSent, StatusPartiallyPaid, true},
		{StatusSent, StatusPaid, true},
		{StatusSent, StatusVoid, true},
		{StatusSent, StatusDraft, false},
		{StatusPartiallyPaid, StatusPaid, true},
		{StatusPartiallyPaid, StatusVoid, true},
		{StatusPartiallyPaid, StatusSent, false},
		{StatusPaid, StatusVoid, false},
		{StatusPaid, StatusSent, false},
		{StatusVoid, StatusDraft, false},
		{StatusVoid, StatusSent, false},
		{StatusSent, StatusSent, true},
		{StatusPaid, StatusPaid, true},
		{Status("bogus"), StatusSent, false},
		{StatusDraft, Status("bogus"), false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, CanTransition(tc.from, tc.to), "%s -> %s", tc.from, tc.to)
	}
}

func TestStatus_AtLeast(t *testing.T) {
	assert.True(t, StatusPaid.AtLeast(StatusSent))
	assert.True(t, StatusSent.AtLeast(StatusSent))
	assert.False(t, StatusDraft.AtLeast(StatusSent))
}

func TestIsLocked_ByStatus(t *testing.T) {
	locked, reason := IsLocked(StatusSent, Activity{})
	assert.True(t, locked)
	assert.NotEmpty(t, reason)

	locked, _ = IsLocked(StatusPaid, Activity{})
	assert.True(t, locked)

	locked, reason = IsLocked(StatusDraft, Activity{})
	assert.False(t, locked)
	assert.Empty(t, reason)
}

func TestIsLocked_ByActivity(t *testing.T) {
	// A draft locks the moment any financial record references it.
	locked, _ := IsLocked(StatusDraft, Activity{HasPayments: true})
	assert.True(t, locked)

	locked, _ = IsLocked(StatusDraft, Activity{HasCreditApplications: true})
	assert.True(t, locked)

	locked, _ = IsLocked(StatusDraft, Activity{HasPostedCreditNotes: true})
	assert.True(t, locked)
}
