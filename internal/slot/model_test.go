package slot

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateClock(t *testing.T) {
	valid := []string{"00:00", "08:30", "13:05", "23:59"}
	for _, v := range valid {
		assert.NoError(t, validateClock(v), v)
	}

	invalid := []string{"", "8:30", "0830", "24:00", "12:60", "12:5", "12:345", "ab:cd", "12-30"}
	for _, v := range invalid {
		assert.ErrorIs(t, validateClock(v), ErrInvalidClock, v)
	}
}

func TestOverlaps(t *testing.T) {
	cases := []struct {
		name                           string
		startA, endA, startB, endB     string
		want                           bool
	}{
		{"disjoint before", "08:00", "09:00", "09:00", "10:00", false},
		{"disjoint after", "10:00", "11:00", "08:00", "10:00", false},
		{"identical", "09:00", "10:00", "09:00", "10:00", true},
		{"partial", "09:00", "10:30", "10:00", "11:00", true},
		{"contained", "09:00", "12:00", "10:00", "11:00", true},
		{"touching boundaries are open", "09:00", "10:00", "10:00", "11:00", false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Overlaps(tc.startA, tc.endA, tc.startB, tc.endB))
		})
	}
}

func TestValidServiceType(t *testing.T) {
	assert.True(t, ValidServiceType(ServiceDryNeedling))
	assert.True(t, ValidServiceType(ServiceInitialAssessment))
	assert.False(t, ValidServiceType("massage"))
	assert.False(t, ValidServiceType(""))
}
