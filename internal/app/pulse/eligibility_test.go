package pulse

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestIsEligible(t *testing.T) {
	t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	rec := Record{
		Status:         StatusPending,
		NextEligibleAt: t0.Add(48 * time.Hour),
		ExpiresAt:      t0.Add(DefaultTTL),
	}

	tests := []struct {
		name   string
		mutate func(Record) Record
		now    time.Time
		want   bool
	}{
		{"before cooldown", nil, t0.Add(time.Hour), false},
		{"at cooldown boundary", nil, t0.Add(48 * time.Hour), true},
		{"inside window", nil, t0.Add(49 * time.Hour), true},
		{"at expiry while still pending", nil, t0.Add(DefaultTTL), false},
		{"past expiry while still pending", nil, t0.Add(DefaultTTL + time.Hour), false},
		{"completed", func(r Record) Record { r.Status = StatusCompleted; return r }, t0.Add(49 * time.Hour), false},
		{"expired status", func(r Record) Record { r.Status = StatusExpired; return r }, t0.Add(49 * time.Hour), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := rec
			if tt.mutate != nil {
				r = tt.mutate(r)
			}
			assert.Equal(t, tt.want, IsEligible(r, tt.now))
		})
	}
}

func TestRulesSchedule(t *testing.T) {
	t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	next, expires := ResourceRatingRules.Schedule(t0)
	assert.Equal(t, t0.Add(48*time.Hour), next)
	assert.Equal(t, t0.Add(30*24*time.Hour), expires)

	next, expires = ConnectionFeedbackRules.Schedule(t0)
	assert.Equal(t, t0, next)
	assert.Equal(t, t0.Add(30*24*time.Hour), expires)

	short := Rules{Source: SourceResourceRating, InitialDelay: 72 * time.Hour, TTL: 24 * time.Hour}
	next, expires = short.Schedule(t0)
	assert.False(t, next.After(expires), "initial delay longer than ttl must be capped")
}

func TestNormalizeValue(t *testing.T) {
	got, err := NormalizeValue(SourceResourceRating, []byte(`4`))
	assert.NoError(t, err)
	assert.JSONEq(t, `4`, string(got))

	for _, bad := range []string{`0`, `6`, `3.5`, `"3"`, `null`, ``} {
		_, err := NormalizeValue(SourceResourceRating, []byte(bad))
		assert.ErrorIs(t, err, ErrValidation, "rating %q", bad)
	}

	got, err = NormalizeValue(SourceConnectionFeedback, []byte(`" YES "`))
	assert.NoError(t, err)
	assert.JSONEq(t, `"yes"`, string(got))

	_, err = NormalizeValue(SourceConnectionFeedback, []byte(`"maybe"`))
	assert.ErrorIs(t, err, ErrValidation)

	_, err = NormalizeValue(SourceDailyInfo, []byte(`"yes"`))
	assert.ErrorIs(t, err, ErrValidation)
}
