package period

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveCurrentMonth(t *testing.T) {
	now := time.Date(2024, time.February, 14, 15, 30, 0, 0, time.UTC)

	r, err := Resolve("current_month", now)
	require.NoError(t, err)

	assert.Equal(t, time.Date(2024, time.February, 1, 0, 0, 0, 0, time.UTC), r.Start)
	assert.Equal(t, time.Date(2024, time.February, 29, 23, 59, 59, 999000000, time.UTC), r.End)
}

func TestResolveKeywords(t *testing.T) {
	now := time.Date(2024, time.March, 10, 8, 0, 0, 0, time.UTC)
	endOfToday := time.Date(2024, time.March, 10, 23, 59, 59, 999000000, time.UTC)

	tests := []struct {
		keyword string
		start   time.Time
		end     time.Time
	}{
		{"today", time.Date(2024, time.March, 10, 0, 0, 0, 0, time.UTC), endOfToday},
		{"week", time.Date(2024, time.March, 4, 0, 0, 0, 0, time.UTC), endOfToday},
		{"last_30_days", time.Date(2024, time.February, 10, 0, 0, 0, 0, time.UTC), endOfToday},
		{"last_90_days", time.Date(2023, time.December, 12, 0, 0, 0, 0, time.UTC), endOfToday},
		{"month", time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC), time.Date(2024, time.March, 31, 23, 59, 59, 999000000, time.UTC)},
		{"last_month", time.Date(2024, time.February, 1, 0, 0, 0, 0, time.UTC), time.Date(2024, time.February, 29, 23, 59, 59, 999000000, time.UTC)},
		{"year", time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC), time.Date(2024, time.December, 31, 23, 59, 59, 999000000, time.UTC)},
	}
	for _, tt := range tests {
		t.Run(tt.keyword, func(t *testing.T) {
			r, err := Resolve(tt.keyword, now)
			require.NoError(t, err)
			assert.Equal(t, tt.start, r.Start)
			assert.Equal(t, tt.end, r.End)
			assert.True(t, r.Contains(now))
		})
	}
}

func TestResolveLastMonthAcrossYear(t *testing.T) {
	now := time.Date(2024, time.January, 5, 0, 0, 0, 0, time.UTC)
	r, err := Resolve(LastMonth, now)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2023, time.December, 1, 0, 0, 0, 0, time.UTC), r.Start)
	assert.Equal(t, 31, r.Days())
}

func TestResolveUnknown(t *testing.T) {
	_, err := Resolve("fortnight", time.Now())
	assert.Error(t, err)
}

func TestEmptyKeywordDefaultsToCurrentMonth(t *testing.T) {
	k, err := Normalize("")
	require.NoError(t, err)
	assert.Equal(t, CurrentMonth, k)
}
