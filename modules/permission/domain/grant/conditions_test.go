package grant_test

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iota-uz/franchise-core/modules/permission/domain/grant"
)

func at(hour, min int, day time.Weekday) time.Time {
	// 2025-06-02 is a Monday.
	base := time.Date(2025, 6, 2, hour, min, 0, 0, time.UTC)
	return base.AddDate(0, 0, int(day-time.Monday))
}

func TestConditions_TimeWindow(t *testing.T) {
	c := grant.Conditions{TimeStart: "09:00", TimeEnd: "17:00"}

	for _, tc := range []struct {
		name string
		now  time.Time
		want bool
	}{
		{"inside", at(12, 0, time.Monday), true},
		{"at start", at(9, 0, time.Monday), true},
		{"at end", at(17, 0, time.Monday), false},
		{"before", at(8, 59, time.Monday), false},
	} {
		t.Run(tc.name, func(t *testing.T) {
			ok, err := c.Matches(grant.EvalContext{Now: tc.now})
			require.NoError(t, err)
			assert.Equal(t, tc.want, ok)
		})
	}
}

func TestConditions_TimeWindowCrossingMidnight(t *testing.T) {
	c := grant.Conditions{TimeStart: "22:00", TimeEnd: "06:00"}

	ok, err := c.Matches(grant.EvalContext{Now: at(23, 30, time.Monday)})
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = c.Matches(grant.EvalContext{Now: at(5, 59, time.Monday)})
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = c.Matches(grant.EvalContext{Now: at(12, 0, time.Monday)})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestConditions_MalformedTimeIsError(t *testing.T) {
	_, err := grant.Conditions{TimeStart: "25:99", TimeEnd: "26:00"}.Matches(grant.EvalContext{Now: time.Now()})
	require.Error(t, err)

	_, err = grant.Conditions{TimeStart: "09:00"}.Matches(grant.EvalContext{Now: time.Now()})
	require.Error(t, err)
}

func TestConditions_DaysOfWeek(t *testing.T) {
	c := grant.Conditions{DaysOfWeek: []time.Weekday{time.Saturday, time.Sunday}}

	ok, err := c.Matches(grant.EvalContext{Now: at(10, 0, time.Saturday)})
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = c.Matches(grant.EvalContext{Now: at(10, 0, time.Wednesday)})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestConditions_LocationScope(t *testing.T) {
	allowed := uuid.New()
	c := grant.Conditions{LocationIDs: []uuid.UUID{allowed}}

	ok, err := c.Matches(grant.EvalContext{Now: time.Now(), ResourceID: allowed})
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = c.Matches(grant.EvalContext{Now: time.Now(), ResourceID: uuid.New()})
	require.NoError(t, err)
	assert.False(t, ok)

	// Location-scoped grants need a concrete resource to apply to.
	ok, err = c.Matches(grant.EvalContext{Now: time.Now(), ResourceID: uuid.Nil})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestGrant_Expiry(t *testing.T) {
	now := time.Now().UTC()
	expires := now.Add(time.Hour)
	g := grant.New(uuid.New(), uuid.New(), "hierarchy_node", uuid.New(), grant.LevelRead, uuid.New(),
		grant.WithExpiresAt(&expires),
	)

	assert.False(t, g.ExpiredAt(now))
	assert.False(t, g.ExpiredAt(expires), "a grant is valid at the exact expiry instant")
	assert.True(t, g.ExpiredAt(expires.Add(time.Second)))
}
