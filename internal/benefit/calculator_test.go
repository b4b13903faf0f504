package benefit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ts(hour, min int) time.Time {
	return time.Date(2026, 3, 10, hour, min, 0, 0, time.UTC)
}

func f64(v float64) *float64 { return &v }

func tp(t time.Time) *time.Time { return &t }

func TestGridDowntime_InsideWindow(t *testing.T) {
	// 10:00 to 12:00, capacity 100 kW: 0.5 * 2h * 100.
	got := GridDowntime(tp(ts(10, 0)), tp(ts(12, 0)), f64(100))
	require.NotNil(t, got)
	assert.Equal(t, 100.0, *got)
}

func TestGridDowntime_PartialOverlap(t *testing.T) {
	// 07:00 to 10:30 overlaps the window by 1.5h.
	got := GridDowntime(tp(ts(7, 0)), tp(ts(10, 30)), f64(80))
	require.NotNil(t, got)
	assert.Equal(t, 60.0, *got)

	// 15:00 to 20:00 overlaps by 1h.
	got = GridDowntime(tp(ts(15, 0)), tp(ts(20, 0)), f64(80))
	require.NotNil(t, got)
	assert.Equal(t, 40.0, *got)
}

func TestGridDowntime_OutsideWindow(t *testing.T) {
	assert.Nil(t, GridDowntime(tp(ts(20, 0)), tp(ts(22, 0)), f64(100)))
	assert.Nil(t, GridDowntime(tp(ts(4, 0)), tp(ts(8, 59)), f64(100)))
}

func TestGridDowntime_SpansMultipleDays(t *testing.T) {
	// 15:00 on day one through 10:00 on day two: 1h + 1h of window.
	start := ts(15, 0)
	end := start.Add(19 * time.Hour)
	got := GridDowntime(tp(start), tp(end), f64(100))
	require.NotNil(t, got)
	assert.Equal(t, 100.0, *got)
}

func TestGridDowntime_MissingInputs(t *testing.T) {
	assert.Nil(t, GridDowntime(nil, tp(ts(12, 0)), f64(100)))
	assert.Nil(t, GridDowntime(tp(ts(10, 0)), nil, f64(100)))
	assert.Nil(t, GridDowntime(tp(ts(10, 0)), tp(ts(12, 0)), nil))
}

func TestGridDowntime_DegenerateInterval(t *testing.T) {
	assert.Nil(t, GridDowntime(tp(ts(12, 0)), tp(ts(12, 0)), f64(100)))
	assert.Nil(t, GridDowntime(tp(ts(12, 0)), tp(ts(10, 0)), f64(100)))
}

func TestGridDowntime_NonPositiveCapacity(t *testing.T) {
	assert.Nil(t, GridDowntime(tp(ts(10, 0)), tp(ts(12, 0)), f64(0)))
	assert.Nil(t, GridDowntime(tp(ts(10, 0)), tp(ts(12, 0)), f64(-5)))
}

func TestGridDowntime_RoundsToThreeDecimals(t *testing.T) {
	// 10 minutes at 3.7 kW: 0.5 * (1/6) * 3.7 = 0.30833... -> 0.308.
	got := GridDowntime(tp(ts(10, 0)), tp(ts(10, 10)), f64(3.7))
	require.NotNil(t, got)
	assert.Equal(t, 0.308, *got)
}

func TestGridDowntime_EndInDifferentZoneUsesStartLocation(t *testing.T) {
	loc := time.FixedZone("UTC+2", 2*60*60)
	start := ts(10, 0)
	// Same instant as 12:00 UTC expressed in UTC+2.
	end := time.Date(2026, 3, 10, 14, 0, 0, 0, loc)
	got := GridDowntime(tp(start), tp(end), f64(100))
	require.NotNil(t, got)
	assert.Equal(t, 100.0, *got)
}
