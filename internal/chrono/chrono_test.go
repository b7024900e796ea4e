package chrono

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrapeforge/scrapeforge/internal/errs"
)

var fixed = time.Date(2024, 6, 15, 12, 30, 45, 0, time.UTC)

func TestDescribeAtDefaults(t *testing.T) {
	d, err := describeAt(fixed, "", "")
	require.NoError(t, err)

	assert.Equal(t, "UTC", d.Timezone)
	assert.Equal(t, "2024-06-15", d.Date)
	assert.Equal(t, "12:30:45", d.Time)
	assert.Equal(t, "Saturday", d.Weekday)
	assert.Equal(t, fixed.UnixMilli(), d.UnixMilli)
	assert.Equal(t, "+00:00", d.UTCOffset)
}

func TestDescribeAtTimezone(t *testing.T) {
	d, err := describeAt(fixed, "America/New_York", "")
	require.NoError(t, err)

	// EDT is four hours behind UTC in June
	assert.Equal(t, "08:30:45", d.Time)
	assert.Equal(t, "-04:00", d.UTCOffset)
	assert.Equal(t, fixed.UnixMilli(), d.UnixMilli)
}

func TestDescribeAtCustomLayout(t *testing.T) {
	d, err := describeAt(fixed, "", "January 2, 2006")
	require.NoError(t, err)
	assert.Equal(t, "June 15, 2024", d.Date)
}

func TestDescribeAtUnknownTimezone(t *testing.T) {
	_, err := describeAt(fixed, "Mars/Olympus", "")
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.ErrInvalidRequest))
}
