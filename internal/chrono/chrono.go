// Package chrono is the temporal-context helper: date and timezone text
// generation for callers that want human-readable "now" descriptions
// alongside scraped data.
package chrono

import (
	"time"

	"github.com/scrapeforge/scrapeforge/internal/errs"
)

// Description is the formatted temporal context for one timezone.
type Description struct {
	Timezone  string `json:"timezone"`
	ISO       string `json:"iso"`
	Date      string `json:"date"`
	Time      string `json:"time"`
	Weekday   string `json:"weekday"`
	UnixMilli int64  `json:"unixMilli"`
	UTCOffset string `json:"utcOffset"`
}

// Describe formats the current instant in the given IANA timezone. An
// empty tz means UTC. The optional layout overrides the date format
// (Go reference layout).
func Describe(tz, layout string) (*Description, error) {
	return describeAt(time.Now(), tz, layout)
}

func describeAt(now time.Time, tz, layout string) (*Description, error) {
	if tz == "" {
		tz = "UTC"
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, errs.Wrapf(errs.ErrInvalidRequest, "unknown timezone %q", tz)
	}
	if layout == "" {
		layout = "2006-01-02"
	}

	local := now.In(loc)
	return &Description{
		Timezone:  tz,
		ISO:       local.Format(time.RFC3339),
		Date:      local.Format(layout),
		Time:      local.Format("15:04:05"),
		Weekday:   local.Weekday().String(),
		UnixMilli: local.UnixMilli(),
		UTCOffset: local.Format("-07:00"),
	}, nil
}
