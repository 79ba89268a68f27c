package tooling

import (
	"fmt"
	"time"

	"expensechat/internal/domain"
)

// Period is a calculate_total reporting window relative to today.
type Period string

const (
	PeriodToday Period = "today"
	PeriodWeek  Period = "week"
	PeriodMonth Period = "month"
	PeriodAll   Period = "all"
)

// Range returns the inclusive date bounds of p as of today. Empty bounds are
// open. A week reaches back 7 days; a month one calendar month.
func (p Period) Range(today time.Time) (start, end string, err error) {
	day := today.Format(domain.DateLayout)
	switch p {
	case PeriodToday:
		return day, day, nil
	case PeriodWeek:
		return today.AddDate(0, 0, -7).Format(domain.DateLayout), "", nil
	case PeriodMonth:
		return today.AddDate(0, -1, 0).Format(domain.DateLayout), "", nil
	case PeriodAll:
		return "", "", nil
	default:
		return "", "", fmt.Errorf("%w: unknown period %q", domain.ErrInvalidArguments, string(p))
	}
}

// parseDate validates a YYYY-MM-DD argument and returns it normalized.
func parseDate(field, value string) (string, error) {
	d, err := time.Parse(domain.DateLayout, value)
	if err != nil {
		return "", fmt.Errorf("%w: %s must be a date in YYYY-MM-DD format, got %q", domain.ErrInvalidArguments, field, value)
	}
	return d.Format(domain.DateLayout), nil
}
