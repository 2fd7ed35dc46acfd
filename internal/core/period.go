package core

import (
	"fmt"
	"time"
)

// PeriodBounds returns the inclusive start and end instants of the bucket
// containing date. Weeks start on Monday; quarters on Jan/Apr/Jul/Oct;
// half-years on Jan/Jul. The end of one bucket is exactly the instant before
// the start of the next.
func PeriodBounds(date time.Time, g Granularity) (time.Time, time.Time, error) {
	start, err := periodStart(date, g)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	return start, nextPeriodStart(start, g).Add(-time.Nanosecond), nil
}

func periodStart(date time.Time, g Granularity) (time.Time, error) {
	y, m, d := date.Date()
	loc := date.Location()
	switch g {
	case Weekly:
		wd := int(date.Weekday())
		if wd == 0 {
			wd = 7
		}
		return time.Date(y, m, d-(wd-1), 0, 0, 0, 0, loc), nil
	case Monthly:
		return time.Date(y, m, 1, 0, 0, 0, 0, loc), nil
	case Quarterly:
		qm := time.Month((int(m)-1)/3*3 + 1)
		return time.Date(y, qm, 1, 0, 0, 0, 0, loc), nil
	case HalfYearly:
		hm := time.January
		if m > time.June {
			hm = time.July
		}
		return time.Date(y, hm, 1, 0, 0, 0, 0, loc), nil
	case Yearly:
		return time.Date(y, time.January, 1, 0, 0, 0, 0, loc), nil
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrUnsupportedGranularity, g)
}

func nextPeriodStart(start time.Time, g Granularity) time.Time {
	switch g {
	case Weekly:
		return start.AddDate(0, 0, 7)
	case Monthly:
		return start.AddDate(0, 1, 0)
	case Quarterly:
		return start.AddDate(0, 3, 0)
	case HalfYearly:
		return start.AddDate(0, 6, 0)
	default: // Yearly; granularity already validated by periodStart
		return start.AddDate(1, 0, 0)
	}
}

// PeriodLabel returns the canonical key of the bucket containing date:
// YYYY-Www, YYYY-MM, YYYY-Qn, YYYY-Hn or YYYY. Two dates share a label iff
// they share a bucket; week labels carry the ISO year so the law holds
// across year boundaries.
func PeriodLabel(date time.Time, g Granularity) (string, error) {
	switch g {
	case Weekly:
		y, w := date.ISOWeek()
		return fmt.Sprintf("%04d-W%02d", y, w), nil
	case Monthly:
		return fmt.Sprintf("%04d-%02d", date.Year(), int(date.Month())), nil
	case Quarterly:
		q := (int(date.Month())-1)/3 + 1
		return fmt.Sprintf("%04d-Q%d", date.Year(), q), nil
	case HalfYearly:
		h := 1
		if date.Month() > time.June {
			h = 2
		}
		return fmt.Sprintf("%04d-H%d", date.Year(), h), nil
	case Yearly:
		return fmt.Sprintf("%04d", date.Year()), nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedGranularity, g)
}

// ParsePeriodLabel is the inverse of PeriodLabel. It returns a
// representative date inside the bucket: the first day of the
// month/quarter/half/year, or the Monday of the ISO week.
func ParsePeriodLabel(label string, g Granularity) (time.Time, error) {
	switch g {
	case Weekly:
		var year, week int
		if _, err := fmt.Sscanf(label, "%d-W%d", &year, &week); err != nil {
			return time.Time{}, fmt.Errorf("parse week label %q: %w", label, err)
		}
		if week < 1 || week > 53 {
			return time.Time{}, fmt.Errorf("parse week label %q: week out of range", label)
		}
		return isoWeekMonday(year, week), nil
	case Monthly:
		t, err := time.Parse("2006-01", label)
		if err != nil {
			return time.Time{}, fmt.Errorf("parse month label %q: %w", label, err)
		}
		return t, nil
	case Quarterly:
		var year, quarter int
		if _, err := fmt.Sscanf(label, "%d-Q%d", &year, &quarter); err != nil {
			return time.Time{}, fmt.Errorf("parse quarter label %q: %w", label, err)
		}
		if quarter < 1 || quarter > 4 {
			return time.Time{}, fmt.Errorf("parse quarter label %q: quarter out of range", label)
		}
		return time.Date(year, time.Month((quarter-1)*3+1), 1, 0, 0, 0, 0, time.UTC), nil
	case HalfYearly:
		var year, half int
		if _, err := fmt.Sscanf(label, "%d-H%d", &year, &half); err != nil {
			return time.Time{}, fmt.Errorf("parse half-year label %q: %w", label, err)
		}
		if half != 1 && half != 2 {
			return time.Time{}, fmt.Errorf("parse half-year label %q: half out of range", label)
		}
		m := time.January
		if half == 2 {
			m = time.July
		}
		return time.Date(year, m, 1, 0, 0, 0, 0, time.UTC), nil
	case Yearly:
		t, err := time.Parse("2006", label)
		if err != nil {
			return time.Time{}, fmt.Errorf("parse year label %q: %w", label, err)
		}
		return t, nil
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrUnsupportedGranularity, g)
}

// isoWeekMonday returns the Monday of the given ISO week. Week 1 is the week
// containing January 4th.
func isoWeekMonday(year, week int) time.Time {
	jan4 := time.Date(year, time.January, 4, 0, 0, 0, 0, time.UTC)
	wd := int(jan4.Weekday())
	if wd == 0 {
		wd = 7
	}
	week1Monday := jan4.AddDate(0, 0, -(wd - 1))
	return week1Monday.AddDate(0, 0, (week-1)*7)
}

// PeriodsInRange walks backward one bucket at a time from the bucket
// containing end and returns count distinct labels, oldest first. Each step
// moves from a bucket's start to the day before it, which always lands in
// the previous bucket, so the walk is bounded.
func PeriodsInRange(end time.Time, g Granularity, count int) ([]string, error) {
	if err := g.Validate(); err != nil {
		return nil, err
	}
	if count <= 0 {
		return nil, nil
	}
	newest := make([]string, 0, count)
	cur := end
	for len(newest) < count {
		label, err := PeriodLabel(cur, g)
		if err != nil {
			return nil, err
		}
		if len(newest) == 0 || newest[len(newest)-1] != label {
			newest = append(newest, label)
		}
		start, err := periodStart(cur, g)
		if err != nil {
			return nil, err
		}
		cur = start.AddDate(0, 0, -1)
	}
	oldest := make([]string, len(newest))
	for i, label := range newest {
		oldest[len(newest)-1-i] = label
	}
	return oldest, nil
}
