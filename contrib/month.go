package contrib

import (
	"fmt"
	"strconv"
	"time"
)

// =============================================================================
// MONTH - Calculation month (YYYYMM)
// =============================================================================

// Month is a calendar month. Contributions are computed per month, so this
// is the engine's only time granularity below a date.
type Month struct {
	Year  int
	Month time.Month
}

func NewMonth(year int, month time.Month) Month {
	return Month{Year: year, Month: month}
}

// MonthOf returns the month containing t.
func MonthOf(t time.Time) Month {
	return Month{Year: t.Year(), Month: t.Month()}
}

// ParseMonth parses the YYYYMM form. "2023-01" is accepted as well.
func ParseMonth(s string) (Month, error) {
	if len(s) == 7 && s[4] == '-' {
		s = s[:4] + s[5:]
	}
	if len(s) != 6 {
		return Month{}, fmt.Errorf("%w: %q", ErrInvalidMonth, s)
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return Month{}, fmt.Errorf("%w: %q", ErrInvalidMonth, s)
	}
	m := Month{Year: n / 100, Month: time.Month(n % 100)}
	if !m.Valid() {
		return Month{}, fmt.Errorf("%w: %q", ErrInvalidMonth, s)
	}
	return m, nil
}

func (m Month) Valid() bool {
	return m.Year > 0 && m.Month >= time.January && m.Month <= time.December
}

// Int returns the YYYYMM integer form used as a storage key.
func (m Month) Int() int { return m.Year*100 + int(m.Month) }

func (m Month) String() string { return fmt.Sprintf("%04d%02d", m.Year, int(m.Month)) }

func (m Month) Before(o Month) bool { return m.Int() < o.Int() }
func (m Month) After(o Month) bool  { return m.Int() > o.Int() }
func (m Month) Equal(o Month) bool  { return m.Int() == o.Int() }

func (m Month) AddMonths(n int) Month {
	t := time.Date(m.Year, m.Month, 1, 0, 0, 0, 0, time.UTC).AddDate(0, n, 0)
	return MonthOf(t)
}

// FirstDay returns midnight UTC on the first day of the month.
func (m Month) FirstDay() time.Time {
	return time.Date(m.Year, m.Month, 1, 0, 0, 0, 0, time.UTC)
}

// LastDay returns midnight UTC on the last day of the month.
func (m Month) LastDay() time.Time {
	return m.AddMonths(1).FirstDay().AddDate(0, 0, -1)
}

// MonthFromInt converts the YYYYMM integer form back into a Month.
func MonthFromInt(n int) Month {
	return Month{Year: n / 100, Month: time.Month(n % 100)}
}

// =============================================================================
// DATES
// =============================================================================

const DateLayout = "2006-01-02"

// ParseDate parses YYYY-MM-DD into a UTC date.
func ParseDate(s string) (time.Time, error) {
	return time.ParseInLocation(DateLayout, s, time.UTC)
}

// Date is a shorthand constructor for UTC dates.
func Date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}
