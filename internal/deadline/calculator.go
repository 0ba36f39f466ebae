package deadline

import (
	"os"
	"time"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/compliance-cli/internal/model"
)

// HolidayCalendar holds project-configured non-business days, loaded from a
// YAML file. A nil calendar means weekends only.
type HolidayCalendar struct {
	dates map[string]string // date "2006-01-02" to holiday name
}

type holidayFile struct {
	Holidays []struct {
		Date string `yaml:"date"`
		Name string `yaml:"name"`
	} `yaml:"holidays"`
}

// LoadHolidayCalendar reads a holiday calendar from a YAML file.
func LoadHolidayCalendar(path string) (*HolidayCalendar, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "deadline: read holiday calendar %s", path)
	}
	var f holidayFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, eris.Wrap(err, "deadline: parse holiday calendar")
	}
	cal := &HolidayCalendar{dates: make(map[string]string, len(f.Holidays))}
	for _, h := range f.Holidays {
		if _, err := time.Parse("2006-01-02", h.Date); err != nil {
			return nil, eris.Wrapf(err, "deadline: bad holiday date %q", h.Date)
		}
		cal.dates[h.Date] = h.Name
	}
	return cal, nil
}

// IsHoliday reports whether t falls on a configured holiday.
func (c *HolidayCalendar) IsHoliday(t time.Time) bool {
	if c == nil {
		return false
	}
	_, ok := c.dates[t.Format("2006-01-02")]
	return ok
}

// Calculate computes the concrete deadline timestamp for a clause triggered
// at the given instant. The cure period, when present, is appended after the
// primary deadline: its clock starts at the primary deadline, not the
// trigger. Fails with ErrInvalidClauseConfiguration when the clause carries
// no deadline rule.
func Calculate(trigger time.Time, clause *model.ContractClause, cal *HolidayCalendar) (time.Time, error) {
	days, dt, err := clause.DeadlineRule()
	if err != nil {
		return time.Time{}, err
	}

	deadline, err := advance(trigger, days, dt, cal)
	if err != nil {
		return time.Time{}, err
	}

	if cureDays, cureType, ok := clause.CureRule(); ok {
		deadline, err = advance(deadline, cureDays, cureType, cal)
		if err != nil {
			return time.Time{}, err
		}
	}
	return deadline, nil
}

// advance moves from forward by n units of the given deadline type.
func advance(from time.Time, n int, dt model.DeadlineType, cal *HolidayCalendar) (time.Time, error) {
	switch dt {
	case model.DeadlineCalendarDays:
		return from.AddDate(0, 0, n), nil
	case model.DeadlineHours:
		return from.Add(time.Duration(n) * time.Hour), nil
	case model.DeadlineBusinessDays:
		return addBusinessDays(from, n, cal), nil
	default:
		return time.Time{}, eris.Wrapf(model.ErrInvalidClauseConfiguration,
			"deadline: unknown deadline type %q", dt)
	}
}

// addBusinessDays walks forward n business days, skipping weekends and
// configured holidays. Counting starts the day after from, so a Friday
// trigger plus one business day lands on Monday. Time of day passes through.
func addBusinessDays(from time.Time, n int, cal *HolidayCalendar) time.Time {
	cur := from
	for counted := 0; counted < n; {
		cur = cur.AddDate(0, 0, 1)
		if isBusinessDay(cur, cal) {
			counted++
		}
	}
	return cur
}

func isBusinessDay(t time.Time, cal *HolidayCalendar) bool {
	switch t.Weekday() {
	case time.Saturday, time.Sunday:
		return false
	}
	return !cal.IsHoliday(t)
}
