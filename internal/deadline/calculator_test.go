package deadline

import (
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/compliance-cli/internal/model"
)

func intPtr(n int) *int { return &n }

func TestCalculate_CalendarDays(t *testing.T) {
	trigger := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC) // Monday
	clause := &model.ContractClause{
		DeadlineDays: intPtr(7),
		DeadlineType: model.DeadlineCalendarDays,
	}

	got, err := Calculate(trigger, clause, nil)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 3, 9, 10, 0, 0, 0, time.UTC), got)
}

func TestCalculate_Hours(t *testing.T) {
	trigger := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	clause := &model.ContractClause{
		DeadlineDays: intPtr(48),
		DeadlineType: model.DeadlineHours,
	}

	got, err := Calculate(trigger, clause, nil)
	require.NoError(t, err)
	assert.Equal(t, trigger.Add(48*time.Hour), got)
}

func TestCalculate_BusinessDays(t *testing.T) {
	tests := []struct {
		name    string
		trigger time.Time
		days    int
		want    time.Time
	}{
		{
			// Counting starts the day after the trigger, so Friday plus one
			// business day is Monday.
			name:    "friday plus one lands on monday",
			trigger: time.Date(2026, 3, 6, 14, 0, 0, 0, time.UTC), // Friday
			days:    1,
			want:    time.Date(2026, 3, 9, 14, 0, 0, 0, time.UTC), // Monday
		},
		{
			name:    "monday plus five skips the weekend",
			trigger: time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC), // Monday
			days:    5,
			want:    time.Date(2026, 3, 9, 9, 0, 0, 0, time.UTC), // next Monday
		},
		{
			name:    "saturday trigger counts from monday",
			trigger: time.Date(2026, 3, 7, 9, 0, 0, 0, time.UTC), // Saturday
			days:    1,
			want:    time.Date(2026, 3, 9, 9, 0, 0, 0, time.UTC), // Monday
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clause := &model.ContractClause{
				DeadlineDays: intPtr(tt.days),
				DeadlineType: model.DeadlineBusinessDays,
			}
			got, err := Calculate(tt.trigger, clause, nil)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCalculate_BusinessDaysSkipsHolidays(t *testing.T) {
	cal := &HolidayCalendar{dates: map[string]string{
		"2026-07-03": "Independence Day (observed)",
	}}
	clause := &model.ContractClause{
		DeadlineDays: intPtr(1),
		DeadlineType: model.DeadlineBusinessDays,
	}

	// Thursday July 2. Friday the 3rd is a holiday, the 4th/5th are the
	// weekend, so one business day out is Monday the 6th.
	trigger := time.Date(2026, 7, 2, 8, 0, 0, 0, time.UTC)
	got, err := Calculate(trigger, clause, cal)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 7, 6, 8, 0, 0, 0, time.UTC), got)
}

func TestCalculate_CureStacksAfterPrimary(t *testing.T) {
	trigger := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	clause := &model.ContractClause{
		DeadlineDays: intPtr(7),
		DeadlineType: model.DeadlineCalendarDays,
		CureDays:     intPtr(14),
		CureType:     model.DeadlineCalendarDays,
	}

	got, err := Calculate(trigger, clause, nil)
	require.NoError(t, err)
	assert.Equal(t, trigger.AddDate(0, 0, 21), got)
}

func TestCalculate_CureDefaultsToCalendarDays(t *testing.T) {
	trigger := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	clause := &model.ContractClause{
		DeadlineDays: intPtr(2),
		DeadlineType: model.DeadlineCalendarDays,
		CureDays:     intPtr(3),
	}

	got, err := Calculate(trigger, clause, nil)
	require.NoError(t, err)
	assert.Equal(t, trigger.AddDate(0, 0, 5), got)
}

func TestCalculate_InvalidClause(t *testing.T) {
	trigger := time.Now()

	_, err := Calculate(trigger, &model.ContractClause{}, nil)
	require.Error(t, err)
	assert.True(t, eris.Is(err, model.ErrInvalidClauseConfiguration))

	_, err = Calculate(trigger, &model.ContractClause{
		DeadlineDays: intPtr(7),
		DeadlineType: model.DeadlineType("fortnights"),
	}, nil)
	require.Error(t, err)
	assert.True(t, eris.Is(err, model.ErrInvalidClauseConfiguration))
}

func TestHolidayCalendar_NilIsWeekendsOnly(t *testing.T) {
	var cal *HolidayCalendar
	assert.False(t, cal.IsHoliday(time.Date(2026, 7, 3, 0, 0, 0, 0, time.UTC)))
}
