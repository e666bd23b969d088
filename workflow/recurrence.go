package workflow

import (
	"fmt"
	"time"

	"bitbucket.org/mmdatafocus/obligations_backend/models"
	"bitbucket.org/mmdatafocus/obligations_backend/utils"
	"github.com/shopspring/decimal"
)

// InstancePreview is one occurrence of an expanded series before persistence.
type InstancePreview struct {
	SequenceNo  int
	DueDate     time.Time
	Amount      decimal.Decimal
	Description string
}

// hard cap on instances materialized in one expansion, guards against
// runaway horizons on daily series
const maxInstancesPerExpansion = 1000

// addMonthsClamped steps months forward from anchor, clamping the day to the
// target month's length. The clamp never sticks: stepping from Jan 31 yields
// Feb 28/29 and then Mar 31, because every occurrence is computed from the
// original anchor rather than from the previous clamped date.
func addMonthsClamped(anchor time.Time, months int) time.Time {
	year, month, day := anchor.Date()
	firstOfTarget := time.Date(year, month+time.Month(months), 1, 0, 0, 0, 0, anchor.Location())
	lastDay := firstOfTarget.AddDate(0, 1, -1).Day()
	if day > lastDay {
		day = lastDay
	}
	return time.Date(firstOfTarget.Year(), firstOfTarget.Month(), day,
		anchor.Hour(), anchor.Minute(), anchor.Second(), anchor.Nanosecond(), anchor.Location())
}

// occurrenceDate returns the due date of the i-th occurrence (0-based),
// always derived from the series start anchor.
func occurrenceDate(start time.Time, frequency models.RecurringFrequency, intervalCount int, i int) time.Time {
	steps := i * intervalCount
	switch frequency {
	case models.RecurringFrequencyDaily:
		return start.AddDate(0, 0, steps)
	case models.RecurringFrequencyWeekly:
		return start.AddDate(0, 0, 7*steps)
	case models.RecurringFrequencyMonthly:
		return addMonthsClamped(start, steps)
	case models.RecurringFrequencyQuarterly:
		return addMonthsClamped(start, 3*steps)
	case models.RecurringFrequencyYearly:
		return addMonthsClamped(start, 12*steps)
	}
	return start
}

// SplitInstallments divides total across count installments. Each installment
// is the total divided by count truncated to 2 decimal places; the last one
// absorbs the rounding remainder so the amounts always sum back to total.
func SplitInstallments(total decimal.Decimal, count int) []decimal.Decimal {
	amounts := make([]decimal.Decimal, count)
	if count <= 0 {
		return amounts
	}
	base := total.Div(decimal.NewFromInt(int64(count))).Truncate(2)
	allocated := decimal.Zero
	for i := 0; i < count-1; i++ {
		amounts[i] = base
		allocated = allocated.Add(base)
	}
	amounts[count-1] = total.Sub(allocated)
	return amounts
}

// ExpandTemplate computes the occurrences of a series. Bounded plans produce
// exactly InstallmentCount instances (cut short by EndDate when that is
// stricter); open-ended ones run up to horizon.
func ExpandTemplate(tpl *models.RecurringTemplate, horizon time.Time) ([]InstancePreview, error) {
	if err := tpl.Validate(); err != nil {
		return nil, err
	}

	var previews []InstancePreview
	if tpl.IsInstallmentPlan() {
		count := tpl.InstallmentCount
		amounts := SplitInstallments(tpl.TotalAmount, count)
		for i := 0; i < count; i++ {
			dueDate := occurrenceDate(tpl.StartDate, tpl.Frequency, tpl.IntervalCount, i)
			if tpl.EndDate != nil && dueDate.After(*tpl.EndDate) {
				break
			}
			previews = append(previews, InstancePreview{
				SequenceNo:  i + 1,
				DueDate:     dueDate,
				Amount:      amounts[i],
				Description: fmt.Sprintf("%s (Installment %d/%d)", tpl.Description, i+1, count),
			})
		}
		return previews, nil
	}

	for i := 0; i < maxInstancesPerExpansion; i++ {
		dueDate := occurrenceDate(tpl.StartDate, tpl.Frequency, tpl.IntervalCount, i)
		if dueDate.After(horizon) {
			break
		}
		if tpl.EndDate != nil && dueDate.After(*tpl.EndDate) {
			break
		}
		previews = append(previews, InstancePreview{
			SequenceNo:  i + 1,
			DueDate:     dueDate,
			Amount:      tpl.Amount,
			Description: fmt.Sprintf("%s (Installment %d)", tpl.Description, i+1),
		})
	}
	if len(previews) == 0 {
		return nil, utils.NewValidationError("recurrence", "series produces no instances")
	}
	return previews, nil
}
