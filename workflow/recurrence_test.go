package workflow

import (
	"fmt"
	"testing"
	"time"

	"bitbucket.org/mmdatafocus/obligations_backend/models"
	"github.com/shopspring/decimal"
)

// NOTE: These tests are intentionally DB-free. Expansion is a pure function
// of the template, so the date arithmetic and amount splitting invariants can
// be checked without MySQL.

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func installmentTemplate(start time.Time, freq models.RecurringFrequency, interval int, count int, total string) *models.RecurringTemplate {
	return &models.RecurringTemplate{
		Description:      "Equipment loan",
		StartDate:        start,
		Frequency:        freq,
		IntervalCount:    interval,
		InstallmentCount: count,
		TotalAmount:      decimal.RequireFromString(total),
	}
}

func TestExpandTemplate_BiMonthlyKeepsStartAnchor(t *testing.T) {
	tpl := installmentTemplate(date(2024, time.January, 15), models.RecurringFrequencyMonthly, 2, 4, "1000")
	previews, err := ExpandTemplate(tpl, time.Time{})
	if err != nil {
		t.Fatalf("ExpandTemplate: %v", err)
	}
	want := []time.Time{
		date(2024, time.January, 15),
		date(2024, time.March, 15),
		date(2024, time.May, 15),
		date(2024, time.July, 15),
	}
	if len(previews) != len(want) {
		t.Fatalf("got %d previews, want %d", len(previews), len(want))
	}
	for i, p := range previews {
		if !p.DueDate.Equal(want[i]) {
			t.Fatalf("occurrence %d: got %s, want %s", i, p.DueDate, want[i])
		}
		if p.SequenceNo != i+1 {
			t.Fatalf("occurrence %d: sequence %d", i, p.SequenceNo)
		}
	}
}

func TestExpandTemplate_MonthEndClampDoesNotStick(t *testing.T) {
	// Jan 31 clamps to Feb 29 in a leap year, but March must return to the 31st.
	tpl := installmentTemplate(date(2024, time.January, 31), models.RecurringFrequencyMonthly, 1, 4, "400")
	previews, err := ExpandTemplate(tpl, time.Time{})
	if err != nil {
		t.Fatalf("ExpandTemplate: %v", err)
	}
	want := []time.Time{
		date(2024, time.January, 31),
		date(2024, time.February, 29),
		date(2024, time.March, 31),
		date(2024, time.April, 30),
	}
	for i, p := range previews {
		if !p.DueDate.Equal(want[i]) {
			t.Fatalf("occurrence %d: got %s, want %s", i, p.DueDate, want[i])
		}
	}
}

func TestExpandTemplate_NonLeapFebruary(t *testing.T) {
	tpl := installmentTemplate(date(2025, time.January, 31), models.RecurringFrequencyMonthly, 1, 2, "200")
	previews, err := ExpandTemplate(tpl, time.Time{})
	if err != nil {
		t.Fatalf("ExpandTemplate: %v", err)
	}
	if got := previews[1].DueDate; !got.Equal(date(2025, time.February, 28)) {
		t.Fatalf("got %s, want 2025-02-28", got)
	}
}

func TestSplitInstallments_SumEqualsTotal(t *testing.T) {
	totals := []string{"1000", "100.01", "0.01", "99999999.99", "3000000", "10.00", "7"}
	for run := 0; run < 100; run++ {
		count := run%12 + 1
		for _, raw := range totals {
			total := decimal.RequireFromString(raw)
			amounts := SplitInstallments(total, count)
			if len(amounts) != count {
				t.Fatalf("count=%d total=%s: got %d amounts", count, raw, len(amounts))
			}
			sum := decimal.Zero
			for _, a := range amounts {
				sum = sum.Add(a)
			}
			if !sum.Equal(total) {
				t.Fatalf("count=%d total=%s: amounts sum to %s", count, raw, sum)
			}
			base := total.Div(decimal.NewFromInt(int64(count))).Truncate(2)
			for i := 0; i < count-1; i++ {
				if !amounts[i].Equal(base) {
					t.Fatalf("count=%d total=%s: installment %d is %s, want %s", count, raw, i, amounts[i], base)
				}
			}
		}
	}
}

func TestSplitInstallments_LastAbsorbsRemainder(t *testing.T) {
	amounts := SplitInstallments(decimal.RequireFromString("100.00"), 3)
	if !amounts[0].Equal(decimal.RequireFromString("33.33")) {
		t.Fatalf("first installment: %s", amounts[0])
	}
	if !amounts[2].Equal(decimal.RequireFromString("33.34")) {
		t.Fatalf("last installment: %s", amounts[2])
	}
}

func TestExpandTemplate_InstallmentDescriptions(t *testing.T) {
	tpl := installmentTemplate(date(2024, time.June, 1), models.RecurringFrequencyMonthly, 1, 3, "300")
	previews, err := ExpandTemplate(tpl, time.Time{})
	if err != nil {
		t.Fatalf("ExpandTemplate: %v", err)
	}
	for i, p := range previews {
		want := fmt.Sprintf("Equipment loan (Installment %d/3)", i+1)
		if p.Description != want {
			t.Fatalf("got %q, want %q", p.Description, want)
		}
	}
}

func TestExpandTemplate_OpenEndedStopsAtHorizon(t *testing.T) {
	tpl := &models.RecurringTemplate{
		Description:   "Shop rent",
		StartDate:     date(2024, time.January, 1),
		Frequency:     models.RecurringFrequencyMonthly,
		IntervalCount: 1,
		Amount:        decimal.RequireFromString("500000"),
	}
	previews, err := ExpandTemplate(tpl, date(2024, time.April, 15))
	if err != nil {
		t.Fatalf("ExpandTemplate: %v", err)
	}
	// Jan 1, Feb 1, Mar 1, Apr 1
	if len(previews) != 4 {
		t.Fatalf("got %d previews, want 4", len(previews))
	}
	for i, p := range previews {
		if !p.Amount.Equal(tpl.Amount) {
			t.Fatalf("occurrence %d: amount %s", i, p.Amount)
		}
		want := fmt.Sprintf("Shop rent (Installment %d)", i+1)
		if p.Description != want {
			t.Fatalf("got %q, want %q", p.Description, want)
		}
	}
}

func TestExpandTemplate_EndDateBoundsBeforeInstallmentCount(t *testing.T) {
	endDate := date(2024, time.March, 1)
	tpl := installmentTemplate(date(2024, time.January, 1), models.RecurringFrequencyMonthly, 1, 6, "600")
	tpl.EndDate = &endDate
	previews, err := ExpandTemplate(tpl, time.Time{})
	if err != nil {
		t.Fatalf("ExpandTemplate: %v", err)
	}
	if len(previews) != 3 {
		t.Fatalf("got %d previews, want 3", len(previews))
	}
}

func TestExpandTemplate_WeeklyAndDaily(t *testing.T) {
	tpl := installmentTemplate(date(2024, time.January, 1), models.RecurringFrequencyWeekly, 2, 3, "300")
	previews, err := ExpandTemplate(tpl, time.Time{})
	if err != nil {
		t.Fatalf("ExpandTemplate: %v", err)
	}
	if !previews[2].DueDate.Equal(date(2024, time.January, 29)) {
		t.Fatalf("third weekly occurrence: %s", previews[2].DueDate)
	}

	tpl = installmentTemplate(date(2024, time.February, 27), models.RecurringFrequencyDaily, 1, 4, "400")
	previews, err = ExpandTemplate(tpl, time.Time{})
	if err != nil {
		t.Fatalf("ExpandTemplate: %v", err)
	}
	if !previews[3].DueDate.Equal(date(2024, time.March, 1)) {
		t.Fatalf("fourth daily occurrence: %s", previews[3].DueDate)
	}
}

func TestExpandTemplate_QuarterlyAndYearly(t *testing.T) {
	tpl := installmentTemplate(date(2024, time.November, 30), models.RecurringFrequencyQuarterly, 1, 2, "200")
	previews, err := ExpandTemplate(tpl, time.Time{})
	if err != nil {
		t.Fatalf("ExpandTemplate: %v", err)
	}
	if !previews[1].DueDate.Equal(date(2025, time.February, 28)) {
		t.Fatalf("second quarterly occurrence: %s", previews[1].DueDate)
	}

	tpl = installmentTemplate(date(2024, time.February, 29), models.RecurringFrequencyYearly, 1, 2, "200")
	previews, err = ExpandTemplate(tpl, time.Time{})
	if err != nil {
		t.Fatalf("ExpandTemplate: %v", err)
	}
	if !previews[1].DueDate.Equal(date(2025, time.February, 28)) {
		t.Fatalf("second yearly occurrence: %s", previews[1].DueDate)
	}
}

func TestExpandTemplate_RejectsInvalidTemplates(t *testing.T) {
	tpl := installmentTemplate(date(2024, time.January, 1), models.RecurringFrequencyMonthly, 0, 3, "300")
	if _, err := ExpandTemplate(tpl, time.Time{}); err == nil {
		t.Fatal("expected error for zero interval")
	}

	tpl = installmentTemplate(date(2024, time.January, 1), models.RecurringFrequencyMonthly, 1, 3, "0")
	if _, err := ExpandTemplate(tpl, time.Time{}); err == nil {
		t.Fatal("expected error for zero total")
	}

	open := &models.RecurringTemplate{
		Description:   "Rent",
		StartDate:     date(2024, time.June, 1),
		Frequency:     models.RecurringFrequencyMonthly,
		IntervalCount: 1,
		Amount:        decimal.RequireFromString("100"),
	}
	// horizon before the first occurrence yields nothing
	if _, err := ExpandTemplate(open, date(2024, time.May, 1)); err == nil {
		t.Fatal("expected error when the horizon precedes the start date")
	}
}
