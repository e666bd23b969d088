package reports

import (
	"testing"
	"time"

	"bitbucket.org/mmdatafocus/obligations_backend/models"
	"github.com/shopspring/decimal"
)

// NOTE: These tests are intentionally DB-free. BuildCashFlow is a pure
// aggregation over already-loaded rows.

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func paidInstance(id int, direction models.TransactionDirection, amount string, paymentDate time.Time) CashFlowInstance {
	return CashFlowInstance{
		TransactionId: id,
		Description:   "obligation",
		Amount:        decimal.RequireFromString(amount),
		Direction:     direction,
		DueDate:       paymentDate,
		PaymentDate:   &paymentDate,
		CurrentStatus: models.TransactionStatusPaid,
	}
}

func TestBuildCashFlow_RunningBalanceFromOpening(t *testing.T) {
	instances := []CashFlowInstance{
		paidInstance(1, models.TransactionDirectionIncome, "100", day(2024, time.March, 2)),
		paidInstance(2, models.TransactionDirectionExpense, "60", day(2024, time.March, 5)),
	}
	report, err := BuildCashFlow(instances, day(2024, time.March, 1), day(2024, time.March, 7), decimal.RequireFromString("500"))
	if err != nil {
		t.Fatalf("BuildCashFlow: %v", err)
	}
	if len(report.Entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(report.Entries))
	}
	if !report.Entries[0].RunningBalance.Equal(decimal.RequireFromString("600")) {
		t.Fatalf("first running balance: %s", report.Entries[0].RunningBalance)
	}
	if !report.Entries[1].RunningBalance.Equal(decimal.RequireFromString("540")) {
		t.Fatalf("second running balance: %s", report.Entries[1].RunningBalance)
	}
	if !report.ClosingBalance.Equal(decimal.RequireFromString("540")) {
		t.Fatalf("closing balance: %s", report.ClosingBalance)
	}
}

func TestBuildCashFlow_ZeroActivityDaysPresent(t *testing.T) {
	instances := []CashFlowInstance{
		paidInstance(1, models.TransactionDirectionIncome, "100", day(2024, time.March, 3)),
	}
	report, err := BuildCashFlow(instances, day(2024, time.March, 1), day(2024, time.March, 5), decimal.Zero)
	if err != nil {
		t.Fatalf("BuildCashFlow: %v", err)
	}
	if len(report.Daily) != 5 {
		t.Fatalf("got %d daily buckets, want 5", len(report.Daily))
	}
	if report.Daily[0].Date != "2024-03-01" || !report.Daily[0].NetChange.IsZero() {
		t.Fatalf("first day: %+v", report.Daily[0])
	}
	if report.Daily[2].Date != "2024-03-03" || !report.Daily[2].Inflow.Equal(decimal.RequireFromString("100")) {
		t.Fatalf("activity day: %+v", report.Daily[2])
	}
	// the accumulated balance carries across quiet days
	if !report.Daily[1].Balance.IsZero() {
		t.Fatalf("day before activity: balance %s", report.Daily[1].Balance)
	}
	if !report.Daily[4].Balance.Equal(decimal.RequireFromString("100")) {
		t.Fatalf("last day: balance %s", report.Daily[4].Balance)
	}
}

func TestBuildCashFlow_ProjectedAndRealizedStaySeparate(t *testing.T) {
	// due in March, paid in April: projected lands in the due month,
	// realized in the payment month
	paymentDate := day(2024, time.April, 2)
	crossMonth := CashFlowInstance{
		TransactionId: 1,
		Description:   "rent",
		Amount:        decimal.RequireFromString("500"),
		Direction:     models.TransactionDirectionExpense,
		DueDate:       day(2024, time.March, 28),
		PaymentDate:   &paymentDate,
		CurrentStatus: models.TransactionStatusPaid,
	}
	pending := CashFlowInstance{
		TransactionId: 2,
		Description:   "invoice",
		Amount:        decimal.RequireFromString("300"),
		Direction:     models.TransactionDirectionIncome,
		DueDate:       day(2024, time.April, 10),
		CurrentStatus: models.TransactionStatusPending,
	}
	report, err := BuildCashFlow([]CashFlowInstance{crossMonth, pending},
		day(2024, time.March, 1), day(2024, time.April, 30), decimal.Zero)
	if err != nil {
		t.Fatalf("BuildCashFlow: %v", err)
	}
	if len(report.Monthly) != 2 {
		t.Fatalf("got %d months, want 2", len(report.Monthly))
	}
	march, april := report.Monthly[0], report.Monthly[1]
	if march.Month != "2024-03" || april.Month != "2024-04" {
		t.Fatalf("month order: %s, %s", march.Month, april.Month)
	}
	if !march.ProjectedOutflow.Equal(decimal.RequireFromString("500")) || !march.RealizedOutflow.IsZero() {
		t.Fatalf("march: %+v", march)
	}
	if !april.RealizedOutflow.Equal(decimal.RequireFromString("500")) || !april.ProjectedOutflow.IsZero() {
		t.Fatalf("april: %+v", april)
	}
	// pending rows project but never realize
	if !april.ProjectedInflow.Equal(decimal.RequireFromString("300")) || !april.RealizedInflow.IsZero() {
		t.Fatalf("april inflow: %+v", april)
	}
}

func TestBuildCashFlow_CancelledExcludedEverywhere(t *testing.T) {
	cancelled := CashFlowInstance{
		TransactionId: 1,
		Amount:        decimal.RequireFromString("100"),
		Direction:     models.TransactionDirectionExpense,
		DueDate:       day(2024, time.March, 10),
		CurrentStatus: models.TransactionStatusCancelled,
	}
	report, err := BuildCashFlow([]CashFlowInstance{cancelled},
		day(2024, time.March, 1), day(2024, time.March, 31), decimal.Zero)
	if err != nil {
		t.Fatalf("BuildCashFlow: %v", err)
	}
	if len(report.Entries) != 0 {
		t.Fatalf("cancelled row produced entries")
	}
	if len(report.Monthly) != 0 {
		t.Fatalf("cancelled row produced monthly buckets: %+v", report.Monthly[0])
	}
}

func TestBuildCashFlow_SameDayKeepsInputOrder(t *testing.T) {
	sameDay := day(2024, time.March, 4)
	instances := []CashFlowInstance{
		paidInstance(1, models.TransactionDirectionIncome, "10", sameDay),
		paidInstance(2, models.TransactionDirectionIncome, "20", sameDay),
		paidInstance(3, models.TransactionDirectionIncome, "30", sameDay),
	}
	for run := 0; run < 100; run++ {
		report, err := BuildCashFlow(instances, day(2024, time.March, 1), day(2024, time.March, 7), decimal.Zero)
		if err != nil {
			t.Fatalf("BuildCashFlow: %v", err)
		}
		for i, entry := range report.Entries {
			if entry.TransactionId != i+1 {
				t.Fatalf("run %d: entry %d is transaction %d", run, i, entry.TransactionId)
			}
		}
	}
}

func TestBuildCashFlow_PaymentsOutsideWindowIgnored(t *testing.T) {
	instances := []CashFlowInstance{
		paidInstance(1, models.TransactionDirectionIncome, "100", day(2024, time.February, 28)),
		paidInstance(2, models.TransactionDirectionIncome, "200", day(2024, time.March, 15)),
		paidInstance(3, models.TransactionDirectionIncome, "300", day(2024, time.April, 1)),
	}
	report, err := BuildCashFlow(instances, day(2024, time.March, 1), day(2024, time.March, 31), decimal.Zero)
	if err != nil {
		t.Fatalf("BuildCashFlow: %v", err)
	}
	if len(report.Entries) != 1 || report.Entries[0].TransactionId != 2 {
		t.Fatalf("entries: %+v", report.Entries)
	}
	if !report.ClosingBalance.Equal(decimal.RequireFromString("200")) {
		t.Fatalf("closing balance: %s", report.ClosingBalance)
	}
}

func TestBuildCashFlow_RejectsInvertedWindow(t *testing.T) {
	_, err := BuildCashFlow(nil, day(2024, time.March, 10), day(2024, time.March, 1), decimal.Zero)
	if err == nil {
		t.Fatal("expected error for inverted window")
	}
}
