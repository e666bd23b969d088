package models

import (
	"testing"
	"time"

	"bitbucket.org/mmdatafocus/obligations_backend/utils"
	"github.com/shopspring/decimal"
)

func recurrenceInput(recurrence *NewRecurrence) *NewTransaction {
	return &NewTransaction{
		Description:   "Shop rent",
		Amount:        decimal.NewFromInt(500000),
		Direction:     TransactionDirectionExpense,
		DueDate:       time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC),
		BankAccountId: 1,
		Recurrence:    recurrence,
	}
}

func TestTemplateFromInput_AbsentIntervalDefaultsToOne(t *testing.T) {
	tpl, err := TemplateFromInput("biz-1", recurrenceInput(&NewRecurrence{
		Frequency: RecurringFrequencyMonthly,
	}))
	if err != nil {
		t.Fatalf("TemplateFromInput: %v", err)
	}
	if tpl.IntervalCount != 1 {
		t.Fatalf("got interval %d, want 1", tpl.IntervalCount)
	}
}

func TestTemplateFromInput_RejectsExplicitZeroInterval(t *testing.T) {
	zero := 0
	_, err := TemplateFromInput("biz-1", recurrenceInput(&NewRecurrence{
		Frequency:     RecurringFrequencyMonthly,
		IntervalCount: &zero,
	}))
	if !utils.IsValidationError(err) {
		t.Fatalf("got %v, want validation error", err)
	}
}

func TestTemplateFromInput_RejectsNegativeInterval(t *testing.T) {
	negative := -2
	_, err := TemplateFromInput("biz-1", recurrenceInput(&NewRecurrence{
		Frequency:     RecurringFrequencyMonthly,
		IntervalCount: &negative,
	}))
	if !utils.IsValidationError(err) {
		t.Fatalf("got %v, want validation error", err)
	}
}

func TestTemplateFromTransaction_RejectsZeroIntervalRoot(t *testing.T) {
	frequency := RecurringFrequencyMonthly
	root := &Transaction{
		ID:            7,
		BusinessId:    "biz-1",
		Description:   "Shop rent",
		Amount:        decimal.NewFromInt(500000),
		Direction:     TransactionDirectionExpense,
		DueDate:       time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC),
		Frequency:     &frequency,
		IntervalCount: 0,
	}
	_, err := TemplateFromTransaction(root)
	if !utils.IsValidationError(err) {
		t.Fatalf("got %v, want validation error", err)
	}
}
