package models

import (
	"time"

	"bitbucket.org/mmdatafocus/obligations_backend/utils"
	"github.com/shopspring/decimal"
)

// RecurringTemplate is the expansion view of a series root. It is never
// stored; it is rebuilt from the root row whenever a series needs more
// instances.
type RecurringTemplate struct {
	TransactionId    int
	BusinessId       string
	Description      string
	Direction        TransactionDirection
	StartDate        time.Time
	Frequency        RecurringFrequency
	IntervalCount    int
	InstallmentCount int
	EndDate          *time.Time
	// Amount is the per-occurrence amount for open-ended series.
	// TotalAmount is split across installments for bounded ones.
	Amount        decimal.Decimal
	TotalAmount   decimal.Decimal
	BankAccountId int
	CostCenterId  int
	CategoryId    int
	SubCategoryId int
	Notes         string
}

// IsInstallmentPlan reports whether the series splits a known total across a
// fixed number of installments.
func (tpl *RecurringTemplate) IsInstallmentPlan() bool {
	return tpl.InstallmentCount > 0
}

func (tpl *RecurringTemplate) Validate() error {
	if tpl.Description == "" {
		return utils.NewValidationError("description", "is required")
	}
	if tpl.StartDate.IsZero() {
		return utils.NewValidationError("start_date", "is required")
	}
	if tpl.IntervalCount <= 0 {
		return utils.NewValidationError("interval_count", "must be positive")
	}
	if tpl.InstallmentCount < 0 {
		return utils.NewValidationError("installment_count", "must not be negative")
	}
	if tpl.EndDate != nil && tpl.EndDate.Before(tpl.StartDate) {
		return utils.NewValidationError("end_date", "must not be before the start date")
	}
	if tpl.IsInstallmentPlan() {
		if !tpl.TotalAmount.IsPositive() {
			return utils.NewValidationError("total_amount", "must be positive")
		}
	} else {
		if !tpl.Amount.IsPositive() {
			return utils.NewValidationError("amount", "must be positive")
		}
	}
	return nil
}

// TemplateFromTransaction rebuilds the expansion template from a series root.
// Returns a validation error when the row carries no recurrence.
func TemplateFromTransaction(t *Transaction) (*RecurringTemplate, error) {
	if t.Frequency == nil {
		return nil, utils.NewValidationError("frequency", "transaction is not a series root")
	}
	if t.ParentTemplateId != nil {
		return nil, utils.NewValidationError("id", "generated instances cannot be expanded")
	}

	tpl := &RecurringTemplate{
		TransactionId:    t.ID,
		BusinessId:       t.BusinessId,
		Description:      t.Description,
		Direction:        t.Direction,
		StartDate:        t.DueDate,
		Frequency:        *t.Frequency,
		IntervalCount:    t.IntervalCount,
		InstallmentCount: t.InstallmentCount,
		EndDate:          t.RecurrenceEndDate,
		Amount:           t.Amount,
		TotalAmount:      t.TotalAmount,
		BankAccountId:    t.BankAccountId,
		CostCenterId:     t.CostCenterId,
		CategoryId:       t.CategoryId,
		SubCategoryId:    t.SubCategoryId,
		Notes:            t.Notes,
	}
	if err := tpl.Validate(); err != nil {
		return nil, err
	}
	return tpl, nil
}

// TemplateFromInput builds the expansion template for a series that is being
// created. The root transaction id is not known yet.
func TemplateFromInput(businessId string, input *NewTransaction) (*RecurringTemplate, error) {
	if input.Recurrence == nil {
		return nil, utils.NewValidationError("recurrence", "is required")
	}

	// absent means every period; an explicit zero is caught by Validate
	intervalCount := 1
	if input.Recurrence.IntervalCount != nil {
		intervalCount = *input.Recurrence.IntervalCount
	}

	tpl := &RecurringTemplate{
		BusinessId:       businessId,
		Description:      input.Description,
		Direction:        input.Direction,
		StartDate:        input.DueDate,
		Frequency:        input.Recurrence.Frequency,
		IntervalCount:    intervalCount,
		InstallmentCount: input.Recurrence.InstallmentCount,
		EndDate:          input.Recurrence.EndDate,
		BankAccountId:    input.BankAccountId,
		CostCenterId:     input.CostCenterId,
		CategoryId:       input.CategoryId,
		SubCategoryId:    input.SubCategoryId,
		Notes:            input.Notes,
	}
	if tpl.IsInstallmentPlan() {
		// the submitted amount is the plan total, split across installments
		tpl.TotalAmount = input.Amount
	} else {
		tpl.Amount = input.Amount
	}
	if err := tpl.Validate(); err != nil {
		return nil, err
	}
	return tpl, nil
}
