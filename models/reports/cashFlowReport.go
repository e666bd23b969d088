package reports

import (
	"context"
	"errors"
	"sort"
	"time"

	"bitbucket.org/mmdatafocus/obligations_backend/config"
	"bitbucket.org/mmdatafocus/obligations_backend/models"
	"bitbucket.org/mmdatafocus/obligations_backend/utils"
	"github.com/shopspring/decimal"
)

// CashFlowInstance is the slice of a transaction the report needs. Rows are
// loaded once and aggregated in memory.
type CashFlowInstance struct {
	TransactionId int
	Description   string
	Amount        decimal.Decimal
	Direction     models.TransactionDirection
	DueDate       time.Time
	PaymentDate   *time.Time
	CurrentStatus models.TransactionStatus
}

type CashFlowEntry struct {
	TransactionId  int             `json:"transaction_id"`
	Date           string          `json:"date"`
	Description    string          `json:"description"`
	Direction      models.TransactionDirection `json:"direction"`
	Amount         decimal.Decimal `json:"amount"`
	RunningBalance decimal.Decimal `json:"running_balance"`
}

type DailyCashFlow struct {
	Date      string          `json:"date"`
	Inflow    decimal.Decimal `json:"inflow"`
	Outflow   decimal.Decimal `json:"outflow"`
	NetChange decimal.Decimal `json:"net_change"`
	// Balance is the end-of-day balance accumulated from the opening balance.
	Balance decimal.Decimal `json:"balance"`
}

// MonthlyCashFlow keeps the projected and realized views side by side.
// Projected counts every non-cancelled obligation by due date; realized counts
// paid ones by payment date. The two are never netted against each other.
type MonthlyCashFlow struct {
	Month            string          `json:"month"`
	ProjectedInflow  decimal.Decimal `json:"projected_inflow"`
	ProjectedOutflow decimal.Decimal `json:"projected_outflow"`
	ProjectedNet     decimal.Decimal `json:"projected_net"`
	RealizedInflow   decimal.Decimal `json:"realized_inflow"`
	RealizedOutflow  decimal.Decimal `json:"realized_outflow"`
	RealizedNet      decimal.Decimal `json:"realized_net"`
}

type CashFlowReport struct {
	FromDate       string             `json:"from_date"`
	ToDate         string             `json:"to_date"`
	OpeningBalance decimal.Decimal    `json:"opening_balance"`
	ClosingBalance decimal.Decimal    `json:"closing_balance"`
	Entries        []*CashFlowEntry   `json:"entries"`
	Daily          []*DailyCashFlow   `json:"daily"`
	Monthly        []*MonthlyCashFlow `json:"monthly"`
}

func signedAmount(direction models.TransactionDirection, amount decimal.Decimal) decimal.Decimal {
	if direction == models.TransactionDirectionIncome {
		return amount
	}
	return amount.Neg()
}

func dayOf(t time.Time, loc *time.Location) time.Time {
	local := t.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
}

// BuildCashFlow aggregates the given instances into the report. Entries and
// the running balance cover realized movements only; dates are bucketed in the
// location of fromDate.
func BuildCashFlow(instances []CashFlowInstance, fromDate time.Time, toDate time.Time, openingBalance decimal.Decimal) (*CashFlowReport, error) {
	loc := fromDate.Location()
	fromDay := dayOf(fromDate, loc)
	toDay := dayOf(toDate, loc)
	if toDay.Before(fromDay) {
		return nil, utils.NewValidationError("to_date", "must not be before from_date")
	}

	type realized struct {
		instance CashFlowInstance
		day      time.Time
	}
	var paid []realized
	for _, instance := range instances {
		if instance.CurrentStatus != models.TransactionStatusPaid || instance.PaymentDate == nil {
			continue
		}
		day := dayOf(*instance.PaymentDate, loc)
		if day.Before(fromDay) || day.After(toDay) {
			continue
		}
		paid = append(paid, realized{instance: instance, day: day})
	}
	// stable so same-day movements keep their input order
	sort.SliceStable(paid, func(i, j int) bool {
		return paid[i].day.Before(paid[j].day)
	})

	report := &CashFlowReport{
		FromDate:       fromDay.Format("2006-01-02"),
		ToDate:         toDay.Format("2006-01-02"),
		OpeningBalance: openingBalance,
	}

	dailyByDate := make(map[string]*DailyCashFlow)
	runningBalance := openingBalance
	for _, entry := range paid {
		runningBalance = runningBalance.Add(signedAmount(entry.instance.Direction, entry.instance.Amount))
		date := entry.day.Format("2006-01-02")
		report.Entries = append(report.Entries, &CashFlowEntry{
			TransactionId:  entry.instance.TransactionId,
			Date:           date,
			Description:    entry.instance.Description,
			Direction:      entry.instance.Direction,
			Amount:         entry.instance.Amount,
			RunningBalance: runningBalance,
		})
		daily := dailyByDate[date]
		if daily == nil {
			daily = &DailyCashFlow{Date: date, Inflow: decimal.Zero, Outflow: decimal.Zero, NetChange: decimal.Zero}
			dailyByDate[date] = daily
		}
		if entry.instance.Direction == models.TransactionDirectionIncome {
			daily.Inflow = daily.Inflow.Add(entry.instance.Amount)
		} else {
			daily.Outflow = daily.Outflow.Add(entry.instance.Amount)
		}
		daily.NetChange = daily.Inflow.Sub(daily.Outflow)
	}
	report.ClosingBalance = runningBalance

	// one bucket per calendar day, zero-activity days included
	dayBalance := openingBalance
	for day := fromDay; !day.After(toDay); day = day.AddDate(0, 0, 1) {
		date := day.Format("2006-01-02")
		daily, ok := dailyByDate[date]
		if !ok {
			daily = &DailyCashFlow{Date: date, Inflow: decimal.Zero, Outflow: decimal.Zero, NetChange: decimal.Zero}
		}
		dayBalance = dayBalance.Add(daily.NetChange)
		daily.Balance = dayBalance
		report.Daily = append(report.Daily, daily)
	}

	monthlyByMonth := make(map[string]*MonthlyCashFlow)
	monthOf := func(day time.Time) *MonthlyCashFlow {
		month := day.Format("2006-01")
		m := monthlyByMonth[month]
		if m == nil {
			m = &MonthlyCashFlow{
				Month:            month,
				ProjectedInflow:  decimal.Zero,
				ProjectedOutflow: decimal.Zero,
				ProjectedNet:     decimal.Zero,
				RealizedInflow:   decimal.Zero,
				RealizedOutflow:  decimal.Zero,
				RealizedNet:      decimal.Zero,
			}
			monthlyByMonth[month] = m
		}
		return m
	}
	for _, instance := range instances {
		if instance.CurrentStatus == models.TransactionStatusCancelled {
			continue
		}
		dueDay := dayOf(instance.DueDate, loc)
		if dueDay.Before(fromDay) || dueDay.After(toDay) {
			continue
		}
		m := monthOf(dueDay)
		if instance.Direction == models.TransactionDirectionIncome {
			m.ProjectedInflow = m.ProjectedInflow.Add(instance.Amount)
		} else {
			m.ProjectedOutflow = m.ProjectedOutflow.Add(instance.Amount)
		}
		m.ProjectedNet = m.ProjectedInflow.Sub(m.ProjectedOutflow)
	}
	for _, entry := range paid {
		m := monthOf(entry.day)
		if entry.instance.Direction == models.TransactionDirectionIncome {
			m.RealizedInflow = m.RealizedInflow.Add(entry.instance.Amount)
		} else {
			m.RealizedOutflow = m.RealizedOutflow.Add(entry.instance.Amount)
		}
		m.RealizedNet = m.RealizedInflow.Sub(m.RealizedOutflow)
	}
	for _, m := range monthlyByMonth {
		report.Monthly = append(report.Monthly, m)
	}
	sort.Slice(report.Monthly, func(i, j int) bool {
		return report.Monthly[i].Month < report.Monthly[j].Month
	})

	return report, nil
}

// GetCashFlowReport loads the transactions touching the window and aggregates
// them. When scoped to one bank account the opening balance is that account's
// balance going into fromDate; across all accounts it starts from zero and the
// running balance reads as net movement.
func GetCashFlowReport(ctx context.Context, fromDate models.MyDateString, toDate models.MyDateString, bankAccountId *int) (*CashFlowReport, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	business, err := models.GetBusiness(ctx)
	if err != nil {
		return nil, err
	}
	if err := fromDate.StartOfDayUTCTime(business.Timezone); err != nil {
		return nil, err
	}
	if err := toDate.EndOfDayUTCTime(business.Timezone); err != nil {
		return nil, err
	}
	fromTime := time.Time(fromDate)
	toTime := time.Time(toDate)

	db := config.GetDB()
	dbCtx := db.WithContext(ctx).Model(&models.Transaction{}).
		Where("due_date BETWEEN ? AND ? OR payment_date BETWEEN ? AND ?", fromTime, toTime, fromTime, toTime)
	if bankAccountId != nil {
		dbCtx = dbCtx.Where("bank_account_id = ?", *bankAccountId)
	}
	var transactions []*models.Transaction
	if err := dbCtx.Order("due_date, id").Find(&transactions).Error; err != nil {
		return nil, err
	}

	openingBalance := decimal.Zero
	if bankAccountId != nil {
		bankAccount, err := utils.FetchModel[models.BankAccount](ctx, businessId, *bankAccountId)
		if err != nil {
			return nil, err
		}
		openingBalance, err = bankAccount.GetBalanceAsOf(ctx, fromTime)
		if err != nil {
			return nil, err
		}
	}

	location, err := time.LoadLocation(business.Timezone)
	if err != nil {
		location = time.UTC
	}
	instances := make([]CashFlowInstance, 0, len(transactions))
	for _, t := range transactions {
		instances = append(instances, CashFlowInstance{
			TransactionId: t.ID,
			Description:   t.Description,
			Amount:        t.Amount,
			Direction:     t.Direction,
			DueDate:       t.DueDate,
			PaymentDate:   t.PaymentDate,
			CurrentStatus: t.CurrentStatus,
		})
	}
	return BuildCashFlow(instances, fromTime.In(location), toTime.In(location), openingBalance)
}
