// seed-dev provisions a local development business with reference data and a
// handful of sample obligations, including an installment plan and an
// open-ended monthly series.
//
// Usage (from backend directory):
//   DEFAULT_OWNER_PASSWORD=... DB_USER=... DB_PASSWORD=... DB_HOST=... DB_PORT=... DB_NAME=... REDIS_ADDRESS=... go run ./cmd/seed-dev
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"bitbucket.org/mmdatafocus/obligations_backend/config"
	"bitbucket.org/mmdatafocus/obligations_backend/models"
	"bitbucket.org/mmdatafocus/obligations_backend/utils"
	"bitbucket.org/mmdatafocus/obligations_backend/workflow"
	"github.com/shopspring/decimal"
)

func fail(step string, err error) {
	fmt.Fprintf(os.Stderr, "%s: %v\n", step, err)
	os.Exit(1)
}

func main() {
	ctx := context.Background()
	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()
	if config.GetDB() == nil {
		fmt.Fprintln(os.Stderr, "database not initialized (config.GetDB returned nil). Set DB_* env vars.")
		os.Exit(1)
	}
	models.MigrateTable()

	ctx = utils.SetUserIdInContext(ctx, 1)
	ctx = utils.SetUserNameInContext(ctx, "SeedDev")
	ctx = utils.SetIsAdminInContext(ctx, true)

	business, err := models.CreateBusiness(ctx, &models.NewBusiness{
		Name:         "Moe Kaung Kitchen",
		ContactName:  "Moe Kaung",
		Email:        "owner@moekaung.test",
		Phone:        "09111222333",
		Address:      "Yangon",
		BaseCurrency: "MMK",
		FiscalYear:   models.FiscalYearJan,
		Timezone:     "Asia/Yangon",
	})
	if err != nil {
		fail("create business", err)
	}
	businessId := business.ID.String()
	ctx = utils.SetBusinessIdInContext(ctx, businessId)
	fmt.Printf("Created business %s (%s)\n", business.Name, businessId)

	rent, err := models.CreateCategory(ctx, &models.NewCategory{Name: "Rent", Direction: models.TransactionDirectionExpense})
	if err != nil {
		fail("create category", err)
	}
	sales, err := models.CreateCategory(ctx, &models.NewCategory{Name: "Sales", Direction: models.TransactionDirectionIncome})
	if err != nil {
		fail("create category", err)
	}
	if _, err := models.CreateSubCategory(ctx, &models.NewSubCategory{CategoryId: sales.ID, Name: "Catering"}); err != nil {
		fail("create subcategory", err)
	}

	bankAccounts, err := models.ListBankAccount(ctx)
	if err != nil || len(bankAccounts.ListBankAccount) == 0 {
		fail("list bank accounts", err)
	}
	bankAccountId := bankAccounts.ListBankAccount[0].ID

	today := time.Now().UTC().Truncate(24 * time.Hour)

	// standalone obligation
	if _, err := models.CreateTransaction(ctx, &models.NewTransaction{
		Description:   "Generator repair",
		Amount:        decimal.NewFromInt(180000),
		Direction:     models.TransactionDirectionExpense,
		DueDate:       today.AddDate(0, 0, 7),
		BankAccountId: bankAccountId,
	}); err != nil {
		fail("create transaction", err)
	}

	// 6-month installment plan splitting a known total
	if _, err := workflow.CreateTransactionSeries(ctx, &models.NewTransaction{
		Description:   "Kitchen equipment loan",
		Amount:        decimal.NewFromInt(3000000),
		Direction:     models.TransactionDirectionExpense,
		DueDate:       today.AddDate(0, 1, 0),
		BankAccountId: bankAccountId,
		CategoryId:    rent.ID,
		Recurrence: &models.NewRecurrence{
			Frequency:        models.RecurringFrequencyMonthly,
			InstallmentCount: 6,
		},
	}); err != nil {
		fail("create installment series", err)
	}

	// open-ended monthly rent, materialized up to the horizon
	if _, err := workflow.CreateTransactionSeries(ctx, &models.NewTransaction{
		Description:   "Shop rent",
		Amount:        decimal.NewFromInt(500000),
		Direction:     models.TransactionDirectionExpense,
		DueDate:       today.AddDate(0, 0, 1),
		BankAccountId: bankAccountId,
		CategoryId:    rent.ID,
		Recurrence: &models.NewRecurrence{
			Frequency: models.RecurringFrequencyMonthly,
		},
	}); err != nil {
		fail("create recurring series", err)
	}

	fmt.Println("Seeded development data. Owner login: owner@moekaung.test / DEFAULT_OWNER_PASSWORD")
}
