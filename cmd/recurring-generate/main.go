// recurring-generate materializes upcoming instances for every open-ended
// recurring series, business by business, up to the configured horizon
// (RECURRING_HORIZON_MONTHS). Intended to run as a scheduled job.
//
// Usage (from backend directory):
//   DB_USER=... DB_PASSWORD=... DB_HOST=... DB_PORT=... DB_NAME=... REDIS_ADDRESS=... go run ./cmd/recurring-generate
//
// Pass BUSINESS_ID to restrict the run to one business.
package main

import (
	"context"
	"fmt"
	"os"

	"bitbucket.org/mmdatafocus/obligations_backend/config"
	"bitbucket.org/mmdatafocus/obligations_backend/models"
	"bitbucket.org/mmdatafocus/obligations_backend/utils"
	"bitbucket.org/mmdatafocus/obligations_backend/workflow"
)

func main() {
	ctx := context.Background()
	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized (config.GetDB returned nil). Set DB_* env vars.")
		os.Exit(1)
	}

	ctx = utils.SetUserIdInContext(ctx, 1)
	ctx = utils.SetUserNameInContext(ctx, "RecurringGenerate")
	ctx = utils.SetIsAdminInContext(ctx, true)

	horizon := workflow.ExpansionHorizon()

	var businessIds []string
	if v := os.Getenv("BUSINESS_ID"); v != "" {
		businessIds = []string{v}
	} else {
		var businesses []*models.Business
		if err := db.WithContext(ctx).Model(&models.Business{}).Where("is_active = ?", true).Find(&businesses).Error; err != nil {
			fmt.Fprintf(os.Stderr, "failed to list businesses: %v\n", err)
			os.Exit(1)
		}
		for _, business := range businesses {
			businessIds = append(businessIds, business.ID.String())
		}
	}

	total := 0
	failed := 0
	for _, businessId := range businessIds {
		businessCtx := utils.SetBusinessIdInContext(ctx, businessId)
		created, err := workflow.GenerateDueInstancesForBusiness(businessCtx, businessId, horizon)
		total += created
		if err != nil {
			// keep going; one business must not block the rest
			fmt.Fprintf(os.Stderr, "business %s: %v\n", businessId, err)
			failed++
			continue
		}
	}

	fmt.Printf("Generated %d instances across %d businesses (horizon %s)\n",
		total, len(businessIds), horizon.Format("2006-01-02"))
	if failed > 0 {
		fmt.Fprintf(os.Stderr, "%d businesses failed\n", failed)
		os.Exit(1)
	}
}
