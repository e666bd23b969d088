package workflow

import (
	"context"
	"errors"
	"time"

	"bitbucket.org/mmdatafocus/obligations_backend/config"
	"bitbucket.org/mmdatafocus/obligations_backend/models"
	"bitbucket.org/mmdatafocus/obligations_backend/utils"
	"gorm.io/gorm"
)

// ExpansionHorizon returns the cutoff date up to which open-ended series are
// materialized. Bounded plans ignore it, they are materialized in full.
func ExpansionHorizon() time.Time {
	return time.Now().UTC().AddDate(0, config.RecurringHorizonMonths(), 0)
}

// CreateTransactionSeries creates a series root and all its generated
// instances in one transaction. The first occurrence becomes the root row and
// carries the recurrence fields; later occurrences point back at it.
func CreateTransactionSeries(ctx context.Context, input *models.NewTransaction) ([]*models.Transaction, error) {
	logger := config.GetLogger()
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	if input.Recurrence == nil {
		return nil, utils.NewValidationError("recurrence", "is required")
	}
	if err := input.Validate(ctx, businessId); err != nil {
		return nil, err
	}
	tpl, err := models.TemplateFromInput(businessId, input)
	if err != nil {
		return nil, err
	}
	previews, err := ExpandTemplate(tpl, ExpansionHorizon())
	if err != nil {
		return nil, err
	}

	lock, err := utils.ObtainBusinessLock(ctx, businessId, "SeriesLock", "expansion.go", "CreateTransactionSeries")
	if err != nil {
		return nil, err
	}
	defer lock.Release(ctx)

	db := config.GetDB()
	transactions := make([]*models.Transaction, 0, len(previews))
	err = db.Transaction(func(tx *gorm.DB) error {
		if err := AcquireBusinessSeriesLock(tx.WithContext(ctx), businessId); err != nil {
			config.LogError(logger, "expansion.go", "CreateTransactionSeries", "AcquireBusinessSeriesLock", businessId, err)
			return err
		}
		// GET_LOCK is connection-scoped: the deferred release runs while the
		// transaction is still live, before db.Transaction commits or rolls
		// back. A finished tx can no longer run RELEASE_LOCK.
		defer ReleaseBusinessSeriesLock(tx.WithContext(ctx), businessId)

		var root *models.Transaction
		for _, preview := range previews {
			transactionNo, err := utils.GetTransactionNo[models.Transaction](ctx, businessId)
			if err != nil {
				config.LogError(logger, "expansion.go", "CreateTransactionSeries", "GetTransactionNo", businessId, err)
				return err
			}
			instance := &models.Transaction{
				BusinessId:    businessId,
				TransactionNo: transactionNo,
				Description:   preview.Description,
				Amount:        preview.Amount,
				Direction:     input.Direction,
				DueDate:       preview.DueDate,
				CurrentStatus: models.TransactionStatusPending,
				BankAccountId: input.BankAccountId,
				CostCenterId:  input.CostCenterId,
				CategoryId:    input.CategoryId,
				SubCategoryId: input.SubCategoryId,
				Notes:         input.Notes,
				SequenceNo:    preview.SequenceNo,
			}
			if root == nil {
				instance.Frequency = &tpl.Frequency
				instance.IntervalCount = tpl.IntervalCount
				instance.InstallmentCount = tpl.InstallmentCount
				instance.RecurrenceEndDate = tpl.EndDate
				if tpl.IsInstallmentPlan() {
					instance.TotalAmount = tpl.TotalAmount
				}
			} else {
				instance.ParentTemplateId = &root.ID
			}
			if err := tx.Create(instance).Error; err != nil {
				config.LogError(logger, "expansion.go", "CreateTransactionSeries", "Create instance", instance, err)
				return err
			}
			if root == nil {
				root = instance
			}
			transactions = append(transactions, instance)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return transactions, nil
}

// GenerateInstances extends an open-ended series up to horizon. It is
// idempotent: occurrences whose sequence number already exists are skipped,
// and the unique index on (parent_template_id, sequence_no) backstops
// concurrent runs.
func GenerateInstances(ctx context.Context, rootId int, horizon time.Time) ([]*models.Transaction, error) {
	logger := config.GetLogger()
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	root, err := utils.FetchModel[models.Transaction](ctx, businessId, rootId)
	if err != nil {
		return nil, err
	}
	tpl, err := models.TemplateFromTransaction(root)
	if err != nil {
		return nil, err
	}
	previews, err := ExpandTemplate(tpl, horizon)
	if err != nil {
		return nil, err
	}

	lock, err := utils.ObtainBusinessLock(ctx, businessId, "SeriesLock", "expansion.go", "GenerateInstances")
	if err != nil {
		return nil, err
	}
	defer lock.Release(ctx)

	db := config.GetDB()
	var created []*models.Transaction
	err = db.Transaction(func(tx *gorm.DB) error {
		if err := AcquireBusinessSeriesLock(tx.WithContext(ctx), businessId); err != nil {
			config.LogError(logger, "expansion.go", "GenerateInstances", "AcquireBusinessSeriesLock", businessId, err)
			return err
		}
		// released on the live tx, before db.Transaction finishes it
		defer ReleaseBusinessSeriesLock(tx.WithContext(ctx), businessId)

		// unscoped: a deleted occurrence must not be recreated on the next run
		existing := make(map[int]bool)
		var sequenceNos []int
		err := tx.Model(&models.Transaction{}).Unscoped().
			Where("business_id = ?", businessId).
			Where("id = ? OR parent_template_id = ?", root.ID, root.ID).
			Pluck("sequence_no", &sequenceNos).Error
		if err != nil {
			config.LogError(logger, "expansion.go", "GenerateInstances", "Pluck sequence_no", rootId, err)
			return err
		}
		for _, sequenceNo := range sequenceNos {
			existing[sequenceNo] = true
		}

		for _, preview := range previews {
			if existing[preview.SequenceNo] {
				continue
			}
			transactionNo, err := utils.GetTransactionNo[models.Transaction](ctx, businessId)
			if err != nil {
				config.LogError(logger, "expansion.go", "GenerateInstances", "GetTransactionNo", businessId, err)
				return err
			}
			instance := &models.Transaction{
				BusinessId:       businessId,
				TransactionNo:    transactionNo,
				Description:      preview.Description,
				Amount:           preview.Amount,
				Direction:        root.Direction,
				DueDate:          preview.DueDate,
				CurrentStatus:    models.TransactionStatusPending,
				BankAccountId:    root.BankAccountId,
				CostCenterId:     root.CostCenterId,
				CategoryId:       root.CategoryId,
				SubCategoryId:    root.SubCategoryId,
				Notes:            root.Notes,
				ParentTemplateId: &root.ID,
				SequenceNo:       preview.SequenceNo,
			}
			if err := tx.Create(instance).Error; err != nil {
				config.LogError(logger, "expansion.go", "GenerateInstances", "Create instance", instance, err)
				return err
			}
			created = append(created, instance)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// GenerateDueInstancesForBusiness walks every open-ended series root of a
// business and extends each up to horizon. Used by the scheduled generator.
func GenerateDueInstancesForBusiness(ctx context.Context, businessId string, horizon time.Time) (int, error) {
	logger := config.GetLogger()
	db := config.GetDB()
	var roots []*models.Transaction
	err := db.WithContext(ctx).
		Where("business_id = ?", businessId).
		Where("frequency IS NOT NULL AND installment_count = 0 AND parent_template_id IS NULL").
		Find(&roots).Error
	if err != nil {
		config.LogError(logger, "expansion.go", "GenerateDueInstancesForBusiness", "Find roots", businessId, err)
		return 0, err
	}
	total := 0
	for _, root := range roots {
		created, err := GenerateInstances(ctx, root.ID, horizon)
		if err != nil {
			config.LogError(logger, "expansion.go", "GenerateDueInstancesForBusiness", "GenerateInstances", root.ID, err)
			return total, err
		}
		total += len(created)
	}
	return total, nil
}
