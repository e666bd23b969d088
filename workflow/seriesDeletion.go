package workflow

import (
	"context"
	"errors"

	"bitbucket.org/mmdatafocus/obligations_backend/config"
	"bitbucket.org/mmdatafocus/obligations_backend/models"
	"bitbucket.org/mmdatafocus/obligations_backend/utils"
	"gorm.io/gorm"
)

// ResolveDeletionScope decides which rows a delete request covers. Paid rows
// are never deleted. A standalone row, or a series member with no other live
// members, needs no scope; otherwise the caller must say whether the delete
// covers the single row or the remaining series.
func ResolveDeletionScope(target *models.Transaction, series []*models.Transaction, scope *models.DeletionScope) ([]int, error) {
	if target.CurrentStatus == models.TransactionStatusPaid {
		return nil, utils.NewConflictError(string(target.CurrentStatus), "paid transactions cannot be deleted")
	}

	// paid members are untouchable either way, so they never make the
	// delete ambiguous
	otherLiveMembers := 0
	for _, member := range series {
		if member.ID == target.ID || member.CurrentStatus == models.TransactionStatusPaid {
			continue
		}
		otherLiveMembers++
	}
	if otherLiveMembers == 0 {
		return []int{target.ID}, nil
	}
	if scope == nil {
		return nil, utils.ErrorAmbiguousScope
	}

	switch *scope {
	case models.DeletionScopeSingle:
		return []int{target.ID}, nil
	case models.DeletionScopeSeries:
		var ids []int
		for _, member := range series {
			if member.CurrentStatus == models.TransactionStatusPaid {
				continue
			}
			ids = append(ids, member.ID)
		}
		return ids, nil
	}
	return nil, utils.NewValidationError("scope", "must be Single or Series")
}

// DeleteTransaction soft-deletes a transaction, or its whole series when the
// scope says so. The status guard on the delete keeps rows that got paid
// between resolution and execution.
func DeleteTransaction(ctx context.Context, id int, scope *models.DeletionScope) error {
	logger := config.GetLogger()
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return errors.New("business id is required")
	}
	target, err := utils.FetchModel[models.Transaction](ctx, businessId, id)
	if err != nil {
		return err
	}
	series, err := models.GetSeriesMembers(ctx, target.SeriesRootId())
	if err != nil {
		return err
	}
	ids, err := ResolveDeletionScope(target, series, scope)
	if err != nil {
		return err
	}

	lock, err := utils.ObtainBusinessLock(ctx, businessId, "SeriesLock", "seriesDeletion.go", "DeleteTransaction")
	if err != nil {
		return err
	}
	defer lock.Release(ctx)

	db := config.GetDB()
	return db.Transaction(func(tx *gorm.DB) error {
		if err := AcquireBusinessSeriesLock(tx.WithContext(ctx), businessId); err != nil {
			config.LogError(logger, "seriesDeletion.go", "DeleteTransaction", "AcquireBusinessSeriesLock", businessId, err)
			return err
		}
		// released on the live tx, before db.Transaction finishes it
		defer ReleaseBusinessSeriesLock(tx.WithContext(ctx), businessId)

		result := tx.Where("business_id = ?", businessId).
			Where("id IN ?", ids).
			Where("current_status <> ?", models.TransactionStatusPaid).
			Delete(&models.Transaction{})
		if result.Error != nil {
			config.LogError(logger, "seriesDeletion.go", "DeleteTransaction", "Delete", ids, result.Error)
			return result.Error
		}
		if result.RowsAffected == 0 {
			// everything resolved got paid or deleted concurrently; returning
			// an error discards the empty delete
			reloaded, err := utils.FetchModel[models.Transaction](ctx, businessId, id)
			if err != nil {
				return utils.ErrorRecordNotFound
			}
			return utils.NewConflictError(string(reloaded.CurrentStatus), "transaction can no longer be deleted")
		}
		return nil
	})
}
