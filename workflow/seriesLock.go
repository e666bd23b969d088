package workflow

import (
	"fmt"

	"gorm.io/gorm"
)

// AcquireBusinessSeriesLock serializes series mutation per business across instances using MySQL advisory locks.
// NOTE: GET_LOCK is connection-scoped, so this must be called on the same *gorm.DB that will do the mutating transaction.
func AcquireBusinessSeriesLock(tx *gorm.DB, businessId string) error {
	lockName := fmt.Sprintf("series:%s", businessId)
	var ok int
	if err := tx.Raw("SELECT GET_LOCK(?, 30)", lockName).Scan(&ok).Error; err != nil {
		return err
	}
	if ok != 1 {
		return fmt.Errorf("could not acquire series lock for business_id=%s", businessId)
	}
	return nil
}

// ReleaseBusinessSeriesLock drops the advisory lock. It must run on the same
// transaction while it is still live; a finished tx can no longer execute
// RELEASE_LOCK and the pooled connection would return holding the lock.
func ReleaseBusinessSeriesLock(tx *gorm.DB, businessId string) {
	lockName := fmt.Sprintf("series:%s", businessId)
	var _ok int
	_ = tx.Raw("SELECT RELEASE_LOCK(?)", lockName).Scan(&_ok).Error
}
