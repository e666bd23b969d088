package models

import (
	"context"
	"errors"
	"fmt"
	"time"

	"bitbucket.org/mmdatafocus/obligations_backend/config"
	"bitbucket.org/mmdatafocus/obligations_backend/utils"
	"github.com/google/uuid"
)

type Business struct {
	ID           uuid.UUID  `gorm:"primary_key" json:"id"`
	Name         string     `gorm:"index;size:100;not null" json:"name" binding:"required"`
	ContactName  string     `gorm:"size:100" json:"contact_name"`
	Email        string     `gorm:"size:255" json:"email"`
	Phone        string     `gorm:"size:20" json:"phone"`
	Address      string     `gorm:"type:text" json:"address"`
	BaseCurrency string     `gorm:"size:3;default:MMK" json:"base_currency"`
	FiscalYear   FiscalYear `gorm:"type:enum('Jan', 'Feb', 'Mar', 'Apr', 'May', 'Jun', 'Jul', 'Aug', 'Sep', 'Oct', 'Nov', 'Dec')" json:"fiscal_year"`
	Timezone     string     `gorm:"size:50" json:"timezone"`
	IsActive     *bool      `gorm:"not null;default:true" json:"is_active"`
	CreatedAt    time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewBusiness struct {
	Name         string     `json:"name" binding:"required"`
	ContactName  string     `json:"contact_name"`
	Email        string     `json:"email" binding:"required"`
	Phone        string     `json:"phone"`
	Address      string     `json:"address"`
	BaseCurrency string     `json:"base_currency"`
	FiscalYear   FiscalYear `json:"fiscal_year"`
	Timezone     string     `json:"timezone"`
}

func (business *Business) StoreRedis() error {
	return config.SetRedisObject("Business:"+fmt.Sprint(business.ID), business, 0)
}

func (business *Business) RemoveRedis() error {
	return config.RemoveRedisKey("Business:" + fmt.Sprint(business.ID))
}

func (input *NewBusiness) validate(ctx context.Context, id string) error {
	// name
	if err := utils.ValidateUnique[Business](ctx, "", "name", input.Name, id); err != nil {
		return err
	}
	// email
	if !utils.IsValidEmail(input.Email) {
		return utils.NewValidationError("email", "invalid email")
	}
	if err := utils.ValidateUnique[Business](ctx, "", "email", input.Email, id); err != nil {
		return err
	}
	// phone
	if input.Phone != "" {
		if err := utils.ValidateUnique[Business](ctx, "", "phone", input.Phone, id); err != nil {
			return err
		}
	}
	return nil
}

func CreateBusiness(ctx context.Context, input *NewBusiness) (*Business, error) {
	// only admin have access

	// When creating a business,
	// - create default bank account
	// - create default cost center
	// - create 'Owner' user
	if err := input.validate(ctx, ""); err != nil {
		return nil, err
	}
	db := config.GetDB()

	tx := db.Begin()

	BID := uuid.New()
	timezone := "Asia/Yangon"
	if input.Timezone != "" {
		timezone = input.Timezone
	}

	// Defaults to satisfy MySQL enum constraints.
	// If these are empty, MySQL will error with "Data truncated for column ...".
	fiscalYear := input.FiscalYear
	if fiscalYear == "" {
		fiscalYear = FiscalYearJan
	}
	baseCurrency := input.BaseCurrency
	if baseCurrency == "" {
		baseCurrency = "MMK"
	}

	business := Business{
		ID:           BID,
		Name:         input.Name,
		ContactName:  input.ContactName,
		Email:        input.Email,
		Phone:        input.Phone,
		Address:      input.Address,
		BaseCurrency: baseCurrency,
		FiscalYear:   fiscalYear,
		Timezone:     timezone,
		IsActive:     utils.NewTrue(),
	}

	// create business
	err := tx.WithContext(ctx).Create(&business).Error
	if err != nil {
		tx.Rollback()
		return nil, err
	}

	// create defaults under the new business
	businessId := business.ID.String()
	ctx = context.WithValue(ctx, utils.ContextKeyBusinessId, businessId)
	if err := CreateDefaultBankAccount(tx, ctx, businessId, baseCurrency); err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := CreateDefaultCostCenter(tx, ctx, businessId); err != nil {
		tx.Rollback()
		return nil, err
	}

	if _, err := CreateDefaultOwner(tx, ctx, businessId, business.Email, business.Name); err != nil {
		tx.Rollback()
		return nil, err
	}

	if err = tx.Commit().Error; err != nil {
		return nil, err
	}

	return &business, nil
}

func UpdateBusiness(ctx context.Context, input *NewBusiness) (*Business, error) {

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	if err := input.validate(ctx, businessId); err != nil {
		return nil, err
	}

	// db action
	db := config.GetDB()
	tx := db.Begin()
	var business Business
	if err := db.WithContext(ctx).Where("id = ?", businessId).First(&business).Error; err != nil {
		return nil, err
	}

	err := tx.WithContext(ctx).Model(&business).Updates(map[string]interface{}{
		"Name":        input.Name,
		"ContactName": input.ContactName,
		"Email":       input.Email,
		"Phone":       input.Phone,
		"Address":     input.Address,
		"FiscalYear":  input.FiscalYear,
		// base currency and timezone are fixed after creation
	}).Error
	if err != nil {
		tx.Rollback()
		return nil, err
	}

	// caching
	if err := business.RemoveRedis(); err != nil {
		tx.Rollback()
		return nil, err
	}
	return &business, tx.Commit().Error
}

func ToggleActiveBusiness(ctx context.Context, id uuid.UUID, isActive bool) (*Business, error) {

	db := config.GetDB()
	var result Business

	// check exists
	err := db.WithContext(ctx).Where("id = ?", id).First(&result).Error
	if err != nil {
		return nil, utils.ErrorRecordNotFound
	}

	// db action
	tx := db.Begin()
	err = tx.WithContext(ctx).Model(&result).Updates(map[string]interface{}{
		"IsActive": isActive,
	}).Error
	if err != nil {
		tx.Rollback()
		return nil, err
	}

	// toggling related users
	// db action
	err = tx.WithContext(ctx).Model(&User{}).Where("business_id = ?", id).Updates(map[string]interface{}{
		"IsActive": isActive,
	}).Error
	if err != nil {
		tx.Rollback()
		return nil, err
	}

	// caching
	if err := result.RemoveRedis(); err != nil {
		tx.Rollback()
		return nil, err
	}
	return &result, tx.Commit().Error
}

func GetBusinessById(ctx context.Context, id string) (*Business, error) {

	var result Business

	exists, err := config.GetRedisObject("Business:"+id, &result)
	if err != nil {
		return nil, err
	}

	if !exists {
		db := config.GetDB()
		// db query
		err := db.WithContext(ctx).Where("id = ?", id).First(&result).Error
		if err != nil {
			return nil, utils.ErrorRecordNotFound
		}
		// caching
		if err := result.StoreRedis(); err != nil {
			return nil, err
		}
	}
	return &result, nil
}

func GetBusiness(ctx context.Context) (*Business, error) {

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	return GetBusinessById(ctx, businessId)
}

func GetBusinesses(ctx context.Context, name *string) ([]*Business, error) {

	db := config.GetDB()
	var results []*Business

	dbCtx := db.WithContext(ctx)
	if name != nil && len(*name) > 0 {
		dbCtx = dbCtx.Where("name LIKE ?", "%"+*name+"%")
	}
	// db query
	err := dbCtx.Order("name").Find(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}
