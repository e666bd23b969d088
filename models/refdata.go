package models

import (
	"context"
	"errors"
	"time"

	"bitbucket.org/mmdatafocus/obligations_backend/config"
	"bitbucket.org/mmdatafocus/obligations_backend/utils"
	"gorm.io/gorm"
)

// Reference data: cost centers and the category tree transactions are tagged with.

type CostCenter struct {
	ID         int       `gorm:"primary_key" json:"id"`
	BusinessId string    `gorm:"index;not null" json:"business_id"`
	Name       string    `gorm:"size:100;not null" json:"name" binding:"required"`
	IsActive   *bool     `gorm:"not null;default:true" json:"is_active"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type Category struct {
	ID         int                  `gorm:"primary_key" json:"id"`
	BusinessId string               `gorm:"index;not null" json:"business_id"`
	Name       string               `gorm:"size:100;not null" json:"name" binding:"required"`
	Direction  TransactionDirection `gorm:"type:enum('Income','Expense');not null" json:"direction"`
	IsActive   *bool                `gorm:"not null;default:true" json:"is_active"`
	CreatedAt  time.Time            `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time            `gorm:"autoUpdateTime" json:"updated_at"`
}

type SubCategory struct {
	ID         int       `gorm:"primary_key" json:"id"`
	BusinessId string    `gorm:"index;not null" json:"business_id"`
	CategoryId int       `gorm:"index;not null" json:"category_id" binding:"required"`
	Name       string    `gorm:"size:100;not null" json:"name" binding:"required"`
	IsActive   *bool     `gorm:"not null;default:true" json:"is_active"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewCostCenter struct {
	Name string `json:"name" binding:"required"`
}

type NewCategory struct {
	Name      string               `json:"name" binding:"required"`
	Direction TransactionDirection `json:"direction" binding:"required"`
}

type NewSubCategory struct {
	CategoryId int    `json:"category_id" binding:"required"`
	Name       string `json:"name" binding:"required"`
}

/* Cost centers */

func CreateCostCenter(ctx context.Context, input *NewCostCenter) (*CostCenter, error) {

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	if err := utils.ValidateUnique[CostCenter](ctx, businessId, "name", input.Name, 0); err != nil {
		return nil, err
	}

	costCenter := CostCenter{
		BusinessId: businessId,
		Name:       input.Name,
		IsActive:   utils.NewTrue(),
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).Create(&costCenter).Error; err != nil {
		return nil, err
	}

	// caching
	if err := utils.RemoveRedisList[CostCenter](businessId); err != nil {
		return nil, err
	}
	return &costCenter, nil
}

// CreateDefaultCostCenter creates the "General" cost center for a new business.
// It runs inside the business-creation transaction.
func CreateDefaultCostCenter(tx *gorm.DB, ctx context.Context, businessId string) error {
	costCenter := CostCenter{
		BusinessId: businessId,
		Name:       "General",
		IsActive:   utils.NewTrue(),
	}
	return tx.WithContext(ctx).Create(&costCenter).Error
}

func ListCostCenter(ctx context.Context) ([]*CostCenter, error) {

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	// read-through cache
	results, err := utils.RetrieveRedisList[CostCenter](businessId)
	if err != nil {
		return nil, err
	}
	if results == nil {
		results, err = utils.FetchAllModels[CostCenter](ctx, businessId)
		if err != nil {
			return nil, err
		}
		if err := utils.StoreRedisList[CostCenter](results, businessId); err != nil {
			return nil, err
		}
	}
	return results, nil
}

func DeleteCostCenter(ctx context.Context, id int) (*CostCenter, error) {

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	costCenter, err := utils.FetchModel[CostCenter](ctx, businessId, id)
	if err != nil {
		return nil, err
	}

	// block delete while transactions still reference it
	count, err := utils.ResourceCountWhere[Transaction](ctx, businessId, "cost_center_id = ?", id)
	if err != nil {
		return nil, err
	}
	if count > 0 {
		return nil, utils.NewConflictError("", "cost center is referenced by transactions")
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).Delete(costCenter).Error; err != nil {
		return nil, err
	}

	// caching
	if err := utils.RemoveRedisList[CostCenter](businessId); err != nil {
		return nil, err
	}
	return costCenter, nil
}

/* Categories */

func CreateCategory(ctx context.Context, input *NewCategory) (*Category, error) {

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	if err := utils.ValidateUnique[Category](ctx, businessId, "name", input.Name, 0); err != nil {
		return nil, err
	}

	category := Category{
		BusinessId: businessId,
		Name:       input.Name,
		Direction:  input.Direction,
		IsActive:   utils.NewTrue(),
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).Create(&category).Error; err != nil {
		return nil, err
	}

	// caching
	if err := utils.RemoveRedisList[Category](businessId); err != nil {
		return nil, err
	}
	return &category, nil
}

func ListCategory(ctx context.Context, direction *TransactionDirection) ([]*Category, error) {

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	db := config.GetDB()
	var results []*Category
	dbCtx := db.WithContext(ctx).Where("business_id = ?", businessId)
	if direction != nil {
		dbCtx = dbCtx.Where("direction = ?", *direction)
	}
	if err := dbCtx.Order("name").Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func DeleteCategory(ctx context.Context, id int) (*Category, error) {

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	category, err := utils.FetchModel[Category](ctx, businessId, id)
	if err != nil {
		return nil, err
	}

	count, err := utils.ResourceCountWhere[Transaction](ctx, businessId, "category_id = ?", id)
	if err != nil {
		return nil, err
	}
	if count > 0 {
		return nil, utils.NewConflictError("", "category is referenced by transactions")
	}
	count, err = utils.ResourceCountWhere[SubCategory](ctx, businessId, "category_id = ?", id)
	if err != nil {
		return nil, err
	}
	if count > 0 {
		return nil, utils.NewConflictError("", "category has subcategories")
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).Delete(category).Error; err != nil {
		return nil, err
	}

	// caching
	if err := utils.RemoveRedisList[Category](businessId); err != nil {
		return nil, err
	}
	return category, nil
}

/* Subcategories */

func CreateSubCategory(ctx context.Context, input *NewSubCategory) (*SubCategory, error) {

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	// parent category must exist within the business
	if err := utils.ValidateResourceId[Category](ctx, businessId, input.CategoryId); err != nil {
		return nil, errors.New("category not found")
	}
	if err := utils.ValidateUnique[SubCategory](ctx, businessId, "name", input.Name, 0); err != nil {
		return nil, err
	}

	subCategory := SubCategory{
		BusinessId: businessId,
		CategoryId: input.CategoryId,
		Name:       input.Name,
		IsActive:   utils.NewTrue(),
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).Create(&subCategory).Error; err != nil {
		return nil, err
	}

	// caching
	if err := utils.RemoveRedisList[SubCategory](businessId); err != nil {
		return nil, err
	}
	return &subCategory, nil
}

func ListSubCategory(ctx context.Context, categoryId *int) ([]*SubCategory, error) {

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	db := config.GetDB()
	var results []*SubCategory
	dbCtx := db.WithContext(ctx).Where("business_id = ?", businessId)
	if categoryId != nil && *categoryId > 0 {
		dbCtx = dbCtx.Where("category_id = ?", *categoryId)
	}
	if err := dbCtx.Order("name").Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func DeleteSubCategory(ctx context.Context, id int) (*SubCategory, error) {

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	subCategory, err := utils.FetchModel[SubCategory](ctx, businessId, id)
	if err != nil {
		return nil, err
	}

	count, err := utils.ResourceCountWhere[Transaction](ctx, businessId, "sub_category_id = ?", id)
	if err != nil {
		return nil, err
	}
	if count > 0 {
		return nil, utils.NewConflictError("", "subcategory is referenced by transactions")
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).Delete(subCategory).Error; err != nil {
		return nil, err
	}

	// caching
	if err := utils.RemoveRedisList[SubCategory](businessId); err != nil {
		return nil, err
	}
	return subCategory, nil
}
