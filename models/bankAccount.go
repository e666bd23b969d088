package models

import (
	"context"
	"errors"
	"time"

	"bitbucket.org/mmdatafocus/obligations_backend/config"
	"bitbucket.org/mmdatafocus/obligations_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type BankAccount struct {
	ID                 int             `gorm:"primary_key" json:"id"`
	BusinessId         string          `gorm:"index;not null" json:"business_id"`
	Name               string          `gorm:"size:100;not null" json:"name" binding:"required"`
	AccountNumber      string          `gorm:"size:50" json:"account_number"`
	BankName           string          `gorm:"size:100" json:"bank_name"`
	Currency           string          `gorm:"size:3" json:"currency"`
	OpeningBalance     decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"opening_balance"`
	OpeningBalanceDate time.Time       `json:"opening_balance_date"`
	Description        string          `gorm:"type:text" json:"description"`
	IsActive           *bool           `gorm:"not null;default:true" json:"is_active"`
	CreatedAt          time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt          time.Time       `gorm:"autoUpdateTime" json:"updated_at"`

	// computed, not stored
	Balance *decimal.Decimal `gorm:"-" json:"balance,omitempty"`
}

type NewBankAccount struct {
	Name               string          `json:"name" binding:"required"`
	AccountNumber      string          `json:"account_number"`
	BankName           string          `json:"bank_name"`
	Currency           string          `json:"currency"`
	OpeningBalance     decimal.Decimal `json:"opening_balance"`
	OpeningBalanceDate time.Time       `json:"opening_balance_date"`
	Description        string          `json:"description"`
}

func (ba BankAccount) GetId() int {
	return ba.ID
}

func (ba BankAccount) GetCursor() string {
	return ba.CreatedAt.String()
}

type BankAccountSummary struct {
	Currency     string          `json:"currency"`
	TotalBalance decimal.Decimal `json:"total_balance"`
}

type ListBankAccountResponse struct {
	ListBankAccount []*BankAccount       `json:"listBankAccount"`
	TotalSummary    []BankAccountSummary `json:"totalSummary"`
}

func (input *NewBankAccount) validate(ctx context.Context, businessId string, exceptId int) error {
	if err := utils.ValidateUnique[BankAccount](ctx, businessId, "name", input.Name, exceptId); err != nil {
		return err
	}
	if input.OpeningBalance.IsNegative() {
		return utils.NewValidationError("opening_balance", "must not be negative")
	}
	return nil
}

func CreateBankAccount(ctx context.Context, input *NewBankAccount) (*BankAccount, error) {

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	if err := input.validate(ctx, businessId, 0); err != nil {
		return nil, err
	}

	openingDate := input.OpeningBalanceDate
	if openingDate.IsZero() {
		openingDate = time.Now()
	}

	bankAccount := BankAccount{
		BusinessId:         businessId,
		Name:               input.Name,
		AccountNumber:      input.AccountNumber,
		BankName:           input.BankName,
		Currency:           input.Currency,
		OpeningBalance:     input.OpeningBalance,
		OpeningBalanceDate: openingDate,
		Description:        input.Description,
		IsActive:           utils.NewTrue(),
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).Create(&bankAccount).Error; err != nil {
		return nil, err
	}

	// caching
	if err := utils.RemoveRedisList[BankAccount](businessId); err != nil {
		return nil, err
	}
	return &bankAccount, nil
}

// CreateDefaultBankAccount creates the "Cash" account for a new business.
// It runs inside the business-creation transaction.
func CreateDefaultBankAccount(tx *gorm.DB, ctx context.Context, businessId string, currency string) error {
	bankAccount := BankAccount{
		BusinessId:         businessId,
		Name:               "Cash",
		Currency:           currency,
		OpeningBalance:     decimal.Zero,
		OpeningBalanceDate: time.Now(),
		IsActive:           utils.NewTrue(),
	}
	return tx.WithContext(ctx).Create(&bankAccount).Error
}

func UpdateBankAccount(ctx context.Context, id int, input *NewBankAccount) (*BankAccount, error) {

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	if err := input.validate(ctx, businessId, id); err != nil {
		return nil, err
	}

	bankAccount, err := utils.FetchModel[BankAccount](ctx, businessId, id)
	if err != nil {
		return nil, err
	}

	db := config.GetDB()
	tx := db.Begin()
	err = tx.WithContext(ctx).Model(bankAccount).Updates(map[string]interface{}{
		"Name":               input.Name,
		"AccountNumber":      input.AccountNumber,
		"BankName":           input.BankName,
		"OpeningBalance":     input.OpeningBalance,
		"OpeningBalanceDate": input.OpeningBalanceDate,
		"Description":        input.Description,
	}).Error
	if err != nil {
		tx.Rollback()
		return nil, err
	}

	// caching
	if err := utils.RemoveRedisItem[BankAccount](id); err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := utils.RemoveRedisList[BankAccount](businessId); err != nil {
		tx.Rollback()
		return nil, err
	}
	return bankAccount, tx.Commit().Error
}

func ToggleActiveBankAccount(ctx context.Context, id int, isActive bool) (*BankAccount, error) {

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	bankAccount, err := utils.FetchModel[BankAccount](ctx, businessId, id)
	if err != nil {
		return nil, err
	}

	db := config.GetDB()
	err = db.WithContext(ctx).Model(bankAccount).Updates(map[string]interface{}{
		"IsActive": isActive,
	}).Error
	if err != nil {
		return nil, err
	}

	// caching
	if err := utils.RemoveRedisItem[BankAccount](id); err != nil {
		return nil, err
	}
	if err := utils.RemoveRedisList[BankAccount](businessId); err != nil {
		return nil, err
	}
	return bankAccount, nil
}

func GetBankAccount(ctx context.Context, id int) (*BankAccount, error) {

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	bankAccount, err := utils.FetchModel[BankAccount](ctx, businessId, id)
	if err != nil {
		return nil, err
	}

	balance, err := bankAccount.GetBalanceAsOf(ctx, time.Now())
	if err != nil {
		return nil, err
	}
	bankAccount.Balance = &balance

	return bankAccount, nil
}

func ListBankAccount(ctx context.Context) (*ListBankAccountResponse, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	bankAccounts, err := utils.FetchAllModels[BankAccount](ctx, businessId)
	if err != nil {
		return nil, err
	}

	summaryByCurrency := make(map[string]decimal.Decimal)
	for _, ba := range bankAccounts {
		amount, err := ba.GetBalanceAsOf(ctx, time.Now())
		if err != nil {
			return nil, err
		}
		ba.Balance = &amount
		summaryByCurrency[ba.Currency] = summaryByCurrency[ba.Currency].Add(amount)
	}

	totalSummary := make([]BankAccountSummary, 0, len(summaryByCurrency))
	for currency, total := range summaryByCurrency {
		totalSummary = append(totalSummary, BankAccountSummary{
			Currency:     currency,
			TotalBalance: total,
		})
	}

	response := &ListBankAccountResponse{
		ListBankAccount: bankAccounts,
		TotalSummary:    totalSummary,
	}

	return response, nil
}

// GetBalanceAsOf returns the account's opening amount plus all paid movements
// with a payment date strictly before asOf. Pending and cancelled rows never
// move a balance.
func (ba BankAccount) GetBalanceAsOf(ctx context.Context, asOf time.Time) (decimal.Decimal, error) {
	var amount decimal.Decimal
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return amount, errors.New("business id is required")
	}
	db := config.GetDB()
	// IMPORTANT: Always filter by business_id to avoid cross-tenant scans.
	// Raw queries bypass the tenant guard and the soft-delete scope.
	err := db.WithContext(ctx).Raw(`
		SELECT COALESCE(SUM(CASE WHEN t.direction = 'Income' THEN t.amount ELSE -t.amount END), 0)
		FROM transactions t
		WHERE t.business_id = ?
			AND t.bank_account_id = ?
			AND t.current_status = 'Paid'
			AND t.payment_date < ?
			AND t.deleted_at IS NULL;
	`, businessId, ba.ID, asOf).Scan(&amount).Error
	if err != nil {
		return amount, err
	}

	return ba.OpeningBalance.Add(amount), nil
}
