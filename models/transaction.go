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

// Transaction is a single financial obligation row. A recurring or installment
// series is stored in the same table: the series root carries the recurrence
// fields and generated instances point back at it via ParentTemplateId.
type Transaction struct {
	ID            int                  `gorm:"primary_key" json:"id"`
	BusinessId    string               `gorm:"index;not null" json:"business_id"`
	TransactionNo int64                `gorm:"index;not null" json:"transaction_no"`
	Description   string               `gorm:"size:255;not null" json:"description" binding:"required"`
	Amount        decimal.Decimal      `gorm:"type:decimal(20,4);not null" json:"amount"`
	Direction     TransactionDirection `gorm:"type:enum('Income','Expense');not null" json:"direction"`
	DueDate       time.Time            `gorm:"index;not null" json:"due_date"`
	PaymentDate   *time.Time           `gorm:"default:null" json:"payment_date"`
	CurrentStatus TransactionStatus    `gorm:"type:enum('Pending','Paid','Cancelled');default:Pending;index" json:"current_status"`
	BankAccountId int                  `gorm:"index;not null" json:"bank_account_id"`
	CostCenterId  int                  `gorm:"index;default:null" json:"cost_center_id"`
	CategoryId    int                  `gorm:"index;default:null" json:"category_id"`
	SubCategoryId int                  `gorm:"default:null" json:"sub_category_id"`
	Notes         string               `gorm:"type:text" json:"notes"`

	// series fields, set on the root row only
	Frequency         *RecurringFrequency `gorm:"type:enum('Daily','Weekly','Monthly','Quarterly','Yearly');default:null" json:"frequency,omitempty"`
	IntervalCount     int                 `gorm:"default:0" json:"interval_count,omitempty"`
	InstallmentCount  int                 `gorm:"default:0" json:"installment_count,omitempty"`
	RecurrenceEndDate *time.Time          `gorm:"default:null" json:"recurrence_end_date,omitempty"`
	TotalAmount       decimal.Decimal     `gorm:"type:decimal(20,4);default:0" json:"total_amount,omitempty"`

	// series membership: nil for standalone rows and series roots
	ParentTemplateId *int `gorm:"uniqueIndex:idx_series_seq" json:"parent_template_id,omitempty"`
	SequenceNo       int  `gorm:"uniqueIndex:idx_series_seq;default:1" json:"sequence_no"`

	CreatedAt time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	// computed, not stored
	DisplayedStatus TransactionDisplayStatus `gorm:"-" json:"display_status,omitempty"`
}

type NewRecurrence struct {
	Frequency RecurringFrequency `json:"frequency" binding:"required"`
	// nil defaults to 1; an explicit non-positive value is rejected
	IntervalCount    *int       `json:"interval_count"`
	InstallmentCount int        `json:"installment_count"`
	EndDate          *time.Time `json:"end_date"`
}

type NewTransaction struct {
	Description   string               `json:"description" binding:"required"`
	Amount        decimal.Decimal      `json:"amount" binding:"required"`
	Direction     TransactionDirection `json:"direction" binding:"required"`
	DueDate       time.Time            `json:"due_date" binding:"required"`
	BankAccountId int                  `json:"bank_account_id" binding:"required"`
	CostCenterId  int                  `json:"cost_center_id"`
	CategoryId    int                  `json:"category_id"`
	SubCategoryId int                  `json:"sub_category_id"`
	Notes         string               `json:"notes"`
	Recurrence    *NewRecurrence       `json:"recurrence"`
}

type TransactionFilter struct {
	Status        *TransactionStatus    `json:"status"`
	Direction     *TransactionDirection `json:"direction"`
	BankAccountId *int                  `json:"bank_account_id"`
	CostCenterId  *int                  `json:"cost_center_id"`
	CategoryId    *int                  `json:"category_id"`
	FromDueDate   *time.Time            `json:"from_due_date"`
	ToDueDate     *time.Time            `json:"to_due_date"`
	Description   *string               `json:"description"`
}

type TransactionsConnection struct {
	Edges    []*TransactionsEdge `json:"edges"`
	PageInfo *PageInfo           `json:"pageInfo"`
}

type TransactionsEdge Edge[Transaction]

func (t Transaction) GetId() int {
	return t.ID
}

// implements methods for pagination

// node
// returns decoded cursor string
func (t Transaction) GetCursor() string {
	return t.DueDate.String()
}

// SeriesRootId returns the id of the series root this row belongs to.
// Standalone rows and roots return their own id.
func (t Transaction) SeriesRootId() int {
	if t.ParentTemplateId != nil {
		return *t.ParentTemplateId
	}
	return t.ID
}

// DisplayStatus derives the read-time status. Overdue is never stored: a
// pending row whose due date lies before asOf (at day granularity) reads as
// Overdue while current_status stays Pending.
func (t Transaction) DisplayStatus(asOf time.Time) TransactionDisplayStatus {
	switch t.CurrentStatus {
	case TransactionStatusPaid:
		return TransactionDisplayStatusPaid
	case TransactionStatusCancelled:
		return TransactionDisplayStatusCancelled
	}
	due := time.Date(t.DueDate.Year(), t.DueDate.Month(), t.DueDate.Day(), 0, 0, 0, 0, time.UTC)
	ref := time.Date(asOf.Year(), asOf.Month(), asOf.Day(), 0, 0, 0, 0, time.UTC)
	if due.Before(ref) {
		return TransactionDisplayStatusOverdue
	}
	return TransactionDisplayStatusPending
}

func (input *NewTransaction) Validate(ctx context.Context, businessId string) error {
	if !input.Amount.IsPositive() {
		return utils.NewValidationError("amount", "must be positive")
	}
	if input.DueDate.IsZero() {
		return utils.NewValidationError("due_date", "is required")
	}
	// referenced resources must exist within the business
	if err := utils.ValidateResourceId[BankAccount](ctx, businessId, input.BankAccountId); err != nil {
		return errors.New("bank account not found")
	}
	if input.CostCenterId > 0 {
		if err := utils.ValidateResourceId[CostCenter](ctx, businessId, input.CostCenterId); err != nil {
			return errors.New("cost center not found")
		}
	}
	if input.CategoryId > 0 {
		category, err := utils.FetchModel[Category](ctx, businessId, input.CategoryId)
		if err != nil {
			return errors.New("category not found")
		}
		if category.Direction != input.Direction {
			return utils.NewValidationError("category_id", "category direction does not match transaction direction")
		}
	}
	if input.SubCategoryId > 0 {
		if input.CategoryId <= 0 {
			return utils.NewValidationError("sub_category_id", "subcategory requires a category")
		}
		subCategory, err := utils.FetchModel[SubCategory](ctx, businessId, input.SubCategoryId)
		if err != nil {
			return errors.New("subcategory not found")
		}
		if subCategory.CategoryId != input.CategoryId {
			return utils.NewValidationError("sub_category_id", "subcategory does not belong to category")
		}
	}
	if input.Recurrence != nil {
		if input.Recurrence.IntervalCount != nil && *input.Recurrence.IntervalCount <= 0 {
			return utils.NewValidationError("recurrence.interval_count", "must be positive")
		}
		if input.Recurrence.InstallmentCount < 0 {
			return utils.NewValidationError("recurrence.installment_count", "must not be negative")
		}
		if input.Recurrence.EndDate != nil && input.Recurrence.EndDate.Before(input.DueDate) {
			return utils.NewValidationError("recurrence.end_date", "must not be before the start date")
		}
		if input.Recurrence.InstallmentCount == 0 && input.Recurrence.EndDate == nil {
			// open-ended series are allowed, instances are materialized up to a horizon
			_ = input.Recurrence
		}
	}
	return nil
}

// CreateTransaction creates a standalone transaction. Series creation lives in
// the workflow package since it expands the recurrence before persisting.
func CreateTransaction(ctx context.Context, input *NewTransaction) (*Transaction, error) {

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	if input.Recurrence != nil {
		return nil, utils.NewValidationError("recurrence", "recurring transactions must be created through the series endpoint")
	}
	if err := input.Validate(ctx, businessId); err != nil {
		return nil, err
	}

	transactionNo, err := utils.GetTransactionNo[Transaction](ctx, businessId)
	if err != nil {
		return nil, err
	}

	transaction := Transaction{
		BusinessId:    businessId,
		TransactionNo: transactionNo,
		Description:   input.Description,
		Amount:        input.Amount,
		Direction:     input.Direction,
		DueDate:       input.DueDate,
		CurrentStatus: TransactionStatusPending,
		BankAccountId: input.BankAccountId,
		CostCenterId:  input.CostCenterId,
		CategoryId:    input.CategoryId,
		SubCategoryId: input.SubCategoryId,
		Notes:         input.Notes,
		SequenceNo:    1,
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).Create(&transaction).Error; err != nil {
		return nil, err
	}
	transaction.DisplayedStatus = transaction.DisplayStatus(time.Now())
	return &transaction, nil
}

func GetTransaction(ctx context.Context, id int) (*Transaction, error) {

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	transaction, err := utils.FetchModel[Transaction](ctx, businessId, id)
	if err != nil {
		return nil, err
	}
	transaction.DisplayedStatus = transaction.DisplayStatus(time.Now())
	return transaction, nil
}

// GetSeriesMembers returns every live row of the series identified by rootId,
// the root included, ordered by sequence number.
func GetSeriesMembers(ctx context.Context, rootId int) ([]*Transaction, error) {

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	db := config.GetDB()
	var results []*Transaction
	err := db.WithContext(ctx).
		Where("business_id = ?", businessId).
		Where("id = ? OR parent_template_id = ?", rootId, rootId).
		Order("sequence_no").
		Find(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}

func PaginateTransaction(ctx context.Context, limit *int, after *string,
	filter *TransactionFilter) (*TransactionsConnection, error) {

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	db := config.GetDB()
	dbCtx := db.WithContext(ctx).Where("business_id = ?", businessId)
	if filter != nil {
		if filter.Status != nil {
			dbCtx.Where("current_status = ?", *filter.Status)
		}
		if filter.Direction != nil {
			dbCtx.Where("direction = ?", *filter.Direction)
		}
		if filter.BankAccountId != nil && *filter.BankAccountId > 0 {
			dbCtx.Where("bank_account_id = ?", *filter.BankAccountId)
		}
		if filter.CostCenterId != nil && *filter.CostCenterId > 0 {
			dbCtx.Where("cost_center_id = ?", *filter.CostCenterId)
		}
		if filter.CategoryId != nil && *filter.CategoryId > 0 {
			dbCtx.Where("category_id = ?", *filter.CategoryId)
		}
		if filter.FromDueDate != nil {
			dbCtx.Where("due_date >= ?", *filter.FromDueDate)
		}
		if filter.ToDueDate != nil {
			dbCtx.Where("due_date <= ?", *filter.ToDueDate)
		}
		if filter.Description != nil && *filter.Description != "" {
			dbCtx.Where("description LIKE ?", "%"+*filter.Description+"%")
		}
	}

	edges, pageInfo, err := FetchPageCompositeCursor[Transaction](dbCtx, *limit, after, "due_date", ">")
	if err != nil {
		return nil, err
	}
	now := time.Now()
	var transactionsConnection TransactionsConnection
	transactionsConnection.PageInfo = pageInfo
	for _, edge := range edges {
		edge.Node.DisplayedStatus = edge.Node.DisplayStatus(now)
		transactionsEdge := TransactionsEdge(edge)
		transactionsConnection.Edges = append(transactionsConnection.Edges, &transactionsEdge)
	}

	return &transactionsConnection, err
}

// UpdateTransaction rewrites the editable fields of a pending transaction.
// Paid rows are immutable apart from notes; cancelled rows are immutable.
func UpdateTransaction(ctx context.Context, id int, input *NewTransaction) (*Transaction, error) {

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	transaction, err := utils.FetchModel[Transaction](ctx, businessId, id)
	if err != nil {
		return nil, err
	}

	db := config.GetDB()
	switch transaction.CurrentStatus {
	case TransactionStatusPaid:
		if config.StrictPaidImmutability() {
			return nil, utils.NewConflictError(string(transaction.CurrentStatus), "paid transactions are immutable")
		}
		// only notes stay editable after payment
		if err := db.WithContext(ctx).Model(transaction).Update("notes", input.Notes).Error; err != nil {
			return nil, err
		}
		transaction.DisplayedStatus = transaction.DisplayStatus(time.Now())
		return transaction, nil
	case TransactionStatusCancelled:
		return nil, utils.NewConflictError(string(transaction.CurrentStatus), "cancelled transactions are immutable")
	}

	if err := input.Validate(ctx, businessId); err != nil {
		return nil, err
	}

	err = db.WithContext(ctx).Model(transaction).Updates(map[string]interface{}{
		"Description":   input.Description,
		"Amount":        input.Amount,
		"Direction":     input.Direction,
		"DueDate":       input.DueDate,
		"BankAccountId": input.BankAccountId,
		"CostCenterId":  input.CostCenterId,
		"CategoryId":    input.CategoryId,
		"SubCategoryId": input.SubCategoryId,
		"Notes":         input.Notes,
	}).Error
	if err != nil {
		return nil, err
	}
	transaction.DisplayedStatus = transaction.DisplayStatus(time.Now())
	return transaction, nil
}

// RegisterPayment marks a pending transaction as paid. The transition is a
// conditional update on current_status so concurrent payments of the same row
// cannot both win; the loser reads the row back to report what happened.
func RegisterPayment(ctx context.Context, id int, paymentDate time.Time) (*Transaction, error) {

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	if paymentDate.IsZero() {
		paymentDate = time.Now()
	}

	db := config.GetDB()
	result := db.WithContext(ctx).Model(&Transaction{}).
		Where("business_id = ? AND id = ? AND current_status = ?", businessId, id, TransactionStatusPending).
		Updates(map[string]interface{}{
			"current_status": TransactionStatusPaid,
			"payment_date":   paymentDate,
		})
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		// either the row does not exist or it already left Pending
		transaction, err := utils.FetchModel[Transaction](ctx, businessId, id)
		if err != nil {
			return nil, utils.ErrorRecordNotFound
		}
		return nil, utils.NewConflictError(string(transaction.CurrentStatus), "transaction is not pending")
	}

	transaction, err := utils.FetchModel[Transaction](ctx, businessId, id)
	if err != nil {
		return nil, err
	}
	transaction.DisplayedStatus = transaction.DisplayStatus(time.Now())
	return transaction, nil
}

// CancelTransaction voids a pending transaction. Paid rows cannot be
// cancelled; they are part of realized cash flow.
func CancelTransaction(ctx context.Context, id int) (*Transaction, error) {

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	db := config.GetDB()
	result := db.WithContext(ctx).Model(&Transaction{}).
		Where("business_id = ? AND id = ? AND current_status = ?", businessId, id, TransactionStatusPending).
		Update("current_status", TransactionStatusCancelled)
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		transaction, err := utils.FetchModel[Transaction](ctx, businessId, id)
		if err != nil {
			return nil, utils.ErrorRecordNotFound
		}
		return nil, utils.NewConflictError(string(transaction.CurrentStatus), "transaction is not pending")
	}

	transaction, err := utils.FetchModel[Transaction](ctx, businessId, id)
	if err != nil {
		return nil, err
	}
	transaction.DisplayedStatus = transaction.DisplayStatus(time.Now())
	return transaction, nil
}
