package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"bitbucket.org/mmdatafocus/obligations_backend/config"
	"bitbucket.org/mmdatafocus/obligations_backend/middlewares"
	"bitbucket.org/mmdatafocus/obligations_backend/models"
	"bitbucket.org/mmdatafocus/obligations_backend/models/reports"
	"bitbucket.org/mmdatafocus/obligations_backend/utils"
	"bitbucket.org/mmdatafocus/obligations_backend/workflow"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const defaultPort = "8080"

// Define a struct to represent the rate limiter.
type RateLimiter struct {
	client *redis.Client
	limit  int64
	window time.Duration
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func getRedisClient(redisAddress string) *redis.Client {
	client := redis.NewClient(&redis.Options{
		Addr: redisAddress,
	})
	return client
}

// respondError maps domain errors onto HTTP statuses. A missing deletion
// scope is an incomplete request, not a state conflict, so it maps to 400.
func respondError(c *gin.Context, err error) {
	var validationErr *utils.ValidationError
	var conflictErr *utils.ConflictError
	switch {
	case errors.Is(err, utils.ErrorRecordNotFound) || errors.Is(err, gorm.ErrRecordNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "record not found"})
	case errors.Is(err, utils.ErrorAmbiguousScope):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.As(err, &validationErr):
		c.JSON(http.StatusBadRequest, gin.H{"error": validationErr.Error(), "field": validationErr.Field})
	case errors.As(err, &conflictErr):
		c.JSON(http.StatusConflict, gin.H{"error": conflictErr.Error(), "current_state": conflictErr.CurrentState})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

// respondBindError reports request binding failures. Tag-level validation
// errors come back field by field so clients can point at the bad input.
func respondBindError(c *gin.Context, err error) {
	var bindErrs validator.ValidationErrors
	if errors.As(err, &bindErrs) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "validation failed", "fields": utils.ProcessValidationErrors(bindErrs)})
		return
	}
	c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
}

func authorizeAdminOnly(ctx context.Context) error {
	isAdmin, ok := utils.GetIsAdminFromContext(ctx)
	if !ok || !isAdmin {
		return errors.New("forbidden")
	}
	return nil
}

func parseIdParam(c *gin.Context) (int, error) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id <= 0 {
		return 0, utils.NewValidationError("id", "must be a positive integer")
	}
	return id, nil
}

func parseDateQuery(c *gin.Context, name string) (*time.Time, error) {
	raw := strings.TrimSpace(c.Query(name))
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse("2006-01-02T15:04:05", raw)
	if err != nil {
		t, err = time.Parse("2006-01-02", raw)
		if err != nil {
			return nil, utils.NewValidationError(name, "must be a date (YYYY-MM-DD)")
		}
	}
	return &t, nil
}

/* auth */

func loginHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var input struct {
			Username string `json:"username" binding:"required"`
			Password string `json:"password" binding:"required"`
		}
		if err := c.ShouldBindJSON(&input); err != nil {
			respondBindError(c, err)
			return
		}
		info, err := models.Login(c.Request.Context(), input.Username, input.Password)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, info)
	}
}

func logoutHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		ok, err := models.Logout(c.Request.Context())
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": ok})
	}
}

func changePasswordHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var input struct {
			OldPassword string `json:"old_password" binding:"required"`
			NewPassword string `json:"new_password" binding:"required"`
		}
		if err := c.ShouldBindJSON(&input); err != nil {
			respondBindError(c, err)
			return
		}
		user, err := models.ChangePassword(c.Request.Context(), input.OldPassword, input.NewPassword)
		if err != nil {
			respondError(c, err)
			return
		}
		user.PrepareGive()
		c.JSON(http.StatusOK, user)
	}
}

/* businesses */

func createBusinessHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := authorizeAdminOnly(c.Request.Context()); err != nil {
			c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
			return
		}
		var input models.NewBusiness
		if err := c.ShouldBindJSON(&input); err != nil {
			respondBindError(c, err)
			return
		}
		business, err := models.CreateBusiness(c.Request.Context(), &input)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, business)
	}
}

func listBusinessesHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := authorizeAdminOnly(c.Request.Context()); err != nil {
			c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
			return
		}
		var name *string
		if v := strings.TrimSpace(c.Query("name")); v != "" {
			name = &v
		}
		businesses, err := models.GetBusinesses(c.Request.Context(), name)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, businesses)
	}
}

func getBusinessHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		business, err := models.GetBusiness(c.Request.Context())
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, business)
	}
}

func updateBusinessHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var input models.NewBusiness
		if err := c.ShouldBindJSON(&input); err != nil {
			respondBindError(c, err)
			return
		}
		business, err := models.UpdateBusiness(c.Request.Context(), &input)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, business)
	}
}

func toggleActiveBusinessHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := authorizeAdminOnly(c.Request.Context()); err != nil {
			c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
			return
		}
		id, err := uuid.Parse(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid business id"})
			return
		}
		var input struct {
			IsActive *bool `json:"is_active" binding:"required"`
		}
		if err := c.ShouldBindJSON(&input); err != nil {
			respondBindError(c, err)
			return
		}
		business, err := models.ToggleActiveBusiness(c.Request.Context(), id, *input.IsActive)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, business)
	}
}

/* users */

func createUserHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var input models.NewUser
		if err := c.ShouldBindJSON(&input); err != nil {
			respondBindError(c, err)
			return
		}
		user, err := models.CreateUser(c.Request.Context(), &input)
		if err != nil {
			respondError(c, err)
			return
		}
		user.PrepareGive()
		c.JSON(http.StatusCreated, user)
	}
}

func listUsersHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		users, err := models.GetAllUsers(c.Request.Context())
		if err != nil {
			respondError(c, err)
			return
		}
		for _, user := range users {
			user.PrepareGive()
		}
		c.JSON(http.StatusOK, users)
	}
}

/* bank accounts */

func createBankAccountHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var input models.NewBankAccount
		if err := c.ShouldBindJSON(&input); err != nil {
			respondBindError(c, err)
			return
		}
		bankAccount, err := models.CreateBankAccount(c.Request.Context(), &input)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, bankAccount)
	}
}

func listBankAccountsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		response, err := models.ListBankAccount(c.Request.Context())
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, response)
	}
}

func getBankAccountHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := parseIdParam(c)
		if err != nil {
			respondError(c, err)
			return
		}
		bankAccount, err := models.GetBankAccount(c.Request.Context(), id)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, bankAccount)
	}
}

func updateBankAccountHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := parseIdParam(c)
		if err != nil {
			respondError(c, err)
			return
		}
		var input models.NewBankAccount
		if err := c.ShouldBindJSON(&input); err != nil {
			respondBindError(c, err)
			return
		}
		bankAccount, err := models.UpdateBankAccount(c.Request.Context(), id, &input)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, bankAccount)
	}
}

func toggleActiveBankAccountHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := parseIdParam(c)
		if err != nil {
			respondError(c, err)
			return
		}
		var input struct {
			IsActive *bool `json:"is_active" binding:"required"`
		}
		if err := c.ShouldBindJSON(&input); err != nil {
			respondBindError(c, err)
			return
		}
		bankAccount, err := models.ToggleActiveBankAccount(c.Request.Context(), id, *input.IsActive)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, bankAccount)
	}
}

// balanceSnapshotHandler reports an account balance as of a date. The balance
// is the opening balance plus every payment registered before that date.
func balanceSnapshotHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		id, err := parseIdParam(c)
		if err != nil {
			respondError(c, err)
			return
		}
		asOf, err := parseDateQuery(c, "as_of")
		if err != nil {
			respondError(c, err)
			return
		}
		if asOf == nil {
			now := time.Now().UTC()
			asOf = &now
		}
		bankAccount, err := models.GetBankAccount(ctx, id)
		if err != nil {
			respondError(c, err)
			return
		}
		balance, err := bankAccount.GetBalanceAsOf(ctx, *asOf)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"bank_account_id": bankAccount.ID,
			"as_of":           asOf.Format("2006-01-02"),
			"balance":         balance,
		})
	}
}

/* reference data */

func createCostCenterHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var input models.NewCostCenter
		if err := c.ShouldBindJSON(&input); err != nil {
			respondBindError(c, err)
			return
		}
		costCenter, err := models.CreateCostCenter(c.Request.Context(), &input)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, costCenter)
	}
}

func listCostCentersHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		costCenters, err := models.ListCostCenter(c.Request.Context())
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, costCenters)
	}
}

func deleteCostCenterHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := parseIdParam(c)
		if err != nil {
			respondError(c, err)
			return
		}
		costCenter, err := models.DeleteCostCenter(c.Request.Context(), id)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, costCenter)
	}
}

func createCategoryHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var input models.NewCategory
		if err := c.ShouldBindJSON(&input); err != nil {
			respondBindError(c, err)
			return
		}
		category, err := models.CreateCategory(c.Request.Context(), &input)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, category)
	}
}

func listCategoriesHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var direction *models.TransactionDirection
		if v := strings.TrimSpace(c.Query("direction")); v != "" {
			d := models.TransactionDirection(v)
			if d != models.TransactionDirectionIncome && d != models.TransactionDirectionExpense {
				respondError(c, utils.NewValidationError("direction", "must be Income or Expense"))
				return
			}
			direction = &d
		}
		categories, err := models.ListCategory(c.Request.Context(), direction)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, categories)
	}
}

func deleteCategoryHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := parseIdParam(c)
		if err != nil {
			respondError(c, err)
			return
		}
		category, err := models.DeleteCategory(c.Request.Context(), id)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, category)
	}
}

func createSubCategoryHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var input models.NewSubCategory
		if err := c.ShouldBindJSON(&input); err != nil {
			respondBindError(c, err)
			return
		}
		subCategory, err := models.CreateSubCategory(c.Request.Context(), &input)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, subCategory)
	}
}

func listSubCategoriesHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var categoryId *int
		if v := strings.TrimSpace(c.Query("category_id")); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n <= 0 {
				respondError(c, utils.NewValidationError("category_id", "must be a positive integer"))
				return
			}
			categoryId = &n
		}
		subCategories, err := models.ListSubCategory(c.Request.Context(), categoryId)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, subCategories)
	}
}

func deleteSubCategoryHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := parseIdParam(c)
		if err != nil {
			respondError(c, err)
			return
		}
		subCategory, err := models.DeleteSubCategory(c.Request.Context(), id)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, subCategory)
	}
}

/* transactions */

// createTransactionHandler creates a standalone transaction, or a whole
// series when the input carries a recurrence.
func createTransactionHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var input models.NewTransaction
		if err := c.ShouldBindJSON(&input); err != nil {
			respondBindError(c, err)
			return
		}
		if input.Recurrence != nil {
			transactions, err := workflow.CreateTransactionSeries(c.Request.Context(), &input)
			if err != nil {
				respondError(c, err)
				return
			}
			c.JSON(http.StatusCreated, gin.H{"transactions": transactions})
			return
		}
		transaction, err := models.CreateTransaction(c.Request.Context(), &input)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, transaction)
	}
}

func listTransactionsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		limit := 20
		if v := strings.TrimSpace(c.Query("limit")); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n <= 0 || n > 200 {
				respondError(c, utils.NewValidationError("limit", "must be between 1 and 200"))
				return
			}
			limit = n
		}
		var after *string
		if v := strings.TrimSpace(c.Query("after")); v != "" {
			after = &v
		}

		var filter models.TransactionFilter
		if v := strings.TrimSpace(c.Query("status")); v != "" {
			status := models.TransactionStatus(v)
			switch status {
			case models.TransactionStatusPending, models.TransactionStatusPaid, models.TransactionStatusCancelled:
				filter.Status = &status
			default:
				respondError(c, utils.NewValidationError("status", "must be Pending, Paid or Cancelled"))
				return
			}
		}
		if v := strings.TrimSpace(c.Query("direction")); v != "" {
			direction := models.TransactionDirection(v)
			if direction != models.TransactionDirectionIncome && direction != models.TransactionDirectionExpense {
				respondError(c, utils.NewValidationError("direction", "must be Income or Expense"))
				return
			}
			filter.Direction = &direction
		}
		for name, dest := range map[string]**int{
			"bank_account_id": &filter.BankAccountId,
			"cost_center_id":  &filter.CostCenterId,
			"category_id":     &filter.CategoryId,
		} {
			if v := strings.TrimSpace(c.Query(name)); v != "" {
				n, err := strconv.Atoi(v)
				if err != nil || n <= 0 {
					respondError(c, utils.NewValidationError(name, "must be a positive integer"))
					return
				}
				*dest = &n
			}
		}
		fromDueDate, err := parseDateQuery(c, "from_due_date")
		if err != nil {
			respondError(c, err)
			return
		}
		filter.FromDueDate = fromDueDate
		toDueDate, err := parseDateQuery(c, "to_due_date")
		if err != nil {
			respondError(c, err)
			return
		}
		filter.ToDueDate = toDueDate
		if v := strings.TrimSpace(c.Query("description")); v != "" {
			filter.Description = &v
		}

		connection, err := models.PaginateTransaction(c.Request.Context(), &limit, after, &filter)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, connection)
	}
}

func getTransactionHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := parseIdParam(c)
		if err != nil {
			respondError(c, err)
			return
		}
		transaction, err := models.GetTransaction(c.Request.Context(), id)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, transaction)
	}
}

func getTransactionSeriesHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := parseIdParam(c)
		if err != nil {
			respondError(c, err)
			return
		}
		transaction, err := models.GetTransaction(c.Request.Context(), id)
		if err != nil {
			respondError(c, err)
			return
		}
		members, err := models.GetSeriesMembers(c.Request.Context(), transaction.SeriesRootId())
		if err != nil {
			respondError(c, err)
			return
		}
		now := time.Now()
		for _, member := range members {
			member.DisplayedStatus = member.DisplayStatus(now)
		}
		c.JSON(http.StatusOK, members)
	}
}

func updateTransactionHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := parseIdParam(c)
		if err != nil {
			respondError(c, err)
			return
		}
		var input models.NewTransaction
		if err := c.ShouldBindJSON(&input); err != nil {
			respondBindError(c, err)
			return
		}
		transaction, err := models.UpdateTransaction(c.Request.Context(), id, &input)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, transaction)
	}
}

func registerPaymentHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := parseIdParam(c)
		if err != nil {
			respondError(c, err)
			return
		}
		var input struct {
			PaymentDate *models.MyDateString `json:"payment_date" binding:"required"`
		}
		if err := c.ShouldBindJSON(&input); err != nil {
			respondBindError(c, err)
			return
		}
		transaction, err := models.RegisterPayment(c.Request.Context(), id, time.Time(*input.PaymentDate))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, transaction)
	}
}

func cancelTransactionHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := parseIdParam(c)
		if err != nil {
			respondError(c, err)
			return
		}
		transaction, err := models.CancelTransaction(c.Request.Context(), id)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, transaction)
	}
}

func deleteTransactionHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := parseIdParam(c)
		if err != nil {
			respondError(c, err)
			return
		}
		var scope *models.DeletionScope
		if v := strings.TrimSpace(c.Query("scope")); v != "" {
			s := models.DeletionScope(v)
			if s != models.DeletionScopeSingle && s != models.DeletionScopeSeries {
				respondError(c, utils.NewValidationError("scope", "must be Single or Series"))
				return
			}
			scope = &s
		}
		if err := workflow.DeleteTransaction(c.Request.Context(), id, scope); err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true})
	}
}

/* reports */

func cashFlowReportHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		fromDate, err := parseDateQuery(c, "from_date")
		if err != nil {
			respondError(c, err)
			return
		}
		toDate, err := parseDateQuery(c, "to_date")
		if err != nil {
			respondError(c, err)
			return
		}
		if fromDate == nil || toDate == nil {
			respondError(c, utils.NewValidationError("from_date", "from_date and to_date are required"))
			return
		}
		var bankAccountId *int
		if v := strings.TrimSpace(c.Query("bank_account_id")); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n <= 0 {
				respondError(c, utils.NewValidationError("bank_account_id", "must be a positive integer"))
				return
			}
			bankAccountId = &n
		}
		report, err := reports.GetCashFlowReport(c.Request.Context(),
			models.MyDateString(*fromDate), models.MyDateString(*toDate), bankAccountId)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, report)
	}
}

/* internal ops */

// recurringGenerateHandler extends open-ended series for one business or all
// of them. Admin only; normally hit by the scheduler, not end users.
func recurringGenerateHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		if err := authorizeAdminOnly(ctx); err != nil {
			c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
			return
		}
		horizon := workflow.ExpansionHorizon()

		var businessIds []string
		if v := strings.TrimSpace(c.Query("business_id")); v != "" {
			businessIds = []string{v}
		} else {
			businesses, err := models.GetBusinesses(ctx, nil)
			if err != nil {
				respondError(c, err)
				return
			}
			for _, business := range businesses {
				if business.IsActive != nil && *business.IsActive {
					businessIds = append(businessIds, business.ID.String())
				}
			}
		}

		total := 0
		for _, businessId := range businessIds {
			businessCtx := utils.SetBusinessIdInContext(ctx, businessId)
			created, err := workflow.GenerateDueInstancesForBusiness(businessCtx, businessId, horizon)
			total += created
			if err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error(), "generated": total})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"generated": total, "horizon": horizon.Format("2006-01-02")})
	}
}

func customNotFoundHandler(c *gin.Context) {
	c.JSON(http.StatusNotFound, gin.H{"error": "route not found"})
}

func main() {
	port := os.Getenv("API_PORT")
	if port == "" {
		// Cloud Run standard env var.
		port = os.Getenv("PORT")
	}
	if port == "" {
		port = defaultPort
	}

	logger := config.GetLogger()

	// Shutdown coordination.
	// Cloud Run sends SIGTERM on revision shutdown; handle it for graceful drain.
	sigCtx, stopSignals := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	// Start the HTTP server ASAP so Cloud Run considers the revision healthy.
	// Until DB/Redis are ready, we return 503 for app endpoints.
	r := gin.New()
	// Correlation IDs: generate once per request and attach to context.
	r.Use(func(c *gin.Context) {
		cid := c.GetHeader("x-correlation-id")
		if cid == "" {
			cid = uuid.NewString()
		}
		c.Request = c.Request.WithContext(utils.SetCorrelationIdInContext(c.Request.Context(), cid))
		c.Next()
	})
	r.Use(func(c *gin.Context) {
		// Always allow Cloud Run startup probe.
		if c.Request.URL.Path == "/healthz" {
			c.Status(http.StatusNoContent)
			c.Abort()
			return
		}
		// Gate critical endpoints on dependency readiness.
		if config.GetDB() == nil || config.GetRedisDB() == nil {
			c.AbortWithStatus(http.StatusServiceUnavailable)
			return
		}
		c.Next()
	})

	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	corsConfig := cors.DefaultConfig()
	// Production-safe CORS:
	// - In production, require explicit allowlist via CORS_ALLOWED_ORIGINS (comma-separated).
	// - In non-production, allow all (developer convenience).
	allowedOrigins := strings.TrimSpace(os.Getenv("CORS_ALLOWED_ORIGINS"))
	if strings.EqualFold(strings.TrimSpace(os.Getenv("GO_ENV")), "production") {
		if allowedOrigins == "" {
			// Safer default: deny all if not configured in production.
			corsConfig.AllowOrigins = []string{}
		} else {
			corsConfig.AllowOrigins = splitAndTrim(allowedOrigins)
		}
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AddAllowMethods("GET", "POST", "PUT", "DELETE", "OPTIONS")
	corsConfig.AddAllowHeaders("token", "Origin", "Content-Type", "Authorization")
	corsConfig.AddExposeHeaders("Content-Length")
	corsConfig.AllowCredentials = true

	r.Use(cors.New(corsConfig))
	// r.Use(middlewares.AuthMiddleware())

	// Optional rate limiting (recommended for production).
	// Env:
	// - RATE_LIMIT_ENABLED=true
	// - RATE_LIMIT_WINDOW_SECONDS=60
	// - RATE_LIMIT_MAX_REQUESTS=600
	if strings.EqualFold(strings.TrimSpace(os.Getenv("RATE_LIMIT_ENABLED")), "true") {
		client := getRedisClient(os.Getenv("REDIS_ADDRESS"))
		limit := int64(600)
		if v := strings.TrimSpace(os.Getenv("RATE_LIMIT_MAX_REQUESTS")); v != "" {
			if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
				limit = n
			}
		}
		windowSec := int64(60)
		if v := strings.TrimSpace(os.Getenv("RATE_LIMIT_WINDOW_SECONDS")); v != "" {
			if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
				windowSec = n
			}
		}
		rateLimiter := NewRateLimiter(client, limit, time.Duration(windowSec)*time.Second)
		r.Use(rateLimiter.RateLimitMiddleware)
	}

	r.Use(middlewares.SessionMiddleware())
	r.Use(customErrorLogger(logger))
	r.Use(gin.Recovery())

	r.POST("/auth/login", loginHandler())

	// Everything below needs a resolved session user.
	authed := r.Group("/", middlewares.BusinessContextMiddleware())
	authed.POST("/auth/logout", logoutHandler())
	authed.POST("/auth/change-password", changePasswordHandler())

	authed.POST("/businesses", createBusinessHandler())
	authed.GET("/businesses", listBusinessesHandler())
	authed.POST("/businesses/:id/toggle-active", toggleActiveBusinessHandler())
	authed.GET("/business", getBusinessHandler())
	authed.PUT("/business", updateBusinessHandler())

	authed.POST("/users", createUserHandler())
	authed.GET("/users", listUsersHandler())

	authed.POST("/bank-accounts", createBankAccountHandler())
	authed.GET("/bank-accounts", listBankAccountsHandler())
	authed.GET("/bank-accounts/:id", getBankAccountHandler())
	authed.PUT("/bank-accounts/:id", updateBankAccountHandler())
	authed.POST("/bank-accounts/:id/toggle-active", toggleActiveBankAccountHandler())
	authed.GET("/bank-accounts/:id/balance", balanceSnapshotHandler())

	authed.POST("/cost-centers", createCostCenterHandler())
	authed.GET("/cost-centers", listCostCentersHandler())
	authed.DELETE("/cost-centers/:id", deleteCostCenterHandler())
	authed.POST("/categories", createCategoryHandler())
	authed.GET("/categories", listCategoriesHandler())
	authed.DELETE("/categories/:id", deleteCategoryHandler())
	authed.POST("/sub-categories", createSubCategoryHandler())
	authed.GET("/sub-categories", listSubCategoriesHandler())
	authed.DELETE("/sub-categories/:id", deleteSubCategoryHandler())

	authed.POST("/transactions", createTransactionHandler())
	authed.GET("/transactions", listTransactionsHandler())
	authed.GET("/transactions/:id", getTransactionHandler())
	authed.GET("/transactions/:id/series", getTransactionSeriesHandler())
	authed.PUT("/transactions/:id", updateTransactionHandler())
	authed.POST("/transactions/:id/payment", registerPaymentHandler())
	authed.POST("/transactions/:id/cancel", cancelTransactionHandler())
	authed.DELETE("/transactions/:id", deleteTransactionHandler())

	authed.GET("/reports/cash-flow", cashFlowReportHandler())

	// Ops tooling (admin only): materialize upcoming recurring instances.
	authed.POST("/internal/recurring/generate", recurringGenerateHandler())

	r.NoRoute(customNotFoundHandler)

	// Start listening immediately (Cloud Run startup probe is TCP based).
	srv := &http.Server{
		Addr:    ":" + port,
		Handler: r,
	}
	serverErrCh := make(chan error, 1)
	go func() {
		// ListenAndServe returns http.ErrServerClosed on graceful shutdown.
		serverErrCh <- srv.ListenAndServe()
	}()

	// Connect dependencies after the port is open.
	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()

	// Now DB is ready; run migrations.
	db := config.GetDB()
	sqlDB, _ := db.DB()
	defer func() {
		if sqlDB != nil {
			_ = sqlDB.Close()
		}
	}()
	// IMPORTANT: AutoMigrate can run DDL that blocks tables and causes 504/502 timeouts.
	// Allow disabling migrations on startup (run them as a separate job instead).
	if !strings.EqualFold(strings.TrimSpace(os.Getenv("SKIP_MIGRATIONS")), "true") {
		models.MigrateTable()
	} else {
		logger.WithFields(logrus.Fields{"field": "migrations"}).Warn("SKIP_MIGRATIONS=true; skipping AutoMigrate on startup")
	}

	// Set the session isolation level to READ COMMITTED
	for attempt := 1; ; attempt++ {
		err := db.Exec("SET SESSION TRANSACTION ISOLATION LEVEL READ COMMITTED").Error
		if err == nil {
			break
		}
		sleep := time.Second * time.Duration(1<<min(attempt, 5))
		if sleep > 30*time.Second {
			sleep = 30 * time.Second
		}
		logger.WithFields(logrus.Fields{
			"field":   "database",
			"attempt": attempt,
		}).Warn("failed to set isolation level; retrying in " + sleep.String() + ": " + err.Error())
		time.Sleep(sleep)
	}

	logger.WithFields(logrus.Fields{
		"info": "Connection Established",
	}).Info("listening on http://localhost:", port, "/")
	log.Println("Server started successfully")

	// Block until shutdown or server error.
	select {
	case <-sigCtx.Done():
		// graceful shutdown below
	case err := <-serverErrCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithFields(logrus.Fields{"field": "http"}).Error("server stopped unexpectedly: " + err.Error())
		}
	}

	// Drain HTTP requests.
	shutdownTimeout := 30 * time.Second
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithFields(logrus.Fields{"field": "http"}).Error("graceful shutdown failed: " + err.Error())
	}

	// Close Redis (best-effort).
	if rdb := config.GetRedisDB(); rdb != nil {
		_ = rdb.Close()
	}
}

// customErrorLogger is a custom Gin middleware that logs only errors
func customErrorLogger(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		// Only log when there are errors
		if len(c.Errors) > 0 {
			logger.Error(c.Errors.String())
		}
	}
}

// Initialize a new RateLimiter instance.
func NewRateLimiter(client *redis.Client, limit int64, window time.Duration) *RateLimiter {
	return &RateLimiter{
		client: client,
		limit:  limit,
		window: window,
	}
}

// Middleware function to check rate limits.
func (rl *RateLimiter) RateLimitMiddleware(c *gin.Context) {
	// Get the IP address or user identifier from the request.
	key := c.ClientIP() // Assuming IP-based rate limiting

	// Check if the key exists in Redis.
	exists, err := rl.client.Exists(c.Request.Context(), key).Result()
	if err != nil {
		c.AbortWithError(http.StatusInternalServerError, err)
		return
	}

	// If the key doesn't exist, create it and set expiry.
	if exists == 0 {
		err := rl.client.Set(c.Request.Context(), key, 1, rl.window).Err()
		if err != nil {
			c.AbortWithError(http.StatusInternalServerError, err)
			return
		}
		c.Next()
		return
	}

	// If the key exists, get the current count.
	count, err := rl.client.Incr(c.Request.Context(), key).Result()
	if err != nil {
		c.AbortWithError(http.StatusInternalServerError, err)
		return
	}

	// If the count exceeds the limit, return an error response.
	if count > rl.limit {
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			"error": fmt.Sprintf("Rate limit exceeded. Try again in %d seconds", int(rl.window.Seconds())),
		})
		return
	}

	c.Next()
}

func splitAndTrim(csv string) []string {
	if strings.TrimSpace(csv) == "" {
		return nil
	}
	parts := strings.Split(csv, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
