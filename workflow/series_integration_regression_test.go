package workflow

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strings"
	"testing"
	"time"

	"bitbucket.org/mmdatafocus/obligations_backend/config"
	"bitbucket.org/mmdatafocus/obligations_backend/models"
	"bitbucket.org/mmdatafocus/obligations_backend/utils"
	"github.com/shopspring/decimal"
)

// setupSeriesIntegration boots throwaway MySQL and redis containers, connects
// the globals against them and seeds one business. Callers get an admin
// context already scoped to that business.
func setupSeriesIntegration(t *testing.T) (context.Context, string, int) {
	t.Helper()
	if strings.TrimSpace(os.Getenv("INTEGRATION_TESTS")) == "" {
		t.Skip("set INTEGRATION_TESTS=1 to run integration tests (requires docker)")
	}

	redisName, redisPort := startRedisContainer(t)
	t.Cleanup(func() { _ = dockerRmForce(redisName) })

	mysqlName, mysqlPort := startMySQLContainer(t)
	t.Cleanup(func() { _ = dockerRmForce(mysqlName) })

	t.Setenv("REDIS_ADDRESS", fmt.Sprintf("127.0.0.1:%s", redisPort))
	t.Setenv("DB_USER", "root")
	t.Setenv("DB_PASSWORD", "testpw")
	t.Setenv("DB_HOST", "127.0.0.1")
	t.Setenv("DB_PORT", mysqlPort)
	t.Setenv("DB_NAME", "obligations_test")

	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()
	models.MigrateTable()

	ctx := context.Background()
	ctx = utils.SetUserIdInContext(ctx, 1)
	ctx = utils.SetUserNameInContext(ctx, "Test")
	ctx = utils.SetUsernameInContext(ctx, "test@local")
	ctx = utils.SetIsAdminInContext(ctx, true)

	business, err := models.CreateBusiness(ctx, &models.NewBusiness{
		Name:  fmt.Sprintf("Test Biz %d", time.Now().UnixNano()),
		Email: "owner@test.local",
	})
	if err != nil {
		t.Fatalf("CreateBusiness: %v", err)
	}
	businessId := business.ID.String()
	ctx = utils.SetBusinessIdInContext(ctx, businessId)

	accounts, err := models.ListBankAccount(ctx)
	if err != nil {
		t.Fatalf("ListBankAccount: %v", err)
	}
	if len(accounts.ListBankAccount) == 0 {
		t.Fatalf("expected a default bank account")
	}
	return ctx, businessId, accounts.ListBankAccount[0].ID
}

func seriesLockIsFree(t *testing.T, businessId string) bool {
	t.Helper()
	var free int
	err := config.GetDB().Raw("SELECT IS_FREE_LOCK(?)", "series:"+businessId).Scan(&free).Error
	if err != nil {
		t.Fatalf("IS_FREE_LOCK: %v", err)
	}
	return free == 1
}

func TestCreateTransactionSeries_ReleasesAdvisoryLock(t *testing.T) {
	ctx, businessId, bankAccountId := setupSeriesIntegration(t)

	first, err := CreateTransactionSeries(ctx, &models.NewTransaction{
		Description:   "Shop rent",
		Amount:        decimal.NewFromInt(500000),
		Direction:     models.TransactionDirectionExpense,
		DueDate:       time.Now().UTC(),
		BankAccountId: bankAccountId,
		Recurrence:    &models.NewRecurrence{Frequency: models.RecurringFrequencyMonthly},
	})
	if err != nil {
		t.Fatalf("CreateTransactionSeries: %v", err)
	}
	if len(first) == 0 {
		t.Fatalf("expected instances")
	}

	// GET_LOCK is connection-scoped. If the release ran on a finished
	// transaction, the pooled connection keeps the lock and every later
	// series operation for this business stalls until the pool recycles it.
	if !seriesLockIsFree(t, businessId) {
		t.Fatalf("series lock still held after commit")
	}

	start := time.Now()
	second, err := CreateTransactionSeries(ctx, &models.NewTransaction{
		Description:   "Internet",
		Amount:        decimal.NewFromInt(60000),
		Direction:     models.TransactionDirectionExpense,
		DueDate:       time.Now().UTC(),
		BankAccountId: bankAccountId,
		Recurrence:    &models.NewRecurrence{Frequency: models.RecurringFrequencyMonthly},
	})
	if err != nil {
		t.Fatalf("second CreateTransactionSeries: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 10*time.Second {
		t.Fatalf("second series creation took %s; lock not released", elapsed)
	}

	if err := DeleteTransaction(ctx, second[0].ID, scopePtr(models.DeletionScopeSeries)); err != nil {
		t.Fatalf("DeleteTransaction: %v", err)
	}
	if !seriesLockIsFree(t, businessId) {
		t.Fatalf("series lock still held after delete")
	}
}

func TestGenerateInstances_IdempotentAcrossRuns(t *testing.T) {
	ctx, _, bankAccountId := setupSeriesIntegration(t)

	created, err := CreateTransactionSeries(ctx, &models.NewTransaction{
		Description:   "Shop rent",
		Amount:        decimal.NewFromInt(500000),
		Direction:     models.TransactionDirectionExpense,
		DueDate:       time.Now().UTC(),
		BankAccountId: bankAccountId,
		Recurrence:    &models.NewRecurrence{Frequency: models.RecurringFrequencyMonthly},
	})
	if err != nil {
		t.Fatalf("CreateTransactionSeries: %v", err)
	}
	root := created[0]

	// same horizon: every sequence number already exists
	again, err := GenerateInstances(ctx, root.ID, ExpansionHorizon())
	if err != nil {
		t.Fatalf("GenerateInstances: %v", err)
	}
	if len(again) != 0 {
		t.Fatalf("re-run created %d duplicate instances", len(again))
	}

	// longer horizon: only the new tail is materialized
	extended := ExpansionHorizon().AddDate(0, 2, 0)
	tail, err := GenerateInstances(ctx, root.ID, extended)
	if err != nil {
		t.Fatalf("GenerateInstances(extended): %v", err)
	}
	if len(tail) == 0 {
		t.Fatalf("extended horizon created nothing")
	}
	for _, instance := range tail {
		if instance.SequenceNo <= len(created) {
			t.Fatalf("extended run re-created sequence %d", instance.SequenceNo)
		}
	}
	tail2, err := GenerateInstances(ctx, root.ID, extended)
	if err != nil {
		t.Fatalf("GenerateInstances(extended) re-run: %v", err)
	}
	if len(tail2) != 0 {
		t.Fatalf("extended re-run created %d duplicate instances", len(tail2))
	}
}

func TestRegisterPayment_SecondPaymentConflicts(t *testing.T) {
	ctx, _, bankAccountId := setupSeriesIntegration(t)

	transaction, err := models.CreateTransaction(ctx, &models.NewTransaction{
		Description:   "Generator repair",
		Amount:        decimal.NewFromInt(180000),
		Direction:     models.TransactionDirectionExpense,
		DueDate:       time.Now().UTC(),
		BankAccountId: bankAccountId,
	})
	if err != nil {
		t.Fatalf("CreateTransaction: %v", err)
	}

	paid, err := models.RegisterPayment(ctx, transaction.ID, time.Now().UTC())
	if err != nil {
		t.Fatalf("RegisterPayment: %v", err)
	}
	if paid.CurrentStatus != models.TransactionStatusPaid {
		t.Fatalf("got status %s, want Paid", paid.CurrentStatus)
	}

	// the conditional update only matches Pending rows, so the second
	// payment must lose and report the state it found
	_, err = models.RegisterPayment(ctx, transaction.ID, time.Now().UTC())
	if !utils.IsConflictError(err) {
		t.Fatalf("got %v, want conflict error", err)
	}
	reloaded, err := utils.FetchModel[models.Transaction](ctx, transaction.BusinessId, transaction.ID)
	if err != nil {
		t.Fatalf("FetchModel: %v", err)
	}
	if reloaded.PaymentDate == nil {
		t.Fatalf("payment date lost after conflicting payment")
	}
}

func startRedisContainer(t *testing.T) (containerName, hostPort string) {
	t.Helper()
	name := fmt.Sprintf("obligations-test-redis-%d", time.Now().UnixNano())
	out, err := dockerRun(
		"run", "-d", "--name", name,
		"-p", "127.0.0.1:0:6379",
		"redis:7-alpine",
	)
	if err != nil {
		t.Fatalf("start redis container: %v\n%s", err, out)
	}
	port, err := dockerHostPort(name, "6379/tcp")
	if err != nil {
		t.Fatalf("redis docker port: %v", err)
	}
	// wait until ready
	deadline := time.Now().Add(60 * time.Second)
	for time.Now().Before(deadline) {
		_, err := dockerRun("exec", name, "redis-cli", "ping")
		if err == nil {
			return name, port
		}
		time.Sleep(250 * time.Millisecond)
	}
	t.Fatalf("redis did not become ready")
	return "", ""
}

func startMySQLContainer(t *testing.T) (containerName, hostPort string) {
	t.Helper()
	name := fmt.Sprintf("obligations-test-mysql-%d", time.Now().UnixNano())
	out, err := dockerRun(
		"run", "-d", "--name", name,
		"-e", "MYSQL_ROOT_PASSWORD=testpw",
		"-e", "MYSQL_DATABASE=obligations_test",
		"-p", "127.0.0.1:0:3306",
		"mysql:8.0",
		"--default-authentication-plugin=mysql_native_password",
	)
	if err != nil {
		t.Fatalf("start mysql container: %v\n%s", err, out)
	}
	port, err := dockerHostPort(name, "3306/tcp")
	if err != nil {
		t.Fatalf("mysql docker port: %v", err)
	}
	// wait until ready
	deadline := time.Now().Add(120 * time.Second)
	for time.Now().Before(deadline) {
		_, err := dockerRun("exec", name, "mysqladmin", "ping", "-h", "127.0.0.1", "-ptestpw", "--silent")
		if err == nil {
			return name, port
		}
		time.Sleep(500 * time.Millisecond)
	}
	t.Fatalf("mysql did not become ready")
	return "", ""
}

func dockerHostPort(container, portProto string) (string, error) {
	out, err := dockerRun("port", container, portProto)
	if err != nil {
		return "", fmt.Errorf("docker port: %w: %s", err, out)
	}
	// Example: "127.0.0.1:49154\n"
	re := regexp.MustCompile(`:(\d+)`)
	m := re.FindStringSubmatch(out)
	if len(m) != 2 {
		return "", fmt.Errorf("unexpected docker port output: %q", out)
	}
	return m[1], nil
}

func dockerRmForce(container string) error {
	if strings.TrimSpace(container) == "" {
		return nil
	}
	_, err := dockerRun("rm", "-f", container)
	return err
}

func dockerRun(args ...string) (string, error) {
	cmd := exec.Command("docker", args...)
	b, err := cmd.CombinedOutput()
	return string(b), err
}
