package main

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/reelfund/donors_backend/config"
	"github.com/reelfund/donors_backend/models"
	"github.com/reelfund/donors_backend/utils"
	"github.com/reelfund/donors_backend/workflow"
	"github.com/shopspring/decimal"
)

// Merge endpoint regression harness.
//
// Usage (requires Docker):
//
//	INTEGRATION_TESTS=1 go test . -run MergeHandler -v

func setupServerTest(t *testing.T) context.Context {
	t.Helper()
	if strings.TrimSpace(os.Getenv("INTEGRATION_TESTS")) == "" {
		t.Skip("set INTEGRATION_TESTS=1 to run integration tests (requires docker)")
	}
	gin.SetMode(gin.TestMode)

	redisName, redisPort := startTestRedis(t)
	t.Cleanup(func() { _ = removeTestContainer(redisName) })

	pgName, pgPort := startTestPostgres(t)
	t.Cleanup(func() { _ = removeTestContainer(pgName) })

	t.Setenv("REDIS_ADDRESS", fmt.Sprintf("127.0.0.1:%s", redisPort))
	t.Setenv("SUPABASE_DB_URL", "")
	t.Setenv("DB_USER", "postgres")
	t.Setenv("DB_PASSWORD", "testpw")
	t.Setenv("DB_HOST", "127.0.0.1")
	t.Setenv("DB_PORT", pgPort)
	t.Setenv("DB_NAME", "donors_test")
	t.Setenv("DB_SSLMODE", "disable")

	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()
	models.MigrateTable()

	return context.Background()
}

func postMerge(t *testing.T, body string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req := httptest.NewRequest(http.MethodPost, "/internal/ops/donors/merge", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	ctx := utils.SetUsernameInContext(req.Context(), "ops-admin")
	ctx = utils.SetOperatorInContext(ctx, "ops-admin")
	ctx = utils.SetIsSuperAdminInContext(ctx, true)
	c.Request = req.WithContext(ctx)
	mergeHandler()(c)
	return w
}

func TestMergeHandler_ConfirmTokenSurvivesLockConflict(t *testing.T) {
	ctx := setupServerTest(t)
	db := config.GetDB()
	logger := config.GetLogger()

	legacyId := "film-principal"
	campaign := models.Campaign{Title: "Feature Film", LegacyId: &legacyId, Status: models.CampaignStatusEnded}
	if err := db.WithContext(ctx).Create(&campaign).Error; err != nil {
		t.Fatalf("create campaign: %v", err)
	}
	authId := "0d9c2f46-0000-4000-8000-000000000002"
	target := models.Donor{Email: "sam@new.test", FullName: "Sam Roe", AuthUserId: &authId}
	if err := db.WithContext(ctx).Create(&target).Error; err != nil {
		t.Fatalf("create target: %v", err)
	}
	source := models.Donor{Email: "sam@old.test", FullName: "Sam Roe"}
	if err := db.WithContext(ctx).Create(&source).Error; err != nil {
		t.Fatalf("create source: %v", err)
	}
	pledge := models.Pledge{
		DonorId:    source.ID,
		CampaignId: campaign.ID,
		Amount:     decimal.NewFromInt(50),
		Status:     models.PledgeStatusCompleted,
	}
	if err := db.WithContext(ctx).Create(&pledge).Error; err != nil {
		t.Fatalf("create pledge: %v", err)
	}

	token := "confirm-token-lock-conflict"
	if err := config.SetRedisValue(mergeConfirmKey(token), mergeConfirmValue("sam@old.test", "sam@new.test"), mergeConfirmTTL); err != nil {
		t.Fatalf("store confirm token: %v", err)
	}
	body := `{"source_email":"sam@old.test","target_email":"sam@new.test","confirm_token":"` + token + `"}`

	// Another merge is in flight; this attempt must be turned away without
	// spending the token.
	release, err := workflow.AcquireOperationLock(ctx, db, logger, "donor-merge")
	if err != nil {
		t.Fatalf("acquire operation lock: %v", err)
	}
	if w := postMerge(t, body); w.Code != http.StatusConflict {
		t.Fatalf("expected 409 while lock is held, got %d: %s", w.Code, w.Body.String())
	}
	if _, exists, err := config.GetRedisValue(mergeConfirmKey(token)); err != nil || !exists {
		t.Fatalf("confirm token must survive a lock conflict (exists=%v, err=%v)", exists, err)
	}
	release()

	// The same token completes the merge once the lock is free.
	if w := postMerge(t, body); w.Code != http.StatusOK {
		t.Fatalf("expected 200 after release, got %d: %s", w.Code, w.Body.String())
	}
	if _, exists, err := config.GetRedisValue(mergeConfirmKey(token)); err != nil || exists {
		t.Fatalf("confirm token must be consumed by a completed merge (exists=%v, err=%v)", exists, err)
	}
}

func startTestRedis(t *testing.T) (containerName, hostPort string) {
	t.Helper()
	name := fmt.Sprintf("donors-server-redis-%d", time.Now().UnixNano())
	out, err := runDocker(
		"run", "-d", "--name", name,
		"-p", "127.0.0.1:0:6379",
		"redis:7-alpine",
	)
	if err != nil {
		t.Fatalf("start redis container: %v\n%s", err, out)
	}
	port, err := testContainerPort(name, "6379/tcp")
	if err != nil {
		t.Fatalf("redis docker port: %v", err)
	}
	deadline := time.Now().Add(60 * time.Second)
	for time.Now().Before(deadline) {
		if _, err := runDocker("exec", name, "redis-cli", "ping"); err == nil {
			return name, port
		}
		time.Sleep(250 * time.Millisecond)
	}
	t.Fatalf("redis did not become ready")
	return "", ""
}

func startTestPostgres(t *testing.T) (containerName, hostPort string) {
	t.Helper()
	name := fmt.Sprintf("donors-server-postgres-%d", time.Now().UnixNano())
	out, err := runDocker(
		"run", "-d", "--name", name,
		"-e", "POSTGRES_PASSWORD=testpw",
		"-e", "POSTGRES_DB=donors_test",
		"-p", "127.0.0.1:0:5432",
		"postgres:16-alpine",
	)
	if err != nil {
		t.Fatalf("start postgres container: %v\n%s", err, out)
	}
	port, err := testContainerPort(name, "5432/tcp")
	if err != nil {
		t.Fatalf("postgres docker port: %v", err)
	}
	deadline := time.Now().Add(120 * time.Second)
	for time.Now().Before(deadline) {
		if _, err := runDocker("exec", name, "pg_isready", "-U", "postgres", "-d", "donors_test"); err == nil {
			return name, port
		}
		time.Sleep(500 * time.Millisecond)
	}
	t.Fatalf("postgres did not become ready")
	return "", ""
}

func testContainerPort(container, portProto string) (string, error) {
	out, err := runDocker("port", container, portProto)
	if err != nil {
		return "", fmt.Errorf("docker port: %w: %s", err, out)
	}
	re := regexp.MustCompile(`:(\d+)`)
	m := re.FindStringSubmatch(out)
	if len(m) != 2 {
		return "", fmt.Errorf("unexpected docker port output: %q", out)
	}
	return m[1], nil
}

func removeTestContainer(container string) error {
	if strings.TrimSpace(container) == "" {
		return nil
	}
	_, err := runDocker("rm", "-f", container)
	return err
}

func runDocker(args ...string) (string, error) {
	cmd := exec.Command("docker", args...)
	b, err := cmd.CombinedOutput()
	return string(b), err
}
