package models_test

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hohbackend/budget_backend/config"
	"github.com/hohbackend/budget_backend/models"
	"github.com/hohbackend/budget_backend/utils"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConcurrentUpdatesOnMySQLKeepVersionsDense(t *testing.T) {
	if strings.TrimSpace(os.Getenv("INTEGRATION_TESTS")) == "" {
		t.Skip("set INTEGRATION_TESTS=1 to run integration tests (requires docker)")
	}

	mysqlName, mysqlPort := startMySQLContainer(t)
	t.Cleanup(func() { _ = dockerRmForce(mysqlName) })

	conn, err := config.OpenDatabase(config.DatabaseSettings{
		Driver:       config.DriverMySQL,
		User:         "root",
		Password:     "testpw",
		Host:         "127.0.0.1",
		Port:         mysqlPort,
		Name:         "budget_test",
		MaxOpenConns: 20,
		MaxIdleConns: 5,
	})
	require.NoError(t, err)
	config.UseDB(conn)
	config.UseRedis(nil)
	t.Cleanup(func() { config.UseDB(nil) })
	require.NoError(t, models.MigrateTable())

	ctx := utils.SetUsernameInContext(context.Background(), testActor)
	p := mustCreateProject(t, ctx, "Tower A", nil)
	c := mustCreateCost(t, ctx, p.ID, "A", "Cement", "1", "5")

	const writers = 12
	var wg sync.WaitGroup
	errs := make(chan error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			q := decimal.NewFromInt(int64(100 + i))
			_, err := models.UpdateProjectCost(ctx, c.ID, &models.ProjectCostPatch{
				Quantity:     &q,
				ChangeReason: fmt.Sprintf("writer %d", i),
			}, fmt.Sprintf("writer_%d", i))
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	history, err := models.ListProjectCostVersions(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, writers+1, history.Current.VersionNumber)
	assert.Len(t, history.History, writers)
	actors := map[string]bool{}
	for i, h := range history.History {
		assert.Equal(t, writers-i, h.VersionNumber)
		actors[h.ChangedBy] = true
	}
	assert.Len(t, actors, writers)

	events, err := models.ListBudgetEvents(ctx, &p.ID, nil, 100)
	require.NoError(t, err)
	assert.Len(t, events, writers)
}

func startMySQLContainer(t *testing.T) (containerName, hostPort string) {
	t.Helper()
	name := fmt.Sprintf("budget-test-mysql-%d", time.Now().UnixNano())
	out, err := dockerRun(
		"run", "-d", "--name", name,
		"-e", "MYSQL_ROOT_PASSWORD=testpw",
		"-e", "MYSQL_DATABASE=budget_test",
		"-p", "127.0.0.1:0:3306",
		"mysql:8.0",
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
