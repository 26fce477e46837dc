package cli

import (
	"bytes"
	"context"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/me/enrolld/internal/config"
	"github.com/me/enrolld/internal/executor"
	"github.com/me/enrolld/internal/logging"
	"github.com/me/enrolld/internal/pool"
	"github.com/me/enrolld/internal/scheduler"
	"github.com/me/enrolld/internal/server"
	"github.com/me/enrolld/internal/store"
	"github.com/me/enrolld/pkg/model"
)

// startTestServer starts a server with an in-memory SQLite store and returns the URL.
func startTestServer(t *testing.T) string {
	t.Helper()
	srvLogger := logging.Discard()

	st, err := store.NewSQLiteStore(":memory:", srvLogger)
	if err != nil {
		t.Fatalf("open test store: %v", err)
	}
	if err := st.Migrate(context.Background()); err != nil {
		t.Fatalf("migrate test store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	p := pool.NewManager(st, srvLogger)
	reg := executor.NewRegistry(srvLogger)
	reg.RegisterDefault(executor.Func(func(ctx context.Context, req executor.Request) (model.StepResult, error) {
		return model.StepResult{Success: true, Progress: 1}, nil
	}))
	runner := scheduler.NewRunner(st, p, reg, scheduler.DefaultConfig(), srvLogger)

	srv := server.New(config.Default(), st, p, runner, srvLogger)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts.URL
}

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd()

	var buf bytes.Buffer
	root.SetOut(&buf)
	root.SetErr(&buf)
	root.SetArgs(args)

	// Command output goes through fmt.Printf, so capture stdout too.
	old := os.Stdout
	r, w, _ := os.Pipe()
	os.Stdout = w

	err := root.Execute()

	w.Close()
	os.Stdout = old

	var out bytes.Buffer
	out.ReadFrom(r)
	return buf.String() + out.String(), err
}

func TestAddCommand(t *testing.T) {
	url := startTestServer(t)

	output, err := runCLI(t, "--server", url, "add", "acct-1", "acct-2")
	if err != nil {
		t.Fatalf("add error: %v\noutput: %s", err, output)
	}
	if !strings.Contains(output, "Registered 2 account(s)") {
		t.Errorf("expected registration summary, got: %s", output)
	}

	output, err = runCLI(t, "--server", url, "add", "acct-1")
	if err != nil {
		t.Fatalf("re-add error: %v", err)
	}
	if !strings.Contains(output, "Already registered: acct-1") {
		t.Errorf("expected existing notice, got: %s", output)
	}
}

func TestListCommand(t *testing.T) {
	url := startTestServer(t)
	if _, err := runCLI(t, "--server", url, "add", "acct-1"); err != nil {
		t.Fatalf("add: %v", err)
	}

	output, err := runCLI(t, "--server", url, "list")
	if err != nil {
		t.Fatalf("list error: %v", err)
	}
	if !strings.Contains(output, "ACCOUNT") {
		t.Errorf("expected table header in output, got: %s", output)
	}
	if !strings.Contains(output, "PENDING") {
		t.Errorf("expected PENDING status in output, got: %s", output)
	}
}

func TestStatusCommand(t *testing.T) {
	url := startTestServer(t)
	if _, err := runCLI(t, "--server", url, "add", "acct-1"); err != nil {
		t.Fatalf("add: %v", err)
	}

	output, err := runCLI(t, "--server", url, "status", "acct-1")
	if err != nil {
		t.Fatalf("status error: %v", err)
	}
	if !strings.Contains(output, "acct-1") || !strings.Contains(output, "PENDING") {
		t.Errorf("expected account and status in output, got: %s", output)
	}
}

func TestStatusCommand_Unknown(t *testing.T) {
	url := startTestServer(t)
	if _, err := runCLI(t, "--server", url, "status", "ghost"); err == nil {
		t.Fatal("expected error for unknown account")
	}
}

func TestResourcesCommands(t *testing.T) {
	url := startTestServer(t)

	output, err := runCLI(t, "--server", url, "resources", "add", "card *1111", "--limit", "5")
	if err != nil {
		t.Fatalf("resources add error: %v\noutput: %s", err, output)
	}
	if !strings.Contains(output, "Resource added: res_") {
		t.Fatalf("expected resource id in output, got: %s", output)
	}
	id := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(output), "Resource added:"))

	output, err = runCLI(t, "--server", url, "resources", "list")
	if err != nil {
		t.Fatalf("resources list error: %v", err)
	}
	if !strings.Contains(output, "card *1111") || !strings.Contains(output, "0/5") {
		t.Errorf("expected resource row in output, got: %s", output)
	}

	output, err = runCLI(t, "--server", url, "resources", "disable", id)
	if err != nil {
		t.Fatalf("resources disable error: %v", err)
	}
	if !strings.Contains(output, "disabled") {
		t.Errorf("expected disable confirmation, got: %s", output)
	}

	output, err = runCLI(t, "--server", url, "resources", "set-limit", id, "2")
	if err != nil {
		t.Fatalf("resources set-limit error: %v", err)
	}
	if !strings.Contains(output, "limit set to 2") {
		t.Errorf("expected limit confirmation, got: %s", output)
	}

	output, err = runCLI(t, "--server", url, "resources", "reset-usage")
	if err != nil {
		t.Fatalf("resources reset-usage error: %v", err)
	}
	if !strings.Contains(output, "Usage counters reset") {
		t.Errorf("expected reset confirmation, got: %s", output)
	}
}

func TestRunCommand(t *testing.T) {
	url := startTestServer(t)
	if _, err := runCLI(t, "--server", url, "add", "acct-1"); err != nil {
		t.Fatalf("add: %v", err)
	}
	if _, err := runCLI(t, "--server", url, "resources", "add", "card *1111", "--limit", "5"); err != nil {
		t.Fatalf("resources add: %v", err)
	}

	output, err := runCLI(t, "--server", url, "run", "acct-1", "--poll-interval", "20ms")
	if err != nil {
		t.Fatalf("run error: %v\noutput: %s", err, output)
	}
	if !strings.Contains(output, "Batch started: batch_") {
		t.Errorf("expected batch id in output, got: %s", output)
	}
	if !strings.Contains(output, "SUCCEEDED") || !strings.Contains(output, "SUBSCRIBED") {
		t.Errorf("expected result row in output, got: %s", output)
	}
}

func TestRunCommand_UnknownAccount(t *testing.T) {
	url := startTestServer(t)
	if _, err := runCLI(t, "--server", url, "run", "ghost"); err == nil {
		t.Fatal("expected error for unknown account")
	}
}
