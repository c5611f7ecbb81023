package asamgr

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, extra string) string {
	t.Helper()
	dir := t.TempDir()
	body := `
[ark]
appid = "2430930"
install_folder = "` + filepath.Join(dir, "server") + `"

[ark.advanced]
pid_file = "` + filepath.Join(dir, "server.pid") + `"
schedule_file = "` + filepath.Join(dir, "schedule.toml") + `"

[ark.config]
map = "TheIsland_WP"

[steamcmd]
install_folder = "` + filepath.Join(dir, "steamcmd") + `"

[manager]
` + extra
	path := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestOpen_StatusWhenStopped(t *testing.T) {
	m, err := Open(writeConfig(t, ""))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer func() { _ = m.Close() }()

	if _, ok := m.Running(); ok {
		t.Fatal("nothing should be running")
	}
	st, err := m.Status(context.Background(), false)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if st.Running || st.Port != 7777 {
		t.Fatalf("unexpected status %+v", st)
	}
	if err := m.Guard(); err != nil {
		t.Fatalf("guard: %v", err)
	}
	// stopping a stopped server is a no-op
	if err := m.Stop(context.Background(), StopOptions{}); err != nil {
		t.Fatalf("stop: %v", err)
	}
}

func TestClose_WritesMetricsAndHistory(t *testing.T) {
	dir := t.TempDir()
	prom := filepath.Join(dir, "metrics", "asamgr.prom")
	db := filepath.Join(dir, "history.db")
	m, err := Open(writeConfig(t, `metrics_textfile = "`+prom+`"
history_dsn = "sqlite://`+db+`"`))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := m.Stop(context.Background(), StopOptions{}); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if err := m.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	b, err := os.ReadFile(prom)
	if err != nil {
		t.Fatalf("metrics textfile: %v", err)
	}
	if !strings.Contains(string(b), `asamgr_operations_total{op="stop",result="ok"}`) {
		t.Fatalf("missing stop operation in:\n%s", b)
	}
	if _, err := os.Stat(db); err != nil {
		t.Fatalf("history db not created: %v", err)
	}
}

func TestOpen_InvalidConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("[ark]\nappid = \"1\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Open(path); err == nil {
		t.Fatal("expected validation error")
	}
}
