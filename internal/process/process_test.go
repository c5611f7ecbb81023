package process

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"syscall"
	"testing"
	"time"
)

func requireUnix(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("tests require sh/sleep on Unix-like systems")
	}
}

func waitUntil(timeout, step time.Duration, fn func() bool) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if fn() {
			return true
		}
		time.Sleep(step)
	}
	return false
}

func TestPIDFile_ReadVariants(t *testing.T) {
	dir := t.TempDir()
	f := PIDFile{Path: filepath.Join(dir, "server.pid")}

	// missing
	if pid, err := f.Read(); err != nil || pid != 0 {
		t.Fatalf("missing file: pid=%d err=%v", pid, err)
	}
	for content, want := range map[string]int{
		"":         0,
		"  \n":     0,
		"garbage":  0,
		"1234":     1234,
		"4321\n":   4321,
		"-5":       0,
		"12ab\n34": 0,
	} {
		if err := os.WriteFile(f.Path, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
		pid, err := f.Read()
		if err != nil {
			t.Fatalf("%q: unexpected error %v", content, err)
		}
		if pid != want {
			t.Fatalf("%q: got %d want %d", content, pid, want)
		}
	}
}

func TestPIDFile_WriteClear(t *testing.T) {
	f := PIDFile{Path: filepath.Join(t.TempDir(), "data", "server.pid")}
	if err := f.Write(os.Getpid()); err != nil {
		t.Fatalf("write: %v", err)
	}
	pid, ok := f.Running()
	if !ok || pid != os.Getpid() {
		t.Fatalf("expected own pid running, got %d %v", pid, ok)
	}
	if err := f.Clear(); err != nil {
		t.Fatalf("clear: %v", err)
	}
	st, err := os.Stat(f.Path)
	if err != nil {
		t.Fatalf("file must survive clear: %v", err)
	}
	if st.Size() != 0 {
		t.Fatalf("expected empty file, got %d bytes", st.Size())
	}
	if _, ok := f.Running(); ok {
		t.Fatalf("cleared file must report not running")
	}
}

func TestPIDFile_DeadProcess(t *testing.T) {
	requireUnix(t)
	cmd := exec.Command("sh", "-c", "exit 0")
	if err := cmd.Run(); err != nil {
		t.Fatalf("run: %v", err)
	}
	f := PIDFile{Path: filepath.Join(t.TempDir(), "server.pid")}
	if err := f.Write(cmd.Process.Pid); err != nil {
		t.Fatal(err)
	}
	if _, ok := f.Running(); ok {
		t.Fatalf("reaped process must not be reported running")
	}
}

func TestExists_Zombie(t *testing.T) {
	requireUnix(t)
	if runtime.GOOS != "linux" {
		t.Skip("zombie detection reads /proc")
	}
	cmd := exec.Command("sh", "-c", "exit 0")
	if err := cmd.Start(); err != nil {
		t.Fatal(err)
	}
	defer func() { _ = cmd.Wait() }()
	if !waitUntil(2*time.Second, 20*time.Millisecond, func() bool { return !Exists(cmd.Process.Pid) }) {
		t.Fatalf("unreaped exited child should not count as alive")
	}
}

func TestKillGroup_RefusesLowGroups(t *testing.T) {
	if err := KillGroup(1, syscall.SIGKILL); err == nil {
		t.Fatalf("expected refusal for pgid 1")
	}
	if err := KillGroup(0, syscall.SIGKILL); err == nil {
		t.Fatalf("expected refusal for pgid 0")
	}
}

func TestSpawn_GroupLeaderAndKillGroup(t *testing.T) {
	requireUnix(t)
	// the shell forks a grandchild that must die with the group
	ch, err := Spawn(Command{Args: []string{"/bin/sh", "-c", "sleep 30 & sleep 30"}})
	if err != nil {
		t.Fatalf("spawn: %v", err)
	}
	defer func() { _ = ch.Release() }()
	if ch.PGID != ch.PID {
		t.Fatalf("pgid %d != pid %d", ch.PGID, ch.PID)
	}
	if ch.WaitExit(200 * time.Millisecond) {
		t.Fatalf("child exited early")
	}
	if err := KillGroup(ch.PGID, syscall.SIGKILL); err != nil {
		t.Fatalf("kill group: %v", err)
	}
	if !ch.WaitExit(3 * time.Second) {
		t.Fatalf("child did not exit after group kill")
	}
	if ch.ExitCode() != -1 {
		t.Fatalf("expected signal exit code -1, got %d", ch.ExitCode())
	}
}

func TestSpawn_EarlyExitOutput(t *testing.T) {
	requireUnix(t)
	ch, err := Spawn(Command{Args: []string{"/bin/sh", "-c", "echo crash-report; exit 3"}})
	if err != nil {
		t.Fatalf("spawn: %v", err)
	}
	defer func() { _ = ch.Release() }()
	if !ch.WaitExit(5 * time.Second) {
		t.Fatalf("expected exit")
	}
	if ch.ExitCode() != 3 {
		t.Fatalf("exit code: got %d", ch.ExitCode())
	}
	if !strings.Contains(string(ch.Output()), "crash-report") {
		t.Fatalf("output not captured: %q", ch.Output())
	}
}

func TestSpawn_Env(t *testing.T) {
	requireUnix(t)
	ch, err := Spawn(Command{
		Args: []string{"/bin/sh", "-c", `echo "v=$ASA_TEST_VAR"`},
		Env:  []string{"ASA_TEST_VAR=proton", "PATH=" + os.Getenv("PATH")},
	})
	if err != nil {
		t.Fatalf("spawn: %v", err)
	}
	defer func() { _ = ch.Release() }()
	ch.WaitExit(5 * time.Second)
	if !strings.Contains(string(ch.Output()), "v=proton") {
		t.Fatalf("env not applied: %q", ch.Output())
	}
}

func TestSpawn_MissingBinary(t *testing.T) {
	requireUnix(t)
	if _, err := Spawn(Command{Args: []string{filepath.Join(t.TempDir(), "nope")}}); err == nil {
		t.Fatalf("expected error for missing binary")
	}
	if _, err := Spawn(Command{}); err == nil {
		t.Fatalf("expected error for empty command")
	}
}

func TestWaitForExit(t *testing.T) {
	requireUnix(t)
	cmd := exec.Command("sleep", "0.2")
	if err := cmd.Start(); err != nil {
		t.Fatal(err)
	}
	go func() { _ = cmd.Wait() }()
	if !WaitForExit(context.Background(), cmd.Process.Pid, 3*time.Second, 20*time.Millisecond) {
		t.Fatalf("expected process to exit")
	}

	long := exec.Command("sleep", "5")
	if err := long.Start(); err != nil {
		t.Fatal(err)
	}
	defer func() { _ = long.Process.Kill(); _ = long.Wait() }()
	if WaitForExit(context.Background(), long.Process.Pid, 100*time.Millisecond, 20*time.Millisecond) {
		t.Fatalf("expected timeout")
	}
}

func TestStartTime(t *testing.T) {
	st := StartTime(os.Getpid())
	if st.IsZero() {
		t.Skip("start time unavailable on this platform")
	}
	if time.Since(st) < 0 || time.Since(st) > 24*time.Hour {
		t.Fatalf("implausible start time %v", st)
	}
	if !StartTime(-1).IsZero() {
		t.Fatalf("expected zero time for invalid pid")
	}
}

func TestTailBuffer(t *testing.T) {
	b := tailBuffer{max: 4}
	_, _ = b.Write([]byte("abc"))
	_, _ = b.Write([]byte("defg"))
	if string(b.Bytes()) != "defg" {
		t.Fatalf("got %q", b.Bytes())
	}
}
