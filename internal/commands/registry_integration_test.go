//go:build integration && unix

package commands

import (
	"bufio"
	"context"
	"os"
	"os/exec"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/zhubby/p2p-rs/internal/pidfile"
)

const binaryPath = "../../dfs"

// startServe launches "dfs serve" and waits until its gateway is up
func startServe(t *testing.T) *exec.Cmd {
	t.Helper()
	if _, err := os.Stat(binaryPath); os.IsNotExist(err) {
		t.Skipf("Binary not found at %s, run 'go build ./cmd/dfs' first", binaryPath)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	t.Cleanup(cancel)

	cmd := exec.CommandContext(ctx, binaryPath, "serve",
		"--listen-address", "/ip4/127.0.0.1/tcp/0",
		"--config", os.DevNull+".missing")
	output, err := cmd.StdoutPipe()
	if err != nil {
		t.Fatalf("Failed to get stdout pipe: %v", err)
	}
	if err := cmd.Start(); err != nil {
		t.Fatalf("Failed to start node: %v", err)
	}
	t.Cleanup(func() {
		if cmd.Process != nil {
			cmd.Process.Kill()
		}
	})

	ready := make(chan struct{})
	go func() {
		scanner := bufio.NewScanner(output)
		for scanner.Scan() {
			if strings.Contains(scanner.Text(), "Server running") {
				close(ready)
				break
			}
		}
		for scanner.Scan() {
		}
	}()

	select {
	case <-ready:
	case <-time.After(10 * time.Second):
		t.Fatalf("Node did not start within timeout")
	}
	return cmd
}

func registered(t *testing.T, pid int32) (pidfile.Entry, bool) {
	t.Helper()
	entries, err := pidfile.List()
	if err != nil {
		t.Fatalf("Failed to list registry: %v", err)
	}
	for _, e := range entries {
		if e.PID == pid {
			return e, true
		}
	}
	return pidfile.Entry{}, false
}

func waitExit(t *testing.T, cmd *exec.Cmd) {
	t.Helper()
	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatalf("Node did not terminate within 5 seconds")
	}
}

func TestServeRegistersUntilShutdown(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	cmd := startServe(t)
	pid := int32(cmd.Process.Pid)

	e, ok := registered(t, pid)
	if !ok {
		t.Fatalf("PID %d not found in registry", pid)
	}
	if e.Mode != "serve" {
		t.Errorf("Expected mode serve, got %q", e.Mode)
	}
	if len(e.Addrs) == 0 || !strings.Contains(e.Addrs[0], "/p2p/") {
		t.Errorf("Expected dialable addresses, got %v", e.Addrs)
	}

	if err := cmd.Process.Signal(os.Interrupt); err != nil {
		t.Fatalf("Failed to interrupt node: %v", err)
	}
	waitExit(t, cmd)

	if _, ok := registered(t, pid); ok {
		t.Errorf("PID %d still registered after shutdown", pid)
	}
}

func TestSignalHandling(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	signals := []struct {
		name   string
		signal os.Signal
	}{
		{"SIGHUP", syscall.SIGHUP},
		{"SIGINT", os.Interrupt},
		{"SIGTERM", syscall.SIGTERM},
	}

	for _, tc := range signals {
		t.Run(tc.name, func(t *testing.T) {
			cmd := startServe(t)
			pid := int32(cmd.Process.Pid)

			if err := cmd.Process.Signal(tc.signal); err != nil {
				t.Fatalf("Failed to send %s: %v", tc.name, err)
			}
			waitExit(t, cmd)

			if _, ok := registered(t, pid); ok {
				t.Errorf("PID %d still registered after %s", pid, tc.name)
			}
		})
	}
}

func TestKillStopsNode(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	cmd := startServe(t)
	pid := int32(cmd.Process.Pid)

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	if err := pidfile.Kill(pid); err != nil {
		t.Fatalf("Kill failed: %v", err)
	}
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatalf("Node survived kill")
	}
}
