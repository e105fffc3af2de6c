// Package pidfile keeps a registry of running dfs nodes so that other
// invocations can list, find and stop them
package pidfile

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/process"
)

// Entry describes one running node
type Entry struct {
	PID     int32     `json:"pid"`
	PeerID  string    `json:"peerId"`
	Mode    string    `json:"mode"`          // provide, serve, kv or chat
	Key     string    `json:"key,omitempty"` // file name for provide
	Addrs   []string  `json:"addrs"`         // dialable multiaddrs including /p2p/
	Started time.Time `json:"started"`
}

// registry is the JSON structure of the tracking file
type registry struct {
	Nodes []Entry `json:"nodes"`
}

const processName = "dfs"

var (
	registryPath = filepath.Join(os.TempDir(), ".dfs-nodes")

	// matchesProcess reports whether pid is a live dfs process
	matchesProcess = isNodeProcess

	mu sync.Mutex
)

// withLockedRegistry opens and locks the tracking file, prunes dead entries
// and hands the remaining ones to fn
func withLockedRegistry(flags int, fn func(*os.File, []Entry) error) error {
	dir := filepath.Dir(registryPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	file, err := os.OpenFile(registryPath, flags, 0644)
	if err != nil {
		return fmt.Errorf("failed to open registry: %w", err)
	}
	defer file.Close()

	if err := lockFile(file); err != nil {
		return err
	}
	defer unlockFile(file)

	var entries []Entry
	stat, err := file.Stat()
	if err != nil {
		return err
	}
	if stat.Size() > 0 {
		var reg registry
		// A corrupt file is treated as empty and rewritten
		if err := json.NewDecoder(file).Decode(&reg); err == nil {
			entries = reg.Nodes
		}
	}

	live, err := pruneEntries(file, entries)
	if err != nil {
		return err
	}
	return fn(file, live)
}

// isNodeProcess checks that pid is running and is a dfs binary
func isNodeProcess(pid int32) bool {
	proc, err := process.NewProcess(pid)
	if err != nil {
		return false
	}

	running, err := proc.IsRunning()
	if err != nil || !running {
		return false
	}

	name, err := proc.Name()
	if err != nil {
		return false
	}
	return strings.Contains(name, processName)
}

func writeRegistry(file *os.File, entries []Entry) error {
	if entries == nil {
		entries = []Entry{}
	}
	if err := file.Truncate(0); err != nil {
		return err
	}
	if _, err := file.Seek(0, 0); err != nil {
		return err
	}

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	return encoder.Encode(&registry{Nodes: entries})
}

// pruneEntries drops entries whose process is gone and rewrites the file if any were
func pruneEntries(file *os.File, entries []Entry) ([]Entry, error) {
	live := []Entry{}
	for _, e := range entries {
		if matchesProcess(e.PID) {
			live = append(live, e)
		}
	}

	if len(live) != len(entries) {
		if err := writeRegistry(file, live); err != nil {
			return nil, err
		}
	}
	return live, nil
}

func without(entries []Entry, pid int32) []Entry {
	filtered := []Entry{}
	for _, e := range entries {
		if e.PID != pid {
			filtered = append(filtered, e)
		}
	}
	return filtered
}

// Register records the current process. A previous entry for the same
// process is replaced.
func Register(e Entry) error {
	mu.Lock()
	defer mu.Unlock()

	e.PID = int32(os.Getpid())
	if e.Started.IsZero() {
		e.Started = time.Now()
	}

	return withLockedRegistry(os.O_RDWR|os.O_CREATE, func(file *os.File, entries []Entry) error {
		return writeRegistry(file, append(without(entries, e.PID), e))
	})
}

// Unregister removes the current process from the registry
func Unregister() error {
	mu.Lock()
	defer mu.Unlock()

	pid := int32(os.Getpid())
	return withLockedRegistry(os.O_RDWR|os.O_CREATE, func(file *os.File, entries []Entry) error {
		return writeRegistry(file, without(entries, pid))
	})
}

// List returns every registered node that is still running
func List() ([]Entry, error) {
	mu.Lock()
	defer mu.Unlock()

	var result []Entry
	err := withLockedRegistry(os.O_RDWR|os.O_CREATE, func(_ *os.File, entries []Entry) error {
		result = entries
		return nil
	})
	return result, err
}

// FindProvider returns the first running node providing key, other than
// this process
func FindProvider(key string) (Entry, bool, error) {
	entries, err := List()
	if err != nil {
		return Entry{}, false, err
	}

	self := int32(os.Getpid())
	for _, e := range entries {
		if e.Mode == "provide" && e.Key == key && e.PID != self && len(e.Addrs) > 0 {
			return e, true, nil
		}
	}
	return Entry{}, false, nil
}

// stop sends SIGTERM, waits up to five seconds, then sends SIGKILL
func stop(proc *process.Process) error {
	if err := proc.Terminate(); err != nil {
		if err := proc.Kill(); err != nil {
			return fmt.Errorf("failed to kill process: %w", err)
		}
		return nil
	}

	for i := 0; i < 50; i++ {
		running, err := proc.IsRunning()
		if err != nil || !running {
			return nil
		}
		time.Sleep(100 * time.Millisecond)
	}

	if err := proc.Kill(); err != nil {
		return fmt.Errorf("failed to force kill process: %w", err)
	}
	return nil
}

// Kill terminates pid if it is a registered running node
func Kill(pid int32) error {
	mu.Lock()
	defer mu.Unlock()

	if !matchesProcess(pid) {
		return fmt.Errorf("PID %d is not a running dfs process", pid)
	}

	proc, err := process.NewProcess(pid)
	if err != nil {
		return fmt.Errorf("failed to get process: %w", err)
	}
	if err := stop(proc); err != nil {
		return err
	}

	// Best effort; the next reader prunes the entry anyway
	_ = withLockedRegistry(os.O_RDWR|os.O_CREATE, func(file *os.File, entries []Entry) error {
		return writeRegistry(file, without(entries, pid))
	})
	return nil
}

// KillAll terminates every registered node and clears the registry
func KillAll() (int, error) {
	mu.Lock()
	defer mu.Unlock()

	var toKill []Entry
	err := withLockedRegistry(os.O_RDWR|os.O_CREATE, func(file *os.File, entries []Entry) error {
		toKill = entries
		return writeRegistry(file, nil)
	})
	if err != nil {
		return 0, err
	}

	// Terminate in parallel so the total wait stays around five seconds
	var wg sync.WaitGroup
	for _, e := range toKill {
		proc, err := process.NewProcess(e.PID)
		if err != nil {
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = stop(proc)
		}()
	}
	wg.Wait()

	return len(toKill), nil
}

// GetProcessInfo returns PID and command line for a process
func GetProcessInfo(pid int32) (int32, string, error) {
	proc, err := process.NewProcess(pid)
	if err != nil {
		return 0, "", err
	}

	cmdline, err := proc.Cmdline()
	if err != nil {
		return pid, "", nil
	}
	return pid, cmdline, nil
}
