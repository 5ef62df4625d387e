// Package procmgr is the process-wide table of managed background
// processes: detached, pgid-tracked subprocesses promoted from a CLI
// Agent server-launch command, each with a log file and an optional
// health-checked port. Built on plain os/exec plus process-group
// signalling; the promoted commands are arbitrary third-party dev servers
// that cannot cooperate with any richer supervision protocol.
package procmgr

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"github.com/clovis-agent/clovis/pkg/logger"
)

// Process is one Managed Background Process: pid/pgid captured
// so the whole process group can be signalled, a log path, and the port(s)
// the promoting task mentioned.
type Process struct {
	ID         string
	PID        int
	PGID       int
	Command    string
	Cwd        string
	StartedAt  time.Time
	LogPath    string
	Ports      []int
	ActivePort int

	cmd *exec.Cmd
}

// Uptime renders a humanized uptime for `background list` output and
// CLI-Agent status strings.
func (p Process) Uptime() string {
	return humanize.Time(p.StartedAt)
}

// Manager owns the live table of managed background processes. It is a
// process-wide singleton in practice (one Manager wired through
// constructors), but nothing here enforces singleton-ness beyond callers
// sharing one instance.
type Manager struct {
	mu    sync.RWMutex
	procs map[string]*Process
}

// NewManager constructs an empty Manager.
func NewManager() *Manager {
	return &Manager{procs: make(map[string]*Process)}
}

// Start launches command under a new process group via `/bin/zsh -lc`,
// redirecting stdout/stderr to a log file under os.TempDir, and records the
// result in the table. The process is detached: it
// outlives the current turn and is only stopped by explicit management
// commands or the signal handler InstallShutdownHook registers.
func (m *Manager) Start(command, cwd string, env []string) (*Process, error) {
	id := uuid.New().String()[:8]
	logPath := filepath.Join(os.TempDir(), fmt.Sprintf("clovis_cli_bg_%s.log", id))
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	defer logFile.Close()

	cmd := exec.Command("/bin/zsh", "-lc", command)
	if cwd != "" {
		cmd.Dir = cwd
	}
	if len(env) > 0 {
		cmd.Env = append(os.Environ(), env...)
	}
	cmd.Stdout = logFile
	cmd.Stderr = logFile
	configureProcess(cmd)

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start background process: %w", err)
	}

	pid := cmd.Process.Pid
	proc := &Process{
		ID:        id,
		PID:       pid,
		PGID:      processGroupID(pid),
		Command:   command,
		Cwd:       cwd,
		StartedAt: time.Now(),
		LogPath:   logPath,
		cmd:       cmd,
	}

	m.mu.Lock()
	m.procs[id] = proc
	m.mu.Unlock()

	go func() {
		_ = cmd.Wait()
		m.mu.Lock()
		delete(m.procs, id)
		m.mu.Unlock()
	}()

	logger.Info().Str("id", id).Int("pid", pid).Str("command", command).Msg("started background process")
	return proc, nil
}

// SetPorts records the candidate ports a promoted command mentioned.
func (m *Manager) SetPorts(id string, ports []int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.procs[id]; ok {
		p.Ports = ports
	}
}

// SetActivePort records the port that answered a reachability poll.
func (m *Manager) SetActivePort(id string, port int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.procs[id]; ok {
		p.ActivePort = port
	}
}

// Get returns a snapshot of one managed process.
func (m *Manager) Get(id string) (Process, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.procs[id]
	if !ok {
		return Process{}, false
	}
	return *p, true
}

// List returns a snapshot of every managed process.
func (m *Manager) List() []Process {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Process, 0, len(m.procs))
	for _, p := range m.procs {
		out = append(out, *p)
	}
	return out
}

// Stop signals one managed process's group (falling back to its bare pid)
// and removes it from the table.
func (m *Manager) Stop(id string) error {
	m.mu.Lock()
	proc, ok := m.procs[id]
	if ok {
		delete(m.procs, id)
	}
	m.mu.Unlock()

	if !ok {
		return fmt.Errorf("no background process found: %s", id)
	}
	return killProcessGroup(proc.PGID, proc.PID)
}

// StopAll signals every managed process and returns how many were stopped.
func (m *Manager) StopAll() int {
	m.mu.RLock()
	ids := make([]string, 0, len(m.procs))
	for id := range m.procs {
		ids = append(ids, id)
	}
	m.mu.RUnlock()

	stopped := 0
	for _, id := range ids {
		if err := m.Stop(id); err != nil {
			logger.Warn().Err(err).Str("id", id).Msg("failed to stop background process")
			continue
		}
		stopped++
	}
	return stopped
}

// InstallShutdownHook registers the at-exit teardown hook: on
// SIGINT/SIGTERM, every managed process group is signalled before the
// process exits. Call once from the daemon entrypoint.
func (m *Manager) InstallShutdownHook() {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		m.StopAll()
		os.Exit(0)
	}()
}

// WaitForPort polls TCP connect on 127.0.0.1:port for every candidate port
// until one answers or timeout elapses (600ms per-attempt dial, retried
// every 350ms).
func WaitForPort(ctx context.Context, ports []int, timeout time.Duration) (int, bool) {
	if len(ports) == 0 {
		return 0, false
	}
	deadline := time.Now().Add(timeout)
	for {
		for _, port := range ports {
			if isPortOpen(port) {
				return port, true
			}
		}
		if time.Now().After(deadline) {
			return 0, false
		}
		select {
		case <-ctx.Done():
			return 0, false
		case <-time.After(350 * time.Millisecond):
		}
	}
}

func isPortOpen(port int) bool {
	conn, err := net.DialTimeout("tcp", fmt.Sprintf("127.0.0.1:%d", port), 600*time.Millisecond)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}
