package supervisor

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"syscall"
)

// ProcessManager abstracts worker process control so the supervision loop
// can be tested without spawning real processes.
type ProcessManager interface {
	// Start launches a worker for the job and returns its pid. The
	// worker reads its job row from job_history and reports its own
	// terminal state there.
	Start(jobID string) (int, error)

	// Alive reports whether the pid refers to a live process.
	Alive(pid int) bool

	// Interrupt asks the worker to stop cooperatively (SIGTERM). The
	// worker cancels its context and stops at the next checkpoint.
	Interrupt(pid int) error

	// Kill force-terminates the worker (SIGKILL). Used when the
	// wall-clock budget is exhausted.
	Kill(pid int) error
}

// ExecManager implements ProcessManager with os/exec. Each job runs in its
// own OS process so a crash in one job can never take down the supervisor
// or a sibling job.
type ExecManager struct {
	binary string
}

// NewExecManager creates a manager spawning the given worker binary. An
// empty path resolves to "claimsync-worker" next to the current executable.
func NewExecManager(binary string) (*ExecManager, error) {
	if binary == "" {
		self, err := os.Executable()
		if err != nil {
			return nil, fmt.Errorf("resolve worker binary: %w", err)
		}
		binary = filepath.Join(filepath.Dir(self), "claimsync-worker")
	}
	if _, err := os.Stat(binary); err != nil {
		return nil, fmt.Errorf("worker binary %s: %w", binary, err)
	}
	return &ExecManager{binary: binary}, nil
}

func (m *ExecManager) Start(jobID string) (int, error) {
	cmd := exec.Command(m.binary, jobID)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.Env = os.Environ()
	if err := cmd.Start(); err != nil {
		return 0, fmt.Errorf("start worker: %w", err)
	}
	pid := cmd.Process.Pid

	// Reap the child when it exits so it never lingers as a zombie and
	// Alive's signal probe stays truthful.
	go func() { _ = cmd.Wait() }()

	return pid, nil
}

// Alive probes with signal 0. EPERM still means the process exists.
func (m *ExecManager) Alive(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := syscall.Kill(pid, 0)
	return err == nil || err == syscall.EPERM
}

func (m *ExecManager) Interrupt(pid int) error {
	if pid <= 0 {
		return nil
	}
	return syscall.Kill(pid, syscall.SIGTERM)
}

func (m *ExecManager) Kill(pid int) error {
	if pid <= 0 {
		return nil
	}
	return syscall.Kill(pid, syscall.SIGKILL)
}
