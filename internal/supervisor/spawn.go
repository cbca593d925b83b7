// Package supervisor spawns one job instance's command under a login
// shell, with the environment in BuildEnv applied, captures its output, and
// enforces the engine's termination sequencing (TERM, grace period, KILL).
package supervisor

import (
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/loykin/pcron/internal/timesource"
)

// Spec describes one instance to spawn.
type Spec struct {
	JobID   string
	Command string

	// Shell is the login shell the command runs under; defaults to
	// /bin/sh if empty.
	Shell string
	// WorkDir is the process's working directory.
	WorkDir string
	// Env is the fully composed environment (see BuildEnv).
	Env []string
	// EnvironmentScript, if non-empty, is sourced by the login shell
	// before Command runs, the way a crontab's environment.sh sets up
	// shell functions and aliases a plain exported-variable environment
	// can't carry.
	EnvironmentScript string

	Output io.Writer
}

// Running is a spawned instance's command, in flight or finished.
type Running struct {
	cmd      *exec.Cmd
	waitDone chan struct{}

	mu       sync.Mutex
	waitErr  error
	killed   bool
	exited   bool
}

// Start spawns spec's command under a login shell and begins waiting on it
// in the background.
func Start(spec Spec) (*Running, error) {
	shell := spec.Shell
	if shell == "" {
		shell = "/bin/sh"
	}
	cmd := exec.Command(shell, "-c", buildScript(spec))
	cmd.Dir = spec.WorkDir
	cmd.Env = spec.Env
	cmd.Stdout = spec.Output
	cmd.Stderr = spec.Output
	configureProcessGroup(cmd)

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start job %s: %w", spec.JobID, err)
	}

	r := &Running{cmd: cmd, waitDone: make(chan struct{})}
	go func() {
		err := cmd.Wait()
		r.mu.Lock()
		r.waitErr = err
		r.exited = true
		r.mu.Unlock()
		close(r.waitDone)
	}()
	return r, nil
}

func buildScript(spec Spec) string {
	var b strings.Builder
	if spec.EnvironmentScript != "" {
		q := shQuote(spec.EnvironmentScript)
		fmt.Fprintf(&b, "if [ -f %s ]; then . %s; fi\n", q, q)
	}
	b.WriteString(spec.Command)
	return b.String()
}

func shQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// Done returns a channel closed once the command has exited.
func (r *Running) Done() <-chan struct{} { return r.waitDone }

// PID returns the spawned process's PID.
func (r *Running) PID() int { return r.cmd.Process.Pid }

// Result returns the command's outcome. Valid only after Done() is closed.
func (r *Running) Result() (exitCode int, killed bool, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.waitErr == nil {
		return 0, r.killed, nil
	}
	if exitErr, ok := r.waitErr.(*exec.ExitError); ok {
		return exitErr.ExitCode(), r.killed, nil
	}
	return -1, r.killed, r.waitErr
}

// Terminate sends the instance's process group SIGTERM, then escalates to
// SIGKILL if it hasn't exited within grace. It blocks until the process has
// actually exited.
func (r *Running) Terminate(grace time.Duration, clock timesource.Source) {
	r.terminate(false)
	select {
	case <-r.waitDone:
		return
	default:
	}

	deadline := clock.Now().Add(grace)
	if clock.SleepUntil(deadline, r.waitDone) {
		return
	}

	r.mu.Lock()
	r.killed = true
	r.mu.Unlock()
	r.terminate(true)
	<-r.waitDone
}

// Kill sends an immediate SIGKILL to the instance's process group and
// blocks until it has exited.
func (r *Running) Kill() {
	r.mu.Lock()
	r.killed = true
	r.mu.Unlock()
	r.terminate(true)
	<-r.waitDone
}
