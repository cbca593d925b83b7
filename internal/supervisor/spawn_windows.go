//go:build windows

package supervisor

import "os/exec"

func configureProcessGroup(cmd *exec.Cmd) {}

func (r *Running) terminate(kill bool) {
	_ = r.cmd.Process.Kill()
}
