//go:build unix

package supervisor

import (
	"os/exec"
	"syscall"
)

// detach puts the child in its own process group so it keeps running when the
// console exits or restarts.
func detach(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setpgid: true,
	}
}
