//go:build !unix

package supervisor

import "os/exec"

func detach(cmd *exec.Cmd) {}
