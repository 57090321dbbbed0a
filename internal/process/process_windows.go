//go:build windows

package process

import (
	"os/exec"
	"strconv"
)

// Isolate is a no-op on Windows; KillGroup uses a tree kill instead.
func Isolate(cmd *exec.Cmd) {}

// KillGroup kills pid and its children. /F forces, /T walks the tree.
func KillGroup(pid int) error {
	return exec.Command("taskkill", "/F", "/T", "/PID", strconv.Itoa(pid)).Run()
}
