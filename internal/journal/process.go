package journal

import (
	"errors"
	"os"
	"syscall"
)

// processAlive reports whether o.PID names a running process on this host.
func processAlive(o Owner) bool {
	p, err := os.FindProcess(o.PID)
	if err != nil {
		return false
	}
	err = p.Signal(syscall.Signal(0))
	return err == nil || errors.Is(err, syscall.EPERM)
}
