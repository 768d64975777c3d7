package util

import (
	"os"
	"syscall"
)

// ShutdownSignals returns the signals that stop the player.
func ShutdownSignals() []os.Signal {
	return []os.Signal{os.Interrupt, syscall.SIGTERM}
}
