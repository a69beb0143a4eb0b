package main

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// realtime locks the process in memory and raises its scheduling
// priority. Both need root or the matching capabilities.
func realtime() error {
	if err := unix.Mlockall(unix.MCL_CURRENT | unix.MCL_FUTURE); err != nil {
		return fmt.Errorf("mlockall: %w", err)
	}
	if err := unix.Setpriority(unix.PRIO_PROCESS, 0, -20); err != nil {
		return fmt.Errorf("setpriority: %w", err)
	}
	return nil
}
