//go:build unix

package port

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// checkAccess fails when the descriptor was not opened for every direction
// mode asks for.
func checkAccess(fd int, mode Mode) error {
	flags, err := unix.FcntlInt(uintptr(fd), unix.F_GETFL, 0)
	if err != nil {
		return err
	}
	switch flags & unix.O_ACCMODE {
	case unix.O_RDONLY:
		if mode.Writable() {
			return fmt.Errorf("requested mode %s not available: descriptor is read-only", mode)
		}
	case unix.O_WRONLY:
		if mode.Readable() {
			return fmt.Errorf("requested mode %s not available: descriptor is write-only", mode)
		}
	}
	return nil
}
