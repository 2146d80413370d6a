//go:build linux

package proctitle

import (
	"unsafe"

	"golang.org/x/sys/unix"
)

// comm is 16 bytes including the terminating NUL.
const commLen = 16

// Set rewrites os.Args[0] and the thread name shown by ps via PR_SET_NAME.
// Titles longer than 15 bytes are cut.
func Set(title string) error {
	title, err := setArgv0(title)
	if err != nil {
		return err
	}
	b := make([]byte, commLen)
	copy(b[:commLen-1], title)
	return unix.Prctl(unix.PR_SET_NAME, uintptr(unsafe.Pointer(&b[0])), 0, 0, 0)
}
