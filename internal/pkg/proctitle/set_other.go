//go:build !linux

package proctitle

// Set only rewrites os.Args[0]; the kernel-visible name keeps the binary name.
func Set(title string) error {
	_, err := setArgv0(title)
	return err
}
