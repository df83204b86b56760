//go:build !unix

package diskspace

// Available is not implemented on this platform.
func Available(dir string) (int64, bool) {
	return 0, false
}
