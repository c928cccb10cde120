//go:build linux || darwin || freebsd

package store

import "golang.org/x/sys/unix"

func adviseRandom(b []byte) error {
	if len(b) == 0 {
		return nil
	}
	return unix.Madvise(b, unix.MADV_RANDOM)
}
