//go:build unix

package discovery

import (
	"io/fs"
	"syscall"
)

// fileID extracts the inode and device numbers so renamed-in-place files
// keep their identity across scans.
func fileID(info fs.FileInfo) (inode, device uint64) {
	st, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return 0, 0
	}
	return uint64(st.Ino), uint64(st.Dev)
}
