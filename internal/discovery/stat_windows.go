//go:build !unix

package discovery

import "io/fs"

// fileID has no portable equivalent off unix; size and mtime still catch
// content changes.
func fileID(info fs.FileInfo) (inode, device uint64) {
	return 0, 0
}
