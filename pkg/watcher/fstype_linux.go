//go:build linux

package watcher

import (
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sys/unix"
)

// Superblock magic numbers from statfs(2).
const (
	magicNFS   = 0x6969
	magicSMB   = 0x517b
	magicCIFS  = 0xff534d42
	magicSMB2  = 0xfe534d42
	magicFUSE  = 0x65735546
	magicCODA  = 0x73757245
	magicAFS   = 0x5346414f
	magicCEPH  = 0x00c36400
	magic9P    = 0x01021997
	magicLUSTR = 0x0bd00bd0
)

func detectFilesystemType(path string) FilesystemType {
	// The file may not exist yet; its directory decides.
	target := path
	if _, err := os.Stat(target); err != nil {
		target = filepath.Dir(path)
	}
	var st unix.Statfs_t
	if err := unix.Statfs(target, &st); err != nil {
		return FSTypeUnknown
	}
	switch int64(st.Type) {
	case magicNFS, magicAFS, magicCODA, magicCEPH, magic9P, magicLUSTR:
		return FSTypeNFS
	case magicSMB, magicCIFS, magicSMB2:
		return FSTypeSMB
	case magicFUSE:
		if isSSHFS(target) {
			return FSTypeSSHFS
		}
		return FSTypeFUSE
	default:
		return FSTypeLocal
	}
}

// isSSHFS looks the mount up in /proc/self/mounts; fuse.sshfs shares the
// FUSE magic number.
func isSSHFS(path string) bool {
	data, err := os.ReadFile("/proc/self/mounts")
	if err != nil {
		return false
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return false
	}
	best, bestType := "", ""
	for _, line := range strings.Split(string(data), "\n") {
		fields := strings.Fields(line)
		if len(fields) < 3 {
			continue
		}
		mnt, typ := fields[1], fields[2]
		if (abs == mnt || mnt == "/" || strings.HasPrefix(abs, mnt+"/")) && len(mnt) > len(best) {
			best, bestType = mnt, typ
		}
	}
	return bestType == "fuse.sshfs"
}
