// Package fsutil wraps the filesystem primitives the synchronizer needs:
// lstat-based metadata, symlink handling and timestamp preservation.
// Symbolic links are never followed.
package fsutil

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"golang.org/x/sys/unix"

	"github.com/sdejongh/fmerge/pkg/models"
)

// Stat returns the metadata for a path without following symlinks.
// Returns nil (no error) if the path does not exist.
func Stat(path string) (*models.FileStats, error) {
	var st unix.Stat_t
	if err := unix.Lstat(path, &st); err != nil {
		if errors.Is(err, unix.ENOENT) || errors.Is(err, unix.ENOTDIR) {
			return nil, nil
		}
		return nil, fmt.Errorf("lstat %s: %w", path, err)
	}

	stats := &models.FileStats{
		Mtime: st.Mtim.Sec,
		Ctime: st.Ctim.Sec,
		Atime: st.Atim.Sec,
		Size:  uint64(st.Size),
	}

	switch st.Mode & unix.S_IFMT {
	case unix.S_IFDIR:
		stats.Type = models.TypeDirectory
	case unix.S_IFREG:
		stats.Type = models.TypeFile
	case unix.S_IFLNK:
		stats.Type = models.TypeLink
	default:
		stats.Type = models.TypeUnknown
	}

	return stats, nil
}

// Exists reports whether a path exists, without following symlinks
func Exists(path string) bool {
	var st unix.Stat_t
	return unix.Lstat(path, &st) == nil
}

// EnsureDir creates a directory if it does not exist. The parent must
// already exist.
func EnsureDir(path string) error {
	if Exists(path) {
		return nil
	}
	if err := os.Mkdir(path, 0755); err != nil {
		return fmt.Errorf("mkdir %s: %w", path, err)
	}
	return nil
}

// EnsureDirAll creates a directory and any missing parents
func EnsureDirAll(path string) error {
	if err := os.MkdirAll(path, 0755); err != nil {
		return fmt.Errorf("mkdir -p %s: %w", path, err)
	}
	return nil
}

// RemovePath removes a file, symlink or empty directory
func RemovePath(path string) error {
	if err := os.Remove(path); err != nil {
		return fmt.Errorf("remove %s: %w", path, err)
	}
	return nil
}

// SetFileTimes sets the access and modification times on a path in unix
// seconds. Operates on the entry itself, not a symlink's target.
func SetFileTimes(path string, atime, mtime int64) error {
	times := []unix.Timespec{
		{Sec: atime},
		{Sec: mtime},
	}
	if err := unix.UtimesNanoAt(unix.AT_FDCWD, path, times, unix.AT_SYMLINK_NOFOLLOW); err != nil {
		return fmt.Errorf("utimensat %s: %w", path, err)
	}
	return nil
}

// ReadLinkTarget returns the target of a symbolic link
func ReadLinkTarget(path string) (string, error) {
	target, err := os.Readlink(path)
	if err != nil {
		return "", fmt.Errorf("readlink %s: %w", path, err)
	}
	return target, nil
}

// MakeSymlink creates a symlink at path pointing to target, replacing any
// existing entry at path
func MakeSymlink(target, path string) error {
	if Exists(path) {
		if err := unix.Unlink(path); err != nil {
			return fmt.Errorf("unlink %s: %w", path, err)
		}
	}
	if err := os.Symlink(target, path); err != nil {
		return fmt.Errorf("symlink %s: %w", path, err)
	}
	return nil
}

// IsFatalFSError reports whether an error indicates file descriptor
// exhaustion, which the process cannot recover from
func IsFatalFSError(err error) bool {
	return errors.Is(err, unix.ENFILE) || errors.Is(err, unix.EMFILE)
}

// Timestamp returns the current time in unix seconds
func Timestamp() int64 {
	return time.Now().Unix()
}

// SplitPath splits a relative slash-separated path into its tokens.
// Empty tokens are dropped.
func SplitPath(path string) []string {
	var tokens []string
	for _, token := range strings.Split(path, "/") {
		if token != "" {
			tokens = append(tokens, token)
		}
	}
	return tokens
}

// JoinPath joins two path fragments with a single slash
func JoinPath(p1, p2 string) string {
	if p1 == "" {
		return p2
	}
	if p2 == "" {
		return p1
	}
	return strings.TrimSuffix(p1, "/") + "/" + p2
}

// PathToString reassembles path tokens into a slash-separated path
func PathToString(tokens []string) string {
	return strings.Join(tokens, "/")
}
