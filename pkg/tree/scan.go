package tree

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sdejongh/fmerge/pkg/fsutil"
	"github.com/sdejongh/fmerge/pkg/models"
	"github.com/sdejongh/fmerge/pkg/terminal"
)

// StateDirName is the per-root directory holding the change log and
// session config. It is never synchronized.
const StateDirName = ".fmerge"

// PathIgnored reports whether a relative path is excluded from scanning
// and synchronization
func PathIgnored(relPath string) bool {
	return relPath == StateDirName || strings.HasPrefix(relPath, StateDirName+"/")
}

// BuildFromDisk scans the directory at rootPath into a metadata tree.
// Symbolic links are recorded, never followed. The state directory is
// skipped. Per-entry errors are logged and the entry ignored; running out
// of file descriptors aborts the scan.
func BuildFromDisk(rootPath string, term terminal.Terminal) (*DirNode, error) {
	rootStats, err := fsutil.Stat(rootPath)
	if err != nil {
		return nil, err
	}
	if rootStats == nil {
		return nil, fmt.Errorf("sync root does not exist: %s", rootPath)
	}

	root := NewDir("", rootStats.Mtime)

	// First pass counts entries so the progress bar has a total
	total := 0
	if err := walkDisk(rootPath, "", term, func(string, *models.FileStats) { total++ }); err != nil {
		return nil, err
	}

	term.StartProgress("Building file tree", total)
	defer term.CompleteProgress()

	err = walkDisk(rootPath, "", term, func(relPath string, stats *models.FileStats) {
		term.IncrProgress()

		tokens := fsutil.SplitPath(relPath)
		switch stats.Type {
		case models.TypeDirectory:
			root.InsertDir(tokens, NewDir(tokens[len(tokens)-1], stats.Mtime))
		case models.TypeFile, models.TypeLink:
			root.InsertFile(tokens, &MetadataNode{
				Name:  tokens[len(tokens)-1],
				Mtime: stats.Mtime,
				Type:  stats.Type,
			})
		default:
			term.Log(fmt.Sprintf("[Error] %s: unknown file type", relPath))
		}
	})
	if err != nil {
		return nil, err
	}

	return root, nil
}

// walkDisk recursively visits every entry under basePath, calling fn with
// the root-relative path and lstat metadata
func walkDisk(basePath, prefix string, term terminal.Terminal, fn func(string, *models.FileStats)) error {
	entries, err := os.ReadDir(filepath.Join(basePath, filepath.FromSlash(prefix)))
	if err != nil {
		if fsutil.IsFatalFSError(err) {
			return fmt.Errorf("file descriptor limit reached: %w", err)
		}
		term.Log(fmt.Sprintf("[Warning] skipping unreadable directory %s: %v", prefix, err))
		return nil
	}

	for _, entry := range entries {
		relPath := fsutil.JoinPath(prefix, entry.Name())
		if PathIgnored(relPath) {
			continue
		}

		stats, err := fsutil.Stat(filepath.Join(basePath, filepath.FromSlash(relPath)))
		if err != nil {
			if fsutil.IsFatalFSError(err) {
				return fmt.Errorf("file descriptor limit reached: %w", err)
			}
			term.Log(fmt.Sprintf("[Warning] skipping %s: %v", relPath, err))
			continue
		}
		if stats == nil {
			// Entry vanished between readdir and lstat
			continue
		}

		fn(relPath, stats)

		if stats.Type == models.TypeDirectory {
			if err := walkDisk(basePath, relPath, term, fn); err != nil {
				return err
			}
		}
	}
	return nil
}

// FromChanges reconstructs the tree snapshot a change log describes by
// replaying every change in order. This is the canonical way to obtain a
// historical tree.
func FromChanges(changes []models.Change) *DirNode {
	root := NewRoot()

	for _, change := range changes {
		tokens := fsutil.SplitPath(change.File.Path)
		switch change.Kind {
		case models.ChangeCreation, models.ChangeModification:
			if change.File.IsDir() {
				root.InsertDir(tokens, NewDir(change.File.Name(), change.Earliest))
			} else {
				root.InsertFile(tokens, &MetadataNode{
					Name:  change.File.Name(),
					Mtime: change.Earliest,
					Type:  change.File.Type,
				})
			}
		case models.ChangeDeletion:
			root.Remove(tokens)
		}
	}
	return root
}
