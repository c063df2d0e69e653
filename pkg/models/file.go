package models

import "strings"

// FileType identifies the kind of filesystem object a record refers to.
// The numeric values are shared by the wire protocol and the change log
// format and must not be reordered.
type FileType uint8

const (
	TypeUnknown FileType = iota
	TypeDirectory
	TypeFile
	TypeLink
)

// String returns a human-readable name for the file type
func (t FileType) String() string {
	switch t {
	case TypeDirectory:
		return "directory"
	case TypeFile:
		return "file"
	case TypeLink:
		return "link"
	default:
		return "unknown"
	}
}

// File is the identity of a filesystem object: its path relative to the
// sync root and its type. Paths are forward-slash separated and never
// start with "/".
type File struct {
	Path string
	Type FileType
}

// IsDir reports whether the file is a directory
func (f File) IsDir() bool {
	return f.Type == TypeDirectory
}

// IsFile reports whether the file is a regular file
func (f File) IsFile() bool {
	return f.Type == TypeFile
}

// IsLink reports whether the file is a symbolic link
func (f File) IsLink() bool {
	return f.Type == TypeLink
}

// Name returns the last element of the file's path
func (f File) Name() string {
	if idx := strings.LastIndexByte(f.Path, '/'); idx >= 0 {
		return f.Path[idx+1:]
	}
	return f.Path
}

// FileStats is the metadata subset read from lstat that the change
// detection algorithms operate on. Mtime is the sole version identity:
// two revisions of a file are considered equal iff their Mtime match.
type FileStats struct {
	Mtime int64
	Ctime int64
	Atime int64
	Type  FileType
	Size  uint64
}
