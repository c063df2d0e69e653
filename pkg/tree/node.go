// Package tree holds the in-memory representation of a directory tree's
// metadata and the change detection that compares two snapshots of it.
package tree

import (
	"github.com/sdejongh/fmerge/pkg/models"
)

// MetadataNode is the per-file metadata the change detection operates on.
// No content is kept.
type MetadataNode struct {
	Name  string
	Mtime int64
	Type  models.FileType
}

// DirNode is a directory in the metadata tree. Child names are unique
// across Subdirs and Files.
type DirNode struct {
	Metadata *MetadataNode
	Subdirs  []*DirNode
	Files    []*MetadataNode
}

// NewRoot creates an empty unnamed root directory
func NewRoot() *DirNode {
	return NewDir("", 0)
}

// NewDir creates a directory node
func NewDir(name string, mtime int64) *DirNode {
	return &DirNode{
		Metadata: &MetadataNode{Name: name, Mtime: mtime, Type: models.TypeDirectory},
	}
}

// ChildDir returns the immediate subdirectory with the given name, or nil
func (d *DirNode) ChildDir(name string) *DirNode {
	for _, sub := range d.Subdirs {
		if sub.Metadata.Name == name {
			return sub
		}
	}
	return nil
}

// ChildFile returns the immediate file child with the given name, or nil
func (d *DirNode) ChildFile(name string) *MetadataNode {
	for _, f := range d.Files {
		if f.Name == name {
			return f
		}
	}
	return nil
}

// LookupDir walks the token list and returns the directory it names.
// An empty token list returns the node itself.
func (d *DirNode) LookupDir(tokens []string) *DirNode {
	current := d
	for _, token := range tokens {
		current = current.ChildDir(token)
		if current == nil {
			return nil
		}
	}
	return current
}

// LookupFile walks the token list and returns the file it names, or nil
func (d *DirNode) LookupFile(tokens []string) *MetadataNode {
	if len(tokens) == 0 {
		return nil
	}
	parent := d.LookupDir(tokens[:len(tokens)-1])
	if parent == nil {
		return nil
	}
	return parent.ChildFile(tokens[len(tokens)-1])
}

// InsertDir inserts a directory node at the path named by tokens. Missing
// parents are created as placeholders with mtime 0 and receive their real
// metadata when their own insert arrives. Inserting over an existing
// directory replaces its metadata only.
func (d *DirNode) InsertDir(tokens []string, node *DirNode) {
	if len(tokens) == 0 || node == nil {
		return
	}
	parent := d.ensureParent(tokens)

	if existing := parent.ChildDir(tokens[len(tokens)-1]); existing != nil {
		existing.Metadata = node.Metadata
		return
	}
	parent.Subdirs = append(parent.Subdirs, node)
}

// InsertFile inserts a file node at the path named by tokens, creating
// placeholder parents as needed. Inserting over an existing file updates
// its metadata.
func (d *DirNode) InsertFile(tokens []string, meta *MetadataNode) {
	if len(tokens) == 0 || meta == nil {
		return
	}
	parent := d.ensureParent(tokens)

	if existing := parent.ChildFile(tokens[len(tokens)-1]); existing != nil {
		existing.Mtime = meta.Mtime
		existing.Type = meta.Type
		return
	}
	parent.Files = append(parent.Files, meta)
}

// ensureParent returns the parent directory for the path named by tokens,
// creating placeholder directories along the way
func (d *DirNode) ensureParent(tokens []string) *DirNode {
	parentTokens := tokens[:len(tokens)-1]
	parent := d.LookupDir(parentTokens)
	if parent != nil {
		return parent
	}

	placeholder := NewDir(parentTokens[len(parentTokens)-1], 0)
	d.InsertDir(parentTokens, placeholder)
	return placeholder
}

// Remove deletes the node at the path named by tokens. Returns true if a
// node was removed or the parent never existed (nothing to do), false if
// the parent exists but holds no such child.
func (d *DirNode) Remove(tokens []string) bool {
	if len(tokens) == 0 {
		return false
	}
	parent := d.LookupDir(tokens[:len(tokens)-1])
	if parent == nil {
		// No parent means the path is already gone
		return true
	}

	name := tokens[len(tokens)-1]
	for i, f := range parent.Files {
		if f.Name == name {
			parent.Files = append(parent.Files[:i], parent.Files[i+1:]...)
			return true
		}
	}
	for i, sub := range parent.Subdirs {
		if sub.Metadata.Name == name {
			parent.Subdirs = append(parent.Subdirs[:i], parent.Subdirs[i+1:]...)
			return true
		}
	}
	return false
}

// Walk visits every node below d. Directories are visited before their
// contents; files of a directory are visited after its subdirectories.
func (d *DirNode) Walk(fn func(tokens []string, meta *MetadataNode, isDir bool)) {
	d.walk(nil, fn)
}

func (d *DirNode) walk(prefix []string, fn func([]string, *MetadataNode, bool)) {
	for _, sub := range d.Subdirs {
		path := append(append([]string{}, prefix...), sub.Metadata.Name)
		fn(path, sub.Metadata, true)
		sub.walk(path, fn)
	}
	for _, f := range d.Files {
		path := append(append([]string{}, prefix...), f.Name)
		fn(path, f, false)
	}
}

// CountNodes returns the number of nodes below d
func (d *DirNode) CountNodes() int {
	count := 0
	d.Walk(func([]string, *MetadataNode, bool) { count++ })
	return count
}
