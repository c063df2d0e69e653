package tree

import (
	"fmt"

	"github.com/sdejongh/fmerge/pkg/fsutil"
	"github.com/sdejongh/fmerge/pkg/models"
	"github.com/sdejongh/fmerge/pkg/terminal"
)

// Diff compares a historical tree against the current snapshot and
// returns the changes that happened in between. now is the timestamp to
// record as the upper bound for inferred deletions.
func Diff(from, to *DirNode, now int64, term terminal.Terminal) []models.Change {
	var changes []models.Change

	// Everything present in the old tree: deletions and modifications
	from.Walk(func(tokens []string, fromMeta *MetadataNode, isDir bool) {
		var toMeta *MetadataNode
		if isDir {
			if toDir := to.LookupDir(tokens); toDir != nil {
				toMeta = toDir.Metadata
			}
		} else {
			toMeta = to.LookupFile(tokens)
		}
		changes = append(changes, compareMetadata(fromMeta, toMeta, fsutil.PathToString(tokens), now, term)...)
	})

	// Everything only in the new tree: creations
	to.Walk(func(tokens []string, toMeta *MetadataNode, isDir bool) {
		var fromMeta *MetadataNode
		if isDir {
			if fromDir := from.LookupDir(tokens); fromDir != nil {
				fromMeta = fromDir.Metadata
			}
		} else {
			fromMeta = from.LookupFile(tokens)
		}

		if fromMeta == nil {
			changes = append(changes, models.Change{
				Kind:     models.ChangeCreation,
				Earliest: toMeta.Mtime,
				File:     models.File{Path: fsutil.PathToString(tokens), Type: toMeta.Type},
			})
		}
	})

	return changes
}

// compareMetadata determines what changed for a single path present in
// the historical tree
func compareMetadata(from, to *MetadataNode, path string, now int64, term terminal.Terminal) []models.Change {
	if from != nil && to != nil {
		// Directory changes other than creation and deletion are noise
		if from.Type == models.TypeDirectory && to.Type == models.TypeDirectory {
			return nil
		}
		// The object type differs: the old one was deleted and the new one
		// appeared in its place
		if from.Type != to.Type {
			return []models.Change{
				{
					Kind:     models.ChangeDeletion,
					Earliest: from.Mtime,
					Latest:   to.Mtime,
					File:     models.File{Path: path, Type: from.Type},
				},
				{
					Kind:     models.ChangeModification,
					Earliest: to.Mtime,
					File:     models.File{Path: path, Type: to.Type},
				},
			}
		}
		// Both file-like and same type: compare modification times
		switch {
		case from.Mtime < to.Mtime:
			return []models.Change{{
				Kind:     models.ChangeModification,
				Earliest: to.Mtime,
				File:     models.File{Path: path, Type: to.Type},
			}}
		case from.Mtime > to.Mtime:
			term.Log(fmt.Sprintf("[Warning] Modification time of %s lies %ds in the future!", path, from.Mtime-to.Mtime))
			return nil
		default:
			return nil
		}
	}

	if from != nil && to == nil {
		return []models.Change{{
			Kind:     models.ChangeDeletion,
			Earliest: from.Mtime,
			Latest:   now,
			File:     models.File{Path: path, Type: from.Type},
		}}
	}

	// to != nil && from == nil is handled by the creation pass
	return nil
}
