// Package merge unifies two change histories into one, detects conflicts
// and derives the minimal set of filesystem operations to reach the
// merged state. The algorithm is deterministic and symmetric: both peers
// run it on the same inputs and must produce identical results.
package merge

import (
	"sort"

	"github.com/sdejongh/fmerge/pkg/models"
)

// ChangeSet maps each path to its causally ordered change history
type ChangeSet map[string][]models.Change

// SortByFile buckets a flat change log by path, preserving per-path order
func SortByFile(changes []models.Change) ChangeSet {
	set := make(ChangeSet)
	for _, c := range changes {
		set[c.File.Path] = append(set[c.File.Path], c)
	}
	return set
}

// Recombine flattens a change set back into a single log. Paths are
// emitted in lexicographic order so the output is deterministic; the
// original global order is not preserved.
func Recombine(set ChangeSet) []models.Change {
	paths := make([]string, 0, len(set))
	for path := range set {
		paths = append(paths, path)
	}
	sort.Strings(paths)

	var changes []models.Change
	for _, path := range paths {
		changes = append(changes, set[path]...)
	}
	return changes
}

// SquashChanges reduces a change history to the file's effective mtime:
// zero iff the final change is a deletion, otherwise the final change's
// earliest time. The result acts as the content fingerprint.
func SquashChanges(changes []models.Change) int64 {
	if len(changes) == 0 {
		return 0
	}
	last := changes[len(changes)-1]
	switch last.Kind {
	case models.ChangeCreation, models.ChangeModification:
		return last.Earliest
	case models.ChangeDeletion:
		return 0
	default:
		return 0
	}
}

// Merge unifies two change sets. Paths present on only one side merge
// trivially. Paths on both sides use the caller-supplied resolution if
// one exists, otherwise fast-forward resolution is attempted. If any
// conflict remains the merge fails: an empty set and the conflict list
// are returned, and the caller must obtain resolutions and retry.
func Merge(local, remote ChangeSet, resolutions models.ResolutionSet) (ChangeSet, []models.Conflict) {
	merged := make(ChangeSet, len(local)+len(remote))
	var conflicts []models.Conflict

	for path, localChanges := range local {
		remoteChanges, inRemote := remote[path]
		if !inRemote {
			// Trivial merge: the other branch never touched this file
			merged[path] = localChanges
			continue
		}

		if resolution, ok := resolutions[path]; ok {
			switch resolution {
			case models.KeepLocal:
				merged[path] = localChanges
			case models.KeepRemote:
				merged[path] = remoteChanges
			}
			continue
		}

		if result, ok := tryAutoResolve(localChanges, remoteChanges); ok {
			merged[path] = result
		} else {
			conflicts = append(conflicts, models.Conflict{Path: path})
		}
	}

	for path, remoteChanges := range remote {
		if _, inLocal := local[path]; !inLocal {
			merged[path] = remoteChanges
		}
	}

	if len(conflicts) > 0 {
		sort.Slice(conflicts, func(i, j int) bool { return conflicts[i].Path < conflicts[j].Path })
		return ChangeSet{}, conflicts
	}
	return merged, nil
}

// tryAutoResolve fast-forwards one history onto the other when one is a
// prefix of the other, like a git fast-forward. Equal-length identical
// histories resolve to the local side.
func tryAutoResolve(local, remote []models.Change) ([]models.Change, bool) {
	n := len(local)
	if len(remote) < n {
		n = len(remote)
	}
	for i := 0; i < n; i++ {
		if !local[i].Equal(remote[i]) {
			return nil, false
		}
	}
	// The stems match; the longer history wins
	if len(local) >= len(remote) {
		return local, true
	}
	return remote, true
}
