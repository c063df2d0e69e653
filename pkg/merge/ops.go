package merge

import (
	"sort"

	"github.com/sdejongh/fmerge/pkg/models"
)

// OperationSet maps each path to the filesystem operations required for it
type OperationSet map[string][]models.FileOperation

// ConstructOperations derives, for every path in the target state, the
// operations that transform the current local state into it. The
// modification time acts as the content fingerprint: equal squashed
// mtimes mean equal content.
func ConstructOperations(current, target ChangeSet) OperationSet {
	ops := make(OperationSet, len(target))
	for path, targetChanges := range target {
		fileOps := constructFileOperations(current[path], targetChanges)
		if len(fileOps) > 0 {
			ops[path] = fileOps
		}
	}
	return ops
}

func constructFileOperations(current, target []models.Change) []models.FileOperation {
	targetMtime := SquashChanges(target)
	currentMtime := SquashChanges(current)

	path := target[len(target)-1].File.Path

	if targetMtime == 0 {
		// The file must not exist; delete it if it currently does
		if currentMtime != 0 {
			return []models.FileOperation{{Kind: models.OpDelete, Path: path}}
		}
		return nil
	}
	if targetMtime != currentMtime {
		return []models.FileOperation{{Kind: models.OpTransfer, Path: path}}
	}
	return nil
}

// SquashOperations reduces each path's operation chain to a minimal set.
// Renames do not exist, so only the last operation matters; placeholder
// reverts are bookkeeping entries and are dropped entirely. A placeholder
// surviving into execution would be a bug.
func SquashOperations(ops OperationSet) OperationSet {
	squashed := make(OperationSet, len(ops))
	for path, chain := range ops {
		for i := len(chain) - 1; i >= 0; i-- {
			if chain[i].Kind != models.OpPlaceholderRevert {
				squashed[path] = []models.FileOperation{chain[i]}
				break
			}
		}
	}
	return squashed
}

// SortedPaths returns the operation set's paths in reverse lexicographic
// order, so that a directory's contents are processed before the
// directory itself. Deleting "d" before "d/f" would fail.
func SortedPaths(ops OperationSet) []string {
	paths := make([]string, 0, len(ops))
	for path := range ops {
		paths = append(paths, path)
	}
	sort.Sort(sort.Reverse(sort.StringSlice(paths)))
	return paths
}
