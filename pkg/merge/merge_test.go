package merge

import (
	"testing"

	"github.com/sdejongh/fmerge/pkg/models"
)

func creation(path string, mtime int64) models.Change {
	return models.Change{
		Kind:     models.ChangeCreation,
		Earliest: mtime,
		File:     models.File{Path: path, Type: models.TypeFile},
	}
}

func modification(path string, mtime int64) models.Change {
	return models.Change{
		Kind:     models.ChangeModification,
		Earliest: mtime,
		File:     models.File{Path: path, Type: models.TypeFile},
	}
}

func deletion(path string, last, observed int64) models.Change {
	return models.Change{
		Kind:     models.ChangeDeletion,
		Earliest: last,
		Latest:   observed,
		File:     models.File{Path: path, Type: models.TypeFile},
	}
}

func TestSortByFile(t *testing.T) {
	changes := []models.Change{
		creation("a", 1),
		creation("b", 2),
		modification("a", 3),
	}

	set := SortByFile(changes)

	if len(set) != 2 {
		t.Fatalf("got %d paths, want 2", len(set))
	}
	if len(set["a"]) != 2 {
		t.Fatalf("a has %d changes, want 2", len(set["a"]))
	}
	// Per-path causal order is preserved
	if set["a"][0].Kind != models.ChangeCreation || set["a"][1].Kind != models.ChangeModification {
		t.Error("per-path order not preserved")
	}
}

func TestRecombineRoundTrip(t *testing.T) {
	set := ChangeSet{
		"b": {creation("b", 2)},
		"a": {creation("a", 1), modification("a", 3)},
	}

	flat := Recombine(set)
	if len(flat) != 3 {
		t.Fatalf("got %d changes, want 3", len(flat))
	}
	// Deterministic: paths in lexicographic order
	if flat[0].File.Path != "a" || flat[1].File.Path != "a" || flat[2].File.Path != "b" {
		t.Errorf("recombine order = %v", flat)
	}

	again := SortByFile(flat)
	if len(again["a"]) != 2 || len(again["b"]) != 1 {
		t.Error("round trip lost changes")
	}
}

func TestSquashChanges(t *testing.T) {
	tests := []struct {
		name     string
		changes  []models.Change
		expected int64
	}{
		{"Empty", nil, 0},
		{"SingleCreation", []models.Change{creation("f", 100)}, 100},
		{"CreationThenModification", []models.Change{creation("f", 100), modification("f", 200)}, 200},
		{"EndsInDeletion", []models.Change{creation("f", 100), deletion("f", 100, 300)}, 0},
		{"Recreated", []models.Change{creation("f", 100), deletion("f", 100, 300), creation("f", 400)}, 400},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SquashChanges(tt.changes); got != tt.expected {
				t.Errorf("SquashChanges() = %d, want %d", got, tt.expected)
			}
		})
	}
}

func TestMergeDisjoint(t *testing.T) {
	local := ChangeSet{"a": {creation("a", 1)}}
	remote := ChangeSet{"b": {creation("b", 2)}}

	merged, conflicts := Merge(local, remote, nil)
	if len(conflicts) != 0 {
		t.Fatalf("conflicts = %v, want none", conflicts)
	}
	if len(merged) != 2 {
		t.Fatalf("merged has %d paths, want 2", len(merged))
	}
}

func TestMergeFastForward(t *testing.T) {
	// Remote has strictly more history for the same file; it wins
	local := ChangeSet{"f": {creation("f", 100)}}
	remote := ChangeSet{"f": {creation("f", 100), modification("f", 200)}}

	merged, conflicts := Merge(local, remote, nil)
	if len(conflicts) != 0 {
		t.Fatalf("conflicts = %v, want none", conflicts)
	}
	if len(merged["f"]) != 2 {
		t.Fatalf("merged history has %d changes, want 2", len(merged["f"]))
	}
	if SquashChanges(merged["f"]) != 200 {
		t.Errorf("squashed mtime = %d, want 200", SquashChanges(merged["f"]))
	}
}

func TestMergeDeletionFastForward(t *testing.T) {
	// One side deleted the file; the deletion is the longer history
	local := ChangeSet{"y": {creation("y", 400)}}
	remote := ChangeSet{"y": {creation("y", 400), deletion("y", 400, 900)}}

	merged, conflicts := Merge(local, remote, nil)
	if len(conflicts) != 0 {
		t.Fatalf("conflicts = %v, want none", conflicts)
	}
	if SquashChanges(merged["y"]) != 0 {
		t.Error("merged state should be deleted")
	}
}

func TestMergeEqualHistories(t *testing.T) {
	// Identical histories of equal length resolve to the local side
	history := []models.Change{creation("f", 100), modification("f", 200)}
	local := ChangeSet{"f": history}
	remote := ChangeSet{"f": {creation("f", 100), modification("f", 200)}}

	merged, conflicts := Merge(local, remote, nil)
	if len(conflicts) != 0 {
		t.Fatalf("conflicts = %v, want none", conflicts)
	}
	if len(merged["f"]) != 2 {
		t.Fatal("merged history length wrong")
	}
	for i := range history {
		if !merged["f"][i].Equal(history[i]) {
			t.Errorf("change %d differs from local history", i)
		}
	}
}

func TestMergeConflict(t *testing.T) {
	// Divergent edits: same creation, different modifications
	local := ChangeSet{"x": {creation("x", 500), modification("x", 900)}}
	remote := ChangeSet{"x": {creation("x", 500), modification("x", 800)}}

	merged, conflicts := Merge(local, remote, nil)
	if len(conflicts) != 1 {
		t.Fatalf("got %d conflicts, want 1", len(conflicts))
	}
	if conflicts[0].Path != "x" {
		t.Errorf("conflict path = %s, want x", conflicts[0].Path)
	}
	// A failed merge returns an empty set
	if len(merged) != 0 {
		t.Errorf("merged set has %d entries, want 0 on conflict", len(merged))
	}
}

func TestMergeWithResolutions(t *testing.T) {
	local := ChangeSet{"x": {creation("x", 500), modification("x", 900)}}
	remote := ChangeSet{"x": {creation("x", 500), modification("x", 800)}}

	t.Run("KeepLocal", func(t *testing.T) {
		merged, conflicts := Merge(local, remote, models.ResolutionSet{"x": models.KeepLocal})
		if len(conflicts) != 0 {
			t.Fatalf("conflicts = %v, want none", conflicts)
		}
		if SquashChanges(merged["x"]) != 900 {
			t.Errorf("squashed mtime = %d, want local 900", SquashChanges(merged["x"]))
		}
	})

	t.Run("KeepRemote", func(t *testing.T) {
		merged, conflicts := Merge(local, remote, models.ResolutionSet{"x": models.KeepRemote})
		if len(conflicts) != 0 {
			t.Fatalf("conflicts = %v, want none", conflicts)
		}
		if SquashChanges(merged["x"]) != 800 {
			t.Errorf("squashed mtime = %d, want remote 800", SquashChanges(merged["x"]))
		}
	})
}

func TestMergeSymmetry(t *testing.T) {
	// merge(A, B, R) must equal merge(B, A, translate(R)) entry-wise
	a := ChangeSet{
		"only-a":   {creation("only-a", 1)},
		"shared":   {creation("shared", 10), modification("shared", 20)},
		"conflict": {creation("conflict", 5), modification("conflict", 50)},
	}
	b := ChangeSet{
		"only-b":   {creation("only-b", 2)},
		"shared":   {creation("shared", 10)},
		"conflict": {creation("conflict", 5), modification("conflict", 60)},
	}
	resolutions := models.ResolutionSet{"conflict": models.KeepLocal}

	mergedA, conflictsA := Merge(a, b, resolutions)
	mergedB, conflictsB := Merge(b, a, resolutions.Translate())

	if len(conflictsA) != 0 || len(conflictsB) != 0 {
		t.Fatalf("conflicts = %v / %v, want none", conflictsA, conflictsB)
	}
	if len(mergedA) != len(mergedB) {
		t.Fatalf("merged sizes differ: %d vs %d", len(mergedA), len(mergedB))
	}
	for path, changesA := range mergedA {
		changesB, ok := mergedB[path]
		if !ok {
			t.Errorf("path %s missing from the mirrored merge", path)
			continue
		}
		if len(changesA) != len(changesB) {
			t.Errorf("path %s: history lengths differ", path)
			continue
		}
		for i := range changesA {
			if !changesA[i].Equal(changesB[i]) {
				t.Errorf("path %s change %d differs between sides", path, i)
			}
		}
	}
}

func TestMergeConflictsSorted(t *testing.T) {
	local := ChangeSet{
		"zeta":  {modification("zeta", 900)},
		"alpha": {modification("alpha", 900)},
	}
	remote := ChangeSet{
		"zeta":  {modification("zeta", 800)},
		"alpha": {modification("alpha", 800)},
	}

	_, conflicts := Merge(local, remote, nil)
	if len(conflicts) != 2 {
		t.Fatalf("got %d conflicts, want 2", len(conflicts))
	}
	if conflicts[0].Path != "alpha" || conflicts[1].Path != "zeta" {
		t.Errorf("conflicts not alphabetical: %v", conflicts)
	}
}
