package merge

import (
	"testing"

	"github.com/sdejongh/fmerge/pkg/models"
)

func TestConstructOperations(t *testing.T) {
	t.Run("TransferForNewFile", func(t *testing.T) {
		current := ChangeSet{}
		target := ChangeSet{"f": {creation("f", 100)}}

		ops := ConstructOperations(current, target)
		if len(ops["f"]) != 1 {
			t.Fatalf("got %d ops, want 1", len(ops["f"]))
		}
		if ops["f"][0].Kind != models.OpTransfer {
			t.Errorf("op = %v, want transfer", ops["f"][0])
		}
	})

	t.Run("TransferForDifferentVersion", func(t *testing.T) {
		current := ChangeSet{"f": {creation("f", 100)}}
		target := ChangeSet{"f": {creation("f", 100), modification("f", 200)}}

		ops := ConstructOperations(current, target)
		if len(ops["f"]) != 1 || ops["f"][0].Kind != models.OpTransfer {
			t.Errorf("ops = %v, want one transfer", ops["f"])
		}
	})

	t.Run("DeleteForRemovedFile", func(t *testing.T) {
		current := ChangeSet{"f": {creation("f", 100)}}
		target := ChangeSet{"f": {creation("f", 100), deletion("f", 100, 500)}}

		ops := ConstructOperations(current, target)
		if len(ops["f"]) != 1 || ops["f"][0].Kind != models.OpDelete {
			t.Errorf("ops = %v, want one delete", ops["f"])
		}
	})

	t.Run("NothingForAlreadyAbsent", func(t *testing.T) {
		// The target says deleted and we never had it
		current := ChangeSet{}
		target := ChangeSet{"f": {creation("f", 100), deletion("f", 100, 500)}}

		ops := ConstructOperations(current, target)
		if len(ops) != 0 {
			t.Errorf("ops = %v, want none", ops)
		}
	})

	t.Run("NothingWhenIdentical", func(t *testing.T) {
		history := []models.Change{creation("f", 100), modification("f", 200)}
		current := ChangeSet{"f": history}
		target := ChangeSet{"f": history}

		ops := ConstructOperations(current, target)
		if len(ops) != 0 {
			t.Errorf("ops = %v, want empty set when target equals current", ops)
		}
	})
}

func TestSquashOperations(t *testing.T) {
	t.Run("KeepsOnlyLastOperation", func(t *testing.T) {
		ops := OperationSet{
			"f": {
				{Kind: models.OpDelete, Path: "f"},
				{Kind: models.OpTransfer, Path: "f"},
			},
		}

		squashed := SquashOperations(ops)
		if len(squashed["f"]) != 1 {
			t.Fatalf("got %d ops, want 1", len(squashed["f"]))
		}
		if squashed["f"][0].Kind != models.OpTransfer {
			t.Errorf("kept %v, want the last operation", squashed["f"][0])
		}
	})

	t.Run("EliminatesPlaceholderRevert", func(t *testing.T) {
		ops := OperationSet{
			"f": {
				{Kind: models.OpTransfer, Path: "f"},
				{Kind: models.OpPlaceholderRevert, Path: "f"},
			},
			"g": {
				{Kind: models.OpPlaceholderRevert, Path: "g"},
			},
		}

		squashed := SquashOperations(ops)
		for _, chain := range squashed {
			for _, op := range chain {
				if op.Kind == models.OpPlaceholderRevert {
					t.Fatalf("placeholder revert survived squashing: %v", op)
				}
			}
		}
		if len(squashed["f"]) != 1 || squashed["f"][0].Kind != models.OpTransfer {
			t.Errorf("f ops = %v, want the transfer", squashed["f"])
		}
		if _, ok := squashed["g"]; ok {
			t.Error("path with only placeholder ops should disappear")
		}
	})

	t.Run("DropsEmptyChains", func(t *testing.T) {
		ops := OperationSet{"f": {}}
		squashed := SquashOperations(ops)
		if len(squashed) != 0 {
			t.Errorf("squashed = %v, want empty", squashed)
		}
	})
}

func TestSortedPathsReverseLexicographic(t *testing.T) {
	// Contents must come before their directory so deletions succeed
	ops := OperationSet{
		"d":   {{Kind: models.OpDelete, Path: "d"}},
		"d/f": {{Kind: models.OpDelete, Path: "d/f"}},
		"a":   {{Kind: models.OpTransfer, Path: "a"}},
		"d/g": {{Kind: models.OpDelete, Path: "d/g"}},
	}

	paths := SortedPaths(ops)
	expected := []string{"d/g", "d/f", "d", "a"}
	if len(paths) != len(expected) {
		t.Fatalf("got %d paths, want %d", len(paths), len(expected))
	}
	for i := range expected {
		if paths[i] != expected[i] {
			t.Errorf("paths[%d] = %s, want %s (full: %v)", i, paths[i], expected[i], paths)
		}
	}
}
