package tree

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sdejongh/fmerge/pkg/models"
	"github.com/sdejongh/fmerge/pkg/terminal"
)

func fileNode(name string, mtime int64) *MetadataNode {
	return &MetadataNode{Name: name, Mtime: mtime, Type: models.TypeFile}
}

func TestDiffIdenticalTrees(t *testing.T) {
	build := func() *DirNode {
		root := NewRoot()
		root.InsertDir([]string{"d"}, NewDir("d", 10))
		root.InsertFile([]string{"d", "f"}, fileNode("f", 20))
		root.InsertFile([]string{"g"}, fileNode("g", 30))
		return root
	}

	changes := Diff(build(), build(), 1000, terminal.NewNull())
	if len(changes) != 0 {
		t.Errorf("diff of identical trees = %v, want empty", changes)
	}
}

func TestDiffModification(t *testing.T) {
	from := NewRoot()
	from.InsertFile([]string{"f"}, fileNode("f", 100))

	to := NewRoot()
	to.InsertFile([]string{"f"}, fileNode("f", 200))

	changes := Diff(from, to, 1000, terminal.NewNull())
	if len(changes) != 1 {
		t.Fatalf("got %d changes, want 1: %v", len(changes), changes)
	}
	c := changes[0]
	if c.Kind != models.ChangeModification {
		t.Errorf("kind = %v, want modification", c.Kind)
	}
	if c.Earliest != 200 {
		t.Errorf("earliest = %d, want 200 (the new mtime)", c.Earliest)
	}
	if c.File.Path != "f" {
		t.Errorf("path = %s, want f", c.File.Path)
	}
}

func TestDiffClockSkew(t *testing.T) {
	// A file that is older on disk than in history is suspicious; warn and
	// emit nothing
	from := NewRoot()
	from.InsertFile([]string{"f"}, fileNode("f", 500))

	to := NewRoot()
	to.InsertFile([]string{"f"}, fileNode("f", 100))

	changes := Diff(from, to, 1000, terminal.NewNull())
	if len(changes) != 0 {
		t.Errorf("got %v, want no changes for clock skew", changes)
	}
}

func TestDiffDeletion(t *testing.T) {
	from := NewRoot()
	from.InsertFile([]string{"f"}, fileNode("f", 400))

	to := NewRoot()

	changes := Diff(from, to, 1234, terminal.NewNull())
	if len(changes) != 1 {
		t.Fatalf("got %d changes, want 1", len(changes))
	}
	c := changes[0]
	if c.Kind != models.ChangeDeletion {
		t.Errorf("kind = %v, want deletion", c.Kind)
	}
	if c.Earliest != 400 {
		t.Errorf("earliest = %d, want 400 (last observed mtime)", c.Earliest)
	}
	if c.Latest != 1234 {
		t.Errorf("latest = %d, want the scan timestamp", c.Latest)
	}
}

func TestDiffCreation(t *testing.T) {
	from := NewRoot()

	to := NewRoot()
	to.InsertDir([]string{"d"}, NewDir("d", 50))
	to.InsertFile([]string{"d", "new"}, fileNode("new", 60))

	changes := Diff(from, to, 1000, terminal.NewNull())
	if len(changes) != 2 {
		t.Fatalf("got %d changes, want 2: %v", len(changes), changes)
	}
	for _, c := range changes {
		if c.Kind != models.ChangeCreation {
			t.Errorf("kind = %v, want creation", c.Kind)
		}
		if c.Latest != 0 {
			t.Errorf("latest = %d, want 0 for creation", c.Latest)
		}
	}
}

func TestDiffTypeChange(t *testing.T) {
	// A file replaced by a symlink with the same name: the old revision is
	// deleted and a new one introduced
	from := NewRoot()
	from.InsertFile([]string{"f"}, fileNode("f", 100))

	to := NewRoot()
	to.InsertFile([]string{"f"}, &MetadataNode{Name: "f", Mtime: 300, Type: models.TypeLink})

	changes := Diff(from, to, 1000, terminal.NewNull())
	if len(changes) != 2 {
		t.Fatalf("got %d changes, want 2: %v", len(changes), changes)
	}
	if changes[0].Kind != models.ChangeDeletion || changes[0].File.Type != models.TypeFile {
		t.Errorf("first change = %v, want deletion of the old file", changes[0])
	}
	if changes[1].Kind != models.ChangeModification || changes[1].File.Type != models.TypeLink {
		t.Errorf("second change = %v, want modification introducing the link", changes[1])
	}
}

func TestDiffDirectoryUnchanged(t *testing.T) {
	// Directory mtime drift must not produce changes
	from := NewRoot()
	from.InsertDir([]string{"d"}, NewDir("d", 100))

	to := NewRoot()
	to.InsertDir([]string{"d"}, NewDir("d", 500))

	changes := Diff(from, to, 1000, terminal.NewNull())
	if len(changes) != 0 {
		t.Errorf("got %v, want no changes for directory mtime drift", changes)
	}
}

func TestFromChanges(t *testing.T) {
	changes := []models.Change{
		{Kind: models.ChangeCreation, Earliest: 10, File: models.File{Path: "d", Type: models.TypeDirectory}},
		{Kind: models.ChangeCreation, Earliest: 20, File: models.File{Path: "d/f", Type: models.TypeFile}},
		{Kind: models.ChangeModification, Earliest: 30, File: models.File{Path: "d/f", Type: models.TypeFile}},
		{Kind: models.ChangeCreation, Earliest: 40, File: models.File{Path: "gone", Type: models.TypeFile}},
		{Kind: models.ChangeDeletion, Earliest: 40, Latest: 50, File: models.File{Path: "gone", Type: models.TypeFile}},
	}

	root := FromChanges(changes)

	f := root.LookupFile([]string{"d", "f"})
	if f == nil {
		t.Fatal("d/f missing from reconstructed tree")
	}
	if f.Mtime != 30 {
		t.Errorf("d/f mtime = %d, want 30 (latest modification)", f.Mtime)
	}
	if root.LookupFile([]string{"gone"}) != nil {
		t.Error("deleted file present in reconstructed tree")
	}
	if root.LookupDir([]string{"d"}) == nil {
		t.Error("directory missing from reconstructed tree")
	}
}

func TestFromChangesOutOfOrderParents(t *testing.T) {
	// A child recorded before its parent: placeholder fixed up later
	changes := []models.Change{
		{Kind: models.ChangeCreation, Earliest: 20, File: models.File{Path: "d/f", Type: models.TypeFile}},
		{Kind: models.ChangeCreation, Earliest: 10, File: models.File{Path: "d", Type: models.TypeDirectory}},
	}

	root := FromChanges(changes)

	d := root.LookupDir([]string{"d"})
	if d == nil {
		t.Fatal("directory missing")
	}
	if d.Metadata.Mtime != 10 {
		t.Errorf("directory mtime = %d, want 10", d.Metadata.Mtime)
	}
	if root.LookupFile([]string{"d", "f"}) == nil {
		t.Error("file missing after parent fix-up")
	}
}

func TestBuildFromDisk(t *testing.T) {
	dir := t.TempDir()

	if err := os.MkdirAll(filepath.Join(dir, "sub"), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "sub", "file.txt"), []byte("content"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.Symlink("sub/file.txt", filepath.Join(dir, "link")); err != nil {
		t.Fatal(err)
	}
	// The state directory must be invisible to the scan
	if err := os.MkdirAll(filepath.Join(dir, StateDirName), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, StateDirName, "filechanges.db"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	root, err := BuildFromDisk(dir, terminal.NewNull())
	if err != nil {
		t.Fatalf("BuildFromDisk() error = %v", err)
	}

	if root.LookupDir([]string{"sub"}) == nil {
		t.Error("sub directory missing")
	}
	f := root.LookupFile([]string{"sub", "file.txt"})
	if f == nil {
		t.Fatal("sub/file.txt missing")
	}
	if f.Type != models.TypeFile {
		t.Errorf("type = %v, want file", f.Type)
	}

	link := root.LookupFile([]string{"link"})
	if link == nil {
		t.Fatal("symlink missing")
	}
	if link.Type != models.TypeLink {
		t.Errorf("link type = %v, want link", link.Type)
	}

	if root.LookupDir([]string{StateDirName}) != nil {
		t.Error("state directory leaked into the tree")
	}
}

func TestScanThenDiffRoundTrip(t *testing.T) {
	// diff(reconstruct(changes-of(T)), T) must be empty
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "a"), []byte("a"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(filepath.Join(dir, "d"), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "d", "b"), []byte("b"), 0644); err != nil {
		t.Fatal(err)
	}

	term := terminal.NewNull()
	scanned, err := BuildFromDisk(dir, term)
	if err != nil {
		t.Fatal(err)
	}

	initial := Diff(NewRoot(), scanned, 1000, term)
	if len(initial) != 3 {
		t.Fatalf("initial diff has %d changes, want 3: %v", len(initial), initial)
	}

	reconstructed := FromChanges(initial)
	again := Diff(reconstructed, scanned, 2000, term)
	if len(again) != 0 {
		t.Errorf("diff after reconstruction = %v, want empty", again)
	}
}
