// Package changelog persists the per-root history of file changes as a
// line-oriented CSV database under the root's state directory.
package changelog

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/sdejongh/fmerge/pkg/fsutil"
	"github.com/sdejongh/fmerge/pkg/models"
	"github.com/sdejongh/fmerge/pkg/terminal"
	"github.com/sdejongh/fmerge/pkg/tree"
)

// FileName is the change database file inside the state directory
const FileName = "filechanges.db"

// Path returns the change database path for a sync root
func Path(root string) string {
	return filepath.Join(root, tree.StateDirName, FileName)
}

// Encode writes changes as CSV records followed by the terminator record.
// One record per line: kind,earliest,latest,filetype,path
func Encode(w io.Writer, changes []models.Change) error {
	bw := bufio.NewWriter(w)
	for _, c := range changes {
		if err := encodeRecord(bw, c); err != nil {
			return err
		}
	}
	terminator := models.Change{Kind: models.ChangeTerminateList}
	if err := encodeRecord(bw, terminator); err != nil {
		return err
	}
	return bw.Flush()
}

func encodeRecord(w io.Writer, c models.Change) error {
	_, err := fmt.Fprintf(w, "%d,%d,%d,%d,%s\n",
		int(c.Kind), c.Earliest, c.Latest, int(c.File.Type), c.File.Path)
	return err
}

// Decode reads CSV change records until the terminator record or end of
// input. Malformed lines are reported and skipped, never fatal.
func Decode(r io.Reader, term terminal.Terminal) ([]models.Change, error) {
	var changes []models.Change

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		if line == "" {
			continue
		}

		change, err := decodeRecord(line)
		if err != nil {
			term.Log(fmt.Sprintf("[Warning] Could not parse change in line %d: %v", lineNo, err))
			continue
		}
		if change.Kind == models.ChangeTerminateList {
			return changes, nil
		}
		changes = append(changes, change)
	}
	if err := scanner.Err(); err != nil {
		return changes, fmt.Errorf("reading change log: %w", err)
	}
	return changes, nil
}

func decodeRecord(line string) (models.Change, error) {
	// The path is the final field and may itself contain commas
	fields := strings.SplitN(line, ",", 5)
	if len(fields) != 5 {
		return models.Change{}, fmt.Errorf("expected 5 fields, got %d", len(fields))
	}

	kind, err := strconv.Atoi(fields[0])
	if err != nil {
		return models.Change{}, fmt.Errorf("bad change kind %q", fields[0])
	}
	earliest, err := strconv.ParseInt(fields[1], 10, 64)
	if err != nil {
		return models.Change{}, fmt.Errorf("bad earliest time %q", fields[1])
	}
	latest, err := strconv.ParseInt(fields[2], 10, 64)
	if err != nil {
		return models.Change{}, fmt.Errorf("bad latest time %q", fields[2])
	}
	ftype, err := strconv.Atoi(fields[3])
	if err != nil {
		return models.Change{}, fmt.Errorf("bad file type %q", fields[3])
	}

	return models.Change{
		Kind:     models.ChangeKind(kind),
		Earliest: earliest,
		Latest:   latest,
		File: models.File{
			Path: fields[4],
			Type: models.FileType(ftype),
		},
	}, nil
}

// Read loads the change log for a sync root. A missing database yields an
// empty log.
func Read(root string, term terminal.Terminal) ([]models.Change, error) {
	f, err := os.Open(Path(root))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("open change log: %w", err)
	}
	defer f.Close()

	return Decode(f, term)
}

// Write replaces the change log for a sync root with the given history.
// The write is atomic: a temp file is renamed over the database.
func Write(root string, changes []models.Change) error {
	if err := fsutil.EnsureDirAll(filepath.Join(root, tree.StateDirName)); err != nil {
		return err
	}

	path := Path(root)
	tmpPath := path + ".tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("create change log: %w", err)
	}

	if err := Encode(f, changes); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write change log: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close change log: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("finalize change log: %w", err)
	}
	return nil
}

// Append reads the existing log, appends the new changes and rewrites the
// database
func Append(root string, newChanges []models.Change, term terminal.Terminal) error {
	all, err := Read(root, term)
	if err != nil {
		return err
	}
	all = append(all, newChanges...)
	return Write(root, all)
}

// DetectNewChanges scans the sync root, reconstructs the historical tree
// from the persisted log and returns the changes that happened since
func DetectNewChanges(root string, term terminal.Terminal) ([]models.Change, error) {
	current, err := tree.BuildFromDisk(root, term)
	if err != nil {
		return nil, err
	}

	existing, err := Read(root, term)
	if err != nil {
		return nil, err
	}

	historical := tree.FromChanges(existing)
	return tree.Diff(historical, current, fsutil.Timestamp(), term), nil
}
