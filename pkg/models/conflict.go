package models

// Conflict names a path whose two histories diverge in a way that cannot
// be fast-forwarded
type Conflict struct {
	// Path is the key of the conflicting entry in the associated change set
	Path string
}

// ConflictResolution defines how a conflict between two file histories is
// resolved. The numeric values are fixed by the wire protocol.
type ConflictResolution int32

const (
	// KeepLocal keeps this side's history for the path
	KeepLocal ConflictResolution = 0
	// KeepRemote keeps the peer's history for the path
	KeepRemote ConflictResolution = 1
)

// String returns a human-readable name for the resolution
func (r ConflictResolution) String() string {
	switch r {
	case KeepLocal:
		return "keep local"
	case KeepRemote:
		return "keep remote"
	default:
		return "invalid"
	}
}

// ResolutionSet maps conflicted paths to the chosen resolution
type ResolutionSet map[string]ConflictResolution

// Translate converts a resolution set into the peer's frame of reference:
// KeepLocal and KeepRemote swap, nothing else changes. Both peers then
// derive identical merge results.
func (s ResolutionSet) Translate() ResolutionSet {
	peer := make(ResolutionSet, len(s))
	for path, resolution := range s {
		switch resolution {
		case KeepLocal:
			peer[path] = KeepRemote
		case KeepRemote:
			peer[path] = KeepLocal
		}
	}
	return peer
}
