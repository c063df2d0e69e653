// Package protocol defines the wire format: a fixed little-endian frame
// header followed by a self-describing message payload. The protocol is
// symmetric; there is no request/response correlation at the framing
// level, the session layer decides what each peer sends and when.
package protocol

import (
	"github.com/sdejongh/fmerge/pkg/models"
)

// MsgType discriminates messages on the wire. Values are fixed by the
// protocol and must not be reordered.
type MsgType uint16

const (
	MsgUnknown MsgType = iota
	MsgIgnore
	MsgVersion
	MsgChanges
	MsgFileTransfer
	MsgFileRequest
	MsgExitingState
	MsgConflictResolutions
)

// String returns the message type name for protocol traces
func (t MsgType) String() string {
	switch t {
	case MsgIgnore:
		return "Ignore"
	case MsgVersion:
		return "Version"
	case MsgChanges:
		return "Changes"
	case MsgFileTransfer:
		return "FileTransfer"
	case MsgFileRequest:
		return "FileRequest"
	case MsgExitingState:
		return "ExitingState"
	case MsgConflictResolutions:
		return "ConflictResolutions"
	default:
		return "Unknown"
	}
}

// Message is one unit of peer communication
type Message interface {
	Type() MsgType
	encodePayload() ([]byte, error)
}

// Ignore is an empty no-op message
type Ignore struct{}

func (Ignore) Type() MsgType { return MsgIgnore }

// Version announces the sender's software version and instance UUID
type Version struct {
	Version string
	UUID    string
}

func (Version) Type() MsgType { return MsgVersion }

// Changes carries a full serialized change log
type Changes struct {
	Changes []models.Change
}

func (Changes) Type() MsgType { return MsgChanges }

// FileRequest asks the peer to send the content of one path
type FileRequest struct {
	Path string
}

func (FileRequest) Type() MsgType { return MsgFileRequest }

// FileTransfer carries one file's metadata and content. For regular
// files Body is the raw content, for links the target path, for
// directories it is empty. A transfer with FileType unknown signals that
// the sender could not provide the file.
type FileTransfer struct {
	Mtime    int64
	Atime    int64
	FileType models.FileType
	Path     string
	Body     []byte
}

func (FileTransfer) Type() MsgType { return MsgFileTransfer }

// ExitingState notifies the peer that the sender is leaving the given
// session state
type ExitingState struct {
	State int32
}

func (ExitingState) Type() MsgType { return MsgExitingState }

// ConflictResolutions carries the resolutions one side chose, already
// translated into the receiver's frame of reference
type ConflictResolutions struct {
	Resolutions models.ResolutionSet
}

func (ConflictResolutions) Type() MsgType { return MsgConflictResolutions }
