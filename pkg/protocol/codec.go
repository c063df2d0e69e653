package protocol

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"sort"
	"strings"

	"github.com/sdejongh/fmerge/pkg/changelog"
	"github.com/sdejongh/fmerge/pkg/models"
	"github.com/sdejongh/fmerge/pkg/terminal"
)

// HeaderSize is the fixed frame header length: type uint16 + payload
// length uint64, both little-endian
const HeaderSize = 10

// Header is the fixed preamble of every frame
type Header struct {
	Type   MsgType
	Length uint64
}

// EncodeHeader serializes a frame header
func EncodeHeader(h Header) [HeaderSize]byte {
	var buf [HeaderSize]byte
	binary.LittleEndian.PutUint16(buf[0:2], uint16(h.Type))
	binary.LittleEndian.PutUint64(buf[2:10], h.Length)
	return buf
}

// DecodeHeader parses a frame header
func DecodeHeader(buf [HeaderSize]byte) Header {
	return Header{
		Type:   MsgType(binary.LittleEndian.Uint16(buf[0:2])),
		Length: binary.LittleEndian.Uint64(buf[2:10]),
	}
}

// Encode serializes a complete frame: header plus payload
func Encode(msg Message) ([]byte, error) {
	payload, err := msg.encodePayload()
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", msg.Type(), err)
	}

	header := EncodeHeader(Header{Type: msg.Type(), Length: uint64(len(payload))})
	return append(header[:], payload...), nil
}

// Decode parses a message payload of the given type. Unknown types and
// truncated payloads return an error; the caller logs and skips the
// frame, the session continues.
func Decode(t MsgType, payload []byte) (Message, error) {
	switch t {
	case MsgIgnore:
		return Ignore{}, nil
	case MsgVersion:
		return decodeVersion(payload)
	case MsgChanges:
		return decodeChanges(payload)
	case MsgFileRequest:
		return FileRequest{Path: string(payload)}, nil
	case MsgFileTransfer:
		return decodeFileTransfer(payload)
	case MsgExitingState:
		return decodeExitingState(payload)
	case MsgConflictResolutions:
		return decodeResolutions(payload)
	default:
		return nil, fmt.Errorf("unknown message type %d", uint16(t))
	}
}

// ---------------------------------------------------------------------------
// Per-message payload codecs
// ---------------------------------------------------------------------------

func (Ignore) encodePayload() ([]byte, error) {
	return nil, nil
}

func (m Version) encodePayload() ([]byte, error) {
	return []byte(m.Version + ";" + m.UUID), nil
}

func decodeVersion(payload []byte) (Message, error) {
	parts := strings.SplitN(string(payload), ";", 2)
	if len(parts) != 2 {
		return nil, fmt.Errorf("version payload missing separator")
	}
	return Version{Version: parts[0], UUID: parts[1]}, nil
}

func (m Changes) encodePayload() ([]byte, error) {
	var buf bytes.Buffer
	if err := changelog.Encode(&buf, m.Changes); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeChanges(payload []byte) (Message, error) {
	changes, err := changelog.Decode(bytes.NewReader(payload), terminal.NewNull())
	if err != nil {
		return nil, err
	}
	return Changes{Changes: changes}, nil
}

func (m FileRequest) encodePayload() ([]byte, error) {
	return []byte(m.Path), nil
}

func (m FileTransfer) encodePayload() ([]byte, error) {
	if len(m.Path) > 0xFFFF {
		return nil, fmt.Errorf("path too long: %d bytes", len(m.Path))
	}

	buf := make([]byte, 0, 19+len(m.Path)+len(m.Body))
	buf = binary.LittleEndian.AppendUint64(buf, uint64(m.Mtime))
	buf = binary.LittleEndian.AppendUint64(buf, uint64(m.Atime))
	buf = append(buf, byte(m.FileType))
	buf = binary.LittleEndian.AppendUint16(buf, uint16(len(m.Path)))
	buf = append(buf, m.Path...)
	buf = append(buf, m.Body...)
	return buf, nil
}

func decodeFileTransfer(payload []byte) (Message, error) {
	if len(payload) < 19 {
		return nil, fmt.Errorf("file transfer payload too short: %d bytes", len(payload))
	}

	m := FileTransfer{
		Mtime:    int64(binary.LittleEndian.Uint64(payload[0:8])),
		Atime:    int64(binary.LittleEndian.Uint64(payload[8:16])),
		FileType: models.FileType(payload[16]),
	}
	pathLen := int(binary.LittleEndian.Uint16(payload[17:19]))
	if len(payload) < 19+pathLen {
		return nil, fmt.Errorf("file transfer payload shorter than path length")
	}
	m.Path = string(payload[19 : 19+pathLen])
	m.Body = payload[19+pathLen:]
	return m, nil
}

func (m ExitingState) encodePayload() ([]byte, error) {
	buf := make([]byte, 4)
	binary.LittleEndian.PutUint32(buf, uint32(m.State))
	return buf, nil
}

func decodeExitingState(payload []byte) (Message, error) {
	if len(payload) < 4 {
		return nil, fmt.Errorf("exiting state payload too short: %d bytes", len(payload))
	}
	return ExitingState{State: int32(binary.LittleEndian.Uint32(payload[0:4]))}, nil
}

func (m ConflictResolutions) encodePayload() ([]byte, error) {
	// Emit keys in sorted order so the encoding is deterministic
	paths := make([]string, 0, len(m.Resolutions))
	for path := range m.Resolutions {
		paths = append(paths, path)
	}
	sort.Strings(paths)

	var buf []byte
	for _, path := range paths {
		if len(path) > 0xFFFF {
			return nil, fmt.Errorf("resolution key too long: %d bytes", len(path))
		}
		buf = binary.LittleEndian.AppendUint16(buf, uint16(len(path)))
		buf = append(buf, path...)
		buf = binary.LittleEndian.AppendUint32(buf, uint32(m.Resolutions[path]))
	}
	return buf, nil
}

func decodeResolutions(payload []byte) (Message, error) {
	resolutions := make(models.ResolutionSet)

	for len(payload) > 0 {
		if len(payload) < 2 {
			return nil, fmt.Errorf("resolution record truncated")
		}
		keyLen := int(binary.LittleEndian.Uint16(payload[0:2]))
		if len(payload) < 2+keyLen+4 {
			return nil, fmt.Errorf("resolution record truncated")
		}
		key := string(payload[2 : 2+keyLen])
		choice := models.ConflictResolution(binary.LittleEndian.Uint32(payload[2+keyLen : 2+keyLen+4]))
		if choice != models.KeepLocal && choice != models.KeepRemote {
			return nil, fmt.Errorf("invalid resolution choice %d for %s", choice, key)
		}
		resolutions[key] = choice
		payload = payload[2+keyLen+4:]
	}

	return ConflictResolutions{Resolutions: resolutions}, nil
}
