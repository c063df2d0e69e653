// Package config persists the per-root session identity and loads the
// optional application configuration file.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/sdejongh/fmerge/pkg/fsutil"
	"github.com/sdejongh/fmerge/pkg/tree"
)

// SessionFileName is the identity file inside the root's state directory
const SessionFileName = "config.json"

// Session is the per-root identity, generated on first run and exchanged
// with the peer during the version handshake
type Session struct {
	UUID string `json:"uuid"`
}

// SessionPath returns the identity file path for a sync root
func SessionPath(root string) string {
	return filepath.Join(root, tree.StateDirName, SessionFileName)
}

// LoadSession reads the session identity for a root, generating and
// persisting a fresh UUID on first run
func LoadSession(root string) (*Session, error) {
	if err := fsutil.EnsureDirAll(filepath.Join(root, tree.StateDirName)); err != nil {
		return nil, err
	}

	path := SessionPath(root)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			session := &Session{UUID: uuid.New().String()}
			if err := SaveSession(root, session); err != nil {
				return nil, err
			}
			return session, nil
		}
		return nil, fmt.Errorf("read session config: %w", err)
	}

	var session Session
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("parse session config: %w", err)
	}
	if _, err := uuid.Parse(session.UUID); err != nil {
		return nil, fmt.Errorf("session config holds invalid uuid %q: %w", session.UUID, err)
	}
	return &session, nil
}

// SaveSession writes the session identity atomically
func SaveSession(root string, session *Session) error {
	data, err := json.MarshalIndent(session, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal session config: %w", err)
	}

	path := SessionPath(root)
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return fmt.Errorf("write session config: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("finalize session config: %w", err)
	}
	return nil
}
