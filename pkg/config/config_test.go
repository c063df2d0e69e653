package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
)

func TestLoadSessionFirstRun(t *testing.T) {
	root := t.TempDir()

	session, err := LoadSession(root)
	if err != nil {
		t.Fatalf("LoadSession() error = %v", err)
	}
	if _, err := uuid.Parse(session.UUID); err != nil {
		t.Errorf("generated uuid %q is invalid: %v", session.UUID, err)
	}

	// The identity must have been persisted
	if _, err := os.Stat(filepath.Join(root, ".fmerge", SessionFileName)); err != nil {
		t.Errorf("session file not created: %v", err)
	}

	// A second load returns the same identity
	again, err := LoadSession(root)
	if err != nil {
		t.Fatal(err)
	}
	if again.UUID != session.UUID {
		t.Errorf("uuid changed across loads: %s != %s", again.UUID, session.UUID)
	}
}

func TestLoadSessionRejectsBadUUID(t *testing.T) {
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, ".fmerge"), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(SessionPath(root), []byte(`{"uuid":"not-a-uuid"}`), 0644); err != nil {
		t.Fatal(err)
	}

	if _, err := LoadSession(root); err == nil {
		t.Error("LoadSession() should reject an invalid uuid")
	}
}

func TestDefaultAppIsValid(t *testing.T) {
	if err := DefaultApp().Validate(); err != nil {
		t.Errorf("default configuration invalid: %v", err)
	}
}

func TestAppValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*App)
	}{
		{"BadPort", func(a *App) { a.Network.Port = 0 }},
		{"PortTooLarge", func(a *App) { a.Network.Port = 70000 }},
		{"ZeroWorkers", func(a *App) { a.Sync.Workers = 0 }},
		{"ZeroTimeout", func(a *App) { a.Sync.TransferTimeout = 0 }},
		{"BadLogFormat", func(a *App) { a.Logging.Format = "xml" }},
		{"BadLogLevel", func(a *App) { a.Logging.Level = "verbose" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultApp()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("Validate() should fail")
			}
		})
	}
}

func TestAppSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	cfg := DefaultApp()
	cfg.Network.Port = 9000
	cfg.Sync.Workers = 4
	cfg.Logging.Level = "debug"

	if err := SaveApp(cfg, path); err != nil {
		t.Fatalf("SaveApp() error = %v", err)
	}

	loaded, err := LoadApp(path)
	if err != nil {
		t.Fatalf("LoadApp() error = %v", err)
	}
	if loaded.Network.Port != 9000 {
		t.Errorf("port = %d, want 9000", loaded.Network.Port)
	}
	if loaded.Sync.Workers != 4 {
		t.Errorf("workers = %d, want 4", loaded.Sync.Workers)
	}
	if loaded.Logging.Level != "debug" {
		t.Errorf("level = %s, want debug", loaded.Logging.Level)
	}
}

func TestLoadAppPartialFile(t *testing.T) {
	// Unspecified values keep their defaults
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("sync:\n  workers: 2\n"), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadApp(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Sync.Workers != 2 {
		t.Errorf("workers = %d, want 2", cfg.Sync.Workers)
	}
	if cfg.Network.Port != 4512 {
		t.Errorf("port = %d, want default 4512", cfg.Network.Port)
	}
	if cfg.Sync.TransferTimeout != 300 {
		t.Errorf("timeout = %d, want default 300", cfg.Sync.TransferTimeout)
	}
}
