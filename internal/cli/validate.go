package cli

import (
	"fmt"
	"os"
)

// validateFlags checks the mode selection and the sync root
func validateFlags(root string) error {
	if flags.Server && flags.Client != "" {
		return fmt.Errorf("cannot set both server and client mode")
	}
	if !flags.Server && flags.Client == "" {
		return fmt.Errorf("select a mode: -s to listen or -c <host> to connect")
	}

	info, err := os.Stat(root)
	if os.IsNotExist(err) {
		return fmt.Errorf("sync root does not exist: %s", root)
	}
	if err != nil {
		return fmt.Errorf("failed to access sync root: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("sync root is not a directory: %s", root)
	}

	return nil
}
