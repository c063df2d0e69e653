// Package cli wires the command line interface to a synchronization
// session.
package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/sdejongh/fmerge/pkg/changelog"
	"github.com/sdejongh/fmerge/pkg/config"
	"github.com/sdejongh/fmerge/pkg/logging"
	"github.com/sdejongh/fmerge/pkg/session"
	"github.com/sdejongh/fmerge/pkg/terminal"
	"github.com/sdejongh/fmerge/pkg/transport"
	"github.com/sdejongh/fmerge/pkg/version"
)

// Flags holds the root command flag values
type Flags struct {
	Server     bool
	Client     string
	Yes        bool
	Debug      bool
	ConfigFile string
}

var flags Flags

// NewRootCommand creates the fmerge root command
func NewRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fmerge (-s | -c <host>) [flags] <path>",
		Short: "Peer-to-peer bidirectional file synchronizer",
		Long: `fmerge synchronizes file changes bidirectionally between two folders
over the network. One instance listens (-s), the other connects (-c).
Both sides exchange their change histories, merge them and transfer file
contents until the trees are identical.`,
		Version:       version.Current,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runRoot,
	}

	cmd.Flags().BoolVarP(&flags.Server, "server", "s", false, "start in server mode and wait for a peer")
	cmd.Flags().StringVarP(&flags.Client, "client", "c", "", "start in client mode and connect to the given host")
	cmd.Flags().BoolVarP(&flags.Yes, "yes", "y", false, "do not prompt for confirmation before syncing (be careful!)")
	cmd.Flags().BoolVarP(&flags.Debug, "debug", "d", false, "enable protocol-level debug output")
	cmd.Flags().StringVar(&flags.ConfigFile, "config", "", "config file (default is $HOME/.config/fmerge/config.yaml)")

	return cmd
}

func runRoot(cmd *cobra.Command, args []string) error {
	root := args[0]

	if err := validateFlags(root); err != nil {
		return err
	}

	cfg, err := config.LoadApp(flags.ConfigFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger, err := buildLogger(cfg)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer logger.Close()

	term := terminal.NewConsole(flags.Debug)

	// The per-root identity is created on first run and exchanged during
	// the handshake
	identity, err := config.LoadSession(root)
	if err != nil {
		return err
	}

	// Record everything that changed since the last run before talking to
	// the peer
	newChanges, err := changelog.DetectNewChanges(root, term)
	if err != nil {
		return err
	}
	if err := changelog.Append(root, newChanges, term); err != nil {
		return err
	}
	if len(newChanges) > 0 {
		term.Log(fmt.Sprintf("Detected %d local changes since last run", len(newChanges)))
	}

	conn, err := establishConnection(cfg, term, logger)
	if err != nil {
		return err
	}
	conn.SetBandwidthLimit(cfg.Network.BandwidthLimit)

	controller := session.New(conn, term, logger, session.Options{
		Root:            root,
		Version:         version.Current,
		UUID:            identity.UUID,
		AskConfirmation: !flags.Yes,
		Workers:         cfg.Sync.Workers,
		TransferTimeout: time.Duration(cfg.Sync.TransferTimeout) * time.Second,
	})

	code, err := controller.Run()
	if err != nil {
		return err
	}
	if code != 0 {
		os.Exit(code)
	}
	return nil
}

// establishConnection listens or dials depending on the selected mode
func establishConnection(cfg *config.App, term terminal.Terminal, logger logging.Logger) (*transport.Conn, error) {
	if flags.Server {
		term.Log("Waiting for peer connections...")
		conn, err := transport.Listen(cfg.Network.Port, logger)
		if err != nil {
			return nil, err
		}
		term.Log("Accepted connection from " + conn.RemoteAddr())
		return conn, nil
	}

	conn, err := transport.Dial(flags.Client, cfg.Network.Port, logger)
	if err != nil {
		return nil, err
	}
	term.Log("Connected to " + conn.RemoteAddr())
	return conn, nil
}

// buildLogger creates the structured logger from the configuration; -d
// forces debug level and falls back to stderr when no file is configured
func buildLogger(cfg *config.App) (logging.Logger, error) {
	level := logging.ParseLevel(cfg.Logging.Level)
	if flags.Debug {
		level = logging.DebugLevel
	}

	if cfg.Logging.File == "" {
		if flags.Debug {
			return logging.NewWriterLogger(os.Stderr, level), nil
		}
		return logging.NewNullLogger(), nil
	}

	format := logging.FormatText
	if cfg.Logging.Format == "json" {
		format = logging.FormatJSON
	}

	return logging.NewFileLogger(logging.FileLoggerConfig{
		Path:    cfg.Logging.File,
		Format:  format,
		Level:   level,
		MaxSize: 10 * 1024 * 1024,
	})
}
