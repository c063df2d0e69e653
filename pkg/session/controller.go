package session

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/sdejongh/fmerge/pkg/changelog"
	"github.com/sdejongh/fmerge/pkg/fsutil"
	"github.com/sdejongh/fmerge/pkg/logging"
	"github.com/sdejongh/fmerge/pkg/merge"
	"github.com/sdejongh/fmerge/pkg/models"
	"github.com/sdejongh/fmerge/pkg/protocol"
	"github.com/sdejongh/fmerge/pkg/terminal"
	"github.com/sdejongh/fmerge/pkg/transport"
	"github.com/sdejongh/fmerge/pkg/version"
)

// Options configures one synchronization session
type Options struct {
	// Root is the local sync root directory
	Root string
	// Version is the version string announced to the peer
	Version string
	// UUID is this instance's identity
	UUID string
	// AskConfirmation prompts before syncing files (disabled by -y)
	AskConfirmation bool
	// Workers is the sync worker pool size
	Workers int
	// TransferTimeout bounds the wait for a single file transfer
	TransferTimeout time.Duration
}

// Controller drives the session lifecycle over one peer connection. Both
// peers run the identical state machine; the protocol is symmetric.
type Controller struct {
	conn     *transport.Conn
	term     terminal.Terminal
	logger   logging.Logger
	opts     Options
	resolver resolver

	state *stateCell

	mu             sync.Mutex
	peerUUID       string
	peerChanges    []models.Change
	localSet       merge.ChangeSet
	pendingChanges merge.ChangeSet
	pendingOps     merge.OperationSet
	resolutions    models.ResolutionSet
	peerFinished   bool
	syncer         *Syncer
	fatalErr       error

	exitCode int
}

// New creates a session controller for an established connection
func New(conn *transport.Conn, term terminal.Terminal, logger logging.Logger, opts Options) *Controller {
	if logger == nil {
		logger = logging.NewNullLogger()
	}
	if opts.Workers < 1 {
		opts.Workers = DefaultSyncWorkers
	}
	if opts.TransferTimeout <= 0 {
		opts.TransferTimeout = DefaultTransferTimeout
	}
	return &Controller{
		conn:     conn,
		term:     term,
		logger:   logger,
		opts:     opts,
		resolver: resolver{term: term},
		state:    newStateCell(),
	}
}

// Run executes the session to completion and returns the process exit
// code: 0 on success, 1 if any file failed to sync or the session died.
func (c *Controller) Run() (int, error) {
	c.conn.Start(c.handleMessage, c.handlePeerDisconnect)

	for {
		current := c.state.get()
		switch current {
		case StateAwaitingVersion:
			c.term.Log("Checking version")
			c.sendVersion()

		case StateSendTree:
			// Waiting for the peer's change log; handler-driven

		case StateResolvingConflicts:
			c.doMerge()

		case StateSyncUserWait:
			if c.opts.AskConfirmation {
				c.askProceed()
			} else {
				c.state.transition(StateSyncUserWait, StateSyncingFiles)
			}

		case StateSyncingFiles:
			c.term.Log("Performing file sync. This may take a while...")
			c.doSync()
			c.term.Log("Waiting for peer to complete")

		case StateFinished:
			// Waiting for the peer's completion notice; handler-driven

		case StateExiting:
			c.conn.Close()
			c.mu.Lock()
			err := c.fatalErr
			code := c.exitCode
			c.mu.Unlock()
			if err != nil && code == 0 {
				code = 1
			}
			return code, err
		}

		c.state.waitChange(current)
	}
}

// ---------------------------------------------------------------------------
// Incoming message dispatch
// ---------------------------------------------------------------------------

func (c *Controller) handleMessage(msg protocol.Message) {
	switch m := msg.(type) {
	case protocol.Version:
		c.handleVersion(m)
	case protocol.Changes:
		c.handleChanges(m)
	case protocol.FileRequest:
		c.handleFileRequest(m)
	case protocol.FileTransfer:
		c.handleFileTransfer(m)
	case protocol.ExitingState:
		c.handleExitingState(m)
	case protocol.ConflictResolutions:
		c.handleResolutions(m)
	case protocol.Ignore:
		// Deliberate no-op
	default:
		c.term.Log(fmt.Sprintf("[Error] Received invalid message with type %s", msg.Type()))
	}
}

func (c *Controller) handlePeerDisconnect(err error) {
	c.logger.Debug(context.Background(), "peer disconnected", logging.Fields{"error": fmt.Sprint(err)})

	switch c.state.get() {
	case StateSyncUserWait:
		// The peer answered "n" on its side
		c.term.Log("Operation cancelled by peer")
		c.state.set(StateExiting)

	case StateFinished, StateExiting:
		// Expected at the end of a session

	default:
		c.term.Log("[Error] Peer disconnected unexpectedly!")
		c.mu.Lock()
		if !errors.Is(err, transport.ErrConnectionTerminated) {
			c.fatalErr = err
		} else {
			c.fatalErr = transport.ErrConnectionTerminated
		}
		c.mu.Unlock()
		c.state.set(StateExiting)
	}
}

func (c *Controller) sendVersion() {
	err := c.conn.Send(protocol.Version{Version: c.opts.Version, UUID: c.opts.UUID})
	if err != nil {
		c.logger.Error(context.Background(), "failed to send version", err, nil)
	}
}

func (c *Controller) handleVersion(msg protocol.Version) {
	c.mu.Lock()
	c.peerUUID = msg.UUID
	c.mu.Unlock()
	c.logger.Info(context.Background(), "peer version received", logging.Fields{
		"version": msg.Version,
		"uuid":    msg.UUID,
	})

	result := version.Check(c.opts.Version, msg.Version)
	switch {
	case result == version.Match:

	case result == version.MinorDiffers:
		c.term.Log(fmt.Sprintf("[Warning] Peer runs a different minor version (%s, local %s)",
			msg.Version, c.opts.Version))

	default:
		c.term.Log(fmt.Sprintf("Version mismatch (%s):", result))
		c.term.Log(" Peer : " + msg.Version)
		c.term.Log(" Local: " + c.opts.Version)
		choice, err := c.term.PromptChoice("Continue?", "yn")
		if errors.Is(err, terminal.ErrPromptCancelled) {
			// The peer accepted the difference first; proceed
		} else if err != nil || choice == 'n' {
			c.state.set(StateExiting)
			return
		}
	}

	if c.state.transition(StateAwaitingVersion, StateSendTree) {
		c.conn.Send(protocol.ExitingState{State: int32(StateAwaitingVersion)})
	}
}

func (c *Controller) handleChanges(msg protocol.Changes) {
	// Handlers run concurrently; the peer's change log may be dispatched
	// while our own version handler is still transitioning out of
	// AwaitingVersion. Wait that window out instead of dropping the log.
	state := c.state.get()
	if state == StateAwaitingVersion {
		state = c.state.waitChange(StateAwaitingVersion)
	}
	if state != StateSendTree {
		c.term.Log("[Warning] Received unexpected 'Changes' message from peer")
		return
	}

	c.mu.Lock()
	c.peerChanges = msg.Changes
	c.mu.Unlock()
	c.term.Log(fmt.Sprintf("Received %d changes from peer", len(msg.Changes)))

	c.state.transition(StateSendTree, StateResolvingConflicts)
}

// handleFileRequest serves one path's content to the peer
func (c *Controller) handleFileRequest(msg protocol.FileRequest) {
	c.logger.Debug(context.Background(), "peer requested file", logging.Fields{"path": msg.Path})
	c.conn.Send(c.buildFileTransfer(msg.Path))
}

// buildFileTransfer reads a local path into a transfer message. A path
// that cannot be provided is answered with an unknown-typed transfer the
// peer records as a failure.
func (c *Controller) buildFileTransfer(relPath string) protocol.FileTransfer {
	failed := protocol.FileTransfer{Path: relPath, FileType: models.TypeUnknown}

	fullPath := filepath.Join(c.opts.Root, filepath.FromSlash(relPath))
	stats, err := fsutil.Stat(fullPath)
	if err != nil || stats == nil {
		c.term.Log(fmt.Sprintf("[Error] Peer requested a file that does not exist! (%s)", relPath))
		return failed
	}

	transfer := protocol.FileTransfer{
		Mtime:    stats.Mtime,
		Atime:    stats.Atime,
		FileType: stats.Type,
		Path:     relPath,
	}

	switch stats.Type {
	case models.TypeDirectory:
		// No payload needed to create a folder

	case models.TypeFile:
		body, err := os.ReadFile(fullPath)
		if err != nil {
			c.term.Log(fmt.Sprintf("[Error] Failed to read data for %s: %v", relPath, err))
			return failed
		}
		transfer.Body = body

	case models.TypeLink:
		target, err := fsutil.ReadLinkTarget(fullPath)
		if err != nil {
			c.term.Log(fmt.Sprintf("[Error] %v", err))
			return failed
		}
		transfer.Body = []byte(target)

	default:
		c.term.Log(fmt.Sprintf("[Error] Failed to process unidentifiable item at path '%s'", relPath))
		return failed
	}

	return transfer
}

func (c *Controller) handleFileTransfer(msg protocol.FileTransfer) {
	if c.state.get() != StateSyncingFiles {
		c.term.Log("[Error] Invalid file transfer message before the syncing state")
		return
	}

	c.mu.Lock()
	syncer := c.syncer
	c.mu.Unlock()
	if syncer == nil {
		c.term.Log("[Error] File transfer received before the sync worker pool exists")
		return
	}
	syncer.SubmitTransfer(msg)
}

func (c *Controller) handleExitingState(msg protocol.ExitingState) {
	switch State(msg.State) {
	case StateAwaitingVersion:
		// The peer accepted the version difference
		c.term.CancelPrompt()
		c.term.Log("Sending file tree")
		c.sendChangeLog()

	case StateSyncUserWait:
		c.term.CancelPrompt()
		if c.state.transition(StateSyncUserWait, StateSyncingFiles) {
			c.term.Log("Continuing (triggered by peer)...")
		}

	case StateSyncingFiles:
		// c.mu serializes this against doSync's own finish bookkeeping,
		// so exactly one side performs the final transition
		c.mu.Lock()
		c.peerFinished = true
		c.state.transition(StateFinished, StateExiting)
		c.mu.Unlock()

	default:
		c.term.Log(fmt.Sprintf("[Error] Received unknown exit state message from peer (%d)", msg.State))
	}
}

func (c *Controller) handleResolutions(msg protocol.ConflictResolutions) {
	c.term.Log("Received conflict resolutions from peer:")
	for path, resolution := range msg.Resolutions {
		c.term.Log(fmt.Sprintf("    %-64s: %s", path, resolution))
	}

	c.mu.Lock()
	c.resolutions = msg.Resolutions
	c.mu.Unlock()

	// The conflict was settled remotely; stop asking locally
	c.term.CancelPrompt()
}

// ---------------------------------------------------------------------------
// State actions
// ---------------------------------------------------------------------------

func (c *Controller) sendChangeLog() {
	changes, err := changelog.Read(c.opts.Root, c.term)
	if err != nil {
		c.logger.Error(context.Background(), "failed to read change log", err, nil)
	}
	c.conn.Send(protocol.Changes{Changes: changes})
}

// doMerge merges the two change logs, looping through conflict
// resolution until the merge succeeds. Whichever peer resolves first
// wins; the other side's prompt is cancelled.
func (c *Controller) doMerge() {
	localChanges, err := changelog.Read(c.opts.Root, c.term)
	if err != nil {
		c.logger.Error(context.Background(), "failed to read change log", err, nil)
	}

	c.mu.Lock()
	c.localSet = merge.SortByFile(localChanges)
	localSet := c.localSet
	peerSet := merge.SortByFile(c.peerChanges)
	c.mu.Unlock()

	for {
		c.mu.Lock()
		resolutions := c.resolutions
		c.mu.Unlock()

		merged, conflicts := merge.Merge(localSet, peerSet, resolutions)
		if len(conflicts) == 0 {
			ops := merge.SquashOperations(merge.ConstructOperations(localSet, merged))

			c.mu.Lock()
			c.pendingChanges = merged
			c.pendingOps = ops
			c.mu.Unlock()

			c.term.Log("Pending operations:")
			for _, path := range merge.SortedPaths(ops) {
				for _, op := range ops[path] {
					c.term.Log("    " + op.String())
				}
			}

			c.state.transition(StateResolvingConflicts, StateSyncUserWait)
			return
		}

		c.term.Log("!!! Merge conflicts occurred for the following paths:")
		for _, conflict := range conflicts {
			c.term.Log("    " + conflict.Path)
		}
		c.term.Log("")

		peerResolved := func() bool {
			c.mu.Lock()
			defer c.mu.Unlock()
			return len(c.resolutions) > 0
		}

		userResolutions, err := c.resolver.ask(conflicts, localSet, peerSet, peerResolved)
		if errors.Is(err, terminal.ErrPromptCancelled) {
			// The peer resolved first; retry with its resolutions
			continue
		}
		if err != nil {
			c.logger.Error(context.Background(), "conflict prompt failed", err, nil)
			c.state.set(StateExiting)
			return
		}

		if len(userResolutions) > 0 {
			c.mu.Lock()
			c.resolutions = userResolutions
			c.mu.Unlock()
			c.conn.Send(protocol.ConflictResolutions{Resolutions: userResolutions.Translate()})
		}
	}
}

// askProceed asks for the final go-ahead before files are touched
func (c *Controller) askProceed() {
	choice, err := c.term.PromptChoice("Proceed with sync?", "yn")
	if errors.Is(err, terminal.ErrPromptCancelled) {
		// The peer confirmed first and forced the transition
		return
	}
	if err == nil && choice == 'y' {
		if c.state.transition(StateSyncUserWait, StateSyncingFiles) {
			c.conn.Send(protocol.ExitingState{State: int32(StateSyncUserWait)})
		}
		return
	}
	c.state.transition(StateSyncUserWait, StateExiting)
}

// doSync runs the worker pool over the pending operations, persists the
// updated change log and notifies the peer
func (c *Controller) doSync() {
	c.mu.Lock()
	ops := c.pendingOps
	pending := c.pendingChanges
	c.mu.Unlock()

	c.term.StartProgress("Syncing", len(ops))

	callback := func(path string, ok bool) {
		if ok {
			c.mu.Lock()
			c.localSet[path] = pending[path]
			c.mu.Unlock()
		}
		c.term.IncrProgress()
	}

	syncer := NewSyncer(c.conn, c.opts.Root, ops, c.term, c.logger,
		c.opts.Workers, c.opts.TransferTimeout, callback)

	c.mu.Lock()
	c.syncer = syncer
	c.mu.Unlock()

	syncer.Run()
	c.term.CompleteProgress()

	// Only successfully applied changes enter the persisted log, so the
	// next run re-detects and retries anything that failed
	c.mu.Lock()
	localSet := c.localSet
	c.mu.Unlock()
	if err := changelog.Write(c.opts.Root, merge.Recombine(localSet)); err != nil {
		c.logger.Error(context.Background(), "failed to persist change log", err, nil)
		c.term.Log(fmt.Sprintf("[Error] Failed to save changes: %v", err))
	} else {
		c.term.Log("Saved changes to disk")
	}

	if count := syncer.ErrorCount(); count > 0 {
		c.mu.Lock()
		c.exitCode = 1
		c.mu.Unlock()
		c.term.Log(fmt.Sprintf("WARNING: %d errors encountered while syncing!", count))
	}

	c.mu.Lock()
	if c.peerFinished {
		c.state.set(StateExiting)
	} else {
		c.state.transition(StateSyncingFiles, StateFinished)
	}
	c.mu.Unlock()

	c.conn.Send(protocol.ExitingState{State: int32(StateSyncingFiles)})
}
