package session

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sdejongh/fmerge/pkg/fsutil"
	"github.com/sdejongh/fmerge/pkg/logging"
	"github.com/sdejongh/fmerge/pkg/merge"
	"github.com/sdejongh/fmerge/pkg/models"
	"github.com/sdejongh/fmerge/pkg/protocol"
	"github.com/sdejongh/fmerge/pkg/terminal"
	"github.com/sdejongh/fmerge/pkg/transport"
)

const (
	// DefaultSyncWorkers is the number of parallel sync workers
	DefaultSyncWorkers = 8
	// DefaultTransferTimeout bounds the wait for a single file transfer
	DefaultTransferTimeout = 300 * time.Second
	// transferPollInterval is the logging granularity while waiting
	transferPollInterval = 5 * time.Second
)

// CompletionCallback reports the outcome of one processed path. Called
// serially; implementations need not be thread safe.
type CompletionCallback func(path string, ok bool)

// Syncer drains the operation set with a bounded worker pool. Deletions
// are applied locally; transfers request the file from the peer and
// block on a per-path barrier until the content arrives.
type Syncer struct {
	conn    *transport.Conn
	root    string
	term    terminal.Terminal
	logger  logging.Logger
	workers int
	timeout time.Duration

	mu    sync.Mutex
	queue []string
	ops   merge.OperationSet

	barriers   *barrierRegistry
	errorCount atomic.Int32

	callback CompletionCallback
	cbMu     sync.Mutex
}

// NewSyncer prepares a worker pool over the given operation set. The
// queue drains in reverse lexicographic path order so a directory's
// contents are handled before the directory itself.
func NewSyncer(conn *transport.Conn, root string, ops merge.OperationSet,
	term terminal.Terminal, logger logging.Logger,
	workers int, timeout time.Duration, callback CompletionCallback) *Syncer {

	if workers < 1 {
		workers = DefaultSyncWorkers
	}
	if timeout <= 0 {
		timeout = DefaultTransferTimeout
	}
	if logger == nil {
		logger = logging.NewNullLogger()
	}

	return &Syncer{
		conn:     conn,
		root:     root,
		term:     term,
		logger:   logger,
		workers:  workers,
		timeout:  timeout,
		queue:    merge.SortedPaths(ops),
		ops:      ops,
		barriers: newBarrierRegistry(),
		callback: callback,
	}
}

// Run processes the whole operation set and blocks until every worker
// has finished
func (s *Syncer) Run() {
	var wg sync.WaitGroup
	for i := 0; i < s.workers; i++ {
		wg.Add(1)
		go func(tid int) {
			defer wg.Done()
			s.worker(tid)
		}(i)
	}
	wg.Wait()

	if s.barriers.count() != 0 {
		s.logger.Error(context.Background(), "barrier registry not empty after sync", nil, logging.Fields{
			"remaining": s.barriers.count(),
		})
	}
}

// ErrorCount returns the number of paths that failed to sync
func (s *Syncer) ErrorCount() int {
	return int(s.errorCount.Load())
}

func (s *Syncer) worker(tid int) {
	ctx := context.Background()

	for {
		s.mu.Lock()
		if len(s.queue) == 0 {
			s.mu.Unlock()
			return
		}
		path := s.queue[0]
		s.queue = s.queue[1:]
		ops := s.ops[path]
		s.mu.Unlock()

		s.logger.Debug(ctx, "processing file", logging.Fields{"worker": tid, "path": path})

		ok := s.processFile(ops)
		if !ok {
			s.errorCount.Add(1)
			s.term.Log(fmt.Sprintf("[Error] File %s is in a conflicted state!", path))
		}

		s.cbMu.Lock()
		if s.callback != nil {
			s.callback(path, ok)
		}
		s.cbMu.Unlock()
	}
}

// processFile applies one path's operation chain. Every operation must
// succeed for the new history to be reproduced accurately; a failure
// leaves the path dirty and it is re-detected on the next run.
func (s *Syncer) processFile(ops []models.FileOperation) bool {
	for _, op := range ops {
		switch op.Kind {
		case models.OpDelete:
			if err := fsutil.RemovePath(s.localPath(op.Path)); err != nil {
				s.term.Log(fmt.Sprintf("[Error] %v", err))
				return false
			}

		case models.OpTransfer:
			if !s.transferFile(op.Path) {
				return false
			}

		case models.OpCreateFolder:
			if err := fsutil.EnsureDirAll(s.localPath(op.Path)); err != nil {
				s.term.Log(fmt.Sprintf("[Error] %v", err))
				return false
			}

		default:
			s.term.Log(fmt.Sprintf("[Error] Could not perform unknown file operation %s", op.Kind))
			return false
		}
	}
	return true
}

// transferFile requests a path from the peer and waits on its barrier
// until the transfer is applied or the timeout expires
func (s *Syncer) transferFile(path string) bool {
	// Register before sending so a fast response always finds the barrier
	b := s.barriers.register(path)
	defer s.barriers.remove(path)

	s.logger.Debug(context.Background(), "requesting file", logging.Fields{"path": path})
	if err := s.conn.Send(protocol.FileRequest{Path: path}); err != nil {
		s.term.Log(fmt.Sprintf("[Error] Failed to request %s: %v", path, err))
		return false
	}

	waited := time.Duration(0)
	for {
		select {
		case ok := <-b.ch:
			return ok
		case <-time.After(transferPollInterval):
			waited += transferPollInterval
			if waited >= s.timeout {
				s.term.Log(fmt.Sprintf("[Error] File transfer timed out for %s", path))
				return false
			}
			s.term.Log(fmt.Sprintf("Waited %ds/%ds for %s",
				int(waited.Seconds()), int(s.timeout.Seconds()), path))
		}
	}
}

// SubmitTransfer applies an incoming file transfer and signals the
// worker waiting for it. A transfer no worker is waiting for is dropped.
func (s *Syncer) SubmitTransfer(ft protocol.FileTransfer) {
	b := s.barriers.lookup(ft.Path)
	if b == nil {
		s.term.Log(fmt.Sprintf("[Warning] Dropping unexpected file transfer for %s", ft.Path))
		return
	}
	b.signal(s.applyTransfer(ft))
}

// applyTransfer writes a received file to disk and stamps its times
func (s *Syncer) applyTransfer(ft protocol.FileTransfer) bool {
	if ft.FileType == models.TypeUnknown {
		// The peer could not provide the file
		s.term.Log(fmt.Sprintf("[Error] Peer could not provide %s", ft.Path))
		return false
	}

	fullPath := s.localPath(ft.Path)

	parent := filepath.Dir(fullPath)
	if !fsutil.Exists(parent) {
		s.term.Log("[Warning] Out of order file transfer. Creating folder for file that should already exist.")
		if err := fsutil.EnsureDirAll(parent); err != nil {
			s.term.Log(fmt.Sprintf("[Error] %v", err))
			return false
		}
	}

	switch ft.FileType {
	case models.TypeDirectory:
		if err := fsutil.EnsureDir(fullPath); err != nil {
			s.term.Log(fmt.Sprintf("[Error] %v", err))
			return false
		}

	case models.TypeFile:
		if err := os.WriteFile(fullPath, ft.Body, 0644); err != nil {
			s.term.Log(fmt.Sprintf("[Error] Could not write %s: %v", ft.Path, err))
			return false
		}

	case models.TypeLink:
		// The body is the link target, not null-terminated on the wire
		if err := fsutil.MakeSymlink(string(ft.Body), fullPath); err != nil {
			s.term.Log(fmt.Sprintf("[Error] %v", err))
			return false
		}

	default:
		s.term.Log(fmt.Sprintf("[Error] Received unknown file type in file transfer (%d)", ft.FileType))
		return false
	}

	if err := fsutil.SetFileTimes(fullPath, ft.Atime, ft.Mtime); err != nil {
		s.term.Log(fmt.Sprintf("[Error] %v", err))
		return false
	}
	return true
}

func (s *Syncer) localPath(relPath string) string {
	return filepath.Join(s.root, filepath.FromSlash(relPath))
}
