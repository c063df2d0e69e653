// Package session drives a synchronization session between two peers:
// the state machine lifecycle, conflict resolution and the sync worker
// pool that executes the derived file operations.
package session

import "sync"

// State is a phase of the session lifecycle. The numeric values travel
// inside ExitingState messages and must match on both peers.
type State int32

const (
	StateAwaitingVersion State = iota
	StateSendTree
	StateResolvingConflicts
	StateSyncUserWait
	StateSyncingFiles
	StateFinished
	StateExiting
)

// String returns the state name for log output
func (s State) String() string {
	switch s {
	case StateAwaitingVersion:
		return "AwaitingVersion"
	case StateSendTree:
		return "SendTree"
	case StateResolvingConflicts:
		return "ResolvingConflicts"
	case StateSyncUserWait:
		return "SyncUserWait"
	case StateSyncingFiles:
		return "SyncingFiles"
	case StateFinished:
		return "Finished"
	case StateExiting:
		return "Exiting"
	default:
		return "Invalid"
	}
}

// stateCell holds the current session state. The driver loop blocks on
// it; message handlers transition it from dispatch goroutines.
type stateCell struct {
	mu    sync.Mutex
	cond  *sync.Cond
	state State
}

func newStateCell() *stateCell {
	c := &stateCell{state: StateAwaitingVersion}
	c.cond = sync.NewCond(&c.mu)
	return c
}

func (c *stateCell) get() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *stateCell) set(s State) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = s
	c.cond.Broadcast()
}

// transition moves to next only when the state still equals from.
// Returns whether the transition happened.
func (c *stateCell) transition(from, next State) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != from {
		return false
	}
	c.state = next
	c.cond.Broadcast()
	return true
}

// waitChange blocks until the state differs from the given one, then
// returns the new state
func (c *stateCell) waitChange(from State) State {
	c.mu.Lock()
	defer c.mu.Unlock()
	for c.state == from {
		c.cond.Wait()
	}
	return c.state
}
