// Package terminal abstracts all user-facing I/O: log lines, progress
// bars and interactive prompts. Prompts are cancellable, since a peer's
// message can make a pending question moot.
package terminal

import "errors"

// ErrPromptCancelled is returned by PromptChoice when CancelPrompt is
// invoked while the prompt is waiting for input
var ErrPromptCancelled = errors.New("prompt cancelled")

// Terminal is the interface between the sync machinery and the user
type Terminal interface {
	// Log prints a line of output
	Log(line string)

	// Debug prints a line of output only when debug mode is enabled
	Debug(line string)

	// StartProgress begins a labelled progress bar over total steps
	StartProgress(label string, total int)

	// IncrProgress advances the active progress bar by one step
	IncrProgress()

	// CompleteProgress finishes and removes the active progress bar
	CompleteProgress()

	// PromptChoice asks the user to pick one of the given choice
	// characters. Blocks until a valid choice is entered or the prompt
	// is cancelled.
	PromptChoice(prompt string, choices string) (byte, error)

	// CancelPrompt unblocks a pending PromptChoice with ErrPromptCancelled.
	// No-op if no prompt is active.
	CancelPrompt()

	// Width returns the terminal width in columns
	Width() int
}
