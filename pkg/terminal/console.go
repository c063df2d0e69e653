package terminal

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/cheggaaa/pb/v3"
	"github.com/fatih/color"
	"golang.org/x/term"
)

const defaultWidth = 80

// Console is the interactive Terminal implementation. One stdin reader
// goroutine feeds input lines to whichever prompt is waiting; a cancel
// channel lets another goroutine abort the wait.
type Console struct {
	out   io.Writer
	debug bool

	mu     sync.Mutex
	bar    *pb.ProgressBar
	cancel chan struct{}

	lines chan string
}

// NewConsole creates a Console writing to stdout and reading prompts from
// stdin. Debug output is suppressed unless debug is set.
func NewConsole(debug bool) *Console {
	c := &Console{
		out:   os.Stdout,
		debug: debug,
		lines: make(chan string),
	}

	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			c.lines <- scanner.Text()
		}
		close(c.lines)
	}()

	return c
}

// Log prints a line of output
func (c *Console) Log(line string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintln(c.out, line)
}

// Debug prints a line only when debug mode is enabled
func (c *Console) Debug(line string) {
	if !c.debug {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintln(c.out, color.HiBlackString(line))
}

// StartProgress begins a labelled progress bar over total steps
func (c *Console) StartProgress(label string, total int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.bar != nil {
		c.bar.Finish()
	}
	if total < 1 {
		total = 1
	}

	bar := pb.New(total)
	bar.SetTemplateString(`{{string . "prefix"}} {{bar . }} {{percent . }}`)
	bar.Set("prefix", label)
	bar.SetWriter(c.out)
	c.bar = bar.Start()
}

// IncrProgress advances the active progress bar by one step
func (c *Console) IncrProgress() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.bar != nil {
		c.bar.Increment()
	}
}

// CompleteProgress finishes and removes the active progress bar
func (c *Console) CompleteProgress() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.bar != nil {
		c.bar.SetCurrent(c.bar.Total())
		c.bar.Finish()
		c.bar = nil
	}
}

// PromptChoice asks the user to pick one of the choice characters.
// Invalid input re-prompts. Returns ErrPromptCancelled if CancelPrompt is
// called while waiting.
func (c *Console) PromptChoice(prompt string, choices string) (byte, error) {
	cancel := make(chan struct{})

	c.mu.Lock()
	c.cancel = cancel
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.cancel = nil
		c.mu.Unlock()
	}()

	options := strings.Join(strings.Split(choices, ""), "/")
	for {
		fmt.Fprintf(c.out, "%s [%s] ", prompt, options)

		select {
		case line, ok := <-c.lines:
			if !ok {
				return 0, fmt.Errorf("stdin closed")
			}
			line = strings.TrimSpace(strings.ToLower(line))
			if len(line) == 1 && strings.IndexByte(choices, line[0]) >= 0 {
				return line[0], nil
			}
			fmt.Fprintf(c.out, "Please enter one of: %s\n", options)

		case <-cancel:
			fmt.Fprintln(c.out)
			return 0, ErrPromptCancelled
		}
	}
}

// CancelPrompt unblocks a pending PromptChoice
func (c *Console) CancelPrompt() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		close(c.cancel)
		c.cancel = nil
	}
}

// Width returns the terminal width in columns, or a default when stdout
// is not a terminal
func (c *Console) Width() int {
	if f, ok := c.out.(*os.File); ok {
		if width, _, err := term.GetSize(int(f.Fd())); err == nil && width > 0 {
			return width
		}
	}
	return defaultWidth
}
