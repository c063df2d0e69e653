package session

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fatih/color"

	"github.com/sdejongh/fmerge/pkg/merge"
	"github.com/sdejongh/fmerge/pkg/models"
	"github.com/sdejongh/fmerge/pkg/terminal"
)

const (
	headerWidth     = 80
	headerChar      = "="
	changeKindWidth = 14
	changeTimeWidth = 26
	columnWidth     = changeKindWidth + changeTimeWidth
)

// resolver asks the user to settle merge conflicts. The prompt can be
// cancelled when the peer resolves first.
type resolver struct {
	term terminal.Terminal
}

// ask walks the conflicts, showing each path's local and remote history
// side by side and prompting for keep-local or keep-remote. cancelled
// reports whether the peer has already supplied resolutions; if it turns
// true the remaining prompts are abandoned.
func (r *resolver) ask(conflicts []models.Conflict, local, remote merge.ChangeSet, cancelled func() bool) (models.ResolutionSet, error) {
	banner := color.New(color.FgYellow, color.Bold)

	width := headerWidth
	if w := r.term.Width(); w < width {
		width = w
	}

	r.term.Log(banner.Sprint(strings.Repeat(headerChar, width)))
	r.term.Log(banner.Sprint(centered("RESOLVING CONFLICTS", width, headerChar)))
	r.term.Log(banner.Sprint(strings.Repeat(headerChar, width)))
	r.term.Log("")

	resolutions := make(models.ResolutionSet)

	for _, conflict := range conflicts {
		if cancelled() {
			return nil, terminal.ErrPromptCancelled
		}

		key := conflict.Path
		r.term.Log(centered("CONFLICT: "+key, width, headerChar))
		r.printComparison(local[key], remote[key])

		choice, err := r.term.PromptChoice("Keep (l)ocal or (r)emote version of "+key+"?", "lr")
		if err != nil {
			if errors.Is(err, terminal.ErrPromptCancelled) {
				return nil, err
			}
			return nil, fmt.Errorf("conflict prompt: %w", err)
		}

		if choice == 'l' {
			resolutions[key] = models.KeepLocal
		} else {
			resolutions[key] = models.KeepRemote
		}
	}

	return resolutions, nil
}

// printComparison renders the two change histories side by side
func (r *resolver) printComparison(local, remote []models.Change) {
	r.term.Log(centered("~~~ LOCAL ~~~", columnWidth, " ") + centered("~~~ REMOTE ~~~", columnWidth, " "))

	rows := len(local)
	if len(remote) > rows {
		rows = len(remote)
	}

	for i := 0; i < rows; i++ {
		line := formatChangeColumn(local, i) + formatChangeColumn(remote, i)
		r.term.Log(line)
	}
}

func formatChangeColumn(changes []models.Change, i int) string {
	if i >= len(changes) {
		return strings.Repeat(" ", columnWidth)
	}
	c := changes[i]
	return fmt.Sprintf("%-*s%-*s", changeKindWidth, c.Kind.String(), changeTimeWidth, timeToStr(c.Earliest))
}

func timeToStr(unixTime int64) string {
	return time.Unix(unixTime, 0).Format("Jan _2 15:04:05 2006")
}

// centered pads contents to width with the given padding string
func centered(contents string, width int, pad string) string {
	inner := len(contents)
	if inner >= width-3 {
		return contents
	}
	left := (width-inner)/2 - 1
	right := width - inner - left - 2
	return strings.Repeat(pad, left) + " " + contents + " " + strings.Repeat(pad, right)
}
