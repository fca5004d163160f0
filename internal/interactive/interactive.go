// Package interactive backs "-i": it lists a project's configurations and
// lets the user choose one, using raw-mode arrow-key navigation on a
// terminal and a numbered stdin prompt otherwise.
package interactive

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"golang.org/x/term"
)

// isTerminalFunc is replaceable for testing.
var isTerminalFunc = term.IsTerminal

// Choose lists options and lets the user pick one by name, returning the
// chosen option's Name. fd is the terminal file descriptor to probe and
// put into raw mode (typically int(os.Stdin.Fd())); it is only used when
// r/w are connected to that same terminal.
func Choose(r io.Reader, w io.Writer, fd int, options []string) (string, error) {
	if len(options) == 0 {
		return "", fmt.Errorf("interactive: no configurations to choose from")
	}
	if len(options) == 1 {
		return options[0], nil
	}

	if isTerminalFunc(fd) {
		choice, err := chooseRaw(r, w, fd, options)
		if err == nil {
			return choice, nil
		}
		// Any raw-mode failure (MakeRaw unsupported, read error) falls back
		// to the numbered prompt rather than failing the command outright.
	}
	return chooseNumbered(r, w, options)
}

// chooseNumbered prints a numbered list and reads a selection from r line
// by line. Used whenever the probed fd isn't a terminal (pipes, CI, tests)
// or raw mode fails.
func chooseNumbered(r io.Reader, w io.Writer, options []string) (string, error) {
	for i, opt := range options {
		fmt.Fprintf(w, "  %d) %s\n", i+1, opt)
	}
	fmt.Fprint(w, "Select a configuration [1]: ")

	scanner := bufio.NewScanner(r)
	if !scanner.Scan() {
		return options[0], nil
	}
	line := strings.TrimSpace(scanner.Text())
	if line == "" {
		return options[0], nil
	}

	n, err := strconv.Atoi(line)
	if err != nil || n < 1 || n > len(options) {
		return "", fmt.Errorf("interactive: invalid selection %q", line)
	}
	return options[n-1], nil
}

const (
	keyUp    = "\x1b[A"
	keyDown  = "\x1b[B"
	keyEnter = "\r"
	keyCtrlC = "\x03"
)

// chooseRaw renders an arrow-navigable list in the terminal's raw mode.
func chooseRaw(r io.Reader, w io.Writer, fd int, options []string) (string, error) {
	oldState, err := term.MakeRaw(fd)
	if err != nil {
		return "", fmt.Errorf("interactive: entering raw mode: %w", err)
	}
	defer term.Restore(fd, oldState)

	selected := 0
	render(w, options, selected, false)

	buf := make([]byte, 3)
	for {
		n, err := r.Read(buf)
		if err != nil {
			return "", fmt.Errorf("interactive: reading input: %w", err)
		}
		seq := string(buf[:n])

		switch {
		case seq == keyCtrlC:
			return "", fmt.Errorf("interactive: selection cancelled")
		case seq == keyEnter || seq == "\n":
			fmt.Fprint(w, "\r\n")
			return options[selected], nil
		case seq == keyUp:
			selected = (selected - 1 + len(options)) % len(options)
			render(w, options, selected, true)
		case seq == keyDown:
			selected = (selected + 1) % len(options)
			render(w, options, selected, true)
		}
	}
}

// render draws the option list, moving the cursor back up over the
// previously drawn lines first when this isn't the initial draw.
func render(w io.Writer, options []string, selected int, redraw bool) {
	if redraw {
		fmt.Fprintf(w, "\x1b[%dA", len(options))
	}
	for i, opt := range options {
		fmt.Fprint(w, "\x1b[2K")
		marker := "  "
		if i == selected {
			marker = "> "
		}
		fmt.Fprintf(w, "%s%s\r\n", marker, opt)
	}
}
