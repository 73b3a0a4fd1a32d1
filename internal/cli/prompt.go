package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/peterh/liner"
	"golang.org/x/sys/unix"
)

// isTerminal reports whether r is an interactive terminal.
func isTerminal(r io.Reader) bool {
	f, ok := r.(*os.File)
	if !ok {
		return false
	}

	_, err := unix.IoctlGetTermios(int(f.Fd()), ioctlReadTermios)

	return err == nil
}

// confirm asks a yes/no question on the terminal. Input that is not a
// terminal never confirms, nor does Ctrl-C or EOF.
func (a *app) confirm(question string) (bool, error) {
	if !isTerminal(a.in) {
		return false, nil
	}

	ln := liner.NewLiner()
	defer func() { _ = ln.Close() }()

	ln.SetCtrlCAborts(true)

	answer, err := ln.Prompt(question + " [y/N] ")
	if errors.Is(err, liner.ErrPromptAborted) || errors.Is(err, io.EOF) {
		return false, nil
	}

	if err != nil {
		return false, fmt.Errorf("prompt: %w", err)
	}

	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "y", "yes":
		return true, nil
	}

	return false, nil
}
