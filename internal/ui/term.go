package ui

import "golang.org/x/term"

// fallbackWidth is used when the output is not a terminal.
const fallbackWidth = 80

// IsTTY reports whether fd is a terminal.
func IsTTY(fd uintptr) bool {
	return term.IsTerminal(int(fd))
}

// TermWidth returns the column count of the terminal on fd.
func TermWidth(fd uintptr) int {
	if w, _, err := term.GetSize(int(fd)); err == nil && w > 0 {
		return w
	}
	return fallbackWidth
}
