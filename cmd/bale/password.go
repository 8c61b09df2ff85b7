package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// passwordEnv names the environment variable consulted when no password
// file is given.
const passwordEnv = "BALE_PASSWORD"

var errNoPassword = errors.New("password required: use --password-file, " + passwordEnv + ", or run on a terminal")

// passwordSource resolves a password from, in order, a file, the
// environment, or an interactive prompt.
type passwordSource struct {
	file   string
	getenv func(string) string
	stdin  *os.File
	prompt io.Writer
}

func newPasswordSource(file string) passwordSource {
	return passwordSource{file: file, getenv: os.Getenv, stdin: os.Stdin, prompt: os.Stderr}
}

// read returns the password. With confirm, an interactive prompt asks
// twice and fails if the entries differ.
func (s passwordSource) read(confirm bool) (string, error) {
	if s.file != "" {
		return readPasswordFile(s.file)
	}
	if pw := s.getenv(passwordEnv); pw != "" {
		return pw, nil
	}
	if s.stdin == nil || !term.IsTerminal(int(s.stdin.Fd())) {
		return "", errNoPassword
	}

	pw, err := s.promptOnce("Password: ")
	if err != nil {
		return "", err
	}
	if pw == "" {
		return "", errors.New("empty password")
	}
	if confirm {
		again, err := s.promptOnce("Confirm password: ")
		if err != nil {
			return "", err
		}
		if again != pw {
			return "", errors.New("passwords do not match")
		}
	}
	return pw, nil
}

func (s passwordSource) promptOnce(label string) (string, error) {
	fmt.Fprint(s.prompt, label)
	b, err := term.ReadPassword(int(s.stdin.Fd()))
	fmt.Fprintln(s.prompt)
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	return string(b), nil
}

// readPasswordFile returns the first line of path without its line ending.
func readPasswordFile(path string) (string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("password file: %w", err)
	}
	pw, _, _ := strings.Cut(string(b), "\n")
	pw = strings.TrimSuffix(pw, "\r")
	if pw == "" {
		return "", fmt.Errorf("password file %s is empty", path)
	}
	return pw, nil
}
