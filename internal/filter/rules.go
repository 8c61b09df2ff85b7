package filter

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
)

// LoadFile reads rules from path and appends them to the chain.
func (c *Chain) LoadFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open filter file: %w", err)
	}
	defer f.Close()
	return c.Parse(f, path)
}

// Parse appends rules read from r, one per line:
//
//	exclude:  - pattern
//	include:  + pattern
//	exclude:  pattern
//	ignored:  # comment, and blank lines
//
// name labels each rule's Origin.
func (c *Chain) Parse(r io.Reader, name string) error {
	scanner := bufio.NewScanner(r)
	for lineNum := 1; scanner.Scan(); lineNum++ {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		include := false
		pattern := line
		switch {
		case strings.HasPrefix(line, "+ "):
			include = true
			pattern = strings.TrimSpace(line[2:])
		case strings.HasPrefix(line, "- "):
			pattern = strings.TrimSpace(line[2:])
		}

		if err := c.add(pattern, include, fmt.Sprintf("%s:%d", name, lineNum)); err != nil {
			return err
		}
	}
	return scanner.Err()
}
