// Package filter selects which files under the source root go into an
// archive. Rules follow rsync conventions: evaluated in order, first match
// wins, and a path no rule matches is included.
package filter

import (
	"fmt"
	"strings"
)

// Rule is one compiled include or exclude pattern.
type Rule struct {
	Include bool
	Origin  string // "--exclude", or file:line for rules read from a file
	pattern *compiledPattern
}

func (r Rule) String() string {
	sign := "-"
	if r.Include {
		sign = "+"
	}
	return sign + " " + r.pattern.original
}

// Chain holds an ordered list of rules plus size bounds for regular files.
type Chain struct {
	rules   []Rule
	minSize int64
	maxSize int64
}

// NewChain creates an empty filter chain.
func NewChain() *Chain {
	return &Chain{}
}

// AddExclude appends an exclude rule.
func (c *Chain) AddExclude(pattern string) error {
	return c.add(pattern, false, "--exclude")
}

// AddInclude appends an include rule.
func (c *Chain) AddInclude(pattern string) error {
	return c.add(pattern, true, "--include")
}

func (c *Chain) add(pattern string, include bool, origin string) error {
	if strings.TrimSpace(pattern) == "" {
		return fmt.Errorf("%s: empty pattern", origin)
	}
	cp, err := compilePattern(pattern)
	if err != nil {
		return fmt.Errorf("%s %q: %w", origin, pattern, err)
	}
	c.rules = append(c.rules, Rule{Include: include, Origin: origin, pattern: cp})
	return nil
}

// SetMinSize excludes regular files smaller than n bytes. Zero disables.
func (c *Chain) SetMinSize(n int64) {
	c.minSize = n
}

// SetMaxSize excludes regular files larger than n bytes. Zero disables.
func (c *Chain) SetMaxSize(n int64) {
	c.maxSize = n
}

// Rules returns the rules in evaluation order.
func (c *Chain) Rules() []Rule {
	return append([]Rule(nil), c.rules...)
}

// Empty reports whether the chain has no rules and no size bounds. A nil
// chain is empty.
func (c *Chain) Empty() bool {
	return c == nil || (len(c.rules) == 0 && c.minSize == 0 && c.maxSize == 0)
}

// Decision explains why a path was kept or dropped.
type Decision struct {
	Include bool
	Reason  string // matching rule or size bound; empty for the default
}

// Decide evaluates relPath (slash-separated, relative to the source root).
// Size bounds apply only to regular files; directories are matched by
// rules alone so an excluded directory is never descended into.
func (c *Chain) Decide(relPath string, isDir bool, size int64) Decision {
	if c == nil {
		return Decision{Include: true}
	}
	if !isDir {
		if c.minSize > 0 && size < c.minSize {
			return Decision{Reason: fmt.Sprintf("smaller than %d bytes", c.minSize)}
		}
		if c.maxSize > 0 && size > c.maxSize {
			return Decision{Reason: fmt.Sprintf("larger than %d bytes", c.maxSize)}
		}
	}
	for _, rule := range c.rules {
		if rule.pattern.match(relPath, isDir) {
			return Decision{Include: rule.Include, Reason: rule.String() + " (" + rule.Origin + ")"}
		}
	}
	return Decision{Include: true}
}

// Match reports whether relPath is kept.
func (c *Chain) Match(relPath string, isDir bool, size int64) bool {
	return c.Decide(relPath, isDir, size).Include
}
