package filter

import (
	"errors"
	"regexp"
	"strings"
)

// regexMeta lists the bytes that must be escaped outside a class.
const regexMeta = `\.+()|[]{}^$`

// compiledPattern is one glob compiled to a regular expression over
// slash-separated relative paths.
type compiledPattern struct {
	original string
	re       *regexp.Regexp
	dirOnly  bool // trailing "/": matches directories only
}

// compilePattern compiles an rsync-style glob. A trailing slash restricts
// it to directories. A slash anywhere else anchors it at the source root;
// without one it matches the last path component.
func compilePattern(text string) (*compiledPattern, error) {
	glob, dirOnly := strings.CutSuffix(text, "/")
	anchored := strings.Contains(glob, "/")
	glob = strings.TrimPrefix(glob, "/")
	if glob == "" {
		return nil, errors.New("pattern matches nothing")
	}

	prefix := `(^|/)`
	if anchored {
		prefix = "^"
	}
	re, err := regexp.Compile(prefix + translateGlob(glob) + "$")
	if err != nil {
		return nil, err
	}
	return &compiledPattern{original: text, re: re, dirOnly: dirOnly}, nil
}

func (cp *compiledPattern) match(relPath string, isDir bool) bool {
	if cp.dirOnly && !isDir {
		return false
	}
	return cp.re.MatchString(relPath)
}

// translateGlob rewrites glob syntax as a regular expression. "**/" spans
// zero or more directories and a bare "**" matches anything. "*" and "?"
// stay within one path component. "[...]" classes pass through with "!"
// as negation.
func translateGlob(glob string) string {
	var b strings.Builder
	for i := 0; i < len(glob); i++ {
		c := glob[i]
		switch c {
		case '*':
			switch rest := glob[i:]; {
			case strings.HasPrefix(rest, "**/"):
				b.WriteString("(.*/)?")
				i += 2
			case strings.HasPrefix(rest, "**"):
				b.WriteString(".*")
				i++
			default:
				b.WriteString("[^/]*")
			}
		case '?':
			b.WriteString("[^/]")
		case '[':
			if class, n := bracketClass(glob[i:]); n > 0 {
				b.WriteString(class)
				i += n - 1
				continue
			}
			b.WriteString(`\[`)
		default:
			if strings.IndexByte(regexMeta, c) >= 0 {
				b.WriteByte('\\')
			}
			b.WriteByte(c)
		}
	}
	return b.String()
}

// bracketClass translates the "[...]" class at the start of s. It returns
// the class and the number of bytes consumed, or 0 when s has no closing
// bracket. A "]" right after "[" or "[!" is a literal member.
func bracketClass(s string) (string, int) {
	start := 1
	if start < len(s) && s[start] == '!' {
		start++
	}
	if start < len(s) && s[start] == ']' {
		start++
	}
	end := strings.IndexByte(s[start:], ']')
	if end < 0 {
		return "", 0
	}
	end += start

	body := s[1:end]
	if rest, ok := strings.CutPrefix(body, "!"); ok {
		body = "^" + rest
	}
	return "[" + body + "]", end + 1
}
