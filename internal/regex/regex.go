// Package regex compiles the regular expressions embedded in connectors.
//
// Connectors are written in a portable, POSIX-basic flavoured syntax: grouping,
// alternation and interval braces are escaped operators (\( \) \| \{ \}), their
// bare forms are literals, and \< \> are word boundaries. Patterns are
// rewritten into the Perl-compatible dialect of regexp2 before compilation.
package regex

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/dlclark/regexp2"
)

// MatchTimeout bounds a single match so that a pathological pattern cannot
// stall a host pipeline.
const MatchTimeout = 2 * time.Second

var cache sync.Map // options:pattern -> *regexp2.Regexp

// FromPortable rewrites a portable connector pattern into regexp2 syntax.
func FromPortable(pattern string) string {
	var b strings.Builder
	b.Grow(len(pattern) + 8)

	inClass := false
	for i := 0; i < len(pattern); i++ {
		c := pattern[i]

		if inClass {
			b.WriteByte(c)
			if c == '\\' && i+1 < len(pattern) {
				i++
				b.WriteByte(pattern[i])
			} else if c == ']' {
				inClass = false
			}
			continue
		}

		switch c {
		case '[':
			inClass = true
			b.WriteByte(c)
			// a leading ']' (or '^]') is a literal member of the class
			if i+1 < len(pattern) && pattern[i+1] == '^' {
				i++
				b.WriteByte('^')
			}
			if i+1 < len(pattern) && pattern[i+1] == ']' {
				i++
				b.WriteString(`\]`)
			}
		case '(', ')', '|', '{', '}':
			b.WriteByte('\\')
			b.WriteByte(c)
		case '\\':
			if i+1 >= len(pattern) {
				b.WriteString(`\\`)
				continue
			}
			i++
			next := pattern[i]
			switch next {
			case '(', ')', '|', '{', '}':
				b.WriteByte(next)
			case '<', '>':
				b.WriteString(`\b`)
			default:
				b.WriteByte('\\')
				b.WriteByte(next)
			}
		default:
			b.WriteByte(c)
		}
	}

	return b.String()
}

// Compile returns the compiled form of a portable pattern. Results are cached
// process-wide since connector patterns are a small, fixed set.
func Compile(pattern string) (*regexp2.Regexp, error) {
	return compile(pattern, regexp2.None)
}

func compile(pattern string, opts regexp2.RegexOptions) (*regexp2.Regexp, error) {
	key := fmt.Sprintf("%d:%s", opts, pattern)
	if re, ok := cache.Load(key); ok {
		return re.(*regexp2.Regexp), nil
	}

	re, err := regexp2.Compile(FromPortable(pattern), opts)
	if err != nil {
		return nil, fmt.Errorf("invalid regular expression %q: %w", pattern, err)
	}
	re.MatchTimeout = MatchTimeout

	actual, _ := cache.LoadOrStore(key, re)
	return actual.(*regexp2.Regexp), nil
}

// Find reports whether the pattern matches anywhere in s.
func Find(pattern, s string) (bool, error) {
	re, err := Compile(pattern)
	if err != nil {
		return false, err
	}
	return re.MatchString(s)
}

// FindCaseInsensitive is Find with case folding, used for expected results of
// detection criteria.
func FindCaseInsensitive(pattern, s string) (bool, error) {
	re, err := compile(pattern, regexp2.IgnoreCase)
	if err != nil {
		return false, err
	}
	return re.MatchString(s)
}
