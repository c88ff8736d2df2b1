package policy

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrUnsupportedFlag is returned for pattern modifiers RE2 cannot express.
var ErrUnsupportedFlag = errors.New("unsupported pattern flag")

// pattern is a compiled list entry. A nil re never matches.
type pattern struct {
	raw string
	re  *regexp.Regexp
}

func (p pattern) match(s string) bool {
	if p.re == nil {
		return false
	}

	return p.re.MatchString(s)
}

// delimiters are the characters accepted around a delimited pattern.
const delimiters = "/#~!@%|+;"

// compilePattern accepts the delimited form "/body/flags" as well as a bare
// expression. Flags i, m, s and U map onto RE2 flags.
func compilePattern(raw string) (*regexp.Regexp, error) {
	body, flags := splitDelimited(raw)

	prefix := ""

	if flags != "" {
		for _, f := range flags {
			if !strings.ContainsRune("imsU", f) {
				return nil, fmt.Errorf("%w %q in %s", ErrUnsupportedFlag, f, raw)
			}
		}

		prefix = "(?" + flags + ")"
	}

	return regexp.Compile(prefix + body)
}

// splitDelimited strips a leading delimiter and the matching trailing one.
// Anything that does not look delimited is returned unchanged.
func splitDelimited(raw string) (string, string) {
	if len(raw) < 2 {
		return raw, ""
	}

	delim := raw[0]
	if !strings.ContainsRune(delimiters, rune(delim)) {
		return raw, ""
	}

	end := strings.LastIndexByte(raw, delim)
	if end <= 0 {
		return raw, ""
	}

	flags := raw[end+1:]
	for i := 0; i < len(flags); i++ {
		if !isAlnum(flags[i]) {
			return raw, ""
		}
	}

	return raw[1:end], flags
}

func isAlnum(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z') || (b >= '0' && b <= '9')
}
