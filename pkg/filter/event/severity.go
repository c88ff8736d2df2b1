// Package event holds the diagnostic event model and its fingerprint.
package event

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Severity is the diagnostic class reported by the host. Values match the
// host's bit constants so numeric severities can be passed through unchanged.
type Severity int

const (
	SeverityError          Severity = 1
	SeverityWarning        Severity = 2
	SeverityParse          Severity = 4
	SeverityNotice         Severity = 8
	SeverityCoreError      Severity = 16
	SeverityCoreWarning    Severity = 32
	SeverityCompileError   Severity = 64
	SeverityCompileWarning Severity = 128
	SeverityUserError      Severity = 256
	SeverityUserWarning    Severity = 512
	SeverityUserNotice     Severity = 1024
	SeverityDeprecated     Severity = 8192
	SeverityUserDeprecated Severity = 16384
)

// UnknownLabel is rendered for severities missing from the label table.
const UnknownLabel = "Unknown Error"

var labels = map[Severity]string{
	SeverityError:          "Fatal Error",
	SeverityWarning:        "Warning",
	SeverityParse:          "Parse Error",
	SeverityNotice:         "Notice",
	SeverityCoreError:      "Core Error",
	SeverityCoreWarning:    "Core Warning",
	SeverityCompileError:   "Compile Error",
	SeverityCompileWarning: "Compile Warning",
	SeverityUserError:      "User Error",
	SeverityUserWarning:    "User Warning",
	SeverityUserNotice:     "User Notice",
	SeverityDeprecated:     "Deprecated",
	SeverityUserDeprecated: "User Deprecated",
}

var names = map[string]Severity{
	"error":           SeverityError,
	"warning":         SeverityWarning,
	"parse":           SeverityParse,
	"notice":          SeverityNotice,
	"core_error":      SeverityCoreError,
	"core_warning":    SeverityCoreWarning,
	"compile_error":   SeverityCompileError,
	"compile_warning": SeverityCompileWarning,
	"user_error":      SeverityUserError,
	"user_warning":    SeverityUserWarning,
	"user_notice":     SeverityUserNotice,
	"deprecated":      SeverityDeprecated,
	"user_deprecated": SeverityUserDeprecated,
}

// Label returns the human readable name used in the destination log.
func (s Severity) Label() string {
	if l, ok := labels[s]; ok {
		return l
	}

	return UnknownLabel
}

func (s Severity) String() string {
	for name, sev := range names {
		if sev == s {
			return name
		}
	}

	return "unknown(" + strconv.Itoa(int(s)) + ")"
}

// Uncoverable reports whether the host never lets this class be intercepted.
// These always fall through to the host's default handling.
func (s Severity) Uncoverable() bool {
	switch s {
	case SeverityError, SeverityParse, SeverityCoreError, SeverityCoreWarning,
		SeverityCompileError, SeverityCompileWarning:
		return true
	default:
		return false
	}
}

// ParseSeverity accepts either a name ("user_warning") or a numeric value.
func ParseSeverity(s string) (Severity, error) {
	s = strings.ToLower(strings.TrimSpace(s))

	if sev, ok := names[s]; ok {
		return sev, nil
	}

	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("unknown severity %q", s)
	}

	return Severity(n), nil
}

// UnmarshalJSON decodes a severity given as a number or a name.
func (s *Severity) UnmarshalJSON(data []byte) error {
	var n int
	if err := json.Unmarshal(data, &n); err == nil {
		*s = Severity(n)

		return nil
	}

	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return fmt.Errorf("severity must be a number or a name: %w", err)
	}

	sev, err := ParseSeverity(name)
	if err != nil {
		return err
	}

	*s = sev

	return nil
}
