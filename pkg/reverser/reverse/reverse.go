// Package reverse implements the text reversal performed for every input event.
//
// The default unit is the Unicode code point: multi-byte UTF-8 sequences are
// moved as a whole, so reversing "héllo" yields "olléh" rather than a string
// with a split two-byte "é". Reversing by code point is an involution for any
// valid UTF-8 input.
//
// Reversal by extended grapheme cluster is available as an opt-in unit for
// text with combining marks or emoji modifiers.
package reverse

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/apparentlymart/go-textseg/v15/textseg"
)

// ErrUnknownUnit is returned by ParseUnit for unrecognized unit names.
var ErrUnknownUnit = errors.New("unknown reversal unit")

// Func reverses a string. Implementations are pure and total.
type Func func(s string) string

// Unit selects what counts as one character when reversing.
type Unit int

const (
	UnitCodePoint Unit = iota
	UnitGrapheme
)

func (u Unit) String() string {
	switch u {
	case UnitCodePoint:
		return "codepoint"
	case UnitGrapheme:
		return "grapheme"
	default:
		return fmt.Sprintf("Unit(%d)", int(u))
	}
}

// Func returns the reversal function for the unit. Unknown units fall back
// to code point reversal.
func (u Unit) Func() Func {
	if u == UnitGrapheme {
		return Graphemes
	}
	return String
}

// ParseUnit converts a unit name as used in config files and event names.
// The empty string selects the default unit.
func ParseUnit(name string) (Unit, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "codepoint", "code_point", "rune":
		return UnitCodePoint, nil
	case "grapheme", "graphemes":
		return UnitGrapheme, nil
	default:
		return UnitCodePoint, fmt.Errorf("%w: %q", ErrUnknownUnit, name)
	}
}

// String returns s with its code points in reverse order. Bytes that are not
// part of a valid UTF-8 sequence are moved individually and left unchanged.
func String(s string) string {
	if len(s) < 2 {
		return s
	}

	buf := make([]byte, len(s))
	end := len(buf)
	for i := 0; i < len(s); {
		_, size := utf8.DecodeRuneInString(s[i:])
		end -= size
		copy(buf[end:], s[i:i+size])
		i += size
	}

	return string(buf)
}

// Graphemes returns s with its extended grapheme clusters in reverse order,
// keeping combining marks attached to their base characters.
func Graphemes(s string) string {
	if len(s) < 2 {
		return s
	}

	// ScanGraphemeClusters consumes any byte sequence, so AllTokens cannot fail.
	clusters, _ := textseg.AllTokens([]byte(s), textseg.ScanGraphemeClusters)

	buf := make([]byte, 0, len(s))
	for i := len(clusters) - 1; i >= 0; i-- {
		buf = append(buf, clusters[i]...)
	}

	return string(buf)
}
