package event

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidPattern is returned by ParsePattern for unusable pattern strings.
var ErrInvalidPattern = errors.New("invalid pattern")

// AllPattern is the textual form of the pattern that matches every event.
const AllPattern = "all"

// PatternKind discriminates the three pattern forms.
type PatternKind int

const (
	// kindInvalid is the zero kind, so an uninitialised Pattern matches nothing.
	kindInvalid PatternKind = iota
	// KindAll matches every event name.
	KindAll
	// KindCategory matches names beginning with "<category>.".
	KindCategory
	// KindExact matches exactly one event name.
	KindExact
)

func (k PatternKind) String() string {
	switch k {
	case KindAll:
		return "all"
	case KindCategory:
		return "category"
	case KindExact:
		return "exact"
	default:
		return "unknown"
	}
}

// Pattern selects which events a socket endpoint forwards. It is parsed once
// when the endpoint is built and never re-parsed per broadcast.
type Pattern struct {
	kind   PatternKind
	value  string
	prefix string // value + "." for KindCategory
}

// All returns the pattern that matches every event.
func All() Pattern {
	return Pattern{kind: KindAll, value: AllPattern}
}

// Category returns a pattern matching every event in the given category.
func Category(name string) (Pattern, error) {
	if name == AllPattern {
		return Pattern{}, fmt.Errorf("%w: %q is reserved", ErrInvalidPattern, name)
	}
	if strings.Contains(name, ".") {
		return Pattern{}, fmt.Errorf("%w: category %q contains a dot", ErrInvalidPattern, name)
	}
	if err := validateSegment(name); err != nil {
		return Pattern{}, err
	}
	return Pattern{kind: KindCategory, value: name, prefix: name + "."}, nil
}

// Exact returns a pattern matching a single dot-namespaced event name.
func Exact(name string) (Pattern, error) {
	segments := strings.Split(name, ".")
	if len(segments) < 2 {
		return Pattern{}, fmt.Errorf("%w: exact name %q needs a category", ErrInvalidPattern, name)
	}
	for _, seg := range segments {
		if err := validateSegment(seg); err != nil {
			return Pattern{}, fmt.Errorf("%q: %w", name, err)
		}
	}
	return Pattern{kind: KindExact, value: name}, nil
}

// ParsePattern interprets "all", "<category>" and "<category>.<rest>".
func ParsePattern(s string) (Pattern, error) {
	switch {
	case s == AllPattern:
		return All(), nil
	case strings.Contains(s, "."):
		return Exact(s)
	default:
		return Category(s)
	}
}

// MustParsePattern is ParsePattern for compile-time constants.
func MustParsePattern(s string) Pattern {
	p, err := ParsePattern(s)
	if err != nil {
		panic(err)
	}
	return p
}

// Kind returns the pattern form.
func (p Pattern) Kind() PatternKind { return p.kind }

// String returns the textual pattern.
func (p Pattern) String() string { return p.value }

// IsZero reports whether p was never initialised.
func (p Pattern) IsZero() bool { return p.value == "" }

// Matches reports whether the pattern selects the event name.
func (p Pattern) Matches(name string) bool {
	switch p.kind {
	case KindAll:
		return true
	case KindCategory:
		return strings.HasPrefix(name, p.prefix)
	case KindExact:
		return name == p.value
	default:
		return false
	}
}

// Category returns the category segment ("" for the all and zero patterns).
func (p Pattern) Category() string {
	if p.kind == KindAll || p.kind == kindInvalid {
		return ""
	}
	return CategoryOf(p.value)
}

// Rest returns everything after the category for exact patterns.
func (p Pattern) Rest() string {
	if p.kind != KindExact {
		return ""
	}
	return p.value[len(CategoryOf(p.value))+1:]
}

// validateSegment rejects segments that would escape the socket directory
// or produce unusable file names.
func validateSegment(seg string) error {
	switch {
	case seg == "":
		return fmt.Errorf("%w: empty segment", ErrInvalidPattern)
	case seg == "..":
		return fmt.Errorf("%w: segment %q", ErrInvalidPattern, seg)
	case strings.ContainsAny(seg, "/\\\x00"):
		return fmt.Errorf("%w: segment %q contains a path separator", ErrInvalidPattern, seg)
	}
	return nil
}
