package version

import (
	"fmt"
	"strings"
)

type constraintOp int

const (
	opLatest constraintOp = iota
	opExact
	opCaret
	opTilde
	opAtLeast
)

// Constraint selects versions during module resolution.
//
//	"", "latest"  any version
//	"1.2.3"       exactly 1.2.3 ("=1.2.3" also accepted)
//	"^1.2.3"      >= 1.2.3 within major 1
//	"~1.2.3"      >= 1.2.3 within 1.2
//	">=1.2.3"     >= 1.2.3
type Constraint struct {
	op   constraintOp
	base Version
}

// Latest matches every version.
var Latest = Constraint{op: opLatest}

// Exact matches only v.
func Exact(v Version) Constraint {
	return Constraint{op: opExact, base: v}
}

func ParseConstraint(raw string) (Constraint, error) {
	s := strings.TrimSpace(raw)
	if s == "" || strings.EqualFold(s, "latest") {
		return Latest, nil
	}
	op := opExact
	switch {
	case strings.HasPrefix(s, ">="):
		op, s = opAtLeast, s[2:]
	case strings.HasPrefix(s, "^"):
		op, s = opCaret, s[1:]
	case strings.HasPrefix(s, "~"):
		op, s = opTilde, s[1:]
	case strings.HasPrefix(s, "="):
		s = s[1:]
	}
	base, err := Parse(s)
	if err != nil {
		return Constraint{}, fmt.Errorf("%w: %q: %v", ErrInvalidConstraint, raw, err)
	}
	return Constraint{op: op, base: base}, nil
}

func (c Constraint) IsLatest() bool {
	return c.op == opLatest
}

// Matches reports whether v satisfies the constraint.
func (c Constraint) Matches(v Version) bool {
	switch c.op {
	case opLatest:
		return true
	case opExact:
		return v.Compare(c.base) == 0
	case opCaret:
		return v.Compare(c.base) >= 0 && v.Major() == c.base.Major()
	case opTilde:
		return v.Compare(c.base) >= 0 && v.MajorMinor() == c.base.MajorMinor()
	case opAtLeast:
		return v.Compare(c.base) >= 0
	default:
		return false
	}
}

// Select returns the highest version in vs matching c.
func (c Constraint) Select(vs []Version) (Version, bool) {
	var matched []Version
	for _, v := range vs {
		if c.Matches(v) {
			matched = append(matched, v)
		}
	}
	return Max(matched)
}

func (c Constraint) String() string {
	switch c.op {
	case opLatest:
		return "latest"
	case opCaret:
		return "^" + c.base.String()
	case opTilde:
		return "~" + c.base.String()
	case opAtLeast:
		return ">=" + c.base.String()
	default:
		return c.base.String()
	}
}
