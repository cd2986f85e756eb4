// Package version parses and orders module versions.
//
// Versions are major.minor.patch with optional pre-release and build
// suffixes, ordered by semantic-version precedence.
package version

import (
	"errors"
	"fmt"
	"strings"

	"golang.org/x/mod/semver"
)

var (
	ErrInvalidVersion    = errors.New("version: invalid version")
	ErrInvalidConstraint = errors.New("version: invalid constraint")
)

// Version is a parsed semantic version. The zero value is invalid.
type Version struct {
	canonical string
}

// Parse accepts "1.2.3" or "v1.2.3"; all three core components are required.
func Parse(raw string) (Version, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return Version{}, fmt.Errorf("%w: empty", ErrInvalidVersion)
	}
	if !strings.HasPrefix(s, "v") {
		s = "v" + s
	}
	if !semver.IsValid(s) {
		return Version{}, fmt.Errorf("%w: %q", ErrInvalidVersion, raw)
	}
	core := s
	if i := strings.IndexAny(core, "-+"); i >= 0 {
		core = core[:i]
	}
	if strings.Count(core, ".") != 2 {
		return Version{}, fmt.Errorf("%w: %q must be major.minor.patch", ErrInvalidVersion, raw)
	}
	return Version{canonical: s}, nil
}

// MustParse is Parse for constants.
func MustParse(raw string) Version {
	v, err := Parse(raw)
	if err != nil {
		panic(err)
	}
	return v
}

func (v Version) IsZero() bool {
	return v.canonical == ""
}

// String renders the version without the leading "v".
func (v Version) String() string {
	return strings.TrimPrefix(v.canonical, "v")
}

// Compare returns -1, 0, or +1 by precedence. Build metadata is ignored.
func (v Version) Compare(o Version) int {
	return semver.Compare(v.canonical, o.canonical)
}

func (v Version) Less(o Version) bool {
	return v.Compare(o) < 0
}

func (v Version) Major() string {
	return strings.TrimPrefix(semver.Major(v.canonical), "v")
}

func (v Version) MajorMinor() string {
	return strings.TrimPrefix(semver.MajorMinor(v.canonical), "v")
}

func (v Version) MarshalText() ([]byte, error) {
	return []byte(v.String()), nil
}

func (v *Version) UnmarshalText(b []byte) error {
	parsed, err := Parse(string(b))
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

// Max returns the highest version in vs, or false when vs is empty.
func Max(vs []Version) (Version, bool) {
	if len(vs) == 0 {
		return Version{}, false
	}
	best := vs[0]
	for _, v := range vs[1:] {
		if best.Less(v) {
			best = v
		}
	}
	return best, true
}

// Sort orders vs ascending in place.
func Sort(vs []Version) {
	raw := make([]string, len(vs))
	for i, v := range vs {
		raw[i] = v.canonical
	}
	semver.Sort(raw)
	for i, s := range raw {
		vs[i] = Version{canonical: s}
	}
}
