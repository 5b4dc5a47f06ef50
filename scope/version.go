package scope

import (
	"strconv"
	"strings"
)

// Version is a semantic version attached to a module name.
type Version struct {
	Major uint32
	Minor uint32
	Patch uint32
}

// ParseVersion parses "1", "1.2" or "1.2.3".
func ParseVersion(s string) (Version, bool) {
	parts := strings.Split(s, ".")
	if s == "" || len(parts) > 3 {
		return Version{}, false
	}
	var nums [3]uint32
	for i, p := range parts {
		if p == "" || strings.TrimLeft(p, "0123456789") != "" {
			return Version{}, false
		}
		n, err := strconv.ParseUint(p, 10, 32)
		if err != nil {
			return Version{}, false
		}
		nums[i] = uint32(n)
	}
	return Version{Major: nums[0], Minor: nums[1], Patch: nums[2]}, true
}

// Compatible reports whether a module at version v can serve an import
// asking for want: same major, and not older.
func (v Version) Compatible(want Version) bool {
	if v.Major != want.Major {
		return false
	}
	if v.Minor != want.Minor {
		return v.Minor > want.Minor
	}
	return v.Patch >= want.Patch
}

// Less orders versions.
func (v Version) Less(o Version) bool {
	if v.Major != o.Major {
		return v.Major < o.Major
	}
	if v.Minor != o.Minor {
		return v.Minor < o.Minor
	}
	return v.Patch < o.Patch
}

func (v Version) String() string {
	return strconv.FormatUint(uint64(v.Major), 10) + "." +
		strconv.FormatUint(uint64(v.Minor), 10) + "." +
		strconv.FormatUint(uint64(v.Patch), 10)
}

// SplitName splits "name@version". A suffix that is not a version stays
// part of the name.
func SplitName(s string) (string, *Version) {
	i := strings.LastIndexByte(s, '@')
	if i <= 0 {
		return s, nil
	}
	v, ok := ParseVersion(s[i+1:])
	if !ok {
		return s, nil
	}
	return s[:i], &v
}

// Serves reports whether a module registered as provider satisfies an
// import of module. Base names must match; when both carry a version the
// provider's must be compatible. An unversioned side matches any version.
func Serves(provider, module string) bool {
	pb, pv := SplitName(provider)
	mb, mv := SplitName(module)
	if pb != mb {
		return false
	}
	if pv == nil || mv == nil {
		return true
	}
	return pv.Compatible(*mv)
}

// key is the canonical form of a module name: versions are normalized to
// major.minor.patch.
func key(name string, v *Version) string {
	if v == nil {
		return name
	}
	return name + "@" + v.String()
}
