package domain

import "strings"

// BrandDelimiter separates brand names in the persisted mechanic record.
const BrandDelimiter = ","

// BrandSet is an ordered set of brand names. Order is first-seen order.
type BrandSet []string

// NewBrandSet trims names and drops empties and duplicates, keeping the first occurrence.
func NewBrandSet(names ...string) BrandSet {
	out := make(BrandSet, 0, len(names))
	seen := make(map[string]struct{}, len(names))
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}
	return out
}

// ParseBrandSet splits the stored comma-joined representation.
func ParseBrandSet(joined string) BrandSet {
	if joined == "" {
		return BrandSet{}
	}
	return NewBrandSet(strings.Split(joined, BrandDelimiter)...)
}

// Contains matches exactly; brand names are case-sensitive.
func (s BrandSet) Contains(brand string) bool {
	for _, b := range s {
		if b == brand {
			return true
		}
	}
	return false
}

// Join returns the stored representation.
func (s BrandSet) Join() string {
	return strings.Join(s, BrandDelimiter)
}

func (s BrandSet) String() string {
	return s.Join()
}

// ValidBrandName reports whether name can round-trip through the stored format.
func ValidBrandName(name string) bool {
	name = strings.TrimSpace(name)
	return name != "" && !strings.Contains(name, BrandDelimiter)
}
