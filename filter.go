package probez

import (
	"fmt"
	"path"
	"slices"
	"strings"
)

// tagPrefix marks a filter pattern that matches category tags.
const tagPrefix = "tag:"

// CategoryFilter allows or denies the categories matching Pattern. Pattern
// is an exact category name, a path.Match glob, the "*" wildcard, or
// "tag:<tag>" matching categories carrying that tag.
//
// The text form is "+pattern" (or just "pattern") for allow and "-pattern"
// for deny.
type CategoryFilter struct {
	Allow   bool
	Pattern string
}

// Allow returns an allow filter.
func Allow(pattern string) CategoryFilter {
	return CategoryFilter{Allow: true, Pattern: pattern}
}

// Deny returns a deny filter.
func Deny(pattern string) CategoryFilter {
	return CategoryFilter{Pattern: pattern}
}

// String implements fmt.Stringer.
func (f CategoryFilter) String() string {
	if f.Allow {
		return "+" + f.Pattern
	}
	return "-" + f.Pattern
}

// MarshalText implements encoding.TextMarshaler.
func (f CategoryFilter) MarshalText() ([]byte, error) {
	return []byte(f.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (f *CategoryFilter) UnmarshalText(text []byte) error {
	s := strings.TrimSpace(string(text))
	allow := true
	switch {
	case strings.HasPrefix(s, "+"):
		s = s[1:]
	case strings.HasPrefix(s, "-"):
		allow = false
		s = s[1:]
	}
	if s == "" || s == tagPrefix {
		return fmt.Errorf("%w: empty category filter %q", ErrInvalidConfig, string(text))
	}
	if _, err := path.Match(s, ""); err != nil {
		return fmt.Errorf("%w: category filter %q: %w", ErrInvalidConfig, string(text), err)
	}
	*f = CategoryFilter{Allow: allow, Pattern: s}
	return nil
}

// Tag returns the tag matched by a tag filter.
func (f CategoryFilter) Tag() (string, bool) {
	if t, ok := strings.CutPrefix(f.Pattern, tagPrefix); ok {
		return t, true
	}
	return "", false
}

const (
	matchNone = iota
	matchWildcard
	matchGlob
	matchTag
	matchExact
)

// match reports how specifically the filter matches a category.
func (f CategoryFilter) match(name string, tags []string) int {
	if tag, ok := f.Tag(); ok {
		if slices.Contains(tags, tag) {
			return matchTag
		}
		return matchNone
	}
	if f.Pattern == "*" {
		return matchWildcard
	}
	if !strings.ContainsAny(f.Pattern, `*?[\`) {
		if f.Pattern == name {
			return matchExact
		}
		return matchNone
	}
	if ok, _ := path.Match(f.Pattern, name); ok { //nolint:errcheck // validated on parse
		return matchGlob
	}
	return matchNone
}

// CategoryFilters is an ordered filter list.
type CategoryFilters []CategoryFilter

// Enabled decides whether a category passes the list. An empty list enables
// everything. Otherwise the most specific matching filter decides (exact name
// over tag over glob over "*"), a later filter overriding an earlier equally
// specific one. A category no filter matches is enabled only if the list
// has no allow filters.
func (fs CategoryFilters) Enabled(name string, tags []string) bool {
	if len(fs) == 0 {
		return true
	}
	best := matchNone
	enabled := true
	anyAllow := false
	for _, f := range fs {
		anyAllow = anyAllow || f.Allow
		if m := f.match(name, tags); m != matchNone && m >= best {
			best = m
			enabled = f.Allow
		}
	}
	if best == matchNone {
		return !anyAllow
	}
	return enabled
}

// EnabledCategory is Enabled for a registered category.
func (fs CategoryFilters) EnabledCategory(c *Category) bool {
	return fs.Enabled(c.name, c.tags)
}
