package probez

import (
	"slices"
	"sync/atomic"
)

// Category groups track events so sessions can select them by name or tag.
// A category is disabled until a started track event instance enables it.
type Category struct {
	name string
	tags []string

	// mask has bit i set while track event instance i enables the category.
	mask atomic.Uint32
}

// NewCategory returns a category. Register it with
// TrackEvent.RegisterCategories before use.
func NewCategory(name string, tags ...string) *Category {
	return &Category{name: name, tags: slices.Clone(tags)}
}

// Name returns the category name.
func (c *Category) Name() string {
	return c.name
}

// Tags returns the category tags.
func (c *Category) Tags() []string {
	return slices.Clone(c.tags)
}

// Enabled reports whether any instance enables the category.
func (c *Category) Enabled() bool {
	return c.mask.Load() != 0
}

// InstanceMask returns the instances enabling the category as a bitmask.
func (c *Category) InstanceMask() uint32 {
	return c.mask.Load()
}
