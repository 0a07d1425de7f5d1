package domain

import "strings"

// DefaultGroupIcon is used when a group is created without an icon.
const DefaultGroupIcon = "folder"

// Group is a named, ordered bucket of bookmarks. Names are unique per user,
// compared case-insensitively after trimming.
type Group struct {
	ID         string  `json:"id"`
	Name       string  `json:"name"`
	Icon       string  `json:"icon"`
	Color      *string `json:"color"`
	OrderIndex *int64  `json:"orderIndex"`
}

// Clone returns a deep copy of g.
func (g *Group) Clone() *Group {
	if g == nil {
		return nil
	}
	c := *g
	c.Color = cloneString(g.Color)
	c.OrderIndex = cloneInt64(g.OrderIndex)
	return &c
}

// Fill restores the invariants of a group coming from an untrusted source.
func (g *Group) Fill() {
	g.Name = strings.TrimSpace(g.Name)
	if strings.TrimSpace(g.Icon) == "" {
		g.Icon = DefaultGroupIcon
	}
	if g.Color != nil && strings.TrimSpace(*g.Color) == "" {
		g.Color = nil
	}
}

// NormalizeGroupName returns the comparison key for a group name.
func NormalizeGroupName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// ValidateGroupName rejects empty names.
func ValidateGroupName(name string) error {
	if strings.TrimSpace(name) == "" {
		return &ValidationError{Field: "name", Reason: "group name is required"}
	}
	return nil
}

// GroupPatch is a partial group update. A non-nil Color pointing at "" clears it.
type GroupPatch struct {
	Name       *string `json:"name,omitempty"`
	Icon       *string `json:"icon,omitempty"`
	Color      *string `json:"color,omitempty"`
	OrderIndex *int64  `json:"orderIndex,omitempty"`
}

// Apply writes the patch onto g.
func (p GroupPatch) Apply(g *Group) {
	if p.Name != nil {
		g.Name = strings.TrimSpace(*p.Name)
	}
	if p.Icon != nil {
		g.Icon = *p.Icon
	}
	if p.Color != nil {
		if *p.Color == "" {
			g.Color = nil
		} else {
			g.Color = cloneString(p.Color)
		}
	}
	if p.OrderIndex != nil {
		g.OrderIndex = cloneInt64(p.OrderIndex)
	}
	g.Fill()
}
