// Package menu assembles the PERSCOM section of the admin navigation.
// Routing, permission checks and plugin licensing belong to the host
// application and are reached through URLGenerator and VersionChecker.
package menu

import (
	"context"

	"github.com/unkn0wn-root/formcache/directory"
)

// Menu is a labeled node. A node with Items is a submenu; a node with a
// Link is a leaf. Icon and Permission are passed through to the renderer.
type Menu struct {
	Label      string  `json:"label"`
	Link       string  `json:"link,omitempty"`
	Icon       string  `json:"icon,omitempty"`
	Permission string  `json:"permission,omitempty"`
	Items      []*Menu `json:"items,omitempty"`
}

// Add appends items and returns m for chaining.
func (m *Menu) Add(items ...*Menu) *Menu {
	m.Items = append(m.Items, items...)
	return m
}

// Find returns the first direct child labeled label.
func (m *Menu) Find(label string) *Menu {
	for _, it := range m.Items {
		if it.Label == label {
			return it
		}
	}
	return nil
}

// URLGenerator turns a route name and parameters into a link.
type URLGenerator interface {
	Generate(route string, params map[string]string) string
}

// URLFunc adapts a function to URLGenerator.
type URLFunc func(route string, params map[string]string) string

func (f URLFunc) Generate(route string, params map[string]string) string { return f(route, params) }

// VersionChecker reports whether a plugin is installed at a given edition.
type VersionChecker interface {
	IsVersionInstalled(plugin, version string) bool
}

// Forms is what the builder needs from the form directory.
type Forms interface {
	Forms(ctx context.Context) directory.FormDirectory
}
