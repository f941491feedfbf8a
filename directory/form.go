package directory

import "iter"

// Form is a submission form definition owned by the remote system.
type Form struct {
	ID   string `json:"id" msgpack:"id"`
	Name string `json:"name" msgpack:"name"`
}

// FormDirectory maps form ids to display names in fetch order.
// Treat it as read-only; a refresh replaces it wholesale.
type FormDirectory []Form

// NewFormDirectory copies forms into a directory. When an id repeats, the
// first occurrence wins and keeps its position.
func NewFormDirectory(forms []Form) FormDirectory {
	out := make(FormDirectory, 0, len(forms))
	seen := make(map[string]struct{}, len(forms))
	for _, f := range forms {
		if _, dup := seen[f.ID]; dup {
			continue
		}
		seen[f.ID] = struct{}{}
		out = append(out, f)
	}
	return out
}

func (d FormDirectory) Len() int { return len(d) }

// Lookup returns the display name for id.
func (d FormDirectory) Lookup(id string) (string, bool) {
	for _, f := range d {
		if f.ID == id {
			return f.Name, true
		}
	}
	return "", false
}

// IDs returns form ids in fetch order.
func (d FormDirectory) IDs() []string {
	ids := make([]string, len(d))
	for i, f := range d {
		ids[i] = f.ID
	}
	return ids
}

// Map returns a fresh id -> name map. Iteration order of the map is random;
// use All for fetch order.
func (d FormDirectory) Map() map[string]string {
	m := make(map[string]string, len(d))
	for _, f := range d {
		m[f.ID] = f.Name
	}
	return m
}

// All yields (id, name) pairs in fetch order.
func (d FormDirectory) All() iter.Seq2[string, string] {
	return func(yield func(string, string) bool) {
		for _, f := range d {
			if !yield(f.ID, f.Name) {
				return
			}
		}
	}
}

// Equal reports whether both directories hold the same forms in the same
// order. nil and empty are equal.
func (d FormDirectory) Equal(o FormDirectory) bool {
	if len(d) != len(o) {
		return false
	}
	for i := range d {
		if d[i] != o[i] {
			return false
		}
	}
	return true
}
