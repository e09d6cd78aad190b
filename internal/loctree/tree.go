// Package loctree indexes the flat location list into a forest so that site and
// descendant lookups do not re-walk the raw rows on every request.
package loctree

import (
	"sort"
	"strings"

	"github.com/pobtrack/pob-backend/internal/models"
)

// Node is a location with its children, ordered by name
type Node struct {
	models.Location
	Children []*Node `json:"children"`
}

// Tree is an immutable index over locations. It is safe for concurrent reads.
type Tree struct {
	nodes map[int64]*Node
	roots []*Node
}

// Build indexes locations by parent. Locations whose parent is missing from the list become
// roots, and so do locations sitting on a parent cycle.
func Build(locations []models.Location) *Tree {
	t := &Tree{nodes: make(map[int64]*Node, len(locations))}
	for _, loc := range locations {
		t.nodes[loc.ID] = &Node{Location: loc}
	}

	for _, loc := range locations {
		n := t.nodes[loc.ID]
		if loc.ParentID == nil || *loc.ParentID == loc.ID || t.closesCycle(loc.ID, *loc.ParentID) {
			t.roots = append(t.roots, n)
			continue
		}
		parent, ok := t.nodes[*loc.ParentID]
		if !ok {
			t.roots = append(t.roots, n)
			continue
		}
		parent.Children = append(parent.Children, n)
	}

	sortNodes(t.roots)
	for _, n := range t.nodes {
		sortNodes(n.Children)
	}
	return t
}

// closesCycle reports whether linking id under parentID would make id its own ancestor
func (t *Tree) closesCycle(id, parentID int64) bool {
	seen := map[int64]bool{id: true}
	cur := parentID
	for {
		if seen[cur] {
			return true
		}
		seen[cur] = true
		n, ok := t.nodes[cur]
		if !ok || n.ParentID == nil {
			return false
		}
		cur = *n.ParentID
	}
}

func sortNodes(nodes []*Node) {
	sort.SliceStable(nodes, func(i, j int) bool {
		a, b := strings.ToLower(nodes[i].Name), strings.ToLower(nodes[j].Name)
		if a == b {
			return nodes[i].ID < nodes[j].ID
		}
		return a < b
	})
}

// Get returns the location with the given id
func (t *Tree) Get(id int64) (*models.Location, bool) {
	n, ok := t.nodes[id]
	if !ok {
		return nil, false
	}
	loc := n.Location
	return &loc, true
}

// Roots returns the top-level nodes in name order
func (t *Tree) Roots() []*Node {
	return t.roots
}

// Len returns the number of indexed locations
func (t *Tree) Len() int {
	return len(t.nodes)
}

// Parent returns the parent of id, if it is part of the tree
func (t *Tree) Parent(id int64) (*models.Location, bool) {
	n, ok := t.nodes[id]
	if !ok || n.ParentID == nil {
		return nil, false
	}
	return t.Get(*n.ParentID)
}

// FindSiteAncestor walks up from id (inclusive) and returns the first SITE. A missing id or
// a chain with no SITE yields nil, which callers treat as the global scope.
func (t *Tree) FindSiteAncestor(id int64) *models.Location {
	seen := make(map[int64]bool)
	cur, ok := t.nodes[id]
	for ok && !seen[cur.ID] {
		if cur.Type == models.LocationTypeSite {
			loc := cur.Location
			return &loc
		}
		seen[cur.ID] = true
		if cur.ParentID == nil {
			return nil
		}
		cur, ok = t.nodes[*cur.ParentID]
	}
	return nil
}

// DescendantsOf returns every transitive child of id, of any type, excluding id itself
func (t *Tree) DescendantsOf(id int64) []models.Location {
	root, ok := t.nodes[id]
	if !ok {
		return nil
	}
	var out []models.Location
	stack := append([]*Node(nil), root.Children...)
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		out = append(out, n.Location)
		stack = append(stack, n.Children...)
	}
	return out
}

// SubtreeIDs returns id plus all its descendants as a set
func (t *Tree) SubtreeIDs(id int64) map[int64]struct{} {
	set := make(map[int64]struct{})
	if _, ok := t.nodes[id]; !ok {
		return set
	}
	set[id] = struct{}{}
	for _, d := range t.DescendantsOf(id) {
		set[d.ID] = struct{}{}
	}
	return set
}

// Flatten lists every location depth first, parents before their children, siblings by name
func (t *Tree) Flatten() []models.Location {
	out := make([]models.Location, 0, len(t.nodes))
	var walk func(nodes []*Node)
	walk = func(nodes []*Node) {
		for _, n := range nodes {
			out = append(out, n.Location)
			walk(n.Children)
		}
	}
	walk(t.roots)
	return out
}
