package tree

import "sort"

// Index keeps an explicit parent -> children map over a set of IDs so that
// subtree and collision queries do not need to scan every record.
//
// Intermediate paths that have no record of their own are kept as implicit
// nodes, so Subtree always agrees with the prefix definition in SubtreeOf.
type Index struct {
	present  map[string]bool
	children map[string]map[string]struct{}
}

const rootKey = ""

// NewIndex builds an index over ids.
func NewIndex(ids ...string) *Index {
	ix := &Index{
		present:  make(map[string]bool, len(ids)),
		children: make(map[string]map[string]struct{}),
	}
	for _, id := range ids {
		ix.Add(id)
	}
	return ix
}

// Len returns the number of indexed IDs.
func (ix *Index) Len() int {
	return len(ix.present)
}

// Has reports whether id is indexed.
func (ix *Index) Has(id string) bool {
	return ix.present[id]
}

// Add indexes id, linking it and any missing ancestors under their parents.
// The empty ID names the root, not a record, and is ignored.
func (ix *Index) Add(id string) {
	if id == rootKey {
		return
	}
	ix.present[id] = true
	child := id
	for {
		parent, ok := ParentID(child)
		if !ok {
			parent = rootKey
		}
		kids := ix.children[parent]
		if kids == nil {
			kids = make(map[string]struct{})
			ix.children[parent] = kids
		}
		if _, linked := kids[child]; linked || child == rootKey {
			return
		}
		kids[child] = struct{}{}
		if !ok {
			return
		}
		child = parent
	}
}

// Remove drops id from the index and prunes implicit ancestors that no
// longer lead to any indexed ID.
func (ix *Index) Remove(id string) {
	delete(ix.present, id)
	node := id
	for !ix.present[node] && len(ix.children[node]) == 0 {
		delete(ix.children, node)
		parent, ok := ParentID(node)
		if !ok {
			parent = rootKey
		}
		kids := ix.children[parent]
		delete(kids, node)
		if !ok {
			if len(kids) == 0 {
				delete(ix.children, rootKey)
			}
			return
		}
		node = parent
	}
}

// Children returns the indexed IDs directly below id, sorted. Pass "" for
// root items. Implicit intermediate nodes are not reported.
func (ix *Index) Children(id string) []string {
	var out []string
	for child := range ix.children[id] {
		if ix.present[child] {
			out = append(out, child)
		}
	}
	sort.Strings(out)
	return out
}

// Subtree returns root (if indexed) and every indexed descendant, sorted.
// The empty ID has no subtree.
func (ix *Index) Subtree(root string) []string {
	if root == rootKey {
		return nil
	}
	var out []string
	stack := []string{root}
	for len(stack) > 0 {
		node := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if ix.present[node] {
			out = append(out, node)
		}
		for child := range ix.children[node] {
			stack = append(stack, child)
		}
	}
	sort.Strings(out)
	return out
}
