// Package tree implements the path algebra over slash-delimited record IDs.
//
// A record's ID is its full path. The substring before the last separator is
// the parent's ID; a record with no separator sits at the root. A record's
// subtree is the record itself plus every record whose ID starts with the
// record's ID followed by the separator.
package tree

import (
	"strings"

	"github.com/google/uuid"

	"github.com/conorfennell/neurapath/internal/domain"
)

// Separator delimits path segments.
const Separator = "/"

// ParentID returns the ID of id's parent, or false for a root item.
func ParentID(id string) (string, bool) {
	i := strings.LastIndex(id, Separator)
	if i < 0 {
		return "", false
	}
	return id[:i], true
}

// Name returns the last path segment of id.
func Name(id string) string {
	return id[strings.LastIndex(id, Separator)+1:]
}

// Join builds a child ID. An empty parent yields a root-level ID.
func Join(parent, name string) string {
	if parent == "" {
		return name
	}
	return parent + Separator + name
}

// IsDescendant reports whether id lies strictly below ancestor.
func IsDescendant(id, ancestor string) bool {
	return len(id) > len(ancestor)+1 && strings.HasPrefix(id, ancestor+Separator)
}

// InSubtree reports whether id is root itself or one of its descendants.
func InSubtree(id, root string) bool {
	return id == root || IsDescendant(id, root)
}

// SubtreeOf returns the records in root's subtree, in input order.
func SubtreeOf(records []domain.Record, root string) []domain.Record {
	var out []domain.Record
	for _, r := range records {
		if InSubtree(r.ID, root) {
			out = append(out, r)
		}
	}
	return out
}

// RebasePath replaces the leading oldPrefix of id with newPrefix. IDs outside
// oldPrefix's subtree are returned unchanged.
func RebasePath(id, oldPrefix, newPrefix string) string {
	if !InSubtree(id, oldPrefix) {
		return id
	}
	return newPrefix + id[len(oldPrefix):]
}

// ValidName reports whether name can be used as a single path segment.
func ValidName(name string) bool {
	return name != "" && !strings.Contains(name, Separator)
}

// ValidID reports whether id is a non-empty path with no empty segments.
func ValidID(id string) bool {
	if id == "" {
		return false
	}
	for _, seg := range strings.Split(id, Separator) {
		if seg == "" {
			return false
		}
	}
	return true
}

// NewName returns a short random name segment for a new record.
func NewName() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}
