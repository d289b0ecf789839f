package store

import (
	"context"
	"fmt"

	"github.com/conorfennell/neurapath/internal/domain"
	"github.com/conorfennell/neurapath/internal/tree"
)

// MoveItem moves itemID and its subtree under newParentPath. An empty
// newParentPath moves it to the root. If any rebased ID would collide with a
// record outside the moved subtree the move is refused with a *ConflictError
// and nothing changes.
func (s *Store) MoveItem(ctx context.Context, itemID, newParentPath string) error {
	if newParentPath != "" && tree.InSubtree(newParentPath, itemID) {
		return fmt.Errorf("%w: %s into %s", ErrInvalidMove, itemID, newParentPath)
	}
	return s.relocate(ctx, itemID, tree.Join(newParentPath, tree.Name(itemID)), newParentPath)
}

// RenameItem gives itemID a new last path segment, carrying its subtree along.
func (s *Store) RenameItem(ctx context.Context, itemID, newName string) error {
	if !tree.ValidName(newName) {
		return fmt.Errorf("invalid name %q", newName)
	}
	parent, _ := tree.ParentID(itemID)
	return s.relocate(ctx, itemID, tree.Join(parent, newName), "")
}

// relocate rebases itemID's subtree onto newID. A non-empty mustExist names a
// destination parent that has to be present.
func (s *Store) relocate(ctx context.Context, itemID, newID, mustExist string) error {
	if newID == itemID {
		return nil
	}
	replicate := s.replicating(ctx)

	s.mu.Lock()
	if !s.index.Has(itemID) {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotFound, itemID)
	}
	if mustExist != "" && !s.index.Has(mustExist) {
		s.mu.Unlock()
		return fmt.Errorf("%w: destination %s", ErrNotFound, mustExist)
	}

	oldIDs := s.index.Subtree(itemID)
	newIDs := make([]string, len(oldIDs))
	for i, id := range oldIDs {
		newIDs[i] = tree.RebasePath(id, itemID, newID)
		if s.index.Has(newIDs[i]) && !tree.InSubtree(newIDs[i], itemID) {
			s.mu.Unlock()
			return &ConflictError{ID: newIDs[i]}
		}
	}

	moved := make([]domain.Record, len(oldIDs))
	for i, id := range oldIDs {
		r := s.records[id]
		r.ID = newIDs[i]
		moved[i] = r
		s.deleteLocked(id)
	}
	for _, r := range moved {
		s.putLocked(r)
	}
	if replicate {
		for _, id := range oldIDs {
			s.outbox.Delete(id)
		}
		for _, r := range moved {
			s.outbox.Create(r)
		}
	}
	s.mu.Unlock()

	s.logger.Info("Moved item", "from", itemID, "to", newID, "records", len(moved))

	if !replicate {
		return nil
	}
	return s.replicate(ctx, append(oldIDs, newIDs...)...)
}
