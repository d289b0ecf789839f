package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/conorfennell/neurapath/internal/domain"
	"github.com/conorfennell/neurapath/internal/session"
	"github.com/conorfennell/neurapath/internal/tree"
)

// AddRecord stores rec and replicates it as a create. A record whose ID is
// already taken is ignored; callers check for collisions first. A remote
// failure is returned but the record stays in local state.
func (s *Store) AddRecord(ctx context.Context, rec domain.Record) error {
	if err := rec.Validate(); err != nil {
		return err
	}
	rec = rec.Clone()
	rec.Content = domain.SanitizeContent(rec.Content, s.policy)
	replicate := s.replicating(ctx)

	s.mu.Lock()
	if _, exists := s.records[rec.ID]; exists {
		s.mu.Unlock()
		s.logger.Debug("Ignoring add of existing record", "id", rec.ID)
		return nil
	}
	s.putLocked(rec)
	s.noteNewItemLocked()
	if replicate {
		s.outbox.Create(rec)
	}
	s.mu.Unlock()

	if !replicate {
		return nil
	}
	return s.replicate(ctx, rec.ID)
}

// UpdateRecordLocally merges patch into the record at id. Missing records are
// ignored. Nothing is sent to the remote.
func (s *Store) UpdateRecordLocally(id string, patch domain.RecordPatch) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updateLocked(id, patch)
}

// UpdateRecordRemotely merges patch locally and then pushes the full merged
// record to the remote when a session is active.
func (s *Store) UpdateRecordRemotely(ctx context.Context, id string, patch domain.RecordPatch) error {
	replicate := s.replicating(ctx)

	s.mu.Lock()
	updated, ok := s.updateLocked(id, patch)
	if ok && replicate {
		s.outbox.Update(updated)
	}
	s.mu.Unlock()

	if !ok || !replicate {
		return nil
	}
	return s.replicate(ctx, id)
}

func (s *Store) updateLocked(id string, patch domain.RecordPatch) (domain.Record, bool) {
	current, ok := s.records[id]
	if !ok {
		return domain.Record{}, false
	}
	updated := patch.Apply(current)
	updated.Content = domain.SanitizeContent(updated.Content, s.policy)
	s.records[id] = updated
	return updated, true
}

// RemoveRecordByID removes exactly the record at id. Removing a cloze drops
// its span from the parent extract's cloze list; removing an occlusion drops
// its region from the parent image. The delete and any parent repair are
// both replicated.
func (s *Store) RemoveRecordByID(ctx context.Context, id string) error {
	replicate := s.replicating(ctx)

	s.mu.Lock()
	rec, ok := s.records[id]
	if !ok {
		s.mu.Unlock()
		return nil
	}
	s.deleteLocked(id)
	ids := []string{id}
	if replicate {
		s.outbox.Delete(id)
	}
	if parent, repaired := s.repairParentLocked(rec); repaired {
		ids = append(ids, parent.ID)
		if replicate {
			s.outbox.Update(parent)
		}
	}
	s.mu.Unlock()

	if !replicate {
		return nil
	}
	return s.replicate(ctx, ids...)
}

// repairParentLocked removes the span or region that child was cut from out
// of its parent. Only the first matching entry is removed. A cloze without a
// span matches the first entry with its text.
func (s *Store) repairParentLocked(child domain.Record) (domain.Record, bool) {
	parentID, ok := tree.ParentID(child.ID)
	if !ok {
		return domain.Record{}, false
	}
	parent, ok := s.records[parentID]
	if !ok {
		return domain.Record{}, false
	}

	switch {
	case child.ContentType == domain.Cloze && parent.ContentType == domain.Extract:
		text := domain.PlainText(child.Content)
		for i, c := range parent.Clozes {
			// Records written before spans existed are matched by their text.
			if (child.Span != nil && c.Span() == *child.Span) || (child.Span == nil && text != "" && c.Text == text) {
				parent = parent.Clone()
				parent.Clozes = append(parent.Clozes[:i], parent.Clozes[i+1:]...)
				s.records[parentID] = parent
				return parent, true
			}
		}
	case child.ContentType == domain.Occlusion && parent.ContentType == domain.Image && child.Region != nil:
		for i, o := range parent.Occlusions {
			if o == *child.Region {
				parent = parent.Clone()
				parent.Occlusions = append(parent.Occlusions[:i], parent.Occlusions[i+1:]...)
				s.records[parentID] = parent
				return parent, true
			}
		}
	}
	return domain.Record{}, false
}

// RemoveFolderAndContents removes folderID and its whole subtree. Remotely it
// deletes each record and then saves the full database, so the backend
// converges even if a delete is lost.
func (s *Store) RemoveFolderAndContents(ctx context.Context, folderID string) error {
	replicate := s.replicating(ctx)

	s.mu.Lock()
	ids := s.index.Subtree(folderID)
	for _, id := range ids {
		s.deleteLocked(id)
		if replicate {
			s.outbox.Delete(id)
		}
	}
	s.mu.Unlock()

	if !replicate || len(ids) == 0 {
		return nil
	}
	var errs []error
	if err := s.replicate(ctx, ids...); err != nil {
		errs = append(errs, err)
	}
	cred, _ := session.FromContext(ctx)
	if err := s.SaveDatabase(ctx, cred.UserID); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// AddCloze cuts cloze out of the extract at extractID: it materialises a child
// Cloze record and appends the span to the extract, keeping the two in step.
func (s *Store) AddCloze(ctx context.Context, extractID string, cloze domain.ClozeSpan) (domain.Record, error) {
	span := cloze.Span()
	return s.addDerived(ctx, extractID, domain.Extract, func(parent *domain.Record) domain.Record {
		parent.Clozes = append(parent.Clozes, cloze)
		return domain.Record{
			ContentType: domain.Cloze,
			Content:     domain.TextContent(cloze.Text),
			Span:        &span,
		}
	})
}

// AddOcclusion masks region on the image at imageID, materialising a child
// Occlusion record that shares the image's URL.
func (s *Store) AddOcclusion(ctx context.Context, imageID string, region domain.Region) (domain.Record, error) {
	return s.addDerived(ctx, imageID, domain.Image, func(parent *domain.Record) domain.Record {
		parent.Occlusions = append(parent.Occlusions, region)
		r := region
		return domain.Record{
			ContentType: domain.Occlusion,
			URL:         parent.URL,
			Region:      &r,
		}
	})
}

func (s *Store) addDerived(ctx context.Context, parentID string, want domain.ContentType, derive func(parent *domain.Record) domain.Record) (domain.Record, error) {
	replicate := s.replicating(ctx)

	s.mu.Lock()
	parent, ok := s.records[parentID]
	if !ok {
		s.mu.Unlock()
		return domain.Record{}, fmt.Errorf("%w: %s", ErrNotFound, parentID)
	}
	if parent.ContentType != want {
		s.mu.Unlock()
		return domain.Record{}, fmt.Errorf("%w: %s is a %s, not a %s", domain.ErrInvalidRecord, parentID, parent.ContentType, want)
	}

	parent = parent.Clone()
	child := derive(&parent)
	child.ID = s.freeChildIDLocked(parentID)
	if err := child.Validate(); err != nil {
		s.mu.Unlock()
		return domain.Record{}, err
	}
	s.records[parentID] = parent
	s.putLocked(child)
	s.noteNewItemLocked()
	if replicate {
		s.outbox.Create(child)
		s.outbox.Update(parent)
	}
	s.mu.Unlock()

	if !replicate {
		return child.Clone(), nil
	}
	return child.Clone(), s.replicate(ctx, child.ID, parentID)
}

func (s *Store) freeChildIDLocked(parentID string) string {
	for {
		id := tree.Join(parentID, tree.NewName())
		if !s.index.Has(id) {
			return id
		}
	}
}

func (s *Store) noteNewItemLocked() {
	s.ensureProfileLocked()
	if s.profile.Statistics == nil {
		s.profile.Statistics = map[string]domain.DayStats{}
	}
	day := domain.DayKey(s.now())
	stats := s.profile.Statistics[day]
	stats.NewItemsCount++
	s.profile.Statistics[day] = stats
}
