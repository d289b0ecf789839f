// Package review builds the queue of records due for review and writes SM-2
// grades back into the store.
package review

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/conorfennell/neurapath/internal/domain"
	"github.com/conorfennell/neurapath/internal/sm2"
	"github.com/conorfennell/neurapath/internal/store"
)

// ErrNotReviewable is returned when grading a folder.
var ErrNotReviewable = errors.New("record cannot be reviewed")

// Reviewer grades records held in a store.
type Reviewer struct {
	store  *store.Store
	now    func() time.Time
	logger *slog.Logger
}

// New creates a reviewer over s. now may be nil.
func New(s *store.Store, now func() time.Time, logger *slog.Logger) *Reviewer {
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Reviewer{store: s, now: now, logger: logger}
}

// Due returns the store's records due now.
func (r *Reviewer) Due() []domain.Record {
	return Due(r.store.Records(), r.now())
}

// Due returns the non-folder records due at now: never-reviewed records first,
// then by due date, priority (lowest first, unset last) and ID.
func Due(records []domain.Record, now time.Time) []domain.Record {
	var out []domain.Record
	for _, rec := range records {
		if rec.IsDue(now) {
			out = append(out, rec)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		switch {
		case (a.DueDate == nil) != (b.DueDate == nil):
			return a.DueDate == nil
		case a.DueDate != nil && !a.DueDate.Equal(*b.DueDate):
			return a.DueDate.Before(*b.DueDate)
		case (a.Priority == nil) != (b.Priority == nil):
			return a.Priority != nil
		case a.Priority != nil && *a.Priority != *b.Priority:
			return *a.Priority < *b.Priority
		}
		return a.ID < b.ID
	})
	return out
}

// Grade schedules the record at id after a review graded g and stores the new
// state remotely. The profile's review counters are bumped as well. If only the
// remote update fails, the graded record is returned together with the error.
func (r *Reviewer) Grade(ctx context.Context, id string, g sm2.Grade) (domain.Record, error) {
	rec, ok := r.store.GetRecordByID(id)
	if !ok {
		return domain.Record{}, fmt.Errorf("%w: %s", store.ErrNotFound, id)
	}
	if rec.ContentType == domain.Folder {
		return domain.Record{}, fmt.Errorf("%w: %s is a folder", ErrNotReviewable, id)
	}

	repetition, efactor, interval := 0, sm2.DefaultEfactor, 1
	if rec.Repetition != nil {
		repetition = *rec.Repetition
	}
	if rec.Efactor != nil {
		efactor = *rec.Efactor
	}
	if rec.Interval != nil && *rec.Interval > 0 {
		interval = *rec.Interval
	}
	total := 1
	if rec.TotalRepetitionCount != nil {
		total = *rec.TotalRepetitionCount + 1
	}

	now := r.now()
	next, err := sm2.NextState(g, repetition, efactor, interval, now)
	if err != nil {
		return domain.Record{}, err
	}

	patch := domain.RecordPatch{
		Repetition:           domain.Ptr(next.Repetition),
		TotalRepetitionCount: domain.Ptr(total),
		Interval:             domain.Ptr(next.Interval),
		Efactor:              domain.Ptr(next.Efactor),
		DueDate:              domain.Ptr(next.DueDate),
	}
	updateErr := r.store.UpdateRecordRemotely(ctx, id, patch)
	r.store.UpdateProfile(func(p *domain.Profile) { p.RecordReview(now) })

	r.logger.Info("Record graded",
		"id", id,
		"grade", g,
		"interval", next.Interval,
		"efactor", next.Efactor,
		"due", next.DueDate.Format(time.DateOnly),
	)

	graded, _ := r.store.GetRecordByID(id)
	return graded, updateErr
}
