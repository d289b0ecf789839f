package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// ContentType identifies what kind of node a record is.
type ContentType string

const (
	Folder    ContentType = "Folder"
	Extract   ContentType = "Extract"
	Cloze     ContentType = "Cloze"
	Image     ContentType = "Image"
	Occlusion ContentType = "Occlusion"
)

// ErrInvalidRecord is returned when a record fails validation.
var ErrInvalidRecord = errors.New("invalid record")

var validate = validator.New(validator.WithRequiredStructEnabled())

// IsValid reports whether c is one of the known content types.
func (c ContentType) IsValid() bool {
	switch c {
	case Folder, Extract, Cloze, Image, Occlusion:
		return true
	}
	return false
}

// Record is a single node in the user's tree. The ID is a slash-delimited
// path: everything before the last "/" is the parent's ID.
type Record struct {
	ID          string          `json:"id" validate:"required"`
	ContentType ContentType     `json:"contentType" validate:"required,oneof=Folder Extract Cloze Image Occlusion"`
	Content     json.RawMessage `json:"content,omitempty"`
	Clozes      []ClozeSpan     `json:"clozes,omitempty" validate:"dive"`
	Occlusions  []Region        `json:"occlusions,omitempty"`
	Span        *Span           `json:"span,omitempty"`   // Cloze records: span within the parent extract.
	Region      *Region         `json:"region,omitempty"` // Occlusion records: mask within the parent image.
	URL         string          `json:"url,omitempty"`

	// Scheduling state. Nil until the first review.
	Priority             *int       `json:"priority,omitempty"`
	Repetition           *int       `json:"repetition,omitempty" validate:"omitempty,gte=0"`
	TotalRepetitionCount *int       `json:"totalRepetitionCount,omitempty" validate:"omitempty,gte=0"`
	Interval             *int       `json:"interval,omitempty" validate:"omitempty,gte=0"`
	Efactor              *float64   `json:"efactor,omitempty" validate:"omitempty,gte=1.3"`
	DueDate              *time.Time `json:"dueDate,omitempty"`

	IsFlagged bool `json:"isFlagged,omitempty"`
	IsPublic  bool `json:"isPublic,omitempty"`
}

// ClozeSpan is a sub-span of an extract's text that has been turned into a
// cloze record.
type ClozeSpan struct {
	Text        string `json:"cloze"`
	StartOffset int    `json:"startindex" validate:"gte=0"`
	StopOffset  int    `json:"stopindex" validate:"gtefield=StartOffset"`
}

// Span returns the offsets of the cloze.
func (c ClozeSpan) Span() Span {
	return Span{StartOffset: c.StartOffset, StopOffset: c.StopOffset}
}

// Span is a [StartOffset, StopOffset) range of text.
type Span struct {
	StartOffset int `json:"startindex"`
	StopOffset  int `json:"stopindex"`
}

// Region is an image mask rectangle.
type Region struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Validate checks the record's type, ID shape and scheduling fields.
func (r Record) Validate() error {
	if err := validate.Struct(r); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidRecord, r.ID, err)
	}
	for _, seg := range strings.Split(r.ID, "/") {
		if seg == "" {
			return fmt.Errorf("%w: %q has an empty path segment", ErrInvalidRecord, r.ID)
		}
	}
	return nil
}

// Clone returns a deep copy of the record.
func (r Record) Clone() Record {
	out := r
	if r.Content != nil {
		out.Content = append(json.RawMessage(nil), r.Content...)
	}
	if r.Clozes != nil {
		out.Clozes = append([]ClozeSpan(nil), r.Clozes...)
	}
	if r.Occlusions != nil {
		out.Occlusions = append([]Region(nil), r.Occlusions...)
	}
	out.Span = clonePtr(r.Span)
	out.Region = clonePtr(r.Region)
	out.Priority = clonePtr(r.Priority)
	out.Repetition = clonePtr(r.Repetition)
	out.TotalRepetitionCount = clonePtr(r.TotalRepetitionCount)
	out.Interval = clonePtr(r.Interval)
	out.Efactor = clonePtr(r.Efactor)
	out.DueDate = clonePtr(r.DueDate)
	return out
}

// RecordPatch carries partial changes to a record. Nil fields are left
// untouched. The ID cannot be patched; relocating a record is a move.
type RecordPatch struct {
	ContentType          *ContentType
	Content              *json.RawMessage
	Clozes               *[]ClozeSpan
	Occlusions           *[]Region
	URL                  *string
	Priority             *int
	Repetition           *int
	TotalRepetitionCount *int
	Interval             *int
	Efactor              *float64
	DueDate              *time.Time
	IsFlagged            *bool
	IsPublic             *bool
}

// Apply returns a copy of r with the patch merged in.
func (p RecordPatch) Apply(r Record) Record {
	out := r.Clone()
	if p.ContentType != nil {
		out.ContentType = *p.ContentType
	}
	if p.Content != nil {
		out.Content = append(json.RawMessage(nil), (*p.Content)...)
	}
	if p.Clozes != nil {
		out.Clozes = append([]ClozeSpan(nil), (*p.Clozes)...)
	}
	if p.Occlusions != nil {
		out.Occlusions = append([]Region(nil), (*p.Occlusions)...)
	}
	if p.URL != nil {
		out.URL = *p.URL
	}
	if p.Priority != nil {
		out.Priority = clonePtr(p.Priority)
	}
	if p.Repetition != nil {
		out.Repetition = clonePtr(p.Repetition)
	}
	if p.TotalRepetitionCount != nil {
		out.TotalRepetitionCount = clonePtr(p.TotalRepetitionCount)
	}
	if p.Interval != nil {
		out.Interval = clonePtr(p.Interval)
	}
	if p.Efactor != nil {
		out.Efactor = clonePtr(p.Efactor)
	}
	if p.DueDate != nil {
		out.DueDate = clonePtr(p.DueDate)
	}
	if p.IsFlagged != nil {
		out.IsFlagged = *p.IsFlagged
	}
	if p.IsPublic != nil {
		out.IsPublic = *p.IsPublic
	}
	return out
}

// Ptr returns a pointer to v. Handy for building patches.
func Ptr[T any](v T) *T {
	return &v
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
