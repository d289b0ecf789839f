package domain

import (
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func TestRecordValidate(t *testing.T) {
	testCases := []struct {
		name    string
		record  Record
		wantErr bool
	}{
		{name: "root folder", record: Record{ID: "notes", ContentType: Folder}},
		{name: "nested extract", record: Record{ID: "notes/go/chan", ContentType: Extract}},
		{name: "unicode segments", record: Record{ID: "日本語/ノート", ContentType: Folder}},
		{name: "missing id", record: Record{ContentType: Folder}, wantErr: true},
		{name: "unknown type", record: Record{ID: "a", ContentType: "Video"}, wantErr: true},
		{name: "empty segment", record: Record{ID: "a//b", ContentType: Folder}, wantErr: true},
		{name: "trailing slash", record: Record{ID: "a/", ContentType: Folder}, wantErr: true},
		{name: "efactor below floor", record: Record{ID: "a", ContentType: Cloze, Efactor: Ptr(1.0)}, wantErr: true},
		{
			name: "inverted cloze span",
			record: Record{ID: "a", ContentType: Extract,
				Clozes: []ClozeSpan{{Text: "x", StartOffset: 5, StopOffset: 2}}},
			wantErr: true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.record.Validate()
			if tc.wantErr {
				if !errors.Is(err, ErrInvalidRecord) {
					t.Errorf("Expected ErrInvalidRecord, got %v", err)
				}
				return
			}
			if err != nil {
				t.Errorf("Validate() returned an unexpected error: %v", err)
			}
		})
	}
}

func TestRecordPatchApply(t *testing.T) {
	original := Record{
		ID:          "a/b",
		ContentType: Extract,
		Content:     TextContent("hello"),
		Clozes:      []ClozeSpan{{Text: "he", StartOffset: 0, StopOffset: 2}},
		Priority:    Ptr(3),
	}

	due := time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC)
	patched := RecordPatch{
		IsFlagged: Ptr(true),
		Interval:  Ptr(6),
		DueDate:   &due,
	}.Apply(original)

	if patched.ID != "a/b" || patched.ContentType != Extract {
		t.Errorf("Identity fields changed: %+v", patched)
	}
	if !patched.IsFlagged || *patched.Interval != 6 || !patched.DueDate.Equal(due) {
		t.Errorf("Patch not applied: %+v", patched)
	}
	if *patched.Priority != 3 || PlainText(patched.Content) != "hello" {
		t.Errorf("Untouched fields lost: %+v", patched)
	}

	// The merged copy must not alias the original.
	patched.Clozes[0].Text = "changed"
	*patched.Priority = 9
	if original.Clozes[0].Text != "he" || *original.Priority != 3 {
		t.Error("Apply returned a record sharing memory with the original")
	}
}

func TestPlainText(t *testing.T) {
	testCases := []struct {
		name    string
		content json.RawMessage
		want    string
	}{
		{name: "delta", content: json.RawMessage(`{"ops":[{"insert":"Hello "},{"insert":"world","attributes":{"bold":true}},{"insert":{"image":"x.png"}}]}`), want: "Hello world"},
		{name: "string", content: json.RawMessage(`"plain"`), want: "plain"},
		{name: "empty", content: nil, want: ""},
		{name: "number", content: json.RawMessage(`42`), want: ""},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := PlainText(tc.content); got != tc.want {
				t.Errorf("Expected %q, got %q", tc.want, got)
			}
		})
	}
}

func TestSanitizeContent(t *testing.T) {
	policy := ContentPolicy()

	dirty := json.RawMessage(`"<p>hi</p><script>alert(1)</script>"`)
	clean := SanitizeContent(dirty, policy)
	if PlainText(clean) != "<p>hi</p>" {
		t.Errorf("Expected script to be stripped, got %s", clean)
	}

	delta := TextContent("<b>kept as text</b>")
	if string(SanitizeContent(delta, policy)) != string(delta) {
		t.Error("Delta content should be returned unchanged")
	}
}

func TestProfileRecount(t *testing.T) {
	now := time.Date(2025, 6, 15, 10, 0, 0, 0, time.UTC)
	past := now.Add(-time.Hour)
	future := now.Add(48 * time.Hour)

	records := []Record{
		{ID: "f", ContentType: Folder},
		{ID: "f/e", ContentType: Extract, DueDate: &future},
		{ID: "f/e/c1", ContentType: Cloze, DueDate: &past},
		{ID: "f/e/c2", ContentType: Cloze},
		{ID: "img", ContentType: Image, DueDate: &future},
		{ID: "img/o", ContentType: Occlusion, DueDate: &future},
	}

	p := DefaultProfile()
	p.Recount(records, now)

	if p.FolderCount != 1 || p.ExtractCount != 1 || p.ClozeCount != 2 || p.OcclusionCount != 1 {
		t.Errorf("Unexpected counters: %+v", p)
	}
	if p.DueCount != 2 {
		t.Errorf("Expected 2 due records, got %d", p.DueCount)
	}

	p.RecordReview(now)
	p.RecordReview(now)
	if p.ReviewsTotalCount != 2 || p.Statistics["2025-06-15"].ReviewsCount != 2 {
		t.Errorf("Review counters not updated: %+v", p.Statistics)
	}
}
