package export

import (
	"bytes"
	"encoding/json"
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/conorfennell/neurapath/internal/domain"
)

var due = time.Date(2025, 6, 21, 10, 0, 0, 0, time.UTC)

func sample() domain.Database {
	prof := domain.DefaultProfile()
	return domain.Database{
		Items: []domain.Record{
			{ID: "bio/cell", ContentType: domain.Extract, Content: domain.TextContent("the cell, \"quoted\"\nsecond line"),
				Clozes: []domain.ClozeSpan{{Text: "cell", StartOffset: 4, StopOffset: 8}}},
			{ID: "bio", ContentType: domain.Folder},
			{ID: "bio/cell/c1", ContentType: domain.Cloze, Span: &domain.Span{StartOffset: 4, StopOffset: 8},
				Priority: domain.Ptr(2), Repetition: domain.Ptr(1), TotalRepetitionCount: domain.Ptr(3),
				Interval: domain.Ptr(6), Efactor: domain.Ptr(2.36), DueDate: &due, IsFlagged: true},
			{ID: "pics", ContentType: domain.Image, URL: "https://example.com/a.png"},
		},
		Profile: &prof,
	}
}

// canon renders records as compact JSON so formats can be compared.
func canon(t *testing.T, records []domain.Record) []string {
	t.Helper()
	out := make([]string, 0, len(records))
	for _, r := range records {
		b, err := json.Marshal(r)
		if err != nil {
			t.Fatal(err)
		}
		out = append(out, string(b))
	}
	return out
}

func TestRoundTrip(t *testing.T) {
	want := sample().Payload()

	for _, f := range []Format{JSON, YAML} {
		t.Run(string(f), func(t *testing.T) {
			var buf bytes.Buffer
			if err := Write(&buf, sample(), f); err != nil {
				t.Fatalf("Write() error = %v", err)
			}
			got, err := Read(&buf, f)
			if err != nil {
				t.Fatalf("Read() error = %v", err)
			}
			if !reflect.DeepEqual(canon(t, got.Items), canon(t, want.Records)) {
				t.Errorf("records changed:\n got %v\nwant %v", canon(t, got.Items), canon(t, want.Records))
			}
			if got.Profile == nil || got.Profile.Theme != want.Profile.Theme || len(got.Profile.Shortcuts) != len(want.Profile.Shortcuts) {
				t.Errorf("profile changed: %+v", got.Profile)
			}
		})
	}
}

func TestCSVRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	if err := Write(&buf, sample(), CSV); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	header, _, _ := strings.Cut(buf.String(), "\n")
	if header != strings.Join(csvHeader, ",") {
		t.Errorf("header = %q", header)
	}

	got, err := Read(&buf, CSV)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if len(got.Items) != 4 || got.Profile != nil {
		t.Fatalf("got %d records, profile %v", len(got.Items), got.Profile)
	}

	// CSV has no columns for clozes and spans.
	want := sample().Payload().Records
	for i := range want {
		want[i].Clozes = nil
		want[i].Span = nil
	}
	if !reflect.DeepEqual(canon(t, got.Items), canon(t, want)) {
		t.Errorf("records changed:\n got %v\nwant %v", canon(t, got.Items), canon(t, want))
	}
}

func TestReadCSV(t *testing.T) {
	testCases := []struct {
		name    string
		input   string
		wantIDs []string
		wantErr bool
	}{
		{name: "empty", input: "", wantIDs: nil},
		{name: "header only", input: "id,contentType\n", wantIDs: nil},
		{
			name:    "columns in any order",
			input:   "contentType,id,extra\nFolder,a,x\nExtract,a/b,y\n",
			wantIDs: []string{"a", "a/b"},
		},
		{
			name:    "rows without id or type are skipped",
			input:   "id,contentType\n,Folder\nb,Nonsense\nc,Folder\n",
			wantIDs: []string{"c"},
		},
		{name: "bad number", input: "id,contentType,priority\na,Folder,high\n", wantErr: true},
		{name: "bad path", input: "id,contentType\na//b,Folder\n", wantErr: true},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := readCSV(strings.NewReader(tc.input))
			if (err != nil) != tc.wantErr {
				t.Fatalf("readCSV() error = %v, wantErr %v", err, tc.wantErr)
			}
			var ids []string
			for _, r := range got {
				ids = append(ids, r.ID)
			}
			if !reflect.DeepEqual(ids, tc.wantIDs) {
				t.Errorf("ids = %v, want %v", ids, tc.wantIDs)
			}
		})
	}
}

func TestCSVPlainStringContent(t *testing.T) {
	got, err := readCSV(strings.NewReader("id,contentType,content\nx,Extract,hello there\n"))
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || domain.PlainText(got[0].Content) != "hello there" {
		t.Errorf("got %+v", got)
	}
}

func TestReadAcceptsLegacyShapes(t *testing.T) {
	for _, input := range []string{
		`{"items":[{"id":"a","contentType":"Folder"}]}`,
		`{"records":[{"id":"a","contentType":"Folder"}]}`,
		`[{"id":"a","contentType":"Folder"}]`,
	} {
		db, err := Read(strings.NewReader(input), JSON)
		if err != nil || len(db.Items) != 1 || db.Items[0].ID != "a" {
			t.Errorf("Read(%s) = (%+v, %v)", input, db, err)
		}
	}

	if _, err := Read(strings.NewReader(`{"items":[{"id":"a","contentType":"Folder"},{"id":"","contentType":"Folder"}]}`), JSON); !errors.Is(err, domain.ErrInvalidRecord) {
		t.Errorf("invalid record = %v, want ErrInvalidRecord", err)
	}
}

func TestParseFormat(t *testing.T) {
	testCases := []struct {
		in   string
		want Format
		err  bool
	}{
		{in: "json", want: JSON},
		{in: "YAML", want: YAML},
		{in: "yml", want: YAML},
		{in: " csv ", want: CSV},
		{in: "xml", err: true},
	}
	for _, tc := range testCases {
		got, err := ParseFormat(tc.in)
		if tc.err {
			if !errors.Is(err, ErrUnknownFormat) {
				t.Errorf("ParseFormat(%q) error = %v", tc.in, err)
			}
			continue
		}
		if err != nil || got != tc.want {
			t.Errorf("ParseFormat(%q) = (%q, %v)", tc.in, got, err)
		}
	}

	if f, err := FormatForPath("backup/db.yaml"); err != nil || f != YAML {
		t.Errorf("FormatForPath() = (%q, %v)", f, err)
	}
	if got := FileName("2025-06-15", CSV); got != "neurapath-database-2025-06-15.csv" {
		t.Errorf("FileName() = %q", got)
	}
}
