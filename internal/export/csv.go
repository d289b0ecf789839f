package export

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/conorfennell/neurapath/internal/domain"
)

var csvHeader = []string{
	"id", "contentType", "content", "url", "priority", "repetition",
	"totalRepetitionCount", "isFlagged", "interval", "efactor", "dueDate",
}

func writeCSV(w io.Writer, records []domain.Record) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("failed to write csv header: %w", err)
	}
	for _, r := range exportShape(domain.Database{Items: records}).Items {
		row := []string{
			r.ID,
			string(r.ContentType),
			string(r.Content),
			r.URL,
			formatInt(r.Priority),
			formatInt(r.Repetition),
			formatInt(r.TotalRepetitionCount),
			strconv.FormatBool(r.IsFlagged),
			formatInt(r.Interval),
			formatFloat(r.Efactor),
			formatTime(r.DueDate),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("failed to write csv row %s: %w", r.ID, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// readCSV reads rows by header name. Unknown columns are ignored and rows
// without an id or a known content type are skipped.
func readCSV(r io.Reader) ([]domain.Record, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read csv header: %w", err)
	}

	var out []domain.Record
	for line := 2; ; line++ {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read csv line %d: %w", line, err)
		}

		var rec domain.Record
		for i, name := range header {
			if i >= len(row) {
				break
			}
			if err := setField(&rec, name, row[i]); err != nil {
				return nil, fmt.Errorf("csv line %d, column %s: %w", line, name, err)
			}
		}
		if rec.ID == "" || !rec.ContentType.IsValid() {
			continue
		}
		if err := rec.Validate(); err != nil {
			return nil, fmt.Errorf("csv line %d: %w", line, err)
		}
		out = append(out, rec)
	}
}

func setField(rec *domain.Record, name, value string) error {
	if value == "" {
		return nil
	}
	var err error
	switch name {
	case "id":
		rec.ID = value
	case "contentType":
		rec.ContentType = domain.ContentType(value)
	case "content":
		if json.Valid([]byte(value)) {
			rec.Content = json.RawMessage(value)
		} else {
			rec.Content, err = json.Marshal(value)
		}
	case "url":
		rec.URL = value
	case "priority":
		rec.Priority, err = parseInt(value)
	case "repetition":
		rec.Repetition, err = parseInt(value)
	case "totalRepetitionCount":
		rec.TotalRepetitionCount, err = parseInt(value)
	case "isFlagged":
		rec.IsFlagged, err = strconv.ParseBool(value)
	case "interval":
		rec.Interval, err = parseInt(value)
	case "efactor":
		var f float64
		f, err = strconv.ParseFloat(value, 64)
		rec.Efactor = &f
	case "dueDate":
		var t time.Time
		t, err = time.Parse(time.RFC3339, value)
		rec.DueDate = &t
	}
	return err
}

func parseInt(s string) (*int, error) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return nil, err
	}
	return &n, nil
}

func formatInt(p *int) string {
	if p == nil {
		return ""
	}
	return strconv.Itoa(*p)
}

func formatFloat(p *float64) string {
	if p == nil {
		return ""
	}
	return strconv.FormatFloat(*p, 'f', -1, 64)
}

func formatTime(p *time.Time) string {
	if p == nil {
		return ""
	}
	return p.UTC().Format(time.RFC3339)
}
