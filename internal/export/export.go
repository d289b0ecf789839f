// Package export writes a database to a file format and reads it back.
package export

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/conorfennell/neurapath/internal/domain"
)

// Format is a supported file format.
type Format string

const (
	JSON Format = "json"
	YAML Format = "yaml"
	CSV  Format = "csv"
)

// ErrUnknownFormat is returned for a format that is not supported.
var ErrUnknownFormat = errors.New("unknown export format")

// ParseFormat accepts a format name, case-insensitively.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "json":
		return JSON, nil
	case "yaml", "yml":
		return YAML, nil
	case "csv":
		return CSV, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownFormat, s)
}

// FormatForPath picks the format from a file extension.
func FormatForPath(path string) (Format, error) {
	return ParseFormat(strings.TrimPrefix(filepath.Ext(path), "."))
}

// FileName returns the conventional export file name for a date key.
func FileName(day string, f Format) string {
	return "neurapath-database-" + day + "." + string(f)
}

// Write encodes db to w. CSV carries records only.
func Write(w io.Writer, db domain.Database, f Format) error {
	switch f {
	case JSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(exportShape(db)); err != nil {
			return fmt.Errorf("failed to write json: %w", err)
		}
		return nil
	case YAML:
		return writeYAML(w, db)
	case CSV:
		return writeCSV(w, db.Items)
	}
	return fmt.Errorf("%w: %q", ErrUnknownFormat, f)
}

// Read decodes a database from r.
func Read(r io.Reader, f Format) (domain.Database, error) {
	switch f {
	case JSON:
		raw, err := io.ReadAll(r)
		if err != nil {
			return domain.Database{}, fmt.Errorf("failed to read json: %w", err)
		}
		return decodeJSON(raw)
	case YAML:
		return readYAML(r)
	case CSV:
		items, err := readCSV(r)
		if err != nil {
			return domain.Database{}, err
		}
		return domain.Database{Items: items}, nil
	}
	return domain.Database{}, fmt.Errorf("%w: %q", ErrUnknownFormat, f)
}

// exportShape sorts the records for stable output.
func exportShape(db domain.Database) domain.Database {
	p := db.Payload()
	return domain.Database{Items: p.Records, Profile: p.Profile}
}

func decodeJSON(raw []byte) (domain.Database, error) {
	db, err := domain.Normalize(raw)
	if err != nil {
		return domain.Database{}, err
	}
	for _, r := range db.Items {
		if err := r.Validate(); err != nil {
			return domain.Database{}, err
		}
	}
	return db, nil
}

// YAML goes through a generic tree so that the JSON field names and the raw
// content are kept as they are.
func writeYAML(w io.Writer, db domain.Database) error {
	raw, err := json.Marshal(exportShape(db))
	if err != nil {
		return fmt.Errorf("failed to encode database: %w", err)
	}
	var tree any
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&tree); err != nil {
		return fmt.Errorf("failed to encode database: %w", err)
	}

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(tree); err != nil {
		return fmt.Errorf("failed to write yaml: %w", err)
	}
	return enc.Close()
}

func readYAML(r io.Reader) (domain.Database, error) {
	var tree any
	if err := yaml.NewDecoder(r).Decode(&tree); err != nil {
		if errors.Is(err, io.EOF) {
			return domain.Database{}, nil
		}
		return domain.Database{}, fmt.Errorf("failed to read yaml: %w", err)
	}
	raw, err := json.Marshal(tree)
	if err != nil {
		return domain.Database{}, fmt.Errorf("failed to convert yaml: %w", err)
	}
	return decodeJSON(raw)
}
