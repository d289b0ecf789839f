package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
)

// Database is the full working set of one account: an unordered collection of
// records and at most one profile.
type Database struct {
	Items   []Record `json:"items"`
	Profile *Profile `json:"profile,omitempty"`
}

// Payload is the flat shape the backend stores: {records, profile}.
type Payload struct {
	Records []Record `json:"records"`
	Profile *Profile `json:"profile,omitempty"`
}

// Payload converts the database to the backend's save shape. Records are
// sorted by ID so identical databases serialise identically.
func (db Database) Payload() Payload {
	records := make([]Record, 0, len(db.Items))
	for _, r := range db.Items {
		records = append(records, r.Clone())
	}
	sort.Slice(records, func(i, j int) bool { return records[i].ID < records[j].ID })

	p := Payload{Records: records}
	if db.Profile != nil {
		prof := db.Profile.Clone()
		p.Profile = &prof
	}
	return p
}

// blobShape covers every shape the backend has been seen returning.
type blobShape struct {
	Items   []Record `json:"items"`
	Records []Record `json:"records"`
	Data    *struct {
		Records []Record `json:"records"`
		Profile *Profile `json:"profile"`
	} `json:"data"`
	Profile *Profile `json:"profile"`
}

// Normalize decodes a fetched blob into the canonical Database shape. It
// accepts {items:[...]}, {records:[...]} and {data:{records:[...]}}, each with
// an optional profile, as well as a bare array of records. Empty input and
// JSON null yield an empty database. The first non-empty record list wins in
// the order items, records, data.records.
func Normalize(raw []byte) (Database, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return Database{}, nil
	}

	if raw[0] == '[' {
		var records []Record
		if err := json.Unmarshal(raw, &records); err != nil {
			return Database{}, fmt.Errorf("failed to decode record list: %w", err)
		}
		return Database{Items: records}, nil
	}

	var shape blobShape
	if err := json.Unmarshal(raw, &shape); err != nil {
		return Database{}, fmt.Errorf("failed to decode database blob: %w", err)
	}

	db := Database{Profile: shape.Profile}
	switch {
	case len(shape.Items) > 0:
		db.Items = shape.Items
	case len(shape.Records) > 0:
		db.Items = shape.Records
	case shape.Data != nil && len(shape.Data.Records) > 0:
		db.Items = shape.Data.Records
	}
	if db.Profile == nil && shape.Data != nil {
		db.Profile = shape.Data.Profile
	}
	return db, nil
}
