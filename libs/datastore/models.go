package datastore

import (
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"errors"
)

// Metadata - type which represents key/value pair metadata
type Metadata map[string]interface{}

// Value - implement driver.Valuer interface for conversion to and from sql
func (m Metadata) Value() (driver.Value, error) {
	if m == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(m)
}

// Scan - implement driver.Scanner interface for conversion to and from sql
func (m *Metadata) Scan(value interface{}) error {
	if value == nil {
		return nil
	}
	var b []byte
	switch v := value.(type) {
	case []byte:
		b = v
	case string:
		b = []byte(v)
	default:
		return errors.New("failed to scan Metadata, not byte slice")
	}
	return json.Unmarshal(b, m)
}

// NullString is a type that lets ya get a null field from the database
type NullString struct {
	sql.NullString
}

// NewNullString wraps s, the empty string is stored as NULL
func NewNullString(s string) NullString {
	return NullString{sql.NullString{String: s, Valid: s != ""}}
}

// MarshalJSON for NullString
func (ns NullString) MarshalJSON() ([]byte, error) {
	if !ns.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(ns.String)
}

// UnmarshalJSON unmarshalls NullString
func (ns *NullString) UnmarshalJSON(data []byte) error {
	if string(data) == "null" || len(data) == 0 {
		ns.String, ns.Valid = "", false
		return nil
	}
	if err := json.Unmarshal(data, &ns.String); err != nil {
		return err
	}
	ns.Valid = true
	return nil
}
