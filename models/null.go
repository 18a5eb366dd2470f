package models

import (
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"time"
)

// A NullTime is a time.Time that may be null. It can be encoded or decoded
// from JSON or the database.
type NullTime struct {
	Time  time.Time
	Valid bool
}

// NewNullTime returns a valid NullTime set to t.
func NewNullTime(t time.Time) NullTime {
	return NullTime{Time: t, Valid: true}
}

// Scan implements the Scanner interface.
func (nt *NullTime) Scan(value interface{}) error {
	var st sql.NullTime
	if err := st.Scan(value); err != nil {
		return err
	}
	nt.Valid = st.Valid
	if st.Valid {
		nt.Time = st.Time.UTC()
	} else {
		nt.Time = time.Time{}
	}
	return nil
}

// Value implements the driver.Valuer interface.
func (nt NullTime) Value() (driver.Value, error) {
	if !nt.Valid {
		return nil, nil
	}
	return nt.Time, nil
}

func (nt NullTime) MarshalJSON() ([]byte, error) {
	if !nt.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(nt.Time)
}

func (nt *NullTime) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		nt.Valid = false
		nt.Time = time.Time{}
		return nil
	}
	if err := json.Unmarshal(b, &nt.Time); err != nil {
		return err
	}
	nt.Valid = true
	return nil
}

// A NullString is a string that may be null.
type NullString struct {
	String string
	Valid  bool
}

// Scan implements the Scanner interface.
func (ns *NullString) Scan(value interface{}) error {
	var s sql.NullString
	if err := s.Scan(value); err != nil {
		return err
	}
	ns.String, ns.Valid = s.String, s.Valid
	return nil
}

// Value implements the driver.Valuer interface.
func (ns NullString) Value() (driver.Value, error) {
	if !ns.Valid {
		return nil, nil
	}
	return ns.String, nil
}

func (ns NullString) MarshalJSON() ([]byte, error) {
	if !ns.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(ns.String)
}

func (ns *NullString) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		ns.Valid = false
		ns.String = ""
		return nil
	}
	if err := json.Unmarshal(b, &ns.String); err != nil {
		return err
	}
	ns.Valid = true
	return nil
}
