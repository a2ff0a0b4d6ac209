package database

import (
	"bytes"
	"encoding/json"
	"time"
)

// Kind identifies which representation a Column holds.
type Kind uint8

// Column kinds.
const (
	KindNull Kind = iota
	KindInteger
	KindDouble
	KindText
	KindBlob
	KindBoolean
	KindTimestamp
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindInteger:
		return "integer"
	case KindDouble:
		return "double"
	case KindText:
		return "text"
	case KindBlob:
		return "blob"
	case KindBoolean:
		return "boolean"
	case KindTimestamp:
		return "timestamp"
	default:
		return "unknown"
	}
}

// Column is a decoded column value holding exactly one Kind.
//
// The typed accessors report ok=false whenever the requested representation
// does not match the stored kind, so a NULL column yields no value from
// every accessor. The zero Column is NULL.
type Column struct {
	kind Kind
	i    int64
	f    float64
	s    string
	b    []byte
	t    time.Time
}

// NullColumn returns a NULL column.
func NullColumn() Column { return Column{} }

// IntegerColumn returns an integer column.
func IntegerColumn(v int64) Column { return Column{kind: KindInteger, i: v} }

// DoubleColumn returns a floating-point column.
func DoubleColumn(v float64) Column { return Column{kind: KindDouble, f: v} }

// TextColumn returns a text column.
func TextColumn(v string) Column { return Column{kind: KindText, s: v} }

// BlobColumn returns a blob column holding a copy of v.
func BlobColumn(v []byte) Column { return Column{kind: KindBlob, b: bytes.Clone(nonNil(v))} }

// BooleanColumn returns a boolean column.
func BooleanColumn(v bool) Column {
	c := Column{kind: KindBoolean}
	if v {
		c.i = 1
	}
	return c
}

// TimestampColumn returns a timestamp column.
func TimestampColumn(v time.Time) Column { return Column{kind: KindTimestamp, t: v} }

// Kind returns the stored kind.
func (c Column) Kind() Kind { return c.kind }

// IsNull reports whether the column is NULL.
func (c Column) IsNull() bool { return c.kind == KindNull }

// AsInteger returns the integer value.
func (c Column) AsInteger() (int64, bool) {
	if c.kind != KindInteger {
		return 0, false
	}
	return c.i, true
}

// AsDouble returns the floating-point value.
func (c Column) AsDouble() (float64, bool) {
	if c.kind != KindDouble {
		return 0, false
	}
	return c.f, true
}

// AsString returns the text value.
func (c Column) AsString() (string, bool) {
	if c.kind != KindText {
		return "", false
	}
	return c.s, true
}

// AsBoolean returns the boolean value.
func (c Column) AsBoolean() (bool, bool) {
	if c.kind != KindBoolean {
		return false, false
	}
	return c.i != 0, true
}

// AsBlob returns a copy of the blob value.
func (c Column) AsBlob() ([]byte, bool) {
	if c.kind != KindBlob {
		return nil, false
	}
	return bytes.Clone(c.b), true
}

// AsTimestamp returns the timestamp value.
func (c Column) AsTimestamp() (time.Time, bool) {
	if c.kind != KindTimestamp {
		return time.Time{}, false
	}
	return c.t, true
}

// Value returns the stored value as int64, float64, string, []byte, bool,
// time.Time, or nil for NULL.
func (c Column) Value() any {
	switch c.kind {
	case KindInteger:
		return c.i
	case KindDouble:
		return c.f
	case KindText:
		return c.s
	case KindBlob:
		return bytes.Clone(c.b)
	case KindBoolean:
		return c.i != 0
	case KindTimestamp:
		return c.t
	default:
		return nil
	}
}

// MarshalJSON encodes the column as its natural JSON value. Blobs are
// base64 strings and timestamps RFC 3339 strings.
func (c Column) MarshalJSON() ([]byte, error) {
	if c.kind == KindTimestamp {
		return json.Marshal(c.t.Format(time.RFC3339))
	}
	return json.Marshal(c.Value())
}

// nonNil keeps an empty blob distinct from NULL after cloning.
func nonNil(b []byte) []byte {
	if b == nil {
		return []byte{}
	}
	return b
}
