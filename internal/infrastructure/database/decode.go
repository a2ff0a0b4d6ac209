package database

import (
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// DateLayout is the text layout of DATE and DATETIME columns.
const DateLayout = "2006-01-02 15:04:05"

// affinity is the decode rule a resolved type name routes to.
type affinity int

const (
	affinityUnknown affinity = iota
	affinityInteger
	affinityText
	affinityBlob
	affinityReal
	affinityBoolean
	affinityDate
	affinityNull
)

// affinities maps base type names (size suffix removed) to decode rules.
var affinities = map[string]affinity{
	"INT":              affinityInteger,
	"INTEGER":          affinityInteger,
	"TINYINT":          affinityInteger,
	"SMALLINT":         affinityInteger,
	"MEDIUMINT":        affinityInteger,
	"BIGINT":           affinityInteger,
	"UNSIGNED BIG INT": affinityInteger,
	"INT2":             affinityInteger,
	"INT8":             affinityInteger,

	"CHARACTER":         affinityText,
	"VARCHAR":           affinityText,
	"VARYING CHARACTER": affinityText,
	"NCHAR":             affinityText,
	"NATIVE CHARACTER":  affinityText,
	"NVARCHAR":          affinityText,
	"TEXT":              affinityText,
	"CLOB":              affinityText,

	"BLOB": affinityBlob,
	"NONE": affinityBlob,

	"REAL":             affinityReal,
	"DOUBLE":           affinityReal,
	"DOUBLE PRECISION": affinityReal,
	"FLOAT":            affinityReal,
	"NUMERIC":          affinityReal,
	"DECIMAL":          affinityReal,

	"BOOLEAN": affinityBoolean,

	"DATE":     affinityDate,
	"DATETIME": affinityDate,

	"NULL": affinityNull,
}

// affinityOf routes a type name such as "VARCHAR(255)" or
// "decimal(10, 5)" to its decode rule.
func affinityOf(typeName string) affinity {
	return affinities[baseTypeName(typeName)]
}

// baseTypeName upper-cases a type name, drops any "(n)" or "(p,s)" suffix
// and collapses inner whitespace.
func baseTypeName(typeName string) string {
	t := strings.ToUpper(typeName)
	if i := strings.IndexByte(t, '('); i >= 0 {
		t = t[:i]
	}
	return strings.Join(strings.Fields(t), " ")
}

// cursor is the current row of a stepped statement together with the
// statement's column metadata.
type cursor struct {
	names     []string
	declTypes []string
	values    []any
	dest      []any
}

// newCursor reads column metadata from rows.
func newCursor(rows *sql.Rows) (*cursor, error) {
	names, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	types, err := rows.ColumnTypes()
	if err != nil {
		return nil, err
	}

	c := &cursor{
		names:     names,
		declTypes: make([]string, len(names)),
		values:    make([]any, len(names)),
		dest:      make([]any, len(names)),
	}
	for i := range names {
		if i < len(types) && types[i] != nil {
			c.declTypes[i] = strings.ToUpper(strings.TrimSpace(types[i].DatabaseTypeName()))
		}
		c.dest[i] = &c.values[i]
	}
	return c, nil
}

// scan loads the current row's native values.
func (c *cursor) scan(rows *sql.Rows) error {
	for i := range c.values {
		c.values[i] = nil
	}
	return rows.Scan(c.dest...)
}

// needsStoredValues reports whether any column is declared with a type
// the drivers convert before Scan: mattn/go-sqlite3 turns BOOLEAN integers
// into v > 0, and both drivers parse DATE and DATETIME text with their own
// layouts.
func (c *cursor) needsStoredValues() bool {
	for _, decl := range c.declTypes {
		switch affinityOf(decl) {
		case affinityBoolean, affinityDate:
			return true
		}
	}
	return false
}

func (c *cursor) columnCount() int { return len(c.names) }

func (c *cursor) columnName(i int) string { return c.names[i] }

func (c *cursor) value(i int) any { return c.values[i] }

// resolveType returns the declared type of column i when the schema
// declares one, otherwise the runtime type tag of its current value.
func (c *cursor) resolveType(i int) string {
	if decl := c.declTypes[i]; decl != "" {
		return decl
	}
	return runtimeType(c.values[i])
}

// runtimeType maps a native value to INTEGER, FLOAT, TEXT, BLOB or NULL.
func runtimeType(v any) string {
	switch v.(type) {
	case int64, int, bool:
		return "INTEGER"
	case float64:
		return "FLOAT"
	case string, time.Time:
		return "TEXT"
	case []byte:
		return "BLOB"
	default:
		return "NULL"
	}
}

// decode extracts column i of the current row under the resolved type.
//
// NULL is checked before any coercion, so a NULL value never turns into a
// zero value. A non-nil error is a decode fault: the returned column is
// NULL and the fault explains why.
func decode(c *cursor, i int, resolved string, loc *time.Location) (Column, error) {
	v := c.value(i)

	switch affinityOf(resolved) {
	case affinityInteger:
		if v == nil {
			return NullColumn(), nil
		}
		return IntegerColumn(toInt64(v)), nil

	case affinityText:
		s, ok := toText(v)
		if !ok {
			return NullColumn(), fmt.Errorf("%w: column %d (%s)", ErrTextMissing, i, resolved)
		}
		return TextColumn(s), nil

	case affinityBlob:
		if v == nil {
			return NullColumn(), nil
		}
		return BlobColumn(toBytes(v)), nil

	case affinityReal:
		if v == nil {
			return NullColumn(), nil
		}
		return DoubleColumn(toFloat64(v)), nil

	case affinityBoolean:
		if v == nil {
			return NullColumn(), nil
		}
		return BooleanColumn(toInt64(v) != 0), nil

	case affinityDate:
		return decodeDate(v, i, loc)

	case affinityNull:
		return NullColumn(), nil

	default:
		return NullColumn(), fmt.Errorf("%w: column %d declared %q", ErrUnknownType, i, resolved)
	}
}

// decodeDate parses a DATE/DATETIME value with DateLayout. Any other text,
// the empty string included, is malformed.
//
// A time.Time only reaches here from statements that cannot be re-read
// through storedValueQuery; it is taken in DateLayout form, and the zero
// time mattn/go-sqlite3 returns for unparsable text is malformed.
func decodeDate(v any, i int, loc *time.Location) (Column, error) {
	if loc == nil {
		loc = time.UTC
	}
	if v == nil {
		return NullColumn(), nil
	}
	if t, ok := v.(time.Time); ok && t.IsZero() {
		return NullColumn(), fmt.Errorf("%w: column %d", ErrMalformedDate, i)
	}

	s, _ := toText(v)
	if s == "" {
		return NullColumn(), fmt.Errorf("%w: column %d is empty", ErrMalformedDate, i)
	}
	ts, err := time.ParseInLocation(DateLayout, s, loc)
	if err != nil {
		return NullColumn(), fmt.Errorf("%w: column %d: %q", ErrMalformedDate, i, s)
	}
	return TimestampColumn(ts), nil
}

// toInt64 reads v the way sqlite3_column_int64 would: reals truncate and
// text yields its leading number, or 0.
func toInt64(v any) int64 {
	switch x := v.(type) {
	case int64:
		return x
	case int:
		return int64(x)
	case float64:
		return int64(x)
	case bool:
		if x {
			return 1
		}
		return 0
	case time.Time:
		return x.Unix()
	case string:
		return parseLeadingInt(x)
	case []byte:
		return parseLeadingInt(string(x))
	default:
		return 0
	}
}

// toFloat64 reads v the way sqlite3_column_double would.
func toFloat64(v any) float64 {
	switch x := v.(type) {
	case float64:
		return x
	case int64:
		return float64(x)
	case int:
		return float64(x)
	case bool:
		if x {
			return 1
		}
		return 0
	case time.Time:
		return float64(x.Unix())
	case string:
		return parseLeadingFloat(x)
	case []byte:
		return parseLeadingFloat(string(x))
	default:
		return 0
	}
}

// toText reads v the way sqlite3_column_text would. ok is false when there
// is no text at all (NULL).
func toText(v any) (string, bool) {
	switch x := v.(type) {
	case nil:
		return "", false
	case string:
		return x, true
	case []byte:
		return string(x), true
	case int64:
		return strconv.FormatInt(x, 10), true
	case int:
		return strconv.Itoa(x), true
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64), true
	case bool:
		if x {
			return "1", true
		}
		return "0", true
	case time.Time:
		return x.Format(DateLayout), true
	default:
		return fmt.Sprint(x), true
	}
}

// toBytes reads v the way sqlite3_column_blob would.
func toBytes(v any) []byte {
	if b, ok := v.([]byte); ok {
		return b
	}
	s, _ := toText(v)
	return []byte(s)
}

// numericPrefix returns the longest leading part of s that looks like a
// decimal number, after leading whitespace.
func numericPrefix(s string) string {
	s = strings.TrimLeft(s, " \t\r\n")
	end := 0
	if end < len(s) && (s[end] == '+' || s[end] == '-') {
		end++
	}
	digits := 0
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
		digits++
	}
	if end < len(s) && s[end] == '.' {
		end++
		for end < len(s) && s[end] >= '0' && s[end] <= '9' {
			end++
			digits++
		}
	}
	if digits == 0 {
		return ""
	}
	if end < len(s) && (s[end] == 'e' || s[end] == 'E') {
		exp := end + 1
		if exp < len(s) && (s[exp] == '+' || s[exp] == '-') {
			exp++
		}
		start := exp
		for exp < len(s) && s[exp] >= '0' && s[exp] <= '9' {
			exp++
		}
		if exp > start {
			end = exp
		}
	}
	return s[:end]
}

func parseLeadingInt(s string) int64 {
	p := numericPrefix(s)
	if p == "" {
		return 0
	}
	if n, err := strconv.ParseInt(p, 10, 64); err == nil {
		return n
	}
	f, err := strconv.ParseFloat(p, 64)
	if err != nil {
		return 0
	}
	return int64(f)
}

func parseLeadingFloat(s string) float64 {
	p := numericPrefix(s)
	if p == "" {
		return 0
	}
	f, err := strconv.ParseFloat(p, 64)
	if err != nil {
		return 0
	}
	return f
}
