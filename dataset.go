package tdk

import (
	"fmt"
	"strconv"
	"time"

	"github.com/pkg/errors"
)

// Kind is the value type of a Column.
type Kind int

// The supported column kinds, and the Go type of their non-null values.
const (
	Int64     Kind = iota // int64
	Int32                 // int32
	Float64               // float64
	Float32               // float32
	Bool                  // bool
	String                // string
	Timestamp             // time.Time
)

func (k Kind) String() string {
	switch k {
	case Int64:
		return "int64"
	case Int32:
		return "int32"
	case Float64:
		return "float64"
	case Float32:
		return "float32"
	case Bool:
		return "bool"
	case String:
		return "string"
	case Timestamp:
		return "timestamp"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Column is a named, typed column. A nil entry in Values is null.
type Column struct {
	Name   string
	Kind   Kind
	Values []interface{}
}

// Dataset is an in-memory table stored by column. A Dataset is owned by
// whichever step currently holds it; transforms return new Datasets rather than
// modifying their input.
type Dataset struct {
	Columns []Column
}

// NewDataset builds a Dataset from columns, checking that they all have the
// same length and distinct names.
func NewDataset(cols ...Column) (*Dataset, error) {
	seen := make(map[string]struct{}, len(cols))
	for i, c := range cols {
		if _, ok := seen[c.Name]; ok {
			return nil, errors.Errorf("duplicate column name %q", c.Name)
		}
		seen[c.Name] = struct{}{}
		if len(c.Values) != len(cols[0].Values) {
			return nil, errors.Errorf("column %d (%s) has %d values, expected %d", i, c.Name, len(c.Values), len(cols[0].Values))
		}
		for j, v := range c.Values {
			if v != nil && !checkKind(c.Kind, v) {
				return nil, errors.Errorf("column %s row %d: %T is not a %v value", c.Name, j, v, c.Kind)
			}
		}
	}
	return &Dataset{Columns: cols}, nil
}

// Len returns the number of rows.
func (d *Dataset) Len() int {
	if d == nil || len(d.Columns) == 0 {
		return 0
	}
	return len(d.Columns[0].Values)
}

// Names returns the column names in order.
func (d *Dataset) Names() []string {
	names := make([]string, len(d.Columns))
	for i, c := range d.Columns {
		names[i] = c.Name
	}
	return names
}

// Index returns the position of the named column, or -1.
func (d *Dataset) Index(name string) int {
	for i, c := range d.Columns {
		if c.Name == name {
			return i
		}
	}
	return -1
}

// Column returns the named column.
func (d *Dataset) Column(name string) (Column, bool) {
	i := d.Index(name)
	if i < 0 {
		return Column{}, false
	}
	return d.Columns[i], true
}

// Row fills dst with the values of row i and returns it. dst is grown if
// needed.
func (d *Dataset) Row(i int, dst []interface{}) []interface{} {
	if cap(dst) < len(d.Columns) {
		dst = make([]interface{}, len(d.Columns))
	}
	dst = dst[:len(d.Columns)]
	for j, c := range d.Columns {
		dst[j] = c.Values[i]
	}
	return dst
}

// Slice returns a view of rows [lo, hi). The view shares storage with d.
func (d *Dataset) Slice(lo, hi int) *Dataset {
	cols := make([]Column, len(d.Columns))
	for i, c := range d.Columns {
		cols[i] = Column{Name: c.Name, Kind: c.Kind, Values: c.Values[lo:hi:hi]}
	}
	return &Dataset{Columns: cols}
}

// Chunks splits d into views of at most size rows. A non-positive size yields
// a single chunk. An empty dataset yields one empty chunk so that writers
// still create the destination.
func (d *Dataset) Chunks(size int) []*Dataset {
	n := d.Len()
	if size <= 0 || n <= size {
		return []*Dataset{d}
	}
	chunks := make([]*Dataset, 0, (n+size-1)/size)
	for lo := 0; lo < n; lo += size {
		hi := lo + size
		if hi > n {
			hi = n
		}
		chunks = append(chunks, d.Slice(lo, hi))
	}
	return chunks
}

// NullCount returns the number of null values in the named column.
func (d *Dataset) NullCount(name string) (int, error) {
	c, ok := d.Column(name)
	if !ok {
		return 0, errors.Errorf("no column named %q", name)
	}
	n := 0
	for _, v := range c.Values {
		if v == nil {
			n++
		}
	}
	return n, nil
}

// ParseValue converts s to a value of kind k.
func ParseValue(k Kind, s string) (interface{}, error) {
	switch k {
	case Int64:
		return strconv.ParseInt(s, 10, 64)
	case Int32:
		v, err := strconv.ParseInt(s, 10, 32)
		return int32(v), err
	case Float64:
		return strconv.ParseFloat(s, 64)
	case Float32:
		v, err := strconv.ParseFloat(s, 32)
		return float32(v), err
	case Bool:
		return strconv.ParseBool(s)
	case String:
		return s, nil
	case Timestamp:
		return time.Parse(time.RFC3339, s)
	}
	return nil, errors.Errorf("unknown kind %v", k)
}

// checkKind reports whether v is a valid non-null value for k.
func checkKind(k Kind, v interface{}) bool {
	switch v.(type) {
	case int64:
		return k == Int64
	case int32:
		return k == Int32
	case float64:
		return k == Float64
	case float32:
		return k == Float32
	case bool:
		return k == Bool
	case string:
		return k == String
	case time.Time:
		return k == Timestamp
	}
	return false
}
