package tdk

import (
	"strings"

	"github.com/pkg/errors"
)

// Fill describes the replacement value for nulls in one column. Value is kept
// as text until it is applied so that it can be converted to the column's
// kind.
type Fill struct {
	Column string
	Value  string
}

// Imputation is an ordered set of fills.
type Imputation []Fill

// ParseImputation parses "column=value" pairs such as "passenger_count=0".
func ParseImputation(specs []string) (Imputation, error) {
	imp := make(Imputation, 0, len(specs))
	for _, s := range specs {
		i := strings.Index(s, "=")
		if i <= 0 {
			return nil, &ConfigurationError{Key: "fill", Err: errors.Errorf("%q is not of the form column=value", s)}
		}
		imp = append(imp, Fill{Column: strings.TrimSpace(s[:i]), Value: strings.TrimSpace(s[i+1:])})
	}
	return imp, nil
}

// FillReport counts the nulls in a column before and after a fill.
type FillReport struct {
	Column string
	Before int
	After  int
}

// FillNull returns a copy of d in which every null in column is replaced by
// value, which must be text convertible to the column's kind. d is not
// modified; columns other than the filled one are shared with d.
func FillNull(d *Dataset, column, value string) (*Dataset, FillReport, error) {
	rep := FillReport{Column: column}
	idx := d.Index(column)
	if idx < 0 {
		return nil, rep, &TransformError{Column: column, Err: errors.New("column not found")}
	}
	src := d.Columns[idx]
	fill, err := ParseValue(src.Kind, value)
	if err != nil {
		return nil, rep, &TransformError{Column: column, Err: errors.Wrapf(err, "converting fill value %q to %v", value, src.Kind)}
	}
	vals := make([]interface{}, len(src.Values))
	for i, v := range src.Values {
		if v == nil {
			rep.Before++
			vals[i] = fill
			continue
		}
		vals[i] = v
	}
	cols := make([]Column, len(d.Columns))
	copy(cols, d.Columns)
	cols[idx] = Column{Name: src.Name, Kind: src.Kind, Values: vals}
	return &Dataset{Columns: cols}, rep, nil
}

// Apply runs each fill in order.
func (imp Imputation) Apply(d *Dataset) (*Dataset, []FillReport, error) {
	reports := make([]FillReport, 0, len(imp))
	out := d
	for _, f := range imp {
		var (
			rep FillReport
			err error
		)
		out, rep, err = FillNull(out, f.Column, f.Value)
		if err != nil {
			return nil, reports, err
		}
		reports = append(reports, rep)
	}
	return out, reports, nil
}
