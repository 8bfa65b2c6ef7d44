package rebalance

import (
	"fmt"
	"strconv"
)

// LabelKind tags the concrete type held by a Label.
type LabelKind uint8

const (
	LabelBool LabelKind = iota
	LabelUint
	LabelFloat
)

func (k LabelKind) String() string {
	switch k {
	case LabelBool:
		return "bool"
	case LabelUint:
		return "uint"
	case LabelFloat:
		return "float"
	default:
		return "LabelKind(" + strconv.Itoa(int(k)) + ")"
	}
}

// Label is the target value of one record: a boolean for binary
// classification, an unsigned class index for multiclass, or a float for
// regression. The zero value is the boolean false.
type Label struct {
	kind LabelKind
	b    bool
	u    uint32
	f    float64
}

func BoolLabel(v bool) Label     { return Label{kind: LabelBool, b: v} }
func UintLabel(v uint32) Label   { return Label{kind: LabelUint, u: v} }
func FloatLabel(v float64) Label { return Label{kind: LabelFloat, f: v} }

// Kind returns the tag of the stored value.
func (l Label) Kind() LabelKind { return l.kind }

// Bool coerces the label to a boolean. Numeric labels are true when non-zero.
func (l Label) Bool() bool {
	switch l.kind {
	case LabelUint:
		return l.u != 0
	case LabelFloat:
		return l.f != 0
	default:
		return l.b
	}
}

// Uint coerces the label to a class index. Booleans map to 0/1 and floats
// are truncated.
func (l Label) Uint() uint32 {
	switch l.kind {
	case LabelBool:
		if l.b {
			return 1
		}
		return 0
	case LabelFloat:
		if l.f < 0 {
			return 0
		}
		return uint32(l.f)
	default:
		return l.u
	}
}

// Float coerces the label to a float64. Booleans map to 0/1.
func (l Label) Float() float64 {
	switch l.kind {
	case LabelBool:
		if l.b {
			return 1
		}
		return 0
	case LabelUint:
		return float64(l.u)
	default:
		return l.f
	}
}

// Value returns the label as a plain Go value (bool, uint32 or float64),
// suitable for database drivers.
func (l Label) Value() any {
	switch l.kind {
	case LabelUint:
		return l.u
	case LabelFloat:
		return l.f
	default:
		return l.b
	}
}

func (l Label) String() string {
	switch l.kind {
	case LabelUint:
		return strconv.FormatUint(uint64(l.u), 10)
	case LabelFloat:
		return strconv.FormatFloat(l.f, 'g', -1, 64)
	default:
		return strconv.FormatBool(l.b)
	}
}

// Record is one training example. Values is aligned with the Fields of the
// Dataset that owns the record.
type Record struct {
	Values []float64
	Label  Label

	// Synthetic marks rows generated by a balancer.
	Synthetic bool
}

// Dataset is an ordered collection of records sharing one feature schema.
// Stages never modify a Dataset they receive; they return a new one.
type Dataset struct {
	Fields []string
	Rows   []Record
}

// NewDataset returns an empty dataset with a copy of fields as its schema.
func NewDataset(fields []string, capacity int) *Dataset {
	return &Dataset{
		Fields: append([]string(nil), fields...),
		Rows:   make([]Record, 0, capacity),
	}
}

// Len returns the number of rows.
func (d *Dataset) Len() int { return len(d.Rows) }

// Append adds a record, copying values so the caller may reuse its slice.
// Returns an error if the value count does not match the schema.
func (d *Dataset) Append(values []float64, label Label) error {
	if len(values) != len(d.Fields) {
		return fmt.Errorf("rebalance: record has %d values, schema has %d fields", len(values), len(d.Fields))
	}
	d.Rows = append(d.Rows, Record{Values: append([]float64(nil), values...), Label: label})
	return nil
}

// Clone returns a deep copy of d.
func (d *Dataset) Clone() *Dataset {
	out := NewDataset(d.Fields, len(d.Rows))
	for _, r := range d.Rows {
		out.Rows = append(out.Rows, Record{Values: append([]float64(nil), r.Values...), Label: r.Label, Synthetic: r.Synthetic})
	}
	return out
}

// SyntheticCount returns how many rows were generated by a balancer.
func (d *Dataset) SyntheticCount() int {
	n := 0
	for _, r := range d.Rows {
		if r.Synthetic {
			n++
		}
	}
	return n
}

// FieldIndex returns the column position of name, or -1.
func (d *Dataset) FieldIndex(name string) int {
	for i, f := range d.Fields {
		if f == name {
			return i
		}
	}
	return -1
}

// columnIndices resolves names to column positions.
func (d *Dataset) columnIndices(names []string) ([]int, error) {
	cols := make([]int, len(names))
	for i, name := range names {
		c := d.FieldIndex(name)
		if c < 0 {
			return nil, configErrorf("feature %q not present in dataset", name)
		}
		cols[i] = c
	}
	return cols, nil
}

// Matrix returns the feature matrix for the named columns: one row per
// record, one column per name, in the order given.
func (d *Dataset) Matrix(names []string) ([][]float64, error) {
	cols, err := d.columnIndices(names)
	if err != nil {
		return nil, err
	}
	out := make([][]float64, len(d.Rows))
	for i, r := range d.Rows {
		row := make([]float64, len(cols))
		for j, c := range cols {
			row[j] = r.Values[c]
		}
		out[i] = row
	}
	return out, nil
}

// Column returns the values of a single named column.
func (d *Dataset) Column(name string) ([]float64, error) {
	c := d.FieldIndex(name)
	if c < 0 {
		return nil, configErrorf("feature %q not present in dataset", name)
	}
	out := make([]float64, len(d.Rows))
	for i, r := range d.Rows {
		out[i] = r.Values[c]
	}
	return out, nil
}

// Labels returns the label of every row in order.
func (d *Dataset) Labels() []Label {
	out := make([]Label, len(d.Rows))
	for i, r := range d.Rows {
		out[i] = r.Label
	}
	return out
}

// Project returns a new dataset restricted to the named columns. Labels and
// synthetic flags are carried over.
func (d *Dataset) Project(names []string) (*Dataset, error) {
	m, err := d.Matrix(names)
	if err != nil {
		return nil, err
	}
	return d.withMatrix(names, m)
}

// withMatrix pairs a replacement feature matrix with the labels and
// synthetic flags of d, row for row.
func (d *Dataset) withMatrix(names []string, matrix [][]float64) (*Dataset, error) {
	out, err := FromMatrix(names, matrix, d.Labels())
	if err != nil {
		return nil, err
	}
	for i := range out.Rows {
		out.Rows[i].Synthetic = d.Rows[i].Synthetic
	}
	return out, nil
}

// FromMatrix merges a feature matrix and labels back into a dataset keyed by
// names. The matrix rows are copied.
func FromMatrix(names []string, matrix [][]float64, labels []Label) (*Dataset, error) {
	if len(matrix) != len(labels) {
		return nil, fmt.Errorf("rebalance: matrix has %d rows but %d labels", len(matrix), len(labels))
	}
	out := NewDataset(names, len(matrix))
	for i, row := range matrix {
		if err := out.Append(row, labels[i]); err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
	}
	return out, nil
}

// FilterTarget returns candidates without the target field.
func FilterTarget(candidates []string, target string) []string {
	out := make([]string, 0, len(candidates))
	for _, c := range candidates {
		if c != target {
			out = append(out, c)
		}
	}
	return out
}
