// Package matfile decodes Level 5 MAT-files, the binary container MATLAB
// writes with save -v7 and earlier. Only what navigation products need is
// supported: numeric, char, struct and cell arrays, optionally compressed.
// HDF5-based v7.3 files are rejected.
package matfile

import (
	"errors"
	"fmt"
)

var (
	// ErrFormat is returned for files that are not well-formed Level 5 MAT-files.
	ErrFormat = errors.New("matfile: malformed file")
	// ErrUnsupported is returned for valid files using features this package does not read.
	ErrUnsupported = errors.New("matfile: unsupported")
	// ErrNoField is returned when a struct array lacks a requested field.
	ErrNoField = errors.New("matfile: no such field")
)

// Class is the MATLAB array class of an Array.
type Class uint8

const (
	ClassCell   Class = 1
	ClassStruct Class = 2
	ClassObject Class = 3
	ClassChar   Class = 4
	ClassSparse Class = 5
	ClassDouble Class = 6
	ClassSingle Class = 7
	ClassInt8   Class = 8
	ClassUint8  Class = 9
	ClassInt16  Class = 10
	ClassUint16 Class = 11
	ClassInt32  Class = 12
	ClassUint32 Class = 13
	ClassInt64  Class = 14
	ClassUint64 Class = 15
)

var classNames = map[Class]string{
	ClassCell:   "cell",
	ClassStruct: "struct",
	ClassObject: "object",
	ClassChar:   "char",
	ClassSparse: "sparse",
	ClassDouble: "double",
	ClassSingle: "single",
	ClassInt8:   "int8",
	ClassUint8:  "uint8",
	ClassInt16:  "int16",
	ClassUint16: "uint16",
	ClassInt32:  "int32",
	ClassUint32: "uint32",
	ClassInt64:  "int64",
	ClassUint64: "uint64",
}

func (c Class) String() string {
	if name, ok := classNames[c]; ok {
		return name
	}
	return fmt.Sprintf("class(%d)", uint8(c))
}

// Numeric reports whether arrays of this class hold numbers.
func (c Class) Numeric() bool {
	return c >= ClassDouble && c <= ClassUint64
}

// File is a decoded MAT-file.
type File struct {
	// Description is the human-readable header text.
	Description string
	Variables   []*Array
}

// Lookup returns the top-level variable with the given name.
func (f *File) Lookup(name string) (*Array, bool) {
	for _, v := range f.Variables {
		if v.Name == name {
			return v, true
		}
	}
	return nil, false
}

// Array is one MATLAB array. Which payload field is set depends on Class.
// All element orders are column-major, as stored.
type Array struct {
	Name  string
	Class Class
	Dims  []int

	// Numeric classes. Integer and single data are widened to float64.
	Data []float64
	Imag []float64

	// ClassChar.
	Text string

	// ClassStruct and ClassObject: one map per element.
	FieldNames []string
	Elems      []map[string]*Array

	// ClassCell.
	Cells []*Array
}

// Len returns the number of elements.
func (a *Array) Len() int {
	if len(a.Dims) == 0 {
		return 0
	}
	n := 1
	for _, d := range a.Dims {
		n *= d
	}
	return n
}

// Rows returns the first dimension.
func (a *Array) Rows() int {
	if len(a.Dims) == 0 {
		return 0
	}
	return a.Dims[0]
}

// Cols returns the product of all dimensions after the first.
func (a *Array) Cols() int {
	if len(a.Dims) < 2 {
		return 0
	}
	n := 1
	for _, d := range a.Dims[1:] {
		n *= d
	}
	return n
}

// Float64s returns the real part of a numeric array in storage order, which
// for vectors is simply their elements regardless of orientation.
func (a *Array) Float64s() ([]float64, error) {
	if !a.Class.Numeric() {
		return nil, fmt.Errorf("%s is %s, not numeric", a.label(), a.Class)
	}
	return a.Data, nil
}

// Column returns column j of a numeric matrix.
func (a *Array) Column(j int) ([]float64, error) {
	if !a.Class.Numeric() {
		return nil, fmt.Errorf("%s is %s, not numeric", a.label(), a.Class)
	}
	if j < 0 || j >= a.Cols() {
		return nil, fmt.Errorf("%s has %d columns, want column %d", a.label(), a.Cols(), j)
	}
	rows := a.Rows()
	return a.Data[j*rows : (j+1)*rows], nil
}

// Field returns a field of the first element of a struct array.
func (a *Array) Field(name string) (*Array, error) {
	return a.ElemField(0, name)
}

// ElemField returns a field of element i of a struct array.
func (a *Array) ElemField(i int, name string) (*Array, error) {
	if a.Class != ClassStruct && a.Class != ClassObject {
		return nil, fmt.Errorf("%s is %s, not struct", a.label(), a.Class)
	}
	if i < 0 || i >= len(a.Elems) {
		return nil, fmt.Errorf("%s has %d elements, want element %d", a.label(), len(a.Elems), i)
	}
	v, ok := a.Elems[i][name]
	if !ok {
		return nil, fmt.Errorf("%w: %s.%s", ErrNoField, a.label(), name)
	}
	return v, nil
}

func (a *Array) label() string {
	if a.Name == "" {
		return "array"
	}
	return a.Name
}
