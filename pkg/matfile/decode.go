package matfile

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"strings"
	"unicode/utf16"

	"github.com/klauspost/compress/zlib"
)

const headerSize = 128

// maxInflatedSize bounds the decompressed size of one compressed element.
var maxInflatedSize int64 = 512 << 20

// Data element types.
const (
	miINT8       = 1
	miUINT8      = 2
	miINT16      = 3
	miUINT16     = 4
	miINT32      = 5
	miUINT32     = 6
	miSINGLE     = 7
	miDOUBLE     = 9
	miINT64      = 12
	miUINT64     = 13
	miMATRIX     = 14
	miCOMPRESSED = 15
	miUTF8       = 16
	miUTF16      = 17
	miUTF32      = 18
)

const flagComplex = 0x0800

// HeaderSize is the length of the fixed MAT-file header.
const HeaderSize = headerSize

// Sniff reports whether header, the first HeaderSize bytes of a file, looks
// like a Level 5 or v7.3 MAT-file header.
func Sniff(header []byte) bool {
	if len(header) < headerSize || !bytes.HasPrefix(header, []byte("MATLAB")) {
		return false
	}
	e := string(header[126:128])
	return e == "IM" || e == "MI"
}

// Decode reads a complete MAT-file from r.
func Decode(r io.Reader) (*File, error) {
	buf, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading MAT-file: %w", err)
	}
	return DecodeBytes(buf)
}

// DecodeBytes decodes a MAT-file held in memory.
func DecodeBytes(buf []byte) (*File, error) {
	if len(buf) < headerSize {
		return nil, fmt.Errorf("%w: %d bytes is shorter than the header", ErrFormat, len(buf))
	}

	var order binary.ByteOrder
	switch string(buf[126:128]) {
	case "IM":
		order = binary.LittleEndian
	case "MI":
		order = binary.BigEndian
	default:
		return nil, fmt.Errorf("%w: bad endian indicator %q", ErrFormat, buf[126:128])
	}

	switch version := order.Uint16(buf[124:126]); version {
	case 0x0100:
	case 0x0200:
		return nil, fmt.Errorf("%w: v7.3 (HDF5) MAT-file", ErrUnsupported)
	default:
		return nil, fmt.Errorf("%w: version 0x%04x", ErrFormat, version)
	}

	f := &File{Description: strings.TrimRight(string(buf[:116]), " \x00")}
	d := &decoder{order: order}

	for off := headerSize; off < len(buf); {
		el, next, err := d.element(buf, off)
		if err != nil {
			return nil, err
		}
		off = next

		arr, err := d.topLevel(el)
		if err != nil {
			return nil, err
		}
		if arr != nil {
			f.Variables = append(f.Variables, arr)
		}
	}

	return f, nil
}

type decoder struct {
	order binary.ByteOrder
}

type element struct {
	typ  uint32
	data []byte
}

// element reads the data element starting at off and returns it with the
// offset of the following element.
func (d *decoder) element(buf []byte, off int) (element, int, error) {
	if off+8 > len(buf) {
		return element{}, 0, fmt.Errorf("%w: truncated tag at offset %d", ErrFormat, off)
	}

	w := d.order.Uint32(buf[off:])
	if n := int(w >> 16); n != 0 {
		// Small data element: up to 4 bytes packed into the tag.
		if n > 4 {
			return element{}, 0, fmt.Errorf("%w: small element of %d bytes at offset %d", ErrFormat, n, off)
		}
		return element{typ: w & 0xffff, data: buf[off+4 : off+4+n]}, off + 8, nil
	}

	n := int(d.order.Uint32(buf[off+4:]))
	start := off + 8
	if n < 0 || start+n > len(buf) {
		return element{}, 0, fmt.Errorf("%w: element at offset %d overruns file", ErrFormat, off)
	}
	el := element{typ: w, data: buf[start : start+n]}

	next := start + n
	if w != miCOMPRESSED {
		next = start + pad8(n)
	}
	if next > len(buf) {
		next = len(buf)
	}
	return el, next, nil
}

func pad8(n int) int {
	return (n + 7) &^ 7
}

func (d *decoder) topLevel(el element) (*Array, error) {
	switch el.typ {
	case miMATRIX:
		return d.matrix(el.data)
	case miCOMPRESSED:
		zr, err := zlib.NewReader(bytes.NewReader(el.data))
		if err != nil {
			return nil, fmt.Errorf("%w: compressed element: %v", ErrFormat, err)
		}
		defer zr.Close()

		inner, err := io.ReadAll(io.LimitReader(zr, maxInflatedSize+1))
		if err != nil {
			return nil, fmt.Errorf("%w: inflating element: %v", ErrFormat, err)
		}
		if int64(len(inner)) > maxInflatedSize {
			return nil, fmt.Errorf("%w: compressed element inflates past %d bytes", ErrFormat, maxInflatedSize)
		}

		sub, _, err := d.element(inner, 0)
		if err != nil {
			return nil, err
		}
		return d.topLevel(sub)
	default:
		// Anything else at the top level carries no variable.
		return nil, nil
	}
}

// matrix decodes the body of a miMATRIX element.
func (d *decoder) matrix(body []byte) (*Array, error) {
	if len(body) == 0 {
		return &Array{Class: ClassDouble}, nil
	}

	off := 0
	next := func() (element, error) {
		if off >= len(body) {
			return element{}, fmt.Errorf("%w: array body ends early", ErrFormat)
		}
		el, n, err := d.element(body, off)
		if err != nil {
			return element{}, err
		}
		off = n
		return el, nil
	}

	flags, err := next()
	if err != nil {
		return nil, err
	}
	if flags.typ != miUINT32 || len(flags.data) < 4 {
		return nil, fmt.Errorf("%w: array flags", ErrFormat)
	}
	fw := d.order.Uint32(flags.data)
	arr := &Array{Class: Class(fw & 0xff)}
	isComplex := fw&flagComplex != 0

	dims, err := next()
	if err != nil {
		return nil, err
	}
	dv, err := d.numbers(dims)
	if err != nil {
		return nil, err
	}
	for _, v := range dv {
		if v < 0 {
			return nil, fmt.Errorf("%w: negative dimension", ErrFormat)
		}
		arr.Dims = append(arr.Dims, int(v))
	}

	name, err := next()
	if err != nil {
		return nil, err
	}
	arr.Name = string(name.data)

	switch {
	case arr.Class.Numeric():
		re, err := next()
		if err != nil {
			return nil, err
		}
		if arr.Data, err = d.numbers(re); err != nil {
			return nil, err
		}
		if len(arr.Data) != arr.Len() {
			return nil, fmt.Errorf("%w: %s has %d values for %v", ErrFormat, arr.label(), len(arr.Data), arr.Dims)
		}
		if isComplex {
			im, err := next()
			if err != nil {
				return nil, err
			}
			if arr.Imag, err = d.numbers(im); err != nil {
				return nil, err
			}
		}

	case arr.Class == ClassChar:
		if off < len(body) {
			el, err := next()
			if err != nil {
				return nil, err
			}
			if arr.Text, err = d.text(el); err != nil {
				return nil, err
			}
		}

	case arr.Class == ClassStruct || arr.Class == ClassObject:
		if arr.Class == ClassObject {
			if _, err := next(); err != nil {
				return nil, err
			}
		}
		if err := d.structFields(arr, next); err != nil {
			return nil, err
		}

	case arr.Class == ClassCell:
		for i := 0; i < arr.Len(); i++ {
			el, err := next()
			if err != nil {
				return nil, err
			}
			cell, err := d.child(el)
			if err != nil {
				return nil, err
			}
			arr.Cells = append(arr.Cells, cell)
		}

	case arr.Class == ClassSparse:
		// Sparse payloads are kept opaque.

	default:
		return nil, fmt.Errorf("%w: array class %d", ErrUnsupported, uint8(arr.Class))
	}

	return arr, nil
}

func (d *decoder) structFields(arr *Array, next func() (element, error)) error {
	lenEl, err := next()
	if err != nil {
		return err
	}
	lv, err := d.numbers(lenEl)
	if err != nil || len(lv) != 1 || lv[0] <= 0 {
		return fmt.Errorf("%w: struct field name length", ErrFormat)
	}
	width := int(lv[0])

	namesEl, err := next()
	if err != nil {
		return err
	}
	if len(namesEl.data)%width != 0 {
		return fmt.Errorf("%w: struct field names", ErrFormat)
	}
	for i := 0; i < len(namesEl.data); i += width {
		raw := namesEl.data[i : i+width]
		if z := bytes.IndexByte(raw, 0); z >= 0 {
			raw = raw[:z]
		}
		arr.FieldNames = append(arr.FieldNames, string(raw))
	}

	for e := 0; e < arr.Len(); e++ {
		fields := make(map[string]*Array, len(arr.FieldNames))
		for _, fname := range arr.FieldNames {
			el, err := next()
			if err != nil {
				return err
			}
			v, err := d.child(el)
			if err != nil {
				return fmt.Errorf("field %s: %w", fname, err)
			}
			v.Name = fname
			fields[fname] = v
		}
		arr.Elems = append(arr.Elems, fields)
	}
	return nil
}

func (d *decoder) child(el element) (*Array, error) {
	if el.typ != miMATRIX {
		return nil, fmt.Errorf("%w: expected array element, got type %d", ErrFormat, el.typ)
	}
	return d.matrix(el.data)
}

// numbers widens a numeric data element to float64.
func (d *decoder) numbers(el element) ([]float64, error) {
	b := el.data
	var size int
	switch el.typ {
	case miINT8, miUINT8:
		size = 1
	case miINT16, miUINT16:
		size = 2
	case miINT32, miUINT32, miSINGLE:
		size = 4
	case miDOUBLE, miINT64, miUINT64:
		size = 8
	default:
		return nil, fmt.Errorf("%w: data type %d is not numeric", ErrFormat, el.typ)
	}
	if len(b)%size != 0 {
		return nil, fmt.Errorf("%w: %d bytes of type %d", ErrFormat, len(b), el.typ)
	}

	out := make([]float64, len(b)/size)
	for i := range out {
		p := b[i*size:]
		switch el.typ {
		case miINT8:
			out[i] = float64(int8(p[0]))
		case miUINT8:
			out[i] = float64(p[0])
		case miINT16:
			out[i] = float64(int16(d.order.Uint16(p)))
		case miUINT16:
			out[i] = float64(d.order.Uint16(p))
		case miINT32:
			out[i] = float64(int32(d.order.Uint32(p)))
		case miUINT32:
			out[i] = float64(d.order.Uint32(p))
		case miSINGLE:
			out[i] = float64(math.Float32frombits(d.order.Uint32(p)))
		case miDOUBLE:
			out[i] = math.Float64frombits(d.order.Uint64(p))
		case miINT64:
			out[i] = float64(int64(d.order.Uint64(p)))
		case miUINT64:
			out[i] = float64(d.order.Uint64(p))
		}
	}
	return out, nil
}

func (d *decoder) text(el element) (string, error) {
	switch el.typ {
	case miUTF8, miINT8, miUINT8:
		return string(el.data), nil
	case miUINT16, miUTF16:
		if len(el.data)%2 != 0 {
			return "", fmt.Errorf("%w: odd UTF-16 length", ErrFormat)
		}
		units := make([]uint16, len(el.data)/2)
		for i := range units {
			units[i] = d.order.Uint16(el.data[i*2:])
		}
		return string(utf16.Decode(units)), nil
	default:
		return "", fmt.Errorf("%w: char data of type %d", ErrUnsupported, el.typ)
	}
}
