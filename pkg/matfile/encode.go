package matfile

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"unicode/utf16"

	"github.com/klauspost/compress/zlib"
)

var le = binary.LittleEndian

// Encode writes vars as a little-endian Level 5 MAT-file. Numeric data is
// stored as doubles; with compress set each variable is zlib-compressed the
// way save -v7 does.
func Encode(w io.Writer, compress bool, vars ...*Array) error {
	var buf bytes.Buffer

	hdr := bytes.Repeat([]byte{' '}, headerSize)
	copy(hdr, "MATLAB 5.0 MAT-file, written by flowmow")
	for i := 116; i < 124; i++ {
		hdr[i] = 0
	}
	le.PutUint16(hdr[124:], 0x0100)
	copy(hdr[126:], "IM")
	buf.Write(hdr)

	for _, v := range vars {
		if v.Name == "" {
			return fmt.Errorf("matfile: top-level variable needs a name")
		}
		body, err := encodeMatrix(v, v.Name)
		if err != nil {
			return err
		}

		var el bytes.Buffer
		writeElement(&el, miMATRIX, body)
		if !compress {
			buf.Write(el.Bytes())
			continue
		}

		var zb bytes.Buffer
		zw := zlib.NewWriter(&zb)
		if _, err := zw.Write(el.Bytes()); err != nil {
			return fmt.Errorf("compressing %s: %w", v.Name, err)
		}
		if err := zw.Close(); err != nil {
			return fmt.Errorf("compressing %s: %w", v.Name, err)
		}
		writeTag(&buf, miCOMPRESSED, zb.Len())
		buf.Write(zb.Bytes())
	}

	_, err := w.Write(buf.Bytes())
	return err
}

func writeTag(b *bytes.Buffer, typ uint32, n int) {
	var tag [8]byte
	le.PutUint32(tag[0:], typ)
	le.PutUint32(tag[4:], uint32(n))
	b.Write(tag[:])
}

func writeElement(b *bytes.Buffer, typ uint32, data []byte) {
	n := len(data)
	if n > 0 && n <= 4 {
		var small [8]byte
		le.PutUint32(small[0:], uint32(n)<<16|typ)
		copy(small[4:], data)
		b.Write(small[:])
		return
	}
	writeTag(b, typ, n)
	b.Write(data)
	b.Write(make([]byte, pad8(n)-n))
}

func encodeMatrix(a *Array, name string) ([]byte, error) {
	var b bytes.Buffer

	flags := make([]byte, 8)
	fw := uint32(a.Class)
	if a.Imag != nil {
		fw |= flagComplex
	}
	le.PutUint32(flags, fw)
	writeElement(&b, miUINT32, flags)

	dims := a.Dims
	if len(dims) == 0 {
		dims = []int{0, 0}
	}
	db := make([]byte, 4*len(dims))
	for i, d := range dims {
		le.PutUint32(db[i*4:], uint32(int32(d)))
	}
	writeElement(&b, miINT32, db)

	if name == "" {
		writeTag(&b, miINT8, 0)
	} else {
		writeElement(&b, miINT8, []byte(name))
	}

	switch {
	case a.Class.Numeric():
		if len(a.Data) != a.Len() {
			return nil, fmt.Errorf("matfile: %s has %d values for dims %v", a.label(), len(a.Data), a.Dims)
		}
		writeElement(&b, miDOUBLE, doubles(a.Data))
		if a.Imag != nil {
			writeElement(&b, miDOUBLE, doubles(a.Imag))
		}

	case a.Class == ClassChar:
		units := utf16.Encode([]rune(a.Text))
		cb := make([]byte, 2*len(units))
		for i, u := range units {
			le.PutUint16(cb[i*2:], u)
		}
		writeElement(&b, miUINT16, cb)

	case a.Class == ClassStruct:
		width := 1
		for _, f := range a.FieldNames {
			if len(f)+1 > width {
				width = len(f) + 1
			}
		}
		wb := make([]byte, 4)
		le.PutUint32(wb, uint32(width))
		writeElement(&b, miINT32, wb)

		names := make([]byte, width*len(a.FieldNames))
		for i, f := range a.FieldNames {
			copy(names[i*width:], f)
		}
		writeElement(&b, miINT8, names)

		if len(a.Elems) != a.Len() {
			return nil, fmt.Errorf("matfile: %s has %d elements for dims %v", a.label(), len(a.Elems), a.Dims)
		}
		for _, elem := range a.Elems {
			for _, f := range a.FieldNames {
				if err := writeChild(&b, elem[f]); err != nil {
					return nil, fmt.Errorf("field %s: %w", f, err)
				}
			}
		}

	case a.Class == ClassCell:
		if len(a.Cells) != a.Len() {
			return nil, fmt.Errorf("matfile: %s has %d cells for dims %v", a.label(), len(a.Cells), a.Dims)
		}
		for _, c := range a.Cells {
			if err := writeChild(&b, c); err != nil {
				return nil, err
			}
		}

	default:
		return nil, fmt.Errorf("%w: encoding class %s", ErrUnsupported, a.Class)
	}

	return b.Bytes(), nil
}

func writeChild(b *bytes.Buffer, a *Array) error {
	if a == nil {
		writeTag(b, miMATRIX, 0)
		return nil
	}
	body, err := encodeMatrix(a, "")
	if err != nil {
		return err
	}
	writeElement(b, miMATRIX, body)
	return nil
}

func doubles(vals []float64) []byte {
	out := make([]byte, 8*len(vals))
	for i, v := range vals {
		le.PutUint64(out[i*8:], math.Float64bits(v))
	}
	return out
}
