package traci

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// Position2D is a decoded POSITION_2D value.
type Position2D struct {
	X float64
	Y float64
}

// Color is a decoded COLOR value.
type Color struct {
	R, G, B, A uint8
}

var errShort = errors.New("traci: truncated message")

type writer struct {
	buf bytes.Buffer
}

func (w *writer) ubyte(b byte) { w.buf.WriteByte(b) }

func (w *writer) int32(v int32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], uint32(v))
	w.buf.Write(b[:])
}

func (w *writer) double(v float64) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], math.Float64bits(v))
	w.buf.Write(b[:])
}

func (w *writer) str(s string) {
	w.int32(int32(len(s)))
	w.buf.WriteString(s)
}

func (w *writer) strList(l []string) {
	w.int32(int32(len(l)))
	for _, s := range l {
		w.str(s)
	}
}

func (w *writer) typedInt(v int) {
	w.ubyte(typeInteger)
	w.int32(int32(v))
}

func (w *writer) typedDouble(v float64) {
	w.ubyte(typeDouble)
	w.double(v)
}

func (w *writer) typedString(s string) {
	w.ubyte(typeString)
	w.str(s)
}

func (w *writer) typedStringList(l []string) {
	w.ubyte(typeStringList)
	w.strList(l)
}

func (w *writer) bytes() []byte { return w.buf.Bytes() }

// encodeCommand frames one command. Commands longer than 255 bytes use the
// extended length form.
func encodeCommand(id byte, content []byte) []byte {
	var w writer
	if n := 1 + 1 + len(content); n <= 255 {
		w.ubyte(byte(n))
	} else {
		w.ubyte(0)
		w.int32(int32(1 + 4 + 1 + len(content)))
	}
	w.ubyte(id)
	w.buf.Write(content)
	return w.bytes()
}

// encodeMessage prefixes the commands with the total message length.
func encodeMessage(cmds ...[]byte) []byte {
	total := 4
	for _, c := range cmds {
		total += len(c)
	}
	var w writer
	w.int32(int32(total))
	for _, c := range cmds {
		w.buf.Write(c)
	}
	return w.bytes()
}

type reader struct {
	b   []byte
	off int
}

func newReader(b []byte) *reader { return &reader{b: b} }

func (r *reader) remaining() int { return len(r.b) - r.off }

func (r *reader) next(n int) ([]byte, error) {
	if n < 0 || r.remaining() < n {
		return nil, errShort
	}
	b := r.b[r.off : r.off+n]
	r.off += n
	return b, nil
}

func (r *reader) ubyte() (byte, error) {
	b, err := r.next(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (r *reader) int32() (int32, error) {
	b, err := r.next(4)
	if err != nil {
		return 0, err
	}
	return int32(binary.BigEndian.Uint32(b)), nil
}

func (r *reader) double() (float64, error) {
	b, err := r.next(8)
	if err != nil {
		return 0, err
	}
	return math.Float64frombits(binary.BigEndian.Uint64(b)), nil
}

func (r *reader) str() (string, error) {
	n, err := r.int32()
	if err != nil {
		return "", err
	}
	b, err := r.next(int(n))
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (r *reader) strList() ([]string, error) {
	n, err := r.int32()
	if err != nil {
		return nil, err
	}
	if n < 0 || int(n) > r.remaining() {
		return nil, errShort
	}
	out := make([]string, 0, n)
	for i := int32(0); i < n; i++ {
		s, err := r.str()
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

// length reads a command length in short or extended form and returns the
// number of bytes left in the command after the length field.
func (r *reader) length() (int, error) {
	b, err := r.ubyte()
	if err != nil {
		return 0, err
	}
	if b > 0 {
		return int(b) - 1, nil
	}
	n, err := r.int32()
	if err != nil {
		return 0, err
	}
	return int(n) - 5, nil
}

// expect reads a type byte and fails when it differs from want.
func (r *reader) expect(want byte) error {
	got, err := r.ubyte()
	if err != nil {
		return err
	}
	if got != want {
		return fmt.Errorf("traci: expected type 0x%02x, got 0x%02x", want, got)
	}
	return nil
}

// value decodes one typed value. Compounds decode to []any holding their
// typed items in order.
func (r *reader) value() (any, error) {
	t, err := r.ubyte()
	if err != nil {
		return nil, err
	}
	switch t {
	case typePosition2D:
		x, err := r.double()
		if err != nil {
			return nil, err
		}
		y, err := r.double()
		if err != nil {
			return nil, err
		}
		return Position2D{X: x, Y: y}, nil
	case typeUByte:
		return r.ubyte()
	case typeByte:
		b, err := r.ubyte()
		return int8(b), err
	case typeInteger:
		v, err := r.int32()
		return int(v), err
	case typeDouble:
		return r.double()
	case typeString:
		return r.str()
	case typeStringList:
		return r.strList()
	case typeCompound:
		n, err := r.int32()
		if err != nil {
			return nil, err
		}
		if n < 0 || int(n) > r.remaining() {
			return nil, errShort
		}
		items := make([]any, 0, n)
		for i := int32(0); i < n; i++ {
			v, err := r.value()
			if err != nil {
				return nil, err
			}
			items = append(items, v)
		}
		return items, nil
	case typeDoubleList:
		n, err := r.int32()
		if err != nil {
			return nil, err
		}
		if n < 0 || int(n)*8 > r.remaining() {
			return nil, errShort
		}
		out := make([]float64, n)
		for i := range out {
			if out[i], err = r.double(); err != nil {
				return nil, err
			}
		}
		return out, nil
	case typeColor:
		b, err := r.next(4)
		if err != nil {
			return nil, err
		}
		return Color{R: b[0], G: b[1], B: b[2], A: b[3]}, nil
	default:
		return nil, fmt.Errorf("traci: unsupported type 0x%02x", t)
	}
}

// items is a cursor over a decoded compound.
type items struct {
	v   []any
	pos int
}

func (it *items) next() (any, error) {
	if it.pos >= len(it.v) {
		return nil, errors.New("traci: compound ended early")
	}
	v := it.v[it.pos]
	it.pos++
	return v, nil
}

func (it *items) int() (int, error) {
	v, err := it.next()
	if err != nil {
		return 0, err
	}
	i, ok := v.(int)
	if !ok {
		return 0, fmt.Errorf("traci: expected int in compound, got %T", v)
	}
	return i, nil
}

func (it *items) double() (float64, error) {
	v, err := it.next()
	if err != nil {
		return 0, err
	}
	f, ok := v.(float64)
	if !ok {
		return 0, fmt.Errorf("traci: expected double in compound, got %T", v)
	}
	return f, nil
}

func (it *items) str() (string, error) {
	v, err := it.next()
	if err != nil {
		return "", err
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("traci: expected string in compound, got %T", v)
	}
	return s, nil
}

func (it *items) strList() ([]string, error) {
	v, err := it.next()
	if err != nil {
		return nil, err
	}
	s, ok := v.([]string)
	if !ok {
		return nil, fmt.Errorf("traci: expected string list in compound, got %T", v)
	}
	return s, nil
}

func (it *items) compound() (*items, error) {
	v, err := it.next()
	if err != nil {
		return nil, err
	}
	c, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("traci: expected compound, got %T", v)
	}
	return &items{v: c}, nil
}
