// Package appmessage implements the AppMessage dictionary wire format and the
// WebSocket link that carries it to the watch.
package appmessage

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"sort"
)

// TupleType tags the value stored in a Tuple.
type TupleType uint8

const (
	TypeByteArray TupleType = 0
	TypeCString   TupleType = 1
	TypeUint      TupleType = 2
	TypeInt       TupleType = 3
)

const tupleHeaderSize = 7 // key u32, type u8, length u16

// ErrUnsupportedValue is returned for payload values with no tuple encoding.
var ErrUnsupportedValue = errors.New("unsupported value type")

// Tuple is a single key/value entry of a Dictionary.
type Tuple struct {
	Key   uint32
	Type  TupleType
	Value []byte
}

// Dictionary is an ordered list of tuples.
type Dictionary []Tuple

// MarshalBinary encodes d as count followed by its tuples.
func (d Dictionary) MarshalBinary() ([]byte, error) {
	if len(d) > math.MaxUint8 {
		return nil, fmt.Errorf("dictionary has %d tuples, max %d", len(d), math.MaxUint8)
	}
	var buf bytes.Buffer
	buf.WriteByte(byte(len(d)))
	for _, t := range d {
		if len(t.Value) > math.MaxUint16 {
			return nil, fmt.Errorf("tuple %d value is %d bytes, max %d", t.Key, len(t.Value), math.MaxUint16)
		}
		var hdr [tupleHeaderSize]byte
		binary.LittleEndian.PutUint32(hdr[0:4], t.Key)
		hdr[4] = byte(t.Type)
		binary.LittleEndian.PutUint16(hdr[5:7], uint16(len(t.Value)))
		buf.Write(hdr[:])
		buf.Write(t.Value)
	}
	return buf.Bytes(), nil
}

// UnmarshalDictionary decodes a dictionary and returns the number of bytes consumed.
func UnmarshalDictionary(b []byte) (Dictionary, int, error) {
	if len(b) < 1 {
		return nil, 0, errors.New("dictionary: missing tuple count")
	}
	count := int(b[0])
	off := 1
	d := make(Dictionary, 0, count)
	for i := 0; i < count; i++ {
		if len(b)-off < tupleHeaderSize {
			return nil, 0, fmt.Errorf("dictionary: tuple %d header truncated", i)
		}
		key := binary.LittleEndian.Uint32(b[off : off+4])
		typ := TupleType(b[off+4])
		n := int(binary.LittleEndian.Uint16(b[off+5 : off+7]))
		off += tupleHeaderSize
		if len(b)-off < n {
			return nil, 0, fmt.Errorf("dictionary: tuple %d value truncated", i)
		}
		val := make([]byte, n)
		copy(val, b[off:off+n])
		off += n
		d = append(d, Tuple{Key: key, Type: typ, Value: val})
	}
	return d, off, nil
}

// EncodePayload converts a decoded settings payload into a dictionary,
// resolving field names through m. Tuples are ordered by key.
func EncodePayload(payload map[string]any, m Manifest) (Dictionary, error) {
	d := make(Dictionary, 0, len(payload))
	for name, v := range payload {
		key, err := m.Key(name)
		if err != nil {
			return nil, err
		}
		t, err := encodeValue(key, v)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", name, err)
		}
		d = append(d, t)
	}
	sort.Slice(d, func(i, j int) bool { return d[i].Key < d[j].Key })
	return d, nil
}

// DecodePayload converts a dictionary back into a payload keyed by field name.
func DecodePayload(d Dictionary, m Manifest) (map[string]any, error) {
	out := make(map[string]any, len(d))
	for _, t := range d {
		v, err := t.decodeValue()
		if err != nil {
			return nil, err
		}
		out[m.Name(t.Key)] = v
	}
	return out, nil
}

func encodeValue(key uint32, v any) (Tuple, error) {
	switch val := v.(type) {
	case string:
		b := make([]byte, len(val)+1)
		copy(b, val)
		return Tuple{Key: key, Type: TypeCString, Value: b}, nil
	case bool:
		var i int32
		if val {
			i = 1
		}
		return intTuple(key, i), nil
	case float64:
		if val != math.Trunc(val) || val < math.MinInt32 || val > math.MaxInt32 {
			return Tuple{}, fmt.Errorf("%w: number %v is not a 32-bit integer", ErrUnsupportedValue, val)
		}
		return intTuple(key, int32(val)), nil
	case int:
		if val < math.MinInt32 || val > math.MaxInt32 {
			return Tuple{}, fmt.Errorf("%w: number %d is not a 32-bit integer", ErrUnsupportedValue, val)
		}
		return intTuple(key, int32(val)), nil
	case []any:
		b := make([]byte, len(val))
		for i, e := range val {
			f, ok := e.(float64)
			if !ok || f != math.Trunc(f) || f < 0 || f > math.MaxUint8 {
				return Tuple{}, fmt.Errorf("%w: array element %d is not a byte", ErrUnsupportedValue, i)
			}
			b[i] = byte(f)
		}
		return Tuple{Key: key, Type: TypeByteArray, Value: b}, nil
	default:
		return Tuple{}, fmt.Errorf("%w: %T", ErrUnsupportedValue, v)
	}
}

func intTuple(key uint32, i int32) Tuple {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, uint32(i))
	return Tuple{Key: key, Type: TypeInt, Value: b}
}

func (t Tuple) decodeValue() (any, error) {
	switch t.Type {
	case TypeCString:
		return string(bytes.TrimRight(t.Value, "\x00")), nil
	case TypeByteArray:
		out := make([]any, len(t.Value))
		for i, c := range t.Value {
			out[i] = float64(c)
		}
		return out, nil
	case TypeInt:
		switch len(t.Value) {
		case 1:
			return float64(int8(t.Value[0])), nil
		case 2:
			return float64(int16(binary.LittleEndian.Uint16(t.Value))), nil
		case 4:
			return float64(int32(binary.LittleEndian.Uint32(t.Value))), nil
		}
	case TypeUint:
		switch len(t.Value) {
		case 1:
			return float64(t.Value[0]), nil
		case 2:
			return float64(binary.LittleEndian.Uint16(t.Value)), nil
		case 4:
			return float64(binary.LittleEndian.Uint32(t.Value)), nil
		}
	default:
		return nil, fmt.Errorf("tuple %d: unknown type %d", t.Key, t.Type)
	}
	return nil, fmt.Errorf("tuple %d: invalid integer width %d", t.Key, len(t.Value))
}
