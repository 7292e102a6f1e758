// Package codec converts entity field values to and from column values.
//
// Encoding is dispatched on the field type resolved at registration:
//
//	numeric kinds   int64 or float64 columns, never null
//	rune            one-character text
//	string, text    text, *string nil is NULL
//	time            epoch milliseconds, -1 for the zero time or a nil pointer
//	enum            the MarshalText name
//	uuid            canonical text
//	bytes           binary, nil is NULL
//	blob            uvarint length prefix followed by a msgpack payload
//	entity          the referenced id, -1 for nil (EncodeRef and DecodeRef)
//
// Times before the Unix epoch cannot be stored since negative values are
// reserved for the null sentinel.
package codec

import (
	"bytes"
	"database/sql/driver"
	"encoding"
	"encoding/binary"
	"errors"
	"fmt"
	"reflect"
	"time"

	"github.com/google/uuid"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/syssam/graphorm/dialect"
	"github.com/syssam/graphorm/schema"
	"github.com/syssam/graphorm/schema/field"
)

// Null is the sentinel stored for zero times and nil entity references.
const Null int64 = -1

// ErrUnsavedReference is returned when encoding a reference to an entity
// that has no identity yet.
var ErrUnsavedReference = errors.New("codec: reference to an unsaved entity")

// Encode returns the column value of v, a field of type t.
func Encode(t field.Type, v reflect.Value) (driver.Value, error) {
	if v.Kind() == reflect.Pointer {
		if v.IsNil() {
			if t == field.TypeTime {
				return Null, nil
			}
			return nil, nil
		}
		v = v.Elem()
	}
	switch t {
	case field.TypeBool:
		return v.Bool(), nil
	case field.TypeInt, field.TypeInt8, field.TypeInt16, field.TypeInt32, field.TypeInt64:
		return v.Int(), nil
	case field.TypeUint, field.TypeUint8, field.TypeUint16, field.TypeUint32, field.TypeUint64:
		// uint64 values above MaxInt64 wrap around and are restored by Decode.
		return int64(v.Uint()), nil
	case field.TypeFloat32, field.TypeFloat64:
		return v.Float(), nil
	case field.TypeRune:
		return string(rune(v.Int())), nil
	case field.TypeString, field.TypeText:
		return v.String(), nil
	case field.TypeTime:
		return encodeTime(v.Interface().(time.Time))
	case field.TypeEnum:
		return encodeEnum(v)
	case field.TypeUUID:
		return v.Interface().(uuid.UUID).String(), nil
	case field.TypeBytes:
		if v.IsNil() {
			return nil, nil
		}
		return bytes.Clone(v.Bytes()), nil
	case field.TypeBlob:
		if (v.Kind() == reflect.Slice || v.Kind() == reflect.Map) && v.IsNil() {
			return nil, nil
		}
		return encodeBlob(v)
	case field.TypeEntity:
		return nil, errors.New("codec: entity values are encoded with EncodeRef")
	default:
		return nil, fmt.Errorf("codec: unsupported field type %s", t)
	}
}

// Decode reads column i of the cursor's current row into dst, a settable
// field of type t.
func Decode(t field.Type, c dialect.Cursor, i int, dst reflect.Value) error {
	if dst.Kind() == reflect.Pointer {
		if isNull(t, c, i) {
			dst.SetZero()
			return nil
		}
		v := reflect.New(dst.Type().Elem())
		if err := decode(t, c, i, v.Elem()); err != nil {
			return err
		}
		dst.Set(v)
		return nil
	}
	if isNull(t, c, i) {
		dst.SetZero()
		return nil
	}
	return decode(t, c, i, dst)
}

func isNull(t field.Type, c dialect.Cursor, i int) bool {
	if c.IsNull(i) {
		return true
	}
	if t == field.TypeTime {
		n, err := c.Int64(i)
		return err == nil && n == Null
	}
	return false
}

func decode(t field.Type, c dialect.Cursor, i int, dst reflect.Value) error {
	switch t {
	case field.TypeBool:
		b, err := c.Bool(i)
		if err != nil {
			return err
		}
		dst.SetBool(b)
	case field.TypeInt, field.TypeInt8, field.TypeInt16, field.TypeInt32, field.TypeInt64:
		n, err := c.Int64(i)
		if err != nil {
			return err
		}
		if dst.OverflowInt(n) {
			return fmt.Errorf("codec: value %d overflows %s", n, dst.Type())
		}
		dst.SetInt(n)
	case field.TypeUint, field.TypeUint8, field.TypeUint16, field.TypeUint32, field.TypeUint64:
		n, err := c.Int64(i)
		if err != nil {
			return err
		}
		if dst.OverflowUint(uint64(n)) {
			return fmt.Errorf("codec: value %d overflows %s", n, dst.Type())
		}
		dst.SetUint(uint64(n))
	case field.TypeFloat32, field.TypeFloat64:
		f, err := c.Float64(i)
		if err != nil {
			return err
		}
		dst.SetFloat(f)
	case field.TypeRune:
		s, err := c.String(i)
		if err != nil {
			return err
		}
		r := []rune(s)
		if len(r) > 1 {
			return fmt.Errorf("codec: %q is not a single character", s)
		}
		if len(r) == 1 {
			dst.SetInt(int64(r[0]))
		}
	case field.TypeString, field.TypeText:
		s, err := c.String(i)
		if err != nil {
			return err
		}
		dst.SetString(s)
	case field.TypeTime:
		n, err := c.Int64(i)
		if err != nil {
			return err
		}
		dst.Set(reflect.ValueOf(time.UnixMilli(n).UTC()))
	case field.TypeEnum:
		s, err := c.String(i)
		if err != nil {
			return err
		}
		u, ok := dst.Addr().Interface().(encoding.TextUnmarshaler)
		if !ok {
			return fmt.Errorf("codec: %s does not implement encoding.TextUnmarshaler", dst.Type())
		}
		return u.UnmarshalText([]byte(s))
	case field.TypeUUID:
		s, err := c.String(i)
		if err != nil {
			return err
		}
		u, err := uuid.Parse(s)
		if err != nil {
			return fmt.Errorf("codec: %w", err)
		}
		dst.Set(reflect.ValueOf(u))
	case field.TypeBytes:
		b, err := c.Bytes(i)
		if err != nil {
			return err
		}
		// Empty stays empty: only NULL decodes to nil.
		dst.SetBytes(bytes.Clone(b))
	case field.TypeBlob:
		b, err := c.Bytes(i)
		if err != nil {
			return err
		}
		return decodeBlob(b, dst)
	default:
		return fmt.Errorf("codec: unsupported field type %s", t)
	}
	return nil
}

// EncodeRef returns the column value of ref, a pointer to an instance of
// e. A nil pointer is stored as Null.
func EncodeRef(e *schema.Entity, ref reflect.Value) (driver.Value, error) {
	if ref.IsNil() {
		return Null, nil
	}
	id := e.IDOf(ref)
	if !id.IsSaved() {
		return nil, fmt.Errorf("%w: %s", ErrUnsavedReference, e.Name)
	}
	return id.Int64(), nil
}

// DecodeRef reads a reference column. It returns schema.Unsaved for nil
// references.
func DecodeRef(c dialect.Cursor, i int) (schema.ID, error) {
	if c.IsNull(i) {
		return schema.Unsaved, nil
	}
	n, err := c.Int64(i)
	if err != nil {
		return schema.Unsaved, err
	}
	if n <= 0 {
		return schema.Unsaved, nil
	}
	return schema.Saved(n), nil
}

func encodeTime(t time.Time) (driver.Value, error) {
	if t.IsZero() {
		return Null, nil
	}
	ms := t.UnixMilli()
	if ms < 0 {
		return nil, fmt.Errorf("codec: time %s is before the Unix epoch", t.Format(time.RFC3339))
	}
	return ms, nil
}

func encodeEnum(v reflect.Value) (driver.Value, error) {
	m, ok := v.Interface().(encoding.TextMarshaler)
	if !ok && v.CanAddr() {
		m, ok = v.Addr().Interface().(encoding.TextMarshaler)
	}
	if !ok {
		return nil, fmt.Errorf("codec: %s does not implement encoding.TextMarshaler", v.Type())
	}
	b, err := m.MarshalText()
	if err != nil {
		return nil, fmt.Errorf("codec: %w", err)
	}
	return string(b), nil
}

func encodeBlob(v reflect.Value) (driver.Value, error) {
	payload, err := msgpack.Marshal(v.Interface())
	if err != nil {
		return nil, fmt.Errorf("codec: %w", err)
	}
	b := binary.AppendUvarint(make([]byte, 0, len(payload)+binary.MaxVarintLen64), uint64(len(payload)))
	return append(b, payload...), nil
}

func decodeBlob(b []byte, dst reflect.Value) error {
	n, k := binary.Uvarint(b)
	if k <= 0 || uint64(len(b)-k) != n {
		return errors.New("codec: corrupt blob length prefix")
	}
	if err := msgpack.Unmarshal(b[k:], dst.Addr().Interface()); err != nil {
		return fmt.Errorf("codec: %w", err)
	}
	return nil
}
