package field

import (
	"encoding"
	"fmt"
	"reflect"
	"time"

	"github.com/google/uuid"
)

// A Type represents a field type.
type Type uint8

// List of field types.
const (
	TypeInvalid Type = iota
	TypeBool
	TypeInt
	TypeInt8
	TypeInt16
	TypeInt32
	TypeInt64
	TypeUint
	TypeUint8
	TypeUint16
	TypeUint32
	TypeUint64
	TypeFloat32
	TypeFloat64
	TypeRune
	TypeString
	TypeText
	TypeTime
	TypeEnum
	TypeUUID
	TypeBytes
	TypeBlob
	TypeEntity
	endTypes
)

var typeNames = [...]string{
	TypeInvalid: "invalid",
	TypeBool:    "bool",
	TypeInt:     "int",
	TypeInt8:    "int8",
	TypeInt16:   "int16",
	TypeInt32:   "int32",
	TypeInt64:   "int64",
	TypeUint:    "uint",
	TypeUint8:   "uint8",
	TypeUint16:  "uint16",
	TypeUint32:  "uint32",
	TypeUint64:  "uint64",
	TypeFloat32: "float32",
	TypeFloat64: "float64",
	TypeRune:    "rune",
	TypeString:  "string",
	TypeText:    "text",
	TypeTime:    "time.Time",
	TypeEnum:    "enum",
	TypeUUID:    "uuid.UUID",
	TypeBytes:   "[]byte",
	TypeBlob:    "blob",
	TypeEntity:  "entity",
}

// String returns the string representation of a type.
func (t Type) String() string {
	if t < endTypes {
		return typeNames[t]
	}
	return typeNames[TypeInvalid]
}

// Valid reports if the given type is known type.
func (t Type) Valid() bool {
	return t > TypeInvalid && t < endTypes
}

// Numeric reports if the given type is a numeric type.
func (t Type) Numeric() bool {
	return t >= TypeInt && t <= TypeFloat64
}

// Integer reports if the given type is stored in an integer column.
// Times and entity references are stored as integers too.
func (t Type) Integer() bool {
	switch t {
	case TypeBool, TypeTime, TypeEntity:
		return true
	}
	return t >= TypeInt && t <= TypeUint64
}

// Binary reports if the given type is stored in a binary column.
func (t Type) Binary() bool {
	return t == TypeBytes || t == TypeBlob
}

// Hint carries the struct-tag options that change how a Go type maps
// onto a field type.
type Hint struct {
	// Text stores strings in a long-text column.
	Text bool
	// Char stores an int32 as a single character.
	Char bool
	// Blob forces the msgpack payload encoding.
	Blob bool
}

var (
	timeType            = reflect.TypeOf(time.Time{})
	uuidType            = reflect.TypeOf(uuid.UUID{})
	bytesType           = reflect.TypeOf([]byte(nil))
	textMarshalerType   = reflect.TypeOf((*encoding.TextMarshaler)(nil)).Elem()
	textUnmarshalerType = reflect.TypeOf((*encoding.TextUnmarshaler)(nil)).Elem()
)

// TypeOf resolves the field type of the given Go type. Pointers to a
// supported type are nullable. An error is returned for Go types that
// have no column representation.
func TypeOf(rt reflect.Type, h Hint) (t Type, nullable bool, err error) {
	if rt.Kind() == reflect.Pointer {
		nullable = true
		rt = rt.Elem()
		if rt.Kind() == reflect.Pointer {
			return TypeInvalid, false, fmt.Errorf("unsupported type %s: pointer to pointer", reflect.PointerTo(rt))
		}
	}
	switch {
	case rt == timeType:
		return TypeTime, nullable, nil
	case rt == uuidType:
		return TypeUUID, nullable, nil
	case rt == bytesType:
		return TypeBytes, true, nil
	case h.Blob:
		return TypeBlob, true, nil
	case isEnum(rt):
		return TypeEnum, nullable, nil
	}
	switch rt.Kind() {
	case reflect.Bool:
		t = TypeBool
	case reflect.Int:
		t = TypeInt
	case reflect.Int8:
		t = TypeInt8
	case reflect.Int16:
		t = TypeInt16
	case reflect.Int32:
		t = TypeInt32
		if h.Char {
			t = TypeRune
		}
	case reflect.Int64:
		t = TypeInt64
	case reflect.Uint:
		t = TypeUint
	case reflect.Uint8:
		t = TypeUint8
	case reflect.Uint16:
		t = TypeUint16
	case reflect.Uint32:
		t = TypeUint32
	case reflect.Uint64:
		t = TypeUint64
	case reflect.Float32:
		t = TypeFloat32
	case reflect.Float64:
		t = TypeFloat64
	case reflect.String:
		t = TypeString
		if h.Text {
			t = TypeText
		}
	case reflect.Struct, reflect.Array:
		return TypeBlob, true, nil
	default:
		return TypeInvalid, false, fmt.Errorf("unsupported type %s", rt)
	}
	if h.Char && t != TypeRune {
		return TypeInvalid, false, fmt.Errorf("char option on non-int32 type %s", rt)
	}
	if h.Text && t != TypeText {
		return TypeInvalid, false, fmt.Errorf("text option on non-string type %s", rt)
	}
	return t, nullable, nil
}

// isEnum reports if values of rt can be stored by their symbolic name.
func isEnum(rt reflect.Type) bool {
	if rt.Kind() == reflect.Struct || rt.Kind() == reflect.Interface {
		return false
	}
	pt := reflect.PointerTo(rt)
	return (rt.Implements(textMarshalerType) || pt.Implements(textMarshalerType)) &&
		pt.Implements(textUnmarshalerType)
}
