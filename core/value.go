package core

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Kind is the native type a canonical value came from or is bound as.
type Kind int

const (
	UnsetKind Kind = iota
	NullKind
	IntKind
	FloatKind
	TextKind
	BlobKind
)

func (kind Kind) String() string {
	switch kind {
	case UnsetKind:
		return "Unset"
	case NullKind:
		return "Null"
	case IntKind:
		return "Int"
	case FloatKind:
		return "Float"
	case TextKind:
		return "Text"
	case BlobKind:
		return "Blob"
	default:
		return "Unknown(" + strconv.Itoa(int(kind)) + ")"
	}
}

// Value is a parameter or column value in canonical string form.
// Blob bytes are held unchanged in Text. A NULL has an empty Text and
// NullKind, which keeps it distinct from an empty string.
type Value struct {
	Text string
	Kind Kind
}

func NullValue() Value {
	return Value{Kind: NullKind}
}

func IntValue(v int64) Value {
	return Value{Text: strconv.FormatInt(v, 10), Kind: IntKind}
}

func FloatValue(v float32) Value {
	return Value{Text: strconv.FormatFloat(float64(v), 'g', -1, 32), Kind: FloatKind}
}

func DoubleValue(v float64) Value {
	return Value{Text: strconv.FormatFloat(v, 'g', -1, 64), Kind: FloatKind}
}

func BoolValue(v bool) Value {
	if v {
		return Value{Text: "1", Kind: IntKind}
	}
	return Value{Text: "0", Kind: IntKind}
}

func TextValue(v string) Value {
	return Value{Text: v, Kind: TextKind}
}

// BlobValue copies v, so the caller may reuse its slice afterwards.
func BlobValue(v []byte) Value {
	return Value{Text: string(v), Kind: BlobKind}
}

func (value Value) IsNull() bool {
	return value.Kind == NullKind
}

func (value Value) IsSet() bool {
	return value.Kind != UnsetKind
}

// Native returns the driver argument for a bound value.
func (value Value) Native() any {
	switch value.Kind {
	case NullKind, UnsetKind:
		return nil
	case IntKind:
		if v, err := strconv.ParseInt(value.Text, 10, 64); err == nil {
			return v
		}
		return value.Text
	case FloatKind:
		if v, err := strconv.ParseFloat(value.Text, 64); err == nil {
			return v
		}
		return value.Text
	case BlobKind:
		return []byte(value.Text)
	default:
		return value.Text
	}
}

// Int decodes the value as an int.
func (value Value) Int() (int, error) {
	v, err := value.Int64()
	if err != nil {
		return 0, err
	}
	if v > math.MaxInt || v < math.MinInt {
		return 0, fmt.Errorf("value %s overflows int", value.Text)
	}
	return int(v), nil
}

// Int64 decodes the value as an int64. Integral floats such as "3.0" are
// accepted because some engines return numeric columns that way.
func (value Value) Int64() (int64, error) {
	if value.IsNull() {
		return 0, fmt.Errorf("value is NULL")
	}
	text := strings.TrimSpace(value.Text)
	v, err := strconv.ParseInt(text, 10, 64)
	if err == nil {
		return v, nil
	}
	f, ferr := strconv.ParseFloat(text, 64)
	if ferr == nil && f == math.Trunc(f) && f >= math.MinInt64 && f <= math.MaxInt64 {
		return int64(f), nil
	}
	return 0, fmt.Errorf("unable to convert %q to integer", value.Text)
}

// Double decodes the value as a float64. NULL and empty text decode to NaN.
func (value Value) Double() (float64, error) {
	text := strings.TrimSpace(value.Text)
	if value.IsNull() || text == "" {
		return math.NaN(), nil
	}
	v, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return 0, fmt.Errorf("unable to convert %q to floating point", value.Text)
	}
	return v, nil
}

// Bool decodes the value. NULL, empty text, "0", "f" and "false" are false.
func (value Value) Bool() bool {
	switch strings.ToLower(strings.TrimSpace(value.Text)) {
	case "", "0", "f", "false":
		return false
	}
	if f, err := strconv.ParseFloat(value.Text, 64); err == nil {
		return f != 0
	}
	return true
}

// Blob returns a copy of the raw bytes, or nil for NULL.
func (value Value) Blob() []byte {
	if value.IsNull() {
		return nil
	}
	return []byte(value.Text)
}

// NullPolicy selects how a SQL NULL read from the engine is represented.
type NullPolicy int

const (
	// NullMarker keeps NULL as a distinguished value.
	NullMarker NullPolicy = iota
	// NullAsEmpty turns NULL into empty text, the legacy behavior.
	NullAsEmpty
)

func (policy NullPolicy) String() string {
	switch policy {
	case NullMarker:
		return "null-marker"
	case NullAsEmpty:
		return "null-as-empty"
	default:
		return "unknown"
	}
}

// Codec converts engine-native column values into canonical values.
type Codec struct {
	Policy NullPolicy
}

func (codec Codec) String() string {
	return "codec(" + codec.Policy.String() + ")"
}

// Decode converts one native column value. declType is the engine's
// declared column type and decides whether bytes are a blob or text.
// Bytes of a column without declared type are a blob.
func (codec Codec) Decode(native any, declType string) Value {
	switch v := native.(type) {
	case nil:
		if codec.Policy == NullAsEmpty {
			return Value{Kind: TextKind}
		}
		return NullValue()
	case int64:
		return IntValue(v)
	case int32:
		return IntValue(int64(v))
	case int:
		return IntValue(int64(v))
	case int16:
		return IntValue(int64(v))
	case int8:
		return IntValue(int64(v))
	case uint64:
		return Value{Text: strconv.FormatUint(v, 10), Kind: IntKind}
	case uint32:
		return IntValue(int64(v))
	case uint16:
		return IntValue(int64(v))
	case uint8:
		return IntValue(int64(v))
	case float64:
		return DoubleValue(v)
	case float32:
		return FloatValue(v)
	case bool:
		return BoolValue(v)
	case string:
		return TextValue(v)
	case []byte:
		// Without a declared type, bytes are only returned for blobs.
		if declType == "" || IsBinaryType(declType) {
			return BlobValue(v)
		}
		return TextValue(string(v))
	case time.Time:
		return TextValue(v.Format(time.RFC3339Nano))
	case fmt.Stringer:
		return TextValue(v.String())
	default:
		return TextValue(fmt.Sprint(v))
	}
}

// DecodeRow converts a whole row, reusing dst when it is large enough.
func (codec Codec) DecodeRow(dst []Value, natives []any, declTypes []string) []Value {
	if cap(dst) < len(natives) {
		dst = make([]Value, len(natives))
	}
	dst = dst[:len(natives)]
	for i, native := range natives {
		declType := ""
		if i < len(declTypes) {
			declType = declTypes[i]
		}
		dst[i] = codec.Decode(native, declType)
	}
	return dst
}

// IsBinaryType reports whether a declared column type holds raw bytes.
func IsBinaryType(declType string) bool {
	upper := strings.ToUpper(declType)
	return strings.Contains(upper, "BLOB") || strings.Contains(upper, "BYTEA") ||
		strings.Contains(upper, "BINARY")
}

// Equal reports whether two values have the same kind and bytes.
func (value Value) Equal(other Value) bool {
	return value.Kind == other.Kind && value.Text == other.Text
}
