package ir

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"
	"unicode/utf16"
)

// Value is a sealed interface representing the scalar and composite values a
// row field, parameter or channel can hold.
// Only Null, String, Number, Bool, List, and Object implement this.
type Value interface {
	irValue() // Sealed - only these types implement it
}

// Null represents an explicit null. A field that is absent from a row is
// not the same thing as a field holding Null.
type Null struct{}

func (Null) irValue() {}

// MarshalJSON implements json.Marshaler for Null.
func (Null) MarshalJSON() ([]byte, error) {
	return []byte("null"), nil
}

// String represents a string value.
type String string

func (String) irValue() {}

// Number represents a numeric value. NaN is representable and is treated as
// invalid by isValid.
type Number float64

func (Number) irValue() {}

// Bool represents a boolean value.
type Bool bool

func (Bool) irValue() {}

// List is an ordered sequence of values. Selection sets and array literals
// use it.
type List []Value

func (List) irValue() {}

// Object is a map of string keys to values.
// Use SortedKeys() for deterministic iteration.
type Object map[string]Value

func (Object) irValue() {}

// NewString creates a String value.
func NewString(s string) String {
	return String(s)
}

// NewNumber creates a Number value.
func NewNumber(f float64) Number {
	return Number(f)
}

// NewBool creates a Bool value.
func NewBool(b bool) Bool {
	return Bool(b)
}

// NewList creates a List from values.
func NewList(vals ...Value) List {
	return List(vals)
}

// Pair is a key-value pair for Object construction.
type Pair struct {
	Key   string
	Value Value
}

// O is a shorthand for Pair.
// Example: NewObject(O("region", NewString("johor")), O("n", NewNumber(2)))
func O(key string, value Value) Pair {
	return Pair{Key: key, Value: value}
}

// NewObject creates an Object from key-value pairs.
func NewObject(pairs ...Pair) Object {
	obj := make(Object, len(pairs))
	for _, p := range pairs {
		obj[p.Key] = p.Value
	}
	return obj
}

// SortedKeys returns keys in RFC 8785 canonical order (UTF-16 code units).
// CRITICAL: Go's sort.Strings uses UTF-8 which produces DIFFERENT order.
func (obj Object) SortedKeys() []string {
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, compareKeysRFC8785)
	return keys
}

// compareKeysRFC8785 compares strings using UTF-16 code unit ordering
// as required by RFC 8785 (Canonical JSON).
func compareKeysRFC8785(a, b string) int {
	a16 := utf16.Encode([]rune(a))
	b16 := utf16.Encode([]rune(b))

	minLen := min(len(a16), len(b16))
	for i := 0; i < minLen; i++ {
		if a16[i] != b16[i] {
			if a16[i] < b16[i] {
				return -1
			}
			return 1
		}
	}

	if len(a16) < len(b16) {
		return -1
	}
	if len(a16) > len(b16) {
		return 1
	}
	return 0
}

// IsNull reports whether v is nil or Null.
func IsNull(v Value) bool {
	if v == nil {
		return true
	}
	_, ok := v.(Null)
	return ok
}

// IsValid reports whether v is non-null and, for numbers, not NaN.
func IsValid(v Value) bool {
	switch val := v.(type) {
	case nil, Null:
		return false
	case Number:
		return !math.IsNaN(float64(val))
	default:
		return true
	}
}

// Truthy applies JavaScript-style truthiness: null, false, 0, NaN and ""
// are false; everything else (including empty lists and objects) is true.
func Truthy(v Value) bool {
	switch val := v.(type) {
	case nil, Null:
		return false
	case Bool:
		return bool(val)
	case Number:
		f := float64(val)
		return f != 0 && !math.IsNaN(f)
	case String:
		return val != ""
	default:
		return true
	}
}

// ToNumber coerces v to a float64 following the expression language rules:
// numbers pass through, booleans become 0/1, numeric strings parse, null is
// 0 and everything else is NaN.
func ToNumber(v Value) float64 {
	switch val := v.(type) {
	case Number:
		return float64(val)
	case Bool:
		if val {
			return 1
		}
		return 0
	case String:
		s := strings.TrimSpace(string(val))
		if s == "" {
			return 0
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return math.NaN()
		}
		return f
	case nil, Null:
		return 0
	default:
		return math.NaN()
	}
}

// ToString renders v the way string concatenation does.
func ToString(v Value) string {
	switch val := v.(type) {
	case nil, Null:
		return "null"
	case String:
		return string(val)
	case Number:
		return FormatNumber(float64(val))
	case Bool:
		if val {
			return "true"
		}
		return "false"
	case List:
		parts := make([]string, len(val))
		for i, e := range val {
			if IsNull(e) {
				continue
			}
			parts[i] = ToString(e)
		}
		return strings.Join(parts, ",")
	case Object:
		return "[object Object]"
	default:
		return fmt.Sprintf("%v", v)
	}
}

// FormatNumber formats f without a trailing ".0" for integral values.
func FormatNumber(f float64) string {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	case f == math.Trunc(f) && math.Abs(f) < 1e21:
		return strconv.FormatFloat(f, 'f', -1, 64)
	default:
		return strconv.FormatFloat(f, 'g', -1, 64)
	}
}

// Equal reports strict equality (same kind and same value). Lists and
// objects compare element-wise. NaN is never equal to anything.
func Equal(a, b Value) bool {
	if IsNull(a) || IsNull(b) {
		return IsNull(a) && IsNull(b)
	}
	switch av := a.(type) {
	case String:
		bv, ok := b.(String)
		return ok && av == bv
	case Number:
		bv, ok := b.(Number)
		return ok && av == bv
	case Bool:
		bv, ok := b.(Bool)
		return ok && av == bv
	case List:
		bv, ok := b.(List)
		if !ok || len(av) != len(bv) {
			return false
		}
		for i := range av {
			if !Equal(av[i], bv[i]) {
				return false
			}
		}
		return true
	case Object:
		bv, ok := b.(Object)
		if !ok || len(av) != len(bv) {
			return false
		}
		for k, v := range av {
			w, ok := bv[k]
			if !ok || !Equal(v, w) {
				return false
			}
		}
		return true
	}
	return false
}

// LooseEqual implements == semantics: values of different primitive kinds
// are compared numerically, null only equals null.
func LooseEqual(a, b Value) bool {
	if IsNull(a) || IsNull(b) {
		return IsNull(a) && IsNull(b)
	}
	as, aStr := a.(String)
	bs, bStr := b.(String)
	if aStr && bStr {
		return as == bs
	}
	_, aList := a.(List)
	_, bList := b.(List)
	_, aObj := a.(Object)
	_, bObj := b.(Object)
	if aList || bList || aObj || bObj {
		return Equal(a, b)
	}
	return ToNumber(a) == ToNumber(b)
}

// kindRank orders value kinds for sorting: null < bool < number < string < list < object.
func kindRank(v Value) int {
	switch v.(type) {
	case nil, Null:
		return 0
	case Bool:
		return 1
	case Number:
		return 2
	case String:
		return 3
	case List:
		return 4
	default:
		return 5
	}
}

// Compare imposes a total order over values for sorting. Values of
// different kinds order by kind rank; NaN sorts before other numbers.
func Compare(a, b Value) int {
	ra, rb := kindRank(a), kindRank(b)
	if ra != rb {
		if ra < rb {
			return -1
		}
		return 1
	}
	switch av := a.(type) {
	case Bool:
		bv := b.(Bool)
		switch {
		case av == bv:
			return 0
		case !bool(av):
			return -1
		default:
			return 1
		}
	case Number:
		x, y := float64(av), float64(b.(Number))
		xn, yn := math.IsNaN(x), math.IsNaN(y)
		switch {
		case xn && yn:
			return 0
		case xn:
			return -1
		case yn:
			return 1
		case x < y:
			return -1
		case x > y:
			return 1
		}
		return 0
	case String:
		return strings.Compare(string(av), string(b.(String)))
	case List:
		bv := b.(List)
		for i := 0; i < len(av) && i < len(bv); i++ {
			if c := Compare(av[i], bv[i]); c != 0 {
				return c
			}
		}
		return len(av) - len(bv)
	}
	return 0
}

// Key returns a string that uniquely identifies v's kind and content.
// Used for grouping and hash-join keys.
func Key(v Value) string {
	switch val := v.(type) {
	case nil, Null:
		return "n:"
	case String:
		return "s:" + string(val)
	case Number:
		return "d:" + strconv.FormatFloat(float64(val), 'g', -1, 64)
	case Bool:
		if val {
			return "b:1"
		}
		return "b:0"
	default:
		data, err := MarshalCanonical(v)
		if err != nil {
			return fmt.Sprintf("x:%v", v)
		}
		return "j:" + string(data)
	}
}

// TupleKey joins the keys of several values into one grouping key. Each
// key is length-prefixed, so no choice of string contents makes two
// different tuples share a key.
func TupleKey(vals []Value) string {
	var b strings.Builder
	for _, v := range vals {
		k := Key(v)
		b.WriteString(strconv.Itoa(len(k)))
		b.WriteByte(':')
		b.WriteString(k)
	}
	return b.String()
}

// FromGo converts a decoded JSON/YAML/CUE Go value into a Value.
// Integers of any width become Number.
func FromGo(v any) (Value, error) {
	switch val := v.(type) {
	case nil:
		return Null{}, nil
	case Value:
		return val, nil
	case bool:
		return Bool(val), nil
	case string:
		return String(val), nil
	case int:
		return Number(val), nil
	case int32:
		return Number(val), nil
	case int64:
		return Number(val), nil
	case uint64:
		return Number(val), nil
	case float32:
		return Number(val), nil
	case float64:
		return Number(val), nil
	case json.Number:
		f, err := val.Float64()
		if err != nil {
			return nil, fmt.Errorf("invalid number %q: %w", val, err)
		}
		return Number(f), nil
	case []any:
		list := make(List, len(val))
		for i, elem := range val {
			e, err := FromGo(elem)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			list[i] = e
		}
		return list, nil
	case map[string]any:
		obj := make(Object, len(val))
		for k, elem := range val {
			e, err := FromGo(elem)
			if err != nil {
				return nil, fmt.Errorf("[%q]: %w", k, err)
			}
			obj[k] = e
		}
		return obj, nil
	case map[any]any:
		obj := make(Object, len(val))
		for k, elem := range val {
			e, err := FromGo(elem)
			if err != nil {
				return nil, fmt.Errorf("[%v]: %w", k, err)
			}
			obj[fmt.Sprint(k)] = e
		}
		return obj, nil
	default:
		return nil, fmt.Errorf("unsupported type: %T", v)
	}
}

// MustFromGo is like FromGo but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustFromGo(v any) Value {
	val, err := FromGo(v)
	if err != nil {
		panic(err)
	}
	return val
}

// UnmarshalValue decodes a JSON document into a Value. Numbers are decoded
// through json.Number so integers keep their exact digits until conversion.
func UnmarshalValue(data []byte) (Value, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var raw any
	if err := dec.Decode(&raw); err != nil {
		return nil, err
	}
	return FromGo(raw)
}

// UnmarshalJSON implements json.Unmarshaler for Object.
func (obj *Object) UnmarshalJSON(data []byte) error {
	v, err := UnmarshalValue(data)
	if err != nil {
		return err
	}
	o, ok := v.(Object)
	if !ok {
		return fmt.Errorf("expected JSON object, got %T", v)
	}
	*obj = o
	return nil
}

// UnmarshalJSON implements json.Unmarshaler for List.
func (l *List) UnmarshalJSON(data []byte) error {
	v, err := UnmarshalValue(data)
	if err != nil {
		return err
	}
	list, ok := v.(List)
	if !ok {
		return fmt.Errorf("expected JSON array, got %T", v)
	}
	*l = list
	return nil
}

// MarshalJSON implements json.Marshaler for Object using canonical encoding.
func (obj Object) MarshalJSON() ([]byte, error) {
	return MarshalCanonical(obj)
}

// MarshalJSON implements json.Marshaler for List using canonical encoding.
func (l List) MarshalJSON() ([]byte, error) {
	return MarshalCanonical(l)
}

// MarshalJSON implements json.Marshaler for Number. NaN and infinities
// encode as null since JSON cannot represent them.
func (n Number) MarshalJSON() ([]byte, error) {
	f := float64(n)
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return []byte("null"), nil
	}
	return []byte(FormatNumber(f)), nil
}
